package tool

import "slices"

// Policy restricts which tools a caller may dispatch. Deny wins over Allow.
// An empty Allow list, or one containing "*", allows every tool not denied.
type Policy struct {
	Allow []string `json:"allow,omitempty"`
	Deny  []string `json:"deny,omitempty"`
}

// Allows reports whether name may be dispatched under p.
func (p Policy) Allows(name string) bool {
	if slices.Contains(p.Deny, name) || slices.Contains(p.Deny, "*") {
		return false
	}
	if len(p.Allow) == 0 || slices.Contains(p.Allow, "*") {
		return true
	}
	return slices.Contains(p.Allow, name)
}

// Filter returns the names allowed under p, preserving order.
func (p Policy) Filter(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if p.Allows(n) {
			out = append(out, n)
		}
	}
	return out
}
