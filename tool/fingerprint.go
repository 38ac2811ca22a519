package tool

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// Fingerprint returns a deterministic cache key for a tool invocation.
// namespace separates otherwise identical calls (typically the repository root).
// Argument maps are encoded with sorted keys so key order never matters.
func Fingerprint(namespace, name string, args map[string]any) (string, error) {
	if args == nil {
		args = map[string]any{}
	}

	canonical, err := json.Marshal(args) // encoding/json sorts map keys
	if err != nil {
		return "", err
	}

	h := sha256.New()
	h.Write([]byte(namespace))
	h.Write([]byte{0})
	h.Write([]byte(name))
	h.Write([]byte{0})
	h.Write(canonical)

	return hex.EncodeToString(h.Sum(nil)), nil
}
