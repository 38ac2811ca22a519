package toolset

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/hupe1980/sleuth/core"
	"github.com/hupe1980/sleuth/internal/util"
	"github.com/hupe1980/sleuth/tool"
)

var skipDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	"vendor":       true,
	"__pycache__":  true,
	".idea":        true,
	".vscode":      true,
}

type fileTools struct {
	opts Options
}

// ScanArgs are the arguments of scan_files.
type ScanArgs struct {
	Pattern  string `json:"pattern" default:"*" description:"Glob matched against the file name, or the relative path when it contains a slash"`
	Dir      string `json:"dir" default:"." description:"Directory to start from, relative to the repository root"`
	MaxDepth int    `json:"max_depth" default:"12" description:"Maximum directory depth below dir"`
	Limit    int    `json:"limit" default:"200" description:"Maximum number of files returned"`
}

// ReadArgs are the arguments of read_file.
type ReadArgs struct {
	Path      string `json:"path" description:"File path relative to the repository root"`
	StartLine int    `json:"start_line" default:"1" description:"First line to return (1-based)"`
	MaxLines  int    `json:"max_lines" default:"200" description:"Maximum number of lines returned"`
}

// SearchArgs are the arguments of search_code.
type SearchArgs struct {
	Query      string `json:"query" description:"Regular expression (RE2 syntax) searched line by line"`
	Pattern    string `json:"pattern" default:"*" description:"Glob restricting which files are searched"`
	IgnoreCase bool   `json:"ignore_case" default:"true" description:"Match case-insensitively"`
	MaxPerFile int    `json:"max_per_file" default:"5" description:"Maximum matches reported per file"`
	Limit      int    `json:"limit" default:"50" description:"Maximum matches overall"`
}

// Match is one search_code hit.
type Match struct {
	Path string `json:"path"`
	Line int    `json:"line"`
	Text string `json:"text"`
}

func repoRoot(ctx context.Context) (string, error) {
	ec, ok := tool.ExecutionFrom(ctx)
	if !ok || ec.Repo.Root == "" {
		return "", errors.New("no repository in execution context")
	}
	return filepath.Abs(ec.Repo.Root)
}

// resolve joins rel onto root and rejects paths that escape it, including
// through symlinks.
func resolve(root, rel string) (string, error) {
	full := rel
	if !filepath.IsAbs(full) {
		full = filepath.Join(root, rel)
	}
	full = filepath.Clean(full)

	if !within(root, full) {
		return "", fmt.Errorf("path %q outside repository", rel)
	}

	realRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		return "", fmt.Errorf("repository root: %w", err)
	}
	realFull, err := filepath.EvalSymlinks(full)
	if errors.Is(err, fs.ErrNotExist) {
		return full, nil // reported by the caller
	}
	if err != nil {
		return "", err
	}
	if !within(realRoot, realFull) {
		return "", fmt.Errorf("path %q outside repository", rel)
	}

	return full, nil
}

func within(root, path string) bool {
	return path == root || strings.HasPrefix(path, strings.TrimSuffix(root, string(filepath.Separator))+string(filepath.Separator))
}

func matchGlob(pattern, rel string) bool {
	if pattern == "" || pattern == "*" {
		return true
	}
	target := filepath.Base(rel)
	if strings.Contains(pattern, "/") {
		target = filepath.ToSlash(rel)
	}
	ok, err := filepath.Match(pattern, target)
	return err == nil && ok
}

// walk visits regular files below start in lexical order.
func walk(ctx context.Context, root, start string, maxDepth int, visit func(rel string, d fs.DirEntry) (stop bool)) error {
	baseDepth := strings.Count(filepath.ToSlash(start), "/")

	return filepath.WalkDir(start, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == start {
				return err
			}
			return nil // unreadable entries are skipped
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		if d.IsDir() {
			if path != start && (skipDirs[d.Name()] || strings.HasPrefix(d.Name(), ".")) {
				return filepath.SkipDir
			}
			if maxDepth > 0 && strings.Count(filepath.ToSlash(path), "/")-baseDepth > maxDepth {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || strings.HasPrefix(d.Name(), ".") {
			return nil
		}

		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}

		if visit(filepath.ToSlash(rel), d) {
			return filepath.SkipAll
		}
		return nil
	})
}

func (t *fileTools) scan(ctx context.Context, in ScanArgs) (any, error) {
	root, err := repoRoot(ctx)
	if err != nil {
		return nil, err
	}
	start, err := resolve(root, in.Dir)
	if err != nil {
		return nil, err
	}

	files := []string{}
	truncated := false

	err = walk(ctx, root, start, in.MaxDepth, func(rel string, _ fs.DirEntry) bool {
		if !matchGlob(in.Pattern, rel) {
			return false
		}
		if in.Limit > 0 && len(files) >= in.Limit {
			truncated = true
			return true
		}
		files = append(files, rel)
		return false
	})
	if err != nil {
		return nil, err
	}

	return map[string]any{"files": files, "count": len(files), "truncated": truncated}, nil
}

func (t *fileTools) read(ctx context.Context, in ReadArgs) (any, error) {
	root, err := repoRoot(ctx)
	if err != nil {
		return nil, err
	}
	full, err := resolve(root, in.Path)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(full)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", in.Path)
	}
	if info.Size() > t.opts.MaxFileBytes {
		return nil, fmt.Errorf("%s exceeds %d bytes", in.Path, t.opts.MaxFileBytes)
	}

	data, err := os.ReadFile(full)
	if err != nil {
		return nil, err
	}
	if isBinary(data) {
		return nil, fmt.Errorf("%s is a binary file", in.Path)
	}

	start := max(in.StartLine, 1)
	limit := in.MaxLines
	if limit <= 0 || limit > t.opts.MaxReadLines {
		limit = t.opts.MaxReadLines
	}

	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	total := len(lines)

	if start > total {
		return nil, fmt.Errorf("%s has only %d lines", in.Path, total)
	}
	end := min(start-1+limit, total)

	rel, _ := filepath.Rel(root, full)
	rel = filepath.ToSlash(rel)

	return tool.Output{
		Payload: map[string]any{
			"path":        rel,
			"start_line":  start,
			"end_line":    end,
			"total_lines": total,
			"content":     strings.Join(lines[start-1:end], "\n"),
		},
		Findings: []core.Finding{{
			Artifact: rel,
			Kind:     "file",
			Detail:   fmt.Sprintf("lines %d-%d of %d", start, end, total),
		}},
	}, nil
}

func (t *fileTools) search(ctx context.Context, in SearchArgs) (any, error) {
	root, err := repoRoot(ctx)
	if err != nil {
		return nil, err
	}

	expr := in.Query
	if in.IgnoreCase {
		expr = "(?i)" + expr
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid query: %w", err)
	}

	matches := []Match{}
	truncated := false

	err = walk(ctx, root, root, 0, func(rel string, d fs.DirEntry) bool {
		if !matchGlob(in.Pattern, rel) {
			return false
		}
		if info, err := d.Info(); err != nil || info.Size() > t.opts.MaxFileBytes {
			return false
		}

		hits := grepFile(filepath.Join(root, rel), rel, re, in.MaxPerFile)
		for _, h := range hits {
			if in.Limit > 0 && len(matches) >= in.Limit {
				truncated = true
				return true
			}
			matches = append(matches, h)
		}
		return false
	})
	if err != nil {
		return nil, err
	}

	return tool.Output{
		Payload: map[string]any{"matches": matches, "count": len(matches), "truncated": truncated},
		Findings: matchFindings(matches),
	}, nil
}

// matchFindings reports one finding per file, pointing at its first hit.
func matchFindings(matches []Match) []core.Finding {
	seen := map[string]bool{}
	var findings []core.Finding

	for _, m := range matches {
		if seen[m.Path] {
			continue
		}
		seen[m.Path] = true
		findings = append(findings, core.Finding{
			Artifact: m.Path,
			Kind:     "match",
			Detail:   fmt.Sprintf("line %d: %s", m.Line, m.Text),
		})
	}

	sort.SliceStable(findings, func(i, j int) bool { return findings[i].Artifact < findings[j].Artifact })

	return findings
}

func grepFile(path, rel string, re *regexp.Regexp, maxPerFile int) []Match {
	data, err := os.ReadFile(path)
	if err != nil || isBinary(data) {
		return nil
	}

	var hits []Match

	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)

	line := 0
	for sc.Scan() {
		line++
		text := sc.Text()
		if !re.MatchString(text) {
			continue
		}
		hits = append(hits, Match{Path: rel, Line: line, Text: strings.TrimSpace(util.Clip(text, 200))})
		if maxPerFile > 0 && len(hits) >= maxPerFile {
			break
		}
	}

	return hits
}

func isBinary(data []byte) bool {
	head := data
	if len(head) > 8000 {
		head = head[:8000]
	}
	return bytes.IndexByte(head, 0) >= 0
}
