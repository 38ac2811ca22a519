package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/hupe1980/sleuth/core"
)

// RepoBuilder writes a fixture repository into a temporary directory.
// Example:
//
//	repo := testutil.NewRepoBuilder(t).File("auth/login.go", "package auth").Build()
//
// Chain only the files you need; the directory is removed after the test.
type RepoBuilder struct {
	t     testing.TB
	files map[string]string
	order []string
}

// NewRepoBuilder creates an empty builder.
func NewRepoBuilder(t testing.TB) *RepoBuilder {
	return &RepoBuilder{t: t, files: map[string]string{}}
}

// File adds a file with the given slash-separated path and content (chainable).
func (b *RepoBuilder) File(path, content string) *RepoBuilder {
	if _, ok := b.files[path]; !ok {
		b.order = append(b.order, path)
	}
	b.files[path] = content
	return b
}

// Build writes the files and returns the repository.
func (b *RepoBuilder) Build() core.Repo {
	b.t.Helper()

	root := b.t.TempDir()
	for _, path := range b.order {
		full := filepath.Join(root, filepath.FromSlash(path))
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			b.t.Fatalf("mkdir %s: %v", path, err)
		}
		if err := os.WriteFile(full, []byte(b.files[path]), 0o600); err != nil {
			b.t.Fatalf("write %s: %v", path, err)
		}
	}

	return core.Repo{Root: root, Name: filepath.Base(root)}
}

// SampleRepo builds a small repository with code, docs and noise directories.
func SampleRepo(t testing.TB) core.Repo {
	return NewRepoBuilder(t).
		File("README.md", "# Shop\n\nCheckout flow: cart -> payment -> order.\n").
		File("docs/login.md", "# Login\n\nUsers log in via the LoginHandler which issues a session token.\n").
		File("auth/login.go", "package auth\n\n// LoginHandler authenticates users.\nfunc LoginHandler() error {\n\treturn issueToken()\n}\n").
		File("auth/token.go", "package auth\n\nfunc issueToken() error {\n\treturn nil\n}\n").
		File("payment/payment.go", "package payment\n\n// Charge charges a card during checkout.\nfunc Charge() {}\n").
		File("node_modules/lib/index.js", "login = true\n").
		File(".git/config", "[core]\n").
		Build()
}
