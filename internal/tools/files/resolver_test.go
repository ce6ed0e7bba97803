package files

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/nexar-labs/nexar/internal/tools"
)

func TestResolveStaysInsideWorkspace(t *testing.T) {
	root := t.TempDir()
	r := Resolver{Root: root}

	tests := []struct {
		name string
		path string
		kind tools.ErrorKind
	}{
		{"relative", "a.txt", ""},
		{"nested", "sub/dir/file.txt", ""},
		{"dot", ".", ""},
		{"dotdot escape", "../outside.txt", tools.KindPathEscape},
		{"deep dotdot escape", "sub/../../outside.txt", tools.KindPathEscape},
		{"absolute outside", "/etc/passwd", tools.KindPathEscape},
		{"empty", "", tools.KindInvalidInput},
		{"whitespace", "   ", tools.KindInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Resolve(tt.path)
			if tt.kind == "" {
				if err != nil {
					t.Fatalf("Resolve(%q): %v", tt.path, err)
				}
				return
			}
			te, ok := tools.IsToolError(err)
			if !ok {
				t.Fatalf("Resolve(%q) = %v, want ToolError", tt.path, err)
			}
			if te.Kind != tt.kind {
				t.Errorf("kind = %s, want %s", te.Kind, tt.kind)
			}
		})
	}
}

func TestResolveAbsoluteInsideWorkspace(t *testing.T) {
	root := t.TempDir()
	rootEval, err := filepath.EvalSymlinks(root)
	if err != nil {
		t.Fatal(err)
	}
	r := Resolver{Root: rootEval}

	resolved, err := r.Resolve(filepath.Join(rootEval, "a.txt"))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if resolved != filepath.Join(rootEval, "a.txt") {
		t.Errorf("resolved = %q", resolved)
	}
}

func TestResolveRejectsSymlinkEscape(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	link := filepath.Join(root, "link")
	if err := os.Symlink(outside, link); err != nil {
		t.Skipf("symlink not supported: %v", err)
	}

	r := Resolver{Root: root}
	_, err := r.Resolve("link")
	te, ok := tools.IsToolError(err)
	if !ok || te.Kind != tools.KindPathEscape {
		t.Fatalf("Resolve(link) = %v, want path_escape", err)
	}
}

func TestRelRoundTrip(t *testing.T) {
	root, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	r := Resolver{Root: root}

	resolved, err := r.Resolve("sub/file.txt")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got := r.Rel(resolved); got != "sub/file.txt" {
		t.Errorf("Rel = %q", got)
	}
}
