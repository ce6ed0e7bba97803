// Package files implements the workspace-confined file actions:
// discovery (scan, read, search, symbols, dependencies) and mutation
// (create, update, delete, move, patch). All paths route through
// Resolver; nothing in this package touches the filesystem outside the
// workspace root.
package files

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/nexar-labs/nexar/internal/tools"
)

// Resolver resolves and validates workspace-relative paths.
type Resolver struct {
	Root string
}

// Resolve returns an absolute, cleaned path inside the workspace root.
// Escapes via "..", absolute paths outside the root, or symlinks fail
// with a path_escape error before any I/O happens.
func (r Resolver) Resolve(path string) (string, error) {
	clean := strings.TrimSpace(path)
	if clean == "" {
		return "", tools.NewToolError("resolver", tools.KindInvalidInput, "path is required")
	}
	root := strings.TrimSpace(r.Root)
	if root == "" {
		root = "."
	}
	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return "", tools.NewToolError("resolver", tools.KindIO, "resolve workspace root").WithCause(err)
	}
	if resolved, err := filepath.EvalSymlinks(rootAbs); err == nil {
		rootAbs = resolved
	}

	var target string
	if filepath.IsAbs(clean) {
		target = filepath.Clean(clean)
	} else {
		target = filepath.Join(rootAbs, clean)
	}
	targetAbs, err := filepath.Abs(target)
	if err != nil {
		return "", tools.NewToolError("resolver", tools.KindIO, "resolve path").WithPath(path).WithCause(err)
	}
	if err := r.check(rootAbs, targetAbs, path); err != nil {
		return "", err
	}

	// A symlink inside the workspace may still point outside it.
	if resolved, err := filepath.EvalSymlinks(targetAbs); err == nil && resolved != targetAbs {
		if err := r.check(rootAbs, resolved, path); err != nil {
			return "", err
		}
	}
	return targetAbs, nil
}

func (r Resolver) check(rootAbs, targetAbs, original string) error {
	rel, err := filepath.Rel(rootAbs, targetAbs)
	if err != nil {
		return tools.NewToolError("resolver", tools.KindIO, "resolve path").WithPath(original).WithCause(err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return tools.NewToolError("resolver", tools.KindPathEscape, "path escapes workspace").WithPath(original)
	}
	return nil
}

// Rel returns the workspace-relative form of an absolute path.
func (r Resolver) Rel(abs string) string {
	rootAbs, err := filepath.Abs(r.Root)
	if err != nil {
		return abs
	}
	rel, err := filepath.Rel(rootAbs, abs)
	if err != nil {
		return abs
	}
	return filepath.ToSlash(rel)
}
