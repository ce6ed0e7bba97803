// Package workspace implements the editor-facing file service: tree
// listing, bounded reads with language detection, atomic whole-file and
// range writes, and create/delete/rename.
package workspace

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/nexar-labs/nexar/internal/tools"
	"github.com/nexar-labs/nexar/internal/tools/files"
	"github.com/nexar-labs/nexar/pkg/models"
)

// ErrTooLarge means the file exceeds the read cap; the gateway maps it
// to 413.
var ErrTooLarge = errors.New("file exceeds read cap")

// Service serves the /api/files endpoints against one workspace root.
// It shares the resolver and path locks with the agent's file tools so
// editor saves and agent writes serialize on the same mutexes.
type Service struct {
	resolver files.Resolver
	locks    *files.PathLocks
}

// Config wires a Service.
type Config struct {
	Root  string
	Locks *files.PathLocks
}

// NewService creates a file service.
func NewService(cfg Config) *Service {
	locks := cfg.Locks
	if locks == nil {
		locks = files.NewPathLocks()
	}
	return &Service{
		resolver: files.Resolver{Root: cfg.Root},
		locks:    locks,
	}
}

// Tree lists the directory at path (workspace root when empty),
// recursively. Dotfiles are skipped; directories sort before files,
// each group by name.
func (s *Service) Tree(path string) ([]models.FileItem, error) {
	if path == "" {
		path = "."
	}
	abs, err := s.resolver.Resolve(path)
	if err != nil {
		return nil, err
	}
	return s.listDir(abs)
}

func (s *Service) listDir(abs string) ([]models.FileItem, error) {
	entries, err := os.ReadDir(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, tools.NewToolError("files", tools.KindNotFound, "directory not found").WithPath(abs)
		}
		return nil, tools.NewToolError("files", tools.KindIO, err.Error()).WithPath(abs)
	}

	items := make([]models.FileItem, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		child := filepath.Join(abs, name)
		item := models.FileItem{
			Name:  name,
			Path:  s.resolver.Rel(child),
			IsDir: entry.IsDir(),
		}
		if entry.IsDir() {
			children, err := s.listDir(child)
			if err != nil {
				continue
			}
			item.Children = children
		}
		items = append(items, item)
	}

	sort.SliceStable(items, func(i, j int) bool {
		if items[i].IsDir != items[j].IsDir {
			return items[i].IsDir
		}
		return items[i].Name < items[j].Name
	})
	return items, nil
}

// Read returns the file's content and detected language. Files over the
// read cap are refused.
func (s *Service) Read(path string) (*models.FileContent, error) {
	abs, err := s.resolver.Resolve(path)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, tools.NewToolError("files", tools.KindNotFound, "file not found").WithPath(path)
		}
		return nil, tools.NewToolError("files", tools.KindIO, err.Error()).WithPath(path)
	}
	if info.IsDir() {
		return nil, tools.NewToolError("files", tools.KindInvalidInput, "path is a directory").WithPath(path)
	}
	if info.Size() > files.ReadCap {
		return nil, ErrTooLarge
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, tools.NewToolError("files", tools.KindIO, err.Error()).WithPath(path)
	}
	return &models.FileContent{
		Path:     s.resolver.Rel(abs),
		Content:  string(data),
		Language: LanguageFor(path),
	}, nil
}

// Write replaces the file's content atomically.
func (s *Service) Write(path, content string) (*models.FileContent, error) {
	abs, err := s.resolver.Resolve(path)
	if err != nil {
		return nil, err
	}
	unlock := s.locks.Lock(abs)
	defer unlock()

	if err := files.AtomicWrite(abs, content); err != nil {
		return nil, err
	}
	return &models.FileContent{
		Path:     s.resolver.Rel(abs),
		Content:  content,
		Language: LanguageFor(path),
	}, nil
}

// WriteRange replaces the 1-based inclusive line range [start, end] with
// content and rewrites the file atomically. End past the last line is
// clamped; start past the last line appends.
func (s *Service) WriteRange(req *models.FileWriteRangeRequest) (*models.FileContent, error) {
	if req.StartLine < 1 || req.EndLine < req.StartLine {
		return nil, tools.NewToolError("files", tools.KindInvalidInput, "invalid line range").WithPath(req.Path)
	}
	abs, err := s.resolver.Resolve(req.Path)
	if err != nil {
		return nil, err
	}
	unlock := s.locks.Lock(abs)
	defer unlock()

	data, err := os.ReadFile(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, tools.NewToolError("files", tools.KindNotFound, "file not found").WithPath(req.Path)
		}
		return nil, tools.NewToolError("files", tools.KindIO, err.Error()).WithPath(req.Path)
	}

	lines := strings.Split(string(data), "\n")
	start := req.StartLine - 1
	end := req.EndLine
	if start > len(lines) {
		start = len(lines)
	}
	if end > len(lines) {
		end = len(lines)
	}

	replacement := strings.Split(req.Content, "\n")
	merged := make([]string, 0, len(lines)-(end-start)+len(replacement))
	merged = append(merged, lines[:start]...)
	merged = append(merged, replacement...)
	merged = append(merged, lines[end:]...)
	content := strings.Join(merged, "\n")

	if err := files.AtomicWrite(abs, content); err != nil {
		return nil, err
	}
	return &models.FileContent{
		Path:     s.resolver.Rel(abs),
		Content:  content,
		Language: LanguageFor(req.Path),
	}, nil
}

// Create makes a file or directory. Parent directories are created as
// needed; an existing file is not overwritten.
func (s *Service) Create(req *models.FileCreateRequest) error {
	abs, err := s.resolver.Resolve(req.Path)
	if err != nil {
		return err
	}
	if req.IsDir {
		if err := os.MkdirAll(abs, 0o755); err != nil {
			return tools.NewToolError("files", tools.KindIO, err.Error()).WithPath(req.Path)
		}
		return nil
	}
	if _, err := os.Stat(abs); err == nil {
		return tools.NewToolError("files", tools.KindInvalidInput, "file already exists").WithPath(req.Path)
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return tools.NewToolError("files", tools.KindIO, err.Error()).WithPath(req.Path)
	}
	unlock := s.locks.Lock(abs)
	defer unlock()
	if err := files.AtomicWrite(abs, req.Content); err != nil {
		return err
	}
	return nil
}

// Delete removes a file or directory tree.
func (s *Service) Delete(path string) error {
	abs, err := s.resolver.Resolve(path)
	if err != nil {
		return err
	}
	if _, err := os.Stat(abs); err != nil {
		if os.IsNotExist(err) {
			return tools.NewToolError("files", tools.KindNotFound, "path not found").WithPath(path)
		}
		return tools.NewToolError("files", tools.KindIO, err.Error()).WithPath(path)
	}
	if err := os.RemoveAll(abs); err != nil {
		return tools.NewToolError("files", tools.KindIO, err.Error()).WithPath(path)
	}
	return nil
}

// Rename moves a file or directory within the workspace.
func (s *Service) Rename(oldPath, newPath string) error {
	absOld, err := s.resolver.Resolve(oldPath)
	if err != nil {
		return err
	}
	absNew, err := s.resolver.Resolve(newPath)
	if err != nil {
		return err
	}
	if _, err := os.Stat(absOld); err != nil {
		if os.IsNotExist(err) {
			return tools.NewToolError("files", tools.KindNotFound, "path not found").WithPath(oldPath)
		}
		return tools.NewToolError("files", tools.KindIO, err.Error()).WithPath(oldPath)
	}
	if err := os.MkdirAll(filepath.Dir(absNew), 0o755); err != nil {
		return tools.NewToolError("files", tools.KindIO, err.Error()).WithPath(newPath)
	}
	if err := os.Rename(absOld, absNew); err != nil {
		return tools.NewToolError("files", tools.KindIO, err.Error()).WithPath(oldPath)
	}
	return nil
}
