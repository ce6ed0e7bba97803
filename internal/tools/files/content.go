package files

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"

	"github.com/pmezard/go-difflib/difflib"
)

// ReadCap bounds file content returned by read actions.
const ReadCap = 200 << 10 // 200KiB

// ContentHash returns the stable hex digest of a file's UTF-8 bytes,
// used for before/after hashes on FileChange records.
func ContentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// UnifiedDiff renders a unified diff between two versions of a file,
// with the conventional a/ and b/ path prefixes.
func UnifiedDiff(path, before, after string) string {
	diff := difflib.UnifiedDiff{
		A:        difflib.SplitLines(before),
		B:        difflib.SplitLines(after),
		FromFile: "a/" + path,
		ToFile:   "b/" + path,
		Context:  3,
	}
	text, err := difflib.GetUnifiedDiffString(diff)
	if err != nil {
		return ""
	}
	return text
}

// PathLocks serializes workspace writes per path so parallel actions in
// one run cannot interleave edits to the same file.
type PathLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewPathLocks creates an empty lock table.
func NewPathLocks() *PathLocks {
	return &PathLocks{locks: make(map[string]*sync.Mutex)}
}

// Lock acquires the mutex for a path, creating it on first use.
// The returned function releases it.
func (p *PathLocks) Lock(path string) func() {
	p.mu.Lock()
	lock, ok := p.locks[path]
	if !ok {
		lock = &sync.Mutex{}
		p.locks[path] = lock
	}
	p.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}

// binaryExtensions are skipped by scans and searches.
var binaryExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".ico": true,
	".pdf": true, ".zip": true, ".tar": true, ".gz": true, ".bz2": true,
	".exe": true, ".dll": true, ".so": true, ".dylib": true, ".bin": true,
	".woff": true, ".woff2": true, ".ttf": true, ".eot": true,
	".mp3": true, ".mp4": true, ".avi": true, ".mov": true, ".webm": true,
	".pyc": true, ".class": true, ".o": true, ".a": true,
}

// ignoredDirs are never descended into by scans and searches.
var ignoredDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	"dist":         true,
	"build":        true,
	"__pycache__":  true,
	".idea":        true,
}

// skippable reports whether a file name has a binary extension.
func skippable(name string) bool {
	idx := strings.LastIndex(name, ".")
	if idx < 0 {
		return false
	}
	return binaryExtensions[strings.ToLower(name[idx:])]
}
