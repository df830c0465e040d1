// Package security implements the workspace path validator: every path a
// tool call names is resolved and checked against the configured
// workspace roots before it's allowed anywhere near a file read, write, or
// LSP request, following the five-step algorithm from the bridge's path
// containment design.
package security

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"catenary/types"
)

// Mode distinguishes read access (any path inside a root) from write
// access (additionally rejecting protected configuration files).
type Mode int

const (
	ModeRead Mode = iota
	ModeWrite
)

// Validator holds the current set of workspace roots and the
// protected-file basenames writes may never target.
type Validator struct {
	mu        sync.RWMutex
	roots     []string // each canonicalized, absolute, no trailing separator
	protected map[string]struct{}
}

func New(roots []string, protectedConfigFiles []string) (*Validator, error) {
	v := &Validator{protected: make(map[string]struct{})}
	for _, p := range protectedConfigFiles {
		v.protected[p] = struct{}{}
	}
	for _, r := range roots {
		if err := v.AddRoot(r); err != nil {
			return nil, err
		}
	}
	return v, nil
}

// AddRoot canonicalizes root and appends it to the validator's root set if
// not already present.
func (v *Validator) AddRoot(root string) error {
	canon, err := canonicalize(root)
	if err != nil {
		return fmt.Errorf("security: resolving root %s: %w", root, err)
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, existing := range v.roots {
		if existing == canon {
			return nil
		}
	}
	v.roots = append(v.roots, canon)
	return nil
}

func (v *Validator) Roots() []string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return append([]string(nil), v.roots...)
}

// canonicalize makes path absolute and resolves symlinks. It does not
// require the path to exist: EvalSymlinks is applied to the deepest
// existing ancestor, then the remaining components are rejoined, so a
// not-yet-created file inside a real directory still validates.
func canonicalize(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	resolved, err := resolveExistingPrefix(abs)
	if err != nil {
		return "", err
	}
	return filepath.Clean(resolved), nil
}

func resolveExistingPrefix(abs string) (string, error) {
	dir := abs
	var tail []string
	for {
		if _, err := os.Lstat(dir); err == nil {
			real, err := filepath.EvalSymlinks(dir)
			if err != nil {
				return "", err
			}
			for i := len(tail) - 1; i >= 0; i-- {
				real = filepath.Join(real, tail[i])
			}
			return real, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return abs, nil // nothing on disk at all; fall back to the literal path
		}
		tail = append(tail, filepath.Base(dir))
		dir = parent
	}
}

// Validate runs the five-step check: reject empty input, resolve to an
// absolute canonical path, confirm containment within a workspace root on
// a path-component boundary (not a bare string prefix, so
// "/workspace-evil" never matches root "/workspace"), reject protected
// configuration files for ModeWrite, and finally return the canonical
// path only on success — callers that fail never learn the resolved path,
// only the original input, so a rejected traversal attempt can't be used
// to probe the filesystem layout.
func (v *Validator) Validate(original string, mode Mode) (string, error) {
	if strings.TrimSpace(original) == "" {
		return "", types.OutsideWorkspace(original)
	}

	canon, err := canonicalize(original)
	if err != nil {
		return "", types.OutsideWorkspace(original)
	}

	root, ok := v.containingRoot(canon)
	if !ok {
		return "", types.OutsideWorkspace(original)
	}

	if mode == ModeWrite && v.isProtected(canon, root) {
		return "", types.ProtectedConfig(original)
	}

	return canon, nil
}

func (v *Validator) containingRoot(canon string) (string, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	for _, root := range v.roots {
		if canon == root {
			return root, true
		}
		if strings.HasPrefix(canon, root+string(filepath.Separator)) {
			return root, true
		}
	}
	return "", false
}

func (v *Validator) isProtected(canon, root string) bool {
	rel, err := filepath.Rel(root, canon)
	if err != nil {
		return false
	}
	parts := strings.Split(rel, string(filepath.Separator))
	for _, part := range parts {
		if _, ok := v.protected[part]; ok {
			return true
		}
	}
	if _, ok := v.protected[filepath.Base(canon)]; ok {
		return true
	}
	return false
}
