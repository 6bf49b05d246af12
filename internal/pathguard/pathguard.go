// Package pathguard decides whether a stored path may be handed to the file
// serving layer.
package pathguard

import (
	"errors"
	"io/fs"
	"path/filepath"
	"strings"

	"apphub/internal/apperr"
)

// Guard resolves stored paths against one storage root.
type Guard struct {
	root string
}

// New returns a guard for root. The root is canonicalized lazily on every
// call so that a root which is itself a symlink is followed consistently.
func New(root string) *Guard {
	return &Guard{root: root}
}

// Resolved is a stored path that passed containment.
type Resolved struct {
	// Absolute is the canonical absolute path on disk.
	Absolute string
	// Relative is the slash-separated path below the storage root.
	Relative string
}

// Resolve canonicalizes storedPath and the root (following symlinks and ".."
// segments) and accepts only a strict descendant of the root. A path that
// does not exist is reported as not found; any escape is a security
// rejection.
func (g *Guard) Resolve(storedPath string) (Resolved, error) {
	return ResolveForServing(storedPath, g.root)
}

// ResolveForServing is the stateless form of Guard.Resolve.
func ResolveForServing(storedPath, storageRoot string) (Resolved, error) {
	if storedPath == "" || strings.ContainsRune(storedPath, 0) {
		return Resolved{}, apperr.Security(apperr.CodePathRejected, "invalid file path")
	}

	root, err := canonical(storageRoot)
	if err != nil {
		return Resolved{}, apperr.Internal(err, "storage root unavailable")
	}
	target, err := canonical(storedPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Resolved{}, apperr.NotFound("stored file not found")
		}
		return Resolved{}, apperr.Security(apperr.CodePathRejected, "invalid file path")
	}

	rel, err := filepath.Rel(root, target)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return Resolved{}, apperr.Security(apperr.CodePathRejected, "invalid file path")
	}

	return Resolved{Absolute: target, Relative: filepath.ToSlash(rel)}, nil
}

func canonical(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(abs)
}

// InternalRedirect joins a resolved path onto the internal location prefix
// used by the fronting web server.
func InternalRedirect(prefix string, r Resolved) string {
	return strings.TrimRight(prefix, "/") + "/" + r.Relative
}
