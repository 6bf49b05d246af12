package upload

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/google/uuid"
)

const placeAttempts = 3

// Placer writes upload bodies below a storage root. All file operations go
// through a root-bound filesystem, so no name it is given can leave the root.
type Placer struct {
	fs   billy.Filesystem
	root string
}

// NewPlacer creates root if needed and returns a placer bound to it.
func NewPlacer(root string) (*Placer, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve storage root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	return &Placer{fs: osfs.New(abs, osfs.WithBoundOS()), root: abs}, nil
}

// NewPlacerFS returns a placer over an existing filesystem rooted at root.
func NewPlacerFS(fsys billy.Filesystem, root string) *Placer {
	return &Placer{fs: fsys, root: root}
}

// Root is the absolute storage root.
func (p *Placer) Root() string { return p.root }

// Placement is the result of a successful write.
type Placement struct {
	Name string
	Path string
	Size int64
}

// DestinationName derives the stored name for a sanitized base name: the hex
// SHA-256 of the name, a dash, then the name itself.
func DestinationName(name string) string {
	sum := sha256.Sum256([]byte(name))
	return hex.EncodeToString(sum[:]) + "-" + name
}

// Place copies src into dir under a name derived from rawFilename. The file
// is created exclusively; when the derived name is taken, a random token is
// inserted so an existing artifact is never overwritten. The data is synced
// before Place returns. On any failure the partial file is removed before the
// error is returned.
func (p *Placer) Place(ctx context.Context, rawFilename string, src io.Reader, dir string) (Placement, error) {
	name, err := SanitizeFilename(rawFilename)
	if err != nil {
		return Placement{}, err
	}
	dir = path.Clean(filepath.ToSlash(dir))
	if dir == ".." || strings.HasPrefix(dir, "../") || path.IsAbs(dir) {
		return Placement{}, fmt.Errorf("destination %q is outside the storage root", dir)
	}
	if err := p.fs.MkdirAll(dir, 0o755); err != nil {
		return Placement{}, fmt.Errorf("create %s: %w", dir, err)
	}

	f, rel, err := p.create(dir, name)
	if err != nil {
		return Placement{}, err
	}

	n, err := copyChunks(ctx, f, src)
	if err == nil {
		err = syncFile(f)
	}
	if cerr := f.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("close %s: %w", rel, cerr)
	}
	if err != nil {
		_ = p.fs.Remove(rel)
		return Placement{}, err
	}

	return Placement{
		Name: path.Base(rel),
		Path: filepath.Join(p.root, filepath.FromSlash(rel)),
		Size: n,
	}, nil
}

func (p *Placer) create(dir, name string) (billy.File, string, error) {
	base := DestinationName(name)
	candidate := base
	for i := 0; i < placeAttempts; i++ {
		rel := path.Join(dir, candidate)
		f, err := p.fs.OpenFile(rel, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			return f, rel, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, "", fmt.Errorf("open %s: %w", rel, err)
		}
		candidate = base[:64] + "-" + uuid.NewString()[:8] + "-" + name
	}
	return nil, "", fmt.Errorf("no free name for %s in %s", name, dir)
}

// Remove deletes a previously placed file given its absolute path. Missing
// files are not an error.
func (p *Placer) Remove(absPath string) error {
	rel, err := filepath.Rel(p.root, absPath)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("%s is outside the storage root", absPath)
	}
	if err := p.fs.Remove(filepath.ToSlash(rel)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", rel, err)
	}
	return nil
}

func copyChunks(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	buf := make([]byte, ChunkSize)
	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		n, rerr := src.Read(buf)
		if n > 0 {
			w, werr := dst.Write(buf[:n])
			total += int64(w)
			if werr != nil {
				return total, fmt.Errorf("write: %w", werr)
			}
		}
		if errors.Is(rerr, io.EOF) {
			return total, nil
		}
		if rerr != nil {
			return total, rerr
		}
	}
}

func syncFile(f billy.File) error {
	if s, ok := f.(interface{ Sync() error }); ok {
		if err := s.Sync(); err != nil {
			return fmt.Errorf("sync: %w", err)
		}
	}
	return nil
}
