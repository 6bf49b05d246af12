// Package storage mirrors trusted artifacts to an S3-compatible bucket.
// The local copy under the storage root stays authoritative; the mirror is a
// replica and its failures never fail an upload.
package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"time"
)

// PutObjectOptions define optional parameters for uploading objects.
// Size should be the exact number of bytes if known; if unknown, set to -1.
type PutObjectOptions struct {
	Size        int64
	ContentType string
	Metadata    map[string]string
}

// ObjectInfo contains basic information about an object in storage.
type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	ContentType  string
	LastModified time.Time
}

// Storage is the subset of an S3-compatible client the mirror needs.
type Storage interface {
	Put(ctx context.Context, key string, r io.Reader, opt PutObjectOptions) (ObjectInfo, error)
	Delete(ctx context.Context, key string) error
}

// ObjectKey is the bucket key for a stored file: <class>/<stored name>.
func ObjectKey(class, storedPath string) string {
	return path.Join(class, filepath.Base(storedPath))
}

// CopyFile streams the file at storedPath into s under key.
func CopyFile(ctx context.Context, s Storage, key, storedPath, contentType string, metadata map[string]string) (ObjectInfo, error) {
	f, err := os.Open(storedPath)
	if err != nil {
		return ObjectInfo{}, fmt.Errorf("open %s: %w", storedPath, err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return ObjectInfo{}, fmt.Errorf("stat %s: %w", storedPath, err)
	}
	info, err := s.Put(ctx, key, f, PutObjectOptions{
		Size:        st.Size(),
		ContentType: contentType,
		Metadata:    metadata,
	})
	if err != nil {
		return ObjectInfo{}, fmt.Errorf("put %s: %w", key, err)
	}
	return info, nil
}
