package upload

import (
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"io"

	"apphub/internal/apperr"
)

// ChunkSize bounds every read from an upload body.
const ChunkSize = 1 << 20

// ErrTooLarge is returned once an upload body passes the configured maximum.
var ErrTooLarge = apperr.Validation(apperr.CodeUploadTooLarge, "file too large")

// Hasher is an io.Reader over an upload body that hashes and counts what
// passes through it. Reads are capped at ChunkSize. When the running count
// exceeds max the offending chunk is withheld, the digest is discarded and
// ErrTooLarge is returned from then on.
type Hasher struct {
	src io.Reader
	h   hash.Hash
	n   int64
	max int64
	err error
}

// NewHasher wraps src. A max of zero or less disables the cap.
func NewHasher(src io.Reader, max int64) *Hasher {
	return &Hasher{src: src, h: sha256.New(), max: max}
}

func (h *Hasher) Read(p []byte) (int, error) {
	if h.err != nil {
		return 0, h.err
	}
	if len(p) > ChunkSize {
		p = p[:ChunkSize]
	}
	n, err := h.src.Read(p)
	if n > 0 {
		if h.max > 0 && h.n+int64(n) > h.max {
			h.n += int64(n)
			h.h.Reset()
			h.err = ErrTooLarge
			return 0, h.err
		}
		h.h.Write(p[:n])
		h.n += int64(n)
	}
	return n, err
}

// Size is the number of bytes read so far.
func (h *Hasher) Size() int64 { return h.n }

// Sum returns the lowercase hex SHA-256 of everything read so far.
func (h *Hasher) Sum() string { return hex.EncodeToString(h.h.Sum(nil)) }
