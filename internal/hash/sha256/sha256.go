// Package sha256 provides SHA-256 hashing utilities.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
)

// Hasher implements library.Hasher using SHA-256.
type Hasher struct{}

// New returns a SHA-256 hasher.
func New() *Hasher {
	return &Hasher{}
}

// Hash hashes the input and returns a hex digest.
func (h *Hasher) Hash(data []byte) (string, error) {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// ReadAll reads at most limit bytes from r and returns them with their digest.
// Readers longer than limit are rejected.
func (h *Hasher) ReadAll(r io.Reader, limit int64) ([]byte, string, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, "", fmt.Errorf("read content: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, "", fmt.Errorf("content exceeds %d bytes", limit)
	}
	digest, err := h.Hash(data)
	if err != nil {
		return nil, "", err
	}
	return data, digest, nil
}
