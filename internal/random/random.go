// Package random produces opaque identifiers for grants, tokens and client
// credentials.
package random

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
)

// Source reads from a cryptographically secure reader.
type Source struct {
	r io.Reader
}

// New returns a Source backed by crypto/rand.
func New() *Source {
	return &Source{r: rand.Reader}
}

// NewFromReader returns a Source reading from r.
func NewFromReader(r io.Reader) *Source {
	return &Source{r: r}
}

// GenerateOpaqueID returns lengthBytes random bytes encoded as unpadded
// base64url.
func (s *Source) GenerateOpaqueID(lengthBytes int) (string, error) {
	if lengthBytes <= 0 {
		return "", fmt.Errorf("invalid identifier length %d", lengthBytes)
	}
	buf := make([]byte, lengthBytes)
	if _, err := io.ReadFull(s.r, buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
