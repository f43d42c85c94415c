package random

import (
	"bytes"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var urlSafe = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

func TestGenerateOpaqueID(t *testing.T) {
	src := New()

	seen := make(map[string]struct{})
	for range 200 {
		id, err := src.GenerateOpaqueID(54)
		require.NoError(t, err)
		assert.Len(t, id, 72)
		assert.Regexp(t, urlSafe, id)
		_, dup := seen[id]
		assert.False(t, dup)
		seen[id] = struct{}{}
	}
}

func TestGenerateOpaqueID_ShortReader(t *testing.T) {
	src := NewFromReader(bytes.NewReader([]byte{1, 2, 3}))
	_, err := src.GenerateOpaqueID(54)
	assert.Error(t, err)
}

func TestGenerateOpaqueID_InvalidLength(t *testing.T) {
	_, err := New().GenerateOpaqueID(0)
	assert.Error(t, err)
}
