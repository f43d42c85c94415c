package scope

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want Set
	}{
		{"nil", nil, Set{}},
		{"empty string", []string{""}, Set{}},
		{"blank", []string{"  \t\n"}, Set{}},
		{"single string", []string{"write read"}, Set{"read", "write"}},
		{"duplicates", []string{"read read  write", "write"}, Set{"read", "write"}},
		{"sequence", []string{"b", "a", "c a"}, Set{"a", "b", "c"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in...))
		})
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []string{"", "a", "z y x", "read write read", "  admin\tread "}
	for _, in := range inputs {
		once := Normalize(in)
		twice := Normalize(once...)
		assert.Equal(t, once, twice, "input %q", in)
	}
}

func TestIntersect_NeverEscalates(t *testing.T) {
	client := Normalize("read write")
	requests := []string{"read admin", "write", "admin root", "", "read write delete"}
	for _, req := range requests {
		got := Intersect(Normalize(req), client)
		for _, tok := range got {
			assert.True(t, client.Contains(tok), "token %q escaped client scope for %q", tok, req)
		}
	}
}

func TestIntersect(t *testing.T) {
	assert.Equal(t, Set{"read"}, Intersect(Normalize("read admin"), Normalize("read write")))
	assert.Equal(t, Set{}, Intersect(Normalize("admin"), Normalize("read write")))
	assert.Equal(t, Set{}, Intersect(nil, Normalize("read")))
}

func TestClip(t *testing.T) {
	assert.Equal(t, Set{"read"}, Clip([]string{"read", "admin"}, Set{"read", "write"}))
}

func TestSetHelpers(t *testing.T) {
	s := Normalize("b a")
	assert.Equal(t, "a b", s.String())
	assert.True(t, s.Equal(Set{"a", "b"}))
	assert.False(t, s.Equal(Set{"a"}))
	assert.Equal(t, Set{"a", "b"}, Parse(" b  a "))

	cp := s.Slice()
	cp[0] = "zzz"
	assert.Equal(t, "a", s[0])
}
