// Package scope normalizes OAuth2 scope values into canonical sets.
//
// A Set is a sorted, deduplicated slice of scope tokens. Keeping the
// representation canonical lets storage backends compare scopes with plain
// array or string equality.
package scope

import (
	"slices"
	"strings"
)

// Set is a normalized scope: sorted, without duplicates or empty tokens.
type Set []string

// Normalize splits every argument on whitespace and returns the sorted set of
// distinct tokens. No arguments, or only blank ones, yield an empty set.
func Normalize(in ...string) Set {
	var tokens []string
	for _, s := range in {
		tokens = append(tokens, strings.Fields(s)...)
	}
	slices.Sort(tokens)
	tokens = slices.Compact(tokens)
	if tokens == nil {
		return Set{}
	}
	return Set(tokens)
}

// Parse is Normalize for a single delimited scope string.
func Parse(s string) Set {
	return Normalize(s)
}

// Intersect returns the tokens present in both a and b.
func Intersect(a, b Set) Set {
	out := Set{}
	for _, tok := range a {
		if b.Contains(tok) && !out.Contains(tok) {
			out = append(out, tok)
		}
	}
	slices.Sort(out)
	return out
}

// Clip normalizes requested and drops every token not in allowed.
func Clip(requested []string, allowed Set) Set {
	return Intersect(Normalize(requested...), Normalize(allowed...))
}

// Contains reports whether tok is part of the set.
func (s Set) Contains(tok string) bool {
	for _, t := range s {
		if t == tok {
			return true
		}
	}
	return false
}

// Equal reports set equality. Both sides are assumed normalized.
func (s Set) Equal(o Set) bool {
	return slices.Equal(s, o)
}

// String returns the space delimited form used on the wire.
func (s Set) String() string {
	return strings.Join(s, " ")
}

// Slice returns a copy of the tokens as a plain slice.
func (s Set) Slice() []string {
	return slices.Clone([]string(s))
}
