package domain

import (
	"fmt"
	"strconv"
	"strings"

	serrors "github.com/pilab-dev/shadow-oauth/errors"
)

// IdentityKind tells which variant an Identity holds.
type IdentityKind uint8

const (
	IdentityNone IdentityKind = iota
	IdentityText
	IdentityNumeric
)

// Identity is the resource owner a grant or token is issued for. It is either
// a text or a numeric identifier and is persisted in its canonical text form.
type Identity struct {
	kind IdentityKind
	text string
	num  int64
}

// TextIdentity returns a text identity.
func TextIdentity(s string) Identity {
	return Identity{kind: IdentityText, text: s}
}

// NumericIdentity returns a numeric identity.
func NumericIdentity(n int64) Identity {
	return Identity{kind: IdentityNumeric, num: n}
}

// IdentityFrom converts loosely typed caller input into an Identity. Only
// strings and integers are accepted.
func IdentityFrom(v any) (Identity, error) {
	var id Identity
	switch x := v.(type) {
	case Identity:
		id = x
	case string:
		id = TextIdentity(x)
	case int:
		id = NumericIdentity(int64(x))
	case int32:
		id = NumericIdentity(int64(x))
	case int64:
		id = NumericIdentity(x)
	case uint32:
		id = NumericIdentity(int64(x))
	default:
		return Identity{}, fmt.Errorf("%w: unsupported type %T", serrors.ErrInvalidIdentity, v)
	}
	if err := id.Validate(); err != nil {
		return Identity{}, err
	}
	return id, nil
}

// Kind returns the variant held by the identity.
func (i Identity) Kind() IdentityKind { return i.kind }

// IsZero reports whether no identity was supplied.
func (i Identity) IsZero() bool { return i.kind == IdentityNone }

// Validate fails with ErrInvalidIdentity for the zero value and blank text.
func (i Identity) Validate() error {
	switch i.kind {
	case IdentityText:
		if strings.TrimSpace(i.text) == "" {
			return fmt.Errorf("%w: empty text identity", serrors.ErrInvalidIdentity)
		}
		return nil
	case IdentityNumeric:
		return nil
	default:
		return serrors.ErrInvalidIdentity
	}
}

// String returns the canonical stored form.
func (i Identity) String() string {
	switch i.kind {
	case IdentityText:
		return i.text
	case IdentityNumeric:
		return strconv.FormatInt(i.num, 10)
	default:
		return ""
	}
}
