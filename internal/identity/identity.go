// Package identity models the two ways a Playgroup member can be identified:
// a legacy numeric Farcaster ID (FID) or a unified user UUID.
//
// Every ledger operation takes an Identity rather than a raw column value so
// that uniqueness checks and equality are written once.
package identity

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Request headers carrying a pre-authenticated caller identity.
const (
	HeaderUserID = "X-User-ID"
	HeaderFID    = "X-FID"
)

var (
	// ErrAuthenticationRequired is returned when no identity was supplied.
	ErrAuthenticationRequired = errors.New("authentication required")

	// ErrInvalidIdentity is returned when an identity value cannot be parsed.
	ErrInvalidIdentity = errors.New("invalid identity")
)

// Kind is the identity scheme.
type Kind uint8

const (
	KindNone Kind = iota
	KindFID
	KindUUID
)

func (k Kind) String() string {
	switch k {
	case KindFID:
		return "fid"
	case KindUUID:
		return "uuid"
	default:
		return "none"
	}
}

// Identity is a tagged union of a legacy FID or a unified UUID.
// The zero value is the anonymous identity.
type Identity struct {
	kind Kind
	fid  int64
	id   uuid.UUID
}

// FromFID returns a legacy numeric identity.
func FromFID(fid int64) Identity {
	return Identity{kind: KindFID, fid: fid}
}

// FromUUID returns a unified identity.
func FromUUID(id uuid.UUID) Identity {
	return Identity{kind: KindUUID, id: id}
}

// FromColumns rebuilds an identity from the nullable storage columns.
// Exactly one of the arguments is expected to be non-nil.
func FromColumns(fid *int64, userID *uuid.UUID) Identity {
	switch {
	case userID != nil:
		return FromUUID(*userID)
	case fid != nil:
		return FromFID(*fid)
	default:
		return Identity{}
	}
}

// Kind reports which scheme the identity uses.
func (i Identity) Kind() Kind { return i.kind }

// IsZero reports whether the identity is anonymous.
func (i Identity) IsZero() bool { return i.kind == KindNone }

// FID returns the legacy numeric id, if that is the identity's scheme.
func (i Identity) FID() (int64, bool) {
	return i.fid, i.kind == KindFID
}

// UUID returns the unified id, if that is the identity's scheme.
func (i Identity) UUID() (uuid.UUID, bool) {
	return i.id, i.kind == KindUUID
}

// Columns splits the identity into the nullable (fid, user_id) column pair
// used by the votes, reviews and albums tables.
func (i Identity) Columns() (*int64, *uuid.UUID) {
	switch i.kind {
	case KindFID:
		fid := i.fid
		return &fid, nil
	case KindUUID:
		id := i.id
		return nil, &id
	default:
		return nil, nil
	}
}

// Equal reports whether two identities name the same member under the same scheme.
func (i Identity) Equal(o Identity) bool {
	if i.kind != o.kind {
		return false
	}
	switch i.kind {
	case KindFID:
		return i.fid == o.fid
	case KindUUID:
		return i.id == o.id
	default:
		return true
	}
}

// String renders the identity as "fid:<n>" or "uuid:<id>".
func (i Identity) String() string {
	switch i.kind {
	case KindFID:
		return "fid:" + strconv.FormatInt(i.fid, 10)
	case KindUUID:
		return "uuid:" + i.id.String()
	default:
		return ""
	}
}

// MarshalText implements encoding.TextMarshaler.
func (i Identity) MarshalText() ([]byte, error) {
	return []byte(i.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (i *Identity) UnmarshalText(b []byte) error {
	parsed, err := Parse(string(b))
	if err != nil {
		return err
	}
	*i = parsed
	return nil
}

// Parse reads the String form. A bare UUID or a bare positive integer is
// accepted as well.
func Parse(s string) (Identity, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Identity{}, nil
	}

	scheme, value, found := strings.Cut(s, ":")
	if !found {
		if id, err := uuid.Parse(s); err == nil {
			return FromUUID(id), nil
		}
		return parseFID(s)
	}

	switch scheme {
	case "fid":
		return parseFID(value)
	case "uuid":
		id, err := uuid.Parse(value)
		if err != nil {
			return Identity{}, fmt.Errorf("%w: %v", ErrInvalidIdentity, err)
		}
		return FromUUID(id), nil
	default:
		// A URN-form UUID also contains colons.
		if id, err := uuid.Parse(s); err == nil {
			return FromUUID(id), nil
		}
		return Identity{}, fmt.Errorf("%w: unknown scheme %q", ErrInvalidIdentity, scheme)
	}
}

func parseFID(s string) (Identity, error) {
	fid, err := strconv.ParseInt(s, 10, 64)
	if err != nil || fid <= 0 {
		return Identity{}, fmt.Errorf("%w: fid %q", ErrInvalidIdentity, s)
	}
	return FromFID(fid), nil
}

// FromRequest reads the caller identity from the request headers set by the
// upstream auth layer. X-User-ID takes precedence over X-FID. A request with
// neither header yields the zero identity and no error.
func FromRequest(r *http.Request) (Identity, error) {
	if v := strings.TrimSpace(r.Header.Get(HeaderUserID)); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return Identity{}, fmt.Errorf("%w: %s header: %v", ErrInvalidIdentity, HeaderUserID, err)
		}
		return FromUUID(id), nil
	}
	if v := strings.TrimSpace(r.Header.Get(HeaderFID)); v != "" {
		return parseFID(v)
	}
	return Identity{}, nil
}
