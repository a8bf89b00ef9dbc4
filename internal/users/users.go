// Package users resolves authenticated callers to user records.
package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/justestif/playgroup/internal/db"
	"github.com/justestif/playgroup/internal/identity"
)

var (
	// ErrInvalidLogin is returned when a login carries no FID or auth ID.
	ErrInvalidLogin = errors.New("login must carry a fid or an auth id")
)

// Farcaster describes a caller signed in with a Farcaster account.
type Farcaster struct {
	FID      int64
	Wallet   string // verified custody address, optional
	Username string
	PfpURL   *string
}

// Login describes a caller authenticated by an external provider.
type Login struct {
	AuthID   string
	Wallet   string // optional, matched case-insensitively
	Username string
	PfpURL   *string
}

// Service finds or creates user records.
type Service struct {
	store  db.Store
	logger zerolog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) {
		s.logger = l.With().Str("component", "users").Logger()
	}
}

// New creates a user service.
func New(store db.Store, opts ...Option) *Service {
	s := &Service{store: store, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ResolveFarcaster returns the user for a Farcaster ID, creating it on first
// sight. The identity stays a legacy FID identity. A wallet seen for the
// first time is recorded on an existing user so a later external login can
// link to it.
func (s *Service) ResolveFarcaster(ctx context.Context, fc Farcaster) (*db.User, error) {
	fid := fc.FID
	if fid <= 0 {
		return nil, ErrInvalidLogin
	}
	wallet := normalizeWallet(fc.Wallet)

	u, err := s.store.GetUserByFID(ctx, fid)
	if err == nil {
		if u.WalletAddress == nil && wallet != nil {
			if err := s.store.SetUserWallet(ctx, u.ID, *wallet); err != nil {
				return nil, fmt.Errorf("recording wallet: %w", err)
			}
			return s.store.GetUser(ctx, u.ID)
		}
		return u, nil
	}
	if !errors.Is(err, db.ErrNotFound) {
		return nil, fmt.Errorf("loading user by fid: %w", err)
	}

	u = &db.User{FID: &fid, WalletAddress: wallet, Username: fc.Username, PfpURL: fc.PfpURL}
	if err := s.store.InsertUser(ctx, u); err != nil {
		if db.IsConstraint(err, db.ConstraintUserFID) {
			return s.store.GetUserByFID(ctx, fid)
		}
		return nil, fmt.Errorf("creating user: %w", err)
	}
	s.logger.Info().Int64("fid", fid).Str("user_id", u.ID.String()).Msg("user created")
	return u, nil
}

// ResolveExternal returns the user for an external auth ID. A first login
// whose wallet matches an existing record without an auth ID claims that
// record instead of creating a new one.
func (s *Service) ResolveExternal(ctx context.Context, login Login) (*db.User, error) {
	authID := strings.TrimSpace(login.AuthID)
	if authID == "" {
		return nil, ErrInvalidLogin
	}

	u, err := s.store.GetUserByAuthID(ctx, authID)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, db.ErrNotFound) {
		return nil, fmt.Errorf("loading user by auth id: %w", err)
	}

	wallet := normalizeWallet(login.Wallet)
	var (
		out    *db.User
		linked bool
	)
	err = s.store.InTx(ctx, func(q db.Queries) error {
		if wallet != nil {
			existing, err := q.GetUnlinkedUserByWallet(ctx, *wallet)
			switch {
			case err == nil:
				if err := q.LinkAuthID(ctx, existing.ID, authID); err != nil {
					return err
				}
				existing.AuthID = &authID
				out, linked = existing, true
				return nil
			case !errors.Is(err, db.ErrNotFound):
				return err
			}
		}

		u := &db.User{AuthID: &authID, WalletAddress: wallet, Username: login.Username, PfpURL: login.PfpURL}
		if err := q.InsertUser(ctx, u); err != nil {
			return err
		}
		out = u
		return nil
	})
	if db.IsConstraint(err, db.ConstraintUserAuthID) {
		// Lost a race with a concurrent first login.
		return s.store.GetUserByAuthID(ctx, authID)
	}
	if err != nil {
		return nil, fmt.Errorf("resolving external login: %w", err)
	}

	s.logger.Info().
		Str("user_id", out.ID.String()).
		Bool("linked", linked).
		Msg("external login resolved")
	return out, nil
}

// Identity returns the one identity a user record acts under. A record with
// a FID keeps it even after an external login is linked, so votes and
// reviews cast before and after the link share one key.
func Identity(u *db.User) identity.Identity {
	if u.FID != nil {
		return identity.FromFID(*u.FID)
	}
	return identity.FromUUID(u.ID)
}

// User loads the record an identity refers to.
func (s *Service) User(ctx context.Context, id identity.Identity) (*db.User, error) {
	var (
		u   *db.User
		err error
	)
	if fid, ok := id.FID(); ok {
		u, err = s.store.GetUserByFID(ctx, fid)
	} else if userID, ok := id.UUID(); ok {
		u, err = s.store.GetUser(ctx, userID)
	} else {
		return nil, identity.ErrAuthenticationRequired
	}
	if err != nil {
		return nil, fmt.Errorf("loading user %s: %w", id, err)
	}
	return u, nil
}

func normalizeWallet(w string) *string {
	w = strings.ToLower(strings.TrimSpace(w))
	if w == "" {
		return nil
	}
	return &w
}
