package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const userColumns = `id, fid, auth_id, wallet_address, username, pfp_url, created_at`

func (r queries) getUser(ctx context.Context, where string, arg any) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE ` + where
	var user User
	err := r.q.QueryRow(ctx, query, arg).Scan(
		&user.ID,
		&user.FID,
		&user.AuthID,
		&user.WalletAddress,
		&user.Username,
		&user.PfpURL,
		&user.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying user: %w", err)
	}
	return &user, nil
}

// GetUser retrieves a user by ID.
func (r queries) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	return r.getUser(ctx, "id = $1", id)
}

// GetUserByFID retrieves a user by Farcaster ID.
func (r queries) GetUserByFID(ctx context.Context, fid int64) (*User, error) {
	return r.getUser(ctx, "fid = $1", fid)
}

// GetUserByAuthID retrieves a user by external auth ID.
func (r queries) GetUserByAuthID(ctx context.Context, authID string) (*User, error) {
	return r.getUser(ctx, "auth_id = $1", authID)
}

// GetUnlinkedUserByWallet finds the oldest user with this wallet and no auth ID.
func (r queries) GetUnlinkedUserByWallet(ctx context.Context, wallet string) (*User, error) {
	return r.getUser(ctx, "wallet_address = $1 AND auth_id IS NULL ORDER BY created_at ASC LIMIT 1", wallet)
}

// InsertUser inserts a new user.
func (r queries) InsertUser(ctx context.Context, user *User) error {
	query := `
		INSERT INTO users (id, fid, auth_id, wallet_address, username, pfp_url, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		RETURNING created_at
	`
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	err := r.q.QueryRow(ctx, query,
		user.ID,
		user.FID,
		user.AuthID,
		user.WalletAddress,
		user.Username,
		user.PfpURL,
	).Scan(&user.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting user: %w", wrapConstraint(err))
	}
	return nil
}

// LinkAuthID attaches an external auth ID to a user that has none.
func (r queries) LinkAuthID(ctx context.Context, id uuid.UUID, authID string) error {
	query := `
		UPDATE users
		SET auth_id = $2
		WHERE id = $1 AND auth_id IS NULL
	`
	result, err := r.q.Exec(ctx, query, id, authID)
	if err != nil {
		return fmt.Errorf("linking auth id: %w", wrapConstraint(err))
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetUserWallet records a wallet on a user that has none. A user that
// already has a wallet is left unchanged.
func (r queries) SetUserWallet(ctx context.Context, id uuid.UUID, wallet string) error {
	query := `
		UPDATE users
		SET wallet_address = $2
		WHERE id = $1 AND wallet_address IS NULL
	`
	if _, err := r.q.Exec(ctx, query, id, wallet); err != nil {
		return fmt.Errorf("setting wallet: %w", err)
	}
	return nil
}
