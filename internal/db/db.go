// Package db provides PostgreSQL storage for Playgroup cycles, albums, votes,
// reviews and users.
package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/justestif/playgroup/internal/identity"
)

// Common errors.
var (
	ErrNotFound = errors.New("not found")
)

// Unique constraints the domain relies on. Any Store implementation must
// enforce these and report violations as *ConstraintError with these names.
const (
	ConstraintCycleWeek     = "cycles_year_week_key"
	ConstraintAlbumExternal = "albums_cycle_external_key"
	ConstraintAlbumSelected = "albums_one_selected_per_cycle"
	ConstraintVoteFID       = "votes_album_fid_key"
	ConstraintVoteUser      = "votes_album_user_key"
	ConstraintReviewFID     = "reviews_album_fid_key"
	ConstraintReviewUser    = "reviews_album_user_key"
	ConstraintUserFID       = "users_fid_key"
	ConstraintUserAuthID    = "users_auth_id_key"
)

const uniqueViolationSQLState = "23505"

// ConstraintError reports a unique constraint violation.
type ConstraintError struct {
	Constraint string
	Err        error
}

func (e *ConstraintError) Error() string {
	return fmt.Sprintf("unique constraint %q violated", e.Constraint)
}

func (e *ConstraintError) Unwrap() error { return e.Err }

// IsConstraint reports whether err is a violation of one of the named constraints.
func IsConstraint(err error, names ...string) bool {
	var ce *ConstraintError
	if !errors.As(err, &ce) {
		return false
	}
	for _, n := range names {
		if ce.Constraint == n {
			return true
		}
	}
	return false
}

// Queries is the storage contract used by the domain services. Methods run
// either directly against the store or inside a transaction started by InTx.
type Queries interface {
	// Cycles
	LatestCycle(ctx context.Context) (*Cycle, error)
	GetCycle(ctx context.Context, id uuid.UUID) (*Cycle, error)
	LockCycle(ctx context.Context, id uuid.UUID) (*Cycle, error)
	GetCycleByWeek(ctx context.Context, year, week int) (*Cycle, error)
	InsertCycle(ctx context.Context, c *Cycle) (bool, error)
	FinishCycle(ctx context.Context, id uuid.UUID, winnerID *uuid.UUID) error
	SetVotingEndsAt(ctx context.Context, id uuid.UUID, t time.Time) error
	ArchiveEntries(ctx context.Context, limit, offset int) ([]ArchiveEntry, error)

	// Albums
	InsertAlbum(ctx context.Context, a *Album) error
	GetAlbum(ctx context.Context, id uuid.UUID) (*Album, error)
	LockAlbum(ctx context.Context, id uuid.UUID) (*Album, error)
	GetAlbumByExternalID(ctx context.Context, cycleID uuid.UUID, externalID string) (*Album, error)
	HasWon(ctx context.Context, externalID string) (bool, error)
	CountSubmissions(ctx context.Context, cycleID uuid.UUID, submitter identity.Identity) (int, error)
	VoteTallies(ctx context.Context, cycleID uuid.UUID) ([]AlbumTally, error)
	SubmissionsWithVoteCounts(ctx context.Context, cycleID uuid.UUID) ([]AlbumTally, error)
	GetAlbumTally(ctx context.Context, id uuid.UUID) (*AlbumTally, error)
	SelectWinner(ctx context.Context, cycleID, winnerID uuid.UUID) error
	UpdateAlbumStats(ctx context.Context, id uuid.UUID, stats AlbumStats) error
	TopRatedAlbums(ctx context.Context, limit int) ([]Album, error)

	// Votes
	InsertVote(ctx context.Context, v *Vote) error
	HasVoted(ctx context.Context, albumID uuid.UUID, voter identity.Identity) (bool, error)
	VotedAlbumIDs(ctx context.Context, cycleID uuid.UUID, voter identity.Identity) ([]uuid.UUID, error)

	// Reviews
	InsertReview(ctx context.Context, r *Review) error
	HasReviewed(ctx context.Context, albumID uuid.UUID, reviewer identity.Identity) (bool, error)
	ReviewsForAlbum(ctx context.Context, albumID uuid.UUID) ([]Review, error)
	AllRatings(ctx context.Context) ([]Rating, error)

	// Users
	GetUser(ctx context.Context, id uuid.UUID) (*User, error)
	GetUserByFID(ctx context.Context, fid int64) (*User, error)
	GetUserByAuthID(ctx context.Context, authID string) (*User, error)
	GetUnlinkedUserByWallet(ctx context.Context, wallet string) (*User, error)
	InsertUser(ctx context.Context, u *User) error
	LinkAuthID(ctx context.Context, id uuid.UUID, authID string) error
	SetUserWallet(ctx context.Context, id uuid.UUID, wallet string) error

	// Aggregates
	ProfileCounts(ctx context.Context, member identity.Identity) (*ProfileCounts, error)
	TopSubmitters(ctx context.Context, limit int) ([]SubmitterStanding, error)
}

// Store is Queries plus transactions. fn's Queries run inside one
// transaction; a non-nil return rolls it back.
type Store interface {
	Queries
	InTx(ctx context.Context, fn func(q Queries) error) error
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// queries implements Queries over a querier.
type queries struct {
	q querier
}

// DB wraps a PostgreSQL connection pool.
type DB struct {
	queries
	pool *pgxpool.Pool
}

var _ Store = (*DB)(nil)

// New creates a new database connection pool.
func New(ctx context.Context, databaseURL string) (*DB, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing database URL: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return &DB{queries: queries{q: pool}, pool: pool}, nil
}

// Close closes the database connection pool.
func (db *DB) Close() {
	db.pool.Close()
}

// InTx runs fn inside a read-committed transaction. Callers that need to
// serialize on a cycle take its row lock with LockCycle.
func (db *DB) InTx(ctx context.Context, fn func(q Queries) error) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(queries{q: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", wrapConstraint(err))
	}
	return nil
}

// wrapConstraint converts a Postgres unique violation into *ConstraintError.
func wrapConstraint(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationSQLState {
		return &ConstraintError{Constraint: pgErr.ConstraintName, Err: err}
	}
	return err
}
