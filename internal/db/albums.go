package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/justestif/playgroup/internal/identity"
)

var albumColumnNames = []string{
	"id", "external_id", "cycle_id", "title", "artist", "cover_url", "album_url",
	"release_date", "submitted_by_fid", "submitted_by_user_id", "submitter_username",
	"status", "avg_rating", "total_reviews", "most_loved_track", "most_loved_track_votes",
	"created_at",
}

var albumColumns = strings.Join(albumColumnNames, ", ")

func prefixedAlbumColumns(alias string) string {
	cols := make([]string, len(albumColumnNames))
	for i, c := range albumColumnNames {
		cols[i] = alias + "." + c
	}
	return strings.Join(cols, ", ")
}

// albumScan collects the destinations for one album row.
type albumScan struct {
	a      Album
	fid    *int64
	userID *uuid.UUID
}

func (s *albumScan) dest() []any {
	return []any{
		&s.a.ID,
		&s.a.ExternalID,
		&s.a.CycleID,
		&s.a.Title,
		&s.a.Artist,
		&s.a.CoverURL,
		&s.a.AlbumURL,
		&s.a.ReleaseDate,
		&s.fid,
		&s.userID,
		&s.a.SubmitterUsername,
		&s.a.Status,
		&s.a.AvgRating,
		&s.a.TotalReviews,
		&s.a.MostLovedTrack,
		&s.a.MostLovedTrackVotes,
		&s.a.CreatedAt,
	}
}

func (s *albumScan) album() Album {
	s.a.Submitter = identity.FromColumns(s.fid, s.userID)
	return s.a
}

// nullableAlbum scans the right side of a LEFT JOIN on albums.
type nullableAlbum struct {
	id          *uuid.UUID
	externalID  *string
	cycleID     *uuid.UUID
	title       *string
	artist      *string
	coverURL    *string
	albumURL    *string
	releaseDate *string
	fid         *int64
	userID      *uuid.UUID
	username    *string
	status      *string
	avgRating   *float64
	total       *int
	loved       *string
	lovedVotes  *int
	createdAt   *time.Time
}

func (n *nullableAlbum) dest() []any {
	return []any{
		&n.id, &n.externalID, &n.cycleID, &n.title, &n.artist, &n.coverURL, &n.albumURL,
		&n.releaseDate, &n.fid, &n.userID, &n.username, &n.status, &n.avgRating,
		&n.total, &n.loved, &n.lovedVotes, &n.createdAt,
	}
}

func (n *nullableAlbum) album() *Album {
	if n.id == nil {
		return nil
	}
	a := &Album{
		ID:         *n.id,
		ExternalID: deref(n.externalID),
		Submitter:  identity.FromColumns(n.fid, n.userID),
		AlbumMetadata: AlbumMetadata{
			Title:       deref(n.title),
			Artist:      deref(n.artist),
			CoverURL:    n.coverURL,
			AlbumURL:    n.albumURL,
			ReleaseDate: n.releaseDate,
		},
		AlbumStats: AlbumStats{
			AvgRating:      n.avgRating,
			MostLovedTrack: n.loved,
		},
		SubmitterUsername: deref(n.username),
		Status:            AlbumStatus(deref(n.status)),
	}
	if n.cycleID != nil {
		a.CycleID = *n.cycleID
	}
	if n.total != nil {
		a.TotalReviews = *n.total
	}
	if n.lovedVotes != nil {
		a.MostLovedTrackVotes = *n.lovedVotes
	}
	if n.createdAt != nil {
		a.CreatedAt = *n.createdAt
	}
	return a
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}

// identityCond builds "<prefix>_fid = $n" or "<prefix>_user_id = $n" for an identity.
func identityCond(prefix string, id identity.Identity, n int) (string, any) {
	if fid, ok := id.FID(); ok {
		return fmt.Sprintf("%s_fid = $%d", prefix, n), fid
	}
	userID, _ := id.UUID()
	return fmt.Sprintf("%s_user_id = $%d", prefix, n), userID
}

func (r queries) scanAlbums(rows pgx.Rows) ([]Album, error) {
	defer rows.Close()
	var albums []Album
	for rows.Next() {
		var s albumScan
		if err := rows.Scan(s.dest()...); err != nil {
			return nil, fmt.Errorf("scanning album: %w", err)
		}
		albums = append(albums, s.album())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating albums: %w", err)
	}
	return albums, nil
}

func (r queries) scanTallies(rows pgx.Rows) ([]AlbumTally, error) {
	defer rows.Close()
	var tallies []AlbumTally
	for rows.Next() {
		var s albumScan
		var count int
		if err := rows.Scan(append(s.dest(), &count)...); err != nil {
			return nil, fmt.Errorf("scanning album tally: %w", err)
		}
		tallies = append(tallies, AlbumTally{Album: s.album(), VoteCount: count})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating album tallies: %w", err)
	}
	return tallies, nil
}

// InsertAlbum inserts a new submission. A duplicate (cycle, external id)
// pair is reported as *ConstraintError.
func (r queries) InsertAlbum(ctx context.Context, a *Album) error {
	query := `
		INSERT INTO albums (id, external_id, cycle_id, title, artist, cover_url, album_url,
			release_date, submitted_by_fid, submitted_by_user_id, submitter_username, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, clock_timestamp())
		RETURNING created_at
	`
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.Status == "" {
		a.Status = AlbumVoting
	}
	fid, userID := a.Submitter.Columns()
	err := r.q.QueryRow(ctx, query,
		a.ID,
		a.ExternalID,
		a.CycleID,
		a.Title,
		a.Artist,
		a.CoverURL,
		a.AlbumURL,
		a.ReleaseDate,
		fid,
		userID,
		a.SubmitterUsername,
		a.Status,
	).Scan(&a.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting album: %w", wrapConstraint(err))
	}
	return nil
}

// GetAlbum retrieves an album by ID.
func (r queries) GetAlbum(ctx context.Context, id uuid.UUID) (*Album, error) {
	query := `SELECT ` + albumColumns + ` FROM albums WHERE id = $1`
	var s albumScan
	err := r.q.QueryRow(ctx, query, id).Scan(s.dest()...)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying album: %w", err)
	}
	a := s.album()
	return &a, nil
}

// LockAlbum re-reads an album and holds its row lock until the transaction ends.
func (r queries) LockAlbum(ctx context.Context, id uuid.UUID) (*Album, error) {
	query := `SELECT ` + albumColumns + ` FROM albums WHERE id = $1 FOR UPDATE`
	var s albumScan
	err := r.q.QueryRow(ctx, query, id).Scan(s.dest()...)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("locking album: %w", err)
	}
	a := s.album()
	return &a, nil
}

// GetAlbumByExternalID retrieves the submission of a catalog album in a cycle.
func (r queries) GetAlbumByExternalID(ctx context.Context, cycleID uuid.UUID, externalID string) (*Album, error) {
	query := `SELECT ` + albumColumns + ` FROM albums WHERE cycle_id = $1 AND external_id = $2`
	var s albumScan
	err := r.q.QueryRow(ctx, query, cycleID, externalID).Scan(s.dest()...)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying album by external id: %w", err)
	}
	a := s.album()
	return &a, nil
}

// HasWon reports whether a catalog album was selected in any cycle.
func (r queries) HasWon(ctx context.Context, externalID string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM albums WHERE external_id = $1 AND status = 'selected')`
	var won bool
	if err := r.q.QueryRow(ctx, query, externalID).Scan(&won); err != nil {
		return false, fmt.Errorf("checking past winners: %w", err)
	}
	return won, nil
}

// CountSubmissions counts albums a member submitted in a cycle.
func (r queries) CountSubmissions(ctx context.Context, cycleID uuid.UUID, submitter identity.Identity) (int, error) {
	cond, arg := identityCond("submitted_by", submitter, 2)
	query := `SELECT COUNT(*) FROM albums WHERE cycle_id = $1 AND ` + cond
	var n int
	if err := r.q.QueryRow(ctx, query, cycleID, arg).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting submissions: %w", err)
	}
	return n, nil
}

// VoteTallies counts votes for every album of a cycle still in voting.
// Albums without votes are included with a zero count.
func (r queries) VoteTallies(ctx context.Context, cycleID uuid.UUID) ([]AlbumTally, error) {
	query := `
		SELECT ` + prefixedAlbumColumns("a") + `, COUNT(v.id)
		FROM albums a
		LEFT JOIN votes v ON v.album_id = a.id
		WHERE a.cycle_id = $1 AND a.status = 'voting'
		GROUP BY a.id
		ORDER BY a.created_at ASC, a.id ASC
	`
	rows, err := r.q.Query(ctx, query, cycleID)
	if err != nil {
		return nil, fmt.Errorf("tallying votes: %w", err)
	}
	return r.scanTallies(rows)
}

// SubmissionsWithVoteCounts lists every album of a cycle with its vote count,
// most votes first and earliest submission first among equals.
func (r queries) SubmissionsWithVoteCounts(ctx context.Context, cycleID uuid.UUID) ([]AlbumTally, error) {
	query := `
		SELECT ` + prefixedAlbumColumns("a") + `, COUNT(v.id) AS vote_count
		FROM albums a
		LEFT JOIN votes v ON v.album_id = a.id
		WHERE a.cycle_id = $1
		GROUP BY a.id
		ORDER BY vote_count DESC, a.created_at ASC, a.id ASC
	`
	rows, err := r.q.Query(ctx, query, cycleID)
	if err != nil {
		return nil, fmt.Errorf("querying submissions: %w", err)
	}
	return r.scanTallies(rows)
}

// GetAlbumTally retrieves one album with its vote count.
func (r queries) GetAlbumTally(ctx context.Context, id uuid.UUID) (*AlbumTally, error) {
	query := `
		SELECT ` + prefixedAlbumColumns("a") + `, COUNT(v.id)
		FROM albums a
		LEFT JOIN votes v ON v.album_id = a.id
		WHERE a.id = $1
		GROUP BY a.id
	`
	var s albumScan
	var count int
	err := r.q.QueryRow(ctx, query, id).Scan(append(s.dest(), &count)...)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying album tally: %w", err)
	}
	return &AlbumTally{Album: s.album(), VoteCount: count}, nil
}

// SelectWinner marks one voting album of a cycle selected and every other
// voting album lost.
func (r queries) SelectWinner(ctx context.Context, cycleID, winnerID uuid.UUID) error {
	query := `
		UPDATE albums
		SET status = CASE WHEN id = $2 THEN 'selected' ELSE 'lost' END
		WHERE cycle_id = $1 AND status = 'voting'
	`
	if _, err := r.q.Exec(ctx, query, cycleID, winnerID); err != nil {
		return fmt.Errorf("selecting winner: %w", wrapConstraint(err))
	}
	return nil
}

// UpdateAlbumStats overwrites the review-derived stats of an album.
func (r queries) UpdateAlbumStats(ctx context.Context, id uuid.UUID, stats AlbumStats) error {
	query := `
		UPDATE albums
		SET avg_rating = $2, total_reviews = $3, most_loved_track = $4, most_loved_track_votes = $5
		WHERE id = $1
	`
	result, err := r.q.Exec(ctx, query,
		id,
		stats.AvgRating,
		stats.TotalReviews,
		stats.MostLovedTrack,
		stats.MostLovedTrackVotes,
	)
	if err != nil {
		return fmt.Errorf("updating album stats: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// TopRatedAlbums lists reviewed albums by average rating, then review count.
func (r queries) TopRatedAlbums(ctx context.Context, limit int) ([]Album, error) {
	query := `
		SELECT ` + albumColumns + `
		FROM albums
		WHERE total_reviews > 0
		ORDER BY avg_rating DESC, total_reviews DESC, created_at ASC
		LIMIT $1
	`
	rows, err := r.q.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("querying top rated albums: %w", err)
	}
	return r.scanAlbums(rows)
}
