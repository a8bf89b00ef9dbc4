package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const cycleColumns = `id, week_number, year, phase, start_date, end_date, voting_ends_at, winner_id, created_at`

func scanCycle(row pgx.Row) (*Cycle, error) {
	var c Cycle
	err := row.Scan(
		&c.ID,
		&c.WeekNumber,
		&c.Year,
		&c.Phase,
		&c.StartDate,
		&c.EndDate,
		&c.VotingEndsAt,
		&c.WinnerID,
		&c.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// LatestCycle returns the cycle with the greatest (year, week_number).
func (r queries) LatestCycle(ctx context.Context) (*Cycle, error) {
	query := `SELECT ` + cycleColumns + ` FROM cycles ORDER BY year DESC, week_number DESC LIMIT 1`
	c, err := scanCycle(r.q.QueryRow(ctx, query))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("querying latest cycle: %w", err)
	}
	return c, err
}

// GetCycle retrieves a cycle by ID.
func (r queries) GetCycle(ctx context.Context, id uuid.UUID) (*Cycle, error) {
	query := `SELECT ` + cycleColumns + ` FROM cycles WHERE id = $1`
	c, err := scanCycle(r.q.QueryRow(ctx, query, id))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("querying cycle: %w", err)
	}
	return c, err
}

// LockCycle re-reads a cycle and holds its row lock until the transaction ends.
func (r queries) LockCycle(ctx context.Context, id uuid.UUID) (*Cycle, error) {
	query := `SELECT ` + cycleColumns + ` FROM cycles WHERE id = $1 FOR UPDATE`
	c, err := scanCycle(r.q.QueryRow(ctx, query, id))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("locking cycle: %w", err)
	}
	return c, err
}

// GetCycleByWeek retrieves the cycle for a (year, week) pair.
func (r queries) GetCycleByWeek(ctx context.Context, year, week int) (*Cycle, error) {
	query := `SELECT ` + cycleColumns + ` FROM cycles WHERE year = $1 AND week_number = $2`
	c, err := scanCycle(r.q.QueryRow(ctx, query, year, week))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("querying cycle by week: %w", err)
	}
	return c, err
}

// InsertCycle inserts a cycle unless one already exists for its (year, week).
// Returns false when another writer got there first.
func (r queries) InsertCycle(ctx context.Context, c *Cycle) (bool, error) {
	query := `
		INSERT INTO cycles (id, week_number, year, phase, start_date, end_date, voting_ends_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT ON CONSTRAINT cycles_year_week_key DO NOTHING
		RETURNING created_at
	`
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	err := r.q.QueryRow(ctx, query,
		c.ID,
		c.WeekNumber,
		c.Year,
		c.Phase,
		c.StartDate,
		c.EndDate,
		c.VotingEndsAt,
	).Scan(&c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("inserting cycle: %w", wrapConstraint(err))
	}
	return true, nil
}

// FinishCycle moves a cycle to the listening phase with the given winner.
func (r queries) FinishCycle(ctx context.Context, id uuid.UUID, winnerID *uuid.UUID) error {
	query := `
		UPDATE cycles
		SET phase = 'listening', winner_id = $2
		WHERE id = $1 AND phase = 'voting'
	`
	result, err := r.q.Exec(ctx, query, id, winnerID)
	if err != nil {
		return fmt.Errorf("finishing cycle: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetVotingEndsAt moves the voting deadline of a cycle still in voting.
func (r queries) SetVotingEndsAt(ctx context.Context, id uuid.UUID, t time.Time) error {
	query := `
		UPDATE cycles
		SET voting_ends_at = $2
		WHERE id = $1 AND phase = 'voting'
	`
	result, err := r.q.Exec(ctx, query, id, t)
	if err != nil {
		return fmt.Errorf("updating voting deadline: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ArchiveEntries lists finished cycles, newest first, with their winners.
func (r queries) ArchiveEntries(ctx context.Context, limit, offset int) ([]ArchiveEntry, error) {
	query := `
		SELECT c.id, c.week_number, c.year, c.phase, c.start_date, c.end_date,
		       c.voting_ends_at, c.winner_id, c.created_at,
		       ` + prefixedAlbumColumns("a") + `
		FROM cycles c
		LEFT JOIN albums a ON a.id = c.winner_id
		WHERE c.phase = 'listening'
		ORDER BY c.year DESC, c.week_number DESC
		LIMIT $1 OFFSET $2
	`
	rows, err := r.q.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("querying archive: %w", err)
	}
	defer rows.Close()

	var entries []ArchiveEntry
	for rows.Next() {
		var e ArchiveEntry
		var w nullableAlbum
		dest := []any{
			&e.Cycle.ID,
			&e.Cycle.WeekNumber,
			&e.Cycle.Year,
			&e.Cycle.Phase,
			&e.Cycle.StartDate,
			&e.Cycle.EndDate,
			&e.Cycle.VotingEndsAt,
			&e.Cycle.WinnerID,
			&e.Cycle.CreatedAt,
		}
		if err := rows.Scan(append(dest, w.dest()...)...); err != nil {
			return nil, fmt.Errorf("scanning archive entry: %w", err)
		}
		e.Winner = w.album()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating archive: %w", err)
	}
	return entries, nil
}
