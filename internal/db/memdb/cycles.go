package memdb

import (
	"context"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/justestif/playgroup/internal/db"
)

func (q queries) LatestCycle(ctx context.Context) (*db.Cycle, error) {
	defer q.acquire()()
	var latest *db.Cycle
	for i := range q.st().cycles {
		c := &q.st().cycles[i]
		if latest == nil || c.Year > latest.Year || (c.Year == latest.Year && c.WeekNumber > latest.WeekNumber) {
			latest = c
		}
	}
	if latest == nil {
		return nil, db.ErrNotFound
	}
	c := *latest
	return &c, nil
}

func (q queries) cycleIndex(id uuid.UUID) int {
	return slices.IndexFunc(q.st().cycles, func(c db.Cycle) bool { return c.ID == id })
}

func (q queries) GetCycle(ctx context.Context, id uuid.UUID) (*db.Cycle, error) {
	defer q.acquire()()
	i := q.cycleIndex(id)
	if i < 0 {
		return nil, db.ErrNotFound
	}
	c := q.st().cycles[i]
	return &c, nil
}

// LockCycle is GetCycle; the transaction already holds the store lock.
func (q queries) LockCycle(ctx context.Context, id uuid.UUID) (*db.Cycle, error) {
	return q.GetCycle(ctx, id)
}

func (q queries) GetCycleByWeek(ctx context.Context, year, week int) (*db.Cycle, error) {
	defer q.acquire()()
	for _, c := range q.st().cycles {
		if c.Year == year && c.WeekNumber == week {
			return &c, nil
		}
	}
	return nil, db.ErrNotFound
}

func (q queries) InsertCycle(ctx context.Context, c *db.Cycle) (bool, error) {
	defer q.acquire()()
	for _, existing := range q.st().cycles {
		if existing.Year == c.Year && existing.WeekNumber == c.WeekNumber {
			return false, nil
		}
	}
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.Phase == "" {
		c.Phase = db.PhaseVoting
	}
	c.CreatedAt = q.stamp()
	q.st().cycles = append(q.st().cycles, *c)
	return true, nil
}

func (q queries) FinishCycle(ctx context.Context, id uuid.UUID, winnerID *uuid.UUID) error {
	defer q.acquire()()
	i := q.cycleIndex(id)
	if i < 0 || q.st().cycles[i].Phase != db.PhaseVoting {
		return db.ErrNotFound
	}
	c := &q.st().cycles[i]
	c.Phase = db.PhaseListening
	if winnerID != nil {
		w := *winnerID
		c.WinnerID = &w
	} else {
		c.WinnerID = nil
	}
	return nil
}

func (q queries) SetVotingEndsAt(ctx context.Context, id uuid.UUID, t time.Time) error {
	defer q.acquire()()
	i := q.cycleIndex(id)
	if i < 0 || q.st().cycles[i].Phase != db.PhaseVoting {
		return db.ErrNotFound
	}
	q.st().cycles[i].VotingEndsAt = t
	return nil
}

func (q queries) ArchiveEntries(ctx context.Context, limit, offset int) ([]db.ArchiveEntry, error) {
	defer q.acquire()()
	var finished []db.Cycle
	for _, c := range q.st().cycles {
		if c.Phase == db.PhaseListening {
			finished = append(finished, c)
		}
	}
	slices.SortFunc(finished, func(a, b db.Cycle) int {
		if a.Year != b.Year {
			return b.Year - a.Year
		}
		return b.WeekNumber - a.WeekNumber
	})

	finished = page(finished, limit, offset)
	entries := make([]db.ArchiveEntry, 0, len(finished))
	for _, c := range finished {
		e := db.ArchiveEntry{Cycle: c}
		if c.WinnerID != nil {
			if i := q.albumIndex(*c.WinnerID); i >= 0 {
				a := q.st().albums[i]
				e.Winner = &a
			}
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit >= 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
