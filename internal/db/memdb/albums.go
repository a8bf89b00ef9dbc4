package memdb

import (
	"context"
	"fmt"
	"slices"

	"github.com/google/uuid"

	"github.com/justestif/playgroup/internal/db"
	"github.com/justestif/playgroup/internal/identity"
)

func (q queries) albumIndex(id uuid.UUID) int {
	return slices.IndexFunc(q.st().albums, func(a db.Album) bool { return a.ID == id })
}

func (q queries) voteCount(albumID uuid.UUID) int {
	n := 0
	for _, v := range q.st().votes {
		if v.AlbumID == albumID {
			n++
		}
	}
	return n
}

// tallies returns albums matching keep, in insertion order, with vote counts.
// Insertion order doubles as created_at order.
func (q queries) tallies(keep func(db.Album) bool) []db.AlbumTally {
	var out []db.AlbumTally
	for _, a := range q.st().albums {
		if keep(a) {
			out = append(out, db.AlbumTally{Album: a, VoteCount: q.voteCount(a.ID)})
		}
	}
	return out
}

func (q queries) InsertAlbum(ctx context.Context, a *db.Album) error {
	defer q.acquire()()
	for _, existing := range q.st().albums {
		if existing.CycleID == a.CycleID && existing.ExternalID == a.ExternalID {
			return fmt.Errorf("inserting album: %w", &db.ConstraintError{Constraint: db.ConstraintAlbumExternal})
		}
	}
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.Status == "" {
		a.Status = db.AlbumVoting
	}
	a.CreatedAt = q.stamp()
	q.st().albums = append(q.st().albums, *a)
	return nil
}

func (q queries) GetAlbum(ctx context.Context, id uuid.UUID) (*db.Album, error) {
	defer q.acquire()()
	i := q.albumIndex(id)
	if i < 0 {
		return nil, db.ErrNotFound
	}
	a := q.st().albums[i]
	return &a, nil
}

// LockAlbum is GetAlbum; the transaction already holds the store lock.
func (q queries) LockAlbum(ctx context.Context, id uuid.UUID) (*db.Album, error) {
	return q.GetAlbum(ctx, id)
}

func (q queries) GetAlbumByExternalID(ctx context.Context, cycleID uuid.UUID, externalID string) (*db.Album, error) {
	defer q.acquire()()
	for _, a := range q.st().albums {
		if a.CycleID == cycleID && a.ExternalID == externalID {
			return &a, nil
		}
	}
	return nil, db.ErrNotFound
}

func (q queries) HasWon(ctx context.Context, externalID string) (bool, error) {
	defer q.acquire()()
	return slices.ContainsFunc(q.st().albums, func(a db.Album) bool {
		return a.ExternalID == externalID && a.Status == db.AlbumSelected
	}), nil
}

func (q queries) CountSubmissions(ctx context.Context, cycleID uuid.UUID, submitter identity.Identity) (int, error) {
	defer q.acquire()()
	n := 0
	for _, a := range q.st().albums {
		if a.CycleID == cycleID && a.Submitter.Equal(submitter) {
			n++
		}
	}
	return n, nil
}

func (q queries) VoteTallies(ctx context.Context, cycleID uuid.UUID) ([]db.AlbumTally, error) {
	defer q.acquire()()
	return q.tallies(func(a db.Album) bool {
		return a.CycleID == cycleID && a.Status == db.AlbumVoting
	}), nil
}

func (q queries) SubmissionsWithVoteCounts(ctx context.Context, cycleID uuid.UUID) ([]db.AlbumTally, error) {
	defer q.acquire()()
	out := q.tallies(func(a db.Album) bool { return a.CycleID == cycleID })
	slices.SortStableFunc(out, func(a, b db.AlbumTally) int {
		if a.VoteCount != b.VoteCount {
			return b.VoteCount - a.VoteCount
		}
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return out, nil
}

func (q queries) GetAlbumTally(ctx context.Context, id uuid.UUID) (*db.AlbumTally, error) {
	defer q.acquire()()
	i := q.albumIndex(id)
	if i < 0 {
		return nil, db.ErrNotFound
	}
	a := q.st().albums[i]
	return &db.AlbumTally{Album: a, VoteCount: q.voteCount(id)}, nil
}

func (q queries) SelectWinner(ctx context.Context, cycleID, winnerID uuid.UUID) error {
	defer q.acquire()()
	for _, a := range q.st().albums {
		if a.CycleID == cycleID && a.Status == db.AlbumSelected && a.ID != winnerID {
			return fmt.Errorf("selecting winner: %w", &db.ConstraintError{Constraint: db.ConstraintAlbumSelected})
		}
	}
	for i := range q.st().albums {
		a := &q.st().albums[i]
		if a.CycleID != cycleID || a.Status != db.AlbumVoting {
			continue
		}
		if a.ID == winnerID {
			a.Status = db.AlbumSelected
		} else {
			a.Status = db.AlbumLost
		}
	}
	return nil
}

func (q queries) UpdateAlbumStats(ctx context.Context, id uuid.UUID, stats db.AlbumStats) error {
	defer q.acquire()()
	i := q.albumIndex(id)
	if i < 0 {
		return db.ErrNotFound
	}
	q.st().albums[i].AlbumStats = stats
	return nil
}

func (q queries) TopRatedAlbums(ctx context.Context, limit int) ([]db.Album, error) {
	defer q.acquire()()
	var rated []db.Album
	for _, a := range q.st().albums {
		if a.TotalReviews > 0 && a.AvgRating != nil {
			rated = append(rated, a)
		}
	}
	slices.SortStableFunc(rated, func(a, b db.Album) int {
		switch {
		case *a.AvgRating > *b.AvgRating:
			return -1
		case *a.AvgRating < *b.AvgRating:
			return 1
		}
		return b.TotalReviews - a.TotalReviews
	})
	return page(rated, limit, 0), nil
}
