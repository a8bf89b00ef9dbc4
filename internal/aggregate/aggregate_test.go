package aggregate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/justestif/playgroup/internal/cache"
	"github.com/justestif/playgroup/internal/db"
	"github.com/justestif/playgroup/internal/db/memdb"
	"github.com/justestif/playgroup/internal/identity"
)

type seeded struct {
	store  *memdb.Store
	winner *db.Album
	open   *db.Album
}

// seed builds one finished cycle won by fid:1 and one cycle still voting.
func seed(t *testing.T) *seeded {
	t.Helper()
	ctx := context.Background()
	s := memdb.New()

	week := func(n int) *db.Cycle {
		start := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC).AddDate(0, 0, 7*(n-1))
		c := &db.Cycle{
			Year:         2026,
			WeekNumber:   n,
			StartDate:    start,
			VotingEndsAt: start.Add(68 * time.Hour),
			EndDate:      start.Add(7*24*time.Hour - time.Nanosecond),
		}
		if _, err := s.InsertCycle(ctx, c); err != nil {
			t.Fatalf("InsertCycle() error = %v", err)
		}
		return c
	}
	album := func(c *db.Cycle, ext string, fid int64) *db.Album {
		a := &db.Album{
			ExternalID:    ext,
			CycleID:       c.ID,
			Submitter:     identity.FromFID(fid),
			AlbumMetadata: db.AlbumMetadata{Title: ext, Artist: "artist"},
		}
		if err := s.InsertAlbum(ctx, a); err != nil {
			t.Fatalf("InsertAlbum() error = %v", err)
		}
		return a
	}
	vote := func(a *db.Album, fid int64) {
		if err := s.InsertVote(ctx, &db.Vote{AlbumID: a.ID, Voter: identity.FromFID(fid)}); err != nil {
			t.Fatalf("InsertVote() error = %v", err)
		}
	}
	review := func(a *db.Album, fid int64, rating int) {
		r := &db.Review{AlbumID: a.ID, Reviewer: identity.FromFID(fid), Rating: rating, ReviewText: "fine"}
		if err := s.InsertReview(ctx, r); err != nil {
			t.Fatalf("InsertReview() error = %v", err)
		}
	}

	first := week(1)
	a := album(first, "a", 1)
	b := album(first, "b", 2)
	vote(a, 1)
	vote(a, 3)
	vote(b, 2)
	if err := s.SelectWinner(ctx, first.ID, a.ID); err != nil {
		t.Fatalf("SelectWinner() error = %v", err)
	}
	if err := s.FinishCycle(ctx, first.ID, &a.ID); err != nil {
		t.Fatalf("FinishCycle() error = %v", err)
	}
	review(a, 1, 4)
	review(a, 2, 5)
	review(a, 3, 3)
	avg := 4.0
	if err := s.UpdateAlbumStats(ctx, a.ID, db.AlbumStats{AvgRating: &avg, TotalReviews: 3}); err != nil {
		t.Fatalf("UpdateAlbumStats() error = %v", err)
	}

	second := week(2)
	c := album(second, "c", 2)
	vote(c, 2)

	return &seeded{store: s, winner: a, open: c}
}

func TestProfile(t *testing.T) {
	ctx := context.Background()
	sd := seed(t)
	svc := New(sd.store)

	tests := []struct {
		name    string
		member  identity.Identity
		want    Profile
		wantAvg *float64
	}{
		{
			name:    "winner",
			member:  identity.FromFID(1),
			want:    Profile{Submissions: 1, Wins: 1, VotesCast: 1, ReviewsWritten: 1},
			wantAvg: ptr(4.0),
		},
		{
			name:    "two submissions no wins",
			member:  identity.FromFID(2),
			want:    Profile{Submissions: 2, VotesCast: 2, ReviewsWritten: 1},
			wantAvg: ptr(5.0),
		},
		{
			name:   "unknown member",
			member: identity.FromUUID(uuid.New()),
			want:   Profile{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := svc.Profile(ctx, tt.member)
			if err != nil {
				t.Fatalf("Profile() error = %v", err)
			}
			if got.Submissions != tt.want.Submissions || got.Wins != tt.want.Wins ||
				got.VotesCast != tt.want.VotesCast || got.ReviewsWritten != tt.want.ReviewsWritten {
				t.Errorf("Profile() = %+v, want %+v", *got, tt.want)
			}
			switch {
			case tt.wantAvg == nil && got.AvgRatingGiven != nil:
				t.Errorf("AvgRatingGiven = %v, want nil", *got.AvgRatingGiven)
			case tt.wantAvg != nil && (got.AvgRatingGiven == nil || *got.AvgRatingGiven != *tt.wantAvg):
				t.Errorf("AvgRatingGiven = %v, want %v", got.AvgRatingGiven, *tt.wantAvg)
			}
			if !got.Identity.Equal(tt.member) {
				t.Errorf("Identity = %v, want %v", got.Identity, tt.member)
			}
		})
	}

	if _, err := svc.Profile(ctx, identity.Identity{}); !errors.Is(err, identity.ErrInvalidIdentity) {
		t.Errorf("Profile(zero) error = %v, want ErrInvalidIdentity", err)
	}
}

func TestLeaderboard(t *testing.T) {
	sd := seed(t)
	lb, err := New(sd.store).Leaderboard(context.Background(), 0)
	if err != nil {
		t.Fatalf("Leaderboard() error = %v", err)
	}

	if len(lb.Submitters) != 2 {
		t.Fatalf("got %d submitters, want 2", len(lb.Submitters))
	}
	top := lb.Submitters[0]
	if !top.Submitter.Equal(identity.FromFID(1)) || top.Wins != 1 || top.Submissions != 1 {
		t.Errorf("Submitters[0] = %+v, want fid:1 with 1 win", top)
	}
	second := lb.Submitters[1]
	if !second.Submitter.Equal(identity.FromFID(2)) || second.Wins != 0 || second.Submissions != 2 {
		t.Errorf("Submitters[1] = %+v, want fid:2 with 2 submissions", second)
	}

	if len(lb.TopRated) != 1 || lb.TopRated[0].ID != sd.winner.ID {
		t.Errorf("TopRated = %v, want only the reviewed winner", lb.TopRated)
	}
}

func TestArchive(t *testing.T) {
	sd := seed(t)
	svc := New(sd.store)

	entries, err := svc.Archive(context.Background(), 10, 0)
	if err != nil {
		t.Fatalf("Archive() error = %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1 finished cycle", len(entries))
	}
	e := entries[0]
	if e.Cycle.WeekNumber != 1 || e.Winner == nil || e.Winner.ID != sd.winner.ID {
		t.Errorf("Archive()[0] = week %d winner %v, want week 1 won by %v", e.Cycle.WeekNumber, e.Winner, sd.winner.ID)
	}
	if e.Winner.AvgRating == nil || *e.Winner.AvgRating != 4.0 {
		t.Errorf("winner AvgRating = %v, want 4.0", e.Winner.AvgRating)
	}

	entries, err = svc.Archive(context.Background(), 10, 1)
	if err != nil || len(entries) != 0 {
		t.Errorf("Archive(offset 1) = %v, %v, want empty", entries, err)
	}
}

func TestCachedServesStoredResult(t *testing.T) {
	ctx := context.Background()
	sd := seed(t)
	member := identity.FromFID(3)
	svc := New(sd.store, WithCache(cache.NewMemory(), time.Minute))

	before, err := svc.Profile(ctx, member)
	if err != nil {
		t.Fatalf("Profile() error = %v", err)
	}
	if err := sd.store.InsertVote(ctx, &db.Vote{AlbumID: sd.open.ID, Voter: member}); err != nil {
		t.Fatalf("InsertVote() error = %v", err)
	}

	cachedProfile, err := svc.Profile(ctx, member)
	if err != nil {
		t.Fatalf("Profile() error = %v", err)
	}
	if cachedProfile.VotesCast != before.VotesCast {
		t.Errorf("cached VotesCast = %d, want %d", cachedProfile.VotesCast, before.VotesCast)
	}
	if !cachedProfile.Identity.Equal(member) || *cachedProfile.AvgRatingGiven != 3.0 {
		t.Errorf("cached profile lost fields: %+v", cachedProfile)
	}

	fresh, err := New(sd.store).Profile(ctx, member)
	if err != nil {
		t.Fatalf("Profile() error = %v", err)
	}
	if fresh.VotesCast != before.VotesCast+1 {
		t.Errorf("uncached VotesCast = %d, want %d", fresh.VotesCast, before.VotesCast+1)
	}
}

func TestClusterTastes(t *testing.T) {
	x, y := uuid.New(), uuid.New()
	r := func(fid int64, album uuid.UUID, rating int) db.Rating {
		return db.Rating{Reviewer: identity.FromFID(fid), AlbumID: album, Rating: rating}
	}
	ratings := []db.Rating{
		r(1, x, 5), r(1, y, 1),
		r(2, x, 5), r(2, y, 1),
		r(3, x, 1), r(3, y, 5),
		r(4, x, 1), r(4, y, 5),
	}

	got, err := clusterTastes(ratings, 2)
	if err != nil {
		t.Fatalf("clusterTastes() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d clusters, want 2", len(got))
	}

	clusterOf := make(map[string]int)
	for i, c := range got {
		for _, m := range c.Members {
			if _, dup := clusterOf[m.String()]; dup {
				t.Errorf("%v placed in two clusters", m)
			}
			clusterOf[m.String()] = i
		}
	}
	if len(clusterOf) != 4 {
		t.Fatalf("clustered %d reviewers, want 4", len(clusterOf))
	}
	if clusterOf["fid:1"] != clusterOf["fid:2"] || clusterOf["fid:3"] != clusterOf["fid:4"] {
		t.Errorf("like-minded reviewers split: %v", clusterOf)
	}
	if clusterOf["fid:1"] == clusterOf["fid:3"] {
		t.Errorf("opposed reviewers merged: %v", clusterOf)
	}

	loversOfX := got[clusterOf["fid:1"]]
	if len(loversOfX.Favorites) != 1 || loversOfX.Favorites[0] != x {
		t.Errorf("Favorites = %v, want [%v]", loversOfX.Favorites, x)
	}

	if _, err := clusterTastes(ratings, 5); !errors.Is(err, ErrNotEnoughReviewers) {
		t.Errorf("clusterTastes(k=5) error = %v, want ErrNotEnoughReviewers", err)
	}
}

func TestTasteClustersEmpty(t *testing.T) {
	_, err := New(memdb.New()).TasteClusters(context.Background(), 0)
	if !errors.Is(err, ErrNotEnoughReviewers) {
		t.Errorf("TasteClusters() error = %v, want ErrNotEnoughReviewers", err)
	}
}

func ptr[T any](v T) *T { return &v }
