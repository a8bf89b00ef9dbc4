package cycles

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/justestif/playgroup/internal/db"
	"github.com/justestif/playgroup/internal/db/memdb"
	"github.com/justestif/playgroup/internal/identity"
)

// fakeClock is a settable clock shared by the service and the store.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// Monday 2 March 2026, 10:00 UTC.
var monday = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*Service, *memdb.Store, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: monday}
	store := memdb.New(memdb.WithClock(clock.Now))
	return New(store, WithClock(clock.Now)), store, clock
}

func addAlbum(t *testing.T, store *memdb.Store, clock *fakeClock, cycleID uuid.UUID, ext string, votes int) *db.Album {
	t.Helper()
	ctx := context.Background()
	clock.Advance(time.Minute)
	a := &db.Album{
		ExternalID:    ext,
		CycleID:       cycleID,
		Submitter:     identity.FromFID(1000),
		AlbumMetadata: db.AlbumMetadata{Title: ext, Artist: "artist"},
	}
	if err := store.InsertAlbum(ctx, a); err != nil {
		t.Fatalf("InsertAlbum(%s) error = %v", ext, err)
	}
	for i := 0; i < votes; i++ {
		if err := store.InsertVote(ctx, &db.Vote{AlbumID: a.ID, Voter: identity.FromFID(int64(i + 1))}); err != nil {
			t.Fatalf("InsertVote() error = %v", err)
		}
	}
	return a
}

func TestGetOrCreateCurrent(t *testing.T) {
	ctx := context.Background()
	svc, _, clock := newTestService(t)

	first, err := svc.GetOrCreateCurrent(ctx)
	if err != nil {
		t.Fatalf("GetOrCreateCurrent() error = %v", err)
	}
	if first.Year != 2026 || first.WeekNumber != 1 || first.Phase != db.PhaseVoting {
		t.Errorf("first cycle = %d/%d %s, want 2026/1 voting", first.Year, first.WeekNumber, first.Phase)
	}
	if want := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC); !first.StartDate.Equal(want) {
		t.Errorf("StartDate = %v, want %v", first.StartDate, want)
	}
	if want := time.Date(2026, 3, 5, 20, 0, 0, 0, time.UTC); !first.VotingEndsAt.Equal(want) {
		t.Errorf("VotingEndsAt = %v, want %v", first.VotingEndsAt, want)
	}
	if !first.VotingEndsAt.Before(first.EndDate) {
		t.Errorf("VotingEndsAt %v not before EndDate %v", first.VotingEndsAt, first.EndDate)
	}

	clock.Advance(2 * 24 * time.Hour)
	again, err := svc.GetOrCreateCurrent(ctx)
	if err != nil {
		t.Fatalf("GetOrCreateCurrent() error = %v", err)
	}
	if again.ID != first.ID {
		t.Errorf("GetOrCreateCurrent() created a new cycle before the old one ended")
	}

	clock.Set(time.Date(2026, 3, 9, 9, 0, 0, 0, time.UTC))
	second, err := svc.GetOrCreateCurrent(ctx)
	if err != nil {
		t.Fatalf("GetOrCreateCurrent() error = %v", err)
	}
	if second.ID == first.ID || second.WeekNumber != 2 {
		t.Errorf("second cycle week = %d (same id: %v), want new week 2", second.WeekNumber, second.ID == first.ID)
	}

	clock.Set(time.Date(2027, 1, 4, 9, 0, 0, 0, time.UTC))
	rolled, err := svc.GetOrCreateCurrent(ctx)
	if err != nil {
		t.Fatalf("GetOrCreateCurrent() error = %v", err)
	}
	if rolled.Year != 2027 || rolled.WeekNumber != 1 {
		t.Errorf("cycle after year change = %d/%d, want 2027/1", rolled.Year, rolled.WeekNumber)
	}
}

func TestGetOrCreateCurrentConcurrent(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService(t)

	const callers = 16
	ids := make([]uuid.UUID, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, err := svc.GetOrCreateCurrent(ctx)
			if err != nil {
				t.Errorf("GetOrCreateCurrent() error = %v", err)
				return
			}
			ids[i] = c.ID
		}()
	}
	wg.Wait()

	for i, id := range ids {
		if id != ids[0] {
			t.Fatalf("caller %d got cycle %v, caller 0 got %v", i, id, ids[0])
		}
	}
	if _, err := store.GetCycleByWeek(ctx, 2026, 2); !errors.Is(err, db.ErrNotFound) {
		t.Errorf("GetCycleByWeek(2026, 2) error = %v, want ErrNotFound", err)
	}
}

func TestUnvisitedCycleClosedBeforeNext(t *testing.T) {
	ctx := context.Background()
	svc, store, clock := newTestService(t)

	first, err := svc.GetOrCreateCurrent(ctx)
	if err != nil {
		t.Fatalf("GetOrCreateCurrent() error = %v", err)
	}
	a := addAlbum(t, store, clock, first.ID, "a", 2)

	// No traffic between the deadline and the end of the week.
	clock.Set(first.EndDate.Add(24 * time.Hour))
	cur, err := svc.GetCurrentWithCountdown(ctx)
	if err != nil {
		t.Fatalf("GetCurrentWithCountdown() error = %v", err)
	}
	if cur.Cycle.ID == first.ID || cur.Cycle.WeekNumber != 2 {
		t.Fatalf("current cycle week = %d, want a new week 2", cur.Cycle.WeekNumber)
	}

	old, err := store.GetCycle(ctx, first.ID)
	if err != nil {
		t.Fatalf("GetCycle() error = %v", err)
	}
	if old.Phase != db.PhaseListening || old.WinnerID == nil || *old.WinnerID != a.ID {
		t.Errorf("previous cycle = %s winner %v, want listening with winner %v", old.Phase, old.WinnerID, a.ID)
	}
	album, err := store.GetAlbum(ctx, a.ID)
	if err != nil {
		t.Fatalf("GetAlbum() error = %v", err)
	}
	if album.Status != db.AlbumSelected {
		t.Errorf("album status = %s, want %s", album.Status, db.AlbumSelected)
	}
	won, err := store.HasWon(ctx, "a")
	if err != nil || !won {
		t.Errorf("HasWon(a) = %v, %v, want true", won, err)
	}
}

func TestTransitionTieBreak(t *testing.T) {
	ctx := context.Background()
	svc, store, clock := newTestService(t)

	c, err := svc.GetOrCreateCurrent(ctx)
	if err != nil {
		t.Fatalf("GetOrCreateCurrent() error = %v", err)
	}
	a := addAlbum(t, store, clock, c.ID, "A", 3)
	b := addAlbum(t, store, clock, c.ID, "B", 3)
	cc := addAlbum(t, store, clock, c.ID, "C", 1)

	tr, err := svc.TransitionToListening(ctx, c.ID)
	if err != nil {
		t.Fatalf("TransitionToListening() error = %v", err)
	}
	if tr.WinnerID == nil || *tr.WinnerID != a.ID {
		t.Fatalf("winner = %v, want A (%v)", tr.WinnerID, a.ID)
	}

	want := map[uuid.UUID]db.AlbumStatus{
		a.ID:  db.AlbumSelected,
		b.ID:  db.AlbumLost,
		cc.ID: db.AlbumLost,
	}
	for id, status := range want {
		got, err := store.GetAlbum(ctx, id)
		if err != nil {
			t.Fatalf("GetAlbum() error = %v", err)
		}
		if got.Status != status {
			t.Errorf("album %s status = %s, want %s", got.Title, got.Status, status)
		}
	}

	after, err := svc.Cycle(ctx, c.ID)
	if err != nil {
		t.Fatalf("Cycle() error = %v", err)
	}
	if after.Phase != db.PhaseListening || after.WinnerID == nil || *after.WinnerID != a.ID {
		t.Errorf("cycle after transition = %s winner %v, want listening winner A", after.Phase, after.WinnerID)
	}
}

func TestTransitionIsIdempotent(t *testing.T) {
	ctx := context.Background()
	svc, store, clock := newTestService(t)

	c, _ := svc.GetOrCreateCurrent(ctx)
	winner := addAlbum(t, store, clock, c.ID, "W", 2)
	loser := addAlbum(t, store, clock, c.ID, "L", 1)

	if _, err := svc.TransitionToListening(ctx, c.ID); err != nil {
		t.Fatalf("first TransitionToListening() error = %v", err)
	}
	if _, err := svc.TransitionToListening(ctx, c.ID); !errors.Is(err, ErrAlreadyTransitioned) {
		t.Fatalf("second TransitionToListening() error = %v, want ErrAlreadyTransitioned", err)
	}

	w, _ := store.GetAlbum(ctx, winner.ID)
	l, _ := store.GetAlbum(ctx, loser.ID)
	if w.Status != db.AlbumSelected || l.Status != db.AlbumLost {
		t.Errorf("statuses after second call = %s/%s, want selected/lost", w.Status, l.Status)
	}
	after, _ := svc.Cycle(ctx, c.ID)
	if after.WinnerID == nil || *after.WinnerID != winner.ID {
		t.Errorf("winner changed to %v", after.WinnerID)
	}
}

func TestTransitionWithoutSubmissions(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	c, _ := svc.GetOrCreateCurrent(ctx)
	tr, err := svc.TransitionToListening(ctx, c.ID)
	if err != nil {
		t.Fatalf("TransitionToListening() error = %v", err)
	}
	if tr.WinnerID != nil {
		t.Errorf("winner = %v, want nil", tr.WinnerID)
	}

	after, _ := svc.Cycle(ctx, c.ID)
	if after.Phase != db.PhaseListening || after.WinnerID != nil {
		t.Errorf("cycle = %s winner %v, want listening with no winner", after.Phase, after.WinnerID)
	}
}

func TestTransitionUnknownCycle(t *testing.T) {
	svc, _, _ := newTestService(t)
	if _, err := svc.TransitionToListening(context.Background(), uuid.New()); !errors.Is(err, ErrCycleNotFound) {
		t.Errorf("TransitionToListening() error = %v, want ErrCycleNotFound", err)
	}
}

func TestTransitionConcurrent(t *testing.T) {
	ctx := context.Background()
	svc, store, clock := newTestService(t)

	c, _ := svc.GetOrCreateCurrent(ctx)
	for _, ext := range []string{"x", "y", "z"} {
		addAlbum(t, store, clock, c.ID, ext, 1)
	}

	var succeeded, skipped atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.TransitionToListening(ctx, c.ID)
			switch {
			case err == nil:
				succeeded.Add(1)
			case errors.Is(err, ErrAlreadyTransitioned):
				skipped.Add(1)
			default:
				t.Errorf("TransitionToListening() error = %v", err)
			}
		}()
	}
	wg.Wait()

	if succeeded.Load() != 1 || skipped.Load() != 7 {
		t.Errorf("succeeded = %d, skipped = %d, want 1 and 7", succeeded.Load(), skipped.Load())
	}

	tallies, _ := store.SubmissionsWithVoteCounts(ctx, c.ID)
	selected := 0
	for _, tl := range tallies {
		if tl.Status == db.AlbumSelected {
			selected++
		}
	}
	if selected != 1 {
		t.Errorf("selected albums = %d, want 1", selected)
	}
}

func TestGetCurrentWithCountdown(t *testing.T) {
	ctx := context.Background()
	svc, store, clock := newTestService(t)

	c, _ := svc.GetOrCreateCurrent(ctx)
	addAlbum(t, store, clock, c.ID, "only", 1)

	clock.Set(c.VotingEndsAt.Add(-(2*24*time.Hour + 3*time.Hour + 10*time.Minute)))
	cur, err := svc.GetCurrentWithCountdown(ctx)
	if err != nil {
		t.Fatalf("GetCurrentWithCountdown() error = %v", err)
	}
	if want := (Countdown{Days: 2, Hours: 3, Minutes: 10}); cur.Countdown != want {
		t.Errorf("Countdown = %+v, want %+v", cur.Countdown, want)
	}
	if cur.Cycle.Phase != db.PhaseVoting {
		t.Errorf("phase = %s, want voting", cur.Cycle.Phase)
	}

	// Past the deadline the read applies the transition itself.
	clock.Set(c.VotingEndsAt.Add(time.Second))
	cur, err = svc.GetCurrentWithCountdown(ctx)
	if err != nil {
		t.Fatalf("GetCurrentWithCountdown() error = %v", err)
	}
	if cur.Cycle.Phase != db.PhaseListening || cur.Cycle.WinnerID == nil {
		t.Errorf("cycle = %s winner %v, want listening with a winner", cur.Cycle.Phase, cur.Cycle.WinnerID)
	}
	if want := CountdownTo(c.EndDate, clock.Now()); cur.Countdown != want {
		t.Errorf("listening Countdown = %+v, want %+v", cur.Countdown, want)
	}
}

func TestCountdownTo(t *testing.T) {
	now := monday
	tests := []struct {
		name   string
		target time.Time
		want   Countdown
	}{
		{"past", now.Add(-time.Hour), Countdown{}},
		{"now", now, Countdown{}},
		{"under a minute", now.Add(59 * time.Second), Countdown{}},
		{"floors seconds", now.Add(time.Hour + 90*time.Second), Countdown{Hours: 1, Minutes: 1}},
		{"days", now.Add(2*24*time.Hour + 3*time.Hour + 10*time.Minute), Countdown{Days: 2, Hours: 3, Minutes: 10}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CountdownTo(tt.target, now); got != tt.want {
				t.Errorf("CountdownTo() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestExtendVoting(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)
	c, _ := svc.GetOrCreateCurrent(ctx)

	tests := []struct {
		name     string
		deadline time.Time
		wantErr  error
	}{
		{"in the past", monday.Add(-time.Hour), ErrInvalidDeadline},
		{"at cycle end", c.EndDate, ErrInvalidDeadline},
		{"valid", c.VotingEndsAt.Add(24 * time.Hour), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := svc.ExtendVoting(ctx, c.ID, tt.deadline)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("ExtendVoting() error = %v, want %v", err, tt.wantErr)
			}
			if err == nil && !got.VotingEndsAt.Equal(tt.deadline) {
				t.Errorf("VotingEndsAt = %v, want %v", got.VotingEndsAt, tt.deadline)
			}
		})
	}

	if _, err := svc.ForceTransition(ctx, c.ID); err != nil {
		t.Fatalf("ForceTransition() error = %v", err)
	}
	if _, err := svc.ExtendVoting(ctx, c.ID, c.VotingEndsAt); !errors.Is(err, ErrAlreadyTransitioned) {
		t.Errorf("ExtendVoting() after transition error = %v, want ErrAlreadyTransitioned", err)
	}
}

func TestScheduleValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Schedule)
		wantErr bool
	}{
		{"default", func(*Schedule) {}, false},
		{"no location", func(s *Schedule) { s.Location = nil }, true},
		{"cutoff 24", func(s *Schedule) { s.CutoffHour = 24 }, true},
		{"voting longer than cycle", func(s *Schedule) { s.VotingDays = 7 }, true},
		{"same day", func(s *Schedule) { s.VotingDays, s.LengthDays = 0, 0 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := DefaultSchedule()
			tt.mutate(&s)
			if err := s.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
