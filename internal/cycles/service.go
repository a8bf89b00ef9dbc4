// Package cycles implements the weekly voting/listening state machine.
//
// A cycle starts in the voting phase and moves to listening exactly once,
// when its voting deadline has passed and some caller notices. The
// transition tallies votes, selects a winner and closes the losing albums in
// one transaction that first takes the cycle's row lock and re-checks the
// phase, so concurrent triggers resolve to a single winner.
package cycles

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/justestif/playgroup/internal/db"
	"github.com/justestif/playgroup/internal/metrics"
)

var (
	// ErrAlreadyTransitioned is returned when a cycle is no longer in the voting phase.
	ErrAlreadyTransitioned = errors.New("cycle already transitioned")

	// ErrCycleNotFound is returned when a cycle ID does not exist.
	ErrCycleNotFound = errors.New("cycle not found")

	// ErrInvalidDeadline is returned when a voting deadline override is not
	// in the future or not before the cycle's end.
	ErrInvalidDeadline = errors.New("invalid voting deadline")
)

// Service manages cycle creation and phase transitions.
type Service struct {
	store    db.Store
	schedule Schedule
	now      func() time.Time
	logger   zerolog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithSchedule sets the cycle schedule.
func WithSchedule(s Schedule) Option {
	return func(svc *Service) {
		svc.schedule = s
	}
}

// WithClock sets the wall clock.
func WithClock(now func() time.Time) Option {
	return func(svc *Service) {
		svc.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(svc *Service) {
		svc.logger = l.With().Str("component", "cycles").Logger()
	}
}

// New creates a new cycle service.
func New(store db.Store, opts ...Option) *Service {
	s := &Service{
		store:    store,
		schedule: DefaultSchedule(),
		now:      time.Now,
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Now returns the service clock's current time.
func (s *Service) Now() time.Time {
	return s.now()
}

// Current is the current cycle with the time left in its phase.
type Current struct {
	Cycle     *db.Cycle
	Countdown Countdown
}

// Transition is the outcome of a voting to listening transition.
type Transition struct {
	CycleID  uuid.UUID
	WinnerID *uuid.UUID // nil when the cycle had no submissions
	Tallies  []db.AlbumTally
}

// GetOrCreateCurrent returns the latest cycle, creating the next one when
// there is none or the latest has ended. Concurrent creators converge on one
// row through the (year, week) unique constraint.
func (s *Service) GetOrCreateCurrent(ctx context.Context) (*db.Cycle, error) {
	now := s.now()

	latest, err := s.store.LatestCycle(ctx)
	if err != nil && !errors.Is(err, db.ErrNotFound) {
		return nil, fmt.Errorf("loading latest cycle: %w", err)
	}
	if latest != nil && !now.After(latest.EndDate) {
		return latest, nil
	}

	// A cycle nobody touched between its deadline and its end still gets
	// its winner before the next one starts.
	if latest != nil {
		if _, err := s.refresh(ctx, latest); err != nil {
			return nil, fmt.Errorf("closing previous cycle: %w", err)
		}
	}

	next := s.nextCycle(latest, now)
	inserted, err := s.store.InsertCycle(ctx, next)
	if err != nil {
		return nil, fmt.Errorf("creating cycle: %w", err)
	}
	if !inserted {
		existing, err := s.store.GetCycleByWeek(ctx, next.Year, next.WeekNumber)
		if err != nil {
			return nil, fmt.Errorf("loading concurrently created cycle: %w", err)
		}
		return existing, nil
	}

	metrics.CyclesCreatedTotal.Inc()
	s.logger.Info().
		Str("cycle_id", next.ID.String()).
		Int("year", next.Year).
		Int("week", next.WeekNumber).
		Time("voting_ends_at", next.VotingEndsAt).
		Msg("cycle created")
	return next, nil
}

func (s *Service) nextCycle(prev *db.Cycle, now time.Time) *db.Cycle {
	start, votingEndsAt, end := s.schedule.Bounds(now)
	year := start.Year()
	week := 1
	if prev != nil && prev.Year == year {
		week = prev.WeekNumber + 1
	}
	return &db.Cycle{
		ID:           uuid.New(),
		WeekNumber:   week,
		Year:         year,
		Phase:        db.PhaseVoting,
		StartDate:    start,
		EndDate:      end,
		VotingEndsAt: votingEndsAt,
	}
}

// GetCurrentWithCountdown returns the current cycle after applying any due
// transition, plus the time left until the voting deadline (while voting)
// or the cycle end (while listening).
func (s *Service) GetCurrentWithCountdown(ctx context.Context) (*Current, error) {
	c, err := s.GetOrCreateCurrent(ctx)
	if err != nil {
		return nil, err
	}

	c, err = s.refresh(ctx, c)
	if err != nil {
		return nil, err
	}

	target := c.EndDate
	if c.Phase == db.PhaseVoting {
		target = c.VotingEndsAt
	}
	return &Current{
		Cycle:     c,
		Countdown: CountdownTo(target, s.now()),
	}, nil
}

// Refresh loads a cycle and applies its transition if the deadline has passed.
func (s *Service) Refresh(ctx context.Context, cycleID uuid.UUID) (*db.Cycle, error) {
	c, err := s.Cycle(ctx, cycleID)
	if err != nil {
		return nil, err
	}
	return s.refresh(ctx, c)
}

func (s *Service) refresh(ctx context.Context, c *db.Cycle) (*db.Cycle, error) {
	if c.Phase != db.PhaseVoting || !s.now().After(c.VotingEndsAt) {
		return c, nil
	}

	_, err := s.TransitionToListening(ctx, c.ID)
	if err != nil && !errors.Is(err, ErrAlreadyTransitioned) {
		return nil, err
	}
	return s.Cycle(ctx, c.ID)
}

// Cycle retrieves a cycle by ID.
func (s *Service) Cycle(ctx context.Context, id uuid.UUID) (*db.Cycle, error) {
	c, err := s.store.GetCycle(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return nil, ErrCycleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading cycle: %w", err)
	}
	return c, nil
}

// TransitionToListening closes voting on a cycle. Inside one transaction it
// locks the cycle, confirms it is still voting, tallies votes, marks the
// winner selected and the rest lost, and moves the cycle to listening.
// Ties on vote count go to the earliest submission. Returns
// ErrAlreadyTransitioned if another caller got there first.
func (s *Service) TransitionToListening(ctx context.Context, cycleID uuid.UUID) (*Transition, error) {
	started := time.Now()
	result := &Transition{CycleID: cycleID}

	err := s.store.InTx(ctx, func(q db.Queries) error {
		c, err := q.LockCycle(ctx, cycleID)
		if errors.Is(err, db.ErrNotFound) {
			return ErrCycleNotFound
		}
		if err != nil {
			return err
		}
		if c.Phase != db.PhaseVoting {
			return ErrAlreadyTransitioned
		}

		tallies, err := q.VoteTallies(ctx, cycleID)
		if err != nil {
			return err
		}
		result.Tallies = tallies

		if winner := pickWinner(tallies); winner != nil {
			id := winner.ID
			result.WinnerID = &id
			if err := q.SelectWinner(ctx, cycleID, id); err != nil {
				return err
			}
		}

		return q.FinishCycle(ctx, cycleID, result.WinnerID)
	})
	metrics.TransitionSeconds.Observe(time.Since(started).Seconds())

	switch {
	case errors.Is(err, ErrAlreadyTransitioned):
		metrics.TransitionsTotal.WithLabelValues("already_transitioned").Inc()
		s.logger.Debug().Str("cycle_id", cycleID.String()).Msg("transition skipped, already listening")
		return nil, err
	case errors.Is(err, ErrCycleNotFound):
		return nil, err
	case err != nil:
		metrics.TransitionsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("transitioning cycle: %w", err)
	}

	outcome := "winner"
	if result.WinnerID == nil {
		outcome = "no_submissions"
	}
	metrics.TransitionsTotal.WithLabelValues(outcome).Inc()

	ev := s.logger.Info().
		Str("cycle_id", cycleID.String()).
		Int("albums", len(result.Tallies))
	if result.WinnerID != nil {
		ev = ev.Str("winner_id", result.WinnerID.String())
	}
	ev.Msg("cycle moved to listening")

	return result, nil
}

// pickWinner returns the album with the most votes. Among equal counts the
// earliest submission wins, then the lowest ID.
func pickWinner(tallies []db.AlbumTally) *db.AlbumTally {
	var best *db.AlbumTally
	for i := range tallies {
		t := &tallies[i]
		if best == nil || beats(t, best) {
			best = t
		}
	}
	return best
}

func beats(a, b *db.AlbumTally) bool {
	if a.VoteCount != b.VoteCount {
		return a.VoteCount > b.VoteCount
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID.String() < b.ID.String()
}

// ForceTransition closes voting immediately, regardless of the deadline.
func (s *Service) ForceTransition(ctx context.Context, cycleID uuid.UUID) (*Transition, error) {
	s.logger.Warn().Str("cycle_id", cycleID.String()).Msg("forcing transition")
	return s.TransitionToListening(ctx, cycleID)
}

// ExtendVoting moves the voting deadline of a cycle still in voting. The new
// deadline must be in the future and before the cycle ends.
func (s *Service) ExtendVoting(ctx context.Context, cycleID uuid.UUID, deadline time.Time) (*db.Cycle, error) {
	var updated *db.Cycle
	err := s.store.InTx(ctx, func(q db.Queries) error {
		c, err := q.LockCycle(ctx, cycleID)
		if errors.Is(err, db.ErrNotFound) {
			return ErrCycleNotFound
		}
		if err != nil {
			return err
		}
		if c.Phase != db.PhaseVoting {
			return ErrAlreadyTransitioned
		}
		if !deadline.After(s.now()) || !deadline.Before(c.EndDate) {
			return ErrInvalidDeadline
		}
		if err := q.SetVotingEndsAt(ctx, cycleID, deadline); err != nil {
			return err
		}
		c.VotingEndsAt = deadline
		updated = c
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrCycleNotFound) || errors.Is(err, ErrAlreadyTransitioned) || errors.Is(err, ErrInvalidDeadline) {
			return nil, err
		}
		return nil, fmt.Errorf("extending voting: %w", err)
	}

	s.logger.Info().
		Str("cycle_id", cycleID.String()).
		Time("voting_ends_at", deadline).
		Msg("voting deadline changed")
	return updated, nil
}
