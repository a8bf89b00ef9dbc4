// Package aggregate computes read-only views over the ledgers: member
// profiles, leaderboards, the archive of past cycles and taste clusters.
// Results can be served through a read-through cache.
package aggregate

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/justestif/playgroup/internal/cache"
	"github.com/justestif/playgroup/internal/db"
	"github.com/justestif/playgroup/internal/identity"
	"github.com/justestif/playgroup/internal/metrics"
)

const (
	DefaultLimit = 10
	MaxLimit     = 100
)

// Service serves aggregate views.
type Service struct {
	store  db.Queries
	cache  cache.Cache
	ttl    time.Duration
	logger zerolog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithCache serves results through c, keeping each for ttl.
func WithCache(c cache.Cache, ttl time.Duration) Option {
	return func(s *Service) {
		s.cache = c
		s.ttl = ttl
	}
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) {
		s.logger = l.With().Str("component", "aggregate").Logger()
	}
}

// New creates an aggregate service.
func New(store db.Queries, opts ...Option) *Service {
	s := &Service{store: store, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Profile is one member's activity summary.
type Profile struct {
	Identity       identity.Identity
	Submissions    int
	Wins           int
	VotesCast      int
	ReviewsWritten int
	AvgRatingGiven *float64 // nil when the member has written no reviews
}

// Profile summarizes a member's submissions, wins, votes and reviews.
func (s *Service) Profile(ctx context.Context, member identity.Identity) (*Profile, error) {
	if member.IsZero() {
		return nil, identity.ErrInvalidIdentity
	}
	return cached(ctx, s, "profile:"+member.String(), func() (*Profile, error) {
		pc, err := s.store.ProfileCounts(ctx, member)
		if err != nil {
			return nil, fmt.Errorf("loading profile counts: %w", err)
		}
		p := &Profile{
			Identity:       member,
			Submissions:    pc.Submissions,
			Wins:           pc.Wins,
			VotesCast:      pc.VotesCast,
			ReviewsWritten: pc.ReviewsWritten,
		}
		if pc.ReviewsWritten > 0 {
			avg, _ := decimal.NewFromInt(int64(pc.RatingSum)).
				Div(decimal.NewFromInt(int64(pc.ReviewsWritten))).
				Round(1).
				Float64()
			p.AvgRatingGiven = &avg
		}
		return p, nil
	})
}

// Leaderboard holds the top submitters and the best rated albums.
type Leaderboard struct {
	Submitters []db.SubmitterStanding
	TopRated   []db.Album
}

// Leaderboard ranks submitters by wins then submissions, and reviewed
// albums by average rating then review count.
func (s *Service) Leaderboard(ctx context.Context, limit int) (*Leaderboard, error) {
	limit = clampLimit(limit)
	return cached(ctx, s, "leaderboard:"+strconv.Itoa(limit), func() (*Leaderboard, error) {
		submitters, err := s.store.TopSubmitters(ctx, limit)
		if err != nil {
			return nil, fmt.Errorf("ranking submitters: %w", err)
		}
		rated, err := s.store.TopRatedAlbums(ctx, limit)
		if err != nil {
			return nil, fmt.Errorf("ranking albums: %w", err)
		}
		return &Leaderboard{Submitters: submitters, TopRated: rated}, nil
	})
}

// Archive lists finished cycles, newest first, with their winning album.
func (s *Service) Archive(ctx context.Context, limit, offset int) ([]db.ArchiveEntry, error) {
	limit = clampLimit(limit)
	offset = max(offset, 0)
	key := "archive:" + strconv.Itoa(limit) + ":" + strconv.Itoa(offset)
	return cached(ctx, s, key, func() ([]db.ArchiveEntry, error) {
		entries, err := s.store.ArchiveEntries(ctx, limit, offset)
		if err != nil {
			return nil, fmt.Errorf("listing archive: %w", err)
		}
		return entries, nil
	})
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	return min(limit, MaxLimit)
}

// cached serves fn's result from the cache under key, computing and storing
// it on a miss. Cache failures fall through to fn.
func cached[T any](ctx context.Context, s *Service, key string, fn func() (T, error)) (T, error) {
	if s.cache == nil || s.ttl <= 0 {
		return fn()
	}

	if b, ok, err := s.cache.Get(ctx, key); err != nil {
		metrics.AggregateCacheTotal.WithLabelValues("error").Inc()
		s.logger.Warn().Err(err).Str("key", key).Msg("cache read failed")
	} else if ok {
		var v T
		if err := json.Unmarshal(b, &v); err == nil {
			metrics.AggregateCacheTotal.WithLabelValues("hit").Inc()
			return v, nil
		}
		s.logger.Warn().Str("key", key).Msg("discarding undecodable cache entry")
	}
	metrics.AggregateCacheTotal.WithLabelValues("miss").Inc()

	v, err := fn()
	if err != nil {
		return v, err
	}
	b, err := json.Marshal(v)
	if err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("encoding cache entry")
		return v, nil
	}
	if err := s.cache.Set(ctx, key, b, s.ttl); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("cache write failed")
	}
	return v, nil
}
