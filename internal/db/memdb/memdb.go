// Package memdb is an in-memory db.Store. It enforces the same unique
// constraints as the Postgres schema and serializes transactions on a single
// mutex, rolling back by restoring a snapshot.
package memdb

import (
	"context"
	"sync"
	"time"

	"github.com/justestif/playgroup/internal/db"
)

type state struct {
	cycles  []db.Cycle
	albums  []db.Album
	votes   []db.Vote
	reviews []db.Review
	users   []db.User
}

func (s *state) clone() *state {
	return &state{
		cycles:  append([]db.Cycle(nil), s.cycles...),
		albums:  append([]db.Album(nil), s.albums...),
		votes:   append([]db.Vote(nil), s.votes...),
		reviews: append([]db.Review(nil), s.reviews...),
		users:   append([]db.User(nil), s.users...),
	}
}

// Store is an in-memory db.Store.
type Store struct {
	queries
	mu   sync.Mutex
	data *state
	now  func() time.Time
}

var _ db.Store = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithClock sets the clock used for created_at timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// New creates an empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		data: &state{},
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.queries = queries{store: s}
	return s
}

// InTx runs fn while holding the store lock. Any error restores the state
// as it was before fn ran.
func (s *Store) InTx(ctx context.Context, fn func(q db.Queries) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.data.clone()
	if err := fn(queries{store: s, inTx: true}); err != nil {
		s.data = snapshot
		return err
	}
	return nil
}

// queries implements db.Queries. Outside a transaction every call takes the
// store lock itself.
type queries struct {
	store *Store
	inTx  bool
}

func (q queries) acquire() func() {
	if q.inTx {
		return func() {}
	}
	q.store.mu.Lock()
	return q.store.mu.Unlock
}

func (q queries) st() *state { return q.store.data }

func (q queries) stamp() time.Time { return q.store.now() }
