// Package ledger records album submissions, votes and reviews.
//
// Every write that checks an invariant before mutating (duplicate submission,
// duplicate vote, duplicate review) re-checks it inside a transaction, and a
// unique constraint violation from a race that slips past the re-check is
// translated into the same domain error.
package ledger

import (
	"errors"

	"github.com/rs/zerolog"

	"github.com/justestif/playgroup/internal/cycles"
	"github.com/justestif/playgroup/internal/db"
	"github.com/justestif/playgroup/internal/metrics"
)

// Defaults for the configurable limits.
const (
	DefaultSubmissionLimit = 3
	DefaultMinReviewLength = 50
)

// Domain errors.
var (
	// ErrDuplicateSubmission is returned when the album was already submitted in the cycle.
	ErrDuplicateSubmission = errors.New("album already submitted this cycle")

	// ErrPastWinnerRejected is returned when the album won an earlier cycle.
	ErrPastWinnerRejected = errors.New("album already won a previous cycle")

	// ErrSubmissionLimitReached is returned when the submitter hit the per-cycle cap.
	ErrSubmissionLimitReached = errors.New("submission limit reached for this cycle")

	// ErrInvalidSubmission is returned when the album ID or title is missing.
	ErrInvalidSubmission = errors.New("album id and title are required")

	// ErrVotingClosed is returned when the cycle is no longer accepting submissions or votes.
	ErrVotingClosed = errors.New("voting is closed for this cycle")

	// ErrAlreadyVoted is returned when the identity already voted for the album.
	ErrAlreadyVoted = errors.New("already voted for this album")

	// ErrAlbumNotVotable is returned when the album is missing or not in voting status.
	ErrAlbumNotVotable = errors.New("album is not open for voting")

	// ErrAlreadyReviewed is returned when the identity already reviewed the album.
	ErrAlreadyReviewed = errors.New("already reviewed this album")

	// ErrAlbumNotReviewable is returned when reviewing an album that was not selected.
	ErrAlbumNotReviewable = errors.New("only the selected album can be reviewed")

	// ErrAlbumNotFound is returned when an album ID does not exist.
	ErrAlbumNotFound = errors.New("album not found")

	// ErrInvalidRating is returned when a rating is outside 1-5.
	ErrInvalidRating = errors.New("rating must be between 1 and 5")

	// ErrReviewTooShort is returned when review text is under the minimum length.
	ErrReviewTooShort = errors.New("review text too short")
)

// Service records submissions, votes and reviews.
type Service struct {
	store           db.Store
	cycles          *cycles.Service
	submissionLimit int
	minReviewLength int
	logger          zerolog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithSubmissionLimit caps submissions per identity per cycle. Zero disables the cap.
func WithSubmissionLimit(n int) Option {
	return func(s *Service) {
		s.submissionLimit = n
	}
}

// WithMinReviewLength sets the minimum review length in characters.
func WithMinReviewLength(n int) Option {
	return func(s *Service) {
		s.minReviewLength = n
	}
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) {
		s.logger = l.With().Str("component", "ledger").Logger()
	}
}

// New creates a ledger service. Deadline checks and lazy transitions go
// through cycleSvc.
func New(store db.Store, cycleSvc *cycles.Service, opts ...Option) *Service {
	s := &Service{
		store:           store,
		cycles:          cycleSvc,
		submissionLimit: DefaultSubmissionLimit,
		minReviewLength: DefaultMinReviewLength,
		logger:          zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// reject counts and logs a domain rejection and returns err unchanged.
func (s *Service) reject(reason string, err error) error {
	metrics.RejectionsTotal.WithLabelValues(reason).Inc()
	s.logger.Debug().Str("reason", reason).Msg(err.Error())
	return err
}
