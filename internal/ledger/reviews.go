package ledger

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/justestif/playgroup/internal/db"
	"github.com/justestif/playgroup/internal/identity"
	"github.com/justestif/playgroup/internal/metrics"
)

// ReviewInput is a request to review an album.
type ReviewInput struct {
	AlbumID          uuid.UUID
	Reviewer         identity.Identity
	ReviewerUsername string
	ReviewerPfp      *string
	Rating           int
	Text             string
	FavoriteTrack    *string
	HasListened      bool
}

// ReviewResult is the stored review and the album stats it produced.
type ReviewResult struct {
	Review db.Review
	Stats  db.AlbumStats
}

// SubmitReview records a review of a selected album and rebuilds the
// album's derived stats from all of its reviews in the same transaction.
func (s *Service) SubmitReview(ctx context.Context, in ReviewInput) (*ReviewResult, error) {
	if in.Reviewer.IsZero() {
		return nil, s.reject("unauthenticated", identity.ErrAuthenticationRequired)
	}
	if in.Rating < 1 || in.Rating > 5 {
		return nil, s.reject("invalid_rating", ErrInvalidRating)
	}
	text := strings.TrimSpace(in.Text)
	if utf8.RuneCountInString(text) < s.minReviewLength {
		return nil, s.reject("review_too_short", fmt.Errorf("%w: minimum %d characters", ErrReviewTooShort, s.minReviewLength))
	}

	album, err := s.store.GetAlbum(ctx, in.AlbumID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, s.reject("album_not_found", ErrAlbumNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("loading album: %w", err)
	}
	if album.Status != db.AlbumSelected {
		return nil, s.reject("album_not_reviewable", ErrAlbumNotReviewable)
	}

	review := &db.Review{
		AlbumID:          in.AlbumID,
		Reviewer:         in.Reviewer,
		ReviewerUsername: in.ReviewerUsername,
		ReviewerPfp:      in.ReviewerPfp,
		Rating:           in.Rating,
		ReviewText:       text,
		FavoriteTrack:    normalizeTrack(in.FavoriteTrack),
		HasListened:      in.HasListened,
	}
	var stats db.AlbumStats

	err = s.store.InTx(ctx, func(q db.Queries) error {
		if _, err := q.LockAlbum(ctx, in.AlbumID); err != nil {
			return err
		}
		reviewed, err := q.HasReviewed(ctx, in.AlbumID, in.Reviewer)
		if err != nil {
			return err
		}
		if reviewed {
			return ErrAlreadyReviewed
		}
		if err := q.InsertReview(ctx, review); err != nil {
			return err
		}

		reviews, err := q.ReviewsForAlbum(ctx, in.AlbumID)
		if err != nil {
			return err
		}
		stats = ComputeStats(reviews)
		return q.UpdateAlbumStats(ctx, in.AlbumID, stats)
	})
	switch {
	case errors.Is(err, ErrAlreadyReviewed), db.IsConstraint(err, db.ConstraintReviewFID, db.ConstraintReviewUser):
		return nil, s.reject("already_reviewed", ErrAlreadyReviewed)
	case err != nil:
		return nil, fmt.Errorf("submitting review: %w", err)
	}

	metrics.ReviewsTotal.Inc()
	s.logger.Info().
		Str("album_id", in.AlbumID.String()).
		Str("reviewer", in.Reviewer.String()).
		Int("rating", in.Rating).
		Int("total_reviews", stats.TotalReviews).
		Msg("review submitted")
	return &ReviewResult{Review: *review, Stats: stats}, nil
}

// Reviews lists an album's reviews, newest first.
func (s *Service) Reviews(ctx context.Context, albumID uuid.UUID) ([]db.Review, error) {
	if _, err := s.store.GetAlbum(ctx, albumID); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, ErrAlbumNotFound
		}
		return nil, fmt.Errorf("loading album: %w", err)
	}
	reviews, err := s.store.ReviewsForAlbum(ctx, albumID)
	if err != nil {
		return nil, fmt.Errorf("listing reviews: %w", err)
	}
	slices.Reverse(reviews)
	return reviews, nil
}

func normalizeTrack(track *string) *string {
	if track == nil {
		return nil
	}
	t := strings.TrimSpace(*track)
	if t == "" {
		return nil
	}
	return &t
}
