package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/justestif/playgroup/internal/identity"
)

// InsertReview records a review. A second review by the same identity for the
// same album is reported as *ConstraintError.
func (r queries) InsertReview(ctx context.Context, rv *Review) error {
	query := `
		INSERT INTO reviews (id, album_id, reviewer_fid, reviewer_user_id, reviewer_username,
			reviewer_pfp, rating, review_text, favorite_track, has_listened, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, clock_timestamp())
		RETURNING created_at
	`
	if rv.ID == uuid.Nil {
		rv.ID = uuid.New()
	}
	fid, userID := rv.Reviewer.Columns()
	err := r.q.QueryRow(ctx, query,
		rv.ID,
		rv.AlbumID,
		fid,
		userID,
		rv.ReviewerUsername,
		rv.ReviewerPfp,
		rv.Rating,
		rv.ReviewText,
		rv.FavoriteTrack,
		rv.HasListened,
	).Scan(&rv.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting review: %w", wrapConstraint(err))
	}
	return nil
}

// HasReviewed reports whether an identity already reviewed an album.
func (r queries) HasReviewed(ctx context.Context, albumID uuid.UUID, reviewer identity.Identity) (bool, error) {
	cond, arg := identityCond("reviewer", reviewer, 2)
	query := `SELECT EXISTS(SELECT 1 FROM reviews WHERE album_id = $1 AND ` + cond + `)`
	var exists bool
	if err := r.q.QueryRow(ctx, query, albumID, arg).Scan(&exists); err != nil {
		return false, fmt.Errorf("checking review: %w", err)
	}
	return exists, nil
}

// ReviewsForAlbum lists an album's reviews, oldest first.
func (r queries) ReviewsForAlbum(ctx context.Context, albumID uuid.UUID) ([]Review, error) {
	query := `
		SELECT id, album_id, reviewer_fid, reviewer_user_id, reviewer_username, reviewer_pfp,
			rating, review_text, favorite_track, has_listened, created_at
		FROM reviews
		WHERE album_id = $1
		ORDER BY created_at ASC, id ASC
	`
	rows, err := r.q.Query(ctx, query, albumID)
	if err != nil {
		return nil, fmt.Errorf("querying reviews: %w", err)
	}
	defer rows.Close()

	var reviews []Review
	for rows.Next() {
		var rv Review
		var fid *int64
		var userID *uuid.UUID
		err := rows.Scan(
			&rv.ID,
			&rv.AlbumID,
			&fid,
			&userID,
			&rv.ReviewerUsername,
			&rv.ReviewerPfp,
			&rv.Rating,
			&rv.ReviewText,
			&rv.FavoriteTrack,
			&rv.HasListened,
			&rv.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning review: %w", err)
		}
		rv.Reviewer = identity.FromColumns(fid, userID)
		reviews = append(reviews, rv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating reviews: %w", err)
	}
	return reviews, nil
}

// AllRatings returns every (reviewer, album, rating) triple.
func (r queries) AllRatings(ctx context.Context) ([]Rating, error) {
	query := `SELECT reviewer_fid, reviewer_user_id, album_id, rating FROM reviews ORDER BY created_at ASC`
	rows, err := r.q.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying ratings: %w", err)
	}
	defer rows.Close()

	var ratings []Rating
	for rows.Next() {
		var rt Rating
		var fid *int64
		var userID *uuid.UUID
		if err := rows.Scan(&fid, &userID, &rt.AlbumID, &rt.Rating); err != nil {
			return nil, fmt.Errorf("scanning rating: %w", err)
		}
		rt.Reviewer = identity.FromColumns(fid, userID)
		ratings = append(ratings, rt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating ratings: %w", err)
	}
	return ratings, nil
}
