package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/justestif/playgroup/internal/identity"
)

// ProfileCounts gathers a member's activity counts in one round trip.
func (r queries) ProfileCounts(ctx context.Context, member identity.Identity) (*ProfileCounts, error) {
	subCond, arg := identityCond("submitted_by", member, 1)
	voteCond, _ := identityCond("voter", member, 1)
	reviewCond, _ := identityCond("reviewer", member, 1)
	query := `
		SELECT
			(SELECT COUNT(*) FROM albums WHERE ` + subCond + `),
			(SELECT COUNT(*) FROM albums WHERE ` + subCond + ` AND status = 'selected'),
			(SELECT COUNT(*) FROM votes WHERE ` + voteCond + `),
			(SELECT COUNT(*) FROM reviews WHERE ` + reviewCond + `),
			(SELECT COALESCE(SUM(rating), 0) FROM reviews WHERE ` + reviewCond + `)
	`
	var pc ProfileCounts
	err := r.q.QueryRow(ctx, query, arg).Scan(
		&pc.Submissions,
		&pc.Wins,
		&pc.VotesCast,
		&pc.ReviewsWritten,
		&pc.RatingSum,
	)
	if err != nil {
		return nil, fmt.Errorf("querying profile counts: %w", err)
	}
	return &pc, nil
}

// TopSubmitters ranks submitters by wins, then by submissions.
func (r queries) TopSubmitters(ctx context.Context, limit int) ([]SubmitterStanding, error) {
	query := `
		SELECT submitted_by_fid, submitted_by_user_id, MAX(submitter_username),
			COUNT(*) FILTER (WHERE status = 'selected') AS wins,
			COUNT(*) AS submissions
		FROM albums
		GROUP BY submitted_by_fid, submitted_by_user_id
		ORDER BY wins DESC, submissions DESC, MIN(created_at) ASC
		LIMIT $1
	`
	rows, err := r.q.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("querying top submitters: %w", err)
	}
	defer rows.Close()

	var standings []SubmitterStanding
	for rows.Next() {
		var s SubmitterStanding
		var fid *int64
		var userID *uuid.UUID
		if err := rows.Scan(&fid, &userID, &s.Username, &s.Wins, &s.Submissions); err != nil {
			return nil, fmt.Errorf("scanning submitter standing: %w", err)
		}
		s.Submitter = identity.FromColumns(fid, userID)
		standings = append(standings, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating submitter standings: %w", err)
	}
	return standings, nil
}
