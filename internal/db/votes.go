package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/justestif/playgroup/internal/identity"
)

// InsertVote records a vote. A second vote by the same identity for the same
// album is reported as *ConstraintError.
func (r queries) InsertVote(ctx context.Context, v *Vote) error {
	query := `
		INSERT INTO votes (id, album_id, voter_fid, voter_user_id, created_at)
		VALUES ($1, $2, $3, $4, clock_timestamp())
		RETURNING created_at
	`
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	fid, userID := v.Voter.Columns()
	err := r.q.QueryRow(ctx, query, v.ID, v.AlbumID, fid, userID).Scan(&v.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting vote: %w", wrapConstraint(err))
	}
	return nil
}

// HasVoted reports whether an identity already voted for an album.
func (r queries) HasVoted(ctx context.Context, albumID uuid.UUID, voter identity.Identity) (bool, error) {
	cond, arg := identityCond("voter", voter, 2)
	query := `SELECT EXISTS(SELECT 1 FROM votes WHERE album_id = $1 AND ` + cond + `)`
	var exists bool
	if err := r.q.QueryRow(ctx, query, albumID, arg).Scan(&exists); err != nil {
		return false, fmt.Errorf("checking vote: %w", err)
	}
	return exists, nil
}

// VotedAlbumIDs lists the albums of a cycle an identity voted for.
func (r queries) VotedAlbumIDs(ctx context.Context, cycleID uuid.UUID, voter identity.Identity) ([]uuid.UUID, error) {
	cond, arg := identityCond("v.voter", voter, 2)
	query := `
		SELECT v.album_id
		FROM votes v
		JOIN albums a ON a.id = v.album_id
		WHERE a.cycle_id = $1 AND ` + cond + `
		ORDER BY v.created_at ASC
	`
	rows, err := r.q.Query(ctx, query, cycleID, arg)
	if err != nil {
		return nil, fmt.Errorf("querying voted albums: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning voted album: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating voted albums: %w", err)
	}
	return ids, nil
}
