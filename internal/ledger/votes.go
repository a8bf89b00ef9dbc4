package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/justestif/playgroup/internal/db"
	"github.com/justestif/playgroup/internal/identity"
	"github.com/justestif/playgroup/internal/metrics"
)

// CastVote records one vote by voter for an album in voting status.
// A repeated vote returns ErrAlreadyVoted, including when two identical
// requests race.
func (s *Service) CastVote(ctx context.Context, albumID uuid.UUID, voter identity.Identity) (*db.Vote, error) {
	if voter.IsZero() {
		return nil, s.reject("unauthenticated", identity.ErrAuthenticationRequired)
	}

	album, err := s.store.GetAlbum(ctx, albumID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, s.reject("album_not_votable", ErrAlbumNotVotable)
	}
	if err != nil {
		return nil, fmt.Errorf("loading album: %w", err)
	}

	// A vote arriving after the deadline is what triggers the transition.
	if _, err := s.cycles.Refresh(ctx, album.CycleID); err != nil {
		return nil, err
	}

	vote := &db.Vote{AlbumID: albumID, Voter: voter}
	err = s.store.InTx(ctx, func(q db.Queries) error {
		c, err := q.LockCycle(ctx, album.CycleID)
		if err != nil {
			return err
		}
		current, err := q.GetAlbum(ctx, albumID)
		if err != nil {
			return err
		}
		if current.Status != db.AlbumVoting {
			return ErrAlbumNotVotable
		}
		if c.Phase != db.PhaseVoting || s.cycles.Now().After(c.VotingEndsAt) {
			return ErrVotingClosed
		}

		voted, err := q.HasVoted(ctx, albumID, voter)
		if err != nil {
			return err
		}
		if voted {
			return ErrAlreadyVoted
		}
		return q.InsertVote(ctx, vote)
	})
	switch {
	case errors.Is(err, ErrAlreadyVoted), db.IsConstraint(err, db.ConstraintVoteFID, db.ConstraintVoteUser):
		return nil, s.reject("already_voted", ErrAlreadyVoted)
	case errors.Is(err, ErrAlbumNotVotable):
		return nil, s.reject("album_not_votable", ErrAlbumNotVotable)
	case errors.Is(err, ErrVotingClosed):
		return nil, s.reject("voting_closed", ErrVotingClosed)
	case err != nil:
		return nil, fmt.Errorf("casting vote: %w", err)
	}

	metrics.VotesTotal.Inc()
	s.logger.Debug().
		Str("album_id", albumID.String()).
		Str("voter", voter.String()).
		Msg("vote cast")
	return vote, nil
}

// HasVoted reports whether voter already voted for an album.
func (s *Service) HasVoted(ctx context.Context, albumID uuid.UUID, voter identity.Identity) (bool, error) {
	if voter.IsZero() {
		return false, nil
	}
	voted, err := s.store.HasVoted(ctx, albumID, voter)
	if err != nil {
		return false, fmt.Errorf("checking vote: %w", err)
	}
	return voted, nil
}

// VotedAlbumIDs lists the albums of a cycle voter voted for.
func (s *Service) VotedAlbumIDs(ctx context.Context, cycleID uuid.UUID, voter identity.Identity) ([]uuid.UUID, error) {
	if voter.IsZero() {
		return nil, identity.ErrAuthenticationRequired
	}
	ids, err := s.store.VotedAlbumIDs(ctx, cycleID, voter)
	if err != nil {
		return nil, fmt.Errorf("listing votes: %w", err)
	}
	return ids, nil
}
