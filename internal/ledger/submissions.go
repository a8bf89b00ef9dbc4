package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/justestif/playgroup/internal/db"
	"github.com/justestif/playgroup/internal/identity"
	"github.com/justestif/playgroup/internal/metrics"
)

// Submission is a request to add an album to a cycle.
type Submission struct {
	CycleID           uuid.UUID // uuid.Nil targets the current cycle
	ExternalID        string
	Submitter         identity.Identity
	SubmitterUsername string
	Metadata          db.AlbumMetadata
}

// Submit adds an album to a cycle and records the submitter's own vote for it.
//
// The past-winner check runs outside the transaction and is best effort.
// The submission cap is checked up front and again under the cycle lock.
func (s *Service) Submit(ctx context.Context, sub Submission) (*db.Album, error) {
	if sub.Submitter.IsZero() {
		return nil, s.reject("unauthenticated", identity.ErrAuthenticationRequired)
	}
	externalID := strings.TrimSpace(sub.ExternalID)
	title := strings.TrimSpace(sub.Metadata.Title)
	if externalID == "" || title == "" {
		return nil, s.reject("invalid_submission", ErrInvalidSubmission)
	}

	cycle, err := s.votingCycle(ctx, sub.CycleID)
	if err != nil {
		return nil, err
	}

	won, err := s.store.HasWon(ctx, externalID)
	if err != nil {
		return nil, fmt.Errorf("checking past winners: %w", err)
	}
	if won {
		return nil, s.reject("past_winner", ErrPastWinnerRejected)
	}

	if s.submissionLimit > 0 {
		n, err := s.store.CountSubmissions(ctx, cycle.ID, sub.Submitter)
		if err != nil {
			return nil, fmt.Errorf("counting submissions: %w", err)
		}
		if n >= s.submissionLimit {
			return nil, s.reject("submission_limit", ErrSubmissionLimitReached)
		}
	}

	metadata := sub.Metadata
	metadata.Title = title
	metadata.Artist = strings.TrimSpace(metadata.Artist)
	album := &db.Album{
		ExternalID:        externalID,
		CycleID:           cycle.ID,
		Submitter:         sub.Submitter,
		SubmitterUsername: sub.SubmitterUsername,
		Status:            db.AlbumVoting,
		AlbumMetadata:     metadata,
	}

	err = s.store.InTx(ctx, func(q db.Queries) error {
		c, err := q.LockCycle(ctx, cycle.ID)
		if err != nil {
			return err
		}
		if c.Phase != db.PhaseVoting || s.cycles.Now().After(c.VotingEndsAt) {
			return ErrVotingClosed
		}

		_, err = q.GetAlbumByExternalID(ctx, cycle.ID, externalID)
		if err == nil {
			return ErrDuplicateSubmission
		}
		if !errors.Is(err, db.ErrNotFound) {
			return err
		}

		if s.submissionLimit > 0 {
			n, err := q.CountSubmissions(ctx, cycle.ID, sub.Submitter)
			if err != nil {
				return err
			}
			if n >= s.submissionLimit {
				return ErrSubmissionLimitReached
			}
		}

		if err := q.InsertAlbum(ctx, album); err != nil {
			return err
		}
		return q.InsertVote(ctx, &db.Vote{AlbumID: album.ID, Voter: sub.Submitter})
	})
	switch {
	case errors.Is(err, ErrDuplicateSubmission), db.IsConstraint(err, db.ConstraintAlbumExternal):
		return nil, s.reject("duplicate_submission", ErrDuplicateSubmission)
	case errors.Is(err, ErrVotingClosed):
		return nil, s.reject("voting_closed", ErrVotingClosed)
	case errors.Is(err, ErrSubmissionLimitReached):
		return nil, s.reject("submission_limit", ErrSubmissionLimitReached)
	case err != nil:
		return nil, fmt.Errorf("submitting album: %w", err)
	}

	metrics.SubmissionsTotal.Inc()
	s.logger.Info().
		Str("album_id", album.ID.String()).
		Str("cycle_id", cycle.ID.String()).
		Str("external_id", externalID).
		Str("submitter", sub.Submitter.String()).
		Msg("album submitted")
	return album, nil
}

// votingCycle resolves the target cycle, applies any due transition and
// requires it to still be voting.
func (s *Service) votingCycle(ctx context.Context, cycleID uuid.UUID) (*db.Cycle, error) {
	var cycle *db.Cycle
	if cycleID == uuid.Nil {
		cur, err := s.cycles.GetCurrentWithCountdown(ctx)
		if err != nil {
			return nil, err
		}
		cycle = cur.Cycle
	} else {
		c, err := s.cycles.Refresh(ctx, cycleID)
		if err != nil {
			return nil, err
		}
		cycle = c
	}
	if cycle.Phase != db.PhaseVoting {
		return nil, s.reject("voting_closed", ErrVotingClosed)
	}
	return cycle, nil
}

// SubmissionsWithVoteCounts lists a cycle's albums with vote counts, most
// votes first. uuid.Nil lists the current cycle.
func (s *Service) SubmissionsWithVoteCounts(ctx context.Context, cycleID uuid.UUID) ([]db.AlbumTally, error) {
	if cycleID == uuid.Nil {
		cur, err := s.cycles.GetCurrentWithCountdown(ctx)
		if err != nil {
			return nil, err
		}
		cycleID = cur.Cycle.ID
	}
	tallies, err := s.store.SubmissionsWithVoteCounts(ctx, cycleID)
	if err != nil {
		return nil, fmt.Errorf("listing submissions: %w", err)
	}
	return tallies, nil
}

// CountSubmissions counts an identity's submissions in a cycle.
func (s *Service) CountSubmissions(ctx context.Context, cycleID uuid.UUID, submitter identity.Identity) (int, error) {
	n, err := s.store.CountSubmissions(ctx, cycleID, submitter)
	if err != nil {
		return 0, fmt.Errorf("counting submissions: %w", err)
	}
	return n, nil
}

// Album returns one album with its vote count.
func (s *Service) Album(ctx context.Context, id uuid.UUID) (*db.AlbumTally, error) {
	a, err := s.store.GetAlbumTally(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return nil, ErrAlbumNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading album: %w", err)
	}
	return a, nil
}
