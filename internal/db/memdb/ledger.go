package memdb

import (
	"context"
	"fmt"
	"slices"

	"github.com/google/uuid"

	"github.com/justestif/playgroup/internal/db"
	"github.com/justestif/playgroup/internal/identity"
)

// identityConstraint picks the partial unique index that guards an identity kind.
func identityConstraint(id identity.Identity, fidName, userName string) string {
	if id.Kind() == identity.KindFID {
		return fidName
	}
	return userName
}

func (q queries) hasVoted(albumID uuid.UUID, voter identity.Identity) bool {
	return slices.ContainsFunc(q.st().votes, func(v db.Vote) bool {
		return v.AlbumID == albumID && v.Voter.Equal(voter)
	})
}

func (q queries) InsertVote(ctx context.Context, v *db.Vote) error {
	defer q.acquire()()
	if q.hasVoted(v.AlbumID, v.Voter) {
		name := identityConstraint(v.Voter, db.ConstraintVoteFID, db.ConstraintVoteUser)
		return fmt.Errorf("inserting vote: %w", &db.ConstraintError{Constraint: name})
	}
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	v.CreatedAt = q.stamp()
	q.st().votes = append(q.st().votes, *v)
	return nil
}

func (q queries) HasVoted(ctx context.Context, albumID uuid.UUID, voter identity.Identity) (bool, error) {
	defer q.acquire()()
	return q.hasVoted(albumID, voter), nil
}

func (q queries) VotedAlbumIDs(ctx context.Context, cycleID uuid.UUID, voter identity.Identity) ([]uuid.UUID, error) {
	defer q.acquire()()
	var ids []uuid.UUID
	for _, v := range q.st().votes {
		if !v.Voter.Equal(voter) {
			continue
		}
		if i := q.albumIndex(v.AlbumID); i >= 0 && q.st().albums[i].CycleID == cycleID {
			ids = append(ids, v.AlbumID)
		}
	}
	return ids, nil
}

func (q queries) hasReviewed(albumID uuid.UUID, reviewer identity.Identity) bool {
	return slices.ContainsFunc(q.st().reviews, func(r db.Review) bool {
		return r.AlbumID == albumID && r.Reviewer.Equal(reviewer)
	})
}

func (q queries) InsertReview(ctx context.Context, r *db.Review) error {
	defer q.acquire()()
	if q.hasReviewed(r.AlbumID, r.Reviewer) {
		name := identityConstraint(r.Reviewer, db.ConstraintReviewFID, db.ConstraintReviewUser)
		return fmt.Errorf("inserting review: %w", &db.ConstraintError{Constraint: name})
	}
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	r.CreatedAt = q.stamp()
	q.st().reviews = append(q.st().reviews, *r)
	return nil
}

func (q queries) HasReviewed(ctx context.Context, albumID uuid.UUID, reviewer identity.Identity) (bool, error) {
	defer q.acquire()()
	return q.hasReviewed(albumID, reviewer), nil
}

func (q queries) ReviewsForAlbum(ctx context.Context, albumID uuid.UUID) ([]db.Review, error) {
	defer q.acquire()()
	var out []db.Review
	for _, r := range q.st().reviews {
		if r.AlbumID == albumID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (q queries) AllRatings(ctx context.Context) ([]db.Rating, error) {
	defer q.acquire()()
	out := make([]db.Rating, 0, len(q.st().reviews))
	for _, r := range q.st().reviews {
		out = append(out, db.Rating{Reviewer: r.Reviewer, AlbumID: r.AlbumID, Rating: r.Rating})
	}
	return out, nil
}

func (q queries) ProfileCounts(ctx context.Context, member identity.Identity) (*db.ProfileCounts, error) {
	defer q.acquire()()
	var pc db.ProfileCounts
	for _, a := range q.st().albums {
		if a.Submitter.Equal(member) {
			pc.Submissions++
			if a.Status == db.AlbumSelected {
				pc.Wins++
			}
		}
	}
	for _, v := range q.st().votes {
		if v.Voter.Equal(member) {
			pc.VotesCast++
		}
	}
	for _, r := range q.st().reviews {
		if r.Reviewer.Equal(member) {
			pc.ReviewsWritten++
			pc.RatingSum += r.Rating
		}
	}
	return &pc, nil
}

func (q queries) TopSubmitters(ctx context.Context, limit int) ([]db.SubmitterStanding, error) {
	defer q.acquire()()
	var standings []db.SubmitterStanding
	for _, a := range q.st().albums {
		i := slices.IndexFunc(standings, func(s db.SubmitterStanding) bool { return s.Submitter.Equal(a.Submitter) })
		if i < 0 {
			standings = append(standings, db.SubmitterStanding{Submitter: a.Submitter, Username: a.SubmitterUsername})
			i = len(standings) - 1
		}
		standings[i].Submissions++
		if a.Status == db.AlbumSelected {
			standings[i].Wins++
		}
	}
	slices.SortStableFunc(standings, func(a, b db.SubmitterStanding) int {
		if a.Wins != b.Wins {
			return b.Wins - a.Wins
		}
		return b.Submissions - a.Submissions
	})
	return page(standings, limit, 0), nil
}
