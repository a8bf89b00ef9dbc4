package web

import (
	"time"

	"github.com/google/uuid"

	"github.com/justestif/playgroup/internal/aggregate"
	"github.com/justestif/playgroup/internal/cycles"
	"github.com/justestif/playgroup/internal/db"
	"github.com/justestif/playgroup/internal/identity"
	"github.com/justestif/playgroup/internal/ledger"
)

// CycleView is the JSON form of a cycle.
type CycleView struct {
	ID           uuid.UUID  `json:"id"`
	WeekNumber   int        `json:"weekNumber"`
	Year         int        `json:"year"`
	Phase        db.Phase   `json:"phase"`
	StartDate    time.Time  `json:"startDate"`
	EndDate      time.Time  `json:"endDate"`
	VotingEndsAt time.Time  `json:"votingEndsAt"`
	WinnerID     *uuid.UUID `json:"winnerId"`
}

func newCycleView(c *db.Cycle) CycleView {
	return CycleView{
		ID:           c.ID,
		WeekNumber:   c.WeekNumber,
		Year:         c.Year,
		Phase:        c.Phase,
		StartDate:    c.StartDate,
		EndDate:      c.EndDate,
		VotingEndsAt: c.VotingEndsAt,
		WinnerID:     c.WinnerID,
	}
}

// CurrentCycleView is the current cycle and the time left in its phase.
type CurrentCycleView struct {
	Cycle     CycleView        `json:"cycle"`
	Countdown cycles.Countdown `json:"countdown"`
}

// AlbumView is the JSON form of an album.
type AlbumView struct {
	ID                  uuid.UUID         `json:"id"`
	ExternalID          string            `json:"externalId"`
	CycleID             uuid.UUID         `json:"cycleId"`
	Title               string            `json:"title"`
	Artist              string            `json:"artist"`
	CoverURL            *string           `json:"coverUrl"`
	AlbumURL            *string           `json:"albumUrl"`
	ReleaseDate         *string           `json:"releaseDate"`
	SubmittedBy         identity.Identity `json:"submittedBy"`
	SubmitterUsername   string            `json:"submitterUsername"`
	Status              db.AlbumStatus    `json:"status"`
	AvgRating           *float64          `json:"avgRating"`
	TotalReviews        int               `json:"totalReviews"`
	MostLovedTrack      *string           `json:"mostLovedTrack"`
	MostLovedTrackVotes int               `json:"mostLovedTrackVotes"`
	VoteCount           *int              `json:"voteCount,omitempty"`
	HasVoted            *bool             `json:"hasVoted,omitempty"`
	CreatedAt           time.Time         `json:"createdAt"`
}

func newAlbumView(a *db.Album) AlbumView {
	return AlbumView{
		ID:                  a.ID,
		ExternalID:          a.ExternalID,
		CycleID:             a.CycleID,
		Title:               a.Title,
		Artist:              a.Artist,
		CoverURL:            a.CoverURL,
		AlbumURL:            a.AlbumURL,
		ReleaseDate:         a.ReleaseDate,
		SubmittedBy:         a.Submitter,
		SubmitterUsername:   a.SubmitterUsername,
		Status:              a.Status,
		AvgRating:           a.AvgRating,
		TotalReviews:        a.TotalReviews,
		MostLovedTrack:      a.MostLovedTrack,
		MostLovedTrackVotes: a.MostLovedTrackVotes,
		CreatedAt:           a.CreatedAt,
	}
}

func newTallyView(t *db.AlbumTally) AlbumView {
	v := newAlbumView(&t.Album)
	n := t.VoteCount
	v.VoteCount = &n
	return v
}

// ReviewView is the JSON form of a review.
type ReviewView struct {
	ID               uuid.UUID         `json:"id"`
	AlbumID          uuid.UUID         `json:"albumId"`
	Reviewer         identity.Identity `json:"reviewer"`
	ReviewerUsername string            `json:"reviewerUsername"`
	ReviewerPfp      *string           `json:"reviewerPfp"`
	Rating           int               `json:"rating"`
	ReviewText       string            `json:"reviewText"`
	FavoriteTrack    *string           `json:"favoriteTrack"`
	HasListened      bool              `json:"hasListened"`
	CreatedAt        time.Time         `json:"createdAt"`
}

func newReviewView(r *db.Review) ReviewView {
	return ReviewView{
		ID:               r.ID,
		AlbumID:          r.AlbumID,
		Reviewer:         r.Reviewer,
		ReviewerUsername: r.ReviewerUsername,
		ReviewerPfp:      r.ReviewerPfp,
		Rating:           r.Rating,
		ReviewText:       r.ReviewText,
		FavoriteTrack:    r.FavoriteTrack,
		HasListened:      r.HasListened,
		CreatedAt:        r.CreatedAt,
	}
}

// StatsView is an album's derived review stats.
type StatsView struct {
	AvgRating           *float64 `json:"avgRating"`
	TotalReviews        int      `json:"totalReviews"`
	MostLovedTrack      *string  `json:"mostLovedTrack"`
	MostLovedTrackVotes int      `json:"mostLovedTrackVotes"`
}

// ReviewResultView is a stored review plus the stats it produced.
type ReviewResultView struct {
	Review ReviewView `json:"review"`
	Stats  StatsView  `json:"stats"`
}

func newReviewResultView(res *ledger.ReviewResult) ReviewResultView {
	return ReviewResultView{
		Review: newReviewView(&res.Review),
		Stats: StatsView{
			AvgRating:           res.Stats.AvgRating,
			TotalReviews:        res.Stats.TotalReviews,
			MostLovedTrack:      res.Stats.MostLovedTrack,
			MostLovedTrackVotes: res.Stats.MostLovedTrackVotes,
		},
	}
}

// VoteView is the JSON form of a vote.
type VoteView struct {
	ID        uuid.UUID         `json:"id"`
	AlbumID   uuid.UUID         `json:"albumId"`
	Voter     identity.Identity `json:"voter"`
	CreatedAt time.Time         `json:"createdAt"`
}

// ProfileView is the JSON form of a member profile.
type ProfileView struct {
	Identity       identity.Identity `json:"identity"`
	Submissions    int               `json:"submissions"`
	Wins           int               `json:"wins"`
	VotesCast      int               `json:"votesCast"`
	ReviewsWritten int               `json:"reviewsWritten"`
	AvgRatingGiven *float64          `json:"avgRatingGiven"`
}

func newProfileView(p *aggregate.Profile) ProfileView {
	return ProfileView{
		Identity:       p.Identity,
		Submissions:    p.Submissions,
		Wins:           p.Wins,
		VotesCast:      p.VotesCast,
		ReviewsWritten: p.ReviewsWritten,
		AvgRatingGiven: p.AvgRatingGiven,
	}
}

// StandingView is one leaderboard row.
type StandingView struct {
	Submitter   identity.Identity `json:"submitter"`
	Username    string            `json:"username"`
	Wins        int               `json:"wins"`
	Submissions int               `json:"submissions"`
}

// LeaderboardView is the JSON form of the leaderboard.
type LeaderboardView struct {
	Submitters []StandingView `json:"submitters"`
	TopRated   []AlbumView    `json:"topRated"`
}

func newLeaderboardView(lb *aggregate.Leaderboard) LeaderboardView {
	v := LeaderboardView{
		Submitters: make([]StandingView, 0, len(lb.Submitters)),
		TopRated:   make([]AlbumView, 0, len(lb.TopRated)),
	}
	for _, s := range lb.Submitters {
		v.Submitters = append(v.Submitters, StandingView{
			Submitter:   s.Submitter,
			Username:    s.Username,
			Wins:        s.Wins,
			Submissions: s.Submissions,
		})
	}
	for i := range lb.TopRated {
		v.TopRated = append(v.TopRated, newAlbumView(&lb.TopRated[i]))
	}
	return v
}

// ArchiveEntryView is one finished cycle and its winner.
type ArchiveEntryView struct {
	Cycle  CycleView  `json:"cycle"`
	Winner *AlbumView `json:"winner"`
}

func newArchiveView(entries []db.ArchiveEntry) []ArchiveEntryView {
	out := make([]ArchiveEntryView, 0, len(entries))
	for i := range entries {
		e := &entries[i]
		v := ArchiveEntryView{Cycle: newCycleView(&e.Cycle)}
		if e.Winner != nil {
			w := newAlbumView(e.Winner)
			v.Winner = &w
		}
		out = append(out, v)
	}
	return out
}

// TasteClusterView is the JSON form of a taste cluster.
type TasteClusterView struct {
	Members   []identity.Identity `json:"members"`
	Favorites []uuid.UUID         `json:"favorites"`
}

func newTasteClustersView(clusters []aggregate.TasteCluster) []TasteClusterView {
	out := make([]TasteClusterView, 0, len(clusters))
	for _, c := range clusters {
		v := TasteClusterView{Members: c.Members, Favorites: c.Favorites}
		if v.Favorites == nil {
			v.Favorites = []uuid.UUID{}
		}
		out = append(out, v)
	}
	return out
}
