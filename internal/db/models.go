package db

import (
	"time"

	"github.com/google/uuid"

	"github.com/justestif/playgroup/internal/identity"
)

// Phase is the stage of a weekly cycle.
type Phase string

const (
	PhaseVoting    Phase = "voting"
	PhaseListening Phase = "listening"
)

// AlbumStatus is the outcome of an album within its cycle.
type AlbumStatus string

const (
	AlbumVoting   AlbumStatus = "voting"
	AlbumSelected AlbumStatus = "selected"
	AlbumLost     AlbumStatus = "lost"
)

// Cycle is one weekly voting/listening period.
type Cycle struct {
	ID           uuid.UUID
	WeekNumber   int
	Year         int
	Phase        Phase
	StartDate    time.Time
	EndDate      time.Time
	VotingEndsAt time.Time
	WinnerID     *uuid.UUID // nullable - set on transition
	CreatedAt    time.Time
}

// AlbumMetadata is the catalog data stored as handed over by the metadata provider.
type AlbumMetadata struct {
	Title       string
	Artist      string
	CoverURL    *string // nullable
	AlbumURL    *string // nullable
	ReleaseDate *string // nullable
}

// AlbumStats are the review-derived fields denormalized onto an album.
type AlbumStats struct {
	AvgRating           *float64 // nullable - nil when there are no reviews
	TotalReviews        int
	MostLovedTrack      *string // nullable
	MostLovedTrackVotes int
}

// Album is a submission competing in a cycle.
type Album struct {
	ID                uuid.UUID
	ExternalID        string
	CycleID           uuid.UUID
	Submitter         identity.Identity
	SubmitterUsername string
	Status            AlbumStatus
	CreatedAt         time.Time
	AlbumMetadata
	AlbumStats
}

// AlbumTally is an album with its vote count.
type AlbumTally struct {
	Album
	VoteCount int
}

// Vote is one member's support for one album.
type Vote struct {
	ID        uuid.UUID
	AlbumID   uuid.UUID
	Voter     identity.Identity
	CreatedAt time.Time
}

// Review is one member's critique of a selected album.
type Review struct {
	ID               uuid.UUID
	AlbumID          uuid.UUID
	Reviewer         identity.Identity
	ReviewerUsername string
	ReviewerPfp      *string // nullable
	Rating           int
	ReviewText       string
	FavoriteTrack    *string // nullable
	HasListened      bool
	CreatedAt        time.Time
}

// User unifies a Farcaster account and an external auth account behind one UUID.
type User struct {
	ID            uuid.UUID
	FID           *int64  // nullable
	AuthID        *string // nullable
	WalletAddress *string // nullable, lower-cased
	Username      string
	PfpURL        *string // nullable
	CreatedAt     time.Time
}

// Rating is one (reviewer, album, rating) triple used for taste analysis.
type Rating struct {
	Reviewer identity.Identity
	AlbumID  uuid.UUID
	Rating   int
}

// ProfileCounts are the raw per-member activity counts.
type ProfileCounts struct {
	Submissions    int
	Wins           int
	VotesCast      int
	ReviewsWritten int
	RatingSum      int
}

// SubmitterStanding is one leaderboard row.
type SubmitterStanding struct {
	Submitter   identity.Identity
	Username    string
	Wins        int
	Submissions int
}

// ArchiveEntry is a finished cycle and its winner, if any.
type ArchiveEntry struct {
	Cycle  Cycle
	Winner *Album // nullable
}
