package web

import (
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/justestif/playgroup/internal/aggregate"
	"github.com/justestif/playgroup/internal/cycles"
	"github.com/justestif/playgroup/internal/identity"
	"github.com/justestif/playgroup/internal/ledger"
	"github.com/justestif/playgroup/internal/metadata"
)

// Handlers contains the HTTP handlers for the API.
type Handlers struct {
	cycles    *cycles.Service
	ledger    *ledger.Service
	aggregate *aggregate.Service
	metadata  metadata.Provider
}

// NewHandlers creates a new Handlers instance. A nil provider disables
// metadata lookups.
func NewHandlers(cycleSvc *cycles.Service, ledgerSvc *ledger.Service, aggSvc *aggregate.Service, provider metadata.Provider) *Handlers {
	if provider == nil {
		provider = metadata.Disabled{}
	}
	return &Handlers{
		cycles:    cycleSvc,
		ledger:    ledgerSvc,
		aggregate: aggSvc,
		metadata:  provider,
	}
}

// Health handles GET /healthz.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// CurrentCycle handles GET /api/cycle/current.
func (h *Handlers) CurrentCycle(w http.ResponseWriter, r *http.Request) {
	cur, err := h.cycles.GetCurrentWithCountdown(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, CurrentCycleView{
		Cycle:     newCycleView(cur.Cycle),
		Countdown: cur.Countdown,
	})
}

// CurrentSubmissions handles GET /api/cycle/current/submissions. When the
// caller is identified each album carries hasVoted and the response carries
// the caller's own submission count.
func (h *Handlers) CurrentSubmissions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cur, err := h.cycles.GetCurrentWithCountdown(ctx)
	if err != nil {
		writeError(w, r, err)
		return
	}
	tallies, err := h.ledger.SubmissionsWithVoteCounts(ctx, cur.Cycle.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var (
		voted []uuid.UUID
		mine  *int
	)
	caller := callerFrom(ctx)
	if !caller.Identity.IsZero() {
		if voted, err = h.ledger.VotedAlbumIDs(ctx, cur.Cycle.ID, caller.Identity); err != nil {
			writeError(w, r, err)
			return
		}
		n, err := h.ledger.CountSubmissions(ctx, cur.Cycle.ID, caller.Identity)
		if err != nil {
			writeError(w, r, err)
			return
		}
		mine = &n
	}

	albums := make([]AlbumView, 0, len(tallies))
	for i := range tallies {
		v := newTallyView(&tallies[i])
		if !caller.Identity.IsZero() {
			has := slices.Contains(voted, tallies[i].ID)
			v.HasVoted = &has
		}
		albums = append(albums, v)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"cycle":         newCycleView(cur.Cycle),
		"submissions":   albums,
		"mySubmissions": mine,
	})
}

// SubmitRequest is the body of POST /api/submissions. When title is omitted
// the album is looked up at the metadata provider.
type SubmitRequest struct {
	ExternalID  string  `json:"externalId"`
	Title       string  `json:"title"`
	Artist      string  `json:"artist"`
	CoverURL    *string `json:"coverUrl"`
	AlbumURL    *string `json:"albumUrl"`
	ReleaseDate *string `json:"releaseDate"`
}

// Submit handles POST /api/submissions.
func (h *Handlers) Submit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller := callerFrom(ctx)
	if caller.Identity.IsZero() {
		writeError(w, r, identity.ErrAuthenticationRequired)
		return
	}

	var req SubmitRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	sub := ledger.Submission{
		ExternalID:        req.ExternalID,
		Submitter:         caller.Identity,
		SubmitterUsername: caller.Username,
	}
	if strings.TrimSpace(req.Title) != "" {
		sub.Metadata.Title = req.Title
		sub.Metadata.Artist = req.Artist
		sub.Metadata.CoverURL = req.CoverURL
		sub.Metadata.AlbumURL = req.AlbumURL
		sub.Metadata.ReleaseDate = req.ReleaseDate
	} else if strings.TrimSpace(req.ExternalID) != "" {
		album, err := h.metadata.Lookup(ctx, req.ExternalID)
		if errors.Is(err, metadata.ErrProviderDisabled) {
			err = fmt.Errorf("%w: title is required", ledger.ErrInvalidSubmission)
		}
		if err != nil {
			writeError(w, r, err)
			return
		}
		sub.Metadata = album.Metadata()
	}

	album, err := h.ledger.Submit(ctx, sub)
	if err != nil {
		writeError(w, r, err)
		return
	}
	v := newAlbumView(album)
	one, yes := 1, true
	v.VoteCount, v.HasVoted = &one, &yes
	writeJSON(w, http.StatusCreated, v)
}

// CastVote handles POST /api/albums/{id}/votes.
func (h *Handlers) CastVote(w http.ResponseWriter, r *http.Request) {
	albumID, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	vote, err := h.ledger.CastVote(r.Context(), albumID, callerFrom(r.Context()).Identity)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, VoteView{
		ID:        vote.ID,
		AlbumID:   vote.AlbumID,
		Voter:     vote.Voter,
		CreatedAt: vote.CreatedAt,
	})
}

// Album handles GET /api/albums/{id}.
func (h *Handlers) Album(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	albumID, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	tally, err := h.ledger.Album(ctx, albumID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	v := newTallyView(tally)
	if caller := callerFrom(ctx); !caller.Identity.IsZero() {
		has, err := h.ledger.HasVoted(ctx, albumID, caller.Identity)
		if err != nil {
			writeError(w, r, err)
			return
		}
		v.HasVoted = &has
	}
	writeJSON(w, http.StatusOK, v)
}

// Reviews handles GET /api/albums/{id}/reviews.
func (h *Handlers) Reviews(w http.ResponseWriter, r *http.Request) {
	albumID, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	reviews, err := h.ledger.Reviews(r.Context(), albumID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]ReviewView, 0, len(reviews))
	for i := range reviews {
		out = append(out, newReviewView(&reviews[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

// ReviewRequest is the body of POST /api/albums/{id}/reviews.
type ReviewRequest struct {
	Rating        int     `json:"rating"`
	ReviewText    string  `json:"reviewText"`
	FavoriteTrack *string `json:"favoriteTrack"`
	HasListened   bool    `json:"hasListened"`
}

// SubmitReview handles POST /api/albums/{id}/reviews.
func (h *Handlers) SubmitReview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	albumID, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	caller := callerFrom(ctx)
	if caller.Identity.IsZero() {
		writeError(w, r, identity.ErrAuthenticationRequired)
		return
	}

	var req ReviewRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	res, err := h.ledger.SubmitReview(ctx, ledger.ReviewInput{
		AlbumID:          albumID,
		Reviewer:         caller.Identity,
		ReviewerUsername: caller.Username,
		ReviewerPfp:      caller.PfpURL,
		Rating:           req.Rating,
		Text:             req.ReviewText,
		FavoriteTrack:    req.FavoriteTrack,
		HasListened:      req.HasListened,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newReviewResultView(res))
}

// MyVotes handles GET /api/me/votes: the albums the caller voted for in
// the current cycle.
func (h *Handlers) MyVotes(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller := callerFrom(ctx)
	if caller.Identity.IsZero() {
		writeError(w, r, identity.ErrAuthenticationRequired)
		return
	}
	cur, err := h.cycles.GetCurrentWithCountdown(ctx)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ids, err := h.ledger.VotedAlbumIDs(ctx, cur.Cycle.ID, caller.Identity)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if ids == nil {
		ids = []uuid.UUID{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"cycleId":  cur.Cycle.ID,
		"albumIds": ids,
	})
}

// Profile handles GET /api/users/{identity}/profile.
func (h *Handlers) Profile(w http.ResponseWriter, r *http.Request) {
	member, err := identity.Parse(chi.URLParam(r, "identity"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	p, err := h.aggregate.Profile(r.Context(), member)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newProfileView(p))
}

// Leaderboard handles GET /api/leaderboard.
func (h *Handlers) Leaderboard(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", aggregate.DefaultLimit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	lb, err := h.aggregate.Leaderboard(r.Context(), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newLeaderboardView(lb))
}

// Archive handles GET /api/archive.
func (h *Handlers) Archive(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", aggregate.DefaultLimit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		writeError(w, r, err)
		return
	}
	entries, err := h.aggregate.Archive(r.Context(), limit, offset)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newArchiveView(entries))
}

// TasteClusters handles GET /api/taste-clusters.
func (h *Handlers) TasteClusters(w http.ResponseWriter, r *http.Request) {
	k, err := queryInt(r, "k", aggregate.DefaultTasteClusters)
	if err != nil {
		writeError(w, r, err)
		return
	}
	clusters, err := h.aggregate.TasteClusters(r.Context(), k)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newTasteClustersView(clusters))
}

// SearchAlbums handles GET /api/search/albums?q=.
func (h *Handlers) SearchAlbums(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeError(w, r, fmt.Errorf("%w: q is required", errBadRequest))
		return
	}
	limit, err := queryInt(r, "limit", 10)
	if err != nil {
		writeError(w, r, err)
		return
	}
	albums, err := h.metadata.Search(r.Context(), q, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if albums == nil {
		albums = []metadata.Album{}
	}
	writeJSON(w, http.StatusOK, albums)
}

// ForceTransition handles POST /api/admin/cycles/{id}/transition.
func (h *Handlers) ForceTransition(w http.ResponseWriter, r *http.Request) {
	cycleID, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	tr, err := h.cycles.ForceTransition(r.Context(), cycleID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	tallies := make([]AlbumView, 0, len(tr.Tallies))
	for i := range tr.Tallies {
		tallies = append(tallies, newTallyView(&tr.Tallies[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"cycleId":  tr.CycleID,
		"winnerId": tr.WinnerID,
		"tallies":  tallies,
	})
}

// DeadlineRequest is the body of POST /api/admin/cycles/{id}/voting-deadline.
type DeadlineRequest struct {
	VotingEndsAt time.Time `json:"votingEndsAt"`
}

// ExtendVoting handles POST /api/admin/cycles/{id}/voting-deadline.
func (h *Handlers) ExtendVoting(w http.ResponseWriter, r *http.Request) {
	cycleID, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req DeadlineRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	c, err := h.cycles.ExtendVoting(r.Context(), cycleID, req.VotingEndsAt)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newCycleView(c))
}

func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid %s", errBadRequest, name)
	}
	return id, nil
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", errBadRequest, name)
	}
	return n, nil
}
