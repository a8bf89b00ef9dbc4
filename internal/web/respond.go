package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/justestif/playgroup/internal/aggregate"
	"github.com/justestif/playgroup/internal/cycles"
	"github.com/justestif/playgroup/internal/identity"
	"github.com/justestif/playgroup/internal/ledger"
	"github.com/justestif/playgroup/internal/metadata"
	"github.com/justestif/playgroup/internal/users"
)

const maxBodyBytes = 64 << 10

// errBadRequest marks malformed input caught by the handlers themselves.
var errBadRequest = errors.New("bad request")

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// errorStatuses maps domain errors to an HTTP status and a stable code.
// The first match wins.
var errorStatuses = []struct {
	err    error
	status int
	code   string
}{
	{identity.ErrAuthenticationRequired, http.StatusUnauthorized, "authentication_required"},
	{identity.ErrInvalidIdentity, http.StatusBadRequest, "invalid_identity"},
	{users.ErrInvalidLogin, http.StatusBadRequest, "invalid_login"},
	{errBadRequest, http.StatusBadRequest, "bad_request"},

	{ledger.ErrInvalidSubmission, http.StatusBadRequest, "invalid_submission"},
	{ledger.ErrDuplicateSubmission, http.StatusConflict, "duplicate_submission"},
	{ledger.ErrPastWinnerRejected, http.StatusConflict, "past_winner"},
	{ledger.ErrSubmissionLimitReached, http.StatusConflict, "submission_limit_reached"},
	{ledger.ErrVotingClosed, http.StatusConflict, "voting_closed"},
	{ledger.ErrAlreadyVoted, http.StatusConflict, "already_voted"},
	{ledger.ErrAlbumNotVotable, http.StatusConflict, "album_not_votable"},
	{ledger.ErrAlreadyReviewed, http.StatusConflict, "already_reviewed"},
	{ledger.ErrAlbumNotReviewable, http.StatusConflict, "album_not_reviewable"},
	{ledger.ErrAlbumNotFound, http.StatusNotFound, "album_not_found"},
	{ledger.ErrInvalidRating, http.StatusBadRequest, "invalid_rating"},
	{ledger.ErrReviewTooShort, http.StatusBadRequest, "review_too_short"},

	{cycles.ErrCycleNotFound, http.StatusNotFound, "cycle_not_found"},
	{cycles.ErrAlreadyTransitioned, http.StatusConflict, "already_transitioned"},
	{cycles.ErrInvalidDeadline, http.StatusBadRequest, "invalid_deadline"},

	{aggregate.ErrNotEnoughReviewers, http.StatusConflict, "not_enough_reviewers"},

	{metadata.ErrProviderDisabled, http.StatusServiceUnavailable, "metadata_unavailable"},
	{metadata.ErrAlbumNotFound, http.StatusNotFound, "album_not_found"},
}

// writeJSON writes v as a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps err to a status and error code. Unmapped errors are
// logged and reported as internal_error without detail.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	for _, e := range errorStatuses {
		if errors.Is(err, e.err) {
			writeJSON(w, e.status, ErrorResponse{Error: e.code, Message: err.Error()})
			return
		}
	}

	zerolog.Ctx(r.Context()).Error().
		Err(err).
		Str("request_id", middleware.GetReqID(r.Context())).
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Msg("request failed")
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{
		Error:   "internal_error",
		Message: http.StatusText(http.StatusInternalServerError),
	})
}

// decodeJSON reads a bounded JSON body into v, rejecting unknown fields.
func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: invalid JSON body: %v", errBadRequest, err)
	}
	return nil
}
