package web

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/justestif/playgroup/internal/db"
	"github.com/justestif/playgroup/internal/identity"
	"github.com/justestif/playgroup/internal/users"
)

// Headers set by the upstream auth layer.
const (
	HeaderAuthID     = "X-Auth-ID"
	HeaderWallet     = "X-Wallet-Address"
	HeaderUsername   = "X-Username"
	HeaderPfpURL     = "X-Pfp-URL"
	HeaderAdminToken = "X-Admin-Token"
)

// Caller is the authenticated member behind a request.
type Caller struct {
	Identity identity.Identity
	Username string
	PfpURL   *string
}

type callerKey struct{}

// callerFrom returns the request's caller. The zero Caller means anonymous.
func callerFrom(ctx context.Context) Caller {
	c, _ := ctx.Value(callerKey{}).(Caller)
	return c
}

// requestLogger attaches a request-scoped zerolog logger and logs each
// completed request.
func requestLogger(base zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			logger := base.With().Str("request_id", middleware.GetReqID(r.Context())).Logger()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r.WithContext(logger.WithContext(r.Context())))

			logger.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Msg("request")
		})
	}
}

// identify resolves the caller from the auth headers. X-User-ID wins, then
// an external login (X-Auth-ID, optionally with X-Wallet-Address) resolved
// through the user records, then X-FID. A malformed header fails the request.
func identify(resolver *users.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c := Caller{Username: strings.TrimSpace(r.Header.Get(HeaderUsername))}
			if pfp := strings.TrimSpace(r.Header.Get(HeaderPfpURL)); pfp != "" {
				c.PfpURL = &pfp
			}

			authID := strings.TrimSpace(r.Header.Get(HeaderAuthID))
			switch {
			case r.Header.Get(identity.HeaderUserID) == "" && authID != "" && resolver != nil:
				u, err := resolver.ResolveExternal(r.Context(), users.Login{
					AuthID:   authID,
					Wallet:   r.Header.Get(HeaderWallet),
					Username: c.Username,
					PfpURL:   c.PfpURL,
				})
				if err != nil {
					writeError(w, r, err)
					return
				}
				c.Identity = users.Identity(u)
				if c.Username == "" {
					c.Username = u.Username
				}
			default:
				id, err := identity.FromRequest(r)
				if err != nil {
					writeError(w, r, err)
					return
				}
				c.Identity = id

				// A user record that also has a FID acts under it.
				if _, ok := id.UUID(); ok && resolver != nil {
					u, err := resolver.User(r.Context(), id)
					switch {
					case err == nil:
						c.Identity = users.Identity(u)
						if c.Username == "" {
							c.Username = u.Username
						}
					case !errors.Is(err, db.ErrNotFound):
						writeError(w, r, err)
						return
					}
				}
				// Record Farcaster callers so a later external login with
				// the same wallet links to them.
				if fid, ok := id.FID(); ok && resolver != nil {
					u, err := resolver.ResolveFarcaster(r.Context(), users.Farcaster{
						FID:      fid,
						Wallet:   r.Header.Get(HeaderWallet),
						Username: c.Username,
						PfpURL:   c.PfpURL,
					})
					if err != nil {
						writeError(w, r, err)
						return
					}
					if c.Username == "" {
						c.Username = u.Username
					}
				}
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), callerKey{}, c)))
		})
	}
}

// requireAdmin guards administrative routes with a shared token. With no
// token configured the routes are disabled.
func requireAdmin(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "not_found", Message: "admin routes disabled"})
				return
			}
			got := r.Header.Get(HeaderAdminToken)
			if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				writeJSON(w, http.StatusForbidden, ErrorResponse{Error: "forbidden", Message: "invalid admin token"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
