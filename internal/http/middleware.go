package http

import (
	"context"
	"net/http"
	"time"

	"github.com/fjod/go_cart/storefront/internal/store"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const SessionCookieName = "sid"

type ctxKey int

const storeKey ctxKey = iota

// Sessions hands out the Store that belongs to a browser session.
type Sessions interface {
	// Lookup returns the Store of a session the server issued; unknown ids are refused.
	Lookup(ctx context.Context, sessionID string) (*store.Store, bool)
	Create(ctx context.Context) (string, *store.Store)
}

type CookieOptions struct {
	MaxAge time.Duration
	Secure bool
}

// SessionMiddleware resolves the sid cookie to a Store and puts it in the
// request context. A missing cookie, or one naming a session the server does
// not know, gets a fresh session and cookie.
func SessionMiddleware(sessions Sessions, opts CookieOptions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var st *store.Store
			if c, err := r.Cookie(SessionCookieName); err == nil {
				if _, err := uuid.Parse(c.Value); err == nil {
					st, _ = sessions.Lookup(r.Context(), c.Value)
				}
			}
			if st == nil {
				var sid string
				sid, st = sessions.Create(r.Context())
				http.SetCookie(w, &http.Cookie{
					Name:     SessionCookieName,
					Value:    sid,
					Path:     "/",
					MaxAge:   int(opts.MaxAge.Seconds()),
					HttpOnly: true,
					Secure:   opts.Secure,
					SameSite: http.SameSiteLaxMode,
				})
			}

			ctx := context.WithValue(r.Context(), storeKey, st)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// StoreFromContext returns the session Store set by SessionMiddleware.
func StoreFromContext(ctx context.Context) (*store.Store, bool) {
	st, ok := ctx.Value(storeKey).(*store.Store)
	return st, ok && st != nil
}

// sessionStore fetches the request's Store, answering 500 when the middleware is missing.
func sessionStore(w http.ResponseWriter, r *http.Request) (*store.Store, bool) {
	st, ok := StoreFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusInternalServerError, "internal_error", "no session")
	}
	return st, ok
}

// RequestLogger logs one line per request through logrus.
func RequestLogger(log *logrus.Entry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)

			entry := log.WithContext(r.Context()).WithFields(logrus.Fields{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      ww.Status(),
				"bytes":       ww.BytesWritten(),
				"duration_ms": time.Since(start).Milliseconds(),
				"request_id":  middleware.GetReqID(r.Context()),
			})
			if ww.Status() >= http.StatusInternalServerError {
				entry.Warn("request failed")
				return
			}
			entry.Info("request completed")
		})
	}
}
