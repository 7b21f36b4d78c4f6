package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/angelmondragon/dukalink-backend/api/responses"
	"github.com/angelmondragon/dukalink-backend/pkg/auth/session"
	pkgerrors "github.com/angelmondragon/dukalink-backend/pkg/errors"
	"github.com/angelmondragon/dukalink-backend/pkg/logger"
)

const sessionCookieMaxAge = 30 * 24 * time.Hour

// SessionOptions controls the shopper session cookie.
type SessionOptions struct {
	Secure bool
}

// Session resolves the shopper session key from the X-Session-Key header or
// the session cookie. A missing or malformed key is replaced with a fresh one
// that is echoed back in both places.
func Session(opts SessionOptions, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := strings.TrimSpace(r.Header.Get(session.HeaderName))
			if key == "" {
				if cookie, err := r.Cookie(session.CookieName); err == nil {
					key = strings.TrimSpace(cookie.Value)
				}
			}

			if !session.ValidKey(key) {
				minted, err := session.NewKey()
				if err != nil {
					responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mint session"))
					return
				}
				key = minted
				http.SetCookie(w, &http.Cookie{
					Name:     session.CookieName,
					Value:    key,
					Path:     "/",
					MaxAge:   int(sessionCookieMaxAge.Seconds()),
					HttpOnly: true,
					Secure:   opts.Secure,
					SameSite: http.SameSiteLaxMode,
				})
			}
			w.Header().Set(session.HeaderName, key)

			ctx := WithSessionKey(r.Context(), key)
			if logg != nil {
				ctx = logg.WithSessionKey(ctx, key)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
