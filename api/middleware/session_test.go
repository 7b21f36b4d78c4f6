package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/angelmondragon/dukalink-backend/pkg/auth/session"
)

func sessionProbe(captured *string) http.Handler {
	return Session(SessionOptions{}, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*captured = SessionKeyFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))
}

func TestSessionUsesHeaderKey(t *testing.T) {
	var got string
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(session.HeaderName, "0123456789abcdef0123")
	resp := httptest.NewRecorder()
	sessionProbe(&got).ServeHTTP(resp, req)

	if got != "0123456789abcdef0123" {
		t.Fatalf("expected header key, got %q", got)
	}
	if len(resp.Result().Cookies()) != 0 {
		t.Fatalf("expected no cookie for an existing session")
	}
}

func TestSessionFallsBackToCookie(t *testing.T) {
	var got string
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: session.CookieName, Value: "cookie-session-key-0001"})
	sessionProbe(&got).ServeHTTP(httptest.NewRecorder(), req)

	if got != "cookie-session-key-0001" {
		t.Fatalf("expected cookie key, got %q", got)
	}
}

func TestSessionMintsKeyWhenMissingOrInvalid(t *testing.T) {
	for _, header := range []string{"", "short", "bad key with spaces!!"} {
		var got string
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			req.Header.Set(session.HeaderName, header)
		}
		resp := httptest.NewRecorder()
		sessionProbe(&got).ServeHTTP(resp, req)

		if !session.ValidKey(got) || got == header {
			t.Fatalf("expected a minted key for %q, got %q", header, got)
		}
		if resp.Header().Get(session.HeaderName) != got {
			t.Fatalf("expected minted key echoed in header")
		}
		cookies := resp.Result().Cookies()
		if len(cookies) != 1 || cookies[0].Value != got || !cookies[0].HttpOnly {
			t.Fatalf("expected http-only session cookie, got %+v", cookies)
		}
	}
}
