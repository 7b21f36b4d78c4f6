package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/dukalink-backend/api/responses"
	pkgerrors "github.com/angelmondragon/dukalink-backend/pkg/errors"
	"github.com/angelmondragon/dukalink-backend/pkg/logger"
)

const (
	idempotencyHeader     = "Idempotency-Key"
	maxIdempotencyKeyLen  = 255
	maxIdempotentBodySize = 1 << 20
	pendingReservationTTL = 2 * time.Minute

	// CriticalIdempotencyTTL covers routes that move money or create orders.
	CriticalIdempotencyTTL = 7 * 24 * time.Hour
	defaultIdempotencyTTL  = 24 * time.Hour
)

// IdempotencyStore is the Redis surface the middleware needs.
type IdempotencyStore interface {
	IdempotencyKey(scope, id string) string
	Get(ctx context.Context, key string) (string, error)
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

type idempotencyRecord struct {
	Pending     bool   `json:"pending,omitempty"`
	Status      int    `json:"status,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Body        string `json:"body,omitempty"`
	Fingerprint string `json:"fingerprint"`
}

// Idempotent makes the wrapped route require an Idempotency-Key and replay the
// first response for repeats of the same request. The key is reserved while
// the first request runs so concurrent duplicates get 409. Responses of 5xx
// other than 502 release the key so the client can retry with it; 502 is kept
// because the payment provider may already have acted.
func Idempotent(store IdempotencyStore, ttl time.Duration, logg *logger.Logger) func(http.Handler) http.Handler {
	if ttl <= 0 {
		ttl = defaultIdempotencyTTL
	}
	return func(next http.Handler) http.Handler {
		if store == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			clientKey := strings.TrimSpace(r.Header.Get(idempotencyHeader))
			switch {
			case clientKey == "":
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header required"))
				return
			case len(clientKey) > maxIdempotencyKeyLen:
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key too long"))
				return
			}

			body, err := io.ReadAll(io.LimitReader(r.Body, maxIdempotentBodySize+1))
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request"))
				return
			}
			if len(body) > maxIdempotentBodySize {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "request body too large"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			fingerprint := requestFingerprint(r.Method, r.URL.Path, body)
			key := store.IdempotencyKey(callerScope(r), clientKey)

			pending, _ := json.Marshal(idempotencyRecord{Pending: true, Fingerprint: fingerprint})
			reserved, err := store.SetNX(ctx, key, string(pending), pendingReservationTTL)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reserve idempotency key"))
				return
			}
			if !reserved {
				replay(w, r, store, key, fingerprint, logg)
				return
			}

			capture := &responseCapture{ResponseWriter: w}
			next.ServeHTTP(capture, r)
			settle(ctx, store, key, fingerprint, capture, ttl, logg)
		})
	}
}

// settle swaps the reservation for the final response, or drops it when the
// response is retryable.
func settle(ctx context.Context, store IdempotencyStore, key, fingerprint string, capture *responseCapture, ttl time.Duration, logg *logger.Logger) {
	status := capture.statusOrOK()
	if status >= http.StatusInternalServerError && status != http.StatusBadGateway {
		if err := store.Del(ctx, key); err != nil {
			logg.Error(ctx, "release idempotency reservation", err)
		}
		return
	}

	payload, err := json.Marshal(idempotencyRecord{
		Status:      status,
		ContentType: capture.Header().Get("Content-Type"),
		Body:        base64.StdEncoding.EncodeToString(capture.body.Bytes()),
		Fingerprint: fingerprint,
	})
	if err != nil {
		logg.Error(ctx, "marshal idempotency record", err)
		return
	}
	if err := store.Set(ctx, key, string(payload), ttl); err != nil {
		logg.Error(ctx, "persist idempotency record", err)
	}
}

func replay(w http.ResponseWriter, r *http.Request, store IdempotencyStore, key, fingerprint string, logg *logger.Logger) {
	ctx := r.Context()
	stored, err := store.Get(ctx, key)
	if err != nil && !errors.Is(err, redis.Nil) {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
		return
	}

	var record idempotencyRecord
	if stored == "" {
		// Reservation expired between SETNX and GET.
		record.Pending = true
		record.Fingerprint = fingerprint
	} else if err := json.Unmarshal([]byte(stored), &record); err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode idempotency record"))
		return
	}

	switch {
	case record.Fingerprint != fingerprint:
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with different request body"))
	case record.Pending:
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "request with this idempotency key is still in progress"))
	default:
		body, err := base64.StdEncoding.DecodeString(record.Body)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode idempotency body"))
			return
		}
		if record.ContentType != "" {
			w.Header().Set("Content-Type", record.ContentType)
		}
		w.Header().Set("Idempotent-Replay", "true")
		w.WriteHeader(record.Status)
		_, _ = w.Write(body)
	}
}

// callerScope keys records per caller and route so two shoppers can reuse a
// key value.
func callerScope(r *http.Request) string {
	caller := UserIDFromContext(r.Context())
	if caller == "" {
		caller = SessionKeyFromContext(r.Context())
	}
	return caller + "|" + r.Method + "|" + strings.TrimRight(r.URL.Path, "/")
}

func requestFingerprint(method, path string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte{0})
	h.Write([]byte(strings.TrimRight(path, "/")))
	h.Write([]byte{0})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

type responseCapture struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (r *responseCapture) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseCapture) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

func (r *responseCapture) statusOrOK() int {
	if r.status == 0 {
		return http.StatusOK
	}
	return r.status
}
