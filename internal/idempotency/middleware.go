package idempotency

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/matheuspdias/managerclin/internal/http/respond"
	"github.com/matheuspdias/managerclin/internal/tenancy"
	"github.com/matheuspdias/managerclin/pkg/logging"
)

const (
	// HeaderKey is the request header clients set to make a write retryable.
	HeaderKey = "Idempotency-Key"
	// HeaderReplayed marks responses served from the store.
	HeaderReplayed = "Idempotent-Replayed"

	maxKeyLength = 255
)

// Middleware stores the first response for each (org, route, key) and
// replays it for retries. Requests without the header pass through. Server
// errors are not stored so the client may retry them.
func Middleware(store Store, ttl time.Duration, logger *logging.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = logging.Default()
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get(HeaderKey))
			if raw == "" || store == nil {
				next.ServeHTTP(w, r)
				return
			}
			if len(raw) > maxKeyLength {
				respond.Error(w, http.StatusBadRequest, "Idempotency-Key is too long")
				return
			}
			ctx := r.Context()
			orgID, _ := tenancy.OrgIDFromContext(ctx)
			key := storageKey(orgID, r.Method, r.URL.Path, raw)

			rec, err := store.Load(ctx, key)
			switch {
			case errors.Is(err, ErrInFlight):
				respond.Error(w, http.StatusConflict, "a request with this Idempotency-Key is in progress")
				return
			case err != nil:
				logger.Error("idempotency: load failed", "error", err)
				respond.Error(w, http.StatusInternalServerError, "internal error")
				return
			case rec != nil:
				replay(w, rec)
				return
			}

			reserved, err := store.Reserve(ctx, key, ttl)
			if err != nil {
				logger.Error("idempotency: reserve failed", "error", err)
				respond.Error(w, http.StatusInternalServerError, "internal error")
				return
			}
			if !reserved {
				respond.Error(w, http.StatusConflict, "a request with this Idempotency-Key is in progress")
				return
			}

			capture := &recorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(capture, r)

			// The request context may already be cancelled once the handler returns.
			storeCtx := context.WithoutCancel(ctx)
			if capture.status >= http.StatusInternalServerError {
				if err := store.Release(storeCtx, key); err != nil {
					logger.Warn("idempotency: release failed", "error", err)
				}
				return
			}
			saved := Record{
				Status:      capture.status,
				ContentType: capture.Header().Get("Content-Type"),
				Body:        capture.body.Bytes(),
			}
			if err := store.Save(storeCtx, key, saved, ttl); err != nil {
				logger.Warn("idempotency: save failed", "error", err)
			}
		})
	}
}

func storageKey(orgID, method, path, key string) string {
	return "idempotency:" + orgID + ":" + method + ":" + path + ":" + key
}

func replay(w http.ResponseWriter, rec *Record) {
	if rec.ContentType != "" {
		w.Header().Set("Content-Type", rec.ContentType)
	}
	w.Header().Set(HeaderReplayed, "true")
	w.WriteHeader(rec.Status)
	_, _ = w.Write(rec.Body)
}

type recorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
	body        bytes.Buffer
}

func (r *recorder) WriteHeader(status int) {
	if !r.wroteHeader {
		r.status = status
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(status)
}

func (r *recorder) Write(p []byte) (int, error) {
	if !r.wroteHeader {
		r.WriteHeader(http.StatusOK)
	}
	r.body.Write(p)
	return r.ResponseWriter.Write(p)
}
