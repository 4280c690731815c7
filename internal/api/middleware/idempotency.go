package middleware

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	lockTTL      = 10 * time.Second
	responseTTL  = 24 * time.Hour
	pendingValue = "PROCESSING"
)

// storedResponse is what a completed request leaves behind for replays.
type storedResponse struct {
	Status int             `json:"status"`
	Body   json.RawMessage `json:"body"`
}

// Idempotency replays the stored response of a state-changing request
// that carried the same Idempotency-Key header. Only 2xx responses are
// stored; a failed request may be retried with the same key.
func Idempotency(redisClient redis.Cmdable) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Only apply to state-changing methods
			if r.Method != http.MethodPost && r.Method != http.MethodPut && r.Method != http.MethodPatch {
				next.ServeHTTP(w, r)
				return
			}

			key := r.Header.Get("Idempotency-Key")
			if key == "" || redisClient == nil {
				next.ServeHTTP(w, r)
				return
			}

			// Keys are scoped to the caller; two users may pick the same key.
			idemKey := fmt.Sprintf("idempotency:%s:%s:%s", r.Header.Get("X-User-ID"), r.URL.Path, key)
			ctx := r.Context()

			acquired, err := redisClient.SetNX(ctx, idemKey, pendingValue, lockTTL).Result()
			if err != nil {
				// Redis is down: serve without the guarantee.
				slog.Warn("idempotency lock failed", "key", key, "error", err)
				next.ServeHTTP(w, r)
				return
			}

			if !acquired {
				replay(w, r, redisClient, idemKey)
				return
			}

			rec := &recorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			if rec.status < 200 || rec.status >= 300 {
				redisClient.Del(ctx, idemKey)
				return
			}

			body := bytes.TrimSpace(rec.body.Bytes())
			if len(body) == 0 {
				body = []byte("null")
			}
			stored, err := json.Marshal(storedResponse{Status: rec.status, Body: json.RawMessage(body)})
			if err != nil {
				redisClient.Del(ctx, idemKey)
				return
			}
			if err := redisClient.Set(ctx, idemKey, stored, responseTTL).Err(); err != nil {
				slog.Warn("idempotency store failed", "key", key, "error", err)
			}
		})
	}
}

func replay(w http.ResponseWriter, r *http.Request, redisClient redis.Cmdable, idemKey string) {
	val, err := redisClient.Get(r.Context(), idemKey).Bytes()
	if errors.Is(err, redis.Nil) {
		// Expired between SETNX and GET; the client may simply retry.
		writeConflict(w, "request in progress, retry later")
		return
	}
	if err != nil || string(val) == pendingValue {
		writeConflict(w, "concurrent request")
		return
	}

	var stored storedResponse
	if err := json.Unmarshal(val, &stored); err != nil {
		writeConflict(w, "request already processed")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Idempotency-Hit", "true")
	w.WriteHeader(stored.Status)
	_, _ = w.Write(stored.Body)
}

func writeConflict(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusConflict)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

type recorder struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (r *recorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *recorder) Write(b []byte) (int, error) {
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}
