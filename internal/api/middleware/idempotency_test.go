package middleware

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

// memoryRedis implements the commands the middleware uses.
type memoryRedis struct {
	redis.Cmdable
	mu   sync.Mutex
	data map[string]string
}

func newMemoryRedis() *memoryRedis {
	return &memoryRedis{data: map[string]string{}}
}

func (m *memoryRedis) SetNX(_ context.Context, key string, value interface{}, _ time.Duration) *redis.BoolCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	m.data[key] = fmt.Sprint(value)
	return redis.NewBoolResult(true, nil)
}

func (m *memoryRedis) Set(_ context.Context, key string, value interface{}, _ time.Duration) *redis.StatusCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := value.([]byte); ok {
		m.data[key] = string(b)
	} else {
		m.data[key] = fmt.Sprint(value)
	}
	return redis.NewStatusResult("OK", nil)
}

func (m *memoryRedis) Get(_ context.Context, key string) *redis.StringCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *memoryRedis) Del(_ context.Context, keys ...string) *redis.IntCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}

func keyedPost(user, key string) *http.Request {
	r := httptest.NewRequest(http.MethodPost, "/shipments", nil)
	r.Header.Set("X-User-ID", user)
	r.Header.Set("Idempotency-Key", key)
	return r
}

func TestIdempotencyPassesThroughWithoutKeyOrRedis(t *testing.T) {
	calls := 0
	handler := Idempotency(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusCreated)
	}))

	for _, req := range []*http.Request{
		httptest.NewRequest(http.MethodGet, "/shipments/s1", nil),
		httptest.NewRequest(http.MethodPost, "/shipments", nil),
		func() *http.Request {
			r := httptest.NewRequest(http.MethodPost, "/shipments", nil)
			r.Header.Set("Idempotency-Key", "k1")
			return r
		}(),
	} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusCreated, rec.Code)
	}
	require.Equal(t, 3, calls)
}

func TestRecorderCapturesResponse(t *testing.T) {
	rec := &recorder{ResponseWriter: httptest.NewRecorder(), status: http.StatusOK}
	rec.WriteHeader(http.StatusAccepted)
	_, err := rec.Write([]byte(`{"ok":true}`))
	require.NoError(t, err)

	require.Equal(t, http.StatusAccepted, rec.status)
	require.Equal(t, `{"ok":true}`, rec.body.String())
}

func TestIdempotencyReplaysPerCaller(t *testing.T) {
	calls := 0
	handler := Idempotency(newMemoryRedis())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusCreated)
		_, _ = fmt.Fprintf(w, `{"user_id":%q,"n":%d}`, r.Header.Get("X-User-ID"), calls)
	}))

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, keyedPost("alice", "k1"))
	require.Equal(t, http.StatusCreated, first.Code)
	require.Empty(t, first.Header().Get("X-Idempotency-Hit"))

	again := httptest.NewRecorder()
	handler.ServeHTTP(again, keyedPost("alice", "k1"))
	require.Equal(t, http.StatusCreated, again.Code)
	require.Equal(t, "true", again.Header().Get("X-Idempotency-Hit"))
	require.JSONEq(t, `{"user_id":"alice","n":1}`, again.Body.String())

	other := httptest.NewRecorder()
	handler.ServeHTTP(other, keyedPost("bob", "k1"))
	require.Equal(t, http.StatusCreated, other.Code)
	require.Empty(t, other.Header().Get("X-Idempotency-Hit"))
	require.JSONEq(t, `{"user_id":"bob","n":2}`, other.Body.String())

	require.Equal(t, 2, calls)
}

func TestIdempotencyForgetsFailedRequests(t *testing.T) {
	status := http.StatusBadRequest
	calls := 0
	handler := Idempotency(newMemoryRedis())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(status)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, keyedPost("alice", "k1"))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	status = http.StatusCreated
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, keyedPost("alice", "k1"))
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Equal(t, 2, calls)
}
