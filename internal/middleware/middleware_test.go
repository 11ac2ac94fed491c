package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/roundtable/internal/ratelimit"
	"github.com/capitalize-ai/roundtable/pkg/logger"
)

const secret = "test-secret"

func echoUser() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(GetUserID(r.Context())))
	})
}

func TestAuth(t *testing.T) {
	token, err := IssueToken(secret, "alice", "Alice", time.Hour)
	require.NoError(t, err)
	expired, err := IssueToken(secret, "alice", "", -time.Minute)
	require.NoError(t, err)
	forged, err := IssueToken("other-secret", "alice", "", time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		status int
		body   string
	}{
		{"valid", "Bearer " + token, http.StatusOK, "alice"},
		{"missing", "", http.StatusUnauthorized, ""},
		{"wrong scheme", "Basic " + token, http.StatusUnauthorized, ""},
		{"expired", "Bearer " + expired, http.StatusUnauthorized, ""},
		{"wrong secret", "Bearer " + forged, http.StatusUnauthorized, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()

			Auth(secret)(echoUser()).ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			if tt.body != "" {
				assert.Equal(t, tt.body, rec.Body.String())
			}
		})
	}
}

func TestOptionalAuth(t *testing.T) {
	token, err := IssueToken(secret, "bob", "", time.Hour)
	require.NoError(t, err)
	h := OptionalAuth(secret)(echoUser())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws?token="+token, nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "bob", rec.Body.String())

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws?token=garbage", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLoggingSetsCorrelationID(t *testing.T) {
	token, err := IssueToken(secret, "carol", "", time.Hour)
	require.NoError(t, err)

	var seen string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetCorrelationID(r.Context())
		w.WriteHeader(http.StatusTeapot)
	})
	h := Logging(logger.NewNop())(Auth(secret)(inner))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-Correlation-ID", "corr-1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, "corr-1", seen)
	assert.Equal(t, "corr-1", rec.Header().Get("X-Correlation-ID"))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, rec.Header().Get("X-Correlation-ID"))
}

func TestSlidingWindowMiddleware(t *testing.T) {
	limiter := ratelimit.NewSlidingWindow(2, time.Minute)
	h := SlidingWindow(limiter, "test")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))

	do := func(addr string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusAccepted, do("10.0.0.1:1000").Code)
	assert.Equal(t, http.StatusAccepted, do("10.0.0.1:1001").Code)

	rec := do("10.0.0.1:1002")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))

	var body struct {
		Error      string `json:"error"`
		RetryAfter int    `json:"retry_after"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "rate limit exceeded", body.Error)
	assert.GreaterOrEqual(t, body.RetryAfter, 1)
	assert.LessOrEqual(t, body.RetryAfter, 60)

	assert.Equal(t, http.StatusAccepted, do("10.0.0.2:1000").Code, "other clients have their own window")
}

func TestRequireIDs(t *testing.T) {
	r := chi.NewRouter()
	r.With(RequireIDs("id")).Get("/things/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/things/not-a-uuid", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/things/0190b9a4-7c8e-7d2a-9f3b-3c2d1e0f4a5b", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestClientKey(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.7:5555"
	assert.Equal(t, "ip:192.0.2.7", ClientKey(req))

	token, err := IssueToken(secret, "dave", "", time.Hour)
	require.NoError(t, err)
	claims, err := ParseToken(secret, token)
	require.NoError(t, err)
	req = req.WithContext(withClaims(req.Context(), claims))
	assert.Equal(t, "user:dave", ClientKey(req))
}
