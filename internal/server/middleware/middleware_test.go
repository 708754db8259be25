package middleware

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusTeapot)
})

func TestRequireAPIKey(t *testing.T) {
	h := RequireAPIKey("k")(okHandler)

	cases := []struct {
		name   string
		header string
		value  string
		code   int
	}{
		{"missing", "", "", http.StatusUnauthorized},
		{"bearer", "Authorization", "Bearer k", http.StatusTeapot},
		{"bearer lowercase scheme", "Authorization", "bearer k", http.StatusTeapot},
		{"x-api-key", "X-API-Key", "k", http.StatusTeapot},
		{"wrong", "X-API-Key", "nope", http.StatusUnauthorized},
		{"basic scheme", "Authorization", "Basic k", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", nil)
			if tc.header != "" {
				req.Header.Set(tc.header, tc.value)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			require.Equal(t, tc.code, rec.Code)
		})
	}

	rec := httptest.NewRecorder()
	RequireAPIKey("")(okHandler).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	require.Equal(t, http.StatusTeapot, rec.Code)
}

func TestCORS(t *testing.T) {
	h := CORS([]string{"https://app.example"})(okHandler)

	req := httptest.NewRequest(http.MethodOptions, "/api/lottery", nil)
	req.Header.Set("Origin", "https://app.example")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, "https://app.example", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/api/lottery", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusTeapot, rec.Code)
	require.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestClientIP(t *testing.T) {
	t.Run("headers ignored from untrusted peers", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		require.Equal(t, "192.0.2.1", ClientIP(req, nil))

		req.Header.Set("X-Real-IP", "10.0.0.2")
		req.Header.Set("X-Forwarded-For", "203.0.113.9")
		require.Equal(t, "192.0.2.1", ClientIP(req, nil))
	})

	t.Run("behind a trusted proxy", func(t *testing.T) {
		trusted, err := ParseTrustedProxies([]string{"192.0.2.0/24", "10.0.0.1"})
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Real-IP", "10.0.0.2")
		require.Equal(t, "10.0.0.2", ClientIP(req, trusted))

		// The nearest hop not run by us is the client; earlier hops are
		// whatever the client chose to send.
		req.Header.Set("X-Forwarded-For", "198.51.100.7, 203.0.113.9, 10.0.0.1")
		require.Equal(t, "203.0.113.9", ClientIP(req, trusted))

		req.Header.Set("X-Forwarded-For", "10.0.0.1")
		require.Equal(t, "10.0.0.1", ClientIP(req, trusted))
	})

	t.Run("invalid proxy", func(t *testing.T) {
		_, err := ParseTrustedProxies([]string{"not-an-ip"})
		require.Error(t, err)
		_, err = ParseTrustedProxies([]string{"10.0.0.0/99"})
		require.Error(t, err)
	})
}

type stubLimiter struct {
	allow bool
	err   error
	keys  []string
}

func (s *stubLimiter) Allow(_ context.Context, key string, _ int, _ time.Duration) (bool, error) {
	s.keys = append(s.keys, key)
	return s.allow, s.err
}

func TestRateLimit(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("denied", func(t *testing.T) {
		l := &stubLimiter{}
		rec := httptest.NewRecorder()
		RateLimit(l, "enter", 1, 30*time.Second, nil, logger)(okHandler).
			ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
		require.Equal(t, http.StatusTooManyRequests, rec.Code)
		require.Equal(t, "30", rec.Header().Get("Retry-After"))
		require.Equal(t, []string{"enter:192.0.2.1"}, l.keys)
	})

	t.Run("rotating forwarded headers keeps the key", func(t *testing.T) {
		l := &stubLimiter{allow: true}
		h := RateLimit(l, "enter", 1, time.Minute, nil, logger)(okHandler)
		for _, ip := range []string{"203.0.113.1", "203.0.113.2"} {
			req := httptest.NewRequest(http.MethodPost, "/", nil)
			req.Header.Set("X-Forwarded-For", ip)
			h.ServeHTTP(httptest.NewRecorder(), req)
		}
		require.Equal(t, []string{"enter:192.0.2.1", "enter:192.0.2.1"}, l.keys)
	})

	t.Run("fails open", func(t *testing.T) {
		l := &stubLimiter{err: errors.New("redis down")}
		rec := httptest.NewRecorder()
		RateLimit(l, "enter", 1, time.Minute, nil, logger)(okHandler).
			ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
		require.Equal(t, http.StatusTeapot, rec.Code)
	})

	t.Run("disabled", func(t *testing.T) {
		rec := httptest.NewRecorder()
		RateLimit(nil, "enter", 1, time.Minute, nil, logger)(okHandler).
			ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
		require.Equal(t, http.StatusTeapot, rec.Code)
	})
}

func TestLoggingKeepsRequestID(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc")
	rec := httptest.NewRecorder()
	Logging(logger, nil)(okHandler).ServeHTTP(rec, req)
	require.Equal(t, "abc", rec.Header().Get(RequestIDHeader))
	require.Equal(t, http.StatusTeapot, rec.Code)
}
