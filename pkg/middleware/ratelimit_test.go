package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() logrus.FieldLogger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	return logger
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimiterDisabled(t *testing.T) {
	rl := NewRateLimiter(testLogger(), RateLimitConfig{Enabled: false})
	defer rl.Close()

	handler := rl.Middleware("run")(okHandler())

	for i := 0; i < 50; i++ {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:1234"

		handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestRateLimiterBlocksAfterBurst(t *testing.T) {
	rl := NewRateLimiter(testLogger(), RateLimitConfig{
		Enabled: true,
		Default: RateLimitRule{
			RequestsPerSecond: 1,
			BurstSize:         3,
			BlockDuration:     time.Minute,
		},
	})
	defer rl.Close()

	handler := rl.Middleware("run")(okHandler())

	blocked := 0

	for i := 0; i < 10; i++ {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:1234"

		handler.ServeHTTP(rec, req)

		if rec.Code == http.StatusTooManyRequests {
			blocked++
			assert.NotEmpty(t, rec.Header().Get(HeaderRetryAfter))
		}
	}

	assert.Greater(t, blocked, 0, "expected some requests past the burst to be blocked")
}

func TestRateLimiterSeparatesClients(t *testing.T) {
	rl := NewRateLimiter(testLogger(), RateLimitConfig{
		Enabled: true,
		Default: RateLimitRule{
			RequestsPerSecond: 1,
			BurstSize:         1,
		},
	})
	defer rl.Close()

	handler := rl.Middleware("")(okHandler())

	first := httptest.NewRecorder()
	reqA := httptest.NewRequest(http.MethodGet, "/", nil)
	reqA.RemoteAddr = "10.0.0.1:1234"
	handler.ServeHTTP(first, reqA)
	require.Equal(t, http.StatusOK, first.Code)

	// The second client has its own bucket and is not affected by the
	// first client exhausting theirs.
	second := httptest.NewRecorder()
	reqB := httptest.NewRequest(http.MethodGet, "/", nil)
	reqB.RemoteAddr = "10.0.0.2:1234"
	handler.ServeHTTP(second, reqB)
	require.Equal(t, http.StatusOK, second.Code)
}

func TestRateLimiterPerRouteRule(t *testing.T) {
	rl := NewRateLimiter(testLogger(), RateLimitConfig{
		Enabled: true,
		Default: RateLimitRule{RequestsPerSecond: 100, BurstSize: 100},
		PerRoute: map[string]RateLimitRule{
			"run": {RequestsPerSecond: 1, BurstSize: 1},
		},
	})
	defer rl.Close()

	assert.Equal(t, float64(1), rl.getRule("run").GetRequestsPerSecond())
	assert.Equal(t, float64(100), rl.getRule("list").GetRequestsPerSecond())
	assert.Equal(t, float64(100), rl.getRule("").GetRequestsPerSecond())
}

func TestClientIPTrustedProxy(t *testing.T) {
	rl := NewRateLimiter(testLogger(), RateLimitConfig{
		Enabled:        true,
		TrustedProxies: []string{"10.0.0.0/8", "192.168.1.5"},
	})
	defer rl.Close()

	tests := []struct {
		name       string
		remoteAddr string
		xff        string
		want       string
	}{
		{
			name:       "trusted proxy honors forwarded header",
			remoteAddr: "10.0.0.1:1234",
			xff:        "203.0.113.7, 10.0.0.1",
			want:       "203.0.113.7",
		},
		{
			name:       "exact match proxy honors forwarded header",
			remoteAddr: "192.168.1.5:1234",
			xff:        "203.0.113.9",
			want:       "203.0.113.9",
		},
		{
			name:       "untrusted source ignores forwarded header",
			remoteAddr: "198.51.100.1:1234",
			xff:        "203.0.113.7",
			want:       "198.51.100.1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr

			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}

			assert.Equal(t, tt.want, rl.getClientIP(req))
		})
	}
}

func TestRateLimitRuleDefaults(t *testing.T) {
	var rule RateLimitRule

	assert.Equal(t, float64(5), rule.GetRequestsPerSecond())
	assert.Equal(t, 10, rule.GetBurstSize())
	assert.Equal(t, time.Minute, rule.GetBlockDuration())
}
