package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTokenBucket(t *testing.T) {
	limiter := NewTokenBucket(10, 20)
	defer limiter.Stop()

	for i := 0; i < 20; i++ {
		assert.True(t, limiter.Allow("test-key"), "request %d should be allowed", i)
	}

	assert.False(t, limiter.Allow("test-key"), "burst exhausted")

	// one token refills every 100ms
	time.Sleep(150 * time.Millisecond)

	assert.True(t, limiter.Allow("test-key"), "token refilled")
}

func TestTokenBucketMultipleKeys(t *testing.T) {
	limiter := NewTokenBucket(5, 5)
	defer limiter.Stop()

	for i := 0; i < 5; i++ {
		limiter.Allow("key1")
	}

	assert.True(t, limiter.Allow("key2"))
	assert.False(t, limiter.Allow("key1"))
}

func TestWait(t *testing.T) {
	limiter := NewTokenBucket(10, 1)
	defer limiter.Stop()

	assert.Zero(t, limiter.Wait("unknown"))

	limiter.Allow("test-key")

	wait := limiter.Wait("test-key")
	assert.Greater(t, wait, time.Duration(0))
	assert.LessOrEqual(t, wait, 100*time.Millisecond)
}

func TestStopIsIdempotent(t *testing.T) {
	limiter := NewTokenBucket(1, 1)
	limiter.Stop()
	assert.NotPanics(t, limiter.Stop)
}

func TestIPKeyExtractor(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		xff        string
		xri        string
		want       string
	}{
		{
			name:       "X-Forwarded-For single",
			remoteAddr: "192.168.1.1:1234",
			xff:        "203.0.113.1",
			want:       "203.0.113.1",
		},
		{
			name:       "X-Forwarded-For multiple",
			remoteAddr: "192.168.1.1:1234",
			xff:        "203.0.113.1, 198.51.100.1",
			want:       "203.0.113.1",
		},
		{
			name:       "X-Real-IP",
			remoteAddr: "192.168.1.1:1234",
			xri:        "203.0.113.1",
			want:       "203.0.113.1",
		},
		{
			name:       "RemoteAddr fallback",
			remoteAddr: "192.168.1.1:1234",
			want:       "192.168.1.1",
		},
		{
			name:       "RemoteAddr without port",
			remoteAddr: "192.168.1.1",
			want:       "192.168.1.1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := &http.Request{
				RemoteAddr: tt.remoteAddr,
				Header:     http.Header{},
			}
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xri != "" {
				req.Header.Set("X-Real-IP", tt.xri)
			}

			assert.Equal(t, tt.want, IPKeyExtractor(req))
		})
	}
}

func TestAPIKeyExtractor(t *testing.T) {
	extractor := APIKeyExtractor("X-API-Key")

	req := httptest.NewRequest(http.MethodGet, "/api/items", nil)
	req.Header.Set("X-API-Key", "secret123")
	req.RemoteAddr = "192.168.1.1:1234"
	assert.Equal(t, "apikey:secret123", extractor(req))

	req2 := httptest.NewRequest(http.MethodGet, "/api/items", nil)
	req2.RemoteAddr = "192.168.1.1:1234"
	assert.Equal(t, "192.168.1.1", extractor(req2))
}

func BenchmarkTokenBucketAllow(b *testing.B) {
	limiter := NewTokenBucket(1000, 2000)
	defer limiter.Stop()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		limiter.Allow("test-key")
	}
}
