package ratelimit

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter is the interface for rate limiting
type Limiter interface {
	Allow(key string) bool
	Wait(key string) time.Duration
	Stop()
}

// idleTTL is how long a key may go unused before its limiter is dropped
const idleTTL = 5 * time.Minute

// keyedLimiter keeps one token bucket per client key
type keyedLimiter struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	clients map[string]*client

	cleanupTicker *time.Ticker
	done          chan struct{}
	stopOnce      sync.Once
}

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewTokenBucket creates a per-key token bucket limiter
func NewTokenBucket(requestsPerSecond int, burst int) Limiter {
	kl := &keyedLimiter{
		limit:         rate.Limit(requestsPerSecond),
		burst:         burst,
		clients:       make(map[string]*client),
		cleanupTicker: time.NewTicker(time.Minute),
		done:          make(chan struct{}),
	}

	go kl.cleanup()

	return kl
}

func (kl *keyedLimiter) get(key string) *rate.Limiter {
	kl.mu.Lock()
	defer kl.mu.Unlock()

	c, ok := kl.clients[key]
	if !ok {
		c = &client{limiter: rate.NewLimiter(kl.limit, kl.burst)}
		kl.clients[key] = c
	}
	c.lastSeen = time.Now()
	return c.limiter
}

// Allow takes a token for key if one is available
func (kl *keyedLimiter) Allow(key string) bool {
	return kl.get(key).Allow()
}

// Wait returns how long until key has a token again
func (kl *keyedLimiter) Wait(key string) time.Duration {
	kl.mu.Lock()
	c, ok := kl.clients[key]
	kl.mu.Unlock()
	if !ok {
		return 0
	}

	tokens := c.limiter.Tokens()
	if tokens >= 1 {
		return 0
	}
	return time.Duration((1 - tokens) / float64(kl.limit) * float64(time.Second))
}

func (kl *keyedLimiter) cleanup() {
	for {
		select {
		case <-kl.cleanupTicker.C:
			kl.mu.Lock()
			now := time.Now()
			for key, c := range kl.clients {
				if now.Sub(c.lastSeen) > idleTTL {
					delete(kl.clients, key)
				}
			}
			kl.mu.Unlock()
		case <-kl.done:
			kl.cleanupTicker.Stop()
			return
		}
	}
}

// Stop ends the cleanup goroutine
func (kl *keyedLimiter) Stop() {
	kl.stopOnce.Do(func() { close(kl.done) })
}

// KeyExtractor extracts a rate limit key from a request
type KeyExtractor func(*http.Request) string

// IPKeyExtractor keys on the client IP, honouring X-Forwarded-For and
// X-Real-IP as set by a fronting proxy
func IPKeyExtractor(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// APIKeyExtractor keys on an API key header, falling back to the client IP
func APIKeyExtractor(headerName string) KeyExtractor {
	return func(r *http.Request) string {
		key := r.Header.Get(headerName)
		if key == "" {
			return IPKeyExtractor(r)
		}
		return "apikey:" + key
	}
}
