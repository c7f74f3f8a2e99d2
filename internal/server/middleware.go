package server

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/mumumio1/wtarget/internal/log"
)

const headerRequestID = "X-Request-ID"

// unmatchedRoute labels requests that no route pattern claimed
const unmatchedRoute = "unmatched"

// requestIDMiddleware propagates a caller supplied UUID request ID or
// generates a new one
func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(headerRequestID)
		if _, err := uuid.Parse(requestID); err != nil {
			requestID = uuid.New().String()
		}

		ctx := context.WithValue(r.Context(), log.RequestIDKey, requestID)
		w.Header().Set(headerRequestID, requestID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// accessLogMiddleware emits exactly one line per request once the inner
// chain has returned, whichever handler ran
func (s *Server) accessLogMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := newWrappedWriter(w)

		next.ServeHTTP(ww, r)

		s.logger.WithContext(r.Context()).Info("request",
			log.String("method", r.Method),
			log.String("path", r.URL.RequestURI()),
			log.Int("status", ww.Status()),
			log.Millis("duration_ms", time.Since(start)),
		)
	})
}

// recoveryMiddleware turns a handler panic into a JSON 500
func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}

			if s.metrics != nil {
				s.metrics.RecordPanic()
			}
			s.logger.WithContext(r.Context()).Error("panic recovered",
				log.String("panic", fmt.Sprint(rec)),
				log.String("method", r.Method),
				log.String("path", r.URL.Path),
			)
			s.respondJSON(w, r, http.StatusInternalServerError, MessageResponse{
				Status:  "error",
				Message: "Internal server error",
			})
		}()

		next.ServeHTTP(w, r)
	})
}

// rateLimitMiddleware rejects clients that exceed their token bucket
func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := s.keyExtractor(r)

		if !s.limiter.Allow(key) {
			if s.metrics != nil {
				s.metrics.RecordRateLimitDrop()
			}

			s.logger.WithContext(r.Context()).Warn("rate limit exceeded",
				log.String("key", key),
				log.String("path", r.URL.Path),
			)

			retryAfter := int(math.Ceil(s.limiter.Wait(key).Seconds()))
			if retryAfter < 1 {
				retryAfter = 1
			}
			w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfter))
			s.respondJSON(w, r, http.StatusTooManyRequests, MessageResponse{
				Status:  "error",
				Message: "rate limit exceeded",
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}

// metricsMiddleware must sit directly around the mux: the mux records the
// matched pattern on the request it is handed, which is used as the route
// label.
func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		s.metrics.IncInFlight()
		defer s.metrics.DecInFlight()

		ww := newWrappedWriter(w)

		next.ServeHTTP(ww, r)

		route := r.Pattern
		if route == "" {
			route = unmatchedRoute
		}
		s.metrics.RecordRequest(r.Method, route, ww.Status(), time.Since(start), ww.bytesWritten)
	})
}
