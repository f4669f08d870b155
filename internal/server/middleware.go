package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

type ctxKey struct{}

// RequestID returns the id assigned to the request carrying ctx.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

// handle registers h under pattern with request ids, rate limiting, access
// logging and request metrics.
func (s *Server) handle(pattern, route string, h http.HandlerFunc) {
	s.mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		r = r.WithContext(context.WithValue(r.Context(), ctxKey{}, id))

		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		if s.allow() {
			r.Body = http.MaxBytesReader(rec, r.Body, maxBodyBytes)
			h(rec, r)
		} else {
			writeError(rec, http.StatusTooManyRequests, "rate limit exceeded")
		}

		elapsed := time.Since(start)
		s.metrics.recordHTTP(route, rec.code, elapsed)
		s.log.LogAttrs(r.Context(), levelFor(rec.code), "request",
			slog.String("request_id", id),
			slog.String("method", r.Method),
			slog.String("route", route),
			slog.Int("status", rec.code),
			slog.Duration("duration", elapsed),
		)
	})
}

func (s *Server) allow() bool {
	if s.limiter == nil {
		return true
	}
	if !s.limiter.Allow() {
		s.metrics.RateLimitRequestsTotal.WithLabelValues("throttled").Inc()
		return false
	}
	s.metrics.RateLimitRequestsTotal.WithLabelValues("allowed").Inc()
	return true
}
