// Package middleware carries the HTTP middleware shared by the replay
// API: correlation IDs and structured request logging.
package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const correlationHeader = "X-Correlation-ID"

// CorrelationID ensures every request carries a correlation ID, echoed
// back on the response.
func CorrelationID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(correlationHeader)
		if id == "" {
			id = uuid.New().String()
			r.Header.Set(correlationHeader, id)
		}
		w.Header().Set(correlationHeader, id)
		next.ServeHTTP(w, r)
	})
}

// RequestLogger logs one structured line per completed request,
// escalating the level with the response status.
func RequestLogger(logger zerolog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			status := ww.Status()
			level := zerolog.InfoLevel
			switch {
			case status >= 500:
				level = zerolog.ErrorLevel
			case status >= 400:
				level = zerolog.WarnLevel
			}

			logger.WithLevel(level).
				Str("correlation_id", r.Header.Get(correlationHeader)).
				Str("method", r.Method).
				Str("url", r.URL.Path).
				Str("remote_addr", r.RemoteAddr).
				Int("status", status).
				Int("bytes", ww.BytesWritten()).
				Dur("elapsed", time.Since(start)).
				Msg("Request completed")
		})
	}
}
