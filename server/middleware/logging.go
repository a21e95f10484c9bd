package middleware

import (
	"net/http"
	"slices"
	"time"

	"github.com/kbukum/tsengine/logger"
)

// slowRequest marks requests worth a closer look in the logs.
const slowRequest = 500 * time.Millisecond

// RequestLogger logs each finished request: server errors at error level,
// client errors at warn and the rest at debug. Requests to /health and to
// any of skip are not logged.
func RequestLogger(log *logger.Logger, skip ...string) Middleware {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	skip = append(skip, "/health")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if slices.Contains(skip, r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			sw := newStatusWriter(w)
			next.ServeHTTP(sw, r)
			elapsed := time.Since(start)

			fields := logger.Fields(
				"method", r.Method,
				"path", r.URL.Path,
				"status", sw.status,
				"duration_ms", elapsed.Milliseconds(),
			)
			if id := RequestIDFromContext(r.Context()); id != "" {
				fields[logger.FieldRequestID] = id
			}
			if elapsed > slowRequest {
				fields["slow"] = true
			}

			switch {
			case sw.status >= http.StatusInternalServerError:
				log.Error("request failed", fields)
			case sw.status >= http.StatusBadRequest:
				log.Warn("request rejected", fields)
			default:
				log.Debug("request served", fields)
			}
		})
	}
}
