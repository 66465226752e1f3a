package httpapi

import (
	"log/slog"
	"net/http"
	"time"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

// withRequestLog logs each ops request at debug, server faults at warn.
func withRequestLog(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sr := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sr, r)

		level := slog.LevelDebug
		if sr.status >= http.StatusInternalServerError && sr.status != http.StatusServiceUnavailable {
			level = slog.LevelWarn
		}
		logger.Log(r.Context(), level, "http: request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", sr.status,
			"took", time.Since(start),
		)
	})
}
