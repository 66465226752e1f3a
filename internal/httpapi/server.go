package httpapi

import (
	"log/slog"
	"net/http"
	"time"
)

// NewServer wraps mux for the ops listener. A nil logger uses slog.Default.
func NewServer(addr string, mux *http.ServeMux, logger *slog.Logger) *http.Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &http.Server{
		Addr:              addr,
		Handler:           withRequestLog(logger, mux),
		ReadHeaderTimeout: 5 * time.Second,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}
}
