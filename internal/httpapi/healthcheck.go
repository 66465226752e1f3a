package httpapi

import (
	"net/http"

	"cloudpico-envnode/internal/snapshot"
	"cloudpico-envnode/internal/utils"
)

// PublishStatus is the part of the publisher the health check reports on.
type PublishStatus interface {
	Count() uint64
	Layout() snapshot.Layout
}

type healthchecker struct {
	status PublishStatus
}

// handleHealthz reports ready once the first cycle has been published.
// Until then peers only see the zeroed boot snapshot, so it answers 503.
func (h *healthchecker) handleHealthz(w http.ResponseWriter, r *http.Request) {
	published := h.status.Count()
	code, state := http.StatusOK, "ok"
	if published == 0 {
		code, state = http.StatusServiceUnavailable, "starting"
	}
	utils.WriteJSON(w, code, map[string]any{
		"status":    state,
		"published": published,
		"layout":    h.status.Layout().String(),
	})
}

func registerHealthcheck(mux *http.ServeMux, status PublishStatus) {
	h := &healthchecker{status: status}
	mux.HandleFunc("GET /healthz", h.handleHealthz)
}
