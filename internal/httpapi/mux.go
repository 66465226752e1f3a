package httpapi

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func NewMux(status PublishStatus, gatherer prometheus.Gatherer) *http.ServeMux {
	mux := http.NewServeMux()
	registerHealthcheck(mux, status)
	mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return mux
}
