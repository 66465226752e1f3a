// Package metrics exposes operational counters of the node. Readings are
// not exported here; they only leave the node over BLE.
//
// All methods are safe on a nil *Metrics so components can run without a
// registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Sources for transient read errors.
const (
	SourceBattery    = "battery"
	SourceHumidity   = "humidity_temperature"
	SourcePressure   = "pressure"
	SourceAirQuality = "air_quality"
	SourceCompensate = "compensation"
)

// Results for BLE read requests.
const (
	ReadOK       = "ok"
	ReadOverflow = "overflow"
	ReadFailed   = "error"
)

type Metrics struct {
	cycles     prometheus.Counter
	coalesced  prometheus.Counter
	readErrors *prometheus.CounterVec
	bleReads   *prometheus.CounterVec
	peers      prometheus.Gauge
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "envnode_cycles_total",
			Help: "Completed acquisition cycles.",
		}),
		coalesced: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "envnode_triggers_coalesced_total",
			Help: "Timer triggers dropped because a cycle was already pending.",
		}),
		readErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "envnode_read_errors_total",
			Help: "Transient read errors by source.",
		}, []string{"source"}),
		bleReads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "envnode_ble_reads_total",
			Help: "Snapshot read requests from BLE peers by result.",
		}, []string{"result"}),
		peers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "envnode_ble_connected_peers",
			Help: "Currently connected BLE peers.",
		}),
	}
	reg.MustRegister(m.cycles, m.coalesced, m.readErrors, m.bleReads, m.peers)
	return m
}

func (m *Metrics) CycleCompleted() {
	if m == nil {
		return
	}
	m.cycles.Inc()
}

func (m *Metrics) TriggerCoalesced() {
	if m == nil {
		return
	}
	m.coalesced.Inc()
}

func (m *Metrics) ReadError(source string) {
	if m == nil {
		return
	}
	m.readErrors.WithLabelValues(source).Inc()
}

// BLERead records a read request under one of the Read* results.
func (m *Metrics) BLERead(result string) {
	if m == nil {
		return
	}
	m.bleReads.WithLabelValues(result).Inc()
}

func (m *Metrics) PeerConnected() {
	if m == nil {
		return
	}
	m.peers.Inc()
}

func (m *Metrics) PeerDisconnected() {
	if m == nil {
		return
	}
	m.peers.Dec()
}
