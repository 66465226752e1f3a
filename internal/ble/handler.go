package ble

import (
	"errors"
	"log/slog"

	"cloudpico-envnode/internal/metrics"
	"cloudpico-envnode/internal/snapshot"
	"cloudpico-envnode/internal/utils"
)

// ErrInvalid is returned by Read when the snapshot does not fit the
// caller's buffer (-EINVAL).
const ErrInvalid = -22

// Handler is what the BLE stack calls into. OnConnect and OnDisconnect are
// observational only. Read copies the current snapshot into buf and returns
// the number of bytes written or a negative error code; it never blocks on
// sensor hardware.
type Handler interface {
	OnConnect(id string, status uint8)
	OnDisconnect(id string, reason uint8)
	Read(buf []byte) int
}

// Source is the published snapshot.
type Source interface {
	CopyInto(buf []byte, maxLen int) (int, error)
	Changed() <-chan struct{}
}

// NodeHandler serves the node's snapshot to peers.
type NodeHandler struct {
	src     Source
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewNodeHandler(src Source, logger *slog.Logger, m *metrics.Metrics) *NodeHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &NodeHandler{src: src, logger: logger, metrics: m}
}

func (h *NodeHandler) OnConnect(id string, status uint8) {
	if status != 0 {
		h.logger.Warn("ble: connection failed", "peer", id, "status", status)
		return
	}
	h.metrics.PeerConnected()
	h.logger.Info("ble: connected", "peer", id)
}

func (h *NodeHandler) OnDisconnect(id string, reason uint8) {
	h.metrics.PeerDisconnected()
	h.logger.Info("ble: disconnected", "peer", id, "reason", reason)
}

func (h *NodeHandler) Read(buf []byte) int {
	n, err := h.src.CopyInto(buf, len(buf))
	if errors.Is(err, snapshot.ErrOverflow) {
		h.metrics.BLERead(metrics.ReadOverflow)
		h.logger.Error("ble: snapshot too large for attribute", "capacity", len(buf))
		return ErrInvalid
	}
	if err != nil {
		h.metrics.BLERead(metrics.ReadFailed)
		h.logger.Error("ble: read failed", "error", err)
		return ErrInvalid
	}
	h.metrics.BLERead(metrics.ReadOK)
	h.logger.Debug("ble: snapshot read", "len", n, "data", utils.HexBytes(buf[:n], ' '))
	return n
}
