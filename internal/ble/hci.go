package ble

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	goble "github.com/go-ble/ble"
	"github.com/go-ble/ble/linux"
)

// ATT "Invalid Attribute Value Length".
const attErrInvalidAttrValueLen = goble.ATTError(0x0D)

type HCIOptions struct {
	LocalName string
	// MaxAttrLen caps the bytes served per read below the ATT response
	// capacity. Zero means no cap.
	MaxAttrLen int
}

// HCI serves the snapshot over a raw HCI socket. Every ATT read is answered
// by calling Handler.Read with the response capacity of that request,
// limited to MaxAttrLen.
type HCI struct {
	opts    HCIOptions
	handler Handler
	logger  *slog.Logger
	peers   *peerTracker
	svc     *goble.Service
}

func NewHCI(opts HCIOptions, h Handler, logger *slog.Logger) *HCI {
	if logger == nil {
		logger = slog.Default()
	}
	return &HCI{
		opts:    opts,
		handler: h,
		logger:  logger,
		peers:   newPeerTracker(h),
	}
}

// Start opens the HCI device and registers the GATT service.
func (h *HCI) Start() error {
	h.logger.Info("ble: opening hci device")
	d, err := linux.NewDevice()
	if err != nil {
		return fmt.Errorf("ble hci device: %w", err)
	}
	goble.SetDefaultDevice(d)

	h.svc = goble.NewService(goble.UUID16(environmentalSensingUUID))
	h.svc.NewCharacteristic(goble.MustParse(snapshotCharUUID)).
		HandleRead(goble.ReadHandlerFunc(h.serveRead))

	if err := goble.AddService(h.svc); err != nil {
		return fmt.Errorf("ble add service: %w", err)
	}
	return nil
}

// Serve advertises until ctx is done.
func (h *HCI) Serve(ctx context.Context) error {
	defer func() {
		if err := goble.Stop(); err != nil {
			h.logger.Warn("ble: hci stop failed", "error", err)
		}
	}()

	h.logger.Info("ble: advertising", "name", h.opts.LocalName, "service", h.svc.UUID.String())
	err := goble.AdvertiseNameAndServices(ctx, h.opts.LocalName, h.svc.UUID)

	// If ctx canceled, treat as clean shutdown.
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		h.logger.Info("ble: advertising stopped")
		return nil
	}
	if err != nil {
		return fmt.Errorf("ble advertise: %w", err)
	}
	return nil
}

func (h *HCI) serveRead(req goble.Request, rsp goble.ResponseWriter) {
	conn := req.Conn()
	h.peers.track(conn.RemoteAddr().String(), conn.Disconnected())

	buf := make([]byte, readCapacity(rsp.Cap(), h.opts.MaxAttrLen))
	n := h.handler.Read(buf)
	if n < 0 {
		rsp.SetStatus(attErrInvalidAttrValueLen)
		return
	}
	if _, err := rsp.Write(buf[:n]); err != nil {
		h.logger.Warn("ble: write response failed", "error", err)
	}
}

func readCapacity(respCap, maxAttrLen int) int {
	if maxAttrLen > 0 && maxAttrLen < respCap {
		return maxAttrLen
	}
	return respCap
}

// peerTracker turns first contact from a connection into OnConnect and its
// disconnection into OnDisconnect. The HCI socket does not expose the
// disconnect reason, so it is reported as 0.
type peerTracker struct {
	handler Handler

	mu    sync.Mutex
	peers map[string]struct{}
}

func newPeerTracker(h Handler) *peerTracker {
	return &peerTracker{handler: h, peers: make(map[string]struct{})}
}

func (p *peerTracker) track(id string, disconnected <-chan struct{}) {
	p.mu.Lock()
	if _, ok := p.peers[id]; ok {
		p.mu.Unlock()
		return
	}
	p.peers[id] = struct{}{}
	p.mu.Unlock()

	p.handler.OnConnect(id, 0)
	go func() {
		<-disconnected
		p.mu.Lock()
		delete(p.peers, id)
		p.mu.Unlock()
		p.handler.OnDisconnect(id, 0)
	}()
}

func (p *peerTracker) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.peers)
}
