package publisher

import (
	"sync"
	"sync/atomic"

	"cloudpico-envnode/internal/snapshot"
)

// Publisher holds the latest complete snapshot. The acquisition cycle is the
// only writer; readers may run on any goroutine at any time.
//
// The visible snapshot is an immutable value behind an atomic pointer.
// Publish swaps in a new value, so a reader observes either the previous
// cycle or the new one, never a mix.
type Publisher struct {
	layout snapshot.Layout
	cur    atomic.Pointer[snapshot.Snapshot]
	count  atomic.Uint64

	mu      sync.Mutex
	changed chan struct{}
}

// New returns a publisher holding a zero snapshot for layout.
func New(layout snapshot.Layout) *Publisher {
	p := &Publisher{
		layout:  layout,
		changed: make(chan struct{}),
	}
	p.cur.Store(&snapshot.Snapshot{Layout: layout})
	return p
}

func (p *Publisher) Layout() snapshot.Layout { return p.layout }

// MaxSize is the buffer size a reader needs for CopyInto to succeed.
func (p *Publisher) MaxSize() int { return p.layout.Size() }

// Publish makes s the visible snapshot. s is copied; the caller may reuse it.
func (p *Publisher) Publish(s snapshot.Snapshot) {
	s.Layout = p.layout
	p.cur.Store(&s)
	p.count.Add(1)

	p.mu.Lock()
	close(p.changed)
	p.changed = make(chan struct{})
	p.mu.Unlock()
}

// Current returns a copy of the visible snapshot.
func (p *Publisher) Current() snapshot.Snapshot {
	return *p.cur.Load()
}

// Count is the number of completed publications since boot.
func (p *Publisher) Count() uint64 {
	return p.count.Load()
}

// Changed returns a channel that is closed by the next Publish.
func (p *Publisher) Changed() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.changed
}

// CopyInto encodes the visible snapshot into buf, using at most maxLen bytes
// of it. It returns snapshot.ErrOverflow and copies nothing if the encoding
// does not fit.
func (p *Publisher) CopyInto(buf []byte, maxLen int) (int, error) {
	if maxLen < len(buf) {
		buf = buf[:max(maxLen, 0)]
	}
	s := p.cur.Load()
	return s.MarshalTo(buf)
}
