// Package indicator drives the busy LED: high while an acquisition cycle
// runs, low otherwise.
package indicator

import (
	"fmt"
	"log/slog"

	"periph.io/x/conn/v3/gpio"
)

type Output interface {
	Out(l gpio.Level) error
}

type Busy struct {
	pin    Output
	logger *slog.Logger
}

func New(pin Output, logger *slog.Logger) *Busy {
	if logger == nil {
		logger = slog.Default()
	}
	return &Busy{pin: pin, logger: logger}
}

// Configure drives the pin to its idle level. A failure here is fatal to
// startup.
func (b *Busy) Configure() error {
	if err := b.pin.Out(gpio.Low); err != nil {
		return fmt.Errorf("configure led pin: %w", err)
	}
	return nil
}

func (b *Busy) On()  { b.set(gpio.High) }
func (b *Busy) Off() { b.set(gpio.Low) }

func (b *Busy) set(l gpio.Level) {
	if err := b.pin.Out(l); err != nil {
		b.logger.Warn("led: set level failed", "level", l, "error", err)
	}
}
