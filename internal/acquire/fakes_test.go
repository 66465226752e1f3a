package acquire

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"cloudpico-envnode/internal/sensor"
)

var errBus = errors.New("i2c: nack")

type fakeHT struct {
	temperature, humidity float32
	err                   error
	calls                 int
}

func (f *fakeHT) Measure() (float32, float32, error) {
	f.calls++
	if f.err != nil {
		return 0, 0, f.err
	}
	return f.temperature, f.humidity, nil
}

func (f *fakeHT) SettlingDelay() time.Duration { return 31 * time.Millisecond }

type fakePressure struct {
	pressure, temperature float32
	err                   error
	calls                 int
}

func (f *fakePressure) Sense() (float32, float32, error) {
	f.calls++
	if f.err != nil {
		return 0, 0, f.err
	}
	return f.pressure, f.temperature, nil
}

type compensation struct{ temperature, humidity float32 }

type fakeAQ struct {
	co2, tvoc    uint16
	err          error
	initErr      error
	inits        int
	measures     int
	compensation []compensation
	order        *[]string
}

func (f *fakeAQ) InitAirQuality() error {
	f.inits++
	return f.initErr
}

func (f *fakeAQ) BaselineDelay() time.Duration { return 10 * time.Millisecond }

func (f *fakeAQ) Measure() (uint16, uint16, error) {
	f.measures++
	if f.order != nil {
		*f.order = append(*f.order, "measure")
	}
	if f.err != nil {
		return 0, 0, f.err
	}
	return f.co2, f.tvoc, nil
}

func (f *fakeAQ) Compensate(temperature, humidity float32) error {
	if f.order != nil {
		*f.order = append(*f.order, "compensate")
	}
	f.compensation = append(f.compensation, compensation{temperature, humidity})
	return nil
}

type fakeBringup struct {
	ht  *fakeHT
	p   *fakePressure
	aq  *fakeAQ
	err map[string]error

	opened []string
}

func (b *fakeBringup) OpenHumidityTemperature() (sensor.HumidityTemperature, error) {
	b.opened = append(b.opened, "ht")
	if err := b.err["ht"]; err != nil {
		return nil, err
	}
	return b.ht, nil
}

func (b *fakeBringup) OpenPressure() (sensor.Pressure, error) {
	b.opened = append(b.opened, "pressure")
	if err := b.err["pressure"]; err != nil {
		return nil, err
	}
	return b.p, nil
}

func (b *fakeBringup) OpenAirQuality() (sensor.AirQuality, error) {
	b.opened = append(b.opened, "aq")
	if err := b.err["aq"]; err != nil {
		return nil, err
	}
	return b.aq, nil
}

type fakeBattery struct {
	results []batteryResult
	calls   int
}

type batteryResult struct {
	mv  int32
	err error
}

func (b *fakeBattery) Measure() (int32, error) {
	r := b.results[b.calls%len(b.results)]
	b.calls++
	return r.mv, r.err
}

type fakeBusy struct {
	on, off int
	active  bool
}

func (b *fakeBusy) On() {
	b.on++
	b.active = true
}

func (b *fakeBusy) Off() {
	b.off++
	b.active = false
}

// captureHandler records log records for assertion in tests.
type captureHandler struct {
	mu      sync.Mutex
	records []slog.Record
}

func (h *captureHandler) Enabled(_ context.Context, _ slog.Level) bool { return true }

func (h *captureHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, r)
	return nil
}

func (h *captureHandler) WithAttrs(_ []slog.Attr) slog.Handler { return h }

func (h *captureHandler) WithGroup(_ string) slog.Handler { return h }

func (h *captureHandler) count(level slog.Level, msg string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, r := range h.records {
		if r.Level == level && r.Message == msg {
			n++
		}
	}
	return n
}
