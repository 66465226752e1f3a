// Package acquire runs sensor bring-up and the periodic acquisition cycle.
package acquire

import (
	"log/slog"

	"cloudpico-envnode/internal/metrics"
	"cloudpico-envnode/internal/publisher"
	"cloudpico-envnode/internal/snapshot"
)

type BatterySampler interface {
	Measure() (int32, error)
}

type Indicator interface {
	On()
	Off()
}

type CycleOptions struct {
	Battery   BatterySampler
	Sensors   *Sensors
	Publisher *publisher.Publisher
	Busy      Indicator
	Logger    *slog.Logger
	Metrics   *metrics.Metrics
}

// Cycle is one acquisition pass: battery, sensors, publish. It is the only
// writer of the publisher and must not run concurrently with itself.
type Cycle struct {
	battery BatterySampler
	orch    *Orchestrator
	pub     *publisher.Publisher
	busy    Indicator
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewCycle(opts CycleOptions) *Cycle {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Cycle{
		battery: opts.Battery,
		orch:    NewOrchestrator(opts.Sensors, logger, opts.Metrics),
		pub:     opts.Publisher,
		busy:    opts.Busy,
		logger:  logger,
		metrics: opts.Metrics,
	}
}

// Run executes one cycle. Fields whose source failed keep the value of the
// previously published snapshot.
func (c *Cycle) Run() {
	c.busy.On()
	defer c.busy.Off()

	next := c.pub.Current()

	batteryMV, err := c.battery.Measure()
	if err != nil {
		c.logger.Warn("failed to read battery voltage", "error", err)
		c.metrics.ReadError(metrics.SourceBattery)
	} else {
		next.BatteryMillivolts = batteryMV
	}

	r := c.orch.Read()
	merge(&next, r)

	c.logAttrs(next, batteryMV, err == nil)
	c.pub.Publish(next)
	c.metrics.CycleCompleted()
}

func merge(s *snapshot.Snapshot, r Reading) {
	if r.HumidityOK {
		s.Temperature = r.Temperature
		s.Humidity = r.Humidity
	}
	if r.PressureOK {
		s.Pressure = r.Pressure
		s.PressureTemperature = r.PressureTemperature
	}
	if r.AirQualityOK {
		s.CO2 = r.CO2
		s.TVOC = r.TVOC
	}
}

func (c *Cycle) logAttrs(s snapshot.Snapshot, sampledMV int32, batteryOK bool) {
	attrs := []any{
		"temperature_c", s.Temperature,
		"humidity_pct", s.Humidity,
		"pressure_hpa", s.Pressure,
		"pressure_temp_c", s.PressureTemperature,
	}
	if s.Layout.AirQuality() {
		attrs = append(attrs, "co2_ppm", s.CO2, "tvoc_ppm", s.TVOC)
	}
	if batteryOK {
		attrs = append(attrs, "battery_mv", sampledMV)
	} else {
		attrs = append(attrs, "battery_mv_stale", s.BatteryMillivolts)
	}
	c.logger.Info("cycle complete", attrs...)
}
