package acquire

import (
	"log/slog"

	"cloudpico-envnode/internal/metrics"
)

// Reading is the raw result of one pass over the sensors, before it is
// merged into a snapshot. The *OK flags mark which groups were measured.
type Reading struct {
	Temperature float32
	Humidity    float32
	HumidityOK  bool

	Pressure            float32
	PressureTemperature float32
	PressureOK          bool

	CO2          uint16
	TVOC         uint16
	AirQualityOK bool
	Compensated  bool
}

// Orchestrator reads the sensors in fixed order. A failed step never stops
// the following ones.
type Orchestrator struct {
	sensors *Sensors
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewOrchestrator(sensors *Sensors, logger *slog.Logger, m *metrics.Metrics) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{sensors: sensors, logger: logger, metrics: m}
}

func (o *Orchestrator) Read() Reading {
	var r Reading
	var err error

	r.Temperature, r.Humidity, err = o.sensors.HumidityTemperature.Measure()
	if err != nil {
		o.logger.Warn("humidity/temperature read failed", "error", err)
		o.metrics.ReadError(metrics.SourceHumidity)
	} else {
		r.HumidityOK = true
	}

	r.Pressure, r.PressureTemperature, err = o.sensors.Pressure.Sense()
	if err != nil {
		o.logger.Warn("pressure read failed", "error", err)
		o.metrics.ReadError(metrics.SourcePressure)
	} else {
		r.PressureOK = true
	}

	aq := o.sensors.AirQuality
	if aq == nil {
		return r
	}

	r.CO2, r.TVOC, err = aq.Measure()
	if err != nil {
		o.logger.Warn("air-quality read failed", "error", err)
		o.metrics.ReadError(metrics.SourceAirQuality)
	} else {
		r.AirQualityOK = true
	}

	// Compensation only with a valid ambient reading from this cycle.
	if r.HumidityOK {
		if err := aq.Compensate(r.Temperature, r.Humidity); err != nil {
			o.logger.Warn("air-quality compensation failed", "error", err)
			o.metrics.ReadError(metrics.SourceCompensate)
		} else {
			r.Compensated = true
		}
	}
	return r
}
