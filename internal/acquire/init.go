package acquire

import (
	"fmt"
	"log/slog"
	"time"

	"cloudpico-envnode/internal/sensor"
	"cloudpico-envnode/internal/snapshot"
)

// State is the bring-up progress of the sensor set.
type State int

const (
	Uninit State = iota
	HumidityTempReady
	PressureReady
	AirQualityReady
	Ready
	Fatal
)

func (s State) String() string {
	switch s {
	case Uninit:
		return "uninit"
	case HumidityTempReady:
		return "humidity_temp_ready"
	case PressureReady:
		return "pressure_ready"
	case AirQualityReady:
		return "air_quality_ready"
	case Ready:
		return "ready"
	case Fatal:
		return "fatal"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// InitError is a fatal startup failure. Stage is the state that could not
// be reached.
type InitError struct {
	Stage State
	Err   error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("init %s: %v", e.Stage, e.Err)
}

func (e *InitError) Unwrap() error { return e.Err }

// Bringup opens the physical devices on the shared bus.
type Bringup interface {
	OpenHumidityTemperature() (sensor.HumidityTemperature, error)
	OpenPressure() (sensor.Pressure, error)
	OpenAirQuality() (sensor.AirQuality, error)
}

// Sensors is the handle set created once at boot. AirQuality is nil for the
// basic layout.
type Sensors struct {
	HumidityTemperature sensor.HumidityTemperature
	Pressure            sensor.Pressure
	AirQuality          sensor.AirQuality
}

// Sequencer brings the sensors up in fixed order: humidity/temperature,
// pressure, then air quality when the layout includes it. Any failure is
// terminal; there is no retry.
type Sequencer struct {
	bringup Bringup
	layout  snapshot.Layout
	logger  *slog.Logger
	sleep   func(time.Duration)
	state   State
}

func NewSequencer(b Bringup, layout snapshot.Layout, logger *slog.Logger) *Sequencer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sequencer{
		bringup: b,
		layout:  layout,
		logger:  logger,
		sleep:   time.Sleep,
	}
}

func (s *Sequencer) State() State { return s.state }

// Run performs the bring-up. It returns the handle set only on reaching
// Ready; otherwise the error is an *InitError and State is Fatal.
func (s *Sequencer) Run() (*Sensors, error) {
	if s.state != Uninit {
		return nil, fmt.Errorf("sequencer already ran (state %s)", s.state)
	}
	var sensors Sensors

	ht, err := s.bringup.OpenHumidityTemperature()
	if err != nil {
		return nil, s.fail(HumidityTempReady, err, "cannot init humidity/temperature sensor")
	}
	sensors.HumidityTemperature = ht
	s.advance(HumidityTempReady)

	// The first reading is only valid after one full conversion.
	settle := ht.SettlingDelay()
	s.logger.Debug("init: waiting for first measurement", "delay", settle)
	s.sleep(settle)

	p, err := s.bringup.OpenPressure()
	if err != nil {
		return nil, s.fail(PressureReady, err, "cannot init pressure sensor")
	}
	sensors.Pressure = p
	s.advance(PressureReady)

	if s.layout.AirQuality() {
		aq, err := s.bringup.OpenAirQuality()
		if err != nil {
			return nil, s.fail(AirQualityReady, err, "cannot init air-quality sensor")
		}
		if err := aq.InitAirQuality(); err != nil {
			return nil, s.fail(AirQualityReady, err, "cannot start air-quality baseline")
		}
		s.sleep(aq.BaselineDelay())
		sensors.AirQuality = aq
		s.advance(AirQualityReady)
	}

	s.advance(Ready)
	return &sensors, nil
}

func (s *Sequencer) advance(next State) {
	s.logger.Info("init: state", "from", s.state.String(), "to", next.String())
	s.state = next
}

func (s *Sequencer) fail(stage State, err error, msg string) error {
	s.logger.Error("init: "+msg, "stage", stage.String(), "error", err)
	s.state = Fatal
	return &InitError{Stage: stage, Err: err}
}
