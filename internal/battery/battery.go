// Package battery samples the battery voltage through a switched divider.
//
// The divider draws current while connected, so each measurement is
// bracketed by Enable and Disable.
package battery

import (
	"errors"
	"fmt"
	"time"

	"periph.io/x/conn/v3/analog"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
)

// ErrSample marks a failed battery measurement.
var ErrSample = errors.New("battery: sample failed")

// Output is the divider enable line.
type Output interface {
	Out(l gpio.Level) error
}

// ADC is one analog input channel.
type ADC interface {
	Read() (analog.Sample, error)
}

type Options struct {
	// Divider is the ratio between battery and ADC input voltage.
	Divider float64
	// Settle is the wait between Enable and Sample.
	Settle time.Duration
}

type Sampler struct {
	enable Output
	adc    ADC
	opts   Options
	sleep  func(time.Duration)
}

func New(enable Output, adc ADC, opts Options) *Sampler {
	if opts.Divider <= 0 {
		opts.Divider = 1
	}
	return &Sampler{enable: enable, adc: adc, opts: opts, sleep: time.Sleep}
}

func (s *Sampler) Enable() error {
	if err := s.enable.Out(gpio.High); err != nil {
		return fmt.Errorf("battery enable: %w", err)
	}
	if s.opts.Settle > 0 {
		s.sleep(s.opts.Settle)
	}
	return nil
}

func (s *Sampler) Disable() error {
	if err := s.enable.Out(gpio.Low); err != nil {
		return fmt.Errorf("battery disable: %w", err)
	}
	return nil
}

// Sample reads the ADC and returns the battery voltage in millivolts.
func (s *Sampler) Sample() (int32, error) {
	v, err := s.adc.Read()
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrSample, err)
	}
	if v.V < 0 {
		return 0, fmt.Errorf("%w: negative reading %s", ErrSample, v.V)
	}
	mv := float64(v.V) / float64(physic.MilliVolt) * s.opts.Divider
	return int32(mv + 0.5), nil
}

// Measure runs enable, sample, disable. The divider is disconnected even
// when sampling fails.
func (s *Sampler) Measure() (mv int32, err error) {
	if err := s.Enable(); err != nil {
		_ = s.Disable()
		return 0, fmt.Errorf("%w: %w", ErrSample, err)
	}
	defer func() {
		if derr := s.Disable(); derr != nil && err == nil {
			err = fmt.Errorf("%w: %w", ErrSample, derr)
			mv = 0
		}
	}()
	return s.Sample()
}
