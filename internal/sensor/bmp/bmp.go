// Package bmp adapts a Bosch BMP280/BME280 to the pressure contract.
package bmp

import (
	"fmt"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/devices/v3/bmxx80"
)

type senser interface {
	Sense(e *physic.Env) error
	Halt() error
}

type Sensor struct {
	dev senser
}

func New(bus i2c.Bus, addr uint16) (*Sensor, error) {
	dev, err := bmxx80.NewI2C(bus, addr, &bmxx80.DefaultOpts)
	if err != nil {
		return nil, fmt.Errorf("bmxx80.NewI2C(0x%02X): %w", addr, err)
	}
	return &Sensor{dev: dev}, nil
}

// Sense returns pressure in hPa and the die temperature in °C.
func (s *Sensor) Sense() (float32, float32, error) {
	var env physic.Env
	if err := s.dev.Sense(&env); err != nil {
		return 0, 0, fmt.Errorf("bmxx80 sense: %w", err)
	}

	// env.Pressure is stored in nano Pascal.
	pressure := float64(env.Pressure) / float64(100*physic.Pascal)
	return float32(pressure), float32(env.Temperature.Celsius()), nil
}

func (s *Sensor) Halt() error {
	return s.dev.Halt()
}
