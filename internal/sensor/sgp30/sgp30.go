// Package sgp30 drives a Sensirion SGP30 gas sensor (CO2 equivalent and
// TVOC) over I2C.
package sgp30

import (
	"errors"
	"fmt"
	"math"
	"time"

	"periph.io/x/conn/v3/i2c"

	"cloudpico-envnode/internal/sensor"
)

const DefaultAddr uint16 = 0x58

// InitAirQualityDuration is the wait after iaq_init before the first
// measure_iaq.
const InitAirQualityDuration = 10 * time.Millisecond

var (
	cmdGetSerialID     = []byte{0x36, 0x82}
	cmdInitAirQuality  = []byte{0x20, 0x03}
	cmdMeasure         = []byte{0x20, 0x08}
	cmdSetHumidityWord = []byte{0x20, 0x61}
)

const (
	serialIDDuration = 500 * time.Microsecond
	measureDuration  = 12 * time.Millisecond
	humidityDuration = 10 * time.Millisecond
)

var errCRC = errors.New("sgp30: crc mismatch")

type Dev struct {
	d      i2c.Dev
	serial uint64
	sleep  func(time.Duration)

	// Last values read by Measure.
	CO2  uint16
	TVOC uint16
}

// New probes the device at addr by reading its serial number.
func New(bus i2c.Bus, addr uint16) (*Dev, error) {
	d := &Dev{
		d:     i2c.Dev{Bus: bus, Addr: addr},
		sleep: time.Sleep,
	}
	if err := d.init(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Dev) init() error {
	words, err := d.command(cmdGetSerialID, serialIDDuration, 3)
	if err != nil {
		return fmt.Errorf("sgp30: serial id: %w", err)
	}
	d.serial = uint64(words[0])<<32 | uint64(words[1])<<16 | uint64(words[2])
	return nil
}

// Serial is the 48-bit serial number read at init.
func (d *Dev) Serial() uint64 { return d.serial }

// InitAirQuality starts the on-chip baseline algorithm. Readings during the
// first seconds after this call report the fixed 400 ppm / 0 ppb values.
func (d *Dev) InitAirQuality() error {
	if err := d.d.Tx(cmdInitAirQuality, nil); err != nil {
		return fmt.Errorf("sgp30: iaq init: %w", err)
	}
	return nil
}

func (d *Dev) BaselineDelay() time.Duration { return InitAirQualityDuration }

// Measure runs measure_iaq and returns the CO2 equivalent and TVOC.
func (d *Dev) Measure() (uint16, uint16, error) {
	words, err := d.command(cmdMeasure, measureDuration, 2)
	if err != nil {
		return 0, 0, fmt.Errorf("sgp30: measure: %w", err)
	}
	d.CO2, d.TVOC = words[0], words[1]
	return d.CO2, d.TVOC, nil
}

// Compensate sets the absolute humidity used by the gas estimate from
// temperature (°C) and relative humidity (%).
func (d *Dev) Compensate(temperature, humidity float32) error {
	ah := AbsoluteHumidity(temperature, humidity)
	// 8.8 fixed point g/m³; zero turns compensation off on the chip.
	fixed := uint16(math.Min(ah*256, math.MaxUint16))

	w := make([]byte, 0, 5)
	w = append(w, cmdSetHumidityWord...)
	w = append(w, byte(fixed>>8), byte(fixed))
	w = append(w, sensor.CRC8(w[2:4]))
	if err := d.d.Tx(w, nil); err != nil {
		return fmt.Errorf("sgp30: set humidity: %w", err)
	}
	d.sleep(humidityDuration)
	return nil
}

// AbsoluteHumidity converts temperature (°C) and relative humidity (%) to
// g/m³ using the Magnus approximation.
func AbsoluteHumidity(temperature, humidity float32) float64 {
	t := float64(temperature)
	rh := float64(humidity)
	if rh <= 0 {
		return 0
	}
	return 216.7 * ((rh / 100) * 6.112 * math.Exp(17.62*t/(243.12+t)) / (273.15 + t))
}

func (d *Dev) command(cmd []byte, wait time.Duration, words int) ([]uint16, error) {
	if err := d.d.Tx(cmd, nil); err != nil {
		return nil, err
	}
	d.sleep(wait)

	raw := make([]byte, words*3)
	if err := d.d.Tx(nil, raw); err != nil {
		return nil, err
	}
	out := make([]uint16, words)
	for i := range out {
		chunk := raw[i*3 : i*3+3]
		if sensor.CRC8(chunk[:2]) != chunk[2] {
			return nil, errCRC
		}
		out[i] = uint16(chunk[0])<<8 | uint16(chunk[1])
	}
	return out, nil
}

func (d *Dev) String() string {
	return fmt.Sprintf("sgp30(0x%02X, serial %012X)", d.d.Addr, d.serial)
}
