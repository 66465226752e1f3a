// Package sht3x drives a Sensirion SHT3x humidity/temperature sensor in
// single-shot mode over I2C.
package sht3x

import (
	"errors"
	"fmt"
	"time"

	"periph.io/x/conn/v3/i2c"

	"cloudpico-envnode/internal/sensor"
)

// Default I2C addresses (ADDR pin low / high).
const (
	Addr1 uint16 = 0x44
	Addr2 uint16 = 0x45
)

// Repeatability trades measurement time for noise.
type Repeatability int

const (
	Low Repeatability = iota
	Medium
	High
)

// ParseRepeatability maps "low", "medium" and "high".
func ParseRepeatability(s string) (Repeatability, error) {
	switch s {
	case "low":
		return Low, nil
	case "medium":
		return Medium, nil
	case "high":
		return High, nil
	}
	return 0, fmt.Errorf("sht3x: unknown repeatability %q", s)
}

func (r Repeatability) String() string {
	switch r {
	case Low:
		return "low"
	case Medium:
		return "medium"
	default:
		return "high"
	}
}

// minSettle is the floor on the post-init wait.
const minSettle = 30 * time.Millisecond

var (
	cmdSoftReset  = []byte{0x30, 0xA2}
	cmdReadStatus = []byte{0xF3, 0x2D}
)

// Single shot, clock stretching disabled.
var cmdMeasure = map[Repeatability][]byte{
	High:   {0x24, 0x00},
	Medium: {0x24, 0x0B},
	Low:    {0x24, 0x16},
}

var errCRC = errors.New("sht3x: crc mismatch")

type Dev struct {
	d     i2c.Dev
	rep   Repeatability
	sleep func(time.Duration)
}

// New soft-resets the device at addr and checks that it answers a status
// read with a valid checksum.
func New(bus i2c.Bus, addr uint16, rep Repeatability) (*Dev, error) {
	d := &Dev{
		d:     i2c.Dev{Bus: bus, Addr: addr},
		rep:   rep,
		sleep: time.Sleep,
	}
	if err := d.init(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Dev) init() error {
	if err := d.d.Tx(cmdSoftReset, nil); err != nil {
		return fmt.Errorf("sht3x: soft reset: %w", err)
	}
	d.sleep(2 * time.Millisecond)

	if err := d.d.Tx(cmdReadStatus, nil); err != nil {
		return fmt.Errorf("sht3x: status command: %w", err)
	}
	var status [3]byte
	if err := d.d.Tx(nil, status[:]); err != nil {
		return fmt.Errorf("sht3x: status read: %w", err)
	}
	if sensor.CRC8(status[:2]) != status[2] {
		return fmt.Errorf("sht3x: status: %w", errCRC)
	}
	return nil
}

// MeasurementDuration is the datasheet maximum conversion time.
func (d *Dev) MeasurementDuration() time.Duration {
	switch d.rep {
	case Low:
		return 4500 * time.Microsecond
	case Medium:
		return 6500 * time.Microsecond
	default:
		return 15500 * time.Microsecond
	}
}

// SettlingDelay is twice the conversion time, never less than 30ms.
func (d *Dev) SettlingDelay() time.Duration {
	return max(minSettle, 2*d.MeasurementDuration())
}

// Measure triggers a single-shot conversion and returns °C and %RH.
func (d *Dev) Measure() (float32, float32, error) {
	if err := d.d.Tx(cmdMeasure[d.rep], nil); err != nil {
		return 0, 0, fmt.Errorf("sht3x: measure command: %w", err)
	}
	d.sleep(d.MeasurementDuration())

	var raw [6]byte
	if err := d.d.Tx(nil, raw[:]); err != nil {
		return 0, 0, fmt.Errorf("sht3x: measure read: %w", err)
	}
	if sensor.CRC8(raw[0:2]) != raw[2] || sensor.CRC8(raw[3:5]) != raw[5] {
		return 0, 0, errCRC
	}

	t := uint16(raw[0])<<8 | uint16(raw[1])
	h := uint16(raw[3])<<8 | uint16(raw[4])
	temperature := -45 + 175*float32(t)/65535
	humidity := 100 * float32(h) / 65535
	return temperature, humidity, nil
}

func (d *Dev) String() string {
	return fmt.Sprintf("sht3x(0x%02X, %s)", d.d.Addr, d.rep)
}
