// Package snapshot defines the published sensor reading and its binary
// encoding.
//
// Encoding (little-endian, version 1):
//
//	[0]      format version
//	[1]      flags, bit 0 set when the air-quality fields follow
//	[2:6]    battery mV, int32
//	[6:10]   temperature °C, float32
//	[10:14]  relative humidity %, float32
//	[14:18]  pressure hPa, float32
//	[18:22]  pressure-sensor temperature °C, float32
//	[22:24]  CO2 ppm, uint16 (air-quality layout only)
//	[24:26]  TVOC ppm, uint16 (air-quality layout only)
package snapshot

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

const (
	Version = 1

	flagAirQuality = 0x01

	basicSize      = 22
	airQualitySize = basicSize + 4
)

// ErrOverflow is returned when a destination cannot hold the encoded snapshot.
// Nothing is written in that case.
var ErrOverflow = errors.New("snapshot: encoded size exceeds buffer")

// Layout selects which fields a node publishes. It is fixed at startup.
type Layout uint8

const (
	LayoutBasic Layout = iota
	LayoutAirQuality
)

// LayoutFor returns the layout matching the air-quality inclusion toggle.
func LayoutFor(airQuality bool) Layout {
	if airQuality {
		return LayoutAirQuality
	}
	return LayoutBasic
}

func (l Layout) AirQuality() bool { return l == LayoutAirQuality }

// Size is the encoded length of a snapshot in this layout.
func (l Layout) Size() int {
	if l.AirQuality() {
		return airQualitySize
	}
	return basicSize
}

func (l Layout) String() string {
	if l.AirQuality() {
		return "with-air-quality"
	}
	return "basic"
}

// Snapshot is one complete acquisition result. Values are never mutated
// after publication; a new cycle produces a new Snapshot.
type Snapshot struct {
	Layout Layout

	BatteryMillivolts   int32
	Temperature         float32
	Humidity            float32
	Pressure            float32
	PressureTemperature float32

	// Only encoded for LayoutAirQuality.
	CO2  uint16
	TVOC uint16
}

func (s *Snapshot) Size() int { return s.Layout.Size() }

// MarshalTo writes the encoding into b and returns the number of bytes
// written. If b is shorter than Size it returns ErrOverflow and leaves b
// untouched.
func (s *Snapshot) MarshalTo(b []byte) (int, error) {
	n := s.Size()
	if len(b) < n {
		return 0, ErrOverflow
	}

	b[0] = Version
	b[1] = 0
	if s.Layout.AirQuality() {
		b[1] = flagAirQuality
	}
	binary.LittleEndian.PutUint32(b[2:6], uint32(s.BatteryMillivolts))
	binary.LittleEndian.PutUint32(b[6:10], math.Float32bits(s.Temperature))
	binary.LittleEndian.PutUint32(b[10:14], math.Float32bits(s.Humidity))
	binary.LittleEndian.PutUint32(b[14:18], math.Float32bits(s.Pressure))
	binary.LittleEndian.PutUint32(b[18:22], math.Float32bits(s.PressureTemperature))
	if s.Layout.AirQuality() {
		binary.LittleEndian.PutUint16(b[22:24], s.CO2)
		binary.LittleEndian.PutUint16(b[24:26], s.TVOC)
	}
	return n, nil
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (s *Snapshot) MarshalBinary() ([]byte, error) {
	b := make([]byte, s.Size())
	if _, err := s.MarshalTo(b); err != nil {
		return nil, err
	}
	return b, nil
}

// Decode parses an encoded snapshot. Trailing bytes beyond the layout size
// are rejected.
func Decode(data []byte) (Snapshot, error) {
	if len(data) < 2 {
		return Snapshot{}, fmt.Errorf("snapshot too short: %d", len(data))
	}
	if data[0] != Version {
		return Snapshot{}, fmt.Errorf("unsupported snapshot version %d", data[0])
	}
	if data[1]&^flagAirQuality != 0 {
		return Snapshot{}, fmt.Errorf("unknown snapshot flags 0x%02X", data[1])
	}

	layout := LayoutFor(data[1]&flagAirQuality != 0)
	if len(data) != layout.Size() {
		return Snapshot{}, fmt.Errorf("snapshot length %d, want %d for %s layout", len(data), layout.Size(), layout)
	}

	s := Snapshot{
		Layout:              layout,
		BatteryMillivolts:   int32(binary.LittleEndian.Uint32(data[2:6])),
		Temperature:         math.Float32frombits(binary.LittleEndian.Uint32(data[6:10])),
		Humidity:            math.Float32frombits(binary.LittleEndian.Uint32(data[10:14])),
		Pressure:            math.Float32frombits(binary.LittleEndian.Uint32(data[14:18])),
		PressureTemperature: math.Float32frombits(binary.LittleEndian.Uint32(data[18:22])),
	}
	if layout.AirQuality() {
		s.CO2 = binary.LittleEndian.Uint16(data[22:24])
		s.TVOC = binary.LittleEndian.Uint16(data[24:26])
	}
	return s, nil
}
