// Package sensor holds the narrow contracts the acquisition core uses to
// talk to the environmental devices on the shared I2C bus.
package sensor

import "time"

// HumidityTemperature is the humidity/temperature device (SHT3x).
type HumidityTemperature interface {
	// Measure runs one single-shot measurement.
	Measure() (temperature, humidity float32, err error)
	// SettlingDelay is how long to wait after init before the first
	// reading can be trusted.
	SettlingDelay() time.Duration
}

// Pressure is the barometric pressure device.
type Pressure interface {
	// Sense returns pressure in hPa and the device's own temperature in °C.
	Sense() (pressure, temperature float32, err error)
}

// AirQuality is the optional CO2/TVOC device (SGP30).
type AirQuality interface {
	// InitAirQuality starts the device's baseline algorithm.
	InitAirQuality() error
	// BaselineDelay is the wait after InitAirQuality before first use.
	BaselineDelay() time.Duration
	// Measure returns CO2 equivalent and TVOC, both in ppm units of the device.
	Measure() (co2, tvoc uint16, err error)
	// Compensate feeds ambient conditions into the gas estimate.
	Compensate(temperature, humidity float32) error
}

// CRC8 is the Sensirion word checksum: polynomial 0x31, init 0xFF.
func CRC8(data []byte) byte {
	crc := byte(0xFF)
	for _, b := range data {
		crc ^= b
		for i := 0; i < 8; i++ {
			if crc&0x80 != 0 {
				crc = crc<<1 ^ 0x31
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}
