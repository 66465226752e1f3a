// Package hw brings up the host peripherals through periph: the shared I2C
// bus, the LED and battery-enable pins, and the battery ADC channel. Board
// also opens the sensor devices on the bus for the init sequencer.
package hw

import (
	"errors"
	"fmt"
	"log/slog"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/devices/v3/ads1x15"
	"periph.io/x/host/v3"

	"cloudpico-envnode/internal/config"
	"cloudpico-envnode/internal/sensor"
	"cloudpico-envnode/internal/sensor/bmp"
	"cloudpico-envnode/internal/sensor/sgp30"
	"cloudpico-envnode/internal/sensor/sht3x"
)

// Full-scale range for the battery channel; a 2:1 divider on a single
// Li-ion cell stays below 2.2 V.
const batteryFullScale = 4096 * physic.MilliVolt

var adcChannels = []ads1x15.Channel{
	ads1x15.Channel0,
	ads1x15.Channel1,
	ads1x15.Channel2,
	ads1x15.Channel3,
}

type halter interface {
	Halt() error
}

type Board struct {
	cfg    config.Config
	logger *slog.Logger
	bus    i2c.BusCloser

	LED           gpio.PinOut
	BatteryEnable gpio.PinOut
	BatteryADC    ads1x15.PinADC

	halt []halter
}

// Open initialises the host drivers and claims every peripheral named in
// cfg. Any failure here is fatal to startup.
func Open(cfg config.Config, logger *slog.Logger) (*Board, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("host.Init: %w", err)
	}

	bus, err := i2creg.Open(cfg.I2CBus)
	if err != nil {
		return nil, fmt.Errorf("i2creg.Open(%q): %w", cfg.I2CBus, err)
	}
	b := &Board{cfg: cfg, logger: logger, bus: bus}

	if b.LED, err = outputPin(cfg.LEDPin); err != nil {
		_ = b.Close()
		return nil, err
	}
	if b.BatteryEnable, err = outputPin(cfg.BatteryEnablePin); err != nil {
		_ = b.Close()
		return nil, err
	}

	adc, err := ads1x15.NewADS1115(bus, &ads1x15.Opts{I2cAddress: cfg.BatteryADCAddress})
	if err != nil {
		_ = b.Close()
		return nil, fmt.Errorf("ads1115 at 0x%02X: %w", cfg.BatteryADCAddress, err)
	}
	b.halt = append(b.halt, adc)

	b.BatteryADC, err = adc.PinForChannel(adcChannels[cfg.BatteryADCChannel], batteryFullScale, physic.Hertz, ads1x15.BestQuality)
	if err != nil {
		_ = b.Close()
		return nil, fmt.Errorf("ads1115 channel %d: %w", cfg.BatteryADCChannel, err)
	}
	b.halt = append(b.halt, b.BatteryADC)

	logger.Info("hw: board ready",
		"i2c_bus", bus.String(),
		"led_pin", cfg.LEDPin,
		"battery_enable_pin", cfg.BatteryEnablePin,
		"battery_adc_channel", cfg.BatteryADCChannel,
	)
	return b, nil
}

func outputPin(name string) (gpio.PinOut, error) {
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("gpio pin %q not found", name)
	}
	return p, nil
}

func (b *Board) OpenHumidityTemperature() (sensor.HumidityTemperature, error) {
	rep, err := sht3x.ParseRepeatability(b.cfg.SHT3xRepeatability)
	if err != nil {
		return nil, err
	}
	d, err := sht3x.New(b.bus, b.cfg.SHT3xAddress, rep)
	if err != nil {
		return nil, err
	}
	b.logger.Info("hw: sensor ready", "device", d.String())
	return d, nil
}

func (b *Board) OpenPressure() (sensor.Pressure, error) {
	s, err := bmp.New(b.bus, b.cfg.PressureAddress)
	if err != nil {
		return nil, err
	}
	b.halt = append(b.halt, s)
	b.logger.Info("hw: sensor ready", "device", "bmxx80", "addr", fmt.Sprintf("0x%02X", b.cfg.PressureAddress))
	return s, nil
}

func (b *Board) OpenAirQuality() (sensor.AirQuality, error) {
	d, err := sgp30.New(b.bus, b.cfg.SGP30Address)
	if err != nil {
		return nil, err
	}
	b.logger.Info("hw: sensor ready", "device", d.String())
	return d, nil
}

// Close halts opened devices in reverse order and releases the bus.
func (b *Board) Close() error {
	var errs []error
	for i := len(b.halt) - 1; i >= 0; i-- {
		if err := b.halt[i].Halt(); err != nil {
			errs = append(errs, err)
		}
	}
	b.halt = nil
	if b.bus != nil {
		if err := b.bus.Close(); err != nil {
			errs = append(errs, err)
		}
		b.bus = nil
	}
	return errors.Join(errs...)
}
