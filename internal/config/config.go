package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// BLE back ends selectable through BLE_STACK.
const (
	BLEStackBlueZ = "bluez"
	BLEStackHCI   = "hci"
)

type Config struct {
	AppEnv   string
	LogLevel slog.Level

	SampleInterval     time.Duration
	InitialDelay       time.Duration
	AirQualityEnabled  bool
	I2CBus             string
	SHT3xAddress       uint16
	PressureAddress    uint16
	SGP30Address       uint16
	SHT3xRepeatability string

	LEDPin            string
	BatteryEnablePin  string
	BatteryADCAddress uint16
	BatteryADCChannel int
	BatteryDivider    float64

	BLEStack      string
	BLEAdapter    string
	BLELocalName  string
	BLEMaxAttrLen int

	// HTTPAddr enables the ops surface (/healthz, /metrics) when non-empty.
	HTTPAddr string
}

func LoadFromEnv() (Config, error) {
	appEnv := strings.TrimSpace(os.Getenv("APP_ENV"))
	if appEnv == "" {
		appEnv = "dev"
	}
	switch appEnv {
	case "dev", "prod":
	default:
		return Config{}, fmt.Errorf("invalid APP_ENV %q (allowed: dev, prod)", appEnv)
	}

	level, err := parseLogLevel(envOr("LOG_LEVEL", "info"))
	if err != nil {
		return Config{}, err
	}

	sampleInterval, err := parseDuration("SAMPLE_INTERVAL", "5s")
	if err != nil {
		return Config{}, err
	}
	if sampleInterval <= 0 {
		return Config{}, fmt.Errorf("SAMPLE_INTERVAL must be positive, got %v", sampleInterval)
	}

	initialDelay, err := parseDuration("INITIAL_DELAY", "1s")
	if err != nil {
		return Config{}, err
	}
	if initialDelay < 0 {
		return Config{}, fmt.Errorf("INITIAL_DELAY must not be negative, got %v", initialDelay)
	}

	airQualityStr := envOr("AIR_QUALITY_ENABLED", "false")
	airQuality, err := strconv.ParseBool(airQualityStr)
	if err != nil {
		return Config{}, fmt.Errorf("invalid AIR_QUALITY_ENABLED %q: %w", airQualityStr, err)
	}

	sht3xAddress, err := parseAddress("SHT3X_ADDRESS", "0x44")
	if err != nil {
		return Config{}, err
	}
	pressureAddress, err := parseAddress("PRESSURE_ADDRESS", "0x76")
	if err != nil {
		return Config{}, err
	}
	sgp30Address, err := parseAddress("SGP30_ADDRESS", "0x58")
	if err != nil {
		return Config{}, err
	}

	repeatability := strings.ToLower(envOr("SHT3X_REPEATABILITY", "high"))
	switch repeatability {
	case "low", "medium", "high":
	default:
		return Config{}, fmt.Errorf("invalid SHT3X_REPEATABILITY %q (allowed: low, medium, high)", repeatability)
	}

	adcAddress, err := parseAddress("BATTERY_ADC_ADDRESS", "0x48")
	if err != nil {
		return Config{}, err
	}

	adcChannelStr := envOr("BATTERY_ADC_CHANNEL", "0")
	adcChannel, err := strconv.Atoi(adcChannelStr)
	if err != nil {
		return Config{}, fmt.Errorf("invalid BATTERY_ADC_CHANNEL %q: %w", adcChannelStr, err)
	}
	if adcChannel < 0 || adcChannel > 3 {
		return Config{}, fmt.Errorf("BATTERY_ADC_CHANNEL must be in 0..3, got %d", adcChannel)
	}

	dividerStr := envOr("BATTERY_DIVIDER", "2.0")
	divider, err := strconv.ParseFloat(dividerStr, 64)
	if err != nil {
		return Config{}, fmt.Errorf("invalid BATTERY_DIVIDER %q: %w", dividerStr, err)
	}
	if divider <= 0 {
		return Config{}, fmt.Errorf("BATTERY_DIVIDER must be positive, got %v", divider)
	}

	bleStack := strings.ToLower(envOr("BLE_STACK", BLEStackBlueZ))
	switch bleStack {
	case BLEStackBlueZ, BLEStackHCI:
	default:
		return Config{}, fmt.Errorf("invalid BLE_STACK %q (allowed: bluez, hci)", bleStack)
	}

	maxAttrLenStr := envOr("BLE_MAX_ATTR_LEN", "64")
	maxAttrLen, err := strconv.Atoi(maxAttrLenStr)
	if err != nil {
		return Config{}, fmt.Errorf("invalid BLE_MAX_ATTR_LEN %q: %w", maxAttrLenStr, err)
	}
	if maxAttrLen <= 0 || maxAttrLen > 512 {
		return Config{}, fmt.Errorf("BLE_MAX_ATTR_LEN must be in 1..512, got %d", maxAttrLen)
	}

	return Config{
		AppEnv:             appEnv,
		LogLevel:           level,
		SampleInterval:     sampleInterval,
		InitialDelay:       initialDelay,
		AirQualityEnabled:  airQuality,
		I2CBus:             strings.TrimSpace(os.Getenv("I2C_BUS")),
		SHT3xAddress:       sht3xAddress,
		PressureAddress:    pressureAddress,
		SGP30Address:       sgp30Address,
		SHT3xRepeatability: repeatability,
		LEDPin:             envOr("LED_PIN", "GPIO17"),
		BatteryEnablePin:   envOr("BATTERY_ENABLE_PIN", "GPIO27"),
		BatteryADCAddress:  adcAddress,
		BatteryADCChannel:  adcChannel,
		BatteryDivider:     divider,
		BLEStack:           bleStack,
		BLEAdapter:         envOr("BLE_ADAPTER", "hci0"),
		BLELocalName:       envOr("BLE_LOCAL_NAME", "cloudpico-env"),
		BLEMaxAttrLen:      maxAttrLen,
		HTTPAddr:           strings.TrimSpace(os.Getenv("HTTP_ADDR")),
	}, nil
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func parseDuration(key, def string) (time.Duration, error) {
	s := envOr(key, def)
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	return d, nil
}

func parseAddress(key, def string) (uint16, error) {
	s := envOr(key, def)
	v, err := strconv.ParseUint(s, 0, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	// 7-bit I2C addressing only.
	if v > 0x7F {
		return 0, fmt.Errorf("%s %q is not a 7-bit I2C address", key, s)
	}
	return uint16(v), nil
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q (allowed: debug, info, warn, error)", s)
	}
}
