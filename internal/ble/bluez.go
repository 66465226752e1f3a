package ble

import (
	"context"
	"fmt"
	"log/slog"

	"tinygo.org/x/bluetooth"
)

// Environmental Sensing service; the snapshot characteristic is vendor
// specific.
const (
	environmentalSensingUUID = 0x181A
	snapshotCharUUID         = "6e0a0001-5c1d-4c6b-9a4e-3b7c2f0d1e01"
)

type BlueZOptions struct {
	Adapter    string // "hci0" by default
	LocalName  string
	MaxAttrLen int
}

// BlueZ serves the snapshot through the host's BlueZ daemon. BlueZ answers
// ATT reads from a cached value, so the characteristic is refreshed through
// Handler.Read after every publication.
type BlueZ struct {
	adapter *bluetooth.Adapter
	opts    BlueZOptions
	handler Handler
	src     Source
	logger  *slog.Logger

	char bluetooth.Characteristic
	adv  *bluetooth.Advertisement
}

func NewBlueZ(opts BlueZOptions, h Handler, src Source, logger *slog.Logger) *BlueZ {
	if opts.Adapter == "" {
		opts.Adapter = "hci0"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BlueZ{
		adapter: bluetooth.NewAdapter(opts.Adapter),
		opts:    opts,
		handler: h,
		src:     src,
		logger:  logger,
	}
}

// Start enables the adapter, registers the GATT service and begins
// advertising.
func (b *BlueZ) Start() error {
	b.adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
		if connected {
			b.handler.OnConnect(device.Address.String(), 0)
		} else {
			b.handler.OnDisconnect(device.Address.String(), 0)
		}
	})

	b.logger.Info("ble: enabling adapter", "adapter", b.opts.Adapter)
	if err := b.adapter.Enable(); err != nil {
		return fmt.Errorf("ble enable (%s): %w", b.opts.Adapter, err)
	}

	charUUID, err := bluetooth.ParseUUID(snapshotCharUUID)
	if err != nil {
		return fmt.Errorf("ble characteristic uuid: %w", err)
	}
	serviceUUID := bluetooth.New16BitUUID(environmentalSensingUUID)

	if err := b.adapter.AddService(&bluetooth.Service{
		UUID: serviceUUID,
		Characteristics: []bluetooth.CharacteristicConfig{
			{
				Handle: &b.char,
				UUID:   charUUID,
				Value:  b.read(),
				Flags:  bluetooth.CharacteristicReadPermission | bluetooth.CharacteristicNotifyPermission,
			},
		},
	}); err != nil {
		return fmt.Errorf("ble add service: %w", err)
	}

	b.adv = b.adapter.DefaultAdvertisement()
	if err := b.adv.Configure(bluetooth.AdvertisementOptions{
		LocalName:    b.opts.LocalName,
		ServiceUUIDs: []bluetooth.UUID{serviceUUID},
	}); err != nil {
		return fmt.Errorf("ble advertisement configure: %w", err)
	}
	if err := b.adv.Start(); err != nil {
		return fmt.Errorf("ble advertisement start: %w", err)
	}
	b.logger.Info("ble: advertising", "name", b.opts.LocalName, "service", serviceUUID.String())
	return nil
}

// Serve keeps the characteristic in step with the publisher until ctx is
// done, then stops advertising.
func (b *BlueZ) Serve(ctx context.Context) error {
	defer func() {
		if err := b.adv.Stop(); err != nil {
			b.logger.Warn("ble: advertisement stop failed", "error", err)
		}
		b.logger.Info("ble: advertising stopped")
	}()

	for {
		changed := b.src.Changed()
		if v := b.read(); v != nil {
			if _, err := b.char.Write(v); err != nil {
				b.logger.Warn("ble: characteristic update failed", "error", err)
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-changed:
		}
	}
}

func (b *BlueZ) read() []byte {
	buf := make([]byte, b.opts.MaxAttrLen)
	n := b.handler.Read(buf)
	if n < 0 {
		return nil
	}
	return buf[:n]
}
