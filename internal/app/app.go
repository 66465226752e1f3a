package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"cloudpico-envnode/internal/acquire"
	"cloudpico-envnode/internal/battery"
	"cloudpico-envnode/internal/ble"
	"cloudpico-envnode/internal/config"
	"cloudpico-envnode/internal/httpapi"
	"cloudpico-envnode/internal/hw"
	"cloudpico-envnode/internal/indicator"
	"cloudpico-envnode/internal/metrics"
	"cloudpico-envnode/internal/publisher"
	"cloudpico-envnode/internal/scheduler"
	"cloudpico-envnode/internal/snapshot"
)

const (
	batterySettle   = 5 * time.Millisecond
	shutdownTimeout = 5 * time.Second
)

// Transport exposes the published snapshot to peers. Start must succeed
// before Serve is called.
type Transport interface {
	Start() error
	Serve(ctx context.Context) error
}

// node is everything runNode needs from the outside world.
type node struct {
	bringup       acquire.Bringup
	led           indicator.Output
	batteryEnable battery.Output
	batteryADC    battery.ADC
	transport     func(h ble.Handler, src ble.Source) Transport
	registry      *prometheus.Registry
	logger        *slog.Logger
}

func Run(ctx context.Context, cfg config.Config) error {
	slog.Info("initializing node",
		"i2c_bus", cfg.I2CBus,
		"air_quality", cfg.AirQualityEnabled,
		"sample_interval", cfg.SampleInterval.String(),
		"ble_stack", cfg.BLEStack,
	)

	board, err := hw.Open(cfg, slog.Default())
	if err != nil {
		return err
	}
	defer func() {
		if err := board.Close(); err != nil {
			slog.Warn("hw close failed", "error", err)
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector())

	return runNode(ctx, cfg, node{
		bringup:       board,
		led:           board.LED,
		batteryEnable: board.BatteryEnable,
		batteryADC:    board.BatteryADC,
		transport:     bleTransport(cfg),
		registry:      reg,
		logger:        slog.Default(),
	})
}

func bleTransport(cfg config.Config) func(ble.Handler, ble.Source) Transport {
	return func(h ble.Handler, src ble.Source) Transport {
		if cfg.BLEStack == config.BLEStackHCI {
			return ble.NewHCI(ble.HCIOptions{
				LocalName:  cfg.BLELocalName,
				MaxAttrLen: cfg.BLEMaxAttrLen,
			}, h, slog.Default())
		}
		return ble.NewBlueZ(ble.BlueZOptions{
			Adapter:    cfg.BLEAdapter,
			LocalName:  cfg.BLELocalName,
			MaxAttrLen: cfg.BLEMaxAttrLen,
		}, h, src, slog.Default())
	}
}

// runNode brings the node up and blocks until ctx is done. Nothing is
// scheduled or advertised unless sensor bring-up reaches Ready.
func runNode(ctx context.Context, cfg config.Config, n node) error {
	logger := n.logger
	if logger == nil {
		logger = slog.Default()
	}
	if n.registry == nil {
		n.registry = prometheus.NewRegistry()
	}

	busy := indicator.New(n.led, logger)
	if err := busy.Configure(); err != nil {
		return err
	}

	layout := snapshot.LayoutFor(cfg.AirQualityEnabled)
	pub := publisher.New(layout)
	m := metrics.New(n.registry)

	sensors, err := acquire.NewSequencer(n.bringup, layout, logger).Run()
	if err != nil {
		return err
	}

	handler := ble.NewNodeHandler(pub, logger, m)
	transport := n.transport(handler, pub)
	if err := transport.Start(); err != nil {
		return err
	}

	cycle := acquire.NewCycle(acquire.CycleOptions{
		Battery: battery.New(n.batteryEnable, n.batteryADC, battery.Options{
			Divider: cfg.BatteryDivider,
			Settle:  batterySettle,
		}),
		Sensors:   sensors,
		Publisher: pub,
		Busy:      busy,
		Logger:    logger,
		Metrics:   m,
	})
	sched := scheduler.New(scheduler.Options{
		Interval:     cfg.SampleInterval,
		InitialDelay: cfg.InitialDelay,
		Logger:       logger,
		Metrics:      m,
	}, cycle.Run)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return transport.Serve(gctx) })
	g.Go(func() error { return sched.Run(gctx) })

	if cfg.HTTPAddr != "" {
		srv := httpapi.NewServer(cfg.HTTPAddr, httpapi.NewMux(pub, n.registry), logger)
		g.Go(func() error {
			logger.Info("http: listening", "addr", cfg.HTTPAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	logger.Info("node running", "layout", layout.String())
	err = g.Wait()
	logger.Info("node stopped", "published", pub.Count())
	if ctx.Err() != nil && errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
