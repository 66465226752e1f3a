package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"cloudpico-envnode/internal/acquire"
	"cloudpico-envnode/internal/app"
	"cloudpico-envnode/internal/config"
	"cloudpico-envnode/internal/logging"
)

var version = "dev"
var appName = "cloudpico-envnode"

func main() {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "envnode: %v\n", err)
		os.Exit(1)
	}

	slog.SetDefault(logging.New(cfg, version, appName))
	slog.Info("envnode: boot",
		"version", version,
		"env", cfg.AppEnv,
		"log_level", cfg.LogLevel.String(),
		"layout_air_quality", cfg.AirQualityEnabled,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = app.Run(ctx, cfg)
	var initErr *acquire.InitError
	switch {
	case errors.As(err, &initErr):
		slog.Error("envnode: sensor bring-up failed, not sampling", "stage", initErr.Stage.String(), "error", initErr.Err)
		os.Exit(1)
	case err != nil && !errors.Is(err, context.Canceled):
		slog.Error("envnode: stopped with error", "error", err)
		os.Exit(1)
	}
	slog.Info("envnode: stopped")
}
