package main

import (
	"errors"
	"log/slog"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/i2cbridge"
	"github.com/mklimuk/i2cbridge/adapter"
	"github.com/mklimuk/i2cbridge/bridge"
	"github.com/mklimuk/i2cbridge/cmd/i2cbridge/console"
	"github.com/mklimuk/i2cbridge/config"
	"github.com/mklimuk/i2cbridge/i2c"
)

var serveCmd = cli.Command{
	Name:   "serve",
	Usage:  "serve requests from stdin until exit or end of input (default)",
	Action: serveAction,
}

func serveAction(c *cli.Context) error {
	bus := i2cbridge.NewLoggedBus(newBus(cfg), slog.Default(), slog.LevelDebug)
	srv := bridge.NewServer(os.Stdin, os.Stdout, bus,
		bridge.WithWaiter(bridge.NewPollWaiter(os.Stdin.Fd())),
	)
	slog.Debug("bridge started", "adapter", cfg.Adapter, "device", cfg.Device)
	err := srv.Run(c.Context)
	switch {
	case err == nil:
		slog.Debug("bridge stopped")
		return nil
	case errors.Is(err, i2cbridge.ErrDeviceUnavailable):
		return console.Fatal(err, "bus device unavailable")
	case errors.Is(err, bridge.ErrInputWait), errors.Is(err, bridge.ErrInputRead):
		return console.Fatal(err, "input failure")
	default:
		return console.Fatal(err, "unexpected error")
	}
}

func newBus(cfg config.Config) i2cbridge.Transferer {
	switch cfg.Adapter {
	case config.AdapterMCP2221:
		return adapter.NewMCP2221(adapter.WithIndex(cfg.HIDIndex))
	default:
		return i2c.NewGenericBus(cfg.Device)
	}
}
