package main

import (
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	chlog "github.com/charmbracelet/log"
	"github.com/muesli/termenv"
	"github.com/urfave/cli/v2"

	"github.com/mklimuk/i2cbridge/cmd/i2cbridge/console"
	"github.com/mklimuk/i2cbridge/config"
)

var version string
var commit string
var date string

// cfg is resolved in app.Before from the config file and flags.
var cfg = config.Default()

func main() {
	os.Exit(run())
}

func run() int {
	app := cli.NewApp()
	app.Name = "i2cbridge"
	app.EnableBashCompletion = true
	app.Version = fmt.Sprintf("%s-%s-%s", version, date, commit)
	if version == "" {
		app.Version = config.Version
	}
	app.Usage = "serve I2C bus transactions over stdin/stdout"
	// stdout carries protocol frames, everything else goes to stderr
	app.Writer = os.Stderr
	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "YAML or TOML configuration file",
			EnvVars: []string{"I2CBRIDGE_CONFIG"},
		},
		&cli.StringFlag{
			Name:    "device",
			Aliases: []string{"d"},
			Usage:   "i2c-dev bus device",
			Value:   config.DefaultDevice,
		},
		&cli.StringFlag{
			Name:    "adapter",
			Aliases: []string{"a"},
			Usage:   "bus adapter: linux or mcp2221",
			Value:   config.AdapterLinux,
		},
		&cli.IntFlag{
			Name:  "hid-index",
			Usage: "MCP2221 index when several adapters are connected",
			Value: -1,
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"v"},
			Usage:   "enable verbose logging",
		},
	}
	app.Before = func(ctx *cli.Context) error {
		if err := resolveConfig(ctx); err != nil {
			return console.Fatal(err, "invalid configuration")
		}
		charm := chlog.NewWithOptions(os.Stderr, chlog.Options{
			ReportCaller:    true,
			ReportTimestamp: true,
			TimeFormat:      time.DateTime,
			Prefix:          "i2cbridge",
		})
		charm.SetColorProfile(termenv.TrueColor)
		charm.SetLevel(chlog.InfoLevel)
		if cfg.Verbose {
			charm.SetLevel(chlog.DebugLevel)
		}
		slog.SetDefault(slog.New(charm))
		return nil
	}
	app.Action = serveAction
	app.Commands = cli.Commands{
		&serveCmd,
		&shellCmd,
		&usbCmd,
		&mcp2221Cmd,
	}
	err := app.Run(os.Args)
	if err != nil {
		var exerr cli.ExitCoder
		if errors.As(err, &exerr) {
			log.Printf("unexpected error: %v", err)
			return exerr.ExitCode()
		}
		return console.ExitFatal
	}
	return console.ExitOK
}

// resolveConfig applies the config file, then any flag set explicitly.
func resolveConfig(ctx *cli.Context) error {
	if path := ctx.String("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if ctx.IsSet("device") {
		cfg.Device = ctx.String("device")
	}
	if ctx.IsSet("adapter") {
		cfg.Adapter = ctx.String("adapter")
	}
	if ctx.IsSet("hid-index") {
		cfg.HIDIndex = ctx.Int("hid-index")
	}
	if ctx.IsSet("verbose") {
		cfg.Verbose = ctx.Bool("verbose")
	}
	return cfg.Validate()
}
