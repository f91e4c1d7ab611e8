package main

import (
	"os"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/mklimuk/i2cbridge/adapter"
	"github.com/mklimuk/i2cbridge/cmd/i2cbridge/console"
)

var mcp2221Cmd = cli.Command{
	Name:  "mcp2221",
	Usage: "MCP2221 adapter diagnostics",
	Subcommands: []*cli.Command{
		&mcp2221StatusCmd,
		&mcp2221ReleaseCmd,
	},
}

var mcp2221StatusCmd = cli.Command{
	Name:  "status",
	Usage: "print the I2C engine status",
	Action: func(c *cli.Context) error {
		a := adapter.NewMCP2221(adapter.WithIndex(cfg.HIDIndex))
		status, err := a.Status(c.Context)
		if err != nil {
			return console.Fatal(err, "adapter communication error")
		}
		return printYAML(status)
	},
}

var mcp2221ReleaseCmd = cli.Command{
	Name:  "release",
	Usage: "cancel the current transfer and release the bus",
	Action: func(c *cli.Context) error {
		a := adapter.NewMCP2221(adapter.WithIndex(cfg.HIDIndex))
		status, err := a.ReleaseBus(c.Context)
		if err != nil {
			return console.Fatal(err, "adapter communication error")
		}
		return printYAML(status)
	},
}

func printYAML(v interface{}) error {
	enc := yaml.NewEncoder(os.Stdout)
	defer func() { _ = enc.Close() }()
	if err := enc.Encode(v); err != nil {
		return console.Fatal(err, "encoding error")
	}
	return nil
}
