package main

import (
	"log/slog"
	"os"

	"github.com/mklimuk/i2cbridge/cmd/dev/cmd"
)

func main() {
	if err := cmd.Root().Execute(); err != nil {
		slog.Error("dev command failed", "error", err)
		os.Exit(1)
	}
}
