package cmd

import (
	"log/slog"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"
)

// Root returns the dev command with every subcommand attached.
func Root() *cobra.Command {
	var debug bool
	root := &cobra.Command{
		Use:           "dev",
		Short:         "build/test tool for the i2cbridge project",
		Long:          "Builds the bridge binary (natively or in a cross-compiling container), runs tests and linters",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			slog.SetDefault(slog.New(newLogger(debug)))
		},
	}
	root.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	root.AddCommand(
		BuildCmd(),
		ChangelogCmd(),
		TestCmd(),
		LintCmd(),
		IntegrationTestCmd(),
	)
	return root
}

func newLogger(debug bool) *log.Logger {
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.TimeOnly,
		Prefix:          "dev",
		Level:           log.InfoLevel,
	})
	logger.SetColorProfile(termenv.EnvColorProfile())
	if debug {
		logger.SetLevel(log.DebugLevel)
		logger.SetReportCaller(true)
	}
	return logger
}
