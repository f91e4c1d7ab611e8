package cmd

import (
	"fmt"

	"github.com/gophertribe/devtool/test"
	"github.com/spf13/cobra"
)

// qualityCmd wraps one devtool quality step in a cobra command.
func qualityCmd(use, short string, step func() error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := step(); err != nil {
				return fmt.Errorf("%s failed: %w", use, err)
			}
			return nil
		},
	}
}

func TestCmd() *cobra.Command {
	return qualityCmd("test", "Run unit tests (codec, bridge, adapters)", func() error { return test.Test() })
}

func LintCmd() *cobra.Command {
	return qualityCmd("lint", "Run linting", func() error { return test.Lint() })
}

// IntegrationTestCmd runs the hardware tests; they need a bus device or an
// MCP2221 attached.
func IntegrationTestCmd() *cobra.Command {
	return qualityCmd("integration-test", "Run integration tests against real hardware", func() error { return test.Integ() })
}
