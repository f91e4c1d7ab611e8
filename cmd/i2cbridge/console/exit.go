package console

import (
	"fmt"

	"github.com/urfave/cli/v2"
)

// Process exit codes. A bridge that stops on exit or end of input exits with
// ExitOK, everything that stops it early exits with ExitFatal.
const (
	ExitOK    = 0
	ExitFatal = 1
)

// Fatal wraps err in an exit coder carrying ExitFatal. The message reads
// "<what>: <err>" with the cause in red.
func Fatal(err error, what string, args ...any) cli.ExitCoder {
	return cli.Exit(fmt.Sprintf("%s: %s", fmt.Sprintf(what, args...), Red(err)), ExitFatal)
}
