package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/urfave/cli/v2"

	"github.com/mklimuk/i2cbridge"
	"github.com/mklimuk/i2cbridge/bridge"
	"github.com/mklimuk/i2cbridge/client"
	"github.com/mklimuk/i2cbridge/cmd/i2cbridge/console"
)

const shellHelp = `commands:
  status                          liveness probe
  read  <i2c> <addr> <len>        combined register select + read
  write <i2c> <addr> <hex bytes>  write bytes after the addr byte, e.g. write 1 0x50 aabb
  exit                            stop the bridge and leave
`

var shellCmd = cli.Command{
	Name:  "shell",
	Usage: "interactive prompt talking to an in-process bridge",
	Flags: []cli.Flag{
		&cli.BoolFlag{Name: "yes", Aliases: []string{"y"}, Usage: "do not confirm writes"},
	},
	Action: func(c *cli.Context) error {
		rl, err := console.NewShell(console.Cyan("i2c> "), "status", "read", "write", "help", "exit")
		if err != nil {
			return console.Fatal(err, "could not start prompt")
		}
		defer func() { _ = rl.Close() }()

		cl, done := startBridge(c.Context, i2cbridge.NewLoggedBus(newBus(cfg), slog.Default(), slog.LevelDebug))
		sh := &shell{client: cl, done: done, out: rl.Stdout()}
		if !c.Bool("yes") {
			sh.confirm = func(question string) (bool, error) {
				return console.YesOrNo(rl, question)
			}
		}
		console.PInfof(console.PictoPlug, "bridge on %s (%s), type help for commands", console.White(cfg.Device), cfg.Adapter)
		for !sh.stopped {
			line, err := rl.Readline()
			if errors.Is(err, readline.ErrInterrupt) {
				if line == "" {
					break
				}
				continue
			}
			if err != nil {
				break
			}
			exit, err := sh.exec(line)
			if err != nil && !sh.stopped {
				console.Errorf("%s", err)
			}
			if exit {
				break
			}
		}
		if err := sh.close(); err != nil {
			return console.Fatal(err, "shell")
		}
		console.PInfof(console.PictoStop, "bye")
		return nil
	},
}

// startBridge runs a bridge server connected to the returned client through
// in-memory pipes.
func startBridge(ctx context.Context, bus i2cbridge.Transferer) (*client.Client, <-chan error) {
	reqR, reqW := io.Pipe()
	resR, resW := io.Pipe()
	srv := bridge.NewServer(reqR, resW, bus)
	done := make(chan error, 1)
	go func() {
		err := srv.Run(ctx)
		_ = resW.CloseWithError(io.ErrClosedPipe)
		_ = reqR.Close()
		done <- err
	}()
	return client.New(resR, reqW), done
}

type shell struct {
	client  *client.Client
	done    <-chan error
	out     io.Writer
	confirm func(question string) (bool, error)

	stopped bool
	runErr  error
}

// exec runs one command line. Once the bridge has stopped, errors caused by
// the closed pipes are replaced with the error the bridge stopped with.
func (s *shell) exec(line string) (bool, error) {
	exit, err := s.dispatch(line)
	if err != nil && errors.Is(err, io.ErrClosedPipe) {
		if runErr := s.wait(); runErr != nil {
			return true, fmt.Errorf("bridge stopped: %w", runErr)
		}
		return true, err
	}
	return exit, err
}

// close asks a running bridge to exit and reports why it stopped.
func (s *shell) close() error {
	if !s.stopped {
		if err := s.client.Exit(); err != nil && !errors.Is(err, io.ErrClosedPipe) {
			return fmt.Errorf("could not stop bridge: %w", err)
		}
	}
	if runErr := s.wait(); runErr != nil {
		return fmt.Errorf("bridge stopped: %w", runErr)
	}
	return nil
}

func (s *shell) wait() error {
	if !s.stopped {
		s.runErr = <-s.done
		s.stopped = true
	}
	return s.runErr
}

func (s *shell) dispatch(line string) (bool, error) {
	args := strings.Fields(line)
	if len(args) == 0 {
		return false, nil
	}
	switch args[0] {
	case "exit", "quit":
		return true, nil
	case "help":
		_, _ = fmt.Fprint(s.out, shellHelp)
		return false, nil
	case bridge.OpStatus:
		if err := s.client.Status(); err != nil {
			return false, err
		}
		s.ok()
		return false, nil
	case "read":
		if len(args) != 4 {
			return false, fmt.Errorf("usage: read <i2c> <addr> <len>")
		}
		bus, addr, err := parseTarget(args[1], args[2])
		if err != nil {
			return false, err
		}
		n, err := strconv.ParseUint(args[3], 0, 16)
		if err != nil {
			return false, fmt.Errorf("invalid length %q", args[3])
		}
		data, err := s.client.ReadI2C(bus, addr, int(n))
		if err != nil {
			return false, err
		}
		s.ok()
		_, _ = fmt.Fprint(s.out, hex.Dump(data))
		return false, nil
	case "write":
		if len(args) != 4 {
			return false, fmt.Errorf("usage: write <i2c> <addr> <hex bytes>")
		}
		bus, addr, err := parseTarget(args[1], args[2])
		if err != nil {
			return false, err
		}
		data, err := hex.DecodeString(strings.TrimPrefix(args[3], "0x"))
		if err != nil {
			return false, fmt.Errorf("invalid data hex string: %w", err)
		}
		if s.confirm != nil {
			yes, err := s.confirm(fmt.Sprintf("write %d bytes to %#x on %d?", len(data), addr, bus))
			if err != nil || !yes {
				return false, err
			}
		}
		if err := s.client.WriteI2C(bus, addr, data); err != nil {
			return false, err
		}
		s.ok()
		return false, nil
	default:
		return false, fmt.Errorf("unknown command %q, try help", args[0])
	}
}

func (s *shell) ok() {
	_, _ = fmt.Fprintln(s.out, console.Green(bridge.StatusOK))
}

func parseTarget(bus, addr string) (byte, byte, error) {
	b, err := strconv.ParseUint(bus, 0, 8)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid i2c %q", bus)
	}
	a, err := strconv.ParseUint(addr, 0, 8)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid addr %q", addr)
	}
	return byte(b), byte(a), nil
}
