// Package bridge serves I2C read and write requests received as encoded field
// maps, one at a time, and writes one encoded response per request.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/mklimuk/i2cbridge"
	"github.com/mklimuk/i2cbridge/codec"
)

const (
	OpReadI2C  = "read_i2c"
	OpWriteI2C = "write_i2c"
	OpStatus   = "status"
	OpExit     = "exit"
)

// ErrInputWait is returned when waiting for input fails for a reason other
// than a signal interruption.
var ErrInputWait = errors.New("input wait failed")

// ErrInputRead is returned when the input stream fails with something other
// than a decode error or end of input.
var ErrInputRead = errors.New("input read failed")

// Waiter blocks until input is available.
type Waiter interface {
	Wait() error
}

type WaitFunc func() error

func (f WaitFunc) Wait() error {
	return f()
}

// NoWait never blocks; reads block on their own.
var NoWait = WaitFunc(func() error { return nil })

type ServerOption func(*Server)

func WithWaiter(w Waiter) ServerOption {
	return func(s *Server) {
		s.wait = w
	}
}

func WithLogger(l *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = l
	}
}

// Server runs the dispatch loop. It alternates between waiting for input and
// processing exactly one decoded request; requests never overlap.
type Server struct {
	dec    *codec.Decoder
	enc    *codec.Encoder
	wait   Waiter
	routes map[string]Handler
	logger *slog.Logger
}

func NewServer(in io.Reader, out io.Writer, bus i2cbridge.Transferer, opts ...ServerOption) *Server {
	h := NewHandlers(bus)
	s := &Server{
		dec:  codec.NewDecoder(in),
		enc:  codec.NewEncoder(out),
		wait: NoWait,
		routes: map[string]Handler{
			OpReadI2C:  h.ReadI2C,
			OpWriteI2C: h.WriteI2C,
			OpStatus:   h.Status,
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run serves requests until an exit request or the end of input, both of
// which return nil. Device and input failures are returned to the caller.
func (s *Server) Run(ctx context.Context) error {
	for {
		if s.dec.Buffered() == 0 {
			if err := s.wait.Wait(); err != nil {
				return err
			}
		}
		req, err := s.dec.Decode()
		if errors.Is(err, io.EOF) {
			s.logger.Debug("end of input")
			return nil
		}
		if err != nil {
			if !isDecodeError(err) {
				return fmt.Errorf("%w: %w", ErrInputRead, err)
			}
			s.dropUndecodable(err)
			continue
		}
		exit, err := s.process(ctx, req)
		if err != nil {
			return err
		}
		if exit {
			s.logger.Debug("exit requested")
			return nil
		}
	}
}

func (s *Server) process(ctx context.Context, req *codec.Map) (bool, error) {
	op, _ := req.GetString("op")
	s.logger.Debug("request", "op", op, "req", req.Debug())
	if op == OpExit {
		return true, nil
	}
	handle, ok := s.routes[op]
	if !ok {
		s.dropUnknownOp(op)
		return false, nil
	}
	res, err := handle(ctx, req)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	if err := s.enc.Encode(res); err != nil {
		s.logger.Error("could not write response", "op", op, "error", err)
	}
	return false, nil
}

// dropUndecodable skips input that could not be decoded. Undecodable frames
// are already consumed; stray bytes are dropped up to the next frame start.
// The peer gets no response since no request was identified.
func (s *Server) dropUndecodable(err error) {
	dropped := s.dec.Resync()
	s.logger.Error("could not decode request", "error", err, "dropped", dropped)
}

// dropUnknownOp ignores a well formed request naming an unsupported
// operation. Unlike validation errors it gets no response.
func (s *Server) dropUnknownOp(op string) {
	s.logger.Error("unknown op", "op", op)
}

func isDecodeError(err error) bool {
	return errors.Is(err, codec.ErrBadMagic) ||
		errors.Is(err, codec.ErrTruncated) ||
		errors.Is(err, codec.ErrMalformed)
}
