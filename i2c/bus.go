package i2c

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mklimuk/i2cbridge"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

const DefaultDevice = "/dev/i2c-1"

var _ i2cbridge.Transferer = &GenericBus{}

// Opener returns a handle to the named bus device.
type Opener func(dev string) (i2c.BusCloser, error)

var hostOnce sync.Once
var hostErr error

// OpenHost is the default Opener. It initializes periph host drivers on first
// use and opens the device through the i2c registry.
func OpenHost(dev string) (i2c.BusCloser, error) {
	hostOnce.Do(func() {
		state, err := host.Init()
		if err != nil {
			hostErr = fmt.Errorf("could not init host: %w", err)
			return
		}
		for _, driver := range state.Loaded {
			slog.Debug("host driver loaded", "driver", driver.String())
		}
	})
	if hostErr != nil {
		return nil, hostErr
	}
	return i2creg.Open(dev)
}

type GenericBusOption func(*GenericBus)

func WithOpener(open Opener) GenericBusOption {
	return func(b *GenericBus) {
		b.open = open
	}
}

// GenericBus performs transfers on a Linux i2c-dev bus. The device is opened
// and closed for every transfer, so no handle outlives a request.
type GenericBus struct {
	dev  string
	open Opener
}

func NewGenericBus(dev string, opts ...GenericBusOption) *GenericBus {
	if dev == "" {
		dev = DefaultDevice
	}
	b := &GenericBus{dev: dev, open: OpenHost}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *GenericBus) Device() string {
	return b.dev
}

// Transfer submits w and r as a single transaction. periph issues one
// I2C_RDWR ioctl carrying a write and a read message when both are set.
// There is no timeout: a device holding the bus blocks the call.
func (b *GenericBus) Transfer(ctx context.Context, addr byte, w, r []byte) error {
	bus, err := b.open(b.dev)
	if err != nil {
		return fmt.Errorf("%w: could not open i2c bus %s: %v", i2cbridge.ErrDeviceUnavailable, b.dev, err)
	}
	defer func() {
		if err := bus.Close(); err != nil {
			slog.Warn("could not close i2c bus", "device", b.dev, "error", err)
		}
	}()
	if len(w) == 0 {
		w = nil
	}
	if len(r) == 0 {
		r = nil
	}
	if w == nil && r == nil {
		return nil
	}
	err = bus.Tx(uint16(addr), w, r)
	if err != nil {
		return fmt.Errorf("%w: addr %#x: %v", i2cbridge.ErrTransferFailed, addr, err)
	}
	return nil
}
