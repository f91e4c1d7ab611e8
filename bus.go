package i2cbridge

import (
	"context"
	"errors"
	"fmt"
)

// MaxBufferSize is the largest transfer, in bytes, the bridge accepts in
// either direction.
const MaxBufferSize = 8192

// MaxAddress is the highest valid 7-bit I2C address.
const MaxAddress = 127

// ErrDeviceUnavailable means the bus device itself could not be opened. It is
// an environment failure, not a request failure, and stops the bridge.
var ErrDeviceUnavailable = errors.New("i2c device unavailable")

// ErrTransferFailed covers every transaction level failure (NACK, bus error,
// ioctl failure). Partially completed transfers are reported the same way.
var ErrTransferFailed = errors.New("i2c transfer failed")

var ErrBusBusy = fmt.Errorf("I2C engine is busy (command not completed): %w", ErrTransferFailed)

// Transferer performs one I2C transaction addressed to addr. A non-empty w is
// written first, then len(r) bytes are read into r. When both are present
// they are submitted as one combined transaction (repeated start, no bus
// release in between).
type Transferer interface {
	Transfer(ctx context.Context, addr byte, w, r []byte) error
}

// TransferFunc adapts a plain function to the Transferer interface.
type TransferFunc func(ctx context.Context, addr byte, w, r []byte) error

func (f TransferFunc) Transfer(ctx context.Context, addr byte, w, r []byte) error {
	return f(ctx, addr, w, r)
}
