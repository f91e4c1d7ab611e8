package adapter

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/karalabe/hid"

	"github.com/mklimuk/i2cbridge"
)

const VendorID = 0x04D8
const ProductID = 0x00DD

const reportSize = 64

// payload bytes carried by one HID report
const chunkSize = 60

// MCP2221 commands
const (
	cmdStatus        byte = 0x10
	cmdGetI2CData    byte = 0x40
	cmdWrite         byte = 0x90
	cmdRead          byte = 0x91
	cmdReadRepeated  byte = 0x93
	cmdWriteNoStop   byte = 0x94
	statusCancel     byte = 0x10
	respOK           byte = 0x00
	respBusy         byte = 0x01
	respReadError    byte = 0x41
	readSizeError    byte = 127
	stateAddressNack byte = 0x25
)

var ErrCommandFailed = errors.New("command failed")

var _ i2cbridge.Transferer = &MCP2221{}

// Device is an open HID handle.
type Device interface {
	io.ReadWriteCloser
}

// Opener opens the HID device with the given enumeration index, -1 meaning
// the only one connected.
type Opener func(index int) (Device, error)

type MCP2221Status struct {
	I2CState               int    `yaml:"i2c_state"`
	I2CDataBufferCounter   int    `yaml:"i2c_data_buffer_counter"`
	I2CSpeedDivider        int    `yaml:"i2c_speed_divider"`
	I2CTimeout             int    `yaml:"i2c_timeout"`
	CurrentAddress         string `yaml:"current_address"`
	LastWriteRequestedSize uint16 `yaml:"last_write_requested_size"`
	LastWriteSentSize      uint16 `yaml:"last_write_sent_size"`
	ReadPending            int    `yaml:"read_pending"`
}

type MCP2221Option func(*MCP2221)

func WithIndex(index int) MCP2221Option {
	return func(d *MCP2221) {
		d.index = index
	}
}

func WithOpener(open Opener) MCP2221Option {
	return func(d *MCP2221) {
		d.open = open
	}
}

func WithResponseWait(wait time.Duration) MCP2221Option {
	return func(d *MCP2221) {
		d.responseWait = wait
	}
}

// MCP2221 drives a Microchip MCP2221 USB to I2C bridge over HID. The HID
// device is opened for every command sequence and closed afterwards.
type MCP2221 struct {
	mx           sync.Mutex
	index        int
	open         Opener
	request      []byte
	response     []byte
	responseWait time.Duration
}

func NewMCP2221(opts ...MCP2221Option) *MCP2221 {
	d := &MCP2221{
		index:        -1,
		open:         OpenHID,
		request:      make([]byte, reportSize),
		response:     make([]byte, reportSize),
		responseWait: 50 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// OpenHID opens an MCP2221 found by USB vendor and product ID.
func OpenHID(index int) (Device, error) {
	devs := hid.Enumerate(VendorID, ProductID)
	if len(devs) == 0 {
		return nil, fmt.Errorf("MCP2221 device not found")
	}
	if index < 0 {
		if len(devs) > 1 {
			return nil, fmt.Errorf("ambiguous device identification: %d devices", len(devs))
		}
		index = 0
	}
	if index >= len(devs) {
		return nil, fmt.Errorf("no device with id %d", index)
	}
	dev, err := devs[index].Open()
	if err != nil {
		return nil, fmt.Errorf("error opening device: %w", err)
	}
	return dev, nil
}

// Transfer runs a write, a read or a combined write/read. The combined form
// writes without STOP and reads with a repeated START.
func (d *MCP2221) Transfer(ctx context.Context, addr byte, w, r []byte) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	return d.withDevice(func(dev Device) error {
		if len(w) > 0 {
			cmd := cmdWrite
			if len(r) > 0 {
				cmd = cmdWriteNoStop
			}
			if err := d.write(ctx, dev, cmd, addr, w); err != nil {
				return err
			}
		}
		if len(r) > 0 {
			cmd := cmdRead
			if len(w) > 0 {
				cmd = cmdReadRepeated
			}
			if err := d.read(ctx, dev, cmd, addr, r); err != nil {
				return err
			}
		}
		return nil
	})
}

func (d *MCP2221) write(ctx context.Context, dev Device, cmd, addr byte, buffer []byte) error {
	for off := 0; off < len(buffer); off += chunkSize {
		end := min(off+chunkSize, len(buffer))
		d.resetBuffers()
		d.request[0] = cmd
		binary.LittleEndian.PutUint16(d.request[1:3], uint16(len(buffer)))
		d.request[3] = addr << 1
		copy(d.request[4:], buffer[off:end])
		if err := d.send(ctx, dev); err != nil {
			return fmt.Errorf("%w: write to %#x: %v", i2cbridge.ErrTransferFailed, addr, err)
		}
		if err := d.accepted(addr); err != nil {
			return err
		}
	}
	status, err := d.status(ctx, dev)
	if err != nil {
		return fmt.Errorf("%w: %v", i2cbridge.ErrTransferFailed, err)
	}
	if status.I2CState == int(stateAddressNack) {
		return fmt.Errorf("%w: address %#x not acknowledged", i2cbridge.ErrTransferFailed, addr)
	}
	return nil
}

func (d *MCP2221) read(ctx context.Context, dev Device, cmd, addr byte, buffer []byte) error {
	d.resetBuffers()
	d.request[0] = cmd
	binary.LittleEndian.PutUint16(d.request[1:3], uint16(len(buffer)))
	d.request[3] = addr<<1 + 1
	if err := d.send(ctx, dev); err != nil {
		return fmt.Errorf("%w: bus read from %#x: %v", i2cbridge.ErrTransferFailed, addr, err)
	}
	if err := d.accepted(addr); err != nil {
		return err
	}
	for got := 0; got < len(buffer); {
		d.resetBuffers()
		d.request[0] = cmdGetI2CData
		if err := d.send(ctx, dev); err != nil {
			return fmt.Errorf("%w: error getting read data from adapter: %v", i2cbridge.ErrTransferFailed, err)
		}
		if d.response[1] == respReadError {
			return fmt.Errorf("%w: error reading the I2C slave data from the I2C engine", i2cbridge.ErrTransferFailed)
		}
		n := int(d.response[3])
		if n == int(readSizeError) || n == 0 || n > chunkSize || got+n > len(buffer) {
			return fmt.Errorf("%w: invalid data size byte %d", i2cbridge.ErrTransferFailed, n)
		}
		copy(buffer[got:], d.response[4:4+n])
		got += n
	}
	return nil
}

// accepted checks the completion code of a write or read command.
func (d *MCP2221) accepted(addr byte) error {
	switch d.response[1] {
	case respOK:
		return nil
	case respBusy:
		slog.Debug("adapter busy")
		return i2cbridge.ErrBusBusy
	default:
		return fmt.Errorf("%w: command %#x for %#x rejected with code %#x", i2cbridge.ErrTransferFailed, d.response[0], addr, d.response[1])
	}
}

func (d *MCP2221) Status(ctx context.Context) (*MCP2221Status, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	var status *MCP2221Status
	err := d.withDevice(func(dev Device) error {
		var err error
		status, err = d.status(ctx, dev)
		return err
	})
	return status, err
}

func (d *MCP2221) status(ctx context.Context, dev Device) (*MCP2221Status, error) {
	d.resetBuffers()
	d.request[0] = cmdStatus
	if err := d.send(ctx, dev); err != nil {
		return nil, fmt.Errorf("status request failed: %w", err)
	}
	return bufferToStatus(d.response), nil
}

// ReleaseBus cancels the current transfer and frees a stuck I2C engine.
func (d *MCP2221) ReleaseBus(ctx context.Context) (*MCP2221Status, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	var status *MCP2221Status
	err := d.withDevice(func(dev Device) error {
		d.resetBuffers()
		d.request[0] = cmdStatus
		d.request[2] = statusCancel
		if err := d.send(ctx, dev); err != nil {
			return fmt.Errorf("release request failed: %w", err)
		}
		status = bufferToStatus(d.response)
		return nil
	})
	return status, err
}

func bufferToStatus(buffer []byte) *MCP2221Status {
	/*
		8: I2C engine state
		9: Lower byte (16-bit value) of the requested I2C transfer length
		10: Higher byte (16-bit value) of the requested I2C transfer length
		11:	Lower byte (16-bit value) of the already transferred (through I2C) number of bytes
		12:	Higher byte (16-bit value) of the already transferred (through I2C) number of bytes
		13:	Internal I2C data buffer counter
		14: Current I2C communication speed divider value
		15: Current I2C timeout value
		16:	Lower byte (16-bit value) of the I2C address being used
		17:	Higher byte (16-bit value) of the I2C address being used
	*/
	status := &MCP2221Status{
		I2CState:             int(buffer[8]),
		I2CDataBufferCounter: int(buffer[13]),
		I2CSpeedDivider:      int(buffer[14]),
		I2CTimeout:           int(buffer[15]),
		ReadPending:          int(buffer[25]),
		CurrentAddress:       hex.EncodeToString(buffer[16:18]),
	}
	status.LastWriteRequestedSize = binary.LittleEndian.Uint16(buffer[9:11])
	status.LastWriteSentSize = binary.LittleEndian.Uint16(buffer[11:13])
	return status
}

func (d *MCP2221) withDevice(fn func(dev Device) error) error {
	dev, err := d.open(d.index)
	if err != nil {
		return fmt.Errorf("%w: %v", i2cbridge.ErrDeviceUnavailable, err)
	}
	defer func() {
		if err := dev.Close(); err != nil {
			slog.Warn("could not close adapter", "error", err)
		}
	}()
	return fn(dev)
}

func (d *MCP2221) send(ctx context.Context, dev Device) error {
	slog.DebugContext(ctx, "sending message to adapter", "request", hex.EncodeToString(d.request))
	n, err := dev.Write(d.request)
	if err != nil {
		return fmt.Errorf("could not write request: %w", err)
	}
	if n != reportSize {
		return fmt.Errorf("short write: %d", n)
	}
	if d.responseWait > 0 {
		time.Sleep(d.responseWait)
	}
	n, err = dev.Read(d.response)
	if err != nil {
		return fmt.Errorf("could not read response: %w", err)
	}
	if n != reportSize {
		return fmt.Errorf("short read: %d", n)
	}
	if d.response[0] != d.request[0] {
		return fmt.Errorf("%w: response to %#x echoes %#x", ErrCommandFailed, d.request[0], d.response[0])
	}
	slog.DebugContext(ctx, "read message from adapter", "response", hex.EncodeToString(d.response))
	return nil
}

func (d *MCP2221) resetBuffers() {
	clear(d.request)
	clear(d.response)
}
