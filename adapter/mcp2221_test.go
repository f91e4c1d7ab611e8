package adapter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mklimuk/i2cbridge"
)

// fakeDevice emulates the MCP2221 HID protocol. respond builds the response
// report for each request report.
type fakeDevice struct {
	requests [][]byte
	pending  []byte
	respond  func(req []byte) []byte
	closed   int
}

func (f *fakeDevice) Write(p []byte) (int, error) {
	req := append([]byte{}, p...)
	f.requests = append(f.requests, req)
	f.pending = f.respond(req)
	return len(p), nil
}

func (f *fakeDevice) Read(p []byte) (int, error) {
	return copy(p, f.pending), nil
}

func (f *fakeDevice) Close() error {
	f.closed++
	return nil
}

func (f *fakeDevice) commands() []byte {
	var cmds []byte
	for _, r := range f.requests {
		cmds = append(cmds, r[0])
	}
	return cmds
}

// slave answers reads with incrementing bytes starting at 1 and records writes.
type slave struct {
	written []byte
	state   byte
	toRead  int
	next    byte
}

func (s *slave) respond(req []byte) []byte {
	res := make([]byte, reportSize)
	res[0] = req[0]
	switch req[0] {
	case cmdWrite, cmdWriteNoStop:
		total := int(req[1]) | int(req[2])<<8
		chunk := min(total-len(s.written), chunkSize)
		s.written = append(s.written, req[4:4+chunk]...)
	case cmdRead, cmdReadRepeated:
		s.toRead = int(req[1]) | int(req[2])<<8
	case cmdGetI2CData:
		n := min(s.toRead, chunkSize)
		res[3] = byte(n)
		for i := 0; i < n; i++ {
			s.next++
			res[4+i] = s.next
		}
		s.toRead -= n
	case cmdStatus:
		res[8] = s.state
	}
	return res
}

func newTestAdapter(dev *fakeDevice) *MCP2221 {
	return NewMCP2221(
		WithResponseWait(0),
		WithOpener(func(index int) (Device, error) { return dev, nil }),
	)
}

func TestMCP2221_CombinedTransfer(t *testing.T) {
	s := &slave{}
	dev := &fakeDevice{respond: s.respond}
	a := newTestAdapter(dev)

	r := make([]byte, 4)
	err := a.Transfer(context.Background(), 0x50, []byte{0x10}, r)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x02, 0x03, 0x04}, r)
	assert.Equal(t, []byte{0x10}, s.written)
	assert.Equal(t, []byte{cmdWriteNoStop, cmdStatus, cmdReadRepeated, cmdGetI2CData}, dev.commands())
	assert.Equal(t, byte(0x50<<1), dev.requests[0][3])
	assert.Equal(t, byte(0x50<<1+1), dev.requests[2][3])
	assert.Equal(t, 1, dev.closed)
}

func TestMCP2221_LongWriteIsChunked(t *testing.T) {
	s := &slave{}
	dev := &fakeDevice{respond: s.respond}
	a := newTestAdapter(dev)
	payload := bytes.Repeat([]byte{0xAB}, 130)

	require.NoError(t, a.Transfer(context.Background(), 0x20, payload, nil))
	assert.Equal(t, payload, s.written)
	assert.Equal(t, []byte{cmdWrite, cmdWrite, cmdWrite, cmdStatus}, dev.commands())
}

func TestMCP2221_LongReadIsCollected(t *testing.T) {
	s := &slave{}
	dev := &fakeDevice{respond: s.respond}
	a := newTestAdapter(dev)

	r := make([]byte, 100)
	require.NoError(t, a.Transfer(context.Background(), 0x20, nil, r))
	assert.Equal(t, []byte{cmdRead, cmdGetI2CData, cmdGetI2CData}, dev.commands())
	assert.Equal(t, byte(1), r[0])
	assert.Equal(t, byte(100), r[99])
}

func TestMCP2221_Nack(t *testing.T) {
	s := &slave{state: stateAddressNack}
	a := newTestAdapter(&fakeDevice{respond: s.respond})

	err := a.Transfer(context.Background(), 0x20, []byte{0x01, 0x02}, nil)
	assert.True(t, errors.Is(err, i2cbridge.ErrTransferFailed))
}

func TestMCP2221_Busy(t *testing.T) {
	dev := &fakeDevice{respond: func(req []byte) []byte {
		res := make([]byte, reportSize)
		res[0] = req[0]
		res[1] = respBusy
		return res
	}}
	a := newTestAdapter(dev)

	err := a.Transfer(context.Background(), 0x20, []byte{0x01}, nil)
	assert.True(t, errors.Is(err, i2cbridge.ErrBusBusy))
	assert.True(t, errors.Is(err, i2cbridge.ErrTransferFailed))
	assert.Equal(t, 1, dev.closed)
}

func TestMCP2221_CommandRejected(t *testing.T) {
	for _, cmd := range []byte{cmdWrite, cmdRead} {
		t.Run(fmt.Sprintf("%#x", cmd), func(t *testing.T) {
			s := &slave{}
			dev := &fakeDevice{respond: func(req []byte) []byte {
				res := s.respond(req)
				if req[0] == cmd {
					res[1] = 0x02
				}
				return res
			}}
			a := newTestAdapter(dev)

			var w, r []byte
			if cmd == cmdWrite {
				w = []byte{0x01}
			} else {
				r = make([]byte, 2)
			}
			err := a.Transfer(context.Background(), 0x20, w, r)
			assert.True(t, errors.Is(err, i2cbridge.ErrTransferFailed))
			assert.False(t, errors.Is(err, i2cbridge.ErrBusBusy))
			assert.Equal(t, []byte{cmd}, dev.commands())
		})
	}
}

func TestMCP2221_ReadEngineError(t *testing.T) {
	dev := &fakeDevice{respond: func(req []byte) []byte {
		res := make([]byte, reportSize)
		res[0] = req[0]
		if req[0] == cmdGetI2CData {
			res[1] = respReadError
		}
		return res
	}}
	a := newTestAdapter(dev)

	err := a.Transfer(context.Background(), 0x20, nil, make([]byte, 2))
	assert.True(t, errors.Is(err, i2cbridge.ErrTransferFailed))
}

func TestMCP2221_DeviceMissing(t *testing.T) {
	a := NewMCP2221(WithOpener(func(index int) (Device, error) {
		return nil, fmt.Errorf("MCP2221 device not found")
	}))

	err := a.Transfer(context.Background(), 0x20, []byte{0x01}, nil)
	assert.True(t, errors.Is(err, i2cbridge.ErrDeviceUnavailable))
}

func TestMCP2221_Status(t *testing.T) {
	dev := &fakeDevice{respond: func(req []byte) []byte {
		res := make([]byte, reportSize)
		res[0] = req[0]
		res[8] = 0x00
		res[9], res[10] = 0x10, 0x01
		res[11], res[12] = 0x08, 0x00
		res[14] = 0x76
		res[16], res[17] = 0xA0, 0x00
		return res
	}}
	a := newTestAdapter(dev)

	status, err := a.ReleaseBus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, statusCancel, dev.requests[0][2])
	assert.Equal(t, &MCP2221Status{
		I2CSpeedDivider:        0x76,
		CurrentAddress:         "a000",
		LastWriteRequestedSize: 0x0110,
		LastWriteSentSize:      0x08,
	}, status)

	_, err = a.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, byte(0x00), dev.requests[1][2])
}
