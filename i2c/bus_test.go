package i2c

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"

	"github.com/mklimuk/i2cbridge"
)

type tx struct {
	addr uint16
	w    []byte
	rLen int
}

type fakeBus struct {
	txs    []tx
	reply  []byte
	err    error
	closed int
}

func (f *fakeBus) String() string                      { return "fake" }
func (f *fakeBus) SetSpeed(freq physic.Frequency) error { return nil }
func (f *fakeBus) Close() error {
	f.closed++
	return nil
}

func (f *fakeBus) Tx(addr uint16, w, r []byte) error {
	var wc []byte
	if w != nil {
		wc = append([]byte{}, w...)
	}
	f.txs = append(f.txs, tx{addr: addr, w: wc, rLen: len(r)})
	if f.err != nil {
		return f.err
	}
	copy(r, f.reply)
	return nil
}

func opener(f *fakeBus, devs *[]string) Opener {
	return func(dev string) (i2c.BusCloser, error) {
		*devs = append(*devs, dev)
		return f, nil
	}
}

func TestGenericBus_CombinedTransfer(t *testing.T) {
	fake := &fakeBus{reply: []byte{0x01, 0x02, 0x03, 0x04}}
	var devs []string
	bus := NewGenericBus("/dev/i2c-3", WithOpener(opener(fake, &devs)))

	r := make([]byte, 4)
	err := bus.Transfer(context.Background(), 0x01, []byte{0x50}, r)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x02, 0x03, 0x04}, r)
	assert.Equal(t, []string{"/dev/i2c-3"}, devs)
	require.Len(t, fake.txs, 1)
	assert.Equal(t, tx{addr: 0x01, w: []byte{0x50}, rLen: 4}, fake.txs[0])
	assert.Equal(t, 1, fake.closed)
}

func TestGenericBus_WriteOnly(t *testing.T) {
	fake := &fakeBus{}
	var devs []string
	bus := NewGenericBus("", WithOpener(opener(fake, &devs)))

	err := bus.Transfer(context.Background(), 0x01, []byte{0x50, 0xAA, 0xBB}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{DefaultDevice}, devs)
	require.Len(t, fake.txs, 1)
	assert.Equal(t, []byte{0x50, 0xAA, 0xBB}, fake.txs[0].w)
	assert.Equal(t, 0, fake.txs[0].rLen)
}

func TestGenericBus_ReadOnly(t *testing.T) {
	fake := &fakeBus{reply: []byte{0x11, 0x22}}
	var devs []string
	bus := NewGenericBus("", WithOpener(opener(fake, &devs)))

	r := make([]byte, 2)
	err := bus.Transfer(context.Background(), 0x01, []byte{}, r)
	require.NoError(t, err)
	require.Len(t, fake.txs, 1)
	assert.Nil(t, fake.txs[0].w)
	assert.Equal(t, 2, fake.txs[0].rLen)
}

func TestGenericBus_TxFailureClosesHandle(t *testing.T) {
	fake := &fakeBus{err: fmt.Errorf("remote I/O error")}
	var devs []string
	bus := NewGenericBus("", WithOpener(opener(fake, &devs)))

	err := bus.Transfer(context.Background(), 0x01, []byte{0x50}, make([]byte, 2))
	assert.True(t, errors.Is(err, i2cbridge.ErrTransferFailed))
	assert.False(t, errors.Is(err, i2cbridge.ErrDeviceUnavailable))
	assert.Equal(t, 1, fake.closed)
}

func TestGenericBus_OpenFailureIsDeviceUnavailable(t *testing.T) {
	bus := NewGenericBus("/dev/i2c-9", WithOpener(func(dev string) (i2c.BusCloser, error) {
		return nil, fmt.Errorf("no such file or directory")
	}))

	err := bus.Transfer(context.Background(), 0x01, []byte{0x50}, nil)
	assert.True(t, errors.Is(err, i2cbridge.ErrDeviceUnavailable))
	assert.Contains(t, err.Error(), "/dev/i2c-9")
}
