package client

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mklimuk/i2cbridge"
	"github.com/mklimuk/i2cbridge/bridge"
)

type call struct {
	addr byte
	w    []byte
	n    int
}

// start runs a bridge on the other end of two pipes.
func start(t *testing.T, bus i2cbridge.Transferer) (*Client, <-chan error) {
	t.Helper()
	reqR, reqW := io.Pipe()
	resR, resW := io.Pipe()
	srv := bridge.NewServer(reqR, resW, bus, bridge.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	done := make(chan error, 1)
	go func() {
		err := srv.Run(context.Background())
		_ = resW.Close()
		done <- err
	}()
	t.Cleanup(func() {
		_ = reqW.Close()
		_ = resR.Close()
	})
	return New(resR, reqW), done
}

func TestClient_RoundTrip(t *testing.T) {
	var calls []call
	bus := i2cbridge.TransferFunc(func(ctx context.Context, addr byte, w, r []byte) error {
		calls = append(calls, call{addr: addr, w: append([]byte{}, w...), n: len(r)})
		for i := range r {
			r[i] = byte(i + 1)
		}
		return nil
	})
	c, done := start(t, bus)

	require.NoError(t, c.Status())
	data, err := c.ReadI2C(1, 0x50, 4)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x02, 0x03, 0x04}, data)
	require.NoError(t, c.WriteI2C(1, 0x50, []byte{0xAA, 0xBB}))
	require.NoError(t, c.Exit())
	require.NoError(t, <-done)

	assert.Equal(t, []call{
		{addr: 1, w: []byte{0x50}, n: 4},
		{addr: 1, w: []byte{0x50, 0xAA, 0xBB}, n: 0},
	}, calls)
}

func TestClient_RemoteErrors(t *testing.T) {
	bus := i2cbridge.TransferFunc(func(ctx context.Context, addr byte, w, r []byte) error {
		return i2cbridge.ErrTransferFailed
	})
	c, done := start(t, bus)

	_, err := c.ReadI2C(1, 0x50, 1)
	var remote *RemoteError
	require.True(t, errors.As(err, &remote))
	assert.Equal(t, bridge.MsgInvalidLen, remote.Msg)

	_, err = c.ReadI2C(1, 0x50, 2)
	require.True(t, errors.As(err, &remote))
	assert.Equal(t, bridge.MsgReadFailed, remote.Msg)

	err = c.WriteI2C(1, 0x50, []byte{0x01})
	require.True(t, errors.As(err, &remote))
	assert.Equal(t, bridge.MsgWriteFailed, remote.Msg)

	err = c.WriteI2C(1, 0x50, nil)
	require.True(t, errors.As(err, &remote))
	assert.Equal(t, bridge.MsgInvalidLen, remote.Msg)

	require.NoError(t, c.Exit())
	require.NoError(t, <-done)
}

func TestClient_BridgeGone(t *testing.T) {
	bus := i2cbridge.TransferFunc(func(ctx context.Context, addr byte, w, r []byte) error {
		return i2cbridge.ErrDeviceUnavailable
	})
	c, done := start(t, bus)

	_, err := c.ReadI2C(1, 0x50, 2)
	assert.Error(t, err)
	assert.True(t, errors.Is(<-done, i2cbridge.ErrDeviceUnavailable))
}
