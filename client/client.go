// Package client speaks the bridge protocol from the supervising side.
package client

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/mklimuk/i2cbridge/bridge"
	"github.com/mklimuk/i2cbridge/codec"
)

var ErrBadResponse = errors.New("malformed bridge response")

// RemoteError is an err response sent by the bridge.
type RemoteError struct {
	Msg string
}

func (e *RemoteError) Error() string {
	return "bridge: " + e.Msg
}

// Client issues one request at a time and waits for its response.
type Client struct {
	mx  sync.Mutex
	enc *codec.Encoder
	dec *codec.Decoder
}

// New returns a client writing requests to w and reading responses from r.
func New(r io.Reader, w io.Writer) *Client {
	return &Client{enc: codec.NewEncoder(w), dec: codec.NewDecoder(r)}
}

func (c *Client) Status() error {
	_, err := c.call(codec.NewMap().SetString("op", bridge.OpStatus))
	return err
}

// ReadI2C reads n bytes from register addr.
func (c *Client) ReadI2C(bus, addr byte, n int) ([]byte, error) {
	res, err := c.call(codec.NewMap().
		SetString("op", bridge.OpReadI2C).
		SetInt("i2c", int64(bus)).
		SetInt("addr", int64(addr)).
		SetInt("len", int64(n)))
	if err != nil {
		return nil, err
	}
	l, ok := res.GetInt("len")
	if !ok {
		return nil, fmt.Errorf("%w: missing len", ErrBadResponse)
	}
	data, ok := res.GetBytes("data")
	if !ok || int64(len(data)) != l {
		return nil, fmt.Errorf("%w: data does not match len %d", ErrBadResponse, l)
	}
	return data, nil
}

// WriteI2C writes data to register addr.
func (c *Client) WriteI2C(bus, addr byte, data []byte) error {
	_, err := c.call(codec.NewMap().
		SetString("op", bridge.OpWriteI2C).
		SetInt("i2c", int64(bus)).
		SetInt("addr", int64(addr)).
		SetInt("len", int64(len(data))).
		SetBytes("data", data))
	return err
}

// Exit asks the bridge to stop. No response is expected.
func (c *Client) Exit() error {
	c.mx.Lock()
	defer c.mx.Unlock()
	return c.enc.Encode(codec.NewMap().SetString("op", bridge.OpExit))
}

func (c *Client) call(req *codec.Map) (*codec.Map, error) {
	c.mx.Lock()
	defer c.mx.Unlock()
	if err := c.enc.Encode(req); err != nil {
		return nil, fmt.Errorf("could not send request: %w", err)
	}
	res, err := c.dec.Decode()
	if err != nil {
		return nil, fmt.Errorf("could not read response: %w", err)
	}
	status, _ := res.GetString("status")
	switch status {
	case bridge.StatusOK:
		return res, nil
	case bridge.StatusErr:
		msg, _ := res.GetString("msg")
		return nil, &RemoteError{Msg: msg}
	default:
		return nil, fmt.Errorf("%w: status %q", ErrBadResponse, status)
	}
}
