package bridge

import (
	"context"
	"errors"
	"log/slog"

	"github.com/mklimuk/i2cbridge"
	"github.com/mklimuk/i2cbridge/codec"
)

// Handler serves one decoded request. The returned error is reserved for
// failures that must stop the bridge; everything else is a response.
type Handler func(ctx context.Context, req *codec.Map) (*codec.Map, error)

// Handlers groups the request handlers sharing one bus.
type Handlers struct {
	bus i2cbridge.Transferer
}

func NewHandlers(bus i2cbridge.Transferer) *Handlers {
	return &Handlers{bus: bus}
}

// intField returns a numeric field. A missing field reads as zero, a field of
// another kind is reported as invalid.
func intField(req *codec.Map, key string) (int64, bool) {
	v, found := req.Get(key)
	if !found {
		return 0, true
	}
	if v.Kind != codec.KindInt {
		return 0, false
	}
	return v.Int, true
}

func sevenBit(req *codec.Map, key string) (byte, bool) {
	v, ok := intField(req, key)
	if !ok || v < 0 || v > i2cbridge.MaxAddress {
		return 0, false
	}
	return byte(v), true
}

// ReadI2C writes the register byte addr to the device and reads len bytes
// back in a single combined transaction.
func (h *Handlers) ReadI2C(ctx context.Context, req *codec.Map) (*codec.Map, error) {
	bus, ok := sevenBit(req, "i2c")
	if !ok {
		return errResponse(MsgInvalidBus), nil
	}
	addr, ok := sevenBit(req, "addr")
	if !ok {
		return errResponse(MsgInvalidAddr), nil
	}
	n, ok := intField(req, "len")
	if !ok || n <= 1 || n > i2cbridge.MaxBufferSize {
		return errResponse(MsgInvalidLen), nil
	}
	data := make([]byte, n)
	err := h.bus.Transfer(ctx, bus, []byte{addr}, data)
	if errors.Is(err, i2cbridge.ErrDeviceUnavailable) {
		return nil, err
	}
	if err != nil {
		slog.Debug("read_i2c transfer failed", "i2c", bus, "addr", addr, "len", n, "error", err)
		return errResponse(MsgReadFailed), nil
	}
	return okDataResponse(data), nil
}

// WriteI2C writes addr followed by the len payload bytes. The declared len is
// authoritative and must match the decoded payload exactly.
func (h *Handlers) WriteI2C(ctx context.Context, req *codec.Map) (*codec.Map, error) {
	addr, ok := sevenBit(req, "addr")
	if !ok {
		return errResponse(MsgInvalidAddr), nil
	}
	bus, ok := sevenBit(req, "i2c")
	if !ok {
		return errResponse(MsgInvalidBus), nil
	}
	n, ok := intField(req, "len")
	// the leading addr byte counts towards the transfer length
	size := n + 1
	if !ok || size <= 1 || size > i2cbridge.MaxBufferSize {
		return errResponse(MsgInvalidLen), nil
	}
	payload, ok := req.GetBytes("data")
	if !ok || int64(len(payload)) != n {
		return errResponse(MsgInvalidData), nil
	}
	out := make([]byte, size)
	out[0] = addr
	copy(out[1:], payload)
	err := h.bus.Transfer(ctx, bus, out, nil)
	if errors.Is(err, i2cbridge.ErrDeviceUnavailable) {
		return nil, err
	}
	if err != nil {
		slog.Debug("write_i2c transfer failed", "i2c", bus, "addr", addr, "len", n, "error", err)
		return errResponse(MsgWriteFailed), nil
	}
	return okResponse(), nil
}

// Status is a liveness probe.
func (h *Handlers) Status(ctx context.Context, req *codec.Map) (*codec.Map, error) {
	return okResponse(), nil
}
