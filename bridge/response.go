package bridge

import "github.com/mklimuk/i2cbridge/codec"

const (
	StatusOK  = "ok"
	StatusErr = "err"
)

// Error messages returned to the peer.
const (
	MsgInvalidBus  = "invalid 'i2c' field"
	MsgInvalidAddr = "invalid 'addr' field"
	MsgInvalidLen  = "invalid 'len' field"
	MsgInvalidData = "missing or invalid 'data' field"
	MsgReadFailed  = "read_i2c failed"
	MsgWriteFailed = "write_i2c failed"
)

func okResponse() *codec.Map {
	return codec.NewMap().SetString("status", StatusOK)
}

func okDataResponse(data []byte) *codec.Map {
	return okResponse().
		SetInt("len", int64(len(data))).
		SetBytes("data", data)
}

func errResponse(msg string) *codec.Map {
	return codec.NewMap().
		SetString("status", StatusErr).
		SetString("msg", msg)
}
