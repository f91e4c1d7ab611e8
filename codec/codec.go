// Package codec implements the framed field map encoding spoken on the bridge
// stdin/stdout channel.
//
// A frame is a 4 byte header followed by the payload:
//
//	magic   2 bytes  'p' 'k'
//	length  uint16   payload length, big endian
//
// The payload is a sequence of fields:
//
//	klen  uint8, key bytes, kind uint8 ('s', 'i' or 'b'), value
//
// String and byte values are prefixed with a big endian uint16 length,
// integers are encoded as big endian int64.
package codec

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

const (
	HeaderLen  = 4
	MaxPayload = math.MaxUint16
	maxKeyLen  = math.MaxUint8
	maxValLen  = math.MaxUint16
)

var magic = [2]byte{'p', 'k'}

var (
	ErrBadMagic        = errors.New("codec: bad frame magic")
	ErrTruncated       = errors.New("codec: truncated frame")
	ErrMalformed       = errors.New("codec: malformed payload")
	ErrPayloadTooLarge = errors.New("codec: payload too large")
)

// Decoder reads frames from a buffered stream.
type Decoder struct {
	r *bufio.Reader
	// lost is set while the stream is not positioned on a frame header.
	lost bool
}

func NewDecoder(r io.Reader) *Decoder {
	// a full frame always fits the buffer so Peek never fails on size
	return &Decoder{r: bufio.NewReaderSize(r, HeaderLen+MaxPayload)}
}

// Buffered returns the number of bytes already read from the stream but not
// yet decoded.
func (d *Decoder) Buffered() int {
	return d.r.Buffered()
}

// Decode reads one frame. It returns io.EOF only when the stream ends on a
// frame boundary. A frame with a bad magic is left unconsumed, see Resync.
func (d *Decoder) Decode() (*Map, error) {
	hdr, err := d.r.Peek(HeaderLen)
	if err != nil {
		if errors.Is(err, io.EOF) && len(hdr) == 0 {
			return nil, io.EOF
		}
		if errors.Is(err, io.EOF) {
			_, _ = d.r.Discard(len(hdr))
			return nil, fmt.Errorf("%w: header: %w", ErrTruncated, io.ErrUnexpectedEOF)
		}
		return nil, err
	}
	if hdr[0] != magic[0] || hdr[1] != magic[1] {
		d.lost = true
		return nil, fmt.Errorf("%w: %#x %#x", ErrBadMagic, hdr[0], hdr[1])
	}
	n := int(binary.BigEndian.Uint16(hdr[2:4]))
	_, _ = d.r.Discard(HeaderLen)
	payload := make([]byte, n)
	if _, err := io.ReadFull(d.r, payload); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: payload: %w", ErrTruncated, io.ErrUnexpectedEOF)
		}
		return nil, err
	}
	return DecodePayload(payload)
}

// Resync recovers from a bad magic: it drops at least one buffered byte and
// then everything up to the next byte that could start a frame. Frames that
// failed after their header was read are already consumed, so Resync drops
// nothing for them. It never blocks on the underlying reader.
func (d *Decoder) Resync() int {
	if !d.lost {
		return 0
	}
	d.lost = false
	dropped := 0
	for d.r.Buffered() > 0 {
		b, err := d.r.Peek(1)
		if err != nil {
			break
		}
		if dropped > 0 && b[0] == magic[0] {
			break
		}
		_, _ = d.r.Discard(1)
		dropped++
	}
	return dropped
}

// DecodePayload decodes the fields of an unframed payload.
func DecodePayload(payload []byte) (*Map, error) {
	m := NewMap()
	i := 0
	for i < len(payload) {
		klen := int(payload[i])
		i++
		if klen == 0 || len(payload)-i < klen+1 {
			return nil, fmt.Errorf("%w: short key at offset %d", ErrMalformed, i)
		}
		key := string(payload[i : i+klen])
		i += klen
		if _, dup := m.Get(key); dup {
			return nil, fmt.Errorf("%w: duplicate key %q", ErrMalformed, key)
		}
		kind := Kind(payload[i])
		i++
		switch kind {
		case KindInt:
			if len(payload)-i < 8 {
				return nil, fmt.Errorf("%w: short int %q", ErrMalformed, key)
			}
			m.SetInt(key, int64(binary.BigEndian.Uint64(payload[i:i+8])))
			i += 8
		case KindString, KindBytes:
			if len(payload)-i < 2 {
				return nil, fmt.Errorf("%w: short length %q", ErrMalformed, key)
			}
			l := int(binary.BigEndian.Uint16(payload[i : i+2]))
			i += 2
			if len(payload)-i < l {
				return nil, fmt.Errorf("%w: short value %q", ErrMalformed, key)
			}
			if kind == KindString {
				m.SetString(key, string(payload[i:i+l]))
			} else {
				m.SetBytes(key, payload[i:i+l])
			}
			i += l
		default:
			return nil, fmt.Errorf("%w: unknown kind %s for %q", ErrMalformed, kind, key)
		}
	}
	return m, nil
}

// EncodePayload encodes the fields of m without the frame header.
func EncodePayload(m *Map) ([]byte, error) {
	out := make([]byte, 0, 64)
	for _, f := range m.fields {
		if len(f.key) == 0 || len(f.key) > maxKeyLen {
			return nil, fmt.Errorf("%w: invalid key length %d", ErrMalformed, len(f.key))
		}
		out = append(out, byte(len(f.key)))
		out = append(out, f.key...)
		out = append(out, byte(f.val.Kind))
		switch f.val.Kind {
		case KindInt:
			out = binary.BigEndian.AppendUint64(out, uint64(f.val.Int))
		case KindString:
			if len(f.val.Str) > maxValLen {
				return nil, fmt.Errorf("%w: %q", ErrPayloadTooLarge, f.key)
			}
			out = binary.BigEndian.AppendUint16(out, uint16(len(f.val.Str)))
			out = append(out, f.val.Str...)
		case KindBytes:
			if len(f.val.Bytes) > maxValLen {
				return nil, fmt.Errorf("%w: %q", ErrPayloadTooLarge, f.key)
			}
			out = binary.BigEndian.AppendUint16(out, uint16(len(f.val.Bytes)))
			out = append(out, f.val.Bytes...)
		default:
			return nil, fmt.Errorf("%w: unknown kind %s for %q", ErrMalformed, f.val.Kind, f.key)
		}
	}
	if len(out) > MaxPayload {
		return nil, ErrPayloadTooLarge
	}
	return out, nil
}

// Encoder writes frames to a stream, flushing after each one.
type Encoder struct {
	w *bufio.Writer
}

func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: bufio.NewWriter(w)}
}

func (e *Encoder) Encode(m *Map) error {
	payload, err := EncodePayload(m)
	if err != nil {
		return err
	}
	var hdr [HeaderLen]byte
	hdr[0], hdr[1] = magic[0], magic[1]
	binary.BigEndian.PutUint16(hdr[2:4], uint16(len(payload)))
	if _, err := e.w.Write(hdr[:]); err != nil {
		return err
	}
	if _, err := e.w.Write(payload); err != nil {
		return err
	}
	return e.w.Flush()
}
