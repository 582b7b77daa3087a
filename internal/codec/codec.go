// Package codec provides the deterministic, length-prefixed byte encoding
// used to carry IPC message bodies between proxies and stubs.
//
// Wire format summary:
//   - fixed-size scalars (uint8/16/32/64, int8/16/32/64, float32/64, bool):
//     written contiguously in little-endian byte order, size = sizeof(T).
//   - strings: uint32 length prefix followed by the raw UTF-8 bytes.
//   - scalar sequences ([]uintN etc.): uint64 count prefix followed by
//     count*sizeof(T) bytes.
//   - composite sequences: uint64 count prefix followed by count encoded
//     elements.
//   - mappings: uint32 count prefix, then key/value pairs in iteration order.
//
// Every decode failure returns a *Error naming the type that could not be
// decoded; no partial structures are ever returned to the caller.
package codec

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// byteOrder is fixed at little-endian so encoded messages are portable
// across machines regardless of native endianness. Only the message target
// id strictly requires little-endian on the wire; this codec applies it
// uniformly so every other scalar round-trips identically cross-platform.
var byteOrder = binary.LittleEndian

// ErrShortRead is returned when the underlying reader is exhausted before a
// complete value could be decoded.
var ErrShortRead = fmt.Errorf("codec: short read")

// Error wraps a decode/encode failure with the name of the failing type so
// callers (and logs) can tell which field in a larger message went bad.
type Error struct {
	Type string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("codec: %s: %v", e.Type, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func wrapErr(typ string, err error) error {
	if err == nil {
		return nil
	}
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		err = ErrShortRead
	}
	return &Error{Type: typ, Err: err}
}

// Encoder writes codec-framed values onto an io.Writer.
type Encoder struct {
	w io.Writer
}

// NewEncoder returns an Encoder writing to w.
func NewEncoder(w io.Writer) *Encoder { return &Encoder{w: w} }

// Decoder reads codec-framed values from an io.Reader.
type Decoder struct {
	r io.Reader
}

// NewDecoder returns a Decoder reading from r.
func NewDecoder(r io.Reader) *Decoder { return &Decoder{r: r} }

func (e *Encoder) writeRaw(typ string, data []byte) error {
	if _, err := e.w.Write(data); err != nil {
		return wrapErr(typ, err)
	}
	return nil
}

func (d *Decoder) readRaw(typ string, n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(d.r, buf); err != nil {
		return nil, wrapErr(typ, err)
	}
	return buf, nil
}

// EncodeUint8 writes a single byte.
func (e *Encoder) EncodeUint8(v uint8) error { return e.writeRaw("uint8", []byte{v}) }

// DecodeUint8 reads a single byte.
func (d *Decoder) DecodeUint8() (uint8, error) {
	b, err := d.readRaw("uint8", 1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// EncodeBool writes a boolean as a single byte (0 or 1).
func (e *Encoder) EncodeBool(v bool) error {
	var b uint8
	if v {
		b = 1
	}
	return e.writeRaw("bool", []byte{b})
}

// DecodeBool reads a boolean byte. Any non-zero byte decodes to true.
func (d *Decoder) DecodeBool() (bool, error) {
	b, err := d.readRaw("bool", 1)
	if err != nil {
		return false, err
	}
	return b[0] != 0, nil
}

// EncodeUint16 writes a uint16 in the codec's fixed byte order.
func (e *Encoder) EncodeUint16(v uint16) error {
	buf := make([]byte, 2)
	byteOrder.PutUint16(buf, v)
	return e.writeRaw("uint16", buf)
}

// DecodeUint16 reads a uint16.
func (d *Decoder) DecodeUint16() (uint16, error) {
	b, err := d.readRaw("uint16", 2)
	if err != nil {
		return 0, err
	}
	return byteOrder.Uint16(b), nil
}

// EncodeUint32 writes a uint32 in the codec's fixed byte order. This is also
// used to encode the IPC message target object id.
func (e *Encoder) EncodeUint32(v uint32) error {
	buf := make([]byte, 4)
	byteOrder.PutUint32(buf, v)
	return e.writeRaw("uint32", buf)
}

// DecodeUint32 reads a uint32.
func (d *Decoder) DecodeUint32() (uint32, error) {
	b, err := d.readRaw("uint32", 4)
	if err != nil {
		return 0, err
	}
	return byteOrder.Uint32(b), nil
}

// EncodeInt32 writes an int32.
func (e *Encoder) EncodeInt32(v int32) error { return e.EncodeUint32(uint32(v)) }

// DecodeInt32 reads an int32.
func (d *Decoder) DecodeInt32() (int32, error) {
	v, err := d.DecodeUint32()
	return int32(v), err
}

// EncodeUint64 writes a uint64.
func (e *Encoder) EncodeUint64(v uint64) error {
	buf := make([]byte, 8)
	byteOrder.PutUint64(buf, v)
	return e.writeRaw("uint64", buf)
}

// DecodeUint64 reads a uint64.
func (d *Decoder) DecodeUint64() (uint64, error) {
	b, err := d.readRaw("uint64", 8)
	if err != nil {
		return 0, err
	}
	return byteOrder.Uint64(b), nil
}

// EncodeInt64 writes an int64.
func (e *Encoder) EncodeInt64(v int64) error { return e.EncodeUint64(uint64(v)) }

// DecodeInt64 reads an int64.
func (d *Decoder) DecodeInt64() (int64, error) {
	v, err := d.DecodeUint64()
	return int64(v), err
}

// EncodeFloat64 writes a float64.
func (e *Encoder) EncodeFloat64(v float64) error { return e.EncodeUint64(math.Float64bits(v)) }

// DecodeFloat64 reads a float64.
func (d *Decoder) DecodeFloat64() (float64, error) {
	v, err := d.DecodeUint64()
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(v), nil
}

// EncodeString writes a uint32 length prefix followed by the raw bytes.
// Strings longer than 2^32-1 bytes cannot be represented and return an error.
func (e *Encoder) EncodeString(s string) error {
	if uint64(len(s)) > math.MaxUint32 {
		return &Error{Type: "string", Err: fmt.Errorf("length %d exceeds uint32 range", len(s))}
	}
	if err := e.EncodeUint32(uint32(len(s))); err != nil {
		return err
	}
	return e.writeRaw("string", []byte(s))
}

// DecodeString reads a uint32-length-prefixed string.
func (d *Decoder) DecodeString() (string, error) {
	n, err := d.DecodeUint32()
	if err != nil {
		return "", wrapErr("string", err)
	}
	b, err := d.readRaw("string", int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// EncodeBytes writes a uint64-count-prefixed raw byte sequence (the scalar
// sequence form: count * sizeof(byte)).
func (e *Encoder) EncodeBytes(b []byte) error {
	if err := e.EncodeUint64(uint64(len(b))); err != nil {
		return err
	}
	return e.writeRaw("bytes", b)
}

// DecodeBytes reads a uint64-count-prefixed raw byte sequence.
func (d *Decoder) DecodeBytes() ([]byte, error) {
	n, err := d.DecodeUint64()
	if err != nil {
		return nil, wrapErr("bytes", err)
	}
	return d.readRaw("bytes", int(n))
}

// EncodeUint32Slice writes a uint64-count-prefixed sequence of uint32 scalars.
func (e *Encoder) EncodeUint32Slice(vs []uint32) error {
	if err := e.EncodeUint64(uint64(len(vs))); err != nil {
		return err
	}
	for _, v := range vs {
		if err := e.EncodeUint32(v); err != nil {
			return err
		}
	}
	return nil
}

// DecodeUint32Slice reads a uint64-count-prefixed sequence of uint32 scalars.
func (d *Decoder) DecodeUint32Slice() ([]uint32, error) {
	n, err := d.DecodeUint64()
	if err != nil {
		return nil, wrapErr("[]uint32", err)
	}
	out := make([]uint32, 0, minCap(n))
	for i := uint64(0); i < n; i++ {
		v, err := d.DecodeUint32()
		if err != nil {
			return nil, wrapErr("[]uint32", err)
		}
		out = append(out, v)
	}
	return out, nil
}

// EncodeStringSlice writes a uint64-count-prefixed sequence of composite
// (length-prefixed) strings.
func (e *Encoder) EncodeStringSlice(vs []string) error {
	if err := e.EncodeUint64(uint64(len(vs))); err != nil {
		return err
	}
	for _, v := range vs {
		if err := e.EncodeString(v); err != nil {
			return err
		}
	}
	return nil
}

// DecodeStringSlice reads a uint64-count-prefixed sequence of strings.
func (d *Decoder) DecodeStringSlice() ([]string, error) {
	n, err := d.DecodeUint64()
	if err != nil {
		return nil, wrapErr("[]string", err)
	}
	out := make([]string, 0, minCap(n))
	for i := uint64(0); i < n; i++ {
		v, err := d.DecodeString()
		if err != nil {
			return nil, wrapErr("[]string", err)
		}
		out = append(out, v)
	}
	return out, nil
}

// EncodeStringMap writes a uint32-count-prefixed mapping.
func (e *Encoder) EncodeStringMap(m map[string]string) error {
	if uint64(len(m)) > math.MaxUint32 {
		return &Error{Type: "map[string]string", Err: fmt.Errorf("length %d exceeds uint32 range", len(m))}
	}
	if err := e.EncodeUint32(uint32(len(m))); err != nil {
		return err
	}
	for k, v := range m {
		if err := e.EncodeString(k); err != nil {
			return err
		}
		if err := e.EncodeString(v); err != nil {
			return err
		}
	}
	return nil
}

// DecodeStringMap reads a uint32-count-prefixed mapping.
func (d *Decoder) DecodeStringMap() (map[string]string, error) {
	n, err := d.DecodeUint32()
	if err != nil {
		return nil, wrapErr("map[string]string", err)
	}
	out := make(map[string]string, minCap(uint64(n)))
	for i := uint32(0); i < n; i++ {
		k, err := d.DecodeString()
		if err != nil {
			return nil, wrapErr("map[string]string", err)
		}
		v, err := d.DecodeString()
		if err != nil {
			return nil, wrapErr("map[string]string", err)
		}
		out[k] = v
	}
	return out, nil
}

// Encodable is implemented by domain types (parameter values, responses,
// selectors, requests) that serialize themselves to a byte sequence. The
// codec then frames that sequence like any other scalar-sequence ([]byte).
type Encodable interface {
	EncodeDomain() ([]byte, error)
}

// Decodable is implemented by domain types that reconstruct themselves from
// a previously-encoded byte sequence.
type Decodable interface {
	DecodeDomain([]byte) error
}

// EncodeDomainValue delegates to v's domain-specific serializer and frames
// the result as a byte scalar-sequence.
func (e *Encoder) EncodeDomainValue(v Encodable) error {
	b, err := v.EncodeDomain()
	if err != nil {
		return &Error{Type: "domain", Err: err}
	}
	return e.EncodeBytes(b)
}

// DecodeDomainValue reads a framed byte sequence and delegates reconstruction
// to v's domain-specific deserializer.
func (d *Decoder) DecodeDomainValue(v Decodable) error {
	b, err := d.DecodeBytes()
	if err != nil {
		return wrapErr("domain", err)
	}
	if err := v.DecodeDomain(b); err != nil {
		return &Error{Type: "domain", Err: err}
	}
	return nil
}

// minCap bounds a pre-allocation hint so a corrupt huge count prefix cannot
// be used to force an enormous up-front allocation before any bytes are
// actually read.
func minCap(n uint64) int {
	const cap = 4096
	if n > cap {
		return cap
	}
	return int(n)
}
