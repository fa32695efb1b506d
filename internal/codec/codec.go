// Package codec lays out account and instruction data as an 8-byte
// discriminator followed by protobuf wire-format fields.
//
// Field numbers are part of the persisted layout: they are never reused and
// new fields are only appended. Every field is written even when it holds
// the zero value, and a field missing on read decodes to its zero value so
// older records stay readable.
package codec

import (
	"errors"
	"fmt"
	"math"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/alanyoungcy/minimarket/internal/domain"
)

// DiscriminatorSize is the length of the type tag in front of every record.
const DiscriminatorSize = 8

var (
	ErrDiscriminator = errors.New("codec: discriminator mismatch")
	ErrMalformed     = errors.New("codec: malformed data")
)

// Discriminator tags the type of a record.
type Discriminator [DiscriminatorSize]byte

// AccountDiscriminator tags an account layout named name.
func AccountDiscriminator(name string) Discriminator {
	return tag("account:" + name)
}

// InstructionDiscriminator tags the data of instruction name.
func InstructionDiscriminator(name string) Discriminator {
	return tag("global:" + name)
}

func tag(s string) Discriminator {
	var d Discriminator
	copy(d[:], crypto.Keccak256([]byte(s)))
	return d
}

// Has reports whether data starts with d.
func (d Discriminator) Has(data []byte) bool {
	return len(data) >= DiscriminatorSize && Discriminator(data[:DiscriminatorSize]) == d
}

// Encoder appends fields after a discriminator.
type Encoder struct {
	buf []byte
}

// NewEncoder starts a record tagged with d.
func NewEncoder(d Discriminator) *Encoder {
	buf := make([]byte, DiscriminatorSize, 128)
	copy(buf, d[:])
	return &Encoder{buf: buf}
}

// Uint writes v as a varint.
func (e *Encoder) Uint(num protowire.Number, v uint64) {
	e.buf = protowire.AppendTag(e.buf, num, protowire.VarintType)
	e.buf = protowire.AppendVarint(e.buf, v)
}

// Int writes v zigzag encoded.
func (e *Encoder) Int(num protowire.Number, v int64) {
	e.Uint(num, protowire.EncodeZigZag(v))
}

// Bool writes v as a varint 0 or 1.
func (e *Encoder) Bool(num protowire.Number, v bool) {
	e.Uint(num, protowire.EncodeBool(v))
}

// Float writes the IEEE 754 bits of v.
func (e *Encoder) Float(num protowire.Number, v float64) {
	e.buf = protowire.AppendTag(e.buf, num, protowire.Fixed64Type)
	e.buf = protowire.AppendFixed64(e.buf, math.Float64bits(v))
}

// Raw writes v length-delimited.
func (e *Encoder) Raw(num protowire.Number, v []byte) {
	e.buf = protowire.AppendTag(e.buf, num, protowire.BytesType)
	e.buf = protowire.AppendBytes(e.buf, v)
}

// String writes v length-delimited.
func (e *Encoder) String(num protowire.Number, v string) {
	e.buf = protowire.AppendTag(e.buf, num, protowire.BytesType)
	e.buf = protowire.AppendString(e.buf, v)
}

// Address writes the 20 address bytes length-delimited.
func (e *Encoder) Address(num protowire.Number, a domain.Address) {
	e.Raw(num, a.Bytes())
}

// Bytes returns the encoded record.
func (e *Encoder) Bytes() []byte {
	return e.buf
}

type field struct {
	typ   protowire.Type
	num   uint64
	bytes []byte
}

// Decoder reads fields from a record. The first error is sticky: getters
// return zero values once it is set and Err reports it.
type Decoder struct {
	fields map[protowire.Number]field
	err    error
}

// NewDecoder checks the discriminator and indexes the fields of data.
func NewDecoder(d Discriminator, data []byte) (*Decoder, error) {
	if !d.Has(data) {
		return nil, ErrDiscriminator
	}
	b := data[DiscriminatorSize:]
	dec := &Decoder{fields: make(map[protowire.Number]field)}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
		}
		b = b[n:]
		f := field{typ: typ}
		switch typ {
		case protowire.VarintType:
			f.num, n = protowire.ConsumeVarint(b)
		case protowire.Fixed64Type:
			f.num, n = protowire.ConsumeFixed64(b)
		case protowire.BytesType:
			f.bytes, n = protowire.ConsumeBytes(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return nil, fmt.Errorf("%w: field %d: %v", ErrMalformed, num, protowire.ParseError(n))
		}
		b = b[n:]
		dec.fields[num] = f
	}
	return dec, nil
}

func (d *Decoder) get(num protowire.Number, want protowire.Type) (field, bool) {
	if d.err != nil {
		return field{}, false
	}
	f, ok := d.fields[num]
	if !ok {
		return field{}, false
	}
	if f.typ != want {
		d.err = fmt.Errorf("%w: field %d has wire type %d, want %d", ErrMalformed, num, f.typ, want)
		return field{}, false
	}
	return f, true
}

// Uint reads a varint field.
func (d *Decoder) Uint(num protowire.Number) uint64 {
	f, _ := d.get(num, protowire.VarintType)
	return f.num
}

// Uint8 reads a varint that must fit in a byte.
func (d *Decoder) Uint8(num protowire.Number) uint8 {
	v := d.Uint(num)
	if v > math.MaxUint8 && d.err == nil {
		d.err = fmt.Errorf("%w: field %d value %d exceeds uint8", ErrMalformed, num, v)
	}
	return uint8(v)
}

// Uint16 reads a varint that must fit in 16 bits.
func (d *Decoder) Uint16(num protowire.Number) uint16 {
	v := d.Uint(num)
	if v > math.MaxUint16 && d.err == nil {
		d.err = fmt.Errorf("%w: field %d value %d exceeds uint16", ErrMalformed, num, v)
	}
	return uint16(v)
}

// Int reads a zigzag field.
func (d *Decoder) Int(num protowire.Number) int64 {
	return protowire.DecodeZigZag(d.Uint(num))
}

// Bool reads a varint field as a bool.
func (d *Decoder) Bool(num protowire.Number) bool {
	return d.Uint(num) != 0
}

// Float reads a fixed64 field as a float64.
func (d *Decoder) Float(num protowire.Number) float64 {
	f, _ := d.get(num, protowire.Fixed64Type)
	return math.Float64frombits(f.num)
}

// Raw returns a copy of a length-delimited field.
func (d *Decoder) Raw(num protowire.Number) []byte {
	f, ok := d.get(num, protowire.BytesType)
	if !ok {
		return nil
	}
	return append([]byte(nil), f.bytes...)
}

// String reads a length-delimited field as a string.
func (d *Decoder) String(num protowire.Number) string {
	f, _ := d.get(num, protowire.BytesType)
	return string(f.bytes)
}

// Address reads a 20-byte address field.
func (d *Decoder) Address(num protowire.Number) domain.Address {
	f, ok := d.get(num, protowire.BytesType)
	if !ok {
		return domain.ZeroAddress
	}
	if len(f.bytes) != common.AddressLength {
		d.err = fmt.Errorf("%w: field %d is %d bytes, want an address", ErrMalformed, num, len(f.bytes))
		return domain.ZeroAddress
	}
	return common.BytesToAddress(f.bytes)
}

// Err returns the first error hit by a getter.
func (d *Decoder) Err() error {
	return d.err
}
