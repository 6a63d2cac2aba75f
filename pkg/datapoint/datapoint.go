// Package datapoint implements the typed datapoint (DP) model, the basic
// semantic unit of the Tuya local protocol.
//
// A datapoint is a small tagged value identified by a one-byte id. Devices
// report state and accept commands as batches of datapoints; everything above
// the frame layer speaks in them.
//
// Wire record format (big-endian):
//
//	id (1) | type (1) | length (2) | value (length bytes)
//
// Numeric values are fixed-width big-endian, strings are UTF-8, raw values
// are opaque bytes.
package datapoint

import (
	"encoding/binary"
	"fmt"
)

// Type is the wire type tag of a datapoint value.
type Type uint8

// Datapoint type tags. The values match the Tuya DP wire encoding.
const (
	TypeRaw    Type = 0x00
	TypeBool   Type = 0x01
	TypeInt32  Type = 0x02
	TypeString Type = 0x03
	TypeEnum8  Type = 0x04
	TypeBitmap Type = 0x05
)

// String returns the name of the type tag.
func (t Type) String() string {
	switch t {
	case TypeRaw:
		return "Raw"
	case TypeBool:
		return "Bool"
	case TypeInt32:
		return "Int32"
	case TypeString:
		return "String"
	case TypeEnum8:
		return "Enum8"
	case TypeBitmap:
		return "Bitmap"
	default:
		return "Unknown"
	}
}

// IsValid reports whether the tag is one of the known types.
func (t Type) IsValid() bool {
	return t <= TypeBitmap
}

// headerSize is the fixed record header: id (1) + type (1) + length (2).
const headerSize = 4

// Datapoint is one typed, identified value. Identity is the ID; the value is
// stored in the field matching Type. Use the typed constructors and accessors
// rather than touching fields directly.
type Datapoint struct {
	ID   uint8
	Type Type

	boolValue   bool
	intValue    int32
	strValue    string
	bitmapValue uint32
	enumValue   uint8
	rawValue    []byte
}

// NewBool creates a Bool datapoint.
func NewBool(id uint8, v bool) Datapoint {
	return Datapoint{ID: id, Type: TypeBool, boolValue: v}
}

// NewInt32 creates an Int32 datapoint.
func NewInt32(id uint8, v int32) Datapoint {
	return Datapoint{ID: id, Type: TypeInt32, intValue: v}
}

// NewString creates a String datapoint.
func NewString(id uint8, v string) Datapoint {
	return Datapoint{ID: id, Type: TypeString, strValue: v}
}

// NewEnum8 creates an Enum8 datapoint.
func NewEnum8(id uint8, v uint8) Datapoint {
	return Datapoint{ID: id, Type: TypeEnum8, enumValue: v}
}

// NewBitmap creates a Bitmap datapoint.
func NewBitmap(id uint8, v uint32) Datapoint {
	return Datapoint{ID: id, Type: TypeBitmap, bitmapValue: v}
}

// NewRaw creates a Raw datapoint. The byte slice is not copied.
func NewRaw(id uint8, v []byte) Datapoint {
	return Datapoint{ID: id, Type: TypeRaw, rawValue: v}
}

// Bool returns the Bool value, or ErrTypeMismatch if the tag differs.
func (d Datapoint) Bool() (bool, error) {
	if d.Type != TypeBool {
		return false, fmt.Errorf("%w: have %s, want Bool", ErrTypeMismatch, d.Type)
	}
	return d.boolValue, nil
}

// Int32 returns the Int32 value, or ErrTypeMismatch if the tag differs.
func (d Datapoint) Int32() (int32, error) {
	if d.Type != TypeInt32 {
		return 0, fmt.Errorf("%w: have %s, want Int32", ErrTypeMismatch, d.Type)
	}
	return d.intValue, nil
}

// String returns the String value, or ErrTypeMismatch if the tag differs.
func (d Datapoint) String() (string, error) {
	if d.Type != TypeString {
		return "", fmt.Errorf("%w: have %s, want String", ErrTypeMismatch, d.Type)
	}
	return d.strValue, nil
}

// Enum8 returns the Enum8 value, or ErrTypeMismatch if the tag differs.
func (d Datapoint) Enum8() (uint8, error) {
	if d.Type != TypeEnum8 {
		return 0, fmt.Errorf("%w: have %s, want Enum8", ErrTypeMismatch, d.Type)
	}
	return d.enumValue, nil
}

// Bitmap returns the Bitmap value, or ErrTypeMismatch if the tag differs.
func (d Datapoint) Bitmap() (uint32, error) {
	if d.Type != TypeBitmap {
		return 0, fmt.Errorf("%w: have %s, want Bitmap", ErrTypeMismatch, d.Type)
	}
	return d.bitmapValue, nil
}

// Raw returns the Raw value, or ErrTypeMismatch if the tag differs.
// The returned slice is not copied.
func (d Datapoint) Raw() ([]byte, error) {
	if d.Type != TypeRaw {
		return nil, fmt.Errorf("%w: have %s, want Raw", ErrTypeMismatch, d.Type)
	}
	return d.rawValue, nil
}

// Equal reports whether two datapoints have the same id, type and value.
func (d Datapoint) Equal(other Datapoint) bool {
	if d.ID != other.ID || d.Type != other.Type {
		return false
	}
	switch d.Type {
	case TypeBool:
		return d.boolValue == other.boolValue
	case TypeInt32:
		return d.intValue == other.intValue
	case TypeString:
		return d.strValue == other.strValue
	case TypeEnum8:
		return d.enumValue == other.enumValue
	case TypeBitmap:
		return d.bitmapValue == other.bitmapValue
	case TypeRaw:
		if len(d.rawValue) != len(other.rawValue) {
			return false
		}
		for i := range d.rawValue {
			if d.rawValue[i] != other.rawValue[i] {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// valueBytes returns the encoded value portion of the record.
func (d Datapoint) valueBytes() []byte {
	switch d.Type {
	case TypeBool:
		if d.boolValue {
			return []byte{0x01}
		}
		return []byte{0x00}
	case TypeInt32:
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], uint32(d.intValue))
		return b[:]
	case TypeString:
		return []byte(d.strValue)
	case TypeEnum8:
		return []byte{d.enumValue}
	case TypeBitmap:
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], d.bitmapValue)
		return b[:]
	default: // TypeRaw
		return d.rawValue
	}
}

// Append encodes the datapoint record and appends it to dst.
func (d Datapoint) Append(dst []byte) ([]byte, error) {
	if !d.Type.IsValid() {
		return nil, ErrUnknownType
	}
	value := d.valueBytes()
	if len(value) > 0xFFFF {
		return nil, fmt.Errorf("%w: dp %d has %d value bytes", ErrValueTooLong, d.ID, len(value))
	}
	dst = append(dst, d.ID, byte(d.Type))
	dst = binary.BigEndian.AppendUint16(dst, uint16(len(value)))
	return append(dst, value...), nil
}

// Marshal encodes a batch of datapoints as consecutive records.
func Marshal(dps []Datapoint) ([]byte, error) {
	var out []byte
	for _, d := range dps {
		var err error
		out, err = d.Append(out)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Decode decodes one datapoint record from the front of b and returns it
// together with the remaining bytes.
func Decode(b []byte) (Datapoint, []byte, error) {
	if len(b) < headerSize {
		return Datapoint{}, nil, fmt.Errorf("%w: %d header bytes", ErrTruncatedPayload, len(b))
	}
	id := b[0]
	typ := Type(b[1])
	length := int(binary.BigEndian.Uint16(b[2:4]))
	rest := b[headerSize:]
	if length > len(rest) {
		return Datapoint{}, nil, fmt.Errorf("%w: dp %d declares %d bytes, %d remain",
			ErrTruncatedPayload, id, length, len(rest))
	}
	value := rest[:length]
	rest = rest[length:]

	dp := Datapoint{ID: id, Type: typ}
	switch typ {
	case TypeBool:
		if length != 1 {
			return Datapoint{}, nil, fmt.Errorf("%w: Bool dp %d has length %d", ErrLengthMismatch, id, length)
		}
		dp.boolValue = value[0] != 0
	case TypeInt32:
		if length != 4 {
			return Datapoint{}, nil, fmt.Errorf("%w: Int32 dp %d has length %d", ErrLengthMismatch, id, length)
		}
		dp.intValue = int32(binary.BigEndian.Uint32(value))
	case TypeString:
		dp.strValue = string(value)
	case TypeEnum8:
		if length != 1 {
			return Datapoint{}, nil, fmt.Errorf("%w: Enum8 dp %d has length %d", ErrLengthMismatch, id, length)
		}
		dp.enumValue = value[0]
	case TypeBitmap:
		if length != 4 {
			return Datapoint{}, nil, fmt.Errorf("%w: Bitmap dp %d has length %d", ErrLengthMismatch, id, length)
		}
		dp.bitmapValue = binary.BigEndian.Uint32(value)
	case TypeRaw:
		dp.rawValue = append([]byte(nil), value...)
	default:
		return Datapoint{}, nil, fmt.Errorf("%w: 0x%02x on dp %d", ErrUnknownType, byte(typ), id)
	}
	return dp, rest, nil
}

// DecodeAll decodes consecutive records until b is exhausted.
// On error nothing is returned; a batch decodes completely or not at all.
func DecodeAll(b []byte) ([]Datapoint, error) {
	var dps []Datapoint
	for len(b) > 0 {
		dp, rest, err := Decode(b)
		if err != nil {
			return nil, err
		}
		dps = append(dps, dp)
		b = rest
	}
	return dps, nil
}
