package wire

import (
	"encoding/binary"
	"math"
)

// FieldKind identifies one of the four TLV field kinds carried by a
// Tracking message.
type FieldKind uint8

// TLV field ids, per the wire catalog.
const (
	FieldKindBattery  FieldKind = 0
	FieldKindNetwork  FieldKind = 1
	FieldKindLocation FieldKind = 2
	FieldKindStopped  FieldKind = 3
)

// tlvHeaderSize is the 1-byte length + 1-byte field id prefix of every TLV.
const tlvHeaderSize = 2

// Field is one decoded or to-be-encoded TLV.
type Field interface {
	Kind() FieldKind
}

// BatteryField is BatteryLevel(t, level%).
type BatteryField struct {
	Time  int64
	Level int16
}

// Kind implements Field.
func (BatteryField) Kind() FieldKind { return FieldKindBattery }

// NetworkField is NetworkName(t, bytes); Name is stored raw, never decoded
// except for logging.
type NetworkField struct {
	Time int64
	Name []byte
}

// Kind implements Field.
func (NetworkField) Kind() FieldKind { return FieldKindNetwork }

// LocationField is Location(t, lat, lon, alt).
type LocationField struct {
	Time          int64
	Lat, Lon, Alt float64
}

// Kind implements Field.
func (LocationField) Kind() FieldKind { return FieldKindLocation }

// StoppedField is TrackingStopped(t).
type StoppedField struct {
	Time int64
}

// Kind implements Field.
func (StoppedField) Kind() FieldKind { return FieldKindStopped }

// FieldSize returns the total TLV size (header included) for f.
func FieldSize(f Field) int {
	switch v := f.(type) {
	case BatteryField:
		return tlvHeaderSize + 8 + 2
	case NetworkField:
		return tlvHeaderSize + 8 + len(v.Name)
	case LocationField:
		return tlvHeaderSize + 8 + 8 + 8 + 8
	case StoppedField:
		return tlvHeaderSize + 8
	default:
		return 0
	}
}

// EncodeField writes f as a TLV at buf[offset:] and returns the new offset.
func EncodeField(buf []byte, offset int, f Field) int {
	size := FieldSize(f)
	buf[offset] = byte(size)
	buf[offset+1] = byte(f.Kind())
	body := offset + tlvHeaderSize
	switch v := f.(type) {
	case BatteryField:
		binary.BigEndian.PutUint64(buf[body:], uint64(v.Time))
		binary.BigEndian.PutUint16(buf[body+8:], uint16(v.Level))
	case NetworkField:
		binary.BigEndian.PutUint64(buf[body:], uint64(v.Time))
		copy(buf[body+8:], v.Name)
	case LocationField:
		binary.BigEndian.PutUint64(buf[body:], uint64(v.Time))
		putFloat64(buf[body+8:], v.Lat)
		putFloat64(buf[body+16:], v.Lon)
		putFloat64(buf[body+24:], v.Alt)
	case StoppedField:
		binary.BigEndian.PutUint64(buf[body:], uint64(v.Time))
	}
	return offset + size
}

// DecodeFieldAt parses one TLV starting at buf[offset:end], where end is
// the exclusive end of the containing message. It returns the decoded
// field (nil for an unknown field id, which the caller should skip), the
// number of bytes consumed, and ErrField if the TLV is malformed.
func DecodeFieldAt(buf []byte, offset, end int) (Field, int, error) {
	if offset >= end {
		return nil, 0, ErrField
	}
	length := int(buf[offset])
	if length < tlvHeaderSize {
		return nil, 0, ErrField
	}
	if offset+length > end {
		return nil, 0, ErrField
	}
	kind := FieldKind(buf[offset+1])
	body := offset + tlvHeaderSize
	bodyLen := length - tlvHeaderSize

	switch kind {
	case FieldKindBattery:
		if bodyLen < 10 {
			return nil, 0, ErrField
		}
		f := BatteryField{
			Time:  int64(binary.BigEndian.Uint64(buf[body:])),
			Level: int16(binary.BigEndian.Uint16(buf[body+8:])),
		}
		return f, length, nil
	case FieldKindNetwork:
		if bodyLen < 8 {
			return nil, 0, ErrField
		}
		name := make([]byte, bodyLen-8)
		copy(name, buf[body+8:body+bodyLen])
		f := NetworkField{Time: int64(binary.BigEndian.Uint64(buf[body:])), Name: name}
		return f, length, nil
	case FieldKindLocation:
		if bodyLen < 32 {
			return nil, 0, ErrField
		}
		f := LocationField{
			Time: int64(binary.BigEndian.Uint64(buf[body:])),
			Lat:  getFloat64(buf[body+8:]),
			Lon:  getFloat64(buf[body+16:]),
			Alt:  getFloat64(buf[body+24:]),
		}
		return f, length, nil
	case FieldKindStopped:
		if bodyLen < 8 {
			return nil, 0, ErrField
		}
		f := StoppedField{Time: int64(binary.BigEndian.Uint64(buf[body:]))}
		return f, length, nil
	default:
		// UnknownFieldId: skip by declared length, continue.
		return nil, length, nil
	}
}

func putFloat64(buf []byte, v float64) {
	binary.BigEndian.PutUint64(buf, math.Float64bits(v))
}

func getFloat64(buf []byte) float64 {
	return math.Float64frombits(binary.BigEndian.Uint64(buf))
}
