package wire

import (
	"encoding/binary"

	"github.com/js-labs/trackerd/internal/deviceid"
)

// trackingHeaderSize is did1, did2, sn.
const trackingHeaderSize = 16 + 8

// TrackingSize returns the wire size of a tracker-to-server Tracking
// message carrying fields.
func TrackingSize(fields []Field) int {
	return HeaderSize + trackingHeaderSize + fieldsSize(fields)
}

// EncodeTracking writes a tracker-to-server Tracking(deviceId, sn, fields)
// message.
func EncodeTracking(buf []byte, id deviceid.ID, sn uint64, fields []Field) int {
	size := TrackingSize(fields)
	PutHeader(buf, uint16(size), IDTracking)
	off := HeaderSize
	putDeviceID(buf[off:], id)
	off += 16
	binary.BigEndian.PutUint64(buf[off:], sn)
	off += 8
	encodeFields(buf, off, fields)
	return size
}

// GetTrackingDeviceID reads the device id out of a tracker-to-server
// Tracking message.
func GetTrackingDeviceID(buf []byte) deviceid.ID {
	return getDeviceID(buf[HeaderSize:])
}

// GetTrackingSequence reads the sequence number out of a tracker-to-server
// Tracking message.
func GetTrackingSequence(buf []byte) uint64 {
	return binary.BigEndian.Uint64(buf[HeaderSize+16:])
}

// DecodeTrackingFields decodes the TLV fields carried by a tracker-to-
// server Tracking message. A FieldError stops parsing and is reported via
// broken, but any fields already decoded are still returned (§7).
func DecodeTrackingFields(buf []byte) (fields []Field, broken bool) {
	return decodeFields(buf, HeaderSize+trackingHeaderSize, len(buf))
}

// SnapshotSize returns the wire size of a server-to-monitor Tracking
// message (no device id or sequence number) carrying fields.
func SnapshotSize(fields []Field) int {
	return HeaderSize + fieldsSize(fields)
}

// EncodeSnapshot writes a server-to-monitor Tracking(fields) message.
func EncodeSnapshot(buf []byte, fields []Field) int {
	size := SnapshotSize(fields)
	PutHeader(buf, uint16(size), IDTracking)
	encodeFields(buf, HeaderSize, fields)
	return size
}

// DecodeSnapshotFields decodes the TLV fields of a server-to-monitor
// Tracking message.
func DecodeSnapshotFields(buf []byte) (fields []Field, broken bool) {
	return decodeFields(buf, HeaderSize, len(buf))
}

func fieldsSize(fields []Field) int {
	n := 0
	for _, f := range fields {
		n += FieldSize(f)
	}
	return n
}

func encodeFields(buf []byte, offset int, fields []Field) int {
	for _, f := range fields {
		offset = EncodeField(buf, offset, f)
	}
	return offset
}

// decodeFields walks TLVs from offset to end, stopping at the first
// FieldError (ErrField) and reporting broken=true in that case. Unknown
// field ids are skipped and do not set broken.
func decodeFields(buf []byte, offset, end int) (fields []Field, broken bool) {
	for offset < end {
		f, consumed, err := DecodeFieldAt(buf, offset, end)
		if err != nil {
			return fields, true
		}
		if f != nil {
			fields = append(fields, f)
		}
		offset += consumed
	}
	return fields, false
}
