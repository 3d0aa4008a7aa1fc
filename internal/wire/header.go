// Package wire implements the framed binary protocol shared by the TCP and
// UDP transports: a common 4-byte header, fixed-layout request/reply
// bodies, and a tiny TLV encoding for Tracking fields. Every function here
// is pure and position-addressable: encoders write into a caller-owned
// buffer and return the new offset, accessors read at a documented offset
// without mutating anything. The package owns no message memory.
package wire

import "encoding/binary"

// HeaderSize is the length of the common header in bytes.
const HeaderSize = 4

// MaxMessageSize is the largest total message size the protocol allows
// (32767); the 16-bit size field never carries a larger value.
const MaxMessageSize = 0x7fff

// Message ids, per the wire catalog.
const (
	IDPing               uint16 = 1
	IDRegisterRequest    uint16 = 5
	IDRegisterReply      uint16 = 6
	IDTrackerLinkRequest uint16 = 7
	IDTrackerLinkReply   uint16 = 8
	IDMonitorLinkRequest uint16 = 9
	IDMonitorLinkReply   uint16 = 10
	IDStreamOpenRequest  uint16 = 11
	IDResyncRequest      uint16 = 12
	IDResyncReply        uint16 = 13
	IDTracking           uint16 = 16
)

// PutHeader writes the common header at offset 0.
func PutHeader(buf []byte, size uint16, id uint16) {
	binary.BigEndian.PutUint16(buf[0:2], size)
	binary.BigEndian.PutUint16(buf[2:4], id)
}

// GetSize reads the total message size from the header.
func GetSize(buf []byte) uint16 {
	return binary.BigEndian.Uint16(buf[0:2])
}

// GetID reads the message id from the header.
func GetID(buf []byte) uint16 {
	return binary.BigEndian.Uint16(buf[2:4])
}
