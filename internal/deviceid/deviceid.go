// Package deviceid implements the 128-bit tracker device identifier: two
// big-endian uint64 halves on the wire, a canonical 36-character UUID string
// on disk and in logs.
package deviceid

import (
	"encoding/binary"

	"github.com/google/uuid"
)

// ID is a 128-bit opaque device identifier.
type ID struct {
	Hi uint64
	Lo uint64
}

// Zero is the sentinel used by MonitorLinkReply on failure.
var Zero ID

// New generates a random type-4 UUID per RFC 4122, as RegisterRequest does.
func New() ID {
	return FromBytes([16]byte(uuid.New()))
}

// FromBytes builds an ID from 16 raw bytes, high half first.
func FromBytes(b [16]byte) ID {
	return ID{
		Hi: binary.BigEndian.Uint64(b[0:8]),
		Lo: binary.BigEndian.Uint64(b[8:16]),
	}
}

// Bytes returns the 16-byte big-endian representation.
func (id ID) Bytes() [16]byte {
	var b [16]byte
	binary.BigEndian.PutUint64(b[0:8], id.Hi)
	binary.BigEndian.PutUint64(b[8:16], id.Lo)
	return b
}

// IsZero reports whether id is the all-zero sentinel.
func (id ID) IsZero() bool {
	return id == Zero
}

// String renders the canonical 8-4-4-4-12 UUID form used for marker
// filenames and logging.
func (id ID) String() string {
	return uuid.UUID(id.Bytes()).String()
}

// ParseCanonical parses a canonical 36-character UUID string produced by
// String, as used for marker filenames.
func ParseCanonical(s string) (ID, bool) {
	u, err := uuid.Parse(s)
	if err != nil {
		return Zero, false
	}
	return FromBytes(u), true
}
