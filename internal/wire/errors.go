package wire

import "errors"

// ErrFraming covers invalid header sizes, truncated bodies, and UDP length
// mismatches. The offending connection or datagram must be dropped.
var ErrFraming = errors.New("wire: framing error")

// ErrField covers a TLV whose declared length exceeds the remaining bytes
// of its message, or is smaller than the minimum for its kind. Parsing of
// the message stops; fields already applied are kept.
var ErrField = errors.New("wire: field error")

// ErrResyncShape is returned when a ResyncRequest's declared count or
// computed wire size disagrees with the bytes actually received.
var ErrResyncShape = errors.New("wire: malformed resync list")
