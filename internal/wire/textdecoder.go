package wire

import "unicode/utf8"

// InvalidText is the sentinel returned by TextDecoder.Decode for a
// malformed sequence. A NetworkName field is always stored as raw bytes;
// this decoder is used only to render it for logging.
const InvalidText = "�<invalid-utf8>"

// TextDecoder is a reusable, per-session UTF-8 decoder: its output buffer
// grows on overflow instead of being reallocated per call, and it is never
// shared across sessions (§9: handler-local scratch state, no global
// mutable formatters).
type TextDecoder struct {
	buf []rune
}

// Decode renders b as a string for logging, or InvalidText if b contains a
// malformed UTF-8 sequence.
func (d *TextDecoder) Decode(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}

	if cap(d.buf) < len(b) {
		d.buf = make([]rune, 0, len(b))
	}
	d.buf = d.buf[:0]

	for len(b) > 0 {
		r, size := utf8.DecodeRune(b)
		if r == utf8.RuneError && size <= 1 {
			return InvalidText
		}
		d.buf = append(d.buf, r)
		b = b[size:]
	}
	return string(d.buf)
}
