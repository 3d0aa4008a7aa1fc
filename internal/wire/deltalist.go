package wire

import "encoding/binary"

// DeltaListSize returns the wire size, in bytes, of a delta-compressed
// list with the given entry count (0 if n == 0: an empty partition writes
// no absolute value).
func DeltaListSize(n int) int {
	if n == 0 {
		return 0
	}
	return 8 + 4*(n-1)
}

// PutDeltaList writes the raw (first, deltas) wire form at buf[offset:]
// and returns the new offset. It always writes the absolute value, even
// when deltas is empty; callers represent an empty partition by not
// calling it.
func PutDeltaList(buf []byte, offset int, first uint64, deltas []int32) int {
	binary.BigEndian.PutUint64(buf[offset:], first)
	offset += 8
	for _, d := range deltas {
		binary.BigEndian.PutUint32(buf[offset:], uint32(d))
		offset += 4
	}
	return offset
}

// GetDeltaList reads a (first, deltas) pair of n total entries (1 absolute
// plus n-1 deltas) starting at buf[offset:] and returns the new offset.
// GetDeltaList is the exact inverse of PutDeltaList for any n >= 1.
func GetDeltaList(buf []byte, offset int, n int) (first uint64, deltas []int32, newOffset int) {
	first = binary.BigEndian.Uint64(buf[offset:])
	offset += 8
	deltas = make([]int32, n-1)
	for i := range deltas {
		deltas[i] = int32(binary.BigEndian.Uint32(buf[offset:]))
		offset += 4
	}
	return first, deltas, offset
}

// SequencesToDeltas converts an ordered list of sequence numbers to its
// delta-compressed (first, deltas) form, per §4.3: each delta is the
// signed 32-bit decrement from the previous value in the same partition.
func SequencesToDeltas(values []uint64) (first uint64, deltas []int32) {
	if len(values) == 0 {
		return 0, nil
	}
	deltas = make([]int32, len(values)-1)
	for i := 1; i < len(values); i++ {
		deltas[i-1] = int32(values[i-1] - values[i])
	}
	return values[0], deltas
}

// DeltasFromSequence reconstructs the ordered sequence-number list from
// its delta-compressed form. It is the inverse of SequencesToDeltas.
func DeltasFromSequence(first uint64, deltas []int32) []uint64 {
	values := make([]uint64, len(deltas)+1)
	values[0] = first
	for i, d := range deltas {
		values[i+1] = values[i] - uint64(d)
	}
	return values
}
