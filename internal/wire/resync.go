package wire

import (
	"github.com/js-labs/trackerd/internal/deviceid"
)

// resyncRequestHeaderSize is did1, did2, n, pad.
const resyncRequestHeaderSize = 16 + 1 + 1

// ResyncRequestSize returns the wire size of a ResyncRequest carrying n
// sequence numbers.
func ResyncRequestSize(n int) int {
	return HeaderSize + resyncRequestHeaderSize + DeltaListSize(n)
}

// EncodeResyncRequest writes a ResyncRequest(deviceId, sequences) message.
// len(sequences) must be <= 255.
func EncodeResyncRequest(buf []byte, id deviceid.ID, sequences []uint64) int {
	n := len(sequences)
	size := ResyncRequestSize(n)
	PutHeader(buf, uint16(size), IDResyncRequest)
	off := HeaderSize
	putDeviceID(buf[off:], id)
	off += 16
	buf[off] = byte(n)
	buf[off+1] = 0 // pad
	off += 2
	if n > 0 {
		first, deltas := SequencesToDeltas(sequences)
		PutDeltaList(buf, off, first, deltas)
	}
	return size
}

// GetResyncRequestDeviceID reads the device id out of a ResyncRequest.
func GetResyncRequestDeviceID(buf []byte) deviceid.ID {
	return getDeviceID(buf[HeaderSize:])
}

// GetResyncRequestSequences reads and reconstructs the sequence-number
// list from a ResyncRequest. It returns ErrResyncShape if the declared
// count n, or the resulting wire size, disagrees with len(buf).
func GetResyncRequestSequences(buf []byte) ([]uint64, error) {
	if len(buf) < HeaderSize+resyncRequestHeaderSize {
		return nil, ErrResyncShape
	}
	declaredSize := int(GetSize(buf))
	if declaredSize != len(buf) {
		return nil, ErrResyncShape
	}
	n := int(buf[HeaderSize+16])
	if ResyncRequestSize(n) != len(buf) {
		return nil, ErrResyncShape
	}
	if n == 0 {
		return nil, nil
	}
	off := HeaderSize + resyncRequestHeaderSize
	first, deltas, _ := GetDeltaList(buf, off, n)
	return DeltasFromSequence(first, deltas), nil
}

// ResyncReplySize returns the wire size of a ResyncReply with nAck acked
// and nReq requested sequence numbers.
func ResyncReplySize(nAck, nReq int) int {
	return HeaderSize + 2 + DeltaListSize(nAck) + DeltaListSize(nReq)
}

// EncodeResyncReply writes a ResyncReply(ack, request) message.
func EncodeResyncReply(buf []byte, ack, request []uint64) int {
	size := ResyncReplySize(len(ack), len(request))
	PutHeader(buf, uint16(size), IDResyncReply)
	off := HeaderSize
	buf[off] = byte(len(ack))
	buf[off+1] = byte(len(request))
	off += 2
	if len(ack) > 0 {
		first, deltas := SequencesToDeltas(ack)
		off = PutDeltaList(buf, off, first, deltas)
	}
	if len(request) > 0 {
		first, deltas := SequencesToDeltas(request)
		off = PutDeltaList(buf, off, first, deltas)
	}
	return size
}

// GetResyncReply reads the ack and request partitions out of a
// ResyncReply.
func GetResyncReply(buf []byte) (ack, request []uint64, err error) {
	if len(buf) < HeaderSize+2 {
		return nil, nil, ErrResyncShape
	}
	nAck := int(buf[HeaderSize])
	nReq := int(buf[HeaderSize+1])
	if ResyncReplySize(nAck, nReq) != len(buf) {
		return nil, nil, ErrResyncShape
	}
	off := HeaderSize + 2
	if nAck > 0 {
		first, deltas, newOff := GetDeltaList(buf, off, nAck)
		ack = DeltasFromSequence(first, deltas)
		off = newOff
	}
	if nReq > 0 {
		first, deltas, _ := GetDeltaList(buf, off, nReq)
		request = DeltasFromSequence(first, deltas)
	}
	return ack, request, nil
}
