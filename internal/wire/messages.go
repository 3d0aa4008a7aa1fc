package wire

import (
	"encoding/binary"

	"github.com/js-labs/trackerd/internal/deviceid"
)

// PingSize is the wire size of a Ping message.
const PingSize = HeaderSize

// EncodePing writes a Ping message and returns the new offset.
func EncodePing(buf []byte) int {
	PutHeader(buf, PingSize, IDPing)
	return PingSize
}

// RegisterRequestSize is the wire size of a RegisterRequest message.
const RegisterRequestSize = HeaderSize

// EncodeRegisterRequest writes a RegisterRequest message.
func EncodeRegisterRequest(buf []byte) int {
	PutHeader(buf, RegisterRequestSize, IDRegisterRequest)
	return RegisterRequestSize
}

// RegisterReplySize is the wire size of a RegisterReply message.
const RegisterReplySize = HeaderSize + 16

// EncodeRegisterReply writes a RegisterReply(deviceId) message.
func EncodeRegisterReply(buf []byte, id deviceid.ID) int {
	PutHeader(buf, RegisterReplySize, IDRegisterReply)
	putDeviceID(buf[HeaderSize:], id)
	return RegisterReplySize
}

// GetRegisterReplyDeviceID reads the device id out of a RegisterReply.
func GetRegisterReplyDeviceID(buf []byte) deviceid.ID {
	return getDeviceID(buf[HeaderSize:])
}

// TrackerLinkRequestSize is the wire size of a TrackerLinkRequest message.
const TrackerLinkRequestSize = HeaderSize + 16

// EncodeTrackerLinkRequest writes a TrackerLinkRequest(deviceId) message.
func EncodeTrackerLinkRequest(buf []byte, id deviceid.ID) int {
	PutHeader(buf, TrackerLinkRequestSize, IDTrackerLinkRequest)
	putDeviceID(buf[HeaderSize:], id)
	return TrackerLinkRequestSize
}

// GetTrackerLinkRequestDeviceID reads the device id out of a
// TrackerLinkRequest.
func GetTrackerLinkRequestDeviceID(buf []byte) deviceid.ID {
	return getDeviceID(buf[HeaderSize:])
}

// TrackerLinkReplySize is the wire size of a TrackerLinkReply message.
const TrackerLinkReplySize = HeaderSize + 4

// EncodeTrackerLinkReply writes a TrackerLinkReply(linkCode) message.
func EncodeTrackerLinkReply(buf []byte, linkCode int32) int {
	PutHeader(buf, TrackerLinkReplySize, IDTrackerLinkReply)
	binary.BigEndian.PutUint32(buf[HeaderSize:], uint32(linkCode))
	return TrackerLinkReplySize
}

// GetTrackerLinkReplyCode reads the link code out of a TrackerLinkReply.
func GetTrackerLinkReplyCode(buf []byte) int32 {
	return int32(binary.BigEndian.Uint32(buf[HeaderSize:]))
}

// MonitorLinkRequestSize is the wire size of a MonitorLinkRequest message.
const MonitorLinkRequestSize = HeaderSize + 4

// EncodeMonitorLinkRequest writes a MonitorLinkRequest(linkCode) message.
func EncodeMonitorLinkRequest(buf []byte, linkCode int32) int {
	PutHeader(buf, MonitorLinkRequestSize, IDMonitorLinkRequest)
	binary.BigEndian.PutUint32(buf[HeaderSize:], uint32(linkCode))
	return MonitorLinkRequestSize
}

// GetMonitorLinkRequestCode reads the link code out of a
// MonitorLinkRequest.
func GetMonitorLinkRequestCode(buf []byte) int32 {
	return int32(binary.BigEndian.Uint32(buf[HeaderSize:]))
}

// MonitorLinkReplySize is the wire size of a MonitorLinkReply message.
const MonitorLinkReplySize = HeaderSize + 16

// EncodeMonitorLinkReply writes a MonitorLinkReply(deviceId) message
// (deviceid.Zero on failure).
func EncodeMonitorLinkReply(buf []byte, id deviceid.ID) int {
	PutHeader(buf, MonitorLinkReplySize, IDMonitorLinkReply)
	putDeviceID(buf[HeaderSize:], id)
	return MonitorLinkReplySize
}

// GetMonitorLinkReplyDeviceID reads the device id out of a
// MonitorLinkReply.
func GetMonitorLinkReplyDeviceID(buf []byte) deviceid.ID {
	return getDeviceID(buf[HeaderSize:])
}

// StreamOpenRequestSize is the wire size of a StreamOpenRequest message.
const StreamOpenRequestSize = HeaderSize + 16

// EncodeStreamOpenRequest writes a StreamOpenRequest(deviceId) message.
func EncodeStreamOpenRequest(buf []byte, id deviceid.ID) int {
	PutHeader(buf, StreamOpenRequestSize, IDStreamOpenRequest)
	putDeviceID(buf[HeaderSize:], id)
	return StreamOpenRequestSize
}

// GetStreamOpenRequestDeviceID reads the device id out of a
// StreamOpenRequest.
func GetStreamOpenRequestDeviceID(buf []byte) deviceid.ID {
	return getDeviceID(buf[HeaderSize:])
}

func putDeviceID(buf []byte, id deviceid.ID) {
	binary.BigEndian.PutUint64(buf[0:8], id.Hi)
	binary.BigEndian.PutUint64(buf[8:16], id.Lo)
}

func getDeviceID(buf []byte) deviceid.ID {
	return deviceid.ID{
		Hi: binary.BigEndian.Uint64(buf[0:8]),
		Lo: binary.BigEndian.Uint64(buf[8:16]),
	}
}
