package server

import (
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/js-labs/trackerd/internal/deviceid"
	"github.com/js-labs/trackerd/internal/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSession struct {
	addr net.Addr
	sent [][]byte
}

func newFakeSession(ip string) *fakeSession {
	return &fakeSession{addr: &net.TCPAddr{IP: net.ParseIP(ip), Port: 1234}}
}

func (f *fakeSession) Send(buf []byte) error {
	cp := make([]byte, len(buf))
	copy(cp, buf)
	f.sent = append(f.sent, cp)
	return nil
}

func (f *fakeSession) RemoteAddr() net.Addr { return f.addr }

func (f *fakeSession) last() []byte {
	return f.sent[len(f.sent)-1]
}

func newTestServer(t *testing.T) *Server {
	dir := t.TempDir()
	s, err := New(Options{
		StorageDir:        dir,
		LinkTTL:           time.Minute,
		RateLimitInterval: time.Nanosecond,
	})
	require.NoError(t, err)
	t.Cleanup(s.Stop)
	return s
}

func TestRegisterRequestCreatesMarkerFile(t *testing.T) {
	s := newTestServer(t)
	sess := newFakeSession("10.0.0.1")

	req := make([]byte, wire.RegisterRequestSize)
	wire.EncodeRegisterRequest(req)
	closeConn := s.HandleTCP(sess, req)

	assert.True(t, closeConn)
	require.Len(t, sess.sent, 1)
	id := wire.GetRegisterReplyDeviceID(sess.last())
	assert.NotEqual(t, deviceid.Zero, id)

	_, err := os.Stat(markerPath(s.storageDir, id))
	assert.NoError(t, err)
	assert.Equal(t, 1, s.RegistrySize())
}

func TestLinkCeremonyEndToEnd(t *testing.T) {
	s := newTestServer(t)
	tracker := newFakeSession("10.0.0.2")

	req := make([]byte, wire.RegisterRequestSize)
	wire.EncodeRegisterRequest(req)
	s.HandleTCP(tracker, req)
	id := wire.GetRegisterReplyDeviceID(tracker.last())

	linkReq := make([]byte, wire.TrackerLinkRequestSize)
	wire.EncodeTrackerLinkRequest(linkReq, id)
	s.HandleTCP(tracker, linkReq)
	code := wire.GetTrackerLinkReplyCode(tracker.last())
	require.NotZero(t, code)

	monitor := newFakeSession("10.0.0.3")
	monReq := make([]byte, wire.MonitorLinkRequestSize)
	wire.EncodeMonitorLinkRequest(monReq, code)
	s.HandleTCP(monitor, monReq)
	gotID := wire.GetMonitorLinkReplyDeviceID(monitor.last())
	assert.Equal(t, id, gotID)

	openReq := make([]byte, wire.StreamOpenRequestSize)
	wire.EncodeStreamOpenRequest(openReq, gotID)
	closeConn := s.HandleTCP(monitor, openReq)
	assert.False(t, closeConn)
	snapFields, broken := wire.DecodeSnapshotFields(monitor.last())
	assert.False(t, broken)
	assert.Empty(t, snapFields)
}

func TestUnknownLinkCodeYieldsZeroDeviceID(t *testing.T) {
	s := newTestServer(t)
	monitor := newFakeSession("10.0.0.4")
	monReq := make([]byte, wire.MonitorLinkRequestSize)
	wire.EncodeMonitorLinkRequest(monReq, 42424)
	s.HandleTCP(monitor, monReq)
	assert.Equal(t, deviceid.Zero, wire.GetMonitorLinkReplyDeviceID(monitor.last()))
}

func TestTrackingFusesAndPersists(t *testing.T) {
	dir := t.TempDir()
	s, err := New(Options{
		StorageDir:        dir,
		LinkTTL:           time.Minute,
		RateLimitInterval: time.Nanosecond,
	})
	require.NoError(t, err)
	tracker := newFakeSession("10.0.0.5")

	req := make([]byte, wire.RegisterRequestSize)
	wire.EncodeRegisterRequest(req)
	s.HandleTCP(tracker, req)
	id := wire.GetRegisterReplyDeviceID(tracker.last())

	fields := []wire.Field{wire.BatteryField{Time: 1000, Level: 80}}
	trackMsg := make([]byte, wire.TrackingSize(fields))
	wire.EncodeTracking(trackMsg, id, 1, fields)
	s.HandleTCP(tracker, trackMsg)

	d, ok := s.registry.lookup(id)
	require.True(t, ok)
	assert.True(t, d.HasReceived(1))

	s.persist.stop()
	data, err := os.ReadFile(filepath.Join(s.storageDir, "tracking-"+time.Now().Format("2006-01-02")))
	require.NoError(t, err)
	assert.Equal(t, trackMsg, data)
}

func TestResyncPartitionsAgainstReceivedSet(t *testing.T) {
	s := newTestServer(t)
	tracker := newFakeSession("10.0.0.6")

	req := make([]byte, wire.RegisterRequestSize)
	wire.EncodeRegisterRequest(req)
	s.HandleTCP(tracker, req)
	id := wire.GetRegisterReplyDeviceID(tracker.last())

	for _, sn := range []uint64{10, 12, 15} {
		fields := []wire.Field{wire.BatteryField{Time: int64(sn), Level: 50}}
		msg := make([]byte, wire.TrackingSize(fields))
		wire.EncodeTracking(msg, id, sn, fields)
		s.HandleTCP(tracker, msg)
	}

	resyncReq := make([]byte, wire.ResyncRequestSize(4))
	wire.EncodeResyncRequest(resyncReq, id, []uint64{15, 12, 10, 5})
	s.HandleTCP(tracker, resyncReq)

	ack, request, err := wire.GetResyncReply(tracker.last())
	require.NoError(t, err)
	assert.Equal(t, []uint64{15, 12, 10}, ack)
	assert.Equal(t, []uint64{5}, request)
}

func TestUDPRejectsSizeMismatch(t *testing.T) {
	s := newTestServer(t)
	addr := &net.UDPAddr{IP: net.ParseIP("10.0.0.7"), Port: 555}
	fields := []wire.Field{wire.BatteryField{Time: 1, Level: 1}}
	msg := make([]byte, wire.TrackingSize(fields))
	wire.EncodeTracking(msg, deviceid.New(), 1, fields)
	truncated := msg[:len(msg)-1]
	s.HandleUDP(addr, truncated) // should not panic; framing error logged
}
