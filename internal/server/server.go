package server

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/js-labs/trackerd/internal/device"
	"github.com/js-labs/trackerd/internal/deviceid"
	"github.com/js-labs/trackerd/internal/linkbroker"
	"github.com/js-labs/trackerd/internal/ratelimit"
	"github.com/js-labs/trackerd/internal/stats"
	"github.com/js-labs/trackerd/internal/wire"
	log "github.com/sirupsen/logrus"
)

// Session is the narrow view Server needs of a live connection: enough to
// reply and to rate-limit by remote address. TCP sessions (see
// internal/session) satisfy this and double as the per-device subscriber
// handles. It is an alias of an unnamed interface type so that
// *Server's methods match internal/session's Dispatcher interface.
type Session = interface {
	device.Sender
	RemoteAddr() net.Addr
}

// Server owns the device registry, link-code brokerage, rate limiting, and
// persistence pipeline (§4.6/§4.7). It has no knowledge of net.Conn.
type Server struct {
	storageDir string

	registry *registry
	broker   *linkbroker.Broker
	limiter  *ratelimit.Limiter
	persist  *persister
	stats    *stats.Stats
}

// Options carries the tunables and optional metrics sink for New.
type Options struct {
	StorageDir        string
	LinkTTL           time.Duration
	RateLimitInterval time.Duration
	Stats             *stats.Stats
}

// New constructs a Server, scans storageDir per §4.7, and replays durable
// tracking history into the resulting DeviceStates before returning.
func New(opts Options) (*Server, error) {
	info, err := os.Stat(opts.StorageDir)
	if err != nil {
		return nil, fmt.Errorf("storage dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage dir: %s is not a directory", opts.StorageDir)
	}

	s := &Server{
		storageDir: opts.StorageDir,
		registry:   newRegistry(),
		broker:     linkbroker.New(opts.LinkTTL),
		limiter:    ratelimit.New(opts.RateLimitInterval),
		stats:      opts.Stats,
	}
	s.persist = newPersister(opts.StorageDir)
	if s.stats != nil {
		s.persist.depth = func(n int) { s.stats.PersistQueueSize.Set(float64(n)) }
	}

	markers, replayFiles, err := scanStorageDir(opts.StorageDir)
	if err != nil {
		return nil, fmt.Errorf("scanning storage dir: %w", err)
	}
	for _, id := range markers {
		s.registry.register(id)
	}
	log.Infof("registered %d device(s) from storage directory", len(markers))

	replayed := 0
	for _, path := range replayFiles {
		n, err := s.replayFile(path)
		if err != nil {
			log.Errorf("replay of %s failed: %v", path, err)
			continue
		}
		replayed += n
	}
	log.Infof("replayed %d tracking message(s) from %d file(s)", replayed, len(replayFiles))

	go s.persist.run()
	return s, nil
}

// Stop joins the persistence pipeline, per §5's shutdown ordering.
func (s *Server) Stop() {
	s.persist.stop()
}

// RegistrySize reports the number of known devices, for startup logging.
func (s *Server) RegistrySize() int {
	return s.registry.size()
}

// HandleTCP dispatches one decoded message arriving over the reliable
// transport. It returns true if the caller (Session) must close the
// connection after any reply has been sent, per the §4.6 dispatch table.
func (s *Server) HandleTCP(sess Session, buf []byte) bool {
	id := wire.GetID(buf)
	if !s.admit(sess.RemoteAddr(), id) {
		if s.stats != nil {
			s.stats.RateLimitDrops.Inc()
		}
		return false
	}
	if s.stats != nil {
		s.stats.MessagesByID.WithLabelValues(fmt.Sprint(id)).Inc()
	}

	switch id {
	case wire.IDPing:
		return false
	case wire.IDRegisterRequest:
		s.handleRegisterRequest(sess)
		return true
	case wire.IDTrackerLinkRequest:
		s.handleTrackerLinkRequest(sess, buf)
		return true
	case wire.IDMonitorLinkRequest:
		s.handleMonitorLinkRequest(sess, buf)
		return false
	case wire.IDStreamOpenRequest:
		s.handleStreamOpenRequest(sess, buf)
		return false
	case wire.IDResyncRequest:
		s.handleResyncRequest(sess, buf)
		return false
	case wire.IDTracking:
		s.handleTracking(buf)
		return false
	default:
		return false
	}
}

// admit applies the rate limiter with the expected-follow-up table of
// §4.6. Ping, ResyncRequest, and Tracking are never rate limited.
func (s *Server) admit(addr net.Addr, id uint16) bool {
	switch id {
	case wire.IDPing, wire.IDResyncRequest, wire.IDTracking:
		return true
	case wire.IDRegisterRequest, wire.IDTrackerLinkRequest, wire.IDStreamOpenRequest:
		return s.limiter.Check(addr, id, 0)
	case wire.IDMonitorLinkRequest:
		return s.limiter.Check(addr, id, wire.IDStreamOpenRequest)
	default:
		return true
	}
}

func (s *Server) handleRegisterRequest(sess Session) {
	id := deviceid.New()
	path := markerPath(s.storageDir, id)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		log.Warnf("register: marker file creation failed for %s: %v", id, err)
		return
	}
	_ = f.Close()

	s.registry.register(id)
	buf := make([]byte, wire.RegisterReplySize)
	wire.EncodeRegisterReply(buf, id)
	_ = sess.Send(buf)
}

func (s *Server) handleTrackerLinkRequest(sess Session, buf []byte) {
	id := wire.GetTrackerLinkRequestDeviceID(buf)
	code := int32(0)
	if _, ok := s.registry.lookup(id); ok {
		code = s.broker.IssueForTracker(id)
		if s.stats != nil {
			s.stats.LinkCodesIssued.Inc()
		}
	} else {
		log.Warnf("tracker link request for unknown device %s", id)
	}
	reply := make([]byte, wire.TrackerLinkReplySize)
	wire.EncodeTrackerLinkReply(reply, code)
	_ = sess.Send(reply)
}

func (s *Server) handleMonitorLinkRequest(sess Session, buf []byte) {
	code := wire.GetMonitorLinkRequestCode(buf)
	id, ok := s.broker.RedeemForMonitor(code)
	if !ok {
		reply := make([]byte, wire.MonitorLinkReplySize)
		wire.EncodeMonitorLinkReply(reply, deviceid.Zero)
		_ = sess.Send(reply)
		return
	}
	if s.stats != nil {
		s.stats.LinkCodesRedeemed.Inc()
	}
	reply := make([]byte, wire.MonitorLinkReplySize)
	wire.EncodeMonitorLinkReply(reply, id)
	_ = sess.Send(reply)
}

// SubscribeFunc is implemented by sessions that track the device they have
// opened a stream to, so Server can tell them on close. Defined here to
// avoid a server->session import cycle.
type SubscribeFunc interface {
	Session
	SetSubscribedDevice(deviceid.ID)
}

func (s *Server) handleStreamOpenRequest(sess Session, buf []byte) {
	id := wire.GetStreamOpenRequestDeviceID(buf)
	d, ok := s.registry.lookup(id)
	if !ok {
		log.Warnf("stream open for unknown device %s", id)
		return
	}
	d.Subscribe(sess)
	if sub, ok := sess.(SubscribeFunc); ok {
		sub.SetSubscribedDevice(id)
	}

	fields := d.Snapshot()
	snap := make([]byte, wire.SnapshotSize(fields))
	wire.EncodeSnapshot(snap, fields)
	_ = sess.Send(snap)
}

func (s *Server) handleResyncRequest(sess Session, buf []byte) {
	id := wire.GetResyncRequestDeviceID(buf)
	sequences, err := wire.GetResyncRequestSequences(buf)
	if err != nil {
		log.Warnf("malformed resync request from %s: %v", sess.RemoteAddr(), err)
		return
	}
	d, ok := s.registry.lookup(id)
	if !ok {
		log.Warnf("resync request for unknown device %s", id)
		return
	}
	ack, request := d.BuildResyncReply(sequences)
	reply := make([]byte, wire.ResyncReplySize(len(ack), len(request)))
	wire.EncodeResyncReply(reply, ack, request)
	_ = sess.Send(reply)
}

func (s *Server) handleTracking(buf []byte) {
	id := wire.GetTrackingDeviceID(buf)
	sn := wire.GetTrackingSequence(buf)
	d, ok := s.registry.lookup(id)
	if !ok {
		log.Warnf("tracking message for unknown device %s", id)
		return
	}
	fields, broken := wire.DecodeTrackingFields(buf)
	if broken && s.stats != nil {
		s.stats.FramingErrors.Inc()
	}
	if log.GetLevel() >= log.DebugLevel {
		logTrackingFields(id, fields)
	}
	d.ApplyTracking(sn, fields)
	s.persist.enqueue(buf)
}

// HandleUDP validates and dispatches one UDP-delivered Tracking datagram
// per §4.6: header size must equal the actual datagram length, and it
// reuses the TCP fusion path, additionally updating lastSourceAddress.
func (s *Server) HandleUDP(addr net.Addr, buf []byte) {
	if len(buf) < wire.HeaderSize || int(wire.GetSize(buf)) != len(buf) {
		if s.stats != nil {
			s.stats.FramingErrors.Inc()
		}
		log.Warnf("udp framing error from %s: declared/actual size mismatch: %x", addr, buf)
		return
	}
	if wire.GetID(buf) != wire.IDTracking {
		log.Warnf("udp message from %s with unexpected id %d, dropping", addr, wire.GetID(buf))
		return
	}
	id := wire.GetTrackingDeviceID(buf)
	d, ok := s.registry.lookup(id)
	if !ok {
		log.Warnf("udp tracking message for unknown device %s", id)
		return
	}
	d.SetLastSourceAddress(addr)
	s.handleTracking(buf)
}

// OnSessionClosed removes sess from the device it was subscribed to, if
// any (I2: at most one).
func (s *Server) OnSessionClosed(id deviceid.ID, sess Session) {
	if id == deviceid.Zero {
		return
	}
	if d, ok := s.registry.lookup(id); ok {
		d.Unsubscribe(sess)
	}
}

func markerPath(dir string, id deviceid.ID) string {
	return filepath.Join(dir, id.String())
}

// logTrackingFields renders a NetworkField's name for a debug log line. The
// decoder is local to this call, matching TextDecoder's never-shared-across-
// sessions contract rather than caching one on Server, which handleTracking
// calls from concurrent goroutines.
func logTrackingFields(id deviceid.ID, fields []wire.Field) {
	var dec wire.TextDecoder
	for _, f := range fields {
		if nf, ok := f.(wire.NetworkField); ok {
			log.Debugf("tracking from %s: network=%q", id, dec.Decode(nf.Name))
		}
	}
}
