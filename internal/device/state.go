// Package device implements the per-tracker-device aggregate: fused field
// values with their timestamps, ordered location history, the set of
// received message sequence numbers, and the monitor sessions currently
// subscribed to its stream. See §3 and §4.2/§4.3 of the design.
package device

import (
	"net"
	"sync"

	"github.com/js-labs/trackerd/internal/deviceid"
	"github.com/js-labs/trackerd/internal/wire"
)

// Sender is the minimal capability DeviceState needs from a monitor
// session: push a fully-framed message and be compared by identity. It is
// the "weak handle" DESIGN NOTES §9 calls for — DeviceState never owns a
// session's lifetime, only this narrow view of it.
type Sender interface {
	Send(buf []byte) error
}

// State is one registered device's fused view of its own telemetry.
type State struct {
	ID deviceid.ID

	mu sync.Mutex

	batteryTime  int64
	batteryLevel int16

	networkTime int64
	networkName []byte

	locations    map[int64]wire.LocationField
	lastLocation int64
	haveLocation bool

	trackingStoppedTime int64

	received map[uint64]struct{}

	subscribers []Sender

	lastSourceAddr net.Addr
}

// New creates an empty DeviceState for id.
func New(id deviceid.ID) *State {
	return &State{
		ID:        id,
		locations: make(map[int64]wire.LocationField),
		received:  make(map[uint64]struct{}),
	}
}

// Subscribe adds sub to the subscriber set. It does not check whether sub
// is already subscribed here or to another device, and the server's
// StreamOpenRequest handler does not check either, so a session that opens
// more than one stream appears in more than one subscriber set (I2).
func (s *State) Subscribe(sub Sender) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers = append(s.subscribers, sub)
}

// Unsubscribe removes s from the subscriber set, if present. Called on
// connection close.
func (s *State) Unsubscribe(sub Sender) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.subscribers {
		if existing == sub {
			s.subscribers = append(s.subscribers[:i], s.subscribers[i+1:]...)
			return
		}
	}
}

// SetLastSourceAddress records the most recent datagram source address
// observed for this device (diagnostic only).
func (s *State) SetLastSourceAddress(addr net.Addr) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSourceAddr = addr
}

// HasReceived reports whether sn has already been ingested.
func (s *State) HasReceived(sn uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.received[sn]
	return ok
}

// ApplyTracking fuses the fields of one Tracking message into the device
// state per §4.2, records sn in the received set before any field
// processing (so a racing ResyncRequest can already ack it), and fans the
// newly-applied values out to subscribers. Subscriber handles are copied
// out before the lock is released for sending, per §5.
func (s *State) ApplyTracking(sn uint64, fields []wire.Field) {
	var toNotify []wire.Field
	var subs []Sender

	// A Tracking message may carry more than one TLV of the same kind;
	// only the final applied value per kind is notified (§4.2), so these
	// are collapsed across the loop instead of appending per-TLV.
	var battery *wire.BatteryField
	var network *wire.NetworkField
	var stopped *wire.StoppedField

	s.mu.Lock()
	s.received[sn] = struct{}{}

	for _, f := range fields {
		switch v := f.(type) {
		case wire.BatteryField:
			if v.Time > s.batteryTime {
				s.batteryTime = v.Time
				s.batteryLevel = v.Level
				s.clearStoppedIfSuperseded(v.Time)
				battery = &v
			}
		case wire.NetworkField:
			if v.Time > s.networkTime {
				s.networkTime = v.Time
				s.networkName = v.Name
				s.clearStoppedIfSuperseded(v.Time)
				network = &v
			}
		case wire.LocationField:
			if _, exists := s.locations[v.Time]; !exists {
				toNotify = append(toNotify, v)
			}
			s.locations[v.Time] = v
			if !s.haveLocation || v.Time > s.lastLocation {
				s.lastLocation = v.Time
				s.haveLocation = true
			}
			s.clearStoppedIfSuperseded(v.Time)
		case wire.StoppedField:
			if v.Time > s.trackingStoppedTime &&
				v.Time > s.batteryTime &&
				v.Time > s.networkTime &&
				(!s.haveLocation || v.Time > s.lastLocation) {
				s.trackingStoppedTime = v.Time
				stopped = &v
			}
		}
	}
	if battery != nil {
		toNotify = append(toNotify, *battery)
	}
	if network != nil {
		toNotify = append(toNotify, *network)
	}
	if stopped != nil {
		toNotify = append(toNotify, *stopped)
	}

	if len(s.subscribers) > 0 && len(toNotify) > 0 {
		subs = append(subs, s.subscribers...)
	}
	s.mu.Unlock()

	if len(subs) == 0 {
		return
	}
	buf := make([]byte, wire.SnapshotSize(toNotify))
	wire.EncodeSnapshot(buf, toNotify)
	for _, sub := range subs {
		_ = sub.Send(buf)
	}
}

// clearStoppedIfSuperseded implements the rule shared by all three
// activity-bearing TLV kinds: a newly-applied value strictly after the
// recorded stop time clears it, since it proves activity after the
// claimed stop. Must be called with mu held.
func (s *State) clearStoppedIfSuperseded(t int64) {
	if s.trackingStoppedTime != 0 && s.trackingStoppedTime < t {
		s.trackingStoppedTime = 0
	}
}

// Snapshot builds the server-to-monitor Tracking fields sent on stream
// open: any set fields (battery, network, trackingStopped) and at most
// the most recent location.
func (s *State) Snapshot() []wire.Field {
	s.mu.Lock()
	defer s.mu.Unlock()

	var fields []wire.Field
	if s.batteryTime != 0 {
		fields = append(fields, wire.BatteryField{Time: s.batteryTime, Level: s.batteryLevel})
	}
	if s.networkTime != 0 {
		fields = append(fields, wire.NetworkField{Time: s.networkTime, Name: s.networkName})
	}
	if s.trackingStoppedTime != 0 {
		fields = append(fields, wire.StoppedField{Time: s.trackingStoppedTime})
	}
	if s.haveLocation {
		fields = append(fields, s.locations[s.lastLocation])
	}
	return fields
}

// BuildResyncReply partitions sequences by membership in the received set,
// preserving input order within each partition, per §4.3.
func (s *State) BuildResyncReply(sequences []uint64) (ack, request []uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sn := range sequences {
		if _, ok := s.received[sn]; ok {
			ack = append(ack, sn)
		} else {
			request = append(request, sn)
		}
	}
	return ack, request
}
