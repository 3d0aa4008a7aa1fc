// Package linkbroker implements the short-lived link-code ceremony of
// §4.5: a numeric code brokers a monitor-to-tracker pairing without
// exposing the tracker's device id to the monitor until redemption.
package linkbroker

import (
	"math/rand"
	"sync"
	"time"

	"github.com/js-labs/trackerd/internal/deviceid"
)

// DefaultTTL is the link-request expiry the spec's open question resolves
// to (§9: the `60*100` constant is treated as 60 seconds, made
// configurable here).
const DefaultTTL = 60 * time.Second

type entry struct {
	code     int32
	deviceID deviceid.ID
	expiry   time.Time
}

// Broker issues and redeems link codes. The zero value is not usable; use
// New.
type Broker struct {
	mu  sync.Mutex
	ttl time.Duration
	now func() time.Time
	rng *rand.Rand

	byCode   map[int32]*entry
	byDevice map[deviceid.ID]*entry

	timer *time.Timer
}

// New creates a Broker with the given link-request TTL.
func New(ttl time.Duration) *Broker {
	return &Broker{
		ttl:      ttl,
		now:      time.Now,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		byCode:   make(map[int32]*entry),
		byDevice: make(map[deviceid.ID]*entry),
	}
}

// IssueForTracker returns a link code for id, creating one if none is
// pending or refreshing (and returning) the existing code if one is. The
// caller is responsible for checking that id is a known device (§4.5: "If
// the device is unknown, return 0") before calling this.
func (b *Broker) IssueForTracker(id deviceid.ID) int32 {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	if e, ok := b.byDevice[id]; ok {
		e.expiry = now.Add(b.ttl)
		return e.code
	}

	code := b.nextCode()
	e := &entry{code: code, deviceID: id, expiry: now.Add(b.ttl)}
	wasEmpty := len(b.byCode) == 0
	b.byCode[code] = e
	b.byDevice[id] = e
	if wasEmpty {
		b.arm()
	}
	return code
}

// nextCode draws a non-zero code in [1, 99999], redrawing on collision
// with a pending code or with the 0 sentinel. Must be called with mu held.
func (b *Broker) nextCode() int32 {
	for {
		code := int32(abs(b.rng.Int31()) % 100000)
		if code == 0 {
			continue
		}
		if _, taken := b.byCode[code]; taken {
			continue
		}
		return code
	}
}

func abs(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}

// RedeemForMonitor looks up and removes the pending link request for
// code, returning its device id. No refresh semantics: redemption is
// one-shot.
func (b *Broker) RedeemForMonitor(code int32) (deviceid.ID, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.byCode[code]
	if !ok {
		return deviceid.Zero, false
	}
	delete(b.byCode, e.code)
	delete(b.byDevice, e.deviceID)
	return e.deviceID, true
}

// arm schedules the expiry sweep for the earliest deadline currently
// pending. Must be called with mu held.
func (b *Broker) arm() {
	var next time.Time
	for _, e := range b.byCode {
		if next.IsZero() || e.expiry.Before(next) {
			next = e.expiry
		}
	}
	if next.IsZero() {
		if b.timer != nil {
			b.timer.Stop()
		}
		return
	}
	delay := next.Sub(b.now())
	if delay < 0 {
		delay = 0
	}
	if b.timer == nil {
		b.timer = time.AfterFunc(delay, b.tick)
	} else {
		b.timer.Reset(delay)
	}
}

// tick removes all entries whose deadline has passed and reschedules for
// the next one. The list of pending requests is bounded and short-lived,
// so a full scan per tick (rather than an ordered eviction list) is cheap.
func (b *Broker) tick() {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	for code, e := range b.byCode {
		if !e.expiry.After(now) {
			delete(b.byCode, code)
			delete(b.byDevice, e.deviceID)
		}
	}
	b.arm()
}
