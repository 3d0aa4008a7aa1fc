// Package ratelimit implements the per-remote-address admission filter for
// control requests described in §4.4: a minimum interval between requests
// from the same IP, with a single-slot "expected follow-up" exception used
// to let a MonitorLinkRequest be immediately followed by a StreamOpenRequest.
package ratelimit

import (
	"net"
	"sync"
	"time"
)

// DefaultMinInterval is the minimum interval between two unrelated control
// requests from the same remote IP.
const DefaultMinInterval = 2 * time.Second

type entry struct {
	ip               string
	firstSeen        time.Time
	hasFollowUp      bool
	expectedFollowUp uint16
}

// Limiter is a per-IP admission filter. The zero value is not usable; use
// New.
type Limiter struct {
	mu          sync.Mutex
	minInterval time.Duration
	now         func() time.Time

	byIP  map[string]*entry
	order []*entry // insertion order; firstSeen is monotone across it

	timer *time.Timer
}

// New creates a Limiter with the given minimum interval between requests.
func New(minInterval time.Duration) *Limiter {
	return &Limiter{
		minInterval: minInterval,
		now:         time.Now,
		byIP:        make(map[string]*entry),
	}
}

// Check reports whether a control request with id messageID from
// remoteAddr is admitted. expectedNextID, if non-zero, arms a one-time
// exception for a specific follow-up message id from the same address.
// Non-IP remote addresses are always rejected.
func (l *Limiter) Check(remoteAddr net.Addr, messageID, expectedNextID uint16) bool {
	ip := hostIP(remoteAddr)
	if ip == "" {
		return false
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.byIP[ip]
	if !ok {
		e = &entry{
			ip:               ip,
			firstSeen:        l.now(),
			hasFollowUp:      expectedNextID != 0,
			expectedFollowUp: expectedNextID,
		}
		l.byIP[ip] = e
		wasEmpty := len(l.order) == 0
		l.order = append(l.order, e)
		if wasEmpty {
			l.arm()
		}
		return true
	}

	if e.hasFollowUp && e.expectedFollowUp == messageID {
		e.hasFollowUp = false
		return true
	}

	return l.now().Sub(e.firstSeen) >= l.minInterval
}

// arm schedules the eviction timer for the earliest-expiring entry. Must
// be called with mu held.
func (l *Limiter) arm() {
	if len(l.order) == 0 {
		if l.timer != nil {
			l.timer.Stop()
		}
		return
	}
	delay := l.order[0].firstSeen.Add(l.minInterval).Sub(l.now())
	if delay < 0 {
		delay = 0
	}
	if l.timer == nil {
		l.timer = time.AfterFunc(delay, l.tick)
	} else {
		l.timer.Reset(delay)
	}
}

// tick evicts entries whose enforcement window has elapsed and reschedules
// for the next surviving entry.
func (l *Limiter) tick() {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-l.minInterval)
	i := 0
	for i < len(l.order) && !l.order[i].firstSeen.After(cutoff) {
		delete(l.byIP, l.order[i].ip)
		i++
	}
	l.order = l.order[i:]
	l.arm()
}

func hostIP(addr net.Addr) string {
	switch a := addr.(type) {
	case *net.TCPAddr:
		return a.IP.String()
	case *net.UDPAddr:
		return a.IP.String()
	default:
		host, _, err := net.SplitHostPort(addr.String())
		if err != nil {
			return ""
		}
		if net.ParseIP(host) == nil {
			return ""
		}
		return host
	}
}
