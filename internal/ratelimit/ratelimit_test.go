package ratelimit

import (
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type atomicClock struct {
	nanos int64
}

func newAtomicClock(start time.Time) *atomicClock {
	c := &atomicClock{}
	c.set(start)
	return c
}

func (c *atomicClock) set(t time.Time) { atomic.StoreInt64(&c.nanos, t.UnixNano()) }
func (c *atomicClock) advance(d time.Duration) {
	atomic.AddInt64(&c.nanos, int64(d))
}
func (c *atomicClock) now() time.Time { return time.Unix(0, atomic.LoadInt64(&c.nanos)) }

func addr(ip string) net.Addr {
	return &net.TCPAddr{IP: net.ParseIP(ip), Port: 1234}
}

func TestFirstRequestAlwaysAdmitted(t *testing.T) {
	l := New(DefaultMinInterval)
	assert.True(t, l.Check(addr("10.0.0.1"), 5, 0))
}

func TestSecondRequestWithinIntervalRejected(t *testing.T) {
	l := New(10 * time.Second)
	a := addr("10.0.0.1")
	assert.True(t, l.Check(a, 5, 0))
	assert.False(t, l.Check(a, 5, 0))
}

func TestExpectedFollowUpBypassesOnce(t *testing.T) {
	l := New(10 * time.Second)
	a := addr("10.0.0.1")
	require.True(t, l.Check(a, 9, 11)) // MonitorLinkRequest, expects StreamOpenRequest(11)
	assert.True(t, l.Check(a, 11, 0))  // follow-up admitted despite interval
	assert.False(t, l.Check(a, 11, 0)) // slot consumed, next one rate limited
}

func TestIntervalElapsedAdmits(t *testing.T) {
	clock := newAtomicClock(time.Now())
	l := New(5 * time.Millisecond)
	l.now = clock.now
	a := addr("10.0.0.1")
	require.True(t, l.Check(a, 5, 0))
	clock.advance(10 * time.Millisecond)
	assert.True(t, l.Check(a, 5, 0))
}

func TestNonIPAddrRejected(t *testing.T) {
	l := New(DefaultMinInterval)
	assert.False(t, l.Check(&net.UnixAddr{Name: "/tmp/sock"}, 5, 0))
}

func TestDistinctIPsIndependent(t *testing.T) {
	l := New(10 * time.Second)
	assert.True(t, l.Check(addr("10.0.0.1"), 5, 0))
	assert.True(t, l.Check(addr("10.0.0.2"), 5, 0))
}
