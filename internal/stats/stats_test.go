package stats

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCountersStartAtZero(t *testing.T) {
	s := New()
	assert.Equal(t, float64(0), testutil.ToFloat64(s.SessionsOpened))
	assert.Equal(t, float64(0), testutil.ToFloat64(s.FramingErrors))
}

func TestCountersIncrement(t *testing.T) {
	s := New()
	s.SessionsOpened.Inc()
	s.SessionsOpened.Inc()
	s.LinkCodesIssued.Inc()
	s.MessagesByID.WithLabelValues("16").Inc()

	assert.Equal(t, float64(2), testutil.ToFloat64(s.SessionsOpened))
	assert.Equal(t, float64(1), testutil.ToFloat64(s.LinkCodesIssued))
	assert.Equal(t, float64(1), testutil.ToFloat64(s.MessagesByID.WithLabelValues("16")))
}

func TestPersistQueueGauge(t *testing.T) {
	s := New()
	s.PersistQueueSize.Set(3)
	assert.Equal(t, float64(3), testutil.ToFloat64(s.PersistQueueSize))
}
