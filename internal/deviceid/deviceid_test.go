package deviceid

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoundTripBytes(t *testing.T) {
	id := New()
	assert.Equal(t, id, FromBytes(id.Bytes()))
}

func TestRoundTripCanonical(t *testing.T) {
	id := New()
	parsed, ok := ParseCanonical(id.String())
	assert.True(t, ok)
	assert.Equal(t, id, parsed)
}

func TestParseCanonicalRejectsGarbage(t *testing.T) {
	_, ok := ParseCanonical("not-a-uuid")
	assert.False(t, ok)
}

func TestZeroIsZero(t *testing.T) {
	assert.True(t, Zero.IsZero())
	assert.False(t, New().IsZero())
}
