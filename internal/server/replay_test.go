package server

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/js-labs/trackerd/internal/deviceid"
	"github.com/js-labs/trackerd/internal/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplayFileSkipsUnregisteredDevice(t *testing.T) {
	s := newTestServer(t)

	unregistered := deviceid.New()
	fields := []wire.Field{wire.BatteryField{Time: 1, Level: 50}}
	msg := make([]byte, wire.TrackingSize(fields))
	wire.EncodeTracking(msg, unregistered, 1, fields)

	path := filepath.Join(t.TempDir(), "tracking-replay-test")
	require.NoError(t, os.WriteFile(path, msg, 0o644))

	applied, err := s.replayFile(path)
	require.NoError(t, err)
	assert.Equal(t, 0, applied)

	_, ok := s.registry.lookup(unregistered)
	assert.False(t, ok, "replay must not auto-register a device with no marker file")
}

func TestReplayFileAppliesRegisteredDevice(t *testing.T) {
	s := newTestServer(t)
	id := s.registry.register(deviceid.New())

	fields := []wire.Field{wire.BatteryField{Time: 1, Level: 50}}
	msg := make([]byte, wire.TrackingSize(fields))
	wire.EncodeTracking(msg, id.ID, 1, fields)

	path := filepath.Join(t.TempDir(), "tracking-replay-test")
	require.NoError(t, os.WriteFile(path, msg, 0o644))

	applied, err := s.replayFile(path)
	require.NoError(t, err)
	assert.Equal(t, 1, applied)
	assert.True(t, id.HasReceived(1))
}
