package server

import (
	"os"

	"github.com/js-labs/trackerd/internal/wire"
	log "github.com/sirupsen/logrus"
)

// replayFile re-feeds one "tracking-YYYY-MM-DD" file's concatenated
// tracker-to-server Tracking messages through the same fusion path as live
// input, per §4.7. It returns the number of messages applied.
func (s *Server) replayFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}

	applied := 0
	off := 0
	for off+wire.HeaderSize <= len(data) {
		size := int(wire.GetSize(data[off:]))
		if size < wire.HeaderSize || off+size > len(data) {
			log.Warnf("replay of %s: truncated or malformed message at offset %d, stopping", path, off)
			break
		}
		msg := data[off : off+size]
		if wire.GetID(msg) == wire.IDTracking {
			id := wire.GetTrackingDeviceID(msg)
			sn := wire.GetTrackingSequence(msg)
			d, ok := s.registry.lookup(id)
			if !ok {
				log.Warnf("replay of %s: tracking message for unregistered device %s, skipping (no marker file)", path, id)
				off += size
				continue
			}
			fields, _ := wire.DecodeTrackingFields(msg)
			d.ApplyTracking(sn, fields)
			applied++
		}
		off += size
	}
	return applied, nil
}
