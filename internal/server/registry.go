// Package server implements the device registry, message dispatch table,
// link-code lifecycle, and append-only persistence pipeline described in
// §4.6/§4.7 of the design. It has no knowledge of transports: Session
// decodes bytes into messages and calls into Server; Server never touches
// a net.Conn directly.
package server

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/js-labs/trackerd/internal/device"
	"github.com/js-labs/trackerd/internal/deviceid"
	log "github.com/sirupsen/logrus"
)

// registry is the server-level map from DeviceId to DeviceState, guarded
// by its own mutex per §5 ("held only for map lookups/insertions, never
// during network I/O").
type registry struct {
	mu      sync.Mutex
	devices map[deviceid.ID]*device.State
}

func newRegistry() *registry {
	return &registry{devices: make(map[deviceid.ID]*device.State)}
}

// lookup returns the DeviceState for id, if registered.
func (r *registry) lookup(id deviceid.ID) (*device.State, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.devices[id]
	return d, ok
}

// register creates and inserts a DeviceState for id. Returns the existing
// one if id is already registered (startup scan may race a RegisterRequest
// in principle; neither party should assume exclusivity).
func (r *registry) register(id deviceid.ID) *device.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok := r.devices[id]; ok {
		return d
	}
	d := device.New(id)
	r.devices[id] = d
	return d
}

func (r *registry) size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.devices)
}

// replayCandidate is a "tracking*" file found by scanStorageDir.
type replayCandidate struct {
	path    string
	modTime int64
}

// scanStorageDir implements the startup scan of §4.7: every filename that
// parses as a canonical UUID becomes a DeviceState; every filename
// starting with "tracking" is a replay candidate, returned sorted by
// last-modified time ascending.
func scanStorageDir(dir string) (markers []deviceid.ID, replayFiles []string, err error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, err
	}
	var candidates []replayCandidate
	for _, ent := range entries {
		if ent.IsDir() {
			continue
		}
		name := ent.Name()
		if id, ok := deviceid.ParseCanonical(name); ok {
			markers = append(markers, id)
			continue
		}
		if len(name) >= len(replayPrefix) && name[:len(replayPrefix)] == replayPrefix {
			info, err := ent.Info()
			if err != nil {
				log.Warnf("skipping replay candidate %s: %v", name, err)
				continue
			}
			candidates = append(candidates, replayCandidate{path: filepath.Join(dir, name), modTime: info.ModTime().UnixNano()})
		}
	}
	sortByModTimeAsc(candidates)
	for _, c := range candidates {
		replayFiles = append(replayFiles, c.path)
	}
	return markers, replayFiles, nil
}

func sortByModTimeAsc(c []replayCandidate) {
	for i := 1; i < len(c); i++ {
		for j := i; j > 0 && c[j].modTime < c[j-1].modTime; j-- {
			c[j], c[j-1] = c[j-1], c[j]
		}
	}
}
