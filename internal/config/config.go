// Package config holds trackerd's runtime configuration: required CLI
// flags plus the handful of spec-identified tunables, optionally
// overlaid from a YAML file the way ptp4u's DynamicConfig is loaded.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Config is trackerd's full runtime configuration.
type Config struct {
	// StorageDir is the required `-s` flag: marker files and tracking-*
	// persistence files live here.
	StorageDir string

	// Port is the `-p` flag; the same port number is used for both the
	// TCP and UDP listeners.
	Port int

	// LogLevel selects the logrus level.
	LogLevel string

	// Tunable is the YAML-overlaid set of spec-configurable constants.
	Tunable Tunable
}

// Tunable holds the constants the spec calls out as "should be
// configurable" (§4.4, §4.5, §5).
type Tunable struct {
	LinkTTL            time.Duration `yaml:"link_ttl"`
	RateLimitInterval  time.Duration `yaml:"rate_limit_interval"`
	SessionIdleTimeout time.Duration `yaml:"session_idle_timeout"`
}

// DefaultTunable is used when no YAML overlay is supplied.
var DefaultTunable = Tunable{
	LinkTTL:            60 * time.Second,
	RateLimitInterval:  2 * time.Second,
	SessionIdleTimeout: 15 * time.Second,
}

// DefaultPort is used when -p is not given.
const DefaultPort = 80

// LoadTunableOverlay reads a YAML file overlaying DefaultTunable. A zero
// value in the file leaves the corresponding default untouched.
func LoadTunableOverlay(path string) (Tunable, error) {
	t := DefaultTunable
	if path == "" {
		return t, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return t, fmt.Errorf("reading tunable overlay: %w", err)
	}
	var overlay Tunable
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return t, fmt.Errorf("parsing tunable overlay: %w", err)
	}
	if overlay.LinkTTL != 0 {
		t.LinkTTL = overlay.LinkTTL
	}
	if overlay.RateLimitInterval != 0 {
		t.RateLimitInterval = overlay.RateLimitInterval
	}
	if overlay.SessionIdleTimeout != 0 {
		t.SessionIdleTimeout = overlay.SessionIdleTimeout
	}
	return t, nil
}
