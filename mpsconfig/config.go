// Package mpsconfig holds the typed configuration record this
// repository's core consumes and the TOML loader that builds one from an
// on-disk file. Grounded on cmd/gprobe/config.go's tomlSettings pattern:
// a toml.Config with strict field-name matching plus a loader that
// wraps parse errors with the source file name.
package mpsconfig

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"reflect"
	"time"

	"github.com/naoina/toml"

	"github.com/rcll/mps-refbox/mpslog"
)

// tomlSettings mirrors the teacher's strict decode settings: TOML keys
// must match Go struct field names exactly, and an unrecognized field is
// a hard error rather than silently ignored.
var tomlSettings = toml.Config{
	NormFieldName: func(rt reflect.Type, key string) string {
		return key
	},
	FieldToKey: func(rt reflect.Type, field string) string {
		return field
	},
	MissingField: func(rt reflect.Type, field string) error {
		return fmt.Errorf("field '%s' is not defined in %s", field, rt.String())
	},
}

// StationConfig is one entry under mps.stations.<name>.
type StationConfig struct {
	Type       string // BS|CS|RS|DS
	Host       string
	Port       uint16
	Active     bool
	Connection string // plc|simulation|mockup, overrides the fleet-level default
	RingCosts  map[string]uint16 `toml:",omitempty"`

	// CommandTimeoutMS overrides station.DefaultCommandTimeout for this
	// station only, in milliseconds. Zero means "use the default".
	CommandTimeoutMS uint `toml:",omitempty"`
}

// Config is the root mps/ configuration record.
type Config struct {
	Enable             bool
	Connection         string // fleet-level default connection mode
	Stations           map[string]StationConfig
	ClipsTimerInterval uint // ms
}

// Defaults mirrors the teacher's *Config-level Defaults convention
// (probeconfig.Defaults): a ready-to-use zero-station configuration with
// sane ambient values, meant to be copied and then overridden by the
// loaded TOML file.
var Defaults = Config{
	Enable:             true,
	Connection:         "mockup",
	Stations:           map[string]StationConfig{},
	ClipsTimerInterval: 40,
}

// TickInterval returns the configured tick period as a time.Duration.
func (c Config) TickInterval() time.Duration {
	if c.ClipsTimerInterval == 0 {
		return 40 * time.Millisecond
	}
	return time.Duration(c.ClipsTimerInterval) * time.Millisecond
}

// ConfigError marks a fatal startup configuration problem: missing
// required keys or a malformed value. Per the error taxonomy, these are
// the only errors this package produces that callers should treat as
// fatal during startup.
type ConfigError struct {
	Op  string
	Err error
}

func (e *ConfigError) Error() string { return fmt.Sprintf("mpsconfig: %s: %v", e.Op, e.Err) }
func (e *ConfigError) Unwrap() error { return e.Err }

// Load reads and decodes a TOML file at path into a Config seeded from
// Defaults.
func Load(path string) (Config, error) {
	cfg := Defaults
	cfg.Stations = make(map[string]StationConfig)
	f, err := os.Open(path)
	if err != nil {
		return cfg, &ConfigError{Op: "open", Err: err}
	}
	defer f.Close()

	err = tomlSettings.NewDecoder(bufio.NewReader(f)).Decode(&cfg)
	if _, ok := err.(*toml.LineError); ok {
		err = errors.New(path + ", " + err.Error())
	}
	if err != nil {
		return cfg, &ConfigError{Op: "decode", Err: err}
	}
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	logConfigLoaded(path, len(cfg.Stations))
	return cfg, nil
}

// Validate checks required keys and value ranges, per the error
// taxonomy's ConfigError ("missing required key, malformed value").
func Validate(cfg Config) error {
	for name, sc := range cfg.Stations {
		if !sc.Active {
			continue
		}
		switch sc.Type {
		case "BS", "CS", "RS", "DS":
		default:
			return &ConfigError{Op: "validate", Err: fmt.Errorf("station %q: unrecognized type %q", name, sc.Type)}
		}
		conn := sc.Connection
		if conn == "" {
			conn = cfg.Connection
		}
		switch conn {
		case "plc", "simulation", "mockup":
		default:
			return &ConfigError{Op: "validate", Err: fmt.Errorf("station %q: unrecognized connection %q", name, conn)}
		}
		if conn == "plc" || conn == "simulation" {
			if sc.Host == "" {
				return &ConfigError{Op: "validate", Err: fmt.Errorf("station %q: host is required for connection %q", name, conn)}
			}
			if sc.Port == 0 {
				return &ConfigError{Op: "validate", Err: fmt.Errorf("station %q: port is required for connection %q", name, conn)}
			}
		}
	}
	return nil
}

func effectiveConnection(cfg Config, sc StationConfig) string {
	if sc.Connection != "" {
		return sc.Connection
	}
	return cfg.Connection
}

func logConfigLoaded(path string, n int) {
	mpslog.Info("mps config loaded", "path", path, "stations", n)
}
