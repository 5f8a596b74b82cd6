package mpsconfig

import (
	"fmt"
	"time"

	"github.com/rcll/mps-refbox/enginebridge"
	"github.com/rcll/mps-refbox/fleet"
	"github.com/rcll/mps-refbox/station"
	"github.com/rcll/mps-refbox/transport"
	"github.com/rcll/mps-refbox/transport/mockup"
	"github.com/rcll/mps-refbox/transport/plc"
	"github.com/rcll/mps-refbox/transport/simulation"
)

// BuildFleet constructs every active station named in cfg, connects its
// Transport, and registers each one with fl. cb is the Callbacks set
// every Station forwards its status changes to — normally
// (*enginebridge.Bridge).Callbacks(), but tests may supply their own.
// Constructor failure aborts startup, matching "constructor failure
// aborts startup" in the fleet responsibility.
func BuildFleet(fl *fleet.Fleet, cfg Config, cb station.Callbacks) error {
	for name, sc := range cfg.Stations {
		if !sc.Active {
			continue
		}
		s, err := buildStation(station.Name(name), sc, effectiveConnection(cfg, sc), cb)
		if err != nil {
			return &ConfigError{Op: "build station " + name, Err: err}
		}
		if sc.CommandTimeoutMS > 0 {
			if ts, ok := s.(interface{ SetTimeout(time.Duration) }); ok {
				ts.SetTimeout(time.Duration(sc.CommandTimeoutMS) * time.Millisecond)
			}
		}
		if err := s.Connect(); err != nil {
			return &ConfigError{Op: "connect station " + name, Err: err}
		}
		fl.Add(s)
	}
	return nil
}

func buildStation(name station.Name, sc StationConfig, conn string, cb station.Callbacks) (station.CommonOps, error) {
	tr, err := buildTransport(name, sc, conn)
	if err != nil {
		return nil, err
	}
	switch sc.Type {
	case "BS":
		return station.NewBaseStation(name, tr, cb), nil
	case "CS":
		return station.NewCapStation(name, tr, cb), nil
	case "RS":
		return station.NewRingStation(name, tr, cb, ringCosts(sc)), nil
	case "DS":
		return station.NewDeliveryStation(name, tr, cb), nil
	default:
		return nil, fmt.Errorf("unrecognized station type %q", sc.Type)
	}
}

func buildTransport(name station.Name, sc StationConfig, conn string) (transport.Transport, error) {
	switch conn {
	case "plc":
		return plc.New(sc.Host, sc.Port, unitIDFor(name)), nil
	case "simulation":
		return simulation.New(fmt.Sprintf("%s:%d", sc.Host, sc.Port)), nil
	case "mockup":
		return mockup.New(), nil
	default:
		return nil, fmt.Errorf("unrecognized connection mode %q", conn)
	}
}

// unitIDFor derives a Modbus unit id from the station name's trailing
// digit, if any, else 1. The unit id is not configurable: stations whose
// names end in the same digit, or in no digit, get the same unit id.
func unitIDFor(name station.Name) byte {
	s := string(name)
	if len(s) == 0 {
		return 1
	}
	last := s[len(s)-1]
	if last >= '0' && last <= '9' {
		return last - '0'
	}
	return 1
}

// ringCosts merges DefaultRingCosts with any per-station overrides from
// config, returning nil only if sc declares no overrides and the caller
// should fall back to station.DefaultRingCosts entirely.
func ringCosts(sc StationConfig) map[station.RingColor]uint16 {
	if len(sc.RingCosts) == 0 {
		return nil
	}
	out := make(map[station.RingColor]uint16, len(station.DefaultRingCosts))
	for k, v := range station.DefaultRingCosts {
		out[k] = v
	}
	for k, v := range sc.RingCosts {
		c, ok := station.ParseRingColor("RING_" + k)
		if !ok {
			continue
		}
		out[c] = v
	}
	return out
}

// NewBridge builds a Fleet and its Bridge together: the Bridge is
// constructed first against an empty Fleet (Callbacks only needs the
// engine, not any station), then BuildFleet populates that same Fleet
// using the Bridge's callbacks, so every station's status changes reach
// the rule engine as facts from the moment it connects.
func NewBridge(cfg Config, engine enginebridge.RuleEngine) (*fleet.Fleet, *enginebridge.Bridge, error) {
	fl := fleet.New()
	bridge, err := enginebridge.New(engine, fl)
	if err != nil {
		return nil, nil, err
	}
	if err := BuildFleet(fl, cfg, bridge.Callbacks()); err != nil {
		return nil, nil, err
	}
	return fl, bridge, nil
}
