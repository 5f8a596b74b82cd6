// Package enginebridge mediates between an external forward-chaining
// rule engine and the Fleet: it exposes the downward command shims the
// engine calls into, and asserts upward status/feedback facts while
// holding the engine's shared recursive lock. Grounded on
// internal/probeapi's pattern of a thin backend-facing struct that
// registers a fixed table of named functions and translates each call
// into a lower-layer operation.
package enginebridge

import (
	"fmt"

	"github.com/rcll/mps-refbox/fleet"
	"github.com/rcll/mps-refbox/mpslog"
	"github.com/rcll/mps-refbox/station"
)

// RuleEngine is the external collaborator the Bridge depends on: an
// opaque forward-chaining engine exposing fact assertion, a reentrant
// lock shared with this process, and a function-registration hook. The
// engine itself (e.g. a CLIPS binding) is supplied by the caller; this
// repository never implements one.
type RuleEngine interface {
	AssertFact(text string) error
	Lock()
	Unlock()
	RegisterFunction(name string, fn any) error
}

// Bridge is the downward-shim / upward-fact mediator. It holds only
// borrowed references into the Fleet and the RuleEngine; it never owns
// either.
type Bridge struct {
	engine RuleEngine
	fleet  *fleet.Fleet
	log    *mpslog.Logger
}

// New creates a Bridge over fl, wired to engine. It registers every shim
// named in the function table immediately.
func New(engine RuleEngine, fl *fleet.Fleet) (*Bridge, error) {
	b := &Bridge{engine: engine, fleet: fl, log: mpslog.Root.With("bridge")}
	if err := b.registerShims(); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *Bridge) registerShims() error {
	shims := map[string]any{
		"mps-move-conveyor":      b.shimMoveConveyor,
		"mps-cs-retrieve-cap":    b.shimRetrieveCap,
		"mps-cs-mount-cap":       b.shimMountCap,
		"mps-bs-dispense":        b.shimDispense,
		"mps-set-light":          b.shimSetLight,
		"mps-set-lights":         b.shimSetLights,
		"mps-reset-lights":       b.shimResetLights,
		"mps-ds-process":         b.shimDeliverGate,
		"mps-rs-mount-ring":      b.shimMountRing,
		"mps-cs-process":         b.shimCapProcess,
		"mps-reset":              b.shimReset,
		"mps-reset-base-counter": b.shimResetBaseCounter,
		"mps-deliver":            b.shimDeliverDefault,
	}
	for name, fn := range shims {
		if err := b.engine.RegisterFunction(name, fn); err != nil {
			return fmt.Errorf("enginebridge: register %s: %w", name, err)
		}
	}
	return nil
}

func (b *Bridge) station(name string) (station.CommonOps, bool) {
	s, ok := b.fleet.Station(name)
	if !ok {
		b.log.Error("unknown station", "station", name)
	}
	return s, ok
}

// assert asserts text under the engine's shared lock. Every assertion in
// this file goes through here so no call site ever forgets to take the
// lock, and so I/O never happens while the lock is held — callers must
// finish any Transport/Station work before calling assert.
func (b *Bridge) assert(format string, args ...any) {
	text := fmt.Sprintf(format, args...)
	b.engine.Lock()
	defer b.engine.Unlock()
	if err := b.engine.AssertFact(text); err != nil {
		b.log.Error("assert failed", "fact", text, "err", err)
	}
}

// feedback asserts the two-phase (mps-feedback name op phase) fact used
// by compound commands at intermediate and final milestones.
func (b *Bridge) feedback(name, op, phase string) {
	b.assert("(mps-feedback %s %s %s)", name, op, phase)
}

// Callbacks returns the station.Callbacks set every constructed Station
// should be wired with, so every status change this Bridge's Fleet owns
// reaches the rule engine as a fact.
func (b *Bridge) Callbacks() station.Callbacks {
	return station.Callbacks{
		ReadyIn: func(name station.Name, val bool) {
			b.assert("(mps-status-feedback %s READY %s)", name, boolFact(val))
		},
		BusyIn: func(name station.Name, val bool) {
			b.assert("(mps-status-feedback %s BUSY %s)", name, boolFact(val))
		},
		BarcodeIn: func(name station.Name, val int32) {
			b.assert("(mps-status-feedback %s BARCODE %d)", name, val)
		},
		SlideCountIn: func(name station.Name, val uint16) {
			b.assert("(mps-status-feedback %s SLIDE-COUNTER %d)", name, val)
		},
	}
}

func boolFact(v bool) string {
	if v {
		return "TRUE"
	}
	return "FALSE"
}

// Tick asserts every station's per-tick machine-mps-state fact as a
// single atomic batch: the engine lock is held for the whole loop, so a
// reader under the lock sees either every station's fact for this tick
// or none of them.
func (b *Bridge) Tick() {
	ticks := b.fleet.Process()
	b.engine.Lock()
	defer b.engine.Unlock()
	for _, t := range ticks {
		text := fmt.Sprintf("(machine-mps-state %s %s %d)", t.Name, t.State, t.NumBases)
		if err := b.engine.AssertFact(text); err != nil {
			b.log.Error("tick assert failed", "fact", text, "err", err)
		}
	}
}
