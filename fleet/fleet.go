// Package fleet owns every configured Station, runs the periodic status
// tick, and serializes command issuance so that at most one asynchronous
// command is ever in flight per station. Grounded on miner.worker's
// task/result loop pair: a bounded worker pool drains issued commands,
// and a small mutex-protected map (pendingMu in the teacher, ticketMu
// here) tracks what's currently outstanding per key.
package fleet

import (
	"context"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/rcll/mps-refbox/mpslog"
	"github.com/rcll/mps-refbox/station"
)

// Ticket is the in-flight record for one asynchronous command issued
// against a station. At most one Ticket exists per station name at any
// instant.
type Ticket struct {
	Station string
	Kind    string
	ID      uuid.UUID

	done chan struct{}
	err  error
}

// Done reports whether the command this ticket tracks has finished.
func (t *Ticket) Done() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the ticket resolves and returns its error, if any.
func (t *Ticket) Wait() error {
	<-t.done
	return t.err
}

// StationTick is the coarse per-station summary Fleet.Process reports
// for one tick: the short state tag and the current slide count (0 for
// every non-Ring variety).
type StationTick struct {
	Name     string
	State    string
	NumBases uint16
}

// Fleet is the named registry of all configured stations.
type Fleet struct {
	log *mpslog.Logger

	mu       sync.RWMutex
	stations map[string]station.CommonOps
	names    mapset.Set // set of station names, mirrors the stations map's keys

	ticketMu sync.Mutex
	tickets  map[string]*Ticket

	group *errgroup.Group
	gctx  context.Context
}

// New creates an empty Fleet. Stations are added with Add during
// construction from configuration; see mpsconfig.BuildFleet in
// mpsconfig/build.go.
func New() *Fleet {
	g, ctx := errgroup.WithContext(context.Background())
	return &Fleet{
		log:      mpslog.Root.With("fleet"),
		stations: make(map[string]station.CommonOps),
		names:    mapset.NewSet(),
		tickets:  make(map[string]*Ticket),
		group:    g,
		gctx:     ctx,
	}
}

// Add registers a constructed station under its name. Construction
// failures are the caller's responsibility to surface before calling
// Add; once added, a station is live for the Fleet's lifetime.
func (f *Fleet) Add(s station.CommonOps) {
	f.mu.Lock()
	defer f.mu.Unlock()
	name := string(s.Name())
	if f.names.Contains(name) {
		f.log.Warn("replacing already-registered station", "station", name)
	}
	f.stations[name] = s
	f.names.Add(name)
}

// Station looks up a station by name, returning the common-ops handle.
func (f *Fleet) Station(name string) (station.CommonOps, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	s, ok := f.stations[name]
	return s, ok
}

// Base looks up name and fails if it isn't a Base station.
func (f *Fleet) Base(name string) (*station.BaseStation, bool) {
	s, ok := f.Station(name)
	if !ok {
		return nil, false
	}
	b, ok := s.(*station.BaseStation)
	return b, ok
}

// Cap looks up name and fails if it isn't a Cap station.
func (f *Fleet) Cap(name string) (*station.CapStation, bool) {
	s, ok := f.Station(name)
	if !ok {
		return nil, false
	}
	c, ok := s.(*station.CapStation)
	return c, ok
}

// Ring looks up name and fails if it isn't a Ring station.
func (f *Fleet) Ring(name string) (*station.RingStation, bool) {
	s, ok := f.Station(name)
	if !ok {
		return nil, false
	}
	r, ok := s.(*station.RingStation)
	return r, ok
}

// Delivery looks up name and fails if it isn't a Delivery station.
func (f *Fleet) Delivery(name string) (*station.DeliveryStation, bool) {
	s, ok := f.Station(name)
	if !ok {
		return nil, false
	}
	d, ok := s.(*station.DeliveryStation)
	return d, ok
}

// Names returns every registered station name.
func (f *Fleet) Names() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]string, 0, len(f.stations))
	for n := range f.stations {
		out = append(out, n)
	}
	return out
}

// Issue runs op asynchronously against the named station, dropping the
// request if an earlier ticket for that station is still outstanding.
// onDone, if non-nil, runs once op resolves (with its result error) —
// the completion-fact assertion lives there, supplied by the caller
// (normally the Engine Bridge) so Fleet itself never touches the rule
// engine.
func (f *Fleet) Issue(name, kind string, op func() error, onDone func(error)) (*Ticket, bool) {
	f.ticketMu.Lock()
	if existing, ok := f.tickets[name]; ok && !existing.Done() {
		f.ticketMu.Unlock()
		f.log.Info("dropping command, one already in flight", "station", name, "kind", kind)
		return nil, false
	}
	ticket := &Ticket{Station: name, Kind: kind, ID: uuid.New(), done: make(chan struct{})}
	f.tickets[name] = ticket
	f.ticketMu.Unlock()

	f.group.Go(func() error {
		err := op()
		ticket.err = err
		close(ticket.done)
		if onDone != nil {
			onDone(err)
		}
		if err != nil {
			f.log.Warn("command failed", "station", name, "kind", kind, "err", err)
		}
		return nil
	})
	return ticket, true
}

// Process runs one tick: collects a status summary for every station
// under a single pass and returns the batch atomically, so a caller
// asserting per-tick facts under a lock sees either all of them or none.
func (f *Fleet) Process() []StationTick {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make([]StationTick, 0, len(f.stations))
	for name, s := range f.stations {
		snap := s.Snapshot()
		out = append(out, StationTick{
			Name:     name,
			State:    tickState(snap),
			NumBases: numBases(s, snap),
		})
	}
	return out
}

func tickState(snap station.Snapshot) string {
	switch {
	case snap.BusyIn:
		return "BUSY"
	case snap.ReadyIn:
		return "READY"
	default:
		return "IDLE"
	}
}

// numBases reports the current slide count for Ring stations and 0 for
// every other variety. This replaces the previous hardcoded-zero
// behavior: a Ring station's slide counter is tracked properly by
// RingStation and surfaced here as the live value.
func numBases(s station.CommonOps, snap station.Snapshot) uint16 {
	if r, ok := s.(*station.RingStation); ok {
		return r.SlideCount()
	}
	if snap.HasSlideCounter {
		return snap.SlideCounter
	}
	return 0
}

// Shutdown waits up to timeout for outstanding tickets to drain, then
// detaches whatever is still running. It does not close any Transport
// (each Station owns and closes its own); a detached command's pending
// completion fact is simply never asserted.
func (f *Fleet) Shutdown(timeout time.Duration) {
	done := make(chan struct{})
	go func() {
		f.group.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		f.log.Warn("shutdown timed out waiting for outstanding commands", "timeout", timeout)
	}
}
