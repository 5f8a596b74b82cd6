package station

import (
	"sync/atomic"

	"github.com/rcll/mps-refbox/mpsreg"
	"github.com/rcll/mps-refbox/transport"
)

// RingColor is one of the four ring colors a Ring station can mount.
type RingColor int

const (
	RingBlue RingColor = iota
	RingGreen
	RingOrange
	RingYellow
)

func ParseRingColor(s string) (RingColor, bool) {
	switch s {
	case "RING_BLUE":
		return RingBlue, true
	case "RING_GREEN":
		return RingGreen, true
	case "RING_ORANGE":
		return RingOrange, true
	case "RING_YELLOW":
		return RingYellow, true
	default:
		return 0, false
	}
}

// DefaultRingCosts are the base-payment costs per ring color, used when a
// deployment's configuration doesn't override them.
var DefaultRingCosts = map[RingColor]uint16{
	RingBlue:   1,
	RingGreen:  1,
	RingOrange: 2,
	RingYellow: 2,
}

// RingStation mounts ring attachments, consuming bases from its slide
// counter as payment.
type RingStation struct {
	*base
	costs map[RingColor]uint16

	// slideCounter mirrors the value last observed on SLIDECOUNT_IN. It
	// is what Fleet reads for the per-tick num-bases field, replacing the
	// previous hardcoded-zero behavior.
	slideCounter uint32
}

// NewRingStation wraps tr as a Ring station. costs may be nil to use
// DefaultRingCosts.
func NewRingStation(name Name, tr transport.Transport, cb Callbacks, costs map[RingColor]uint16) *RingStation {
	if costs == nil {
		costs = DefaultRingCosts
	}
	s := &RingStation{base: newBase(name, VarietyRing, tr, cb), costs: costs}

	// Chain the caller's SlideCountIn callback so the station keeps its
	// own mirrored counter in sync with every update the Transport
	// reports, independent of anything MountRing does locally.
	prev := s.cb.SlideCountIn
	s.cb.SlideCountIn = func(name Name, val uint16) {
		atomic.StoreUint32(&s.slideCounter, uint32(val))
		if prev != nil {
			prev(name, val)
		}
	}
	return s
}

// SlideCount returns the most recently observed slide counter value.
func (s *RingStation) SlideCount() uint16 {
	return uint16(atomic.LoadUint32(&s.slideCounter))
}

// ResetSlideCounter force-sets the mirrored slide counter, used (with 0)
// by the mps-reset-base-counter shim once the slide has been emptied out
// of band.
func (s *RingStation) ResetSlideCounter(v uint16) {
	atomic.StoreUint32(&s.slideCounter, uint32(v))
}

// MountRing mounts one ring of the given color and consumes its
// configured base cost from the slide counter.
func (s *RingStation) MountRing(color RingColor) error {
	cost, ok := s.costs[color]
	if !ok {
		return ErrBadEnum
	}
	if err := s.runCommand(actionMountRing, []mpsreg.Value{mpsreg.Uint16Value(uint16(color))}); err != nil {
		return err
	}
	s.consume(cost)
	return nil
}

// MountRingWithCost mounts one ring paid for with cost bases, for
// callers that have already resolved the cost themselves rather than by
// color — the mps-rs-mount-ring shim passes the slide count it was
// handed by the engine.
func (s *RingStation) MountRingWithCost(cost uint16) error {
	if err := s.runCommand(actionMountRing, []mpsreg.Value{mpsreg.Uint16Value(cost)}); err != nil {
		return err
	}
	s.consume(cost)
	return nil
}

func (s *RingStation) consume(cost uint16) {
	for {
		cur := atomic.LoadUint32(&s.slideCounter)
		if cur < uint32(cost) {
			return
		}
		if atomic.CompareAndSwapUint32(&s.slideCounter, cur, cur-uint32(cost)) {
			return
		}
	}
}
