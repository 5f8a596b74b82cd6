package enginebridge

import (
	"github.com/rcll/mps-refbox/station"
)

// Every shim in this file locates the station and validates its enum
// arguments first. The conveyor, cap, dispense, ring and delivery shims
// then delegate to Fleet.Issue so the command runs asynchronously and
// serialized per station, asserting DONE feedback from the completion
// callback; the cap shims assert AVAILABLE just before issuing. The
// light, reset and reset-base-counter shims act on the station directly
// and synchronously. An unknown station or an unrecognized enum value is
// logged and the call becomes a no-op — it never reaches a Station
// operation.

func (b *Bridge) shimMoveConveyor(name, sensor, direction string) {
	s, ok := b.station(name)
	if !ok {
		return
	}
	if direction == "" {
		direction = "FORWARD"
	}
	dir, ok := station.ParseDirection(direction)
	if !ok {
		b.log.Error("invalid direction", "station", name, "direction", direction)
		return
	}
	sen, ok := station.ParseSensor(sensor)
	if !ok {
		b.log.Error("invalid sensor", "station", name, "sensor", sensor)
		return
	}
	b.fleet.Issue(name, "move-conveyor", func() error {
		return s.ConveyorMove(dir, sen)
	}, func(err error) {
		if err == nil {
			b.feedback(name, "MOVE_CONVEYOR", "DONE")
		}
	})
}

func (b *Bridge) shimRetrieveCap(name string) {
	c, ok := b.fleet.Cap(name)
	if !ok {
		b.log.Error("unknown or non-cap station", "station", name)
		return
	}
	b.feedback(name, "RETRIEVE_CAP", "AVAILABLE")
	b.fleet.Issue(name, "retrieve-cap", c.RetrieveCap, func(err error) {
		if err == nil {
			b.feedback(name, "RETRIEVE_CAP", "DONE")
		}
	})
}

func (b *Bridge) shimMountCap(name string) {
	c, ok := b.fleet.Cap(name)
	if !ok {
		b.log.Error("unknown or non-cap station", "station", name)
		return
	}
	b.feedback(name, "MOUNT_CAP", "AVAILABLE")
	b.fleet.Issue(name, "mount-cap", c.MountCap, func(err error) {
		if err == nil {
			b.feedback(name, "MOUNT_CAP", "DONE")
		}
	})
}

func (b *Bridge) shimCapProcess(name, op string) {
	c, ok := b.fleet.Cap(name)
	if !ok {
		b.log.Error("unknown or non-cap station", "station", name)
		return
	}
	parsed, ok := station.ParseCapOp(op)
	if !ok {
		b.log.Error("invalid cap op", "station", name, "op", op)
		return
	}
	b.feedback(name, op, "AVAILABLE")
	b.fleet.Issue(name, "cap-process", func() error {
		return c.Process(parsed)
	}, func(err error) {
		if err == nil {
			b.feedback(name, op, "DONE")
		}
	})
}

func (b *Bridge) shimDispense(name, color string) {
	base, ok := b.fleet.Base(name)
	if !ok {
		b.log.Error("unknown or non-base station", "station", name)
		return
	}
	c, ok := station.ParseBaseColor(color)
	if !ok {
		b.log.Error("invalid base color", "station", name, "color", color)
		return
	}
	b.fleet.Issue(name, "dispense", func() error {
		return base.GetBase(c)
	}, func(err error) {
		if err == nil {
			b.feedback(name, "DISPENSE", "DONE")
		}
	})
}

func (b *Bridge) shimSetLight(name, color, state string) {
	s, ok := b.station(name)
	if !ok {
		return
	}
	col, ok := station.ParseLightColor(color)
	if !ok {
		b.log.Error("invalid light color", "station", name, "color", color)
		return
	}
	st, ok := station.ParseLightState(state)
	if !ok {
		b.log.Error("invalid light state", "station", name, "state", state)
		return
	}
	if err := s.SetLight(col, st, 0); err != nil {
		b.log.Error("set-light failed", "station", name, "err", err)
	}
}

// shimSetLights sets all three colors in RED, YELLOW, GREEN order,
// observationally equivalent to three sequential mps-set-light calls in
// that order.
func (b *Bridge) shimSetLights(name, red, yellow, green string) {
	b.shimSetLight(name, "RED", red)
	b.shimSetLight(name, "YELLOW", yellow)
	b.shimSetLight(name, "GREEN", green)
}

func (b *Bridge) shimResetLights(name string) {
	s, ok := b.station(name)
	if !ok {
		return
	}
	if err := s.ResetLight(); err != nil {
		b.log.Error("reset-lights failed", "station", name, "err", err)
	}
}

// shimMountRing handles mps-rs-mount-ring(name, slide), where slide is
// the number of payment bases the mounted ring consumes from the
// station's slide. The color-typed MountRing stays available on
// RingStation for callers that resolve the cost from the configured
// color table instead.
func (b *Bridge) shimMountRing(name string, slide int) {
	r, ok := b.fleet.Ring(name)
	if !ok {
		b.log.Error("unknown or non-ring station", "station", name)
		return
	}
	if slide < 0 || slide > int(r.SlideCount()) {
		b.log.Error("invalid slide count", "station", name, "slide", slide, "available", r.SlideCount())
		return
	}
	cost := uint16(slide)
	b.fleet.Issue(name, "mount-ring", func() error {
		return r.MountRingWithCost(cost)
	}, func(err error) {
		if err == nil {
			b.feedback(name, "MOUNT_RING", "DONE")
		}
	})
}

// shimDeliverGate handles mps-ds-process(name, gate), which names the
// delivery gate explicitly and reports completion through the generic
// phase pair.
func (b *Bridge) shimDeliverGate(name string, gate int) {
	b.deliver(name, gate, func(err error) {
		if err == nil {
			b.feedback(name, "DELIVER", "DONE")
		}
	})
}

// shimDeliverDefault handles mps-deliver(name), the simpler endpoint that
// always routes to Gate1 and asserts the success fact in the
// (mps-feedback mps-deliver success <name>) shape rather than the
// generic AVAILABLE/DONE phase pair.
func (b *Bridge) shimDeliverDefault(name string) {
	b.deliver(name, int(station.Gate1), func(err error) {
		if err == nil {
			b.assert("(mps-feedback mps-deliver success %s)", name)
		}
	})
}

func (b *Bridge) deliver(name string, gate int, onDone func(error)) {
	d, ok := b.fleet.Delivery(name)
	if !ok {
		b.log.Error("unknown or non-delivery station", "station", name)
		return
	}
	g, ok := station.ParseGate(gate)
	if !ok {
		b.log.Error("invalid gate", "station", name, "gate", gate)
		return
	}
	b.fleet.Issue(name, "deliver", func() error {
		return d.DeliverProduct(g)
	}, onDone)
}

func (b *Bridge) shimReset(name string) {
	s, ok := b.station(name)
	if !ok {
		return
	}
	if err := s.Reset(); err != nil {
		b.log.Error("reset failed", "station", name, "err", err)
	}
}

// shimResetBaseCounter handles mps-reset-base-counter(name): the engine
// calls it once the slide has been emptied out of band, so the mirrored
// counter restarts from zero.
func (b *Bridge) shimResetBaseCounter(name string) {
	r, ok := b.fleet.Ring(name)
	if !ok {
		b.log.Error("unknown or non-ring station", "station", name)
		return
	}
	r.ResetSlideCounter(0)
}
