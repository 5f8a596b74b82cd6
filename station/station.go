// Package station implements the per-machine command set and state
// machine for one Modular Production Station. A Station owns exactly one
// Transport and exposes a small set of operations common to every
// variety, plus variety-specific operations defined in base.go, cap.go,
// ring.go and delivery.go.
package station

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rcll/mps-refbox/mpslog"
	"github.com/rcll/mps-refbox/mpsreg"
	"github.com/rcll/mps-refbox/transport"
)

// Variety tags which kind of station a Name/Station refers to.
type Variety int

const (
	VarietyUnknown Variety = iota
	VarietyBase
	VarietyCap
	VarietyRing
	VarietyDelivery
)

func (v Variety) String() string {
	switch v {
	case VarietyBase:
		return "BS"
	case VarietyCap:
		return "CS"
	case VarietyRing:
		return "RS"
	case VarietyDelivery:
		return "DS"
	default:
		return "??"
	}
}

// Name is a station's stable short identifier, e.g. "C-BS" or "M-RS1".
// The first character is the team affiliation; characters at index 2-3
// are the variety code. This name-prefix scheme is retained from the
// original rulebook convention even though it makes variety a property
// of spelling rather than of configuration — callers that need a
// guaranteed variety should prefer the typed Fleet accessors over
// re-deriving it from the Name.
type Name string

// Variety derives the station variety from the name's character
// positions 2-3. Returns VarietyUnknown if the name is too short or the
// code isn't recognized.
func (n Name) Variety() Variety {
	s := string(n)
	if len(s) < 4 {
		return VarietyUnknown
	}
	switch s[2:4] {
	case "BS":
		return VarietyBase
	case "CS":
		return VarietyCap
	case "RS":
		return VarietyRing
	case "DS":
		return VarietyDelivery
	default:
		return VarietyUnknown
	}
}

// Team returns the name's leading team-affiliation character.
func (n Name) Team() byte {
	if len(n) == 0 {
		return 0
	}
	return n[0]
}

// LightColor is one of the three signal-light colors.
type LightColor int

const (
	Red LightColor = iota
	Yellow
	Green
)

func ParseLightColor(s string) (LightColor, bool) {
	switch s {
	case "RED":
		return Red, true
	case "YELLOW":
		return Yellow, true
	case "GREEN":
		return Green, true
	default:
		return 0, false
	}
}

// LightState is one of the three signal states a color may be set to.
type LightState int

const (
	Off LightState = iota
	On
	Blink
)

func ParseLightState(s string) (LightState, bool) {
	switch s {
	case "OFF":
		return Off, true
	case "ON":
		return On, true
	case "BLINK":
		return Blink, true
	default:
		return 0, false
	}
}

// Direction is a conveyor direction.
type Direction int

const (
	Forward Direction = iota
	Backward
)

func ParseDirection(s string) (Direction, bool) {
	switch s {
	case "FORWARD":
		return Forward, true
	case "BACKWARD":
		return Backward, true
	default:
		return 0, false
	}
}

// Sensor is a conveyor target sensor.
type Sensor int

const (
	Input Sensor = iota
	Middle
	Output
)

func ParseSensor(s string) (Sensor, bool) {
	switch s {
	case "INPUT":
		return Input, true
	case "MIDDLE":
		return Middle, true
	case "OUTPUT":
		return Output, true
	default:
		return 0, false
	}
}

// State is a command's position in the per-station state machine.
type State int

const (
	Idle State = iota
	Armed
	Running
	Done
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "IDLE"
	case Armed:
		return "ARMED"
	case Running:
		return "RUNNING"
	case Done:
		return "DONE"
	case Failed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Snapshot is the full observable status of a station at one instant.
type Snapshot struct {
	ReadyIn         bool
	BusyIn          bool
	BarcodeIn       int32
	SlideCounter    uint16
	HasSlideCounter bool
}

// Sentinel errors making up the StationError/CommandError taxonomy,
// wrapped via fmt.Errorf("%w: ...") at the call site so callers can
// still errors.Is against the sentinel.
var (
	ErrUnknownStation  = errors.New("station: unknown station")
	ErrVarietyMismatch = errors.New("station: variety mismatch")
	ErrBadEnum         = errors.New("station: invalid enum value")
	ErrBusy            = errors.New("station: command already in flight")
	ErrTimeout         = errors.New("station: command timed out")
	ErrDisconnected    = errors.New("station: transport disconnected")
)

const DefaultCommandTimeout = 30 * time.Second

// CommonOps is the operation set every station variety implements,
// regardless of what variety-specific commands it adds.
type CommonOps interface {
	Name() Name
	Variety() Variety
	Connect() error
	Connected() bool
	Reset() error
	ResetLight() error
	SetLight(color LightColor, state LightState, duration time.Duration) error
	ConveyorMove(dir Direction, sensor Sensor) error
	Snapshot() Snapshot
	State() State
}

// Callbacks is the set of forwarding hooks a Station invokes when its
// Transport reports a change on one of the four status registers. The
// Bridge supplies these; the Station never interprets them.
type Callbacks struct {
	ReadyIn      func(name Name, val bool)
	BusyIn       func(name Name, val bool)
	BarcodeIn    func(name Name, val int32)
	SlideCountIn func(name Name, val uint16)
}

// base holds everything shared by every station variety: the Transport,
// the command state machine, and the status snapshot built up from
// subscription callbacks. Variety-specific types embed *base and add
// their own operations on top.
type base struct {
	name    Name
	variety Variety
	tr      transport.Transport
	cb      Callbacks
	timeout time.Duration
	log     *mpslog.Logger

	snapMu sync.RWMutex
	snap   Snapshot

	runMu   sync.Mutex
	state   State
	cancel  chan struct{}
	running bool

	watchMu      sync.Mutex
	busyWatchers []busyWatcher

	lightMu sync.Mutex
}

// busyWatcher is a one-shot BUSY_IN edge observer registered by
// runCommand for the duration of a single command.
type busyWatcher func(bool)

func newBase(name Name, variety Variety, tr transport.Transport, cb Callbacks) *base {
	b := &base{
		name:    name,
		variety: variety,
		tr:      tr,
		cb:      cb,
		timeout: DefaultCommandTimeout,
		log:     mpslog.Root.With(string(name)),
		state:   Idle,
	}
	return b
}

func (b *base) Name() Name       { return b.name }
func (b *base) Variety() Variety { return b.variety }

// SetTimeout overrides this station's per-command timeout. Per-deployment
// overrides are wired through mpsconfig; tests use it to make a timeout
// path exercisable without waiting out DefaultCommandTimeout.
func (b *base) SetTimeout(d time.Duration) {
	b.runMu.Lock()
	defer b.runMu.Unlock()
	b.timeout = d
}

func (b *base) Connect() error {
	if err := b.tr.Connect(); err != nil {
		b.log.Error("connect failed", "station", b.name, "err", err)
		return fmt.Errorf("%w: %v", ErrDisconnected, err)
	}
	b.subscribe()
	return nil
}

func (b *base) Connected() bool {
	return b.tr.Connected()
}

// subscribe wires the four status registers to the shared snapshot and
// forwards each decoded change to the Bridge-supplied callback slot. Each
// handler runs on whatever goroutine the Transport delivers on: it updates
// the snapshot and calls the callback inline, with no queue in between,
// so a callback that blocks (the Bridge's callbacks take the engine lock) holds up
// that Transport's delivery until it returns.
func (b *base) subscribe() {
	b.tr.Subscribe(mpsreg.STATUS_READY_IN, func(v mpsreg.Value) {
		val := v.AsBool()
		b.snapMu.Lock()
		b.snap.ReadyIn = val
		b.snapMu.Unlock()
		if b.cb.ReadyIn != nil {
			b.cb.ReadyIn(b.name, val)
		}
	})
	b.tr.Subscribe(mpsreg.STATUS_BUSY_IN, func(v mpsreg.Value) {
		val := v.AsBool()
		b.snapMu.Lock()
		b.snap.BusyIn = val
		b.snapMu.Unlock()
		if b.cb.BusyIn != nil {
			b.cb.BusyIn(b.name, val)
		}
		b.watchMu.Lock()
		watchers := append([]busyWatcher(nil), b.busyWatchers...)
		b.watchMu.Unlock()
		for _, w := range watchers {
			if w != nil {
				w(val)
			}
		}
	})
	b.tr.Subscribe(mpsreg.BARCODE_IN, func(v mpsreg.Value) {
		val := v.Int32
		b.snapMu.Lock()
		b.snap.BarcodeIn = val
		b.snapMu.Unlock()
		if b.cb.BarcodeIn != nil {
			b.cb.BarcodeIn(b.name, val)
		}
	})
	if b.variety == VarietyRing {
		b.tr.Subscribe(mpsreg.SLIDECOUNT_IN, func(v mpsreg.Value) {
			val := v.Uint16
			b.snapMu.Lock()
			b.snap.SlideCounter = val
			b.snap.HasSlideCounter = true
			b.snapMu.Unlock()
			if b.cb.SlideCountIn != nil {
				b.cb.SlideCountIn(b.name, val)
			}
		})
	}
}

func (b *base) Snapshot() Snapshot {
	b.snapMu.RLock()
	defer b.snapMu.RUnlock()
	return b.snap
}

func (b *base) State() State {
	b.runMu.Lock()
	defer b.runMu.Unlock()
	return b.state
}

// Reset force-restores IDLE from any state. An outstanding command is
// canceled: its wait ends and it returns ErrBusy without reaching DONE,
// and the IDLE state set here stands. Callers are required to make Reset
// idempotent and side-effect complete on the wire, matching the
// at-most-one-command-per-station invariant enforced one layer up by
// Fleet.
func (b *base) Reset() error {
	b.runMu.Lock()
	if b.running && b.cancel != nil {
		close(b.cancel)
		b.cancel = nil
	}
	b.running = false
	b.state = Idle
	b.runMu.Unlock()
	return b.tr.Write(mpsreg.ACTION, mpsreg.Uint16Value(actionReset))
}

// ResetLight forces all three colors to OFF. The three writes go out
// back to back under the station's light lock, so no SetLight on this
// station can interleave with them.
func (b *base) ResetLight() error {
	b.lightMu.Lock()
	defer b.lightMu.Unlock()
	if err := b.tr.Write(mpsreg.LIGHT_RED, mpsreg.Uint16Value(uint16(Off))); err != nil {
		return err
	}
	if err := b.tr.Write(mpsreg.LIGHT_YELLOW, mpsreg.Uint16Value(uint16(Off))); err != nil {
		return err
	}
	return b.tr.Write(mpsreg.LIGHT_GREEN, mpsreg.Uint16Value(uint16(Off)))
}

// SetLight sets one color to the given state, replacing that color's
// previous setting. The state is written as its numeric value so the PLC
// can distinguish ON from BLINK; the blink clock itself lives on the
// station controller. duration, when nonzero, bounds how long the
// setting holds before the controller reverts the color to OFF.
func (b *base) SetLight(color LightColor, state LightState, duration time.Duration) error {
	reg, err := lightRegister(color)
	if err != nil {
		return err
	}
	b.lightMu.Lock()
	defer b.lightMu.Unlock()
	if err := b.tr.Write(reg, mpsreg.Uint16Value(uint16(state))); err != nil {
		return err
	}
	if duration > 0 {
		return b.tr.Write(mpsreg.LIGHT_DURATION, mpsreg.Uint16Value(uint16(duration/time.Millisecond)))
	}
	return nil
}

func lightRegister(color LightColor) (mpsreg.Register, error) {
	switch color {
	case Red:
		return mpsreg.LIGHT_RED, nil
	case Yellow:
		return mpsreg.LIGHT_YELLOW, nil
	case Green:
		return mpsreg.LIGHT_GREEN, nil
	default:
		return 0, ErrBadEnum
	}
}

func (b *base) ConveyorMove(dir Direction, sensor Sensor) error {
	op := actionConveyorForward
	if dir == Backward {
		op = actionConveyorBackward
	}
	return b.runCommand(op, []mpsreg.Value{mpsreg.Uint16Value(uint16(sensor))})
}

// Action opcodes written to the ACTION register. The exact numeric
// values are a deployment detail (mirrored by the PLC/Simulation
// backends' own register maps); what matters here is that each command
// maps to a distinct, stable opcode.
const (
	actionReset = iota
	actionConveyorForward
	actionConveyorBackward
	actionGetBase
	actionRetrieveCap
	actionMountCap
	actionMountRing
	actionDeliverProduct
)

// runCommand drives one full IDLE→ARMED→RUNNING→DONE|FAILED cycle: it
// writes ACTION/DATA, pulses STATUS_ENABLE, then blocks on the BUSY_IN
// rising and falling edges observed via the subscription callbacks,
// bounded by the command timeout and a cancellation channel closed by
// Reset. Only one command may run at a time per Station; Fleet enforces
// the one-in-flight-per-station rule one layer up, so runCommand itself
// only needs to guard against local re-entrancy.
func (b *base) runCommand(action int, data []mpsreg.Value) error {
	b.runMu.Lock()
	if b.running {
		b.runMu.Unlock()
		return ErrBusy
	}
	b.running = true
	b.state = Armed
	cancel := make(chan struct{})
	b.cancel = cancel
	b.runMu.Unlock()

	defer func() {
		b.watchMu.Lock()
		b.busyWatchers = b.busyWatchers[:0]
		b.watchMu.Unlock()
		b.runMu.Lock()
		b.running = false
		b.runMu.Unlock()
	}()

	if err := b.tr.Write(mpsreg.ACTION, mpsreg.Uint16Value(uint16(action))); err != nil {
		b.fail()
		return err
	}
	for i, v := range data {
		if err := b.tr.Write(mpsreg.DataSlot(i), v); err != nil {
			b.fail()
			return err
		}
	}
	if err := b.tr.Write(mpsreg.STATUS_ENABLE, mpsreg.BoolValue(true)); err != nil {
		b.fail()
		return err
	}

	// Both watchers are registered before waiting, so a low that follows
	// the high immediately is still seen as the falling edge.
	rising := b.waitEdge(true, nil)
	falling := b.waitEdge(false, rising)
	if err := b.waitFor(rising, cancel); err != nil {
		if err != ErrBusy {
			b.fail()
		}
		return err
	}
	b.runMu.Lock()
	b.state = Running
	b.runMu.Unlock()

	if err := b.waitFor(falling, cancel); err != nil {
		if err != ErrBusy {
			b.fail()
		}
		return err
	}

	b.tr.Write(mpsreg.STATUS_ENABLE, mpsreg.BoolValue(false))
	b.runMu.Lock()
	b.state = Done
	b.runMu.Unlock()
	return nil
}

func (b *base) fail() {
	b.runMu.Lock()
	b.state = Failed
	b.runMu.Unlock()
}

func (b *base) waitFor(ch <-chan struct{}, cancel <-chan struct{}) error {
	timer := time.NewTimer(b.timeout)
	defer timer.Stop()
	select {
	case <-ch:
		return nil
	case <-cancel:
		return ErrBusy
	case <-timer.C:
		return ErrTimeout
	}
}

// waitEdge registers a one-shot BUSY_IN edge watcher and returns a
// channel closed the first time that edge is observed. If after is
// non-nil, a value only counts once after has been closed. Edge detection
// runs entirely off the delivered subscription callback, never by
// polling the snapshot. A fired watcher nils itself out, and runCommand
// clears the whole slice when the command ends, so a station that runs
// many commands over its lifetime never accumulates stale watchers.
func (b *base) waitEdge(want bool, after <-chan struct{}) <-chan struct{} {
	ch := make(chan struct{})
	var once sync.Once

	b.watchMu.Lock()
	idx := len(b.busyWatchers)
	b.busyWatchers = append(b.busyWatchers, func(val bool) {
		if val != want {
			return
		}
		if after != nil {
			select {
			case <-after:
			default:
				return
			}
		}
		once.Do(func() { close(ch) })
		b.watchMu.Lock()
		if idx < len(b.busyWatchers) {
			b.busyWatchers[idx] = nil
		}
		b.watchMu.Unlock()
	})
	b.watchMu.Unlock()
	return ch
}
