// Package mockup is the in-process Transport backend used to take hardware
// out of the loop for CI and unit tests. Writes succeed synchronously and
// are recorded; subscribed callbacks are fired on demand by the test
// harness via Fire. Grounded on the teacher's lightweight fake-backend
// test doubles (e.g. les/client.go's minimal stub shape).
package mockup

import (
	"sync"

	"github.com/rcll/mps-refbox/mpsreg"
	"github.com/rcll/mps-refbox/transport"
)

// Event records one write issued against the mockup, in issue order.
type Event struct {
	Register mpsreg.Register
	Value    mpsreg.Value
}

// Transport is the mockup backend.
type Transport struct {
	mu        sync.Mutex
	connected bool
	registers map[mpsreg.Register]mpsreg.Value
	subs      map[mpsreg.Register][]transport.Callback
	events    []Event
}

// New creates a disconnected mockup transport.
func New() *Transport {
	return &Transport{
		registers: make(map[mpsreg.Register]mpsreg.Value),
		subs:      make(map[mpsreg.Register][]transport.Callback),
	}
}

func (t *Transport) Connect() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connected = true
	return nil
}

func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connected = false
	return nil
}

func (t *Transport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

func (t *Transport) Write(reg mpsreg.Register, val mpsreg.Value) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.connected {
		return transport.NewError("write", transport.Disconnected, nil)
	}
	t.registers[reg] = val
	t.events = append(t.events, Event{Register: reg, Value: val})
	return nil
}

func (t *Transport) Read(reg mpsreg.Register) (mpsreg.Value, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.connected {
		return mpsreg.Value{}, transport.NewError("read", transport.Disconnected, nil)
	}
	return t.registers[reg], nil
}

func (t *Transport) Subscribe(reg mpsreg.Register, cb transport.Callback) (transport.Unsubscribe, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.connected {
		return nil, transport.NewError("subscribe", transport.Disconnected, nil)
	}
	t.subs[reg] = append(t.subs[reg], cb)
	idx := len(t.subs[reg]) - 1
	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if idx < len(t.subs[reg]) {
			t.subs[reg][idx] = nil
		}
	}, nil
}

// Fire synthesizes a subscription callback for reg, as if the PLC had
// pushed val. Used exclusively by test harnesses.
func (t *Transport) Fire(reg mpsreg.Register, val mpsreg.Value) {
	t.mu.Lock()
	t.registers[reg] = val
	cbs := append([]transport.Callback(nil), t.subs[reg]...)
	t.mu.Unlock()
	for _, cb := range cbs {
		if cb != nil {
			cb(val)
		}
	}
}

// Events returns a snapshot of every write issued so far, in issue order.
func (t *Transport) Events() []Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Event(nil), t.events...)
}
