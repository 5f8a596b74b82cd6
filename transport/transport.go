// Package transport defines the Transport contract shared by the PLC,
// Simulation and Mockup backends, grounded on the teacher's pattern of a
// single narrow interface implemented by interchangeable backends (e.g.
// probeclient's client interface implemented by both the RPC and IPC
// transports).
package transport

import (
	"errors"
	"fmt"

	"github.com/rcll/mps-refbox/mpsreg"
)

// ErrorKind classifies a TransportError.
type ErrorKind int

const (
	Disconnected ErrorKind = iota
	Timeout
	ProtocolError
)

func (k ErrorKind) String() string {
	switch k {
	case Disconnected:
		return "disconnected"
	case Timeout:
		return "timeout"
	case ProtocolError:
		return "protocol_error"
	default:
		return "unknown"
	}
}

// Error is the error type returned by every Transport operation. All
// Transport failures are non-fatal at this layer: the owning Station
// decides whether to retry or surface a CommandError.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transport: %s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("transport: %s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

func NewError(op string, kind ErrorKind, err error) *Error {
	return &Error{Op: op, Kind: kind, Err: err}
}

// IsDisconnected reports whether err is a transport.Error with Kind ==
// Disconnected, following the teacher's errors.Is-compatible sentinel
// style in common/error.go.
func IsDisconnected(err error) bool {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind == Disconnected
	}
	return false
}

// Callback is invoked with the decoded value every time a subscribed
// register changes. Callbacks may run on a Transport-private goroutine and
// must return quickly — they hand the value off, they never block on it.
type Callback func(mpsreg.Value)

// Unsubscribe cancels a subscription previously registered with Subscribe.
type Unsubscribe func()

// Transport is the low-level register read/write/subscribe contract any
// backend (PLC, Simulation, Mockup) must implement.
type Transport interface {
	// Connect establishes the underlying connection. It is safe to call
	// again after a disconnect to attempt a reconnect.
	Connect() error

	// Close releases the underlying connection. Subsequent operations
	// fail with a Disconnected error.
	Close() error

	// Write pushes a value to a register. Writes from one caller are
	// observed by the backend in issue order.
	Write(reg mpsreg.Register, val mpsreg.Value) error

	// Read fetches the current value of a register.
	Read(reg mpsreg.Register) (mpsreg.Value, error)

	// Subscribe registers a callback fired whenever reg changes. The
	// returned Unsubscribe func removes the callback.
	Subscribe(reg mpsreg.Register, cb Callback) (Unsubscribe, error)

	// Connected reports whether the backend currently believes it has a
	// live connection.
	Connected() bool
}
