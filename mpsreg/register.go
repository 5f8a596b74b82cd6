// Package mpsreg defines the register vocabulary shared by every Transport
// backend and every Station: the enumeration of addressable slots and the
// typed values that flow through them. Grounded on the teacher's "common"
// package, which plays the same "shared vocabulary used by every other
// package" role (github.com/probeum/go-probeum/common).
package mpsreg

// Register identifies one addressable slot on a station's PLC.
type Register int

const (
	ACTION Register = iota
	DATA0
	DATA1
	DATA2
	DATA3
	STATUS_ENABLE
	STATUS_READY_IN
	STATUS_BUSY_IN
	BARCODE_IN
	SLIDECOUNT_IN
	LIGHT_RED
	LIGHT_YELLOW
	LIGHT_GREEN
	LIGHT_DURATION
	HEARTBEAT
)

var registerNames = map[Register]string{
	ACTION:           "ACTION",
	DATA0:            "DATA0",
	DATA1:            "DATA1",
	DATA2:            "DATA2",
	DATA3:            "DATA3",
	STATUS_ENABLE:    "STATUS_ENABLE",
	STATUS_READY_IN:  "STATUS_READY_IN",
	STATUS_BUSY_IN:   "STATUS_BUSY_IN",
	BARCODE_IN:       "BARCODE_IN",
	SLIDECOUNT_IN:    "SLIDECOUNT_IN",
	LIGHT_RED:        "LIGHT_RED",
	LIGHT_YELLOW:     "LIGHT_YELLOW",
	LIGHT_GREEN:      "LIGHT_GREEN",
	LIGHT_DURATION:   "LIGHT_DURATION",
	HEARTBEAT:        "HEARTBEAT",
}

func (r Register) String() string {
	if name, ok := registerNames[r]; ok {
		return name
	}
	return "UNKNOWN_REGISTER"
}

// DataSlot returns the n-th DATA register (0-indexed), used by callers that
// build up an argument list rather than addressing DATA0..DATA3 by name.
func DataSlot(n int) Register {
	return DATA0 + Register(n)
}

// Kind describes the wire type carried by a Register.
type Kind int

const (
	KindBool Kind = iota
	KindUint16
	KindInt32
)

// Value is a typed register value. Exactly one of the fields is
// meaningful, selected by Kind.
type Value struct {
	Kind   Kind
	Bool   bool
	Uint16 uint16
	Int32  int32
}

func BoolValue(b bool) Value     { return Value{Kind: KindBool, Bool: b} }
func Uint16Value(v uint16) Value { return Value{Kind: KindUint16, Uint16: v} }
func Int32Value(v int32) Value   { return Value{Kind: KindInt32, Int32: v} }

// AsBool returns the value as a bool, treating a nonzero numeric value as
// true when the register was not actually typed as bool on the wire.
func (v Value) AsBool() bool {
	switch v.Kind {
	case KindBool:
		return v.Bool
	case KindUint16:
		return v.Uint16 != 0
	case KindInt32:
		return v.Int32 != 0
	default:
		return false
	}
}
