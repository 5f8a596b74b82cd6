package station

import (
	"github.com/rcll/mps-refbox/mpsreg"
	"github.com/rcll/mps-refbox/transport"
)

// Gate is one of the three delivery gates a Delivery station can route a
// finished product to.
type Gate int

const (
	Gate1 Gate = 1
	Gate2 Gate = 2
	Gate3 Gate = 3
)

func ParseGate(n int) (Gate, bool) {
	switch n {
	case 1, 2, 3:
		return Gate(n), true
	default:
		return 0, false
	}
}

// DeliveryStation accepts a finished product and routes it to one of
// three gates.
type DeliveryStation struct {
	*base
}

func NewDeliveryStation(name Name, tr transport.Transport, cb Callbacks) *DeliveryStation {
	return &DeliveryStation{base: newBase(name, VarietyDelivery, tr, cb)}
}

// DeliverProduct routes the product currently held by the station to the
// named gate.
func (s *DeliveryStation) DeliverProduct(gate Gate) error {
	if gate < Gate1 || gate > Gate3 {
		return ErrBadEnum
	}
	return s.runCommand(actionDeliverProduct, []mpsreg.Value{mpsreg.Uint16Value(uint16(gate))})
}
