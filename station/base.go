package station

import (
	"github.com/rcll/mps-refbox/mpsreg"
	"github.com/rcll/mps-refbox/transport"
)

// BaseColor is one of the three workpiece colors a Base station can
// dispense.
type BaseColor int

const (
	BaseRed BaseColor = iota
	BaseSilver
	BaseBlack
)

func ParseBaseColor(s string) (BaseColor, bool) {
	switch s {
	case "BASE_RED":
		return BaseRed, true
	case "BASE_SILVER":
		return BaseSilver, true
	case "BASE_BLACK":
		return BaseBlack, true
	default:
		return 0, false
	}
}

// BaseStation dispenses colored workpieces to the in-feed.
type BaseStation struct {
	*base
}

// NewBaseStation wraps tr as a Base station named name, forwarding
// status changes to cb.
func NewBaseStation(name Name, tr transport.Transport, cb Callbacks) *BaseStation {
	return &BaseStation{base: newBase(name, VarietyBase, tr, cb)}
}

// GetBase dispenses one workpiece of the given color to the in-feed.
func (s *BaseStation) GetBase(color BaseColor) error {
	return s.runCommand(actionGetBase, []mpsreg.Value{mpsreg.Uint16Value(uint16(color))})
}
