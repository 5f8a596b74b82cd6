package station

import (
	"github.com/rcll/mps-refbox/transport"
)

// CapOp distinguishes the two Cap-station operations exposed through the
// Engine Bridge's generic mps-cs-process shim.
type CapOp int

const (
	RetrieveCapOp CapOp = iota
	MountCapOp
)

func ParseCapOp(s string) (CapOp, bool) {
	switch s {
	case "RETRIEVE_CAP":
		return RetrieveCapOp, true
	case "MOUNT_CAP":
		return MountCapOp, true
	default:
		return 0, false
	}
}

// CapStation buffers caps retrieved from parked workpieces and mounts
// them onto new ones.
type CapStation struct {
	*base
}

func NewCapStation(name Name, tr transport.Transport, cb Callbacks) *CapStation {
	return &CapStation{base: newBase(name, VarietyCap, tr, cb)}
}

func (s *CapStation) RetrieveCap() error {
	return s.runCommand(actionRetrieveCap, nil)
}

func (s *CapStation) MountCap() error {
	return s.runCommand(actionMountCap, nil)
}

// BandOnUntilMid drives the conveyor forward until the workpiece reaches
// the middle stop, the first of the two intermediate positions used
// while banding a cap on.
func (s *CapStation) BandOnUntilMid() error {
	return s.ConveyorMove(Forward, Middle)
}

// BandOnUntilOut drives the conveyor forward from the middle stop out to
// the output sensor, completing the banding sequence.
func (s *CapStation) BandOnUntilOut() error {
	return s.ConveyorMove(Forward, Output)
}

// Process runs op (RETRIEVE_CAP or MOUNT_CAP) via the shared command
// pipeline, used by the mps-cs-process shim.
func (s *CapStation) Process(op CapOp) error {
	switch op {
	case RetrieveCapOp:
		return s.RetrieveCap()
	case MountCapOp:
		return s.MountCap()
	default:
		return ErrBadEnum
	}
}
