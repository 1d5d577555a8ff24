package game

import (
	"errors"
	"time"
)

// ErrNotTrigger is returned when a physical-only puzzle reaches Solve.
// Physical puzzles never touch device state and never advance the pointer.
var ErrNotTrigger = errors.New("puzzle is not a device trigger")

// Solve applies one newly solved device-trigger puzzle to the session in
// place. Solution matching happens upstream; by the time Solve runs the
// answer has already been accepted.
//
// Effects are full replacements: the solving device and every remote target
// get all four media fields set from the effect, clearing anything the
// effect omits. Target records that don't exist yet are created
// disconnected. Re-solving an already solved puzzle only refreshes its
// timestamp.
//
// The caller is responsible for writing the mutated session back as one
// combined update; Solve itself never touches storage.
func Solve(s *Session, p PuzzleDefinition, catalog []PuzzleDefinition, now time.Time) error {
	if p.Kind != KindDeviceTrigger {
		return ErrNotTrigger
	}

	if s.Solved == nil {
		s.Solved = make(map[string]time.Time)
	}
	s.Solved[p.Code] = now

	if s.Devices == nil {
		s.Devices = make(map[string]Device)
	}
	// An absent local effect is an empty one: the solving device is still
	// full-replaced, blanking whatever it was showing. Authoring leans on
	// this to clear a display when a puzzle is solved.
	local := MediaEffect{}
	if p.Local != nil {
		local = *p.Local
	}
	d, ok := s.Devices[p.Role]
	if !ok {
		d = Device{Status: DeviceDisconnected}
	}
	d.Media = local
	s.Devices[p.Role] = d
	for _, rt := range p.Remote {
		d, ok := s.Devices[rt.Role]
		if !ok {
			d = Device{Status: DeviceDisconnected}
		}
		d.Media = rt.Effect
		s.Devices[rt.Role] = d
	}

	if next, ok := nextTrigger(catalog, p.Seq); ok {
		s.Pointer = next
	} else {
		s.Pointer = p.Seq + 1
		s.Status = SessionEnded
	}
	return nil
}
