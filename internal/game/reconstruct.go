package game

import (
	"sort"
	"time"
)

// Rebuild is the full replacement for the session fields Reconstruct derives.
// The engine never decides status; callers combine a Rebuild with whatever
// status the jump is for (reset to start, rehearsal jump, jump to ending).
type Rebuild struct {
	Pointer int
	Solved  map[string]time.Time
	Devices map[string]Device
}

// Reconstruct rebuilds the state the session would have if every
// device-trigger puzzle with sequence below target had been solved in order,
// starting from a seeded state:
//
//   - only roles already present in the current device map are seeded; their
//     connectivity bookkeeping (status, last heartbeat) is preserved
//   - the theme's primary role starts with the opening effect, every other
//     known role starts blank
//
// Replaying then mirrors Solve with one asymmetry the rest of the system
// depends on: local effects apply only to roles already known, while remote
// targets are created (disconnected) on demand.
//
// Two calls with the same inputs and an unchanged catalog produce identical
// pointer and device media. Solve timestamps are stamped at call time, not
// restored historically, a known divergence from the incremental path.
func Reconstruct(current Session, theme Theme, catalog []PuzzleDefinition, target int, now time.Time) Rebuild {
	devices := make(map[string]Device, len(current.Devices))
	for role, d := range current.Devices {
		if role == theme.PrimaryRole {
			d.Media = theme.Opening
		} else {
			d.Media = MediaEffect{}
		}
		devices[role] = d
	}

	ordered := make([]PuzzleDefinition, len(catalog))
	copy(ordered, catalog)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Seq < ordered[j].Seq })

	solved := make(map[string]time.Time)
	for _, p := range ordered {
		if p.Kind != KindDeviceTrigger || p.Seq >= target {
			continue
		}
		solved[p.Code] = now

		if d, ok := devices[p.Role]; ok {
			if p.Local != nil {
				d.Media = *p.Local
			} else {
				d.Media = MediaEffect{}
			}
			devices[p.Role] = d
		}
		for _, rt := range p.Remote {
			d, ok := devices[rt.Role]
			if !ok {
				d = Device{Status: DeviceDisconnected}
			}
			d.Media = rt.Effect
			devices[rt.Role] = d
		}
	}

	pointer := target
	if seq, ok := triggerAtOrAfter(catalog, target); ok {
		pointer = seq
	}

	return Rebuild{Pointer: pointer, Solved: solved, Devices: devices}
}
