package game

import "time"

// Liveness judges device aliveness from heartbeat age. Devices write their
// heartbeat on a fixed interval; every reader (dashboard, other devices, the
// claim flow) applies the same single window, resampling its own clock on a
// tick so the judgment stays current without a push event.
type Liveness struct {
	// StaleAfter is the heartbeat age beyond which a record is treated as
	// not actually connected, whatever its stored status says.
	StaleAfter time.Duration
}

// Stale reports whether the record's heartbeat is too old to trust. A record
// that has never heartbeated is stale.
func (l Liveness) Stale(d Device, now time.Time) bool {
	return d.LastSeen.IsZero() || now.Sub(d.LastSeen) > l.StaleAfter
}

// Alive reports whether the device is actually present: a fresh heartbeat
// and a stored status of connected or ready.
func (l Liveness) Alive(d Device, now time.Time) bool {
	if l.Stale(d, now) {
		return false
	}
	return d.Status == DeviceConnected || d.Status == DeviceReady
}

// Claimable reports whether a role is up for grabs: no record exists, the
// record is stale, or its stored status is neither connected nor ready.
// exists is false when the role has no record in the session.
func (l Liveness) Claimable(d Device, exists bool, now time.Time) bool {
	if !exists || l.Stale(d, now) {
		return true
	}
	return d.Status != DeviceConnected && d.Status != DeviceReady
}
