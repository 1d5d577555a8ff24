// Package game defines the core session domain and the two engines that
// drive it: incremental trigger resolution (Solve) and from-scratch state
// reconstruction (Reconstruct). Everything here is pure in-memory
// computation; persistence and fan-out live in the server package.
package game

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type SessionStatus string

const (
	SessionPending SessionStatus = "pending"
	SessionRunning SessionStatus = "running"
	SessionPaused  SessionStatus = "paused"
	SessionEnded   SessionStatus = "ended"
)

type DeviceStatus string

const (
	DeviceDisconnected DeviceStatus = "disconnected"
	DeviceConnected    DeviceStatus = "connected"
	DeviceReady        DeviceStatus = "ready"
)

type PuzzleKind string

const (
	// KindPhysical puzzles are solved entirely in the room and never touch
	// device state.
	KindPhysical PuzzleKind = "physical"
	// KindDeviceTrigger puzzles change device media and advance the session.
	KindDeviceTrigger PuzzleKind = "device_trigger"
)

// MediaEffect is one device-facing media assignment. Video plays once and is
// then removed by the client; image, text and audio stay up until replaced.
//
// Applying an effect is a full replacement of all four fields on the target
// device: a field the effect leaves empty clears whatever was showing.
// Authoring relies on this (an empty local effect blanks a device), so it
// must never be turned into a merge.
type MediaEffect struct {
	Video string `json:"video,omitempty"`
	Image string `json:"image,omitempty"`
	Text  string `json:"text,omitempty"`
	Audio string `json:"audio,omitempty"`
}

// RemoteTrigger assigns an effect to a device other than the one the puzzle
// belongs to.
type RemoteTrigger struct {
	Role   string      `json:"role"`
	Effect MediaEffect `json:"effect"`
}

// PuzzleDefinition is authored outside this core and read-only here.
// Seq is strictly increasing within a theme and totally orders the catalog.
// Code doubles as the solved-set key and the hint-lookup handle.
type PuzzleDefinition struct {
	ID       string          `json:"id"`
	ThemeID  string          `json:"themeId"`
	Seq      int             `json:"seq"`
	Kind     PuzzleKind      `json:"kind"`
	Code     string          `json:"code"`
	Solution string          `json:"solution"`
	Role     string          `json:"role,omitempty"`
	Local    *MediaEffect    `json:"local,omitempty"`
	Remote   []RemoteTrigger `json:"remote,omitempty"`
}

// Theme is a puzzle catalog plus the opening effect shown on the primary
// device when a session starts.
type Theme struct {
	ID          string             `json:"id"`
	Name        string             `json:"name"`
	PrimaryRole string             `json:"primaryRole"`
	Opening     MediaEffect        `json:"opening"`
	Puzzles     []PuzzleDefinition `json:"puzzles"`
	CreatedAt   time.Time          `json:"createdAt"`
}

// Device is the per-role record inside a session: connectivity bookkeeping
// plus whatever media the role is currently showing. Records are created
// lazily, on first claim or the first time an effect targets the role.
type Device struct {
	Status   DeviceStatus `json:"status"`
	LastSeen time.Time    `json:"lastSeen,omitzero"`
	Media    MediaEffect  `json:"media"`
}

// Session is one play-through of a theme. Pointer is the sequence number of
// the next unsolved device-trigger puzzle, or one past the catalog maximum
// when none remain.
type Session struct {
	ID        string               `json:"id"`
	ThemeID   string               `json:"themeId"`
	JoinCode  string               `json:"joinCode"`
	Status    SessionStatus        `json:"status"`
	Pointer   int                  `json:"pointer"`
	Solved    map[string]time.Time `json:"solved"`
	Devices   map[string]Device    `json:"devices"`
	Version   int64                `json:"version"`
	CreatedAt time.Time            `json:"createdAt"`
}

// FirstTrigger returns the sequence number of the first device-trigger puzzle
// in the catalog, or 1 when the catalog has none.
func FirstTrigger(catalog []PuzzleDefinition) int {
	if seq, ok := triggerAtOrAfter(catalog, 0); ok {
		return seq
	}
	return 1
}

// TriggerAt returns the device-trigger puzzle with the given sequence number.
func TriggerAt(catalog []PuzzleDefinition, seq int) (PuzzleDefinition, bool) {
	for _, p := range catalog {
		if p.Seq == seq && p.Kind == KindDeviceTrigger {
			return p, true
		}
	}
	return PuzzleDefinition{}, false
}

// nextTrigger returns the smallest device-trigger sequence strictly greater
// than after.
func nextTrigger(catalog []PuzzleDefinition, after int) (int, bool) {
	return triggerAtOrAfter(catalog, after+1)
}

func triggerAtOrAfter(catalog []PuzzleDefinition, seq int) (int, bool) {
	best, found := 0, false
	for _, p := range catalog {
		if p.Kind != KindDeviceTrigger || p.Seq < seq {
			continue
		}
		if !found || p.Seq < best {
			best, found = p.Seq, true
		}
	}
	return best, found
}

// NewReplayToken returns a fresh cache-busting token for video references.
func NewReplayToken() string {
	return uuid.NewString()
}

// WithReplayToken rewrites the replay-forcing fragment of a video reference.
// A client that already rendered the same video key treats the new fragment
// as a new video and restarts playback. Empty videos stay empty.
func WithReplayToken(video, token string) string {
	if video == "" {
		return ""
	}
	base, _, _ := strings.Cut(video, "#")
	return base + "#" + token
}
