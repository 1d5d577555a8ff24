package server

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cluecraft/backstage/internal/game"
)

var (
	ErrRoleClaimed      = errors.New("role is claimed by a live device")
	ErrSessionNotActive = errors.New("session is not running")
	ErrNoCurrentPuzzle  = errors.New("no trigger puzzle remains")
	ErrWrongDevice      = errors.New("puzzle belongs to another device role")
)

// errWrongAnswer aborts the solve mutation without writing; the handler
// turns it into a correct=false response rather than an error.
var errWrongAnswer = errors.New("answer does not match")

// Lifecycle composes the store, the trigger-resolution engine and the
// reconstruction engine into the operations the admin console and the
// devices call. Every state change goes through one versioned session write.
type Lifecycle struct {
	store    Store
	liveness game.Liveness
	now      func() time.Time
}

func NewLifecycle(store Store, liveness game.Liveness) *Lifecycle {
	return &Lifecycle{store: store, liveness: liveness, now: time.Now}
}

// Create makes a pending session for the theme with a fresh join code and
// the pointer parked on the theme's first trigger puzzle. Code generation
// retries when it collides with another active session's code.
func (l *Lifecycle) Create(ctx context.Context, themeID string) (game.Session, error) {
	theme, err := l.store.GetTheme(ctx, themeID)
	if err != nil {
		return game.Session{}, err
	}

	for range 5 {
		sess := game.Session{
			ID:        uuid.NewString(),
			ThemeID:   theme.ID,
			JoinCode:  newJoinCode(),
			Status:    game.SessionPending,
			Pointer:   game.FirstTrigger(theme.Puzzles),
			Solved:    map[string]time.Time{},
			Devices:   map[string]game.Device{},
			CreatedAt: l.now().UTC(),
		}
		err := l.store.CreateSession(ctx, sess)
		if errors.Is(err, ErrJoinCodeTaken) {
			continue
		}
		if err != nil {
			return game.Session{}, err
		}
		return sess, nil
	}
	return game.Session{}, ErrJoinCodeTaken
}

// Start flips the session to running and seeds the primary device with the
// theme's opening effect, its video carrying a fresh replay token so a
// client that already rendered that exact video is forced to replay it.
func (l *Lifecycle) Start(ctx context.Context, id string) (game.Session, error) {
	return l.mutateWithTheme(ctx, id, func(s *game.Session, theme game.Theme) error {
		opening := theme.Opening
		opening.Video = game.WithReplayToken(opening.Video, game.NewReplayToken())

		d, ok := s.Devices[theme.PrimaryRole]
		if !ok {
			d = game.Device{Status: game.DeviceDisconnected}
		}
		d.Media = opening
		if s.Devices == nil {
			s.Devices = map[string]game.Device{}
		}
		s.Devices[theme.PrimaryRole] = d
		s.Status = game.SessionRunning
		return nil
	})
}

// SetStatus is the pause/resume/end flip: status only, no effect state.
func (l *Lifecycle) SetStatus(ctx context.Context, id string, status game.SessionStatus) (game.Session, error) {
	return l.store.MutateSession(ctx, id, func(s *game.Session) error {
		s.Status = status
		return nil
	})
}

// SolveOutcome is what a solve attempt produced.
type SolveOutcome struct {
	Correct  bool
	Seq      int
	Session  game.Session
	Complete bool
}

// Solve matches the submitted answer against the puzzle at the session
// pointer and, on a match, applies its effects and advances. The match and
// the application happen inside the same versioned write, so a concurrent
// solve or jump can't slip between them.
func (l *Lifecycle) Solve(ctx context.Context, id, role, answer string) (SolveOutcome, error) {
	_, catalog, err := l.themeFor(ctx, id)
	if err != nil {
		return SolveOutcome{}, err
	}

	var out SolveOutcome
	sess, err := l.store.MutateSession(ctx, id, func(s *game.Session) error {
		if s.Status != game.SessionRunning {
			return ErrSessionNotActive
		}
		p, ok := game.TriggerAt(catalog, s.Pointer)
		if !ok {
			return ErrNoCurrentPuzzle
		}
		if role != p.Role {
			return ErrWrongDevice
		}
		if !answersMatch(answer, p.Solution) {
			out = SolveOutcome{Correct: false, Seq: p.Seq}
			return errWrongAnswer
		}
		out = SolveOutcome{Correct: true, Seq: p.Seq}
		return game.Solve(s, p, catalog, l.now().UTC())
	})
	if errors.Is(err, errWrongAnswer) {
		return out, nil
	}
	if err != nil {
		return SolveOutcome{}, err
	}
	out.Session = sess
	out.Complete = sess.Status == game.SessionEnded
	return out, nil
}

// Jump forces the session to an arbitrary point: the reconstruction engine
// rebuilds pointer, solved set and device media as if every trigger below
// target had been solved in order, and the caller-chosen status is written
// in the same update. Serves reset-to-start, rehearsal jumps and
// jump-to-ending alike.
func (l *Lifecycle) Jump(ctx context.Context, id string, target int, status game.SessionStatus) (game.Session, error) {
	return l.mutateWithTheme(ctx, id, func(s *game.Session, theme game.Theme) error {
		rb := game.Reconstruct(*s, theme, theme.Puzzles, target, l.now().UTC())
		s.Pointer = rb.Pointer
		s.Solved = rb.Solved
		s.Devices = rb.Devices
		s.Status = status
		return nil
	})
}

// Resync rewrites the replay token of every non-empty video so that all
// subscribing clients restart playback. This is the recovery path for a
// client that connected after missing a push update.
func (l *Lifecycle) Resync(ctx context.Context, id string) (game.Session, error) {
	return l.store.MutateSession(ctx, id, func(s *game.Session) error {
		for role, d := range s.Devices {
			if d.Media.Video == "" {
				continue
			}
			d.Media.Video = game.WithReplayToken(d.Media.Video, game.NewReplayToken())
			s.Devices[role] = d
		}
		return nil
	})
}

// Claim takes a role for a device, atomically: eligibility (absent, stale,
// or not connected/ready) is re-checked inside the versioned write, so two
// devices racing for the same role leave exactly one winner and the loser
// gets ErrRoleClaimed instead of silently evicting anyone.
func (l *Lifecycle) Claim(ctx context.Context, id, role string) (game.Session, error) {
	return l.store.MutateSession(ctx, id, func(s *game.Session) error {
		now := l.now().UTC()
		d, ok := s.Devices[role]
		if !l.liveness.Claimable(d, ok, now) {
			return ErrRoleClaimed
		}
		d.Status = game.DeviceConnected
		d.LastSeen = now
		if s.Devices == nil {
			s.Devices = map[string]game.Device{}
		}
		s.Devices[role] = d
		return nil
	})
}

// Ready marks a claimed device as done loading its media.
func (l *Lifecycle) Ready(ctx context.Context, id, role string) (game.Session, error) {
	return l.store.MutateSession(ctx, id, func(s *game.Session) error {
		d, ok := s.Devices[role]
		if !ok {
			return ErrDeviceNotFound
		}
		d.Status = game.DeviceReady
		d.LastSeen = l.now().UTC()
		s.Devices[role] = d
		return nil
	})
}

// Heartbeat records that the device is still there. Narrow single-field
// write; see Store.TouchDevice.
func (l *Lifecycle) Heartbeat(ctx context.Context, id, role string) error {
	return l.store.TouchDevice(ctx, id, role, l.now().UTC())
}

// Delete removes the session irreversibly. Media objects referenced by the
// theme are owned by the media store and not cleaned up here.
func (l *Lifecycle) Delete(ctx context.Context, id string) error {
	return l.store.DeleteSession(ctx, id)
}

func (l *Lifecycle) themeFor(ctx context.Context, sessionID string) (game.Theme, []game.PuzzleDefinition, error) {
	sess, err := l.store.GetSession(ctx, sessionID)
	if err != nil {
		return game.Theme{}, nil, err
	}
	theme, err := l.store.GetTheme(ctx, sess.ThemeID)
	if err != nil {
		return game.Theme{}, nil, fmt.Errorf("loading catalog: %w", err)
	}
	return theme, theme.Puzzles, nil
}

func (l *Lifecycle) mutateWithTheme(ctx context.Context, id string, fn func(*game.Session, game.Theme) error) (game.Session, error) {
	theme, _, err := l.themeFor(ctx, id)
	if err != nil {
		return game.Session{}, err
	}
	return l.store.MutateSession(ctx, id, func(s *game.Session) error {
		return fn(s, theme)
	})
}

func answersMatch(submitted, solution string) bool {
	return strings.EqualFold(strings.TrimSpace(submitted), strings.TrimSpace(solution))
}

// joinCodeAlphabet leaves out 0/O and 1/I, which players misread when
// shouting codes across a room.
const joinCodeAlphabet = "23456789ABCDEFGHJKLMNPQRSTUVWXYZ"

const joinCodeLength = 6

func newJoinCode() string {
	b := make([]byte, joinCodeLength)
	rand.Read(b)
	for i := range b {
		b[i] = joinCodeAlphabet[int(b[i])%len(joinCodeAlphabet)]
	}
	return string(b)
}
