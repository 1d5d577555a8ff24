package server

import (
	"context"
	"errors"
	"time"

	"github.com/cluecraft/backstage/internal/game"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrThemeNotFound   = errors.New("theme not found")
	ErrDeviceNotFound  = errors.New("device not found")

	// ErrVersionConflict surfaces when a compare-and-swap session write
	// keeps losing against concurrent writers.
	ErrVersionConflict = errors.New("session modified concurrently")

	// ErrJoinCodeTaken surfaces when a generated join code collides with
	// another active session.
	ErrJoinCodeTaken = errors.New("join code already in use")
)

// Store is the session and catalog persistence contract. Session writes are
// versioned: MutateSession performs an atomic read-modify-write keyed by the
// session id and publishes the committed document to subscribers.
type Store interface {
	CreateSession(ctx context.Context, s game.Session) error
	GetSession(ctx context.Context, id string) (game.Session, error)
	SessionByJoinCode(ctx context.Context, code string) (game.Session, error)
	ListSessions(ctx context.Context) ([]game.Session, error)
	MutateSession(ctx context.Context, id string, fn func(*game.Session) error) (game.Session, error)
	DeleteSession(ctx context.Context, id string) error

	// TouchDevice writes only the device's heartbeat field, deliberately
	// narrow so it cannot clobber concurrent session changes. It neither
	// bumps the version nor publishes.
	TouchDevice(ctx context.Context, sessionID, role string, at time.Time) error

	PutTheme(ctx context.Context, t game.Theme) error
	GetTheme(ctx context.Context, id string) (game.Theme, error)
	ListThemes(ctx context.Context) ([]game.Theme, error)
	DeleteTheme(ctx context.Context, id string) error
}
