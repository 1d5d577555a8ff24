package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cluecraft/backstage/internal/game"
)

// casAttempts bounds the MutateSession retry loop. Contention here is two
// devices solving near-simultaneously or an admin jumping mid-solve; more
// than a couple of retries means something is genuinely wrong.
const casAttempts = 5

// DocStore implements Store over per-model tables with JSONB data columns.
// Every committed session write is published to subscribers in commit order.
type DocStore struct {
	db  *sql.DB
	pub Publisher
}

func NewDocStore(db *sql.DB, pub Publisher) *DocStore {
	return &DocStore{db: db, pub: pub}
}

func (s *DocStore) CreateSession(ctx context.Context, sess game.Session) error {
	sess.Version = 1
	data, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, theme_id, join_code, status, version, data)
		VALUES (?, ?, ?, ?, ?, jsonb(?))
	`, sess.ID, sess.ThemeID, sess.JoinCode, string(sess.Status), sess.Version, string(data))
	if err != nil && strings.Contains(err.Error(), "UNIQUE") {
		return ErrJoinCodeTaken
	}
	if err != nil {
		return fmt.Errorf("writing session: %w", err)
	}
	s.publish(ctx, sess)
	return nil
}

func (s *DocStore) GetSession(ctx context.Context, id string) (game.Session, error) {
	return s.sessionWhere(ctx, "id = ?", id)
}

func (s *DocStore) SessionByJoinCode(ctx context.Context, code string) (game.Session, error) {
	return s.sessionWhere(ctx, "join_code = ? AND status != 'ended'", code)
}

func (s *DocStore) sessionWhere(ctx context.Context, where string, arg any) (game.Session, error) {
	var sess game.Session
	var data string
	var version int64
	err := s.db.QueryRowContext(ctx,
		`SELECT version, json(data) FROM sessions WHERE `+where, arg,
	).Scan(&version, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return sess, ErrSessionNotFound
	}
	if err != nil {
		return sess, err
	}
	if err := json.Unmarshal([]byte(data), &sess); err != nil {
		return sess, err
	}
	// The column is authoritative; the document copy can lag a narrow write.
	sess.Version = version
	return sess, nil
}

func (s *DocStore) ListSessions(ctx context.Context) ([]game.Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT version, json(data) FROM sessions ORDER BY json_extract(data, '$.createdAt') DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []game.Session
	for rows.Next() {
		var data string
		var version int64
		if err := rows.Scan(&version, &data); err != nil {
			return nil, err
		}
		var sess game.Session
		if err := json.Unmarshal([]byte(data), &sess); err != nil {
			return nil, err
		}
		sess.Version = version
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// MutateSession loads the session, applies fn, and writes the result back
// conditioned on the version it read, so two solvers (or a solver and a
// reconstructing admin) cannot silently drop each other's changes. Retries
// a bounded number of times on conflict; an error from fn aborts without
// writing.
func (s *DocStore) MutateSession(ctx context.Context, id string, fn func(*game.Session) error) (game.Session, error) {
	for range casAttempts {
		sess, err := s.GetSession(ctx, id)
		if err != nil {
			return game.Session{}, err
		}
		readVersion := sess.Version

		if err := fn(&sess); err != nil {
			return game.Session{}, err
		}

		sess.Version = readVersion + 1
		data, err := json.Marshal(sess)
		if err != nil {
			return game.Session{}, err
		}
		res, err := s.db.ExecContext(ctx, `
			UPDATE sessions
			SET join_code = ?, status = ?, version = ?, data = jsonb(?)
			WHERE id = ? AND version = ?
		`, sess.JoinCode, string(sess.Status), sess.Version, string(data), id, readVersion)
		if err != nil {
			return game.Session{}, fmt.Errorf("writing session: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 1 {
			s.publish(ctx, sess)
			return sess, nil
		}
		// Version moved underneath us; reload and retry.
	}
	return game.Session{}, ErrVersionConflict
}

func (s *DocStore) DeleteSession(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// TouchDevice updates only the device's lastSeen field inside the document,
// leaving version and every other field alone. The WHERE clause refuses the
// write when the role has no record, so an unclaimed role cannot be conjured
// into existence by a heartbeat.
func (s *DocStore) TouchDevice(ctx context.Context, sessionID, role string, at time.Time) error {
	path := `$.devices."` + role + `".lastSeen`
	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions
		SET data = jsonb_set(data, ?, ?)
		WHERE id = ? AND json_extract(data, ?) IS NOT NULL
	`, path, at.UTC().Format(time.RFC3339Nano), sessionID, `$.devices."`+role+`"`)
	if err != nil {
		return fmt.Errorf("writing heartbeat: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// Either the session or the device record is missing.
		if _, err := s.GetSession(ctx, sessionID); err != nil {
			return err
		}
		return ErrDeviceNotFound
	}
	return nil
}

func (s *DocStore) publish(ctx context.Context, sess game.Session) {
	if s.pub == nil {
		return
	}
	data, err := json.Marshal(sess)
	if err != nil {
		return
	}
	s.pub.PublishSession(ctx, sess.ID, data)
}

// Themes embed their puzzle catalog, authored elsewhere and read-only here.

func (s *DocStore) PutTheme(ctx context.Context, t game.Theme) error {
	data, err := json.Marshal(t)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO themes (id, data) VALUES (?, jsonb(?))
		ON CONFLICT(id) DO UPDATE SET data = excluded.data
	`, t.ID, string(data))
	if err != nil {
		return fmt.Errorf("writing theme: %w", err)
	}
	return nil
}

func (s *DocStore) GetTheme(ctx context.Context, id string) (game.Theme, error) {
	var t game.Theme
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT json(data) FROM themes WHERE id = ?`, id,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return t, ErrThemeNotFound
	}
	if err != nil {
		return t, err
	}
	if err := json.Unmarshal([]byte(data), &t); err != nil {
		return t, err
	}
	sort.Slice(t.Puzzles, func(i, j int) bool { return t.Puzzles[i].Seq < t.Puzzles[j].Seq })
	return t, nil
}

func (s *DocStore) ListThemes(ctx context.Context) ([]game.Theme, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT json(data) FROM themes ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var themes []game.Theme
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var t game.Theme
		if err := json.Unmarshal([]byte(data), &t); err != nil {
			return nil, err
		}
		themes = append(themes, t)
	}
	return themes, rows.Err()
}

func (s *DocStore) DeleteTheme(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM themes WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrThemeNotFound
	}
	return nil
}
