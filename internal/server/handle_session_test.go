package server

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/cluecraft/backstage/internal/config"
	"github.com/cluecraft/backstage/internal/game"
)

const testAdminKey = "test-key"

func testRouter(t *testing.T) (*chi.Mux, *DocStore) {
	t.Helper()
	store, broker := setupStore(t)

	hash, err := bcrypt.GenerateFromPassword([]byte(testAdminKey), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hashing admin key: %v", err)
	}
	cfg := &config.Config{
		AdminKeyHash:      string(hash),
		StaleAfter:        45 * time.Second,
		HeartbeatInterval: 15 * time.Second,
		LivenessTick:      5 * time.Second,
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := chi.NewRouter()
	addRoutes(r, logger, cfg, store, broker, nil, nil)
	return r, store
}

func do(t *testing.T, r http.Handler, method, path string, body any, admin bool) *httptest.ResponseRecorder {
	t.Helper()
	var buf io.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		buf = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, buf)
	if admin {
		req.Header.Set("Authorization", "Bearer "+testAdminKey)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	return v
}

func TestAdminAuthRequired(t *testing.T) {
	r, _ := testRouter(t)

	w := do(t, r, http.MethodGet, "/api/admin/sessions/", nil, false)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("no key: expected 401, got %d", w.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/admin/sessions/", nil)
	req.Header.Set("Authorization", "Bearer wrong-key")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong key: expected 401, got %d", w.Code)
	}
}

func TestSessionFlow(t *testing.T) {
	r, store := testRouter(t)
	theme := seedTheme(t, store)

	// Create.
	w := do(t, r, http.MethodPost, "/api/admin/sessions/", CreateSessionRequest{ThemeID: theme.ID}, true)
	if w.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	sess := decode[game.Session](t, w)
	if len(sess.JoinCode) != 6 {
		t.Errorf("join code = %q, want 6 characters", sess.JoinCode)
	}
	if sess.Status != game.SessionPending || sess.Pointer != 2 {
		t.Errorf("created session = status %q pointer %d, want pending/2", sess.Status, sess.Pointer)
	}

	// Lookup by join code.
	w = do(t, r, http.MethodGet, "/api/sessions/lookup?code="+sess.JoinCode, nil, false)
	if w.Code != http.StatusOK {
		t.Fatalf("lookup: expected 200, got %d", w.Code)
	}
	lookup := decode[LookupResponse](t, w)
	if lookup.SessionID != sess.ID {
		t.Errorf("lookup resolved to %q", lookup.SessionID)
	}

	w = do(t, r, http.MethodGet, "/api/sessions/lookup?code=ZZZZZZ", nil, false)
	if w.Code != http.StatusNotFound {
		t.Errorf("bad code: expected 404, got %d", w.Code)
	}

	// Start: status running, primary seeded with opening + replay token.
	w = do(t, r, http.MethodPost, "/api/admin/sessions/"+sess.ID+"/start", nil, true)
	if w.Code != http.StatusOK {
		t.Fatalf("start: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	started := decode[game.Session](t, w)
	if started.Status != game.SessionRunning {
		t.Errorf("status after start = %q", started.Status)
	}
	a := started.Devices["A"]
	if !strings.HasPrefix(a.Media.Video, "opening.mp4#") {
		t.Errorf("primary video = %q, want opening.mp4 with a replay token", a.Media.Video)
	}
	if a.Media.Text != "Welcome" {
		t.Errorf("primary text = %q, want opening text", a.Media.Text)
	}

	// Claim role A; a second claim while the first is live must lose.
	w = do(t, r, http.MethodPost, "/api/sessions/"+sess.ID+"/claim", ClaimRequest{Role: "A"}, false)
	if w.Code != http.StatusOK {
		t.Fatalf("claim: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	w = do(t, r, http.MethodPost, "/api/sessions/"+sess.ID+"/claim", ClaimRequest{Role: "A"}, false)
	if w.Code != http.StatusConflict {
		t.Errorf("second claim: expected 409, got %d", w.Code)
	}

	// Heartbeat for the claimed role.
	w = do(t, r, http.MethodPost, "/api/sessions/"+sess.ID+"/heartbeat", HeartbeatRequest{Role: "A"}, false)
	if w.Code != http.StatusNoContent {
		t.Errorf("heartbeat: expected 204, got %d: %s", w.Code, w.Body.String())
	}
	w = do(t, r, http.MethodPost, "/api/sessions/"+sess.ID+"/heartbeat", HeartbeatRequest{Role: "nope"}, false)
	if w.Code != http.StatusNotFound {
		t.Errorf("heartbeat unclaimed role: expected 404, got %d", w.Code)
	}

	// Wrong answer.
	w = do(t, r, http.MethodPost, "/api/sessions/"+sess.ID+"/solve", SolveRequest{Role: "A", Answer: "1900"}, false)
	if w.Code != http.StatusOK {
		t.Fatalf("wrong answer: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	ans := decode[SolveResponse](t, w)
	if ans.Correct {
		t.Error("wrong answer accepted")
	}
	if ans.Seq != 2 {
		t.Errorf("wrong answer seq = %d, want 2", ans.Seq)
	}

	// Correct answer for seq 2 (case-insensitive, trimmed).
	w = do(t, r, http.MethodPost, "/api/sessions/"+sess.ID+"/solve", SolveRequest{Role: "A", Answer: " 584 "}, false)
	ans = decode[SolveResponse](t, w)
	if !ans.Correct || ans.Pointer != 5 {
		t.Fatalf("solve seq 2 = %+v, want correct with pointer 5", ans)
	}

	// Wrong role for seq 5.
	w = do(t, r, http.MethodPost, "/api/sessions/"+sess.ID+"/solve", SolveRequest{Role: "B", Answer: "septem"}, false)
	if w.Code != http.StatusConflict {
		t.Errorf("wrong role: expected 409, got %d", w.Code)
	}

	// Final puzzle ends the session.
	w = do(t, r, http.MethodPost, "/api/sessions/"+sess.ID+"/solve", SolveRequest{Role: "A", Answer: "SEPTEM"}, false)
	ans = decode[SolveResponse](t, w)
	if !ans.Correct || !ans.SessionComplete || ans.Pointer != 6 {
		t.Fatalf("solve seq 5 = %+v, want complete with pointer 6", ans)
	}

	// State: ended, role A blanked by the empty local effect, role B
	// created with the remote image, aliveness computed per device.
	w = do(t, r, http.MethodGet, "/api/sessions/"+sess.ID, nil, false)
	state := decode[SessionResponse](t, w)
	if state.Status != game.SessionEnded {
		t.Errorf("status = %q, want ended", state.Status)
	}
	byRole := map[string]DeviceView{}
	for _, d := range state.Devices {
		byRole[d.Role] = d
	}
	if got := byRole["A"].Media; got != (game.MediaEffect{}) {
		t.Errorf("role A media = %+v, want blanked", got)
	}
	if !byRole["A"].Alive {
		t.Error("role A should be alive right after claiming")
	}
	if got := byRole["B"].Media; got != (game.MediaEffect{Image: "map.png"}) {
		t.Errorf("role B media = %+v", got)
	}
	if byRole["B"].Alive {
		t.Error("role B never claimed, must not be alive")
	}

	// Solving past the end conflicts.
	w = do(t, r, http.MethodPost, "/api/sessions/"+sess.ID+"/solve", SolveRequest{Role: "A", Answer: "584"}, false)
	if w.Code != http.StatusConflict {
		t.Errorf("solve after end: expected 409, got %d", w.Code)
	}
}

func TestJumpMatchesIncrementalOverHTTP(t *testing.T) {
	r, store := testRouter(t)
	theme := seedTheme(t, store)

	newStarted := func() game.Session {
		w := do(t, r, http.MethodPost, "/api/admin/sessions/", CreateSessionRequest{ThemeID: theme.ID}, true)
		sess := decode[game.Session](t, w)
		w = do(t, r, http.MethodPost, "/api/admin/sessions/"+sess.ID+"/start", nil, true)
		if w.Code != http.StatusOK {
			t.Fatalf("start: %d", w.Code)
		}
		return sess
	}

	// Session one: solve everything incrementally.
	one := newStarted()
	for _, answer := range []string{"584", "septem"} {
		w := do(t, r, http.MethodPost, "/api/sessions/"+one.ID+"/solve", SolveRequest{Role: "A", Answer: answer}, false)
		if ans := decode[SolveResponse](t, w); !ans.Correct {
			t.Fatalf("answer %q rejected", answer)
		}
	}

	// Session two: jump straight past the last trigger.
	two := newStarted()
	w := do(t, r, http.MethodPost, "/api/admin/sessions/"+two.ID+"/jump", JumpRequest{Target: 6, Status: "ended"}, true)
	if w.Code != http.StatusOK {
		t.Fatalf("jump: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	g1 := decode[SessionResponse](t, do(t, r, http.MethodGet, "/api/sessions/"+one.ID, nil, false))
	g2 := decode[SessionResponse](t, do(t, r, http.MethodGet, "/api/sessions/"+two.ID, nil, false))

	if g1.Pointer != g2.Pointer {
		t.Errorf("pointers differ: %d vs %d", g1.Pointer, g2.Pointer)
	}
	if g1.Status != g2.Status {
		t.Errorf("statuses differ: %q vs %q", g1.Status, g2.Status)
	}
	media := func(sr SessionResponse) map[string]game.MediaEffect {
		m := map[string]game.MediaEffect{}
		for _, d := range sr.Devices {
			m[d.Role] = d.Media
		}
		return m
	}
	m1, m2 := media(g1), media(g2)
	if len(m1) != len(m2) {
		t.Fatalf("device sets differ: %v vs %v", m1, m2)
	}
	for role, want := range m1 {
		if got := m2[role]; got != want {
			t.Errorf("role %s media differs: incremental %+v, jump %+v", role, want, got)
		}
	}
	if len(g1.Solved) != len(g2.Solved) {
		t.Errorf("solved sets differ: %v vs %v", g1.Solved, g2.Solved)
	}
}

func TestJumpResetToStart(t *testing.T) {
	r, store := testRouter(t)
	theme := seedTheme(t, store)

	w := do(t, r, http.MethodPost, "/api/admin/sessions/", CreateSessionRequest{ThemeID: theme.ID}, true)
	sess := decode[game.Session](t, w)
	do(t, r, http.MethodPost, "/api/admin/sessions/"+sess.ID+"/start", nil, true)
	do(t, r, http.MethodPost, "/api/sessions/"+sess.ID+"/solve", SolveRequest{Role: "A", Answer: "584"}, false)

	// Reset: rebuild to the first trigger as pending.
	w = do(t, r, http.MethodPost, "/api/admin/sessions/"+sess.ID+"/jump", JumpRequest{Target: 0, Status: "pending"}, true)
	if w.Code != http.StatusOK {
		t.Fatalf("reset: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	reset := decode[game.Session](t, w)
	if reset.Pointer != 2 || reset.Status != game.SessionPending {
		t.Errorf("reset = pointer %d status %q, want 2/pending", reset.Pointer, reset.Status)
	}
	if len(reset.Solved) != 0 {
		t.Errorf("solved set not cleared: %v", reset.Solved)
	}
	if got := reset.Devices["A"].Media; got != theme.Opening {
		t.Errorf("primary media = %+v, want opening effect re-seeded", got)
	}
}

func TestResyncRewritesReplayTokens(t *testing.T) {
	r, store := testRouter(t)
	theme := seedTheme(t, store)

	w := do(t, r, http.MethodPost, "/api/admin/sessions/", CreateSessionRequest{ThemeID: theme.ID}, true)
	sess := decode[game.Session](t, w)
	w = do(t, r, http.MethodPost, "/api/admin/sessions/"+sess.ID+"/start", nil, true)
	started := decode[game.Session](t, w)
	before := started.Devices["A"].Media.Video

	w = do(t, r, http.MethodPost, "/api/admin/sessions/"+sess.ID+"/resync", nil, true)
	if w.Code != http.StatusOK {
		t.Fatalf("resync: expected 200, got %d", w.Code)
	}
	resynced := decode[game.Session](t, w)
	after := resynced.Devices["A"].Media.Video

	if !strings.HasPrefix(after, "opening.mp4#") {
		t.Fatalf("video after resync = %q", after)
	}
	if after == before {
		t.Error("resync did not rewrite the replay token")
	}
	// Persistent fields untouched.
	if resynced.Devices["A"].Media.Text != "Welcome" {
		t.Errorf("resync touched persistent media: %+v", resynced.Devices["A"].Media)
	}
}

func TestPauseResumeEnd(t *testing.T) {
	r, store := testRouter(t)
	theme := seedTheme(t, store)

	w := do(t, r, http.MethodPost, "/api/admin/sessions/", CreateSessionRequest{ThemeID: theme.ID}, true)
	sess := decode[game.Session](t, w)
	do(t, r, http.MethodPost, "/api/admin/sessions/"+sess.ID+"/start", nil, true)

	w = do(t, r, http.MethodPost, "/api/admin/sessions/"+sess.ID+"/pause", nil, true)
	if got := decode[game.Session](t, w); got.Status != game.SessionPaused {
		t.Errorf("status = %q, want paused", got.Status)
	}

	// Solving while paused conflicts; media state is untouched by flips.
	w = do(t, r, http.MethodPost, "/api/sessions/"+sess.ID+"/solve", SolveRequest{Role: "A", Answer: "584"}, false)
	if w.Code != http.StatusConflict {
		t.Errorf("solve while paused: expected 409, got %d", w.Code)
	}

	w = do(t, r, http.MethodPost, "/api/admin/sessions/"+sess.ID+"/resume", nil, true)
	resumed := decode[game.Session](t, w)
	if resumed.Status != game.SessionRunning {
		t.Errorf("status = %q, want running", resumed.Status)
	}
	if !strings.HasPrefix(resumed.Devices["A"].Media.Video, "opening.mp4#") {
		t.Errorf("pause/resume touched media: %+v", resumed.Devices["A"].Media)
	}

	w = do(t, r, http.MethodPost, "/api/admin/sessions/"+sess.ID+"/end", nil, true)
	if got := decode[game.Session](t, w); got.Status != game.SessionEnded {
		t.Errorf("status = %q, want ended", got.Status)
	}

	// Delete is irreversible.
	w = do(t, r, http.MethodDelete, "/api/admin/sessions/"+sess.ID, nil, true)
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete: expected 204, got %d", w.Code)
	}
	w = do(t, r, http.MethodGet, "/api/sessions/"+sess.ID, nil, false)
	if w.Code != http.StatusNotFound {
		t.Errorf("get after delete: expected 404, got %d", w.Code)
	}
}

func TestThemeCRUD(t *testing.T) {
	r, _ := testRouter(t)

	theme := game.Theme{
		Name:        "Submarine",
		PrimaryRole: "periscope",
		Opening:     game.MediaEffect{Video: "dive.mp4"},
		Puzzles: []game.PuzzleDefinition{
			{Seq: 1, Kind: game.KindDeviceTrigger, Code: "sonar", Solution: "ping", Role: "periscope"},
		},
	}
	w := do(t, r, http.MethodPost, "/api/admin/themes/", theme, true)
	if w.Code != http.StatusCreated {
		t.Fatalf("create theme: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	created := decode[game.Theme](t, w)
	if created.ID == "" || created.Puzzles[0].ID == "" {
		t.Errorf("ids not assigned: %+v", created)
	}
	if created.Puzzles[0].ThemeID != created.ID {
		t.Errorf("puzzle themeId = %q, want %q", created.Puzzles[0].ThemeID, created.ID)
	}

	w = do(t, r, http.MethodGet, "/api/admin/themes/", nil, true)
	if list := decode[[]ThemeSummary](t, w); len(list) != 1 || list[0].PuzzleCount != 1 {
		t.Errorf("list = %+v", list)
	}

	created.Name = "Submarine II"
	w = do(t, r, http.MethodPut, "/api/admin/themes/"+created.ID, created, true)
	if got := decode[game.Theme](t, w); got.Name != "Submarine II" {
		t.Errorf("update lost name: %+v", got)
	}

	w = do(t, r, http.MethodDelete, "/api/admin/themes/"+created.ID, nil, true)
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete theme: expected 204, got %d", w.Code)
	}
	w = do(t, r, http.MethodGet, "/api/admin/themes/"+created.ID, nil, true)
	if w.Code != http.StatusNotFound {
		t.Errorf("get deleted theme: expected 404, got %d", w.Code)
	}
}
