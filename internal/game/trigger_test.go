package game

import (
	"testing"
	"time"
)

// twoTriggerCatalog builds the catalog used throughout: seq 2 puts a video
// on role A, seq 5 has no local effect (so it blanks role A) and puts an
// image on role B. A physical puzzle sits in between and must be ignored.
func twoTriggerCatalog() []PuzzleDefinition {
	return []PuzzleDefinition{
		{ID: "p1", Seq: 2, Kind: KindDeviceTrigger, Code: "brass-key", Solution: "584",
			Role: "A", Local: &MediaEffect{Video: "intro.mp4"}},
		{ID: "p2", Seq: 3, Kind: KindPhysical, Code: "padlock", Solution: "tiger"},
		{ID: "p3", Seq: 5, Kind: KindDeviceTrigger, Code: "mirror", Solution: "septem",
			Role: "A", Remote: []RemoteTrigger{{Role: "B", Effect: MediaEffect{Image: "map.png"}}}},
	}
}

func testTheme() Theme {
	return Theme{
		ID:          "t1",
		PrimaryRole: "A",
		Opening:     MediaEffect{Video: "opening.mp4", Text: "Welcome"},
		Puzzles:     twoTriggerCatalog(),
	}
}

func startedSession(theme Theme) *Session {
	return &Session{
		ID:      "s1",
		ThemeID: theme.ID,
		Status:  SessionRunning,
		Pointer: FirstTrigger(theme.Puzzles),
		Solved:  map[string]time.Time{},
		Devices: map[string]Device{
			"A": {Status: DeviceReady, Media: theme.Opening},
		},
	}
}

func TestSolveScenario(t *testing.T) {
	theme := testTheme()
	catalog := theme.Puzzles
	s := startedSession(theme)
	now := time.Now()

	if s.Pointer != 2 {
		t.Fatalf("initial pointer = %d, want 2", s.Pointer)
	}

	// Solving seq 2 fully replaces role A's media with the local effect.
	p2, _ := TriggerAt(catalog, 2)
	if err := Solve(s, p2, catalog, now); err != nil {
		t.Fatalf("solve seq 2: %v", err)
	}
	wantA := MediaEffect{Video: "intro.mp4"}
	if got := s.Devices["A"].Media; got != wantA {
		t.Errorf("role A media = %+v, want %+v (opening text must be cleared)", got, wantA)
	}
	if s.Pointer != 5 {
		t.Errorf("pointer = %d, want 5 (physical seq 3 skipped)", s.Pointer)
	}
	if s.Status != SessionRunning {
		t.Errorf("status = %q, want running", s.Status)
	}
	if _, ok := s.Solved["brass-key"]; !ok {
		t.Error("solved set missing brass-key")
	}

	// Solving seq 5: no local effect means an empty one, so role A is
	// blanked to all-empty; role B is created and gets the remote effect;
	// no trigger remains, so the session ends with pointer = seq+1.
	p5, _ := TriggerAt(catalog, 5)
	if err := Solve(s, p5, catalog, now); err != nil {
		t.Fatalf("solve seq 5: %v", err)
	}
	if got := s.Devices["A"].Media; got != (MediaEffect{}) {
		t.Errorf("role A media = %+v, want all fields cleared (empty local effect)", got)
	}
	b, ok := s.Devices["B"]
	if !ok {
		t.Fatal("role B record not created")
	}
	if b.Status != DeviceDisconnected {
		t.Errorf("role B status = %q, want disconnected", b.Status)
	}
	if want := (MediaEffect{Image: "map.png"}); b.Media != want {
		t.Errorf("role B media = %+v, want %+v", b.Media, want)
	}
	if s.Pointer != 6 {
		t.Errorf("pointer = %d, want 6", s.Pointer)
	}
	if s.Status != SessionEnded {
		t.Errorf("status = %q, want ended", s.Status)
	}
}

func TestSolveEmptyLocalEffectBlanksDevice(t *testing.T) {
	// A device-trigger puzzle whose local effect is present but empty
	// clears all four fields: full replacement, never a merge.
	catalog := []PuzzleDefinition{
		{Seq: 1, Kind: KindDeviceTrigger, Code: "c1", Role: "A", Local: &MediaEffect{}},
	}
	s := &Session{
		Status:  SessionRunning,
		Devices: map[string]Device{"A": {Status: DeviceReady, Media: MediaEffect{Video: "v", Image: "i", Text: "t", Audio: "a"}}},
	}
	p, _ := TriggerAt(catalog, 1)
	if err := Solve(s, p, catalog, time.Now()); err != nil {
		t.Fatal(err)
	}
	if got := s.Devices["A"].Media; got != (MediaEffect{}) {
		t.Errorf("role A media = %+v, want all fields cleared", got)
	}
}

func TestSolveIdempotentEffect(t *testing.T) {
	theme := testTheme()
	catalog := theme.Puzzles
	s := startedSession(theme)
	p, _ := TriggerAt(catalog, 2)

	if err := Solve(s, p, catalog, time.Now()); err != nil {
		t.Fatal(err)
	}
	first := s.Devices["A"].Media
	if err := Solve(s, p, catalog, time.Now()); err != nil {
		t.Fatal(err)
	}
	if s.Devices["A"].Media != first {
		t.Errorf("second application changed media: %+v -> %+v", first, s.Devices["A"].Media)
	}
	if len(s.Solved) != 1 {
		t.Errorf("solved set grew on re-solve: %d entries", len(s.Solved))
	}
}

func TestSolveRejectsPhysicalPuzzle(t *testing.T) {
	catalog := twoTriggerCatalog()
	s := &Session{Status: SessionRunning}
	if err := Solve(s, catalog[1], catalog, time.Now()); err != ErrNotTrigger {
		t.Fatalf("err = %v, want ErrNotTrigger", err)
	}
}

func TestSolvePreservesClaimedTargetConnectivity(t *testing.T) {
	theme := testTheme()
	catalog := theme.Puzzles
	s := startedSession(theme)
	seen := time.Now().Add(-3 * time.Second)
	s.Devices["B"] = Device{Status: DeviceReady, LastSeen: seen}

	p5, _ := TriggerAt(catalog, 5)
	if err := Solve(s, p5, catalog, time.Now()); err != nil {
		t.Fatal(err)
	}
	b := s.Devices["B"]
	if b.Status != DeviceReady || !b.LastSeen.Equal(seen) {
		t.Errorf("remote effect clobbered connectivity: %+v", b)
	}
}
