package match

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"pongarena/engine/internal/logging"
	"pongarena/engine/internal/physics"
	"pongarena/engine/internal/results"
)

type fakeSink struct {
	mu     sync.Mutex
	frames [][]byte
}

func (s *fakeSink) Deliver(payload []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, append([]byte(nil), payload...))
}

func (s *fakeSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

func (s *fakeSink) typed(t *testing.T, index int) map[string]any {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if index >= len(s.frames) {
		t.Fatalf("expected at least %d frames, got %d", index+1, len(s.frames))
	}
	var decoded map[string]any
	if err := json.Unmarshal(s.frames[index], &decoded); err != nil {
		t.Fatalf("frame %d did not decode: %v", index, err)
	}
	return decoded
}

func (s *fakeSink) lastOfType(t *testing.T, frameType string) map[string]any {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.frames) - 1; i >= 0; i-- {
		var decoded map[string]any
		if err := json.Unmarshal(s.frames[i], &decoded); err != nil {
			continue
		}
		if decoded["type"] == frameType {
			return decoded
		}
	}
	t.Fatalf("no frame of type %q delivered", frameType)
	return nil
}

type fakeRecorder struct {
	mu      sync.Mutex
	results []results.Result
	traces  []string
	done    chan struct{}
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{done: make(chan struct{}, 4)}
}

func (r *fakeRecorder) Record(ctx context.Context, result results.Result) error {
	r.mu.Lock()
	r.results = append(r.results, result)
	r.traces = append(r.traces, logging.TraceIDFromContext(ctx))
	r.mu.Unlock()
	r.done <- struct{}{}
	return nil
}

func (r *fakeRecorder) lastTrace() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.traces) == 0 {
		return ""
	}
	return r.traces[len(r.traces)-1]
}

func (r *fakeRecorder) wait(t *testing.T) results.Result {
	t.Helper()
	select {
	case <-r.done:
	case <-time.After(2 * time.Second):
		t.Fatal("recorder was never invoked")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.results[len(r.results)-1]
}

func (r *fakeRecorder) calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.results)
}

func newTestMatch(t *testing.T, opts ...Option) (*Match, *fakeSink, *fakeSink) {
	t.Helper()
	left := &fakeSink{}
	right := &fakeSink{}
	base := []Option{
		WithServePicker(func(int) int { return 3 }),
		WithClock(func() time.Time { return time.Date(2026, 2, 14, 12, 0, 0, 0, time.UTC) }),
	}
	m, err := New("room-1", Player{ID: "alice", Out: left}, Player{ID: "bob", Out: right}, append(base, opts...)...)
	if err != nil {
		t.Fatalf("building match failed: %v", err)
	}
	return m, left, right
}

// forceInProgress flips the match into its live state without spinning up
// the real loop, keeping tick-by-tick tests deterministic.
func forceInProgress(m *Match) {
	m.mu.Lock()
	m.state = InProgress
	m.mu.Unlock()
}

func TestNewRejectsBadPairings(t *testing.T) {
	sink := &fakeSink{}
	cases := []struct {
		name string
		id   string
		one  Player
		two  Player
	}{
		{"empty id", "", Player{ID: "a", Out: sink}, Player{ID: "b", Out: sink}},
		{"missing player id", "room", Player{ID: "", Out: sink}, Player{ID: "b", Out: sink}},
		{"same player twice", "room", Player{ID: "a", Out: sink}, Player{ID: "a", Out: sink}},
		{"nil sink", "room", Player{ID: "a", Out: nil}, Player{ID: "b", Out: sink}},
	}
	for _, tc := range cases {
		if _, err := New(tc.id, tc.one, tc.two); err == nil {
			t.Fatalf("%s: expected construction to fail", tc.name)
		}
	}
}

func TestStartAnnouncesRoles(t *testing.T) {
	m, left, right := newTestMatch(t)
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer m.halt()

	first := left.typed(t, 0)
	if first["type"] != "match_found" || first["role"] != "player_1" {
		t.Fatalf("left seat got unexpected announcement: %v", first)
	}
	second := right.typed(t, 0)
	if second["type"] != "match_found" || second["role"] != "player_2" {
		t.Fatalf("right seat got unexpected announcement: %v", second)
	}
	if first["room"] != "room-1" || second["room"] != "room-1" {
		t.Fatal("both announcements must carry the room id")
	}
	if err := m.Start(context.Background()); err == nil {
		t.Fatal("double start must be rejected")
	}
}

func TestStepBroadcastsAuthoritativeSnapshot(t *testing.T) {
	m, left, right := newTestMatch(t)
	forceInProgress(m)

	if !m.step(0) {
		t.Fatal("a routine tick must keep the loop alive")
	}
	for _, sink := range []*fakeSink{left, right} {
		frame := sink.typed(t, 0)
		if frame["type"] != "state_update" {
			t.Fatalf("expected state_update, got %v", frame["type"])
		}
		data, ok := frame["data"].(map[string]any)
		if !ok {
			t.Fatalf("state_update missing data object: %v", frame)
		}
		if _, ok := data["ball"]; !ok {
			t.Fatal("snapshot must include the ball")
		}
		if _, ok := data["paddles"]; !ok {
			t.Fatal("snapshot must include the paddles")
		}
	}
}

func TestPaddleSaveGrowsSpeedUpToCap(t *testing.T) {
	m, _, _ := newTestMatch(t)
	forceInProgress(m)

	tuning := physics.DefaultTuning()
	m.mu.Lock()
	m.ball = physics.Ball{X: tuning.LeftPaddlePlane + 0.2, Y: 50, DX: -1, DY: 0}
	m.paddles[PlayerOne] = 50
	m.mu.Unlock()

	m.step(0)
	snap := m.Snapshot()
	if snap.Ball.DX <= 0 {
		t.Fatalf("saved ball must rebound to the right, got dx=%f", snap.Ball.DX)
	}
	want := tuning.BaseSpeed * tuning.SpeedGrowth
	if snap.Speed != want {
		t.Fatalf("speed after one save = %f, want %f", snap.Speed, want)
	}

	//1.- A rally near the cap must clamp instead of overshooting it.
	m.mu.Lock()
	m.speed = tuning.MaxSpeed * 0.99
	m.ball = physics.Ball{X: tuning.LeftPaddlePlane + 0.2, Y: 50, DX: -1, DY: 0}
	m.mu.Unlock()
	m.step(0)
	if got := m.Snapshot().Speed; got != tuning.MaxSpeed {
		t.Fatalf("speed must clamp at %f, got %f", tuning.MaxSpeed, got)
	}
}

func TestMissedBallScoresAndResetsRally(t *testing.T) {
	m, left, right := newTestMatch(t)
	forceInProgress(m)

	tuning := physics.DefaultTuning()
	m.mu.Lock()
	m.speed = 1.0
	m.ball = physics.Ball{X: 0.2, Y: 90, DX: -1, DY: 0}
	m.paddles[PlayerOne] = 20
	m.mu.Unlock()

	m.step(0)
	snap := m.Snapshot()
	if snap.Score != [2]int{0, 1} {
		t.Fatalf("a left miss must score for the right seat, got %v", snap.Score)
	}
	if snap.Speed != tuning.BaseSpeed {
		t.Fatalf("speed must reset to %f after a point, got %f", tuning.BaseSpeed, snap.Speed)
	}
	centre := (tuning.CourtMin + tuning.CourtMax) / 2
	if snap.Ball.X != centre || snap.Ball.Y != centre {
		t.Fatalf("ball must respawn at the centre, got (%f, %f)", snap.Ball.X, snap.Ball.Y)
	}
	for _, sink := range []*fakeSink{left, right} {
		frame := sink.lastOfType(t, "score_update")
		score, ok := frame["score"].(map[string]any)
		if !ok {
			t.Fatalf("score_update missing score object: %v", frame)
		}
		if score["p1"].(float64) != 0 || score["p2"].(float64) != 1 {
			t.Fatalf("unexpected score payload: %v", score)
		}
	}
}

func TestWinTerminatesExactlyOnce(t *testing.T) {
	recorder := newFakeRecorder()
	registry := NewRegistry()
	m, left, right := newTestMatch(t,
		WithResultRecorder(recorder),
		WithRegistry(registry))
	if err := registry.Register(m); err != nil {
		t.Fatalf("registering match failed: %v", err)
	}
	forceInProgress(m)

	tuning := physics.DefaultTuning()
	m.mu.Lock()
	m.score = [2]int{2, 0}
	m.ball = physics.Ball{X: tuning.CourtMax - 0.1, Y: 90, DX: 1, DY: 0}
	m.paddles[PlayerTwo] = 20
	m.mu.Unlock()

	if m.step(0) {
		t.Fatal("the winning tick must stop the loop")
	}
	snap := m.Snapshot()
	if snap.State != Finished {
		t.Fatalf("state after win = %s, want finished", snap.State)
	}
	if snap.Score != [2]int{3, 0} || snap.Winner != PlayerOne {
		t.Fatalf("unexpected outcome: score=%v winner=%v", snap.Score, snap.Winner)
	}

	result := recorder.wait(t)
	if result.WinnerID != "alice" || result.PlayerOneScore != 3 || result.PlayerTwoScore != 0 {
		t.Fatalf("persisted result mismatch: %+v", result)
	}
	if recorder.lastTrace() == "" {
		t.Fatal("the record context must carry a trace id")
	}
	if registry.Len() != 0 {
		t.Fatal("a finished match must leave the registry")
	}

	for _, sink := range []*fakeSink{left, right} {
		frame := sink.lastOfType(t, "match_end")
		if frame["winner"] != "alice" {
			t.Fatalf("match_end must name the winner, got %v", frame)
		}
		final, ok := frame["final_score"].(map[string]any)
		if !ok || final["p1"].(float64) != 3 {
			t.Fatalf("match_end must carry the final score, got %v", frame)
		}
	}

	//1.- A second terminal trigger must be a no-op with no second record.
	if m.HandleDisconnect(PlayerTwo) {
		t.Fatal("disconnect after the win must not terminate again")
	}
	if m.step(0) {
		t.Fatal("ticks after the win must refuse to run")
	}
	if recorder.calls() != 1 {
		t.Fatalf("recorder invoked %d times, want exactly once", recorder.calls())
	}
}

func TestDisconnectForfeitsToRemainingPlayer(t *testing.T) {
	recorder := newFakeRecorder()
	registry := NewRegistry()
	m, _, right := newTestMatch(t,
		WithResultRecorder(recorder),
		WithRegistry(registry))
	if err := registry.Register(m); err != nil {
		t.Fatalf("registering match failed: %v", err)
	}
	forceInProgress(m)

	m.mu.Lock()
	m.score = [2]int{1, 2}
	m.mu.Unlock()

	if !m.HandleDisconnect(PlayerOne) {
		t.Fatal("disconnecting a live match must terminate it")
	}
	snap := m.Snapshot()
	if snap.State != Finished || snap.Winner != PlayerTwo {
		t.Fatalf("forfeit outcome wrong: state=%s winner=%v", snap.State, snap.Winner)
	}
	if snap.Score != [2]int{1, 3} {
		t.Fatalf("winner's score must be forced to the threshold, got %v", snap.Score)
	}

	result := recorder.wait(t)
	if result.WinnerID != "bob" || result.PlayerOneScore != 1 || result.PlayerTwoScore != 3 {
		t.Fatalf("forfeit result mismatch: %+v", result)
	}
	frame := right.lastOfType(t, "match_end")
	if frame["message"] != "Opponent disconnected" {
		t.Fatalf("remaining player must learn about the forfeit, got %v", frame)
	}
	if registry.Len() != 0 {
		t.Fatal("a forfeited match must leave the registry")
	}
}

func TestApplyMoveClampsAndLastWriteWins(t *testing.T) {
	m, _, _ := newTestMatch(t)
	forceInProgress(m)

	if err := m.ApplyMove(PlayerOne, -40); err != nil {
		t.Fatalf("move failed: %v", err)
	}
	if got := m.Snapshot().Paddles[PlayerOne]; got != 0 {
		t.Fatalf("paddle must clamp at the bottom edge, got %f", got)
	}
	if err := m.ApplyMove(PlayerOne, 130); err != nil {
		t.Fatalf("move failed: %v", err)
	}
	if err := m.ApplyMove(PlayerOne, 72.5); err != nil {
		t.Fatalf("move failed: %v", err)
	}
	if got := m.Snapshot().Paddles[PlayerOne]; got != 72.5 {
		t.Fatalf("latest move must win, got %f", got)
	}

	if err := m.ApplyMove(Side(7), 10); err != ErrInvalidSide {
		t.Fatalf("expected ErrInvalidSide, got %v", err)
	}

	m.HandleDisconnect(PlayerTwo)
	if err := m.ApplyMove(PlayerOne, 5); err != ErrMatchFinished {
		t.Fatalf("moves after the end must report ErrMatchFinished, got %v", err)
	}
	if got := m.Snapshot().Paddles[PlayerOne]; got != 72.5 {
		t.Fatalf("post-terminal move must not mutate the paddle, got %f", got)
	}
}

func TestScoresNeverDecrease(t *testing.T) {
	m, _, _ := newTestMatch(t)
	forceInProgress(m)

	last := [2]int{}
	for i := 0; i < 3; i++ {
		m.mu.Lock()
		m.ball = physics.Ball{X: 0.1, Y: 90, DX: -1, DY: 0}
		m.paddles[PlayerOne] = 10
		m.mu.Unlock()
		m.step(0)
		snap := m.Snapshot()
		if snap.Score[0] < last[0] || snap.Score[1] < last[1] {
			t.Fatalf("score regressed from %v to %v", last, snap.Score)
		}
		last = snap.Score
	}
	if last != [2]int{0, 3} {
		t.Fatalf("three misses must reach the winning threshold, got %v", last)
	}
}
