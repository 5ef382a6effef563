package match

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"pongarena/engine/internal/journal"
	"pongarena/engine/internal/logging"
	"pongarena/engine/internal/physics"
	"pongarena/engine/internal/protocol"
	"pongarena/engine/internal/results"
	"pongarena/engine/internal/simulation"
)

var (
	// ErrMatchFinished indicates an operation arrived after the match ended.
	ErrMatchFinished = errors.New("match: already finished")
	// ErrInvalidSide indicates a seat outside the two valid players.
	ErrInvalidSide = errors.New("match: invalid side")
)

// recordTimeout bounds the result delivery so cleanup never hangs on a
// slow collaborator.
const recordTimeout = 10 * time.Second

// Outbound delivers an encoded frame to one player's connection. Delivery
// must not block the caller; droppy best-effort sinks are acceptable.
type Outbound interface {
	Deliver(payload []byte)
}

// Player pairs an authenticated identity with its delivery sink.
type Player struct {
	ID  string
	Out Outbound
}

// State tracks the lifecycle of a match.
type State int

const (
	// Waiting means the match exists but the tick loop has not started.
	Waiting State = iota
	// InProgress means the tick loop is advancing the simulation.
	InProgress
	// Finished is terminal and never transitions away.
	Finished
)

// String reports a human readable state label for logs.
func (s State) String() string {
	switch s {
	case Waiting:
		return "waiting"
	case InProgress:
		return "in_progress"
	case Finished:
		return "finished"
	default:
		return "unknown"
	}
}

// Option customises match construction.
type Option func(*Match)

// WithClock overrides the time source used for result timestamps.
func WithClock(clock func() time.Time) Option {
	return func(m *Match) {
		if clock != nil {
			m.now = clock
		}
	}
}

// WithServePicker overrides the serve direction selector.
func WithServePicker(pick func(n int) int) Option {
	return func(m *Match) {
		if pick != nil {
			m.pickServe = pick
		}
	}
}

// WithTuning overrides the court physics constants.
func WithTuning(tuning physics.Tuning) Option {
	return func(m *Match) {
		m.tuning = tuning
	}
}

// WithTickRate overrides the simulation frequency in hertz.
func WithTickRate(hz float64) Option {
	return func(m *Match) {
		if hz > 0 {
			m.tickRate = hz
		}
	}
}

// WithWinningScore overrides the score threshold that ends the match.
func WithWinningScore(target int) Option {
	return func(m *Match) {
		if target > 0 {
			m.winningScore = target
		}
	}
}

// WithLogger attaches a structured logger to the match.
func WithLogger(logger *logging.Logger) Option {
	return func(m *Match) {
		if logger != nil {
			m.log = logger
		}
	}
}

// WithResultRecorder attaches the collaborator that persists final scores.
func WithResultRecorder(recorder results.Recorder) Option {
	return func(m *Match) {
		if recorder != nil {
			m.recorder = recorder
		}
	}
}

// WithRegistry attaches the registry the match removes itself from when it
// finishes.
func WithRegistry(registry *Registry) Option {
	return func(m *Match) {
		m.registry = registry
	}
}

// WithJournal attaches a frame journal that captures every broadcast tick.
func WithJournal(recorder *journal.Recorder) Option {
	return func(m *Match) {
		m.journal = recorder
	}
}

// Match owns the authoritative simulation for one room. All mutable state
// lives behind a single mutex; frames are encoded under the lock and
// delivered after it is released.
type Match struct {
	id           string
	players      [2]Player
	tuning       physics.Tuning
	tickRate     float64
	winningScore int
	log          *logging.Logger
	recorder     results.Recorder
	registry     *Registry
	journal      *journal.Recorder
	monitor      *simulation.TickMonitor
	now          func() time.Time
	pickServe    func(n int) int
	loop         *simulation.Loop

	mu      sync.Mutex
	state   State
	ball    physics.Ball
	speed   float64
	paddles [2]float64
	score   [2]int
	tick    uint64
	winner  Side
	ended   bool
}

// delivery pairs an encoded frame with its destination so sends can happen
// outside the state lock.
type delivery struct {
	out     Outbound
	payload []byte
}

// New validates the pairing and builds a match in the Waiting state.
func New(id string, playerOne, playerTwo Player, opts ...Option) (*Match, error) {
	//1.- Refuse malformed pairings before allocating any simulation state.
	if id == "" {
		return nil, errors.New("match: id must not be empty")
	}
	if playerOne.ID == "" || playerTwo.ID == "" {
		return nil, errors.New("match: player ids must not be empty")
	}
	if playerOne.ID == playerTwo.ID {
		return nil, fmt.Errorf("match: players must be distinct, got %q twice", playerOne.ID)
	}
	if playerOne.Out == nil || playerTwo.Out == nil {
		return nil, errors.New("match: both players need an outbound sink")
	}
	//2.- Seed the court with defaults and let options reshape it.
	m := &Match{
		id:           id,
		players:      [2]Player{playerOne, playerTwo},
		tuning:       physics.DefaultTuning(),
		tickRate:     60,
		winningScore: 3,
		log:          logging.L(),
		recorder:     results.NopRecorder{},
		monitor:      simulation.NewTickMonitor(),
		now:          time.Now,
		pickServe:    rand.Intn,
		state:        Waiting,
	}
	for _, opt := range opts {
		opt(m)
	}
	//3.- Centre the paddles and serve the opening ball.
	centre := (m.tuning.CourtMin + m.tuning.CourtMax) / 2
	m.paddles = [2]float64{centre, centre}
	m.ball = physics.Respawn(m.tuning, m.pickServe)
	m.speed = m.tuning.BaseSpeed
	m.loop = simulation.NewLoop(m.tickRate, m.step)
	return m, nil
}

// ID reports the room identifier.
func (m *Match) ID() string { return m.id }

// PlayerID reports the identity seated on the given side.
func (m *Match) PlayerID(side Side) string {
	if !side.valid() {
		return ""
	}
	return m.players[side].ID
}

// Metrics exposes the tick timing snapshot for observability endpoints.
func (m *Match) Metrics() simulation.TickMetricsSnapshot {
	return m.monitor.Snapshot()
}

// Start announces the pairing to both players and launches the tick loop.
func (m *Match) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.state != Waiting {
		state := m.state
		m.mu.Unlock()
		return fmt.Errorf("match %s: cannot start from state %s", m.id, state)
	}
	//1.- Flip into InProgress while still holding the lock so a racing
	// disconnect observes a live match.
	m.state = InProgress
	frames := make([]delivery, 0, 2)
	for side := PlayerOne; side <= PlayerTwo; side++ {
		payload, err := protocol.EncodeMatchFound(m.id, side.Role())
		if err != nil {
			m.state = Waiting
			m.mu.Unlock()
			return fmt.Errorf("match %s: encode pairing frame: %w", m.id, err)
		}
		frames = append(frames, delivery{out: m.players[side].Out, payload: payload})
	}
	m.mu.Unlock()
	//2.- Deliver the announcements after releasing the lock, then tick.
	deliverAll(frames)
	m.log.Info("match started",
		logging.String("match_id", m.id),
		logging.String("player_1", m.players[PlayerOne].ID),
		logging.String("player_2", m.players[PlayerTwo].ID),
		logging.Float64("tick_rate_hz", m.tickRate))
	m.loop.Start(ctx)
	return nil
}

// ApplyMove records the latest paddle target for a side. Later writes win;
// commands after the match finished are ignored.
func (m *Match) ApplyMove(side Side, y float64) error {
	if !side.valid() {
		return ErrInvalidSide
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == Finished {
		return ErrMatchFinished
	}
	//1.- Clamp the target so the paddle never leaves the court.
	m.paddles[side] = physics.ClampPaddle(y, m.tuning)
	return nil
}

// HandleDisconnect forfeits the match in favour of the remaining player.
// It reports whether this call terminated the match.
func (m *Match) HandleDisconnect(gone Side) bool {
	if !gone.valid() {
		return false
	}
	m.mu.Lock()
	if m.state == Finished {
		m.mu.Unlock()
		return false
	}
	//1.- Force the winner's score to the threshold; the leaver keeps the
	// last value it actually earned.
	winner := gone.Opponent()
	m.score[winner] = m.winningScore
	frames, result := m.finishLocked(winner, "Opponent disconnected")
	m.mu.Unlock()
	//2.- The departed socket's sink is expected to drop the frame.
	deliverAll(frames)
	m.complete(result)
	return true
}

// step advances the simulation by one tick. Returning false stops the loop.
func (m *Match) step(time.Duration) bool {
	begun := time.Now()
	m.mu.Lock()
	if m.state != InProgress {
		m.mu.Unlock()
		return false
	}
	m.tick++
	//1.- Move the ball and bounce it off the horizontal walls.
	m.ball = physics.Advance(m.ball, m.speed)
	m.ball = physics.ReflectWalls(m.ball, m.tuning)
	//2.- Resolve paddle saves before goal checks so a blocked ball never scores.
	frames := make([]delivery, 0, 2)
	switch {
	case physics.HitLeft(m.ball, m.paddles[PlayerOne], m.tuning):
		m.ball = physics.BounceLeft(m.ball, m.paddles[PlayerOne], m.tuning)
		m.speed = physics.GrowSpeed(m.speed, m.tuning)
	case physics.HitRight(m.ball, m.paddles[PlayerTwo], m.tuning):
		m.ball = physics.BounceRight(m.ball, m.paddles[PlayerTwo], m.tuning)
		m.speed = physics.GrowSpeed(m.speed, m.tuning)
	case physics.OutLeft(m.ball, m.tuning):
		frames = m.scoreLocked(PlayerTwo, frames)
	case physics.OutRight(m.ball, m.tuning):
		frames = m.scoreLocked(PlayerOne, frames)
	}
	//3.- End the match the moment a side reaches the threshold.
	if winner, won := m.leaderAtThresholdLocked(); won {
		end, result := m.finishLocked(winner, "Game Over")
		frames = append(frames, end...)
		m.mu.Unlock()
		deliverAll(frames)
		m.complete(result)
		return false
	}
	//4.- Broadcast the authoritative snapshot to both players.
	snapshot := protocol.GameState{
		Ball:  m.ball,
		Speed: m.speed,
		Paddles: protocol.Paddles{
			P1Y: m.paddles[PlayerOne],
			P2Y: m.paddles[PlayerTwo],
		},
		Score: protocol.Score{P1: m.score[PlayerOne], P2: m.score[PlayerTwo]},
	}
	tick := m.tick
	payload, err := protocol.EncodeStateUpdate(snapshot)
	if err == nil {
		frames = append(frames,
			delivery{out: m.players[PlayerOne].Out, payload: payload},
			delivery{out: m.players[PlayerTwo].Out, payload: payload})
	}
	m.mu.Unlock()
	if err != nil {
		m.log.Error("state snapshot encoding failed",
			logging.String("match_id", m.id), logging.Error(err))
	}
	deliverAll(frames)
	if m.journal != nil && payload != nil {
		m.journal.Append(tick, payload)
	}
	m.monitor.Observe(time.Since(begun))
	return true
}

// scoreLocked awards a point, resets the rally and queues the score frame.
// Callers must hold the state lock.
func (m *Match) scoreLocked(scorer Side, frames []delivery) []delivery {
	m.score[scorer]++
	//1.- Fresh rallies restart from the base speed and a random diagonal.
	m.ball = physics.Respawn(m.tuning, m.pickServe)
	m.speed = m.tuning.BaseSpeed
	payload, err := protocol.EncodeScoreUpdate(protocol.Score{
		P1: m.score[PlayerOne],
		P2: m.score[PlayerTwo],
	})
	if err != nil {
		return frames
	}
	return append(frames,
		delivery{out: m.players[PlayerOne].Out, payload: payload},
		delivery{out: m.players[PlayerTwo].Out, payload: payload})
}

// leaderAtThresholdLocked reports which side, if any, has won.
func (m *Match) leaderAtThresholdLocked() (Side, bool) {
	if m.score[PlayerOne] >= m.winningScore {
		return PlayerOne, true
	}
	if m.score[PlayerTwo] >= m.winningScore {
		return PlayerTwo, true
	}
	return PlayerOne, false
}

// finishLocked transitions to Finished exactly once and builds the terminal
// frames plus the result to persist. Callers must hold the state lock and
// must have verified the match is not already finished.
func (m *Match) finishLocked(winner Side, message string) ([]delivery, results.Result) {
	m.state = Finished
	m.winner = winner
	m.ended = true
	final := protocol.Score{P1: m.score[PlayerOne], P2: m.score[PlayerTwo]}
	result := results.Result{
		MatchID:        m.id,
		PlayerOneID:    m.players[PlayerOne].ID,
		PlayerTwoID:    m.players[PlayerTwo].ID,
		PlayerOneScore: m.score[PlayerOne],
		PlayerTwoScore: m.score[PlayerTwo],
		WinnerID:       m.players[winner].ID,
		CompletedAt:    m.now().UTC(),
	}
	payload, err := protocol.EncodeMatchEnd(message, m.players[winner].ID, &final)
	if err != nil {
		return nil, result
	}
	return []delivery{
		{out: m.players[PlayerOne].Out, payload: payload},
		{out: m.players[PlayerTwo].Out, payload: payload},
	}, result
}

// complete runs the post-terminal cleanup: persist the result, flush the
// journal and leave the registry. Persistence failures are logged, never
// allowed to block teardown of the room itself.
func (m *Match) complete(result results.Result) {
	m.log.Info("match finished",
		logging.String("match_id", m.id),
		logging.String("winner_id", result.WinnerID),
		logging.Int("score_p1", result.PlayerOneScore),
		logging.Int("score_p2", result.PlayerTwoScore))
	//1.- Record the outcome off the tick goroutine with a hard deadline,
	// tagging the call with a trace id so the persistence request can be
	// correlated with these logs.
	recorder := m.recorder
	traceID := logging.GenerateTraceID()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
		defer cancel()
		ctx = logging.ContextWithTraceID(ctx, traceID)
		if err := recorder.Record(ctx, result); err != nil {
			m.log.Error("result persistence failed",
				logging.String("match_id", m.id),
				logging.String(logging.TraceIDField, traceID),
				logging.Error(err))
		}
	}()
	//2.- Seal the tick journal so the replay file lands on disk.
	if m.journal != nil {
		if _, err := m.journal.Flush(); err != nil {
			m.log.Error("journal flush failed",
				logging.String("match_id", m.id), logging.Error(err))
		}
	}
	//3.- Leaving the registry also halts the loop, which is safe from both
	// the tick goroutine and external callers.
	if m.registry != nil {
		m.registry.Remove(m.id)
	} else {
		m.halt()
	}
}

// halt cancels the tick loop without waiting for it to drain.
func (m *Match) halt() {
	if m.loop != nil {
		m.loop.Halt()
	}
}

// Snapshot captures the current simulation state for tests and diagnostics.
type Snapshot struct {
	State   State
	Ball    physics.Ball
	Speed   float64
	Paddles [2]float64
	Score   [2]int
	Tick    uint64
	Winner  Side
	Ended   bool
}

// Snapshot returns a consistent copy of the match state.
func (m *Match) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{
		State:   m.state,
		Ball:    m.ball,
		Speed:   m.speed,
		Paddles: m.paddles,
		Score:   m.score,
		Tick:    m.tick,
		Winner:  m.winner,
		Ended:   m.ended,
	}
}

func deliverAll(frames []delivery) {
	for _, frame := range frames {
		if frame.out != nil {
			frame.out.Deliver(frame.payload)
		}
	}
}
