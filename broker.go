package main

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"pongarena/engine/internal/auth"
	"pongarena/engine/internal/config"
	"pongarena/engine/internal/journal"
	"pongarena/engine/internal/logging"
	"pongarena/engine/internal/match"
	"pongarena/engine/internal/physics"
	"pongarena/engine/internal/protocol"
	"pongarena/engine/internal/results"
)

const (
	// closeUnauthorized is sent when the handshake credential is rejected.
	closeUnauthorized = 4401
	// writeWait bounds every outbound websocket write.
	writeWait = 10 * time.Second
	// sendBuffer sizes the per-client outbound queue. At 60 updates per
	// second this absorbs roughly a second of backlog.
	sendBuffer = 64
)

// BrokerOption customises broker construction.
type BrokerOption func(*Broker)

// WithBrokerLogger attaches a structured logger to the broker.
func WithBrokerLogger(logger *logging.Logger) BrokerOption {
	return func(b *Broker) {
		if logger != nil {
			b.log = logger
		}
	}
}

// WithWebsocketAuthenticator wires a custom authenticator into the broker.
func WithWebsocketAuthenticator(authenticator websocketAuthenticator) BrokerOption {
	return func(b *Broker) {
		if authenticator != nil {
			b.authenticator = authenticator
		}
	}
}

// WithResultRecorder wires the collaborator that persists final scores.
func WithResultRecorder(recorder results.Recorder) BrokerOption {
	return func(b *Broker) {
		if recorder != nil {
			b.recorder = recorder
		}
	}
}

// WithBaseContext sets the context every match tick loop inherits from.
func WithBaseContext(ctx context.Context) BrokerOption {
	return func(b *Broker) {
		if ctx != nil {
			b.baseCtx = ctx
		}
	}
}

// Broker owns the websocket surface: it authenticates sessions, feeds the
// matchmaker and routes inbound commands to the right match seat.
type Broker struct {
	cfg           *config.Config
	log           *logging.Logger
	authenticator websocketAuthenticator
	recorder      results.Recorder
	registry      *match.Registry
	matchmaker    *match.Matchmaker
	baseCtx       context.Context
	upgrader      websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
}

// NewBroker builds a broker around the given configuration.
func NewBroker(cfg *config.Config, opts ...BrokerOption) *Broker {
	if cfg == nil {
		cfg = &config.Config{
			PingInterval:    config.DefaultPingInterval,
			MaxPayloadBytes: config.DefaultMaxPayloadBytes,
			TickRateHz:      config.DefaultTickRateHz,
			WinningScore:    config.DefaultWinningScore,
		}
	}
	b := &Broker{
		cfg:           cfg,
		log:           logging.L(),
		authenticator: allowAllAuthenticator{},
		recorder:      results.NopRecorder{},
		registry:      match.NewRegistry(),
		baseCtx:       context.Background(),
		clients:       make(map[*client]struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.matchmaker = match.NewMatchmaker(b.createMatch, match.WithMatchmakerLogger(b.log))
	b.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return b.originAllowed(r) },
	}
	return b
}

// originAllowed enforces the configured Origin allowlist. An empty list
// admits every origin.
func (b *Broker) originAllowed(r *http.Request) bool {
	if len(b.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	for _, allowed := range b.cfg.AllowedOrigins {
		if origin == allowed {
			return true
		}
	}
	return false
}

// serveWS runs the full session lifecycle: upgrade, authenticate, admit,
// queue for an opponent and pump frames until the socket dies.
func (b *Broker) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.log.Warn("websocket upgrade rejected", logging.Error(err))
		return
	}
	//1.- Authenticate after the upgrade so the denial reaches the client
	// as a close frame it can actually read.
	identity, err := b.authenticator.Authenticate(r)
	if err != nil {
		b.log.Info("handshake credential rejected", logging.Error(err))
		denial := websocket.FormatCloseMessage(closeUnauthorized, "unauthorized")
		_ = conn.WriteControl(websocket.CloseMessage, denial, time.Now().Add(writeWait))
		_ = conn.Close()
		return
	}
	c := &client{
		broker:  b,
		conn:    conn,
		send:    make(chan []byte, sendBuffer),
		done:    make(chan struct{}),
		session: uuid.NewString(),
		player:  identity,
	}
	//2.- Enforce the connection ceiling before the session touches the queue.
	if !b.admit(c) {
		denial := websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "server full")
		_ = conn.WriteControl(websocket.CloseMessage, denial, time.Now().Add(writeWait))
		_ = conn.Close()
		return
	}
	b.log.Info("session connected",
		logging.String("session_id", c.session),
		logging.String("player_id", identity.PlayerID))
	//3.- Hand the session to the matchmaker before the pumps run. Teardown
	// fires only from the read pump, so its queue withdrawal always sees
	// the ticket this enqueue inserted; pairing frames buffer in the send
	// channel until the write pump drains them.
	ticket := match.Ticket{SessionID: c.session, PlayerID: identity.PlayerID, Out: c}
	if _, err := b.matchmaker.EnqueueOrPair(ticket); err != nil {
		if payload, encErr := protocol.EncodeError("matchmaking failed, please retry"); encErr == nil {
			c.Deliver(payload)
		}
		if !errors.Is(err, match.ErrPairingFailed) {
			b.log.Error("matchmaking rejected session",
				logging.String("session_id", c.session), logging.Error(err))
		}
	}
	go c.writePump()
	go c.readPump()
}

// createMatch is the matchmaker's room factory: it builds the match, seats
// both clients and launches the tick loop.
func (b *Broker) createMatch(first, second match.Ticket) (*match.Match, error) {
	id := uuid.NewString()
	opts := []match.Option{
		match.WithRegistry(b.registry),
		match.WithResultRecorder(b.recorder),
		match.WithLogger(b.log),
		match.WithTickRate(b.cfg.TickRateHz),
		match.WithWinningScore(b.cfg.WinningScore),
		match.WithTuning(b.matchTuning()),
	}
	//1.- Journalling is best effort; a broken journal dir never blocks play.
	if b.cfg.JournalDir != "" {
		if recorder, err := journal.NewRecorder(b.cfg.JournalDir, id); err != nil {
			b.log.Warn("match journal unavailable",
				logging.String("match_id", id), logging.Error(err))
		} else {
			opts = append(opts, match.WithJournal(recorder))
		}
	}
	m, err := match.New(id,
		match.Player{ID: first.PlayerID, Out: first.Out},
		match.Player{ID: second.PlayerID, Out: second.Out},
		opts...)
	if err != nil {
		return nil, err
	}
	if err := b.registry.Register(m); err != nil {
		return nil, err
	}
	//2.- Seat both sockets before the loop starts so the first tick can
	// already route their moves.
	if c, ok := first.Out.(*client); ok {
		c.bind(m, match.PlayerOne)
	}
	if c, ok := second.Out.(*client); ok {
		c.bind(m, match.PlayerTwo)
	}
	if err := m.Start(b.baseCtx); err != nil {
		b.registry.Remove(id)
		return nil, err
	}
	return m, nil
}

// matchTuning projects the configured physics overrides onto the court
// constants every new match plays with.
func (b *Broker) matchTuning() physics.Tuning {
	tuning := physics.DefaultTuning()
	if b.cfg.BallSpeed > 0 {
		tuning.BaseSpeed = b.cfg.BallSpeed
	}
	if b.cfg.SpeedGrowth >= 1 {
		tuning.SpeedGrowth = b.cfg.SpeedGrowth
	}
	if b.cfg.SpeedCapFactor >= 1 {
		tuning.MaxSpeed = tuning.BaseSpeed * b.cfg.SpeedCapFactor
	}
	if b.cfg.PaddleHalfHeight > 0 {
		tuning.PaddleHalfHeight = b.cfg.PaddleHalfHeight
	}
	return tuning
}

// admit registers the client unless the connection ceiling was reached.
func (b *Broker) admit(c *client) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cfg.MaxClients > 0 && len(b.clients) >= b.cfg.MaxClients {
		return false
	}
	b.clients[c] = struct{}{}
	return true
}

// release drops the client from the broker's bookkeeping.
func (b *Broker) release(c *client) {
	b.mu.Lock()
	delete(b.clients, c)
	b.mu.Unlock()
}

// Stats reports the broker's live session counters plus the aggregate tick
// cost across running matches.
func (b *Broker) Stats() BrokerStats {
	b.mu.Lock()
	connected := len(b.clients)
	b.mu.Unlock()
	live := b.registry.Live()
	var totalTickMs float64
	var sampled int
	for _, m := range live {
		metrics := m.Metrics()
		if metrics.Samples == 0 {
			continue
		}
		totalTickMs += float64(metrics.Average.Microseconds()) / 1000
		sampled++
	}
	stats := BrokerStats{
		Clients: connected,
		Queued:  b.matchmaker.QueueLen(),
		Matches: len(live),
	}
	if sampled > 0 {
		stats.AvgTickMs = totalTickMs / float64(sampled)
	}
	return stats
}

// client is one authenticated websocket session. It implements
// match.Outbound so ticks can push frames straight at the socket.
type client struct {
	broker  *Broker
	conn    *websocket.Conn
	send    chan []byte
	done    chan struct{}
	session string
	player  auth.Identity

	mu    sync.Mutex
	match *match.Match
	side  match.Side
	bound bool

	closeOnce sync.Once
}

// Deliver queues a frame for the write pump. A full queue drops the frame;
// the next snapshot supersedes it anyway. The send channel is never closed
// so late tick deliveries against a dead session stay harmless.
func (c *client) Deliver(payload []byte) {
	select {
	case c.send <- payload:
	default:
	}
}

// bind seats the client in a match so inbound moves have a destination.
func (c *client) bind(m *match.Match, side match.Side) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.match = m
	c.side = side
	c.bound = true
}

func (c *client) binding() (*match.Match, match.Side, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.match, c.side, c.bound
}

// readPump consumes inbound frames until the socket dies, then tears the
// session down exactly once.
func (c *client) readPump() {
	defer c.teardown()
	c.conn.SetReadLimit(c.broker.cfg.MaxPayloadBytes)
	pongWait := 2 * c.broker.cfg.PingInterval
	if pongWait <= 0 {
		pongWait = 2 * config.DefaultPingInterval
	}
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		command, err := protocol.DecodeInbound(raw)
		if err != nil {
			//1.- Malformed input earns an error frame, never a crash.
			if payload, encErr := protocol.EncodeError(err.Error()); encErr == nil {
				c.Deliver(payload)
			}
			continue
		}
		m, side, ok := c.binding()
		if !ok {
			if payload, encErr := protocol.EncodeError("still waiting for an opponent"); encErr == nil {
				c.Deliver(payload)
			}
			continue
		}
		//2.- Moves after the match ended are silently stale, not errors.
		if err := m.ApplyMove(side, command.Y); err != nil && !errors.Is(err, match.ErrMatchFinished) {
			c.broker.log.Warn("move rejected",
				logging.String("session_id", c.session), logging.Error(err))
		}
	}
}

// writePump owns all writes to the socket, including keepalive pings.
func (c *client) writePump() {
	interval := c.broker.cfg.PingInterval
	if interval <= 0 {
		interval = config.DefaultPingInterval
	}
	ticker := time.NewTicker(interval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case payload := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// teardown runs the disconnect path exactly once: withdraw from the queue,
// forfeit any live match and release broker bookkeeping.
func (c *client) teardown() {
	c.closeOnce.Do(func() {
		c.broker.matchmaker.Remove(c.session)
		if m, side, ok := c.binding(); ok {
			if m.HandleDisconnect(side) {
				c.broker.log.Info("session forfeited its match",
					logging.String("session_id", c.session),
					logging.String("match_id", m.ID()))
			}
		}
		c.broker.release(c)
		close(c.done)
		_ = c.conn.Close()
		c.broker.log.Info("session disconnected",
			logging.String("session_id", c.session),
			logging.String("player_id", c.player.PlayerID))
	})
}
