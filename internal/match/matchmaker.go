package match

import (
	"errors"
	"sync"

	"pongarena/engine/internal/logging"
	"pongarena/engine/internal/protocol"
)

// ErrPairingFailed indicates two players were matched but the room could
// not be built; both were returned to the queue.
var ErrPairingFailed = errors.New("matchmaker: pairing failed")

// Ticket represents one session waiting for an opponent.
type Ticket struct {
	SessionID string
	PlayerID  string
	Out       Outbound
}

// Assignment reports the seat a session received after pairing.
type Assignment struct {
	Match *Match
	Side  Side
}

// CreateFunc builds, registers and starts a match for two paired tickets.
// The first ticket is the one that waited longest and takes the left seat.
type CreateFunc func(first, second Ticket) (*Match, error)

// MatchmakerOption customises matchmaker construction.
type MatchmakerOption func(*Matchmaker)

// WithMatchmakerLogger attaches a structured logger to the matchmaker.
func WithMatchmakerLogger(logger *logging.Logger) MatchmakerOption {
	return func(mm *Matchmaker) {
		if logger != nil {
			mm.log = logger
		}
	}
}

// Matchmaker pairs sessions first-come first-served. All queue mutation
// happens under one lock so a session can never be paired twice.
type Matchmaker struct {
	mu     sync.Mutex
	queue  []Ticket
	create CreateFunc
	log    *logging.Logger
}

// NewMatchmaker builds a matchmaker around the given room factory.
func NewMatchmaker(create CreateFunc, opts ...MatchmakerOption) *Matchmaker {
	mm := &Matchmaker{create: create, log: logging.L()}
	for _, opt := range opts {
		opt(mm)
	}
	return mm
}

// EnqueueOrPair either parks the ticket until an opponent arrives or pairs
// it with the longest-waiting session. A nil assignment with a nil error
// means the ticket was queued.
func (mm *Matchmaker) EnqueueOrPair(ticket Ticket) (*Assignment, error) {
	if ticket.SessionID == "" || ticket.Out == nil {
		return nil, errors.New("matchmaker: ticket needs a session id and an outbound sink")
	}
	mm.mu.Lock()
	defer mm.mu.Unlock()
	//1.- An empty queue means this session waits for the next arrival.
	if len(mm.queue) == 0 {
		mm.queue = append(mm.queue, ticket)
		mm.log.Info("session queued",
			logging.String("session_id", ticket.SessionID),
			logging.String("player_id", ticket.PlayerID))
		return nil, nil
	}
	//2.- Pop the oldest ticket; it earned the left seat by waiting.
	first := mm.queue[0]
	mm.queue = mm.queue[1:]
	m, err := mm.create(first, ticket)
	if err != nil {
		//3.- Room construction failed: requeue both sessions, tell the
		// waiting one its pairing fell through, and surface the error so
		// the caller can notify the incoming session.
		mm.queue = append([]Ticket{first}, mm.queue...)
		mm.queue = append(mm.queue, ticket)
		mm.log.Error("pairing failed",
			logging.String("first_session", first.SessionID),
			logging.String("second_session", ticket.SessionID),
			logging.Error(err))
		if payload, encErr := protocol.EncodeError("matchmaking failed, you are back in the queue"); encErr == nil {
			first.Out.Deliver(payload)
		}
		return nil, ErrPairingFailed
	}
	mm.log.Info("sessions paired",
		logging.String("match_id", m.ID()),
		logging.String("player_1", first.PlayerID),
		logging.String("player_2", ticket.PlayerID))
	return &Assignment{Match: m, Side: PlayerTwo}, nil
}

// Remove withdraws a session from the queue, typically because it
// disconnected before an opponent showed up. It reports whether the
// session was still waiting.
func (mm *Matchmaker) Remove(sessionID string) bool {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	for i, ticket := range mm.queue {
		if ticket.SessionID == sessionID {
			//1.- Preserve arrival order for everyone still waiting.
			mm.queue = append(mm.queue[:i], mm.queue[i+1:]...)
			return true
		}
	}
	return false
}

// QueueLen reports how many sessions are waiting for an opponent.
func (mm *Matchmaker) QueueLen() int {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	return len(mm.queue)
}
