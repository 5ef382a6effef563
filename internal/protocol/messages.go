// Package protocol defines the JSON frames exchanged with players over the
// persistent connection. Inbound frames decode into a closed set of commands;
// outbound frames are built through typed constructors so no caller can emit
// an unknown message kind.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"pongarena/engine/internal/physics"
)

// Message type discriminators shared with the client.
const (
	TypeMove        = "move"
	TypeMatchFound  = "match_found"
	TypeStateUpdate = "state_update"
	TypeScoreUpdate = "score_update"
	TypeMatchEnd    = "match_end"
	TypeError       = "error"
)

var (
	// ErrEmptyPayload is returned when a frame carries no data at all.
	ErrEmptyPayload = errors.New("empty payload")
	// ErrUnknownType is returned for frames outside the supported command set.
	ErrUnknownType = errors.New("unknown message type")
	// ErrMissingField is returned when a known command omits a required field.
	ErrMissingField = errors.New("missing required field")
)

// MoveCommand is the only inbound command: an absolute paddle position.
type MoveCommand struct {
	Y float64
}

// DecodeInbound parses a frame into the closed inbound command set.
func DecodeInbound(raw []byte) (*MoveCommand, error) {
	//1.- Ensure we have data to decode before hitting JSON parsing.
	if len(raw) == 0 {
		return nil, ErrEmptyPayload
	}
	var envelope struct {
		Type      string   `json:"type"`
		YPosition *float64 `json:"y_position"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	switch envelope.Type {
	case TypeMove:
		//2.- Distinguish an absent field from a legitimate zero position.
		if envelope.YPosition == nil {
			return nil, fmt.Errorf("%w: y_position", ErrMissingField)
		}
		return &MoveCommand{Y: *envelope.YPosition}, nil
	case "":
		return nil, fmt.Errorf("%w: type", ErrMissingField)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, envelope.Type)
	}
}

// Score carries both side counters keyed the way clients render them.
type Score struct {
	P1 int `json:"p1"`
	P2 int `json:"p2"`
}

// Paddles carries both paddle positions.
type Paddles struct {
	P1Y float64 `json:"p1_y"`
	P2Y float64 `json:"p2_y"`
}

// GameState is the full authoritative snapshot broadcast every tick.
type GameState struct {
	Ball    physics.Ball `json:"ball"`
	Speed   float64      `json:"speed"`
	Paddles Paddles      `json:"paddles"`
	Score   Score        `json:"score"`
}

type matchFoundFrame struct {
	Type string `json:"type"`
	Room string `json:"room"`
	Role string `json:"role"`
}

type stateUpdateFrame struct {
	Type string    `json:"type"`
	Data GameState `json:"data"`
}

type scoreUpdateFrame struct {
	Type  string `json:"type"`
	Score Score  `json:"score"`
}

type matchEndFrame struct {
	Type       string `json:"type"`
	Message    string `json:"message"`
	Winner     string `json:"winner,omitempty"`
	FinalScore *Score `json:"final_score,omitempty"`
}

type errorFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// EncodeMatchFound announces the pairing outcome to one side.
func EncodeMatchFound(room, role string) ([]byte, error) {
	return json.Marshal(matchFoundFrame{Type: TypeMatchFound, Room: room, Role: role})
}

// EncodeStateUpdate frames the per-tick authoritative snapshot.
func EncodeStateUpdate(state GameState) ([]byte, error) {
	return json.Marshal(stateUpdateFrame{Type: TypeStateUpdate, Data: state})
}

// EncodeScoreUpdate frames a score change.
func EncodeScoreUpdate(score Score) ([]byte, error) {
	return json.Marshal(scoreUpdateFrame{Type: TypeScoreUpdate, Score: score})
}

// EncodeMatchEnd frames the terminal event, optionally naming the winner and final score.
func EncodeMatchEnd(message, winner string, final *Score) ([]byte, error) {
	frame := matchEndFrame{Type: TypeMatchEnd, Message: message, Winner: winner}
	if final != nil {
		clone := *final
		frame.FinalScore = &clone
	}
	return json.Marshal(frame)
}

// EncodeError frames a per-connection error report.
func EncodeError(message string) ([]byte, error) {
	return json.Marshal(errorFrame{Type: TypeError, Message: message})
}
