package match

// Side identifies one of the two seats inside a match.
type Side int

const (
	// PlayerOne defends the left paddle plane.
	PlayerOne Side = iota
	// PlayerTwo defends the right paddle plane.
	PlayerTwo
)

// Role reports the wire-level role label for the side.
func (s Side) Role() string {
	//1.- Map each seat onto the protocol role announced at pairing time.
	switch s {
	case PlayerOne:
		return "player_1"
	case PlayerTwo:
		return "player_2"
	default:
		return "unknown"
	}
}

// Opponent returns the other seat.
func (s Side) Opponent() Side {
	//1.- Flip between the two seats without branching on invalid values.
	if s == PlayerOne {
		return PlayerTwo
	}
	return PlayerOne
}

func (s Side) valid() bool {
	return s == PlayerOne || s == PlayerTwo
}
