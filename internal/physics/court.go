// Package physics contains the pure state transition functions for one
// simulation tick on a normalized 0-100 court. Nothing here reads the
// wall clock or shares state, so every transition is reproducible from
// (previous state, input history).
package physics

import "math"

// Ball carries the position and unit direction vector of the ball.
type Ball struct {
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
	DX float64 `json:"dx"`
	DY float64 `json:"dy"`
}

// Tuning captures the court geometry and ball behaviour parameters.
type Tuning struct {
	CourtMin         float64
	CourtMax         float64
	LeftPaddlePlane  float64
	RightPaddlePlane float64
	PaddleHalfHeight float64
	BaseSpeed        float64
	SpeedGrowth      float64
	MaxSpeed         float64
	MaxBounceDeg     float64
}

// DefaultTuning mirrors the canonical rule set: angle-based bounces capped at
// 75 degrees, multiplicative speed growth capped at four times the base speed.
func DefaultTuning() Tuning {
	return Tuning{
		CourtMin:         0,
		CourtMax:         100,
		LeftPaddlePlane:  5,
		RightPaddlePlane: 95,
		PaddleHalfHeight: 10,
		BaseSpeed:        0.3,
		SpeedGrowth:      1.12,
		MaxSpeed:         1.2,
		MaxBounceDeg:     75,
	}
}

// Advance applies linear integration of the direction vector scaled by speed.
func Advance(b Ball, speed float64) Ball {
	//1.- Guard against a non-positive speed so a stalled ball stays put.
	if speed <= 0 {
		return b
	}
	b.X += b.DX * speed
	b.Y += b.DY * speed
	return b
}

// ReflectWalls clamps the ball inside the top and bottom rails, inverting the
// vertical direction on contact.
func ReflectWalls(b Ball, t Tuning) Ball {
	//1.- Clamp transient overshoot back onto the rail before inverting.
	if b.Y <= t.CourtMin {
		b.Y = t.CourtMin
		b.DY = math.Abs(b.DY)
	} else if b.Y >= t.CourtMax {
		b.Y = t.CourtMax
		b.DY = -math.Abs(b.DY)
	}
	return b
}

// HitLeft reports whether the ball reached the left paddle plane within reach of the paddle.
func HitLeft(b Ball, paddleY float64, t Tuning) bool {
	return b.X <= t.LeftPaddlePlane && math.Abs(paddleY-b.Y) <= t.PaddleHalfHeight
}

// HitRight reports whether the ball reached the right paddle plane within reach of the paddle.
func HitRight(b Ball, paddleY float64, t Tuning) bool {
	return b.X >= t.RightPaddlePlane && math.Abs(paddleY-b.Y) <= t.PaddleHalfHeight
}

// BounceLeft recomputes the direction from the strike position on the left
// paddle: a center strike exits near-horizontal, an edge strike exits at the
// capped maximum angle.
func BounceLeft(b Ball, paddleY float64, t Tuning) Ball {
	angle := strikeAngle(b.Y, paddleY, t)
	//2.- Rest the ball on the paddle plane so the next tick cannot re-collide.
	b.X = t.LeftPaddlePlane
	b.DX = math.Cos(angle)
	b.DY = math.Sin(angle)
	return b
}

// BounceRight mirrors BounceLeft for the right paddle, exiting leftward.
func BounceRight(b Ball, paddleY float64, t Tuning) Ball {
	angle := strikeAngle(b.Y, paddleY, t)
	b.X = t.RightPaddlePlane
	b.DX = -math.Cos(angle)
	b.DY = math.Sin(angle)
	return b
}

func strikeAngle(ballY, paddleY float64, t Tuning) float64 {
	//1.- Normalize the strike offset to [-1, 1] relative to the paddle half height.
	offset := 0.0
	if t.PaddleHalfHeight > 0 {
		offset = (ballY - paddleY) / t.PaddleHalfHeight
	}
	if offset > 1 {
		offset = 1
	} else if offset < -1 {
		offset = -1
	}
	return offset * t.MaxBounceDeg * math.Pi / 180
}

// OutLeft reports whether the ball passed the left edge, scoring for the right side.
func OutLeft(b Ball, t Tuning) bool { return b.X <= t.CourtMin }

// OutRight reports whether the ball passed the right edge, scoring for the left side.
func OutRight(b Ball, t Tuning) bool { return b.X >= t.CourtMax }

// GrowSpeed applies the multiplicative growth factor up to the configured cap.
func GrowSpeed(speed float64, t Tuning) float64 {
	grown := speed * t.SpeedGrowth
	if grown > t.MaxSpeed {
		return t.MaxSpeed
	}
	return grown
}

// serveDirections enumerates the four normalized diagonal serves. Near-horizontal
// angles are deliberately absent to avoid degenerate stalemates.
var serveDirections = [4][2]float64{
	{-math.Sqrt2 / 2, -math.Sqrt2 / 2},
	{math.Sqrt2 / 2, -math.Sqrt2 / 2},
	{-math.Sqrt2 / 2, math.Sqrt2 / 2},
	{math.Sqrt2 / 2, math.Sqrt2 / 2},
}

// ServeCount exposes the size of the discrete serve direction set.
func ServeCount() int { return len(serveDirections) }

// Respawn recenters the ball and assigns the serve direction selected by pick,
// which receives the size of the direction set. Injecting pick keeps the
// transition deterministic for callers that need reproducibility.
func Respawn(t Tuning, pick func(n int) int) Ball {
	index := 0
	if pick != nil {
		index = pick(len(serveDirections))
	}
	if index < 0 || index >= len(serveDirections) {
		index = 0
	}
	center := (t.CourtMin + t.CourtMax) / 2
	dir := serveDirections[index]
	return Ball{X: center, Y: center, DX: dir[0], DY: dir[1]}
}

// ClampPaddle bounds a paddle position to the court range.
func ClampPaddle(y float64, t Tuning) float64 {
	if y < t.CourtMin {
		return t.CourtMin
	}
	if y > t.CourtMax {
		return t.CourtMax
	}
	return y
}
