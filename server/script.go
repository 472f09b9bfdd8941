package main

import "math"

// MoveHook may veto a movement update before it is committed.
// The entity already carries the proposed state when HandleMove is called.
type MoveHook interface {
	HandleMove(p *Player, e *Entity) (canceled bool, reason string)
}

// MoveHookFunc adapts a function to MoveHook
type MoveHookFunc func(p *Player, e *Entity) (bool, string)

// HandleMove calls f
func (f MoveHookFunc) HandleMove(p *Player, e *Entity) (bool, string) {
	return f(p, e)
}

// finiteMoves rejects positions that are NaN or infinite
type finiteMoves struct{}

func (finiteMoves) HandleMove(_ *Player, e *Entity) (bool, string) {
	pos := e.Movement.Position
	for _, v := range [...]float32{pos.X, pos.Y, pos.Z} {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return true, "non-finite position"
		}
	}
	return false, ""
}
