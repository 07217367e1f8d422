package ltesim

// mobility.go moves UEs on a 2-D random walk inside the movement bound.
// Each UE draws its direction once and walks at constant speed for the
// whole run, reflecting off the edges of the bound.  The walk is evaluated
// in closed form, so no events are needed to advance it.

import (
	"math"
)

// randomWalk describes the motion of one UE
type randomWalk struct {
	start  Position
	vx, vy float64 // m/s
	bound  Rect
}

func createRandomWalk(start Position, speed, theta float64, bound Rect) *randomWalk {
	return &randomWalk{
		start: start,
		vx:    speed * math.Cos(theta),
		vy:    speed * math.Sin(theta),
		bound: bound,
	}
}

// positionAt returns the position of the UE t seconds into the run
func (rw *randomWalk) positionAt(t float64) Position {
	return Position{
		X: reflect(rw.start.X+rw.vx*t, rw.bound.MinX, rw.bound.MaxX),
		Y: reflect(rw.start.Y+rw.vy*t, rw.bound.MinY, rw.bound.MaxY),
	}
}

// reflect folds an unbounded coordinate into [lo, hi] as if it had bounced
// off each edge it crossed
func reflect(v, lo, hi float64) float64 {
	span := hi - lo
	if !(span > 0) {
		return lo
	}
	m := math.Mod(v-lo, 2*span)
	if m < 0 {
		m += 2 * span
	}
	if m > span {
		m = 2*span - m
	}
	return lo + m
}
