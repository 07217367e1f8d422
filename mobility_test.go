package ltesim

import (
	"math"
	"testing"

	"github.com/iti/rngstream"
)

func TestReflect(t *testing.T) {
	cases := []struct {
		v, lo, hi, want float64
	}{
		{5, 0, 10, 5},
		{12, 0, 10, 8},
		{-3, 0, 10, 3},
		{25, 0, 10, 5},
		{160, 150, 850, 160},
		{900, 150, 850, 800},
		{4, 2, 2, 2},
	}
	for _, tc := range cases {
		if got := reflect(tc.v, tc.lo, tc.hi); !closeTo(got, tc.want) {
			t.Fatalf("reflect(%g, %g, %g) = %g, want %g", tc.v, tc.lo, tc.hi, got, tc.want)
		}
	}
}

func TestRandomWalkStaysInBound(t *testing.T) {
	bound := DefaultScenarioConfig().Bounds
	rng := rngstream.New("walk-test")
	for i := 0; i < 20; i++ {
		walk := createRandomWalk(Position{X: 200, Y: 700}, 30, uniformAngle(rng), bound)
		if walk.positionAt(0) != (Position{X: 200, Y: 700}) {
			t.Fatalf("walk does not start at its start position")
		}
		for step := 0; step <= 600; step++ {
			pos := walk.positionAt(float64(step) * 0.5)
			if !bound.Contains(pos) {
				t.Fatalf("walk %d left the bound at t=%gs: %+v", i, float64(step)*0.5, pos)
			}
		}
	}
}

func TestRandomWalkConstantSpeed(t *testing.T) {
	bound := Rect{MinX: 0, MaxX: 1000, MinY: 0, MaxY: 1000}
	walk := createRandomWalk(Position{X: 500, Y: 500}, 2, math.Pi/4, bound)
	d := walk.positionAt(10).DistanceTo(walk.positionAt(0))
	if !closeTo(d, 20) {
		t.Fatalf("moved %gm in 10s at 2m/s", d)
	}
	still := createRandomWalk(Position{X: 500, Y: 500}, 0, 1, bound)
	if still.positionAt(100) != (Position{X: 500, Y: 500}) {
		t.Fatalf("a UE with zero speed moved")
	}
}
