package geom

import (
	"math"
	"testing"
)

func TestPolygon_Contains(t *testing.T) {
	sq := Polygon{{0, 0}, {10, 0}, {10, 10}, {0, 10}}
	in := []Coord{{5, 5}, {0.1, 9.9}, {0, 5}, {10, 10}, {5, 0}}
	out := []Coord{{-0.1, 5}, {10.01, 5}, {5, 11}, {20, 20}}
	for _, p := range in {
		if !sq.Contains(p) {
			t.Fatalf("expected %v inside", p)
		}
	}
	for _, p := range out {
		if sq.Contains(p) {
			t.Fatalf("expected %v outside", p)
		}
	}
	tri := Polygon{{0, 0}, {10, 0}, {5, 10}}
	if !tri.Contains(Coord{5, 3}) || tri.Contains(Coord{1, 8}) {
		t.Fatalf("triangle containment wrong")
	}
	if (Polygon{{0, 0}, {1, 1}}).Contains(Coord{0, 0}) {
		t.Fatalf("degenerate polygon contains nothing")
	}
}

func TestProjectAndNormalize(t *testing.T) {
	p := Project(Coord{1, 1}, 90, 5)
	if math.Abs(p.X-1) > 1e-9 || math.Abs(p.Y-6) > 1e-9 {
		t.Fatalf("Project=%v", p)
	}
	if NormalizeDegrees(-90) != 270 || NormalizeDegrees(720) != 0 {
		t.Fatalf("NormalizeDegrees wrong")
	}
	x, y := Coord{2.5, -2.5}.Round()
	if x != 3 || y != -3 {
		t.Fatalf("Round=%d,%d", x, y)
	}
}
