package geometry

import (
	"math"
	"testing"
)

func TestSolveHomographyMapsCorrespondences(t *testing.T) {
	tests := []struct {
		name string
		src  []Point2D
		dst  []Point2D
	}{
		{
			name: "translation",
			src:  []Point2D{{0, 0}, {100, 0}, {100, 100}, {0, 100}},
			dst:  []Point2D{{10, 20}, {110, 20}, {110, 120}, {10, 120}},
		},
		{
			name: "fiducials to targets",
			src:  []Point2D{{812, 790}, {12604, 771}, {12630, 12588}, {801, 12611}},
			dst:  []Point2D{{673, 673}, {12723, 673}, {12723, 12723}, {673, 12723}},
		},
		{
			name: "keystone",
			src:  []Point2D{{0, 0}, {200, 10}, {190, 210}, {5, 200}},
			dst:  []Point2D{{0, 0}, {200, 0}, {200, 200}, {0, 200}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := SolveHomography(tt.src, tt.dst)
			if err != nil {
				t.Fatalf("SolveHomography: %v", err)
			}
			if e := h.MaxError(tt.src, tt.dst); e > 1e-6 {
				t.Errorf("max reprojection error = %g, want < 1e-6", e)
			}
		})
	}
}

func TestSolveHomographyErrors(t *testing.T) {
	if _, err := SolveHomography([]Point2D{{0, 0}}, []Point2D{{0, 0}, {1, 1}}); err == nil {
		t.Error("expected error for mismatched point counts")
	}
	three := []Point2D{{0, 0}, {1, 0}, {0, 1}}
	if _, err := SolveHomography(three, three); err == nil {
		t.Error("expected error for fewer than four points")
	}
}

func TestIdentityHomography(t *testing.T) {
	p := Point2D{X: 12.5, Y: -3}
	got := IdentityHomography().Apply(p)
	if math.Abs(got.X-p.X) > 1e-12 || math.Abs(got.Y-p.Y) > 1e-12 {
		t.Errorf("identity moved %v to %v", p, got)
	}
}

func TestPointRoundAndOffset(t *testing.T) {
	p := Point2D{X: 10.4, Y: 20.6}.Offset(PointInt{X: 5, Y: 5}.ToFloat().Round())
	if got := p.Round(); got.X != 15 || got.Y != 26 {
		t.Errorf("Round() = %v, want (15,26)", got)
	}
	c := Centroid([]Point2D{{0, 0}, {2, 0}, {2, 2}, {0, 2}})
	if c.X != 1 || c.Y != 1 {
		t.Errorf("Centroid = %v, want (1,1)", c)
	}
}
