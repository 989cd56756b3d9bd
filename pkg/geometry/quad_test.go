package geometry

import "testing"

func TestIsConvex(t *testing.T) {
	tests := []struct {
		name string
		quad []Point2D
		want bool
	}{
		{"square", []Point2D{{0, 0}, {10, 0}, {10, 10}, {0, 10}}, true},
		{"skewed scan", []Point2D{{636, 916}, {10383, 766}, {10469, 10424}, {730, 10580}}, true},
		{"swapped corners", []Point2D{{0, 0}, {10, 0}, {0, 10}, {10, 10}}, false},
		{"dented", []Point2D{{0, 0}, {10, 0}, {5, 2}, {0, 10}}, false},
		{"collinear", []Point2D{{0, 0}, {5, 0}, {10, 0}, {0, 10}}, false},
		{"too few", []Point2D{{0, 0}, {1, 1}}, false},
	}
	for _, tt := range tests {
		if got := IsConvex(tt.quad); got != tt.want {
			t.Errorf("%s: IsConvex = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestSignedArea(t *testing.T) {
	sq := []Point2D{{0, 0}, {10, 0}, {10, 10}, {0, 10}}
	if a := SignedArea(sq); a != 100 {
		t.Errorf("SignedArea = %v, want 100", a)
	}
	rev := []Point2D{{0, 10}, {10, 10}, {10, 0}, {0, 0}}
	if a := SignedArea(rev); a != -100 {
		t.Errorf("reversed SignedArea = %v, want -100", a)
	}
}
