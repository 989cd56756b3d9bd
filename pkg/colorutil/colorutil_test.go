package colorutil

import "testing"

func TestMarker(t *testing.T) {
	if Marker(false, false) != Red || Marker(false, true) != Red {
		t.Error("flagged corners should be red")
	}
	if Marker(true, true) != Yellow {
		t.Error("circle fallback should be yellow")
	}
	if Marker(true, false) != Green {
		t.Error("accepted matches should be green")
	}
}

func TestWithAlpha(t *testing.T) {
	c := WithAlpha(Green, 128)
	if c.R != Green.R || c.G != Green.G || c.B != Green.B || c.A != 128 {
		t.Errorf("WithAlpha = %+v", c)
	}
}
