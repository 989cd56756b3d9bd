package fiducial

import (
	"image"
	"math"
	"testing"
)

func TestCropWindows(t *testing.T) {
	tests := []struct {
		name   string
		w, h   int
		size   int
		stripe float64
		sides  Sides
		want   [4]image.Rectangle
	}{
		{
			name: "no stripe",
			w:    10000, h: 8000, size: 2500,
			sides: Sides{},
			want: [4]image.Rectangle{
				image.Rect(0, 0, 2500, 2500),
				image.Rect(7500, 0, 10000, 2500),
				image.Rect(7500, 5500, 10000, 8000),
				image.Rect(0, 5500, 2500, 8000),
			},
		},
		{
			name: "right and bottom stripes",
			w:    10000, h: 8000, size: 2500, stripe: 0.05,
			sides: Sides{SideRight: true, SideBottom: true},
			want: [4]image.Rectangle{
				image.Rect(0, 0, 2500, 2500),
				image.Rect(7000, 0, 9500, 2500),
				image.Rect(7000, 5100, 9500, 7600),
				image.Rect(0, 5100, 2500, 7600),
			},
		},
		{
			name: "top and left stripes round",
			w:    1001, h: 999, size: 300, stripe: 0.015,
			sides: Sides{SideTop: true, SideLeft: true},
			want: [4]image.Rectangle{
				image.Rect(15, 15, 315, 315),
				image.Rect(701, 15, 1001, 315),
				image.Rect(701, 699, 1001, 999),
				image.Rect(15, 699, 315, 999),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CropWindows(tt.w, tt.h, tt.size, tt.stripe, tt.sides)
			for _, c := range Corners {
				if got[c] != tt.want[c] {
					t.Errorf("%s window = %v, want %v", c, got[c], tt.want[c])
				}
			}
		})
	}
}

// Windows stay S x S and inside the image whenever the stripe offset is
// smaller than the slack (dimension - S) / 2 on every side.
func TestCropWindowsBounds(t *testing.T) {
	all := Sides{SideTop: true, SideLeft: true, SideRight: true, SideBottom: true}
	sideSets := []Sides{{}, {SideRight: true}, {SideRight: true, SideBottom: true}, all}

	for _, dims := range [][2]int{{3000, 3000}, {12000, 11000}, {6001, 7333}} {
		w, h := dims[0], dims[1]
		bounds := image.Rect(0, 0, w, h)
		for _, size := range []int{100, 900, 2500} {
			for p := 0.0; p <= 0.2001; p += 0.01 {
				if p*float64(w) >= float64(w-size)/2 || p*float64(h) >= float64(h-size)/2 {
					continue
				}
				for _, sides := range sideSets {
					for _, c := range Corners {
						win := CropWindows(w, h, size, p, sides)[c]
						if win.Dx() != size || win.Dy() != size {
							t.Fatalf("%dx%d S=%d p=%.2f %v %s: window %v not %dx%d", w, h, size, p, sides, c, win, size, size)
						}
						if !win.In(bounds) {
							t.Fatalf("%dx%d S=%d p=%.2f %v %s: window %v outside image", w, h, size, p, sides, c, win)
						}
					}
				}
			}
		}
	}
}

func TestCropWindowsClipsOversizedCrop(t *testing.T) {
	got := CropWindows(400, 300, 500, 0, Sides{})
	bounds := image.Rect(0, 0, 400, 300)
	for _, c := range Corners {
		if !got[c].In(bounds) {
			t.Errorf("%s window %v outside %v", c, got[c], bounds)
		}
	}
}

func TestRetryParams(t *testing.T) {
	p := DefaultParams().WithCrop(2500, 0.01, Sides{})
	size, stripe := p.retry()
	if size != 2900 {
		t.Errorf("retry size = %d, want 2900", size)
	}
	if stripe != 0 {
		t.Errorf("retry stripe = %v, want 0 (floored)", stripe)
	}

	p = p.WithCrop(2000, 0.08, Sides{})
	_, stripe = p.retry()
	if math.Abs(stripe-0.06) > 1e-12 {
		t.Errorf("retry stripe = %v, want 0.06", stripe)
	}
}

func TestParseSides(t *testing.T) {
	sides, err := ParseSides("right, bottom")
	if err != nil {
		t.Fatalf("ParseSides: %v", err)
	}
	if !sides[SideRight] || !sides[SideBottom] || sides[SideTop] || sides[SideLeft] {
		t.Errorf("ParseSides = %v", sides)
	}
	if got := sides.String(); got != "right, bottom" {
		t.Errorf("String() = %q", got)
	}
	if _, err := ParseSides("right, middle"); err == nil {
		t.Error("expected error for unknown side")
	}
	if s, err := ParseSides(""); err != nil || len(s) != 0 {
		t.Errorf("ParseSides(\"\") = %v, %v", s, err)
	}
}

func TestParseCorner(t *testing.T) {
	for _, c := range Corners {
		got, err := ParseCorner(c.String())
		if err != nil || got != c {
			t.Errorf("ParseCorner(%q) = %v, %v", c.String(), got, err)
		}
	}
	if _, err := ParseCorner("middle"); err == nil {
		t.Error("expected error for unknown corner")
	}
}
