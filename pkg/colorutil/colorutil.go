// Package colorutil provides the overlay palette of the audit figures.
package colorutil

import "image/color"

// Overlay colors.
var (
	Black  = color.RGBA{R: 0, G: 0, B: 0, A: 255}
	White  = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	Red    = color.RGBA{R: 230, G: 30, B: 30, A: 255}
	Green  = color.RGBA{R: 20, G: 200, B: 60, A: 255}
	Yellow = color.RGBA{R: 255, G: 210, B: 0, A: 255}
	Gray   = color.RGBA{R: 160, G: 160, B: 160, A: 255}
)

// Marker returns the overlay color of a corner outcome: red when the corner
// needs review, yellow when it was placed by the circle fallback, green
// otherwise.
func Marker(accepted, fallback bool) color.RGBA {
	switch {
	case !accepted:
		return Red
	case fallback:
		return Yellow
	default:
		return Green
	}
}

// WithAlpha returns c with its opacity replaced by a.
func WithAlpha(c color.RGBA, a uint8) color.NRGBA {
	return color.NRGBA{R: c.R, G: c.G, B: c.B, A: a}
}
