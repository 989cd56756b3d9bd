// Package fiducial locates the four corner fiducial marks of scanned aerial
// photographs by template matching, with a widened retry and a Hough-circle
// fallback before a corner is handed to manual review.
package fiducial

import (
	"fmt"
	"strings"
)

// Corner identifies one of the four photo corners.
type Corner int

const (
	TopLeft Corner = iota
	TopRight
	BotRight
	BotLeft
)

// Corners lists the corners in results-table order (X1..X4).
var Corners = [4]Corner{TopLeft, TopRight, BotRight, BotLeft}

func (c Corner) String() string {
	switch c {
	case TopLeft:
		return "top_left"
	case TopRight:
		return "top_right"
	case BotRight:
		return "bot_right"
	case BotLeft:
		return "bot_left"
	default:
		return fmt.Sprintf("corner(%d)", int(c))
	}
}

// ParseCorner parses the names produced by String.
func ParseCorner(s string) (Corner, error) {
	for _, c := range Corners {
		if strings.EqualFold(strings.TrimSpace(s), c.String()) {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unknown corner %q", s)
}

// Side is a photo edge that may carry a non-image stripe.
type Side int

const (
	SideTop Side = iota
	SideLeft
	SideRight
	SideBottom
)

func (s Side) String() string {
	switch s {
	case SideTop:
		return "top"
	case SideLeft:
		return "left"
	case SideRight:
		return "right"
	case SideBottom:
		return "bottom"
	default:
		return "unknown"
	}
}

// Sides is a set of stripe edges.
type Sides map[Side]bool

// ParseSides parses a comma or space separated list such as "right, bottom".
func ParseSides(s string) (Sides, error) {
	sides := Sides{}
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' || r == ';' })
	for _, f := range fields {
		switch strings.ToLower(f) {
		case "top":
			sides[SideTop] = true
		case "left":
			sides[SideLeft] = true
		case "right":
			sides[SideRight] = true
		case "bottom", "bot":
			sides[SideBottom] = true
		default:
			return nil, fmt.Errorf("unknown stripe side %q", f)
		}
	}
	return sides, nil
}

func (s Sides) String() string {
	var names []string
	for _, side := range []Side{SideTop, SideLeft, SideRight, SideBottom} {
		if s[side] {
			names = append(names, side.String())
		}
	}
	return strings.Join(names, ", ")
}
