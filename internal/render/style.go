package render

import (
	"fmt"

	"github.com/transitlens/transitlens/internal/core/domain"
)

// Overlay palette. DART gets its signature green; all other rail shares one
// base colour. Luas lines keep their branch colours.
const (
	dartColor     = "#00a05a"
	railBaseColor = "#55606c"
	luasRedColor  = "#cf2134"
	luasGreenCol  = "#159a6c"
	ringColor     = "#2a6df4"

	ringLabelStyle = `fill="#2a6df4" font-size="11" font-family="sans-serif" text-anchor="middle"`
)

// LineStyle returns the stroke attributes for a transit line.
func LineStyle(mode domain.TransitMode, line string) string {
	color := railBaseColor
	width := 3.0
	switch {
	case mode == domain.ModeRail && line == domain.DartLine:
		color, width = dartColor, 3.5
	case mode == domain.ModeLightRail && line == "Red":
		color, width = luasRedColor, 2.5
	case mode == domain.ModeLightRail && line == "Green":
		color, width = luasGreenCol, 2.5
	case mode == domain.ModeLightRail:
		width = 2.5
	}
	return fmt.Sprintf(`stroke="%s" stroke-width="%g" fill="none" stroke-linecap="round" stroke-linejoin="round"`, color, width)
}

// MarkerStyle returns the circle attributes and radius for a station dot.
func MarkerStyle(mode domain.TransitMode, line string) (string, float64) {
	fill := railBaseColor
	if line == domain.DartLine {
		fill = dartColor
	}
	r := 6.0
	if mode == domain.ModeLightRail {
		r = 4.5
	}
	style := fmt.Sprintf(`fill="%s" stroke="#ffffff" stroke-width="1.5" style="filter:drop-shadow(0 1px 2px rgba(0,0,0,0.45))"`, fill)
	return style, r
}

// RingStyle returns the dashed stroke attributes for a walking-radius ring.
func RingStyle() string {
	return fmt.Sprintf(`fill="none" stroke="%s" stroke-width="1.5" stroke-dasharray="6,4"`, ringColor)
}
