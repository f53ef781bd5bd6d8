// Package projection maps geographic coordinates to screen pixels using the
// same cylindrical (Web-Mercator) warp the host map renders with. It is the
// geometric fallback for when the host's own projector cannot be reached.
package projection

import (
	"math"

	"github.com/transitlens/transitlens/internal/core/domain"
)

// metersPerDegreeLat is the length of one degree of latitude, and of one
// degree of longitude at the equator.
const metersPerDegreeLat = 111320.0

// mercY applies the Web-Mercator vertical warp to a latitude in degrees.
func mercY(lat float64) float64 {
	return math.Log(math.Tan(math.Pi/4 + lat*math.Pi/360))
}

// Project maps each point into the viewport's container rectangle: latitude
// through mercY then linear interpolation across the height, longitude
// linearly across the width. Pure and total — a degenerate viewport is
// treated as unknown and yields an all-nil result instead of NaN/Inf.
// Points outside the bounds still project, to coordinates outside the rect.
func Project(points []domain.GeoPoint, vp domain.Viewport) []*domain.ProjectedPoint {
	out := make([]*domain.ProjectedPoint, len(points))
	if vp.Degenerate() {
		return out
	}

	top := mercY(vp.Bounds.North)
	bottom := mercY(vp.Bounds.South)
	ySpan := top - bottom
	if ySpan <= 0 || math.IsInf(ySpan, 0) || math.IsNaN(ySpan) {
		return out
	}

	rect := vp.ContainerRect
	for i, p := range points {
		x := rect.Left + (p.Lng-vp.Bounds.West)/vp.Bounds.LngSpan()*rect.Width
		y := rect.Top + (top-mercY(p.Lat))/ySpan*rect.Height
		if math.IsNaN(x) || math.IsNaN(y) || math.IsInf(x, 0) || math.IsInf(y, 0) {
			continue
		}
		out[i] = &domain.ProjectedPoint{X: x, Y: y}
	}
	return out
}

// PixelsPerMeter derives the overlay scale factor directly from the
// viewport: container width divided by the ground distance the longitude
// span covers at the viewport's centre latitude. ok is false when the
// viewport cannot support the computation.
func PixelsPerMeter(vp domain.Viewport) (float64, bool) {
	if vp.Degenerate() {
		return 0, false
	}
	widthMeters := vp.Bounds.LngSpan() * metersPerDegreeLat * math.Cos(vp.Bounds.MidLat()*math.Pi/180)
	if widthMeters <= 0 || math.IsNaN(widthMeters) {
		return 0, false
	}
	return vp.ContainerRect.Width / widthMeters, true
}

// PixelsPerMeterFromPoints infers the scale factor from two already
// projected points: their pixel distance over the ground distance implied by
// their longitude delta at that latitude. Used when no explicit viewport is
// available. A zero longitude delta aborts rather than dividing by it.
func PixelsPerMeterFromPoints(a, b domain.GeoPoint, pa, pb domain.ProjectedPoint) (float64, bool) {
	lngDelta := math.Abs(b.Lng - a.Lng)
	if lngDelta == 0 {
		return 0, false
	}
	meters := lngDelta * metersPerDegreeLat * math.Cos(a.Lat*math.Pi/180)
	if meters <= 0 || math.IsNaN(meters) {
		return 0, false
	}
	pixels := math.Hypot(pb.X-pa.X, pb.Y-pa.Y)
	return pixels / meters, true
}
