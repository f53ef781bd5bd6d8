package domain

// GeoPoint represents a geographic coordinate (WGS 84).
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Bounds represents the geographic bounding box of the visible map area,
// in degrees.
type Bounds struct {
	North float64 `json:"north"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	West  float64 `json:"west"`
}

// LatSpan returns the latitude extent in degrees.
func (b Bounds) LatSpan() float64 { return b.North - b.South }

// LngSpan returns the longitude extent in degrees.
func (b Bounds) LngSpan() float64 { return b.East - b.West }

// MidLat returns the latitude of the box centre.
func (b Bounds) MidLat() float64 { return (b.North + b.South) / 2 }

// Degenerate reports whether the box has a zero or inverted span and
// therefore cannot support projection.
func (b Bounds) Degenerate() bool {
	return b.LatSpan() <= 0 || b.LngSpan() <= 0
}

// Rect is the on-screen pixel rectangle of the host map container.
type Rect struct {
	Top    float64 `json:"top"`
	Left   float64 `json:"left"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Degenerate reports whether the rectangle has no drawable area.
func (r Rect) Degenerate() bool {
	return r.Width <= 0 || r.Height <= 0
}

// Viewport is a snapshot of the visible geographic area plus its on-screen
// pixel rectangle. Viewports are replaced wholesale on every update and never
// partially mutated.
type Viewport struct {
	Bounds        Bounds `json:"bounds"`
	ContainerRect Rect   `json:"container_rect"`
}

// Degenerate reports whether either half of the viewport is unusable.
func (v Viewport) Degenerate() bool {
	return v.Bounds.Degenerate() || v.ContainerRect.Degenerate()
}

// ProjectedPoint is a screen-pixel position. Projection results are carried
// as []*ProjectedPoint in one-to-one index correspondence with the input
// GeoPoints; a nil entry means projection failed for that point.
type ProjectedPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}
