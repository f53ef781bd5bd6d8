// Package render composes projected transit geometry into an SVG overlay
// document sized to the host map's container rectangle.
package render

import (
	"bytes"
	"fmt"

	svg "github.com/ajstarks/svgo/float"

	"github.com/transitlens/transitlens/internal/core/domain"
)

// Canvas is one overlay drawing surface. Output is produced once via
// String(); a render cycle always builds a fresh Canvas and replaces the
// previous document wholesale.
type Canvas struct {
	buf    bytes.Buffer
	svg    *svg.SVG
	closed bool
}

// NewCanvas opens an SVG document covering the container rectangle.
func NewCanvas(rect domain.Rect) *Canvas {
	c := &Canvas{}
	c.svg = svg.New(&c.buf)
	c.svg.Start(rect.Width, rect.Height)
	return c
}

// OpenGroup starts a <g> element with the given raw attributes.
func (c *Canvas) OpenGroup(attrs ...string) { c.svg.Group(attrs...) }

// CloseGroup ends the innermost open group.
func (c *Canvas) CloseGroup() { c.svg.Gend() }

// Polyline draws a projected line, splitting it into separate segments
// around vertices whose projection failed so a gap never turns into a
// straight line across the map.
func (c *Canvas) Polyline(pts []*domain.ProjectedPoint, style string) {
	var xs, ys []float64
	flush := func() {
		if len(xs) >= 2 {
			c.svg.Polyline(xs, ys, style)
		}
		xs, ys = nil, nil
	}
	for _, p := range pts {
		if p == nil {
			flush()
			continue
		}
		xs = append(xs, p.X)
		ys = append(ys, p.Y)
	}
	flush()
}

// Marker draws one station/stop dot with a hover label. The group carries
// the marker's name so the page shim can report pointer events against it.
func (c *Canvas) Marker(x, y, r float64, style, name, label string) {
	c.svg.Group(fmt.Sprintf(`class="tl-marker" data-name=%q`, name))
	c.svg.Title(label)
	c.svg.Circle(x, y, r, style)
	c.svg.Gend()
}

// Ring draws one dashed walking-radius circle with its minute label sitting
// just above the top of the ring.
func (c *Canvas) Ring(x, y, r float64, label string) {
	c.svg.Circle(x, y, r, RingStyle())
	c.svg.Text(x, y-r-4, label, ringLabelStyle)
}

// String closes the document and returns its markup.
func (c *Canvas) String() string {
	if !c.closed {
		c.svg.End()
		c.closed = true
	}
	return c.buf.String()
}
