package usecases

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/transitlens/transitlens/internal/core/domain"
	"github.com/transitlens/transitlens/internal/core/ports"
	"github.com/transitlens/transitlens/internal/pkg/metrics"
	"github.com/transitlens/transitlens/internal/pkg/projection"
	"github.com/transitlens/transitlens/internal/render"
)

// ViewportBridge is what the renderer needs from the Viewport Bridge.
type ViewportBridge interface {
	InstanceAvailable() bool
	Viewport() *domain.Viewport
	ProjectPoints(ctx context.Context, points []domain.GeoPoint) ([]*domain.ProjectedPoint, bool)
}

// Marker is one rendered station/stop dot, kept so hover events can be
// resolved back to a map position for the walking-radius rings.
type Marker struct {
	Name string
	Mode domain.TransitMode
	Line string
	X, Y float64
}

// RenderService composes the overlay SVG. Rendering is idempotent: the same
// settings against the same viewport produce byte-identical markup, and
// each render replaces the previous document wholesale.
type RenderService struct {
	geometry ports.GeometrySource
	bridge   ViewportBridge

	mu        sync.Mutex
	output    string
	markers   []Marker
	rect      domain.Rect
	scale     float64
	scaleOK   bool
	settings  domain.LayerSettings
	listeners map[int]func(svg string)
	nextID    int
}

// NewRenderService creates a RenderService.
func NewRenderService(geometry ports.GeometrySource, bridge ViewportBridge) *RenderService {
	return &RenderService{
		geometry:  geometry,
		bridge:    bridge,
		listeners: map[int]func(string){},
	}
}

// Output returns the current overlay markup, empty when nothing is drawn.
func (s *RenderService) Output() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.output
}

// OnUpdate registers a listener invoked with the new markup after every
// render (including clears). It returns an unregister function.
func (s *RenderService) OnUpdate(fn func(svg string)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// Render rebuilds the overlay for the given settings snapshot. Failures
// clear prior output rather than leaving a partially wrong overlay: no
// overlay beats a wrong one.
func (s *RenderService) Render(ctx context.Context, settings domain.LayerSettings) error {
	started := time.Now()
	defer func() {
		metrics.RenderDuration.Observe(time.Since(started).Seconds())
	}()
	metrics.RendersTotal.Inc()

	ds, err := s.geometry.Load(ctx)
	if err != nil {
		s.clear(settings)
		metrics.RendersSkipped.WithLabelValues("data_load").Inc()
		return fmt.Errorf("load transit dataset: %w", err)
	}

	if !settings.Enabled {
		s.clear(settings)
		return nil
	}

	lines, stations := collectFeatures(ds, settings)
	batch, offsets := flattenPoints(lines, stations)
	if len(batch) == 0 {
		s.clear(settings)
		return nil
	}

	pts, vp, ok := s.resolvePixels(ctx, batch)
	if !ok {
		s.clear(settings)
		metrics.RendersSkipped.WithLabelValues("no_viewport").Inc()
		return nil
	}
	if !anyProjected(pts) {
		// Either everything is off-canvas or the viewport degenerated;
		// both mean draw nothing, never guess.
		s.clear(settings)
		metrics.RendersSkipped.WithLabelValues("no_points").Inc()
		return nil
	}

	rect := outputRect(vp, pts)
	scale, scaleOK := s.resolveScale(vp, batch, pts)

	canvas := render.NewCanvas(rect)
	canvas.OpenGroup(fmt.Sprintf(`id="transitlens" opacity="%g"`, float64(settings.Opacity)/100))

	// Fixed z-order: rail geometry sits beneath light rail.
	markers := make([]Marker, 0, len(stations))
	for _, mode := range []domain.TransitMode{domain.ModeRail, domain.ModeLightRail} {
		for i, f := range lines {
			if f.Mode != mode {
				continue
			}
			seg := pts[offsets[i] : offsets[i]+len(f.Points)]
			canvas.Polyline(seg, render.LineStyle(f.Mode, f.Line))
		}
	}
	for _, mode := range []domain.TransitMode{domain.ModeRail, domain.ModeLightRail} {
		for i, f := range stations {
			if f.Mode != mode {
				continue
			}
			pp := pts[offsets[len(lines)+i]]
			if pp == nil {
				continue
			}
			style, r := render.MarkerStyle(f.Mode, f.Line)
			canvas.Marker(pp.X, pp.Y, r, style, f.Name, f.Mode.Label()+": "+f.Name)
			markers = append(markers, Marker{Name: f.Name, Mode: f.Mode, Line: f.Line, X: pp.X, Y: pp.Y})
		}
	}
	canvas.CloseGroup()

	s.mu.Lock()
	s.output = canvas.String()
	s.markers = markers
	s.rect = rect
	s.scale = scale
	s.scaleOK = scaleOK
	s.settings = settings
	out := s.output
	fns := listenerSnapshot(s.listeners)
	s.mu.Unlock()

	notify(fns, out)
	return nil
}

// HasMarker reports whether the named station/stop is part of the current
// overlay.
func (s *RenderService) HasMarker(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.markers {
		if s.markers[i].Name == name {
			return true
		}
	}
	return false
}

// RenderRings returns the walking-radius overlay for the named marker, or
// empty markup when the marker is unknown, no ring is enabled, or no scale
// factor could be computed. Exactly one marker's rings exist at a time; the
// caller replaces any previous set with this result.
func (s *RenderService) RenderRings(name string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.scaleOK || s.scale <= 0 {
		return ""
	}
	var marker *Marker
	for i := range s.markers {
		if s.markers[i].Name == name {
			marker = &s.markers[i]
			break
		}
	}
	if marker == nil {
		return ""
	}

	var enabled []domain.WalkingRing
	for _, ring := range domain.WalkingRings {
		if s.settings.RingEnabled(ring.Minutes) {
			enabled = append(enabled, ring)
		}
	}
	if len(enabled) == 0 {
		return ""
	}

	canvas := render.NewCanvas(s.rect)
	canvas.OpenGroup(`id="transitlens-rings"`)
	for _, ring := range enabled {
		canvas.Ring(marker.X, marker.Y, ring.Meters*s.scale, fmt.Sprintf("%d min", ring.Minutes))
	}
	canvas.CloseGroup()
	return canvas.String()
}

func (s *RenderService) clear(settings domain.LayerSettings) {
	s.mu.Lock()
	s.output = ""
	s.markers = nil
	s.scaleOK = false
	s.settings = settings
	fns := listenerSnapshot(s.listeners)
	s.mu.Unlock()
	notify(fns, "")
}

// resolvePixels prefers the host map's own projector; the geometric
// approximation only runs when the host path is unavailable or failed, never
// when it succeeded with every point off-canvas.
func (s *RenderService) resolvePixels(ctx context.Context, batch []domain.GeoPoint) ([]*domain.ProjectedPoint, *domain.Viewport, bool) {
	if s.bridge.InstanceAvailable() {
		if pts, ok := s.bridge.ProjectPoints(ctx, batch); ok {
			return pts, s.bridge.Viewport(), true
		}
		slog.Debug("host projection unavailable for this render, falling back")
	}
	vp := s.bridge.Viewport()
	if vp == nil || vp.Degenerate() {
		return nil, nil, false
	}
	return projection.Project(batch, *vp), vp, true
}

// resolveScale prefers the explicit viewport; without one it infers the
// scale from two projected points with distinct longitudes.
func (s *RenderService) resolveScale(vp *domain.Viewport, batch []domain.GeoPoint, pts []*domain.ProjectedPoint) (float64, bool) {
	if vp != nil {
		if ppm, ok := projection.PixelsPerMeter(*vp); ok {
			return ppm, true
		}
	}
	first := -1
	for i, pp := range pts {
		if pp == nil {
			continue
		}
		if first < 0 {
			first = i
			continue
		}
		if ppm, ok := projection.PixelsPerMeterFromPoints(batch[first], batch[i], *pts[first], *pp); ok {
			return ppm, true
		}
	}
	return 0, false
}

// collectFeatures gathers only the layers the settings enable. Rail
// features additionally pass the DART/other sub-toggles before collection.
func collectFeatures(ds *domain.Dataset, settings domain.LayerSettings) (lines, stations []domain.TransitFeature) {
	railVisible := func(f domain.TransitFeature) bool {
		if f.Line == domain.DartLine {
			return settings.RailDart
		}
		return settings.RailOther
	}

	if settings.RailLines {
		for _, f := range ds.RailLines {
			if railVisible(f) {
				lines = append(lines, f)
			}
		}
	}
	if settings.LightRailLines {
		lines = append(lines, ds.LightRailLines...)
	}
	if settings.RailStations {
		for _, f := range ds.RailStations {
			if railVisible(f) {
				stations = append(stations, f)
			}
		}
	}
	if settings.LightRailStops {
		stations = append(stations, ds.LightRailStops...)
	}
	return lines, stations
}

// flattenPoints builds one projection batch for all collected geometry and
// remembers each feature's offset into it. Line features occupy offsets
// [0,len(lines)); station features follow.
func flattenPoints(lines, stations []domain.TransitFeature) ([]domain.GeoPoint, []int) {
	offsets := make([]int, 0, len(lines)+len(stations))
	var batch []domain.GeoPoint
	for _, f := range lines {
		offsets = append(offsets, len(batch))
		batch = append(batch, f.Points...)
	}
	for _, f := range stations {
		offsets = append(offsets, len(batch))
		batch = append(batch, f.Location)
	}
	return batch, offsets
}

func anyProjected(pts []*domain.ProjectedPoint) bool {
	for _, p := range pts {
		if p != nil {
			return true
		}
	}
	return false
}

// outputRect sizes the SVG document: the viewport's container rect when one
// exists, otherwise the extent of the projected points.
func outputRect(vp *domain.Viewport, pts []*domain.ProjectedPoint) domain.Rect {
	if vp != nil && !vp.ContainerRect.Degenerate() {
		return vp.ContainerRect
	}
	var maxX, maxY float64
	for _, p := range pts {
		if p == nil {
			continue
		}
		if p.X > maxX {
			maxX = p.X
		}
		if p.Y > maxY {
			maxY = p.Y
		}
	}
	return domain.Rect{Width: maxX, Height: maxY}
}

func listenerSnapshot(m map[int]func(string)) []func(string) {
	fns := make([]func(string), 0, len(m))
	for _, fn := range m {
		fns = append(fns, fn)
	}
	return fns
}

func notify(fns []func(string), svg string) {
	for _, fn := range fns {
		fn(svg)
	}
}
