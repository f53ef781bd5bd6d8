// Package geodata loads the bundled transit geometry: four GeoJSON files
// covering Irish Rail lines and stations and Luas lines and stops.
package geodata

import (
	"context"
	"embed"
	"fmt"
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/transitlens/transitlens/internal/core/domain"
)

//go:embed assets/*.geojson
var assets embed.FS

// Source implements ports.GeometrySource over the embedded files. A
// successful load is cached for process lifetime; a failed load is retried
// on the next call.
type Source struct {
	mu     sync.Mutex
	cached *domain.Dataset
}

func NewSource() *Source {
	return &Source{}
}

// Load returns the bundled dataset, decoding it on first use.
func (s *Source) Load(ctx context.Context) (*domain.Dataset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cached != nil {
		return s.cached, nil
	}

	railLines, err := loadFile("assets/rail-lines.geojson", domain.ModeRail)
	if err != nil {
		return nil, err
	}
	railStations, err := loadFile("assets/rail-stations.geojson", domain.ModeRail)
	if err != nil {
		return nil, err
	}
	luasLines, err := loadFile("assets/luas-lines.geojson", domain.ModeLightRail)
	if err != nil {
		return nil, err
	}
	luasStops, err := loadFile("assets/luas-stops.geojson", domain.ModeLightRail)
	if err != nil {
		return nil, err
	}

	s.cached = &domain.Dataset{
		RailLines:      railLines,
		RailStations:   railStations,
		LightRailLines: luasLines,
		LightRailStops: luasStops,
	}
	return s.cached, nil
}

func loadFile(name string, mode domain.TransitMode) ([]domain.TransitFeature, error) {
	data, err := assets.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", name, err)
	}

	features := make([]domain.TransitFeature, 0, len(fc.Features))
	for i, f := range fc.Features {
		tf := domain.TransitFeature{
			Name: f.Properties.MustString("name", ""),
			Mode: mode,
			Line: f.Properties.MustString("line", ""),
		}
		switch g := f.Geometry.(type) {
		case orb.LineString:
			tf.Kind = domain.GeometryLine
			tf.Points = toGeoPoints(g)
		case orb.Point:
			tf.Kind = domain.GeometryPoint
			tf.Location = domain.GeoPoint{Lat: g.Lat(), Lng: g.Lon()}
			if tf.Name == "" {
				return nil, fmt.Errorf("%s: point feature %d has no name", name, i)
			}
		default:
			return nil, fmt.Errorf("%s: feature %d has unsupported geometry %T", name, i, g)
		}
		features = append(features, tf)
	}
	return features, nil
}

func toGeoPoints(ls orb.LineString) []domain.GeoPoint {
	pts := make([]domain.GeoPoint, len(ls))
	for i, p := range ls {
		pts[i] = domain.GeoPoint{Lat: p.Lat(), Lng: p.Lon()}
	}
	return pts
}
