package geodata_test

import (
	"context"
	"testing"

	"github.com/transitlens/transitlens/internal/core/domain"
	"github.com/transitlens/transitlens/internal/geodata"
)

func TestLoadBundledDataset(t *testing.T) {
	src := geodata.NewSource()
	ds, err := src.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if len(ds.RailLines) == 0 || len(ds.RailStations) == 0 ||
		len(ds.LightRailLines) == 0 || len(ds.LightRailStops) == 0 {
		t.Fatalf("expected all four collections populated, got %d/%d/%d/%d",
			len(ds.RailLines), len(ds.RailStations), len(ds.LightRailLines), len(ds.LightRailStops))
	}

	for _, f := range ds.RailLines {
		if f.Mode != domain.ModeRail || f.Kind != domain.GeometryLine {
			t.Errorf("rail line %q: mode=%s kind=%s", f.Name, f.Mode, f.Kind)
		}
		if len(f.Points) < 2 {
			t.Errorf("rail line %q: too few vertices", f.Name)
		}
	}

	// Every station/stop dot carries a non-empty name and exactly one mode.
	for _, f := range append(append([]domain.TransitFeature{}, ds.RailStations...), ds.LightRailStops...) {
		if f.Name == "" {
			t.Error("point feature with empty name")
		}
		if f.Kind != domain.GeometryPoint {
			t.Errorf("station %q: kind=%s", f.Name, f.Kind)
		}
		if f.Mode != domain.ModeRail && f.Mode != domain.ModeLightRail {
			t.Errorf("station %q: unknown mode %q", f.Name, f.Mode)
		}
	}

	// The rail dataset must contain both the DART label and others, so the
	// two sub-toggles are meaningful.
	var dart, other bool
	for _, f := range ds.RailStations {
		if f.Line == domain.DartLine {
			dart = true
		} else {
			other = true
		}
	}
	if !dart || !other {
		t.Errorf("rail stations must span DART and non-DART lines: dart=%v other=%v", dart, other)
	}
}

func TestLoadCachesDataset(t *testing.T) {
	src := geodata.NewSource()
	a, err := src.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	b, err := src.Load(context.Background())
	if err != nil {
		t.Fatalf("second load: %v", err)
	}
	if a != b {
		t.Error("expected second load to return the cached dataset")
	}
}
