package locator_test

import (
	"errors"
	"testing"

	"github.com/transitlens/transitlens/internal/core/domain"
	"github.com/transitlens/transitlens/internal/locator"
)

// fakeHandle satisfies ports.MapHandle. dead handles fail the liveness call.
type fakeHandle struct {
	name string
	dead bool
}

func (f *fakeHandle) GetCenter() (domain.GeoPoint, error) {
	if f.dead {
		return domain.GeoPoint{}, errors.New("map destroyed")
	}
	return domain.GeoPoint{Lat: 53.35, Lng: -6.26}, nil
}
func (f *fakeHandle) GetBounds() (domain.Bounds, error) { return domain.Bounds{}, nil }
func (f *fakeHandle) ContainerRect() (domain.Rect, error) {
	return domain.Rect{Width: 800, Height: 600}, nil
}
func (f *fakeHandle) Project(p domain.GeoPoint) (*domain.ProjectedPoint, error) {
	return &domain.ProjectedPoint{}, nil
}
func (f *fakeHandle) On(event string, fn func()) error { return nil }

func emptySnapshot() *domain.PageSnapshot {
	return &domain.PageSnapshot{
		URL:     "https://listings.example.ie/search?neLat=53.35&neLng=-6.24&swLat=53.34&swLng=-6.27",
		Globals: map[string]any{},
	}
}

func TestTryAll_NothingFound(t *testing.T) {
	_, _, ok := locator.TryAll(locator.DefaultStrategies(), emptySnapshot())
	if ok {
		t.Fatal("expected no handle in an empty snapshot")
	}
}

func TestTryAll_NilSnapshot(t *testing.T) {
	if _, _, ok := locator.TryAll(locator.DefaultStrategies(), nil); ok {
		t.Fatal("expected no handle from a nil snapshot")
	}
}

func TestConstructorCaptureWinsAndPrefersNewest(t *testing.T) {
	snap := emptySnapshot()
	old := &fakeHandle{name: "old"}
	newest := &fakeHandle{name: "new"}
	snap.Captured = []any{old, newest}
	snap.Globals["map"] = &fakeHandle{name: "global"}

	h, strategy, ok := locator.TryAll(locator.DefaultStrategies(), snap)
	if !ok {
		t.Fatal("expected a handle")
	}
	if strategy != "constructor-capture" {
		t.Errorf("strategy = %q, want constructor-capture", strategy)
	}
	if h.(*fakeHandle).name != "new" {
		t.Errorf("expected newest captured handle, got %q", h.(*fakeHandle).name)
	}
}

func TestConstructorCaptureSkipsDeadHandles(t *testing.T) {
	snap := emptySnapshot()
	live := &fakeHandle{name: "live"}
	snap.Captured = []any{live, &fakeHandle{name: "torn-down", dead: true}}

	h, _, ok := locator.TryAll(locator.DefaultStrategies(), snap)
	if !ok {
		t.Fatal("expected a handle")
	}
	if h.(*fakeHandle).name != "live" {
		t.Errorf("expected the earlier live handle, got %q", h.(*fakeHandle).name)
	}
}

func TestComponentTreeWalksUpward(t *testing.T) {
	want := &fakeHandle{name: "in-ancestor"}
	root := &domain.ComponentInstance{
		Name:  "SearchPage",
		Props: map[string]any{"mapRef": want},
	}
	leaf := &domain.ComponentInstance{
		Name:   "MapPane",
		Props:  map[string]any{"zoom": 14},
		Parent: root,
	}

	snap := emptySnapshot()
	snap.ContainerComponent = leaf

	h, strategy, ok := locator.TryAll(locator.DefaultStrategies(), snap)
	if !ok || strategy != "component-tree" {
		t.Fatalf("ok=%v strategy=%q, want component-tree hit", ok, strategy)
	}
	if h != want {
		t.Error("wrong handle returned")
	}
}

func TestElementPropsScansCanvasBeforeContainer(t *testing.T) {
	onCanvas := &fakeHandle{name: "canvas"}
	snap := emptySnapshot()
	snap.Canvas = &domain.PageNode{Tag: "canvas", Props: map[string]any{"__owner": onCanvas}}
	snap.Container = &domain.PageNode{Tag: "div", Props: map[string]any{"__owner": &fakeHandle{name: "container"}}}

	h, strategy, ok := locator.TryAll(locator.DefaultStrategies(), snap)
	if !ok || strategy != "element-props" {
		t.Fatalf("ok=%v strategy=%q, want element-props hit", ok, strategy)
	}
	if h != onCanvas {
		t.Error("expected the canvas-attached handle to win")
	}
}

func TestGlobalsAndRegistryScan(t *testing.T) {
	snap := emptySnapshot()
	snap.Globals["unrelated"] = 42
	snap.Globals["gmap"] = &fakeHandle{name: "global"}

	h, strategy, ok := locator.TryAll(locator.DefaultStrategies(), snap)
	if !ok || strategy != "globals" {
		t.Fatalf("ok=%v strategy=%q, want globals hit", ok, strategy)
	}
	if h.(*fakeHandle).name != "global" {
		t.Error("wrong handle")
	}

	// Registry is the last resort within the globals strategy.
	snap2 := emptySnapshot()
	reg := &fakeHandle{name: "registry"}
	snap2.Registry = []any{reg}
	h2, _, ok := locator.TryAll(locator.DefaultStrategies(), snap2)
	if !ok || h2 != reg {
		t.Fatal("expected registry handle")
	}
}

func TestNonHandleValuesAreIgnored(t *testing.T) {
	snap := emptySnapshot()
	snap.Globals["map"] = "not a map"
	snap.Container = &domain.PageNode{Tag: "div", Props: map[string]any{"data": []int{1, 2}}}

	if _, _, ok := locator.TryAll(locator.DefaultStrategies(), snap); ok {
		t.Fatal("expected no handle from junk values")
	}
}
