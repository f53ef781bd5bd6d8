package usecases_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/transitlens/transitlens/internal/core/domain"
	"github.com/transitlens/transitlens/internal/core/usecases"
)

// --- In-memory message bus ---

// memBus dispatches synchronously in the caller's goroutine, which keeps the
// protocol tests deterministic.
type memBus struct {
	mu       sync.Mutex
	handlers map[string][]func([]byte)
	sent     map[string]int
}

func newMemBus() *memBus {
	return &memBus{
		handlers: map[string][]func([]byte){},
		sent:     map[string]int{},
	}
}

func (b *memBus) Publish(ctx context.Context, kind string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	b.mu.Lock()
	b.sent[kind]++
	fns := append([]func([]byte){}, b.handlers[kind]...)
	b.mu.Unlock()
	for _, fn := range fns {
		fn(data)
	}
	return nil
}

func (b *memBus) Subscribe(kind string, handler func(data []byte)) (func(), error) {
	b.mu.Lock()
	b.handlers[kind] = append(b.handlers[kind], handler)
	b.mu.Unlock()
	return func() {}, nil
}

func (b *memBus) sentCount(kind string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sent[kind]
}

func dublinViewport() domain.Viewport {
	return domain.Viewport{
		Bounds:        domain.Bounds{North: 53.40, South: 53.30, East: -6.15, West: -6.35},
		ContainerRect: domain.Rect{Width: 800, Height: 600},
	}
}

// --- Tests ---

func TestBridgeService_ProjectPoints_RoundTrip(t *testing.T) {
	bus := newMemBus()
	bridge := usecases.NewBridgeService(bus)
	if err := bridge.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	// Answer projection requests like the page side would.
	_, _ = bus.Subscribe(domain.MsgProjectReq, func(data []byte) {
		var req domain.ProjectionRequest
		if err := json.Unmarshal(data, &req); err != nil {
			t.Errorf("bad request: %v", err)
			return
		}
		points := make([]*domain.ProjectedPoint, len(req.Points))
		for i := range req.Points {
			points[i] = &domain.ProjectedPoint{X: float64(i) * 10, Y: float64(i) * 20}
		}
		_ = bus.Publish(context.Background(), domain.MsgProjectResp, domain.ProjectionResponse{
			ID: req.ID, Status: domain.ProjectionOK, Points: points,
		})
	})

	pts, ok := bridge.ProjectPoints(context.Background(), []domain.GeoPoint{
		{Lat: 53.34, Lng: -6.26}, {Lat: 53.35, Lng: -6.25},
	})
	if !ok {
		t.Fatal("expected projection to succeed")
	}
	if len(pts) != 2 {
		t.Fatalf("expected 2 points, got %d", len(pts))
	}
	if pts[1].X != 10 || pts[1].Y != 20 {
		t.Errorf("unexpected second point: %+v", pts[1])
	}
}

func TestBridgeService_ProjectPoints_Timeout(t *testing.T) {
	bus := newMemBus()
	bridge := usecases.NewBridgeService(bus, usecases.WithProjectionTimeout(50*time.Millisecond))
	if err := bridge.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	// Nobody answers.
	start := time.Now()
	_, ok := bridge.ProjectPoints(context.Background(), []domain.GeoPoint{{Lat: 53.34, Lng: -6.26}})
	elapsed := time.Since(start)

	if ok {
		t.Fatal("expected timeout failure")
	}
	if elapsed < 50*time.Millisecond {
		t.Errorf("returned before the deadline: %v", elapsed)
	}
	if elapsed > 500*time.Millisecond {
		t.Errorf("took far longer than the deadline: %v", elapsed)
	}
}

func TestBridgeService_ProjectPoints_ErrorStatus(t *testing.T) {
	bus := newMemBus()
	bridge := usecases.NewBridgeService(bus)
	if err := bridge.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	_, _ = bus.Subscribe(domain.MsgProjectReq, func(data []byte) {
		var req domain.ProjectionRequest
		_ = json.Unmarshal(data, &req)
		_ = bus.Publish(context.Background(), domain.MsgProjectResp, domain.ProjectionResponse{
			ID: req.ID, Status: domain.ProjectionError,
			Points: make([]*domain.ProjectedPoint, len(req.Points)),
		})
	})

	_, ok := bridge.ProjectPoints(context.Background(), []domain.GeoPoint{{Lat: 53.34, Lng: -6.26}})
	if ok {
		t.Fatal("error status must report failure so the caller can fall back")
	}
}

func TestBridgeService_ProjectPoints_AllOffCanvas(t *testing.T) {
	bus := newMemBus()
	bridge := usecases.NewBridgeService(bus)
	if err := bridge.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	_, _ = bus.Subscribe(domain.MsgProjectReq, func(data []byte) {
		var req domain.ProjectionRequest
		_ = json.Unmarshal(data, &req)
		_ = bus.Publish(context.Background(), domain.MsgProjectResp, domain.ProjectionResponse{
			ID: req.ID, Status: domain.ProjectionOK,
			Points: make([]*domain.ProjectedPoint, len(req.Points)),
		})
	})

	pts, ok := bridge.ProjectPoints(context.Background(), []domain.GeoPoint{{Lat: 0, Lng: 0}})
	if !ok {
		t.Fatal("all-nil with ok status is a valid outcome, not a failure")
	}
	if pts[0] != nil {
		t.Errorf("expected nil point, got %+v", pts[0])
	}
}

func TestBridgeService_InstanceAvailable(t *testing.T) {
	bus := newMemBus()
	bridge := usecases.NewBridgeService(bus)
	if err := bridge.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	if bridge.InstanceAvailable() {
		t.Fatal("no map should be known at start")
	}
	_ = bus.Publish(context.Background(), domain.MsgMapFound, domain.MapFound{Strategy: "globals"})
	if !bridge.InstanceAvailable() {
		t.Fatal("map.found must flip availability on")
	}
	_ = bus.Publish(context.Background(), domain.MsgMapNotFound, struct{}{})
	if bridge.InstanceAvailable() {
		t.Fatal("map.notfound must flip availability off")
	}
}

func TestBridgeService_Viewport_PushedWinsOverURL(t *testing.T) {
	bus := newMemBus()
	bridge := usecases.NewBridgeService(bus)
	if err := bridge.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	_ = bus.Publish(context.Background(), domain.MsgPageNavigated, domain.PageNavigated{
		URL:           "https://listings.example/search?neLat=53.40&neLng=-6.15&swLat=53.30&swLng=-6.35",
		ContainerRect: domain.Rect{Width: 800, Height: 600},
	})
	_ = bus.Publish(context.Background(), domain.MsgViewport, dublinViewport())

	vp := bridge.Viewport()
	if vp == nil {
		t.Fatal("expected a viewport")
	}
	if vp.Bounds.North != 53.40 || vp.ContainerRect.Width != 800 {
		t.Errorf("unexpected viewport: %+v", vp)
	}
}

func TestBridgeService_Viewport_URLFallback(t *testing.T) {
	bus := newMemBus()
	bridge := usecases.NewBridgeService(bus)
	if err := bridge.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	// Navigation without any viewport push: the URL's bounds parameters plus
	// the measured container rect are all the bridge has.
	_ = bus.Publish(context.Background(), domain.MsgPageNavigated, domain.PageNavigated{
		URL:           "https://listings.example/search?neLat=53.41&neLng=-6.10&swLat=53.28&swLng=-6.40",
		ContainerRect: domain.Rect{Width: 1024, Height: 768},
	})

	vp := bridge.Viewport()
	if vp == nil {
		t.Fatal("expected URL-derived viewport")
	}
	if vp.Bounds.North != 53.41 || vp.Bounds.West != -6.40 {
		t.Errorf("unexpected bounds: %+v", vp.Bounds)
	}
	if vp.ContainerRect.Width != 1024 {
		t.Errorf("unexpected rect: %+v", vp.ContainerRect)
	}
}

func TestBridgeService_Viewport_NavigationClearsStale(t *testing.T) {
	bus := newMemBus()
	bridge := usecases.NewBridgeService(bus)
	if err := bridge.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	_ = bus.Publish(context.Background(), domain.MsgViewport, dublinViewport())
	if bridge.Viewport() == nil {
		t.Fatal("expected pushed viewport")
	}

	// Navigating to a URL without bounds parameters leaves nothing usable.
	_ = bus.Publish(context.Background(), domain.MsgPageNavigated, domain.PageNavigated{
		URL:           "https://listings.example/about",
		ContainerRect: domain.Rect{Width: 800, Height: 600},
	})
	if bridge.Viewport() != nil {
		t.Fatal("stale viewport must not survive a navigation")
	}
}

func TestBridgeService_Viewport_IncompleteURLParams(t *testing.T) {
	bus := newMemBus()
	bridge := usecases.NewBridgeService(bus)
	if err := bridge.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	_ = bus.Publish(context.Background(), domain.MsgPageNavigated, domain.PageNavigated{
		URL:           "https://listings.example/search?neLat=53.41&neLng=-6.10",
		ContainerRect: domain.Rect{Width: 800, Height: 600},
	})
	if bridge.Viewport() != nil {
		t.Fatal("partial bounds parameters must not produce a viewport")
	}
}
