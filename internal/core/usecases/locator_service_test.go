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

// --- Mocks ---

type fakeProbe struct {
	mu         sync.Mutex
	snapshotFn func(ctx context.Context) (*domain.PageSnapshot, error)
}

func (f *fakeProbe) Snapshot(ctx context.Context) (*domain.PageSnapshot, error) {
	f.mu.Lock()
	fn := f.snapshotFn
	f.mu.Unlock()
	if fn != nil {
		return fn(ctx)
	}
	return &domain.PageSnapshot{URL: "https://listings.example/search"}, nil
}

func (f *fakeProbe) setSnapshot(fn func(ctx context.Context) (*domain.PageSnapshot, error)) {
	f.mu.Lock()
	f.snapshotFn = fn
	f.mu.Unlock()
}

type fakeMapHandle struct {
	mu     sync.Mutex
	events []string
}

func (h *fakeMapHandle) GetCenter() (domain.GeoPoint, error) {
	return domain.GeoPoint{Lat: 53.35, Lng: -6.26}, nil
}

func (h *fakeMapHandle) GetBounds() (domain.Bounds, error) {
	return domain.Bounds{North: 53.40, South: 53.30, East: -6.15, West: -6.35}, nil
}

func (h *fakeMapHandle) ContainerRect() (domain.Rect, error) {
	return domain.Rect{Width: 800, Height: 600}, nil
}

func (h *fakeMapHandle) Project(p domain.GeoPoint) (*domain.ProjectedPoint, error) {
	return &domain.ProjectedPoint{X: p.Lng * -100, Y: p.Lat * 10}, nil
}

func (h *fakeMapHandle) On(event string, fn func()) error {
	h.mu.Lock()
	h.events = append(h.events, event)
	h.mu.Unlock()
	return nil
}

func (h *fakeMapHandle) hookedEvents() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string{}, h.events...)
}

// batchMapHandle answers whole projection batches in one call, like a handle
// living on the far side of the shim connection.
type batchMapHandle struct {
	fakeMapHandle
	mu         sync.Mutex
	batchCalls int
	pointCalls int
}

func (h *batchMapHandle) Project(p domain.GeoPoint) (*domain.ProjectedPoint, error) {
	h.mu.Lock()
	h.pointCalls++
	h.mu.Unlock()
	return h.fakeMapHandle.Project(p)
}

func (h *batchMapHandle) ProjectBatch(points []domain.GeoPoint) ([]*domain.ProjectedPoint, error) {
	h.mu.Lock()
	h.batchCalls++
	h.mu.Unlock()
	pts := make([]*domain.ProjectedPoint, len(points))
	for i, p := range points {
		pts[i] = &domain.ProjectedPoint{X: p.Lng * -100, Y: p.Lat * 10}
	}
	return pts, nil
}

func (h *batchMapHandle) calls() (int, int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.batchCalls, h.pointCalls
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// --- Tests ---

func TestLocatorService_NotFoundAfterBoundedPolling(t *testing.T) {
	bus := newMemBus()
	probe := &fakeProbe{} // snapshots never contain a map
	svc := usecases.NewLocatorService(bus, probe,
		usecases.WithDiscoveryInterval(time.Millisecond),
		usecases.WithMaxAttempts(3),
		usecases.WithURLPollInterval(10*time.Millisecond),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = svc.Run(ctx) }()

	waitFor(t, "map.notfound", func() bool {
		return bus.sentCount(domain.MsgMapNotFound) >= 1
	})
	if bus.sentCount(domain.MsgMapFound) != 0 {
		t.Error("map.found must not be published when nothing was found")
	}
}

func TestLocatorService_AdoptionFlow(t *testing.T) {
	bus := newMemBus()
	handle := &fakeMapHandle{}
	probe := &fakeProbe{}
	probe.setSnapshot(func(ctx context.Context) (*domain.PageSnapshot, error) {
		return &domain.PageSnapshot{
			URL:     "https://listings.example/search",
			Globals: map[string]any{"map": handle},
		}, nil
	})

	svc := usecases.NewLocatorService(bus, probe,
		usecases.WithDiscoveryInterval(time.Millisecond),
		usecases.WithMaxAttempts(3),
		usecases.WithURLPollInterval(time.Hour),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = svc.Run(ctx) }()

	waitFor(t, "map.found", func() bool {
		return bus.sentCount(domain.MsgMapFound) >= 1
	})
	waitFor(t, "viewport push", func() bool {
		return bus.sentCount(domain.MsgViewport) >= 1
	})

	// All four host-map events must be hooked.
	waitFor(t, "event hooks", func() bool {
		return len(handle.hookedEvents()) == 4
	})
}

func TestLocatorService_AnswersProjectionRequests(t *testing.T) {
	bus := newMemBus()
	handle := &fakeMapHandle{}
	probe := &fakeProbe{}
	probe.setSnapshot(func(ctx context.Context) (*domain.PageSnapshot, error) {
		return &domain.PageSnapshot{
			URL:     "https://listings.example/search",
			Globals: map[string]any{"map": handle},
		}, nil
	})

	svc := usecases.NewLocatorService(bus, probe,
		usecases.WithDiscoveryInterval(time.Millisecond),
		usecases.WithMaxAttempts(3),
		usecases.WithURLPollInterval(time.Hour),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = svc.Run(ctx) }()

	waitFor(t, "map.found", func() bool {
		return bus.sentCount(domain.MsgMapFound) >= 1
	})

	var (
		respMu sync.Mutex
		resp   *domain.ProjectionResponse
	)
	_, _ = bus.Subscribe(domain.MsgProjectResp, func(data []byte) {
		var r domain.ProjectionResponse
		if err := json.Unmarshal(data, &r); err != nil {
			t.Errorf("bad response: %v", err)
			return
		}
		respMu.Lock()
		resp = &r
		respMu.Unlock()
	})

	_ = bus.Publish(context.Background(), domain.MsgProjectReq, domain.ProjectionRequest{
		ID:     "req-1",
		Points: []domain.GeoPoint{{Lat: 53.34, Lng: -6.26}},
	})

	waitFor(t, "projection response", func() bool {
		respMu.Lock()
		defer respMu.Unlock()
		return resp != nil
	})
	respMu.Lock()
	defer respMu.Unlock()
	if resp.ID != "req-1" {
		t.Errorf("response must echo the request ID, got %q", resp.ID)
	}
	if resp.Status != domain.ProjectionOK {
		t.Errorf("expected ok status, got %q", resp.Status)
	}
	if len(resp.Points) != 1 || resp.Points[0] == nil {
		t.Fatalf("expected one projected point, got %+v", resp.Points)
	}
}

func TestLocatorService_ProjectsBatchesInOneCall(t *testing.T) {
	bus := newMemBus()
	handle := &batchMapHandle{}
	probe := &fakeProbe{}
	probe.setSnapshot(func(ctx context.Context) (*domain.PageSnapshot, error) {
		return &domain.PageSnapshot{
			URL:     "https://listings.example/search",
			Globals: map[string]any{"map": handle},
		}, nil
	})

	svc := usecases.NewLocatorService(bus, probe,
		usecases.WithDiscoveryInterval(time.Millisecond),
		usecases.WithMaxAttempts(3),
		usecases.WithURLPollInterval(time.Hour),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = svc.Run(ctx) }()

	waitFor(t, "map.found", func() bool {
		return bus.sentCount(domain.MsgMapFound) >= 1
	})

	var (
		respMu sync.Mutex
		resp   *domain.ProjectionResponse
	)
	_, _ = bus.Subscribe(domain.MsgProjectResp, func(data []byte) {
		var r domain.ProjectionResponse
		if err := json.Unmarshal(data, &r); err != nil {
			t.Errorf("bad response: %v", err)
			return
		}
		respMu.Lock()
		resp = &r
		respMu.Unlock()
	})

	_ = bus.Publish(context.Background(), domain.MsgProjectReq, domain.ProjectionRequest{
		ID: "req-3",
		Points: []domain.GeoPoint{
			{Lat: 53.32, Lng: -6.22}, {Lat: 53.35, Lng: -6.25}, {Lat: 53.39, Lng: -6.18},
		},
	})

	waitFor(t, "projection response", func() bool {
		respMu.Lock()
		defer respMu.Unlock()
		return resp != nil
	})

	batch, single := handle.calls()
	if batch != 1 {
		t.Errorf("three points must be projected in one batch call, got %d", batch)
	}
	if single != 0 {
		t.Errorf("a batch-capable handle must never be called per point, got %d calls", single)
	}
	respMu.Lock()
	defer respMu.Unlock()
	if resp.Status != domain.ProjectionOK {
		t.Errorf("expected ok status, got %q", resp.Status)
	}
	if len(resp.Points) != 3 || resp.Points[0] == nil || resp.Points[2] == nil {
		t.Fatalf("expected three projected points, got %+v", resp.Points)
	}
}

func TestLocatorService_NoHandleNoProjectionResponse(t *testing.T) {
	bus := newMemBus()
	probe := &fakeProbe{} // never finds a map
	svc := usecases.NewLocatorService(bus, probe,
		usecases.WithDiscoveryInterval(time.Millisecond),
		usecases.WithMaxAttempts(2),
		usecases.WithURLPollInterval(time.Hour),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = svc.Run(ctx) }()

	waitFor(t, "map.notfound", func() bool {
		return bus.sentCount(domain.MsgMapNotFound) >= 1
	})

	_ = bus.Publish(context.Background(), domain.MsgProjectReq, domain.ProjectionRequest{
		ID:     "req-2",
		Points: []domain.GeoPoint{{Lat: 53.34, Lng: -6.26}},
	})
	time.Sleep(20 * time.Millisecond)

	// Silence is the contract: the bridge's timeout handles it.
	if bus.sentCount(domain.MsgProjectResp) != 0 {
		t.Error("a locator without a handle must not answer projection requests")
	}
}

func TestLocatorService_URLChangePublishesNavigation(t *testing.T) {
	bus := newMemBus()
	probe := &fakeProbe{}

	var urlMu sync.Mutex
	url := "https://listings.example/search?page=1"
	probe.setSnapshot(func(ctx context.Context) (*domain.PageSnapshot, error) {
		urlMu.Lock()
		defer urlMu.Unlock()
		return &domain.PageSnapshot{URL: url}, nil
	})

	svc := usecases.NewLocatorService(bus, probe,
		usecases.WithDiscoveryInterval(time.Millisecond),
		usecases.WithMaxAttempts(2),
		usecases.WithURLPollInterval(5*time.Millisecond),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = svc.Run(ctx) }()

	waitFor(t, "initial navigation", func() bool {
		return bus.sentCount(domain.MsgPageNavigated) >= 1
	})

	urlMu.Lock()
	url = "https://listings.example/search?page=2"
	urlMu.Unlock()

	waitFor(t, "navigation after URL change", func() bool {
		return bus.sentCount(domain.MsgPageNavigated) >= 2
	})
}
