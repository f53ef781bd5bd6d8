package usecases

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/transitlens/transitlens/internal/core/domain"
	"github.com/transitlens/transitlens/internal/core/ports"
	"github.com/transitlens/transitlens/internal/locator"
	"github.com/transitlens/transitlens/internal/pkg/metrics"
)

// Locator defaults: poll the scanning strategies every half second up to a
// cap, watch the page URL once a second.
const (
	DefaultDiscoveryInterval = 500 * time.Millisecond
	DefaultMaxAttempts       = 10
	DefaultURLPollInterval   = time.Second
)

// LocatorService runs in the page context. It drives the discovery-strategy
// chain over fresh page snapshots, attaches to the host map's events once a
// handle is found, and answers the bridge's viewport and projection requests
// over the message bus.
type LocatorService struct {
	bus        ports.MessageBus
	probe      ports.PageProbe
	strategies []locator.Strategy

	discoveryInterval time.Duration
	maxAttempts       int
	urlPollInterval   time.Duration

	mu         sync.Mutex
	handle     ports.MapHandle
	currentURL string

	rediscoverCh chan struct{}
}

// LocatorOption configures a LocatorService.
type LocatorOption func(*LocatorService)

func WithDiscoveryInterval(d time.Duration) LocatorOption {
	return func(s *LocatorService) { s.discoveryInterval = d }
}

func WithMaxAttempts(n int) LocatorOption {
	return func(s *LocatorService) { s.maxAttempts = n }
}

func WithURLPollInterval(d time.Duration) LocatorOption {
	return func(s *LocatorService) { s.urlPollInterval = d }
}

func WithStrategies(strategies []locator.Strategy) LocatorOption {
	return func(s *LocatorService) { s.strategies = strategies }
}

// NewLocatorService creates a LocatorService.
func NewLocatorService(bus ports.MessageBus, probe ports.PageProbe, opts ...LocatorOption) *LocatorService {
	s := &LocatorService{
		bus:               bus,
		probe:             probe,
		strategies:        locator.DefaultStrategies(),
		discoveryInterval: DefaultDiscoveryInterval,
		maxAttempts:       DefaultMaxAttempts,
		urlPollInterval:   DefaultURLPollInterval,
		rediscoverCh:      make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run performs the initial discovery pass and then watches the page URL for
// single-page-app navigations until ctx is cancelled.
func (s *LocatorService) Run(ctx context.Context) error {
	subs := map[string]func(data []byte){
		domain.MsgRediscover:  func([]byte) { s.triggerRediscover() },
		domain.MsgViewportReq: func([]byte) { s.pushViewport(ctx) },
		domain.MsgProjectReq:  func(data []byte) { s.handleProjection(ctx, data) },
	}
	var unsubs []func()
	for kind, handler := range subs {
		unsub, err := s.bus.Subscribe(kind, handler)
		if err != nil {
			for _, u := range unsubs {
				u()
			}
			return fmt.Errorf("subscribe %s: %w", kind, err)
		}
		unsubs = append(unsubs, unsub)
	}
	defer func() {
		for _, u := range unsubs {
			u()
		}
	}()

	// The first snapshot seeds the bridge's URL fallback even if discovery
	// never succeeds.
	if snap, err := s.probe.Snapshot(ctx); err == nil {
		s.mu.Lock()
		s.currentURL = snap.URL
		s.mu.Unlock()
		s.publishNavigated(ctx, snap)
	}

	s.discover(ctx)

	ticker := time.NewTicker(s.urlPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.rediscoverCh:
			s.restart(ctx)
		case <-ticker.C:
			snap, err := s.probe.Snapshot(ctx)
			if err != nil {
				continue
			}
			s.mu.Lock()
			changed := snap.URL != s.currentURL
			s.currentURL = snap.URL
			s.mu.Unlock()
			if changed {
				slog.Info("page navigation detected", "url", snap.URL)
				s.publishNavigated(ctx, snap)
				s.restart(ctx)
			}
		}
	}
}

func (s *LocatorService) triggerRediscover() {
	select {
	case s.rediscoverCh <- struct{}{}:
	default:
	}
}

// restart drops the current handle (the map element may have been replaced)
// and runs a fresh discovery pass for the new page lifetime.
func (s *LocatorService) restart(ctx context.Context) {
	s.mu.Lock()
	s.handle = nil
	s.mu.Unlock()
	s.discover(ctx)
}

// discover runs the full chain once, then retries the repeatable scanning
// strategies on a fixed interval up to the attempt cap, then reports a
// definitive failure.
func (s *LocatorService) discover(ctx context.Context) {
	if s.tryOnce(ctx, s.strategies) {
		return
	}

	var repeatable []locator.Strategy
	for _, st := range s.strategies {
		if st.Repeatable {
			repeatable = append(repeatable, st)
		}
	}

	for attempt := 1; attempt < s.maxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.discoveryInterval):
		}
		if s.tryOnce(ctx, repeatable) {
			return
		}
	}

	metrics.DiscoveryResults.WithLabelValues("notfound").Inc()
	slog.Info("host map not found after bounded polling", "attempts", s.maxAttempts)
	s.publish(ctx, domain.MsgMapNotFound, struct{}{})
}

func (s *LocatorService) tryOnce(ctx context.Context, strategies []locator.Strategy) bool {
	metrics.DiscoveryAttempts.Inc()
	snap, err := s.probe.Snapshot(ctx)
	if err != nil {
		slog.Warn("page snapshot failed", "error", err)
		return false
	}
	h, strategy, ok := locator.TryAll(strategies, snap)
	if !ok {
		return false
	}
	s.adopt(ctx, h, strategy)
	return true
}

// adopt announces the handle and hooks the host map's events so every
// pan/zoom/resize pushes a fresh viewport snapshot across the boundary.
func (s *LocatorService) adopt(ctx context.Context, h ports.MapHandle, strategy string) {
	s.mu.Lock()
	s.handle = h
	s.mu.Unlock()

	metrics.DiscoveryResults.WithLabelValues(strategy).Inc()
	slog.Info("host map found", "strategy", strategy)
	s.publish(ctx, domain.MsgMapFound, domain.MapFound{Strategy: strategy})

	for _, event := range []string{ports.EventMove, ports.EventZoom, ports.EventResize, ports.EventMoveEnd} {
		if err := h.On(event, func() { s.pushViewport(ctx) }); err != nil {
			slog.Warn("event hook failed", "event", event, "error", err)
		}
	}
	s.pushViewport(ctx)
}

// pushViewport computes a viewport snapshot from the live handle and sends
// it, fire-and-forget. A failing handle triggers re-detection instead of
// propagating.
func (s *LocatorService) pushViewport(ctx context.Context) {
	s.mu.Lock()
	h := s.handle
	s.mu.Unlock()
	if h == nil {
		return
	}

	bounds, err := h.GetBounds()
	if err != nil {
		s.loseHandle("bounds", err)
		return
	}
	rect, err := h.ContainerRect()
	if err != nil {
		s.loseHandle("rect", err)
		return
	}
	s.publish(ctx, domain.MsgViewport, domain.Viewport{Bounds: bounds, ContainerRect: rect})
}

// handleProjection answers one projection request batch with the host's own
// pixel projection. No handle means no response; the bridge's timeout covers
// that. A handle failing on every point reports ProjectionError, which is
// distinct from every point being legitimately off-canvas.
func (s *LocatorService) handleProjection(ctx context.Context, data []byte) {
	var req domain.ProjectionRequest
	if err := json.Unmarshal(data, &req); err != nil {
		slog.Warn("bad projection request", "error", err)
		return
	}

	s.mu.Lock()
	h := s.handle
	s.mu.Unlock()
	if h == nil {
		return
	}

	points, failures := projectAll(h, req.Points)

	status := domain.ProjectionOK
	if len(req.Points) > 0 && failures == len(req.Points) {
		status = domain.ProjectionError
		s.loseHandle("project", fmt.Errorf("%d/%d points failed", failures, len(req.Points)))
		points = make([]*domain.ProjectedPoint, len(req.Points))
	}
	s.publish(ctx, domain.MsgProjectResp, domain.ProjectionResponse{
		ID:     req.ID,
		Status: status,
		Points: points,
	})
}

// projectAll resolves the batch in one host call when the handle supports
// it; only handles without a batch path pay per-point round trips.
func projectAll(h ports.MapHandle, geo []domain.GeoPoint) ([]*domain.ProjectedPoint, int) {
	if bp, ok := h.(ports.BatchProjector); ok {
		pts, err := safeProjectBatch(bp, geo)
		if err != nil || len(pts) != len(geo) {
			return make([]*domain.ProjectedPoint, len(geo)), len(geo)
		}
		return pts, 0
	}

	points := make([]*domain.ProjectedPoint, len(geo))
	failures := 0
	for i, p := range geo {
		pp, err := safeProject(h, p)
		if err != nil {
			failures++
			continue
		}
		points[i] = pp
	}
	return points, failures
}

// safeProject shields the caller from a host map throwing mid-teardown.
func safeProject(h ports.MapHandle, p domain.GeoPoint) (pp *domain.ProjectedPoint, err error) {
	defer func() {
		if r := recover(); r != nil {
			pp, err = nil, fmt.Errorf("host projector panicked: %v", r)
		}
	}()
	return h.Project(p)
}

func safeProjectBatch(bp ports.BatchProjector, points []domain.GeoPoint) (pts []*domain.ProjectedPoint, err error) {
	defer func() {
		if r := recover(); r != nil {
			pts, err = nil, fmt.Errorf("host projector panicked: %v", r)
		}
	}()
	return bp.ProjectBatch(points)
}

func (s *LocatorService) loseHandle(op string, err error) {
	slog.Warn("host map handle failed, re-detecting", "op", op, "error", err)
	s.mu.Lock()
	s.handle = nil
	s.mu.Unlock()
	s.triggerRediscover()
}

func (s *LocatorService) publishNavigated(ctx context.Context, snap *domain.PageSnapshot) {
	s.publish(ctx, domain.MsgPageNavigated, domain.PageNavigated{
		URL:           snap.URL,
		ContainerRect: snap.ContainerRect,
	})
}

func (s *LocatorService) publish(ctx context.Context, kind string, payload any) {
	if err := s.bus.Publish(ctx, kind, payload); err != nil {
		slog.Warn("publish failed", "kind", kind, "error", err)
	}
}
