package usecases

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/transitlens/transitlens/internal/core/domain"
	"github.com/transitlens/transitlens/internal/core/ports"
	"github.com/transitlens/transitlens/internal/pkg/metrics"
)

// DefaultProjectionTimeout bounds every host projection request. The page
// context may never answer (library absent, map torn down), so a request
// without a deadline would hang a render forever.
const DefaultProjectionTimeout = 1000 * time.Millisecond

// BridgeService runs in the overlay context and owns the messaging protocol
// with the page-side locator. It normalises whatever the locator learned
// into a uniform viewport/projection contract and falls back to
// reconstructing the viewport from the page URL when no host hook exists.
type BridgeService struct {
	bus     ports.MessageBus
	timeout time.Duration

	mu        sync.Mutex
	viewport  *domain.Viewport
	available bool
	lastURL   string
	lastRect  *domain.Rect
	pending   map[string]chan domain.ProjectionResponse

	unsubs []func()
}

// BridgeOption configures a BridgeService.
type BridgeOption func(*BridgeService)

// WithProjectionTimeout overrides the host projection deadline.
func WithProjectionTimeout(d time.Duration) BridgeOption {
	return func(b *BridgeService) { b.timeout = d }
}

// NewBridgeService creates a BridgeService; call Start to attach it to the bus.
func NewBridgeService(bus ports.MessageBus, opts ...BridgeOption) *BridgeService {
	b := &BridgeService{
		bus:     bus,
		timeout: DefaultProjectionTimeout,
		pending: map[string]chan domain.ProjectionResponse{},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Start subscribes to the locator's message kinds until ctx is cancelled.
// Messages may arrive out of order or not at all; every handler treats its
// payload as a wholesale replacement of prior state.
func (b *BridgeService) Start(ctx context.Context) error {
	subs := map[string]func(data []byte){
		domain.MsgMapFound:      b.onMapFound,
		domain.MsgMapNotFound:   b.onMapNotFound,
		domain.MsgViewport:      b.onViewport,
		domain.MsgPageNavigated: b.onPageNavigated,
		domain.MsgProjectResp:   b.onProjectionResponse,
	}
	for kind, handler := range subs {
		unsub, err := b.bus.Subscribe(kind, handler)
		if err != nil {
			b.stop()
			return err
		}
		b.unsubs = append(b.unsubs, unsub)
	}
	go func() {
		<-ctx.Done()
		b.stop()
	}()
	return nil
}

func (b *BridgeService) stop() {
	for _, unsub := range b.unsubs {
		unsub()
	}
	b.unsubs = nil
}

func (b *BridgeService) onMapFound(data []byte) {
	var m domain.MapFound
	_ = json.Unmarshal(data, &m)
	b.mu.Lock()
	b.available = true
	b.mu.Unlock()
	slog.Info("host map found", "strategy", m.Strategy)
}

func (b *BridgeService) onMapNotFound([]byte) {
	b.mu.Lock()
	b.available = false
	b.mu.Unlock()
	slog.Info("host map not found, using URL-derived viewport")
}

func (b *BridgeService) onViewport(data []byte) {
	var vp domain.Viewport
	if err := json.Unmarshal(data, &vp); err != nil {
		slog.Warn("bad viewport payload", "error", err)
		return
	}
	b.mu.Lock()
	b.viewport = &vp
	rect := vp.ContainerRect
	b.lastRect = &rect
	b.mu.Unlock()
}

func (b *BridgeService) onPageNavigated(data []byte) {
	var nav domain.PageNavigated
	if err := json.Unmarshal(data, &nav); err != nil {
		slog.Warn("bad navigation payload", "error", err)
		return
	}
	b.mu.Lock()
	b.lastURL = nav.URL
	if !nav.ContainerRect.Degenerate() {
		rect := nav.ContainerRect
		b.lastRect = &rect
	}
	// The old viewport describes a map that may no longer exist.
	b.viewport = nil
	b.mu.Unlock()
}

func (b *BridgeService) onProjectionResponse(data []byte) {
	var resp domain.ProjectionResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		slog.Warn("bad projection response", "error", err)
		return
	}
	b.mu.Lock()
	ch, ok := b.pending[resp.ID]
	if ok {
		delete(b.pending, resp.ID)
	}
	b.mu.Unlock()
	if ok {
		ch <- resp
	}
}

// InstanceAvailable reports whether a live host map handle has been found.
// It flips only on explicit found/notfound signals; a projection timeout
// does not downgrade it.
func (b *BridgeService) InstanceAvailable() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.available
}

// Viewport returns the last pushed viewport, or one reconstructed from the
// page URL's bounds parameters plus the last known container rectangle, or
// nil when neither source yields complete data.
func (b *BridgeService) Viewport() *domain.Viewport {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.viewport != nil {
		vp := *b.viewport
		return &vp
	}
	return viewportFromURL(b.lastURL, b.lastRect)
}

// RequestViewport asks the locator, fire-and-forget, to push a fresh
// viewport snapshot.
func (b *BridgeService) RequestViewport(ctx context.Context) {
	if err := b.bus.Publish(ctx, domain.MsgViewportReq, struct{}{}); err != nil {
		slog.Warn("viewport request publish failed", "error", err)
	}
}

// ProjectPoints asks the page context to project a batch through the host
// map's own projector. It returns ok=false on timeout or when the host
// projector reported failure; ok=true with all-nil points means every point
// is legitimately off-canvas and is not a reason to fall back.
func (b *BridgeService) ProjectPoints(ctx context.Context, points []domain.GeoPoint) ([]*domain.ProjectedPoint, bool) {
	id := uuid.NewString()
	ch := make(chan domain.ProjectionResponse, 1)

	b.mu.Lock()
	b.pending[id] = ch
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		delete(b.pending, id)
		b.mu.Unlock()
	}()

	metrics.ProjectionRequests.Inc()
	req := domain.ProjectionRequest{ID: id, Points: points}
	if err := b.bus.Publish(ctx, domain.MsgProjectReq, req); err != nil {
		slog.Warn("projection request publish failed", "error", err)
		return nil, false
	}

	timer := time.NewTimer(b.timeout)
	defer timer.Stop()

	select {
	case resp := <-ch:
		if resp.Status != domain.ProjectionOK {
			return nil, false
		}
		if len(resp.Points) != len(points) {
			slog.Warn("projection response length mismatch",
				"want", len(points), "got", len(resp.Points))
			return nil, false
		}
		return resp.Points, true
	case <-timer.C:
		metrics.ProjectionTimeouts.Inc()
		return nil, false
	case <-ctx.Done():
		return nil, false
	}
}

// URL query parameters the listing site encodes its map bounds in.
const (
	paramNorthLat = "neLat"
	paramEastLng  = "neLng"
	paramSouthLat = "swLat"
	paramWestLng  = "swLng"
)

func viewportFromURL(rawURL string, rect *domain.Rect) *domain.Viewport {
	if rawURL == "" || rect == nil || rect.Degenerate() {
		return nil
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil
	}
	q := u.Query()

	parse := func(name string) (float64, bool) {
		v, err := strconv.ParseFloat(q.Get(name), 64)
		return v, err == nil
	}
	north, ok1 := parse(paramNorthLat)
	east, ok2 := parse(paramEastLng)
	south, ok3 := parse(paramSouthLat)
	west, ok4 := parse(paramWestLng)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return nil
	}
	return &domain.Viewport{
		Bounds:        domain.Bounds{North: north, South: south, East: east, West: west},
		ContainerRect: *rect,
	}
}
