package usecases

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/transitlens/transitlens/internal/core/domain"
	"github.com/transitlens/transitlens/internal/core/ports"
)

// DefaultMinRenderSpacing is the guaranteed minimum gap between the end of
// one render and the start of the next.
const DefaultMinRenderSpacing = 50 * time.Millisecond

// RenderFunc rebuilds the overlay for one settings snapshot.
type RenderFunc func(ctx context.Context, settings domain.LayerSettings) error

// SchedulerService coalesces bursty trigger events (viewport pushes,
// settings changes, page navigations) into throttled re-renders. Concurrent
// renders are prevented structurally: a request while one is pending is
// absorbed, and each render starts no sooner than the minimum spacing after
// the previous one completed.
type SchedulerService struct {
	bus        ports.MessageBus
	render     RenderFunc
	minSpacing time.Duration

	mu        sync.Mutex
	settings  domain.LayerSettings
	pending   bool
	rendering bool
	dirty     bool
	lastDone  time.Time

	unsubs []func()
}

// SchedulerOption configures a SchedulerService.
type SchedulerOption func(*SchedulerService)

// WithMinRenderSpacing overrides the render spacing floor.
func WithMinRenderSpacing(d time.Duration) SchedulerOption {
	return func(s *SchedulerService) { s.minSpacing = d }
}

// NewSchedulerService creates a scheduler around a render function.
func NewSchedulerService(bus ports.MessageBus, render RenderFunc, opts ...SchedulerOption) *SchedulerService {
	s := &SchedulerService{
		bus:        bus,
		render:     render,
		minSpacing: DefaultMinRenderSpacing,
		settings:   domain.DefaultSettings(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start wires the scheduler's re-render triggers until ctx is cancelled.
func (s *SchedulerService) Start(ctx context.Context) error {
	subs := map[string]func(data []byte){
		domain.MsgViewport:      func([]byte) { s.Request() },
		domain.MsgMapFound:      func([]byte) { s.Request() },
		domain.MsgMapNotFound:   func([]byte) { s.Request() },
		domain.MsgPageNavigated: func(data []byte) { s.onNavigated(ctx) },
	}
	for kind, handler := range subs {
		unsub, err := s.bus.Subscribe(kind, handler)
		if err != nil {
			s.stop()
			return err
		}
		s.unsubs = append(s.unsubs, unsub)
	}
	go func() {
		<-ctx.Done()
		s.stop()
	}()
	return nil
}

func (s *SchedulerService) stop() {
	for _, unsub := range s.unsubs {
		unsub()
	}
	s.unsubs = nil
}

// onNavigated handles a single-page-app navigation: the previous map element
// may have been destroyed, so the page context must re-discover it before
// the next render is worth anything.
func (s *SchedulerService) onNavigated(ctx context.Context) {
	if err := s.bus.Publish(ctx, domain.MsgRediscover, struct{}{}); err != nil {
		slog.Warn("rediscover publish failed", "error", err)
	}
	s.Request()
}

// UpdateSettings replaces the settings snapshot wholesale and schedules a
// re-render.
func (s *SchedulerService) UpdateSettings(settings domain.LayerSettings) {
	s.mu.Lock()
	s.settings = settings
	s.mu.Unlock()
	s.Request()
}

// Settings returns the current snapshot.
func (s *SchedulerService) Settings() domain.LayerSettings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

// Request schedules a render. A request while one is waiting to fire is not
// duplicated; the waiting render will pick up the latest state when it
// fires. A request while a render is executing marks the state dirty so a
// follow-up render is scheduled when the current one completes — the trigger
// arrived after the executing render read its inputs, so its effect would
// otherwise be lost.
func (s *SchedulerService) Request() {
	s.mu.Lock()
	if s.rendering {
		s.dirty = true
		s.mu.Unlock()
		return
	}
	if s.pending {
		s.mu.Unlock()
		return
	}
	s.pending = true
	delay := s.minSpacing - time.Since(s.lastDone)
	if delay < 0 {
		delay = 0
	}
	s.mu.Unlock()

	time.AfterFunc(delay, s.fire)
}

func (s *SchedulerService) fire() {
	s.mu.Lock()
	settings := s.settings
	s.rendering = true
	s.mu.Unlock()

	if err := s.render(context.Background(), settings); err != nil {
		slog.Warn("render failed", "error", err)
	}

	s.mu.Lock()
	s.lastDone = time.Now()
	s.pending = false
	s.rendering = false
	redo := s.dirty
	s.dirty = false
	s.mu.Unlock()

	if redo {
		s.Request()
	}
}
