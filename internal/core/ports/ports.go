package ports

import (
	"context"

	"github.com/transitlens/transitlens/internal/core/domain"
)

// Host map events a MapHandle can report.
const (
	EventMove    = "move"
	EventZoom    = "zoom"
	EventResize  = "resize"
	EventMoveEnd = "moveend"
)

// MapHandle is a live handle to the third-party map embedded in the host
// page. Implementations wrap an object the system does not own: any call may
// fail mid-teardown and must be treated as advisory.
type MapHandle interface {
	GetCenter() (domain.GeoPoint, error)
	GetBounds() (domain.Bounds, error)
	ContainerRect() (domain.Rect, error)
	Project(p domain.GeoPoint) (*domain.ProjectedPoint, error)
	On(event string, fn func()) error
}

// BatchProjector is an optional MapHandle extension: project a whole
// geometry batch in one host call. Handles that cross a connection implement
// it so a polyline does not cost a round trip per vertex.
type BatchProjector interface {
	ProjectBatch(points []domain.GeoPoint) ([]*domain.ProjectedPoint, error)
}

// MessageBus is the cross-context boundary: fire-and-forget publish plus
// per-kind subscription. No ordering or delivery guarantees; every awaited
// response must be paired with a timeout on the requesting side.
type MessageBus interface {
	Publish(ctx context.Context, kind string, payload any) error
	// Subscribe registers a handler for one message kind and returns an
	// unsubscribe function.
	Subscribe(kind string, handler func(data []byte)) (func(), error)
}

// SettingsStore persists the layer-settings snapshot under one well-known
// key and notifies watchers of replacements.
type SettingsStore interface {
	Load(ctx context.Context) (domain.LayerSettings, error)
	Save(ctx context.Context, s domain.LayerSettings) error
	// Watch invokes fn with the full new snapshot on every change until ctx
	// is cancelled.
	Watch(ctx context.Context, fn func(domain.LayerSettings)) error
}

// GeometrySource loads the bundled transit dataset.
type GeometrySource interface {
	Load(ctx context.Context) (*domain.Dataset, error)
}

// PageProbe supplies fresh page-state snapshots from the in-page shim.
type PageProbe interface {
	Snapshot(ctx context.Context) (*domain.PageSnapshot, error)
}
