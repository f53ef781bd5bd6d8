// Package shim speaks to the thin in-page script over a WebSocket. The shim
// streams page-state snapshots and host-map events; the probe turns those
// into domain snapshots whose candidate objects are live, callable handles.
package shim

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"

	"github.com/transitlens/transitlens/internal/core/domain"
)

// callTimeout bounds every request to the shim. The page may be navigating
// away mid-call; a hung request must not hang the locator.
const callTimeout = 500 * time.Millisecond

var errProbeClosed = errors.New("shim connection closed")

// frame is the wire format in both directions.
type frame struct {
	Op     string            `json:"op"`
	ID     int               `json:"id,omitempty"`
	Handle int               `json:"handle,omitempty"`
	Method string            `json:"method,omitempty"`
	Event  string            `json:"event,omitempty"`
	Points []domain.GeoPoint `json:"points,omitempty"`
	Data   json.RawMessage   `json:"data,omitempty"`
	Error  string            `json:"error,omitempty"`
}

// Probe implements ports.PageProbe over one shim session.
type Probe struct {
	conn    *websocket.Conn
	writeMu sync.Mutex

	mu      sync.Mutex
	nextID  int
	pending map[int]chan frame
	events  map[string][]func() // "handle/event" -> handlers

	closed    chan struct{}
	closeOnce sync.Once
}

func newProbe(conn *websocket.Conn) *Probe {
	return &Probe{
		conn:    conn,
		pending: map[int]chan frame{},
		events:  map[string][]func(){},
		closed:  make(chan struct{}),
	}
}

// Snapshot asks the shim for a fresh page-state snapshot.
func (p *Probe) Snapshot(ctx context.Context) (*domain.PageSnapshot, error) {
	resp, err := p.request(ctx, frame{Op: "snapshot"})
	if err != nil {
		return nil, err
	}
	var ws wireSnapshot
	if err := json.Unmarshal(resp.Data, &ws); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return ws.toDomain(p), nil
}

// request sends one frame and waits for its correlated reply.
func (p *Probe) request(ctx context.Context, f frame) (frame, error) {
	p.mu.Lock()
	p.nextID++
	f.ID = p.nextID
	ch := make(chan frame, 1)
	p.pending[f.ID] = ch
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		delete(p.pending, f.ID)
		p.mu.Unlock()
	}()

	if err := p.write(f); err != nil {
		return frame{}, err
	}

	timer := time.NewTimer(callTimeout)
	defer timer.Stop()
	select {
	case resp := <-ch:
		if resp.Error != "" {
			return frame{}, errors.New(resp.Error)
		}
		return resp, nil
	case <-timer.C:
		return frame{}, errors.New("shim call timed out")
	case <-p.closed:
		return frame{}, errProbeClosed
	case <-ctx.Done():
		return frame{}, ctx.Err()
	}
}

func (p *Probe) write(f frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	return p.conn.WriteMessage(websocket.TextMessage, data)
}

// serve reads frames until the connection drops, routing replies to waiting
// requests and host-map events to registered handlers.
func (p *Probe) serve(onCapture func()) {
	defer p.close()
	for {
		_, data, err := p.conn.ReadMessage()
		if err != nil {
			return
		}
		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			continue
		}
		switch f.Op {
		case "result":
			p.mu.Lock()
			ch, ok := p.pending[f.ID]
			p.mu.Unlock()
			if ok {
				ch <- f
			}
		case "event":
			p.dispatchEvent(f.Handle, f.Event)
		case "captured":
			if onCapture != nil {
				onCapture()
			}
		}
	}
}

func (p *Probe) close() {
	p.closeOnce.Do(func() { close(p.closed) })
}

func (p *Probe) onEvent(handle int, event string, fn func()) {
	key := fmt.Sprintf("%d/%s", handle, event)
	p.mu.Lock()
	p.events[key] = append(p.events[key], fn)
	p.mu.Unlock()
}

func (p *Probe) dispatchEvent(handle int, event string) {
	key := fmt.Sprintf("%d/%s", handle, event)
	p.mu.Lock()
	fns := append([]func(){}, p.events[key]...)
	p.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// Handle is a live reference to a map object living in the page. Every
// method is one round trip to the shim.
type Handle struct {
	probe *Probe
	ref   int
}

func (h *Handle) GetCenter() (domain.GeoPoint, error) {
	var center domain.GeoPoint
	err := h.call("getCenter", &center)
	return center, err
}

func (h *Handle) GetBounds() (domain.Bounds, error) {
	var bounds domain.Bounds
	err := h.call("getBounds", &bounds)
	return bounds, err
}

func (h *Handle) ContainerRect() (domain.Rect, error) {
	var rect domain.Rect
	err := h.call("containerRect", &rect)
	return rect, err
}

// ProjectBatch projects a whole geometry batch in one round trip. The reply
// is a positional array with null where the host projector yielded nothing
// for that point; an error means the call itself failed. A line feature's
// worth of vertices must never cost a round trip each — the bridge's timeout
// budget covers the batch, not the point.
func (h *Handle) ProjectBatch(points []domain.GeoPoint) ([]*domain.ProjectedPoint, error) {
	resp, err := h.probe.request(context.Background(), frame{
		Op: "project", Handle: h.ref, Points: points,
	})
	if err != nil {
		return nil, err
	}
	var pts []*domain.ProjectedPoint
	if err := json.Unmarshal(resp.Data, &pts); err != nil {
		return nil, fmt.Errorf("decode projection: %w", err)
	}
	if len(pts) != len(points) {
		return nil, fmt.Errorf("projection returned %d points for %d", len(pts), len(points))
	}
	return pts, nil
}

// Project returns (nil, nil) when the host projector yielded null for the
// point, and an error when the call itself failed.
func (h *Handle) Project(p domain.GeoPoint) (*domain.ProjectedPoint, error) {
	pts, err := h.ProjectBatch([]domain.GeoPoint{p})
	if err != nil {
		return nil, err
	}
	return pts[0], nil
}

// On registers fn for a host-map event. Registration on the shim side is
// fire-and-forget.
func (h *Handle) On(event string, fn func()) error {
	h.probe.onEvent(h.ref, event, fn)
	return h.probe.write(frame{Op: "on", Handle: h.ref, Event: event})
}

func (h *Handle) call(method string, out any) error {
	resp, err := h.probe.request(context.Background(), frame{
		Op: "call", Handle: h.ref, Method: method,
	})
	if err != nil {
		return err
	}
	return json.Unmarshal(resp.Data, out)
}
