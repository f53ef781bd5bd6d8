package shim

import (
	"encoding/json"

	"github.com/transitlens/transitlens/internal/core/domain"
)

// Wire shapes for the shim's snapshot payload. Candidate objects the shim
// cannot serialise appear as {"$handle": n} references; everything else is
// plain JSON.
type wireSnapshot struct {
	URL           string                     `json:"url"`
	ContainerRect domain.Rect                `json:"container_rect"`
	Globals       map[string]json.RawMessage `json:"globals"`
	Registry      []json.RawMessage          `json:"registry"`
	Captured      []json.RawMessage          `json:"captured"`
	Container     *wireNode                  `json:"container"`
	Canvas        *wireNode                  `json:"canvas"`
	// Components lists the UI-framework instance chain from the container's
	// owner upward to the root.
	Components []wireComponent `json:"components"`
}

type wireNode struct {
	Tag   string                     `json:"tag"`
	ID    string                     `json:"id"`
	Props map[string]json.RawMessage `json:"props"`
}

type wireComponent struct {
	Name  string                     `json:"name"`
	Props map[string]json.RawMessage `json:"props"`
}

func (ws *wireSnapshot) toDomain(p *Probe) *domain.PageSnapshot {
	snap := &domain.PageSnapshot{
		URL:           ws.URL,
		ContainerRect: ws.ContainerRect,
		Globals:       decodeValueMap(p, ws.Globals),
		Registry:      decodeValueList(p, ws.Registry),
		Captured:      decodeValueList(p, ws.Captured),
	}
	if ws.Container != nil {
		snap.Container = ws.Container.toDomain(p, nil)
	}
	if ws.Canvas != nil {
		snap.Canvas = ws.Canvas.toDomain(p, snap.Container)
	}

	// Chain instances outward: each entry is the parent of the one before it.
	var child *domain.ComponentInstance
	for _, wc := range ws.Components {
		inst := &domain.ComponentInstance{
			Name:  wc.Name,
			Props: decodeValueMap(p, wc.Props),
		}
		if child == nil {
			snap.ContainerComponent = inst
		} else {
			child.Parent = inst
		}
		child = inst
	}
	return snap
}

func (wn *wireNode) toDomain(p *Probe, parent *domain.PageNode) *domain.PageNode {
	return &domain.PageNode{
		Tag:    wn.Tag,
		ID:     wn.ID,
		Props:  decodeValueMap(p, wn.Props),
		Parent: parent,
	}
}

func decodeValueMap(p *Probe, raw map[string]json.RawMessage) map[string]any {
	out := make(map[string]any, len(raw))
	for k, v := range raw {
		out[k] = decodeValue(p, v)
	}
	return out
}

func decodeValueList(p *Probe, raw []json.RawMessage) []any {
	out := make([]any, 0, len(raw))
	for _, v := range raw {
		out = append(out, decodeValue(p, v))
	}
	return out
}

// decodeValue turns a handle reference into a live Handle and leaves plain
// JSON values as-is.
func decodeValue(p *Probe, raw json.RawMessage) any {
	var ref struct {
		Handle *int `json:"$handle"`
	}
	if err := json.Unmarshal(raw, &ref); err == nil && ref.Handle != nil {
		return &Handle{probe: p, ref: *ref.Handle}
	}
	var v any
	_ = json.Unmarshal(raw, &v)
	return v
}
