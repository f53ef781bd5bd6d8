// Package locator discovers a live handle to the third-party map embedded in
// the host page. Each discovery strategy is a pure function over a page-state
// snapshot; strategies are tried in priority order and are individually
// cheap and fail-soft.
package locator

import (
	"github.com/transitlens/transitlens/internal/core/domain"
	"github.com/transitlens/transitlens/internal/core/ports"
)

// Strategy is one independent technique for locating a host-map handle.
type Strategy struct {
	Name string
	// Repeatable says the strategy is worth retrying during bounded polling.
	// Constructor capture is event-driven and already covers late-created
	// maps, so only the scanning strategies repeat.
	Repeatable bool
	Probe      func(snap *domain.PageSnapshot) (ports.MapHandle, bool)
}

// DefaultStrategies returns the chain in priority order.
func DefaultStrategies() []Strategy {
	return []Strategy{
		{Name: "constructor-capture", Probe: probeCaptured},
		{Name: "component-tree", Repeatable: true, Probe: probeComponentTree},
		{Name: "element-props", Repeatable: true, Probe: probeElementProps},
		{Name: "globals", Repeatable: true, Probe: probeGlobals},
	}
}

// knownGlobals is the short list of conventional global variable names pages
// tend to park their map instance under.
var knownGlobals = []string{"map", "gmap", "mapInstance", "_map", "__mapHandle"}

// asHandle checks a candidate value for the mapping library's method surface
// and confirms it is alive with one cheap call.
func asHandle(v any) (ports.MapHandle, bool) {
	h, ok := v.(ports.MapHandle)
	if !ok {
		return nil, false
	}
	if _, err := h.GetCenter(); err != nil {
		return nil, false
	}
	return h, true
}

// probeCaptured returns the newest handle recorded by the in-page
// constructor hook, if any survived.
func probeCaptured(snap *domain.PageSnapshot) (ports.MapHandle, bool) {
	for i := len(snap.Captured) - 1; i >= 0; i-- {
		if h, ok := asHandle(snap.Captured[i]); ok {
			return h, true
		}
	}
	return nil, false
}

// probeComponentTree walks the UI framework's component-instance graph
// upward from the map container, scanning each instance's props.
func probeComponentTree(snap *domain.PageSnapshot) (ports.MapHandle, bool) {
	for inst := snap.ContainerComponent; inst != nil; inst = inst.Parent {
		if h, ok := scanProps(inst.Props); ok {
			return h, true
		}
	}
	return nil, false
}

// probeElementProps inspects properties attached directly to the map's
// canvas element, then to its container.
func probeElementProps(snap *domain.PageSnapshot) (ports.MapHandle, bool) {
	for _, node := range []*domain.PageNode{snap.Canvas, snap.Container} {
		if node == nil {
			continue
		}
		if h, ok := scanProps(node.Props); ok {
			return h, true
		}
	}
	return nil, false
}

// probeGlobals checks the conventional global names and the mapping
// library's registry of live instances.
func probeGlobals(snap *domain.PageSnapshot) (ports.MapHandle, bool) {
	for _, name := range knownGlobals {
		if v, present := snap.Globals[name]; present {
			if h, ok := asHandle(v); ok {
				return h, true
			}
		}
	}
	for _, v := range snap.Registry {
		if h, ok := asHandle(v); ok {
			return h, true
		}
	}
	return nil, false
}

func scanProps(props map[string]any) (ports.MapHandle, bool) {
	for _, v := range props {
		if h, ok := asHandle(v); ok {
			return h, true
		}
	}
	return nil, false
}

// TryAll runs the chain in order and reports which strategy succeeded.
func TryAll(strategies []Strategy, snap *domain.PageSnapshot) (ports.MapHandle, string, bool) {
	if snap == nil {
		return nil, "", false
	}
	for _, st := range strategies {
		if h, ok := st.Probe(snap); ok {
			return h, st.Name, true
		}
	}
	return nil, "", false
}
