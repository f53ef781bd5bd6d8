package domain

// PageNode is one element of the host page's DOM as seen by the in-page
// shim: its attached enumerable properties and its parent chain. Property
// values that look like live objects are carried as opaque interface values.
type PageNode struct {
	Tag    string
	ID     string
	Props  map[string]any
	Parent *PageNode
}

// ComponentInstance is one node of the host UI framework's internal
// component-instance graph. Discovery walks the graph upward from the
// instance owning the map container.
type ComponentInstance struct {
	Name   string
	Props  map[string]any
	Parent *ComponentInstance
}

// PageSnapshot is the page state a discovery pass runs over. It is re-taken
// whenever the host page structure changes (navigation, map remount), so a
// snapshot never outlives the DOM it describes.
type PageSnapshot struct {
	URL string

	// ContainerRect is the map container's on-screen rectangle as measured
	// by the shim. Available even when no map handle is, which is what makes
	// the URL-derived viewport fallback possible.
	ContainerRect Rect

	// Container is the host map's container element; Canvas its drawing
	// surface child, when present.
	Container *PageNode
	Canvas    *PageNode

	// ContainerComponent is the UI-framework instance owning Container.
	ContainerComponent *ComponentInstance

	// Globals holds the page's global variables by name.
	Globals map[string]any

	// Registry is the mapping library's own list of live map instances.
	Registry []any

	// Captured holds objects recorded by the constructor hook since it was
	// installed, newest last.
	Captured []any
}
