package domain

// TransitMode distinguishes heavy rail (Irish Rail / DART) from light rail (Luas).
type TransitMode string

const (
	ModeRail      TransitMode = "rail"
	ModeLightRail TransitMode = "lightRail"
)

// Label returns the mode name shown in marker hover labels.
func (m TransitMode) Label() string {
	switch m {
	case ModeRail:
		return "Rail"
	case ModeLightRail:
		return "Luas"
	default:
		return string(m)
	}
}

// DartLine is the distinguished rail line label. DART features are styled
// and toggled independently of the rest of the rail network.
const DartLine = "DART"

// GeometryKind says whether a feature is a polyline or a single point.
type GeometryKind string

const (
	GeometryLine  GeometryKind = "line"
	GeometryPoint GeometryKind = "point"
)

// TransitFeature is a named transit geometry. Every feature belongs to
// exactly one mode and carries a non-empty name for station/stop dots.
type TransitFeature struct {
	Name     string       `json:"name"`
	Mode     TransitMode  `json:"mode"`
	Line     string       `json:"line"`
	Kind     GeometryKind `json:"kind"`
	Points   []GeoPoint   `json:"points"`   // polyline vertices for GeometryLine
	Location GeoPoint     `json:"location"` // position for GeometryPoint
}

// Dataset holds the four bundled geometry collections, loaded once and
// cached for process lifetime.
type Dataset struct {
	RailLines      []TransitFeature
	RailStations   []TransitFeature
	LightRailLines []TransitFeature
	LightRailStops []TransitFeature
}
