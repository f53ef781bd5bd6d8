package http

import (
	"encoding/json"
	"sort"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/transitlens/transitlens/internal/core/domain"
	"github.com/transitlens/transitlens/internal/pkg/geospatial"
	"github.com/transitlens/transitlens/internal/pkg/metrics"
)

// OverlayHandler returns the current overlay document. 204 means there is
// legitimately nothing to draw right now (overlay disabled, no viewport, or
// everything off-canvas).
func OverlayHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		svg := deps.Render.Output()
		if svg == "" {
			return c.SendStatus(fiber.StatusNoContent)
		}
		c.Set(fiber.HeaderContentType, "image/svg+xml")
		return c.SendString(svg)
	}
}

// RingsHandler returns the walking-radius rings for one named marker. A
// marker that is not part of the current overlay is a 404; a known marker
// with no rings to draw (all toggled off, or no scale factor) is a 204.
func RingsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		name := c.Query("marker")
		if name == "" {
			return errBadRequest(c, "marker query parameter is required")
		}
		if !deps.Render.HasMarker(name) {
			return errNotFound(c, "unknown marker: "+name)
		}
		svg := deps.Render.RenderRings(name)
		if svg == "" {
			return c.SendStatus(fiber.StatusNoContent)
		}
		c.Set(fiber.HeaderContentType, "image/svg+xml")
		return c.SendString(svg)
	}
}

// GetSettingsHandler returns the persisted layer settings.
func GetSettingsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		settings, err := deps.Settings.Load(c.Context())
		if err != nil {
			return errInternal(c, err.Error())
		}
		return c.JSON(settings)
	}
}

// PutSettingsHandler replaces the layer settings. Fields missing from the
// request body keep their current values. The new snapshot is persisted,
// broadcast to other replicas, and applied to this one immediately.
func PutSettingsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		settings, err := deps.Settings.Load(c.Context())
		if err != nil {
			return errInternal(c, err.Error())
		}
		if err := json.Unmarshal(c.Body(), &settings); err != nil {
			return errBadRequest(c, "invalid settings payload: "+err.Error())
		}
		settings = settings.Clamp()

		if err := deps.Settings.Save(c.Context(), settings); err != nil {
			return errInternal(c, err.Error())
		}
		metrics.SettingsUpdates.Inc()
		deps.Scheduler.UpdateSettings(settings)
		LoggerFromCtx(c.UserContext()).Info("settings replaced",
			"enabled", settings.Enabled, "opacity", settings.Opacity)
		return c.JSON(settings)
	}
}

// LayerInfo describes one toggleable layer for the settings UI.
type LayerInfo struct {
	Mode  string   `json:"mode"`
	Label string   `json:"label"`
	Lines []string `json:"lines"`
}

// LayersHandler lists the available transit layers and their lines, derived
// from the loaded geometry.
func LayersHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ds, err := deps.Geometry.Load(c.Context())
		if err != nil {
			return errInternal(c, err.Error())
		}

		lines := func(features []domain.TransitFeature) []string {
			seen := map[string]bool{}
			var out []string
			for _, f := range features {
				if f.Line == "" || seen[f.Line] {
					continue
				}
				seen[f.Line] = true
				out = append(out, f.Line)
			}
			sort.Strings(out)
			return out
		}

		return c.JSON([]LayerInfo{
			{Mode: string(domain.ModeRail), Label: domain.ModeRail.Label(), Lines: lines(ds.RailLines)},
			{Mode: string(domain.ModeLightRail), Label: domain.ModeLightRail.Label(), Lines: lines(ds.LightRailLines)},
		})
	}
}

// NearbyStation is one station/stop with its distance from the query point.
type NearbyStation struct {
	Name     string  `json:"name"`
	Mode     string  `json:"mode"`
	Line     string  `json:"line,omitempty"`
	Lat      float64 `json:"lat"`
	Lng      float64 `json:"lng"`
	Distance float64 `json:"distance_m"`
}

// NearbyStationsHandler returns stations and stops within a radius of a
// point, nearest first.
func NearbyStationsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		// Presence check, not a zero check: 0 is a valid coordinate.
		latStr, lngStr := c.Query("lat"), c.Query("lng")
		if latStr == "" || lngStr == "" {
			return errBadRequest(c, "lat and lng are required")
		}
		lat, latErr := strconv.ParseFloat(latStr, 64)
		lng, lngErr := strconv.ParseFloat(lngStr, 64)
		if latErr != nil || lngErr != nil {
			return errBadRequest(c, "lat and lng must be numbers")
		}
		radius := c.QueryFloat("radius", 1080)
		limit := c.QueryInt("limit", 50)

		if radius <= 0 || radius > 10000 {
			return errBadRequest(c, "radius must be between 1 and 10000 meters")
		}
		if limit <= 0 || limit > 200 {
			limit = 50
		}

		ds, err := deps.Geometry.Load(c.Context())
		if err != nil {
			return errInternal(c, err.Error())
		}

		origin := domain.GeoPoint{Lat: lat, Lng: lng}
		var results []NearbyStation
		for _, f := range append(append([]domain.TransitFeature{}, ds.RailStations...), ds.LightRailStops...) {
			d := geospatial.Haversine(origin, f.Location)
			if d > radius {
				continue
			}
			results = append(results, NearbyStation{
				Name:     f.Name,
				Mode:     string(f.Mode),
				Line:     f.Line,
				Lat:      f.Location.Lat,
				Lng:      f.Location.Lng,
				Distance: d,
			})
		}
		sort.Slice(results, func(i, j int) bool { return results[i].Distance < results[j].Distance })
		if len(results) > limit {
			results = results[:limit]
		}
		return c.JSON(results)
	}
}

// StatusHandler reports what the overlay side currently knows about the host
// map.
func StatusHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		vp := deps.Bridge.Viewport()
		return c.JSON(fiber.Map{
			"host_map_found": deps.Bridge.InstanceAvailable(),
			"viewport_known": vp != nil,
			"overlay_drawn":  deps.Render.Output() != "",
		})
	}
}
