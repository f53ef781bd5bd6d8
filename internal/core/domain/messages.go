package domain

// Message kinds exchanged across the page/overlay context boundary. The
// channel is fire-and-forget: unordered, unacknowledged, at-most-once.
// Handlers must tolerate any kind arriving out of order or never.
const (
	MsgMapFound      = "map.found"
	MsgMapNotFound   = "map.notfound"
	MsgViewport      = "viewport.update"
	MsgPageNavigated = "page.navigated"
	MsgProjectReq    = "project.request"
	MsgProjectResp   = "project.response"
	MsgViewportReq   = "viewport.request"
	MsgRediscover    = "rediscover"
)

// MapFound announces that a discovery strategy produced a live map handle.
type MapFound struct {
	Strategy string `json:"strategy"`
}

// PageNavigated reports a page URL change (single-page-app navigation) along
// with the freshly measured map container rectangle, which may differ from
// the previous one when the map element was replaced.
type PageNavigated struct {
	URL           string `json:"url"`
	ContainerRect Rect   `json:"container_rect"`
}

// ProjectionRequest asks the page context to project a batch of points
// through the host map's own projector. ID correlates the response; there is
// no delivery guarantee, so the requester must pair every request with a
// timeout.
type ProjectionRequest struct {
	ID     string     `json:"id"`
	Points []GeoPoint `json:"points"`
}

// Projection response statuses. StatusError means the host projector itself
// failed, as opposed to StatusOK with all-nil points, which means every
// point is legitimately off-canvas.
const (
	ProjectionOK    = "ok"
	ProjectionError = "error"
)

// ProjectionResponse carries the host's pixel projection for each requested
// point, nil per point where the host call failed.
type ProjectionResponse struct {
	ID     string            `json:"id"`
	Status string            `json:"status"`
	Points []*ProjectedPoint `json:"points"`
}
