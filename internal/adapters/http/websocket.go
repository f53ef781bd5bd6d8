package http

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"

	"github.com/transitlens/transitlens/internal/pkg/metrics"
)

// wsAction is sent from the client.
type wsAction struct {
	Action string `json:"action"` // "hover" | "leave" | "refresh"
	Marker string `json:"marker"` // marker name for "hover"
}

// wsFrame is pushed to the client.
type wsFrame struct {
	Kind string `json:"kind"` // "overlay" | "rings"
	SVG  string `json:"svg"`
}

// WebSocketHandler streams overlay updates to embedding clients. The current
// overlay is sent on connect and after every re-render; hovering a marker
// gets a rings frame, leaving it an empty one. Exactly one marker's rings are
// live per connection at a time.
func WebSocketHandler(deps *Dependencies) func(*websocket.Conn) {
	return func(c *websocket.Conn) {
		defer c.Close()

		remoteAddr := c.RemoteAddr().String()
		slog.Info("ws client connected", "remote", remoteAddr)
		metrics.ActiveWebSockets.Inc()
		defer metrics.ActiveWebSockets.Dec()

		var mu sync.Mutex
		writeFrame := func(f wsFrame) error {
			data, err := json.Marshal(f)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			return c.WriteMessage(websocket.TextMessage, data)
		}

		// Current state first, then every subsequent render
		_ = writeFrame(wsFrame{Kind: "overlay", SVG: deps.Render.Output()})
		unregister := deps.Render.OnUpdate(func(svg string) {
			_ = writeFrame(wsFrame{Kind: "overlay", SVG: svg})
		})
		defer unregister()

		// Keep-alive ping
		done := make(chan struct{})
		defer close(done)
		go func() {
			ticker := time.NewTicker(30 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					mu.Lock()
					err := c.WriteMessage(websocket.PingMessage, nil)
					mu.Unlock()
					if err != nil {
						return
					}
				case <-done:
					return
				}
			}
		}()

		for {
			_, msg, err := c.ReadMessage()
			if err != nil {
				break
			}

			var a wsAction
			if err := json.Unmarshal(msg, &a); err != nil {
				_ = writeFrame(wsFrame{Kind: "error", SVG: ""})
				continue
			}

			switch a.Action {
			case "hover":
				_ = writeFrame(wsFrame{Kind: "rings", SVG: deps.Render.RenderRings(a.Marker)})
			case "leave":
				_ = writeFrame(wsFrame{Kind: "rings", SVG: ""})
			case "refresh":
				deps.Scheduler.Request()
			default:
				slog.Debug("unknown ws action", "action", a.Action)
			}
		}

		slog.Info("ws client disconnected", "remote", remoteAddr)
	}
}
