package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"

	"github.com/mzabaleta/veloloop/internal/core/domain"
	"github.com/mzabaleta/veloloop/internal/pkg/metrics"
)

// wsEdit is a client-to-server edit command on the session's route.
// A drag gesture arrives as a stream of "move" commands; only the
// newest one survives, older in-flight edits are cancelled server-side.
type wsEdit struct {
	Action     string  `json:"action"` // "move" | "add" | "remove" | "route"
	WaypointID string  `json:"waypoint_id,omitempty"`
	AfterLeg   int     `json:"after_leg,omitempty"`
	Lat        float64 `json:"lat,omitempty"`
	Lng        float64 `json:"lng,omitempty"`
}

// wsRouteUpdate is pushed to the client after each accepted edit.
type wsRouteUpdate struct {
	Type  string        `json:"type"` // "route" | "error"
	Route *domain.Route `json:"route,omitempty"`
	Code  string        `json:"code,omitempty"`
	Error string        `json:"error,omitempty"`
}

// WebSocketHandler returns a handler that upgrades to WebSocket and runs
// an interactive editing channel for one session. Each edit is dispatched
// on its own goroutine; the session's generation counter guarantees that
// a superseded edit never reaches the client.
func WebSocketHandler(deps *Dependencies) func(*websocket.Conn) {
	return func(c *websocket.Conn) {
		defer c.Close()

		sessionID := c.Params("id")
		remoteAddr := c.RemoteAddr().String()

		if _, err := deps.Sessions.Get(sessionID); err != nil {
			_ = c.WriteJSON(wsRouteUpdate{Type: "error", Code: "not_found", Error: "session not found"})
			return
		}

		metrics.ActiveWebSockets.Inc()
		defer metrics.ActiveWebSockets.Dec()
		slog.Info("ws client connected", "session_id", sessionID, "remote", remoteAddr)

		var mu sync.Mutex
		var wg sync.WaitGroup

		// Helper: thread-safe write
		writeUpdate := func(u wsRouteUpdate) error {
			data, err := json.Marshal(u)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			return c.WriteMessage(websocket.TextMessage, data)
		}

		// Keep-alive ping
		done := make(chan struct{})
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

			var edit wsEdit
			if err := json.Unmarshal(msg, &edit); err != nil {
				_ = writeUpdate(wsRouteUpdate{Type: "error", Code: "bad_request", Error: "invalid JSON"})
				continue
			}

			if edit.Action == "route" {
				state, err := deps.Sessions.Get(sessionID)
				if err != nil {
					_ = writeUpdate(wsRouteUpdate{Type: "error", Code: "not_found", Error: "session not found"})
					continue
				}
				_ = writeUpdate(wsRouteUpdate{Type: "route", Route: state.Route})
				continue
			}

			// Dispatch the edit without blocking the read loop so the next
			// drag position can cancel this one.
			wg.Add(1)
			go func(edit wsEdit) {
				defer wg.Done()

				var route *domain.Route
				var err error
				switch edit.Action {
				case "move":
					route, err = deps.Sessions.MoveWaypoint(context.Background(), sessionID,
						edit.WaypointID, domain.Point{Lat: edit.Lat, Lng: edit.Lng})
				case "add":
					route, err = deps.Sessions.AddWaypoint(context.Background(), sessionID,
						edit.AfterLeg, domain.Point{Lat: edit.Lat, Lng: edit.Lng})
				case "remove":
					route, err = deps.Sessions.RemoveWaypoint(context.Background(), sessionID, edit.WaypointID)
				default:
					_ = writeUpdate(wsRouteUpdate{Type: "error", Code: "bad_request", Error: "unknown action: " + edit.Action})
					return
				}

				switch {
				case errors.Is(err, domain.ErrStaleEdit):
					// Superseded by a newer edit, nothing to report.
				case errors.Is(err, domain.ErrWaypointFloor):
					_ = writeUpdate(wsRouteUpdate{Type: "error", Code: "waypoint_floor", Error: err.Error()})
				case err != nil:
					_ = writeUpdate(wsRouteUpdate{Type: "error", Code: "edit_failed", Error: err.Error()})
				default:
					_ = writeUpdate(wsRouteUpdate{Type: "route", Route: route})
				}
			}(edit)
		}

		close(done)
		wg.Wait()
		slog.Info("ws client disconnected", "session_id", sessionID, "remote", remoteAddr)
	}
}
