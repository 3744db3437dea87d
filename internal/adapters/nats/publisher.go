package natsadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/mzabaleta/veloloop/internal/core/domain"
)

// Publisher implements ports.EventPublisher using NATS JetStream. Route
// lifecycle events feed downstream consumers (analytics, ride history).
type Publisher struct {
	conn *nats.Conn
	js   nats.JetStreamContext
}

// routeEvent is the wire form of a route lifecycle event. The geometry is
// omitted; consumers that need it fetch the route through the API.
type routeEvent struct {
	SessionID      string    `json:"session_id"`
	Op             string    `json:"op,omitempty"`
	DistanceKm     float64   `json:"distance_km"`
	ElevationGainM float64   `json:"elevation_gain_m"`
	WaypointCount  int       `json:"waypoint_count"`
	Profile        string    `json:"profile,omitempty"`
	At             time.Time `json:"at"`
}

// NewPublisher connects to NATS and ensures the route event stream exists.
func NewPublisher(url string) (*Publisher, error) {
	conn, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	cfg := nats.StreamConfig{
		Name:      "ROUTE_EVENTS",
		Subjects:  []string{"routes.>"},
		Retention: nats.InterestPolicy,
		MaxAge:    24 * time.Hour,
		Storage:   nats.FileStorage,
	}
	if _, err := js.AddStream(&cfg); err != nil {
		// Stream may already exist, try update
		if _, err := js.UpdateStream(&cfg); err != nil {
			return nil, fmt.Errorf("ensure stream %s: %w", cfg.Name, err)
		}
	}

	return &Publisher{conn: conn, js: js}, nil
}

func (p *Publisher) PublishRouteGenerated(ctx context.Context, sessionID string, route *domain.Route) error {
	return p.publish("routes.generated", routeEvent{
		SessionID:      sessionID,
		DistanceKm:     route.DistanceKm,
		ElevationGainM: route.ElevationGainM,
		WaypointCount:  len(route.Waypoints),
		Profile:        route.Profile,
		At:             time.Now().UTC(),
	})
}

func (p *Publisher) PublishRouteEdited(ctx context.Context, sessionID, op string, route *domain.Route) error {
	return p.publish("routes.edited."+op, routeEvent{
		SessionID:      sessionID,
		Op:             op,
		DistanceKm:     route.DistanceKm,
		ElevationGainM: route.ElevationGainM,
		WaypointCount:  len(route.Waypoints),
		Profile:        route.Profile,
		At:             time.Now().UTC(),
	})
}

func (p *Publisher) publish(subject string, event routeEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_, err = p.js.Publish(subject, data)
	return err
}

// IsConnected reports whether the underlying connection is up.
func (p *Publisher) IsConnected() bool {
	return p.conn.IsConnected()
}

// Close drains and closes the connection.
func (p *Publisher) Close() {
	_ = p.conn.Drain()
}
