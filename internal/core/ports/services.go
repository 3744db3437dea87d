package ports

import (
	"context"

	"github.com/mzabaleta/veloloop/internal/core/domain"
)

// RouteOracle is the external road-network routing service. The core never
// does its own pathfinding; it composes calls to this oracle and reasons
// about the aggregate shape and distance of the returned paths.
type RouteOracle interface {
	// RouteLoop routes one path visiting the ordered point list
	// [start, wp1..wpN, start] in a single call. An unroutable point is
	// reported as *domain.PointNotFoundError carrying the point's index.
	RouteLoop(ctx context.Context, points []domain.Point, profile string) (*domain.Route, error)

	// RouteLeg routes a single leg from one point to another.
	RouteLeg(ctx context.Context, from, to domain.Point, profile string) (*domain.Segment, error)
}

// Geocoder resolves a place name to a coordinate. Failures are upstream
// input errors (domain.ErrPlaceNotFound), never retried by the core.
type Geocoder interface {
	Geocode(ctx context.Context, name string) (domain.Point, error)
}

// CacheService provides read-through caching.
type CacheService interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttlSeconds int) error
	Delete(ctx context.Context, key string) error
}

// EventPublisher publishes route lifecycle events to a message broker.
// Publishing is best-effort: the engine must work with a nil publisher.
type EventPublisher interface {
	PublishRouteGenerated(ctx context.Context, sessionID string, route *domain.Route) error
	PublishRouteEdited(ctx context.Context, sessionID, op string, route *domain.Route) error
}
