package usecases

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/mzabaleta/veloloop/internal/core/domain"
)

// Edit operations. Each produces a new Route value: the waypoint list is
// replaced and only the segments touched by the edit are re-routed, all
// other *Segment values are carried over unchanged. Failed edits leave the
// input route untouched; updated legs are applied as a full group or not
// at all.

// MoveWaypoint relocates the via waypoint with the given ID and re-routes
// the two legs adjacent to it.
func (s *StitchService) MoveWaypoint(ctx context.Context, route *domain.Route, waypointID string, to domain.Point) (*domain.Route, error) {
	idx, err := viaIndex(route, waypointID)
	if err != nil {
		return nil, err
	}

	var before, after *domain.Segment
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		seg, err := s.oracle.RouteLeg(gctx, route.Waypoints[idx-1].Location, to, route.Profile)
		before = seg
		return err
	})
	g.Go(func() error {
		seg, err := s.oracle.RouteLeg(gctx, to, route.Waypoints[idx+1].Location, route.Profile)
		after = seg
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("re-route legs around waypoint %s: %w", waypointID, err)
	}

	waypoints := cloneWaypoints(route.Waypoints)
	waypoints[idx].Location = to

	segments := cloneSegments(route.Segments)
	segments[idx-1] = before
	segments[idx] = after

	return stitch(waypoints, segments, route.Profile), nil
}

// AddWaypoint splits leg afterLeg in two around the new point. All other
// legs are untouched.
func (s *StitchService) AddWaypoint(ctx context.Context, route *domain.Route, afterLeg int, at domain.Point) (*domain.Route, error) {
	if route == nil || len(route.Segments) == 0 {
		return nil, fmt.Errorf("route is not editable")
	}
	if afterLeg < 0 || afterLeg >= len(route.Segments) {
		return nil, fmt.Errorf("leg index %d out of range [0, %d)", afterLeg, len(route.Segments))
	}

	var first, second *domain.Segment
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		seg, err := s.oracle.RouteLeg(gctx, route.Waypoints[afterLeg].Location, at, route.Profile)
		first = seg
		return err
	})
	g.Go(func() error {
		seg, err := s.oracle.RouteLeg(gctx, at, route.Waypoints[afterLeg+1].Location, route.Profile)
		second = seg
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("route legs for new waypoint: %w", err)
	}

	waypoint := domain.Waypoint{ID: uuid.NewString(), Location: at, Role: domain.RoleVia}

	waypoints := make([]domain.Waypoint, 0, len(route.Waypoints)+1)
	waypoints = append(waypoints, route.Waypoints[:afterLeg+1]...)
	waypoints = append(waypoints, waypoint)
	waypoints = append(waypoints, route.Waypoints[afterLeg+1:]...)

	segments := make([]*domain.Segment, 0, len(route.Segments)+1)
	segments = append(segments, route.Segments[:afterLeg]...)
	segments = append(segments, first, second)
	segments = append(segments, route.Segments[afterLeg+1:]...)

	return stitch(waypoints, segments, route.Profile), nil
}

// RemoveWaypoint deletes a via waypoint, merging its two adjacent legs into
// one. Removal refuses to drop the loop below one via waypoint.
func (s *StitchService) RemoveWaypoint(ctx context.Context, route *domain.Route, waypointID string) (*domain.Route, error) {
	idx, err := viaIndex(route, waypointID)
	if err != nil {
		return nil, err
	}
	if route.ViaCount() < 2 {
		return nil, domain.ErrWaypointFloor
	}

	merged, err := s.oracle.RouteLeg(ctx, route.Waypoints[idx-1].Location, route.Waypoints[idx+1].Location, route.Profile)
	if err != nil {
		return nil, fmt.Errorf("merge legs around waypoint %s: %w", waypointID, err)
	}

	waypoints := make([]domain.Waypoint, 0, len(route.Waypoints)-1)
	waypoints = append(waypoints, route.Waypoints[:idx]...)
	waypoints = append(waypoints, route.Waypoints[idx+1:]...)

	segments := make([]*domain.Segment, 0, len(route.Segments)-1)
	segments = append(segments, route.Segments[:idx-1]...)
	segments = append(segments, merged)
	segments = append(segments, route.Segments[idx+1:]...)

	return stitch(waypoints, segments, route.Profile), nil
}

// viaIndex resolves a waypoint ID to its position, rejecting missing IDs,
// the start point, and non-editable routes.
func viaIndex(route *domain.Route, waypointID string) (int, error) {
	if route == nil || len(route.Segments) == 0 {
		return 0, fmt.Errorf("route is not editable")
	}
	idx := route.WaypointIndex(waypointID)
	if idx < 0 {
		return 0, fmt.Errorf("waypoint %s not found", waypointID)
	}
	if route.Waypoints[idx].Role == domain.RoleStart {
		return 0, fmt.Errorf("the start point cannot be edited")
	}
	return idx, nil
}

func cloneWaypoints(in []domain.Waypoint) []domain.Waypoint {
	out := make([]domain.Waypoint, len(in))
	copy(out, in)
	return out
}

func cloneSegments(in []*domain.Segment) []*domain.Segment {
	out := make([]*domain.Segment, len(in))
	copy(out, in)
	return out
}
