package usecases_test

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/mzabaleta/veloloop/internal/core/domain"
	"github.com/mzabaleta/veloloop/internal/core/usecases"
)

// legOracle routes each leg as a straight three-point segment, tagging the
// geometry with the leg's endpoints so stitched order can be verified.
func legOracle() *mockOracle {
	return &mockOracle{
		routeLegFn: func(ctx context.Context, from, to domain.Point, profile string) (*domain.Segment, error) {
			mid := domain.Coordinate3D{
				Lat: (from.Lat + to.Lat) / 2,
				Lng: (from.Lng + to.Lng) / 2,
			}
			return &domain.Segment{
				From: from,
				To:   to,
				Geometry: []domain.Coordinate3D{
					{Lat: from.Lat, Lng: from.Lng},
					mid,
					{Lat: to.Lat, Lng: to.Lng},
				},
				DistanceKm:     5,
				ElevationGainM: 40,
			}, nil
		},
	}
}

func editablePoints() []domain.Point {
	return []domain.Point{
		{Lat: 41.98, Lng: 2.82},
		{Lat: 42.05, Lng: 2.90},
		{Lat: 42.00, Lng: 2.98},
		{Lat: 41.98, Lng: 2.82},
	}
}

func TestBuildEditable(t *testing.T) {
	svc := usecases.NewStitchService(legOracle())

	route, err := svc.BuildEditable(context.Background(), editablePoints(), "bike")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(route.Waypoints) != 4 || len(route.Segments) != 3 {
		t.Fatalf("expected 4 waypoints and 3 segments, got %d/%d", len(route.Waypoints), len(route.Segments))
	}

	// Shared-point dedup: 3 legs of 3 points each, minus 2 duplicated joins.
	if len(route.Geometry) != 7 {
		t.Errorf("expected 7 geometry points, got %d", len(route.Geometry))
	}

	if math.Abs(route.DistanceKm-15) > 1e-9 {
		t.Errorf("distance must be the sum of the legs, got %.2f", route.DistanceKm)
	}
	if math.Abs(route.ElevationGainM-120) > 1e-9 {
		t.Errorf("ascent must be the sum of the legs, got %.1f", route.ElevationGainM)
	}

	first, last := route.Waypoints[0], route.Waypoints[3]
	if first.ID != last.ID {
		t.Error("the closing point must share the start's identity")
	}
	if first.Role != domain.RoleStart || route.Waypoints[1].Role != domain.RoleVia {
		t.Error("waypoint roles are wrong")
	}

	// Geometry must follow waypoint order regardless of which leg finished
	// first: it starts at the start and ends there too.
	start := route.Waypoints[0].Location
	if route.Geometry[0].Lat != start.Lat || route.Geometry[len(route.Geometry)-1].Lat != start.Lat {
		t.Error("stitched geometry must begin and end at the start point")
	}
}

func TestBuildEditable_SlotsByIndexNotCompletionOrder(t *testing.T) {
	// The first leg finishes last; the stitched geometry must still lead
	// with it.
	inner := legOracle()
	points := editablePoints()
	oracle := &mockOracle{
		routeLegFn: func(ctx context.Context, from, to domain.Point, profile string) (*domain.Segment, error) {
			if from == points[0] {
				time.Sleep(20 * time.Millisecond)
			}
			return inner.routeLegFn(ctx, from, to, profile)
		},
	}
	svc := usecases.NewStitchService(oracle)

	route, err := svc.BuildEditable(context.Background(), points, "bike")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if route.Segments[0].From != points[0] || route.Segments[0].To != points[1] {
		t.Error("segment 0 must connect the first waypoint pair")
	}
}

func TestBuildEditable_TooFewPoints(t *testing.T) {
	svc := usecases.NewStitchService(legOracle())
	if _, err := svc.BuildEditable(context.Background(), editablePoints()[:2], "bike"); err == nil {
		t.Error("expected error for a chain without a via point")
	}
}

func TestBuildEditable_LegFailureCancelsSiblings(t *testing.T) {
	boom := errors.New("no road")
	siblingSawCancel := make(chan bool, 2)
	oracle := &mockOracle{
		routeLegFn: func(ctx context.Context, from, to domain.Point, profile string) (*domain.Segment, error) {
			if from.Lat == 42.05 { // middle leg fails immediately
				return nil, boom
			}
			select {
			case <-ctx.Done():
				siblingSawCancel <- true
				return nil, ctx.Err()
			case <-time.After(2 * time.Second):
				siblingSawCancel <- false
				return &domain.Segment{}, errors.New("sibling was not cancelled")
			}
		},
	}
	svc := usecases.NewStitchService(oracle)

	_, err := svc.BuildEditable(context.Background(), editablePoints(), "bike")
	if !errors.Is(err, boom) {
		t.Fatalf("expected the failing leg's error, got %v", err)
	}
	if !strings.Contains(err.Error(), "leg 1") {
		t.Errorf("error should name the failing leg, got %q", err)
	}
	if !<-siblingSawCancel {
		t.Error("a failing leg must cancel its in-flight siblings")
	}
}

func TestRouteSingleLeg_PassThrough(t *testing.T) {
	svc := usecases.NewStitchService(legOracle())
	from, to := domain.Point{Lat: 41.98, Lng: 2.82}, domain.Point{Lat: 42.0, Lng: 2.9}

	seg, err := svc.RouteSingleLeg(context.Background(), from, to, "bike")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if seg.From != from || seg.To != to {
		t.Error("single-leg routing must hand back the oracle's segment unchanged")
	}
}
