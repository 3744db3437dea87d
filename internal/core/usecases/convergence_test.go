package usecases_test

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/mzabaleta/veloloop/internal/core/domain"
	"github.com/mzabaleta/veloloop/internal/core/usecases"
	"github.com/mzabaleta/veloloop/internal/pkg/geodesic"
)

// --- Mock RouteOracle ---

type mockOracle struct {
	routeLoopFn func(ctx context.Context, points []domain.Point, profile string) (*domain.Route, error)
	routeLegFn  func(ctx context.Context, from, to domain.Point, profile string) (*domain.Segment, error)
}

func (m *mockOracle) RouteLoop(ctx context.Context, points []domain.Point, profile string) (*domain.Route, error) {
	if m.routeLoopFn != nil {
		return m.routeLoopFn(ctx, points, profile)
	}
	return nil, errors.New("no routeLoopFn")
}

func (m *mockOracle) RouteLeg(ctx context.Context, from, to domain.Point, profile string) (*domain.Segment, error) {
	if m.routeLegFn != nil {
		return m.routeLegFn(ctx, from, to, profile)
	}
	return nil, errors.New("no routeLegFn")
}

// loopAround fabricates an oracle response: a route of the given length
// whose geometry is a clean circle around the attempt's planned center.
// The center is reconstructed from the call's point list the same way the
// planner lays it out (start on the perimeter, center one radius inward).
func loopAround(points []domain.Point, radiusKm, distanceKm float64) *domain.Route {
	center := centerOf(points[0], points[1], radiusKm)
	return &domain.Route{
		Geometry:   circlePath(center, radiusKm, 40),
		DistanceKm: distanceKm,
	}
}

// centerOf reconstructs the planned center: it sits radius away from the
// start, and two radii from the start lies the first via, so the center is
// the midpoint of that chord on a small-scale flat approximation.
func centerOf(start, firstVia domain.Point, radiusKm float64) domain.Point {
	return domain.Point{
		Lat: (start.Lat + firstVia.Lat) / 2,
		Lng: (start.Lng + firstVia.Lng) / 2,
	}
}

func baseRequest() domain.LoopRequest {
	return domain.LoopRequest{
		Start:            girona,
		TargetDistanceKm: 60,
		StretchFactor:    1.3,
		Profile:          "bike",
		Bearings:         []float64{90},
	}
}

func TestGenerateLoop_AcceptsFirstGoodAttempt(t *testing.T) {
	calls := 0
	oracle := &mockOracle{
		routeLoopFn: func(ctx context.Context, points []domain.Point, profile string) (*domain.Route, error) {
			calls++
			r := usecases.CalculateRadius(60, 1.3)
			return loopAround(points, r, 58), nil
		},
	}
	svc := usecases.NewLoopService(oracle, usecases.DefaultConvergenceConfig())

	result, err := svc.GenerateLoop(context.Background(), baseRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Accepted {
		t.Error("a 58 km result for a 60 km target is within tolerance and must be accepted")
	}
	if calls != 1 || result.Attempts != 1 {
		t.Errorf("expected exactly 1 oracle call, got %d (attempts %d)", calls, result.Attempts)
	}
	if result.Route.DistanceKm != 58 {
		t.Errorf("expected the oracle's route, got distance %.1f", result.Route.DistanceKm)
	}
}

func TestGenerateLoop_RescalesRadiusTowardTarget(t *testing.T) {
	initial := usecases.CalculateRadius(60, 1.3)
	var viaDistances []float64
	calls := 0
	oracle := &mockOracle{
		routeLoopFn: func(ctx context.Context, points []domain.Point, profile string) (*domain.Route, error) {
			calls++
			// With one bearing, the first via sits diametrically opposite
			// the start: two radii away.
			viaDistances = append(viaDistances, geodesic.Distance(points[0], points[1]))
			if calls == 1 {
				return loopAround(points, initial, 120), nil // ratio 2: too long
			}
			return loopAround(points, initial/2, 60), nil
		},
	}
	svc := usecases.NewLoopService(oracle, usecases.DefaultConvergenceConfig())

	result, err := svc.GenerateLoop(context.Background(), baseRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Accepted || result.Attempts != 2 {
		t.Errorf("expected acceptance on attempt 2, got accepted=%v attempts=%d", result.Accepted, result.Attempts)
	}
	if math.Abs(viaDistances[0]-2*initial) > 0.05 {
		t.Errorf("attempt 1 should use the initial radius, via distance %.3f", viaDistances[0])
	}
	// Ratio 2 halves the radius for the second attempt.
	if math.Abs(viaDistances[1]-initial) > 0.05 {
		t.Errorf("attempt 2 should use half the radius, via distance %.3f", viaDistances[1])
	}
}

func TestGenerateLoop_StarTriggersRotation(t *testing.T) {
	radius := usecases.CalculateRadius(60, 1.3)
	calls := 0
	oracle := &mockOracle{
		routeLoopFn: func(ctx context.Context, points []domain.Point, profile string) (*domain.Route, error) {
			calls++
			if calls == 1 {
				// Right distance, wrong shape: dip through the hub.
				route := loopAround(points, radius, 60)
				center := centerOf(points[0], points[1], radius)
				route.Geometry[20] = atDistance(center, 0.2)
				return route, nil
			}
			return loopAround(points, radius, 60), nil
		},
	}
	svc := usecases.NewLoopService(oracle, usecases.DefaultConvergenceConfig())

	result, err := svc.GenerateLoop(context.Background(), baseRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Accepted || result.Attempts != 2 {
		t.Fatalf("expected acceptance on attempt 2, got accepted=%v attempts=%d", result.Accepted, result.Attempts)
	}

	// The retry must have rotated the whole layout by the star rotation:
	// loop direction 90 becomes 120.
	wantCenter := geodesic.Project(girona, 120, radius)
	if geodesic.Distance(wantCenter, result.Center) > 0.01 {
		t.Error("star retry should rotate the loop direction by the star rotation")
	}
}

func TestGenerateLoop_ShapeBudget_FallsBackToNonStar(t *testing.T) {
	radius := usecases.CalculateRadius(60, 1.3)
	calls := 0
	oracle := &mockOracle{
		routeLoopFn: func(ctx context.Context, points []domain.Point, profile string) (*domain.Route, error) {
			calls++
			center := centerOf(points[0], points[1], radius)
			if calls == 2 {
				// Non-star but way off target.
				return loopAround(points, radius, 95), nil
			}
			route := loopAround(points, radius, 60)
			route.Geometry[20] = atDistance(center, 0.2) // star
			return route, nil
		},
	}
	svc := usecases.NewLoopService(oracle, usecases.DefaultConvergenceConfig())

	result, err := svc.GenerateLoop(context.Background(), baseRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 4 {
		t.Errorf("budget of 3 retries means exactly 4 oracle calls, got %d", calls)
	}
	if result.Accepted {
		t.Error("a budget-exhaustion fallback must not be marked accepted")
	}
	// Loop shape beats distance accuracy: the 95 km non-star result wins
	// over the on-target star results.
	if result.Route.DistanceKm != 95 {
		t.Errorf("expected the non-star fallback, got distance %.1f", result.Route.DistanceKm)
	}
}

func TestGenerateLoop_AllStar_FallsBackToBestDelta(t *testing.T) {
	radius := usecases.CalculateRadius(60, 1.3)
	distances := []float64{100, 80, 75, 90}
	calls := 0
	oracle := &mockOracle{
		routeLoopFn: func(ctx context.Context, points []domain.Point, profile string) (*domain.Route, error) {
			center := centerOf(points[0], points[1], radius)
			route := loopAround(points, radius, distances[calls])
			route.Geometry[20] = atDistance(center, 0.2) // all star
			calls++
			return route, nil
		},
	}
	svc := usecases.NewLoopService(oracle, usecases.DefaultConvergenceConfig())

	result, err := svc.GenerateLoop(context.Background(), baseRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Accepted {
		t.Error("all-star fallback must not be marked accepted")
	}
	if result.Route.DistanceKm != 75 {
		t.Errorf("expected the smallest-delta result (75 km), got %.1f", result.Route.DistanceKm)
	}
}

func TestGenerateLoop_UnroutableStartIsFatal(t *testing.T) {
	calls := 0
	oracle := &mockOracle{
		routeLoopFn: func(ctx context.Context, points []domain.Point, profile string) (*domain.Route, error) {
			calls++
			return nil, &domain.PointNotFoundError{Index: 0}
		},
	}
	svc := usecases.NewLoopService(oracle, usecases.DefaultConvergenceConfig())

	_, err := svc.GenerateLoop(context.Background(), baseRequest())
	if !errors.Is(err, domain.ErrStartUnroutable) {
		t.Fatalf("expected ErrStartUnroutable, got %v", err)
	}
	if calls != 1 {
		t.Errorf("an unroutable start must fail after exactly 1 call, got %d", calls)
	}
}

func TestGenerateLoop_UnroutableClosingPointIsFatal(t *testing.T) {
	oracle := &mockOracle{
		routeLoopFn: func(ctx context.Context, points []domain.Point, profile string) (*domain.Route, error) {
			return nil, &domain.PointNotFoundError{Index: len(points) - 1}
		},
	}
	svc := usecases.NewLoopService(oracle, usecases.DefaultConvergenceConfig())

	_, err := svc.GenerateLoop(context.Background(), baseRequest())
	if !errors.Is(err, domain.ErrStartUnroutable) {
		t.Fatalf("expected ErrStartUnroutable for the closing repeat, got %v", err)
	}
}

func TestGenerateLoop_InteriorUnroutable_ExhaustsToCoastline(t *testing.T) {
	calls := 0
	oracle := &mockOracle{
		routeLoopFn: func(ctx context.Context, points []domain.Point, profile string) (*domain.Route, error) {
			calls++
			return nil, &domain.PointNotFoundError{Index: 1}
		},
	}
	svc := usecases.NewLoopService(oracle, usecases.DefaultConvergenceConfig())

	_, err := svc.GenerateLoop(context.Background(), baseRequest())
	if !errors.Is(err, domain.ErrNearCoastline) {
		t.Fatalf("expected ErrNearCoastline, got %v", err)
	}
	if calls != 7 {
		t.Errorf("the unroutable budget allows exactly 7 calls, got %d", calls)
	}
}

func TestGenerateLoop_InteriorUnroutable_RotatesAndShrinks(t *testing.T) {
	initial := usecases.CalculateRadius(60, 1.3)
	calls := 0
	oracle := &mockOracle{
		routeLoopFn: func(ctx context.Context, points []domain.Point, profile string) (*domain.Route, error) {
			calls++
			if calls == 1 {
				return nil, &domain.PointNotFoundError{Index: 1}
			}
			// Attempt 2 must be rotated +45 and shrunk by 0.95.
			shrunk := initial * 0.95
			wantCenter := geodesic.Project(girona, 135, shrunk)
			center := centerOf(points[0], points[1], shrunk)
			if geodesic.Distance(wantCenter, center) > 0.05 {
				t.Errorf("attempt 2 not rotated/shrunk as expected")
			}
			return loopAround(points, shrunk, 60), nil
		},
	}
	svc := usecases.NewLoopService(oracle, usecases.DefaultConvergenceConfig())

	result, err := svc.GenerateLoop(context.Background(), baseRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Accepted || result.Attempts != 2 {
		t.Errorf("expected acceptance on attempt 2, got accepted=%v attempts=%d", result.Accepted, result.Attempts)
	}
}

func TestGenerateLoop_BudgetsAreIndependent(t *testing.T) {
	radius := usecases.CalculateRadius(60, 1.3)
	calls := 0
	oracle := &mockOracle{
		routeLoopFn: func(ctx context.Context, points []domain.Point, profile string) (*domain.Route, error) {
			calls++
			if calls <= 6 {
				// Six interior failures: one short of the unroutable budget.
				return nil, &domain.PointNotFoundError{Index: 1}
			}
			// Then four on-target star results to drain the shape budget.
			center := centerOf(points[0], points[1], radius)
			route := loopAround(points, radius, 60)
			route.Geometry[20] = atDistance(center, 0.2)
			return route, nil
		},
	}
	svc := usecases.NewLoopService(oracle, usecases.DefaultConvergenceConfig())

	result, err := svc.GenerateLoop(context.Background(), baseRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 10 {
		t.Errorf("interior failures must not consume shape retries: expected 10 calls, got %d", calls)
	}
	if result.Accepted {
		t.Error("expected a fallback result")
	}
}

func TestGenerateLoop_TransientOracleError(t *testing.T) {
	calls := 0
	boom := fmt.Errorf("upstream 503")
	oracle := &mockOracle{
		routeLoopFn: func(ctx context.Context, points []domain.Point, profile string) (*domain.Route, error) {
			calls++
			return nil, boom
		},
	}
	svc := usecases.NewLoopService(oracle, usecases.DefaultConvergenceConfig())

	_, err := svc.GenerateLoop(context.Background(), baseRequest())
	if !errors.Is(err, boom) {
		t.Fatalf("transient errors must surface wrapped, got %v", err)
	}
	if calls != 1 {
		t.Errorf("transient errors are not retried here, got %d calls", calls)
	}
}

func TestGenerateLoop_RejectsBadRequests(t *testing.T) {
	svc := usecases.NewLoopService(&mockOracle{}, usecases.DefaultConvergenceConfig())

	req := baseRequest()
	req.TargetDistanceKm = 0
	if _, err := svc.GenerateLoop(context.Background(), req); err == nil {
		t.Error("expected error for non-positive target distance")
	}

	req = baseRequest()
	req.Bearings = nil
	if _, err := svc.GenerateLoop(context.Background(), req); err == nil {
		t.Error("expected error for a request with no bearings or waypoints")
	}
}
