package usecases

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/mzabaleta/veloloop/internal/core/domain"
	"github.com/mzabaleta/veloloop/internal/core/ports"
	"github.com/mzabaleta/veloloop/internal/pkg/metrics"
)

// ConvergenceConfig holds the retry-policy tunables of the loop generator.
type ConvergenceConfig struct {
	// MaxRetries is the shape/distance retry budget. Attempts = MaxRetries+1.
	MaxRetries int
	// MaxUnroutableAttempts is the independent budget for interior
	// point-not-found failures.
	MaxUnroutableAttempts int
	// DistanceTolerance is the accepted |actual/target − 1| deviation.
	DistanceTolerance float64
	// StarRotationDeg is added to the cumulative bearing rotation after a
	// star-shaped result, shifting subsequent waypoints onto different roads.
	StarRotationDeg float64
	// UnroutableRotationDeg is the rotation applied after an interior
	// point-not-found failure.
	UnroutableRotationDeg float64
	// UnroutableRadiusShrink rescales the radius after an interior
	// point-not-found failure, pulling waypoints back toward the start.
	UnroutableRadiusShrink float64

	Shape ShapeConfig
}

// DefaultConvergenceConfig returns the tuned retry policy.
func DefaultConvergenceConfig() ConvergenceConfig {
	return ConvergenceConfig{
		MaxRetries:             3,
		MaxUnroutableAttempts:  7,
		DistanceTolerance:      0.2,
		StarRotationDeg:        30,
		UnroutableRotationDeg:  45,
		UnroutableRadiusShrink: 0.95,
		Shape:                  DefaultShapeConfig(),
	}
}

// LoopResult is an accepted (or best-effort fallback) loop together with
// the winning attempt's planning geometry, which later seeds the editable
// segment chain.
type LoopResult struct {
	Route     *domain.Route
	Center    domain.Point
	RadiusKm  float64
	Waypoints []domain.Point // ordered [start, via…, start] of the winning attempt
	Attempts  int
	Accepted  bool // false when the result is a budget-exhaustion fallback
}

// LoopService drives loop generation: plan waypoints, call the oracle,
// judge distance and shape, adjust, repeat until acceptance or budget
// exhaustion.
type LoopService struct {
	oracle ports.RouteOracle
	cfg    ConvergenceConfig
}

// NewLoopService creates a LoopService with the given oracle and policy.
func NewLoopService(oracle ports.RouteOracle, cfg ConvergenceConfig) *LoopService {
	return &LoopService{oracle: oracle, cfg: cfg}
}

// candidate is one parsed attempt, scored by distance delta.
type candidate struct {
	result LoopResult
	delta  float64
	star   bool
}

// retryState is per-request controller state. Keeping the counters here,
// not at package level, keeps simultaneous requests independent.
type retryState struct {
	radiusKm    float64
	rotationDeg float64
	// The two budgets are independent: interior point-not-found failures
	// never consume shape/distance retries.
	shapeRetries       int
	unroutableAttempts int
	attempts           int

	best        *candidate // best-by-delta overall
	bestNonStar *candidate // best-by-delta among non-star results
}

// GenerateLoop synthesizes a closed loop for the request.
//
// Failure taxonomy: domain.ErrStartUnroutable when the start itself cannot
// be routed (no retry helps), domain.ErrNearCoastline when interior
// waypoints stayed unroutable through their budget, domain.ErrSparseRoads
// when no attempt ever parsed, and transparent oracle errors for anything
// transient.
func (s *LoopService) GenerateLoop(ctx context.Context, req domain.LoopRequest) (*LoopResult, error) {
	if req.TargetDistanceKm <= 0 {
		return nil, fmt.Errorf("target distance must be positive, got %.2f", req.TargetDistanceKm)
	}
	if len(req.Bearings) == 0 && len(req.NamedWaypoints) == 0 {
		return nil, fmt.Errorf("at least one bearing or named waypoint is required")
	}

	st := retryState{
		radiusKm: CalculateRadius(req.TargetDistanceKm, req.StretchFactor),
	}

	for {
		plan := PlanWaypoints(req.Start, req.Bearings, req.NamedWaypoints, st.rotationDeg, st.radiusKm)
		st.attempts++

		route, err := s.oracle.RouteLoop(ctx, plan.Points, req.Profile)
		if err != nil {
			if cerr := s.onOracleError(&st, plan, err); cerr != nil {
				return nil, cerr
			}
			continue
		}

		if done := s.onParsedRoute(&st, req, plan, route); done != nil {
			metrics.LoopOutcomes.WithLabelValues("accepted").Inc()
			return done, nil
		}

		if st.shapeRetries >= s.cfg.MaxRetries {
			return s.exhausted(&st)
		}
		st.shapeRetries++
	}
}

// onOracleError applies the point-not-found policy. A nil return means the
// attempt may be retried with adjusted parameters.
func (s *LoopService) onOracleError(st *retryState, plan LoopPlan, err error) error {
	pnf, ok := domain.AsPointNotFound(err)
	if !ok {
		// Transient oracle failure: surfaced as-is, not retried here.
		metrics.LoopOutcomes.WithLabelValues("oracle_error").Inc()
		return fmt.Errorf("routing oracle: %w", err)
	}

	if pnf.Index == 0 || pnf.Index == len(plan.Points)-1 {
		// The start (or its closing repeat) is unroutable. Fatal: no
		// geometric adjustment fixes this, and it must not consume the
		// shape/distance budget.
		metrics.LoopOutcomes.WithLabelValues("fatal_start").Inc()
		return domain.ErrStartUnroutable
	}

	st.unroutableAttempts++
	if st.unroutableAttempts >= s.cfg.MaxUnroutableAttempts {
		metrics.LoopOutcomes.WithLabelValues("coastline").Inc()
		return domain.ErrNearCoastline
	}

	slog.Debug("interior waypoint unroutable, adjusting",
		"index", pnf.Index,
		"attempt", st.unroutableAttempts,
		"radius_km", st.radiusKm)

	st.rotationDeg += s.cfg.UnroutableRotationDeg
	st.radiusKm *= s.cfg.UnroutableRadiusShrink
	return nil
}

// onParsedRoute scores a parsed attempt and returns a result when the
// attempt is accepted outright.
func (s *LoopService) onParsedRoute(st *retryState, req domain.LoopRequest, plan LoopPlan, route *domain.Route) *LoopResult {
	ratio := route.DistanceKm / req.TargetDistanceKm
	delta := math.Abs(ratio - 1)
	star := s.cfg.Shape.IsStarShaped(route.Geometry, plan.Center, plan.RadiusKm)
	metrics.LoopAttempts.WithLabelValues(boolLabel(star)).Inc()

	cand := &candidate{
		result: LoopResult{
			Route:     route,
			Center:    plan.Center,
			RadiusKm:  plan.RadiusKm,
			Waypoints: plan.Points,
			Attempts:  st.attempts,
		},
		delta: delta,
		star:  star,
	}
	if st.best == nil || delta < st.best.delta {
		st.best = cand
	}
	if !star && (st.bestNonStar == nil || delta < st.bestNonStar.delta) {
		st.bestNonStar = cand
	}

	if delta <= s.cfg.DistanceTolerance && !star {
		cand.result.Accepted = true
		return &cand.result
	}

	slog.Debug("loop attempt rejected",
		"attempt", st.attempts,
		"distance_km", route.DistanceKm,
		"delta", delta,
		"star", star)

	if star {
		st.rotationDeg += s.cfg.StarRotationDeg
	}
	if ratio > 0 {
		// Rescale toward the target: a too-long loop shrinks the radius,
		// a too-short one grows it.
		st.radiusKm = st.radiusKm / ratio
	}
	return nil
}

// exhausted resolves the shape/distance budget running out. Loop-shape
// correctness dominates distance accuracy: the best non-star result wins
// even when its distance error is larger than the best overall result's.
func (s *LoopService) exhausted(st *retryState) (*LoopResult, error) {
	switch {
	case st.bestNonStar != nil:
		metrics.LoopOutcomes.WithLabelValues("fallback_non_star").Inc()
		r := st.bestNonStar.result
		r.Attempts = st.attempts
		return &r, nil
	case st.best != nil:
		metrics.LoopOutcomes.WithLabelValues("fallback_best").Inc()
		r := st.best.result
		r.Attempts = st.attempts
		return &r, nil
	default:
		metrics.LoopOutcomes.WithLabelValues("sparse").Inc()
		return nil, domain.ErrSparseRoads
	}
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
