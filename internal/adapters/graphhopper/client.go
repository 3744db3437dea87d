package graphhopper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/mzabaleta/veloloop/internal/core/domain"
	"github.com/mzabaleta/veloloop/internal/pkg/metrics"
	"github.com/mzabaleta/veloloop/internal/pkg/telemetry"
)

// Client implements ports.RouteOracle against a GraphHopper-style routing
// API. The oracle computes the actual road paths; this client only shapes
// requests, parses responses, and classifies failures.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// New creates a routing client. timeout bounds every oracle call.
func New(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// routeRequest is the oracle's request body. Points are in the API's
// native [lng, lat] order.
type routeRequest struct {
	Points        [][]float64 `json:"points"`
	Profile       string      `json:"profile"`
	Elevation     bool        `json:"elevation"`
	PointsEncoded bool        `json:"points_encoded"`
	Instructions  bool        `json:"instructions"`
	CalcPoints    bool        `json:"calc_points"`
}

// ghPath is one computed path in the oracle's response.
type ghPath struct {
	Distance float64 `json:"distance"` // meters
	Ascend   float64 `json:"ascend"`   // meters
	Points   struct {
		Coordinates [][]float64 `json:"coordinates"` // [lng, lat, ele]
	} `json:"points"`
}

type routeResponse struct {
	Paths []ghPath `json:"paths"`
}

type errorResponse struct {
	Message string `json:"message"`
	Hints   []struct {
		Message    string `json:"message"`
		Details    string `json:"details"`
		PointIndex *int   `json:"point_index"`
	} `json:"hints"`
}

// RouteLoop routes the ordered point list [start, wp1..wpN, start] in one
// call and returns the stitched-by-the-oracle loop.
func (c *Client) RouteLoop(ctx context.Context, points []domain.Point, profile string) (*domain.Route, error) {
	if len(points) < 2 {
		return nil, fmt.Errorf("a route needs at least 2 points, got %d", len(points))
	}
	path, err := c.route(ctx, "loop", points, profile)
	if err != nil {
		return nil, err
	}
	return &domain.Route{
		Geometry:       convertCoordinates(path.Points.Coordinates),
		DistanceKm:     path.Distance / 1000,
		ElevationGainM: path.Ascend,
		Profile:        profile,
	}, nil
}

// RouteLeg routes a single leg between two points.
func (c *Client) RouteLeg(ctx context.Context, from, to domain.Point, profile string) (*domain.Segment, error) {
	path, err := c.route(ctx, "leg", []domain.Point{from, to}, profile)
	if err != nil {
		return nil, err
	}
	return &domain.Segment{
		From:           from,
		To:             to,
		Geometry:       convertCoordinates(path.Points.Coordinates),
		DistanceKm:     path.Distance / 1000,
		ElevationGainM: path.Ascend,
	}, nil
}

func (c *Client) route(ctx context.Context, kind string, points []domain.Point, profile string) (*ghPath, error) {
	ctx, span := telemetry.StartOracleSpan(ctx, kind, len(points))
	defer span.End()

	start := time.Now()
	path, err := c.doRoute(ctx, points, profile)
	metrics.OracleCallDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	metrics.OracleCalls.WithLabelValues(kind, callStatus(err)).Inc()
	if err != nil {
		span.RecordError(err)
	}
	return path, err
}

func (c *Client) doRoute(ctx context.Context, points []domain.Point, profile string) (*ghPath, error) {
	native := make([][]float64, len(points))
	for i, p := range points {
		native[i] = []float64{p.Lng, p.Lat}
	}
	body, err := json.Marshal(routeRequest{
		Points:        native,
		Profile:       profile,
		Elevation:     true,
		PointsEncoded: false,
		Instructions:  false,
		CalcPoints:    true,
	})
	if err != nil {
		return nil, err
	}

	url := c.baseURL + "/route"
	if c.apiKey != "" {
		url += "?key=" + c.apiKey
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("oracle request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, fmt.Errorf("read oracle response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, classifyError(resp.StatusCode, raw)
	}

	var parsed routeResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode oracle response: %w", err)
	}
	if len(parsed.Paths) == 0 {
		return nil, fmt.Errorf("oracle returned no paths")
	}
	return &parsed.Paths[0], nil
}

// pointNotFoundRe matches the oracle's unroutable-point message, capturing
// the offending point's positional index.
var pointNotFoundRe = regexp.MustCompile(`[Cc]annot find point (\d+)`)

// classifyError separates the specifically-recognized unroutable-point
// failure (tagged with its point index) from generic hard errors.
func classifyError(status int, body []byte) error {
	var er errorResponse
	if err := json.Unmarshal(body, &er); err == nil {
		for _, hint := range er.Hints {
			if hint.PointIndex != nil {
				return &domain.PointNotFoundError{Index: *hint.PointIndex}
			}
		}
		if m := pointNotFoundRe.FindStringSubmatch(er.Message); m != nil {
			idx, _ := strconv.Atoi(m[1])
			return &domain.PointNotFoundError{Index: idx}
		}
		if er.Message != "" {
			return fmt.Errorf("oracle error (HTTP %d): %s", status, er.Message)
		}
	}
	return fmt.Errorf("oracle error (HTTP %d)", status)
}

// convertCoordinates maps the oracle's native [lng, lat, ele] order into
// the system's lat/lng/ele coordinates.
func convertCoordinates(coords [][]float64) []domain.Coordinate3D {
	out := make([]domain.Coordinate3D, 0, len(coords))
	for _, c := range coords {
		if len(c) < 2 {
			continue
		}
		p := domain.Coordinate3D{Lng: c[0], Lat: c[1]}
		if len(c) > 2 {
			p.Ele = c[2]
		}
		out = append(out, p)
	}
	return out
}

func callStatus(err error) string {
	switch {
	case err == nil:
		return "ok"
	default:
		if _, ok := domain.AsPointNotFound(err); ok {
			return "point_not_found"
		}
		return "error"
	}
}
