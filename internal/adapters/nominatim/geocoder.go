package nominatim

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/mzabaleta/veloloop/internal/core/domain"
)

// Geocoder implements ports.Geocoder against a Nominatim-style search API.
type Geocoder struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a geocoding client.
func New(baseURL string, timeout time.Duration) *Geocoder {
	return &Geocoder{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type searchResult struct {
	Lat string `json:"lat"`
	Lon string `json:"lon"`
}

// Geocode resolves a place name to its best-match coordinate. A miss is
// domain.ErrPlaceNotFound; the caller treats it as an input error.
func (g *Geocoder) Geocode(ctx context.Context, name string) (domain.Point, error) {
	q := url.Values{}
	q.Set("q", name)
	q.Set("format", "json")
	q.Set("limit", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/search?"+q.Encode(), nil)
	if err != nil {
		return domain.Point{}, err
	}
	// Nominatim's usage policy requires an identifying user agent.
	req.Header.Set("User-Agent", "veloloop/1.0")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return domain.Point{}, fmt.Errorf("geocode request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.Point{}, fmt.Errorf("geocode error (HTTP %d)", resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return domain.Point{}, fmt.Errorf("read geocode response: %w", err)
	}

	var results []searchResult
	if err := json.Unmarshal(raw, &results); err != nil {
		return domain.Point{}, fmt.Errorf("decode geocode response: %w", err)
	}
	if len(results) == 0 {
		return domain.Point{}, fmt.Errorf("%q: %w", name, domain.ErrPlaceNotFound)
	}

	lat, err := strconv.ParseFloat(results[0].Lat, 64)
	if err != nil {
		return domain.Point{}, fmt.Errorf("parse geocode lat: %w", err)
	}
	lng, err := strconv.ParseFloat(results[0].Lon, 64)
	if err != nil {
		return domain.Point{}, fmt.Errorf("parse geocode lon: %w", err)
	}
	return domain.Point{Lat: lat, Lng: lng}, nil
}
