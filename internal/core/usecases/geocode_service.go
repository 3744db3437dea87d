package usecases

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mzabaleta/veloloop/internal/core/domain"
	"github.com/mzabaleta/veloloop/internal/core/ports"
	"github.com/mzabaleta/veloloop/internal/pkg/metrics"
)

// GeocodeService resolves place names through the geocoding collaborator,
// with read-through caching. A miss from the collaborator is an upstream
// input error and is never retried.
type GeocodeService struct {
	geocoder ports.Geocoder
	cache    ports.CacheService
}

// NewGeocodeService creates a GeocodeService. cache may be nil.
func NewGeocodeService(geocoder ports.Geocoder, cache ports.CacheService) *GeocodeService {
	return &GeocodeService{geocoder: geocoder, cache: cache}
}

// Geocode resolves a place name to a coordinate.
func (s *GeocodeService) Geocode(ctx context.Context, name string) (domain.Point, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Point{}, fmt.Errorf("place name must not be empty")
	}

	cacheKey := "geocode:" + strings.ToLower(name)
	if s.cache != nil {
		if data, err := s.cache.Get(ctx, cacheKey); err == nil {
			var p domain.Point
			if err := json.Unmarshal(data, &p); err == nil {
				metrics.CacheHits.WithLabelValues("geocode").Inc()
				return p, nil
			}
		}
		metrics.CacheMisses.WithLabelValues("geocode").Inc()
	}

	p, err := s.geocoder.Geocode(ctx, name)
	if err != nil {
		return domain.Point{}, err
	}

	// Place coordinates are effectively immutable; cache for a day.
	if s.cache != nil {
		if data, err := json.Marshal(p); err == nil {
			_ = s.cache.Set(ctx, cacheKey, data, 86400)
		}
	}
	return p, nil
}
