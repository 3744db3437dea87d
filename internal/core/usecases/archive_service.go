package usecases

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mzabaleta/veloloop/internal/core/domain"
	"github.com/mzabaleta/veloloop/internal/core/ports"
)

// ArchiveService handles explicit route saves. The engine itself holds no
// persistent state; only a deliberate save lands a route here.
type ArchiveService struct {
	archive ports.RouteArchive
	cache   ports.CacheService
}

// NewArchiveService creates an ArchiveService. cache may be nil.
func NewArchiveService(archive ports.RouteArchive, cache ports.CacheService) *ArchiveService {
	return &ArchiveService{archive: archive, cache: cache}
}

// Save archives a route under a user-chosen name.
func (s *ArchiveService) Save(ctx context.Context, name string, route *domain.Route) (*domain.SavedRoute, error) {
	if name == "" {
		return nil, fmt.Errorf("a saved route needs a name")
	}
	if route == nil || len(route.Geometry) == 0 {
		return nil, fmt.Errorf("cannot save an empty route")
	}

	saved := &domain.SavedRoute{
		ID:        uuid.NewString(),
		Name:      name,
		Route:     route,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.archive.Save(ctx, saved); err != nil {
		return nil, fmt.Errorf("save route: %w", err)
	}
	return saved, nil
}

// GetByID returns a single saved route.
func (s *ArchiveService) GetByID(ctx context.Context, id string) (*domain.SavedRoute, error) {
	cacheKey := "routes:id:" + id
	if s.cache != nil {
		if data, err := s.cache.Get(ctx, cacheKey); err == nil {
			var saved domain.SavedRoute
			if err := json.Unmarshal(data, &saved); err == nil {
				return &saved, nil
			}
		}
	}

	saved, err := s.archive.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if data, err := json.Marshal(saved); err == nil {
			_ = s.cache.Set(ctx, cacheKey, data, 600)
		}
	}
	return saved, nil
}

// List returns saved routes with offset/limit pagination and the total count.
func (s *ArchiveService) List(ctx context.Context, offset, limit int) ([]domain.SavedRoute, int, error) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.archive.List(ctx, offset, limit)
}

// Delete removes a saved route and drops its cache entry.
func (s *ArchiveService) Delete(ctx context.Context, id string) error {
	if err := s.archive.Delete(ctx, id); err != nil {
		return err
	}
	if s.cache != nil {
		_ = s.cache.Delete(ctx, "routes:id:"+id)
	}
	return nil
}
