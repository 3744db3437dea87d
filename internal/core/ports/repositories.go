package ports

import (
	"context"

	"github.com/mzabaleta/veloloop/internal/core/domain"
)

// RouteArchive persists explicitly saved routes. The engine's working state
// is in-memory per session; only a deliberate save action touches storage.
type RouteArchive interface {
	Save(ctx context.Context, saved *domain.SavedRoute) error
	GetByID(ctx context.Context, id string) (*domain.SavedRoute, error)
	List(ctx context.Context, offset, limit int) ([]domain.SavedRoute, int, error)
	Delete(ctx context.Context, id string) error
}
