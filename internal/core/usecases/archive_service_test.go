package usecases_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/mzabaleta/veloloop/internal/core/domain"
	"github.com/mzabaleta/veloloop/internal/core/usecases"
)

type mockArchive struct {
	mu     sync.Mutex
	routes map[string]*domain.SavedRoute
	gets   int
}

func newMockArchive() *mockArchive {
	return &mockArchive{routes: make(map[string]*domain.SavedRoute)}
}

func (a *mockArchive) Save(_ context.Context, saved *domain.SavedRoute) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.routes[saved.ID] = saved
	return nil
}

func (a *mockArchive) GetByID(_ context.Context, id string) (*domain.SavedRoute, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.gets++
	saved, ok := a.routes[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return saved, nil
}

func (a *mockArchive) List(_ context.Context, offset, limit int) ([]domain.SavedRoute, int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	all := make([]domain.SavedRoute, 0, len(a.routes))
	for _, r := range a.routes {
		all = append(all, *r)
	}
	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (a *mockArchive) Delete(_ context.Context, id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.routes, id)
	return nil
}

func TestArchiveSaveAssignsIDAndTimestamp(t *testing.T) {
	archive := newMockArchive()
	svc := usecases.NewArchiveService(archive, nil)
	route := buildTestRoute(t, usecases.NewStitchService(legOracle()))

	saved, err := svc.Save(context.Background(), "morning loop", route)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if saved.ID == "" {
		t.Error("saved route has no ID")
	}
	if saved.CreatedAt.IsZero() {
		t.Error("saved route has no creation time")
	}
	if saved.Name != "morning loop" {
		t.Errorf("name = %q, want %q", saved.Name, "morning loop")
	}
	if _, ok := archive.routes[saved.ID]; !ok {
		t.Error("route not persisted to archive")
	}
}

func TestArchiveSaveRejectsBadInput(t *testing.T) {
	svc := usecases.NewArchiveService(newMockArchive(), nil)
	route := buildTestRoute(t, usecases.NewStitchService(legOracle()))

	if _, err := svc.Save(context.Background(), "", route); err == nil {
		t.Error("expected error for empty name")
	}
	if _, err := svc.Save(context.Background(), "loop", nil); err == nil {
		t.Error("expected error for nil route")
	}
	if _, err := svc.Save(context.Background(), "loop", &domain.Route{}); err == nil {
		t.Error("expected error for route without geometry")
	}
}

func TestArchiveGetByIDUsesCache(t *testing.T) {
	archive := newMockArchive()
	cache := newMockCache()
	svc := usecases.NewArchiveService(archive, cache)
	route := buildTestRoute(t, usecases.NewStitchService(legOracle()))

	saved, err := svc.Save(context.Background(), "loop", route)
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	if _, err := svc.GetByID(context.Background(), saved.ID); err != nil {
		t.Fatalf("first get: %v", err)
	}
	got, err := svc.GetByID(context.Background(), saved.ID)
	if err != nil {
		t.Fatalf("second get: %v", err)
	}
	if got.ID != saved.ID {
		t.Errorf("got route %q, want %q", got.ID, saved.ID)
	}
	if archive.gets != 1 {
		t.Errorf("archive hit %d times, want 1", archive.gets)
	}
}

func TestArchiveDeleteDropsCacheEntry(t *testing.T) {
	archive := newMockArchive()
	cache := newMockCache()
	svc := usecases.NewArchiveService(archive, cache)
	route := buildTestRoute(t, usecases.NewStitchService(legOracle()))

	saved, err := svc.Save(context.Background(), "loop", route)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := svc.GetByID(context.Background(), saved.ID); err != nil {
		t.Fatalf("warm cache: %v", err)
	}

	if err := svc.Delete(context.Background(), saved.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	wantKey := "routes:id:" + saved.ID
	found := false
	for _, key := range cache.deletes {
		if key == wantKey {
			found = true
		}
	}
	if !found {
		t.Errorf("cache entry %q not deleted", wantKey)
	}
}

func TestArchiveListClampsPagination(t *testing.T) {
	archive := newMockArchive()
	svc := usecases.NewArchiveService(archive, nil)
	route := buildTestRoute(t, usecases.NewStitchService(legOracle()))
	for i := 0; i < 3; i++ {
		if _, err := svc.Save(context.Background(), "loop", route); err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	routes, total, err := svc.List(context.Background(), -5, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 3 {
		t.Errorf("total = %d, want 3", total)
	}
	if len(routes) != 3 {
		t.Errorf("len = %d, want 3", len(routes))
	}
}
