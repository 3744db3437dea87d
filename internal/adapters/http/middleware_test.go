package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	handler "github.com/mzabaleta/veloloop/internal/adapters/http"
	"github.com/mzabaleta/veloloop/internal/core/domain"
	"github.com/mzabaleta/veloloop/internal/core/usecases"
)

type memArchive struct {
	mu     sync.Mutex
	routes map[string]*domain.SavedRoute
	order  []string
}

func newMemArchive() *memArchive {
	return &memArchive{routes: make(map[string]*domain.SavedRoute)}
}

func (a *memArchive) Save(_ context.Context, saved *domain.SavedRoute) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.routes[saved.ID] = saved
	a.order = append(a.order, saved.ID)
	return nil
}

func (a *memArchive) GetByID(_ context.Context, id string) (*domain.SavedRoute, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	saved, ok := a.routes[id]
	if !ok {
		return nil, domain.ErrRouteNotFound
	}
	return saved, nil
}

func (a *memArchive) List(_ context.Context, offset, limit int) ([]domain.SavedRoute, int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	total := len(a.order)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	out := make([]domain.SavedRoute, 0, end-offset)
	for _, id := range a.order[offset:end] {
		out = append(out, *a.routes[id])
	}
	return out, total, nil
}

func (a *memArchive) Delete(_ context.Context, id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.routes[id]; !ok {
		return domain.ErrRouteNotFound
	}
	delete(a.routes, id)
	return nil
}

// seedArchive stores n minimal saved routes with predictable IDs.
func seedArchive(archive *memArchive, n int) {
	for i := 0; i < n; i++ {
		_ = archive.Save(context.Background(), &domain.SavedRoute{
			ID:   fmt.Sprintf("route-%02d", i),
			Name: fmt.Sprintf("loop %d", i),
			Route: &domain.Route{
				Geometry:   []domain.Coordinate3D{{Lat: 41.98, Lng: 2.82}, {Lat: 42.0, Lng: 2.9}},
				DistanceKm: 60,
				Profile:    "bike",
			},
			CreatedAt: time.Now().UTC(),
		})
	}
}

func archiveDeps(archive *memArchive) *handler.Dependencies {
	deps := makeDeps(goodOracle(), &mockGeocoder{})
	deps.Archive = usecases.NewArchiveService(archive, nil)
	return deps
}

func TestGetSavedRoute_NotFound(t *testing.T) {
	app := setupApp(archiveDeps(newMemArchive()))

	resp, err := app.Test(httptest.NewRequest("GET", "/v1/routes/nope", nil), -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != 404 {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
	var apiErr handler.APIError
	if err := json.NewDecoder(resp.Body).Decode(&apiErr); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if apiErr.Code != "not_found" {
		t.Errorf("code = %q, want not_found", apiErr.Code)
	}
}

func TestSavedRouteETagRevalidation(t *testing.T) {
	archive := newMemArchive()
	seedArchive(archive, 1)
	app := setupApp(archiveDeps(archive))

	resp, err := app.Test(httptest.NewRequest("GET", "/v1/routes/route-00", nil), -1)
	if err != nil {
		t.Fatalf("first request failed: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	etag := resp.Header.Get("ETag")
	if !strings.HasPrefix(etag, `W/"`) {
		t.Fatalf("expected a weak ETag, got %q", etag)
	}

	req := httptest.NewRequest("GET", "/v1/routes/route-00", nil)
	req.Header.Set("If-None-Match", etag)
	resp, err = app.Test(req, -1)
	if err != nil {
		t.Fatalf("revalidation request failed: %v", err)
	}
	if resp.StatusCode != 304 {
		t.Errorf("expected 304, got %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if len(body) != 0 {
		t.Errorf("304 must have an empty body, got %d bytes", len(body))
	}
}

func TestSessionResponsesCarryNoETag(t *testing.T) {
	app := setupApp(makeDeps(goodOracle(), &mockGeocoder{}))
	sessionID, _ := createSession(t, app)

	resp, err := app.Test(httptest.NewRequest("GET", "/v1/sessions/"+sessionID, nil), -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if etag := resp.Header.Get("ETag"); etag != "" {
		t.Errorf("session responses are no-store and must not carry an ETag, got %q", etag)
	}
}

func TestListRoutesPaginationClamped(t *testing.T) {
	archive := newMemArchive()
	seedArchive(archive, 3)
	app := setupApp(archiveDeps(archive))

	resp, err := app.Test(httptest.NewRequest("GET", "/v1/routes?limit=500&offset=-3", nil), -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var page struct {
		Pagination handler.Pagination `json:"pagination"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if page.Pagination.Offset != 0 {
		t.Errorf("offset = %d, want 0", page.Pagination.Offset)
	}
	if page.Pagination.Limit != 20 {
		t.Errorf("limit = %d, want the default of 20", page.Pagination.Limit)
	}
	if page.Pagination.Total != 3 {
		t.Errorf("total = %d, want 3", page.Pagination.Total)
	}
}

func TestListRoutesLinkHeaders(t *testing.T) {
	archive := newMemArchive()
	seedArchive(archive, 25)
	app := setupApp(archiveDeps(archive))

	resp, err := app.Test(httptest.NewRequest("GET", "/v1/routes?limit=10", nil), -1)
	if err != nil {
		t.Fatalf("first page request failed: %v", err)
	}
	link := resp.Header.Get("Link")
	if !strings.Contains(link, `offset=10&limit=10>; rel="next"`) {
		t.Errorf("first page Link missing next, got %q", link)
	}
	if strings.Contains(link, `rel="prev"`) {
		t.Errorf("first page must not advertise prev, got %q", link)
	}

	resp, err = app.Test(httptest.NewRequest("GET", "/v1/routes?limit=10&offset=10", nil), -1)
	if err != nil {
		t.Fatalf("second page request failed: %v", err)
	}
	link = resp.Header.Get("Link")
	if !strings.Contains(link, `offset=0&limit=10>; rel="prev"`) {
		t.Errorf("second page Link missing prev, got %q", link)
	}
	if !strings.Contains(link, `offset=20&limit=10>; rel="next"`) {
		t.Errorf("second page Link missing next, got %q", link)
	}
	if !strings.Contains(link, `offset=15&limit=10>; rel="last"`) {
		t.Errorf("second page Link missing last, got %q", link)
	}
}

func TestAccessLogSkipsProbes(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	defer slog.SetDefault(prev)

	app := setupApp(makeDeps(goodOracle(), &mockGeocoder{}))

	if _, err := app.Test(httptest.NewRequest("GET", "/v1/health", nil), -1); err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	if strings.Contains(buf.String(), "/v1/health") {
		t.Errorf("health probes must not be access-logged, got %q", buf.String())
	}

	if _, err := app.Test(httptest.NewRequest("GET", "/v1/geocode", nil), -1); err != nil {
		t.Fatalf("geocode request failed: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "path=/v1/geocode") {
		t.Errorf("expected an access log line for /v1/geocode, got %q", out)
	}
	if !strings.Contains(out, "level=WARN") {
		t.Errorf("a 400 should log at warn level, got %q", out)
	}
}
