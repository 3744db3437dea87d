package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/mzabaleta/veloloop/internal/core/domain"
)

// ArchiveRepo implements ports.RouteArchive. Geometry and waypoints are
// stored as JSONB; the archive is write-once per save, so no upsert logic.
type ArchiveRepo struct {
	db *DB
}

func NewArchiveRepo(db *DB) *ArchiveRepo { return &ArchiveRepo{db: db} }

func (r *ArchiveRepo) Save(ctx context.Context, saved *domain.SavedRoute) error {
	geometry, err := json.Marshal(saved.Route.Geometry)
	if err != nil {
		return fmt.Errorf("marshal geometry: %w", err)
	}
	waypoints, err := json.Marshal(saved.Route.Waypoints)
	if err != nil {
		return fmt.Errorf("marshal waypoints: %w", err)
	}

	_, err = r.db.Pool.Exec(ctx, `
		INSERT INTO saved_routes (id, name, profile, distance_km, ascent_m, geometry, waypoints, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, saved.ID, saved.Name, saved.Route.Profile, saved.Route.DistanceKm,
		saved.Route.ElevationGainM, geometry, waypoints, saved.CreatedAt)
	return err
}

func (r *ArchiveRepo) GetByID(ctx context.Context, id string) (*domain.SavedRoute, error) {
	row := r.db.Pool.QueryRow(ctx, `
		SELECT id, name, profile, distance_km, ascent_m, geometry, waypoints, created_at
		FROM saved_routes WHERE id = $1
	`, id)

	saved, err := scanSavedRoute(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrRouteNotFound
	}
	if err != nil {
		return nil, err
	}
	return saved, nil
}

func (r *ArchiveRepo) List(ctx context.Context, offset, limit int) ([]domain.SavedRoute, int, error) {
	var total int
	if err := r.db.Pool.QueryRow(ctx, `SELECT count(*) FROM saved_routes`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, name, profile, distance_km, ascent_m, geometry, waypoints, created_at
		FROM saved_routes ORDER BY created_at DESC OFFSET $1 LIMIT $2
	`, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var saved []domain.SavedRoute
	for rows.Next() {
		s, err := scanSavedRoute(rows)
		if err != nil {
			return nil, 0, err
		}
		saved = append(saved, *s)
	}
	return saved, total, rows.Err()
}

func (r *ArchiveRepo) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM saved_routes WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrRouteNotFound
	}
	return nil
}

func scanSavedRoute(row pgx.Row) (*domain.SavedRoute, error) {
	var (
		saved     domain.SavedRoute
		route     domain.Route
		geometry  []byte
		waypoints []byte
	)
	if err := row.Scan(&saved.ID, &saved.Name, &route.Profile, &route.DistanceKm,
		&route.ElevationGainM, &geometry, &waypoints, &saved.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(geometry, &route.Geometry); err != nil {
		return nil, fmt.Errorf("unmarshal geometry: %w", err)
	}
	if len(waypoints) > 0 {
		if err := json.Unmarshal(waypoints, &route.Waypoints); err != nil {
			return nil, fmt.Errorf("unmarshal waypoints: %w", err)
		}
	}
	saved.Route = &route
	return &saved, nil
}
