package repository

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"cosmoz-server/internal/modules/stations/types"
)

//go:embed sql/count-stations.sql
var countStationsSQL string

//go:embed sql/list-stations.sql
var listStationsSQL string

//go:embed sql/get-station.sql
var getStationSQL string

//go:embed sql/count-calibrations.sql
var countCalibrationsSQL string

//go:embed sql/list-calibrations.sql
var listCalibrationsSQL string

//go:embed sql/upsert-station.sql
var upsertStationSQL string

//go:embed sql/upsert-calibration.sql
var upsertCalibrationSQL string

var ErrNotFound = errors.New("stations: record not found")

type StationRepository interface {
	// ListStations returns the total number of stations and one page of them.
	ListStations(ctx context.Context, proj types.Projection, count, offset int64) (int, []types.Document, error)
	// GetStation returns the collection size and the station document.
	GetStation(ctx context.Context, siteNo int, proj types.Projection) (int, types.Document, error)
	ListCalibrations(ctx context.Context, siteNo int, proj types.Projection) (int, []types.Document, error)
	PutStation(ctx context.Context, doc types.Document) error
	// PutCalibration stores doc under its id, generating one when missing,
	// and returns the id.
	PutCalibration(ctx context.Context, doc types.Document) (string, error)
}

type repositoryImpl struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) StationRepository {
	return &repositoryImpl{db: db}
}

func (r *repositoryImpl) ListStations(ctx context.Context, proj types.Projection, count, offset int64) (int, []types.Document, error) {
	var total int
	if err := r.db.QueryRowContext(ctx, countStationsSQL).Scan(&total); err != nil {
		return 0, nil, fmt.Errorf("count stations: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, listStationsSQL, count, offset)
	if err != nil {
		return 0, nil, fmt.Errorf("list stations: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Error("close stations rows", "error", err)
		}
	}()

	out := []types.Document{}
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return 0, nil, err
		}
		doc, err := types.DecodeDocument(raw, "site_no")
		if err != nil {
			return 0, nil, err
		}
		out = append(out, proj.Apply(doc, "site_no"))
	}
	return total, out, rows.Err()
}

func (r *repositoryImpl) GetStation(ctx context.Context, siteNo int, proj types.Projection) (int, types.Document, error) {
	var raw []byte
	err := r.db.QueryRowContext(ctx, getStationSQL, siteNo).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, types.Document{}, fmt.Errorf("station %d: %w", siteNo, ErrNotFound)
	}
	if err != nil {
		return 0, types.Document{}, fmt.Errorf("get station %d: %w", siteNo, err)
	}

	var total int
	if err := r.db.QueryRowContext(ctx, countStationsSQL).Scan(&total); err != nil {
		return 0, types.Document{}, fmt.Errorf("count stations: %w", err)
	}

	doc, err := types.DecodeDocument(raw, "site_no")
	if err != nil {
		return 0, types.Document{}, fmt.Errorf("station %d: %w", siteNo, err)
	}
	return total, proj.Apply(doc, "site_no"), nil
}

func (r *repositoryImpl) ListCalibrations(ctx context.Context, siteNo int, proj types.Projection) (int, []types.Document, error) {
	var total int
	if err := r.db.QueryRowContext(ctx, countCalibrationsSQL, siteNo).Scan(&total); err != nil {
		return 0, nil, fmt.Errorf("count calibrations: %w", err)
	}
	if total == 0 {
		return 0, nil, fmt.Errorf("calibrations for station %d: %w", siteNo, ErrNotFound)
	}

	rows, err := r.db.QueryContext(ctx, listCalibrationsSQL, siteNo)
	if err != nil {
		return 0, nil, fmt.Errorf("list calibrations: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Error("close calibration rows", "error", err)
		}
	}()

	var out []types.Document
	for rows.Next() {
		var id string
		var raw []byte
		if err := rows.Scan(&id, &raw); err != nil {
			return 0, nil, err
		}
		doc, err := types.DecodeDocument(raw, "site_no")
		if err != nil {
			return 0, nil, fmt.Errorf("calibration %s: %w", id, err)
		}
		doc = proj.Apply(doc, "site_no")
		doc.Set("id", id)
		out = append(out, doc)
	}
	return total, out, rows.Err()
}

func (r *repositoryImpl) PutStation(ctx context.Context, doc types.Document) error {
	v, _ := doc.Get("site_no")
	siteNo, ok := types.SiteNo(v)
	if !ok {
		return fmt.Errorf("put station: site_no must be an integer, got %v", v)
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode station %d: %w", siteNo, err)
	}
	if _, err := r.db.ExecContext(ctx, upsertStationSQL, siteNo, string(raw)); err != nil {
		return fmt.Errorf("put station %d: %w", siteNo, err)
	}
	return nil
}

func (r *repositoryImpl) PutCalibration(ctx context.Context, doc types.Document) (string, error) {
	v, _ := doc.Get("site_no")
	siteNo, ok := types.SiteNo(v)
	if !ok {
		return "", fmt.Errorf("put calibration: site_no must be an integer, got %v", v)
	}

	doc = doc.Clone()
	id := uuid.NewString()
	if v, ok := doc.Get("id"); ok && v != nil && fmt.Sprint(v) != "" {
		id = fmt.Sprint(v)
	}
	doc.Delete("id")

	raw, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("encode calibration %s: %w", id, err)
	}
	if _, err := r.db.ExecContext(ctx, upsertCalibrationSQL, id, siteNo, string(raw)); err != nil {
		return "", fmt.Errorf("put calibration %s: %w", id, err)
	}
	return id, nil
}
