package repository

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"cosmoz-server/internal/migrate"
	"cosmoz-server/internal/modules/stations/types"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("close db: %v", err)
		}
	})
	if _, err := migrate.Run(context.Background(), db, slog.New(slog.NewTextHandler(io.Discard, nil))); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func seed(t *testing.T, repo StationRepository) {
	t.Helper()
	ctx := context.Background()
	stations := []map[string]any{
		{"site_no": 12, "name": "Tumbarumba", "status": "Active", "elevation": 1200},
		{"site_no": 3, "name": "Baldry", "status": "Active", "elevation": 450},
		{"site_no": 21, "name": "Robson Creek", "status": "Decommissioned", "elevation": 700},
	}
	for _, s := range stations {
		if err := repo.PutStation(ctx, types.NewDocument(s, "site_no")); err != nil {
			t.Fatalf("PutStation: %v", err)
		}
	}
}

func TestListStations(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	seed(t, repo)
	ctx := context.Background()

	total, docs, err := repo.ListStations(ctx, types.Projection{}, 1000, 0)
	if err != nil {
		t.Fatalf("ListStations: %v", err)
	}
	if total != 3 || len(docs) != 3 {
		t.Fatalf("total=%d len=%d; want 3, 3", total, len(docs))
	}
	var order []int
	for _, d := range docs {
		v, _ := d.Get("site_no")
		n, _ := types.SiteNo(v)
		order = append(order, n)
	}
	if order[0] != 3 || order[1] != 12 || order[2] != 21 {
		t.Errorf("order = %v; want [3 12 21]", order)
	}

	t.Run("page", func(t *testing.T) {
		total, docs, err := repo.ListStations(ctx, types.Projection{}, 1, 1)
		if err != nil {
			t.Fatalf("ListStations: %v", err)
		}
		if total != 3 || len(docs) != 1 {
			t.Fatalf("total=%d len=%d; want 3, 1", total, len(docs))
		}
		if v, _ := docs[0].Get("name"); v != "Tumbarumba" {
			t.Errorf("name = %v", v)
		}
	})

	t.Run("projection keeps site_no", func(t *testing.T) {
		_, docs, err := repo.ListStations(ctx, types.ParseProjection("name"), 10, 0)
		if err != nil {
			t.Fatalf("ListStations: %v", err)
		}
		for _, d := range docs {
			if len(d.Keys) != 2 || d.Keys[0] != "site_no" || d.Keys[1] != "name" {
				t.Errorf("keys = %v; want [site_no name]", d.Keys)
			}
		}
	})

	t.Run("empty page is not nil", func(t *testing.T) {
		_, docs, err := repo.ListStations(ctx, types.Projection{}, 10, 50)
		if err != nil {
			t.Fatalf("ListStations: %v", err)
		}
		if docs == nil || len(docs) != 0 {
			t.Errorf("docs = %#v; want empty slice", docs)
		}
	})
}

func TestGetStation(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	seed(t, repo)
	ctx := context.Background()

	total, doc, err := repo.GetStation(ctx, 12, types.Projection{})
	if err != nil {
		t.Fatalf("GetStation: %v", err)
	}
	if total != 3 {
		t.Errorf("total = %d; want collection size 3", total)
	}
	if v, _ := doc.Get("name"); v != "Tumbarumba" {
		t.Errorf("name = %v", v)
	}
	if doc.Keys[0] != "site_no" {
		t.Errorf("keys = %v; site_no should lead", doc.Keys)
	}

	_, _, err = repo.GetStation(ctx, 99, types.Projection{})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("GetStation(99) error = %v; want ErrNotFound", err)
	}
}

func TestPutStation_replaces(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	ctx := context.Background()
	if err := repo.PutStation(ctx, types.NewDocument(map[string]any{"site_no": 5, "name": "old"})); err != nil {
		t.Fatalf("PutStation: %v", err)
	}
	if err := repo.PutStation(ctx, types.NewDocument(map[string]any{"site_no": 5, "name": "new"})); err != nil {
		t.Fatalf("PutStation: %v", err)
	}
	total, doc, err := repo.GetStation(ctx, 5, types.Projection{})
	if err != nil {
		t.Fatalf("GetStation: %v", err)
	}
	if v, _ := doc.Get("name"); total != 1 || v != "new" {
		t.Errorf("total=%d name=%v; want 1, new", total, v)
	}

	if err := repo.PutStation(ctx, types.NewDocument(map[string]any{"name": "no number"})); err == nil {
		t.Error("PutStation without site_no = nil error")
	}
}

func TestCalibrations(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	ctx := context.Background()

	id, err := repo.PutCalibration(ctx, types.NewDocument(map[string]any{"site_no": 12, "date": "2011-04-28T00:00:00Z", "bulk_density": 1.32}))
	if err != nil {
		t.Fatalf("PutCalibration: %v", err)
	}
	if id == "" {
		t.Fatal("PutCalibration returned empty id")
	}
	if _, err := repo.PutCalibration(ctx, types.NewDocument(map[string]any{"id": "cal-b", "site_no": 12, "bulk_density": 1.4})); err != nil {
		t.Fatalf("PutCalibration: %v", err)
	}
	if _, err := repo.PutCalibration(ctx, types.NewDocument(map[string]any{"id": "other", "site_no": 3})); err != nil {
		t.Fatalf("PutCalibration: %v", err)
	}

	total, docs, err := repo.ListCalibrations(ctx, 12, types.Projection{})
	if err != nil {
		t.Fatalf("ListCalibrations: %v", err)
	}
	if total != 2 || len(docs) != 2 {
		t.Fatalf("total=%d len=%d; want 2, 2", total, len(docs))
	}
	ids := map[string]bool{}
	for _, d := range docs {
		v, ok := d.Get("id")
		if !ok {
			t.Fatalf("calibration without id: %v", d.Keys)
		}
		ids[v.(string)] = true
	}
	if !ids[id] || !ids["cal-b"] {
		t.Errorf("ids = %v; want %s and cal-b", ids, id)
	}

	_, docs, err = repo.ListCalibrations(ctx, 12, types.ParseProjection("bulk_density"))
	if err != nil {
		t.Fatalf("ListCalibrations: %v", err)
	}
	for _, d := range docs {
		if _, ok := d.Get("date"); ok {
			t.Errorf("projected calibration still has date: %v", d.Keys)
		}
	}

	if _, _, err := repo.ListCalibrations(ctx, 99, types.Projection{}); !errors.Is(err, ErrNotFound) {
		t.Errorf("ListCalibrations(99) error = %v; want ErrNotFound", err)
	}
}
