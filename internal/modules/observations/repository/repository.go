package repository

import (
	"context"
	"fmt"
	"time"

	"cosmoz-server/internal/modules/observations/types"
	"cosmoz-server/internal/tsdb"
)

// Cursor yields observation rows once, in query order.
type Cursor interface {
	Next() bool
	Row() types.Row
	Err() error
	Close() error
}

// Store is the part of tsdb.Store the repository needs.
type Store interface {
	Query(ctx context.Context, command string) (*tsdb.Cursor, error)
	Write(ctx context.Context, points ...tsdb.Point) error
}

type ObservationRepository interface {
	// Fetch runs a compiled statement. The caller must Close the cursor.
	Fetch(ctx context.Context, statement string) (Cursor, error)
	// InsertRaw stores one level-0 reading for a station.
	InsertRaw(ctx context.Context, stationID int, at time.Time, fields map[string]any) error
}

type repositoryImpl struct {
	store Store
}

func NewRepository(store Store) ObservationRepository {
	return &repositoryImpl{store: store}
}

func (r *repositoryImpl) Fetch(ctx context.Context, statement string) (Cursor, error) {
	cur, err := r.store.Query(ctx, statement)
	if err != nil {
		return nil, err
	}
	return &rowCursor{cur: cur}, nil
}

func (r *repositoryImpl) InsertRaw(ctx context.Context, stationID int, at time.Time, fields map[string]any) error {
	if len(fields) == 0 {
		return fmt.Errorf("insert raw values for station %d: no fields", stationID)
	}
	return r.store.Write(ctx, tsdb.Point{
		Measurement: "raw_values",
		Tags:        map[string]string{"site_no": fmt.Sprint(stationID)},
		Fields:      fields,
		Time:        at.UTC(),
	})
}

// rowCursor turns store rows into types.Row, parsing the time column.
type rowCursor struct {
	cur *tsdb.Cursor
	row types.Row
}

func (c *rowCursor) Next() bool {
	if !c.cur.Next() {
		c.row = types.Row{}
		return false
	}
	cols := c.cur.Columns()
	vals := c.cur.Values()
	row := types.Row{Columns: cols, Values: make([]any, len(cols))}
	for i := range cols {
		if i >= len(vals) {
			break
		}
		v := vals[i]
		if cols[i] == "time" {
			if s, ok := v.(string); ok {
				if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
					v = t
				}
			}
		}
		row.Values[i] = v
	}
	c.row = row
	return true
}

func (c *rowCursor) Row() types.Row { return c.row }
func (c *rowCursor) Err() error     { return c.cur.Err() }
func (c *rowCursor) Close() error   { return c.cur.Close() }
