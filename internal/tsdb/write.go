package tsdb

import (
	"context"
	"fmt"
	"time"

	client "github.com/influxdata/influxdb1-client/v2"
)

// Point is one measurement to write.
type Point struct {
	Measurement string
	Tags        map[string]string
	Fields      map[string]any
	Time        time.Time
}

// Write stores points in one batch with second precision.
func (s *Store) Write(ctx context.Context, points ...Point) error {
	if len(points) == 0 {
		return nil
	}
	c, err := s.conn()
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	bp, err := client.NewBatchPoints(client.BatchPointsConfig{
		Database:  s.opts.Database,
		Precision: "s",
	})
	if err != nil {
		return fmt.Errorf("tsdb batch: %w", err)
	}
	for _, p := range points {
		pt, err := client.NewPoint(p.Measurement, p.Tags, p.Fields, p.Time)
		if err != nil {
			return fmt.Errorf("tsdb point %s: %w", p.Measurement, err)
		}
		bp.AddPoint(pt)
	}

	_, err = s.execute(func() (any, error) {
		return nil, c.Write(bp)
	})
	if err != nil {
		return fmt.Errorf("tsdb write: %w", err)
	}
	return nil
}
