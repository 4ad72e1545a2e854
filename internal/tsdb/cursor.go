package tsdb

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/influxdata/influxdb1-client/models"
	client "github.com/influxdata/influxdb1-client/v2"
)

// Cursor walks the rows of a chunked query response one at a time. Only the
// current chunk is held in memory. It is forward-only and not safe for
// concurrent use.
type Cursor struct {
	ctx     context.Context
	resp    *client.ChunkedResponse
	release context.CancelFunc

	pending []models.Row
	series  *models.Row
	row     int

	values []any
	err    error
	done   bool

	closeOnce sync.Once
	closeErr  error
}

// newCursor takes ownership of resp. release cancels the request the chunks
// are read from; ctx being done has the same effect.
func newCursor(ctx context.Context, resp *client.ChunkedResponse, first *client.Response, release context.CancelFunc) *Cursor {
	c := &Cursor{ctx: ctx, resp: resp, release: release}
	if first == nil {
		c.done = true
	} else {
		c.pending = seriesOf(first)
	}
	return c
}

func seriesOf(r *client.Response) []models.Row {
	var out []models.Row
	for _, res := range r.Results {
		out = append(out, res.Series...)
	}
	return out
}

// Next advances to the next row, reading another chunk when the current one
// is exhausted. It returns false at the end of the result or on error.
func (c *Cursor) Next() bool {
	for {
		if c.err != nil {
			return false
		}
		if c.series != nil && c.row < len(c.series.Values) {
			c.values = c.series.Values[c.row]
			c.row++
			return true
		}
		if len(c.pending) > 0 {
			c.series = &c.pending[0]
			c.pending = c.pending[1:]
			c.row = 0
			continue
		}
		if c.done {
			c.values = nil
			return false
		}
		c.fetch()
	}
}

func (c *Cursor) fetch() {
	resp, err := c.resp.NextResponse()
	switch {
	case errors.Is(err, io.EOF):
		c.done = true
	case err != nil:
		if cerr := c.ctx.Err(); cerr != nil {
			c.err = cerr
		} else {
			c.err = chunkError(err)
		}
	case resp == nil:
		c.done = true
	default:
		if rerr := resp.Error(); rerr != nil {
			c.err = &StoreError{Message: rerr.Error()}
			return
		}
		c.pending = seriesOf(resp)
	}
}

// Columns returns the column names of the series the current row belongs to.
func (c *Cursor) Columns() []string {
	if c.series == nil {
		return nil
	}
	return c.series.Columns
}

// Values returns the current row. The slice is owned by the cursor.
func (c *Cursor) Values() []any { return c.values }

func (c *Cursor) Err() error { return c.err }

// Close releases the underlying response body. It is safe to call twice.
func (c *Cursor) Close() error {
	c.closeOnce.Do(func() {
		c.release()
		c.closeErr = c.resp.Close()
	})
	return c.closeErr
}
