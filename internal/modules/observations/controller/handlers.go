package controller

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"cosmoz-server/internal/metrics"
	"cosmoz-server/internal/modules/observations/query"
	"cosmoz-server/internal/modules/observations/repository"
	"cosmoz-server/internal/modules/observations/request"
	"cosmoz-server/internal/modules/observations/transform"
	"cosmoz-server/internal/modules/observations/types"
	"cosmoz-server/internal/modules/observations/views"
	"cosmoz-server/internal/negotiate"
	"cosmoz-server/internal/tsdb"
	"cosmoz-server/internal/utils"
)

func (c *observationsControllerImpl) handleObservations(w http.ResponseWriter, r *http.Request) {
	c.serve(w, r, types.VariantRange)
}

func (c *observationsControllerImpl) handleLastObservations(w http.ResponseWriter, r *http.Request) {
	c.serve(w, r, types.VariantLatest)
}

func (c *observationsControllerImpl) serve(w http.ResponseWriter, r *http.Request, variant types.Variant) {
	mt, err := negotiate.Select(r, types.MediaTypes, types.Structured.MediaType)
	if err != nil {
		c.writeError(w, err)
		return
	}
	rep, _ := types.ForMediaType(mt)

	p, err := request.ParseParams(r.URL.Query(), chi.URLParam(r, "id"), rep, variant, c.now())
	if err != nil {
		c.writeError(w, err)
		return
	}

	statement, err := query.Compile(p)
	if err != nil {
		c.writeError(w, err)
		return
	}

	cur, err := c.repository.Fetch(r.Context(), statement)
	if err != nil {
		c.logger.Error("observations: fetch failed", "station", p.StationID, "level", p.ProcessingLevel, "error", err)
		c.writeError(w, err)
		return
	}
	defer func() {
		if err := cur.Close(); err != nil {
			c.logger.Debug("observations: close cursor", "error", err)
		}
	}()

	if rep.Streamed() {
		c.stream(w, r, p, cur)
		return
	}
	c.structured(w, p, cur)
}

// structured materializes every row and writes one JSON document.
func (c *observationsControllerImpl) structured(w http.ResponseWriter, p types.Params, cur repository.Cursor) {
	sink := p.Representation.Sink(false)
	var rows []types.Row
	for cur.Next() {
		rows = append(rows, transform.Apply(cur.Row(), sink))
	}
	if err := cur.Err(); err != nil {
		c.logger.Error("observations: read failed", "station", p.StationID, "error", err)
		c.writeError(w, err)
		return
	}
	metrics.ObservationRowsRendered.WithLabelValues(p.Representation.Extension).Add(float64(len(rows)))
	utils.WriteJSON(w, http.StatusOK, views.NewEnvelope(p, rows))
}

// stream writes the header template, then one row at a time, flushing after
// each so a slow client slows the reads from the store.
func (c *observationsControllerImpl) stream(w http.ResponseWriter, r *http.Request, p types.Params, cur repository.Cursor) {
	rep := p.Representation
	sink := rep.Sink(p.ExcelCompatible)
	ctx := r.Context()

	w.Header().Set("Content-Type", rep.MediaType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", rep.Filename(p.StationID, p.ProcessingLevel)))
	w.WriteHeader(http.StatusOK)
	rc := http.NewResponseController(w)

	var row types.Row
	hasRow := cur.Next()
	if hasRow {
		row = transform.Apply(cur.Row(), sink)
	}
	if err := views.RenderHeader(w, rep.TemplateSet, views.NewHeaderData(p, row.Columns)); err != nil {
		c.logger.Error("observations: render header", "station", p.StationID, "error", err)
		return
	}

	var n int
	start := time.Now()
	for hasRow {
		if err := views.RenderRow(w, rep.TemplateSet, row); err != nil {
			c.logger.Warn("observations: stream aborted", "station", p.StationID, "rows", n, "error", err)
			break
		}
		n++
		if err := rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
			c.logger.Warn("observations: flush failed", "station", p.StationID, "rows", n, "error", err)
			break
		}
		if ctx.Err() != nil {
			break
		}
		if hasRow = cur.Next(); hasRow {
			row = transform.Apply(cur.Row(), sink)
		}
	}
	_ = rc.Flush()
	metrics.ObservationRowsRendered.WithLabelValues(rep.Extension).Add(float64(n))

	switch err := cur.Err(); {
	case ctx.Err() != nil:
		c.logger.Info("observations: client went away", "station", p.StationID, "rows", n)
	case err != nil:
		c.logger.Error("observations: stream failed after start", "station", p.StationID, "rows", n, "error", err)
	default:
		c.logger.Debug("observations: stream done", "station", p.StationID, "rows", n, "duration_ms", time.Since(start).Milliseconds())
	}
}

func (c *observationsControllerImpl) writeError(w http.ResponseWriter, err error) {
	var ve *types.ValidationError
	switch {
	case errors.As(err, &ve):
		utils.WriteError(w, http.StatusBadRequest, ve.Error())
	case errors.Is(err, negotiate.ErrMalformedAccept):
		utils.WriteError(w, http.StatusBadRequest, negotiate.MalformedAcceptMessage)
	case errors.Is(err, query.ErrLevel), errors.Is(err, query.ErrIdentifier), errors.Is(err, query.ErrAggregate):
		utils.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, tsdb.ErrUnavailable):
		utils.WriteError(w, http.StatusInternalServerError, "observation store is unavailable")
	default:
		utils.WriteError(w, http.StatusInternalServerError, "failed to query observations")
	}
}
