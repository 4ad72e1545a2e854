package controller

import (
	"bytes"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"cosmoz-server/internal/modules/stations/repository"
	"cosmoz-server/internal/modules/stations/types"
	"cosmoz-server/internal/modules/stations/views"
	"cosmoz-server/internal/negotiate"
	"cosmoz-server/internal/utils"
)

const maxCount = 2147483647

func (c *stationsControllerImpl) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	proj := types.ParseProjection(q.Get("property_filter"))
	count := pageParam(q.Get("count"), types.DefaultListCount)
	offset := pageParam(q.Get("offset"), 0)

	total, docs, err := c.repository.ListStations(r.Context(), proj, count, offset)
	if err != nil {
		c.logger.Error("stations: list failed", "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to load stations")
		return
	}
	for i := range docs {
		withID(&docs[i])
	}
	utils.WriteJSON(w, http.StatusOK, types.StationList{
		Meta:     types.ListMeta{Total: total, Count: len(docs), Offset: offset},
		Stations: docs,
	})
}

func (c *stationsControllerImpl) handleStation(w http.ResponseWriter, r *http.Request) {
	mt, siteNo, ok := c.resolve(w, r)
	if !ok {
		return
	}
	proj := types.Projection{}
	if mt == "application/json" {
		proj = types.ParseProjection(r.URL.Query().Get("property_filter"))
	}

	total, doc, err := c.repository.GetStation(r.Context(), siteNo, proj)
	if errors.Is(err, repository.ErrNotFound) {
		utils.WriteError(w, http.StatusNotFound, "Station not found")
		return
	}
	if err != nil {
		c.logger.Error("stations: get failed", "station", siteNo, "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to load station")
		return
	}

	if mt == "application/json" {
		withID(&doc)
		utils.WriteJSON(w, http.StatusOK, types.StationResponse{Meta: types.StationMeta{Total: total}, Station: doc})
		return
	}
	doc = doc.Clone()
	doc.Rename("status", "_status")
	c.render(w, mt, "station", views.NewTable(siteNo, doc))
}

func (c *stationsControllerImpl) handleCalibration(w http.ResponseWriter, r *http.Request) {
	mt, siteNo, ok := c.resolve(w, r)
	if !ok {
		return
	}
	proj := types.Projection{}
	if mt == "application/json" {
		proj = types.ParseProjection(r.URL.Query().Get("property_filter"))
	}

	total, docs, err := c.repository.ListCalibrations(r.Context(), siteNo, proj)
	if errors.Is(err, repository.ErrNotFound) {
		utils.WriteError(w, http.StatusNotFound, "Station Calibration not found")
		return
	}
	if err != nil {
		c.logger.Error("stations: calibrations failed", "station", siteNo, "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to load calibrations")
		return
	}

	if mt == "application/json" {
		utils.WriteJSON(w, http.StatusOK, types.CalibrationList{
			Meta:         types.ListMeta{Total: total, Count: len(docs), Offset: 0},
			Calibrations: docs,
		})
		return
	}
	for i := range docs {
		docs[i] = docs[i].Clone()
		docs[i].Rename("status", "_status")
	}
	c.render(w, mt, "calibrations", views.NewTable(siteNo, docs...))
}

// resolve negotiates the representation and parses the station number,
// writing the error response itself when either fails.
func (c *stationsControllerImpl) resolve(w http.ResponseWriter, r *http.Request) (string, int, bool) {
	mt, err := negotiate.Select(r, MediaTypes, "")
	switch {
	case errors.Is(err, negotiate.ErrNotAcceptable):
		utils.WriteError(w, http.StatusServiceUnavailable, negotiate.NotAcceptableMessage)
		return "", 0, false
	case errors.Is(err, negotiate.ErrMalformedAccept):
		utils.WriteError(w, http.StatusBadRequest, negotiate.MalformedAcceptMessage)
		return "", 0, false
	case err != nil:
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return "", 0, false
	}

	siteNo, err := strconv.Atoi(strings.TrimSpace(chi.URLParam(r, "id")))
	if err != nil || siteNo < 0 {
		utils.WriteError(w, http.StatusBadRequest, "station number must be a non-negative integer")
		return "", 0, false
	}
	return mt, siteNo, true
}

func (c *stationsControllerImpl) render(w http.ResponseWriter, mt, name string, data views.Table) {
	var buf bytes.Buffer
	if err := views.Render(&buf, views.SetFor[mt], name, data); err != nil {
		c.logger.Error("stations: render failed", "template", name, "media_type", mt, "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to render")
		return
	}
	w.Header().Set("Content-Type", mt)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(buf.Bytes()); err != nil {
		c.logger.Error("stations: write response failed", "error", err)
	}
}

// withID copies site_no into id, which JSON clients key records on.
func withID(d *types.Document) {
	if _, ok := d.Get("id"); ok {
		return
	}
	if v, ok := d.Get("site_no"); ok {
		d.Set("id", v)
	}
}

func pageParam(raw string, fallback int64) int64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n < 0 {
		return fallback
	}
	return min(n, maxCount)
}
