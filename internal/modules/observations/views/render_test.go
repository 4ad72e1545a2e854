package views

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"cosmoz-server/internal/modules/observations/types"
	"cosmoz-server/internal/utils"
)

func mustLoad(t *testing.T) {
	t.Helper()
	if err := LoadTemplates(); err != nil {
		t.Fatalf("LoadTemplates() = %v; want nil", err)
	}
}

func TestLoadTemplates_success(t *testing.T) {
	mustLoad(t)
	for _, set := range []string{"csv", "txt"} {
		if tabularTmpl[set] == nil {
			t.Errorf("template set %s not loaded", set)
		}
	}
}

func TestLoadTemplates_failures(t *testing.T) {
	prev := tabularTmpl
	t.Cleanup(func() { tabularTmpl = prev })

	if err := loadTemplatesFromFS(fstest.MapFS{}, "templates"); err == nil {
		t.Error("empty FS: want error")
	}
	bad := fstest.MapFS{"templates/csv/header.tmpl": {Data: []byte("{{ .")}}
	if err := loadTemplatesFromFS(bad, "templates"); err == nil {
		t.Error("bad syntax: want error")
	}
}

func TestRenderHeader_notLoaded(t *testing.T) {
	prev := tabularTmpl
	tabularTmpl = nil
	t.Cleanup(func() { tabularTmpl = prev })

	err := RenderHeader(&bytes.Buffer{}, "csv", HeaderData{})
	if err == nil || !strings.Contains(err.Error(), "not loaded") {
		t.Errorf("err = %v; want not loaded", err)
	}
}

func TestRenderCSV(t *testing.T) {
	mustLoad(t)
	var buf bytes.Buffer
	header := HeaderData{SiteNo: 12, ProcessingLevel: 4, Columns: []string{"time", "soil_moist", "_status"}}
	if err := RenderHeader(&buf, "csv", header); err != nil {
		t.Fatalf("RenderHeader: %v", err)
	}
	row := types.Row{Columns: header.Columns, Values: []any{"2021-01-01 00:00:00", 21.5, "ok, checked"}}
	if err := RenderRow(&buf, "csv", row); err != nil {
		t.Fatalf("RenderRow: %v", err)
	}
	want := "time,soil_moist,_status\n2021-01-01 00:00:00,21.5,\"ok, checked\"\n"
	if buf.String() != want {
		t.Errorf("got %q; want %q", buf.String(), want)
	}
}

func TestRenderCSV_emptyResult(t *testing.T) {
	mustLoad(t)
	var buf bytes.Buffer
	if err := RenderHeader(&buf, "csv", HeaderData{SiteNo: 1, ProcessingLevel: 0}); err != nil {
		t.Fatalf("RenderHeader: %v", err)
	}
	if buf.Len() != 0 {
		t.Errorf("got %q; want empty body", buf.String())
	}
}

func TestRenderTXT(t *testing.T) {
	mustLoad(t)
	for level := 0; level <= 4; level++ {
		var buf bytes.Buffer
		header := HeaderData{SiteNo: 12, ProcessingLevel: level, Start: "2021-01-01T00:00:00Z", End: "2021-01-02T00:00:00Z", Aggregation: "1h", Columns: []string{"time", "count"}}
		if err := RenderHeader(&buf, "txt", header); err != nil {
			t.Fatalf("level %d: RenderHeader: %v", level, err)
		}
		out := buf.String()
		if !strings.HasPrefix(out, "# CosmOz station 12") {
			t.Errorf("level %d: preamble missing: %q", level, out)
		}
		if !strings.Contains(out, "aggregated over 1h") {
			t.Errorf("level %d: aggregation missing: %q", level, out)
		}
		if !strings.HasSuffix(out, "time\tcount\n") {
			t.Errorf("level %d: column line missing: %q", level, out)
		}
	}

	var buf bytes.Buffer
	if err := RenderRow(&buf, "txt", types.Row{Values: []any{"a\tb", nil, 3.0}}); err != nil {
		t.Fatalf("RenderRow: %v", err)
	}
	if buf.String() != "a b\t\t3\n" {
		t.Errorf("row = %q", buf.String())
	}
}

func TestHeaderName(t *testing.T) {
	if HeaderName(0) != "raw_data" || HeaderName(3) != "level3_data" {
		t.Errorf("HeaderName = %q, %q", HeaderName(0), HeaderName(3))
	}
}

func TestEnvelope(t *testing.T) {
	start := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2021, 1, 2, 0, 0, 0, 0, time.UTC)
	p := types.Params{StationID: 12, ProcessingLevel: 4, Start: &start, End: &end, Aggregate: "1h", Offset: 0, Variant: types.VariantRange}
	rows := []types.Row{{Columns: []string{"time", "mean_soil_moist"}, Values: []any{start, 20.5}}}

	w := httptest.NewRecorder()
	utils.WriteJSON(w, http.StatusOK, NewEnvelope(p, rows))
	want := `{"meta":{"site_no":12,"processing_level":4,"count":1,"offset":0,"start_date":"2021-01-01T00:00:00Z","end_date":"2021-01-02T00:00:00Z","aggregation":"1h"},"observations":[{"time":"2021-01-01T00:00:00Z","mean_soil_moist":20.5}]}`
	if w.Code != http.StatusOK || strings.TrimSpace(w.Body.String()) != want {
		t.Errorf("status %d\ngot  %s\nwant %s", w.Code, w.Body, want)
	}

	w = httptest.NewRecorder()
	latest := types.Params{StationID: 12, ProcessingLevel: 1, Count: 1, Variant: types.VariantLatest}
	utils.WriteJSON(w, http.StatusOK, NewEnvelope(latest, nil))
	want = `{"meta":{"site_no":12,"processing_level":1,"count":0},"observations":[]}`
	if strings.TrimSpace(w.Body.String()) != want {
		t.Errorf("got  %s\nwant %s", w.Body, want)
	}
}
