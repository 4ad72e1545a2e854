package views

import (
	"bytes"
	"strings"
	"testing"
	"testing/fstest"

	"cosmoz-server/internal/modules/stations/types"
)

func TestLoadTemplates(t *testing.T) {
	if err := LoadTemplates(); err != nil {
		t.Fatalf("LoadTemplates() = %v", err)
	}
	for _, set := range SetFor {
		if tmpl[set] == nil {
			t.Errorf("template set %s not loaded", set)
		}
	}
}

func TestLoadTemplatesFromFS_missingTemplate(t *testing.T) {
	fsys := fstest.MapFS{
		"t/csv/table.tmpl": {Data: []byte(`{{define "station"}}x{{end}}`)},
	}
	err := loadTemplatesFromFS(fsys, "t")
	if err == nil || !strings.Contains(err.Error(), "calibrations") {
		t.Errorf("err = %v; want missing calibrations", err)
	}
}

func TestNewTable(t *testing.T) {
	a := types.NewDocument(map[string]any{"site_no": 12, "bulk_density": 1.3}, "site_no")
	b := types.NewDocument(map[string]any{"site_no": 12, "lattice_water": 0.02, "id": "x"}, "site_no")

	tab := NewTable(12, a, b)
	if got := strings.Join(tab.Columns, ","); got != "site_no,bulk_density,id,lattice_water" {
		t.Fatalf("columns = %s", got)
	}
	if tab.Rows[0][2] != nil || tab.Rows[1][1] != nil {
		t.Errorf("missing fields should be nil: %v", tab.Rows)
	}
	if tab.Rows[1][3] != 0.02 {
		t.Errorf("row 1 = %v", tab.Rows[1])
	}
}

func TestRender(t *testing.T) {
	if err := LoadTemplates(); err != nil {
		t.Fatalf("LoadTemplates() = %v", err)
	}
	doc := types.NewDocument(map[string]any{"site_no": 12, "name": "Tumbarumba, NSW", "_status": "Active"}, "site_no")
	tab := NewTable(12, doc)

	var buf bytes.Buffer
	if err := Render(&buf, "csv", "station", tab); err != nil {
		t.Fatalf("Render csv: %v", err)
	}
	if want := "site_no,_status,name\n12,Active,\"Tumbarumba, NSW\"\n"; buf.String() != want {
		t.Errorf("csv = %q; want %q", buf.String(), want)
	}

	buf.Reset()
	if err := Render(&buf, "txt", "station", tab); err != nil {
		t.Fatalf("Render txt: %v", err)
	}
	if want := "# CosmOz station 12\nsite_no\t12\n_status\tActive\nname\tTumbarumba, NSW\n"; buf.String() != want {
		t.Errorf("txt = %q; want %q", buf.String(), want)
	}

	buf.Reset()
	if err := Render(&buf, "txt", "calibrations", NewTable(12, doc, doc)); err != nil {
		t.Fatalf("Render calibrations: %v", err)
	}
	if !strings.HasPrefix(buf.String(), "# CosmOz station 12 calibrations (2)\nsite_no\t_status\tname\n") {
		t.Errorf("txt calibrations = %q", buf.String())
	}

	if err := Render(&buf, "xml", "station", tab); err == nil {
		t.Error("Render with unknown set = nil error")
	}
}
