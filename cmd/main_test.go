package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"cosmoz-server/internal/modules/observations/types"
)

func TestCompileQuery(t *testing.T) {
	now := time.Date(2021, 1, 5, 8, 0, 0, 0, time.UTC)

	got, err := compileQuery(queryFlags{
		station:        12,
		level:          4,
		start:          "2021-01-01T00:00:00Z",
		end:            "2021-01-02T00:00:00Z",
		aggregate:      "1h",
		count:          "10",
		propertyFilter: "soil_moist",
		format:         types.Structured.MediaType,
	}, now)
	if err != nil {
		t.Fatalf("compileQuery: %v", err)
	}
	want := `SELECT "time",MEAN("soil_moist"),MIN("soil_moist"),MAX("soil_moist"),COUNT("soil_moist") FROM "level4" WHERE "site_no"='12' AND time >= '2021-01-01T00:00:00.000Z' AND time <= '2021-01-02T00:00:00.000Z' GROUP BY time(1h) ORDER BY "time" ASC LIMIT 10 OFFSET 0;`
	if got != want {
		t.Errorf("got  %s\nwant %s", got, want)
	}
}

func TestCompileQuery_errors(t *testing.T) {
	_, err := compileQuery(queryFlags{station: 12, level: 9, format: types.Structured.MediaType}, time.Now())
	var ve *types.ValidationError
	if !errors.As(err, &ve) {
		t.Errorf("level 9: error = %v; want ValidationError", err)
	}

	if _, err := compileQuery(queryFlags{station: 12, level: 4, format: "image/png"}, time.Now()); err == nil {
		t.Error("unknown format: want error")
	}
}

func TestQueryCommand(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"--env-file", filepath.Join(t.TempDir(), "missing.env"), "query", "--station", "3", "--latest", "--format", "text/csv"})
	if err := root.Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.Contains(out.String(), `WHERE "site_no"='3'`) || !strings.Contains(out.String(), "DESC LIMIT 1") {
		t.Errorf("output = %q", out.String())
	}
}

func TestReadDocuments(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "stations.json")
	if err := os.WriteFile(good, []byte(`[{"name":"Tumbarumba","site_no":12},{"site_no":3}]`), 0o600); err != nil {
		t.Fatal(err)
	}
	docs, err := readDocuments(good)
	if err != nil {
		t.Fatalf("readDocuments: %v", err)
	}
	if len(docs) != 2 || docs[0].Keys[0] != "site_no" {
		t.Errorf("docs = %+v", docs)
	}

	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, []byte(`[1, 2]`), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := readDocuments(bad); err == nil {
		t.Error("non-object elements: want error")
	}
}
