package query

import (
	"errors"
	"strings"
	"testing"
	"time"

	"cosmoz-server/internal/modules/observations/types"
)

func ts(s string) *time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return &t
}

func TestCompile_measurementPerLevel(t *testing.T) {
	want := map[int]string{0: `"raw_values"`, 1: `"level1"`, 2: `"level2"`, 3: `"level3"`, 4: `"level4"`}
	for level, name := range want {
		p := types.Params{StationID: 12, ProcessingLevel: level, PropertyFilter: types.PropertyFilter{All: true}, Count: 5}
		for _, variant := range []types.Variant{types.VariantRange, types.VariantLatest} {
			p.Variant = variant
			q, err := Compile(p)
			if err != nil {
				t.Fatalf("Compile(level %d): %v", level, err)
			}
			if !strings.Contains(q, " FROM "+name+" ") {
				t.Errorf("level %d: %s; want measurement %s", level, q, name)
			}
		}
	}
}

func TestCompile_rejectsLevel(t *testing.T) {
	for _, level := range []int{-1, 5, 42} {
		_, err := Compile(types.Params{StationID: 1, ProcessingLevel: level})
		if !errors.Is(err, ErrLevel) {
			t.Errorf("level %d: err = %v; want ErrLevel", level, err)
		}
	}
}

func TestCompileRange(t *testing.T) {
	tests := []struct {
		name string
		p    types.Params
		want string
	}{
		{
			name: "all columns full range",
			p: types.Params{
				StationID: 12, ProcessingLevel: 4,
				PropertyFilter: types.PropertyFilter{All: true},
				Start:          ts("2021-01-01T00:00:00Z"), End: ts("2021-01-02T00:00:00Z"),
				Count: 10,
			},
			want: `SELECT * FROM "level4" WHERE "site_no"='12' AND time >= '2021-01-01T00:00:00.000Z' AND time <= '2021-01-02T00:00:00.000Z' ORDER BY "time" ASC LIMIT 10 OFFSET 0;`,
		},
		{
			name: "no range bounds",
			p:    types.Params{StationID: 3, ProcessingLevel: 0, Count: 2000, Offset: 40},
			want: `SELECT * FROM "raw_values" WHERE "site_no"='3' ORDER BY "time" ASC LIMIT 2000 OFFSET 40;`,
		},
		{
			name: "start only",
			p:    types.Params{StationID: 3, ProcessingLevel: 2, Start: ts("2020-06-01T12:00:00Z"), Count: 1},
			want: `SELECT * FROM "level2" WHERE "site_no"='3' AND time >= '2020-06-01T12:00:00.000Z' ORDER BY "time" ASC LIMIT 1 OFFSET 0;`,
		},
		{
			name: "property list gets time first",
			p:    types.Params{StationID: 7, ProcessingLevel: 3, PropertyFilter: types.PropertyFilter{Names: []string{"soil_moist", "time", "rainfall"}}, Count: 5},
			want: `SELECT "time","soil_moist","rainfall" FROM "level3" WHERE "site_no"='7' ORDER BY "time" ASC LIMIT 5 OFFSET 0;`,
		},
		{
			name: "aggregate all",
			p:    types.Params{StationID: 7, ProcessingLevel: 4, PropertyFilter: types.PropertyFilter{All: true}, Aggregate: "1d", Count: 5},
			want: `SELECT MEAN(*),MIN(*),MAX(*),COUNT(*) FROM "level4" WHERE "site_no"='7' GROUP BY time(1d) ORDER BY "time" ASC LIMIT 5 OFFSET 0;`,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := CompileRange(tc.p)
			if err != nil {
				t.Fatalf("CompileRange: %v", err)
			}
			if got != tc.want {
				t.Errorf("got  %s\nwant %s", got, tc.want)
			}
		})
	}
}

func TestCompileRange_aggregateExpandsColumns(t *testing.T) {
	p := types.Params{
		StationID: 12, ProcessingLevel: 4,
		PropertyFilter: types.PropertyFilter{Names: []string{"soil_moist"}},
		Aggregate:      "2h",
		Count:          10,
	}
	got, err := CompileRange(p)
	if err != nil {
		t.Fatalf("CompileRange: %v", err)
	}
	wantCols := `SELECT "time",MEAN("soil_moist"),MIN("soil_moist"),MAX("soil_moist"),COUNT("soil_moist") FROM`
	if !strings.HasPrefix(got, wantCols) {
		t.Errorf("got %s; want prefix %s", got, wantCols)
	}
	if strings.Contains(got, `,"soil_moist"`) {
		t.Errorf("raw column selected alongside aggregates: %s", got)
	}
	if !strings.Contains(got, "GROUP BY time(2h)") {
		t.Errorf("missing GROUP BY: %s", got)
	}
}

func TestCompile_rejectsUnsafeInput(t *testing.T) {
	_, err := CompileRange(types.Params{ProcessingLevel: 1, PropertyFilter: types.PropertyFilter{Names: []string{`a" OR 1=1 --`}}})
	if !errors.Is(err, ErrIdentifier) {
		t.Errorf("err = %v; want ErrIdentifier", err)
	}
	_, err = CompileRange(types.Params{ProcessingLevel: 1, Aggregate: "1h) fill(none"})
	if !errors.Is(err, ErrAggregate) {
		t.Errorf("err = %v; want ErrAggregate", err)
	}
}

func TestCompileLatest(t *testing.T) {
	start := ts("2021-01-01T00:00:00Z")
	p := types.Params{
		StationID: 12, ProcessingLevel: 1,
		PropertyFilter: types.PropertyFilter{Names: []string{"count"}},
		Start:          start, Aggregate: "1h", Offset: 9,
		Count:   1,
		Variant: types.VariantLatest,
	}
	got, err := Compile(p)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	want := `SELECT "time","count" FROM "level1" WHERE "site_no"='12' ORDER BY "time" DESC LIMIT 1;`
	if got != want {
		t.Errorf("got  %s\nwant %s", got, want)
	}
}
