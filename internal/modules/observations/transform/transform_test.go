package transform

import (
	"math"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"cosmoz-server/internal/modules/observations/types"
)

func TestExcelTime(t *testing.T) {
	tests := map[string]string{
		"2021-06-01T00:00:00.000Z":    "2021-06-01 00:00:00",
		"2021-06-01T13:45:10Z":        "2021-06-01 13:45:10",
		"2021-06-01T13:45:10.123456Z": "2021-06-01 13:45:10",
	}
	for in, want := range tests {
		if got := ExcelTime(in); got != want {
			t.Errorf("ExcelTime(%q) = %q; want %q", in, got, want)
		}
	}
}

func TestApply(t *testing.T) {
	stamp := time.Date(2021, 6, 1, 0, 0, 0, 0, time.UTC)
	row := types.Row{
		Columns: []string{"time", "soil_moist", "status", "flag", "missing"},
		Values:  []any{stamp, json.Number("21.25"), "ok", json.Number("NaN"), nil},
	}

	t.Run("structured", func(t *testing.T) {
		got := Apply(row, types.Structured.Sink(true))
		if got.Values[0] != stamp {
			t.Errorf("time = %v; want native time", got.Values[0])
		}
		if got.Values[1] != 21.25 {
			t.Errorf("soil_moist = %#v; want 21.25", got.Values[1])
		}
		if got.Columns[2] != "status" {
			t.Errorf("column = %q; structured output keeps status", got.Columns[2])
		}
		if got.Values[3] != NaN {
			t.Errorf("flag = %#v; want NaN string", got.Values[3])
		}
		if got.Values[4] != nil {
			t.Errorf("missing = %#v; want nil", got.Values[4])
		}
	})

	t.Run("tabular", func(t *testing.T) {
		got := Apply(row, types.TabularDelimited.Sink(false))
		if got.Values[0] != "2021-06-01T00:00:00Z" {
			t.Errorf("time = %#v; want ISO string", got.Values[0])
		}
		if got.Columns[2] != "_status" {
			t.Errorf("column = %q; want _status", got.Columns[2])
		}
		if row.Columns[2] != "status" {
			t.Error("Apply modified its input")
		}
	})

	t.Run("tabular excel", func(t *testing.T) {
		got := Apply(row, types.TabularPlain.Sink(true))
		if got.Values[0] != "2021-06-01 00:00:00" {
			t.Errorf("time = %#v; want excel format", got.Values[0])
		}
		s := types.Row{Columns: []string{"time"}, Values: []any{"2021-06-01T00:00:00.000Z"}}
		if v := Apply(s, types.TabularPlain.Sink(true)).Values[0]; v != "2021-06-01 00:00:00" {
			t.Errorf("string time = %#v", v)
		}
	})

	t.Run("float NaN", func(t *testing.T) {
		got := Apply(types.Row{Columns: []string{"x"}, Values: []any{math.NaN()}}, types.Structured.Sink(false))
		if got.Values[0] != NaN {
			t.Errorf("x = %#v", got.Values[0])
		}
	})

	t.Run("exponent literal", func(t *testing.T) {
		got := Apply(types.Row{Columns: []string{"x"}, Values: []any{json.Number("1e-05")}}, types.Structured.Sink(false))
		if got.Values[0] != 1e-05 {
			t.Errorf("x = %#v", got.Values[0])
		}
	})
}

func TestRow_MarshalJSONKeepsOrder(t *testing.T) {
	row := Apply(types.Row{
		Columns: []string{"time", "z_last", "a_first"},
		Values:  []any{time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC), json.Number("1"), json.Number("2.5")},
	}, types.Structured.Sink(false))
	b, err := json.Marshal(row)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	want := `{"time":"2021-01-01T00:00:00Z","z_last":1,"a_first":2.5}`
	if string(b) != want {
		t.Errorf("got %s; want %s", b, want)
	}
}
