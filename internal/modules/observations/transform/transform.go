// Package transform adapts raw store rows to what an output sink can encode.
package transform

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/govalues/decimal"

	"cosmoz-server/internal/modules/observations/types"
	"cosmoz-server/internal/tabular"
)

const (
	excelTime = "2006-01-02 15:04:05"

	// NaN is written in place of NaN floats, which JSON cannot carry.
	NaN = "NaN"
)

// Apply returns a copy of row converted for sink. The input row is not
// modified, so it may alias cursor memory.
func Apply(row types.Row, sink types.Sink) types.Row {
	out := types.Row{
		Columns: make([]string, len(row.Columns)),
		Values:  make([]any, len(row.Columns)),
	}
	for i, col := range row.Columns {
		var v any
		if i < len(row.Values) {
			v = row.Values[i]
		}
		if sink.Templated && col == "status" {
			col = "_status"
		}
		out.Columns[i] = col
		out.Values[i] = value(col, v, sink)
	}
	return out
}

func value(col string, v any, sink types.Sink) any {
	switch t := v.(type) {
	case json.Number:
		return number(string(t))
	case float64:
		if math.IsNaN(t) {
			return NaN
		}
		return t
	case time.Time:
		return timestamp(t, sink)
	case string:
		if col == "time" && sink.Excel {
			return ExcelTime(t)
		}
		return t
	default:
		return v
	}
}

// number converts a decimal literal to float64. Precision loss past 64-bit
// float is accepted.
func number(s string) any {
	if strings.EqualFold(s, "nan") {
		return NaN
	}
	if d, err := decimal.Parse(s); err == nil {
		if f, ok := d.Float64(); ok {
			return f
		}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return s
	}
	if math.IsNaN(f) {
		return NaN
	}
	return f
}

func timestamp(t time.Time, sink types.Sink) any {
	t = t.UTC()
	switch {
	case sink.Excel:
		return t.Format(excelTime)
	case sink.NativeTime:
		return t
	default:
		return tabular.ISOTime(t)
	}
}

// ExcelTime rewrites an ISO-8601 timestamp as YYYY-MM-DD HH:MM:SS.
func ExcelTime(iso string) string {
	s := strings.Replace(iso, "T", " ", 1)
	if len(s) > 19 {
		s = s[:19]
	}
	return strings.TrimSuffix(s, "Z")
}
