// Package tabular formats cells and rows for the CSV and plain-text
// downloads.
package tabular

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/goccy/go-json"
)

const (
	isoSeconds = "2006-01-02T15:04:05Z"
	isoMicros  = "2006-01-02T15:04:05.000000Z"
)

var txtReplacer = strings.NewReplacer("\t", " ", "\n", " ", "\r", " ")

// Funcs are the template helpers every tabular template set gets.
func Funcs() template.FuncMap {
	return template.FuncMap{
		"csvrow": CSVRow,
		"txtrow": TextRow,
	}
}

// ISOTime formats t as ISO-8601 in UTC with a Z suffix. Microseconds are
// included only when non-zero.
func ISOTime(t time.Time) string {
	t = t.UTC()
	if t.Nanosecond()/1000 != 0 {
		return t.Format(isoMicros)
	}
	return t.Format(isoSeconds)
}

// FormatValue renders one cell. nil is an empty cell.
func FormatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case time.Time:
		return ISOTime(t)
	case json.Number:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}

// CSVRow writes values as one RFC 4180 record, newline included.
func CSVRow(values any) (string, error) {
	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)
	if err := cw.Write(toStrings(values)); err != nil {
		return "", err
	}
	cw.Flush()
	return buf.String(), cw.Error()
}

// TextRow joins values with tabs. Tabs and line breaks inside a value become
// spaces.
func TextRow(values any) string {
	fields := toStrings(values)
	for i, f := range fields {
		fields[i] = txtReplacer.Replace(f)
	}
	return strings.Join(fields, "\t") + "\n"
}

func toStrings(values any) []string {
	switch vs := values.(type) {
	case []string:
		return append([]string(nil), vs...)
	case []any:
		out := make([]string, len(vs))
		for i, v := range vs {
			out[i] = FormatValue(v)
		}
		return out
	default:
		return []string{FormatValue(values)}
	}
}
