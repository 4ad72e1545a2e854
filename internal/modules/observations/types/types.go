package types

import (
	"bytes"
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

// MaxReturnCount caps count and offset.
const MaxReturnCount int64 = 2147483647

// Earliest is the floor used as the default start of tabular downloads.
var Earliest = time.Now().UTC().Add(-36525 * 24 * time.Hour)

// MediaTypes lists the observation representations in server preference
// order. The first entry is what */* resolves to.
var MediaTypes = []string{"application/json", "text/csv", "text/plain"}

// Variant selects between the date-range query and the most-recent-N query.
type Variant int

const (
	VariantRange Variant = iota
	VariantLatest
)

type Kind int

const (
	KindStructured Kind = iota
	KindTabularDelimited
	KindTabularPlain
)

// StartPolicy is how a missing startdate is filled in.
type StartPolicy int

const (
	StartLastYear StartPolicy = iota
	StartEarliest
)

// Sink describes what the output encoder can carry natively.
type Sink struct {
	NativeTime bool
	Templated  bool
	Excel      bool
}

// Representation is one output format together with every default and
// rendering choice that depends on it.
type Representation struct {
	Kind         Kind
	MediaType    string
	Extension    string
	DefaultCount int64
	DefaultStart StartPolicy
	// HonoursFilter is false when templates need every column.
	HonoursFilter bool
	// TemplateSet names the views template directory; empty for JSON.
	TemplateSet string
	sink        Sink
}

var (
	Structured = Representation{
		Kind:          KindStructured,
		MediaType:     "application/json",
		Extension:     "json",
		DefaultCount:  2000,
		DefaultStart:  StartLastYear,
		HonoursFilter: true,
		sink:          Sink{NativeTime: true},
	}
	TabularDelimited = Representation{
		Kind:         KindTabularDelimited,
		MediaType:    "text/csv",
		Extension:    "csv",
		DefaultCount: MaxReturnCount,
		DefaultStart: StartEarliest,
		TemplateSet:  "csv",
		sink:         Sink{Templated: true},
	}
	TabularPlain = Representation{
		Kind:         KindTabularPlain,
		MediaType:    "text/plain",
		Extension:    "txt",
		DefaultCount: MaxReturnCount,
		DefaultStart: StartEarliest,
		TemplateSet:  "txt",
		sink:         Sink{Templated: true},
	}
)

// ForMediaType maps a negotiated media type to its Representation.
func ForMediaType(mt string) (Representation, bool) {
	for _, r := range []Representation{Structured, TabularDelimited, TabularPlain} {
		if r.MediaType == mt {
			return r, true
		}
	}
	return Representation{}, false
}

// Streamed reports whether rows are written as they arrive.
func (r Representation) Streamed() bool { return r.Kind != KindStructured }

// Sink returns the transformer profile. Excel formatting only ever applies
// to templated output.
func (r Representation) Sink(excel bool) Sink {
	s := r.sink
	s.Excel = excel && s.Templated
	return s
}

// Filename is the attachment name for tabular downloads.
func (r Representation) Filename(stationID, level int) string {
	return fmt.Sprintf("station%d_level%d.%s", stationID, level, r.Extension)
}

// PropertyFilter is either every column or an ordered list of names.
type PropertyFilter struct {
	All   bool
	Names []string
}

func (f PropertyFilter) String() string {
	if f.All || len(f.Names) == 0 {
		return "*"
	}
	return fmt.Sprint(f.Names)
}

// Params is one parsed observations request. Pass by value.
type Params struct {
	StationID       int `validate:"gte=0"`
	ProcessingLevel int `validate:"min=0,max=4"`
	PropertyFilter  PropertyFilter
	Start           *time.Time
	End             *time.Time
	Aggregate       string
	Count           int64 `validate:"min=0,max=2147483647"`
	Offset          int64 `validate:"min=0,max=2147483647"`
	ExcelCompatible bool
	Representation  Representation
	Variant         Variant
}

// Measurement is the time-series measurement for the processing level.
func (p Params) Measurement() string {
	if p.ProcessingLevel == 0 {
		return "raw_values"
	}
	return fmt.Sprintf("level%d", p.ProcessingLevel)
}

// ValidationError is a request that cannot be served as asked.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

// Row is one observation with columns in store order. It always has a time
// column when it comes from the store.
type Row struct {
	Columns []string
	Values  []any
}

func (r Row) Get(column string) (any, bool) {
	for i, c := range r.Columns {
		if c == column {
			return r.Values[i], true
		}
	}
	return nil, false
}

// MarshalJSON writes the row as an object keeping column order.
func (r Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, c := range r.Columns {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(c)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		var v any
		if i < len(r.Values) {
			v = r.Values[i]
		}
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", c, err)
		}
		buf.Write(b)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
