package types

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

// DefaultListCount is how many stations a listing returns without count.
const DefaultListCount int64 = 1000

// Document is one stored JSON document. Keys fixes the output order.
type Document struct {
	Keys   []string
	Fields map[string]any
}

// NewDocument orders fields with lead keys first (those present), then the
// rest alphabetically.
func NewDocument(fields map[string]any, lead ...string) Document {
	d := Document{Fields: make(map[string]any, len(fields))}
	seen := make(map[string]bool, len(lead))
	for _, k := range lead {
		if v, ok := fields[k]; ok && !seen[k] {
			d.Keys = append(d.Keys, k)
			d.Fields[k] = v
			seen[k] = true
		}
	}
	rest := make([]string, 0, len(fields))
	for k := range fields {
		if !seen[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	for _, k := range rest {
		d.Keys = append(d.Keys, k)
		d.Fields[k] = fields[k]
	}
	return d
}

// DecodeDocument parses a stored JSON object. Numbers stay json.Number so
// integers are written back unchanged.
func DecodeDocument(raw []byte, lead ...string) (Document, error) {
	var fields map[string]any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&fields); err != nil {
		return Document{}, fmt.Errorf("decode document: %w", err)
	}
	if fields == nil {
		return Document{}, fmt.Errorf("decode document: not an object")
	}
	return NewDocument(fields, lead...), nil
}

func (d Document) Get(key string) (any, bool) {
	v, ok := d.Fields[key]
	return v, ok
}

// Set replaces key or appends it at the end.
func (d *Document) Set(key string, v any) {
	if d.Fields == nil {
		d.Fields = make(map[string]any)
	}
	if _, ok := d.Fields[key]; !ok {
		d.Keys = append(d.Keys, key)
	}
	d.Fields[key] = v
}

// Delete removes key if present.
func (d *Document) Delete(key string) {
	if _, ok := d.Fields[key]; !ok {
		return
	}
	delete(d.Fields, key)
	for i, k := range d.Keys {
		if k == key {
			d.Keys = append(d.Keys[:i:i], d.Keys[i+1:]...)
			return
		}
	}
}

// Rename moves from to to in place. Templates cannot address a field called
// status, so tabular output uses _status.
func (d *Document) Rename(from, to string) {
	v, ok := d.Fields[from]
	if !ok {
		return
	}
	delete(d.Fields, from)
	d.Fields[to] = v
	for i, k := range d.Keys {
		if k == from {
			d.Keys[i] = to
			return
		}
	}
}

// Values returns the field values in key order.
func (d Document) Values() []any {
	out := make([]any, len(d.Keys))
	for i, k := range d.Keys {
		out[i] = d.Fields[k]
	}
	return out
}

// Clone returns a copy safe to modify.
func (d Document) Clone() Document {
	c := Document{Keys: append([]string(nil), d.Keys...), Fields: make(map[string]any, len(d.Fields))}
	for k, v := range d.Fields {
		c.Fields[k] = v
	}
	return c
}

// MarshalJSON writes the document as an object in key order.
func (d Document) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range d.Keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := json.Marshal(d.Fields[k])
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", k, err)
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Projection selects document fields. The zero value selects everything.
type Projection struct {
	Names []string
}

// ParseProjection reads a comma separated property_filter. Blank entries
// are dropped and * anywhere selects everything.
func ParseProjection(raw string) Projection {
	var names []string
	for _, n := range strings.Split(raw, ",") {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		if n == "*" {
			return Projection{}
		}
		names = append(names, n)
	}
	return Projection{Names: names}
}

func (p Projection) All() bool { return len(p.Names) == 0 }

// Apply keeps the required keys, then the projected ones in request order.
// Missing fields are skipped.
func (p Projection) Apply(d Document, required ...string) Document {
	if p.All() {
		return d
	}
	out := Document{Fields: make(map[string]any)}
	for _, k := range append(append([]string(nil), required...), p.Names...) {
		if v, ok := d.Fields[k]; ok {
			out.Set(k, v)
		}
	}
	return out
}

// SiteNo reads an integer station number from a document value.
func SiteNo(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		if n != float64(int(n)) {
			return 0, false
		}
		return int(n), true
	case json.Number:
		i, err := strconv.Atoi(n.String())
		return i, err == nil
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		return i, err == nil
	default:
		return 0, false
	}
}

type ListMeta struct {
	Total  int   `json:"total"`
	Count  int   `json:"count"`
	Offset int64 `json:"offset"`
}

type StationList struct {
	Meta     ListMeta   `json:"meta"`
	Stations []Document `json:"stations"`
}

type StationMeta struct {
	Total int `json:"total"`
}

type StationResponse struct {
	Meta    StationMeta `json:"meta"`
	Station Document    `json:"station"`
}

type CalibrationList struct {
	Meta         ListMeta   `json:"meta"`
	Calibrations []Document `json:"calibrations"`
}
