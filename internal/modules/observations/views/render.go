package views

import (
	"embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"text/template"

	"cosmoz-server/internal/modules/observations/types"
	"cosmoz-server/internal/tabular"
)

//go:embed templates
var viewsFS embed.FS

var tabularTmpl map[string]*template.Template

// loadTemplatesFromFS parses one template set per subdirectory of dir.
func loadTemplatesFromFS(fsys fs.FS, dir string) error {
	sub, err := fs.Sub(fsys, dir)
	if err != nil {
		return err
	}
	entries, err := fs.ReadDir(sub, ".")
	if err != nil {
		return err
	}
	sets := make(map[string]*template.Template)
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		t, err := template.New(e.Name()).Funcs(tabular.Funcs()).ParseFS(sub, e.Name()+"/*.tmpl")
		if err != nil {
			return fmt.Errorf("template set %s: %w", e.Name(), err)
		}
		sets[e.Name()] = t
	}
	if len(sets) == 0 {
		return errors.New("no template sets found")
	}
	tabularTmpl = sets
	return nil
}

// LoadTemplates parses the embedded tabular templates. Call during startup;
// the server must not start if it fails.
func LoadTemplates() error {
	return loadTemplatesFromFS(viewsFS, "templates")
}

// HeaderName is the template that opens a download for a processing level.
func HeaderName(level int) string {
	if level == 0 {
		return "raw_data"
	}
	return fmt.Sprintf("level%d_data", level)
}

// HeaderData is what header templates see.
type HeaderData struct {
	SiteNo          int
	ProcessingLevel int
	Start           string
	End             string
	Aggregation     string
	Columns         []string
}

// NewHeaderData builds the header view for p with the result's columns.
func NewHeaderData(p types.Params, columns []string) HeaderData {
	h := HeaderData{
		SiteNo:          p.StationID,
		ProcessingLevel: p.ProcessingLevel,
		Aggregation:     p.Aggregate,
		Columns:         columns,
	}
	if p.Start != nil {
		h.Start = tabular.ISOTime(*p.Start)
	}
	if p.End != nil {
		h.End = tabular.ISOTime(*p.End)
	}
	return h
}

func lookup(set string) (*template.Template, error) {
	if tabularTmpl == nil {
		return nil, errors.New("tabular templates not loaded: call views.LoadTemplates during startup")
	}
	t, ok := tabularTmpl[set]
	if !ok {
		return nil, fmt.Errorf("unknown template set %q", set)
	}
	return t, nil
}

// RenderHeader writes the per-level header of a tabular download.
func RenderHeader(w io.Writer, set string, data HeaderData) error {
	t, err := lookup(set)
	if err != nil {
		return err
	}
	return t.ExecuteTemplate(w, HeaderName(data.ProcessingLevel), data)
}

// RenderRow writes one transformed row.
func RenderRow(w io.Writer, set string, row types.Row) error {
	t, err := lookup(set)
	if err != nil {
		return err
	}
	return t.ExecuteTemplate(w, "row", row)
}

// Meta is the structured response envelope header. Range fields are left
// out for the most-recent-N variant.
type Meta struct {
	SiteNo          int     `json:"site_no"`
	ProcessingLevel int     `json:"processing_level"`
	Count           int     `json:"count"`
	Offset          *int64  `json:"offset,omitempty"`
	StartDate       *string `json:"start_date,omitempty"`
	EndDate         *string `json:"end_date,omitempty"`
	Aggregation     string  `json:"aggregation,omitempty"`
}

type Envelope struct {
	Meta         Meta        `json:"meta"`
	Observations []types.Row `json:"observations"`
}

// NewEnvelope wraps materialized rows for p.
func NewEnvelope(p types.Params, rows []types.Row) Envelope {
	if rows == nil {
		rows = []types.Row{}
	}
	meta := Meta{
		SiteNo:          p.StationID,
		ProcessingLevel: p.ProcessingLevel,
		Count:           len(rows),
		Aggregation:     p.Aggregate,
	}
	if p.Variant == types.VariantRange {
		offset := p.Offset
		meta.Offset = &offset
		start, end := "", ""
		if p.Start != nil {
			start = tabular.ISOTime(*p.Start)
		}
		if p.End != nil {
			end = tabular.ISOTime(*p.End)
		}
		meta.StartDate, meta.EndDate = &start, &end
	}
	return Envelope{Meta: meta, Observations: rows}
}
