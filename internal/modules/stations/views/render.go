package views

import (
	"embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"text/template"

	"cosmoz-server/internal/modules/stations/types"
	"cosmoz-server/internal/tabular"
)

//go:embed templates
var viewsFS embed.FS

var tmpl map[string]*template.Template

// SetFor maps a tabular media type to its template set.
var SetFor = map[string]string{
	"text/csv":   "csv",
	"text/plain": "txt",
}

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
		for _, name := range []string{"station", "calibrations"} {
			if t.Lookup(name) == nil {
				return fmt.Errorf("template set %s: missing %q", e.Name(), name)
			}
		}
		sets[e.Name()] = t
	}
	if len(sets) == 0 {
		return errors.New("no template sets found")
	}
	tmpl = sets
	return nil
}

// LoadTemplates parses the embedded station templates.
func LoadTemplates() error {
	return loadTemplatesFromFS(viewsFS, "templates")
}

// Table is what the station templates render: one header and aligned rows.
type Table struct {
	SiteNo  int
	Columns []string
	Rows    [][]any
}

// NewTable aligns docs on the union of their keys, in first-seen order.
func NewTable(siteNo int, docs ...types.Document) Table {
	t := Table{SiteNo: siteNo}
	index := map[string]int{}
	for _, d := range docs {
		for _, k := range d.Keys {
			if _, ok := index[k]; !ok {
				index[k] = len(t.Columns)
				t.Columns = append(t.Columns, k)
			}
		}
	}
	for _, d := range docs {
		row := make([]any, len(t.Columns))
		for _, k := range d.Keys {
			row[index[k]] = d.Fields[k]
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

// Pairs lists the first row as column/value pairs.
func (t Table) Pairs() [][]any {
	if len(t.Rows) == 0 {
		return nil
	}
	out := make([][]any, len(t.Columns))
	for i, c := range t.Columns {
		out[i] = []any{c, t.Rows[0][i]}
	}
	return out
}

// Render executes the named template ("station" or "calibrations") of set.
func Render(w io.Writer, set, name string, data Table) error {
	if tmpl == nil {
		return errors.New("station templates not loaded: call views.LoadTemplates during startup")
	}
	t, ok := tmpl[set]
	if !ok {
		return fmt.Errorf("unknown template set %q", set)
	}
	return t.ExecuteTemplate(w, name, data)
}
