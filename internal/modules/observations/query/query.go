// Package query compiles observation requests into InfluxQL.
package query

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"cosmoz-server/internal/modules/observations/types"
)

// timeLayout is how range bounds are written into the WHERE clause.
const timeLayout = "2006-01-02T15:04:05.000Z"

var (
	ErrLevel      = errors.New("query: only levels 0, 1, 2, 3 or 4 are acceptable")
	ErrIdentifier = errors.New("query: invalid identifier")
	ErrAggregate  = errors.New("query: invalid aggregate duration")

	identifierRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	durationRe   = regexp.MustCompile(`^([0-9]+(ns|u|µ|ms|s|m|h|d|w))+$`)
)

var aggregateFuncs = []string{"MEAN", "MIN", "MAX", "COUNT"}

// Compile builds the statement for p, dispatching on p.Variant.
func Compile(p types.Params) (string, error) {
	if p.Variant == types.VariantLatest {
		return CompileLatest(p)
	}
	return CompileRange(p)
}

// CompileRange builds the date-range statement: ascending time order,
// optional time buckets, and LIMIT/OFFSET always present.
func CompileRange(p types.Params) (string, error) {
	if err := checkLevel(p); err != nil {
		return "", err
	}
	if p.Aggregate != "" && !durationRe.MatchString(p.Aggregate) {
		return "", fmt.Errorf("%w: %q", ErrAggregate, p.Aggregate)
	}
	cols, err := columns(p.PropertyFilter, p.Aggregate != "")
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, `SELECT %s FROM %s WHERE "site_no"='%d'`, cols, quote(p.Measurement()), p.StationID)
	if p.Start != nil {
		fmt.Fprintf(&b, ` AND time >= '%s'`, formatTime(*p.Start))
	}
	if p.End != nil {
		fmt.Fprintf(&b, ` AND time <= '%s'`, formatTime(*p.End))
	}
	if p.Aggregate != "" {
		fmt.Fprintf(&b, ` GROUP BY time(%s)`, p.Aggregate)
	}
	fmt.Fprintf(&b, ` ORDER BY "time" ASC LIMIT %d OFFSET %d;`, p.Count, p.Offset)
	return b.String(), nil
}

// CompileLatest builds the most-recent-N statement. It never has a range,
// an aggregate or an offset.
func CompileLatest(p types.Params) (string, error) {
	if err := checkLevel(p); err != nil {
		return "", err
	}
	cols, err := columns(p.PropertyFilter, false)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(`SELECT %s FROM %s WHERE "site_no"='%d' ORDER BY "time" DESC LIMIT %d;`,
		cols, quote(p.Measurement()), p.StationID, p.Count), nil
}

func checkLevel(p types.Params) error {
	if p.ProcessingLevel < 0 || p.ProcessingLevel > 4 {
		return fmt.Errorf("%w: got %d", ErrLevel, p.ProcessingLevel)
	}
	return nil
}

func columns(f types.PropertyFilter, aggregate bool) (string, error) {
	if f.All || len(f.Names) == 0 {
		if aggregate {
			return "MEAN(*),MIN(*),MAX(*),COUNT(*)", nil
		}
		return "*", nil
	}
	out := []string{quote("time")}
	for _, name := range f.Names {
		if name == "time" {
			continue
		}
		if !identifierRe.MatchString(name) {
			return "", fmt.Errorf("%w: %q", ErrIdentifier, name)
		}
		if !aggregate {
			out = append(out, quote(name))
			continue
		}
		for _, fn := range aggregateFuncs {
			out = append(out, fn+"("+quote(name)+")")
		}
	}
	return strings.Join(out, ","), nil
}

func quote(ident string) string {
	return `"` + ident + `"`
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}
