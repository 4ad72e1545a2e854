// Package request turns observation query strings into types.Params.
package request

import (
	"errors"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"cosmoz-server/internal/modules/observations/types"
)

const defaultProcessingLevel = 4

var (
	identifierRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	// InfluxQL duration literal, e.g. 90s, 1h, 2d, 1h30m.
	durationRe = regexp.MustCompile(`^([0-9]+(ns|u|µ|ms|s|m|h|d|w))+$`)

	truths = map[string]bool{"1": true, "t": true, "T": true, "true": true, "TRUE": true, "True": true}

	timeLayouts = []string{
		time.RFC3339Nano,
		"2006-01-02T15:04:05",
		"2006-01-02",
	}

	validate = validator.New(validator.WithRequiredStructEnabled())
)

// ParseParams validates the query string of an observations request. count
// and offset never fail: anything unusable becomes the representation
// default. now anchors the default date range.
func ParseParams(values url.Values, stationID string, rep types.Representation, variant types.Variant, now time.Time) (types.Params, error) {
	p := types.Params{
		Representation:  rep,
		Variant:         variant,
		ProcessingLevel: defaultProcessingLevel,
	}

	id, err := strconv.Atoi(strings.TrimSpace(stationID))
	if err != nil || id < 0 {
		return types.Params{}, &types.ValidationError{Field: "station_no", Message: "station number must be a non-negative integer"}
	}
	p.StationID = id

	if s := strings.TrimSpace(values.Get("processing_level")); s != "" {
		level, err := strconv.Atoi(s)
		if err != nil {
			return types.Params{}, &types.ValidationError{Field: "processing_level", Message: "processing level must be an integer"}
		}
		p.ProcessingLevel = level
	}

	filter, err := parsePropertyFilter(values.Get("property_filter"), rep)
	if err != nil {
		return types.Params{}, err
	}
	p.PropertyFilter = filter

	p.ExcelCompatible = truths[values.Get("excel_compat")]

	if variant == types.VariantLatest {
		p.Count = clamp(values.Get("count"), 1)
	} else {
		if err := parseRange(&p, values, now); err != nil {
			return types.Params{}, err
		}
		agg := strings.TrimSpace(values.Get("aggregate"))
		if agg != "" && agg != "0" {
			if !durationRe.MatchString(agg) {
				return types.Params{}, &types.ValidationError{Field: "aggregate", Message: "aggregate must be a duration such as 1h, 30m or 1d"}
			}
			p.Aggregate = agg
		}
		p.Count = clamp(values.Get("count"), rep.DefaultCount)
		p.Offset = clamp(values.Get("offset"), 0)
	}

	if err := validate.Struct(p); err != nil {
		return types.Params{}, validationError(err)
	}
	return p, nil
}

func parsePropertyFilter(raw string, rep types.Representation) (types.PropertyFilter, error) {
	if !rep.HonoursFilter {
		return types.PropertyFilter{All: true}, nil
	}
	var names []string
	for _, n := range strings.Split(raw, ",") {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		if n == "*" {
			return types.PropertyFilter{All: true}, nil
		}
		if !identifierRe.MatchString(n) {
			return types.PropertyFilter{}, &types.ValidationError{Field: "property_filter", Message: "invalid property name " + strconv.Quote(n)}
		}
		names = append(names, n)
	}
	if len(names) == 0 {
		return types.PropertyFilter{All: true}, nil
	}
	return types.PropertyFilter{Names: names}, nil
}

func parseRange(p *types.Params, values url.Values, now time.Time) error {
	now = now.UTC()

	var start, end time.Time
	if s := strings.TrimSpace(values.Get("startdate")); s != "" {
		t, err := parseTime(s)
		if err != nil {
			return &types.ValidationError{Field: "startdate", Message: "startdate must be an ISO-8601 timestamp"}
		}
		start = t
	} else if p.Representation.DefaultStart == types.StartEarliest {
		start = types.Earliest
	} else {
		y, m, d := now.AddDate(0, 0, -365).Date()
		start = time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	}

	if s := strings.TrimSpace(values.Get("enddate")); s != "" {
		t, err := parseTime(s)
		if err != nil {
			return &types.ValidationError{Field: "enddate", Message: "enddate must be an ISO-8601 timestamp"}
		}
		end = t
	} else {
		y, m, d := now.Date()
		end = time.Date(y, m, d, 23, 59, 59, 0, time.UTC)
	}

	if start.After(end) {
		return &types.ValidationError{Field: "startdate", Message: "startdate must not be after enddate"}
	}
	p.Start, p.End = &start, &end
	return nil
}

func parseTime(s string) (time.Time, error) {
	var lastErr error
	for _, layout := range timeLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t.UTC(), nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

// clamp parses a pagination value, falling back when it is missing,
// malformed or outside [0, MaxReturnCount].
func clamp(raw string, fallback int64) int64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n < 0 || n > types.MaxReturnCount {
		return fallback
	}
	return n
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		if fe.Field() == "ProcessingLevel" {
			return &types.ValidationError{Field: "processing_level", Message: "only levels 0, 1, 2, 3 or 4 are acceptable"}
		}
		return &types.ValidationError{Field: fe.Field(), Message: "failed " + fe.Tag() + " check"}
	}
	return &types.ValidationError{Message: err.Error()}
}
