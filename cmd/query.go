package main

import (
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"cosmoz-server/internal/modules/observations/query"
	"cosmoz-server/internal/modules/observations/request"
	"cosmoz-server/internal/modules/observations/types"
)

type queryFlags struct {
	station        int
	level          int
	start, end     string
	propertyFilter string
	aggregate      string
	count, offset  string
	format         string
	latest         bool
}

// newQueryCmd prints the statement an observations request would run,
// without contacting the store.
func newQueryCmd() *cobra.Command {
	var f queryFlags
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Print the InfluxQL compiled for an observations request",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			statement, err := compileQuery(f, time.Now().UTC())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), statement)
			return nil
		},
	}

	fl := cmd.Flags()
	fl.IntVar(&f.station, "station", -1, "station number (required)")
	fl.IntVar(&f.level, "level", 4, "processing level 0-4")
	fl.StringVar(&f.start, "start", "", "ISO-8601 start date")
	fl.StringVar(&f.end, "end", "", "ISO-8601 end date")
	fl.StringVar(&f.propertyFilter, "property-filter", "", "comma separated properties or *")
	fl.StringVar(&f.aggregate, "aggregate", "", "aggregation window such as 1h")
	fl.StringVar(&f.count, "count", "", "row limit")
	fl.StringVar(&f.offset, "offset", "", "row offset")
	fl.StringVar(&f.format, "format", types.Structured.MediaType, "representation media type")
	fl.BoolVar(&f.latest, "latest", false, "compile the most-recent-rows variant")
	_ = cmd.MarkFlagRequired("station")
	return cmd
}

func compileQuery(f queryFlags, now time.Time) (string, error) {
	rep, ok := types.ForMediaType(f.format)
	if !ok {
		return "", fmt.Errorf("unknown format %q", f.format)
	}

	values := url.Values{}
	values.Set("processing_level", strconv.Itoa(f.level))
	set := func(k, v string) {
		if v != "" {
			values.Set(k, v)
		}
	}
	set("startdate", f.start)
	set("enddate", f.end)
	set("property_filter", f.propertyFilter)
	set("aggregate", f.aggregate)
	set("count", f.count)
	set("offset", f.offset)

	variant := types.VariantRange
	if f.latest {
		variant = types.VariantLatest
	}
	p, err := request.ParseParams(values, strconv.Itoa(f.station), rep, variant, now)
	if err != nil {
		return "", err
	}
	return query.Compile(p)
}
