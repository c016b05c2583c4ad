package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/xtxerr/linestore/internal/config"
	"github.com/xtxerr/linestore/internal/constants"
	"github.com/xtxerr/linestore/internal/errors"
	"github.com/xtxerr/linestore/internal/storage/decode"
	"github.com/xtxerr/linestore/internal/storage/types"
)

// parseTime accepts RFC 3339, Unix seconds, "now" and negative durations
// relative to now such as -6h. An empty string yields the zero time.
func parseTime(s string, now time.Time) (time.Time, error) {
	switch {
	case s == "":
		return time.Time{}, nil
	case s == "now":
		return now, nil
	case strings.HasPrefix(s, "-"):
		if d, err := time.ParseDuration(s); err == nil {
			return now.Add(d), nil
		}
	}

	if sec, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(sec, 0).UTC(), nil
	}

	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, errors.NewUsage("cannot parse time %q", s)
	}
	return t, nil
}

// parseRange parses -start and -end values.
func parseRange(start, end string, now time.Time) (time.Time, time.Time, error) {
	from, err := parseTime(start, now)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	to, err := parseTime(end, now)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if !to.IsZero() && to.Before(from) {
		return time.Time{}, time.Time{}, errors.NewUsage("end %s is before start %s",
			to.Format(constants.TimeLayout), from.Format(constants.TimeLayout))
	}
	return from, to, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(constants.TimeLayout)
}

// formatLine renders one line as tab separated text.
func formatLine(sc config.SeriesConfig, t time.Time, payload []byte) string {
	if sc.IsReading() {
		readings, err := decode.Readings{}.Decode(payload)
		if err == nil && len(readings) == 1 {
			return formatTime(t) + "\t" + formatReading(readings[0])
		}
	}
	return formatTime(t) + "\t" + hex.EncodeToString(payload)
}

func formatReading(r types.Reading) string {
	if !r.Valid {
		return fmt.Sprintf("-\tinvalid\t%dms", r.PollMs)
	}
	return fmt.Sprintf("%s\tok\t%dms", strconv.FormatFloat(r.Value, 'g', -1, 64), r.PollMs)
}

func formatOptional(v *float64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatFloat(*v, 'g', 6, 64)
}

func printAggregates(w io.Writer, aggs []types.Aggregate) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "BUCKET\tCOUNT\tMIN\tAVG\tMAX\tP50\tP90\tP95\tP99")
	for i := range aggs {
		a := &aggs[i]
		fmt.Fprintf(tw, "%s\t%d\t%g\t%g\t%g\t%s\t%s\t%s\t%s\n",
			formatTime(a.BucketStartTime()), a.Count, a.Min, a.Avg, a.Max,
			formatOptional(a.P50), formatOptional(a.P90), formatOptional(a.P95), formatOptional(a.P99))
	}
	return tw.Flush()
}

// printRows prints SQL result rows with columns in sorted order.
func printRows(w io.Writer, rows []map[string]interface{}) error {
	if len(rows) == 0 {
		_, err := fmt.Fprintln(w, "(no rows)")
		return err
	}

	cols := make([]string, 0, len(rows[0]))
	for col := range rows[0] {
		cols = append(cols, col)
	}
	sort.Strings(cols)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(cols, "\t"))
	for _, row := range rows {
		vals := make([]string, len(cols))
		for i, col := range cols {
			vals[i] = fmt.Sprint(row[col])
		}
		fmt.Fprintln(tw, strings.Join(vals, "\t"))
	}
	return tw.Flush()
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
