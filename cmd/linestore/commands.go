package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"text/tabwriter"
	"time"

	defaults "github.com/xtxerr/linestore/config"
	"github.com/xtxerr/linestore/internal/constants"
	"github.com/xtxerr/linestore/internal/errors"
	"github.com/xtxerr/linestore/internal/storage/combine"
	"github.com/xtxerr/linestore/internal/storage/parquet"
	"github.com/xtxerr/linestore/internal/storage/query"
	"github.com/xtxerr/linestore/internal/storage/types"
	"github.com/xtxerr/linestore/internal/wire"
)

type command struct {
	name    string
	args    string
	summary string

	// series marks commands whose positional argument is a series name.
	series bool

	run func(a *app, args []string) error
}

func commandTable() []command {
	return []command{
		{"last", "<series>", "print the newest line", true, (*app).cmdLast},
		{"dump", "[-format text|wire|raw] [-start t] [-end t] <series>", "write the lines of a time range", true, (*app).cmdDump},
		{"checkpoints", "<series>", "list index checkpoints", true, (*app).cmdCheckpoints},
		{"stats", "<series>", "print series statistics", true, (*app).cmdStats},
		{"export", "-out file [-start t] [-end t] <series>", "export a time range to Parquet", true, (*app).cmdExport},
		{"downsample", "[-bucket d] [-start t] [-end t] [-out file] <series>", "aggregate readings into time buckets", true, (*app).cmdDownsample},
		{"query", "[-bucket d] [-start t] [-end t] [-limit n] [-percentiles] <parquet>", "downsample Parquet exports with DuckDB", false, (*app).cmdQuery},
		{"sql", "<statement>", "run SQL against Parquet exports", false, (*app).cmdSQL},
		{"info", "<parquet>", "describe a Parquet export", false, (*app).cmdInfo},
		{"series", "", "list configured series", false, (*app).cmdSeries},
		{"requirements", "", "estimate disk usage of sampled series", false, (*app).cmdRequirements},
		{"shell", "", "start an interactive shell", false, (*app).cmdShell},
	}
}

func findCommand(name string) (command, bool) {
	for _, c := range commandTable() {
		if c.name == name {
			return c, true
		}
	}
	return command{}, false
}

func (a *app) cmdLast(args []string) error {
	fs := a.flags("last")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	name, err := oneArg(fs, "series")
	if err != nil {
		return err
	}

	s, sc, err := a.openSeries(name)
	if err != nil {
		return err
	}

	t, payload, err := s.LastLineRaw()
	if err != nil {
		return errors.Wrapf(err, "series %s", name)
	}

	_, err = fmt.Fprintln(a.out, formatLine(sc, t, payload))
	return err
}

func (a *app) cmdDump(args []string) error {
	fs := a.flags("dump")
	format := fs.String("format", constants.FormatText, "output format: text, wire, raw")
	start := fs.String("start", "", "first timestamp")
	end := fs.String("end", "", "last timestamp (default: end of series)")
	force := fs.Bool("force", false, "write binary formats to a terminal")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	name, err := oneArg(fs, "series")
	if err != nil {
		return err
	}

	if !constants.IsValidDumpFormat(*format) {
		return errors.NewUsage("dump: format must be one of %v", constants.ValidDumpFormats)
	}
	if constants.FormatIsBinary(*format) && a.tty && !*force {
		return errors.NewUsage("dump: refusing to write %s output to a terminal, pass -force", *format)
	}

	from, to, err := parseRange(*start, *end, a.now())
	if err != nil {
		return err
	}

	s, sc, err := a.openSeries(name)
	if err != nil {
		return err
	}

	switch *format {
	case constants.FormatWire:
		w := wire.NewWriter(a.out)
		return s.Range(from, to, func(b *types.Batch) error {
			return w.WriteBatch(name, b)
		})

	case constants.FormatRaw:
		if err := s.SetReadStart(from); err != nil {
			return err
		}
		if to.IsZero() {
			s.ClearReadStop()
		} else if err := s.SetReadStop(to); err != nil {
			return err
		}
		return copyLines(a.out, s, s.LineSize()*max(a.cfg.ReadBatchLines, 1))

	default:
		w := bufio.NewWriter(a.out)
		err := s.Range(from, to, func(b *types.Batch) error {
			for i := 0; i < b.Len(); i++ {
				if _, err := fmt.Fprintln(w, formatLine(sc, b.Time(i), b.Payload(i))); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
		return w.Flush()
	}
}

// copyLines copies whole lines from r until io.EOF.
func copyLines(w io.Writer, r io.Reader, bufSize int) error {
	buf := make([]byte, bufSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return werr
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func (a *app) cmdCheckpoints(args []string) error {
	fs := a.flags("checkpoints")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	name, err := oneArg(fs, "series")
	if err != nil {
		return err
	}

	s, _, err := a.openSeries(name)
	if err != nil {
		return err
	}

	lineSize := uint64(s.LineSize())
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tTIME\tUNIX\tWINDOW\tOFFSET\tLINE")
	for i, cp := range s.Checkpoints() {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%d\t%d\t%d\n",
			i, formatTime(cp.Time()), cp.Timestamp, cp.Window(), cp.Offset, cp.Offset/lineSize)
	}
	return tw.Flush()
}

func (a *app) cmdStats(args []string) error {
	fs := a.flags("stats")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	name, err := oneArg(fs, "series")
	if err != nil {
		return err
	}

	s, sc, err := a.openSeries(name)
	if err != nil {
		return err
	}
	st := s.Stats()

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "series\t%s\n", name)
	fmt.Fprintf(tw, "payload\t%s (%d bytes, line %d bytes)\n", sc.Payload, st.PayloadWidth, st.LineSize)
	fmt.Fprintf(tw, "lines\t%d\n", st.Lines)
	fmt.Fprintf(tw, "data bytes\t%d\n", st.DataBytes)
	fmt.Fprintf(tw, "checkpoints\t%d\n", st.Index.Checkpoints)
	fmt.Fprintf(tw, "first checkpoint\t%s\n", st.FirstCheckpoint)
	fmt.Fprintf(tw, "last checkpoint\t%s\n", st.LastCheckpoint)
	fmt.Fprintf(tw, "superseded records\t%d\n", st.Index.Superseded)
	fmt.Fprintf(tw, "skipped records\t%d\n", st.Index.SkippedRecords)
	fmt.Fprintf(tw, "regressions\t%d\n", st.Regressions)
	if st.Lines > 0 {
		if t, _, err := s.LastLineRaw(); err == nil {
			fmt.Fprintf(tw, "newest line\t%s\n", formatTime(t))
		}
	}
	return tw.Flush()
}

func (a *app) parquetOptions(compression string) (parquet.Options, error) {
	ct, err := parquet.ParseCompressionType(compression)
	if err != nil {
		return parquet.Options{}, errors.NewUsage("%v", err)
	}
	return parquet.Options{Compression: ct}, nil
}

func (a *app) cmdExport(args []string) error {
	fs := a.flags("export")
	out := fs.String("out", "", "output Parquet file")
	start := fs.String("start", "", "first timestamp")
	end := fs.String("end", "", "last timestamp (default: end of series)")
	compression := fs.String("compression", a.cfg.Export.Compression, "codec: zstd, snappy, lz4, gzip, none")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	name, err := oneArg(fs, "series")
	if err != nil {
		return err
	}
	if *out == "" {
		return errors.NewUsage("export: -out is required")
	}

	from, to, err := parseRange(*start, *end, a.now())
	if err != nil {
		return err
	}
	opts, err := a.parquetOptions(*compression)
	if err != nil {
		return err
	}

	s, sc, err := a.openSeries(name)
	if err != nil {
		return err
	}

	var n int64
	if sc.IsReading() {
		n, err = parquet.ExportReadings(s, *out, from, to, opts)
	} else {
		n, err = parquet.ExportRaw(s, *out, from, to, opts)
	}
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(a.out, "exported %d lines to %s\n", n, *out)
	return err
}

func (a *app) cmdDownsample(args []string) error {
	fs := a.flags("downsample")
	bucket := fs.Duration("bucket", 5*time.Minute, "bucket size")
	start := fs.String("start", "", "first timestamp")
	end := fs.String("end", "", "last timestamp (default: end of series)")
	out := fs.String("out", "", "write aggregates to this Parquet file instead of stdout")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	name, err := oneArg(fs, "series")
	if err != nil {
		return err
	}

	from, to, err := parseRange(*start, *end, a.now())
	if err != nil {
		return err
	}

	s, sc, err := a.openSeries(name)
	if err != nil {
		return err
	}
	if !sc.IsReading() {
		return errors.NewUsage("downsample: series %s does not hold readings", name)
	}

	aggs, err := combine.Series(s, from, to, *bucket, a.cfg.Query.PercentileAccuracy)
	if err != nil {
		return err
	}

	if *out == "" {
		return printAggregates(a.out, aggs)
	}

	opts, err := a.parquetOptions(a.cfg.Export.Compression)
	if err != nil {
		return err
	}
	opts.Metadata = map[string]string{parquet.MetaSeries: name}
	if err := parquet.WriteAggregates(*out, aggs, opts); err != nil {
		return err
	}
	_, err = fmt.Fprintf(a.out, "wrote %d buckets to %s\n", len(aggs), *out)
	return err
}

// interruptible returns a context cancelled by Ctrl-C.
func interruptible() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

func (a *app) cmdQuery(args []string) error {
	fs := a.flags("query")
	bucket := fs.Duration("bucket", 5*time.Minute, "bucket size")
	start := fs.String("start", "", "first timestamp")
	end := fs.String("end", "", "last timestamp")
	limit := fs.Int("limit", 0, "maximum number of buckets")
	percentiles := fs.Bool("percentiles", false, "compute p50/p90/p95/p99")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	path, err := oneArg(fs, "parquet file")
	if err != nil {
		return err
	}

	from, to, err := parseRange(*start, *end, a.now())
	if err != nil {
		return err
	}

	svc, err := a.queryService()
	if err != nil {
		return err
	}

	ctx, cancel := interruptible()
	defer cancel()

	var aggs []types.Aggregate
	if isAggregateFile(path) {
		aggs, err = svc.QueryAggregates(ctx, path, from, to)
	} else {
		aggs, err = svc.Downsample(ctx, query.DownsampleQuery{
			Path:        path,
			StartTime:   from,
			EndTime:     to,
			Bucket:      *bucket,
			Percentiles: *percentiles,
			Limit:       *limit,
		})
	}
	if err != nil {
		return err
	}
	return printAggregates(a.out, aggs)
}

// isAggregateFile reports whether path is a single file written by
// downsample -out. Globs are always treated as reading exports.
func isAggregateFile(path string) bool {
	if strings.ContainsAny(path, "*?[") {
		return false
	}
	info, err := parquet.GetFileInfo(path)
	if err != nil {
		return false
	}
	return info.Metadata[parquet.MetaKind] == parquet.KindAggregate
}

func (a *app) cmdSQL(args []string) error {
	stmt := strings.TrimSpace(strings.Join(args, " "))
	if stmt == "" {
		return errors.NewUsage("sql: statement is required")
	}

	svc, err := a.queryService()
	if err != nil {
		return err
	}

	ctx, cancel := interruptible()
	defer cancel()

	rows, err := svc.ExecuteSQL(ctx, stmt)
	if err != nil {
		return err
	}
	return printRows(a.out, rows)
}

func (a *app) cmdInfo(args []string) error {
	fs := a.flags("info")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	path, err := oneArg(fs, "parquet file")
	if err != nil {
		return err
	}

	info, err := parquet.GetFileInfo(path)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "path\t%s\n", info.Path)
	fmt.Fprintf(tw, "size\t%d\n", info.Size)
	fmt.Fprintf(tw, "rows\t%d\n", info.NumRows)
	fmt.Fprintf(tw, "columns\t%d\n", info.NumCols)
	for _, k := range sortedKeys(info.Metadata) {
		fmt.Fprintf(tw, "%s\t%s\n", k, info.Metadata[k])
	}
	return tw.Flush()
}

func (a *app) cmdSeries(args []string) error {
	if len(args) > 0 {
		return errors.NewUsage("series: takes no arguments")
	}

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tPAYLOAD\tINTERVAL\tSOURCE\tLINES")
	for _, sc := range a.cfg.Series {
		source, interval := "-", "-"
		if sc.Sampled() {
			source = fmt.Sprintf("snmp://%s:%d/%s", sc.SNMP.Host, sc.SNMP.Port, sc.SNMP.OID)
			interval = sc.Interval.String()
		}

		lines := "-"
		if width, err := sc.PayloadWidth(); err == nil {
			if fi, err := os.Stat(a.cfg.SeriesPath(sc.Name) + defaults.DataSuffix); err == nil {
				lines = fmt.Sprint(fi.Size() / int64(width+defaults.TimestampSize))
			}
		}

		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", sc.Name, sc.Payload, interval, source, lines)
	}
	return tw.Flush()
}

func (a *app) cmdRequirements(args []string) error {
	if len(args) > 0 {
		return errors.NewUsage("requirements: takes no arguments")
	}
	req := a.cfg.CalculateRequirements()
	_, err := fmt.Fprint(a.out, req.FormatRequirements())
	return err
}
