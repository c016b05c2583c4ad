package parquet

import (
	"path/filepath"
	"strconv"
	"time"

	"github.com/xtxerr/linestore/internal/logging"
	"github.com/xtxerr/linestore/internal/storage"
	"github.com/xtxerr/linestore/internal/storage/decode"
	"github.com/xtxerr/linestore/internal/storage/types"
)

// Kinds recorded under MetaKind.
const (
	KindReading   = "reading"
	KindRaw       = "raw"
	KindAggregate = "aggregate"
)

// ExportReadings writes every reading of s stamped within [start, end] to
// a new Parquet file at path. A zero end exports to the end of s. It
// returns the number of rows written.
func ExportReadings(s *storage.Series, path string, start, end time.Time, opts Options) (int64, error) {
	return export(s, path, start, end, KindReading, opts, func(b *types.Batch) ([]ReadingRow, error) {
		points, err := decode.Points(b)
		if err != nil {
			return nil, err
		}
		rows := make([]ReadingRow, len(points))
		for i := range points {
			rows[i] = PointToRow(&points[i])
		}
		return rows, nil
	})
}

// ExportRaw writes every line of s stamped within [start, end] to a new
// Parquet file at path, keeping payloads opaque.
func ExportRaw(s *storage.Series, path string, start, end time.Time, opts Options) (int64, error) {
	return export(s, path, start, end, KindRaw, opts, func(b *types.Batch) ([]RawRow, error) {
		rows := make([]RawRow, b.Len())
		for i := range rows {
			payload := make([]byte, b.Width)
			copy(payload, b.Payload(i))
			rows[i] = RawRow{Timestamp: b.Timestamps[i], Payload: payload}
		}
		return rows, nil
	})
}

func export[R any](s *storage.Series, path string, start, end time.Time, kind string, opts Options, convert func(*types.Batch) ([]R, error)) (int64, error) {
	opts.Metadata = withSeriesMetadata(opts.Metadata, s, kind)

	w, err := NewWriter[R](path, opts)
	if err != nil {
		return 0, err
	}

	err = s.Range(start, end, func(b *types.Batch) error {
		rows, err := convert(b)
		if err != nil {
			return err
		}
		return w.Write(rows)
	})
	if err != nil {
		w.Close()
		return 0, err
	}

	if err := w.Close(); err != nil {
		return 0, err
	}

	logging.Component("export").Info("series exported",
		"series", s.Name(), "path", path, "kind", kind, "rows", w.RowCount())
	return w.RowCount(), nil
}

// WriteAggregates writes downsampled buckets to a new Parquet file.
func WriteAggregates(path string, aggs []types.Aggregate, opts Options) error {
	meta := map[string]string{MetaKind: KindAggregate}
	for k, v := range opts.Metadata {
		meta[k] = v
	}
	opts.Metadata = meta

	w, err := NewWriter[AggregateRow](path, opts)
	if err != nil {
		return err
	}

	rows := make([]AggregateRow, len(aggs))
	for i := range aggs {
		rows[i] = AggregateToRow(&aggs[i])
	}

	if err := w.Write(rows); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

func withSeriesMetadata(in map[string]string, s *storage.Series, kind string) map[string]string {
	out := map[string]string{
		MetaSeries:       filepath.Base(s.Name()),
		MetaPayloadWidth: strconv.Itoa(s.PayloadWidth()),
		MetaKind:         kind,
	}
	for k, v := range in {
		out[k] = v
	}
	return out
}
