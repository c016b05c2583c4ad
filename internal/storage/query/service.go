// Package query runs SQL over Parquet exports of series using an
// in-memory DuckDB database.
package query

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	_ "github.com/marcboeker/go-duckdb"
	"github.com/xtxerr/linestore/internal/errors"
	"github.com/xtxerr/linestore/internal/logging"
	"github.com/xtxerr/linestore/internal/storage/types"
)

// Options configures the query service.
type Options struct {
	// MemoryLimit is the DuckDB memory limit, e.g. "1GB". Empty keeps the
	// DuckDB default.
	MemoryLimit string

	// Timeout bounds every query. Zero disables the bound.
	Timeout time.Duration
}

// Service provides query capabilities over exported Parquet files.
type Service struct {
	mu sync.Mutex

	opts Options
	db   *sql.DB
	log  *slog.Logger

	// Statistics
	stats ServiceStats
}

// ServiceStats holds service statistics.
type ServiceStats struct {
	QueriesExecuted int64
	RowsReturned    int64
	Errors          int64
}

// DownsampleQuery defines a bucketed aggregation over a readings export.
type DownsampleQuery struct {
	// Path is a Parquet file or glob of files with ReadingRow columns.
	Path string

	StartTime time.Time
	EndTime   time.Time // zero means no upper bound

	Bucket      time.Duration
	Percentiles bool
	Limit       int
}

// New creates a new query service.
func New(opts Options) (*Service, error) {
	// Open in-memory DuckDB database
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}

	if opts.MemoryLimit != "" {
		if strings.ContainsAny(opts.MemoryLimit, `'";`) {
			db.Close()
			return nil, errors.NewValidation("memory_limit", opts.MemoryLimit)
		}
		if _, err := db.Exec(fmt.Sprintf("SET memory_limit='%s'", opts.MemoryLimit)); err != nil {
			db.Close()
			return nil, fmt.Errorf("set memory limit: %w", err)
		}
	}

	return &Service{
		opts: opts,
		db:   db,
		log:  logging.Component("query"),
	}, nil
}

// Close closes the query service.
func (s *Service) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opts.Timeout > 0 {
		return context.WithTimeout(ctx, s.opts.Timeout)
	}
	return context.WithCancel(ctx)
}

const downsampleSQL = `
	SELECT
		bucket_start,
		bucket_start + $2 AS bucket_end,
		count(*), sum(value), min(value), max(value), avg(value),
		%s,
		min(ts), max(ts)
	FROM (
		SELECT "timestamp" - "timestamp" %% $2 AS bucket_start, "timestamp" AS ts, value
		FROM read_parquet($1)
		WHERE valid AND "timestamp" >= $3 AND "timestamp" <= $4
	)
	GROUP BY bucket_start
	ORDER BY bucket_start
`

const (
	percentileColumns = `quantile_cont(value, 0.50), quantile_cont(value, 0.90),
		quantile_cont(value, 0.95), quantile_cont(value, 0.99)`
	nullPercentileColumns = `CAST(NULL AS DOUBLE), CAST(NULL AS DOUBLE),
		CAST(NULL AS DOUBLE), CAST(NULL AS DOUBLE)`
)

// Downsample aggregates the valid readings of a Parquet export into
// fixed-size time buckets.
func (s *Service) Downsample(ctx context.Context, q DownsampleQuery) ([]types.Aggregate, error) {
	if q.Bucket < time.Second {
		return nil, errors.NewValidation("bucket", fmt.Sprintf("bucket size %s is below 1s", q.Bucket))
	}

	end := int64(math.MaxInt64)
	if !q.EndTime.IsZero() {
		end = q.EndTime.Unix()
	}

	cols := nullPercentileColumns
	if q.Percentiles {
		cols = percentileColumns
	}
	query := fmt.Sprintf(downsampleSQL, cols)

	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, query,
		q.Path,
		int64(q.Bucket/time.Second),
		q.StartTime.Unix(),
		end,
	)
	if err != nil {
		s.stats.Errors++
		return nil, fmt.Errorf("downsample %s: %w", q.Path, err)
	}
	defer rows.Close()

	results, err := scanAggregates(rows)
	if err != nil {
		s.stats.Errors++
		return nil, err
	}

	if q.Limit > 0 && len(results) > q.Limit {
		results = results[:q.Limit]
	}

	s.stats.QueriesExecuted++
	s.stats.RowsReturned += int64(len(results))
	s.log.Debug("downsample executed", "path", q.Path, "bucket", q.Bucket, "rows", len(results))

	return results, nil
}

// QueryAggregates reads buckets from an aggregate export whose start
// falls within [start, end].
func (s *Service) QueryAggregates(ctx context.Context, path string, start, end time.Time) ([]types.Aggregate, error) {
	query := `
		SELECT
			bucket_start, bucket_end,
			count, sum, min, max, avg,
			p50, p90, p95, p99,
			first_ts, last_ts
		FROM read_parquet($1)
		WHERE bucket_start >= $2
		  AND bucket_start <= $3
		ORDER BY bucket_start
	`

	upper := int64(math.MaxInt64)
	if !end.IsZero() {
		upper = end.Unix()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, query, path, start.Unix(), upper)
	if err != nil {
		s.stats.Errors++
		return nil, fmt.Errorf("query aggregates %s: %w", path, err)
	}
	defer rows.Close()

	results, err := scanAggregates(rows)
	if err != nil {
		s.stats.Errors++
		return nil, err
	}

	s.stats.QueriesExecuted++
	s.stats.RowsReturned += int64(len(results))
	return results, nil
}

// scanAggregates scans rows into an Aggregate slice.
func scanAggregates(rows *sql.Rows) ([]types.Aggregate, error) {
	var results []types.Aggregate

	for rows.Next() {
		var r types.Aggregate
		var p50, p90, p95, p99 sql.NullFloat64

		err := rows.Scan(
			&r.BucketStart, &r.BucketEnd,
			&r.Count, &r.Sum, &r.Min, &r.Max, &r.Avg,
			&p50, &p90, &p95, &p99,
			&r.FirstTs, &r.LastTs,
		)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}

		if p50.Valid {
			r.SetPercentiles(p50.Float64, p90.Float64, p95.Float64, p99.Float64)
		}

		results = append(results, r)
	}

	return results, rows.Err()
}

// Stats returns query statistics.
func (s *Service) Stats() ServiceStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// ExecuteSQL executes a raw SQL query using DuckDB.
// This is useful for ad-hoc queries and debugging.
func (s *Service) ExecuteSQL(ctx context.Context, query string) ([]map[string]interface{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		s.stats.Errors++
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var results []map[string]interface{}

	for rows.Next() {
		values := make([]interface{}, len(columns))
		valuePtrs := make([]interface{}, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, err
		}

		row := make(map[string]interface{})
		for i, col := range columns {
			row[col] = values[i]
		}
		results = append(results, row)
	}

	s.stats.QueriesExecuted++
	s.stats.RowsReturned += int64(len(results))

	return results, rows.Err()
}
