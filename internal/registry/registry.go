// Package registry keeps named series under a data directory open and
// shared between goroutines.
//
// Series are opened lazily on first use. Concurrent opens of the same name
// collapse into a single open so a series' files are never opened twice.
//
// Registry is safe for concurrent use.
package registry

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"

	"github.com/xtxerr/linestore/internal/errors"
	"github.com/xtxerr/linestore/internal/logging"
	"github.com/xtxerr/linestore/internal/storage"
	"github.com/xtxerr/linestore/internal/validation"
	"golang.org/x/sync/singleflight"
)

// Stats holds registry statistics.
type Stats struct {
	Open   int
	Opens  int64
	Hits   int64
	Errors int64
}

// Registry maps series names to open series.
type Registry struct {
	dir  string
	opts storage.Options

	mu     sync.RWMutex
	series map[string]*storage.Series
	closed bool

	// Singleflight to collapse concurrent opens of one name
	group singleflight.Group

	log   *slog.Logger
	stats Stats
}

// New creates a registry for series stored under dir.
func New(dir string, opts storage.Options) *Registry {
	return &Registry{
		dir:    dir,
		opts:   opts,
		series: make(map[string]*storage.Series),
		log:    logging.Component("registry"),
	}
}

// Dir returns the data directory.
func (r *Registry) Dir() string {
	return r.dir
}

// Get returns an already open series.
func (r *Registry) Get(name string) (*storage.Series, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.series[name]
	return s, ok
}

// Open returns the series called name, opening it on first use. Opening a
// name that is already open with another payload width fails with
// ErrSizeMismatch.
func (r *Registry) Open(name string, payloadWidth int) (*storage.Series, error) {
	if err := validation.ValidateSeriesName(name); err != nil {
		return nil, errors.NewValidation("series name", fmt.Sprintf("%q: %v", name, err))
	}

	if s, ok := r.lookup(name); ok {
		return checkWidth(s, payloadWidth)
	}

	result, err, _ := r.group.Do(name, func() (interface{}, error) {
		return r.doOpen(name, payloadWidth)
	})
	if err != nil {
		return nil, err
	}

	return checkWidth(result.(*storage.Series), payloadWidth)
}

func (r *Registry) lookup(name string) (*storage.Series, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.series[name]
	if ok {
		r.stats.Hits++
	}
	return s, ok
}

// doOpen is called via singleflight so only one goroutine opens a given
// name at a time.
func (r *Registry) doOpen(name string, payloadWidth int) (*storage.Series, error) {
	r.mu.RLock()
	if r.closed {
		r.mu.RUnlock()
		return nil, errors.ErrClosed
	}
	if s, ok := r.series[name]; ok {
		r.mu.RUnlock()
		return s, nil
	}
	r.mu.RUnlock()

	s, err := storage.Open(filepath.Join(r.dir, name), payloadWidth, r.opts)

	r.mu.Lock()
	defer r.mu.Unlock()

	if err != nil {
		r.stats.Errors++
		return nil, err
	}
	if r.closed {
		s.Close()
		return nil, errors.ErrClosed
	}

	r.series[name] = s
	r.stats.Opens++
	r.log.Debug("series registered", "name", name, "payload_width", payloadWidth)
	return s, nil
}

func checkWidth(s *storage.Series, payloadWidth int) (*storage.Series, error) {
	if s.PayloadWidth() != payloadWidth {
		return nil, errors.Wrapf(errors.NewSizeMismatch(s.PayloadWidth(), payloadWidth),
			"series %s", filepath.Base(s.Name()))
	}
	return s, nil
}

// Names returns the names of all open series in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.series))
	for name := range r.series {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Stats returns registry statistics.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s := r.stats
	s.Open = len(r.series)
	return s
}

// Close closes every series. Later opens fail with ErrClosed.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	var errs []error
	for name, s := range r.series {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", name, err))
		}
	}
	r.log.Info("registry closed", "series", len(r.series))
	r.series = make(map[string]*storage.Series)

	return errors.Join(errs...)
}
