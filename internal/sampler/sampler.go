// Package sampler polls values and appends them to series as readings.
//
// Each sampled series gets one Sampler running its own ticker. A poll
// always produces a line: failed polls are stored with Valid=false so the
// gap is visible to readers.
package sampler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/xtxerr/linestore/internal/logging"
	"github.com/xtxerr/linestore/internal/storage/decode"
	"github.com/xtxerr/linestore/internal/storage/types"
)

// Getter fetches the current value of a sampled source.
type Getter interface {
	Get(ctx context.Context) (float64, error)
}

// Appender stores one line. *storage.Series implements it.
type Appender interface {
	Append(t time.Time, payload []byte) error
}

// Stats holds sampler statistics.
type Stats struct {
	Polls        int64
	Failures     int64
	Timeouts     int64
	AppendErrors int64
	LastPoll     time.Time
	LastError    string
}

// Sampler polls one source on a fixed interval.
type Sampler struct {
	name     string
	getter   Getter
	series   Appender
	interval time.Duration

	// Now is the clock used for line timestamps. Default: time.Now
	Now func() time.Time

	log *slog.Logger

	mu    sync.Mutex
	stats Stats
}

// New creates a sampler appending polls of g to series every interval.
func New(name string, g Getter, series Appender, interval time.Duration) *Sampler {
	return &Sampler{
		name:     name,
		getter:   g,
		series:   series,
		interval: interval,
		Now:      time.Now,
		log:      logging.Component("sampler").With("series", name),
	}
}

// Name returns the series name.
func (s *Sampler) Name() string {
	return s.name
}

// Poll performs one GET and appends the resulting reading. The returned
// error only reports a failed append; poll failures are stored as invalid
// readings.
func (s *Sampler) Poll(ctx context.Context) (types.Reading, error) {
	start := s.Now()

	value, err := s.get(ctx)
	reading := types.Reading{
		Value:  value,
		Valid:  err == nil,
		PollMs: uint32(max(s.Now().Sub(start).Milliseconds(), 0)),
	}

	s.mu.Lock()
	s.stats.Polls++
	s.stats.LastPoll = start
	if err != nil {
		s.stats.Failures++
		if isTimeout(err) {
			s.stats.Timeouts++
		}
		s.stats.LastError = err.Error()
	}
	s.mu.Unlock()

	if err != nil {
		s.log.Warn("poll failed", "error", err)
	}

	payload := decode.EncodeReading(make([]byte, 0, types.ReadingSize), reading)
	if err := s.series.Append(start, payload); err != nil {
		s.mu.Lock()
		s.stats.AppendErrors++
		s.mu.Unlock()
		return reading, fmt.Errorf("append reading: %w", err)
	}

	return reading, nil
}

// get calls the getter, turning a panic into an error.
func (s *Sampler) get(ctx context.Context) (value float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("panic in poll", "panic", r)
			value, err = 0, fmt.Errorf("panic: %v", r)
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, s.interval)
	defer cancel()

	return s.getter.Get(ctx)
}

// Run polls immediately and then once per interval until ctx is done.
func (s *Sampler) Run(ctx context.Context) {
	s.log.Info("sampler started", "interval", s.interval)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		// A tick and cancellation can be ready together.
		if ctx.Err() != nil {
			s.log.Info("sampler stopped")
			return
		}

		if _, err := s.Poll(ctx); err != nil {
			s.log.Error("store reading", "error", err)
		}

		select {
		case <-ctx.Done():
		case <-ticker.C:
		}
	}
}

// Stats returns sampler statistics.
func (s *Sampler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Group runs a set of samplers.
type Group struct {
	mu       sync.Mutex
	samplers []*Sampler
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	log      *slog.Logger
}

// NewGroup creates an empty group.
func NewGroup() *Group {
	return &Group{log: logging.Component("sampler")}
}

// Add registers a sampler. Samplers added after Start are not run.
func (g *Group) Add(s *Sampler) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.samplers = append(g.samplers, s)
}

// Len returns the number of samplers.
func (g *Group) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.samplers)
}

// Start runs every sampler in its own goroutine.
func (g *Group) Start(ctx context.Context) {
	g.mu.Lock()
	defer g.mu.Unlock()

	ctx, g.cancel = context.WithCancel(ctx)
	for _, s := range g.samplers {
		g.wg.Add(1)
		go func(s *Sampler) {
			defer g.wg.Done()
			s.Run(ctx)
		}(s)
	}

	g.log.Info("samplers started", "count", len(g.samplers))
}

// Stop cancels all samplers and waits for in-flight polls, giving up
// after timeout.
func (g *Group) Stop(timeout time.Duration) {
	g.mu.Lock()
	cancel := g.cancel
	g.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()

	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		g.log.Info("samplers stopped")
	case <-time.After(timeout):
		g.log.Warn("sampler drain timeout", "timeout", timeout)
	}
}

// Stats returns per-series sampler statistics.
func (g *Group) Stats() map[string]Stats {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make(map[string]Stats, len(g.samplers))
	for _, s := range g.samplers {
		out[s.name] = s.Stats()
	}
	return out
}
