// linestored is the sampling daemon. It polls every sampled series over
// SNMP and appends one reading per poll.
package main

import (
	"context"
	"flag"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	defaults "github.com/xtxerr/linestore/config"
	"github.com/xtxerr/linestore/internal/config"
	"github.com/xtxerr/linestore/internal/errors"
	"github.com/xtxerr/linestore/internal/logging"
	"github.com/xtxerr/linestore/internal/registry"
	"github.com/xtxerr/linestore/internal/sampler"
	"github.com/xtxerr/linestore/internal/storage"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	// CLI flags
	cfgPath := flag.String("config", "config.yaml", "config file path")
	dataDir := flag.String("data-dir", "", "data directory (overrides config)")
	logLevel := flag.String("log-level", "", "log level (overrides config)")
	flag.Parse()

	// Load config
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg = config.DefaultConfig()
		} else {
			logging.Error("load config", "error", err)
			os.Exit(1)
		}
	}

	// CLI overrides
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}

	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		logging.Error("parse log level", "error", err)
		os.Exit(1)
	}
	logging.Init(level, cfg.Logging.JSON)
	log := logging.Component("linestored")

	log.Info("linestored starting", "version", Version, "config", *cfgPath, "data_dir", cfg.DataDir)

	if err := cfg.EnsureDirectories(); err != nil {
		fatal(log, "prepare data directory", err)
	}

	req := cfg.CalculateRequirements()
	log.Info("estimated requirements",
		"sampled_series", req.SampledSeries,
		"lines_per_day", req.LinesPerDay,
		"bytes_per_day", req.BytesPerDay,
		"index_bytes_per_day", req.IndexBytesPerDay)

	// =========================================================================
	// Open series and build samplers
	// =========================================================================

	reg := registry.New(cfg.DataDir, storage.Options{
		Now:        time.Now,
		BatchLines: cfg.ReadBatchLines,
	})

	group, err := buildSamplers(cfg, reg)
	if err != nil {
		reg.Close()
		fatal(log, "open series", err)
	}
	if group.Len() == 0 {
		log.Warn("no sampled series configured")
	}

	// =========================================================================
	// Run until SIGINT/SIGTERM
	// =========================================================================

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group.Start(ctx)
	<-ctx.Done()

	log.Info("shutting down")

	// Stop polling before closing series so no append races the close
	group.Stop(defaults.ShutdownDrainTimeout)

	for name, st := range group.Stats() {
		log.Info("sampler summary", "series", name,
			"polls", st.Polls, "failures", st.Failures, "append_errors", st.AppendErrors)
	}

	if err := reg.Close(); err != nil {
		fatal(log, "close series", err)
	}
	log.Info("linestored stopped")
}

// buildSamplers opens every configured series and creates a sampler for
// each one with an SNMP source.
func buildSamplers(cfg *config.Config, reg *registry.Registry) (*sampler.Group, error) {
	group := sampler.NewGroup()

	for i := range cfg.Series {
		sc := &cfg.Series[i]

		width, err := sc.PayloadWidth()
		if err != nil {
			return nil, errors.Wrapf(err, "series %s", sc.Name)
		}

		s, err := reg.Open(sc.Name, width)
		if err != nil {
			return nil, err
		}

		if !sc.Sampled() {
			continue
		}

		getter, err := sampler.NewSNMPGetter(sc.SNMP, cfg.Sampler.SNMPTimeout(), cfg.Sampler.Retries)
		if err != nil {
			return nil, errors.Wrapf(err, "series %s", sc.Name)
		}
		group.Add(sampler.New(sc.Name, getter, s, sc.Interval))
		logging.Component("linestored").Info("sampling series",
			"series", sc.Name, "target", getter.Target(), "interval", sc.Interval)
	}

	return group, nil
}

func fatal(log *slog.Logger, msg string, err error) {
	log.Error(msg, "error", err)
	os.Exit(1)
}
