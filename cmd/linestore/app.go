package main

import (
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"

	defaults "github.com/xtxerr/linestore/config"
	"github.com/xtxerr/linestore/internal/config"
	"github.com/xtxerr/linestore/internal/errors"
	"github.com/xtxerr/linestore/internal/registry"
	"github.com/xtxerr/linestore/internal/storage"
	"github.com/xtxerr/linestore/internal/storage/query"
)

// app holds the state shared by all commands of one invocation, or of
// one shell session.
type app struct {
	cfg     *config.Config
	payload string

	out    io.Writer
	errOut io.Writer
	tty    bool
	now    func() time.Time

	reg   *registry.Registry
	query *query.Service
}

func newApp(cfg *config.Config, payload string, stdout, stderr io.Writer, tty bool) *app {
	return &app{
		cfg:     cfg,
		payload: payload,
		out:     stdout,
		errOut:  stderr,
		tty:     tty,
		now:     time.Now,
		reg: registry.New(cfg.DataDir, storage.Options{
			Now:        time.Now,
			BatchLines: cfg.ReadBatchLines,
		}),
	}
}

func (a *app) close() error {
	var errs []error
	if a.query != nil {
		errs = append(errs, a.query.Close())
		a.query = nil
	}
	errs = append(errs, a.reg.Close())
	return errors.Join(errs...)
}

func (a *app) dispatch(args []string) error {
	c, ok := findCommand(args[0])
	if !ok {
		return errors.NewUsage("unknown command %q", args[0])
	}
	return c.run(a, args[1:])
}

// flags returns a flag set for a subcommand whose parse errors are
// reported as usage errors.
func (a *app) flags(name string) *flag.FlagSet {
	set := flag.NewFlagSet(name, flag.ContinueOnError)
	set.SetOutput(a.errOut)
	return set
}

func parseFlags(set *flag.FlagSet, args []string) error {
	if err := set.Parse(args); err != nil {
		return errors.NewUsage("%s: %v", set.Name(), err)
	}
	return nil
}

// oneArg returns the single positional argument left after parsing.
func oneArg(set *flag.FlagSet, what string) (string, error) {
	if set.NArg() != 1 {
		return "", errors.NewUsage("%s: expected one %s argument, got %d", set.Name(), what, set.NArg())
	}
	return set.Arg(0), nil
}

// seriesConfig returns the configuration of a series, building one from
// -payload for series missing from the config file.
func (a *app) seriesConfig(name string) (config.SeriesConfig, error) {
	if sc, ok := a.cfg.FindSeries(name); ok {
		return *sc, nil
	}
	if a.payload == "" {
		return config.SeriesConfig{}, errors.NewUsage("series %s is not configured, pass -payload", name)
	}
	return config.SeriesConfig{Name: name, Payload: a.payload}, nil
}

// openSeries opens an existing series. Read commands never create files.
func (a *app) openSeries(name string) (*storage.Series, config.SeriesConfig, error) {
	sc, err := a.seriesConfig(name)
	if err != nil {
		return nil, sc, err
	}

	width, err := sc.PayloadWidth()
	if err != nil {
		return nil, sc, errors.NewUsage("series %s: %v", name, err)
	}

	if _, err := os.Stat(a.cfg.SeriesPath(name) + defaults.DataSuffix); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, sc, fmt.Errorf("series %s not found in %s", name, a.cfg.DataDir)
		}
		return nil, sc, err
	}

	s, err := a.reg.Open(name, width)
	if err != nil {
		return nil, sc, err
	}
	return s, sc, nil
}

func (a *app) queryService() (*query.Service, error) {
	if a.query != nil {
		return a.query, nil
	}

	svc, err := query.New(query.Options{
		MemoryLimit: a.cfg.Query.MemoryLimit,
		Timeout:     a.cfg.Query.Timeout,
	})
	if err != nil {
		return nil, err
	}
	a.query = svc
	return svc, nil
}
