// linestore inspects series on disk and exports them for querying.
package main

import (
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/xtxerr/linestore/internal/config"
	"github.com/xtxerr/linestore/internal/errors"
	"github.com/xtxerr/linestore/internal/logging"
	"golang.org/x/term"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr, isTerminal(os.Stdout)))
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// run executes one command line and returns the process exit code:
// 0 on success, 2 for usage errors and 1 for anything else.
func run(args []string, stdout, stderr io.Writer, tty bool) int {
	flags := flag.NewFlagSet("linestore", flag.ContinueOnError)
	flags.SetOutput(stderr)

	cfgPath := flags.String("config", "config.yaml", "config file path")
	dataDir := flags.String("data-dir", "", "data directory (overrides config)")
	payload := flags.String("payload", "", "payload of series missing from the config: reading or raw:<width>")
	logLevel := flags.String("log-level", "warn", "log level: debug, info, warn, error")
	flags.Usage = func() { printUsage(stderr, flags) }

	if err := flags.Parse(args); err != nil {
		return 2
	}
	if flags.NArg() == 0 {
		flags.Usage()
		return 2
	}

	level, err := logging.ParseLevel(*logLevel)
	if err != nil {
		fmt.Fprintf(stderr, "linestore: %v\n", err)
		return 2
	}

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		fmt.Fprintf(stderr, "linestore: %v\n", err)
		return 1
	}
	logging.InitWriter(stderr, level, cfg.Logging.JSON)

	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}

	a := newApp(cfg, *payload, stdout, stderr, tty)
	defer a.close()

	if err := a.dispatch(flags.Args()); err != nil {
		fmt.Fprintf(stderr, "linestore: %v\n", err)
		if errors.IsUsage(err) {
			return 2
		}
		return 1
	}
	return 0
}

// loadConfig loads path, falling back to defaults when it does not exist.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return config.DefaultConfig(), nil
	}
	return cfg, err
}

func printUsage(w io.Writer, flags *flag.FlagSet) {
	fmt.Fprintf(w, "linestore %s\n\nUsage: linestore [flags] <command> [args]\n\nCommands:\n", Version)
	for _, c := range commandTable() {
		fmt.Fprintf(w, "  %-12s %s\n", c.name, c.summary)
	}
	fmt.Fprintln(w, "\nFlags:")
	flags.PrintDefaults()
}
