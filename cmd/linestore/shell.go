package main

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/c-bata/go-prompt"
	"github.com/xtxerr/linestore/internal/errors"
)

func (a *app) cmdShell(args []string) error {
	if len(args) > 0 {
		return errors.NewUsage("shell: takes no arguments")
	}
	if !a.tty {
		return errors.NewUsage("shell: stdout is not a terminal")
	}

	fmt.Fprintf(a.out, "linestore %s, data in %s. Type help for commands, exit to quit.\n", Version, a.cfg.DataDir)

	p := prompt.New(a.execute, a.complete,
		prompt.OptionPrefix("linestore> "),
		prompt.OptionTitle("linestore"),
		prompt.OptionMaxSuggestion(12),
	)
	p.Run()
	return nil
}

// execute runs one shell line. Series stay open between lines.
func (a *app) execute(line string) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return
	}

	switch fields[0] {
	case "exit", "quit":
		if err := a.close(); err != nil {
			fmt.Fprintf(a.errOut, "close: %v\n", err)
			os.Exit(1)
		}
		os.Exit(0)
	case "help":
		a.printHelp()
		return
	case "shell":
		return
	}

	if err := a.dispatch(fields); err != nil {
		fmt.Fprintf(a.errOut, "error: %v\n", err)
	}
}

func (a *app) printHelp() {
	for _, c := range commandTable() {
		if c.name == "shell" {
			continue
		}
		fmt.Fprintf(a.out, "  %-12s %s\n  %-12s %s\n", c.name, c.summary, "", c.args)
	}
	fmt.Fprintf(a.out, "  %-12s %s\n", "exit", "leave the shell")
}

func (a *app) complete(d prompt.Document) []prompt.Suggest {
	return a.completions(d.TextBeforeCursor(), d.GetWordBeforeCursor())
}

// completions suggests command names for the first word and series names
// for the argument of series commands.
func (a *app) completions(before, word string) []prompt.Suggest {
	fields := strings.Fields(before)
	if len(fields) == 0 || (len(fields) == 1 && word != "") {
		var s []prompt.Suggest
		for _, c := range commandTable() {
			if c.name != "shell" {
				s = append(s, prompt.Suggest{Text: c.name, Description: c.summary})
			}
		}
		s = append(s, prompt.Suggest{Text: "exit", Description: "leave the shell"})
		return prompt.FilterHasPrefix(s, word, true)
	}

	c, ok := findCommand(fields[0])
	if !ok || !c.series || strings.HasPrefix(word, "-") {
		return nil
	}
	return prompt.FilterHasPrefix(a.seriesSuggestions(), word, true)
}

// seriesSuggestions lists configured series plus any opened this session.
func (a *app) seriesSuggestions() []prompt.Suggest {
	seen := make(map[string]string)
	for _, sc := range a.cfg.Series {
		seen[sc.Name] = sc.Payload
	}
	for _, name := range a.reg.Names() {
		if _, ok := seen[name]; !ok {
			seen[name] = a.payload
		}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)

	s := make([]prompt.Suggest, len(names))
	for i, name := range names {
		s[i] = prompt.Suggest{Text: name, Description: seen[name]}
	}
	return s
}
