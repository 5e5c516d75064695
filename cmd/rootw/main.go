// Copyright 2023 The rootfile Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// rootw writes strings and axes into a new ROOT file, or lists the
// structure of an existing one.
//
// Usage:
//
//	rootw -o out.root greeting=hello --axis pt:50:0:100
//	rootw -o out.root --script objects.txt
//	rootw --ls out.root
package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"

	"github.com/bpowers/rootfile"
	"github.com/bpowers/rootfile/internal/inspect"
)

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "rootw: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	var (
		output   string
		title    string
		axes     []string
		script   string
		list     string
		capacity int
		verbose  bool
	)
	fs := pflag.NewFlagSet("rootw", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVarP(&output, "output", "o", "out.root", "path of the ROOT file to create")
	fs.StringVar(&title, "title", "", "file title")
	fs.StringArrayVar(&axes, "axis", nil, "add an axis, as name:nbins:min:max (repeatable)")
	fs.StringVar(&script, "script", "", "read objects from a script of 'string NAME VALUE' and 'axis NAME NBINS MIN MAX [TITLE]' lines")
	fs.StringVar(&list, "ls", "", "list the keys of an existing ROOT file and exit")
	fs.IntVar(&capacity, "key-index-capacity", rootfile.DefaultKeyIndexCapacity, "initial bytes reserved for the key index")
	fs.BoolVarP(&verbose, "verbose", "v", false, "log each write to stderr")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if list != "" {
		return listFile(stdout, list)
	}

	var entries []entry
	if script != "" {
		f, err := os.Open(script)
		if err != nil {
			return err
		}
		parsed, err := parseScript(f)
		f.Close()
		if err != nil {
			return fmt.Errorf("%s: %w", script, err)
		}
		entries = append(entries, parsed...)
	}
	for _, a := range axes {
		e, err := parseAxis(a)
		if err != nil {
			return err
		}
		entries = append(entries, e)
	}
	for _, arg := range fs.Args() {
		e, err := parseAssignment(arg)
		if err != nil {
			return err
		}
		entries = append(entries, e)
	}

	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	w, err := rootfile.Create(output,
		rootfile.WithLogger(logger),
		rootfile.WithTitle(title),
		rootfile.WithKeyIndexCapacity(capacity),
	)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := w.Set(e.name, e.obj); err != nil {
			w.Close()
			return err
		}
	}
	st := w.Stats()
	if err := w.Close(); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "wrote %s keys to %s (%s, %d key index relocations)\n",
		humanize.Comma(int64(st.Keys)), output, humanize.IBytes(uint64(st.End)), st.Relocations)
	return nil
}

func listFile(out io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	layout, err := inspect.Read(f)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	if err := layout.Check(); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	h := layout.Header
	fmt.Fprintf(out, "%s %q version %d, %s\n", layout.Name, layout.Title, h.Version, humanize.IBytes(uint64(h.End)))
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "CLASS\tNAME\tTITLE\tSEEK\tSIZE\n")
	for _, k := range layout.Keys {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", k.ClassName, k.Name, k.Title, k.SeekKey, humanize.IBytes(uint64(k.Nbytes)))
	}
	return tw.Flush()
}
