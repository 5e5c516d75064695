// Copyright 2023 The rootfile Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package main

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/kballard/go-shellquote"

	"github.com/bpowers/rootfile"
	"github.com/bpowers/rootfile/objects"
)

type entry struct {
	name string
	obj  rootfile.Object
}

// parseAxis parses "name:nbins:min:max".
func parseAxis(arg string) (entry, error) {
	parts := strings.Split(arg, ":")
	if len(parts) != 4 {
		return entry{}, fmt.Errorf("axis %q: want name:nbins:min:max", arg)
	}
	return newAxis(parts[0], parts[1:])
}

func newAxis(name string, args []string) (entry, error) {
	nbins, err := strconv.ParseInt(args[0], 10, 32)
	if err != nil {
		return entry{}, fmt.Errorf("axis %q nbins: %w", name, err)
	}
	lo, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return entry{}, fmt.Errorf("axis %q min: %w", name, err)
	}
	hi, err := strconv.ParseFloat(args[2], 64)
	if err != nil {
		return entry{}, fmt.Errorf("axis %q max: %w", name, err)
	}
	a, err := objects.NewAxis(name, name, int32(nbins), lo, hi)
	if err != nil {
		return entry{}, err
	}
	return entry{name: name, obj: a}, nil
}

// parseAssignment parses a positional "name=value" argument into a string.
func parseAssignment(arg string) (entry, error) {
	name, value, ok := strings.Cut(arg, "=")
	if !ok || name == "" {
		return entry{}, fmt.Errorf("argument %q: want name=value", arg)
	}
	return entry{name: name, obj: objects.String(value)}, nil
}

// parseScript reads one command per line:
//
//	string NAME VALUE
//	axis NAME NBINS MIN MAX [TITLE]
//
// Words are split with shell quoting rules.  Blank lines and lines
// starting with '#' are skipped.
func parseScript(r io.Reader) ([]entry, error) {
	var entries []entry
	sc := bufio.NewScanner(r)
	for lineno := 1; sc.Scan(); lineno++ {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		words, err := shellquote.Split(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineno, err)
		}
		e, err := parseCommand(words)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineno, err)
		}
		entries = append(entries, e)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func parseCommand(words []string) (entry, error) {
	switch words[0] {
	case "string":
		if len(words) != 3 {
			return entry{}, fmt.Errorf("string: want NAME VALUE, got %d args", len(words)-1)
		}
		return entry{name: words[1], obj: objects.String(words[2])}, nil
	case "axis":
		if len(words) != 5 && len(words) != 6 {
			return entry{}, fmt.Errorf("axis: want NAME NBINS MIN MAX [TITLE], got %d args", len(words)-1)
		}
		e, err := newAxis(words[1], words[2:5])
		if err != nil {
			return entry{}, err
		}
		if len(words) == 6 {
			e.obj.(*objects.Axis).Title = words[5]
		}
		return e, nil
	default:
		return entry{}, fmt.Errorf("unknown command %q", words[0])
	}
}
