// Copyright 2023 The rootfile Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package rootfile

import (
	"io"
	"log/slog"
	"time"
)

const (
	// DefaultKeyIndexCapacity is the initial size of the key index region,
	// including the head key and the key count.
	DefaultKeyIndexCapacity = 4000

	// DefaultStreamerReserve is the space set aside for the streamer-info
	// block, which is rewritten on the first append.
	DefaultStreamerReserve = 38048
)

// Option configures a FileWriter.
type Option func(*options)

type options struct {
	logger          *slog.Logger
	keyIndexCap     int64
	streamerReserve int64
	now             func() time.Time
	title           string
	sync            bool
}

func newOptions(opts []Option) options {
	o := options{
		logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
		keyIndexCap:     DefaultKeyIndexCapacity,
		streamerReserve: DefaultStreamerReserve,
		now:             time.Now,
		sync:            true,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithLogger sets an optional logger for the writer to report appends and
// key index growth.  If not provided, no logging output will be produced.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithKeyIndexCapacity sets the initial key index size in bytes.  Small
// values make the index relocate (and double) sooner.
func WithKeyIndexCapacity(n int) Option {
	return func(o *options) {
		o.keyIndexCap = int64(n)
	}
}

// WithStreamerReserve sets the size of the streamer-info block.
func WithStreamerReserve(n int) Option {
	return func(o *options) {
		o.streamerReserve = int64(n)
	}
}

// WithClock sets the time source used for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// WithTitle sets the title of the file's top directory.
func WithTitle(title string) Option {
	return func(o *options) {
		o.title = title
	}
}

// WithoutSync skips fsync when a file created with Create is flushed after
// each append.
func WithoutSync() Option {
	return func(o *options) {
		o.sync = false
	}
}
