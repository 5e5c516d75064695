// Copyright 2023 The rootfile Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package rbytes

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync/atomic"
)

// Sink is byte-addressable storage.  All positions are absolute; a Sink
// has no notion of a current position.
type Sink interface {
	io.WriterAt
	io.ReaderAt
	Flush() error
	Close() error
}

// FileSink is a Sink backed by an *os.File.
type FileSink struct {
	f        *os.File
	sync     bool
	isClosed atomic.Bool
}

// NewFileSink wraps f.  If sync is true, Flush calls fsync on the file.
func NewFileSink(f *os.File, sync bool) *FileSink {
	return &FileSink{f: f, sync: sync}
}

func (s *FileSink) File() *os.File {
	return s.f
}

func (s *FileSink) WriteAt(p []byte, off int64) (int, error) {
	n, err := s.f.WriteAt(p, off)
	if err != nil {
		return n, fmt.Errorf("f.WriteAt(%d, len: %d): %w", off, len(p), err)
	}
	if n != len(p) {
		return n, io.ErrShortWrite
	}
	return n, nil
}

func (s *FileSink) ReadAt(p []byte, off int64) (int, error) {
	n, err := s.f.ReadAt(p, off)
	if err != nil {
		return n, fmt.Errorf("f.ReadAt(%d, len: %d): %w", off, len(p), err)
	}
	return n, nil
}

func (s *FileSink) Flush() error {
	if !s.sync {
		return nil
	}
	if err := s.f.Sync(); err != nil {
		return fmt.Errorf("f.Sync: %w", err)
	}
	return nil
}

func (s *FileSink) Close() error {
	if s.isClosed.Swap(true) {
		return nil
	}
	return s.f.Close()
}

var errOutOfBounds = errors.New("read out of bounds")

// MemSink is an in-memory Sink.  Writes past the end grow the buffer,
// zero-filling any gap.
type MemSink struct {
	buf    []byte
	closed bool
}

func NewMemSink() *MemSink {
	return &MemSink{}
}

func (m *MemSink) Bytes() []byte {
	return m.buf
}

func (m *MemSink) Len() int {
	return len(m.buf)
}

func (m *MemSink) WriteAt(p []byte, off int64) (int, error) {
	if m.closed {
		return 0, os.ErrClosed
	}
	if off < 0 {
		return 0, fmt.Errorf("negative offset %d", off)
	}
	end := int(off) + len(p)
	if end > len(m.buf) {
		if end > cap(m.buf) {
			grown := make([]byte, end, 2*end)
			copy(grown, m.buf)
			m.buf = grown
		} else {
			m.buf = m.buf[:end]
		}
	}
	return copy(m.buf[off:end], p), nil
}

func (m *MemSink) ReadAt(p []byte, off int64) (int, error) {
	if m.closed {
		return 0, os.ErrClosed
	}
	if off < 0 || int(off) > len(m.buf) {
		return 0, errOutOfBounds
	}
	n := copy(p, m.buf[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (m *MemSink) Flush() error {
	if m.closed {
		return os.ErrClosed
	}
	return nil
}

func (m *MemSink) Close() error {
	m.closed = true
	return nil
}

var (
	_ Sink = &FileSink{}
	_ Sink = &MemSink{}
)
