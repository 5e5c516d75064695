// Copyright 2023 The rootfile Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package rbytes

import (
	"fmt"
	"io"
)

// Cursor is an absolute offset into a Sink.
//
// WriteFields appends at Index and advances it.  UpdateFields has a value
// receiver: it rewrites bytes at a previously recorded offset and can never
// move the cursor it is called on.
type Cursor struct {
	Index int64
}

func NewCursor(off int64) *Cursor {
	return &Cursor{Index: off}
}

func writeFull(s Sink, p []byte, off int64) error {
	n, err := s.WriteAt(p, off)
	if err != nil {
		return err
	}
	if n != len(p) {
		return fmt.Errorf("short write of %d at %d (wanted %d): %w", n, off, len(p), io.ErrShortWrite)
	}
	return nil
}

func encode(m Marshaler) []byte {
	w := NewWBuffer(64)
	m.MarshalROOT(w)
	return w.Bytes()
}

func (c *Cursor) WriteFields(s Sink, m Marshaler) error {
	return c.WriteBytes(s, encode(m))
}

func (c Cursor) UpdateFields(s Sink, m Marshaler) error {
	return writeFull(s, encode(m), c.Index)
}

func (c *Cursor) WriteBytes(s Sink, p []byte) error {
	if err := writeFull(s, p, c.Index); err != nil {
		return err
	}
	c.Index += int64(len(p))
	return nil
}

// WriteString writes str as a length-prefixed TString.
func (c *Cursor) WriteString(s Sink, str string) error {
	w := NewWBuffer(StringLen(str))
	w.WriteString(str)
	return c.WriteBytes(s, w.Bytes())
}

// Read returns n bytes starting at the absolute offset off.  It does not
// consult or move Index.
func (c Cursor) Read(s Sink, off int64, n int) ([]byte, error) {
	p := make([]byte, n)
	got, err := s.ReadAt(p, off)
	if got == n {
		return p, nil
	}
	if err == nil {
		err = io.ErrUnexpectedEOF
	}
	return nil, fmt.Errorf("s.ReadAt(%d, len: %d): %w", off, n, err)
}
