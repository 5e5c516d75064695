// Copyright 2023 The rootfile Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package directory implements the top directory record, which locates
// the key index.
package directory

import (
	"errors"
	"fmt"
	"io"

	"github.com/bpowers/rootfile/internal/header"
	"github.com/bpowers/rootfile/rbytes"
)

const (
	Version = 5

	// padding reserves room for 64-bit seeks, as ROOT does for small files
	paddingSize = 3 * 4

	Size = 2 + 4 + 4 + 4 + 4 + 4 + 4 + 4 + header.UUIDSize + paddingSize
)

var errNotWritten = errors.New("directory info has not been written")

type Info struct {
	Version    int16
	DatimeC    uint32
	DatimeM    uint32
	NbytesKeys int32
	NbytesName int32
	SeekDir    int32
	SeekParent int32
	SeekKeys   int32
	UUID       header.UUID

	at *rbytes.Cursor
}

func New(nbytesName int32, datime uint32, id header.UUID) *Info {
	return &Info{
		Version:    Version,
		DatimeC:    datime,
		DatimeM:    datime,
		NbytesName: nbytesName,
		SeekDir:    header.Begin,
		UUID:       id,
	}
}

func (d *Info) MarshalROOT(w *rbytes.WBuffer) {
	w.WriteI16(d.Version)
	w.WriteU32(d.DatimeC)
	w.WriteU32(d.DatimeM)
	w.WriteI32(d.NbytesKeys)
	w.WriteI32(d.NbytesName)
	w.WriteI32(d.SeekDir)
	w.WriteI32(d.SeekParent)
	w.WriteI32(d.SeekKeys)
	d.UUID.MarshalROOT(w)
	w.WriteRaw(make([]byte, paddingSize))
}

// Write serializes the record at c.Index and remembers that offset for
// later calls to Update.
func (d *Info) Write(c *rbytes.Cursor, s rbytes.Sink) error {
	at := *c
	if err := c.WriteFields(s, d); err != nil {
		return fmt.Errorf("directory.Write: %w", err)
	}
	d.at = &at
	return nil
}

// Update patches the record at the offset it was written to.
func (d *Info) Update(s rbytes.Sink) error {
	if d.at == nil {
		return errNotWritten
	}
	if err := d.at.UpdateFields(s, d); err != nil {
		return fmt.Errorf("directory.Update: %w", err)
	}
	return nil
}

func (d *Info) Offset() int64 {
	if d.at == nil {
		return -1
	}
	return d.at.Index
}

func (d *Info) UnmarshalBytes(b []byte) error {
	if len(b) < Size {
		return fmt.Errorf("directory bytes too short: %d < %d", len(b), Size)
	}
	r := rbytes.NewRBuffer(b[:Size])
	d.Version = r.ReadI16()
	if d.Version > 1000 {
		return fmt.Errorf("only small directories are supported; found version %d", d.Version)
	}
	d.DatimeC = r.ReadU32()
	d.DatimeM = r.ReadU32()
	d.NbytesKeys = r.ReadI32()
	d.NbytesName = r.ReadI32()
	d.SeekDir = r.ReadI32()
	d.SeekParent = r.ReadI32()
	d.SeekKeys = r.ReadI32()
	d.UUID.UnmarshalROOT(r)
	return r.Err()
}

// ReadAt decodes the record stored at off.
func ReadAt(r io.ReaderAt, off int64) (*Info, error) {
	buf := make([]byte, Size)
	if n, err := r.ReadAt(buf, off); n != Size {
		return nil, fmt.Errorf("ReadAt(%d, len: %d): short read of %d: %v", off, Size, n, err)
	}
	var d Info
	if err := d.UnmarshalBytes(buf); err != nil {
		return nil, err
	}
	return &d, nil
}
