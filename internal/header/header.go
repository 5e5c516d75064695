// Copyright 2023 The rootfile Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package header implements the fixed-size record at offset 0 of a ROOT
// file.  Every other structure in the file is located from it.
package header

import (
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/bpowers/rootfile/rbytes"
)

const (
	Magic = "root"

	// Version is below 1000000, which selects 32-bit seek fields.
	Version = 61404

	// Begin is the offset of the first key record in every file.
	Begin = 100

	Units = 4

	// Size is the number of encoded bytes; the rest of [0, Begin) is zero.
	Size = 4 + 4 + 4 + 4 + 4 + 4 + 4 + 4 + 1 + 4 + 4 + 4 + UUIDSize

	UUIDSize    = 2 + 16
	uuidVersion = 1
	magicLen    = len(Magic)
)

// UUID is ROOT's TUUID: a version followed by 16 bytes.
type UUID [16]byte

func NewUUID() (UUID, error) {
	u, err := uuid.NewRandom()
	if err != nil {
		return UUID{}, fmt.Errorf("uuid.NewRandom: %w", err)
	}
	return UUID(u), nil
}

func (u UUID) MarshalROOT(w *rbytes.WBuffer) {
	w.WriteI16(uuidVersion)
	w.WriteRaw(u[:])
}

func (u *UUID) UnmarshalROOT(r *rbytes.RBuffer) {
	_ = r.ReadI16()
	copy(u[:], r.ReadRaw(len(u)))
}

type FileHeader struct {
	Version    int32
	Begin      int32
	End        int32
	SeekFree   int32
	NbytesFree int32
	Nfree      int32
	NbytesName int32
	Units      uint8
	Compress   int32
	SeekInfo   int32
	NbytesInfo int32
	UUID       UUID
}

func New(id UUID) *FileHeader {
	return &FileHeader{
		Version: Version,
		Begin:   Begin,
		Units:   Units,
		UUID:    id,
	}
}

func (h *FileHeader) MarshalROOT(w *rbytes.WBuffer) {
	w.WriteRaw([]byte(Magic))
	w.WriteI32(h.Version)
	w.WriteI32(h.Begin)
	w.WriteI32(h.End)
	w.WriteI32(h.SeekFree)
	w.WriteI32(h.NbytesFree)
	w.WriteI32(h.Nfree)
	w.WriteI32(h.NbytesName)
	w.WriteU8(h.Units)
	w.WriteI32(h.Compress)
	w.WriteI32(h.SeekInfo)
	w.WriteI32(h.NbytesInfo)
	h.UUID.MarshalROOT(w)
}

// MarshalTo encodes the header into the first Size bytes of buf.
func (h *FileHeader) MarshalTo(buf []byte) error {
	if len(buf) < Size {
		return fmt.Errorf("buf too short: %d < %d", len(buf), Size)
	}
	w := rbytes.NewWBuffer(Size)
	h.MarshalROOT(w)
	copy(buf, w.Bytes())
	return nil
}

// Rewrite rewrites the whole header at offset 0.  The header is never
// appended to or partially updated.
func (h *FileHeader) Rewrite(s rbytes.Sink) error {
	var c rbytes.Cursor
	if err := c.UpdateFields(s, h); err != nil {
		return fmt.Errorf("header.Rewrite: %w", err)
	}
	return nil
}

func (h *FileHeader) UnmarshalBytes(headerBytes []byte) error {
	if len(headerBytes) < Size {
		return fmt.Errorf("headerBytes too short: %d < %d", len(headerBytes), Size)
	}
	if magic := string(headerBytes[:magicLen]); magic != Magic {
		return fmt.Errorf("bad magic %q -- not a ROOT file or corrupted", magic)
	}

	r := rbytes.NewRBuffer(headerBytes[magicLen:Size])
	h.Version = r.ReadI32()
	if h.Version >= 1000000 {
		return fmt.Errorf("only small-file headers are supported; found version %d", h.Version)
	}
	h.Begin = r.ReadI32()
	h.End = r.ReadI32()
	h.SeekFree = r.ReadI32()
	h.NbytesFree = r.ReadI32()
	h.Nfree = r.ReadI32()
	h.NbytesName = r.ReadI32()
	h.Units = r.ReadU8()
	h.Compress = r.ReadI32()
	h.SeekInfo = r.ReadI32()
	h.NbytesInfo = r.ReadI32()
	h.UUID.UnmarshalROOT(r)

	return r.Err()
}

// ReadFrom decodes the header stored at offset 0 of r.
func ReadFrom(r io.ReaderAt) (*FileHeader, error) {
	buf := make([]byte, Size)
	if n, err := r.ReadAt(buf, 0); n != Size {
		return nil, fmt.Errorf("ReadAt(0, len: %d): short read of %d: %v", Size, n, err)
	}
	var h FileHeader
	if err := h.UnmarshalBytes(buf); err != nil {
		return nil, err
	}
	return &h, nil
}
