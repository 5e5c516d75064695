// Copyright 2023 The rootfile Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package inspect decodes the structure of a ROOT file: its header, top
// directory, streamer key and key index.  It does not decode payloads.
package inspect

import (
	"fmt"
	"io"

	"github.com/bpowers/rootfile/internal/directory"
	"github.com/bpowers/rootfile/internal/header"
	"github.com/bpowers/rootfile/internal/key"
	"github.com/bpowers/rootfile/rbytes"
)

type File struct {
	Header    *header.FileHeader
	Begin     key.Key
	Name      string
	Title     string
	Directory *directory.Info
	Streamer  key.Key
	Head      key.Key
	NKeys     int32
	Keys      []key.Key
}

func readFull(r io.ReaderAt, off int64, n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("ReadAt(%d): negative length %d", off, n)
	}
	buf := make([]byte, n)
	if got, err := r.ReadAt(buf, off); got != n {
		return nil, fmt.Errorf("ReadAt(%d, len: %d): short read of %d: %v", off, n, got, err)
	}
	return buf, nil
}

func Read(r io.ReaderAt) (*File, error) {
	h, err := header.ReadFrom(r)
	if err != nil {
		return nil, fmt.Errorf("header: %w", err)
	}
	f := &File{Header: h}

	if f.Begin, err = key.ReadAt(r, int64(h.Begin)); err != nil {
		return nil, fmt.Errorf("begin key: %w", err)
	}
	payload, err := readFull(r, int64(h.Begin)+int64(f.Begin.Keylen), int(f.Begin.Objlen))
	if err != nil {
		return nil, fmt.Errorf("begin key payload: %w", err)
	}
	rb := rbytes.NewRBuffer(payload)
	f.Name = rb.ReadString()
	f.Title = rb.ReadString()
	if err := rb.Err(); err != nil {
		return nil, fmt.Errorf("file name: %w", err)
	}
	f.Directory = new(directory.Info)
	if err := f.Directory.UnmarshalBytes(payload[rb.Pos():]); err != nil {
		return nil, fmt.Errorf("directory: %w", err)
	}

	if f.Streamer, err = key.ReadAt(r, int64(h.SeekInfo)); err != nil {
		return nil, fmt.Errorf("streamer key: %w", err)
	}

	seekKeys := int64(f.Directory.SeekKeys)
	if f.Head, err = key.ReadAt(r, seekKeys); err != nil {
		return nil, fmt.Errorf("head key: %w", err)
	}
	if f.Head.Nbytes != f.Directory.NbytesKeys {
		return nil, fmt.Errorf("head key nbytes %d != directory nbytes keys %d", f.Head.Nbytes, f.Directory.NbytesKeys)
	}
	count, err := readFull(r, seekKeys+int64(f.Head.Keylen), 4)
	if err != nil {
		return nil, fmt.Errorf("key count: %w", err)
	}
	f.NKeys = rbytes.NewRBuffer(count).ReadI32()

	off := seekKeys + int64(f.Head.Keylen) + 4
	for i := int32(0); i < f.NKeys; i++ {
		k, err := key.ReadAt(r, off)
		if err != nil {
			return nil, fmt.Errorf("key %d: %w", i, err)
		}
		f.Keys = append(f.Keys, k)
		off += int64(k.Keylen)
	}
	if end := seekKeys + int64(f.Head.Nbytes); off != end {
		return nil, fmt.Errorf("key index ends at %d, head key says %d", off, end)
	}
	return f, nil
}

// AllKeys returns every key the file references, framing records included.
func (f *File) AllKeys() []key.Key {
	all := []key.Key{f.Begin, f.Streamer, f.Head}
	return append(all, f.Keys...)
}

// Check verifies the structural invariants of the file.
func (f *File) Check() error {
	for _, k := range f.AllKeys() {
		if k.Nbytes != int32(k.Keylen)+k.Objlen {
			return fmt.Errorf("key %q at %d: nbytes %d != keylen %d + objlen %d", k.Name, k.SeekKey, k.Nbytes, k.Keylen, k.Objlen)
		}
		if k.End() > int64(f.Header.End) {
			return fmt.Errorf("key %q at %d ends at %d, past fEND %d", k.Name, k.SeekKey, k.End(), f.Header.End)
		}
	}
	if f.Header.SeekFree < f.Header.End {
		return fmt.Errorf("fSeekFree %d inside data ending at %d", f.Header.SeekFree, f.Header.End)
	}
	return nil
}
