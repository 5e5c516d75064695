// Copyright 2023 The rootfile Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package key implements TKey, the framing record that precedes every
// payload in a ROOT file and that is repeated in the file's key index.
//
// A key is usually written before its payload, when the payload length is
// not yet known.  Writing a Key returns a Placed, which remembers where the
// record landed; only a Placed can be patched, so a key can never be
// rewritten at an offset it was not written to.
//
//	 0         4    6         10        14   16   18        22        26
//	+---------+----+---------+---------+----+----+---------+---------+
//	| nbytes  |vers| objlen  | datime  |klen|cycl| seekKey | seekPdir|
//	+---------+----+---------+---------+----+----+---------+---------+
//	| class name | name | title   (length-prefixed strings)          |
//	+-----------------------------------------------------------------+
//
// nbytes is always keylen + objlen.
package key

import (
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/bpowers/rootfile/rbytes"
)

const (
	HeaderSize = 4 + 2 + 4 + 4 + 2 + 2 + 4 + 4

	Version = 4
	Cycle   = 1

	// DirOffset is where the top directory's record lives, and the
	// parent-directory seek for everything stored in it.
	DirOffset = 100

	classFile     = "TFile"
	classList     = "TList"
	streamerName  = "StreamerInfo"
	streamerTitle = "Doubly linked list"
)

var (
	ErrTooLarge = errors.New("key record too large")
)

type Key struct {
	Nbytes    int32
	Version   int16
	Objlen    int32
	Datime    uint32
	Keylen    int16
	Cycle     int16
	SeekKey   int32
	SeekPdir  int32
	ClassName string
	Name      string
	Title     string
}

// New builds a key whose Keylen is computed from its strings and whose
// Nbytes is Keylen + objlen.
func New(className, name, title string, seekKey, seekPdir, objlen int32, datime uint32) (Key, error) {
	keylen := HeaderSize + rbytes.StringLen(className) + rbytes.StringLen(name) + rbytes.StringLen(title)
	if keylen > math.MaxInt16 {
		return Key{}, fmt.Errorf("%q: keylen %d: %w", name, keylen, ErrTooLarge)
	}
	if int64(keylen)+int64(objlen) > math.MaxInt32 {
		return Key{}, fmt.Errorf("%q: objlen %d: %w", name, objlen, ErrTooLarge)
	}
	return Key{
		Nbytes:    int32(keylen) + objlen,
		Version:   Version,
		Objlen:    objlen,
		Datime:    datime,
		Keylen:    int16(keylen),
		Cycle:     Cycle,
		SeekKey:   seekKey,
		SeekPdir:  seekPdir,
		ClassName: className,
		Name:      name,
		Title:     title,
	}, nil
}

// Begin is the first record in a file; it names the file and frames the
// top directory.
func Begin(filename, title string, datime uint32) (Key, error) {
	return New(classFile, filename, title, DirOffset, 0, 0, datime)
}

// Head frames the key index.
func Head(filename, title string, seek int64, datime uint32) (Key, error) {
	return New(classFile, filename, title, int32(seek), DirOffset, 0, datime)
}

// Streamer frames the streamer-info block.
func Streamer(seek int64, objlen int32, datime uint32) (Key, error) {
	return New(classList, streamerName, streamerTitle, int32(seek), DirOffset, objlen, datime)
}

// Object frames a user object of the given class.
func Object(className, name, title string, seek int64, objlen int32, datime uint32) (Key, error) {
	return New(className, name, title, int32(seek), DirOffset, objlen, datime)
}

func (k *Key) MarshalROOT(w *rbytes.WBuffer) {
	w.WriteI32(k.Nbytes)
	w.WriteI16(k.Version)
	w.WriteI32(k.Objlen)
	w.WriteU32(k.Datime)
	w.WriteI16(k.Keylen)
	w.WriteI16(k.Cycle)
	w.WriteI32(k.SeekKey)
	w.WriteI32(k.SeekPdir)
	w.WriteString(k.ClassName)
	w.WriteString(k.Name)
	w.WriteString(k.Title)
}

func (k *Key) UnmarshalROOT(r *rbytes.RBuffer) {
	k.Nbytes = r.ReadI32()
	k.Version = r.ReadI16()
	k.Objlen = r.ReadI32()
	k.Datime = r.ReadU32()
	k.Keylen = r.ReadI16()
	k.Cycle = r.ReadI16()
	k.SeekKey = r.ReadI32()
	k.SeekPdir = r.ReadI32()
	k.ClassName = r.ReadString()
	k.Name = r.ReadString()
	k.Title = r.ReadString()
}

// ReadAt decodes the key stored at off.
func ReadAt(r io.ReaderAt, off int64) (Key, error) {
	// read the fixed part first to learn keylen
	fixed := make([]byte, HeaderSize)
	if n, err := r.ReadAt(fixed, off); n != HeaderSize {
		return Key{}, fmt.Errorf("ReadAt(%d, len: %d): short read of %d: %v", off, HeaderSize, n, err)
	}
	keylen := int(rbytes.NewRBuffer(fixed[14:16]).ReadI16())
	if keylen < HeaderSize {
		return Key{}, fmt.Errorf("key at %d: keylen %d smaller than fixed header", off, keylen)
	}
	buf := make([]byte, keylen)
	if n, err := r.ReadAt(buf, off); n != keylen {
		return Key{}, fmt.Errorf("ReadAt(%d, len: %d): short read of %d: %v", off, keylen, n, err)
	}
	var k Key
	rb := rbytes.NewRBuffer(buf)
	k.UnmarshalROOT(rb)
	if err := rb.Err(); err != nil {
		return Key{}, fmt.Errorf("key at %d: %w", off, err)
	}
	return k, nil
}

// End is the offset one past the key and its payload.
func (k Key) End() int64 {
	return int64(k.SeekKey) + int64(k.Nbytes)
}

// Write serializes k at c.Index, advances c past the record and returns a
// handle that can patch the record later.
func (k Key) Write(c *rbytes.Cursor, s rbytes.Sink) (*Placed, error) {
	at := c.Index
	if err := c.WriteFields(s, &k); err != nil {
		return nil, fmt.Errorf("key %q: %w", k.Name, err)
	}
	if c.Index-at != int64(k.Keylen) {
		return nil, fmt.Errorf("invariant broken: key %q wrote %d bytes, keylen %d", k.Name, c.Index-at, k.Keylen)
	}
	return &Placed{key: k, at: rbytes.Cursor{Index: at}}, nil
}

// Placed is a key record that has been written at a known offset.
type Placed struct {
	key Key
	at  rbytes.Cursor
}

func (p *Placed) Key() Key {
	return p.key
}

func (p *Placed) Offset() int64 {
	return p.at.Index
}

// PayloadOffset is where the framed payload starts.
func (p *Placed) PayloadOffset() int64 {
	return p.at.Index + int64(p.key.Keylen)
}

// Update rewrites the record in place with its current field values.
func (p *Placed) Update(s rbytes.Sink) error {
	if err := p.at.UpdateFields(s, &p.key); err != nil {
		return fmt.Errorf("update key %q at %d: %w", p.key.Name, p.at.Index, err)
	}
	return nil
}

// Finalize records the true payload length and patches the record.
func (p *Placed) Finalize(s rbytes.Sink, objlen int32) error {
	if int64(p.key.Keylen)+int64(objlen) > math.MaxInt32 {
		return fmt.Errorf("%q: objlen %d: %w", p.key.Name, objlen, ErrTooLarge)
	}
	p.key.Objlen = objlen
	p.key.Nbytes = int32(p.key.Keylen) + objlen
	return p.Update(s)
}

// Move records that the bytes of this key have been copied to off.  The
// key's own seek field follows it; nothing is written until Update.
func (p *Placed) Move(off int64) {
	p.at.Index = off
	p.key.SeekKey = int32(off)
}
