// Copyright 2023 The rootfile Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package rootfile

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/bpowers/rootfile/internal/directory"
	"github.com/bpowers/rootfile/internal/header"
	"github.com/bpowers/rootfile/internal/key"
	"github.com/bpowers/rootfile/internal/lock"
	"github.com/bpowers/rootfile/internal/ondisk"
	"github.com/bpowers/rootfile/internal/streamer"
	"github.com/bpowers/rootfile/internal/zero"
	"github.com/bpowers/rootfile/rbytes"
)

var (
	ErrNotSupported    = errors.New("not supported")
	ErrUnsupportedKind = errors.New("unsupported object kind")
	ErrEmptyName       = errors.New("empty name")
	ErrClosed          = errors.New("writer closed")
	ErrFileTooLarge    = errors.New("file would exceed the 2 GB small-file limit")
	ErrKeyTooLarge     = key.ErrTooLarge
)

// keyCount is the int32 that follows the head key.
type keyCount int32

func (n keyCount) MarshalROOT(w *rbytes.WBuffer) {
	w.WriteI32(int32(n))
}

// FileWriter creates a new ROOT file and appends objects to it.  Every
// call to Set leaves a complete, readable file behind.
//
// A FileWriter owns its sink exclusively and is not safe for concurrent
// use.
type FileWriter struct {
	name   string
	title  string
	sink   rbytes.Sink
	file   *os.File // non-nil when we hold a lock on it
	logger *slog.Logger
	now    func() time.Time
	db     *streamer.Database

	header      *header.FileHeader
	dir         *directory.Info
	streamerKey *key.Placed
	streamerLen int64
	wroteAll    bool
	headKey     *key.Placed
	keys        *ondisk.Region
	nkeys       int32
	end         int64
	relocations int
	closed      bool
	err         error // sticky; set once an append fails partway
}

// Stats describes the current layout of a file being written.
type Stats struct {
	Keys          int
	Relocations   int
	End           int64
	KeyIndexStart int64
	KeyIndexCap   int64
}

// Open would open an existing file for appending, which isn't supported.
func Open(path string) (*FileWriter, error) {
	return nil, fmt.Errorf("open %s for append: %w", path, ErrNotSupported)
}

// Create creates (or truncates) the file at path and writes an empty ROOT
// file into it.  The file is locked against other writers until Close.
func Create(path string, opts ...Option) (*FileWriter, error) {
	o := newOptions(opts)

	// truncate only once we hold the lock, so we never clobber a file
	// another writer is still building
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("os.OpenFile(%s): %w", path, err)
	}
	if err := lock.Exclusive(f); err != nil {
		_ = f.Close()
		return nil, err
	}
	if err := f.Truncate(0); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("f.Truncate: %w", err)
	}

	w, err := NewWriter(filepath.Base(path), rbytes.NewFileSink(f, o.sync), opts...)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	w.file = f
	return w, nil
}

// NewWriter writes an empty ROOT file named filename into s.
func NewWriter(filename string, s rbytes.Sink, opts ...Option) (*FileWriter, error) {
	o := newOptions(opts)
	if filename == "" {
		return nil, fmt.Errorf("filename: %w", ErrEmptyName)
	}
	db := streamer.Default()
	if o.streamerReserve < int64(db.MaxSize()) {
		return nil, fmt.Errorf("streamer reserve %d smaller than streamer info (%d bytes)", o.streamerReserve, db.MaxSize())
	}
	if o.keyIndexCap <= 0 {
		return nil, fmt.Errorf("key index capacity %d must be positive", o.keyIndexCap)
	}
	if o.keyIndexCap > math.MaxInt32 {
		return nil, fmt.Errorf("key index capacity %d: %w", o.keyIndexCap, ErrFileTooLarge)
	}
	if o.streamerReserve > math.MaxInt32 {
		return nil, fmt.Errorf("streamer reserve %d: %w", o.streamerReserve, ErrFileTooLarge)
	}

	id, err := header.NewUUID()
	if err != nil {
		return nil, err
	}
	w := &FileWriter{
		name:   filename,
		title:  o.title,
		sink:   s,
		logger: o.logger,
		now:    o.now,
		db:     db,
		header: header.New(id),
	}
	if err := w.writeSkeleton(o, id); err != nil {
		return nil, err
	}
	return w, nil
}

// writeSkeleton lays out a complete file with no objects in it.
func (w *FileWriter) writeSkeleton(o options, id header.UUID) error {
	datime := rbytes.Datime(w.now())

	// fields are filled in as the records they point at are written
	if err := w.header.Rewrite(w.sink); err != nil {
		return err
	}

	c := rbytes.NewCursor(header.Begin)
	begin, err := key.Begin(w.name, w.title, datime)
	if err != nil {
		return fmt.Errorf("key.Begin: %w", err)
	}
	namesLen := int32(rbytes.StringLen(w.name) + rbytes.StringLen(w.title))
	nbytesName := int32(begin.Keylen) + namesLen
	beginKey, err := begin.Write(c, w.sink)
	if err != nil {
		return err
	}
	if err := beginKey.Finalize(w.sink, namesLen+directory.Size); err != nil {
		return err
	}

	if err := c.WriteString(w.sink, w.name); err != nil {
		return fmt.Errorf("write filename: %w", err)
	}
	if err := c.WriteString(w.sink, w.title); err != nil {
		return fmt.Errorf("write title: %w", err)
	}

	w.dir = directory.New(nbytesName, datime, id)
	if err := w.dir.Write(c, w.sink); err != nil {
		return err
	}

	w.header.NbytesName = nbytesName
	w.header.SeekInfo = int32(c.Index)
	if err := w.header.Rewrite(w.sink); err != nil {
		return err
	}

	empty, _ := w.db.Lookup(streamer.Empty)
	sk, err := key.Streamer(c.Index, int32(len(empty)), datime)
	if err != nil {
		return fmt.Errorf("key.Streamer: %w", err)
	}
	if w.streamerKey, err = sk.Write(c, w.sink); err != nil {
		return err
	}
	if err := w.streamerKey.Finalize(w.sink, int32(len(empty))); err != nil {
		return err
	}
	w.header.NbytesInfo = w.streamerKey.Key().Nbytes
	if err := w.header.Rewrite(w.sink); err != nil {
		return err
	}

	if err := c.WriteBytes(w.sink, empty); err != nil {
		return fmt.Errorf("write streamer info: %w", err)
	}
	w.streamerLen = int64(len(empty))
	if w.streamerKey.PayloadOffset()+o.streamerReserve > math.MaxInt32 {
		return fmt.Errorf("streamer reserve %d: %w", o.streamerReserve, ErrFileTooLarge)
	}
	if err := zero.Fill(w.sink, c.Index, o.streamerReserve-w.streamerLen); err != nil {
		return err
	}
	c.Index = w.streamerKey.PayloadOffset() + o.streamerReserve

	w.dir.SeekKeys = int32(c.Index)
	if err := w.dir.Update(w.sink); err != nil {
		return err
	}

	head, err := key.Head(w.name, w.title, c.Index, datime)
	if err != nil {
		return fmt.Errorf("key.Head: %w", err)
	}
	capacity := max(o.keyIndexCap, int64(head.Keylen)+4)
	if w.keys, err = ondisk.NewRegion(c.Index, capacity, ondisk.DefaultGrowth); err != nil {
		return err
	}
	if _, err := w.keys.Claim(int64(head.Keylen)); err != nil {
		return err
	}
	if w.headKey, err = head.Write(c, w.sink); err != nil {
		return err
	}
	if _, err := w.keys.Claim(4); err != nil {
		return err
	}
	if err := c.WriteFields(w.sink, keyCount(0)); err != nil {
		return fmt.Errorf("write key count: %w", err)
	}
	if err := w.headKey.Finalize(w.sink, 4); err != nil {
		return err
	}
	w.dir.NbytesKeys = int32(w.keys.Used())
	if err := w.dir.Update(w.sink); err != nil {
		return err
	}
	if err := w.setEnd(w.keys.Limit()); err != nil {
		return err
	}
	if err := zero.Fill(w.sink, w.keys.End(), w.keys.Remaining()); err != nil {
		return err
	}
	if err := w.header.Rewrite(w.sink); err != nil {
		return err
	}

	if err := w.sink.Flush(); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	return nil
}

func (w *FileWriter) setEnd(end int64) error {
	if end > math.MaxInt32 {
		return fmt.Errorf("end offset %d: %w", end, ErrFileTooLarge)
	}
	w.end = end
	w.header.End = int32(end)
	w.header.SeekFree = int32(end)
	return nil
}

// Set appends obj to the file under name.  Names are not deduplicated:
// setting the same name twice stores two entries.
func (w *FileWriter) Set(name string, obj Object) error {
	if w.closed {
		return ErrClosed
	}
	if w.err != nil {
		return fmt.Errorf("earlier write failed: %w", w.err)
	}
	if name == "" {
		return ErrEmptyName
	}
	if obj == nil {
		return fmt.Errorf("%q: nil object: %w", name, ErrUnsupportedKind)
	}
	kind, ok := lookupKind(obj.KeyKind())
	if !ok {
		return fmt.Errorf("%q: kind %q: %w", name, obj.KeyKind(), ErrUnsupportedKind)
	}
	title := kind.Title
	if t, ok := obj.(Titled); ok {
		title = t.KeyTitle()
	}
	objlen := obj.ByteLen()
	if objlen < 0 || int64(objlen) > math.MaxInt32 {
		return fmt.Errorf("%q: object length %d: %w", name, objlen, ErrKeyTooLarge)
	}
	datime := rbytes.Datime(w.now())

	junk, err := key.Object(kind.ClassName, name, title, w.end, int32(objlen), datime)
	if err != nil {
		return err
	}
	// worst case: payload, then the key index relocated past it
	worst := w.end + int64(junk.Nbytes) + ondisk.DefaultGrowth*w.keys.Cap() + int64(junk.Keylen)
	if worst > math.MaxInt32 {
		return fmt.Errorf("%q: %w", name, ErrFileTooLarge)
	}

	if err := w.appendObject(name, kind.ClassName, title, junk, obj, datime); err != nil {
		// the file may be half-updated, so refuse further appends
		w.err = err
		return err
	}
	return nil
}

// appendObject writes the payload for junk and records it in the key
// index, the directory and the header.
func (w *FileWriter) appendObject(name, className, title string, junk key.Key, obj Object, datime uint32) error {
	if !w.wroteAll {
		if err := w.writeAllStreamers(); err != nil {
			return err
		}
	}

	c := rbytes.NewCursor(w.end)
	junkKey, err := junk.Write(c, w.sink)
	if err != nil {
		return err
	}
	payloadStart := c.Index
	if err := obj.WriteBytes(c, w.sink); err != nil {
		return fmt.Errorf("%q: WriteBytes: %w", name, err)
	}
	written := c.Index - payloadStart
	if written != int64(junk.Objlen) {
		w.logger.Debug("payload length differs from ByteLen", "name", name, "expected", junk.Objlen, "written", written)
	}
	if err := junkKey.Finalize(w.sink, int32(written)); err != nil {
		return err
	}

	// record the payload in the header before touching the key index, so
	// free space never overlaps it
	if c.Index > w.end {
		if err := w.setEnd(c.Index); err != nil {
			return err
		}
		if err := w.header.Rewrite(w.sink); err != nil {
			return err
		}
	}

	idx, err := key.Object(className, name, title, junkKey.Offset(), int32(written), datime)
	if err != nil {
		return err
	}
	if !w.keys.Fits(int64(idx.Keylen)) {
		if err := w.relocateKeys(int64(idx.Keylen)); err != nil {
			return err
		}
	}
	off, err := w.keys.Claim(int64(idx.Keylen))
	if err != nil {
		return err
	}
	if _, err := idx.Write(rbytes.NewCursor(off), w.sink); err != nil {
		return err
	}

	if w.keys.Limit() > w.end {
		if err := w.setEnd(w.keys.Limit()); err != nil {
			return err
		}
		if err := w.header.Rewrite(w.sink); err != nil {
			return err
		}
	}

	// the streamer block spans from its start to the end of what was
	// last written into it
	streamerPtr := w.streamerKey.PayloadOffset() + w.streamerLen
	if err := w.streamerKey.Finalize(w.sink, int32(streamerPtr-w.streamerKey.PayloadOffset())); err != nil {
		return err
	}
	w.header.NbytesInfo = w.streamerKey.Key().Nbytes

	w.nkeys++
	countAt := rbytes.Cursor{Index: w.headKey.PayloadOffset()}
	if err := countAt.UpdateFields(w.sink, keyCount(w.nkeys)); err != nil {
		return fmt.Errorf("update key count: %w", err)
	}
	w.dir.NbytesKeys = int32(w.keys.Used())
	if err := w.dir.Update(w.sink); err != nil {
		return err
	}
	if err := w.headKey.Finalize(w.sink, int32(w.keys.Used())-int32(w.headKey.Key().Keylen)); err != nil {
		return err
	}

	if err := w.header.Rewrite(w.sink); err != nil {
		return err
	}

	w.logger.Debug("set", "name", name, "kind", className, "seek", junkKey.Offset(), "objlen", written, "nkeys", w.nkeys)

	if err := w.sink.Flush(); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	return nil
}

func (w *FileWriter) writeAllStreamers() error {
	all, _ := w.db.Lookup(streamer.All)
	c := rbytes.NewCursor(w.streamerKey.PayloadOffset())
	if err := c.WriteBytes(w.sink, all); err != nil {
		return fmt.Errorf("write streamer info: %w", err)
	}
	w.streamerLen = int64(len(all))
	w.wroteAll = true
	return nil
}

// relocateKeys moves the key index to the end of the file with a larger
// capacity.  The old copy is left in place and never read again.
func (w *FileWriter) relocateKeys(elemSize int64) error {
	from := w.keys.Start()
	if err := w.keys.Relocate(w.sink, w.end, elemSize); err != nil {
		return fmt.Errorf("relocate key index: %w", err)
	}
	if err := zero.Fill(w.sink, w.keys.End(), w.keys.Remaining()); err != nil {
		return err
	}

	w.headKey.Move(w.keys.Start())
	if err := w.headKey.Update(w.sink); err != nil {
		return err
	}
	w.dir.SeekKeys = int32(w.keys.Start())
	if err := w.dir.Update(w.sink); err != nil {
		return err
	}
	if err := w.setEnd(w.keys.Limit()); err != nil {
		return err
	}
	if err := w.header.Rewrite(w.sink); err != nil {
		return err
	}

	w.relocations++
	w.logger.Info("relocated key index", "from", from, "to", w.keys.Start(), "capacity", w.keys.Cap())
	return nil
}

// Get would read back a stored object, which isn't supported.
func (w *FileWriter) Get(name string) (Object, error) {
	return nil, fmt.Errorf("get %q: %w", name, ErrNotSupported)
}

func (w *FileWriter) Stats() Stats {
	return Stats{
		Keys:          int(w.nkeys),
		Relocations:   w.relocations,
		End:           w.end,
		KeyIndexStart: w.keys.Start(),
		KeyIndexCap:   w.keys.Cap(),
	}
}

// Close flushes and releases the file.  Closing more than once is fine.
func (w *FileWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	var errs []error
	if w.err != nil {
		errs = append(errs, w.err)
	}
	if err := w.sink.Flush(); err != nil {
		errs = append(errs, fmt.Errorf("flush: %w", err))
	}
	if w.file != nil {
		if err := lock.Release(w.file); err != nil {
			errs = append(errs, err)
		}
	}
	if err := w.sink.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close: %w", err))
	}
	return errors.Join(errs...)
}
