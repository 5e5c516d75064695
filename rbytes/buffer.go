// Copyright 2023 The rootfile Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package rbytes

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"
)

const (
	// strings of this length or longer use the 5-byte long form
	longStringLen = 255

	// set on streamed byte counts so readers can tell them from class tags
	byteCountMask = 0x40000000
)

var (
	ErrShortBuffer = errors.New("rbytes: short buffer")
)

// Marshaler is implemented by fixed-layout records that can serialize
// themselves into a WBuffer.
type Marshaler interface {
	MarshalROOT(w *WBuffer)
}

// WBuffer accumulates big-endian encoded fields.
type WBuffer struct {
	buf []byte
}

func NewWBuffer(capacity int) *WBuffer {
	return &WBuffer{buf: make([]byte, 0, capacity)}
}

func (w *WBuffer) Bytes() []byte { return w.buf }
func (w *WBuffer) Len() int      { return len(w.buf) }

func (w *WBuffer) WriteU8(v uint8) {
	w.buf = append(w.buf, v)
}

func (w *WBuffer) WriteBool(v bool) {
	if v {
		w.WriteU8(1)
	} else {
		w.WriteU8(0)
	}
}

func (w *WBuffer) WriteI16(v int16) {
	w.buf = binary.BigEndian.AppendUint16(w.buf, uint16(v))
}

func (w *WBuffer) WriteU16(v uint16) {
	w.buf = binary.BigEndian.AppendUint16(w.buf, v)
}

func (w *WBuffer) WriteI32(v int32) {
	w.buf = binary.BigEndian.AppendUint32(w.buf, uint32(v))
}

func (w *WBuffer) WriteU32(v uint32) {
	w.buf = binary.BigEndian.AppendUint32(w.buf, v)
}

func (w *WBuffer) WriteF32(v float32) {
	w.buf = binary.BigEndian.AppendUint32(w.buf, math.Float32bits(v))
}

func (w *WBuffer) WriteF64(v float64) {
	w.buf = binary.BigEndian.AppendUint64(w.buf, math.Float64bits(v))
}

func (w *WBuffer) WriteRaw(p []byte) {
	w.buf = append(w.buf, p...)
}

// WriteString writes s as a TString: a single length byte, or 0xff
// followed by an int32 length for long strings.
func (w *WBuffer) WriteString(s string) {
	if len(s) < longStringLen {
		w.WriteU8(uint8(len(s)))
	} else {
		w.WriteU8(longStringLen)
		w.WriteI32(int32(len(s)))
	}
	w.buf = append(w.buf, s...)
}

// WriteVersion reserves a byte count and writes the class version.  The
// returned position must be passed to SetByteCount once the object's
// members have been written.
func (w *WBuffer) WriteVersion(version int16) int {
	pos := len(w.buf)
	w.WriteU32(0)
	w.WriteI16(version)
	return pos
}

// SetByteCount patches the byte count reserved at pos by WriteVersion.
func (w *WBuffer) SetByteCount(pos int) {
	n := uint32(len(w.buf) - pos - 4)
	binary.BigEndian.PutUint32(w.buf[pos:pos+4], n|byteCountMask)
}

// StringLen is the encoded size of s as a TString.
func StringLen(s string) int {
	if len(s) < longStringLen {
		return 1 + len(s)
	}
	return 5 + len(s)
}

// Datime packs t into ROOT's 32-bit TDatime representation.
func Datime(t time.Time) uint32 {
	year := t.Year()
	if year < 1995 {
		year = 1995
	}
	return uint32(year-1995)<<26 |
		uint32(t.Month())<<22 |
		uint32(t.Day())<<17 |
		uint32(t.Hour())<<12 |
		uint32(t.Minute())<<6 |
		uint32(t.Second())
}

// RBuffer decodes big-endian fields.  The first decoding error is sticky
// and reported by Err.
type RBuffer struct {
	buf []byte
	off int
	err error
}

func NewRBuffer(p []byte) *RBuffer {
	return &RBuffer{buf: p}
}

func (r *RBuffer) Err() error { return r.err }
func (r *RBuffer) Pos() int   { return r.off }

func (r *RBuffer) next(n int) []byte {
	if r.err != nil {
		return nil
	}
	if r.off+n > len(r.buf) {
		r.err = fmt.Errorf("read %d bytes at %d of %d: %w", n, r.off, len(r.buf), ErrShortBuffer)
		return nil
	}
	p := r.buf[r.off : r.off+n]
	r.off += n
	return p
}

func (r *RBuffer) ReadU8() uint8 {
	if p := r.next(1); p != nil {
		return p[0]
	}
	return 0
}

func (r *RBuffer) ReadI16() int16 {
	if p := r.next(2); p != nil {
		return int16(binary.BigEndian.Uint16(p))
	}
	return 0
}

func (r *RBuffer) ReadI32() int32 {
	if p := r.next(4); p != nil {
		return int32(binary.BigEndian.Uint32(p))
	}
	return 0
}

func (r *RBuffer) ReadU32() uint32 {
	if p := r.next(4); p != nil {
		return binary.BigEndian.Uint32(p)
	}
	return 0
}

func (r *RBuffer) ReadF64() float64 {
	if p := r.next(8); p != nil {
		return math.Float64frombits(binary.BigEndian.Uint64(p))
	}
	return 0
}

func (r *RBuffer) ReadRaw(n int) []byte {
	return r.next(n)
}

func (r *RBuffer) ReadString() string {
	n := int(r.ReadU8())
	if n == longStringLen {
		n = int(r.ReadI32())
	}
	if n < 0 {
		r.err = fmt.Errorf("negative string length %d", n)
		return ""
	}
	return string(r.next(n))
}

// ReadVersion reads a byte count (if present) and a class version.
func (r *RBuffer) ReadVersion() (byteCount uint32, version int16) {
	byteCount = r.ReadU32()
	if byteCount&byteCountMask == 0 {
		r.err = fmt.Errorf("missing byte count at %d", r.off-4)
		return 0, 0
	}
	return byteCount &^ byteCountMask, r.ReadI16()
}
