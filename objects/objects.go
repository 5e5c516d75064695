// Copyright 2023 The rootfile Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package objects contains encoders for the object kinds the writer
// ships with.  Each one reports its ROOT class name as its key kind and
// serializes itself through an rbytes.Cursor.
package objects

import (
	"github.com/bpowers/rootfile/rbytes"
)

const (
	ClassObjString = "TObjString"
	ClassAxis      = "TAxis"

	objectVersion  = 1
	objectIsOnHeap = 0x03000000
)

func writeObject(w *rbytes.WBuffer) {
	w.WriteI16(objectVersion)
	w.WriteU32(0) // fUniqueID
	w.WriteU32(objectIsOnHeap)
}

func writeNamed(w *rbytes.WBuffer, name, title string) {
	pos := w.WriteVersion(1)
	writeObject(w)
	w.WriteString(name)
	w.WriteString(title)
	w.SetByteCount(pos)
}

// String is a TObjString.
type String string

func (s String) KeyKind() string { return ClassObjString }

func (s String) MarshalROOT(w *rbytes.WBuffer) {
	pos := w.WriteVersion(1)
	writeObject(w)
	w.WriteString(string(s))
	w.SetByteCount(pos)
}

func (s String) ByteLen() int {
	// byte count + version + TObject + TString
	return 4 + 2 + 10 + rbytes.StringLen(string(s))
}

func (s String) WriteBytes(c *rbytes.Cursor, sink rbytes.Sink) error {
	return c.WriteFields(sink, s)
}
