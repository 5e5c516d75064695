// Copyright 2023 The rootfile Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package streamer provides the fixed streamer-info blobs written into
// the schema block of every file.  The blobs are placeholders: they name
// the built-in classes and carry layout checksums, but they don't describe
// members, and they are not accumulated per written class.
package streamer

import (
	"bytes"
	"sync"

	"github.com/dgryski/go-farm"

	"github.com/bpowers/rootfile/rbytes"
)

const (
	// Empty is a streamer list with no entries, written when a file is created.
	Empty = ".empty"
	// All lists every built-in class, written on the first append.
	All   = ".all"

	listVersion     = 5
	infoVersion     = 9
	namedVersion    = 1
	objectVersion   = 1
	objArrayVersion = 3
	objectIsOnHeap  = 0x03000000
)

type class struct {
	name    string
	version int32
	members string
}

// layouts of the classes the writer knows how to frame
var builtins = []class{
	{"TObject", 1, "fUniqueID:UInt_t;fBits:UInt_t"},
	{"TNamed", 1, "TObject:BASE;fName:TString;fTitle:TString"},
	{"TObjString", 1, "TObject:BASE;fString:TString"},
	{"TAttAxis", 4, "fNdivisions:Int_t;fAxisColor:Color_t;fLabelColor:Color_t;fLabelFont:Style_t;" +
		"fLabelOffset:Float_t;fLabelSize:Float_t;fTickLength:Float_t;fTitleOffset:Float_t;" +
		"fTitleSize:Float_t;fTitleColor:Color_t;fTitleFont:Style_t"},
	{"TAxis", 10, "TNamed:BASE;TAttAxis:BASE;fNbins:Int_t;fXmin:Double_t;fXmax:Double_t;" +
		"fXbins:TArrayD;fFirst:Int_t;fLast:Int_t;fBits2:UShort_t;fTimeDisplay:Bool_t;" +
		"fTimeFormat:TString;fLabels:THashList*;fModLabs:TList*"},
}

// Database maps labels to immutable streamer blobs.
type Database struct {
	blobs map[string][]byte
}

var (
	defaultOnce sync.Once
	defaultDB   *Database
)

// Default returns the process-wide database.
func Default() *Database {
	defaultOnce.Do(func() {
		defaultDB = &Database{
			blobs: map[string][]byte{
				Empty: encodeList(nil),
				All:   encodeList(builtins),
			},
		}
	})
	return defaultDB
}

// Lookup returns a copy of the blob registered under label.
func (db *Database) Lookup(label string) ([]byte, bool) {
	b, ok := db.blobs[label]
	if !ok {
		return nil, false
	}
	return bytes.Clone(b), true
}

// MaxSize is the size of the largest blob, which bounds how much space
// the schema block needs.
func (db *Database) MaxSize() int {
	n := 0
	for _, b := range db.blobs {
		if len(b) > n {
			n = len(b)
		}
	}
	return n
}

// Checksum fingerprints a class layout.
func Checksum(name, members string) uint32 {
	return farm.Fingerprint32([]byte(name + ";" + members))
}

func writeObject(w *rbytes.WBuffer) {
	w.WriteI16(objectVersion)
	w.WriteU32(0)
	w.WriteU32(objectIsOnHeap)
}

func encodeList(classes []class) []byte {
	w := rbytes.NewWBuffer(256)
	pos := w.WriteVersion(listVersion)
	writeObject(w)
	w.WriteString("")
	w.WriteI32(int32(len(classes)))
	for _, c := range classes {
		encodeInfo(w, c)
		// per-entry option string
		w.WriteString("")
	}
	w.SetByteCount(pos)
	return w.Bytes()
}

func encodeInfo(w *rbytes.WBuffer, c class) {
	pos := w.WriteVersion(infoVersion)

	named := w.WriteVersion(namedVersion)
	writeObject(w)
	w.WriteString(c.name)
	w.WriteString("")
	w.SetByteCount(named)

	w.WriteU32(Checksum(c.name, c.members))
	w.WriteI32(c.version)

	// element list, left empty
	elems := w.WriteVersion(objArrayVersion)
	writeObject(w)
	w.WriteString("")
	w.WriteI32(0)
	w.WriteI32(0)
	w.SetByteCount(elems)

	w.SetByteCount(pos)
}
