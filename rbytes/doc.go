// Copyright 2023 The rootfile Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package rbytes contains the low-level pieces used to lay out a ROOT
// file: byte-addressable sinks, an absolute-offset Cursor, and big-endian
// encoders and decoders for ROOT's primitive types.
//
// ROOT records are often written before the size of what follows them is
// known.  The Cursor supports this with two write modes: WriteFields
// appends a record and advances, while UpdateFields rewrites a record at
// an offset recorded earlier without moving anything.
package rbytes
