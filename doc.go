// Copyright 2023 The rootfile Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package rootfile writes ROOT files: self-describing containers of
// named objects, located through a directory of keys.
//
// A freshly created file looks like:
//
//	┌──────────────────────┐ 0
//	│ file header          │
//	├──────────────────────┤ 100
//	│ begin key            │
//	│ file name + title    │
//	│ directory info       │
//	├──────────────────────┤ fSeekInfo
//	│ streamer key         │
//	│ streamer info        │
//	│ (reserved)           │
//	├──────────────────────┤ fSeekKeys
//	│ head key             │
//	│ key count            │
//	│ (reserved)           │
//	└──────────────────────┘ fEND
//
// The header is the small-file form: every field from fVersion through
// fNbytesInfo is a big-endian int32 except the one-byte fUnits.
//
// Each Set appends a key and the object's payload at fEND, then adds a
// copy of that key to the key index after the head key.  When the index
// runs out of room it is copied to the end of the file with twice the
// capacity, and the directory is repointed at the copy.
//
// Keys are written before their payload, so their length fields are
// patched once the payload has been written.  The header, directory and
// head key are rewritten in place after every Set, which leaves a
// complete file on disk after each call.  There is no journal: a process
// that dies in the middle of Set can leave the header or the key count
// behind the data that was already written.  After a failed Set the
// writer refuses further appends and Close reports the failure.
package rootfile
