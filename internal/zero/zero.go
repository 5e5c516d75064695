// Copyright 2023 The rootfile Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package zero writes runs of zero bytes, so that reserved regions of a
// file physically exist before anything is stored in them.
package zero

import (
	"fmt"
	"io"
)

const chunkSize = 4096

var chunk [chunkSize]byte

// Fill writes n zero bytes to w starting at off.
func Fill(w io.WriterAt, off, n int64) error {
	if n < 0 {
		return fmt.Errorf("zero.Fill: negative length %d", n)
	}
	for n > 0 {
		p := chunk[:min(n, chunkSize)]
		if _, err := w.WriteAt(p, off); err != nil {
			return fmt.Errorf("zero.Fill(%d): %w", off, err)
		}
		off += int64(len(p))
		n -= int64(len(p))
	}
	return nil
}
