// Copyright 2023 The rootfile Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package ondisk

import (
	"errors"
	"fmt"

	"github.com/bpowers/rootfile/rbytes"
)

const (
	// MinHeadroom is the free space below which a region always grows
	// before the next append.
	MinHeadroom = 30

	DefaultGrowth = 2
)

var (
	ErrFull = errors.New("region full")
)

// Region is a growable array of variable-sized records embedded in a
// Sink at [Start, Limit).  Records are appended at End.  When the
// remaining space can't hold the next record, the used bytes are copied
// to a new location and the capacity is multiplied by the growth factor;
// the old bytes are abandoned.
type Region struct {
	start  int64
	used   int64
	cap    int64
	growth int64
}

func NewRegion(start, capacity int64, growth int) (*Region, error) {
	if start < 0 || capacity <= 0 {
		return nil, fmt.Errorf("invalid region [%d, +%d)", start, capacity)
	}
	if growth < 2 {
		return nil, fmt.Errorf("growth factor %d must be at least 2", growth)
	}
	return &Region{
		start:  start,
		cap:    capacity,
		growth: int64(growth),
	}, nil
}

func (r *Region) Start() int64     { return r.start }
func (r *Region) End() int64       { return r.start + r.used }
func (r *Region) Limit() int64     { return r.start + r.cap }
func (r *Region) Used() int64      { return r.used }
func (r *Region) Cap() int64       { return r.cap }
func (r *Region) Remaining() int64 { return r.cap - r.used }

// Fits reports whether a record of elemSize bytes can be appended without
// growing.
func (r *Region) Fits(elemSize int64) bool {
	return r.Remaining() >= max(elemSize, MinHeadroom)
}

// Claim reserves n bytes at End and returns their offset.  The caller
// writes the record there.
func (r *Region) Claim(n int64) (int64, error) {
	if n > r.Remaining() {
		return 0, fmt.Errorf("claim %d bytes with %d remaining: %w", n, r.Remaining(), ErrFull)
	}
	off := r.End()
	r.used += n
	return off, nil
}

// Relocate copies the used bytes to `to` and grows the capacity until a
// record of elemSize fits.  to must not overlap the current region.
func (r *Region) Relocate(s rbytes.Sink, to int64, elemSize int64) error {
	if to < r.Limit() && to+r.used > r.start {
		return fmt.Errorf("relocation target %d overlaps region [%d, %d)", to, r.start, r.Limit())
	}

	newCap := r.cap
	for newCap-r.used < max(elemSize, MinHeadroom) {
		newCap *= r.growth
	}

	c := rbytes.Cursor{Index: to}
	used, err := c.Read(s, r.start, int(r.used))
	if err != nil {
		return fmt.Errorf("read region: %w", err)
	}
	if err := c.WriteBytes(s, used); err != nil {
		return fmt.Errorf("write region: %w", err)
	}

	r.start = to
	r.cap = newCap
	return nil
}
