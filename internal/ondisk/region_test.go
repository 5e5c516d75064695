// Copyright 2023 The rootfile Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package ondisk

import (
	"bytes"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bpowers/rootfile/rbytes"
)

func TestNewRegion_Errors(t *testing.T) {
	_, err := NewRegion(-1, 10, 2)
	assert.Error(t, err)
	_, err = NewRegion(0, 0, 2)
	assert.Error(t, err)
	_, err = NewRegion(0, 10, 1)
	assert.Error(t, err)
}

func TestRegion_ClaimAndFits(t *testing.T) {
	r, err := NewRegion(100, 64, DefaultGrowth)
	require.NoError(t, err)

	off, err := r.Claim(20)
	require.NoError(t, err)
	assert.Equal(t, int64(100), off)
	assert.Equal(t, int64(120), r.End())
	assert.Equal(t, int64(164), r.Limit())

	// 44 left: a 10-byte record fits, but not once headroom drops below 30
	assert.True(t, r.Fits(10))
	assert.False(t, r.Fits(50))

	_, err = r.Claim(20)
	require.NoError(t, err)
	assert.Equal(t, int64(24), r.Remaining())
	assert.False(t, r.Fits(1))

	_, err = r.Claim(25)
	assert.True(t, errors.Is(err, ErrFull))
	assert.Equal(t, int64(24), r.Remaining())
}

func TestRegion_Relocate(t *testing.T) {
	s := rbytes.NewMemSink()
	r, err := NewRegion(100, 40, DefaultGrowth)
	require.NoError(t, err)

	records := [][]byte{
		bytes.Repeat([]byte{1}, 10),
		bytes.Repeat([]byte{2}, 10),
	}
	for _, rec := range records {
		off, err := r.Claim(int64(len(rec)))
		require.NoError(t, err)
		_, err = s.WriteAt(rec, off)
		require.NoError(t, err)
	}
	require.False(t, r.Fits(10))

	// overlapping the live bytes is refused
	assert.Error(t, r.Relocate(s, 110, 10))

	require.NoError(t, r.Relocate(s, 500, 10))
	assert.Equal(t, int64(500), r.Start())
	assert.Equal(t, int64(80), r.Cap())
	assert.Equal(t, int64(520), r.End())
	assert.True(t, r.Fits(10))

	got := s.Bytes()[500:520]
	assert.Equal(t, append(append([]byte{}, records[0]...), records[1]...), got)

	// a record bigger than one doubling keeps doubling
	require.NoError(t, r.Relocate(s, 1000, 200))
	assert.Equal(t, int64(320), r.Cap())
	assert.True(t, r.Fits(200))
}

func TestRegion_RelocateReadError(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "rootfile-region.*.test")
	require.NoError(t, err)
	s := rbytes.NewFileSink(f, false)

	r, err := NewRegion(0, 40, DefaultGrowth)
	require.NoError(t, err)
	_, err = r.Claim(20)
	require.NoError(t, err)

	// nothing was ever written, so the used bytes can't be read back
	assert.Error(t, r.Relocate(s, 100, 10))
	require.NoError(t, s.Close())
}
