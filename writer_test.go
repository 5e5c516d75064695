// Copyright 2023 The rootfile Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package rootfile

import (
	"bytes"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bpowers/rootfile/internal/header"
	"github.com/bpowers/rootfile/internal/inspect"
	"github.com/bpowers/rootfile/internal/key"
	"github.com/bpowers/rootfile/internal/lock"
	"github.com/bpowers/rootfile/internal/streamer"
	"github.com/bpowers/rootfile/objects"
	"github.com/bpowers/rootfile/rbytes"
)

const testFilename = "test.root"

var testClock = func() time.Time {
	return time.Date(2023, time.June, 1, 12, 0, 0, 0, time.UTC)
}

func newTestWriter(t *testing.T, opts ...Option) (*FileWriter, *rbytes.MemSink) {
	t.Helper()
	s := rbytes.NewMemSink()
	w, err := NewWriter(testFilename, s, append([]Option{WithClock(testClock)}, opts...)...)
	require.NoError(t, err)
	return w, s
}

func readLayout(t *testing.T, s rbytes.Sink) *inspect.File {
	t.Helper()
	f, err := inspect.Read(s)
	require.NoError(t, err)
	require.NoError(t, f.Check())
	return f
}

func TestNewWriter_Empty(t *testing.T) {
	w, s := newTestWriter(t)
	f := readLayout(t, s)

	h := f.Header
	assert.Equal(t, int32(header.Begin), h.Begin)
	assert.Equal(t, int32(header.Version), h.Version)
	assert.Equal(t, int32(0), h.Compress)
	assert.Equal(t, int32(36+2*len(testFilename)), h.NbytesName)
	assert.Greater(t, h.SeekInfo, h.Begin)
	assert.Equal(t, f.Streamer.Nbytes, h.NbytesInfo)
	assert.Equal(t, h.End, h.SeekFree)

	assert.Equal(t, testFilename, f.Name)
	assert.Equal(t, testFilename, f.Begin.Name)
	assert.Equal(t, "TFile", f.Begin.ClassName)
	assert.Equal(t, h.NbytesName, f.Directory.NbytesName)
	assert.Equal(t, int32(0), f.NKeys)
	assert.Empty(t, f.Keys)

	empty, _ := streamer.Default().Lookup(streamer.Empty)
	assert.Equal(t, int32(len(empty)), f.Streamer.Objlen)

	// the whole default key index is reserved
	assert.Equal(t, f.Directory.SeekKeys+DefaultKeyIndexCapacity, h.End)
	assert.Equal(t, int64(h.End), w.Stats().End)
	// reserved regions are zero-filled up to fEND
	assert.Equal(t, int(h.End), s.Len())

	// the streamer reserve sits between the streamer key and the key index
	assert.GreaterOrEqual(t, int64(f.Directory.SeekKeys), int64(h.SeekInfo)+int64(f.Streamer.Keylen)+DefaultStreamerReserve)
}

func TestSet_RoundTrip(t *testing.T) {
	w, s := newTestWriter(t)
	hello := objects.String("hello")
	require.NoError(t, w.Set("x", hello))

	assert.Greater(t, s.Len(), 100)
	f := readLayout(t, s)
	assert.Greater(t, f.Header.SeekInfo, int32(0))
	require.Equal(t, int32(1), f.NKeys)

	idx := f.Keys[0]
	assert.Equal(t, "x", idx.Name)
	assert.Equal(t, objects.ClassObjString, idx.ClassName)
	assert.Equal(t, "Collectable string class", idx.Title)
	assert.Equal(t, int32(hello.ByteLen()), idx.Objlen)

	junk, err := key.ReadAt(s, int64(idx.SeekKey))
	require.NoError(t, err)
	assert.Equal(t, idx, junk)

	// the payload follows the junk key
	payload := s.Bytes()[int(idx.SeekKey)+int(idx.Keylen) : idx.End()]
	r := rbytes.NewRBuffer(payload)
	r.ReadVersion()
	r.ReadRaw(10)
	assert.Equal(t, "hello", r.ReadString())
	require.NoError(t, r.Err())

	assert.Equal(t, int64(f.Header.End), idx.End())
}

func TestSet_StreamerInfo(t *testing.T) {
	w, s := newTestWriter(t)
	before := readLayout(t, s)

	require.NoError(t, w.Set("a", objects.String("1")))
	require.NoError(t, w.Set("b", objects.String("2")))
	after := readLayout(t, s)

	all, _ := streamer.Default().Lookup(streamer.All)
	assert.Equal(t, int32(len(all)), after.Streamer.Objlen)
	assert.Equal(t, after.Streamer.Nbytes, after.Header.NbytesInfo)
	assert.Equal(t, before.Header.SeekInfo, after.Header.SeekInfo)
	assert.Equal(t, before.Streamer.SeekKey, after.Streamer.SeekKey)

	start := int(after.Header.SeekInfo) + int(after.Streamer.Keylen)
	assert.Equal(t, all, s.Bytes()[start:start+len(all)])
}

func TestSet_InvariantsAfterEveryAppend(t *testing.T) {
	w, s := newTestWriter(t, WithKeyIndexCapacity(100))

	const n = 60
	for i := 0; i < n; i++ {
		name := "obj" + strconv.Itoa(i)
		var obj Object = objects.String(strings.Repeat("v", i*7))
		if i%3 == 0 {
			a, err := objects.NewAxis(name, "axis "+name, int32(i+1), 0, 1)
			require.NoError(t, err)
			obj = a
		}
		require.NoError(t, w.Set(name, obj))

		f := readLayout(t, s)
		require.Equal(t, int32(i+1), f.NKeys)
		require.Len(t, f.Keys, i+1)
		require.Equal(t, int(f.Header.End), s.Len())
		for _, k := range f.Keys {
			junk, err := key.ReadAt(s, int64(k.SeekKey))
			require.NoError(t, err)
			require.Equal(t, k, junk)
		}
	}

	st := w.Stats()
	assert.Equal(t, n, st.Keys)
	assert.Greater(t, st.Relocations, 1)
}

func TestSet_KeyIndexRelocatesOnce(t *testing.T) {
	// head key (43) + count (4) + two 64-byte keys leaves 25 bytes, below
	// the 30-byte headroom
	w, s := newTestWriter(t, WithKeyIndexCapacity(200))

	payload := objects.String(strings.Repeat("p", 2000))
	names := []string{"a", "b", "c"}

	var seekKeys []int32
	var usedBefore []byte
	for i, name := range names {
		if i == 2 {
			f := readLayout(t, s)
			start := int(f.Directory.SeekKeys) + int(f.Head.Keylen) + 4
			usedBefore = bytes.Clone(s.Bytes()[start : int(f.Directory.SeekKeys)+int(f.Head.Nbytes)])
		}
		require.NoError(t, w.Set(name, payload))
		f := readLayout(t, s)
		seekKeys = append(seekKeys, f.Directory.SeekKeys)
	}

	assert.Equal(t, seekKeys[0], seekKeys[1])
	assert.NotEqual(t, seekKeys[1], seekKeys[2])
	assert.Equal(t, 1, w.Stats().Relocations)
	assert.Equal(t, int64(400), w.Stats().KeyIndexCap)

	f := readLayout(t, s)
	assert.Equal(t, f.Directory.SeekKeys, f.Head.SeekKey)
	require.Len(t, f.Keys, 3)
	for i, k := range f.Keys {
		assert.Equal(t, names[i], k.Name)
	}
	// the index moved past the second payload
	assert.Greater(t, f.Directory.SeekKeys, f.Keys[1].SeekKey)

	// previously written key records were copied verbatim
	start := int(f.Directory.SeekKeys) + int(f.Head.Keylen) + 4
	assert.Equal(t, usedBefore, s.Bytes()[start:start+len(usedBefore)])

	// the index was moved to just past the third payload, and fully reserved
	assert.Equal(t, f.Keys[2].End(), int64(f.Directory.SeekKeys))
	assert.Equal(t, f.Directory.SeekKeys+400, f.Header.End)
}

func TestSet_DuplicateNamesAppend(t *testing.T) {
	w, s := newTestWriter(t)
	require.NoError(t, w.Set("dup", objects.String("first")))
	require.NoError(t, w.Set("dup", objects.String("second")))

	f := readLayout(t, s)
	require.Equal(t, int32(2), f.NKeys)
	assert.Equal(t, "dup", f.Keys[0].Name)
	assert.Equal(t, "dup", f.Keys[1].Name)
	assert.NotEqual(t, f.Keys[0].SeekKey, f.Keys[1].SeekKey)
	assert.Equal(t, f.Keys[0].Cycle, f.Keys[1].Cycle)
}

func TestSet_AxisTitle(t *testing.T) {
	w, s := newTestWriter(t)
	a, err := objects.NewAxis("xaxis", "p_{T} [GeV]", 50, 0, 100)
	require.NoError(t, err)
	require.NoError(t, w.Set("xaxis", a))

	f := readLayout(t, s)
	require.Len(t, f.Keys, 1)
	assert.Equal(t, objects.ClassAxis, f.Keys[0].ClassName)
	assert.Equal(t, "p_{T} [GeV]", f.Keys[0].Title)
	assert.Equal(t, int32(a.ByteLen()), f.Keys[0].Objlen)

	var got objects.Axis
	k := f.Keys[0]
	payload := s.Bytes()[int(k.SeekKey)+int(k.Keylen) : k.End()]
	require.NoError(t, got.UnmarshalROOT(rbytes.NewRBuffer(payload)))
	assert.Equal(t, a, &got)
}

// registerTestKind tolerates repeated registration under -count.
func registerTestKind(t *testing.T, className, title string) {
	t.Helper()
	if err := RegisterKind(className, title); err != nil {
		require.ErrorIs(t, err, errKindRegistered)
	}
}

type thing struct {
	kind    string
	payload []byte
	claimed int
}

func (o *thing) KeyKind() string { return o.kind }
func (o *thing) ByteLen() int    { return o.claimed }

func (o *thing) WriteBytes(c *rbytes.Cursor, s rbytes.Sink) error {
	return c.WriteBytes(s, o.payload)
}

func TestSet_UnsupportedKind(t *testing.T) {
	w, s := newTestWriter(t)
	before := bytes.Clone(s.Bytes())

	err := w.Set("h", &thing{kind: "TH1F", payload: []byte("abc"), claimed: 3})
	assert.ErrorIs(t, err, ErrUnsupportedKind)
	err = w.Set("h", nil)
	assert.ErrorIs(t, err, ErrUnsupportedKind)
	assert.Equal(t, before, s.Bytes())

	registerTestKind(t, "TTestThing", "a test thing")
	assert.ErrorIs(t, RegisterKind("TTestThing", "again"), errKindRegistered)
	assert.Error(t, RegisterKind("", ""))

	require.NoError(t, w.Set("t", &thing{kind: "TTestThing", payload: []byte("abc"), claimed: 3}))
	f := readLayout(t, s)
	require.Len(t, f.Keys, 1)
	assert.Equal(t, "TTestThing", f.Keys[0].ClassName)
	assert.Equal(t, "a test thing", f.Keys[0].Title)
}

func TestSet_ByteLenMismatchIsPatched(t *testing.T) {
	registerTestKind(t, "TTestLiar", "")
	w, s := newTestWriter(t)

	obj := &thing{kind: "TTestLiar", payload: bytes.Repeat([]byte{7}, 50), claimed: 10}
	require.NoError(t, w.Set("liar", obj))

	f := readLayout(t, s)
	require.Len(t, f.Keys, 1)
	assert.Equal(t, int32(50), f.Keys[0].Objlen)
	junk, err := key.ReadAt(s, int64(f.Keys[0].SeekKey))
	require.NoError(t, err)
	assert.Equal(t, int32(50), junk.Objlen)
	assert.Equal(t, int64(f.Header.End), junk.End())
}

func TestSet_Errors(t *testing.T) {
	w, _ := newTestWriter(t)

	assert.ErrorIs(t, w.Set("", objects.String("x")), ErrEmptyName)
	assert.ErrorIs(t, w.Set(strings.Repeat("n", 40000), objects.String("x")), ErrKeyTooLarge)

	_, err := w.Get("x")
	assert.ErrorIs(t, err, ErrNotSupported)

	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
	assert.ErrorIs(t, w.Set("x", objects.String("x")), ErrClosed)
}

func TestOpen_NotSupported(t *testing.T) {
	path := filepath.Join(t.TempDir(), "never.root")
	_, err := Open(path)
	assert.ErrorIs(t, err, ErrNotSupported)

	// Open must not create anything
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestNewWriter_Options(t *testing.T) {
	_, err := NewWriter("", rbytes.NewMemSink())
	assert.ErrorIs(t, err, ErrEmptyName)

	_, err = NewWriter(testFilename, rbytes.NewMemSink(), WithStreamerReserve(1))
	assert.Error(t, err)

	_, err = NewWriter(testFilename, rbytes.NewMemSink(), WithKeyIndexCapacity(0))
	assert.Error(t, err)

	// sizes past the small-file limit are refused before anything is written
	tooBig := int64(math.MaxInt32) + 1
	s := rbytes.NewMemSink()
	_, err = NewWriter(testFilename, s, WithKeyIndexCapacity(int(tooBig)))
	assert.ErrorIs(t, err, ErrFileTooLarge)
	_, err = NewWriter(testFilename, s, WithStreamerReserve(int(tooBig)))
	assert.ErrorIs(t, err, ErrFileTooLarge)
	_, err = NewWriter(testFilename, s, WithKeyIndexCapacity(math.MaxInt32), WithStreamerReserve(math.MaxInt32-100))
	assert.ErrorIs(t, err, ErrFileTooLarge)
	assert.Less(t, s.Len(), int(streamer.Default().MaxSize())+1000)

	// a capacity too small for the head key is rounded up, and the
	// first append relocates
	w, s2 := newTestWriter(t, WithKeyIndexCapacity(1), WithTitle("my file"))
	f := readLayout(t, s2)
	assert.Equal(t, "my file", f.Title)
	assert.Equal(t, "my file", f.Begin.Title)
	require.NoError(t, w.Set("x", objects.String("x")))
	assert.Equal(t, 1, w.Stats().Relocations)
	readLayout(t, s2)
}

var errInjected = errors.New("injected write failure")

type failingSink struct {
	*rbytes.MemSink
	writes    int
	failAfter int
}

func (s *failingSink) WriteAt(p []byte, off int64) (int, error) {
	s.writes++
	if s.writes > s.failAfter {
		return 0, errInjected
	}
	return s.MemSink.WriteAt(p, off)
}

func TestWriter_IOErrorsPropagate(t *testing.T) {
	for failAfter := 0; failAfter < 12; failAfter++ {
		s := &failingSink{MemSink: rbytes.NewMemSink(), failAfter: failAfter}
		_, err := NewWriter(testFilename, s)
		assert.ErrorIs(t, err, errInjected, "failAfter %d", failAfter)
	}

	// every Set does more than 8 writes
	for failAfter := 0; failAfter < 8; failAfter++ {
		s := &failingSink{MemSink: rbytes.NewMemSink(), failAfter: 1 << 30}
		w, err := NewWriter(testFilename, s)
		require.NoError(t, err)
		s.writes = 0
		s.failAfter = failAfter
		err = w.Set("x", objects.String("x"))
		assert.ErrorIs(t, err, errInjected, "failAfter %d", failAfter)
	}
}

func TestWriter_FailedSetIsSticky(t *testing.T) {
	for failAfter := 0; failAfter < 8; failAfter++ {
		s := &failingSink{MemSink: rbytes.NewMemSink(), failAfter: 1 << 30}
		w, err := NewWriter(testFilename, s)
		require.NoError(t, err)

		s.writes = 0
		s.failAfter = failAfter
		require.ErrorIs(t, w.Set("a", objects.String("first")), errInjected)

		// the sink works again, but the file may already be inconsistent
		s.failAfter = 1 << 30
		before := bytes.Clone(s.Bytes())
		err = w.Set("b", objects.String("second"))
		assert.ErrorIs(t, err, errInjected, "failAfter %d", failAfter)
		assert.Equal(t, before, s.Bytes(), "failAfter %d", failAfter)

		assert.ErrorIs(t, w.Close(), errInjected, "failAfter %d", failAfter)
		assert.ErrorIs(t, w.Set("c", objects.String("third")), ErrClosed)
	}
}

func TestWriter_ValidationErrorsAreNotSticky(t *testing.T) {
	w, s := newTestWriter(t)
	require.ErrorIs(t, w.Set("", objects.String("x")), ErrEmptyName)
	require.ErrorIs(t, w.Set("h", &thing{kind: "TH1F"}), ErrUnsupportedKind)
	require.NoError(t, w.Set("x", objects.String("x")))
	readLayout(t, s)
	require.NoError(t, w.Close())
}

func TestCreate_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.root")

	w, err := Create(path, WithoutSync())
	require.NoError(t, err)

	// a second writer can't take the same file
	_, err = Create(path)
	assert.ErrorIs(t, err, lock.ErrLocked)

	require.NoError(t, w.Set("greeting", objects.String("hello")))
	require.NoError(t, w.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	layout, err := inspect.Read(f)
	require.NoError(t, err)
	require.NoError(t, layout.Check())
	assert.Equal(t, "out.root", layout.Name)
	assert.Equal(t, int32(1), layout.NKeys)
	require.NoError(t, f.Close())

	// creating again truncates
	w, err = Create(path)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	f, err = os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	layout, err = inspect.Read(f)
	require.NoError(t, err)
	assert.Equal(t, int32(0), layout.NKeys)

	_, err = Create(filepath.Join(t.TempDir(), "missing", "dir.root"))
	assert.Error(t, err)
}
