// Copyright 2023 The rootfile Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package objects

import (
	"fmt"

	"github.com/bpowers/rootfile/rbytes"
)

const (
	axisVersion     = 10
	attAxisVersion  = 4
	defaultDivision = 510
	defaultColor    = 1
	defaultFont     = 42
)

// Axis is a TAxis: nbins bins between Min and Max, or variable-width bins
// given by Edges (len(Edges) == Nbins+1).
type Axis struct {
	Name  string
	Title string
	Nbins int32
	Min   float64
	Max   float64
	Edges []float64
}

func NewAxis(name, title string, nbins int32, lo, hi float64) (*Axis, error) {
	if nbins <= 0 {
		return nil, fmt.Errorf("axis %q: nbins %d must be positive", name, nbins)
	}
	if !(lo < hi) {
		return nil, fmt.Errorf("axis %q: min %g must be below max %g", name, lo, hi)
	}
	return &Axis{Name: name, Title: title, Nbins: nbins, Min: lo, Max: hi}, nil
}

// NewVariableAxis builds an axis from ascending bin edges.
func NewVariableAxis(name, title string, edges []float64) (*Axis, error) {
	if len(edges) < 2 {
		return nil, fmt.Errorf("axis %q: need at least 2 edges, got %d", name, len(edges))
	}
	for i := 1; i < len(edges); i++ {
		if !(edges[i-1] < edges[i]) {
			return nil, fmt.Errorf("axis %q: edges not ascending at %d", name, i)
		}
	}
	return &Axis{
		Name:  name,
		Title: title,
		Nbins: int32(len(edges) - 1),
		Min:   edges[0],
		Max:   edges[len(edges)-1],
		Edges: append([]float64(nil), edges...),
	}, nil
}

func (a *Axis) KeyKind() string { return ClassAxis }

// KeyTitle makes the key carry the axis title.
func (a *Axis) KeyTitle() string { return a.Title }

func (a *Axis) MarshalROOT(w *rbytes.WBuffer) {
	pos := w.WriteVersion(axisVersion)
	writeNamed(w, a.Name, a.Title)

	att := w.WriteVersion(attAxisVersion)
	w.WriteI32(defaultDivision)
	w.WriteI16(defaultColor) // axis
	w.WriteI16(defaultColor) // labels
	w.WriteI16(defaultFont)
	w.WriteF32(0.005) // label offset
	w.WriteF32(0.035) // label size
	w.WriteF32(0.03)  // tick length
	w.WriteF32(1)     // title offset
	w.WriteF32(0.035) // title size
	w.WriteI16(defaultColor)
	w.WriteI16(defaultFont)
	w.SetByteCount(att)

	w.WriteI32(a.Nbins)
	w.WriteF64(a.Min)
	w.WriteF64(a.Max)
	w.WriteI32(int32(len(a.Edges)))
	for _, e := range a.Edges {
		w.WriteF64(e)
	}
	w.WriteI32(0) // fFirst
	w.WriteI32(0) // fLast
	w.WriteU16(0) // fBits2
	w.WriteBool(false)
	w.WriteString("") // fTimeFormat
	w.WriteU32(0)     // fLabels
	w.WriteU32(0)     // fModLabs
	w.SetByteCount(pos)
}

func (a *Axis) ByteLen() int {
	w := rbytes.NewWBuffer(256)
	a.MarshalROOT(w)
	return w.Len()
}

func (a *Axis) WriteBytes(c *rbytes.Cursor, sink rbytes.Sink) error {
	return c.WriteFields(sink, a)
}

// UnmarshalROOT decodes the members written by MarshalROOT.
func (a *Axis) UnmarshalROOT(r *rbytes.RBuffer) error {
	if _, v := r.ReadVersion(); v != axisVersion && r.Err() == nil {
		return fmt.Errorf("unexpected TAxis version %d", v)
	}
	r.ReadVersion()
	r.ReadRaw(10)
	a.Name = r.ReadString()
	a.Title = r.ReadString()

	n, _ := r.ReadVersion()
	r.ReadRaw(int(n) - 2)

	a.Nbins = r.ReadI32()
	a.Min = r.ReadF64()
	a.Max = r.ReadF64()
	nedges := r.ReadI32()
	a.Edges = nil
	for i := int32(0); i < nedges && r.Err() == nil; i++ {
		a.Edges = append(a.Edges, r.ReadF64())
	}
	r.ReadRaw(4 + 4 + 2 + 1)
	r.ReadString()
	r.ReadRaw(8)
	return r.Err()
}
