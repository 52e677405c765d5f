// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dqed

import "math"

// Bound represents the bounds for a variable or a constraint row.
// A side is absent when it is NaN or infinite.
type Bound struct {
	Lower, Upper float64
}

// Bound tags stored in the workspace index array.
// The numbering keeps the classic convention consumed by the engine:
// an entry bounded below carries 1, above carries 2, on both sides 3,
// and a free entry carries 4.
const (
	tagLower = 1 + iota
	tagUpper
	tagBoth
	tagNone
)

// normalize turns infinite sides into the NaN absent marker.
func (b Bound) normalize() Bound {
	if math.IsInf(b.Lower, 0) {
		b.Lower = math.NaN()
	}
	if math.IsInf(b.Upper, 0) {
		b.Upper = math.NaN()
	}
	return b
}

// tag classifies a normalized bound.
func (b Bound) tag() int {
	l, u := !math.IsNaN(b.Lower), !math.IsNaN(b.Upper)
	switch {
	case l && u:
		return tagBoth
	case l:
		return tagLower
	case u:
		return tagUpper
	}
	return tagNone
}

// fixed reports whether a normalized bound pins its entry to a single value.
func (b Bound) fixed() bool {
	return b.tag() == tagBoth && b.Lower == b.Upper
}

// encodeBounds writes the tag and value arrays consumed by the engine.
// Absent sides become ∓Inf sentinels so the step window arithmetic needs
// no tag branches. A nil or empty bnd means every entry is unconstrained.
func encodeBounds(bnd []Bound, ind []int, bl, bu []float64) {
	for i := range ind {
		t := tagNone
		l, u := math.Inf(-1), math.Inf(1)
		if i < len(bnd) {
			b := bnd[i]
			if t = b.tag(); t == tagLower || t == tagBoth {
				l = b.Lower
			}
			if t == tagUpper || t == tagBoth {
				u = b.Upper
			}
		}
		ind[i], bl[i], bu[i] = t, l, u
	}
}

// decodeBound reconstructs a bound from its tag and encoded values.
// Sides the tag marks absent come back as the ∓Inf sentinels.
func decodeBound(tag int, l, u float64) Bound {
	b := Bound{Lower: math.Inf(-1), Upper: math.Inf(1)}
	if tag == tagLower || tag == tagBoth {
		b.Lower = l
	}
	if tag == tagUpper || tag == tagBoth {
		b.Upper = u
	}
	return b
}
