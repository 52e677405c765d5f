// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dqed

import (
	"math"
	"testing"
)

func TestBoundTag(t *testing.T) {

	nan, inf := math.NaN(), math.Inf(1)

	cases := []struct {
		bnd   Bound
		tag   int
		fixed bool
	}{
		{Bound{1, 2}, tagBoth, false},
		{Bound{3, 3}, tagBoth, true},
		{Bound{1, nan}, tagLower, false},
		{Bound{nan, 2}, tagUpper, false},
		{Bound{nan, nan}, tagNone, false},
		{Bound{-inf, inf}, tagNone, false},
		{Bound{-inf, 2}, tagUpper, false},
		{Bound{1, inf}, tagLower, false},
		// +0 and -0 compare equal so the entry is still pinned
		{Bound{0, math.Copysign(0, -1)}, tagBoth, true},
		// the zero value pins its entry: absent entries are free, zero entries are not
		{Bound{}, tagBoth, true},
	}

	for i, c := range cases {
		b := c.bnd.normalize()
		switch {
		case b.tag() != c.tag:
			t.Fatal("TestBoundTag: Tag Unexpected", i)
		case b.fixed() != c.fixed:
			t.Fatal("TestBoundTag: Pin Unexpected", i)
		}
	}
}

func TestBoundEncode(t *testing.T) {

	nan, inf := math.NaN(), math.Inf(1)

	{ // entries beyond the given list default to free
		bnd := []Bound{
			{1, 2},
			{nan, 2},
			{1, nan},
			{nan, nan},
		}

		const n = 6
		ind := make([]int, n)
		bl := make([]float64, n)
		bu := make([]float64, n)
		encodeBounds(bnd, ind, bl, bu)

		wantInd := []int{tagBoth, tagUpper, tagLower, tagNone, tagNone, tagNone}
		wantBl := []float64{1, -inf, 1, -inf, -inf, -inf}
		wantBu := []float64{2, 2, inf, inf, inf, inf}
		for i := 0; i < n; i++ {
			switch {
			case ind[i] != wantInd[i]:
				t.Fatal("TestBoundEncode: Tag Unexpected", i)
			case bl[i] != wantBl[i] || bu[i] != wantBu[i]:
				t.Fatal("TestBoundEncode: Sentinel Unexpected", i)
			}
		}
	}

	{ // a nil list leaves every entry free
		ind := make([]int, 2)
		bl := make([]float64, 2)
		bu := make([]float64, 2)
		encodeBounds(nil, ind, bl, bu)
		for i := 0; i < 2; i++ {
			if ind[i] != tagNone || bl[i] != -inf || bu[i] != inf {
				t.Fatal("TestBoundEncode: Free Entry Unexpected", i)
			}
		}
	}
}

func TestBoundRoundTrip(t *testing.T) {

	nan, inf := math.NaN(), math.Inf(1)

	cases := []struct {
		in   Bound
		want Bound
	}{
		{Bound{1, 2}, Bound{1, 2}},
		{Bound{3, 3}, Bound{3, 3}},
		{Bound{1, nan}, Bound{1, inf}},
		{Bound{nan, 2}, Bound{-inf, 2}},
		{Bound{nan, nan}, Bound{-inf, inf}},
		// infinite sides normalize to absent and decode back unchanged
		{Bound{-inf, 2}, Bound{-inf, 2}},
		{Bound{1, inf}, Bound{1, inf}},
		// the sign of zero and the smallest denormal survive the trip
		{Bound{math.Copysign(0, -1), 5}, Bound{math.Copysign(0, -1), 5}},
		{Bound{5e-324, nan}, Bound{5e-324, inf}},
	}

	ind := make([]int, 1)
	bl := make([]float64, 1)
	bu := make([]float64, 1)

	for i, c := range cases {
		encodeBounds([]Bound{c.in.normalize()}, ind, bl, bu)
		got := decodeBound(ind[0], bl[0], bu[0])
		if math.Float64bits(got.Lower) != math.Float64bits(c.want.Lower) ||
			math.Float64bits(got.Upper) != math.Float64bits(c.want.Upper) {
			t.Fatal("TestBoundRoundTrip: Bits Unexpected", i)
		}
	}
}
