// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package model

import (
	"math"
	"slices"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/curioloop/dqed/dqed"
	"github.com/curioloop/dqed/numdiff"
)

func TestRegistry_Names(t *testing.T) {
	names := Names()
	require.True(t, slices.IsSorted(names))

	for _, name := range names {
		m, err := Get(name)
		require.NoError(t, err)
		require.Equal(t, name, m.Name)
		require.NotEmpty(t, m.About)
		require.Positive(t, m.Equations)
		require.Positive(t, m.Variables)
		require.Len(t, m.Start, m.Variables)
		require.NotNil(t, m.Residual)
		if m.Bounds != nil {
			require.Len(t, m.Bounds, m.Variables+m.Constraints)
		}
	}

	m, err := Get("brusselator")
	require.Nil(t, m)
	require.ErrorContains(t, err, "unknown model")
}

func TestRegistry_Derivatives(t *testing.T) {
	for _, name := range Names() {
		t.Run(name, func(t *testing.T) {
			m, err := Get(name)
			require.NoError(t, err)

			cs := numdiff.CheckSpec{
				Equations:   m.Equations,
				Variables:   m.Variables,
				Constraints: m.Constraints,
				Residual:    m.Residual,
				Bounds:      m.Bounds,
				Method:      numdiff.Central,
			}
			rep, err := cs.Check(slices.Clone(m.Start))
			require.NoError(t, err)
			require.Less(t, rep.Err, 1e-6)
		})
	}
}

func TestRegistry_Solve(t *testing.T) {
	tests := []struct {
		name string
		stop dqed.Termination
		tol  float64
	}{
		{"linear", dqed.Termination{}, 1e-6},
		{"quartic", dqed.Termination{FTolerance: 1e-16, DTolerance: 1e-8, XTolerance: 1e-8, MaxIterations: 100}, 0.1},
		{"quartic-box", dqed.Termination{FTolerance: 1e-16, DTolerance: 1e-8, XTolerance: 1e-8, MaxIterations: 100}, 1e-6},
		{"expfit", dqed.Termination{FTolerance: 1e-5, DTolerance: 1e-5, XTolerance: 1e-5, MaxIterations: 100}, 0.1},
		{"rosen", dqed.Termination{}, 1e-3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := Get(tt.name)
			require.NoError(t, err)

			s, err := m.Problem(tt.stop).New(nil)
			require.NoError(t, err)

			r, err := s.Fit(slices.Clone(m.Start), nil)
			require.NoError(t, err)
			require.True(t, r.OK, "status: %v", r.Status)

			require.NotNil(t, m.Solution)
			for i, want := range m.Solution {
				require.InDelta(t, want, r.X[i], tt.tol)
			}

			if m.Constraints > 0 {
				require.Len(t, r.G, m.Constraints)
				require.GreaterOrEqual(t, r.G[0], 0.05-1e-9)
			}
		})
	}
}

func TestRecord_Counts(t *testing.T) {
	m := NewLinear()

	var norms []float64
	last := 0
	rec := m.Record(func(eval int, fnorm float64, x []float64) {
		require.Len(t, x, m.Variables)
		norms = append(norms, fnorm)
		last = eval
	})

	p := m.Problem(dqed.Termination{})
	p.Residual = rec

	s, err := p.New(nil)
	require.NoError(t, err)

	r, err := s.Fit(slices.Clone(m.Start), nil)
	require.NoError(t, err)
	require.True(t, r.OK)

	require.Equal(t, r.NumEval, len(norms))
	require.Equal(t, r.NumEval, last)
	require.InDelta(t, r.F, slices.Min(norms), 1e-12)
}

func TestRecord_SkipsConstraintRows(t *testing.T) {
	m := NewExpFit()

	var got float64
	rec := m.Record(func(eval int, fnorm float64, x []float64) { got = fnorm })

	ld := m.Constraints + m.Equations
	f := make([]float64, ld)
	fj := make([]float64, ld*m.Variables)
	require.NoError(t, rec.Evaluate(m.Start, f, fj, ld))

	// The norm covers the data misfit only, not the constraint row.
	curve := m.Curve(m.Start)
	var want float64
	for _, pt := range m.Data {
		d := curve(pt.T) - pt.Y
		want += d * d
	}
	require.InDelta(t, math.Sqrt(want), got, 1e-12)
}
