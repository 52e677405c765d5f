// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package export

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConvergence(t *testing.T) {
	dir := t.TempDir()

	require.Error(t, Convergence("x", []float64{1}, filepath.Join(dir, "short.png")))

	path := filepath.Join(dir, "conv.png")
	history := []float64{3.2e3, 1.1e2, 4.0, 0.3, 1.2e-2, 5.0e-4}
	require.NoError(t, Convergence("expfit", history, path))

	fi, err := os.Stat(path)
	require.NoError(t, err)
	require.Positive(t, fi.Size())

	// A history touching zero still renders, on a linear axis.
	path = filepath.Join(dir, "linear.png")
	require.NoError(t, Convergence("linear", []float64{3, 1, 0.2, 0}, path))
	_, err = os.Stat(path)
	require.NoError(t, err)
}

func TestFit(t *testing.T) {
	dir := t.TempDir()

	ts := []float64{0.05, 0.1, 0.4, 0.5, 1.0}
	ys := []float64{2.206, 1.994, 1.350, 1.216, 0.7358}
	fit := func(t float64) float64 {
		return 2*math.Exp(-t) + 0.5*math.Exp(-10*t)
	}

	require.Error(t, Fit("x", nil, nil, fit, filepath.Join(dir, "empty.png")))
	require.Error(t, Fit("x", ts, ys[:3], fit, filepath.Join(dir, "mismatch.png")))

	path := filepath.Join(dir, "fit.png")
	require.NoError(t, Fit("expfit", ts, ys, fit, path))

	fi, err := os.Stat(path)
	require.NoError(t, err)
	require.Positive(t, fi.Size())
}
