// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package viz renders fit progress in the terminal: a plain convergence
// chart for batch output and a live view for a running solve.
package viz

import (
	"math"

	"github.com/guptarohit/asciigraph"
)

// Convergence renders the residual history as a terminal chart. Histories
// spanning several decades switch to a log10 axis.
func Convergence(history []float64, width, height int) string {
	if len(history) < 2 {
		return ""
	}
	data, caption := history, "residual per evaluation"
	if logworthy(history) {
		data = make([]float64, len(history))
		for i, v := range history {
			data[i] = math.Log10(v)
		}
		caption = "log10 residual per evaluation"
	}
	return asciigraph.Plot(data, asciigraph.Height(height), asciigraph.Width(width), asciigraph.Caption(caption))
}

func logworthy(history []float64) bool {
	lo, hi := math.Inf(1), 0.0
	for _, v := range history {
		if v <= 0 {
			return false
		}
		lo, hi = math.Min(lo, v), math.Max(hi, v)
	}
	return hi > 1000*lo
}
