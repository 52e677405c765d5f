// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package export renders archived fit runs to PNG files.
package export

import (
	"errors"
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// Convergence plots the residual history of a run, one point per
// evaluation. Strictly positive histories are drawn on a log axis.
func Convergence(title string, history []float64, path string) error {
	if len(history) < 2 {
		return errors.New("history too short to plot")
	}

	pts := make(plotter.XYs, len(history))
	pos := true
	for i, v := range history {
		pts[i].X, pts[i].Y = float64(i+1), v
		if v <= 0 {
			pos = false
		}
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "evaluation"
	p.Y.Label.Text = "residual"
	if pos {
		p.Y.Scale = plot.LogScale{}
		p.Y.Tick.Marker = plot.LogTicks{Prec: -1}
	}
	p.Add(plotter.NewGrid())

	line, err := plotter.NewLine(pts)
	if err != nil {
		return err
	}
	line.Color = color.RGBA{R: 0x1f, G: 0x77, B: 0xb4, A: 0xff}
	p.Add(line)

	return p.Save(6*vg.Inch, 4*vg.Inch, path)
}

// Fit plots the observations of a curve model against the fitted curve.
func Fit(title string, ts, ys []float64, fit func(float64) float64, path string) error {
	if len(ts) == 0 || len(ts) != len(ys) {
		return errors.New("observations are empty or mismatched")
	}

	pts := make(plotter.XYs, len(ts))
	for i := range ts {
		pts[i].X, pts[i].Y = ts[i], ys[i]
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "t"
	p.Y.Label.Text = "y"
	p.Add(plotter.NewGrid())

	scatter, err := plotter.NewScatter(pts)
	if err != nil {
		return err
	}
	scatter.GlyphStyle.Radius = vg.Points(3)

	curve := plotter.NewFunction(fit)
	curve.Samples = 200
	curve.Color = color.RGBA{R: 0xd6, G: 0x27, B: 0x28, A: 0xff}

	p.Add(scatter, curve)
	p.Legend.Add("data", scatter)
	p.Legend.Add("fit", curve)
	p.Legend.Top = true

	return p.Save(6*vg.Inch, 4*vg.Inch, path)
}
