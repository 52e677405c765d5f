// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dqed

// BOCLS (Bounded Constrained Least Squares) solves the step subproblem of the
// trust-region iteration. Given the stacked value/derivative block at the
// current iterate
//
//	       nv      1
//	    ┌──┴──┐  ┌─┴─┐
//	fj ⎡  𝐂        𝒈  ⎤ ]╴nc
//	   ⎣  𝐉        𝒇  ⎦ ]╴ne
//
// it assembles and solves the linearized problem
//
//	𝚖𝚒𝚗 ‖ 𝐄𝐝𝐱 + 𝒇 ‖₂  𝚜.𝚝  𝐂ₑ𝐝𝐱 = 𝒅  𝚊𝚗𝚍  𝐆𝐝𝐱 ≥ 𝒉
//
// with 𝐄 = 𝐉, or the identity when no residual equations exist, which turns
// the objective into the minimum-norm feasibility step.
//   - constraint rows pinned to a single value (lower bound equal upper
//     bound) become the equality block 𝐂ₑ𝐝𝐱 = 𝒃𝒍 - 𝒈
//   - every other tagged constraint row contributes one inequality per
//     finite side: 𝐜ⱼ𝐝𝐱 ≥ 𝒃𝒍ⱼ - 𝒈ⱼ and -𝐜ⱼ𝐝𝐱 ≥ 𝒈ⱼ - 𝒃𝒖ⱼ
//   - the step window adds the box rows 𝐝𝐱ᵢ ≥ 𝚕𝚘ᵢ and -𝐝𝐱ᵢ ≥ -𝚑𝚒ᵢ
//
// The assembled blocks and the LSEI scratch both live in w.
// On success dx holds the step clipped into its window and norm holds the
// residual norm of the linearized problem.
func BOCLS(
	ne, nv, nc int,
	// dim(fj):   formal (ld,nv+1),  actual (nc+ne,nv+1)
	fj []float64, ld int,
	// dim(ind):  nv + nc
	ind []int,
	// dim(bl) :  nv + nc
	// dim(bu) :  nv + nc
	bl, bu []float64,
	// dim(lo) :  nv
	// dim(hi) :  nv
	lo, hi []float64,
	// dim(dx) :  nv
	dx []float64,
	// dim(w)  :  (𝚖𝚊𝚡(1,nc) + 𝚖𝚊𝚡(ne,nv) + 2×(nv+nc))×(nv+1) for the blocks
	//             + the LSEI requirement on their actual row counts
	w []float64,
	// dim(jw) :  2×(nv+nc)
	jw []int,
	maxIterLs int,
) (norm float64, st Status) {

	fc := fj[ld*nv:]

	pinned := func(j int) bool {
		return ind[nv+j] == tagBoth && bl[nv+j] == bu[nv+j]
	}

	mc := 0
	for j := 0; j < nc; j++ {
		if pinned(j) {
			mc++
		}
	}

	me := nv
	if ne > 0 {
		me = ne
	}

	mg := 2 * nv
	for j := 0; j < nc; j++ {
		switch ind[nv+j] {
		case tagLower, tagUpper:
			mg++
		case tagBoth:
			if !pinned(j) {
				mg += 2
			}
		}
	}

	lc, le, lg := max(1, mc), me, mg

	i0 := 0
	c := w[i0 : i0+lc*nv]
	i0 += lc * nv
	d := w[i0 : i0+lc]
	i0 += lc
	e := w[i0 : i0+le*nv]
	i0 += le * nv
	f := w[i0 : i0+le]
	i0 += le
	g := w[i0 : i0+lg*nv]
	i0 += lg * nv
	h := w[i0 : i0+lg]
	i0 += lg
	ws := w[i0:]

	// 𝐂ₑ𝐝𝐱 = 𝒃𝒍 - 𝒈 for pinned constraint rows
	k := 0
	for j := 0; j < nc; j++ {
		if pinned(j) {
			dcopy(nv, fj[j:], ld, c[k:], lc)
			d[k] = bl[nv+j] - fc[j]
			k++
		}
	}

	if ne > 0 {
		for col := 0; col < nv; col++ { // 𝐄 = 𝐉
			copy(e[le*col:le*col+ne], fj[nc+ld*col:nc+ld*col+ne])
		}
		for i := 0; i < ne; i++ {
			f[i] = -fc[nc+i]
		}
	} else {
		dzero(e) // 𝐄 = 𝐈 and 𝒇 = ೦
		dzero(f)
		for i := 0; i < nv; i++ {
			e[i+le*i] = one
		}
	}

	// one inequality per finite side of the ranged constraint rows
	k = 0
	for j := 0; j < nc; j++ {
		low, upp := false, false
		switch ind[nv+j] {
		case tagLower:
			low = true
		case tagUpper:
			upp = true
		case tagBoth:
			low, upp = !pinned(j), !pinned(j)
		}
		if low {
			dcopy(nv, fj[j:], ld, g[k:], lg)
			h[k] = bl[nv+j] - fc[j]
			k++
		}
		if upp {
			for col := 0; col < nv; col++ {
				g[k+lg*col] = -fj[j+ld*col]
			}
			h[k] = fc[j] - bu[nv+j]
			k++
		}
	}

	// box rows of the step window
	for col := 0; col < nv; col++ {
		dzero(g[k+lg*col : k+2*nv+lg*col])
	}
	for i := 0; i < nv; i++ {
		g[k+2*i+lg*i] = one
		g[k+2*i+1+lg*i] = -one
		h[k+2*i] = lo[i]
		h[k+2*i+1] = -hi[i]
	}

	norm, st = LSEI(c, d, e, f, g, h, lc, mc, le, me, lg, mg, nv, dx, ws, jw, maxIterLs)
	if st != statusOK {
		return norm, st
	}

	// clip roundoff so the accepted step honors its window exactly
	for i := 0; i < nv; i++ {
		dx[i] = min(max(dx[i], lo[i]), hi[i])
	}
	return norm, statusOK
}
