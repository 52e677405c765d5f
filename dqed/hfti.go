// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dqed

import "math"

// HFTI (Householder Forward Triangulation with column Interchanges) solves linear least squares 𝐀𝐗 ≅ 𝐁
// allowing 𝐀 to be rank deficient.
//   - 𝐀 is m × n matrix with 𝚙𝚜𝚎𝚞𝚍𝚘-𝚛𝚊𝚗𝚔(𝐀) = k
//   - 𝐗 is n × nb matrix having column vectors 𝐱ⱼ
//   - 𝐁 is m × nb matrix
//
// The factorization 𝐐𝐀𝐏 = 𝐑 is built with pre-multiplying Householder transformations 𝐐
// and column interchanges 𝐏, so all sub-diagonal elements of 𝐑 vanish and the diagonal
// magnitudes decrease. The pseudo-rank k counts the diagonal elements of 𝐑 exceeding the
// user tolerance 𝛕 in magnitude; it is a property of 𝛕, not of 𝐀.
//
// When k < n a second, forward triangulation [𝐑₁₁:𝐑₁₂]𝐊 = [𝐖:೦] compresses the top block
// into a non-singular upper triangle 𝐖, and the minimum length solution follows from
//
//	𝐱 = 𝐏𝐊[𝐖⁻¹𝐜₁ ೦]ᵀ  with  𝐜 = 𝐐𝐛 = [𝐜₁ 𝐜₂]ᵀ, ‖𝐫‖₂ = ‖𝐜₂‖₂
//
// by a triangular solve and the accumulated transformations.
//
// The input space of 𝐀 is overwritten with the data defining 𝐐 (lower triangle), 𝐖 and 𝐊
// (upper rectangle). The pivot scalars of 𝐐 and 𝐊 and the interchange record of 𝐏 occupy
// the three working arrays g, h and ip of length 𝚖𝚒𝚗(m,n).
//
// # References
//
//	C.L. Lawson, R.J. Hanson, 'Solving least squares problems' Prentice Hall, 1974. (revised 1995 edition)
//	Chapters 14, Algorithm 14.9.
func HFTI(
	// initially contains the m × n matrix 𝐀, either m ≥ n or m < n is permitted.
	// there is no restriction on 𝚛𝚊𝚗𝚔(𝐀).
	// on return the array will be modified by the subroutine.
	a []float64, mda, m, n int,
	// initially contains the m × nb matrix 𝐁, if nb = 0 the subroutine will make no reference to it.
	// on return the array will contain the n × nb solution 𝐗.
	b []float64, mdb, nb int,
	// absolute tolerance parameter for pseudo-rank determination.
	tau float64,
	// will contain the norm-2 of the residual for the problem defined by the j-th column vector of 𝐁.
	norm []float64,
	// array of working space
	h, g []float64, ip []int) int {

	const factor = 0.001

	diag := min(m, n)
	if diag <= 0 {
		return 0
	}

	if n > len(h) || diag > len(h) || diag > len(ip) {
		panic("bound check error")
	}

	hmax := zero
	for j := 0; j < diag; j++ {
		// Update the squared column lengths and find lmax.
		lmax := j
		if j > 0 {
			v := math.NaN()
			for l := j; l < n; l++ {
				t := a[(j-1)+mda*l]
				if h[l] -= t * t; !(h[l] <= v) {
					lmax, v = l, h[l]
				}
			}
		}
		// Recompute squared column lengths when the update lost accuracy.
		if j == 0 || factor*h[lmax] < hmax*eps {
			v := math.NaN()
			for l := j; l < n; l++ {
				sm := zero
				for _, t := range a[j+mda*l : m+mda*l] {
					sm += t * t
				}
				if h[l] = sm; !(h[l] <= v) {
					lmax, v = l, h[l]
				}
			}
			hmax = h[lmax]
		}

		// Perform column interchange 𝐏 if needed.
		ip[j] = lmax
		if ip[j] != j {
			c1, c2 := a[mda*j:mda*j+m], a[mda*lmax:mda*lmax+m]
			if m > len(c1) || m > len(c2) {
				panic("bound check error")
			}
			for i := 0; i < m; i++ {
				c1[i], c2[i] = c2[i], c1[i]
			}
			h[lmax] = h[j]
		}

		// Compute the j-th transformation and apply it to 𝐀 and 𝐁.
		i := min(j+1, n-1)
		h[j] = h1(j, j+1, m, a[mda*j:], 1)                          // 𝐐
		h2(j, j+1, m, a[mda*j:], 1, h[j], a[mda*i:], 1, mda, n-j-1) // 𝐑 = 𝐐𝐀𝐏
		h2(j, j+1, m, a[mda*j:], 1, h[j], b, 1, mdb, nb)            // 𝐂 = 𝐐𝐁
	}

	// Determine the pseudo-rank
	// k = 𝚖𝚊𝚡ⱼ |𝐑ⱼⱼ| > 𝛕
	k := diag
	for j := 0; j < diag; j++ {
		if math.Abs(a[j+mda*j]) <= tau {
			k = j
			break
		}
	}

	if k > len(a) || k > len(b) || k > len(g) || nb > len(norm) {
		panic("bound check error")
	}

	// Compute the norms of the residual vectors ‖𝐠₂‖ ≡ ‖𝐜₂‖
	for jb := 0; jb < nb; jb++ {
		sm := zero
		if k < m {
			for _, t := range b[mdb*jb+k : mdb*jb+m] {
				sm += t * t
			}
		}
		norm[jb] = math.Sqrt(sm)
	}

	if k > 0 {
		// If the pseudo-rank is less than n,
		// compute Householder decomposition of first k rows.
		if k < n {
			for i := k - 1; i >= 0; i-- {
				g[i] = h1(i, k, n, a[i:], mda)              // 𝐊
				h2(i, k, n, a[i:], mda, g[i], a, mda, 1, i) // 𝐑₁₁𝐊 = 𝐖
			}
		}

		// If 𝐁 is provided, compute 𝐗
		for jb := 0; jb < nb; jb++ {
			cb := b[mdb*jb:]
			if k > len(cb) || n > len(cb) {
				panic("bound check error")
			}

			// Solve k × k triangular system 𝐖𝐲₁ = 𝐜₁
			for i := k - 1; i >= 0; i-- {
				sm := zero
				for j := uint(i + 1); j < uint(k); j++ {
					sm += a[i+mda*int(j)] * cb[j]
				}
				cb[i] = (cb[i] - sm) / a[i+mda*i]
			}

			// Complete computation of solution vector.
			if k < n {
				dzero(cb[k:n]) // 𝐊𝐲₂ = O
				for i := 0; i < k; i++ {
					h2(i, k, n, a[i:], mda, g[i], cb, 1, mdb, 1) // 𝐊𝐲₁ = 𝐊𝐖⁻¹𝐜₁
				}
			}

			// Re-order solution vector 𝐊𝐲 by 𝐏 to obtain 𝐱.
			for j := diag - 1; j >= 0; j-- {
				if l := ip[j]; ip[j] != j {
					cb[l], cb[j] = cb[j], cb[l]
				}
			}
		}
	} else if nb > 0 {
		for jb := 0; jb < nb; jb++ {
			dzero(b[mdb*jb : mdb*jb+n])
		}
	}

	// The solution vectors 𝐗 are now in the first n rows of 𝐁.
	return k
}
