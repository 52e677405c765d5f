// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dqed

import (
	"context"
	"fmt"
	"math"
	"time"
)

const (
	ratioAccept = 1e-4 // minimum actual/predicted reduction to accept a step
	ratioExpand = 0.75 // model quality needed to grow the trust region
	ratioShrink = 0.25 // model quality below which the region shrinks
	noiseSteps  = 3    // consecutive noise-level reductions before stopping
)

// gnSolver solves bounded constrained NonLinear least Squares (NLS) with a trust-region Gauss-Newton iteration
//
// minimize ‖ 𝒇(𝐱) ‖₂ subject to
//   - linear constraints: 𝒄𝒍ⱼ ≤ 𝒈ⱼ(𝐱) ≤ 𝒄𝒖ⱼ (j = 1 ··· mᶜ)
//   - boundaries: 𝒍ᵢ ≤ 𝐱ᵢ ≤ 𝒖ᵢ (i = 1 ··· n)
//
// # Linearized Subproblem
//
// At iterate 𝐱ᵏ the residuals are replaced by their first-order model
// 𝒇(𝐱ᵏ+𝐝) ≈ 𝒇(𝐱ᵏ) + 𝐉ᵏ𝐝, and the constraints by 𝒈(𝐱ᵏ+𝐝) ≈ 𝒈(𝐱ᵏ) + 𝐂ᵏ𝐝,
// which BOCLS turns into a bounded constrained linear least-squares solve
// restricted to the trust region ‖𝐝‖∞ ≤ 𝚫. Since the constraint rows are
// linear the linearization is exact for them: once an iterate satisfies the
// constraints, every later accepted iterate keeps satisfying them.
//
// # Trust Region
//
// Step quality is measured by the ratio of the actual to the predicted merit
// reduction, where the merit adds the L1 constraint violation to the residual
// norm:
//
//	𝞿(𝐱) = ‖𝒇(𝐱)‖₂ + ∑‖𝒈ⱼ(𝐱)‖₁     ρ = [𝞿(𝐱ᵏ) - 𝞿(𝐱ᵏ+𝐝)] / [𝞿(𝐱ᵏ) - 𝞿߬(𝐝)]
//
// with 𝞿߬(𝐝) the merit predicted by the linear model. A step is accepted when
// ρ clears a small positive threshold. The radius doubles after a
// high-quality step that pressed against the region boundary, shrinks after a
// low-quality one, and halves below the attempted step norm on rejection. A
// radius driven to roundoff level without an accepted step ends the solve.
//
// # Termination
//
// After every accepted step the stopping conditions are checked in a fixed
// priority order: small residual norm, trust-boundary stall, projected
// gradient optimality, noise-dominated reduction, small absolute step, small
// relative step, then the iteration cap. The stall and noise detectors look
// back over the last nt accepted steps. Numeric failures inside the
// subproblem chain surface as their own status codes instead of errors so
// the partial progress stays inspectable.
//
// # Reference
//
// R.J. Hanson: "Least Squares with Bounds and Linear Constraints".
// SIAM J. Sci. Stat. Comput. 7(3), 1986.
//
// J.E. Dennis, R.B. Schnabel: "Numerical Methods for Unconstrained
// Optimization and Nonlinear Equations". SIAM, 1996. Chapter 6 and 10.
type gnSolver struct {
	engine    *Solver
	workspace *Workspace
	location  *gnLoc
	halt      context.Context
	clock     timer
}

// evalLoc invokes the evaluation capability at x, filling the stacked block
// fj, and scans the results for non-finite entries. A returned error means
// the capability itself failed or panicked; a non-zero status means it
// produced unusable numbers.
func (gs *gnSolver) evalLoc(x, fj []float64) (st Status, err error) {
	spec, ctx := &gs.engine.gnSpec, &gs.workspace.gnCtx
	ld := spec.nc + spec.ne
	jac, val := fj[:ld*spec.nv], fj[ld*spec.nv:]
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("evaluation panic: %v", r)
			}
		}()
		err = spec.Residual.Evaluate(x, val, jac, ld)
	}()
	ctx.eval++
	if err != nil {
		return HaltEvaluation, err
	}
	for _, v := range val {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return BadResidual, nil
		}
	}
	for _, v := range jac {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return BadJacobian, nil
		}
	}
	return statusOK, nil
}

// gradLoc refreshes the gradient 𝐉ᵀ𝒇 from the current stacked block.
func (gs *gnSolver) gradLoc() {
	spec, ctx := &gs.engine.gnSpec, &gs.workspace.gnCtx
	ld := spec.nc + spec.ne
	for i := 0; i < spec.nv; i++ {
		ctx.grad[i] = ddot(spec.ne, ctx.fj[spec.nc+ld*i:], 1, ctx.fc[spec.nc:], 1)
	}
}

// projGrad computes the infinity norm of the gradient projected onto the
// boundary conditions: components pushing against an active bound do not
// count towards the optimality measure.
func (gs *gnSolver) projGrad() (pg float64) {
	ctx, loc := &gs.workspace.gnCtx, gs.location
	for i, g := range ctx.grad {
		if g < zero {
			g = math.Max(g, loc.x[i]-ctx.bu[i])
		} else {
			g = math.Min(g, loc.x[i]-ctx.bl[i])
		}
		pg = math.Max(pg, math.Abs(g))
	}
	return
}

// violation sums the L1 distance of the constraint values to their bounds.
func (gs *gnSolver) violation(f []float64) (vio float64) {
	spec, ctx := &gs.engine.gnSpec, &gs.workspace.gnCtx
	for j := 0; j < spec.nc; j++ {
		vio += math.Max(zero, ctx.bl[spec.nv+j]-f[j]) +
			math.Max(zero, f[j]-ctx.bu[spec.nv+j])
	}
	return
}

// initCtx validates the scratch buffers, projects the start point into the
// box, resets the reusable iteration state and performs the first evaluation.
// An error from that first invocation reports a broken capability; any later
// evaluation failure is mapped to a status code instead.
func (gs *gnSolver) initCtx() (st Status, err error) {
	spec, ctx, loc := &gs.engine.gnSpec, &gs.workspace.gnCtx, gs.location
	w, log, stop := gs.workspace, &spec.logger, &spec.Stop
	ne, nv, nc := spec.ne, spec.nv, spec.nc

	totwk, totjw := worksize(ne, nv, nc)
	if len(w.rw) != totwk || len(w.iw) != totjw ||
		w.iw[0] != totwk || w.iw[1] != totjw {
		return BadWorkspace, nil
	}

	// move the start point into the box
	for i := 0; i < nv; i++ {
		loc.x[i] = math.Min(math.Max(loc.x[i], ctx.bl[i]), ctx.bu[i])
	}

	ctx.iter, ctx.eval = 0, 0
	ctx.hits, ctx.kept, ctx.calm = 0, 0, 0
	dzero(ctx.ring)
	ctx.delta = math.Max(one, dnrm2(nv, loc.x, 1))

	// the first invocation decides whether the capability works at all
	if st, err = gs.evalLoc(loc.x, ctx.fj); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrBadEvaluation, err)
	} else if st != statusOK {
		return st, nil
	}

	ctx.fnorm = dnrm2(ne, ctx.fc[nc:], 1)
	gs.gradLoc()

	if log.enable(LogEval) {
		pg := gs.projGrad()
		log.log("At iterate %5d    f= %12.5e    |proj g|= %12.5e\n", ctx.iter, ctx.fnorm, pg)
		log.out("%5d %5d  ---        -         -         - %10.3e %10.3e\n", ctx.iter, ctx.eval, pg, ctx.fnorm)
	}

	// the start point may already satisfy a stopping condition
	if feasible := gs.violation(ctx.fc) <= stop.FTolerance; feasible && ctx.fnorm <= stop.FTolerance {
		return Converged, nil
	} else if feasible && gs.projGrad() <= sqrtEps*(one+ctx.fnorm) {
		return LocalMinimum, nil
	}
	return statusOK, nil
}

// nextStep runs one trust-region cycle: propose a step from the linearized
// subproblem, probe the trial point, accept or reject it, adapt the radius
// and check the stopping conditions. A zero status keeps the loop running.
func (gs *gnSolver) nextStep() (st Status) {
	spec, ctx, loc := &gs.engine.gnSpec, &gs.workspace.gnCtx, gs.location
	log, stop := &spec.logger, &spec.Stop
	ne, nv, nc := spec.ne, spec.nv, spec.nc
	ld := nc + ne

	if ctx.iter++; ctx.iter > stop.MaxIterations {
		ctx.iter--
		return MaxIterationsReached
	}
	if gs.halt.Err() != nil {
		ctx.iter--
		return Interrupted
	}
	if gs.clock.elapsed() >= spec.quota {
		if log.enable(LogLast) {
			log.log("TIME LIMIT OF %s EXCEEDED\n", formatNs(spec.quota))
		}
		ctx.iter--
		return Interrupted
	}

	if log.enable(LogTrace) {
		log.log("\n\nITERATION %5d\n", ctx.iter)
	}

	// restrict the step window to the trust region and the variable bounds
	for i := 0; i < nv; i++ {
		ctx.lo[i] = math.Max(ctx.bl[i]-loc.x[i], -ctx.delta)
		ctx.hi[i] = math.Min(ctx.bu[i]-loc.x[i], ctx.delta)
	}

	pnorm, st := BOCLS(ne, nv, nc, ctx.fj, ld, ctx.ind, ctx.bl, ctx.bu,
		ctx.lo, ctx.hi, ctx.dx, ctx.w, ctx.jw, stop.DualIterations)
	if st != statusOK {
		return st
	}

	dxn := dnrm2(nv, ctx.dx, 1)
	boundary := dnrmi(ctx.dx) >= ctx.delta*(one-ten*eps)

	// the trial point stays inside the box even under roundoff
	for i := 0; i < nv; i++ {
		ctx.xt[i] = math.Min(math.Max(loc.x[i]+ctx.dx[i], ctx.bl[i]), ctx.bu[i])
	}

	var err error
	if st, err = gs.evalLoc(ctx.xt, ctx.fjt); err != nil {
		return HaltEvaluation
	} else if st != statusOK {
		return st
	}

	ftn := dnrm2(ne, ctx.ft[nc:], 1)
	vio, viot := gs.violation(ctx.fc), gs.violation(ctx.ft)

	// merit reduction against the prediction of the linear model
	ared := (ctx.fnorm + vio) - (ftn + viot)
	pred := (ctx.fnorm + vio) - pnorm

	ratio, accepted := one, ared >= zero
	if pred > zero {
		ratio, accepted = ared/pred, ared >= ratioAccept*pred
	}

	if !accepted {
		ctx.delta = dxn / two
		if ctx.delta <= ten*eps*math.Max(one, dnrm2(nv, loc.x, 1)) {
			return CollapsedRegion
		}
		gs.printIter("rej", ratio, dxn)
		return statusOK
	}

	// promote the trial point
	copy(loc.x, ctx.xt)
	ctx.fj, ctx.fjt = ctx.fjt, ctx.fj
	ctx.fc, ctx.ft = ctx.ft, ctx.fc
	ctx.fnorm = ftn
	gs.gradLoc()

	word := "con"
	if boundary {
		word, ctx.hits = "bnd", ctx.hits+1
	} else {
		ctx.hits = 0
	}

	switch {
	case ratio >= ratioExpand && boundary:
		ctx.delta = two * ctx.delta
	case ratio < ratioShrink:
		ctx.delta = math.Max(ctx.delta/four, dxn/two)
	}

	ringOld := ctx.ring[ctx.kept%nt]
	ctx.ring[ctx.kept%nt] = ftn
	ctx.kept++

	// a reduction far below the residual level is indistinguishable from noise
	if ared <= stop.SNTolerance*ftn {
		ctx.calm++
	} else {
		ctx.calm = 0
	}

	gs.printIter(word, ratio, dxn)

	// stopping conditions in fixed priority order
	pg, feasible := gs.projGrad(), viot <= stop.FTolerance
	switch {
	case ftn <= stop.FTolerance && feasible:
		st = Converged
	case ctx.hits >= nt && ctx.kept > nt && ringOld-ftn <= stop.DTolerance*(one+ringOld):
		st = StalledAtBound
	case pg <= sqrtEps*(one+ftn) && feasible:
		st = LocalMinimum
	case ctx.calm >= noiseSteps:
		st = NoiseDetected
	case dxn <= stop.DTolerance && feasible:
		st = SmallAbsoluteStep
	case dxn <= stop.XTolerance*dnrm2(nv, loc.x, 1) && feasible:
		st = SmallRelativeStep
	}
	return st
}

// mainLoop is the main execution loop of the iteration process.
func (gs *gnSolver) mainLoop() (st Status, err error) {

	gs.clock.reset()
	gs.printInit()

	if st, err = gs.initCtx(); err != nil {
		return 0, err
	}
	for st == statusOK {
		st = gs.nextStep()
	}

	gs.printExit(st)
	return st, nil
}

// printInit logs the configuration of the solve, including machine
// precision, problem dimensions and the initial bounds.
func (gs *gnSolver) printInit() {

	spec, ctx, loc := &gs.engine.gnSpec, &gs.workspace.gnCtx, gs.location

	log := &spec.logger

	if log.enable(LogLast) {
		log.log("RUNNING THE BOUNDED NONLINEAR LEAST SQUARES CODE\n")
		log.log("           * * *\n")
		log.log("Machine precision = %10.3e\n", eps)
		log.log("NE = %d    NV = %d    NC = %d\n", spec.ne, spec.nv, spec.nc)

		if log.enable(LogEval) {
			log.out("RUNNING THE BOUNDED NONLINEAR LEAST SQUARES CODE\n\n")
			log.out("Machine precision = %10.3e\n", eps)
			log.out("NE = %d    NV = %d    NC = %d\n", spec.ne, spec.nv, spec.nc)
			log.out("\n   it    nf  stat    ratio     delta      step      projg      f\n")

			if log.enable(LogVerbose) {
				log.log("\nL  = ")
				for i, l := range ctx.bl[:spec.nv] {
					log.log("%.2e ", l)
					if (i+1)%6 == 0 {
						log.log("\n     ")
					}
				}

				log.log("\nX0 = ")
				for i, x := range loc.x {
					log.log("%.2e ", x)
					if (i+1)%6 == 0 {
						log.log("\n     ")
					}
				}

				log.log("\nU  = ")
				for i, u := range ctx.bu[:spec.nv] {
					log.log("%.2e ", u)
					if (i+1)%6 == 0 {
						log.log("\n     ")
					}
				}
				log.log("\n")
			}
		}
	}
}

// printIter logs the current iteration details, including the residual norm,
// projected gradient and trust-region statistics.
func (gs *gnSolver) printIter(word string, ratio, dxn float64) {

	spec, ctx := &gs.engine.gnSpec, &gs.workspace.gnCtx

	log := &spec.logger
	if !log.enable(LogEval) {
		return
	}

	pg := gs.projGrad()
	if log.enable(LogTrace) {
		log.log("TRUST REGION %s; norm of step = %12.5e; ratio = %12.5e\n", word, dxn, ratio)
		log.log("At iterate %5d    f= %12.5e    |proj g|= %12.5e\n", ctx.iter, ctx.fnorm, pg)
		if log.enable(LogVerbose) {
			loc := gs.location
			log.log("\n X = ")
			for i := 0; i < spec.nv; i++ {
				log.log("%.2e ", loc.x[i])
				if (i+1)%6 == 0 {
					log.log("\n     ")
				}
			}

			log.log("\n G = ")
			for i := 0; i < spec.nv; i++ {
				log.log("%.2e ", ctx.grad[i])
				if (i+1)%6 == 0 {
					log.log("\n     ")
				}
			}
			log.log("\n")
		}
	} else if ctx.iter%int(log.Level) == 0 {
		log.log("At iterate %5d    f= %12.5e    |proj g|= %12.5e\n", ctx.iter, ctx.fnorm, pg)
	}

	log.out("%5d %5d  %s %9.2e %9.2e %9.2e %10.3e %10.3e\n",
		ctx.iter, ctx.eval, word, ratio, ctx.delta, dxn, pg, ctx.fnorm)
}

// printExit logs the final statistics and the stopping condition.
func (gs *gnSolver) printExit(st Status) {

	spec, ctx := &gs.engine.gnSpec, &gs.workspace.gnCtx

	log := &spec.logger
	if !log.enable(LogLast) {
		return
	}

	log.log("\n           * * *\n")
	log.log("Tit   = total number of iterations\n")
	log.log("Tnf   = total number of residual evaluations\n")
	log.log("Trej  = total number of rejected trust-region steps\n")
	log.log("Delta = final trust region radius\n")
	log.log("Projg = norm of the final projected gradient\n")
	log.log("F     = final residual norm\n")
	log.log("\n           * * *\n")
	log.log("\n   NV      Tit      Tnf   Trej     Delta      Projg          F\n")
	log.log("%5d %6d %7d %6d %9.2e %10.3e %12.5e\n",
		spec.nv, ctx.iter, ctx.eval, ctx.iter-ctx.kept, ctx.delta, gs.projGrad(), ctx.fnorm)

	var msg string
	switch st {
	case Converged:
		msg = "CONVERGENCE: NORM_OF_RESIDUAL_<=_TOLF"
	case StalledAtBound:
		msg = "STOP: PROGRESS LIMITED BY THE TRUST REGION BOUND"
	case LocalMinimum:
		msg = "CONVERGENCE: NORM_OF_PROJECTED_GRADIENT_SUFFICIENTLY_SMALL"
	case NoiseDetected:
		msg = "STOP: RESIDUAL REDUCTION DOMINATED BY NOISE"
	case SmallAbsoluteStep:
		msg = "CONVERGENCE: NORM_OF_STEP_<=_TOLD"
	case SmallRelativeStep:
		msg = "CONVERGENCE: REL_NORM_OF_STEP_<=_TOLX"
	case MaxIterationsReached:
		msg = "STOP: TOTAL NO. of ITERATIONS REACHED LIMIT"
	case Interrupted:
		msg = "STOP: SOLVE INTERRUPTED BEFORE COMPLETION"
	default:
		msg = fmt.Sprintf("ABNORMAL_TERMINATION: %v", st)
	}
	log.log("\n%s\n", msg)

	log.log("\n Total User time: %s\n", formatNs(gs.clock.elapsed()))
}

type timer struct {
	t0 time.Time
}

func (t *timer) reset() {
	t.t0 = time.Now()
}

func (t *timer) elapsed() int64 {
	return time.Since(t.t0).Nanoseconds()
}

func formatNs(nanoseconds int64) string {
	switch {
	case nanoseconds >= 1e9: // Convert to seconds
		return fmt.Sprintf("%.2f s", float64(nanoseconds)/1e9)
	case nanoseconds >= 1e6: // Convert to milliseconds
		return fmt.Sprintf("%.2f ms", float64(nanoseconds)/1e6)
	case nanoseconds >= 1e3: // Convert to microseconds
		return fmt.Sprintf("%.2f µs", float64(nanoseconds)/1e3)
	default: // Keep in nanoseconds
		return fmt.Sprintf("%.2f ns", float64(nanoseconds))
	}
}
