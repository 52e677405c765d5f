// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/curioloop/dqed/dqed"
	"github.com/curioloop/dqed/internal/config"
	"github.com/curioloop/dqed/internal/export"
	"github.com/curioloop/dqed/internal/model"
	"github.com/curioloop/dqed/internal/store"
	"github.com/curioloop/dqed/internal/viz"
	"github.com/curioloop/dqed/numdiff"
)

var (
	dataDir    string
	configFile string
	startFlag  []float64
	lowerFlag  []float64
	upperFlag  []float64
	ftol       float64
	dtol       float64
	xtol       float64
	sntol      float64
	maxIter    int
	timeLimit  float64
	verbose    bool
	trace      bool
	showChart  bool
	archive    bool
	// Derivative check
	method   string
	checkTol float64
	// Benchmark
	benchRuns int
	spread    float64
	seed      int64
	// Plot output
	outFile string
	// Live view pacing
	delay time.Duration
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "dqed",
		Short: "bounded constrained least squares lab",
	}

	rootCmd.PersistentFlags().StringVar(&dataDir, "data", config.DefaultStoreDir, "run archive directory")

	solveCmd := &cobra.Command{
		Use:   "solve [model]",
		Short: "fit a model",
		Args:  cobra.MaximumNArgs(1),
		RunE:  solveModel,
	}
	solveCmd.Flags().StringVar(&configFile, "config", "", "config file path (yaml)")
	solveCmd.Flags().Float64SliceVar(&startFlag, "start", nil, "initial guess, comma separated")
	solveCmd.Flags().Float64SliceVar(&lowerFlag, "lower", nil, "lower bounds, -inf for an open side")
	solveCmd.Flags().Float64SliceVar(&upperFlag, "upper", nil, "upper bounds, inf for an open side")
	solveCmd.Flags().Float64Var(&ftol, "ftol", config.DefaultTolerance, "residual norm tolerance")
	solveCmd.Flags().Float64Var(&dtol, "dtol", config.DefaultTolerance, "absolute step tolerance")
	solveCmd.Flags().Float64Var(&xtol, "xtol", config.DefaultTolerance, "relative step tolerance")
	solveCmd.Flags().Float64Var(&sntol, "sntol", config.DefaultTolerance, "noise detection tolerance")
	solveCmd.Flags().IntVar(&maxIter, "maxiter", config.DefaultMaxIter, "iteration cap")
	solveCmd.Flags().Float64Var(&timeLimit, "time-limit", 0, "wall clock budget in seconds (0 = none)")
	solveCmd.Flags().BoolVar(&verbose, "verbose", false, "per-iteration progress")
	solveCmd.Flags().BoolVar(&trace, "trace", false, "full iteration trace with vectors")
	solveCmd.Flags().BoolVar(&showChart, "chart", false, "terminal convergence chart")
	solveCmd.Flags().BoolVar(&archive, "save", false, "archive the run")

	checkCmd := &cobra.Command{
		Use:   "check [model]",
		Short: "verify analytic derivatives against finite differences",
		Args:  cobra.ExactArgs(1),
		RunE:  checkModel,
	}
	checkCmd.Flags().Float64SliceVar(&startFlag, "start", nil, "check point, defaults to the model start")
	checkCmd.Flags().StringVar(&method, "method", "central", "difference stencil (forward|central)")
	checkCmd.Flags().Float64Var(&checkTol, "tol", 1e-6, "largest acceptable mismatch")

	benchCmd := &cobra.Command{
		Use:   "bench [model]",
		Short: "solve from perturbed starts",
		Args:  cobra.ExactArgs(1),
		RunE:  benchModel,
	}
	benchCmd.Flags().IntVar(&benchRuns, "runs", 10, "number of starts")
	benchCmd.Flags().Float64Var(&spread, "spread", 0.5, "perturbation scale")
	benchCmd.Flags().Int64Var(&seed, "seed", 42, "random seed")
	benchCmd.Flags().IntVar(&maxIter, "maxiter", config.DefaultMaxIter, "iteration cap")

	watchCmd := &cobra.Command{
		Use:   "watch [config]",
		Short: "re-fit whenever the config file changes",
		Args:  cobra.ExactArgs(1),
		RunE:  watchConfig,
	}
	watchCmd.Flags().BoolVar(&showChart, "chart", false, "terminal convergence chart")
	watchCmd.Flags().BoolVar(&archive, "save", false, "archive every run")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list archived runs",
		RunE:  listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "render an archived run to PNG",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}
	plotCmd.Flags().StringVar(&outFile, "out", "", "output file, defaults to <run_id>.png")

	liveCmd := &cobra.Command{
		Use:   "live [model]",
		Short: "fit with a live terminal view",
		Args:  cobra.ExactArgs(1),
		RunE:  runLive,
	}
	liveCmd.Flags().IntVar(&maxIter, "maxiter", config.DefaultMaxIter, "iteration cap")
	liveCmd.Flags().DurationVar(&delay, "delay", 100*time.Millisecond, "pause between evaluations so the view is watchable")

	rootCmd.AddCommand(solveCmd, checkCmd, benchCmd, watchCmd, listCmd, plotCmd, liveCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// resolveProblem merges the defaults, the config file and the flags that
// were set on the command line, in that order, then resolves the model.
func resolveProblem(cmd *cobra.Command, args []string) (*model.Model, *config.Config, error) {
	cfg := config.DefaultConfig()
	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if len(args) > 0 {
		cfg.Model = args[0]
	}
	if flags.Changed("start") {
		cfg.Start = startFlag
	}
	if flags.Changed("ftol") {
		cfg.Stop.FTol = ftol
	}
	if flags.Changed("dtol") {
		cfg.Stop.DTol = dtol
	}
	if flags.Changed("xtol") {
		cfg.Stop.XTol = xtol
	}
	if flags.Changed("sntol") {
		cfg.Stop.SNTol = sntol
	}
	if flags.Changed("maxiter") {
		cfg.Stop.MaxIter = maxIter
	}
	if flags.Changed("time-limit") {
		cfg.TimeLimit = timeLimit
	}
	if flags.Changed("verbose") {
		cfg.Verbose = verbose
	}
	if f := cmd.Flag("data"); f != nil && f.Changed {
		cfg.StoreDir = dataDir
	}

	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	m, err := model.Get(cfg.Model)
	if err != nil {
		return nil, nil, err
	}
	return m, cfg, nil
}

// flagBounds returns the box from the command line when either side was
// given, with infinite sides reading as absent, and the config box otherwise.
func flagBounds(cmd *cobra.Command, cfg *config.Config) []dqed.Bound {
	if !cmd.Flags().Changed("lower") && !cmd.Flags().Changed("upper") {
		return cfg.BoundList()
	}
	bounds := make([]dqed.Bound, max(len(lowerFlag), len(upperFlag)))
	for i := range bounds {
		lo, up := math.Inf(-1), math.Inf(1)
		if i < len(lowerFlag) {
			lo = lowerFlag[i]
		}
		if i < len(upperFlag) {
			up = upperFlag[i]
		}
		bounds[i] = dqed.Bound{Lower: lo, Upper: up}
	}
	return bounds
}

func newLogger(cfg *config.Config) *dqed.Logger {
	switch {
	case trace:
		return &dqed.Logger{Level: dqed.LogVerbose, Msg: os.Stdout, Out: os.Stderr}
	case cfg.Verbose:
		return &dqed.Logger{Level: dqed.LogEval, Msg: os.Stdout, Out: os.Stderr}
	}
	return nil
}

func solveModel(cmd *cobra.Command, args []string) error {
	m, cfg, err := resolveProblem(cmd, args)
	if err != nil {
		return err
	}

	x0 := slices.Clone(m.Start)
	if len(cfg.Start) > 0 {
		x0 = slices.Clone(cfg.Start)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	return fitAndReport(ctx, m, cfg, flagBounds(cmd, cfg), x0)
}

func fitAndReport(ctx context.Context, m *model.Model, cfg *config.Config, bounds []dqed.Bound, x0 []float64) error {
	p := m.Problem(cfg.Termination())
	if bounds != nil {
		p.Bounds = bounds
	}

	var history []float64
	p.Residual = m.Record(func(eval int, fnorm float64, x []float64) {
		history = append(history, fnorm)
	})

	s, err := p.New(newLogger(cfg))
	if err != nil {
		return err
	}

	fmt.Printf("fitting %s from %v\n", m.Name, x0)
	begin := time.Now()
	r, err := s.FitContext(ctx, x0, nil)
	if err != nil {
		return err
	}
	elapsed := time.Since(begin)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STATUS\tF\tITER\tEVAL\tTIME")
	fmt.Fprintf(w, "%v\t%.6e\t%d\t%d\t%v\n",
		r.Status, r.F, r.NumIter, r.NumEval, elapsed.Round(time.Microsecond))
	w.Flush()

	fmt.Printf("\nsolution: %.6f\n", r.X)
	if len(r.G) > 0 {
		fmt.Printf("constraints: %.6f\n", r.G)
	}
	if m.Solution != nil {
		fmt.Printf("reference: %.6f\n", m.Solution)
	}

	if showChart && len(history) > 1 {
		fmt.Println()
		fmt.Println(viz.Convergence(history, 80, 10))
	}

	if archive {
		st := store.New(cfg.StoreDir)
		if err := st.Init(); err != nil {
			return err
		}
		runID, err := st.Save(&store.Run{
			Model:       m.Name,
			Start:       x0,
			Solution:    r.X,
			Constraints: r.G,
			Residual:    r.F,
			Status:      r.Status,
			Iterations:  r.NumIter,
			Evaluations: r.NumEval,
			Elapsed:     elapsed,
			History:     history,
		})
		if err != nil {
			return err
		}
		fmt.Printf("\nrun id: %s\n", runID)
	}

	if r.Status.Failed() {
		return fmt.Errorf("fit failed: %v", r.Status)
	}
	return nil
}

func checkModel(cmd *cobra.Command, args []string) error {
	m, err := model.Get(args[0])
	if err != nil {
		return err
	}

	var md numdiff.Method
	switch method {
	case "forward":
		md = numdiff.Forward
	case "central":
		md = numdiff.Central
	default:
		return fmt.Errorf("unknown method %q (forward|central)", method)
	}

	x0 := slices.Clone(m.Start)
	if cmd.Flags().Changed("start") {
		x0 = slices.Clone(startFlag)
	}

	cs := numdiff.CheckSpec{
		Equations:   m.Equations,
		Variables:   m.Variables,
		Constraints: m.Constraints,
		Residual:    m.Residual,
		Bounds:      m.Bounds,
		Method:      md,
	}
	rep, err := cs.Check(x0)
	if err != nil {
		return err
	}

	fmt.Printf("checking %s derivatives at %v (%s)\n\n", m.Name, x0, method)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "COL\tMAX ERR")
	for j, e := range rep.Cols {
		fmt.Fprintf(w, "x[%d]\t%.3e\n", j, e)
	}
	w.Flush()

	fmt.Printf("\nworst: %.3e at row %d col %d\n", rep.Err, rep.Row, rep.Col)
	if rep.Err > checkTol {
		return fmt.Errorf("derivative mismatch above %g", checkTol)
	}
	fmt.Println("derivatives look consistent")
	return nil
}

func benchModel(cmd *cobra.Command, args []string) error {
	m, err := model.Get(args[0])
	if err != nil {
		return err
	}
	if benchRuns < 1 {
		return fmt.Errorf("need at least one run")
	}

	s, err := m.Problem(dqed.Termination{MaxIterations: maxIter}).New(nil)
	if err != nil {
		return err
	}
	ws := s.Init()

	rng := rand.New(rand.NewSource(seed))

	fmt.Printf("benchmarking %s (%d starts, spread %.2f)\n\n", m.Name, benchRuns, spread)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RUN\tSTATUS\tF\tITER\tEVAL\tTIME")

	ok, totIter, totEval := 0, 0, 0
	best := math.Inf(1)
	for i := 0; i < benchRuns; i++ {
		x0 := perturbStart(rng, m)
		begin := time.Now()
		r, err := s.Fit(x0, ws)
		if err != nil {
			return err
		}
		elapsed := time.Since(begin)

		if r.OK {
			ok++
		}
		totIter += r.NumIter
		totEval += r.NumEval
		best = math.Min(best, r.F)

		fmt.Fprintf(w, "%d\t%v\t%.3e\t%d\t%d\t%v\n",
			i+1, r.Status, r.F, r.NumIter, r.NumEval, elapsed.Round(time.Microsecond))
	}
	w.Flush()

	n := float64(benchRuns)
	fmt.Printf("\nok: %d/%d  best f: %.3e  mean iter: %.1f  mean eval: %.1f\n",
		ok, benchRuns, best, float64(totIter)/n, float64(totEval)/n)
	return nil
}

// perturbStart draws a start around the model default, clipped into the
// variable box so the solver begins inside it.
func perturbStart(rng *rand.Rand, m *model.Model) []float64 {
	x0 := slices.Clone(m.Start)
	for i := range x0 {
		x0[i] += spread * (1 + math.Abs(x0[i])) * (2*rng.Float64() - 1)
		if i < len(m.Bounds) {
			b := m.Bounds[i]
			if !math.IsNaN(b.Lower) && x0[i] < b.Lower {
				x0[i] = b.Lower
			}
			if !math.IsNaN(b.Upper) && x0[i] > b.Upper {
				x0[i] = b.Upper
			}
		}
	}
	return x0
}

func watchConfig(cmd *cobra.Command, args []string) error {
	path := args[0]

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// Watch the directory so editors that replace the file are still seen.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return err
	}

	run := func() {
		if err := solveOnce(ctx, path); err != nil {
			fmt.Fprintf(os.Stderr, "fit failed: %v\n", err)
		}
	}

	fmt.Printf("watching %s (ctrl-c to stop)\n", path)
	run()

	target := filepath.Clean(path)
	var debounce <-chan time.Time
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			debounce = time.After(200 * time.Millisecond)
		case <-debounce:
			debounce = nil
			fmt.Printf("\n%s changed\n", path)
			run()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintf(os.Stderr, "watch error: %v\n", err)
		case <-ctx.Done():
			fmt.Println("\nstopped")
			return nil
		}
	}
}

func solveOnce(ctx context.Context, path string) error {
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	m, err := model.Get(cfg.Model)
	if err != nil {
		return err
	}
	x0 := slices.Clone(m.Start)
	if len(cfg.Start) > 0 {
		x0 = slices.Clone(cfg.Start)
	}
	return fitAndReport(ctx, m, cfg, cfg.BoundList(), x0)
}

func listRuns(cmd *cobra.Command, args []string) error {
	st := store.New(dataDir)
	runs, err := st.List()
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tMODEL\tCREATED\tSTATUS\tF\tITER\tEVAL")
	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.3e\t%d\t%d\n",
			run.ID,
			run.Model,
			run.Created.Format("2006-01-02 15:04:05"),
			run.Status,
			run.Residual,
			run.Iterations,
			run.Evaluations,
		)
	}
	return w.Flush()
}

func plotRun(cmd *cobra.Command, args []string) error {
	runID := args[0]

	st := store.New(dataDir)
	meta, data, err := st.LoadRun(runID)
	if err != nil {
		return err
	}

	out := outFile
	if out == "" {
		out = runID + ".png"
	}

	if err := export.Convergence(meta.Model, data.History, out); err != nil {
		return err
	}
	fmt.Printf("wrote %s\n", out)

	// Curve models additionally get the data overlaid with the fit.
	m, err := model.Get(meta.Model)
	if err != nil || m.Curve == nil || len(m.Data) == 0 || len(data.Solution) != m.Variables {
		return nil
	}

	ts := make([]float64, len(m.Data))
	ys := make([]float64, len(m.Data))
	for i, pt := range m.Data {
		ts[i], ys[i] = pt.T, pt.Y
	}

	fitOut := strings.TrimSuffix(out, ".png") + "_fit.png"
	if err := export.Fit(meta.Model, ts, ys, m.Curve(data.Solution), fitOut); err != nil {
		return err
	}
	fmt.Printf("wrote %s\n", fitOut)
	return nil
}

func runLive(cmd *cobra.Command, args []string) error {
	m, err := model.Get(args[0])
	if err != nil {
		return err
	}

	snaps := make(chan viz.Snap, 256)
	done := make(chan viz.Done, 1)

	p := m.Problem(dqed.Termination{MaxIterations: maxIter})
	p.Residual = m.Record(func(eval int, fnorm float64, x []float64) {
		select {
		case snaps <- viz.Snap{Eval: eval, Residual: fnorm, X: x}:
		default:
		}
		time.Sleep(delay)
	})

	s, err := p.New(nil)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	go func() {
		begin := time.Now()
		r, err := s.FitContext(ctx, slices.Clone(m.Start), nil)
		done <- viz.Done{Result: r, Err: err, Elapsed: time.Since(begin)}
	}()

	prog := tea.NewProgram(viz.NewModel(m.Name, snaps, done))
	_, err = prog.Run()
	return err
}
