package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"ptvstitch/internal/models"
	"ptvstitch/pkg/config"
	"ptvstitch/pkg/smoothing"
	"ptvstitch/pkg/stitching"
	"ptvstitch/pkg/storage"
	"ptvstitch/pkg/trajectory"
	"ptvstitch/pkg/trajio"
	"ptvstitch/pkg/visualization"
)

func newStitchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stitch",
		Short: "Connect broken trajectory segments",
		RunE:  runStitch,
	}
	f := cmd.Flags()
	f.StringP("input", "i", "", "Trajectory table to stitch")
	f.StringP("output", "o", "", "Output table for stitched trajectories")
	f.Float64("ts", 0, "Maximum time separation Ts between joined segments")
	f.Float64("dm", 0, "Maximum combined position/velocity distance dm")
	f.Float64("wa", 0, "Acceleration weight wa in the velocity projection")
	f.String("selector", "", "Conflict resolution: greedy or optimal")
	f.Int("workers", 0, "Goroutines used for candidate generation")
	f.String("db", "", "SQLite database recording the run")
	f.String("plot", "", "PNG file with a projection of the result")
	f.String("plane", "", "Projection plane for --plot: xy, xz or yz")
	f.BoolP("quiet", "q", false, "Suppress progress output")
	return cmd
}

// applyStitchFlags overrides configuration values with flags set on the
// command line.
func applyStitchFlags(cfg *config.Config, f *pflag.FlagSet) {
	s := &cfg.Stitching
	if f.Changed("input") {
		s.TrajectoryFile, _ = f.GetString("input")
	}
	if f.Changed("output") {
		s.SaveName, _ = f.GetString("output")
	}
	if f.Changed("ts") {
		s.MaxTimeSeparation, _ = f.GetFloat64("ts")
	}
	if f.Changed("dm") {
		s.MaxDistance, _ = f.GetFloat64("dm")
	}
	if f.Changed("wa") {
		s.AccelerationWeight, _ = f.GetFloat64("wa")
	}
	if f.Changed("selector") {
		s.Selector, _ = f.GetString("selector")
	}
	if f.Changed("workers") {
		s.Workers, _ = f.GetInt("workers")
	}
	applyOutputFlags(cfg, f)
}

// applyOutputFlags handles the output flags; flags a command does not define
// are never reported as changed.
func applyOutputFlags(cfg *config.Config, f *pflag.FlagSet) {
	if f.Changed("db") {
		cfg.Output.Database, _ = f.GetString("db")
	}
	if f.Changed("plot") {
		cfg.Output.PlotFile, _ = f.GetString("plot")
	}
	if f.Changed("plane") {
		cfg.Output.PlotPlane, _ = f.GetString("plane")
	}
	if f.Changed("quiet") {
		quiet, _ := f.GetBool("quiet")
		cfg.Output.Verbose = !quiet
	}
}

func runStitch(cmd *cobra.Command, _ []string) error {
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	applyStitchFlags(cfg, cmd.Flags())
	if err := cfg.Validate(); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	logger := newLogger(cfg, cmd.ErrOrStderr())
	if cfg.Output.Verbose {
		printBanner(out, "TRAJECTORY STITCHING")
	}

	samples, err := trajio.ReadFile(cfg.Stitching.TrajectoryFile)
	if err != nil {
		return err
	}
	store, err := trajectory.NewStore(samples)
	if err != nil {
		return fmt.Errorf("%s: %w", cfg.Stitching.TrajectoryFile, err)
	}

	smoother, err := smoothing.NewPolySmoother(cfg.Smoothing.WindowSize, cfg.Smoothing.PolynomOrder)
	if err != nil {
		return err
	}
	params := stitching.Params{
		MaxTimeSeparation:  cfg.Stitching.MaxTimeSeparation,
		MaxDistance:        cfg.Stitching.MaxDistance,
		AccelerationWeight: cfg.Stitching.AccelerationWeight,
		Selector:           stitching.SelectorKind(cfg.Stitching.Selector),
		NumWorkers:         cfg.Stitching.Workers,
		Smoother:           smoother,
		Logger:             logger,
	}
	stitcher, err := stitching.NewStitcher(params)
	if err != nil {
		return err
	}

	startTime := time.Now()
	res, err := stitcher.Process(context.Background(), store)
	if err != nil {
		return fmt.Errorf("stitching failed: %w", err)
	}
	elapsed := time.Since(startTime)

	if cfg.Stitching.SaveName != "" {
		if err := trajio.WriteFile(cfg.Stitching.SaveName, res.Store.Samples()); err != nil {
			return err
		}
	}

	var runID string
	if cfg.Output.Database != "" {
		runID, err = saveRun(cfg, res)
		if err != nil {
			return err
		}
	}

	if cfg.Output.PlotFile != "" {
		if err := plotStore(res.Store, cfg.Output.PlotPlane, cfg.Output.PlotFile); err != nil {
			return err
		}
	}

	if cfg.Output.Verbose {
		printStitchReport(out, cfg, res.Stats, elapsed, runID)
	}
	return nil
}

func saveRun(cfg *config.Config, res *stitching.Result) (string, error) {
	db, err := storage.Open(cfg.Output.Database)
	if err != nil {
		return "", err
	}
	defer db.Close()

	run, err := storage.NewRun(cfg.Stitching.TrajectoryFile, cfg.Stitching, res.Stats)
	if err != nil {
		return "", err
	}
	if err := storage.NewRunStore(db.DB).SaveRun(run, res.Connections, res.Store.Samples()); err != nil {
		return "", err
	}
	return run.RunID, nil
}

func plotStore(store *trajectory.Store, plane, path string) error {
	p, err := visualization.NewPlotter(plane)
	if err != nil {
		return err
	}
	return p.SavePNG(store, path)
}

func printStitchReport(w io.Writer, cfg *config.Config, st stitching.Stats, elapsed time.Duration, runID string) {
	fmt.Fprintf(w, "\nStitching completed in %.2f seconds\n", elapsed.Seconds())
	if cfg.Stitching.SaveName != "" {
		fmt.Fprintf(w, "Stitched trajectories saved to: %s\n", cfg.Stitching.SaveName)
	}
	fmt.Fprintf(w, "\nSummary:\n")
	fmt.Fprintf(w, "========\n")
	fmt.Fprintf(w, "Trajectories: %d -> %d\n", st.TrajectoriesBefore, st.TrajectoriesAfter)
	fmt.Fprintf(w, "Samples per trajectory: %.1f -> %.1f\n", st.MeanLengthBefore, st.MeanLengthAfter)
	fmt.Fprintf(w, "Candidates: %d\n", st.Candidates)
	fmt.Fprintf(w, "Connections: %d (mean score %.4f)\n", st.Connections, st.MeanScore)
	fmt.Fprintf(w, "Interpolated samples: %d\n", st.Interpolated)
	if st.DifferencedTrajectories > 0 {
		fmt.Fprintf(w, "Kinematics by finite differences: %d trajectories\n", st.DifferencedTrajectories)
	}
	if runID != "" {
		fmt.Fprintf(w, "Run %s recorded in %s\n", runID, cfg.Output.Database)
	}
	if cfg.Output.PlotFile != "" {
		fmt.Fprintf(w, "Plot saved to: %s\n", cfg.Output.PlotFile)
	}
}

func newSmoothCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "smooth",
		Short: "Smooth trajectories and recompute velocity and acceleration",
		RunE:  runSmooth,
	}
	f := cmd.Flags()
	f.StringP("input", "i", "", "Trajectory table to smooth")
	f.StringP("output", "o", "", "Output table for smoothed trajectories")
	f.Int("window", 0, "Odd number of samples per local polynomial fit")
	f.Int("order", 0, "Degree of the local polynomial")
	f.Int("workers", 0, "Goroutines used for smoothing")
	f.BoolP("quiet", "q", false, "Suppress progress output")
	return cmd
}

func applySmoothFlags(cfg *config.Config, f *pflag.FlagSet) {
	s := &cfg.Smoothing
	if f.Changed("input") {
		s.TrajectoryFile, _ = f.GetString("input")
	}
	if f.Changed("output") {
		s.SaveName, _ = f.GetString("output")
	}
	if f.Changed("window") {
		s.WindowSize, _ = f.GetInt("window")
	}
	if f.Changed("order") {
		s.PolynomOrder, _ = f.GetInt("order")
	}
	if f.Changed("workers") {
		cfg.Stitching.Workers, _ = f.GetInt("workers")
	}
	applyOutputFlags(cfg, f)
}

func runSmooth(cmd *cobra.Command, _ []string) error {
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	applySmoothFlags(cfg, cmd.Flags())
	if err := cfg.Validate(); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	logger := newLogger(cfg, cmd.ErrOrStderr())
	if cfg.Output.Verbose {
		printBanner(out, "TRAJECTORY SMOOTHING")
	}

	samples, err := trajio.ReadFile(cfg.Smoothing.TrajectoryFile)
	if err != nil {
		return err
	}
	store, err := trajectory.NewStore(samples)
	if err != nil {
		return fmt.Errorf("%s: %w", cfg.Smoothing.TrajectoryFile, err)
	}

	p, err := smoothing.NewPolySmoother(cfg.Smoothing.WindowSize, cfg.Smoothing.PolynomOrder)
	if err != nil {
		return err
	}
	logger.Printf("smoothing %d trajectories (window %d, order %d)", store.Len(), p.Window(), p.Order())
	smoothed, st, err := smoothing.SmoothSet(store, p, cfg.Stitching.Workers)
	if err != nil {
		return fmt.Errorf("smoothing failed: %w", err)
	}
	logger.Printf("smoothed %d samples, %d in short trajectories, %d orphans", st.Smoothed, st.TooShort, st.Orphans)
	logger.Printf("position residual %.4f rms", st.ResidualRMS)

	if cfg.Smoothing.SaveName != "" {
		if err := trajio.WriteFile(cfg.Smoothing.SaveName, smoothed.Samples()); err != nil {
			return err
		}
		if cfg.Output.Verbose {
			fmt.Fprintf(out, "Smoothed trajectories saved to: %s\n", cfg.Smoothing.SaveName)
		}
	}
	return nil
}

func newPlotCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plot",
		Short: "Render trajectories from a table or a recorded run",
		RunE:  runPlot,
	}
	f := cmd.Flags()
	f.StringP("input", "i", "", "Trajectory table to plot")
	f.String("run", "", "Run id to load from --db instead of --input")
	f.String("db", "", "SQLite database holding recorded runs")
	f.StringP("output", "o", "trajectories.png", "Image file, or directory with --all")
	f.String("plane", "", "Projection plane: xy, xz or yz")
	f.Bool("all", false, "Write one image per plane into the output directory")
	return cmd
}

func runPlot(cmd *cobra.Command, _ []string) error {
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	f := cmd.Flags()
	applyOutputFlags(cfg, f)

	input, _ := f.GetString("input")
	runID, _ := f.GetString("run")
	output, _ := f.GetString("output")
	all, _ := f.GetBool("all")

	samples, err := loadPlotSamples(cfg, input, runID)
	if err != nil {
		return err
	}
	store, err := trajectory.NewStore(samples)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if all {
		files, err := visualization.SaveProjections(store, output, "trajectories")
		if err != nil {
			return err
		}
		for _, name := range files {
			fmt.Fprintf(w, "Plot saved to: %s\n", name)
		}
		return nil
	}

	if err := plotStore(store, cfg.Output.PlotPlane, output); err != nil {
		return err
	}
	fmt.Fprintf(w, "Plot saved to: %s\n", output)
	return nil
}

func loadPlotSamples(cfg *config.Config, input, runID string) ([]models.Sample, error) {
	if runID == "" {
		if input == "" {
			input = cfg.Stitching.SaveName
		}
		return trajio.ReadFile(input)
	}

	if cfg.Output.Database == "" {
		return nil, fmt.Errorf("--run requires --db or output.database")
	}
	db, err := storage.Open(cfg.Output.Database)
	if err != nil {
		return nil, err
	}
	defer db.Close()
	return storage.NewRunStore(db.DB).LoadSamples(runID)
}

func newRunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List stitching runs recorded in the database",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			applyOutputFlags(cfg, cmd.Flags())
			if cfg.Output.Database == "" {
				return fmt.Errorf("no database given; use --db or output.database")
			}

			db, err := storage.Open(cfg.Output.Database)
			if err != nil {
				return err
			}
			defer db.Close()

			rs := storage.NewRunStore(db.DB)
			runs, err := rs.ListRuns()
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			for _, r := range runs {
				conns, err := rs.ListConnections(r.RunID)
				if err != nil {
					return err
				}
				created := time.Unix(0, r.CreatedAt).Format(time.RFC3339)
				fmt.Fprintf(w, "%s\t%s\t%s\t%d connections\n", r.RunID, created, r.InputFile, len(conns))
			}
			return nil
		},
	}
	cmd.Flags().String("db", "", "SQLite database holding recorded runs")
	return cmd
}
