package main

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"ptvstitch/pkg/config"
)

var version = "0.1.0-dev"

func main() {
	// A missing .env is fine; it only supplies PTVSTITCH_CONFIG.
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		log.Fatalf("ptvstitch: %v", err)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "ptvstitch",
		Short: "Reconnect broken particle trajectories",
		Long: `ptvstitch joins trajectory segments that a particle tracker split
when a particle was lost for a few frames. Segments are matched in
position-velocity space, gaps are filled by cubic interpolation and the
kinematics of joined trajectories are recomputed.

The configuration file is taken from --config, then $PTVSTITCH_CONFIG
(which may be set in a .env file), then ./ptvstitch.yaml.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().String("config", "", "YAML configuration file")

	rootCmd.AddCommand(
		newStitchCmd(),
		newSmoothCmd(),
		newPlotCmd(),
		newRunsCmd(),
		newInitConfigCmd(),
	)
	return rootCmd
}

// loadConfig reads the configuration named by --config or the environment.
func loadConfig(cmd *cobra.Command) (*config.Config, string, error) {
	explicit, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, "", err
	}
	path := config.ResolvePath(explicit)
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, path, err
	}
	return cfg, path, nil
}

// newLogger returns the progress logger for the run.
func newLogger(cfg *config.Config, w io.Writer) *log.Logger {
	if !cfg.Output.Verbose {
		return log.New(io.Discard, "", 0)
	}
	return log.New(w, "", log.LstdFlags)
}

func printBanner(w io.Writer, title string) {
	fmt.Fprintln(w, "================================")
	fmt.Fprintln(w, title)
	fmt.Fprintln(w, "Trajectory stitching after Xu (2008)")
	fmt.Fprintln(w, "================================")
}

func newInitConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init-config [path]",
		Short: "Write a configuration file with default values",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			explicit, _ := cmd.Flags().GetString("config")
			if len(args) == 1 {
				explicit = args[0]
			}
			path := config.ResolvePath(explicit)
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := config.CreateDefaultConfigFile(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Default configuration written to: %s\n", path)
			return nil
		},
	}
}
