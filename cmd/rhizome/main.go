// Package main provides the rhizome CLI entry point.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "rhizome",
		Short: "rhizome - grow branching character graphs from text",
		Long: `rhizome grows a branching graph of characters on a 2D canvas.

Each run reads a text and places its characters one generation at a time,
steered by spacing, a semantic force field and a reading direction. Runs and
their snapshots are stored in BadgerDB and can be inspected later.`,
		SilenceUsage: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "YAML config file (RHIZOME_* variables override it)")
	flags.String("data-dir", "", "Snapshot store directory")
	flags.String("passphrase", "", "Seal snapshots with this passphrase")
	flags.String("log-level", "", "Log level (debug, info, warn, error)")
	flags.Bool("json", false, "Print results as JSON")

	// Version command
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "rhizome v%s (%s)\n", version, commit)
		},
	})

	// Grow command
	growCmd := &cobra.Command{
		Use:   "grow [text]",
		Short: "Grow a graph from text (reads stdin when no text is given)",
		RunE:  runGrow,
	}
	addGrowFlags(growCmd)
	growCmd.Flags().String("metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9090")
	rootCmd.AddCommand(growCmd)

	// Batch command
	batchCmd := &cobra.Command{
		Use:   "batch [file]",
		Short: "Grow one graph per non-empty line, concurrently",
		Args:  cobra.ExactArgs(1),
		RunE:  runBatch,
	}
	addGrowFlags(batchCmd)
	batchCmd.Flags().Int("parallel", 0, "Maximum concurrent runs (0 = number of CPUs)")
	rootCmd.AddCommand(batchCmd)

	// Runs command
	rootCmd.AddCommand(&cobra.Command{
		Use:   "runs",
		Short: "List stored runs",
		RunE:  runList,
	})

	// Show command
	rootCmd.AddCommand(&cobra.Command{
		Use:   "show [run-id]",
		Short: "Report on the latest snapshot of a run",
		Long: `Restore the latest snapshot of a run and report on it.

The engine is rebuilt with the configuration the run was grown with. Runs
stored before that configuration was recorded use the current one.`,
		Args: cobra.ExactArgs(1),
		RunE: runShow,
	})

	// Delete command
	rootCmd.AddCommand(&cobra.Command{
		Use:   "delete [run-id]",
		Short: "Delete a run and its snapshots",
		Args:  cobra.ExactArgs(1),
		RunE:  runDelete,
	})

	return rootCmd
}

func addGrowFlags(cmd *cobra.Command) {
	cmd.Flags().Int("ticks", 200, "Maximum ticks per run (0 = until the frontier empties)")
	cmd.Flags().Float64("fps", 0, "Tick rate cap (0 = unthrottled)")
	cmd.Flags().Int64("seed", 0, "Random seed")
	cmd.Flags().Int("seeds", 0, "Number of seed nodes (0 = config value)")
	cmd.Flags().Int("save-every", -1, "Snapshot every N ticks (0 = only at the end, -1 = config value)")
	cmd.Flags().Bool("in-memory", false, "Do not persist runs")
}
