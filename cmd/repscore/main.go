package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	cfgFile    string
	jsonOutput bool
)

func main() {
	// A missing .env is fine; the environment may already be set.
	_ = godotenv.Load()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "repscore",
		Short:         "Aggregate user and organization activity into reputation scores",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")
	root.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	root.AddCommand(serveCmd())
	root.AddCommand(runCmd())
	root.AddCommand(showCmd())
	root.AddCommand(recomputeCmd())
	root.AddCommand(batchCmd())
	root.AddCommand(topCmd())
	root.AddCommand(hookCmd())
	root.AddCommand(seedCmd())

	return root
}

func serveCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(port)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "server port (default: from config)")
	return cmd
}

func runCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start daemon with scheduler and HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(port)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "server port (default: from config)")
	return cmd
}

func showCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "show <kind> <id>",
		Short: "Show an entity's activity record, refreshing it when stale",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShow(args[0], args[1], force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "recompute even when the record is fresh")
	return cmd
}

func recomputeCmd() *cobra.Command {
	var forceExternal bool

	cmd := &cobra.Command{
		Use:   "recompute <kind> <id>",
		Short: "Recompute one entity from its sources",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecompute(args[0], args[1], forceExternal)
		},
	}

	cmd.Flags().BoolVar(&forceExternal, "force-external", false, "refetch GitHub data even when cached")
	return cmd
}

func batchCmd() *cobra.Command {
	var (
		forceExternal bool
		workers       int
	)

	cmd := &cobra.Command{
		Use:   "batch [kind]",
		Short: "Recompute every entity of a kind (default: all kinds)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind := ""
			if len(args) == 1 {
				kind = args[0]
			}
			return runBatch(kind, forceExternal, workers)
		},
	}

	cmd.Flags().BoolVar(&forceExternal, "force-external", false, "refetch GitHub data even when cached")
	cmd.Flags().IntVar(&workers, "workers", 0, "worker count (default: from config)")
	return cmd
}

func topCmd() *cobra.Command {
	var (
		limit  int
		period string
	)

	cmd := &cobra.Command{
		Use:   "top <kind>",
		Short: "Show the leaderboard for a kind",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTop(args[0], limit, period)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 10, "max entities to show")
	cmd.Flags().StringVar(&period, "period", "", "only entities active within day, week, month or year")
	return cmd
}

func hookCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "hook <name>",
		Short: "Apply a write hook (event-created, review-approved, participation-registered, membership-changed)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHook(args[0], file)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "-", "JSON payload file (- for stdin)")
	return cmd
}

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed <fixture.yaml>",
		Short: "Load entities and source rows from a YAML fixture",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(args[0])
		},
	}
}
