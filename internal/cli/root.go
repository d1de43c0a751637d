// Package cli implements the cascade command-line interface using Cobra.
// Commands open the local database directly; `serve` runs the HTTP API.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "cascade",
	Short: "Task dependency graphs with schedule propagation",
	Long: `cascade keeps task schedules consistent with their dependencies.

Add typed dependencies (FS, SS, FF, SF with lag) between tasks, move a
task, and every dependent task shifts with it. Cycles are rejected and
the critical path is recomputed after every change.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var actorFlag string

func init() {
	rootCmd.PersistentFlags().StringVar(&actorFlag, "actor", defaultActor(), "Name recorded in the audit log")
}

// Execute runs the root command. Called from main.go.
func Execute(version string) {
	rootCmd.Version = version

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func defaultActor() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "cli"
}
