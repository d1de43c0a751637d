package cli

import (
	"github.com/spf13/cobra"

	"github.com/tutu-network/cascade/internal/daemon"
	"github.com/tutu-network/cascade/internal/domain"
)

func init() {
	criticalCmd.Flags().BoolVar(&criticalRefresh, "refresh", false, "Also store the critical-path flags on the tasks")
	rootCmd.AddCommand(criticalCmd)
}

var criticalRefresh bool

var criticalCmd = &cobra.Command{
	Use:     "critical SCOPE",
	Aliases: []string{"cpm"},
	Short:   "Show earliest/latest dates and float for every task",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := daemon.New()
		if err != nil {
			return err
		}
		defer d.Close()

		scope := domain.ScopeID(args[0])
		var sched map[domain.TaskID]domain.Schedule
		if criticalRefresh {
			sched, err = d.Service.Refresh(cmd.Context(), actorFlag, scope)
		} else {
			sched, err = d.Service.CriticalPath(cmd.Context(), scope)
		}
		if err != nil {
			return err
		}
		return printSchedules(cmd.OutOrStdout(), sched)
	},
}
