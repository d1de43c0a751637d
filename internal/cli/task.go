package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tutu-network/cascade/internal/app/schedule"
	"github.com/tutu-network/cascade/internal/daemon"
	"github.com/tutu-network/cascade/internal/domain"
)

func init() {
	taskAddCmd.Flags().StringVar(&taskName, "name", "", "Display name")
	taskAddCmd.Flags().StringVar(&taskStart, "start", "", "Planned start (YYYY-MM-DD, required)")
	taskAddCmd.Flags().IntVar(&taskDuration, "duration", 0, "Duration in calendar days")
	taskAddCmd.Flags().BoolVar(&taskPinned, "pinned", false, "Shield the task from automatic propagation")

	taskMoveCmd.Flags().StringVar(&moveStart, "start", "", "New start (YYYY-MM-DD)")
	taskMoveCmd.Flags().StringVar(&moveEnd, "end", "", "New end (YYYY-MM-DD)")
	taskMoveCmd.Flags().IntVar(&moveDuration, "duration", -1, "New duration in days")

	taskCmd.AddCommand(taskAddCmd, taskListCmd, taskMoveCmd)
	rootCmd.AddCommand(taskCmd)
}

var (
	taskName     string
	taskStart    string
	taskDuration int
	taskPinned   bool

	moveStart    string
	moveEnd      string
	moveDuration int
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Manage tasks within a scope",
}

var taskAddCmd = &cobra.Command{
	Use:   "add SCOPE TASK",
	Short: "Add a task to a scope, or update an existing one",
	Args:  cobra.ExactArgs(2),
	RunE:  runTaskAdd,
}

var taskListCmd = &cobra.Command{
	Use:     "list SCOPE",
	Aliases: []string{"ls"},
	Short:   "List a scope's tasks",
	Args:    cobra.ExactArgs(1),
	RunE:    runTaskList,
}

var taskMoveCmd = &cobra.Command{
	Use:   "move SCOPE TASK",
	Short: "Change a task's dates and cascade the change to its dependents",
	Long: `Change a task's dates and cascade the change to its dependents.

  --start only           shift the task, keeping its duration
  --end only             keep the start, re-derive the duration
  --end and --duration   back-schedule the start`,
	Args: cobra.ExactArgs(2),
	RunE: runTaskMove,
}

func runTaskAdd(cmd *cobra.Command, args []string) error {
	start, err := optionalDate("start", taskStart)
	if err != nil {
		return err
	}
	if start == nil {
		return fmt.Errorf("--start is required")
	}

	d, err := daemon.New()
	if err != nil {
		return err
	}
	defer d.Close()

	dur := taskDuration
	res, err := d.Service.PutTask(cmd.Context(), actorFlag, domain.ScopeID(args[0]), schedule.TaskUpdate{
		TaskID:   domain.TaskID(args[1]),
		Name:     taskName,
		Pinned:   taskPinned,
		Start:    start,
		Duration: &dur,
	})
	if err != nil {
		return err
	}
	verb := "Updated"
	if res.Created {
		verb = "Added"
	}
	t := res.Task
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s: %s..%s\n", verb, t.ID, day(t.Start), day(t.End))
	if !res.Created && res.Outcome.Origin != nil {
		printOutcome(cmd.OutOrStdout(), res.Outcome)
	}
	return nil
}

func runTaskList(cmd *cobra.Command, args []string) error {
	d, err := daemon.New()
	if err != nil {
		return err
	}
	defer d.Close()

	tasks, err := d.DB.ListTasks(cmd.Context(), domain.ScopeID(args[0]))
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSTART\tEND\tDAYS\tSTATUS\tFLAGS")
	for _, t := range tasks {
		flags := ""
		if t.IsCriticalPath {
			flags += "critical "
		}
		if t.IsManuallyPositioned {
			flags += "pinned"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			t.ID, t.Name, day(t.Start), day(t.End), t.DurationDays, t.Status, flags)
	}
	return w.Flush()
}

func runTaskMove(cmd *cobra.Command, args []string) error {
	ch := schedule.DateChange{TaskID: domain.TaskID(args[1])}
	var err error
	if ch.Start, err = optionalDate("start", moveStart); err != nil {
		return err
	}
	if ch.End, err = optionalDate("end", moveEnd); err != nil {
		return err
	}
	if moveDuration >= 0 {
		dur := moveDuration
		ch.Duration = &dur
	}
	if ch.Start == nil && ch.End == nil && ch.Duration == nil {
		return fmt.Errorf("nothing to change: pass --start, --end or --duration")
	}

	d, err := daemon.New()
	if err != nil {
		return err
	}
	defer d.Close()

	out, err := d.Service.TaskDatesChanged(cmd.Context(), actorFlag, domain.ScopeID(args[0]), ch)
	if err != nil {
		return err
	}
	if out.Origin == nil {
		fmt.Fprintln(cmd.OutOrStdout(), "No change.")
		return nil
	}
	printOutcome(cmd.OutOrStdout(), out)
	return nil
}
