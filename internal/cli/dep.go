package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tutu-network/cascade/internal/app/codec"
	"github.com/tutu-network/cascade/internal/daemon"
	"github.com/tutu-network/cascade/internal/domain"
)

func init() {
	depCmd.AddCommand(depAddCmd, depRemoveCmd, depListCmd)
	rootCmd.AddCommand(depCmd)
}

var depCmd = &cobra.Command{
	Use:     "dep",
	Aliases: []string{"dependency"},
	Short:   "Manage dependencies between tasks",
}

var depAddCmd = &cobra.Command{
	Use:   "add SCOPE SUCCESSOR DESCRIPTOR",
	Short: "Add a dependency, e.g. 'cascade dep add house B AFS+2'",
	Long: `Add a dependency to SUCCESSOR. DESCRIPTOR names the predecessor in
compact form: "A" (finish-to-start), "AFS+2", "ASS", "AFF-1", "ASF".

Dependents of the predecessor shift immediately. A dependency that would
create a cycle is rejected and nothing changes.`,
	Args: cobra.ExactArgs(3),
	RunE: runDepAdd,
}

var depRemoveCmd = &cobra.Command{
	Use:     "rm SCOPE PREDECESSOR SUCCESSOR",
	Aliases: []string{"remove"},
	Short:   "Remove a dependency",
	Args:    cobra.ExactArgs(3),
	RunE:    runDepRemove,
}

var depListCmd = &cobra.Command{
	Use:     "list SCOPE",
	Aliases: []string{"ls"},
	Short:   "List a scope's dependencies",
	Args:    cobra.ExactArgs(1),
	RunE:    runDepList,
}

func runDepAdd(cmd *cobra.Command, args []string) error {
	desc, err := codec.DecodeString(args[2])
	if err != nil {
		return err
	}
	edge := desc.EdgeAsWritten(domain.TaskID(args[1]))

	d, err := daemon.New()
	if err != nil {
		return err
	}
	defer d.Close()

	res, err := d.Service.AddDependency(cmd.Context(), actorFlag, domain.ScopeID(args[0]), edge)
	if err != nil {
		return err
	}
	for _, wn := range res.Warnings {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", wn)
	}
	if !res.Accepted {
		return fmt.Errorf("dependency %s -> %s rejected: %s", edge.PredecessorID, edge.SuccessorID, res.Error)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Added %s -> %s (%s)\n", edge.PredecessorID, edge.SuccessorID, codec.Encode(edge))
	printOutcome(cmd.OutOrStdout(), res.Outcome)
	return nil
}

func runDepRemove(cmd *cobra.Command, args []string) error {
	d, err := daemon.New()
	if err != nil {
		return err
	}
	defer d.Close()

	pred, succ := domain.TaskID(args[1]), domain.TaskID(args[2])
	if _, err := d.Service.RemoveDependency(cmd.Context(), actorFlag, domain.ScopeID(args[0]), pred, succ); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Removed %s -> %s\n", pred, succ)
	return nil
}

func runDepList(cmd *cobra.Command, args []string) error {
	d, err := daemon.New()
	if err != nil {
		return err
	}
	defer d.Close()

	snap, err := d.DB.LoadScope(cmd.Context(), domain.ScopeID(args[0]))
	if err != nil {
		return err
	}
	names := make(map[domain.TaskID]string, len(snap.Tasks))
	for _, t := range snap.Tasks {
		names[t.ID] = t.Name
	}
	lookup := codec.MapLookup(names)

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SUCCESSOR\tDESCRIPTOR\tDEPENDS ON")
	for _, e := range snap.Edges {
		fmt.Fprintf(w, "%s\t%s\t%s\n", e.SuccessorID, codec.Encode(e), codec.Format(e, lookup))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	for _, wn := range snap.Warnings {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", wn)
	}
	return nil
}
