package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tutu-network/cascade/internal/daemon"
	"github.com/tutu-network/cascade/internal/domain"
	"github.com/tutu-network/cascade/internal/infra/planfile"
)

func init() {
	exportCmd.Flags().StringVarP(&exportOut, "output", "o", "", "Write to FILE instead of stdout")
	rootCmd.AddCommand(importCmd, exportCmd)
}

var exportOut string

var importCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "Import a scope from a YAML plan file",
	Long: `Import a scope, its tasks and their predecessor descriptors from a YAML
plan file. The plan is rejected when its dependencies form a cycle. After
import the critical path is computed.`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

var exportCmd = &cobra.Command{
	Use:   "export SCOPE",
	Short: "Export a scope as a YAML plan file",
	Args:  cobra.ExactArgs(1),
	RunE:  runExport,
}

func runImport(cmd *cobra.Command, args []string) error {
	snap, err := planfile.Load(args[0])
	if err != nil {
		return err
	}

	d, err := daemon.New()
	if err != nil {
		return err
	}
	defer d.Close()

	ctx := cmd.Context()
	if err := d.DB.ImportSnapshot(ctx, actorFlag, *snap); err != nil {
		return fmt.Errorf("import %s: %w", args[0], err)
	}
	for _, wn := range snap.Warnings {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", wn)
	}

	sched, err := d.Service.Refresh(ctx, actorFlag, snap.Scope.ID)
	if err != nil {
		return err
	}
	critical := 0
	for _, s := range sched {
		if s.IsCritical {
			critical++
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Imported %s: %d tasks, %d dependencies, %d critical\n",
		snap.Scope.ID, len(snap.Tasks), len(snap.Edges), critical)
	return nil
}

func runExport(cmd *cobra.Command, args []string) error {
	d, err := daemon.New()
	if err != nil {
		return err
	}
	defer d.Close()

	snap, err := d.DB.LoadScope(cmd.Context(), domain.ScopeID(args[0]))
	if err != nil {
		return err
	}
	if exportOut == "" {
		return planfile.Write(cmd.OutOrStdout(), *snap)
	}
	if err := planfile.Save(exportOut, *snap); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Exported %s to %s\n", snap.Scope.ID, exportOut)
	return nil
}
