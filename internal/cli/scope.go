package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/tutu-network/cascade/internal/daemon"
	"github.com/tutu-network/cascade/internal/domain"
)

func init() {
	scopeCreateCmd.Flags().StringVar(&scopeName, "name", "", "Display name")
	scopeCreateCmd.Flags().StringVar(&scopeKind, "kind", string(domain.ScopeProject), "project or template")
	scopeCreateCmd.Flags().StringVar(&scopeStart, "start", "", "Project start date (YYYY-MM-DD)")
	scopeCreateCmd.Flags().StringVar(&scopeEnd, "end", "", "Project end date (YYYY-MM-DD)")
	scopeLogCmd.Flags().IntVarP(&scopeLogLimit, "limit", "n", 20, "Number of entries to show")

	scopeCmd.AddCommand(scopeCreateCmd, scopeListCmd, scopeLogCmd)
	rootCmd.AddCommand(scopeCmd)
}

var (
	scopeName     string
	scopeKind     string
	scopeStart    string
	scopeEnd      string
	scopeLogLimit int
)

var scopeCmd = &cobra.Command{
	Use:   "scope",
	Short: "Manage scheduling scopes (projects and templates)",
}

var scopeCreateCmd = &cobra.Command{
	Use:   "create [ID]",
	Short: "Create a scope; a random id is used when none is given",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runScopeCreate,
}

var scopeListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List scopes",
	RunE:    runScopeList,
}

var scopeLogCmd = &cobra.Command{
	Use:   "log SCOPE",
	Short: "Show the audit log of a scope, newest first",
	Args:  cobra.ExactArgs(1),
	RunE:  runScopeLog,
}

func runScopeCreate(cmd *cobra.Command, args []string) error {
	sc := domain.Scope{Name: scopeName, Kind: domain.ScopeKind(scopeKind)}
	if len(args) == 1 {
		sc.ID = domain.ScopeID(args[0])
	} else {
		sc.ID = domain.ScopeID(uuid.NewString())
	}
	if sc.Kind != domain.ScopeProject && sc.Kind != domain.ScopeTemplate {
		return fmt.Errorf("--kind: want project or template, got %q", scopeKind)
	}
	var err error
	if sc.Start, err = optionalDate("start", scopeStart); err != nil {
		return err
	}
	if sc.End, err = optionalDate("end", scopeEnd); err != nil {
		return err
	}

	d, err := daemon.New()
	if err != nil {
		return err
	}
	defer d.Close()

	if err := d.DB.CreateScope(cmd.Context(), sc); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created %s scope %s\n", sc.Kind, sc.ID)
	return nil
}

func runScopeList(cmd *cobra.Command, args []string) error {
	d, err := daemon.New()
	if err != nil {
		return err
	}
	defer d.Close()

	scopes, err := d.DB.ListScopes(cmd.Context())
	if err != nil {
		return err
	}
	if len(scopes) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No scopes yet. Run 'cascade scope create' or 'cascade import <plan.yaml>'.")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tKIND\tSTART\tCREATED")
	for _, s := range scopes {
		start := "-"
		if s.Start != nil {
			start = day(*s.Start)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", s.ID, s.Name, s.Kind, start, s.CreatedAt.Format("2006-01-02 15:04"))
	}
	return w.Flush()
}

func runScopeLog(cmd *cobra.Command, args []string) error {
	d, err := daemon.New()
	if err != nil {
		return err
	}
	defer d.Close()

	scope := domain.ScopeID(args[0])
	if _, err := d.DB.GetScope(cmd.Context(), scope); err != nil {
		return err
	}
	entries, err := d.DB.AuditLog(cmd.Context(), scope, scopeLogLimit)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "WHEN\tACTOR\tKIND\tTASK\tDETAIL")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			e.CreatedAt.Format("2006-01-02 15:04:05"), e.Actor, e.Kind, e.TaskID, e.Detail)
	}
	return w.Flush()
}
