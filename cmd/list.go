package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/metisreader/metis/internal/app"
	"github.com/metisreader/metis/internal/workflow"
)

func newListCmd() *cobra.Command {
	var state string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tracked URLs, optionally filtered by state.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter := workflow.State(state)
			if state != "" && !filter.Valid() {
				return fmt.Errorf("unknown state %q", state)
			}
			return withApp(func(a *app.App) error {
				records, err := a.Engine.List(filter)
				if err != nil {
					return err
				}
				if len(records) == 0 {
					cmd.Println("no tracked urls")
					return nil
				}
				for _, rec := range records {
					title := rec.Title
					if title == "" {
						title = "(untitled)"
					}
					cmd.Printf("%-10s %-12s %s\n    %s\n", rec.State, rec.Platform, title, rec.URL)
					if rec.FailureText != "" {
						cmd.Printf("    last failure: %s\n", rec.FailureText)
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&state, "state", "", "filter by workflow state")
	return cmd
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show counts per workflow state.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(func(a *app.App) error {
				records, err := a.Engine.List("")
				if err != nil {
					return err
				}
				counts := map[workflow.State]int{}
				failures := 0
				for _, rec := range records {
					counts[rec.State]++
					if rec.FailureText != "" {
						failures++
					}
				}
				for _, state := range []workflow.State{
					workflow.StatePending, workflow.StateExtracted, workflow.StateRead,
					workflow.StateValuable, workflow.StateArchived,
				} {
					cmd.Printf("%-10s %d\n", state, counts[state])
				}
				cmd.Printf("%-10s %d\n", "failing", failures)
				return nil
			})
		},
	}
}

func newReconcileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Rebuild the index from the documents on disk.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(func(a *app.App) error {
				report, err := a.Engine.Reconcile()
				if err != nil {
					return err
				}
				cmd.Printf("scanned %d, indexed %d\n", report.Scanned, report.Indexed)
				for _, path := range report.Quarantined {
					cmd.Printf("quarantined %s\n", path)
				}
				for _, url := range report.Orphaned {
					cmd.Printf("orphaned %s (reset to pending)\n", url)
				}
				return nil
			})
		},
	}
}
