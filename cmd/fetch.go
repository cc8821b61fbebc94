package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/metisreader/metis/internal/app"
	"github.com/metisreader/metis/internal/engine"
)

func newFetchCmd() *cobra.Command {
	var noSync bool

	cmd := &cobra.Command{
		Use:   "fetch [url...]",
		Short: "Submit URLs and fetch them immediately.",
		Long: `fetch registers the given URLs (plus any pending inbox entries) and
runs the ingestion pipeline for them. With --no-sync the URLs are only
registered for the next sync pass.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(a *app.App) error {
				for _, raw := range args {
					rec, err := a.Engine.Submit(raw)
					if err != nil {
						return fmt.Errorf("submit %s: %w", raw, err)
					}
					cmd.Printf("tracked %s [%s]\n", rec.URL, rec.State)
				}
				accepted, err := a.Engine.IngestInbox(cmd.Context())
				if err != nil {
					return err
				}
				for _, url := range accepted {
					cmd.Printf("tracked %s [from inbox]\n", url)
				}
				if noSync {
					return nil
				}

				results, err := a.Engine.Sync(cmd.Context())
				if err != nil {
					return err
				}
				printResults(cmd, results)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&noSync, "no-sync", false, "register only, do not fetch now")
	return cmd
}

func newSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Fetch every pending URL.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(func(a *app.App) error {
				if _, err := a.Engine.IngestInbox(cmd.Context()); err != nil {
					return err
				}
				results, err := a.Engine.Sync(cmd.Context())
				if err != nil {
					return err
				}
				if len(results) == 0 {
					cmd.Println("nothing pending")
					return nil
				}
				printResults(cmd, results)
				return nil
			})
		},
	}
}

func printResults(cmd *cobra.Command, results []engine.SyncResult) {
	for _, res := range results {
		switch {
		case res.Err != nil:
			cmd.Printf("miss    %s (%s: %v)\n", res.URL, res.Outcome, res.Err)
		case res.Outcome == "unchanged":
			cmd.Printf("kept    %s\n", res.URL)
		default:
			cmd.Printf("synced  %s -> %s\n", res.URL, res.Path)
		}
	}
}
