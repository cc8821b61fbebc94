package cmd

import (
	"github.com/spf13/cobra"

	"github.com/metisreader/metis/internal/app"
	"github.com/metisreader/metis/internal/workflow"
)

func newMarkCmd(use, target, short string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <url>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(a *app.App) error {
				rec, err := a.Engine.Transition(args[0], workflow.State(target))
				if err != nil {
					return err
				}
				cmd.Printf("%s [%s]\n", rec.URL, rec.State)
				return nil
			})
		},
	}
}

func newResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset <url>",
		Short: "Return a URL to pending so the next sync refetches it.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(a *app.App) error {
				rec, err := a.Engine.Reset(args[0])
				if err != nil {
					return err
				}
				cmd.Printf("%s [%s]\n", rec.URL, rec.State)
				return nil
			})
		},
	}
}
