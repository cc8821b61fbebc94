// Package cmd implements the metis command line interface.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/metisreader/metis/internal/app"
	"github.com/metisreader/metis/internal/config"
)

var cfgFile string

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "metis",
		Short: "A personal reading pipeline for hard-to-fetch articles.",
		Long: `metis ingests URLs from an inbox file or the command line, fetches
them through a cascade of strategies, converts the content to clean
markdown documents with localized images, and tracks each article
through a review workflow.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")

	cmd.AddCommand(
		newFetchCmd(),
		newSyncCmd(),
		newListCmd(),
		newMarkCmd("mark-read", "read", "Mark an article as read."),
		newMarkCmd("mark-valuable", "valuable", "Mark a read article as valuable."),
		newMarkCmd("archive", "archived", "Archive an article."),
		newResetCmd(),
		newStatusCmd(),
		newReconcileCmd(),
		newScheduleCmd(),
		newServeCmd(),
	)
	return cmd
}

// withApp loads config, builds the service container, runs fn, and
// tears everything down.
func withApp(fn func(a *app.App) error) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	a, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

// Execute runs the CLI.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
