package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kirillkom/corpus-rag/internal/bootstrap"
	"github.com/kirillkom/corpus-rag/internal/core/usecase"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Scan the corpus root once and queue changed files for indexing",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd.Context(), true, func(app *bootstrap.App) error {
			report, err := app.Sync.Run(cmd.Context())
			if err != nil {
				return fmt.Errorf("sync failed: %w", err)
			}
			return printJSON(cmd.OutOrStdout(), report)
		})
	},
}

var reindexCmd = &cobra.Command{
	Use:   "reindex <path>",
	Short: "Queue one file for indexing regardless of its stored hash",
	Long: `Publishes an index job for a single file under the corpus root.
Use it to rebuild a document that was marked failed, for example after
reconcile found points missing from the vector store.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), true, func(app *bootstrap.App) error {
			job, err := app.Sync.Reindex(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("reindex failed: %w", err)
			}
			return printJSON(cmd.OutOrStdout(), job)
		})
	},
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Repair drift between the relational store and the vector store",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		documentID, err := cmd.Flags().GetInt64("document-id")
		if err != nil {
			return err
		}
		if documentID < 0 {
			return errors.New("--document-id must not be negative")
		}
		return withApp(cmd.Context(), false, func(app *bootstrap.App) error {
			report, err := app.Reconciler.Reconcile(cmd.Context(), documentID)
			if err != nil {
				return fmt.Errorf("reconcile failed: %w", err)
			}
			return printJSON(cmd.OutOrStdout(), report)
		})
	},
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Probe every dependency and record the results",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd.Context(), true, func(app *bootstrap.App) error {
			results, err := app.Health.Probe(cmd.Context())
			if printErr := printJSON(cmd.OutOrStdout(), results); printErr != nil {
				return printErr
			}
			if err != nil {
				return err
			}
			if !usecase.Healthy(results) {
				return errors.New("one or more services are unhealthy")
			}
			return nil
		})
	},
}

func init() {
	reconcileCmd.Flags().Int64("document-id", 0, "reconcile a single document (0 = all)")
	rootCmd.AddCommand(syncCmd, reindexCmd, reconcileCmd, healthCmd)
}
