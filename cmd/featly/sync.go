package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync [tenantID]",
	Short: "Sync tenant corpora into the provider's vector index",
	Long:  `Exports each tenant's workspace entities, uploads the corpus, waits for indexing, and prunes superseded files. With no argument, every known tenant is synced.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg == nil {
			return fmt.Errorf("config not loaded")
		}

		comps, err := buildComponents(cfg)
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		if len(args) == 1 {
			result, err := comps.pipeline.Sync(ctx, args[0])
			if err != nil {
				return err
			}
			printSyncResult(cmd, result.TenantID, result.Skipped, result.ItemCount, len(result.RemovedFiles))
			return nil
		}

		results, err := comps.pipeline.SyncAll(ctx)
		if err != nil {
			return err
		}
		for _, result := range results {
			printSyncResult(cmd, result.TenantID, result.Skipped, result.ItemCount, len(result.RemovedFiles))
		}
		cmd.Printf("Synced %d tenant(s)\n", len(results))
		return nil
	},
}

func printSyncResult(cmd *cobra.Command, tenantID string, skipped bool, items, pruned int) {
	if skipped {
		cmd.Printf("%s: skipped (empty corpus)\n", tenantID)
		return
	}
	cmd.Printf("%s: %d item(s) indexed, %d stale file(s) pruned\n", tenantID, items, pruned)
}

func init() {
	rootCmd.AddCommand(syncCmd)
}
