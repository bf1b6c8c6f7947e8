package main

import (
	"fmt"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Reconcile the assistant tracking stores against the provider",
	Long:  `Scans both assistant tracking stores, verifies every referenced assistant against the provider, and reports orphans and duplicates. Dry-run by default; pass --execute to repair.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg == nil {
			return fmt.Errorf("config not loaded")
		}
		execute, _ := cmd.Flags().GetBool("execute")
		reportPath, _ := cmd.Flags().GetString("report")
		if reportPath == "" {
			reportPath = cfg.Reconcile.ReportPath
		}

		// One reconciler at a time; two concurrent repair passes would
		// fight over the same references.
		fileLock := flock.New(cfg.Reconcile.LockPath)
		locked, err := fileLock.TryLock()
		if err != nil {
			return fmt.Errorf("acquire reconcile lock: %w", err)
		}
		if !locked {
			return fmt.Errorf("another reconciliation is already running")
		}
		defer fileLock.Unlock()

		comps, err := buildComponents(cfg)
		if err != nil {
			return err
		}

		report, err := comps.reconciler.Run(cmd.Context(), !execute)
		if err != nil {
			return err
		}

		if err := report.WriteFile(reportPath); err != nil {
			return err
		}

		mode := "dry-run"
		if execute {
			mode = "execute"
		}
		cmd.Printf("Reconciliation (%s): %d tenant(s) checked, %d valid, %d orphaned (%d removed), %d duplicate(s) collapsed, %d failure(s)\n",
			mode,
			report.TotalTenantsChecked,
			report.ValidAssistantsFound,
			report.OrphanedReferencesFound,
			report.OrphanedReferencesRemoved,
			report.DuplicatesCollapsed,
			len(report.Failures))
		cmd.Printf("Report written to %s\n", reportPath)
		return nil
	},
}

func init() {
	reconcileCmd.Flags().Bool("execute", false, "apply repairs instead of reporting only")
	reconcileCmd.Flags().String("report", "", "report output path (default from config)")
	rootCmd.AddCommand(reconcileCmd)
}
