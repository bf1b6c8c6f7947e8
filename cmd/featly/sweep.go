package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Cancel expired pending confirmations",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg == nil {
			return fmt.Errorf("config not loaded")
		}

		comps, err := buildComponents(cfg)
		if err != nil {
			return err
		}

		swept, err := comps.machine.CleanupExpired(cmd.Context())
		if err != nil {
			return err
		}
		cmd.Printf("Swept %d expired confirmation(s)\n", swept)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sweepCmd)
}
