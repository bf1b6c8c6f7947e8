package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/featly/featly/internal/config"
	"github.com/featly/featly/internal/logger"
)

var (
	cfgFile string
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "featly",
	Short: "Featly agent orchestration service",
	Long:  `Featly runs the AI agent layer of the product-management workspace: assistant lifecycle, corpus sync, action confirmations, and the chat API.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Local development convenience; a missing .env is fine.
		_ = godotenv.Load()

		var err error
		cfg, err = config.Load(cmd)
		if err != nil {
			return err
		}

		logger.Setup(cfg.Server.LogLevel)
		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.featly/config.yaml)")
	rootCmd.PersistentFlags().String("server.log_level", config.DefaultServerLogLevel, "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Int("server.port", config.DefaultServerPort, "server port")
	rootCmd.PersistentFlags().String("store.driver", config.DefaultStoreDriver, "database driver (sqlite, postgres)")
	rootCmd.PersistentFlags().String("store.dsn", "", "database DSN")
}
