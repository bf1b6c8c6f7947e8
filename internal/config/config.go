package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/cobra"
)

type Config struct {
	Server       ServerConfig       `koanf:"server"`
	Provider     ProviderConfig     `koanf:"provider"`
	Store        StoreConfig        `koanf:"store"`
	Assistant    AssistantConfig    `koanf:"assistant"`
	Sync         SyncConfig         `koanf:"sync"`
	Chat         ChatConfig         `koanf:"chat"`
	Confirmation ConfirmationConfig `koanf:"confirmation"`
	Scheduler    SchedulerConfig    `koanf:"scheduler"`
	Reconcile    ReconcileConfig    `koanf:"reconcile"`
}

type ServerConfig struct {
	Port            int    `koanf:"port"`
	LogLevel        string `koanf:"log_level"`
	ReadTimeout     string `koanf:"read_timeout"`
	WriteTimeout    string `koanf:"write_timeout"`
	IdleTimeout     string `koanf:"idle_timeout"`
	ShutdownTimeout string `koanf:"shutdown_timeout"`
}

type ProviderConfig struct {
	APIKey         string `koanf:"api_key"`
	BaseURL        string `koanf:"base_url"`
	Model          string `koanf:"model"`
	RequestTimeout string `koanf:"request_timeout"`
}

type StoreConfig struct {
	Driver string `koanf:"driver"`
	DSN    string `koanf:"dsn"`
}

type AssistantConfig struct {
	CacheTTL     string `koanf:"cache_ttl"`
	ReverifyAge  string `koanf:"reverify_age"`
	Instructions string `koanf:"instructions"`
}

type SyncConfig struct {
	PollInterval    string `koanf:"poll_interval"`
	MaxPollAttempts int    `koanf:"max_poll_attempts"`
}

type ChatConfig struct {
	RunPollInterval    string `koanf:"run_poll_interval"`
	MaxRunPollAttempts int    `koanf:"max_run_poll_attempts"`
	MaxToolRounds      int    `koanf:"max_tool_rounds"`
}

type ConfirmationConfig struct {
	DefaultExpiry string `koanf:"default_expiry"`
}

type SchedulerConfig struct {
	SyncSpec  string `koanf:"sync_spec"`
	SweepSpec string `koanf:"sweep_spec"`
}

type ReconcileConfig struct {
	ReportPath string `koanf:"report_path"`
	LockPath   string `koanf:"lock_path"`
}

const (
	DefaultServerPort            = 8080
	DefaultServerLogLevel        = "info"
	DefaultServerReadTimeout     = "10s"
	DefaultServerWriteTimeout    = "30s"
	DefaultServerIdleTimeout     = "60s"
	DefaultServerShutdownTimeout = "5s"

	DefaultProviderBaseURL        = "https://api.openai.com/v1"
	DefaultProviderModel          = "gpt-4o"
	DefaultProviderRequestTimeout = "60s"

	DefaultStoreDriver = "sqlite"
	DefaultStoreDSN    = "featly.db"

	DefaultAssistantCacheTTL    = "5m"
	DefaultAssistantReverifyAge = "1m"
	DefaultAssistantInstructions = "You are a product-management copilot. Use file search over the " +
		"tenant corpus to answer questions about products, features, requirements, releases and " +
		"roadmaps, and use the provided functions to change them. Destructive changes always go " +
		"through user confirmation."

	DefaultSyncPollInterval    = "1s"
	DefaultSyncMaxPollAttempts = 30

	DefaultChatRunPollInterval    = "1s"
	DefaultChatMaxRunPollAttempts = 60
	DefaultChatMaxToolRounds      = 8

	DefaultConfirmationExpiry = "60m"

	DefaultSchedulerSyncSpec  = "0 3 * * *"
	DefaultSchedulerSweepSpec = "* * * * *"

	DefaultReconcileReportPath = "reconcile-report.yaml"
	DefaultReconcileLockPath   = "featly-reconcile.lock"
)

func Load(cmd *cobra.Command) (*Config, error) {
	k := koanf.New(".")

	defaults := map[string]interface{}{
		"server.port":                DefaultServerPort,
		"server.log_level":           DefaultServerLogLevel,
		"server.read_timeout":        DefaultServerReadTimeout,
		"server.write_timeout":       DefaultServerWriteTimeout,
		"server.idle_timeout":        DefaultServerIdleTimeout,
		"server.shutdown_timeout":    DefaultServerShutdownTimeout,
		"provider.base_url":          DefaultProviderBaseURL,
		"provider.model":             DefaultProviderModel,
		"provider.request_timeout":   DefaultProviderRequestTimeout,
		"store.driver":               DefaultStoreDriver,
		"store.dsn":                  DefaultStoreDSN,
		"assistant.cache_ttl":        DefaultAssistantCacheTTL,
		"assistant.reverify_age":     DefaultAssistantReverifyAge,
		"assistant.instructions":     DefaultAssistantInstructions,
		"sync.poll_interval":         DefaultSyncPollInterval,
		"sync.max_poll_attempts":     DefaultSyncMaxPollAttempts,
		"chat.run_poll_interval":     DefaultChatRunPollInterval,
		"chat.max_run_poll_attempts": DefaultChatMaxRunPollAttempts,
		"chat.max_tool_rounds":       DefaultChatMaxToolRounds,
		"confirmation.default_expiry": DefaultConfirmationExpiry,
		"scheduler.sync_spec":         DefaultSchedulerSyncSpec,
		"scheduler.sweep_spec":        DefaultSchedulerSweepSpec,
		"reconcile.report_path":       DefaultReconcileReportPath,
		"reconcile.lock_path":         DefaultReconcileLockPath,
	}
	for key, value := range defaults {
		k.Set(key, value)
	}

	// Config file loading
	configPath := ""
	if cmd != nil {
		if flag := cmd.Flags().Lookup("config"); flag != nil {
			configPath = strings.TrimSpace(flag.Value.String())
		}
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, err
		}
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			globalPath := filepath.Join(home, ".featly", "config.yaml")
			if err := k.Load(file.Provider(globalPath), yaml.Parser()); err != nil {
				slog.Debug("Global config not found or invalid", "path", globalPath, "error", err)
			}
		}
	}

	// Environment Variables
	k.Load(env.Provider("FEATLY_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "FEATLY_")), "_", ".", -1)
	}), nil)

	// CLI Flags
	if cmd != nil {
		k.Load(posflag.Provider(cmd.Flags(), ".", k), nil)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	// Post-Process: Inject standard Env Vars if missing
	if cfg.Provider.APIKey == "" {
		cfg.Provider.APIKey = os.Getenv("OPENAI_API_KEY")
	}

	return &cfg, nil
}
