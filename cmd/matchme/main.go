package main

import (
	"log/slog"
	"os"

	"matchme-client/internal/config"
	"matchme-client/internal/store"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "matchme",
	Short: "Realtime client for the MatchMe chat service",
	Long: `matchme keeps one realtime session to the MatchMe backend open:
- match, message and presence notifications
- typing indicators for the open conversation
- a local HTTP and websocket bridge for a UI`,
	SilenceUsage: true,
}

func main() {
	rootCmd.AddCommand(loginCmd, logoutCmd, runCmd, statusCmd)
	if err := rootCmd.Execute(); err != nil {
		color.Red("❌ %v", err)
		os.Exit(1)
	}
}

// loadConfig loads the configuration and applies its log level.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel})))
	return cfg, nil
}

func openStore(cfg *config.Config) (*store.SQLiteStore, error) {
	return store.NewSQLiteStore(cfg.DataDir)
}
