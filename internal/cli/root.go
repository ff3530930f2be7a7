// Package cli provides the vaultshell diagnostic commands.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/vaultshell/shell"
)

var (
	configPath string
	binaryPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "vaultshell",
	Short: "Drive a persistent vault CLI shell",
	Long: `vaultshell keeps a vault CLI shell session alive and runs commands
through it the way an editor integration would.

Configuration is read from --config (YAML, TOML or JSON), then overlaid
with VAULTSHELL_* environment variables, then with flags.`,
	SilenceUsage: true,
}

// Execute runs the root command and returns an exit code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		return 1
	}
	return 0
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (.yaml, .toml or .json)")
	rootCmd.PersistentFlags().StringVar(&binaryPath, "binary", "", "Vault CLI executable (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log driver activity to stderr")
}

// loadConfig resolves the shell config from file, environment and flags.
func loadConfig() (shell.Config, error) {
	cfg := shell.DefaultConfig()
	if configPath != "" {
		fileCfg, err := shell.LoadConfigFile(configPath)
		if err != nil {
			return shell.Config{}, err
		}
		cfg = fileCfg
	}

	if err := cfg.LoadFromEnv(); err != nil {
		return shell.Config{}, err
	}

	if binaryPath != "" {
		cfg.Binary = binaryPath
	}
	cfg.Logger = newLogger()

	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return shell.Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func newLogger() *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
