package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/vaultshell/shell"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Start the vault shell, report readiness, then stop it",
	Long: `Start the vault CLI shell, wait for it to become ready, and stop it.

Exits non-zero when the CLI is missing, never becomes ready, or needs
an interactive login.`,
	Args: cobra.NoArgs,
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	sh, err := shell.New(cfg)
	if err != nil {
		return err
	}
	defer sh.Close()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "binary:  %s %v\n", cfg.Binary, cfg.Args)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	began := time.Now()
	if err := sh.Start(ctx); err != nil {
		fmt.Fprintf(out, "state:   %s\n", sh.State())
		if shell.IsAuthError(err) {
			fmt.Fprintf(out, "hint:    log in once with `%s` interactively and enable persistent login\n", cfg.Binary)
		}
		return err
	}
	fmt.Fprintf(out, "state:   %s\n", sh.State())
	fmt.Fprintf(out, "startup: %s\n", time.Since(began).Round(time.Millisecond))

	return sh.Stop()
}
