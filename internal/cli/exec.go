package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/vaultshell/parser"
	"github.com/randalmurphal/vaultshell/retry"
	"github.com/randalmurphal/vaultshell/shell"
	"github.com/randalmurphal/vaultshell/vault"
)

var (
	execAttempts int
	execTimeout  time.Duration
	execJSON     string
	execReject   []string
)

var execCmd = &cobra.Command{
	Use:   "exec <command...>",
	Short: "Run one command through the vault shell",
	Long: `Run one command through a fresh vault shell session and print its
response with the echo and prompt removed.

Examples:
  vaultshell exec --json array -- list --format=json
  vaultshell exec --attempts 3 --json object -- get abc123 --format=json
  vaultshell exec sync-down`,
	Args: cobra.MinimumNArgs(1),
	RunE: runExec,
}

func init() {
	rootCmd.AddCommand(execCmd)
	execCmd.Flags().IntVar(&execAttempts, "attempts", 1, "Total attempts before giving up")
	execCmd.Flags().DurationVar(&execTimeout, "timeout", 0, "Per-attempt timeout (default: config command timeout)")
	execCmd.Flags().StringVar(&execJSON, "json", "", "Require and print a JSON value: array or object")
	execCmd.Flags().StringSliceVar(&execReject, "reject", nil, "Retry when output contains any of these markers")
}

func runExec(cmd *cobra.Command, args []string) error {
	kind, err := parseKind(execJSON)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	sh, err := shell.New(cfg)
	if err != nil {
		return err
	}
	client := vault.New(sh, vault.WithLogger(cfg.Logger))
	defer client.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	p := retry.Policy{
		MaxAttempts: execAttempts,
		Timeout:     execTimeout,
		Validator:   retry.Reject(execReject...),
	}
	if kind != nil {
		p.Validator = retry.All(retry.ExpectJSON(*kind), p.Validator)
	}

	command := strings.Join(args, " ")
	out, err := client.ExecWithRetry(ctx, command, p)
	if err != nil {
		return err
	}

	if kind != nil {
		out, err = extractIndented(out, *kind)
		if err != nil {
			return err
		}
	}
	fmt.Fprintln(cmd.OutOrStdout(), out)
	return nil
}

func parseKind(s string) (*parser.Kind, error) {
	var kind parser.Kind
	switch s {
	case "":
		return nil, nil
	case "array":
		kind = parser.KindArray
	case "object":
		kind = parser.KindObject
	default:
		return nil, fmt.Errorf("invalid --json %q (expected array or object)", s)
	}
	return &kind, nil
}

func extractIndented(out string, kind parser.Kind) (string, error) {
	raw, err := parser.ExtractJSON(out, kind)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, []byte(raw), "", "  "); err != nil {
		return "", fmt.Errorf("format JSON: %w", err)
	}
	return buf.String(), nil
}
