// Package vaultshell drives a password-vault command-line program through
// one long-lived interactive shell session.
//
// The vault CLI is slow to start and prints unstructured text, so the driver
// keeps a single process alive, feeds it one command at a time, and decides
// from the text alone when a command has finished. Each subpackage can be
// used on its own:
//
//   - shell: process lifecycle, FIFO command dispatch, timeouts and recovery
//   - retry: bounded retries with output validators
//   - classify: readiness, completion, auth-expiry and error detection
//   - parser: JSON extraction from mixed CLI output
//   - vault: typed commands (list, get, generate, add) over the shell
//
// # Quick Start
//
//	sh, err := shell.New(shell.DefaultConfig())
//	if err != nil {
//	    return err
//	}
//	defer sh.Close()
//
//	client := vault.New(sh)
//	records, err := client.ListRecords(ctx)
//
// Lower level, with an explicit retry policy:
//
//	exec := retry.New(sh)
//	out, err := exec.Execute(ctx, "list --format=json", retry.Policy{
//	    MaxAttempts: 3,
//	    Validator:   retry.ExpectJSON(parser.KindArray),
//	})
//
// # Configuration
//
// shell.Config can be loaded from YAML, TOML or JSON files with
// shell.LoadConfigFile, overlaid with VAULTSHELL_* environment variables
// via Config.LoadFromEnv, and published as JSON Schema with
// shell.ConfigSchema. The vaultshell command in cmd/vaultshell exercises the
// driver from a terminal.
package vaultshell
