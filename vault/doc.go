// Package vault is a typed command façade over a vault CLI shell.
//
// A Client turns intent ("list records", "generate a password") into CLI
// command lines, runs them through the retry executor with a validator that
// fits the command, and decodes the JSON the CLI prints.
//
//	sh, err := shell.New(shell.DefaultConfig())
//	if err != nil {
//	    return err
//	}
//	client := vault.New(sh)
//	defer client.Close()
//
//	records, err := client.ListRecords(ctx)
//
// Read commands are retried with the default policy. Commands that change
// vault state run once: a retried record-add after a timeout could create a
// duplicate record, and the CLI has no idempotency key to prevent it.
package vault
