// Package retry runs vault commands with bounded retries and output
// validation.
//
// The first command after a cold start is the least reliable: startup
// banners can still be arriving, or the CLI can answer with output that
// belongs to an earlier command. An Executor therefore treats a command as
// failed not only when the shell reports an error but also when a Validator
// rejects the output, and tries again after a fixed delay:
//
//	exec := retry.New(sh)
//	out, err := exec.Execute(ctx, "list --format=json", retry.Policy{
//	    MaxAttempts: 3,
//	    Timeout:     30 * time.Second,
//	    Delay:       time.Second,
//	    Validator:   retry.ExpectJSON(parser.KindArray),
//	})
//
// Errors that a new attempt cannot fix (missing binary, expired login, a
// genuine CLI error, cancellation) end the loop at once.
//
// Retrying re-sends the command. Commands that change the vault should use
// SingleAttempt unless a duplicate is harmless.
package retry
