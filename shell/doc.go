// Package shell keeps one interactive vault CLI process alive and turns it
// into a request/response API.
//
// # Architecture
//
//	callers --Execute--> ticket queue --stdin--> vault CLI
//	                                  <--stdout+stderr-- reader goroutine --> buffer
//
// A Shell owns at most one session (one CLI process). The session is
// started on the first command, or explicitly with Start, and is reused
// until it dies, is stopped, or reports an expired login. Concurrent
// starters share one startup.
//
// Commands are written strictly one at a time in arrival order. Before a
// command is written the output buffer is cleared; the command is done when
// the classifier sees a prompt at the tail of the buffer. The response is
// the text between the echoed command and that prompt.
//
// # Timeouts
//
// Each command has its own timeout. When it expires the caller gets
// ErrCommandTimeout and the session is marked dirty: the next command first
// waits (up to Config.DrainTimeout) for the late prompt, so output from the
// timed-out command never leaks into its successor. If that prompt never
// comes the session is killed and replaced.
//
// # Usage
//
//	sh, err := shell.New(shell.DefaultConfig(), shell.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//	defer sh.Close()
//
//	out, err := sh.Execute(ctx, "list --format=json", 30*time.Second)
//	switch {
//	case errors.Is(err, shell.ErrNotInstalled):
//	    // ask the user to install the CLI
//	case errors.Is(err, shell.ErrAuthenticationExpired):
//	    // ask the user to log in again
//	}
package shell
