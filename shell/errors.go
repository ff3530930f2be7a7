package shell

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/randalmurphal/vaultshell/internal/truncate"
	"github.com/randalmurphal/vaultshell/parser"
)

// Sentinel errors for shell operations.
var (
	// ErrNotInstalled indicates the vault CLI binary could not be found or
	// executed.
	ErrNotInstalled = errors.New("vault CLI not installed")

	// ErrStartupTimeout indicates the CLI did not become ready in time.
	ErrStartupTimeout = errors.New("vault CLI startup timed out")

	// ErrCommandTimeout indicates no prompt followed a command in time.
	ErrCommandTimeout = errors.New("vault command timed out")

	// ErrProcessTerminated indicates the CLI process exited, either before
	// becoming ready or while commands were pending.
	ErrProcessTerminated = errors.New("vault CLI process terminated")

	// ErrAuthenticationExpired indicates the CLI asked for credentials.
	ErrAuthenticationExpired = errors.New("vault authentication expired")

	// ErrValidationFailed indicates a command's output was rejected by a
	// validator.
	ErrValidationFailed = errors.New("output validation failed")

	// ErrCommandFailed indicates the CLI reported a genuine error for a
	// command.
	ErrCommandFailed = errors.New("vault command failed")

	// ErrSessionLocked indicates another process holds the session lock file.
	ErrSessionLocked = errors.New("vault session locked by another process")

	// ErrInvalidCommand indicates a command that cannot be sent as a single
	// line.
	ErrInvalidCommand = errors.New("invalid command")

	// ErrNoJSONFound is parser.ErrNoJSONFound, repeated here so callers can
	// check every driver failure against one package.
	ErrNoJSONFound = parser.ErrNoJSONFound
)

// Error wraps shell errors with context.
type Error struct {
	Op        string // Operation that failed ("start", "execute", "stop")
	Command   string // Command name (first word only), if any
	Err       error  // Underlying error
	Retryable bool   // Whether a new attempt may succeed
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Command != "" {
		return fmt.Sprintf("vault shell %s %q: %v", e.Op, e.Command, e.Err)
	}
	return fmt.Sprintf("vault shell %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a new shell error. Only the first word of command is
// kept so that arguments, which may carry secrets, never reach logs.
func NewError(op, command string, err error, retryable bool) *Error {
	return &Error{
		Op:        op,
		Command:   CommandName(command),
		Err:       err,
		Retryable: retryable,
	}
}

// CommandError reports the error lines the CLI printed for a command.
// It matches ErrCommandFailed with errors.Is.
type CommandError struct {
	Command string   // Command name (first word only)
	Lines   []string // Lines that were classified as errors
	Output  string   // Full response text
}

// maxDetailLen caps the error line quoted by CommandError.
const maxDetailLen = 160

// Error implements the error interface.
func (e *CommandError) Error() string {
	detail := "error output"
	if len(e.Lines) > 0 {
		first, more := truncate.Line(strings.Join(e.Lines, "\n"), maxDetailLen)
		detail = first
		if more > 0 {
			detail += fmt.Sprintf(" (+%d more lines)", more)
		}
	}
	return fmt.Sprintf("%v: %s: %s", ErrCommandFailed, e.Command, detail)
}

// Is reports whether target is ErrCommandFailed.
func (e *CommandError) Is(target error) bool {
	return target == ErrCommandFailed
}

// NewCommandError creates a CommandError for command.
func NewCommandError(command string, lines []string, output string) *CommandError {
	return &CommandError{
		Command: CommandName(command),
		Lines:   lines,
		Output:  output,
	}
}

// IsRetryable reports whether a new attempt of the same command may succeed.
// Timeouts, process deaths and rejected output are retryable. A missing
// binary, expired authentication, a genuine command failure and context
// cancellation are not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, ErrNotInstalled) ||
		errors.Is(err, ErrAuthenticationExpired) ||
		errors.Is(err, ErrCommandFailed) ||
		errors.Is(err, ErrInvalidCommand) {
		return false
	}

	var shellErr *Error
	if errors.As(err, &shellErr) {
		return shellErr.Retryable
	}

	return errors.Is(err, ErrStartupTimeout) ||
		errors.Is(err, ErrCommandTimeout) ||
		errors.Is(err, ErrProcessTerminated) ||
		errors.Is(err, ErrSessionLocked) ||
		errors.Is(err, ErrValidationFailed) ||
		errors.Is(err, ErrNoJSONFound)
}

// IsAuthError reports whether err means the user must log in again.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrAuthenticationExpired)
}

// CommandName returns the first word of command.
func CommandName(command string) string {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
