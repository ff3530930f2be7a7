package retry

import (
	"fmt"

	"github.com/randalmurphal/vaultshell/internal/truncate"
	"github.com/randalmurphal/vaultshell/shell"
)

// ErrValidationFailed is shell.ErrValidationFailed.
var ErrValidationFailed = shell.ErrValidationFailed

// outputPreviewLen caps how much output a ValidationError prints.
const outputPreviewLen = 200

// ValidationError reports output rejected by a Validator.
// It matches ErrValidationFailed with errors.Is.
type ValidationError struct {
	Command string // Command name (first word only)
	Output  string // The rejected output
	Err     error  // Why the validator rejected it
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("%v: %s: %v (output: %q)", ErrValidationFailed, e.Command, e.Err, preview(e.Output))
}

// Unwrap returns the validator's error.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrValidationFailed.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidationFailed
}

// ExhaustedError reports that every attempt failed. Err is the failure of
// the last attempt.
type ExhaustedError struct {
	Command  string // Command name (first word only)
	Attempts int
	Err      error
}

// Error implements the error interface.
func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s failed after %d attempts: %v", e.Command, e.Attempts, e.Err)
}

// Unwrap returns the last attempt's error.
func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

func preview(s string) string {
	out, _ := truncate.Runes(s, outputPreviewLen, truncate.FromStart)
	return out
}
