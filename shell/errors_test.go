package shell

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"not installed", ErrNotInstalled, false},
		{"auth expired", fmt.Errorf("wrapped: %w", ErrAuthenticationExpired), false},
		{"command failed", NewCommandError("get x", []string{"Error: nope"}, "Error: nope"), false},
		{"invalid command", ErrInvalidCommand, false},
		{"canceled", context.Canceled, false},
		{"deadline", NewError("execute", "list", context.DeadlineExceeded, true), false},
		{"startup timeout", ErrStartupTimeout, true},
		{"command timeout", NewError("execute", "list", ErrCommandTimeout, true), true},
		{"terminated", ErrProcessTerminated, true},
		{"locked", ErrSessionLocked, true},
		{"validation", fmt.Errorf("%w: no records", ErrValidationFailed), true},
		{"no json", ErrNoJSONFound, true},
		{"explicit retryable flag", NewError("start", "", errors.New("spawn failed"), true), true},
		{"explicit non-retryable flag", NewError("stop", "", errors.New("kill failed"), false), false},
		{"unknown", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestNewError_KeepsOnlyCommandName(t *testing.T) {
	err := NewError("execute", "record-add --title=db password=hunter2", ErrCommandTimeout, true)

	assert.Equal(t, "record-add", err.Command)
	assert.NotContains(t, err.Error(), "hunter2")
	assert.Equal(t, `vault shell execute "record-add": vault command timed out`, err.Error())
	assert.ErrorIs(t, err, ErrCommandTimeout)
}

func TestError_WithoutCommand(t *testing.T) {
	err := NewError("start", "", ErrNotInstalled, false)
	assert.Equal(t, "vault shell start: vault CLI not installed", err.Error())
}

func TestCommandError(t *testing.T) {
	err := NewCommandError("get abc --format=json", []string{"Error: record not found", "Traceback"}, "Error: record not found\nTraceback")

	assert.ErrorIs(t, err, ErrCommandFailed)
	assert.NotErrorIs(t, err, ErrCommandTimeout)
	assert.Equal(t, "get", err.Command)
	assert.Equal(t, "vault command failed: get: Error: record not found (+1 more lines)", err.Error())

	var cmdErr *CommandError
	assert.True(t, errors.As(fmt.Errorf("wrapped: %w", err), &cmdErr))
	assert.Len(t, cmdErr.Lines, 2)
}

func TestCommandError_LongLineIsShortened(t *testing.T) {
	long := "ValueError: " + strings.Repeat("x", 400)
	err := NewCommandError("sync-down", []string{long}, long)

	msg := err.Error()
	assert.True(t, strings.HasPrefix(msg, "vault command failed: sync-down: ValueError: xxx"))
	assert.True(t, strings.HasSuffix(msg, "..."))
	assert.NotContains(t, msg, "more lines")
	assert.Less(t, len(msg), 250)
}

func TestCommandName(t *testing.T) {
	assert.Equal(t, "list", CommandName("  list --format=json "))
	assert.Equal(t, "", CommandName("   "))
}
