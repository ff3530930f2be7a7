package retry

import (
	"errors"
	"fmt"
	"strings"

	"github.com/randalmurphal/vaultshell/parser"
)

// Validator inspects command output and returns an error describing why it
// is not acceptable, or nil.
type Validator func(output string) error

// ExpectJSON accepts output that contains a JSON value of the given kind.
func ExpectJSON(kind parser.Kind) Validator {
	return func(output string) error {
		_, err := parser.ExtractJSON(output, kind)
		return err
	}
}

// Reject refuses output containing any of the markers. Use it to catch
// output that belongs to a different command.
func Reject(markers ...string) Validator {
	return func(output string) error {
		for _, m := range markers {
			if strings.Contains(output, m) {
				return fmt.Errorf("output contains unexpected %q", m)
			}
		}
		return nil
	}
}

// Require refuses output missing any of the markers.
func Require(markers ...string) Validator {
	return func(output string) error {
		for _, m := range markers {
			if !strings.Contains(output, m) {
				return fmt.Errorf("output is missing %q", m)
			}
		}
		return nil
	}
}

// NotEmpty refuses blank output.
func NotEmpty() Validator {
	return func(output string) error {
		if strings.TrimSpace(output) == "" {
			return errors.New("output is empty")
		}
		return nil
	}
}

// Custom wraps a predicate. name describes the check in rejection errors.
func Custom(name string, ok func(output string) bool) Validator {
	return func(output string) error {
		if !ok(output) {
			return fmt.Errorf("output failed %s check", name)
		}
		return nil
	}
}

// All accepts output only if every validator does. Nil validators are
// skipped.
func All(validators ...Validator) Validator {
	return func(output string) error {
		for _, v := range validators {
			if v == nil {
				continue
			}
			if err := v(output); err != nil {
				return err
			}
		}
		return nil
	}
}
