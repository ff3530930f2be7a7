package retry

import (
	"context"
	"log/slog"
	"time"

	goretry "github.com/sethvargo/go-retry"

	"github.com/randalmurphal/vaultshell/classify"
	"github.com/randalmurphal/vaultshell/shell"
)

// Executor runs commands through a shell.Executor with retries.
type Executor struct {
	shell      shell.Executor
	classifier *classify.Classifier
	logger     *slog.Logger
	metrics    *shell.Metrics
}

// Option configures an Executor.
type Option func(*Executor)

// WithClassifier sets the classifier used to detect genuine CLI errors.
// Default: classify.Default().
func WithClassifier(c *classify.Classifier) Option {
	return func(e *Executor) { e.classifier = c }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) { e.logger = logger }
}

// WithMetrics counts repeated attempts in m.
func WithMetrics(m *shell.Metrics) Option {
	return func(e *Executor) { e.metrics = m }
}

// New creates an Executor that dispatches through sh. When sh is a
// *shell.Shell its classifier is used unless WithClassifier overrides it.
func New(sh shell.Executor, opts ...Option) *Executor {
	e := &Executor{
		shell:  sh,
		logger: slog.Default(),
	}
	if s, ok := sh.(*shell.Shell); ok {
		e.classifier = s.Classifier()
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.classifier == nil {
		e.classifier = classify.Default()
	}
	return e
}

// Execute dispatches command until an attempt succeeds or the policy is
// exhausted.
//
// An attempt fails when the shell returns a retryable error or the
// validator rejects the output. Output with genuine error lines fails with
// a *shell.CommandError and is not retried unless AllowErrorOutput is set.
// Non-retryable shell errors are returned as they are. When all attempts
// fail the result is an *ExhaustedError wrapping the last failure.
func (e *Executor) Execute(ctx context.Context, command string, p Policy) (string, error) {
	p = p.WithDefaults()
	logger := e.logger.With(slog.String("command", shell.CommandName(command)))

	backoff := goretry.WithMaxRetries(uint64(p.MaxAttempts-1), constantBackoff(p.Delay))

	var (
		output   string
		attempts int
		lastErr  error
	)
	err := goretry.Do(ctx, backoff, func(ctx context.Context) error {
		attempts++
		if attempts > 1 {
			e.metrics.ObserveRetry()
			logger.Debug("retrying command",
				slog.Int("attempt", attempts),
				slog.Int("max_attempts", p.MaxAttempts),
				slog.Any("error", lastErr))
		}

		out, err := e.attempt(ctx, command, p)
		if err != nil {
			lastErr = err
			if shell.IsRetryable(err) {
				return goretry.RetryableError(err)
			}
			return err
		}
		output = out
		return nil
	})
	if err == nil {
		return output, nil
	}

	if shell.IsRetryable(err) && attempts >= p.MaxAttempts {
		logger.Warn("command failed after retries",
			slog.Int("attempts", attempts),
			slog.Any("error", err))
		return "", &ExhaustedError{
			Command:  shell.CommandName(command),
			Attempts: attempts,
			Err:      err,
		}
	}
	return "", err
}

// attempt runs one dispatch and judges its output.
func (e *Executor) attempt(ctx context.Context, command string, p Policy) (string, error) {
	out, err := e.shell.Execute(ctx, command, p.Timeout)
	if err != nil {
		return "", err
	}

	if !p.AllowErrorOutput {
		if lines := e.classifier.ErrorLines(out); len(lines) > 0 {
			return "", shell.NewCommandError(command, lines, out)
		}
	}

	if p.Validator != nil {
		if verr := p.Validator(out); verr != nil {
			return "", &ValidationError{
				Command: shell.CommandName(command),
				Output:  out,
				Err:     verr,
			}
		}
	}

	return out, nil
}

// constantBackoff waits d between attempts, or not at all when d is
// negative. goretry.NewConstant rejects a zero interval.
func constantBackoff(d time.Duration) goretry.Backoff {
	if d < 0 {
		return goretry.BackoffFunc(func() (time.Duration, bool) { return 0, false })
	}
	return goretry.NewConstant(d)
}
