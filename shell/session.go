package shell

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"github.com/randalmurphal/vaultshell/internal/truncate"
)

const (
	// waitDelay bounds how long Wait keeps copying output after the process
	// exits.
	waitDelay = 2 * time.Second

	// killWait bounds how long to wait for the process to be reaped after a
	// kill.
	killWait = 5 * time.Second

	// authQuiet is how long a credential prompt must sit at the tail of
	// the output, with no shell prompt, before the login counts as lapsed.
	authQuiet = 300 * time.Millisecond
)

// outputBuffer accumulates CLI output since the last reset.
// The session reader is its only writer.
type outputBuffer struct {
	mu    sync.Mutex
	buf   strings.Builder
	limit int
}

func (b *outputBuffer) append(p []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.buf.Write(p)
	if b.limit > 0 && b.buf.Len() > b.limit {
		tail := b.buf.String()[b.buf.Len()-b.limit:]
		b.buf.Reset()
		b.buf.WriteString(tail)
	}
}

func (b *outputBuffer) reset() {
	b.mu.Lock()
	b.buf.Reset()
	b.mu.Unlock()
}

func (b *outputBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// session is one running CLI process.
type session struct {
	id     string
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	output *io.PipeReader
	logger *slog.Logger

	buf    outputBuffer
	notify chan struct{} // Signalled (non-blocking) after each append
	done   chan struct{} // Closed when the process has exited and output is drained

	// dirty is set when a command timed out before its prompt arrived.
	dirty atomic.Bool

	lock *flock.Flock

	mu      sync.Mutex
	exitErr error
}

// spawn starts the CLI at path. The caller must wait for readiness.
func spawn(path string, cfg Config, lock *flock.Flock) (*session, error) {
	cmd := exec.Command(path, cfg.Args...)

	if cfg.WorkDir != "" {
		cmd.Dir = cfg.WorkDir
	}
	if len(cfg.Env) > 0 {
		cmd.Env = os.Environ()
		for k, v := range cfg.Env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
	}
	setProcessGroup(cmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("create stdin pipe: %w", err)
	}

	// stdout and stderr share one pipe so prompts and errors arrive in the
	// order the CLI wrote them.
	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw
	cmd.WaitDelay = waitDelay

	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		_ = pw.Close()
		return nil, err
	}

	s := &session{
		id:     uuid.NewString(),
		cmd:    cmd,
		stdin:  stdin,
		output: pr,
		logger: cfg.Logger,
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
		lock:   lock,
	}
	s.buf.limit = cfg.MaxOutputBytes

	go s.waitForExit(pw)
	go s.readOutput()

	return s, nil
}

// readOutput copies process output into the buffer until the pipe closes.
// Output is read in raw chunks because prompts are not newline terminated.
func (s *session) readOutput() {
	defer close(s.done)

	chunk := make([]byte, 4096)
	for {
		n, err := s.output.Read(chunk)
		if n > 0 {
			s.buf.append(chunk[:n])
			select {
			case s.notify <- struct{}{}:
			default:
			}
		}
		if err != nil {
			return
		}
	}
}

// waitForExit reaps the process, then closes the output pipe so readOutput
// finishes after the last byte.
func (s *session) waitForExit(pw *io.PipeWriter) {
	err := s.cmd.Wait()

	s.mu.Lock()
	s.exitErr = err
	s.mu.Unlock()

	_ = pw.Close()

	if s.lock != nil {
		if uerr := s.lock.Unlock(); uerr != nil {
			s.logger.Warn("release session lock failed",
				slog.String("session_id", s.id),
				slog.Any("error", uerr))
		}
	}
}

// exited reports whether the process has exited.
func (s *session) exited() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// exitError returns the process exit error, if any.
func (s *session) exitError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exitErr
}

// pid returns the process ID, or 0.
func (s *session) pid() int {
	if s.cmd.Process == nil {
		return 0
	}
	return s.cmd.Process.Pid
}

// write sends data to the CLI. The write runs in a goroutine so a CLI that
// stops reading stdin cannot block past ctx.
func (s *session) write(ctx context.Context, data string) error {
	errCh := make(chan error, 1)
	go func() {
		_, err := io.WriteString(s.stdin, data)
		errCh <- err
	}()

	select {
	case err := <-errCh:
		return err
	case <-s.done:
		return errors.New("process exited")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// close asks the CLI to quit, waits up to grace, then kills the whole
// process group regardless.
func (s *session) close(quit string, grace time.Duration) error {
	if !s.exited() && quit != "" {
		ctx, cancel := context.WithTimeout(context.Background(), grace)
		_ = s.write(ctx, quit+"\n")
		cancel()
	}
	_ = s.stdin.Close()

	select {
	case <-s.done:
	case <-time.After(grace):
	}

	return s.kill()
}

// kill terminates the process group and waits for the process to be reaped.
func (s *session) kill() error {
	if err := killProcessGroup(s.cmd); err != nil {
		s.logger.Debug("kill process group",
			slog.String("session_id", s.id),
			slog.Any("error", err))
	}

	select {
	case <-s.done:
		return nil
	case <-time.After(killWait):
		return fmt.Errorf("process %d did not exit after kill", s.pid())
	}
}

// tail returns the last n bytes of buffered output for diagnostics.
func (s *session) tail(n int) string {
	return truncate.Tail(s.buf.String(), n)
}
