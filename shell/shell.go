package shell

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/randalmurphal/vaultshell/classify"
)

// State is the readiness state of a Shell.
type State int32

// Readiness states.
const (
	StateNotStarted State = iota
	StateStarting
	StateReady
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not_started"
	case StateStarting:
		return "starting"
	case StateReady:
		return "ready"
	default:
		return "unknown"
	}
}

// Executor runs one command and returns its response.
type Executor interface {
	Execute(ctx context.Context, command string, timeout time.Duration) (string, error)
}

// Shell drives one long-lived vault CLI process.
//
// The process is started lazily by the first command (or explicitly with
// Start) and reused for every later command. Commands are written one at a
// time in arrival order. A command is complete when a prompt appears at
// the tail of the output. If the process dies, the next command starts a
// new one.
//
// A Shell is safe for concurrent use.
type Shell struct {
	cfg        Config
	logger     *slog.Logger
	metrics    *Metrics
	classifier *classify.Classifier

	starts singleflight.Group
	queue  ticketQueue

	mu    sync.Mutex
	state State
	sess  *session
	gen   uint64 // Bumped by Stop so a startup in flight is discarded

	stopWatch context.CancelFunc
}

var _ Executor = (*Shell)(nil)

// request is one command in flight.
type request struct {
	id      string
	command string
	timeout time.Duration
	started time.Time
}

// New creates a Shell. No process is started until Start or Execute.
func New(cfg Config, opts ...Option) (*Shell, error) {
	s := &Shell{cfg: cfg}
	for _, opt := range opts {
		opt(s)
	}

	s.cfg = s.cfg.WithDefaults()
	if err := s.cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	s.logger = s.cfg.Logger

	if s.classifier == nil {
		table := classify.DefaultTable()
		if s.cfg.MarkersFile != "" {
			t, err := classify.LoadTable(s.cfg.MarkersFile)
			if err != nil {
				return nil, err
			}
			table = t
		}
		c, err := classify.New(table)
		if err != nil {
			return nil, fmt.Errorf("compile marker table: %w", err)
		}
		s.classifier = c
	}

	if s.cfg.WatchMarkers {
		ctx, cancel := context.WithCancel(context.Background())
		if err := s.classifier.Watch(ctx, s.cfg.MarkersFile, s.markersReloaded); err != nil {
			cancel()
			return nil, fmt.Errorf("watch marker table: %w", err)
		}
		s.stopWatch = cancel
	}

	return s, nil
}

// Config returns the effective configuration.
func (s *Shell) Config() Config {
	return s.cfg
}

// Classifier returns the output classifier in use.
func (s *Shell) Classifier() *classify.Classifier {
	return s.classifier
}

// State returns the current readiness state.
func (s *Shell) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateReady && (s.sess == nil || s.sess.exited()) {
		return StateNotStarted
	}
	return s.state
}

// IsReady reports whether a session is ready and its process is alive.
func (s *Shell) IsReady() bool {
	return s.State() == StateReady
}

// Start launches the CLI and waits until it is ready. It returns
// immediately if a session is already ready. Concurrent callers share a
// single startup; cancelling ctx abandons the wait but not the startup,
// which remains bounded by Config.StartupTimeout.
func (s *Shell) Start(ctx context.Context) error {
	if s.IsReady() {
		return nil
	}

	ch := s.starts.DoChan("start", func() (any, error) {
		return nil, s.start(context.WithoutCancel(ctx))
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return NewError("start", "", ctx.Err(), false)
	}
}

func (s *Shell) start(ctx context.Context) (err error) {
	s.mu.Lock()
	if s.state == StateReady && s.sess != nil && !s.sess.exited() {
		s.mu.Unlock()
		return nil
	}
	stale := s.sess
	s.sess = nil
	s.state = StateStarting
	gen := s.gen
	s.mu.Unlock()

	if stale != nil {
		_ = stale.kill()
	}

	defer func() { s.metrics.observeStart(err) }()

	ctx, cancel := context.WithTimeout(ctx, s.cfg.StartupTimeout)
	defer cancel()

	sess, err := s.launch(ctx)
	if err != nil {
		s.setState(StateNotStarted)
		s.logger.Warn("vault shell start failed",
			slog.String("binary", s.cfg.Binary),
			slog.Any("error", err))
		return err
	}

	s.mu.Lock()
	if s.gen != gen {
		s.state = StateNotStarted
		s.mu.Unlock()
		_ = sess.close(s.cfg.QuitCommand, s.cfg.ShutdownGrace)
		return NewError("start", "", fmt.Errorf("%w: stopped during startup", ErrProcessTerminated), true)
	}
	s.sess = sess
	s.state = StateReady
	s.mu.Unlock()

	go s.watch(sess)

	s.logger.Debug("vault shell ready",
		slog.String("session_id", sess.id),
		slog.Int("pid", sess.pid()))
	return nil
}

// launch resolves the binary, takes the lock file, spawns the process and
// waits for readiness. ctx carries the startup deadline.
func (s *Shell) launch(ctx context.Context) (*session, error) {
	path, err := exec.LookPath(s.cfg.Binary)
	if err != nil {
		return nil, NewError("start", "", fmt.Errorf("%w: %v", ErrNotInstalled, err), false)
	}

	var lock *flock.Flock
	if s.cfg.LockFile != "" {
		lock, err = acquireSessionLock(ctx, s.cfg.LockFile)
		if err != nil {
			return nil, NewError("start", "", err, errors.Is(err, ErrSessionLocked))
		}
	}

	sess, err := spawn(path, s.cfg, lock)
	if err != nil {
		if lock != nil {
			_ = lock.Unlock()
		}
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
			return nil, NewError("start", "", fmt.Errorf("%w: %v", ErrNotInstalled, err), false)
		}
		return nil, NewError("start", "", fmt.Errorf("spawn %s: %w", path, err), true)
	}

	s.logger.Debug("vault shell spawned",
		slog.String("session_id", sess.id),
		slog.String("binary", path),
		slog.Int("pid", sess.pid()))

	if err := s.waitReady(ctx, sess); err != nil {
		if kerr := sess.kill(); kerr != nil {
			s.logger.Warn("kill after failed start",
				slog.String("session_id", sess.id),
				slog.Any("error", kerr))
		}
		return nil, err
	}
	return sess, nil
}

// waitReady blocks until the classifier reports the session ready.
// A prompt at the tail is ready immediately. Banners alone are ready once
// ReadySettle passes without a prompt.
func (s *Shell) waitReady(ctx context.Context, sess *session) error {
	var (
		settleTimer *time.Timer
		settle      <-chan time.Time
	)
	defer func() {
		if settleTimer != nil {
			settleTimer.Stop()
		}
	}()

	for {
		out := sess.buf.String()
		if s.classifier.IsAuthExpired(out) {
			return NewError("start", "", fmt.Errorf("%w: CLI is asking for credentials", ErrAuthenticationExpired), false)
		}
		if s.classifier.IsReady(out) {
			if s.classifier.IsComplete(out) {
				return nil
			}
			if settleTimer == nil {
				settleTimer = time.NewTimer(s.cfg.ReadySettle)
				settle = settleTimer.C
			}
		}

		select {
		case <-sess.notify:
		case <-settle:
			// The prompt may still be on its way. The first command drains
			// it before writing.
			sess.dirty.Store(true)
			return nil
		case <-sess.done:
			if s.classifier.IsAuthExpired(sess.buf.String()) {
				return NewError("start", "", fmt.Errorf("%w: CLI is asking for credentials", ErrAuthenticationExpired), false)
			}
			return NewError("start", "", fmt.Errorf("%w: exited before ready (%v): %s",
				ErrProcessTerminated, sess.exitError(), sess.tail(200)), true)
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return NewError("start", "", fmt.Errorf("%w after %s", ErrStartupTimeout, s.cfg.StartupTimeout), true)
			}
			return NewError("start", "", ctx.Err(), false)
		}
	}
}

// watch resets the shell when a session's process exits on its own.
func (s *Shell) watch(sess *session) {
	<-sess.done
	if s.detach(sess) {
		s.logger.Warn("vault shell exited unexpectedly",
			slog.String("session_id", sess.id),
			slog.Any("error", sess.exitError()))
	}
}

// detach clears sess as the current session. It reports whether sess was
// still current.
func (s *Shell) detach(sess *session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sess != sess {
		return false
	}
	s.sess = nil
	s.state = StateNotStarted
	s.metrics.sessionDown()
	return true
}

// recycle detaches and kills a session that can no longer be trusted.
func (s *Shell) recycle(sess *session, logger *slog.Logger, reason string) {
	s.detach(sess)
	logger.Warn("recycling vault shell", slog.String("reason", reason))
	if err := sess.kill(); err != nil {
		logger.Warn("kill recycled session", slog.Any("error", err))
	}
}

// current returns the live session, if any.
func (s *Shell) current() *session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sess
}

func (s *Shell) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// Execute writes command to the CLI and returns its response: the text
// between the echoed command and the next prompt, both stripped.
//
// The session is started if needed. Commands from concurrent callers are
// written one at a time in arrival order; ctx bounds the time spent
// waiting in that queue. timeout bounds the wait for the prompt once the
// command is written; a zero timeout uses Config.CommandTimeout.
//
// Errors match ErrCommandTimeout, ErrProcessTerminated,
// ErrAuthenticationExpired, ErrInvalidCommand or any Start error.
func (s *Shell) Execute(ctx context.Context, command string, timeout time.Duration) (string, error) {
	if strings.TrimSpace(command) == "" || strings.ContainsAny(command, "\r\n") {
		return "", NewError("execute", command, fmt.Errorf("%w: must be a single non-empty line", ErrInvalidCommand), false)
	}
	if timeout <= 0 {
		timeout = s.cfg.CommandTimeout
	}

	if err := s.Start(ctx); err != nil {
		return "", err
	}

	sess := s.current()
	if sess == nil {
		return "", NewError("execute", command, fmt.Errorf("%w: session ended before dispatch", ErrProcessTerminated), true)
	}

	req := &request{
		id:      uuid.NewString(),
		command: command,
		timeout: timeout,
	}

	if err := s.queue.acquire(ctx, sess.done); err != nil {
		if errors.Is(err, errSessionGone) {
			err = NewError("execute", command, fmt.Errorf("%w: session ended while queued", ErrProcessTerminated), true)
		} else {
			err = NewError("execute", command, err, false)
		}
		s.metrics.observeCommand(err, 0)
		return "", err
	}
	defer s.queue.release()

	out, err := s.dispatch(ctx, sess, req)
	s.metrics.observeCommand(err, time.Since(req.started))
	return out, err
}

// dispatch runs req on sess. The caller owns the queue.
func (s *Shell) dispatch(ctx context.Context, sess *session, req *request) (string, error) {
	logger := s.logger.With(
		slog.String("session_id", sess.id),
		slog.String("request_id", req.id),
		slog.String("command", CommandName(req.command)))

	if sess.exited() {
		s.detach(sess)
		return "", NewError("execute", req.command, fmt.Errorf("%w: %v", ErrProcessTerminated, sess.exitError()), true)
	}

	if sess.dirty.Load() {
		if err := s.drain(ctx, sess, req, logger); err != nil {
			return "", err
		}
	}

	sess.buf.reset()
	req.started = time.Now()

	timer := time.NewTimer(req.timeout)
	defer timer.Stop()

	writeCtx, cancel := context.WithTimeout(ctx, req.timeout)
	err := sess.write(writeCtx, req.command+"\n")
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			sess.dirty.Store(true)
			return "", NewError("execute", req.command, ctx.Err(), false)
		}
		s.recycle(sess, logger, "write failed")
		return "", NewError("execute", req.command, fmt.Errorf("%w: write command: %v", ErrProcessTerminated, err), true)
	}

	logger.Debug("command dispatched", slog.Int("queued", s.queue.pending()))

	// A credential prompt without a shell prompt counts once output has
	// stayed quiet for authQuiet.
	var (
		authTimer *time.Timer
		authC     <-chan time.Time
	)
	defer func() {
		if authTimer != nil {
			authTimer.Stop()
		}
	}()

	for {
		select {
		case <-sess.notify:
			out := sess.buf.String()
			if s.classifier.IsAuthExpiredAtTail(out) {
				if s.classifier.IsComplete(out) {
					return "", s.authExpired(sess, req, logger)
				}
				if authTimer != nil {
					authTimer.Stop()
				}
				authTimer = time.NewTimer(authQuiet)
				authC = authTimer.C
				continue
			}
			authC = nil
			if !s.classifier.IsComplete(out) {
				continue
			}
			logger.Debug("command complete", slog.Duration("elapsed", time.Since(req.started)))
			return s.classifier.Response(out, req.command), nil

		case <-authC:
			if s.classifier.IsAuthExpiredAtTail(sess.buf.String()) {
				return "", s.authExpired(sess, req, logger)
			}
			authC = nil

		case <-sess.done:
			s.detach(sess)
			return "", NewError("execute", req.command, fmt.Errorf("%w: %v", ErrProcessTerminated, sess.exitError()), true)

		case <-timer.C:
			sess.dirty.Store(true)
			logger.Warn("command timed out", slog.Duration("timeout", req.timeout))
			return "", NewError("execute", req.command, fmt.Errorf("%w after %s", ErrCommandTimeout, req.timeout), true)

		case <-ctx.Done():
			sess.dirty.Store(true)
			return "", NewError("execute", req.command, ctx.Err(), false)
		}
	}
}

// authExpired tears down a session whose login lapsed mid-command.
func (s *Shell) authExpired(sess *session, req *request, logger *slog.Logger) error {
	s.recycle(sess, logger, "authentication expired")
	return NewError("execute", req.command, ErrAuthenticationExpired, false)
}

// drain waits for the prompt that ends an earlier timed-out command so its
// late output is never read as the response to req. The session is
// recycled if the prompt does not arrive within DrainTimeout.
func (s *Shell) drain(ctx context.Context, sess *session, req *request, logger *slog.Logger) error {
	logger.Warn("waiting for previous command to finish", slog.Duration("drain_timeout", s.cfg.DrainTimeout))

	timer := time.NewTimer(s.cfg.DrainTimeout)
	defer timer.Stop()

	for {
		if s.classifier.IsComplete(sess.buf.String()) {
			sess.dirty.Store(false)
			return nil
		}

		select {
		case <-sess.notify:
		case <-sess.done:
			s.detach(sess)
			return NewError("execute", req.command, fmt.Errorf("%w: %v", ErrProcessTerminated, sess.exitError()), true)
		case <-timer.C:
			s.recycle(sess, logger, "previous command never finished")
			return NewError("execute", req.command, fmt.Errorf("%w: session recycled after stale command", ErrProcessTerminated), true)
		case <-ctx.Done():
			return NewError("execute", req.command, ctx.Err(), false)
		}
	}
}

// Stop ends the session: the quit command is sent, the process gets
// ShutdownGrace to exit, and then its process group is killed regardless.
// Stop is safe to call when no session is running. The next Execute starts
// a new session.
func (s *Shell) Stop() error {
	s.mu.Lock()
	sess := s.sess
	s.sess = nil
	s.state = StateNotStarted
	s.gen++
	s.mu.Unlock()

	if sess == nil {
		return nil
	}
	s.metrics.sessionDown()

	err := sess.close(s.cfg.QuitCommand, s.cfg.ShutdownGrace)
	s.logger.Debug("vault shell stopped",
		slog.String("session_id", sess.id),
		slog.Bool("command_in_flight", s.queue.busy()))
	if err != nil {
		return NewError("stop", "", err, false)
	}
	return nil
}

// Close stops the session and the marker table watcher. The Shell must not
// be used afterwards.
func (s *Shell) Close() error {
	if s.stopWatch != nil {
		s.stopWatch()
	}
	return s.Stop()
}

func (s *Shell) markersReloaded(err error) {
	if err != nil {
		s.logger.Warn("marker table reload failed",
			slog.String("path", s.cfg.MarkersFile),
			slog.Any("error", err))
		return
	}
	s.logger.Debug("marker table reloaded", slog.String("path", s.cfg.MarkersFile))
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
