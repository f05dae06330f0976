// Package supervisor spawns a worker process and learns its port from the
// announcement line the worker prints on stdout.
//
// The learned port is exposed through Query, a non-blocking peek that the
// discovery client polls. A Supervisor also satisfies ports.PortQuerier.
package supervisor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/aretw0/sidecar/internal/logging"
	"github.com/aretw0/sidecar/pkg/domain"
)

// DefaultStopTimeout is how long Stop waits after SIGTERM before killing the worker.
const DefaultStopTimeout = 5 * time.Second

// ErrAlreadyRunning is returned by Start while a previous worker is still alive.
var ErrAlreadyRunning = errors.New("worker already running")

// Stream identifies which output of the worker a line came from.
type Stream string

const (
	Stdout Stream = "stdout"
	Stderr Stream = "stderr"
)

// Hooks observe the supervised worker. They run on the supervisor's reader
// goroutines and must not block.
type Hooks struct {
	OnStateChange func(from, to domain.HandleState)
	OnLine        func(stream Stream, line string)
}

// Supervisor owns at most one running worker at a time.
type Supervisor struct {
	command     string
	args        []string
	dir         string
	env         []string
	logger      *slog.Logger
	stopTimeout time.Duration
	hooks       Hooks

	mu     sync.Mutex
	handle *Handle
	cancel context.CancelFunc
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithDir sets the worker's working directory.
func WithDir(dir string) Option {
	return func(s *Supervisor) {
		s.dir = dir
	}
}

// WithEnv appends KEY=VALUE entries to the inherited environment.
func WithEnv(env ...string) Option {
	return func(s *Supervisor) {
		s.env = append(s.env, env...)
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Supervisor) {
		s.logger = logger
	}
}

// WithStopTimeout sets the grace period between SIGTERM and SIGKILL.
func WithStopTimeout(d time.Duration) Option {
	return func(s *Supervisor) {
		if d > 0 {
			s.stopTimeout = d
		}
	}
}

func WithHooks(h Hooks) Option {
	return func(s *Supervisor) {
		s.hooks = h
	}
}

// New creates a Supervisor for command. Nothing is spawned until Start.
func New(command string, args []string, opts ...Option) *Supervisor {
	s := &Supervisor{
		command:     command,
		args:        args,
		logger:      logging.NewNop(),
		stopTimeout: DefaultStopTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start spawns the worker and begins scanning its output.
// The worker is also stopped when ctx is cancelled.
func (s *Supervisor) Start(ctx context.Context) (*Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.handle != nil && !s.handle.State().Terminal() {
		return nil, ErrAlreadyRunning
	}

	procCtx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(procCtx, s.command, s.args...)
	cmd.Dir = s.dir
	if len(s.env) > 0 {
		cmd.Env = append(os.Environ(), s.env...)
	}
	cmd.SysProcAttr = sysProcAttr()
	cmd.Cancel = func() error {
		return terminate(cmd.Process)
	}
	cmd.WaitDelay = s.stopTimeout

	// exec copies into these writers and Wait waits for the copies, bounded by
	// WaitDelay, so a grandchild holding stdout cannot stall the exit.
	stdoutR, stdoutW := io.Pipe()
	stderrR, stderrW := io.Pipe()
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW

	if err := cmd.Start(); err != nil {
		cancel()
		stdoutW.Close()
		stderrW.Close()
		return nil, fmt.Errorf("start worker %q: %w", s.command, err)
	}

	h := newHandle(cmd.Process.Pid, time.Now(), s.stateChanged)
	s.handle = h
	s.cancel = cancel

	s.logger.Info("Worker started", "pid", h.PID(), "command", s.command)

	go s.monitor(procCtx, cancel, cmd, h, output{stdoutR, stdoutW}, output{stderrR, stderrW})
	return h, nil
}

func (s *Supervisor) stateChanged(from, to domain.HandleState) {
	s.logger.Debug("Worker state changed", "from", from, "to", to)
	if s.hooks.OnStateChange != nil {
		s.hooks.OnStateChange(from, to)
	}
}

// output is one worker stream: exec writes w, the supervisor scans r.
type output struct {
	r *io.PipeReader
	w *io.PipeWriter
}

func (s *Supervisor) monitor(procCtx context.Context, cancel context.CancelFunc, cmd *exec.Cmd, h *Handle, stdout, stderr output) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.scan(Stdout, stdout.r, func(line string) { s.observe(h, line) })
	}()
	go func() {
		defer wg.Done()
		s.scan(Stderr, stderr.r, nil)
	}()

	err := cmd.Wait()
	if errors.Is(err, exec.ErrWaitDelay) {
		// The worker exited cleanly but something it spawned still holds its output.
		s.logger.Warn("Worker output still open after exit", "pid", h.PID())
		err = nil
	}
	stdout.w.Close()
	stderr.w.Close()
	// The last lines may still be in the scanners.
	wg.Wait()

	// A cancelled process context means Stop (or the caller's ctx) asked for the exit.
	stopped := procCtx.Err() != nil
	cancel()

	_, announced := h.Port()
	switch {
	case stopped:
		h.transition(domain.HandleStopped)
	case !announced:
		if err != nil {
			h.fail(fmt.Errorf("%w: %v", domain.ErrWorkerExited, err))
		} else {
			h.fail(domain.ErrWorkerExited)
		}
	case err != nil:
		h.fail(fmt.Errorf("worker exited: %w", err))
	default:
		h.transition(domain.HandleStopped)
	}

	if h.State() == domain.HandleFailed {
		s.logger.Error("Worker failed", "pid", h.PID(), "error", h.Err())
	} else {
		s.logger.Info("Worker exited", "pid", h.PID())
	}
	close(h.done)
}

func (s *Supervisor) scan(stream Stream, r io.Reader, fn func(string)) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if s.hooks.OnLine != nil {
			s.hooks.OnLine(stream, line)
		}
		if fn != nil {
			fn(line)
		}
	}
	if err := scanner.Err(); err != nil {
		s.logger.Warn("Reading worker output failed", "stream", stream, "error", err)
		// Keep draining so the worker never blocks on a full pipe.
		_, _ = io.Copy(io.Discard, r)
	}
}

func (s *Supervisor) observe(h *Handle, line string) {
	port, ok := domain.ParseAnnouncement(line)
	if !ok {
		return
	}
	if !h.setPort(port) {
		known, _ := h.Port()
		s.logger.Warn("Ignoring repeated announcement", "port", port, "known", known)
		return
	}
	h.transition(domain.HandlePortKnown)
	h.transition(domain.HandleReady)
	s.logger.Info("Worker announced port", "pid", h.PID(), "port", port)
}

// Handle returns the current worker handle, or nil before Start.
func (s *Supervisor) Handle() *Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handle
}

// Query returns the port announced by the running worker.
// It never blocks and returns ok=false while the port is not known, and after
// the worker has exited.
func (s *Supervisor) Query() (int, bool) {
	h := s.Handle()
	if h == nil || h.State().Terminal() {
		return 0, false
	}
	return h.Port()
}

// QueryPort implements ports.PortQuerier.
func (s *Supervisor) QueryPort(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	port, ok := s.Query()
	if !ok {
		return 0, domain.ErrPortNotKnown
	}
	return port, nil
}

// Available implements ports.PortQuerier. An in-process supervisor is always reachable.
func (s *Supervisor) Available() bool {
	return true
}

// Stop sends SIGTERM to the worker and waits for it to exit. The worker is
// killed if it is still alive after the stop timeout. If ctx ends first, Stop
// returns ctx.Err() while the kill proceeds in the background.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.mu.Lock()
	h, cancel := s.handle, s.cancel
	s.mu.Unlock()
	if h == nil {
		return nil
	}

	cancel()

	select {
	case <-h.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
