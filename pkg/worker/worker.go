// Package worker implements the sidecar side of the port-discovery handshake.
//
// A Worker binds an OS-assigned loopback port, announces it exactly once as
// "SIDECAR_PORT:<port>" on stdout, mirrors the value into any configured
// publishers (the port file by default) and then serves HTTP until its context ends.
package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/aretw0/sidecar/internal/logging"
	"github.com/aretw0/sidecar/pkg/domain"
	"github.com/aretw0/sidecar/pkg/portfile"
	"github.com/aretw0/sidecar/pkg/ports"
)

const (
	DefaultAddress         = "127.0.0.1:0"
	DefaultShutdownTimeout = 5 * time.Second
)

// Worker owns one listener for its whole lifetime.
type Worker struct {
	address         string
	stdout          io.Writer
	portFile        ports.RecordPublisher
	publishers      []ports.RecordPublisher
	handler         http.Handler
	logger          *slog.Logger
	shutdownTimeout time.Duration
	now             func() time.Time

	mu        sync.Mutex
	listener  net.Listener
	port      int
	announced bool
}

// Option configures a Worker.
type Option func(*Worker)

// WithAddress sets the bind address. The port part should be 0.
func WithAddress(addr string) Option {
	return func(w *Worker) {
		w.address = addr
	}
}

// WithStdout sets where the announcement line is written.
func WithStdout(out io.Writer) Option {
	return func(w *Worker) {
		w.stdout = out
	}
}

// WithPortFile sets the port file location. An empty path selects portfile.DefaultPath().
func WithPortFile(path string) Option {
	return func(w *Worker) {
		w.portFile = portfile.New(path)
	}
}

// WithoutPortFile disables the file fallback channel.
func WithoutPortFile() Option {
	return func(w *Worker) {
		w.portFile = nil
	}
}

// WithPublisher adds a secondary announcement channel.
func WithPublisher(p ports.RecordPublisher) Option {
	return func(w *Worker) {
		w.publishers = append(w.publishers, p)
	}
}

// WithHandler sets the HTTP handler served on the bound port.
func WithHandler(h http.Handler) Option {
	return func(w *Worker) {
		w.handler = h
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(w *Worker) {
		w.logger = logger
	}
}

func WithShutdownTimeout(d time.Duration) Option {
	return func(w *Worker) {
		if d > 0 {
			w.shutdownTimeout = d
		}
	}
}

// WithClock overrides the time source used for PortRecord.WrittenAt.
func WithClock(now func() time.Time) Option {
	return func(w *Worker) {
		w.now = now
	}
}

// New creates a Worker with the port file enabled at its default location.
func New(opts ...Option) *Worker {
	w := &Worker{
		address:         DefaultAddress,
		stdout:          os.Stdout,
		portFile:        portfile.New(""),
		handler:         http.NotFoundHandler(),
		logger:          logging.NewNop(),
		shutdownTimeout: DefaultShutdownTimeout,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Bind acquires the listener. Calling it again is a no-op.
func (w *Worker) Bind() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.listener != nil {
		return nil
	}
	ln, err := net.Listen("tcp", w.address)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrBindFailure, err)
	}
	addr, ok := ln.Addr().(*net.TCPAddr)
	if !ok || domain.ValidatePort(addr.Port) != nil {
		_ = ln.Close()
		return fmt.Errorf("%w: unexpected listener address %s", domain.ErrBindFailure, ln.Addr())
	}
	w.listener = ln
	w.port = addr.Port
	return nil
}

// Port returns the bound port, or 0 before Bind.
func (w *Worker) Port() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.port
}

func (w *Worker) allPublishers() []ports.RecordPublisher {
	all := make([]ports.RecordPublisher, 0, len(w.publishers)+1)
	if w.portFile != nil {
		all = append(all, w.portFile)
	}
	return append(all, w.publishers...)
}

// Announce writes the announcement line and mirrors it to the publishers.
// The line is written at most once per Worker. Only a stdout write failure is
// returned; publisher failures are logged and otherwise ignored.
func (w *Worker) Announce(ctx context.Context) error {
	w.mu.Lock()
	if w.listener == nil {
		w.mu.Unlock()
		return fmt.Errorf("%w: announce before bind", domain.ErrBindFailure)
	}
	if w.announced {
		w.mu.Unlock()
		return nil
	}
	w.announced = true
	port := w.port
	w.mu.Unlock()

	if _, err := io.WriteString(w.stdout, domain.FormatAnnouncement(port)+"\n"); err != nil {
		return fmt.Errorf("%w: stdout: %v", domain.ErrAnnouncementFailure, err)
	}
	if f, ok := w.stdout.(interface{ Flush() error }); ok {
		if err := f.Flush(); err != nil {
			return fmt.Errorf("%w: stdout flush: %v", domain.ErrAnnouncementFailure, err)
		}
	}

	rec := domain.PortRecord{Port: port, WrittenAt: w.now()}
	for _, p := range w.allPublishers() {
		if err := p.Publish(ctx, rec); err != nil {
			if !errors.Is(err, domain.ErrAnnouncementFailure) {
				err = fmt.Errorf("%w: %v", domain.ErrAnnouncementFailure, err)
			}
			w.logger.Warn("Secondary announcement failed", "port", port, "error", err)
		}
	}

	w.logger.Info(fmt.Sprintf("Go sidecar running at http://localhost:%d", port), "port", port)
	return nil
}

// Serve binds (if needed), announces and serves until ctx is done.
// On shutdown the listener is closed and every published record is cleared.
func (w *Worker) Serve(ctx context.Context) error {
	if err := w.Bind(); err != nil {
		return err
	}
	if err := w.Announce(ctx); err != nil {
		w.closeListener()
		return err
	}

	srv := &http.Server{
		Handler:           w.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	w.mu.Lock()
	ln, port := w.listener, w.port
	w.mu.Unlock()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Serve(ln)
	}()

	var result error
	select {
	case <-ctx.Done():
		w.logger.Info("Shutting down sidecar", "port", port)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), w.shutdownTimeout)
		// A requested stop exits cleanly even when connections had to be cut.
		if err := srv.Shutdown(shutdownCtx); err != nil {
			w.logger.Warn("Graceful shutdown timed out, closing connections", "error", err)
			_ = srv.Close()
		}
		cancel()
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			result = err
		}
	}

	w.clear(port)
	w.logger.Info("Sidecar exited", "port", port)
	return result
}

// Run serves until ctx is done or the process receives SIGINT or SIGTERM.
func (w *Worker) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	return w.Serve(ctx)
}

func (w *Worker) clear(port int) {
	ctx, cancel := context.WithTimeout(context.Background(), w.shutdownTimeout)
	defer cancel()
	for _, p := range w.allPublishers() {
		if err := p.Clear(ctx, port); err != nil {
			w.logger.Warn("Clearing announcement failed", "port", port, "error", err)
		}
	}
}

func (w *Worker) closeListener() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.listener != nil {
		_ = w.listener.Close()
	}
}

// ExitCode maps the result of Run to a process exit status.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	return 1
}
