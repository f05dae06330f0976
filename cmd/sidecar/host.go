package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/aretw0/sidecar"
	"github.com/aretw0/sidecar/internal/adapters/mcp"
	"github.com/aretw0/sidecar/internal/adapters/redis"
	"github.com/aretw0/sidecar/internal/config"
	"github.com/aretw0/sidecar/internal/metrics"
	"github.com/aretw0/sidecar/internal/presentation/tui"
	"github.com/aretw0/sidecar/pkg/discovery"
	"github.com/aretw0/sidecar/pkg/domain"
	"github.com/aretw0/sidecar/pkg/portfile"
	"github.com/aretw0/sidecar/pkg/supervisor"
	"github.com/go-chi/chi/v5"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"
)

var hostCmd = &cobra.Command{
	Use:   "host [flags] [-- command [args...]]",
	Short: "Spawn a worker and discover its port",
	Long: `Starts the worker as a child process, echoes its output as "[Sidecar] <line>",
captures the SIDECAR_PORT announcement and runs a bounded discovery session
against it. Without a command, the host spawns "sidecar worker" from its own binary.

With --mcp the host also answers get_sidecar_port over MCP on stdin/stdout, and
worker output moves to stderr.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup(cmd)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("mode") {
			cfg.Discovery.Mode, _ = cmd.Flags().GetString("mode")
		}
		if cmd.Flags().Changed("stop-timeout") {
			cfg.Host.StopTimeout, _ = cmd.Flags().GetDuration("stop-timeout")
		}
		if cmd.Flags().Changed("port-file") {
			cfg.Worker.PortFile, _ = cmd.Flags().GetString("port-file")
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		command, cmdArgs, err := workerCommand(cfg, args)
		if err != nil {
			return err
		}

		serveMCP, _ := cmd.Flags().GetBool("mcp")
		metricsAddr, _ := cmd.Flags().GetString("metrics-addr")

		out := cmd.OutOrStdout()
		if serveMCP {
			// stdout belongs to the JSON-RPC stream
			out = cmd.ErrOrStderr()
		}

		if !serveMCP && tui.IsTerminal(os.Stderr) {
			tui.PrintBanner(cmd.ErrOrStderr(), sidecar.Version)
		}

		h := &host{
			cfg:     cfg,
			logger:  logger,
			out:     out,
			profile: tui.Profile(os.Stdout),
			report:  !serveMCP && tui.IsTerminal(os.Stdout),
		}
		if metricsAddr != "" {
			h.metrics = metrics.New()
		}
		return h.run(cmd.Context(), command, cmdArgs, serveMCP, metricsAddr)
	},
}

func init() {
	rootCmd.AddCommand(hostCmd)
	hostCmd.Flags().String("mode", "", "Discovery channel: auto, ipc, file or redis")
	hostCmd.Flags().String("port-file", "", "Fallback port file shared with the worker")
	hostCmd.Flags().Duration("stop-timeout", 0, "Grace period between SIGTERM and SIGKILL")
	hostCmd.Flags().Bool("mcp", false, "Serve get_sidecar_port over MCP on stdin/stdout")
	hostCmd.Flags().String("metrics-addr", "", "Serve host Prometheus metrics on this address")
}

// workerCommand resolves what to spawn: explicit args, then the config, then ourselves.
func workerCommand(cfg *config.Config, args []string) (string, []string, error) {
	if len(args) > 0 {
		return args[0], args[1:], nil
	}
	if cfg.Host.Command != "" {
		return cfg.Host.Command, cfg.Host.Args, nil
	}
	self, err := os.Executable()
	if err != nil {
		return "", nil, fmt.Errorf("resolve own executable: %w", err)
	}
	workerArgs := []string{"worker"}
	if cfg.Worker.PortFile != "" {
		workerArgs = append(workerArgs, "--port-file", cfg.Worker.PortFile)
	}
	return self, workerArgs, nil
}

type host struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *metrics.Metrics
	profile termenv.Profile
	out     io.Writer
	// report prints the glamour summary once the port is known.
	report bool

	outMu sync.Mutex
}

func (h *host) println(a ...any) {
	h.outMu.Lock()
	defer h.outMu.Unlock()
	fmt.Fprintln(h.out, a...)
}

func (h *host) run(parent context.Context, command string, args []string, serveMCP bool, metricsAddr string) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	sup := supervisor.New(command, args,
		supervisor.WithDir(h.cfg.Host.Dir),
		supervisor.WithLogger(h.logger),
		supervisor.WithStopTimeout(h.cfg.Host.StopTimeout),
		supervisor.WithHooks(supervisor.Hooks{
			OnLine: func(_ supervisor.Stream, line string) {
				h.println("[Sidecar]", line)
			},
			OnStateChange: func(_, to domain.HandleState) {
				h.metrics.ObserveHandleState(to)
			},
		}),
	)

	// The worker is stopped explicitly below so it always gets the SIGTERM grace period.
	handle, err := sup.Start(context.Background())
	if err != nil {
		return err
	}
	h.metrics.ObserveHandleState(handle.State())
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), h.cfg.Host.StopTimeout+time.Second)
		defer cancel()
		if err := sup.Stop(stopCtx); err != nil {
			h.logger.Warn("Worker did not stop cleanly", "error", err)
		}
	}()

	capability, closeCapability, err := h.capability(sup)
	if err != nil {
		return err
	}
	defer closeCapability()

	session := discovery.NewClient(capability,
		discovery.WithInterval(h.cfg.Discovery.Interval),
		discovery.WithMaxAttempts(h.cfg.Discovery.MaxAttempts),
		discovery.WithLogger(h.logger),
		discovery.WithHooks(h.metrics.DiscoveryHooks(domain.LifecycleHooks{})),
		discovery.WithFreshness(handle.StartedAt()),
	).Start(ctx)
	defer session.Cancel()
	h.println(tui.StatusLine(session.Status(), h.profile))

	if metricsAddr != "" {
		shutdown := h.serveMetrics(metricsAddr)
		defer shutdown()
	}

	mcpDone := make(chan error, 1)
	if serveMCP {
		srv := mcp.NewServer(sup,
			mcp.WithHandleInfo(func() (domain.HandleState, error) {
				cur := sup.Handle()
				return cur.State(), cur.Err()
			}),
			mcp.WithStatus(session.Status),
		)
		go func() {
			mcpDone <- srv.ServeStdio()
		}()
	}

	status := h.awaitDiscovery(ctx, session, handle)
	if ctx.Err() != nil {
		h.logger.Info("Shutting down host")
		return nil
	}
	h.println(tui.StatusLine(status, h.profile))
	if !status.IsReady() {
		return fmt.Errorf("sidecar unavailable: %s", status.Reason)
	}
	if h.report {
		h.printReport(handle.PID(), status.Port)
	}

	select {
	case <-ctx.Done():
		h.logger.Info("Shutting down host")
		return nil
	case <-handle.Done():
		if err := handle.Err(); err != nil {
			return err
		}
		return errors.New("worker exited")
	case err := <-mcpDone:
		return err
	}
}

// awaitDiscovery waits for the session, but gives up early when the worker
// exits: a dead worker will never answer, so polling on would only delay the error.
func (h *host) awaitDiscovery(ctx context.Context, session *discovery.Session, handle *supervisor.Handle) domain.Status {
	select {
	case <-session.Done():
		return session.Status()
	case <-ctx.Done():
		return session.Status()
	case <-handle.Done():
	}

	// The announcement may have been answered in the same instant.
	if st := session.Status(); st.IsReady() {
		return st
	}
	session.Cancel()
	reason := domain.ErrWorkerExited.Error()
	if err := handle.Err(); err != nil {
		reason = err.Error()
	}
	return domain.Status{Phase: domain.PhaseError, Reason: reason}
}

func (h *host) capability(sup *supervisor.Supervisor) (discovery.Capability, func(), error) {
	noop := func() {}
	file := portfile.New(h.cfg.Worker.PortFile)

	switch h.cfg.Discovery.Mode {
	case config.ModeIPC:
		return discovery.IPC(sup).WithCrossCheck(file), noop, nil
	case config.ModeFile:
		return discovery.FileFallback(file), noop, nil
	case config.ModeRedis:
		store := redis.New(h.cfg.Redis.Address, h.cfg.Redis.Password, h.cfg.Redis.DB,
			redis.WithPrefix(h.cfg.Redis.Prefix),
			redis.WithName(h.cfg.Redis.Name),
		)
		return discovery.FileFallback(store), func() { _ = store.Close() }, nil
	default:
		c, err := discovery.Select(sup, file)
		if err != nil {
			return c, noop, err
		}
		if c.Mode() == discovery.ModeIPC {
			c = c.WithCrossCheck(file)
		}
		return c, noop, nil
	}
}

func (h *host) serveMetrics(addr string) func() {
	r := chi.NewRouter()
	r.Method(http.MethodGet, "/metrics", h.metrics.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		h.logger.Info("Serving host metrics", "address", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.logger.Error("Metrics server failed", "error", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

func (h *host) printReport(pid, port int) {
	render := tui.NewRenderer()
	out, err := render(tui.ReadyReport(pid, port, discovery.BaseURL(port)))
	if err != nil {
		h.logger.Debug("Report rendering failed", "error", err)
	}
	h.println(out)
}
