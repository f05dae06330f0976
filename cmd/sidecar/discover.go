package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aretw0/sidecar/internal/adapters/redis"
	"github.com/aretw0/sidecar/internal/config"
	"github.com/aretw0/sidecar/internal/presentation/tui"
	"github.com/aretw0/sidecar/pkg/discovery"
	"github.com/aretw0/sidecar/pkg/portfile"
	"github.com/aretw0/sidecar/pkg/ports"
	"github.com/spf13/cobra"
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Discover a running worker from another process",
	Long: `Polls the fallback channel (the port file, or the Redis registry) every
interval until a port appears or the attempt budget is spent, then prints the
port on stdout. Exits 1 when the worker did not start in time.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup(cmd)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("mode") {
			cfg.Discovery.Mode, _ = cmd.Flags().GetString("mode")
		}
		if cmd.Flags().Changed("port-file") {
			cfg.Worker.PortFile, _ = cmd.Flags().GetString("port-file")
		}
		if cmd.Flags().Changed("interval") {
			cfg.Discovery.Interval, _ = cmd.Flags().GetDuration("interval")
		}
		if cmd.Flags().Changed("max-attempts") {
			cfg.Discovery.MaxAttempts, _ = cmd.Flags().GetInt("max-attempts")
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		var reader ports.RecordReader
		switch cfg.Discovery.Mode {
		case config.ModeRedis:
			store := redis.New(cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB,
				redis.WithPrefix(cfg.Redis.Prefix),
				redis.WithName(cfg.Redis.Name),
			)
			defer store.Close()
			reader = store
		case config.ModeIPC:
			return fmt.Errorf("discover runs outside the host: use --mode file or redis")
		default:
			reader = portfile.New(cfg.Worker.PortFile)
		}

		opts := []discovery.Option{
			discovery.WithInterval(cfg.Discovery.Interval),
			discovery.WithMaxAttempts(cfg.Discovery.MaxAttempts),
			discovery.WithLogger(logger),
		}
		if maxAge, _ := cmd.Flags().GetDuration("max-age"); maxAge > 0 {
			opts = append(opts, discovery.WithFreshness(time.Now().Add(-maxAge)))
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		session := discovery.NewClient(discovery.FileFallback(reader), opts...).Start(ctx)
		port, err := session.Wait(ctx)

		stderr := cmd.ErrOrStderr()
		profile := tui.Profile(os.Stderr)
		fmt.Fprintln(stderr, tui.StatusLine(session.Status(), profile))
		if err != nil {
			return err
		}

		if asURL, _ := cmd.Flags().GetBool("url"); asURL {
			fmt.Fprintln(cmd.OutOrStdout(), discovery.BaseURL(port))
		} else {
			fmt.Fprintln(cmd.OutOrStdout(), port)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(discoverCmd)
	discoverCmd.Flags().String("mode", "", "Channel to poll: file or redis")
	discoverCmd.Flags().String("port-file", "", "Port file to read (default: temp dir + tauri-sidecar.port)")
	discoverCmd.Flags().Duration("interval", 0, "Delay between attempts (default 500ms)")
	discoverCmd.Flags().Int("max-attempts", 0, "Attempts before giving up (default 30)")
	discoverCmd.Flags().Duration("max-age", 0, "Ignore records older than this")
	discoverCmd.Flags().Bool("url", false, "Print the base URL instead of the port")
}
