package main

import (
	"context"
	"os"

	httpAdapter "github.com/aretw0/sidecar/internal/adapters/http"
	"github.com/aretw0/sidecar/internal/adapters/redis"
	"github.com/aretw0/sidecar/internal/metrics"
	"github.com/aretw0/sidecar/pkg/worker"
	"github.com/spf13/cobra"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the sidecar worker",
	Long: `Binds an OS-assigned loopback port, prints SIDECAR_PORT:<port> on stdout,
writes the port to the fallback file and serves /ping and /version until it
receives SIGINT or SIGTERM.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, logger, err := setup(cmd)
		if err != nil {
			logger := fallbackLogger()
			logger.Error("Invalid configuration", "error", err)
			os.Exit(1)
		}

		if cmd.Flags().Changed("address") {
			cfg.Worker.Address, _ = cmd.Flags().GetString("address")
		}
		if cmd.Flags().Changed("port-file") {
			cfg.Worker.PortFile, _ = cmd.Flags().GetString("port-file")
		}
		if noFile, _ := cmd.Flags().GetBool("no-port-file"); noFile {
			cfg.Worker.DisablePortFile = true
		}
		if cmd.Flags().Changed("cors-origin") {
			cfg.Worker.CORSOrigin, _ = cmd.Flags().GetString("cors-origin")
		}

		var m *metrics.Metrics
		if cfg.Worker.Metrics {
			m = metrics.New()
		}

		opts := []worker.Option{
			worker.WithAddress(cfg.Worker.Address),
			worker.WithLogger(logger),
			worker.WithShutdownTimeout(cfg.Worker.ShutdownTimeout),
			worker.WithHandler(httpAdapter.NewHandler(httpAdapter.Config{
				AllowedOrigin: cfg.Worker.CORSOrigin,
				Metrics:       m,
				Logger:        logger,
			})),
		}
		if cfg.Worker.DisablePortFile {
			opts = append(opts, worker.WithoutPortFile())
		} else {
			opts = append(opts, worker.WithPortFile(cfg.Worker.PortFile))
		}
		if cfg.Redis.Address != "" {
			store := redis.New(cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB,
				redis.WithPrefix(cfg.Redis.Prefix),
				redis.WithName(cfg.Redis.Name),
				redis.WithTTL(cfg.Redis.TTL),
			)
			defer store.Close()
			opts = append(opts, worker.WithPublisher(store))
		}

		w := worker.New(opts...)
		err = w.Run(context.Background())
		if err != nil {
			logger.Error("Worker failed", "error", err)
		}
		logger.Info("Go sidecar process exiting")
		if code := worker.ExitCode(err); code != 0 {
			os.Exit(code)
		}
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
	workerCmd.Flags().String("address", "", "Bind address (the port should be 0)")
	workerCmd.Flags().String("port-file", "", "Fallback port file (default: temp dir + tauri-sidecar.port)")
	workerCmd.Flags().Bool("no-port-file", false, "Do not write the fallback port file")
	workerCmd.Flags().String("cors-origin", "", "Access-Control-Allow-Origin value for the host UI")
}
