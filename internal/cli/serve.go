package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/veloxdb/veloxdb"
	"github.com/veloxdb/veloxdb/internal/server"
)

func newServeCommand(a *app) *cobra.Command {
	var (
		listen  string
		dataDir string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Serve the HTTP API. On startup the vectors and index saved in the data
directory are loaded when both files exist; POST /save writes them back.`,
		Example: `  veloxd serve --listen :8000 --data-dir ./data
  VELOXDB_RATE_LIMIT_RPS=100 veloxd serve`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if listen != "" {
				a.cfg.ListenAddr = listen
			}
			if dataDir != "" {
				a.cfg.DataDir = dataDir
			}
			metric, err := veloxdb.ParseMetric(a.cfg.DefaultMetric)
			if err != nil {
				return err
			}

			metrics := server.NewMetrics()
			db := a.newIndex(veloxdb.WithMetricsCollector(metrics))
			srv := server.New(db, server.Config{
				DataDir:        a.cfg.DataDir,
				DefaultMetric:  metric,
				RateLimitRPS:   a.cfg.RateLimitRPS,
				RateLimitBurst: a.cfg.RateLimitBurst,
				Logger:         a.log.Logger,
				Metrics:        metrics,
			})
			defer func() {
				if err := srv.Close(); err != nil {
					a.log.Warn("close index", "error", err)
				}
			}()

			if err := srv.Restore(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return srv.Run(ctx, a.cfg.ListenAddr)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "listen address (overrides config)")
	cmd.Flags().StringVar(&dataDir, "data-dir", "", "data directory (overrides config)")
	return cmd
}
