package cli

import (
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	"github.com/veloxdb/veloxdb"
	"github.com/veloxdb/veloxdb/internal/config"
)

// app carries state shared by every subcommand.
type app struct {
	cfgFile  string
	logLevel string
	cfg      config.Config
	log      *veloxdb.Logger
}

// NewRootCommand creates the veloxd command tree.
func NewRootCommand(version, commit, date string) *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "veloxd",
		Short: "Vector similarity engine",
		Long: `veloxd stores float32 vectors, trains IVF indexes over them with k-means
and answers nearest-neighbor queries, either as an HTTP server or through
one-shot commands that work on .fvecs and .ivf files.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load(cmd.ErrOrStderr())
		},
	}

	rootCmd.PersistentFlags().StringVarP(&a.cfgFile, "config", "c", "", "YAML config file path")
	rootCmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "override log level (debug, info, warn, error)")

	rootCmd.AddCommand(newServeCommand(a))
	rootCmd.AddCommand(newGenCommand(a))
	rootCmd.AddCommand(newTrainCommand(a))
	rootCmd.AddCommand(newQueryCommand(a))
	rootCmd.AddCommand(newSnapshotCommand(a))
	rootCmd.AddCommand(newPushCommand(a))
	rootCmd.AddCommand(newPullCommand(a))
	rootCmd.AddCommand(newListCommand(a))
	rootCmd.AddCommand(newVersionCommand(version, commit, date))

	return rootCmd
}

func (a *app) load(stderr io.Writer) error {
	cfg, err := config.Load(a.cfgFile)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
		if err := config.Validate(&cfg); err != nil {
			return err
		}
	}
	a.cfg = cfg

	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	var h slog.Handler
	if strings.EqualFold(cfg.LogFormat, "text") {
		h = slog.NewTextHandler(stderr, opts)
	} else {
		h = slog.NewJSONHandler(stderr, opts)
	}
	a.log = veloxdb.NewLogger(h)
	return nil
}

// newIndex builds a VectorIndex configured from the loaded config.
func (a *app) newIndex(extra ...veloxdb.Option) *veloxdb.VectorIndex {
	opts := []veloxdb.Option{
		veloxdb.WithLogger(a.log),
		veloxdb.WithSIMD(a.cfg.SIMD),
		veloxdb.WithSeed(a.cfg.Seed),
		veloxdb.WithTrainingWorkers(a.cfg.TrainingWorkers),
	}
	return veloxdb.New(append(opts, extra...)...)
}

func newVersionCommand(version, commit, date string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return nil
		},
		Run: func(cmd *cobra.Command, _ []string) {
			if version == "" {
				version = "dev"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "veloxd %s (%s) built on %s\n", version, commit, date)
			fmt.Fprintf(cmd.OutOrStdout(), "Go version: %s\n", runtime.Version())
			fmt.Fprintf(cmd.OutOrStdout(), "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}
