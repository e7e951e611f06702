package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/robert-malhotra/swiftserve/hdf5"
	"github.com/robert-malhotra/swiftserve/internal/config"
	"github.com/robert-malhotra/swiftserve/internal/locator"
	"github.com/robert-malhotra/swiftserve/internal/metadata"
	"github.com/robert-malhotra/swiftserve/internal/metrics"
	"github.com/robert-malhotra/swiftserve/internal/query"
	"github.com/robert-malhotra/swiftserve/internal/units"
	"github.com/robert-malhotra/swiftserve/swift"
)

var (
	configPath  string
	aliasFlag   string
	pathFlag    string
	logLevel    string
	logFormat   string
	metricsFile string
	requestID   string
)

// app is the state shared by subcommands once the config is loaded.
var app struct {
	cfg      *config.Config
	logger   log.Logger
	registry *prometheus.Registry
	table    *locator.Table
	svc      *swift.Service
}

var rootCmd = &cobra.Command{
	Use:          "swiftserve",
	Short:        "Query SWIFT HDF5 snapshots by alias or path",
	SilenceUsage: true,
	Long: `swiftserve reads fields, metadata and units out of SWIFT snapshot files.

Datasets are named either by --path or by an --alias configured in
~/.swiftserve/swiftserve.yaml (or SWIFTSERVE_DATASETS="alias=path,...").`,
	PersistentPreRunE: setup,
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if metricsFile == "" || app.registry == nil {
			return nil
		}
		return prometheus.WriteToTextfile(metricsFile, app.registry)
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "config file (default ~/.swiftserve/swiftserve.yaml)")
	pf.StringVar(&aliasFlag, "alias", "", "dataset alias from the config")
	pf.StringVar(&pathFlag, "path", "", "explicit snapshot path (overrides --alias)")
	pf.StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.StringVar(&logFormat, "log-format", "", "log format: logfmt or json")
	pf.StringVar(&metricsFile, "metrics-file", "", "write Prometheus metrics to this file on exit")
	pf.StringVar(&requestID, "request-id", "", "request id for log lines (default random)")
}

// Execute runs the root command and exits with a code derived from the
// error kind.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCode(err))
	}
}

func setup(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("cannot load config: %w", err)
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFormat != "" {
		cfg.Log.Format = logFormat
	}

	logger, err := newLogger(os.Stderr, cfg.Log)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)

	opener := query.HDF5Opener{
		SharedLock:  cfg.HDF5.SharedLock,
		LockTimeout: cfg.HDF5.LockTimeout,
		ReadAhead:   cfg.HDF5.ReadAhead,
	}
	opts := openOptions(cfg.HDF5)
	cache, err := metadata.NewCache(cfg.MetadataCacheSize, func(ctx context.Context, path string, u *units.Map) (*metadata.Object, error) {
		return metadata.Build(ctx, path, u, opts...)
	})
	if err != nil {
		return err
	}

	table := locator.NewTable(cfg.Datasets)
	app.cfg = cfg
	app.logger = logger
	app.registry = reg
	app.table = table
	app.svc = swift.New(table, query.NewEngine(opener, logger), cache, m, logger, swift.Options{
		MaxMaskSize: cfg.MaxMaskSize,
		OpenOptions: opts,
	})

	level.Debug(logger).Log("msg", "config loaded", "datasets", len(cfg.Datasets), "max_mask_size", cfg.MaxMaskSize)
	return nil
}

func openOptions(c config.HDF5Config) []hdf5.OpenOption {
	var opts []hdf5.OpenOption
	if c.SharedLock {
		opts = append(opts, hdf5.WithSharedLock(), hdf5.WithLockTimeout(c.LockTimeout))
	}
	if c.ReadAhead {
		opts = append(opts, hdf5.WithReadAhead())
	}
	return opts
}

// reference builds the dataset reference from --path and --alias.
func reference() (locator.Reference, error) {
	if pathFlag == "" && aliasFlag == "" {
		return locator.Reference{}, fmt.Errorf("one of --alias or --path is required")
	}
	return locator.Reference{Alias: aliasFlag, Path: pathFlag}, nil
}

// requestContext returns the command context tagged with the request id.
func requestContext(cmd *cobra.Command) context.Context {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if requestID != "" {
		ctx = swift.WithRequestID(ctx, requestID)
	}
	return ctx
}

func stdout(cmd *cobra.Command) io.Writer {
	return cmd.OutOrStdout()
}
