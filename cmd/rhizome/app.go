package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/orneryd/rhizome/pkg/config"
	"github.com/orneryd/rhizome/pkg/encryption"
	"github.com/orneryd/rhizome/pkg/logging"
	"github.com/orneryd/rhizome/pkg/pool"
	"github.com/orneryd/rhizome/pkg/storage"
	"github.com/orneryd/rhizome/pkg/telemetry"
)

// app bundles what every command needs: validated config, logger, store
// and metrics.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	logClose io.Closer
	sealer   *encryption.Sealer
	store    *storage.Store
	registry *prometheus.Registry
	metrics  *telemetry.Metrics
	out      io.Writer
	json     bool
}

// newApp loads the config, applies command-line overrides, validates it and
// opens the store.
func newApp(cmd *cobra.Command) (*app, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	applyFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, logClose, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	logger.Debug("config loaded", "config", cfg.String())
	pool.Configure(pool.PoolConfig{Enabled: cfg.Pool.Enabled, MaxSize: cfg.Pool.MaxSize})

	var sealer *encryption.Sealer
	if cfg.Storage.Passphrase != "" {
		sealer, err = encryption.NewSealer(cfg.Storage.Passphrase)
		if err != nil {
			logClose.Close()
			return nil, err
		}
	}
	store, err := storage.Open(storage.Options{
		DataDir:  cfg.Storage.DataDir,
		InMemory: cfg.Storage.InMemory,
		Sealer:   sealer,
		Logger:   logger,
	})
	if err != nil {
		if sealer != nil {
			sealer.Wipe()
		}
		logClose.Close()
		return nil, fmt.Errorf("opening store: %w", err)
	}

	reg := prometheus.NewRegistry()
	asJSON, _ := cmd.Flags().GetBool("json")
	return &app{
		cfg:      cfg,
		logger:   logger,
		logClose: logClose,
		sealer:   sealer,
		store:    store,
		registry: reg,
		metrics:  telemetry.NewMetrics(reg, cfg.Telemetry.Namespace),
		out:      cmd.OutOrStdout(),
		json:     asJSON,
	}, nil
}

// Close closes the store and the log output, then wipes the sealer keys.
func (a *app) Close() error {
	err := errors.Join(a.store.Close(), a.logClose.Close())
	if a.sealer != nil {
		a.sealer.Wipe()
	}
	return err
}

// applyFlags copies explicitly set flags over the loaded config.
func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	if v, _ := f.GetString("data-dir"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v, _ := f.GetString("passphrase"); v != "" {
		cfg.Storage.Passphrase = v
	}
	if v, _ := f.GetString("log-level"); v != "" {
		cfg.Logging.Level = v
	}
	if f.Changed("seed") {
		cfg.Growth.Seed, _ = f.GetInt64("seed")
	}
	if v, _ := f.GetInt("seeds"); v > 0 {
		cfg.Growth.SeedCount = v
	}
	if f.Lookup("save-every") != nil {
		if v, _ := f.GetInt("save-every"); v >= 0 {
			cfg.Storage.SaveEvery = v
		}
	}
	if v, _ := f.GetBool("in-memory"); v {
		cfg.Storage.InMemory = true
	}
	if v, _ := f.GetString("metrics-addr"); v != "" {
		cfg.Telemetry.MetricsAddr = v
	}
}

// serveMetrics exposes /metrics on cfg.Telemetry.MetricsAddr until the
// returned stop function is called. It is a no-op without an address.
func (a *app) serveMetrics() (stop func()) {
	addr := a.cfg.Telemetry.MetricsAddr
	if addr == "" {
		return func() {}
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", telemetry.Handler(a.registry))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server failed", "addr", addr, "error", err)
		}
	}()
	a.logger.Info("serving metrics", "addr", addr)

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			a.logger.Warn("metrics server shutdown", "error", err)
		}
	}
}
