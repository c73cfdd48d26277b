package app

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/blackwell-systems/droiddb/internal/access"
	"github.com/blackwell-systems/droiddb/internal/httpapi"
	"github.com/blackwell-systems/droiddb/internal/metrics"
	"github.com/blackwell-systems/droiddb/internal/snapshots"
	"github.com/blackwell-systems/droiddb/internal/transfer"
	"github.com/blackwell-systems/droiddb/internal/watcher"
)

var (
	serveAddr string

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Long: `Serve devices, packages, pulls and snapshot browsing over HTTP, plus
Prometheus metrics on /metrics. Logs are written to stdout as JSON.

While serving, the snapshot directory is watched and sessions whose files
are deleted are dropped. Stop with Ctrl+C.`,
		Example: `  droiddb serve
  droiddb serve --addr 0.0.0.0:8765`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}
)

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config, 127.0.0.1:8765)")
}

func runServe(cmd *cobra.Command, args []string) error {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))

	runner, err := openRunner()
	if err != nil {
		return err
	}
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	s := settings()
	strategy := transfer.New(runner, logger)
	strategy.StagingDir = s.StagingDir
	resolver := access.NewResolver(runner, logger)
	mgr := snapshots.New(resolver, strategy, st, s.TempDir, logger)

	w, err := watcher.New(st, s.TempDir, logger)
	if err != nil {
		return err
	}
	if err := w.Start(); err != nil {
		return fmt.Errorf("failed to start snapshot watcher: %w", err)
	}
	defer w.Stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(metrics.Collectors()...)
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	addr := serveAddr
	if addr == "" {
		addr = s.HTTPAddr
	}
	api := httpapi.New(resolver, mgr, reg, s.Timeout, logger)
	server := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("serving", "addr", addr, "snapshot_dir", s.TempDir)
	return httpapi.RunServer(ctx, server, logger)
}
