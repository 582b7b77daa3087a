package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/parasvc/fabric/internal/logger"
	"github.com/parasvc/fabric/pkg/config"
	"github.com/parasvc/fabric/pkg/filetransfer"
	"github.com/parasvc/fabric/pkg/ipc/manager"
	"github.com/parasvc/fabric/pkg/ipcserver"
	"github.com/parasvc/fabric/pkg/metrics"
	"github.com/parasvc/fabric/pkg/provider"
	"github.com/spf13/cobra"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the paramfabricd daemon",
	Long: `Start the paramfabricd daemon: the object-management IPC backend
that parameter and file providers register against, the HTTP file-transfer
engine that serves downloads and uploads, and (if enabled) the Prometheus
metrics endpoint.

Examples:
  # Start with the default configuration file
  paramfabricd start

  # Start with a custom configuration file
  paramfabricd start --config /etc/paramfabric/config.yaml

  # Override logging level via environment variable
  FABRIC_LOGGING_LEVEL=DEBUG paramfabricd start`,
	RunE: runStart,
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	if err := logger.Init(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	logger.Info("paramfabricd starting", "version", Version, "commit", Commit)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var collectors *metrics.Collectors
	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
		collectors = metrics.NewCollectors()
		metricsServer = &http.Server{
			Addr:    cfg.Metrics.Address,
			Handler: metrics.Handler(),
		}
		logger.Info("metrics enabled", "address", cfg.Metrics.Address)
	} else {
		logger.Info("metrics disabled")
	}

	active := &provider.ActiveRegistry{}

	registryFactory := func(mgr *manager.Manager) (*provider.Registry, func()) {
		reg := provider.NewRegistry(mgr, cfg.Provider.ConcurrentWorkers, cfg.Provider.SerializedQueueSize)
		reg.SetMetrics(collectors, mgr.Adapter().ConnectionInfo().Name)
		active.Set(reg)
		return reg, func() { active.ClearIfCurrent(reg) }
	}

	ipcServer := ipcserver.NewServer(cfg.IPC.ListenAddress, uint32(cfg.IPC.MaxSendData), registryFactory)

	fileHandler := &filetransfer.Handler{
		Files:         active,
		Parameters:    active,
		MaxUploadSize: uint64(cfg.FileTransfer.MaxUploadSize),
		Metrics:       collectors,
	}
	fileServer := filetransfer.NewServer(
		cfg.FileTransfer.ListenAddress,
		fileHandler,
		cfg.FileTransfer.CORSAllowedOrigins,
		cfg.FileTransfer.ReadTimeout,
		cfg.FileTransfer.WriteTimeout,
	)

	ipcDone := make(chan error, 1)
	go func() { ipcDone <- ipcServer.Start(ctx) }()

	fileDone := make(chan error, 1)
	go func() { fileDone <- fileServer.Start(ctx) }()

	metricsDone := make(chan error, 1)
	if metricsServer != nil {
		go func() {
			err := metricsServer.ListenAndServe()
			if errors.Is(err, http.ErrServerClosed) {
				err = nil
			}
			metricsDone <- err
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("paramfabricd running",
		"ipc_address", cfg.IPC.ListenAddress,
		"file_transfer_address", cfg.FileTransfer.ListenAddress,
	)

	select {
	case <-sigChan:
		signal.Stop(sigChan)
		logger.Info("shutdown signal received, initiating graceful shutdown")
		cancel()
		if metricsServer != nil {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
			_ = metricsServer.Shutdown(shutdownCtx)
			shutdownCancel()
		}

	case err := <-ipcDone:
		signal.Stop(sigChan)
		if err != nil {
			logger.Error("ipc server error", "error", err)
			cancel()
			return err
		}

	case err := <-fileDone:
		signal.Stop(sigChan)
		if err != nil {
			logger.Error("file-transfer server error", "error", err)
			cancel()
			return err
		}

	case err := <-metricsDone:
		signal.Stop(sigChan)
		if err != nil {
			logger.Error("metrics server error", "error", err)
			cancel()
			return err
		}
	}

	if err := <-fileDone; err != nil {
		logger.Error("file-transfer server shutdown error", "error", err)
	}
	if err := <-ipcDone; err != nil {
		logger.Error("ipc server shutdown error", "error", err)
	}

	logger.Info("paramfabricd stopped")
	return nil
}
