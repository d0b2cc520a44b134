package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rflorenc/intersight-workbench/internal/api"
	"github.com/rflorenc/intersight-workbench/internal/logging"
	"github.com/rflorenc/intersight-workbench/internal/models"
)

var listen string

var serveCommand = &cobra.Command{
	Use:   "serve",
	Short: "Serve workbench actions as background runs over HTTP.",
	Args:  cobra.NoArgs,
	RunE:  serve,
}

func setupServeFlags() {
	serveCommand.Flags().StringVar(&listen, "listen", "", "Address to listen on (default from configuration).")
}

func serve(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer logger.Sync()
	if listen != "" {
		cfg.Listen = listen
	}

	server := &api.Server{
		Runs:    models.NewRunStore(),
		Connect: connector(cfg),
		File:    cfg.Workbook,
		Logger:  logger,
	}
	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           api.NewRouter(server),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	logger.Info("server starting",
		zap.String("listen", cfg.Listen),
		zap.String("version", version),
		zap.String(logging.FieldFile, cfg.Workbook),
	)

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
