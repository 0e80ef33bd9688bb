package cli

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.uber.org/zap"

	"github.com/arxiv/relations/internal/infra/database"
	"github.com/arxiv/relations/internal/present/rest"
	"github.com/arxiv/relations/internal/present/rest/middleware"
	"github.com/arxiv/relations/internal/service"
	"github.com/arxiv/relations/internal/telemetry"
	"github.com/arxiv/relations/internal/usecase"
)

const version = "1.0.0"

type serveOptions struct {
	migrate bool
}

func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := rootOpts.loadConfig()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			return runServe(ctx, a, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.migrate, "migrate", false, "apply schema migrations before serving")
	return cmd
}

func runServe(ctx context.Context, a *app, opts *serveOptions) error {
	cfg := a.cfg
	logger := a.logger

	if opts.migrate {
		if err := database.Migrate(a.db); err != nil {
			return err
		}
		logger.Info("schema migrated")
	}

	if cfg.Trace.Enable {
		shutdown, err := telemetry.SetupTracing(ctx, cfg.Trace.ServiceName, version, cfg.Trace.Endpoint)
		if err != nil {
			return err
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				logger.Warn("failed to flush traces", zap.Error(err))
			}
		}()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	lineageOpts := []usecase.LineageOption{
		usecase.WithMetrics(telemetry.NewMetrics(reg)),
		usecase.WithLogger(logger),
	}
	var realtime rest.Realtime
	signalService, err := a.signal(ctx)
	if err != nil {
		return err
	}
	if signalService != nil {
		lineageOpts = append(lineageOpts, usecase.WithEventPublisher(signalService))
		realtime = signalService
	}

	lineage := usecase.NewLineageUsecase(a.uow, lineageOpts...)
	query := usecase.NewQueryUsecase(a.uow, a.relationCache())

	if cfg.Backup.Enable {
		backup, err := a.backupService(ctx)
		if err != nil {
			return err
		}
		scheduler := cron.New()
		if _, err := backup.Schedule(scheduler, cfg.Backup.Schedule); err != nil {
			return err
		}
		scheduler.Start()
		defer scheduler.Stop()
		logger.Info("backups scheduled", zap.String("schedule", cfg.Backup.Schedule))
	}

	auth := middleware.NewAuthMiddleware(service.NewAuthService(cfg.Server.APIKeyHash))
	handler := rest.NewHandler(lineage, query, realtime, reg, logger)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	if cfg.Trace.Enable {
		e.Use(otelecho.Middleware(cfg.Trace.ServiceName))
	}
	e.Use(auth.IdentifyIdentity)
	e.Use(middleware.RequestLogger(logger))
	handler.RegisterRoutes(e, auth)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", zap.String("addr", cfg.Server.Addr))
		if err := e.Start(cfg.Server.Addr); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}
