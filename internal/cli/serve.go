package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"github.com/Ramsey-B/clover/config"
	"github.com/Ramsey-B/clover/internal/app"
	"github.com/Ramsey-B/clover/pkg/kafka"
	"github.com/Ramsey-B/clover/pkg/middleware"
	"github.com/Ramsey-B/clover/pkg/routes/consolidated"
	"github.com/Ramsey-B/clover/pkg/routes/health"
	ingestroutes "github.com/Ramsey-B/clover/pkg/routes/ingest"
	"github.com/Ramsey-B/clover/pkg/routes/reports"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

const shutdownTimeout = 15 * time.Second

func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	var migrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and, when enabled, the Kafka rebuild trigger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), rootOpts, migrate)
		},
	}

	cmd.Flags().BoolVar(&migrate, "migrate", true, "apply ledger migrations on startup")

	return cmd
}

func serve(ctx context.Context, rootOpts *RootOptions, migrate bool) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, logger, sync, err := setup(rootOpts)
	if err != nil {
		return err
	}
	defer sync()

	if cfg.OTLPEnabled {
		shutdownTracing, err := tracing.Setup(ctx, tracing.Config{
			ServiceName: cfg.AppName,
			Endpoint:    cfg.OTLPEndpoint,
			Protocol:    cfg.OTLPProtocol,
			Insecure:    cfg.OTLPInsecure,
		})
		if err != nil {
			return err
		}
		defer func() { _ = shutdownTracing(context.WithoutCancel(ctx)) }()
	}

	a := app.New(cfg, logger)
	if err := a.Start(ctx, app.Options{Migrate: migrate}); err != nil {
		_ = a.Stop(context.WithoutCancel(ctx))
		return err
	}
	defer func() {
		if err := a.Stop(context.WithoutCancel(ctx)); err != nil {
			logger.WithError(err).Warn("Failed to stop dependencies cleanly")
		}
	}()

	checker := newChecker(a)
	e := newServer(cfg, logger, a, checker)

	if cfg.KafkaConsumerEnabled {
		consumer := kafka.NewConsumer(kafka.ConsumerConfig{
			Brokers:       cfg.KafkaBrokers,
			Topic:         cfg.KafkaTriggerTopic,
			ConsumerGroup: cfg.KafkaConsumerGroup,
		}, logger, kafka.RebuildHandler(a.Coordinator.RebuildErr, cfg.RebuildRetryDelay, cfg.RebuildRetryAttempts, logger))
		if err := consumer.Start(ctx); err != nil {
			return err
		}
		defer func() { _ = consumer.Stop() }()
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		ReadTimeout:       time.Duration(cfg.HttpServerReadTimeoutSeconds) * time.Second,
		WriteTimeout:      time.Duration(cfg.HttpServerWriteTimeoutSeconds) * time.Second,
		IdleTimeout:       time.Duration(cfg.HttpServerIdleTimeoutSeconds) * time.Second,
		ReadHeaderTimeout: time.Duration(cfg.ReadHeaderTimeoutSeconds) * time.Second,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Infof("Starting %s %s on port %d", cfg.AppName, cfg.Version, cfg.Port)
		if err := e.StartServer(server); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()
	checker.SetReady(true)

	select {
	case <-ctx.Done():
		logger.Info("Shutting down")
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	}

	checker.SetReady(false)
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

func newChecker(a *app.App) *health.Checker {
	checker := health.NewChecker(a.Config.Version, 2*time.Second)
	checker.AddCheck(app.DependencyLedger, a.Ledger.Ping)
	checker.AddCheck(app.DependencyGraph, a.Friends.Ping)
	checker.AddCheck(app.DependencyViewStore, a.Redis.Ping)
	if a.Mongo != nil {
		checker.AddCheck(app.DependencyInterests, func(ctx context.Context) error {
			return a.Mongo.Ping(ctx, readpref.Primary())
		})
	}
	return checker
}

func newServer(cfg config.Config, logger ectologger.Logger, a *app.App, checker *health.Checker) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.Error(logger)

	e.Use(echomw.Recover())
	e.Use(otelecho.Middleware(cfg.AppName))
	e.Use(middleware.Context())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.AllowOrigins,
		AllowMethods: cfg.AllowMethods,
	}))

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	checker.RegisterRoutes(e)

	api := e.Group("/api/v1")
	consolidated.NewHandler(a.Coordinator, a.View, logger).Register(api)
	ingestroutes.NewHandler(a.Ingest).Register(api)
	reports.NewHandler(a.Ledger).Register(api)

	return e
}
