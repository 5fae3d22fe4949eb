package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/pelusa-v/pelusa-relay/internal/chat"
	"github.com/pelusa-v/pelusa-relay/internal/config"
	"github.com/pelusa-v/pelusa-relay/internal/handlers"
	"github.com/pelusa-v/pelusa-relay/internal/media"
	"github.com/pelusa-v/pelusa-relay/internal/metrics"
	"github.com/pelusa-v/pelusa-relay/internal/ratelimiter"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the websocket relay",
	Long:  "Runs the websocket relay. Without a config file both stores use the memory driver, which is\nmeant for development: undelivered messages do not survive a restart.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger := cfg.Log.NewLogger(os.Stderr)
		slog.SetDefault(logger)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg, logger)
	},
}

func serve(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	b, err := openBackends(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := b.Close(); err != nil {
			logger.Error("failed to close backends", "error", err.Error())
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	var mediaStore chat.MediaStore
	if cfg.Server.StaticDir != "" {
		ms, err := media.New(cfg.Server.StaticDir, cfg.Media.MaxBytes)
		if err != nil {
			return err
		}
		mediaStore = ms
	}

	hub := chat.NewHub(chat.Deps{
		Store:   b.store,
		Offline: b.offline,
		Media:   mediaStore,
		Limiter: ratelimiter.New(cfg.RateLimit.RPS, cfg.RateLimit.Burst, 10*time.Minute),
		Metrics: metrics.New(reg),
		Logger:  logger,
		Policy:  policyFromConfig(cfg.Delivery),
	})

	app := fiber.New(fiber.Config{
		AppName:               "pelusa-relay",
		DisableStartupMessage: true,
	})
	app.Use(recover.New())
	app.Use(fiberlogger.New(fiberlogger.Config{Output: os.Stderr}))
	handlers.New(handlers.Options{
		Hub:          hub,
		Logger:       logger,
		ReadTimeout:  cfg.WebSocket.Timeout.Std(),
		WriteTimeout: cfg.WebSocket.WriteTimeout.Std(),
		Gatherer:     reg,
		StaticDir:    cfg.Server.StaticDir,
	}).Register(app)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", "addr", cfg.Server.Addr)
		if err := app.Listen(cfg.Server.Addr); err != nil {
			return fmt.Errorf("listen %s: %w", cfg.Server.Addr, err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		var errs []error
		if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
			errs = append(errs, fmt.Errorf("stop http: %w", err))
		}
		drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := hub.Shutdown(drainCtx); err != nil {
			errs = append(errs, fmt.Errorf("drain delivery queue: %w", err))
		}
		return errors.Join(errs...)
	})
	return g.Wait()
}
