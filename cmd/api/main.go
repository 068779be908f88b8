package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/kursadbilgin/notification-center/internal/config"
	"github.com/kursadbilgin/notification-center/internal/handler"
	infraredis "github.com/kursadbilgin/notification-center/internal/infra/redis"
	"github.com/kursadbilgin/notification-center/internal/observability"
	"github.com/kursadbilgin/notification-center/internal/provider"
	"github.com/kursadbilgin/notification-center/internal/realtime"
	"github.com/kursadbilgin/notification-center/internal/service"
	"github.com/kursadbilgin/notification-center/internal/transport"
	"github.com/kursadbilgin/notification-center/internal/workerpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config: ", err)
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatal("failed to initialize logger: ", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("notification-center stopped with error", zap.Error(err))
	}
	logger.Info("notification-center stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	metrics := observability.NewMetrics()

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		client, err := infraredis.NewRedis(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("redis initialization failed: %w", err)
		}
		defer client.Close()
		rdb = client
	}

	var hub *realtime.Hub
	if cfg.SocketEnabled {
		hub = realtime.NewHub(logger)
	}

	providers, err := buildProviders(cfg, hub, logger)
	if err != nil {
		return err
	}
	registry, err := provider.NewRegistry(providers...)
	if err != nil {
		return fmt.Errorf("provider registry: %w", err)
	}
	if len(registry.Types()) == 0 {
		logger.Warn("no notification channels enabled; every send will fail")
	}

	pool, err := workerpool.New(cfg.Pool(), logger)
	if err != nil {
		return fmt.Errorf("worker pool: %w", err)
	}
	if err := metrics.RegisterPool(func() (int, int, int) {
		s := pool.Stats()
		return s.Workers, s.Queued, s.Active
	}); err != nil {
		return fmt.Errorf("register pool metrics: %w", err)
	}

	dispatcher, err := service.NewDispatcher(registry, pool, logger)
	if err != nil {
		return err
	}
	dispatcher.SetMetrics(metrics)
	dispatcher.SetBulkParallelism(cfg.BulkParallelism)
	if rdb != nil {
		overrides, err := cfg.RateLimits()
		if err != nil {
			return err
		}
		limiter, err := infraredis.NewRedisRateLimiter(rdb, cfg.RateLimitPerSec, overrides)
		if err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}
		dispatcher.SetRateLimiter(limiter)
	}

	app := fiber.New(fiber.Config{
		AppName:               "notification-center",
		DisableStartupMessage: true,
		ErrorHandler:          transport.ErrorHandler(logger),
	})
	app.Use(observability.CorrelationMiddleware())
	app.Use(metrics.HTTPMiddleware())
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))
	handler.RegisterHealthRoutes(app, dispatcher, rdb)
	if err := handler.RegisterNotificationRoutes(app, dispatcher); err != nil {
		return err
	}

	shutdownTimeout := cfg.Shutdown()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("notification-center api started",
			zap.Int("port", cfg.APIPort),
			zap.Strings("providers", registry.Types()),
		)
		if err := app.Listen(":" + strconv.Itoa(cfg.APIPort)); err != nil {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
			logger.Warn("api shutdown incomplete", zap.Error(err))
		}
		return nil
	})

	if hub != nil {
		srv, err := realtime.NewServer(cfg.SocketHost, cfg.SocketPort, hub, logger)
		if err != nil {
			return fmt.Errorf("socket server: %w", err)
		}
		g.Go(func() error {
			return srv.Run(gctx, shutdownTimeout)
		})
	}

	runErr := g.Wait()

	drainCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := pool.Shutdown(drainCtx); err != nil {
		logger.Warn("dispatch pool did not drain", zap.Error(err))
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}

func buildProviders(cfg *config.Config, hub *realtime.Hub, logger *zap.Logger) ([]provider.Provider, error) {
	var providers []provider.Provider

	if cfg.WhatsAppEnabled {
		pc, err := cfg.WhatsApp()
		if err != nil {
			return nil, err
		}
		p, err := provider.NewWhatsAppProvider(pc, logger.Named("whatsapp"))
		if err != nil {
			return nil, fmt.Errorf("whatsapp provider: %w", err)
		}
		providers = append(providers, p)
	}
	if cfg.SMSEnabled {
		pc, err := cfg.SMS()
		if err != nil {
			return nil, err
		}
		p, err := provider.NewSMSProvider(pc, logger.Named("sms"))
		if err != nil {
			return nil, fmt.Errorf("sms provider: %w", err)
		}
		providers = append(providers, p)
	}
	if cfg.EmailEnabled {
		pc, err := cfg.Email()
		if err != nil {
			return nil, err
		}
		p, err := provider.NewEmailProvider(pc, logger.Named("email"))
		if err != nil {
			return nil, fmt.Errorf("email provider: %w", err)
		}
		providers = append(providers, p)
	}
	if cfg.SocketEnabled && hub != nil {
		p, err := provider.NewSocketProvider(cfg.Socket(), hub, logger.Named("socket"))
		if err != nil {
			return nil, fmt.Errorf("socket provider: %w", err)
		}
		providers = append(providers, p)
	}

	return providers, nil
}
