package main

import (
	"context"
	"log"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	apiHandler "github.com/featherlive/backend/api/handler"
	"github.com/featherlive/backend/internal/config"
	"github.com/featherlive/backend/internal/infrastructure/monitor"
	pgInfra "github.com/featherlive/backend/internal/infrastructure/postgres"
	redisInfra "github.com/featherlive/backend/internal/infrastructure/redis"
	"github.com/featherlive/backend/internal/metrics"
	"github.com/featherlive/backend/internal/middleware"
	"github.com/featherlive/backend/internal/realtime"
	"github.com/featherlive/backend/internal/router"
	"github.com/featherlive/backend/internal/rtc"
	"github.com/featherlive/backend/internal/scheduler"
	"github.com/featherlive/backend/internal/services/lifecycle"
	"github.com/featherlive/backend/pkg/httpcontext"
	"github.com/featherlive/backend/pkg/keymutex"
	"github.com/featherlive/backend/pkg/logger"
	"github.com/featherlive/backend/repository"
	"github.com/featherlive/backend/repository/postgres"
	redisRepo "github.com/featherlive/backend/repository/redis"
	chatUC "github.com/featherlive/backend/usecase/chat"
	giftUC "github.com/featherlive/backend/usecase/gift"
	pollUC "github.com/featherlive/backend/usecase/poll"
	streamUC "github.com/featherlive/backend/usecase/stream"
	walletUC "github.com/featherlive/backend/usecase/wallet"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	zapLogger, err := logger.New(logger.Config{
		Level:    cfg.Logger.Level,
		Encoding: cfg.Logger.Encoding,
	})
	if err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer zapLogger.Sync()

	appCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	manager := lifecycle.New(cfg.Context.ShutdownTimeout, zapLogger)
	manager.Listen(cancel)

	if err := pgInfra.RunMigrations(cfg, zapLogger); err != nil {
		zapLogger.Fatal("migrations failed", zap.Error(err))
	}

	pool, err := pgInfra.NewPool(appCtx, cfg.Database, zapLogger)
	if err != nil {
		zapLogger.Fatal("postgres connection failed", zap.Error(err))
	}
	manager.Register("postgres", func(ctx context.Context) error {
		pool.Close()
		return nil
	})

	redisClient, err := redisInfra.NewClient(cfg.Redis)
	if err != nil {
		zapLogger.Fatal("redis connection failed", zap.Error(err))
	}
	manager.Register("redis", func(ctx context.Context) error {
		return redisClient.Close()
	})

	taskStore, err := scheduler.Open(cfg.Scheduler.Path, "tasks")
	if err != nil {
		zapLogger.Fatal("failed to open scheduler store", zap.Error(err))
	}
	manager.Register("scheduler_store", func(ctx context.Context) error {
		return taskStore.Close()
	})

	mon := monitor.New(pool, redisClient, taskStore, 10*time.Second, zapLogger)
	mon.Start()
	manager.Register("monitor", func(ctx context.Context) error {
		mon.Stop()
		return nil
	})

	collector := metrics.New()
	hub := realtime.NewHub(collector, zapLogger)

	streamRepo := postgres.NewStreamRepository(pool)
	moderationRepo := postgres.NewModerationRepository(pool)
	pollRepo := postgres.NewPollRepository(pool)
	giftRepo := postgres.NewGiftRepository(pool)
	walletRepo := postgres.NewWalletRepository(pool)
	analyticsRepo := postgres.NewAnalyticsRepository(pool)
	chatRepo := postgres.NewChatRepository(pool)
	userRepo := postgres.NewUserRepository(pool)

	streamCache := redisRepo.NewStreamCache(redisClient, 15*time.Minute)
	dedupStore := redisRepo.NewDedupStore(redisClient, 48*time.Hour)

	rtcClient := rtc.NewClient(cfg.RTC, zapLogger)

	// One shared lock set keeps every mutation of a given stream, wallet or
	// poll on a single goroutine at a time, across all use cases.
	locks := keymutex.New()

	runner := scheduler.NewRunner(taskStore, zapLogger, scheduler.RunnerConfig{
		Interval:   cfg.Scheduler.TickInterval,
		MaxRetries: cfg.Scheduler.MaxRetry,
	})

	streamUseCase := streamUC.New(
		streamRepo, moderationRepo, analyticsRepo, walletRepo, userRepo,
		rtcClient, streamCache, dedupStore, hub, locks, zapLogger,
		streamUC.Config{
			SingleActiveSession: cfg.Stream.SingleActiveSession,
			UpdateRetries:       cfg.Stream.UpdateRetries,
		},
	)
	chatUseCase := chatUC.New(streamRepo, chatRepo, analyticsRepo, hub, locks, zapLogger, cfg.Stream.MaxChatLength)
	giftUseCase := giftUC.New(streamRepo, giftRepo, walletRepo, analyticsRepo, hub, locks, zapLogger, cfg.Stream.CommissionPercent)
	pollUseCase := pollUC.New(streamRepo, pollRepo, hub, runner, locks, zapLogger)
	walletUseCase := walletUC.New(walletRepo, zapLogger)

	runner.Register(scheduler.KindPollExpiry, func(ctx context.Context, task scheduler.Task) error {
		return pollUseCase.Expire(ctx, task.TargetID)
	})
	runner.Start()
	manager.Register("scheduler", func(ctx context.Context) error {
		runner.Stop(ctx)
		return nil
	})

	// Polls whose window passed while the process was down never got their
	// expiry callback; close them before traffic arrives.
	recoverExpiredPolls(appCtx, pollRepo, pollUseCase, zapLogger)

	verifier := middleware.NewVerifier(cfg.JWT.Secret)

	streamChannel := realtime.NewStreamChannel(hub, streamUseCase, chatUseCase, giftUseCase, pollUseCase, collector, zapLogger)
	messagingChannel := realtime.NewMessagingChannel(hub, zapLogger)
	realtimeServer := realtime.NewServer(cfg.Realtime, hub, streamChannel, messagingChannel, verifier, collector, zapLogger)

	ctxAdapter := httpcontext.NewAdapter(cfg.Context.RequestTimeout)

	handlers := router.Handlers{
		Stream:  apiHandler.NewStreamHandler(streamUseCase, chatUseCase, ctxAdapter, zapLogger),
		Poll:    apiHandler.NewPollHandler(pollUseCase, ctxAdapter, zapLogger),
		Gift:    apiHandler.NewGiftHandler(giftUseCase, ctxAdapter, zapLogger),
		Wallet:  apiHandler.NewWalletHandler(walletUseCase, ctxAdapter, zapLogger),
		Webhook: apiHandler.NewWebhookHandler(streamUseCase, cfg.RTC.WebhookSecret, ctxAdapter, zapLogger),
		Health:  apiHandler.NewHealthHandler(mon, ctxAdapter, zapLogger),
	}

	authMiddleware := middleware.JWTAuth(verifier, zapLogger)
	r := router.New(handlers, authMiddleware)

	server := &fasthttp.Server{
		Handler:      r.Handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
		Name:         cfg.AppName,
	}

	g, _ := errgroup.WithContext(appCtx)
	g.Go(func() error {
		zapLogger.Info("server started", zap.String("address", cfg.Address()))
		return server.ListenAndServe(cfg.Address())
	})
	g.Go(realtimeServer.ListenAndServe)
	go func() {
		if err := g.Wait(); err != nil {
			zapLogger.Error("listener failed", zap.Error(err))
			cancel()
		}
	}()

	manager.Register("http_server", func(ctx context.Context) error {
		return server.Shutdown()
	})
	manager.Register("realtime_server", func(ctx context.Context) error {
		return realtimeServer.Shutdown(ctx)
	})

	<-appCtx.Done()

	if err := manager.Shutdown(context.Background()); err != nil {
		zapLogger.Error("graceful shutdown error", zap.Error(err))
	}
}

func recoverExpiredPolls(ctx context.Context, polls repository.PollRepository, uc *pollUC.UseCase, zapLogger *zap.Logger) {
	overdue, err := polls.ListExpiredActive(ctx, time.Now())
	if err != nil {
		zapLogger.Error("expired poll recovery scan failed", zap.Error(err))
		return
	}
	for _, p := range overdue {
		if err := uc.Expire(ctx, p.ID); err != nil {
			zapLogger.Error("expired poll recovery failed",
				zap.String("poll_id", p.ID), zap.Error(err))
		}
	}
	if len(overdue) > 0 {
		zapLogger.Info("recovered overdue polls", zap.Int("count", len(overdue)))
	}
}
