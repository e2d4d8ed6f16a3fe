package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"communityevents/config"
	"communityevents/internal/adapters/auth"
	"communityevents/internal/adapters/email"
	"communityevents/internal/adapters/queue"
	"communityevents/internal/adapters/realtime"
	deliveryhttp "communityevents/internal/delivery/http"
	"communityevents/internal/delivery/http/controllers"
	"communityevents/internal/delivery/http/middleware"
	"communityevents/internal/domain"
	"communityevents/internal/repository/postgres"
	"communityevents/internal/scheduler"
	"communityevents/internal/services"

	_ "communityevents/docs"
)

const (
	shutdownTimeout   = 10 * time.Second
	queueConcurrency  = 5
	readHeaderTimeout = 5 * time.Second
)

// @title Community Events API
// @version 1.0
// @description Event enrollment with titular seats, waitlists and alternate promotion.
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description JWT Bearer token. Example: "Bearer {token}"
func main() {
	if err := run(); err != nil {
		slog.Error("server exited", "err", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := config.NewLogger(cfg.Environment, cfg.LogLevel, os.Stdout)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := postgres.Open(ctx, cfg.DBUrl)
	if err != nil {
		return err
	}
	defer db.Close()

	eventRepo := postgres.NewEventRepository(db)
	enrollmentRepo := postgres.NewEnrollmentRepository(db)
	userRepo := postgres.NewUserRepository(db)
	uow := postgres.NewUnitOfWork(db, cfg.LockTimeout)

	mailer, err := email.NewMailer(email.MailerConfig{
		Provider:    cfg.Email.Provider,
		FromAddress: cfg.Email.FromAddress,
		FromName:    cfg.Email.FromName,
		SES: email.SESConfig{
			Region:          cfg.Email.AWSRegion,
			AccessKeyID:     cfg.Email.AWSAccessKeyID,
			SecretAccessKey: cfg.Email.AWSSecretAccessKey,
		},
	}, logger)
	if err != nil {
		return fmt.Errorf("mailer: %w", err)
	}
	emailService := services.NewEmailService(mailer, email.NewTemplateRenderer(), logger)
	dispatcher := services.NewNotificationDispatcher(userRepo, eventRepo, emailService, cfg.RequestTimeout)

	g, gctx := errgroup.WithContext(ctx)

	var notifier domain.Notifier
	var worker *asynq.Server
	var workerMux *asynq.ServeMux
	switch cfg.NotifyQueue {
	case config.NotifyQueueAsynq:
		redisOpt := asynq.RedisClientOpt{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB}
		client := asynq.NewClient(redisOpt)
		defer client.Close()
		notifier = queue.NewAsynqNotifier(client, logger)

		worker = queue.NewServer(redisOpt, queueConcurrency, logger)
		workerMux = queue.NewServeMux(queue.NewNotificationHandler(dispatcher, logger))
	default:
		inline := queue.NewInlineNotifier(dispatcher, logger, cfg.RequestTimeout)
		defer inline.Wait()
		notifier = inline
	}

	var publisher domain.StateChangePublisher
	switch cfg.StatePublisher {
	case config.StatePublisherRedis:
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
		publisher = realtime.NewRedisPublisher(rdb)
	case config.StatePublisherAMQP:
		amqpPublisher, err := realtime.NewAMQPPublisher(cfg.AMQPUrl)
		if err != nil {
			return err
		}
		defer amqpPublisher.Close()
		publisher = amqpPublisher
	default:
		publisher = realtime.NewLogPublisher(logger)
	}

	enrollmentService := services.NewEnrollmentService(eventRepo, enrollmentRepo, uow, notifier, publisher, logger, cfg.RequestTimeout)
	eventService := services.NewEventService(eventRepo, enrollmentRepo, uow, notifier, publisher, logger, cfg.RequestTimeout)
	paymentService := services.NewPaymentService(enrollmentService, logger)

	if cfg.PaymentWebhookSecret == "" {
		logger.Warn("PAYMENT_WEBHOOK_SECRET is empty, webhook signatures are not verified")
	}
	mux := deliveryhttp.NewRouter(
		controllers.NewEnrollmentController(logger, enrollmentService),
		controllers.NewEventController(logger, eventService),
		controllers.NewPaymentController(logger, paymentService, cfg.PaymentWebhookSecret),
		auth.NewJWTVerifier(cfg.JWTSecret),
		logger,
	)
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           middleware.CORS(cfg.CORSAllowedOrigins, middleware.LoggingMiddleware(logger, mux)),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	sweeper, err := scheduler.NewElapseSweeper(cfg.ElapseSchedule, eventService, logger)
	if err != nil {
		return err
	}

	// The worker starts after every fallible step; from here on only the errgroup stops it.
	if worker != nil {
		if err := superviseWorker(gctx, g, worker, workerMux); err != nil {
			return err
		}
	}
	g.Go(func() error {
		return sweeper.Run(gctx)
	})

	g.Go(func() error {
		logger.Info("server starting", "port", cfg.Port, "env", cfg.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		logger.Info("server shutting down")
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// backgroundWorker is the part of *asynq.Server that run manages.
type backgroundWorker interface {
	Start(handler asynq.Handler) error
	Shutdown()
}

// superviseWorker starts w and shuts it down once ctx is done. A worker that fails to
// start is not registered with g.
func superviseWorker(ctx context.Context, g *errgroup.Group, w backgroundWorker, handler asynq.Handler) error {
	if err := w.Start(handler); err != nil {
		return fmt.Errorf("start notification worker: %w", err)
	}
	g.Go(func() error {
		<-ctx.Done()
		w.Shutdown()
		return nil
	})
	return nil
}
