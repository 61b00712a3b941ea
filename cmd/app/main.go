package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"calpay/internal/booking"
	"calpay/internal/config"
	"calpay/internal/credential"
	"calpay/internal/db"
	"calpay/internal/email"
	"calpay/internal/eventtype"
	"calpay/internal/idempotency"
	"calpay/internal/logger"
	"calpay/internal/mq"
	"calpay/internal/obs"
	"calpay/internal/payment"
	"calpay/internal/server"
	"calpay/internal/stripe"
	"calpay/internal/user"
)

func main() {
	logger.Init()
	logger.Info("Starting calpay")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracer, err := obs.InitTracer(ctx, cfg.OTLPEndpoint, cfg.Env)
	if err != nil {
		logger.Fatalf("Failed to init tracer: %v", err)
	}

	database, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	if err := db.RunMigrations(database, cfg.MigrationsPath); err != nil {
		logger.Fatalf("Failed to run migrations: %v", err)
	}
	logger.Info("Migrations completed")

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})

	emailService := email.New(rdb,
		cfg.EmailFrom,
		cfg.EmailFromName,
		cfg.SMTPHost,
		cfg.SMTPPort,
		cfg.SMTPUser,
		cfg.SMTPPass,
	)
	defer emailService.Close()
	go emailService.Start(ctx)

	var publisher mq.EventPublisher = mq.LogPublisher{}
	if cfg.AMQPURL != "" {
		p, err := mq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			logger.Warn("rabbitmq unavailable, logging events instead", "error", err)
		} else {
			defer p.Close()
			publisher = p
		}
	}

	bookingRepo := booking.NewRepository(database)
	paymentRepo := payment.NewRepository(database)
	eventTypeRepo := eventtype.NewRepository(database)
	userRepo := user.NewRepository(database)
	credentialRepo := credential.NewRepository(database)

	gateway := stripe.NewGateway(nil)
	resolver := credential.NewResolver(credentialRepo, cfg.StripePrivateKey, cfg.StripeWebhookSecret)
	notifier := booking.NewNotifier(emailService, publisher)

	creator := payment.NewCreator(paymentRepo, resolver, gateway, cfg.WebappURL)
	confirmer := payment.NewConfirmer(paymentRepo, bookingRepo, eventTypeRepo, notifier)
	releaser := payment.NewReleaser(bookingRepo, resolver, gateway, notifier)
	reconciler := payment.NewReconciler(paymentRepo, resolver, stripe.NewVerifier(),
		idempotency.NewRedisStore(rdb, idempotency.DefaultTTL), confirmer, releaser)
	returns := payment.NewReturns(paymentRepo, bookingRepo, eventTypeRepo, resolver, gateway, confirmer, releaser, cfg.WebappURL)
	paymentService := payment.NewService(paymentRepo, bookingRepo, resolver, gateway, publisher)

	srv := server.New(cfg, server.Handlers{
		Users:       user.NewHandler(user.NewService(userRepo, cfg.JWTSecret)),
		Bookings:    booking.NewHandler(booking.NewService(bookingRepo, eventTypeRepo, creator, notifier)),
		Payments:    payment.NewHandler(reconciler, returns, paymentService),
		Credentials: credential.NewHandler(credentialRepo),
	}, server.System{
		Checks: map[string]server.Check{
			"postgres": func(ctx context.Context) error { return db.Ping(ctx, database) },
			"redis":    func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		},
		Queue:  emailService,
		Mailer: emailService,
	})

	serverErrChan := make(chan error, 1)
	go func() {
		logger.Infof("Server starting on port %s", cfg.Port)
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			serverErrChan <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Infof("Received signal: %v", sig)
	case err := <-serverErrChan:
		logger.Errorf("Server error: %v", err)
	}

	logger.Info("Shutting down gracefully...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Error during server shutdown: %v", err)
	}
	if err := shutdownTracer(shutdownCtx); err != nil {
		logger.Errorf("Error flushing traces: %v", err)
	}

	logger.Info("Server stopped")
}
