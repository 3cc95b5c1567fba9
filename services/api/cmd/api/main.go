package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"gobarber/internal/util"
	"gobarber/pkg/broker"
	"gobarber/pkg/events"
	"gobarber/pkg/locale"
	"gobarber/pkg/mail"
	"gobarber/pkg/queue"
	"gobarber/pkg/storage"
	"gobarber/services/api/internal/app"
	"gobarber/services/api/internal/config"
	"gobarber/services/api/internal/server"
)

func main() {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger := util.InitLogger(cfg.LogLevel, cfg.LogFormat)

	loc, err := locale.LoadLocation(cfg.TimeZone)
	if err != nil {
		log.Fatalf("failed to load time zone: %v", err)
	}
	durations, err := cfg.ParseDurations()
	if err != nil {
		log.Fatalf("failed to parse durations: %v", err)
	}

	dispatcher, closeDispatcher, err := newMailDispatcher(cfg, loc)
	if err != nil {
		log.Fatalf("failed to init mail dispatch: %v", err)
	}
	defer closeDispatcher()

	var publisher app.EventPublisher
	if len(cfg.KafkaBrokers) > 0 {
		kp, err := events.NewKafkaPublisher(events.KafkaConfig{Brokers: cfg.KafkaBrokers, Topic: cfg.KafkaTopic})
		if err != nil {
			log.Fatalf("failed to init kafka publisher: %v", err)
		}
		defer kp.Close()
		publisher = kp
	}

	appCore, err := app.New(app.Config{
		DatabaseURL: cfg.DatabaseURL,
		Minio: storage.MinioConfig{
			Endpoint:      cfg.MinioEndpoint,
			AccessKey:     cfg.MinioAccessKey,
			SecretKey:     cfg.MinioSecretKey,
			Bucket:        cfg.MinioBucket,
			UseSSL:        cfg.MinioUseSSL,
			PublicBaseURL: cfg.MinioPublicBaseURL,
			PresignExpiry: durations.PresignExpiry,
		},
		JWTSecret:   cfg.JWTSecret,
		JWTIssuer:   cfg.JWTIssuer,
		JWTAudience: cfg.JWTAudience,
		JWTLeeway:   durations.JWTLeeway,
		TokenTTL:    durations.TokenTTL,
		Mail:        dispatcher,
		Events:      publisher,
		Location:    loc,
	})
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}

	httpServer, err := server.New(server.Config{
		App:                      appCore,
		RedisAddr:                cfg.RedisAddr,
		RedisPassword:            cfg.RedisPassword,
		SignupRateLimitPerMinute: cfg.SignupRateLimitPerMinute,
		LoginRateLimitPerMinute:  cfg.LoginRateLimitPerMinute,
		MaxUploadBytes:           cfg.MaxUploadBytes,
		AllowedOrigins:           cfg.AllowedOrigins,
		TrustedProxyCIDRs:        cfg.TrustedProxyCIDRs,
	})
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}
	defer httpServer.Close()

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("server listening", "addr", addr, "mail_dispatch", cfg.MailDispatch)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		logger.Error("server error", "err", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}

// newMailDispatcher selects how cancellation emails leave the request path.
func newMailDispatcher(cfg config.FileConfig, loc *time.Location) (app.MailDispatcher, func(), error) {
	switch cfg.MailDispatch {
	case config.MailDispatchRedis:
		q, err := queue.NewRedisJobQueue(queue.RedisQueueConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			Stream:   cfg.MailQueueStream,
			Group:    "mailer",
		})
		if err != nil {
			return nil, nil, err
		}
		return app.NewQueueMailDispatcher(q), func() { _ = q.Close() }, nil
	case config.MailDispatchRabbitMQ:
		mq, err := broker.Dial(broker.Config{URL: cfg.RabbitMQURL, Queue: cfg.RabbitMQQueue})
		if err != nil {
			return nil, nil, err
		}
		return app.NewBrokerMailDispatcher(mq), func() { _ = mq.Close() }, nil
	case config.MailDispatchSync:
		renderer, err := mail.NewRenderer(loc)
		if err != nil {
			return nil, nil, err
		}
		sender, err := mail.NewSMTPSender(mail.SMTPConfig{
			Host:               cfg.SMTPHost,
			Port:               cfg.SMTPPort,
			User:               cfg.SMTPUser,
			Password:           cfg.SMTPPassword,
			From:               cfg.SMTPFrom,
			InsecureSkipVerify: cfg.SMTPInsecureSkipVerify,
		})
		if err != nil {
			return nil, nil, err
		}
		return app.NewSyncMailDispatcher(mail.NewMailer(renderer, sender)), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown mail dispatch %q", cfg.MailDispatch)
	}
}
