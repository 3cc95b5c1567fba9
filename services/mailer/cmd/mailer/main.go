package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"gobarber/internal/util"
	"gobarber/pkg/broker"
	"gobarber/pkg/locale"
	"gobarber/pkg/mail"
	"gobarber/pkg/queue"
	"gobarber/services/mailer/internal/app"
	"gobarber/services/mailer/internal/config"
)

func main() {
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
	renderer, err := mail.NewRenderer(loc)
	if err != nil {
		log.Fatalf("failed to init mail renderer: %v", err)
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
		log.Fatalf("failed to init smtp sender: %v", err)
	}
	worker, err := app.New(app.Config{
		Renderer:      renderer,
		Sender:        sender,
		RatePerSecond: cfg.RatePerSecond,
		Burst:         cfg.RateBurst,
	})
	if err != nil {
		log.Fatalf("failed to init worker: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = util.ContextWithLogger(ctx, logger.With("service", "mailer"))

	g, gctx := errgroup.WithContext(ctx)
	switch cfg.Source {
	case config.SourceRabbitMQ:
		mq, err := broker.Dial(broker.Config{URL: cfg.RabbitMQURL, Queue: cfg.RabbitMQQueue, Prefetch: cfg.RabbitMQPrefetch})
		if err != nil {
			log.Fatalf("failed to connect rabbitmq: %v", err)
		}
		defer mq.Close()
		g.Go(func() error {
			return mq.Consume(gctx, "mailer-"+util.NewID(), worker.Handle)
		})
	default:
		retryDelay, err := config.ParseRetryDelay(cfg.QueueRetryDelay)
		if err != nil {
			log.Fatalf("failed to parse retry delay: %v", err)
		}
		q, err := queue.NewRedisJobQueue(queue.RedisQueueConfig{
			Addr:       cfg.RedisAddr,
			Password:   cfg.RedisPassword,
			Stream:     cfg.MailQueueStream,
			Group:      "mailer",
			MaxRetries: cfg.QueueMaxRetries,
			RetryDelay: retryDelay,
		})
		if err != nil {
			log.Fatalf("failed to init redis queue: %v", err)
		}
		defer q.Close()
		g.Go(func() error {
			q.Start(gctx, cfg.QueueConcurrency, worker.HandleJob)
			q.Wait()
			return nil
		})
	}

	slog.Info("mailer started", "source", cfg.Source)
	if err := g.Wait(); err != nil {
		logger.Error("mailer stopped with error", "err", err)
		os.Exit(1)
	}
	slog.Info("mailer stopped")
}
