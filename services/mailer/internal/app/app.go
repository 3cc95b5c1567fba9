package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/time/rate"

	"gobarber/internal/util"
	"gobarber/pkg/domain"
	"gobarber/pkg/mail"
	"gobarber/pkg/queue"
)

// Config holds runtime configuration for the worker.
type Config struct {
	Renderer *mail.Renderer
	Sender   mail.Sender
	// RatePerSecond caps outgoing mail; zero disables throttling.
	RatePerSecond float64
	Burst         int
}

// App turns cancellation-mail jobs into delivered emails.
type App struct {
	renderer *mail.Renderer
	sender   mail.Sender
	limiter  *rate.Limiter
}

func New(cfg Config) (*App, error) {
	if cfg.Renderer == nil {
		return nil, errors.New("mail renderer required")
	}
	if cfg.Sender == nil {
		return nil, errors.New("mail sender required")
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RatePerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}
	return &App{renderer: cfg.Renderer, sender: cfg.Sender, limiter: limiter}, nil
}

// HandleJob processes a job from the Redis stream queue.
func (a *App) HandleJob(ctx context.Context, job queue.Job) error {
	logger := util.LoggerFromContext(ctx).With("job_id", job.ID, "attempt", job.Attempts)
	return a.Handle(util.ContextWithLogger(ctx, logger), job.Kind, job.Payload)
}

// Handle processes one job body. Payloads that can never be delivered are
// reported as queue.ErrMalformedJob so they are dropped instead of retried.
func (a *App) Handle(ctx context.Context, kind string, body []byte) error {
	logger := util.LoggerFromContext(ctx)
	if kind != mail.JobCancellation {
		return fmt.Errorf("unknown job kind %q: %w", kind, queue.ErrMalformedJob)
	}
	var c domain.CancellationMail
	if err := json.Unmarshal(body, &c); err != nil {
		return fmt.Errorf("decode cancellation mail: %v: %w", err, queue.ErrMalformedJob)
	}
	msg, err := a.renderer.Cancellation(c)
	if err != nil {
		return fmt.Errorf("render cancellation mail: %v: %w", err, queue.ErrMalformedJob)
	}
	if err := a.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("throttle: %w", err)
	}
	if err := a.sender.Send(ctx, msg); err != nil {
		logger.Warn("cancellation mail send failed", "appointment_id", c.AppointmentID, "err", err)
		return err
	}
	logger.Info("cancellation mail sent", "appointment_id", c.AppointmentID)
	return nil
}
