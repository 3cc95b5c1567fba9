package app

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"gobarber/internal/util"
	"gobarber/pkg/auth"
	"gobarber/pkg/domain"
	"gobarber/pkg/storage"
	"gobarber/pkg/store"
)

// NotificationSink receives in-app notifications created by bookings.
type NotificationSink interface {
	CreateNotification(ctx context.Context, n *domain.Notification) error
}

// MailDispatcher hands a cancellation email off for delivery.
type MailDispatcher interface {
	DispatchCancellation(ctx context.Context, mail domain.CancellationMail) error
}

// EventPublisher announces appointment lifecycle changes.
type EventPublisher interface {
	Publish(ctx context.Context, ev domain.AppointmentEvent) error
}

// Config holds runtime configuration for the core application.
type Config struct {
	DatabaseURL string
	Store       store.Store

	Objects storage.ObjectStore
	Minio   storage.MinioConfig

	JWTSecret   string
	JWTIssuer   string
	JWTAudience string
	JWTLeeway   time.Duration
	TokenTTL    time.Duration

	Mail          MailDispatcher
	Notifications NotificationSink
	Events        EventPublisher

	// Location is the zone appointment hours are truncated and rendered in.
	Location *time.Location
	// Now overrides the clock in tests.
	Now func() time.Time
}

// App implements scheduling, profile and notification use cases on top of
// the store and outbound sinks.
type App struct {
	store         store.Store
	objects       storage.ObjectStore
	tokens        *auth.TokenIssuer
	mail          MailDispatcher
	notifications NotificationSink
	events        EventPublisher
	loc           *time.Location
	now           func() time.Time
	validate      *validator.Validate
}

// New wires the application. Store and Objects are built from DatabaseURL and
// Minio when not injected.
func New(cfg Config) (*App, error) {
	dataStore := cfg.Store
	if dataStore == nil {
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("database URL required")
		}
		gs, err := store.NewGormStore(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
		dataStore = gs
	}
	objects := cfg.Objects
	if objects == nil {
		ms, err := storage.NewMinioStore(cfg.Minio)
		if err != nil {
			return nil, fmt.Errorf("init object store: %w", err)
		}
		objects = ms
	}
	tokens, err := auth.NewTokenIssuer(auth.TokenOptions{
		Secret:   cfg.JWTSecret,
		TTL:      cfg.TokenTTL,
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		Leeway:   cfg.JWTLeeway,
	})
	if err != nil {
		return nil, fmt.Errorf("init token issuer: %w", err)
	}
	if cfg.Mail == nil {
		return nil, fmt.Errorf("mail dispatcher required")
	}
	notifications := cfg.Notifications
	if notifications == nil {
		notifications = dataStore
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &App{
		store:         dataStore,
		objects:       objects,
		tokens:        tokens,
		mail:          cfg.Mail,
		notifications: notifications,
		events:        cfg.Events,
		loc:           loc,
		now:           now,
		validate:      newValidator(),
	}, nil
}

// VerifyToken resolves a session token to the user it was issued for.
func (a *App) VerifyToken(ctx context.Context, token string) (domain.User, bool, error) {
	id, err := a.tokens.Verify(token)
	if err != nil {
		return domain.User{}, false, nil
	}
	user, ok, err := a.store.GetUserByID(ctx, id)
	if err != nil || !ok {
		return domain.User{}, false, err
	}
	return a.withAvatarURL(ctx, user), true, nil
}

func (a *App) publish(ctx context.Context, kind string, appt domain.Appointment) {
	if a.events == nil {
		return
	}
	ev := domain.AppointmentEvent{
		Type:          kind,
		AppointmentID: appt.ID,
		UserID:        appt.UserID,
		ProviderID:    appt.ProviderID,
		Date:          appt.Date,
		OccurredAt:    a.now().UTC(),
	}
	if err := a.events.Publish(ctx, ev); err != nil {
		util.LoggerFromContext(ctx).Warn("publish appointment event failed", "type", kind, "appointment_id", appt.ID, "err", err)
	}
}

// fileURL fills the derived URL; an unresolvable URL is logged and left empty.
func (a *App) fileURL(ctx context.Context, f *domain.File) *domain.File {
	if f == nil {
		return nil
	}
	out := *f
	u, err := a.objects.URL(ctx, f.Path)
	if err != nil {
		util.LoggerFromContext(ctx).Warn("resolve file url failed", "file_id", f.ID, "err", err)
		return &out
	}
	out.URL = u
	return &out
}

func (a *App) withAvatarURL(ctx context.Context, u domain.User) domain.User {
	u.Avatar = a.fileURL(ctx, u.Avatar)
	return u
}
