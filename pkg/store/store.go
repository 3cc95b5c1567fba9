package store

import (
	"context"
	"errors"
	"time"

	"gobarber/pkg/domain"
)

var (
	// ErrDuplicateEmail is returned when a user with the same email exists.
	ErrDuplicateEmail = errors.New("email already registered")
	// ErrSlotTaken is returned when another live appointment holds the provider slot.
	ErrSlotTaken = errors.New("appointment slot already taken")
)

// Store defines persistence operations for users, files, appointments and notifications.
// Lookups return (value, found, err); a missing row is not an error.
type Store interface {
	// users
	CreateUser(ctx context.Context, u *domain.User) error
	UpdateUser(ctx context.Context, u domain.User) error
	GetUserByID(ctx context.Context, id int64) (domain.User, bool, error)
	GetUserByEmail(ctx context.Context, email string) (domain.User, bool, error)
	FindProviderByID(ctx context.Context, id int64) (domain.User, bool, error)
	ListProviders(ctx context.Context) ([]domain.User, error)

	// files
	CreateFile(ctx context.Context, f *domain.File) error
	GetFile(ctx context.Context, id int64) (domain.File, bool, error)

	// appointments
	CreateAppointment(ctx context.Context, a *domain.Appointment) error
	FindAppointmentByID(ctx context.Context, id int64) (domain.Appointment, bool, error)
	FindConflictingAppointment(ctx context.Context, providerID int64, date time.Time) (domain.Appointment, bool, error)
	ListAppointmentsByUser(ctx context.Context, userID int64, limit, offset int) ([]domain.AppointmentListing, error)
	// CancelAppointment reports false when the appointment was missing or
	// already canceled.
	CancelAppointment(ctx context.Context, id int64, at time.Time) (bool, error)

	// notifications
	CreateNotification(ctx context.Context, n *domain.Notification) error
	ListNotifications(ctx context.Context, userID int64, limit int) ([]domain.Notification, error)
	MarkNotificationRead(ctx context.Context, id, userID int64) (domain.Notification, bool, error)
}
