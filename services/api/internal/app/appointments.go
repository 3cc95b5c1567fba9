package app

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"gobarber/internal/util"
	"gobarber/pkg/domain"
	"gobarber/pkg/locale"
	"gobarber/pkg/store"
)

const (
	// PageSize is the number of appointments returned per listing page.
	PageSize = 20
	// CancellationWindow is the minimum lead time required to cancel.
	CancellationWindow = 2 * time.Hour
)

// CreateAppointmentInput is the booking request. Pointers distinguish a
// missing field from a zero value.
type CreateAppointmentInput struct {
	ProviderID *int64  `json:"provider_id" validate:"required,gt=0"`
	Date       *string `json:"date" validate:"required,iso8601"`
}

// CreateAppointment books the provider for the hour containing the requested
// date and notifies the provider.
func (a *App) CreateAppointment(ctx context.Context, requesterID int64, in CreateAppointmentInput) (domain.Appointment, error) {
	if err := a.validate.Struct(in); err != nil {
		return domain.Appointment{}, ErrValidationFails
	}
	date, ok := parseISODate(*in.Date, a.loc)
	if !ok {
		return domain.Appointment{}, ErrValidationFails
	}
	providerID := *in.ProviderID

	provider, ok, err := a.store.FindProviderByID(ctx, providerID)
	if err != nil {
		return domain.Appointment{}, fmt.Errorf("find provider: %w", err)
	}
	if !ok {
		return domain.Appointment{}, ErrNotProvider
	}
	if provider.ID == requesterID {
		return domain.Appointment{}, ErrSelfAppointment
	}

	hourStart := startOfHour(date, a.loc)
	now := a.now()
	if hourStart.Before(now) {
		return domain.Appointment{}, ErrPastDate
	}

	_, taken, err := a.store.FindConflictingAppointment(ctx, providerID, hourStart.UTC())
	if err != nil {
		return domain.Appointment{}, fmt.Errorf("check availability: %w", err)
	}
	if taken {
		return domain.Appointment{}, ErrDateUnavailable
	}

	appt := domain.Appointment{
		UserID:     requesterID,
		ProviderID: providerID,
		Date:       hourStart.UTC(),
		CreatedAt:  now.UTC(),
		UpdatedAt:  now.UTC(),
	}
	if err := a.store.CreateAppointment(ctx, &appt); err != nil {
		if errors.Is(err, store.ErrSlotTaken) {
			return domain.Appointment{}, ErrDateUnavailable
		}
		return domain.Appointment{}, fmt.Errorf("save appointment: %w", err)
	}

	a.notifyProvider(ctx, appt)
	a.publish(ctx, domain.EventAppointmentCreated, appt)
	return appt, nil
}

func (a *App) notifyProvider(ctx context.Context, appt domain.Appointment) {
	logger := util.LoggerFromContext(ctx).With("appointment_id", appt.ID)
	requester, ok, err := a.store.GetUserByID(ctx, appt.UserID)
	if err != nil || !ok {
		logger.Warn("load requester for notification failed", "user_id", appt.UserID, "err", err)
		return
	}
	n := domain.Notification{
		Content: fmt.Sprintf("Novo agendamento de %s para %s", requester.Name, locale.FormatDate(appt.Date, a.loc)),
		UserID:  appt.ProviderID,
		Data: map[string]string{
			"appointment_id": strconv.FormatInt(appt.ID, 10),
			"date":           appt.Date.Format(time.RFC3339),
		},
		CreatedAt: a.now().UTC(),
		UpdatedAt: a.now().UTC(),
	}
	if err := a.notifications.CreateNotification(ctx, &n); err != nil {
		logger.Warn("create provider notification failed", "provider_id", appt.ProviderID, "err", err)
	}
}

// ListAppointments returns one page of the requester's live appointments,
// oldest first. Pages start at 1; smaller values are treated as 1.
func (a *App) ListAppointments(ctx context.Context, requesterID int64, page int) ([]domain.AppointmentListing, error) {
	if page < 1 {
		page = 1
	}
	if page-1 > math.MaxInt/PageSize {
		// no offset that large can hold rows
		return []domain.AppointmentListing{}, nil
	}
	items, err := a.store.ListAppointmentsByUser(ctx, requesterID, PageSize, (page-1)*PageSize)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	for i := range items {
		items[i].Provider.Avatar = a.fileURL(ctx, items[i].Provider.Avatar)
	}
	return items, nil
}

// CancelAppointment cancels an appointment owned by the requester at least
// CancellationWindow before it starts and emails the provider.
func (a *App) CancelAppointment(ctx context.Context, appointmentID, requesterID int64) (domain.Appointment, error) {
	appt, ok, err := a.store.FindAppointmentByID(ctx, appointmentID)
	if err != nil {
		return domain.Appointment{}, fmt.Errorf("find appointment: %w", err)
	}
	if !ok {
		return domain.Appointment{}, ErrAppointmentNotFound
	}
	if appt.UserID != requesterID {
		return domain.Appointment{}, ErrNotOwner
	}
	if appt.Canceled() {
		return domain.Appointment{}, ErrAlreadyCanceled
	}
	now := a.now()
	if appt.Date.Add(-CancellationWindow).Before(now) {
		return domain.Appointment{}, ErrCancellationWindow
	}

	canceledAt := now.UTC()
	changed, err := a.store.CancelAppointment(ctx, appt.ID, canceledAt)
	if err != nil {
		return domain.Appointment{}, fmt.Errorf("cancel appointment: %w", err)
	}
	if !changed {
		// a concurrent request canceled it after the read above
		return domain.Appointment{}, ErrAlreadyCanceled
	}
	appt.CanceledAt = &canceledAt
	appt.UpdatedAt = canceledAt

	a.dispatchCancellation(ctx, appt)
	a.publish(ctx, domain.EventAppointmentCanceled, appt)
	return appt, nil
}

func (a *App) dispatchCancellation(ctx context.Context, appt domain.Appointment) {
	logger := util.LoggerFromContext(ctx).With("appointment_id", appt.ID)
	provider, ok, err := a.store.GetUserByID(ctx, appt.ProviderID)
	if err != nil || !ok {
		logger.Warn("load provider for cancellation mail failed", "provider_id", appt.ProviderID, "err", err)
		return
	}
	user, ok, err := a.store.GetUserByID(ctx, appt.UserID)
	if err != nil || !ok {
		logger.Warn("load user for cancellation mail failed", "user_id", appt.UserID, "err", err)
		return
	}
	mail := domain.CancellationMail{
		AppointmentID: appt.ID,
		ProviderName:  provider.Name,
		ProviderEmail: provider.Email,
		UserName:      user.Name,
		Date:          appt.Date,
	}
	if err := a.mail.DispatchCancellation(ctx, mail); err != nil {
		logger.Warn("dispatch cancellation mail failed", "err", err)
	}
}
