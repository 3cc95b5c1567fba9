package app

import (
	"context"
	"fmt"

	"gobarber/pkg/domain"
)

// NotificationLimit caps how many notifications a listing returns.
const NotificationLimit = 20

// ListNotifications returns the provider's newest notifications.
func (a *App) ListNotifications(ctx context.Context, userID int64) ([]domain.Notification, error) {
	if err := a.requireProvider(ctx, userID); err != nil {
		return nil, err
	}
	items, err := a.store.ListNotifications(ctx, userID, NotificationLimit)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return items, nil
}

// MarkNotificationRead flags one of the provider's notifications as read.
func (a *App) MarkNotificationRead(ctx context.Context, userID, notificationID int64) (domain.Notification, error) {
	if err := a.requireProvider(ctx, userID); err != nil {
		return domain.Notification{}, err
	}
	n, ok, err := a.store.MarkNotificationRead(ctx, notificationID, userID)
	if err != nil {
		return domain.Notification{}, fmt.Errorf("mark notification read: %w", err)
	}
	if !ok {
		return domain.Notification{}, ErrNotificationNotFound
	}
	return n, nil
}

func (a *App) requireProvider(ctx context.Context, userID int64) error {
	_, ok, err := a.store.FindProviderByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("load provider: %w", err)
	}
	if !ok {
		return ErrProviderOnly
	}
	return nil
}
