package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"gobarber/pkg/domain"
)

func TestMemoryStoreRejectsDuplicateEmail(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	if err := s.CreateUser(ctx, &domain.User{Name: "Ana", Email: "Ana@Example.com"}); err != nil {
		t.Fatalf("create user: %v", err)
	}
	err := s.CreateUser(ctx, &domain.User{Name: "Other", Email: "ana@example.com "})
	if !errors.Is(err, ErrDuplicateEmail) {
		t.Fatalf("expected ErrDuplicateEmail, got %v", err)
	}
	u, ok, err := s.GetUserByEmail(ctx, "ANA@example.com")
	if err != nil || !ok {
		t.Fatalf("lookup by email: ok=%v err=%v", ok, err)
	}
	if u.Name != "Ana" {
		t.Fatalf("name = %q, want Ana", u.Name)
	}
}

func TestMemoryStoreFindProviderByIDRequiresFlag(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	client := &domain.User{Name: "Client", Email: "c@example.com"}
	provider := &domain.User{Name: "Barber", Email: "b@example.com", Provider: true}
	_ = s.CreateUser(ctx, client)
	_ = s.CreateUser(ctx, provider)

	if _, ok, _ := s.FindProviderByID(ctx, client.ID); ok {
		t.Fatalf("client must not be returned as provider")
	}
	if _, ok, _ := s.FindProviderByID(ctx, provider.ID); !ok {
		t.Fatalf("provider not found")
	}
	if _, ok, _ := s.FindProviderByID(ctx, 999); ok {
		t.Fatalf("unknown id must not be found")
	}
}

func TestMemoryStoreSlotUniquenessIgnoresCanceled(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	slot := time.Date(2024, 1, 10, 10, 0, 0, 0, time.UTC)

	first := &domain.Appointment{UserID: 1, ProviderID: 2, Date: slot}
	if err := s.CreateAppointment(ctx, first); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.CreateAppointment(ctx, &domain.Appointment{UserID: 3, ProviderID: 2, Date: slot}); !errors.Is(err, ErrSlotTaken) {
		t.Fatalf("expected ErrSlotTaken, got %v", err)
	}
	if _, ok, _ := s.FindConflictingAppointment(ctx, 2, slot); !ok {
		t.Fatalf("expected conflicting appointment")
	}

	if changed, err := s.CancelAppointment(ctx, first.ID, slot.Add(-5*time.Hour)); err != nil || !changed {
		t.Fatalf("cancel: changed=%v err=%v", changed, err)
	}
	if changed, err := s.CancelAppointment(ctx, first.ID, slot.Add(-4*time.Hour)); err != nil || changed {
		t.Fatalf("second cancel: changed=%v err=%v", changed, err)
	}
	if got, _, _ := s.FindAppointmentByID(ctx, first.ID); !got.CanceledAt.Equal(slot.Add(-5 * time.Hour)) {
		t.Fatalf("second cancel must keep canceled_at, got %v", got.CanceledAt)
	}
	if changed, _ := s.CancelAppointment(ctx, 999, slot); changed {
		t.Fatalf("unknown appointment must report unchanged")
	}
	if _, ok, _ := s.FindConflictingAppointment(ctx, 2, slot); ok {
		t.Fatalf("canceled appointment must free the slot")
	}
	if err := s.CreateAppointment(ctx, &domain.Appointment{UserID: 3, ProviderID: 2, Date: slot}); err != nil {
		t.Fatalf("rebook freed slot: %v", err)
	}
}

func TestMemoryStoreListAppointmentsPaginates(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	provider := &domain.User{Name: "Barber", Email: "b@example.com", Provider: true}
	_ = s.CreateUser(ctx, provider)
	avatar := &domain.File{Name: "me.png", Path: "avatars/me.png"}
	_ = s.CreateFile(ctx, avatar)
	provider.AvatarID = &avatar.ID
	_ = s.UpdateUser(ctx, *provider)

	base := time.Date(2024, 1, 10, 8, 0, 0, 0, time.UTC)
	// inserted in reverse order to exercise sorting
	for i := 24; i >= 0; i-- {
		a := &domain.Appointment{UserID: 7, ProviderID: provider.ID, Date: base.Add(time.Duration(i) * time.Hour)}
		if err := s.CreateAppointment(ctx, a); err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
	}
	other := &domain.Appointment{UserID: 8, ProviderID: provider.ID, Date: base.Add(-time.Hour)}
	_ = s.CreateAppointment(ctx, other)

	page1, err := s.ListAppointmentsByUser(ctx, 7, 20, 0)
	if err != nil {
		t.Fatalf("list page 1: %v", err)
	}
	if len(page1) != 20 {
		t.Fatalf("page 1 len = %d, want 20", len(page1))
	}
	if !page1[0].Date.Equal(base) {
		t.Fatalf("first date = %v, want %v", page1[0].Date, base)
	}
	for i := 1; i < len(page1); i++ {
		if !page1[i-1].Date.Before(page1[i].Date) {
			t.Fatalf("page not ordered at %d", i)
		}
	}
	if page1[0].Provider.Name != "Barber" || page1[0].Provider.Avatar == nil || page1[0].Provider.Avatar.Path != "avatars/me.png" {
		t.Fatalf("provider not enriched: %+v", page1[0].Provider)
	}

	page2, err := s.ListAppointmentsByUser(ctx, 7, 20, 20)
	if err != nil {
		t.Fatalf("list page 2: %v", err)
	}
	if len(page2) != 5 {
		t.Fatalf("page 2 len = %d, want 5", len(page2))
	}
}

func TestMemoryStoreMarkNotificationReadChecksOwner(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	n := &domain.Notification{Content: "hello", UserID: 5, CreatedAt: time.Now().UTC()}
	_ = s.CreateNotification(ctx, n)

	if _, ok, _ := s.MarkNotificationRead(ctx, n.ID, 6); ok {
		t.Fatalf("foreign user must not mark notification")
	}
	got, ok, err := s.MarkNotificationRead(ctx, n.ID, 5)
	if err != nil || !ok {
		t.Fatalf("mark read: ok=%v err=%v", ok, err)
	}
	if !got.Read {
		t.Fatalf("expected read flag")
	}
}
