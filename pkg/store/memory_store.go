package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"gobarber/pkg/domain"
)

// MemoryStore keeps all records in-process. It backs tests and the
// "memory" store driver used for local runs without Postgres.
type MemoryStore struct {
	mu            sync.RWMutex
	seq           int64
	users         map[int64]domain.User
	email         map[string]int64 // lower-cased email -> user ID
	files         map[int64]domain.File
	appointments  map[int64]domain.Appointment
	notifications map[int64]domain.Notification
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:         make(map[int64]domain.User),
		email:         make(map[string]int64),
		files:         make(map[int64]domain.File),
		appointments:  make(map[int64]domain.Appointment),
		notifications: make(map[int64]domain.Notification),
	}
}

func (m *MemoryStore) nextID() int64 {
	m.seq++
	return m.seq
}

// CreateUser registers a user.
func (m *MemoryStore) CreateUser(_ context.Context, u *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := strings.ToLower(strings.TrimSpace(u.Email))
	if _, exists := m.email[key]; exists {
		return ErrDuplicateEmail
	}
	u.ID = m.nextID()
	u.Email = key
	u.Avatar = nil
	m.users[u.ID] = *u
	m.email[key] = u.ID
	return nil
}

// UpdateUser replaces the mutable profile fields of an existing user.
func (m *MemoryStore) UpdateUser(_ context.Context, u domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.users[u.ID]
	if !ok {
		return nil
	}
	key := strings.ToLower(strings.TrimSpace(u.Email))
	if key != cur.Email {
		if _, taken := m.email[key]; taken {
			return ErrDuplicateEmail
		}
		delete(m.email, cur.Email)
		m.email[key] = cur.ID
		cur.Email = key
	}
	cur.Name = u.Name
	cur.PasswordHash = u.PasswordHash
	cur.AvatarID = u.AvatarID
	cur.UpdatedAt = time.Now().UTC()
	m.users[u.ID] = cur
	return nil
}

// GetUserByID returns a user by ID.
func (m *MemoryStore) GetUserByID(_ context.Context, id int64) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return domain.User{}, false, nil
	}
	return m.withAvatar(u), true, nil
}

// GetUserByEmail looks up a user by email.
func (m *MemoryStore) GetUserByEmail(_ context.Context, email string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.email[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return domain.User{}, false, nil
	}
	return m.withAvatar(m.users[id]), true, nil
}

// FindProviderByID returns the user only when it is a provider.
func (m *MemoryStore) FindProviderByID(_ context.Context, id int64) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok || !u.Provider {
		return domain.User{}, false, nil
	}
	return m.withAvatar(u), true, nil
}

// ListProviders returns providers ordered by name.
func (m *MemoryStore) ListProviders(_ context.Context) ([]domain.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.User, 0)
	for _, u := range m.users {
		if u.Provider {
			res = append(res, m.withAvatar(u))
		}
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].Name == res[j].Name {
			return res[i].ID < res[j].ID
		}
		return res[i].Name < res[j].Name
	})
	return res, nil
}

func (m *MemoryStore) withAvatar(u domain.User) domain.User {
	u.Avatar = nil
	if u.AvatarID != nil {
		if f, ok := m.files[*u.AvatarID]; ok {
			u.Avatar = &f
		}
	}
	return u
}

// CreateFile records an uploaded object.
func (m *MemoryStore) CreateFile(_ context.Context, f *domain.File) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	f.ID = m.nextID()
	m.files[f.ID] = *f
	return nil
}

// GetFile returns a file by ID.
func (m *MemoryStore) GetFile(_ context.Context, id int64) (domain.File, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.files[id]
	return f, ok, nil
}

// CreateAppointment stores a live appointment, enforcing slot uniqueness.
func (m *MemoryStore) CreateAppointment(_ context.Context, a *domain.Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, taken := m.conflicting(a.ProviderID, a.Date); taken {
		return ErrSlotTaken
	}
	a.ID = m.nextID()
	m.appointments[a.ID] = *a
	return nil
}

// FindAppointmentByID returns an appointment by ID.
func (m *MemoryStore) FindAppointmentByID(_ context.Context, id int64) (domain.Appointment, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.appointments[id]
	return a, ok, nil
}

// FindConflictingAppointment returns the live appointment holding the slot.
func (m *MemoryStore) FindConflictingAppointment(_ context.Context, providerID int64, date time.Time) (domain.Appointment, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.conflicting(providerID, date)
	return a, ok, nil
}

func (m *MemoryStore) conflicting(providerID int64, date time.Time) (domain.Appointment, bool) {
	for _, a := range m.appointments {
		if a.ProviderID == providerID && !a.Canceled() && a.Date.Equal(date) {
			return a, true
		}
	}
	return domain.Appointment{}, false
}

// ListAppointmentsByUser returns a page of live appointments ordered by date.
func (m *MemoryStore) ListAppointmentsByUser(_ context.Context, userID int64, limit, offset int) ([]domain.AppointmentListing, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if limit <= 0 {
		return []domain.AppointmentListing{}, nil
	}
	owned := make([]domain.Appointment, 0)
	for _, a := range m.appointments {
		if a.UserID == userID && !a.Canceled() {
			owned = append(owned, a)
		}
	}
	sort.Slice(owned, func(i, j int) bool {
		if owned[i].Date.Equal(owned[j].Date) {
			return owned[i].ID < owned[j].ID
		}
		return owned[i].Date.Before(owned[j].Date)
	})
	if offset < 0 {
		offset = 0
	}
	if offset >= len(owned) {
		return []domain.AppointmentListing{}, nil
	}
	end := offset + limit
	if end > len(owned) {
		end = len(owned)
	}
	res := make([]domain.AppointmentListing, 0, end-offset)
	for _, a := range owned[offset:end] {
		listing := domain.AppointmentListing{ID: a.ID, Date: a.Date, Provider: domain.ProviderSummary{ID: a.ProviderID}}
		if p, ok := m.users[a.ProviderID]; ok {
			p = m.withAvatar(p)
			listing.Provider.Name = p.Name
			listing.Provider.Avatar = p.Avatar
		}
		res = append(res, listing)
	}
	return res, nil
}

// CancelAppointment stamps canceled_at on a live appointment.
func (m *MemoryStore) CancelAppointment(_ context.Context, id int64, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appointments[id]
	if !ok || a.Canceled() {
		return false, nil
	}
	at = at.UTC()
	a.CanceledAt = &at
	a.UpdatedAt = at
	m.appointments[id] = a
	return true, nil
}

// CreateNotification records a notification.
func (m *MemoryStore) CreateNotification(_ context.Context, n *domain.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n.ID = m.nextID()
	m.notifications[n.ID] = *n
	return nil
}

// ListNotifications returns the newest notifications for a user.
func (m *MemoryStore) ListNotifications(_ context.Context, userID int64, limit int) ([]domain.Notification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Notification, 0)
	if limit <= 0 {
		return res, nil
	}
	for _, n := range m.notifications {
		if n.UserID == userID {
			res = append(res, n)
		}
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].CreatedAt.Equal(res[j].CreatedAt) {
			return res[i].ID > res[j].ID
		}
		return res[i].CreatedAt.After(res[j].CreatedAt)
	})
	if len(res) > limit {
		res = res[:limit]
	}
	return res, nil
}

// MarkNotificationRead flags a notification owned by userID as read.
func (m *MemoryStore) MarkNotificationRead(_ context.Context, id, userID int64) (domain.Notification, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.notifications[id]
	if !ok || n.UserID != userID {
		return domain.Notification{}, false, nil
	}
	n.Read = true
	n.UpdatedAt = time.Now().UTC()
	m.notifications[id] = n
	return n, true, nil
}
