package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"gobarber/pkg/domain"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const migrateLockID int64 = 51731904

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog, TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := withMigrationLock(db, func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(&FileModel{}, &UserModel{}, &AppointmentModel{}, &NotificationModel{}); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		// one live appointment per provider slot
		if err := tx.Exec(`
			CREATE UNIQUE INDEX IF NOT EXISTS appointment_models_live_slot_idx
			ON appointment_models (provider_id, date)
			WHERE canceled_at IS NULL
		`).Error; err != nil {
			return fmt.Errorf("ensure slot index: %w", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// CreateUser inserts a user and fills the generated ID.
func (s *GormStore) CreateUser(ctx context.Context, u *domain.User) error {
	model := userToModel(*u)
	if err := s.db.WithContext(ctx).Omit("Avatar").Create(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicateEmail
		}
		return err
	}
	u.ID = model.ID
	return nil
}

// UpdateUser persists profile changes: name, email, password hash and avatar.
func (s *GormStore) UpdateUser(ctx context.Context, u domain.User) error {
	err := s.db.WithContext(ctx).Model(&UserModel{}).
		Where("id = ?", u.ID).
		Updates(map[string]any{
			"name":          u.Name,
			"email":         strings.ToLower(strings.TrimSpace(u.Email)),
			"password_hash": u.PasswordHash,
			"avatar_id":     u.AvatarID,
			"updated_at":    time.Now().UTC(),
		}).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicateEmail
	}
	return err
}

// GetUserByID returns a user with its avatar.
func (s *GormStore) GetUserByID(ctx context.Context, id int64) (domain.User, bool, error) {
	return s.firstUser(ctx, "id = ?", id)
}

// GetUserByEmail looks up a user by email.
func (s *GormStore) GetUserByEmail(ctx context.Context, email string) (domain.User, bool, error) {
	return s.firstUser(ctx, "email = ?", strings.ToLower(strings.TrimSpace(email)))
}

// FindProviderByID returns the user only when it carries the provider flag.
func (s *GormStore) FindProviderByID(ctx context.Context, id int64) (domain.User, bool, error) {
	return s.firstUser(ctx, "id = ? AND provider = ?", id, true)
}

func (s *GormStore) firstUser(ctx context.Context, query string, args ...any) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.WithContext(ctx).Preload("Avatar").Where(query, args...).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// ListProviders returns all providers ordered by name.
func (s *GormStore) ListProviders(ctx context.Context) ([]domain.User, error) {
	var models []UserModel
	if err := s.db.WithContext(ctx).Preload("Avatar").
		Where("provider = ?", true).
		Order("name ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.User, 0, len(models))
	for _, m := range models {
		res = append(res, userFromModel(m))
	}
	return res, nil
}

// CreateFile records an uploaded object.
func (s *GormStore) CreateFile(ctx context.Context, f *domain.File) error {
	model := FileModel{Name: f.Name, Path: f.Path, CreatedAt: f.CreatedAt, UpdatedAt: f.CreatedAt}
	if err := s.db.WithContext(ctx).Create(&model).Error; err != nil {
		return err
	}
	f.ID = model.ID
	return nil
}

// GetFile returns a file by ID.
func (s *GormStore) GetFile(ctx context.Context, id int64) (domain.File, bool, error) {
	var model FileModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.File{}, false, nil
		}
		return domain.File{}, false, err
	}
	return fileFromModel(model), true, nil
}

// CreateAppointment inserts a live appointment. A concurrent booking that
// slipped past the availability check is rejected by the slot index.
func (s *GormStore) CreateAppointment(ctx context.Context, a *domain.Appointment) error {
	model := appointmentToModel(*a)
	if err := s.db.WithContext(ctx).Omit("User", "Provider").Create(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrSlotTaken
		}
		return err
	}
	a.ID = model.ID
	return nil
}

// FindAppointmentByID returns an appointment regardless of cancellation.
func (s *GormStore) FindAppointmentByID(ctx context.Context, id int64) (domain.Appointment, bool, error) {
	var model AppointmentModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Appointment{}, false, nil
		}
		return domain.Appointment{}, false, err
	}
	return appointmentFromModel(model), true, nil
}

// FindConflictingAppointment returns the live appointment holding the slot, if any.
func (s *GormStore) FindConflictingAppointment(ctx context.Context, providerID int64, date time.Time) (domain.Appointment, bool, error) {
	var model AppointmentModel
	err := s.db.WithContext(ctx).
		Where("provider_id = ? AND date = ? AND canceled_at IS NULL", providerID, date.UTC()).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Appointment{}, false, nil
		}
		return domain.Appointment{}, false, err
	}
	return appointmentFromModel(model), true, nil
}

// ListAppointmentsByUser returns a page of live appointments ordered by date.
func (s *GormStore) ListAppointmentsByUser(ctx context.Context, userID int64, limit, offset int) ([]domain.AppointmentListing, error) {
	if limit <= 0 {
		return []domain.AppointmentListing{}, nil
	}
	if offset < 0 {
		offset = 0
	}
	var models []AppointmentModel
	if err := s.db.WithContext(ctx).
		Preload("Provider").
		Preload("Provider.Avatar").
		Where("user_id = ? AND canceled_at IS NULL", userID).
		Order("date ASC").
		Limit(limit).
		Offset(offset).
		Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.AppointmentListing, 0, len(models))
	for _, m := range models {
		listing := domain.AppointmentListing{ID: m.ID, Date: m.Date.UTC()}
		if m.Provider != nil {
			listing.Provider = domain.ProviderSummary{
				ID:     m.Provider.ID,
				Name:   m.Provider.Name,
				Avatar: avatarFromModel(m.Provider.Avatar),
			}
		} else {
			listing.Provider = domain.ProviderSummary{ID: m.ProviderID}
		}
		res = append(res, listing)
	}
	return res, nil
}

// CancelAppointment stamps canceled_at on a live appointment.
func (s *GormStore) CancelAppointment(ctx context.Context, id int64, at time.Time) (bool, error) {
	at = at.UTC()
	res := s.db.WithContext(ctx).Model(&AppointmentModel{}).
		Where("id = ? AND canceled_at IS NULL", id).
		Updates(map[string]any{
			"canceled_at": at,
			"updated_at":  at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// CreateNotification records a notification.
func (s *GormStore) CreateNotification(ctx context.Context, n *domain.Notification) error {
	model := notificationToModel(*n)
	if err := s.db.WithContext(ctx).Create(&model).Error; err != nil {
		return err
	}
	n.ID = model.ID
	return nil
}

// ListNotifications returns the newest notifications for a user.
func (s *GormStore) ListNotifications(ctx context.Context, userID int64, limit int) ([]domain.Notification, error) {
	if limit <= 0 {
		return []domain.Notification{}, nil
	}
	var models []NotificationModel
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Notification, 0, len(models))
	for _, m := range models {
		res = append(res, notificationFromModel(m))
	}
	return res, nil
}

// MarkNotificationRead flags a notification owned by userID as read.
func (s *GormStore) MarkNotificationRead(ctx context.Context, id, userID int64) (domain.Notification, bool, error) {
	var model NotificationModel
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&model, "id = ? AND user_id = ?", id, userID).Error; err != nil {
			return err
		}
		model.Read = true
		model.UpdatedAt = time.Now().UTC()
		return tx.Model(&NotificationModel{}).Where("id = ?", id).
			Updates(map[string]any{"read": true, "updated_at": model.UpdatedAt}).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Notification{}, false, nil
		}
		return domain.Notification{}, false, err
	}
	return notificationFromModel(model), true, nil
}

func userToModel(u domain.User) UserModel {
	return UserModel{
		ID:           u.ID,
		Name:         u.Name,
		Email:        strings.ToLower(strings.TrimSpace(u.Email)),
		PasswordHash: u.PasswordHash,
		Provider:     u.Provider,
		AvatarID:     u.AvatarID,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

func userFromModel(m UserModel) domain.User {
	return domain.User{
		ID:           m.ID,
		Name:         m.Name,
		Email:        m.Email,
		PasswordHash: m.PasswordHash,
		Provider:     m.Provider,
		AvatarID:     m.AvatarID,
		Avatar:       avatarFromModel(m.Avatar),
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func fileFromModel(m FileModel) domain.File {
	return domain.File{
		ID:        m.ID,
		Name:      m.Name,
		Path:      m.Path,
		CreatedAt: m.CreatedAt,
	}
}

func avatarFromModel(m *FileModel) *domain.File {
	if m == nil {
		return nil
	}
	f := fileFromModel(*m)
	return &f
}

func appointmentToModel(a domain.Appointment) AppointmentModel {
	return AppointmentModel{
		ID:         a.ID,
		UserID:     a.UserID,
		ProviderID: a.ProviderID,
		Date:       a.Date.UTC(),
		CanceledAt: a.CanceledAt,
		CreatedAt:  a.CreatedAt,
		UpdatedAt:  a.UpdatedAt,
	}
}

func appointmentFromModel(m AppointmentModel) domain.Appointment {
	return domain.Appointment{
		ID:         m.ID,
		UserID:     m.UserID,
		ProviderID: m.ProviderID,
		Date:       m.Date.UTC(),
		CanceledAt: m.CanceledAt,
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
	}
}

func notificationToModel(n domain.Notification) NotificationModel {
	var data []byte
	if len(n.Data) > 0 {
		data, _ = json.Marshal(n.Data)
	}
	return NotificationModel{
		ID:        n.ID,
		Content:   n.Content,
		UserID:    n.UserID,
		Read:      n.Read,
		Data:      data,
		CreatedAt: n.CreatedAt,
		UpdatedAt: n.UpdatedAt,
	}
}

func notificationFromModel(m NotificationModel) domain.Notification {
	var data map[string]string
	if len(m.Data) > 0 {
		_ = json.Unmarshal(m.Data, &data)
	}
	return domain.Notification{
		ID:        m.ID,
		Content:   m.Content,
		UserID:    m.UserID,
		Read:      m.Read,
		Data:      data,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}
