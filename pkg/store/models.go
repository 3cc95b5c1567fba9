package store

import (
	"time"

	"gorm.io/datatypes"
)

// GORM models used for persistence.
type UserModel struct {
	ID           int64  `gorm:"primaryKey;autoIncrement"`
	Name         string `gorm:"not null"`
	Email        string `gorm:"uniqueIndex;not null"`
	PasswordHash string `gorm:"not null"`
	Provider     bool   `gorm:"not null;default:false;index"`
	AvatarID     *int64
	Avatar       *FileModel `gorm:"foreignKey:AvatarID;constraint:OnUpdate:CASCADE,OnDelete:SET NULL"`
	CreatedAt    time.Time  `gorm:"not null"`
	UpdatedAt    time.Time
}

type FileModel struct {
	ID        int64     `gorm:"primaryKey;autoIncrement"`
	Name      string    `gorm:"not null"`
	Path      string    `gorm:"not null;uniqueIndex"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time
}

type AppointmentModel struct {
	ID         int64      `gorm:"primaryKey;autoIncrement"`
	UserID     int64      `gorm:"not null;index"`
	User       *UserModel `gorm:"foreignKey:UserID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT"`
	ProviderID int64      `gorm:"not null;index:idx_appointment_provider_date"`
	Provider   *UserModel `gorm:"foreignKey:ProviderID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT"`
	Date       time.Time  `gorm:"not null;index:idx_appointment_provider_date"`
	CanceledAt *time.Time
	CreatedAt  time.Time `gorm:"not null"`
	UpdatedAt  time.Time
}

type NotificationModel struct {
	ID        int64          `gorm:"primaryKey;autoIncrement"`
	Content   string         `gorm:"type:text;not null"`
	UserID    int64          `gorm:"not null;index"`
	Read      bool           `gorm:"not null;default:false"`
	Data      datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt time.Time      `gorm:"not null;index"`
	UpdatedAt time.Time
}
