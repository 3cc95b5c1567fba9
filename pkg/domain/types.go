package domain

import "time"

type User struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Provider     bool      `json:"provider"`
	AvatarID     *int64    `json:"avatar_id"`
	Avatar       *File     `json:"avatar,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// File is an uploaded object referenced by users as their avatar.
// URL is derived at read time and never persisted.
type File struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Path      string    `json:"path"`
	URL       string    `json:"url"`
	CreatedAt time.Time `json:"createdAt"`
}

type Appointment struct {
	ID         int64      `json:"id"`
	UserID     int64      `json:"user_id"`
	ProviderID int64      `json:"provider_id"`
	Date       time.Time  `json:"date"`
	CanceledAt *time.Time `json:"canceled_at"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

// Canceled reports whether the appointment has been canceled.
func (a Appointment) Canceled() bool {
	return a.CanceledAt != nil
}

// ProviderSummary is the provider projection embedded in appointment listings.
type ProviderSummary struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Avatar *File  `json:"avatar"`
}

type AppointmentListing struct {
	ID       int64           `json:"id"`
	Date     time.Time       `json:"date"`
	Provider ProviderSummary `json:"provider"`
}

type Notification struct {
	ID        int64             `json:"id"`
	Content   string            `json:"content"`
	UserID    int64             `json:"user"`
	Read      bool              `json:"read"`
	Data      map[string]string `json:"data,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
	UpdatedAt time.Time         `json:"updatedAt"`
}

// CancellationMail is the payload handed to mail dispatchers after a cancel.
type CancellationMail struct {
	AppointmentID int64     `json:"appointmentId"`
	ProviderName  string    `json:"providerName"`
	ProviderEmail string    `json:"providerEmail"`
	UserName      string    `json:"userName"`
	Date          time.Time `json:"date"`
}

// Event kinds published on the appointment event stream.
const (
	EventAppointmentCreated  = "appointment.created"
	EventAppointmentCanceled = "appointment.canceled"
)

type AppointmentEvent struct {
	Type          string    `json:"type"`
	AppointmentID int64     `json:"appointmentId"`
	UserID        int64     `json:"userId"`
	ProviderID    int64     `json:"providerId"`
	Date          time.Time `json:"date"`
	OccurredAt    time.Time `json:"occurredAt"`
}
