package app

import "errors"

// ErrorKind classifies business rule failures so transports can map them.
type ErrorKind string

const (
	KindValidation    ErrorKind = "validation"
	KindAuthorization ErrorKind = "authorization"
	KindConflict      ErrorKind = "conflict"
	KindPolicy        ErrorKind = "policy"
	KindNotFound      ErrorKind = "not_found"
)

// Error is a rule violation whose Message is safe to show to end users.
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string { return e.Message }

func newError(kind ErrorKind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// KindOf returns the kind of a rule violation, or "" for infrastructure errors.
func KindOf(err error) ErrorKind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return ""
}

var (
	ErrValidationFails = newError(KindValidation, "Validation fails")
	ErrPastDate        = newError(KindValidation, "Past dates are not permitted.")

	ErrNotProvider     = newError(KindAuthorization, "You can only create appointments with providers.")
	ErrSelfAppointment = newError(KindAuthorization, "User can not create appointment yourself.")
	ErrNotOwner        = newError(KindAuthorization, "You don't have permission to cancel this appointment.")
	ErrProviderOnly    = newError(KindAuthorization, "Only provider can load notifications.")
	// Deliberately vague to avoid account enumeration.
	ErrInvalidCredentials = newError(KindAuthorization, "Incorrect email or password.")
	ErrWrongPassword      = newError(KindAuthorization, "Password does not match.")

	ErrDateUnavailable = newError(KindConflict, "Date is not available.")
	ErrEmailTaken      = newError(KindConflict, "User already exists.")

	ErrCancellationWindow = newError(KindPolicy, "You can only cancel appointments 2 hours in advance.")
	ErrAlreadyCanceled    = newError(KindPolicy, "Appointment already canceled.")

	ErrAppointmentNotFound  = newError(KindNotFound, "Appointment not found.")
	ErrNotificationNotFound = newError(KindNotFound, "Notification not found.")
	ErrFileNotFound         = newError(KindNotFound, "File not found.")
	ErrUserNotFound         = newError(KindNotFound, "User not found.")
)
