package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gobarber/pkg/auth"
	"gobarber/pkg/domain"
	"gobarber/pkg/store"
)

type RegisterInput struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	Provider bool   `json:"provider"`
}

type LoginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// UpdateProfileInput changes any subset of the profile. Changing the
// password requires the current one.
type UpdateProfileInput struct {
	Name            *string `json:"name" validate:"omitempty,min=1"`
	Email           *string `json:"email" validate:"omitempty,email"`
	AvatarID        *int64  `json:"avatar_id" validate:"omitempty,gt=0"`
	OldPassword     string  `json:"oldPassword" validate:"required_with=Password"`
	Password        string  `json:"password"`
	ConfirmPassword string  `json:"confirmPassword" validate:"required_with=Password,eqfield=Password"`
}

// Session is returned by Login.
type Session struct {
	User  domain.User `json:"user"`
	Token string      `json:"token"`
}

// Register creates a client or provider account.
func (a *App) Register(ctx context.Context, in RegisterInput) (domain.User, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if err := a.validate.Struct(in); err != nil {
		return domain.User{}, ErrValidationFails
	}
	if err := auth.ValidatePassword(in.Password); err != nil {
		return domain.User{}, newError(KindValidation, err.Error())
	}
	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return domain.User{}, ErrValidationFails
	}
	now := a.now().UTC()
	user := domain.User{
		Name:         in.Name,
		Email:        in.Email,
		PasswordHash: hash,
		Provider:     in.Provider,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := a.store.CreateUser(ctx, &user); err != nil {
		if errors.Is(err, store.ErrDuplicateEmail) {
			return domain.User{}, ErrEmailTaken
		}
		return domain.User{}, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

// Login checks credentials and issues a session token.
func (a *App) Login(ctx context.Context, in LoginInput) (Session, error) {
	if err := a.validate.Struct(in); err != nil {
		return Session{}, ErrValidationFails
	}
	user, ok, err := a.store.GetUserByEmail(ctx, in.Email)
	if err != nil {
		return Session{}, fmt.Errorf("load user: %w", err)
	}
	if !ok || !auth.CheckPassword(in.Password, user.PasswordHash) {
		return Session{}, ErrInvalidCredentials
	}
	token, err := a.tokens.Issue(user.ID)
	if err != nil {
		return Session{}, fmt.Errorf("issue token: %w", err)
	}
	return Session{User: a.withAvatarURL(ctx, user), Token: token}, nil
}

// UpdateProfile applies in to the user's profile.
func (a *App) UpdateProfile(ctx context.Context, userID int64, in UpdateProfileInput) (domain.User, error) {
	if err := a.validate.Struct(in); err != nil {
		return domain.User{}, ErrValidationFails
	}
	user, ok, err := a.store.GetUserByID(ctx, userID)
	if err != nil {
		return domain.User{}, fmt.Errorf("load user: %w", err)
	}
	if !ok {
		return domain.User{}, ErrUserNotFound
	}
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return domain.User{}, ErrValidationFails
		}
		user.Name = name
	}
	if in.Email != nil {
		user.Email = strings.ToLower(strings.TrimSpace(*in.Email))
	}
	if in.AvatarID != nil {
		if _, ok, err := a.store.GetFile(ctx, *in.AvatarID); err != nil {
			return domain.User{}, fmt.Errorf("load avatar: %w", err)
		} else if !ok {
			return domain.User{}, ErrFileNotFound
		}
		user.AvatarID = in.AvatarID
	}
	if in.Password != "" {
		if err := auth.ValidatePassword(in.Password); err != nil {
			return domain.User{}, newError(KindValidation, err.Error())
		}
		if !auth.CheckPassword(in.OldPassword, user.PasswordHash) {
			return domain.User{}, ErrWrongPassword
		}
		hash, err := auth.HashPassword(in.Password)
		if err != nil {
			return domain.User{}, ErrValidationFails
		}
		user.PasswordHash = hash
	}
	if err := a.store.UpdateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrDuplicateEmail) {
			return domain.User{}, ErrEmailTaken
		}
		return domain.User{}, fmt.Errorf("update user: %w", err)
	}
	updated, _, err := a.store.GetUserByID(ctx, userID)
	if err != nil {
		return domain.User{}, fmt.Errorf("reload user: %w", err)
	}
	return a.withAvatarURL(ctx, updated), nil
}

// ListProviders returns every provider with a resolved avatar URL.
func (a *App) ListProviders(ctx context.Context) ([]domain.User, error) {
	providers, err := a.store.ListProviders(ctx)
	if err != nil {
		return nil, fmt.Errorf("list providers: %w", err)
	}
	for i := range providers {
		providers[i] = a.withAvatarURL(ctx, providers[i])
	}
	return providers, nil
}
