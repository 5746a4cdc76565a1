package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/beside/server/internal/geo"
	"github.com/beside/server/internal/model"
	"github.com/beside/server/internal/repo"
)

// Service orchestrates identity and session operations: registration, login,
// profile and cached-location updates.
type Service struct {
	users  repo.UserRepo
	jwt    *JWTService
	logger *logrus.Logger
}

// NewService creates a new identity service.
func NewService(users repo.UserRepo, jwt *JWTService, logger *logrus.Logger) *Service {
	return &Service{users: users, jwt: jwt, logger: logger}
}

// RegisterInput carries the registration payload.
type RegisterInput struct {
	Name     string
	Gender   string
	Birthday time.Time
	Email    string
	Password string
	Phone    *string
}

func validGender(g string) bool {
	return g == model.GenderMale || g == model.GenderFemale || g == model.GenderOther
}

// Register creates a new account and issues an access token. Duplicate email
// is reported as model.ErrConflict.
func (s *Service) Register(ctx context.Context, in RegisterInput) (model.User, string, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(strings.ToLower(in.Email))

	switch {
	case in.Name == "":
		return model.User{}, "", fmt.Errorf("name is required: %w", model.ErrInvalid)
	case in.Email == "" || !strings.Contains(in.Email, "@"):
		return model.User{}, "", fmt.Errorf("valid email is required: %w", model.ErrInvalid)
	case len(in.Password) < 8:
		return model.User{}, "", fmt.Errorf("password must be at least 8 characters: %w", model.ErrInvalid)
	case !validGender(in.Gender):
		return model.User{}, "", fmt.Errorf("gender must be male, female or other: %w", model.ErrInvalid)
	case in.Birthday.IsZero() || in.Birthday.After(time.Now()):
		return model.User{}, "", fmt.Errorf("valid birthday is required: %w", model.ErrInvalid)
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		return model.User{}, "", fmt.Errorf("hash password: %w", err)
	}

	user := model.User{
		Name:         in.Name,
		Gender:       in.Gender,
		Birthday:     in.Birthday,
		Email:        in.Email,
		PasswordHash: hash,
		Phone:        in.Phone,
	}
	if err := s.users.Create(ctx, &user); err != nil {
		return model.User{}, "", err
	}

	token, err := s.jwt.SignAccessToken(user.ID, user.Email)
	if err != nil {
		return model.User{}, "", fmt.Errorf("sign token: %w", err)
	}

	s.logger.WithField("user_id", user.ID).Info("user registered")
	return user, token, nil
}

// Login verifies credentials and issues an access token. Bad credentials are
// indistinguishable from an unknown email.
func (s *Service) Login(ctx context.Context, email, password string) (model.User, string, error) {
	email = strings.TrimSpace(strings.ToLower(email))

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return model.User{}, "", fmt.Errorf("invalid email or password: %w", model.ErrUnauthorized)
	}

	ok, err := VerifyPassword(password, user.PasswordHash)
	if err != nil || !ok {
		return model.User{}, "", fmt.Errorf("invalid email or password: %w", model.ErrUnauthorized)
	}

	token, err := s.jwt.SignAccessToken(user.ID, user.Email)
	if err != nil {
		return model.User{}, "", fmt.Errorf("sign token: %w", err)
	}

	return user, token, nil
}

// ProfileUpdate carries a partial profile update; nil fields are left as-is.
type ProfileUpdate struct {
	Name     *string
	Gender   *string
	Birthday *time.Time
}

// UpdateProfile applies a partial update to the user's profile.
func (s *Service) UpdateProfile(ctx context.Context, userID uuid.UUID, upd ProfileUpdate) (model.User, error) {
	if upd.Name != nil && strings.TrimSpace(*upd.Name) == "" {
		return model.User{}, fmt.Errorf("name must not be empty: %w", model.ErrInvalid)
	}
	if upd.Gender != nil && !validGender(*upd.Gender) {
		return model.User{}, fmt.Errorf("gender must be male, female or other: %w", model.ErrInvalid)
	}
	if upd.Birthday != nil && upd.Birthday.After(time.Now()) {
		return model.User{}, fmt.Errorf("birthday must be in the past: %w", model.ErrInvalid)
	}
	return s.users.UpdateProfile(ctx, userID, upd.Name, upd.Gender, upd.Birthday)
}

// UpdateLocation stores the user's cached location for later signal creation
// without an explicit location payload.
func (s *Service) UpdateLocation(ctx context.Context, userID uuid.UUID, lat, lon float64) error {
	if err := validateCoordinates(lat, lon); err != nil {
		return err
	}
	return s.users.UpdateLocation(ctx, userID, lat, lon)
}

func validateCoordinates(lat, lon float64) error {
	if !geo.ValidLatLon(lat, lon) {
		return fmt.Errorf("coordinates out of range: %w", model.ErrInvalid)
	}
	return nil
}
