package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/beside/server/internal/model"
)

// UserRepo defines the interface for user repository operations.
type UserRepo interface {
	Create(ctx context.Context, u *model.User) error
	GetByID(ctx context.Context, id uuid.UUID) (model.User, error)
	GetByEmail(ctx context.Context, email string) (model.User, error)
	UpdateProfile(ctx context.Context, id uuid.UUID, name, gender *string, birthday *time.Time) (model.User, error)
	UpdateLocation(ctx context.Context, id uuid.UUID, lat, lon float64) error
}

type userRepo struct {
	db *sql.DB
}

// NewUserRepo creates a new UserRepo instance.
func NewUserRepo(db *sql.DB) UserRepo {
	return &userRepo{db: db}
}

const userColumns = `
	id, name, gender, birthday, email, password_hash, phone,
	last_latitude, last_longitude, location_updated_at, created_at, updated_at
`

func scanUser(row *sql.Row) (model.User, error) {
	var u model.User
	err := row.Scan(
		&u.ID,
		&u.Name,
		&u.Gender,
		&u.Birthday,
		&u.Email,
		&u.PasswordHash,
		&u.Phone,
		&u.LastLatitude,
		&u.LastLongitude,
		&u.LocationUpdatedAt,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.User{}, model.ErrNotFound
		}
		return model.User{}, fmt.Errorf("query user: %w", err)
	}
	return u, nil
}

// Create inserts a new user. Returns model.ErrConflict when the email is
// already registered (unique index on lower(email)).
func (r *userRepo) Create(ctx context.Context, u *model.User) error {
	query := `
		INSERT INTO users (name, gender, birthday, email, password_hash, phone)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRowContext(ctx, query,
		u.Name, u.Gender, u.Birthday, u.Email, u.PasswordHash, u.Phone,
	).Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return fmt.Errorf("email already registered: %w", model.ErrConflict)
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// GetByID retrieves a user by ID.
func (r *userRepo) GetByID(ctx context.Context, id uuid.UUID) (model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(r.db.QueryRowContext(ctx, query, id))
}

// GetByEmail retrieves a user by email, case-insensitively.
func (r *userRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE lower(email) = lower($1)`
	return scanUser(r.db.QueryRowContext(ctx, query, email))
}

// UpdateProfile applies a partial update of name/gender/birthday and returns
// the updated row.
func (r *userRepo) UpdateProfile(ctx context.Context, id uuid.UUID, name, gender *string, birthday *time.Time) (model.User, error) {
	query := `
		UPDATE users
		SET name = COALESCE($2, name),
		    gender = COALESCE($3, gender),
		    birthday = COALESCE($4, birthday),
		    updated_at = now()
		WHERE id = $1
		RETURNING ` + userColumns
	return scanUser(r.db.QueryRowContext(ctx, query, id, name, gender, birthday))
}

// UpdateLocation stores the user's cached location.
func (r *userRepo) UpdateLocation(ctx context.Context, id uuid.UUID, lat, lon float64) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET last_latitude = $2, last_longitude = $3, location_updated_at = now(), updated_at = now()
		WHERE id = $1
	`, id, lat, lon)
	if err != nil {
		return fmt.Errorf("update location: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return model.ErrNotFound
	}
	return nil
}
