package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/go-faster/errors"

	"github.com/xenking/bistro/internal/domain/auth"
)

const (
	findUserByEmailSQL = `SELECT id, username, email, password_hash, role FROM users WHERE email = ?`

	createUserSQL = `INSERT INTO users (username, email, password_hash, role) VALUES (?, ?, ?, ?)
		ON CONFLICT (email) DO UPDATE SET username = excluded.username,
			password_hash = excluded.password_hash, role = excluded.role
		RETURNING id`
)

var _ auth.UserRepository = (*UserRepository)(nil)

// UserRepository implements auth.UserRepository on SQLite.
type UserRepository struct {
	db *sql.DB
}

// NewUserRepository returns a UserRepository that uses db.
func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

// FindByEmail returns the user registered with email.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	var u auth.User
	err := r.db.QueryRowContext(ctx, findUserByEmailSQL, email).Scan(
		&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.Role,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, auth.ErrUserNotFound
		}
		return nil, fmt.Errorf("finding user %q: %w", email, err)
	}
	return &u, nil
}

// Create inserts the user, or updates the existing row with the same email.
func (r *UserRepository) Create(ctx context.Context, u *auth.User) error {
	err := r.db.QueryRowContext(ctx, createUserSQL, u.Username, u.Email, u.PasswordHash, u.Role).Scan(&u.ID)
	if err != nil {
		return fmt.Errorf("creating user %q: %w", u.Email, err)
	}
	return nil
}
