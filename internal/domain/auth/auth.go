package auth

import (
	"context"

	"github.com/go-faster/errors"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrInvalidCredentials is returned when the email is unknown or the
	// password does not match.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserNotFound is returned by repositories when no user has the email.
	ErrUserNotFound = errors.New("user not found")
	// ErrAPIKeyNotFound is returned by repositories when no active key has the hash.
	ErrAPIKeyNotFound = errors.New("api key not found")
)

// User is an account able to sign in.
type User struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash string
	Role         string
}

// APIKeyInfo holds the identity and permission data for a validated API key.
type APIKeyInfo struct {
	ID      string
	KeyHash string
	Name    string
	Scopes  []string
}

// UserRepository provides user lookup and creation.
type UserRepository interface {
	FindByEmail(ctx context.Context, email string) (*User, error)
	Create(ctx context.Context, user *User) error
}

// APIKeyRepository provides lookup and storage of API keys by their HMAC hash.
type APIKeyRepository interface {
	FindByHash(ctx context.Context, hash string) (*APIKeyInfo, error)
	Upsert(ctx context.Context, key APIKeyInfo) error
}

// HashPassword returns the bcrypt hash of password.
func HashPassword(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", errors.Wrap(err, "hash password")
	}
	return string(h), nil
}

// Authenticator verifies email/password pairs against stored bcrypt hashes.
type Authenticator struct {
	users UserRepository
}

// NewAuthenticator creates an Authenticator backed by the given repository.
func NewAuthenticator(users UserRepository) *Authenticator {
	return &Authenticator{users: users}
}

// Verify returns the user when the password matches its stored hash.
// Unknown emails and wrong passwords both yield ErrInvalidCredentials.
func (a *Authenticator) Verify(ctx context.Context, email, password string) (*User, error) {
	u, err := a.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, errors.Wrap(err, "find user")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}
