package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"unicode/utf8"

	"github.com/voltmap/voltmap-go/internal/apperror"
	"github.com/voltmap/voltmap-go/internal/crypto"
	"github.com/voltmap/voltmap-go/internal/model"
	"github.com/voltmap/voltmap-go/internal/repository"
)

const (
	MinPasswordLength = 6
	MaxEmailLength    = 255
)

const (
	msgCredentialsRequired = "Please provide an email and password"
	msgPasswordTooShort    = "Password must be at least 6 characters"
	msgInvalidEmail        = "Please provide a valid email"
	msgEmailTooLong        = "Email cannot be more than 255 characters"
	msgEmailTaken          = "User already exists with this email"
)

var emailPattern = regexp.MustCompile(`^\w+([.-]?\w+)*@\w+([.-]?\w+)*(\.\w{2,3})+$`)

// Credentials stores users and their password hashes.
type Credentials struct {
	users  *repository.UserRepository
	hasher *crypto.PasswordHasher
}

func NewCredentials(users *repository.UserRepository, hasher *crypto.PasswordHasher) *Credentials {
	return &Credentials{users: users, hasher: hasher}
}

// FindByEmail returns the stored user, or nil when no account uses email.
func (c *Credentials) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	user, err := c.users.GetByEmail(ctx, email)
	if errors.Is(err, repository.ErrUserNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find user by email: %w", err)
	}
	return user, nil
}

// Create hashes password and persists a new user.
func (c *Credentials) Create(ctx context.Context, email, password string) (*model.User, error) {
	email = repository.NormalizeEmail(email)
	if utf8.RuneCountInString(email) > MaxEmailLength {
		return nil, apperror.InvalidInput(msgEmailTooLong)
	}
	if !emailPattern.MatchString(email) {
		return nil, apperror.InvalidInput(msgInvalidEmail)
	}
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return nil, apperror.InvalidInput(msgPasswordTooShort)
	}

	hash, err := c.hasher.Hash(ctx, password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &model.User{Email: email, PasswordHash: hash}
	if err := c.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, apperror.Wrap(apperror.KindConflict, msgEmailTaken, err)
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

// VerifyPassword reports whether password matches the user's stored hash.
// A mismatch is not an error.
func (c *Credentials) VerifyPassword(ctx context.Context, user *model.User, password string) (bool, error) {
	return c.hasher.Verify(ctx, password, user.PasswordHash)
}
