package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/voltmap/voltmap-go/internal/apperror"
	"github.com/voltmap/voltmap-go/internal/crypto"
	"github.com/voltmap/voltmap-go/internal/model"
	"github.com/voltmap/voltmap-go/internal/repository"
)

const msgInvalidCredentials = "Invalid credentials"

// ErrUserNotFound is returned by GetUser when the account no longer exists.
var ErrUserNotFound = errors.New("user not found")

// AuthService handles registration, login and identity lookup.
type AuthService struct {
	creds  *Credentials
	users  *repository.UserRepository
	tokens *crypto.TokenService
}

// NewAuthService creates a new AuthService.
func NewAuthService(creds *Credentials, users *repository.UserRepository, tokens *crypto.TokenService) *AuthService {
	return &AuthService{
		creds:  creds,
		users:  users,
		tokens: tokens,
	}
}

// Register creates a new user account and returns an auth token.
func (s *AuthService) Register(ctx context.Context, req model.CredentialsRequest) (model.AuthResult, error) {
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		return model.AuthResult{}, apperror.InvalidInput(msgCredentialsRequired)
	}
	if utf8.RuneCountInString(req.Password) < MinPasswordLength {
		return model.AuthResult{}, apperror.InvalidInput(msgPasswordTooShort)
	}

	existing, err := s.creds.FindByEmail(ctx, req.Email)
	if err != nil {
		return model.AuthResult{}, err
	}
	if existing != nil {
		return model.AuthResult{}, apperror.Conflict(msgEmailTaken)
	}

	user, err := s.creds.Create(ctx, req.Email, req.Password)
	if err != nil {
		return model.AuthResult{}, err
	}

	return s.issue(user)
}

// Login authenticates a user and returns an auth token. Unknown emails and
// wrong passwords produce the same error.
func (s *AuthService) Login(ctx context.Context, req model.CredentialsRequest) (model.AuthResult, error) {
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		return model.AuthResult{}, apperror.InvalidInput(msgCredentialsRequired)
	}

	user, err := s.creds.FindByEmail(ctx, req.Email)
	if err != nil {
		return model.AuthResult{}, err
	}
	if user == nil {
		return model.AuthResult{}, apperror.Unauthorized(msgInvalidCredentials)
	}

	match, err := s.creds.VerifyPassword(ctx, user, req.Password)
	if err != nil {
		return model.AuthResult{}, fmt.Errorf("verify password: %w", err)
	}
	if !match {
		return model.AuthResult{}, apperror.Unauthorized(msgInvalidCredentials)
	}

	return s.issue(user)
}

// GetUser retrieves a user by ID and returns safe user data.
func (s *AuthService) GetUser(ctx context.Context, userID string) (model.UserResponse, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return model.UserResponse{}, ErrUserNotFound
		}
		return model.UserResponse{}, err
	}
	return user.Public(), nil
}

func (s *AuthService) issue(user *model.User) (model.AuthResult, error) {
	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		return model.AuthResult{}, fmt.Errorf("issue token: %w", err)
	}
	return model.AuthResult{User: user.Public(), Token: token}, nil
}
