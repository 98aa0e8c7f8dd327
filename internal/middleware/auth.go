package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/voltmap/voltmap-go/internal/crypto"
	"github.com/voltmap/voltmap-go/internal/model"
	"github.com/voltmap/voltmap-go/internal/service"
)

type contextKey string

const userKey contextKey = "user"

const (
	msgNoToken      = "Not authorized, no token provided"
	msgTokenFailed  = "Not authorized, token failed"
	msgTokenExpired = "Not authorized, token failed: token expired"
	msgUserNotFound = "Not authorized, user not found for this token"
)

// TokenVerifier resolves a bearer token to the user ID it was issued for.
type TokenVerifier interface {
	Verify(token string) (string, error)
}

// UserResolver loads the public projection of a user.
type UserResolver interface {
	GetUser(ctx context.Context, userID string) (model.UserResponse, error)
}

// Protect returns middleware that requires a valid Bearer token belonging to
// an existing user. The resolved user is stored in the request context.
func Protect(tokens TokenVerifier, users UserResolver, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, found := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			token = strings.TrimSpace(token)
			if !found || token == "" {
				writeJSONError(w, http.StatusUnauthorized, msgNoToken)
				return
			}

			user, msg := resolve(r.Context(), tokens, users, token, logger)
			if msg != "" {
				writeJSONError(w, http.StatusUnauthorized, msg)
				return
			}

			ctx := WithUser(r.Context(), user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// resolve returns the authenticated user, or the client message explaining
// why the token was rejected. Panics during verification are rejections too.
func resolve(ctx context.Context, tokens TokenVerifier, users UserResolver, token string, logger *zap.Logger) (user model.UserResponse, msg string) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("token verification panicked", zap.String("panic", fmt.Sprint(rec)))
			user, msg = model.UserResponse{}, msgTokenFailed
		}
	}()

	userID, err := tokens.Verify(token)
	if err != nil {
		logger.Debug("token rejected", zap.Error(err))
		if errors.Is(err, crypto.ErrTokenExpired) {
			return model.UserResponse{}, msgTokenExpired
		}
		return model.UserResponse{}, msgTokenFailed
	}

	user, err = users.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			return model.UserResponse{}, msgUserNotFound
		}
		logger.Error("resolving token user", zap.String("user_id", userID), zap.Error(err))
		return model.UserResponse{}, msgTokenFailed
	}
	return user, ""
}

// UserFromContext returns the user attached by Protect.
func UserFromContext(ctx context.Context) (model.UserResponse, bool) {
	user, ok := ctx.Value(userKey).(model.UserResponse)
	return user, ok
}

// WithUser attaches user to ctx for UserFromContext to read back.
func WithUser(ctx context.Context, user model.UserResponse) context.Context {
	return context.WithValue(ctx, userKey, user)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{"success": false, "error": msg})
}
