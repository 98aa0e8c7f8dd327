package handler

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/voltmap/voltmap-go/internal/apperror"
	"github.com/voltmap/voltmap-go/internal/middleware"
	"github.com/voltmap/voltmap-go/internal/model"
	"github.com/voltmap/voltmap-go/internal/service"
)

// AuthHandler handles HTTP requests for authentication.
type AuthHandler struct {
	service *service.AuthService
	logger  *zap.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(svc *service.AuthService, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{service: svc, logger: logger}
}

// HandleRegister handles POST /api/auth/register requests.
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req model.CredentialsRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := h.service.Register(r.Context(), req)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	h.logger.Info("user registered", zap.String("user_id", res.User.ID))
	writeJSON(w, http.StatusCreated, envelope{
		Success: true,
		Message: "User registered successfully",
		User:    &res.User,
		Token:   res.Token,
	})
}

// HandleLogin handles POST /api/auth/login requests.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req model.CredentialsRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := h.service.Login(r.Context(), req)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, envelope{
		Success: true,
		Message: "User logged in successfully",
		User:    &res.User,
		Token:   res.Token,
	})
}

// HandleMe handles GET /api/auth/me requests.
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		writeError(w, h.logger, apperror.Unauthorized("Not authorized"))
		return
	}

	writeJSON(w, http.StatusOK, envelope{Success: true, User: &user})
}
