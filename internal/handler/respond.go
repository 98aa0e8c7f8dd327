package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/voltmap/voltmap-go/internal/apperror"
	"github.com/voltmap/voltmap-go/internal/model"
)

const maxBodyBytes = 1 << 20 // 1MB

// envelope is the shape of every API response.
type envelope struct {
	Success bool                `json:"success"`
	Message string              `json:"message,omitempty"`
	Count   *int                `json:"count,omitempty"`
	Data    any                 `json:"data,omitempty"`
	User    *model.UserResponse `json:"user,omitempty"`
	Token   string              `json:"token,omitempty"`
	Error   string              `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError translates err into the error envelope. Anything that is not an
// *apperror.Error is logged and reported as a generic server error.
func writeError(w http.ResponseWriter, logger *zap.Logger, err error) {
	appErr := apperror.From(err)
	if appErr.Kind == apperror.KindServerError {
		logger.Error("request failed", zap.Error(err))
	} else {
		logger.Debug("request rejected", zap.Stringer("kind", appErr.Kind), zap.String("message", appErr.Message))
	}
	writeJSON(w, appErr.Kind.Status(), envelope{Error: appErr.Message})
}

// decodeJSON reads a JSON body into dst. An empty body leaves dst untouched.
// It writes the error response itself and reports whether decoding succeeded.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer r.Body.Close()

	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}

	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeJSON(w, http.StatusRequestEntityTooLarge, envelope{Error: "Request body too large"})
		return false
	}
	writeJSON(w, http.StatusBadRequest, envelope{Error: "Invalid request body"})
	return false
}
