package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/voltmap/voltmap-go/internal/apperror"
	"github.com/voltmap/voltmap-go/internal/middleware"
	"github.com/voltmap/voltmap-go/internal/model"
	"github.com/voltmap/voltmap-go/internal/service"
)

const defaultMaxDistanceKM = 10.0

// StationHandler handles HTTP requests for station operations.
type StationHandler struct {
	service *service.StationService
	logger  *zap.Logger
}

// NewStationHandler creates a new StationHandler.
func NewStationHandler(svc *service.StationService, logger *zap.Logger) *StationHandler {
	return &StationHandler{service: svc, logger: logger}
}

// HandleCreate handles POST /api/stations requests.
func (h *StationHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	user, ok := h.caller(w, r)
	if !ok {
		return
	}

	var in model.StationInput
	if !decodeJSON(w, r, &in) {
		return
	}

	station, err := h.service.Create(r.Context(), user.ID, in)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, envelope{
		Success: true,
		Message: "Charging station created successfully",
		Data:    station,
	})
}

// HandleList handles GET /api/stations requests.
//
// Without query parameters every station is returned. mine=true restricts the
// listing to the caller's stations and near=<lng>,<lat> with an optional
// maxDistanceKm keeps stations within that radius.
func (h *StationHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	user, ok := h.caller(w, r)
	if !ok {
		return
	}

	filter, err := parseListFilter(r, user.ID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	stations, err := h.service.List(r.Context(), filter)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	count := len(stations)
	writeJSON(w, http.StatusOK, envelope{Success: true, Count: &count, Data: stations})
}

// HandleGet handles GET /api/stations/{id} requests.
func (h *StationHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	user, ok := h.caller(w, r)
	if !ok {
		return
	}

	station, err := h.service.Get(r.Context(), user.ID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, envelope{Success: true, Data: station})
}

// HandleUpdate handles PUT /api/stations/{id} requests. A createdBy field in
// the body is ignored.
func (h *StationHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	user, ok := h.caller(w, r)
	if !ok {
		return
	}

	var in model.StationInput
	if !decodeJSON(w, r, &in) {
		return
	}

	station, err := h.service.Update(r.Context(), user.ID, chi.URLParam(r, "id"), in)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, envelope{
		Success: true,
		Message: "Charging station updated successfully",
		Data:    station,
	})
}

// HandleDelete handles DELETE /api/stations/{id} requests.
func (h *StationHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	user, ok := h.caller(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), user.ID, chi.URLParam(r, "id")); err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, envelope{
		Success: true,
		Message: "Charging station deleted successfully",
		Data:    struct{}{},
	})
}

func (h *StationHandler) caller(w http.ResponseWriter, r *http.Request) (model.UserResponse, bool) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		writeError(w, h.logger, apperror.Unauthorized("Not authorized"))
	}
	return user, ok
}

func parseListFilter(r *http.Request, userID string) (model.ListFilter, error) {
	q := r.URL.Query()
	var f model.ListFilter

	if mine, _ := strconv.ParseBool(q.Get("mine")); mine {
		f.OwnerID = userID
	}

	near := q.Get("near")
	if near == "" {
		return f, nil
	}

	lngStr, latStr, found := strings.Cut(near, ",")
	lng, lngErr := strconv.ParseFloat(strings.TrimSpace(lngStr), 64)
	lat, latErr := strconv.ParseFloat(strings.TrimSpace(latStr), 64)
	if !found || lngErr != nil || latErr != nil || !model.ValidCoordinates(lng, lat) {
		return f, apperror.InvalidInput("near must be <longitude>,<latitude> within valid range")
	}
	f.Near = &[2]float64{lng, lat}

	f.MaxDistanceKM = defaultMaxDistanceKM
	if raw := q.Get("maxDistanceKm"); raw != "" {
		d, err := strconv.ParseFloat(raw, 64)
		if err != nil || d <= 0 {
			return f, apperror.InvalidInput("maxDistanceKm must be a positive number")
		}
		f.MaxDistanceKM = d
	}
	return f, nil
}
