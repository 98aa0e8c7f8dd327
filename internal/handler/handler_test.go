package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/voltmap/voltmap-go/internal/crypto"
	"github.com/voltmap/voltmap-go/internal/middleware"
	"github.com/voltmap/voltmap-go/internal/repository"
	"github.com/voltmap/voltmap-go/internal/service"
)

type response struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Count   *int            `json:"count"`
	Data    json.RawMessage `json:"data"`
	User    struct {
		ID    string `json:"_id"`
		Email string `json:"email"`
	} `json:"user"`
	Token string `json:"token"`
	Error string `json:"error"`
}

type stationJSON struct {
	ID       string `json:"_id"`
	Name     string `json:"name"`
	Status   string `json:"status"`
	Location struct {
		Type        string     `json:"type"`
		Coordinates [2]float64 `json:"coordinates"`
		Address     string     `json:"address"`
	} `json:"location"`
	PowerOutput   float64         `json:"powerOutput"`
	ConnectorType string          `json:"connectorType"`
	CreatedBy     json.RawMessage `json:"createdBy"`
	CreatedAt     time.Time       `json:"createdAt"`
}

type testServer struct {
	t       *testing.T
	handler http.Handler
	healthy error
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	db, err := repository.Open(context.Background(), repository.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	users := repository.NewUserRepository(db)
	hasher := crypto.NewPasswordHasher(crypto.HashParams{
		Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32,
	})
	tokens := crypto.NewTokenService("handler-test-secret", time.Hour)
	limiter := middleware.NewMemoryLimiter(1000, 1000)
	t.Cleanup(limiter.Close)

	ts := &testServer{t: t}
	ts.handler = NewRouter(RouterConfig{
		Auth:           service.NewAuthService(service.NewCredentials(users, hasher), users, tokens),
		Stations:       service.NewStationService(repository.NewStationRepository(db)),
		Tokens:         tokens,
		Limiter:        limiter,
		AllowedOrigins: []string{"http://localhost:5173"},
		Health:         func(context.Context) error { return ts.healthy },
		Logger:         zap.NewNop(),
	})
	return ts
}

func (ts *testServer) do(method, path, token, body string) (int, response) {
	ts.t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)

	var resp response
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(ts.t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	}
	return rec.Code, resp
}

func (ts *testServer) register(email string) (token, id string) {
	ts.t.Helper()
	code, resp := ts.do(http.MethodPost, "/api/auth/register", "", `{"email":"`+email+`","password":"secret123"}`)
	require.Equal(ts.t, http.StatusCreated, code, resp.Error)
	return resp.Token, resp.User.ID
}

func (ts *testServer) createStation(token, body string) stationJSON {
	ts.t.Helper()
	code, resp := ts.do(http.MethodPost, "/api/stations", token, body)
	require.Equal(ts.t, http.StatusCreated, code, resp.Error)
	var st stationJSON
	require.NoError(ts.t, json.Unmarshal(resp.Data, &st))
	return st
}

const validStation = `{
	"name": "Depot Fast Charge",
	"location": {"coordinates": [10, 45], "address": "12 Quay St"},
	"powerOutput": 120,
	"connectorType": "CCS"
}`

func TestRoot(t *testing.T) {
	ts := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "API is running...", rec.Body.String())
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)

	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	ts.healthy = errors.New("db gone")
	rec = httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRegisterAndLogin(t *testing.T) {
	ts := newTestServer(t)

	code, reg := ts.do(http.MethodPost, "/api/auth/register", "", `{"email":"Driver@Example.com","password":"secret123"}`)
	require.Equal(t, http.StatusCreated, code)
	assert.True(t, reg.Success)
	assert.Equal(t, "User registered successfully", reg.Message)
	assert.Equal(t, "driver@example.com", reg.User.Email)
	assert.NotEmpty(t, reg.Token)

	code, dup := ts.do(http.MethodPost, "/api/auth/register", "", `{"email":"driver@example.com","password":"secret123"}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.False(t, dup.Success)
	assert.Equal(t, "User already exists with this email", dup.Error)

	code, login := ts.do(http.MethodPost, "/api/auth/login", "", `{"email":"driver@example.com","password":"secret123"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "User logged in successfully", login.Message)
	assert.Equal(t, reg.User.ID, login.User.ID)

	code, me := ts.do(http.MethodGet, "/api/auth/me", login.Token, "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, reg.User.ID, me.User.ID)
}

func TestRegister_Validation(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name string
		body string
		want string
		code int
	}{
		{"empty body", "", "Please provide an email and password", http.StatusBadRequest},
		{"missing password", `{"email":"a@b.io"}`, "Please provide an email and password", http.StatusBadRequest},
		{"short password", `{"email":"a@b.io","password":"12345"}`, "Password must be at least 6 characters", http.StatusBadRequest},
		{"malformed json", `{"email":`, "Invalid request body", http.StatusBadRequest},
		{"email too long", `{"email":"` + strings.Repeat("a", 250) + `@example.com","password":"secret123"}`, "Email cannot be more than 255 characters", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, resp := ts.do(http.MethodPost, "/api/auth/register", "", tt.body)
			assert.Equal(t, tt.code, code)
			assert.Equal(t, tt.want, resp.Error)
		})
	}
}

func TestRegister_BodyTooLarge(t *testing.T) {
	ts := newTestServer(t)
	body := `{"email":"a@b.io","password":"` + strings.Repeat("x", maxBodyBytes) + `"}`

	code, resp := ts.do(http.MethodPost, "/api/auth/register", "", body)
	assert.Equal(t, http.StatusRequestEntityTooLarge, code)
	assert.Equal(t, "Request body too large", resp.Error)
}

func TestLogin_SameErrorForUnknownEmailAndWrongPassword(t *testing.T) {
	ts := newTestServer(t)
	ts.register("known@example.com")

	code1, wrong := ts.do(http.MethodPost, "/api/auth/login", "", `{"email":"known@example.com","password":"nope-nope"}`)
	code2, unknown := ts.do(http.MethodPost, "/api/auth/login", "", `{"email":"ghost@example.com","password":"secret123"}`)

	assert.Equal(t, http.StatusUnauthorized, code1)
	assert.Equal(t, code1, code2)
	assert.Equal(t, wrong.Error, unknown.Error)
}

func TestStations_RequireToken(t *testing.T) {
	ts := newTestServer(t)

	code, resp := ts.do(http.MethodGet, "/api/stations", "", "")
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "Not authorized, no token provided", resp.Error)

	code, resp = ts.do(http.MethodGet, "/api/stations", "forged.token.value", "")
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "Not authorized, token failed", resp.Error)
}

func TestStations_CRUDRoundTrip(t *testing.T) {
	ts := newTestServer(t)
	token, userID := ts.register("owner@example.com")

	created := ts.createStation(token, validStation)
	assert.Equal(t, "Depot Fast Charge", created.Name)
	assert.Equal(t, "Active", created.Status)
	assert.Equal(t, "Point", created.Location.Type)
	assert.Equal(t, [2]float64{10, 45}, created.Location.Coordinates)
	assert.JSONEq(t, `"`+userID+`"`, string(created.CreatedBy))

	code, got := ts.do(http.MethodGet, "/api/stations/"+created.ID, token, "")
	require.Equal(t, http.StatusOK, code)
	var fetched stationJSON
	require.NoError(t, json.Unmarshal(got.Data, &fetched))
	assert.Equal(t, created.ID, fetched.ID)
	assert.Equal(t, "12 Quay St", fetched.Location.Address)
	assert.Equal(t, 120.0, fetched.PowerOutput)
	assert.Equal(t, "CCS", fetched.ConnectorType)
	assert.True(t, created.CreatedAt.Equal(fetched.CreatedAt))

	code, list := ts.do(http.MethodGet, "/api/stations", token, "")
	require.Equal(t, http.StatusOK, code)
	require.NotNil(t, list.Count)
	assert.Equal(t, 1, *list.Count)
	var listed []stationJSON
	require.NoError(t, json.Unmarshal(list.Data, &listed))
	assert.JSONEq(t, `{"_id":"`+userID+`","email":"owner@example.com"}`, string(listed[0].CreatedBy))

	code, upd := ts.do(http.MethodPut, "/api/stations/"+created.ID, token, `{"status":"Coming Soon","location":{"address":"14 Quay St"}}`)
	require.Equal(t, http.StatusOK, code, upd.Error)
	assert.Equal(t, "Charging station updated successfully", upd.Message)
	var updated stationJSON
	require.NoError(t, json.Unmarshal(upd.Data, &updated))
	assert.Equal(t, "Coming Soon", updated.Status)
	assert.Equal(t, "14 Quay St", updated.Location.Address)
	assert.Equal(t, [2]float64{10, 45}, updated.Location.Coordinates)

	code, del := ts.do(http.MethodDelete, "/api/stations/"+created.ID, token, "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Charging station deleted successfully", del.Message)
	assert.JSONEq(t, `{}`, string(del.Data))

	code, missing := ts.do(http.MethodDelete, "/api/stations/"+created.ID, token, "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "Station not found with id of "+created.ID, missing.Error)
}

func TestStations_InvalidCoordinates(t *testing.T) {
	ts := newTestServer(t)
	token, _ := ts.register("owner@example.com")

	body := strings.Replace(validStation, "[10, 45]", "[200, 10]", 1)
	code, resp := ts.do(http.MethodPost, "/api/stations", token, body)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.True(t, strings.HasPrefix(resp.Error, "Invalid input data."))
}

func TestStations_FieldLimits(t *testing.T) {
	ts := newTestServer(t)
	token, _ := ts.register("owner@example.com")

	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "oversized address",
			body: strings.Replace(validStation, "12 Quay St", strings.Repeat("a", 300), 1),
			want: "Invalid input data. Address cannot be more than 255 characters",
		},
		{
			name: "oversized connector type",
			body: strings.Replace(validStation, `"CCS"`, `"`+strings.Repeat("c", 150)+`"`, 1),
			want: "Invalid input data. Connector type cannot be more than 100 characters",
		},
		{
			name: "missing power output",
			body: strings.Replace(validStation, `"powerOutput": 120,`, "", 1),
			want: "Invalid input data. Please specify the power output in kW",
		},
		{
			name: "negative power output",
			body: strings.Replace(validStation, `"powerOutput": 120`, `"powerOutput": -5`, 1),
			want: "Invalid input data. Power output must be a positive value",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, resp := ts.do(http.MethodPost, "/api/stations", token, tt.body)
			assert.Equal(t, http.StatusBadRequest, code)
			assert.Equal(t, tt.want, resp.Error)
		})
	}

	st := ts.createStation(token, validStation)
	body := `{"location":{"address":"` + strings.Repeat("a", 300) + `"}}`
	code, resp := ts.do(http.MethodPut, "/api/stations/"+st.ID, token, body)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Invalid input data. Address cannot be more than 255 characters", resp.Error)
}

func TestStations_OwnershipAndImmutableOwner(t *testing.T) {
	ts := newTestServer(t)
	aliceToken, aliceID := ts.register("alice@example.com")
	bobToken, bobID := ts.register("bob@example.com")

	st := ts.createStation(aliceToken, validStation)

	code, resp := ts.do(http.MethodGet, "/api/stations/"+st.ID, bobToken, "")
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "User not authorized to access this station", resp.Error)

	code, _ = ts.do(http.MethodPut, "/api/stations/"+st.ID, bobToken, `{"name":"Mine now"}`)
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = ts.do(http.MethodDelete, "/api/stations/"+st.ID, bobToken, "")
	assert.Equal(t, http.StatusForbidden, code)

	code, upd := ts.do(http.MethodPut, "/api/stations/"+st.ID, aliceToken, `{"name":"Renamed","createdBy":"`+bobID+`"}`)
	require.Equal(t, http.StatusOK, code, upd.Error)
	var updated stationJSON
	require.NoError(t, json.Unmarshal(upd.Data, &updated))
	assert.JSONEq(t, `"`+aliceID+`"`, string(updated.CreatedBy))

	code, _ = ts.do(http.MethodGet, "/api/stations/"+st.ID, aliceToken, "")
	assert.Equal(t, http.StatusOK, code)
}

func TestStations_ListFilters(t *testing.T) {
	ts := newTestServer(t)
	aliceToken, _ := ts.register("alice@example.com")
	bobToken, _ := ts.register("bob@example.com")

	ts.createStation(aliceToken, validStation)
	ts.createStation(bobToken, strings.Replace(validStation, "[10, 45]", "[-73.98, 40.75]", 1))

	_, all := ts.do(http.MethodGet, "/api/stations", aliceToken, "")
	assert.Equal(t, 2, *all.Count)

	_, mine := ts.do(http.MethodGet, "/api/stations?mine=true", aliceToken, "")
	assert.Equal(t, 1, *mine.Count)

	_, near := ts.do(http.MethodGet, "/api/stations?near=-73.99,40.75&maxDistanceKm=5", aliceToken, "")
	assert.Equal(t, 1, *near.Count)

	code, bad := ts.do(http.MethodGet, "/api/stations?near=north", aliceToken, "")
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, bad.Error, "near must be")
}

func TestStations_UnknownIDIsNotFound(t *testing.T) {
	ts := newTestServer(t)
	token, _ := ts.register("owner@example.com")

	code, resp := ts.do(http.MethodGet, "/api/stations/not-a-real-id", token, "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "Station not found with id of not-a-real-id", resp.Error)
}

func TestWriteError_HidesInternalErrors(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, zap.NewNop(), errors.New("pq: connection reset"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var resp response
	require.NoError(t, json.NewDecoder(bytes.NewReader(rec.Body.Bytes())).Decode(&resp))
	assert.Equal(t, "Server Error", resp.Error)
	assert.False(t, resp.Success)
}
