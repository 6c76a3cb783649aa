package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sartarosh/internal/config"
	"sartarosh/internal/database"
	"sartarosh/internal/events"
	"sartarosh/internal/models"
	"sartarosh/internal/service"
)

const (
	testAPIKey   = "test-key"
	testAPIExtra = "test-extra"
)

type nopLimiter struct{}

func (nopLimiter) CheckRateLimit(ctx context.Context, clientID int64, limit int, window time.Duration) (bool, error) {
	return true, nil
}

type apiEnv struct {
	srv *HTTPServer
	db  *database.DB
	day time.Time
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()
	logger := zerolog.Nop()
	db, err := database.NewDB(filepath.Join(t.TempDir(), "api.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	windows := make([]models.WorkingWindow, 0, 7)
	for wd := 0; wd < 7; wd++ {
		windows = append(windows, models.WorkingWindow{
			BarberID: 1, Weekday: wd, StartMin: 9 * 60, EndMin: 18 * 60, IsWorking: true,
		})
	}
	err = db.SyncBarbers(context.Background(),
		[]models.Barber{{ID: 1, Name: "Anvar", ChatID: 100, IsActive: true}},
		windows,
		[]models.ServiceOffering{
			{BarberID: 1, ServiceID: 1, Name: "Haircut", Price: 50000, Duration: 30, Active: true},
			{BarberID: 1, ServiceID: 2, Name: "Beard trim", Price: 30000, Duration: 30, Active: true},
		},
	)
	require.NoError(t, err)

	svc := service.NewBookingService(db, nopLimiter{}, events.NewEventBus(), nil, nil, &logger)

	cfg := config.APIConfig{
		Port: 0,
		Auth: config.APIAuthConfig{
			Enabled:      true,
			HeaderAPIKey: "x-api-key",
			HeaderExtra:  "x-api-extra",
			APIKeys: []config.APIClientKey{
				{Key: testAPIKey, Extra: testAPIExtra, Name: "tests"},
			},
		},
	}
	srv := NewHTTPServer(cfg, svc, nil, &logger)

	now := time.Now()
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.Local).AddDate(0, 0, 7)
	_, err = svc.GenerateSchedule(context.Background(), 1, day, 1)
	require.NoError(t, err)

	return &apiEnv{srv: srv, db: db, day: day}
}

func (e *apiEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("x-api-key", testAPIKey)
	req.Header.Set("x-api-extra", testAPIExtra)
	rec := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func (e *apiEnv) createBooking(t *testing.T, clientID int64, start string) map[string]any {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/v1/requests", map[string]any{
		"barber_id":   1,
		"client_id":   clientID,
		"date":        e.day.Format("2006-01-02"),
		"start":       start,
		"service_ids": []int64{1},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeBody(t, rec)
}

func TestAuthRejectsMissingKey(t *testing.T) {
	env := newAPIEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/slots?barber_id=1&date=2026-09-07", nil)
	rec := httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthRejectsWrongExtra(t *testing.T) {
	env := newAPIEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/slots?barber_id=1&date=2026-09-07", nil)
	req.Header.Set("x-api-key", testAPIKey)
	req.Header.Set("x-api-extra", "nope")
	rec := httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequestIDHeaderIssued(t *testing.T) {
	env := newAPIEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/slots?barber_id=1&date="+env.day.Format("2006-01-02"), nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("x-request-id"))
}

func TestCreateBooking(t *testing.T) {
	env := newAPIEnv(t)

	body := env.createBooking(t, 500, "10:00")
	assert.Equal(t, models.StatusPending, body["status"])
	assert.Equal(t, "10:00", body["start"])
	assert.Equal(t, "10:30", body["end"])
	assert.EqualValues(t, 50000, body["final_price"])
	assert.EqualValues(t, 500, body["client_id"])
}

func TestCreateBookingBadJSON(t *testing.T) {
	env := newAPIEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/requests", bytes.NewBufferString("{nope"))
	req.Header.Set("x-api-key", testAPIKey)
	req.Header.Set("x-api-extra", testAPIExtra)
	rec := httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateBookingOutsideHours(t *testing.T) {
	env := newAPIEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/requests", map[string]any{
		"barber_id":   1,
		"client_id":   500,
		"date":        env.day.Format("2006-01-02"),
		"start":       "20:00",
		"service_ids": []int64{1},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAcceptThenConflict(t *testing.T) {
	env := newAPIEnv(t)

	first := env.createBooking(t, 500, "11:00")
	firstID := int64(first["id"].(float64))

	rec := env.do(t, http.MethodPost, fmt.Sprintf("/api/v1/requests/%d/transition", firstID),
		map[string]any{"action": models.ActionAccept})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, models.StatusAccepted, decodeBody(t, rec)["status"])

	// Same interval is now taken.
	rec = env.do(t, http.MethodPost, "/api/v1/requests", map[string]any{
		"barber_id":   1,
		"client_id":   501,
		"date":        env.day.Format("2006-01-02"),
		"start":       "11:00",
		"service_ids": []int64{1},
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestTransitionBadAction(t *testing.T) {
	env := newAPIEnv(t)
	body := env.createBooking(t, 500, "12:00")
	id := int64(body["id"].(float64))

	rec := env.do(t, http.MethodPost, fmt.Sprintf("/api/v1/requests/%d/transition", id),
		map[string]any{"action": "cancel"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetRequestNotFound(t *testing.T) {
	env := newAPIEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/requests/9999", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDiscountFlow(t *testing.T) {
	env := newAPIEnv(t)
	body := env.createBooking(t, 500, "13:00")
	id := int64(body["id"].(float64))

	rec := env.do(t, http.MethodPost, fmt.Sprintf("/api/v1/requests/%d/discount", id),
		map[string]any{"discount": "10%"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	out := decodeBody(t, rec)
	assert.EqualValues(t, 5000, out["discount"])
	assert.EqualValues(t, 45000, out["final_price"])

	rec = env.do(t, http.MethodPost, fmt.Sprintf("/api/v1/requests/%d/discount", id),
		map[string]any{"discount": "abc"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, fmt.Sprintf("/api/v1/requests/%d/discount", id),
		map[string]any{"discount": "60000"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestToggleService(t *testing.T) {
	env := newAPIEnv(t)
	body := env.createBooking(t, 500, "14:00")
	id := int64(body["id"].(float64))

	rec := env.do(t, http.MethodPost, fmt.Sprintf("/api/v1/requests/%d/services", id),
		map[string]any{"service_id": 2})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	out := decodeBody(t, rec)
	assert.Equal(t, true, out["added"])
	assert.Equal(t, "15:00", out["end"])
	assert.EqualValues(t, 80000, out["final_price"])
}

func TestSlotsAndOccupancy(t *testing.T) {
	env := newAPIEnv(t)
	body := env.createBooking(t, 500, "09:00")
	id := int64(body["id"].(float64))
	rec := env.do(t, http.MethodPost, fmt.Sprintf("/api/v1/requests/%d/transition", id),
		map[string]any{"action": models.ActionAccept})
	require.Equal(t, http.StatusOK, rec.Code)

	date := env.day.Format("2006-01-02")
	rec = env.do(t, http.MethodGet, "/api/v1/slots?barber_id=1&date="+date, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	slots := decodeBody(t, rec)["slots"].([]any)
	require.Len(t, slots, 18)
	first := slots[0].(map[string]any)
	assert.Equal(t, "09:00", first["start"])
	assert.Equal(t, false, first["free"])

	rec = env.do(t, http.MethodGet, "/api/v1/occupancy?barber_id=1&date="+date, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	occ := decodeBody(t, rec)
	assert.Equal(t, models.OccupancyLow, occ["band"])
	assert.EqualValues(t, 30, occ["booked_minutes"])
	assert.EqualValues(t, 5, occ["percent"])
}

func TestGenerateAndStats(t *testing.T) {
	env := newAPIEnv(t)

	from := env.day.AddDate(0, 0, 1)
	rec := env.do(t, http.MethodPost, "/api/v1/schedule/generate", map[string]any{
		"barber_id": 1,
		"from":      from.Format("2006-01-02"),
		"days":      3,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.EqualValues(t, 3, decodeBody(t, rec)["created"])

	body := env.createBooking(t, 500, "15:00")
	id := int64(body["id"].(float64))
	rec = env.do(t, http.MethodPost, fmt.Sprintf("/api/v1/requests/%d/transition", id),
		map[string]any{"action": models.ActionAccept})
	require.Equal(t, http.StatusOK, rec.Code)

	date := env.day.Format("2006-01-02")
	rec = env.do(t, http.MethodGet,
		fmt.Sprintf("/api/v1/stats?barber_id=1&from=%s&to=%s", date, date), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	days := decodeBody(t, rec)["days"].([]any)
	require.Len(t, days, 1)
	stat := days[0].(map[string]any)
	assert.EqualValues(t, 1, stat["n_clients"])
	assert.EqualValues(t, 50000, stat["total_income"])
}

func TestDayStats(t *testing.T) {
	env := newAPIEnv(t)

	body := env.createBooking(t, 500, "16:00")
	id := int64(body["id"].(float64))
	rec := env.do(t, http.MethodPost, fmt.Sprintf("/api/v1/requests/%d/transition", id),
		map[string]any{"action": models.ActionAccept})
	require.Equal(t, http.StatusOK, rec.Code)

	// The env generates exactly one schedule day, so its id is 1.
	rec = env.do(t, http.MethodGet, "/api/v1/schedule/1/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	out := decodeBody(t, rec)
	assert.Equal(t, env.day.Format("2006-01-02"), out["day"])
	assert.EqualValues(t, 1, out["n_clients"])
	assert.EqualValues(t, 50000, out["total_income"])

	rec = env.do(t, http.MethodGet, "/api/v1/schedule/999/stats", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestExportNotConfigured(t *testing.T) {
	env := newAPIEnv(t)
	date := env.day.Format("2006-01-02")

	rec := env.do(t, http.MethodPost,
		fmt.Sprintf("/api/v1/export?barber_id=1&from=%s&to=%s", date, date), nil)
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}
