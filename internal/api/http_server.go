package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"sartarosh/internal/config"
	"sartarosh/internal/database"
	"sartarosh/internal/domain"
	"sartarosh/internal/metrics"
	"sartarosh/internal/models"
	"sartarosh/internal/pricing"
	"sartarosh/internal/service"
)

// Exporter builds an xlsx report for a schedule range.
type Exporter interface {
	ExportScheduleRange(ctx context.Context, barberID int64, from, to time.Time) (string, error)
}

// HTTPServer exposes the booking engine as a JSON API.
type HTTPServer struct {
	cfg      config.APIConfig
	booking  domain.BookingService
	exporter Exporter
	logger   *zerolog.Logger
	server   *http.Server
	auth     *HTTPAuth
}

func NewHTTPServer(cfg config.APIConfig, booking domain.BookingService, exporter Exporter, logger *zerolog.Logger) *HTTPServer {
	srv := &HTTPServer{cfg: cfg, booking: booking, exporter: exporter, logger: logger}
	srv.auth = NewHTTPAuth(cfg)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/schedule/generate", srv.handleGenerate)
	mux.HandleFunc("/api/v1/schedule/", srv.handleScheduleSubtree)
	mux.HandleFunc("/api/v1/slots", srv.handleSlots)
	mux.HandleFunc("/api/v1/occupancy", srv.handleOccupancy)
	mux.HandleFunc("/api/v1/stats", srv.handleStats)
	mux.HandleFunc("/api/v1/export", srv.handleExport)
	mux.HandleFunc("/api/v1/requests", srv.handleCreateRequest)
	mux.HandleFunc("/api/v1/requests/", srv.handleRequestSubtree)

	handler := srv.loggingMiddleware(srv.auth.Wrap(mux))

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
	}

	return srv
}

func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) handleGenerate(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("schedule_generate")
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var body struct {
		BarberID int64  `json:"barber_id"`
		From     string `json:"from"`
		Days     int    `json:"days"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	from := time.Now()
	if body.From != "" {
		parsed, err := time.ParseInLocation("2006-01-02", body.From, time.Local)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid from date; expected YYYY-MM-DD")
			return
		}
		from = parsed
	}

	created, err := s.booking.GenerateSchedule(r.Context(), body.BarberID, from, body.Days)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"created": created})
}

func (s *HTTPServer) handleSlots(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("slots")
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	barberID, day, ok := s.barberAndDate(w, r)
	if !ok {
		return
	}

	slotMinutes := 0
	if raw := r.URL.Query().Get("slot_minutes"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "invalid slot_minutes")
			return
		}
		slotMinutes = parsed
	}

	slots, err := s.booking.ListSlots(r.Context(), barberID, day, slotMinutes)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	out := make([]map[string]any, 0, len(slots))
	for _, sl := range slots {
		out = append(out, map[string]any{
			"start": sl.Start.Format("15:04"),
			"end":   sl.End.Format("15:04"),
			"free":  sl.Free,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"slots": out})
}

func (s *HTTPServer) handleOccupancy(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("occupancy")
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	barberID, day, ok := s.barberAndDate(w, r)
	if !ok {
		return
	}

	occ, err := s.booking.DayOccupancy(r.Context(), barberID, day)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	resp := map[string]any{
		"band":           occ.Band,
		"booked_minutes": occ.BookedMinutes,
		"total_minutes":  occ.TotalMinutes,
	}
	if occ.Percent != nil {
		resp["percent"] = *occ.Percent
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("stats")
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	barberID, from, to, ok := s.barberAndRange(w, r)
	if !ok {
		return
	}

	days, err := s.booking.ScheduleStats(r.Context(), barberID, from, to)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	out := make([]map[string]any, 0, len(days))
	for _, d := range days {
		out = append(out, map[string]any{
			"day":          d.Day.Format("2006-01-02"),
			"n_clients":    d.NClients,
			"total_income": d.TotalIncome,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"days": out})
}

func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("export")
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.exporter == nil {
		writeError(w, http.StatusNotImplemented, "export is not configured")
		return
	}

	barberID, from, to, ok := s.barberAndRange(w, r)
	if !ok {
		return
	}

	path, err := s.exporter.ExportScheduleRange(r.Context(), barberID, from, to)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"path": path})
}

func (s *HTTPServer) handleCreateRequest(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("request_create")
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var body struct {
		BarberID   int64   `json:"barber_id"`
		ClientID   *int64  `json:"client_id"`
		Date       string  `json:"date"`
		Start      string  `json:"start"`
		ServiceIDs []int64 `json:"service_ids"`
		Comment    string  `json:"comment"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	day, err := time.ParseInLocation("2006-01-02", body.Date, time.Local)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date; expected YYYY-MM-DD")
		return
	}
	clock, err := models.ParseClock(body.Start)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid start; expected HH:MM")
		return
	}

	req, err := s.booking.CreateBooking(r.Context(), &domain.CreateBookingInput{
		BarberID:   body.BarberID,
		ClientID:   body.ClientID,
		Day:        day,
		StartTime:  time.Date(day.Year(), day.Month(), day.Day(), clock/60, clock%60, 0, 0, time.Local),
		ServiceIDs: body.ServiceIDs,
		Comment:    body.Comment,
	})
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	metrics.IncRequestCreated()
	writeJSON(w, http.StatusCreated, requestResponse(req))
}

// handleScheduleSubtree routes /api/v1/schedule/{id}/stats.
func (s *HTTPServer) handleScheduleSubtree(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/schedule/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) != 2 || parts[1] != "stats" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	dayID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid schedule day id")
		return
	}

	metrics.IncHTTP("day_stats")
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	day, err := s.booking.DayStats(r.Context(), dayID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"day":          day.Day.Format("2006-01-02"),
		"n_clients":    day.NClients,
		"total_income": day.TotalIncome,
	})
}

// handleRequestSubtree routes /api/v1/requests/{id}[/transition|/discount|/services].
func (s *HTTPServer) handleRequestSubtree(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/requests/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	requestID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request id")
		return
	}

	switch {
	case len(parts) == 1:
		s.handleGetRequest(w, r, requestID)
	case len(parts) == 2 && parts[1] == "transition":
		s.handleTransition(w, r, requestID)
	case len(parts) == 2 && parts[1] == "discount":
		s.handleDiscount(w, r, requestID)
	case len(parts) == 2 && parts[1] == "services":
		s.handleToggleService(w, r, requestID)
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

func (s *HTTPServer) handleGetRequest(w http.ResponseWriter, r *http.Request, requestID int64) {
	metrics.IncHTTP("request_get")
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	req, err := s.booking.GetBooking(r.Context(), requestID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, requestResponse(req))
}

func (s *HTTPServer) handleTransition(w http.ResponseWriter, r *http.Request, requestID int64) {
	metrics.IncHTTP("request_transition")
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var body struct {
		Action string `json:"action"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if body.Action != models.ActionAccept && body.Action != models.ActionDeny {
		writeError(w, http.StatusBadRequest, "action must be accept or deny")
		return
	}

	req, err := s.booking.Transition(r.Context(), requestID, body.Action)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	metrics.IncTransition(body.Action)
	writeJSON(w, http.StatusOK, requestResponse(req))
}

func (s *HTTPServer) handleDiscount(w http.ResponseWriter, r *http.Request, requestID int64) {
	metrics.IncHTTP("request_discount")
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var body struct {
		Discount string `json:"discount"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	req, err := s.booking.SetDiscount(r.Context(), requestID, body.Discount)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, requestResponse(req))
}

func (s *HTTPServer) handleToggleService(w http.ResponseWriter, r *http.Request, requestID int64) {
	metrics.IncHTTP("request_toggle_service")
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var body struct {
		ServiceID int64 `json:"service_id"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	req, added, err := s.booking.ToggleService(r.Context(), requestID, body.ServiceID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	resp := requestResponse(req)
	resp["added"] = added
	writeJSON(w, http.StatusOK, resp)
}

func (s *HTTPServer) barberAndDate(w http.ResponseWriter, r *http.Request) (int64, time.Time, bool) {
	barberID, err := strconv.ParseInt(r.URL.Query().Get("barber_id"), 10, 64)
	if err != nil || barberID <= 0 {
		writeError(w, http.StatusBadRequest, "barber_id is required")
		return 0, time.Time{}, false
	}
	day, err := time.ParseInLocation("2006-01-02", r.URL.Query().Get("date"), time.Local)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date; expected YYYY-MM-DD")
		return 0, time.Time{}, false
	}
	return barberID, day, true
}

func (s *HTTPServer) barberAndRange(w http.ResponseWriter, r *http.Request) (int64, time.Time, time.Time, bool) {
	barberID, err := strconv.ParseInt(r.URL.Query().Get("barber_id"), 10, 64)
	if err != nil || barberID <= 0 {
		writeError(w, http.StatusBadRequest, "barber_id is required")
		return 0, time.Time{}, time.Time{}, false
	}
	from, err := time.ParseInLocation("2006-01-02", r.URL.Query().Get("from"), time.Local)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid from date; expected YYYY-MM-DD")
		return 0, time.Time{}, time.Time{}, false
	}
	to, err := time.ParseInLocation("2006-01-02", r.URL.Query().Get("to"), time.Local)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid to date; expected YYYY-MM-DD")
		return 0, time.Time{}, time.Time{}, false
	}
	return barberID, from, to, true
}

func (s *HTTPServer) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case database.IsValidation(err),
		errors.Is(err, pricing.ErrBadDiscountFormat),
		errors.Is(err, pricing.ErrNegativeDiscount),
		errors.Is(err, pricing.ErrDiscountExceedsSubtotal):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, database.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, database.ErrConflict),
		errors.Is(err, database.ErrConcurrentModification),
		errors.Is(err, database.ErrTrimmed):
		if errors.Is(err, database.ErrConflict) {
			metrics.IncConflict()
		}
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, err.Error())
	default:
		s.logger.Error().Err(err).Msg("internal api error")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func requestResponse(req *models.BookingRequest) map[string]any {
	services := make([]map[string]any, 0, len(req.Services))
	for _, li := range req.Services {
		services = append(services, map[string]any{
			"service_id": li.ServiceID,
			"name":       li.Name,
			"price":      li.Price,
			"duration":   li.Duration,
		})
	}

	resp := map[string]any{
		"id":          req.ID,
		"barber_id":   req.BarberID,
		"day":         req.StartTime.Format("2006-01-02"),
		"start":       req.StartTime.Format("15:04"),
		"end":         req.EndTime.Format("15:04"),
		"status":      req.Status,
		"subtotal":    pricing.Subtotal(req.Services),
		"discount":    req.Discount,
		"final_price": pricing.RequestTotal(req),
		"comment":     req.Comment,
		"version":     req.Version,
		"services":    services,
	}
	if req.ClientID != nil {
		resp["client_id"] = *req.ClientID
	}
	return resp
}

func decodeJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}
