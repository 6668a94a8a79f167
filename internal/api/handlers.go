package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/vaidashi/service-desk-api/internal/models"
	"github.com/vaidashi/service-desk-api/internal/service"
	apperrors "github.com/vaidashi/service-desk-api/pkg/errors"
)

// ApiResponse is the envelope of every response
type ApiResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// Health represents the health check response
type Health struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	Timestamp string `json:"timestamp"`
}

type createOrderRequest struct {
	ClientID         string   `json:"client_id"`
	EntryDate        string   `json:"entry_date"`
	DiagnosisInitial string   `json:"diagnosis_initial"`
	InitialPhotos    []string `json:"initial_photos"`
	WarrantyDays     int      `json:"warranty_days"`
}

type assignOrderRequest struct {
	TechnicianID string `json:"technician_id"`
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

type attachProductRequest struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
}

type attachServiceRequest struct {
	ServiceID string `json:"service_id"`
}

func (s *Server) healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	health := Health{
		Status:    "ok",
		Version:   "1.0.0",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	if s.store != nil {
		if err := s.store.Ping(r.Context()); err != nil {
			s.logger.Error("Health check failed", "error", err)
			health.Status = "degraded"
			s.respondWithJSON(w, http.StatusServiceUnavailable, ApiResponse{Success: false, Data: health, Error: "store unreachable"})
			return
		}
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{Success: true, Data: health})
}

func (s *Server) createOrderHandler(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if !s.decode(w, r, &req) {
		return
	}

	entryDate, err := parseEntryDate(req.EntryDate)
	if err != nil {
		s.respondWithError(w, http.StatusBadRequest, "entry_date must be YYYY-MM-DD or RFC 3339")
		return
	}

	order, err := s.orderService.CreateOrder(r.Context(), service.CreateOrderInput{
		ClientID:         req.ClientID,
		EntryDate:        entryDate,
		DiagnosisInitial: req.DiagnosisInitial,
		InitialPhotos:    req.InitialPhotos,
		WarrantyDays:     req.WarrantyDays,
	})
	if err != nil {
		s.respondWithAppError(w, err)
		return
	}

	s.respondWithJSON(w, http.StatusCreated, ApiResponse{Success: true, Data: order})
}

func (s *Server) getOrderByIDHandler(w http.ResponseWriter, r *http.Request) {
	order, err := s.orderService.GetOrder(r.Context(), mux.Vars(r)["id"])
	s.respondWithResult(w, order, err)
}

func (s *Server) getQueueHandler(w http.ResponseWriter, r *http.Request) {
	orders, err := s.orderService.ListOpenOrdersOrdered(r.Context())
	s.respondWithResult(w, orders, err)
}

func (s *Server) getNextOrderHandler(w http.ResponseWriter, r *http.Request) {
	order, err := s.orderService.NextOpenOrder(r.Context())
	s.respondWithResult(w, order, err)
}

func (s *Server) assignOrderHandler(w http.ResponseWriter, r *http.Request) {
	var req assignOrderRequest
	if !s.decode(w, r, &req) {
		return
	}

	order, err := s.orderService.AssignOrder(r.Context(), mux.Vars(r)["id"], req.TechnicianID)
	s.respondWithResult(w, order, err)
}

func (s *Server) updateOrderStatusHandler(w http.ResponseWriter, r *http.Request) {
	var req updateStatusRequest
	if !s.decode(w, r, &req) {
		return
	}

	status, err := models.ParseOrderStatus(req.Status)
	if err != nil {
		s.respondWithAppError(w, err)
		return
	}

	order, err := s.orderService.SetOrderStatus(r.Context(), mux.Vars(r)["id"], status)
	s.respondWithResult(w, order, err)
}

func (s *Server) attachProductHandler(w http.ResponseWriter, r *http.Request) {
	var req attachProductRequest
	if !s.decode(w, r, &req) {
		return
	}

	order, err := s.orderService.AttachProduct(r.Context(), mux.Vars(r)["id"], req.ProductID, req.Qty)
	s.respondWithResult(w, order, err)
}

func (s *Server) attachServiceHandler(w http.ResponseWriter, r *http.Request) {
	var req attachServiceRequest
	if !s.decode(w, r, &req) {
		return
	}

	order, err := s.orderService.AttachService(r.Context(), mux.Vars(r)["id"], req.ServiceID)
	s.respondWithResult(w, order, err)
}

func (s *Server) getTechnicianOrdersHandler(w http.ResponseWriter, r *http.Request) {
	orders, err := s.orderService.ListOrdersForTechnician(r.Context(), mux.Vars(r)["id"])
	s.respondWithResult(w, orders, err)
}

func (s *Server) getDashboardHandler(w http.ResponseWriter, r *http.Request) {
	dashboard, err := s.orderService.Dashboard(r.Context())
	s.respondWithResult(w, dashboard, err)
}

func parseEntryDate(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.DateOnly, v); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, v)
}

// decode reads a JSON body into dst and answers 400 when it cannot
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	defer r.Body.Close()

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		s.respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return false
	}
	return true
}

func (s *Server) respondWithResult(w http.ResponseWriter, data interface{}, err error) {
	if err != nil {
		s.respondWithAppError(w, err)
		return
	}
	s.respondWithJSON(w, http.StatusOK, ApiResponse{Success: true, Data: data})
}

// respondWithAppError maps err onto its HTTP status. Server errors are
// logged and answered with a generic message.
func (s *Server) respondWithAppError(w http.ResponseWriter, err error) {
	code := apperrors.StatusCode(err)

	if code >= http.StatusInternalServerError {
		s.logger.Error("Request failed", "error", err, "status", code)
		s.respondWithError(w, code, http.StatusText(code))
		return
	}

	s.respondWithError(w, code, err.Error())
}

func (s *Server) respondWithError(w http.ResponseWriter, code int, message string) {
	s.respondWithJSON(w, code, ApiResponse{
		Success: false,
		Error:   message,
	})
}

func (s *Server) respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)

	if err != nil {
		s.logger.Error("Failed to marshal response", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(response)
}
