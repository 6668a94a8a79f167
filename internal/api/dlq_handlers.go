package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/vaidashi/service-desk-api/internal/models"
)

// PaginationResponse is one page of dead letters
type PaginationResponse struct {
	Items    []*models.DeadLetterMessage `json:"items"`
	Count    int                         `json:"count"`
	Page     int                         `json:"page"`
	PageSize int                         `json:"page_size"`
	Status   string                      `json:"status,omitempty"`
}

func (s *Server) getDeadLettersHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	page, err := strconv.Atoi(q.Get("page"))
	if err != nil || page < 1 {
		page = 1
	}

	pageSize, err := strconv.Atoi(q.Get("pageSize"))
	if err != nil || pageSize < 1 || pageSize > 100 {
		pageSize = 10
	}

	status := models.DeadLetterStatus(q.Get("status"))
	switch status {
	case "", models.DeadLetterStatusPending, models.DeadLetterStatusRetrying,
		models.DeadLetterStatusResolved, models.DeadLetterStatusDiscarded:
	default:
		s.respondWithError(w, http.StatusBadRequest, "Unknown dead letter status")
		return
	}

	messages, err := s.dlqRepo.List(r.Context(), status, pageSize, (page-1)*pageSize)
	if err != nil {
		s.respondWithAppError(w, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{Success: true, Data: PaginationResponse{
		Items:    messages,
		Count:    len(messages),
		Page:     page,
		PageSize: pageSize,
		Status:   string(status),
	}})
}

// retryDeadLetterHandler puts a message back in the pending queue for the
// dead letter processor to pick up
func (s *Server) retryDeadLetterHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := s.messageID(w, r)
	if !ok {
		return
	}

	if err := s.dlqRepo.Requeue(r.Context(), id); err != nil {
		s.respondWithAppError(w, err)
		return
	}

	s.logger.Info("Dead letter requeued", "messageID", id)
	s.respondWithJSON(w, http.StatusOK, ApiResponse{
		Success: true,
		Data: map[string]interface{}{
			"message": "Dead letter message queued for retry",
			"id":      id,
		},
	})
}

func (s *Server) discardDeadLetterHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := s.messageID(w, r)
	if !ok {
		return
	}

	var req struct {
		Reason string `json:"reason"`
	}

	// the body is optional
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.respondWithError(w, http.StatusBadRequest, "Invalid request payload")
			return
		}
	}

	if req.Reason == "" {
		req.Reason = "No reason provided"
	}

	if err := s.dlqRepo.MarkAsDiscarded(r.Context(), id, req.Reason); err != nil {
		s.respondWithAppError(w, err)
		return
	}

	s.logger.Info("Dead letter discarded", "messageID", id, "reason", req.Reason)
	s.respondWithJSON(w, http.StatusOK, ApiResponse{
		Success: true,
		Data: map[string]interface{}{
			"message": "Dead letter message discarded",
			"id":      id,
		},
	})
}

func (s *Server) messageID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)

	if err != nil {
		s.respondWithError(w, http.StatusBadRequest, "Invalid message ID")
		return 0, false
	}
	return id, true
}
