package api

import (
	"net/http"
)

func (s *Server) getCircuitBreakerStatusHandler(w http.ResponseWriter, r *http.Request) {
	metrics := map[string]interface{}{
		"http": s.gracefulDegradation.GetMetrics(),
	}
	for _, b := range s.breakers {
		metrics[b.Name()] = b.GetMetrics()
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{Success: true, Data: metrics})
}

// resetCircuitBreakerHandler closes every breaker
func (s *Server) resetCircuitBreakerHandler(w http.ResponseWriter, r *http.Request) {
	s.gracefulDegradation.Reset()
	for _, b := range s.breakers {
		b.Reset()
	}

	s.logger.Warn("Circuit breakers reset by operator")
	s.respondWithJSON(w, http.StatusOK, ApiResponse{
		Success: true,
		Data: map[string]string{
			"message": "Circuit breakers reset successfully",
		},
	})
}
