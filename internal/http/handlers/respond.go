package handlers

import (
	"encoding/json"
	"net/http"
	"time"
)

// errorResponse is the JSON body for all failure responses
type errorResponse struct {
	Kind              string     `json:"kind"`
	Message           string     `json:"message"`
	AttemptsRemaining *int       `json:"attempts_remaining,omitempty"`
	ClaimedBy         string     `json:"claimed_by,omitempty"`
	ClaimedAt         *time.Time `json:"claimed_at,omitempty"`
}

// respondJSON writes v as a JSON response with the given status code
func respondJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(v)
}

// respondWithError sends a JSON error response
func respondWithError(w http.ResponseWriter, statusCode int, kind, message string) {
	respondJSON(w, statusCode, errorResponse{Kind: kind, Message: message})
}
