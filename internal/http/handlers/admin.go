package handlers

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/qrclaim/server/internal/redeem"
	"github.com/qrclaim/server/internal/repo"
)

// AdminHandler handles token provisioning
type AdminHandler struct {
	ledger     *redeem.Service
	adminToken string
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(ledger *redeem.Service, adminToken string) *AdminHandler {
	return &AdminHandler{ledger: ledger, adminToken: adminToken}
}

// provisionRequest is the request body for POST /admin/tokens
type provisionRequest struct {
	SerialNumber string `json:"serial_number"`
}

// HandleProvision handles POST /admin/tokens
func (h *AdminHandler) HandleProvision(w http.ResponseWriter, r *http.Request) {
	supplied := r.Header.Get("X-Admin-Token")
	if subtle.ConstantTimeCompare([]byte(supplied), []byte(h.adminToken)) != 1 {
		respondWithError(w, http.StatusUnauthorized, "unauthorized", "invalid admin token")
		return
	}

	var req provisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid_input", "invalid request body")
		return
	}

	req.SerialNumber = strings.TrimSpace(req.SerialNumber)
	if err := h.ledger.Provision(r.Context(), req.SerialNumber); err != nil {
		switch {
		case errors.Is(err, redeem.ErrInvalidInput):
			respondWithError(w, http.StatusBadRequest, "invalid_input", err.Error())
		case errors.Is(err, repo.ErrTokenExists):
			respondWithError(w, http.StatusConflict, "already_exists", "serial number already provisioned")
		default:
			log.Printf("Provision of %s failed: %v", req.SerialNumber, err)
			respondWithError(w, http.StatusInternalServerError, "storage_error", "provisioning failed")
		}
		return
	}

	respondJSON(w, http.StatusCreated, map[string]string{"status": "provisioned"})
}
