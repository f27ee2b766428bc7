package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/qrclaim/server/internal/middleware"
	"github.com/qrclaim/server/internal/redeem"
	"github.com/qrclaim/server/internal/repo"
	"github.com/qrclaim/server/internal/sms"
)

// ClaimHandler handles token redemption endpoints
type ClaimHandler struct {
	ledger *redeem.Service
}

// NewClaimHandler creates a new claim handler
func NewClaimHandler(ledger *redeem.Service) *ClaimHandler {
	return &ClaimHandler{ledger: ledger}
}

// claimRequest is the request body for POST /tokens/claim
type claimRequest struct {
	SerialNumber string `json:"serial_number"`
	Phone        string `json:"phone"`
}

// claimResponse is the JSON response for a successful claim
type claimResponse struct {
	Status       string    `json:"status"`
	SerialNumber string    `json:"serial_number"`
	Phone        string    `json:"phone"`
	ScannedAt    time.Time `json:"scanned_at"`
}

// claimRecord is one entry in the list response
type claimRecord struct {
	SerialNumber string    `json:"serial_number"`
	ScannedAt    time.Time `json:"scanned_at"`
}

// listClaimsResponse is the JSON response for GET /claims
type listClaimsResponse struct {
	Records  []claimRecord `json:"records"`
	Total    int           `json:"total"`
	Page     int           `json:"page"`
	PageSize int           `json:"page_size"`
}

// HandleClaim handles POST /tokens/claim. The route is wrapped by
// RequireVerifiedPhone; the claimed-for phone must match the verified one.
func (h *ClaimHandler) HandleClaim(w http.ResponseWriter, r *http.Request) {
	var req claimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid_input", "invalid request body")
		return
	}

	req.SerialNumber = strings.TrimSpace(req.SerialNumber)
	req.Phone = strings.TrimSpace(req.Phone)
	if req.SerialNumber == "" || req.Phone == "" {
		respondWithError(w, http.StatusBadRequest, "invalid_input", "serial_number and phone are required")
		return
	}

	verifiedPhone, ok := middleware.GetVerifiedPhone(r.Context())
	if !ok || verifiedPhone != req.Phone {
		respondWithError(w, http.StatusForbidden, "forbidden", "phone does not match verified session")
		return
	}

	claim, err := h.ledger.Claim(r.Context(), req.SerialNumber, req.Phone)
	if err != nil {
		var conflict *repo.AlreadyClaimedError
		switch {
		case errors.Is(err, redeem.ErrInvalidInput):
			respondWithError(w, http.StatusBadRequest, "invalid_input", err.Error())
		case errors.Is(err, repo.ErrTokenNotFound):
			respondWithError(w, http.StatusNotFound, "token_not_found", "no token with this serial number")
		case errors.As(err, &conflict):
			body := errorResponse{
				Kind:      "already_claimed",
				Message:   "token has already been claimed",
				ClaimedBy: conflict.ClaimedBy,
			}
			if !conflict.ClaimedAt.IsZero() {
				claimedAt := conflict.ClaimedAt
				body.ClaimedAt = &claimedAt
			}
			respondJSON(w, http.StatusConflict, body)
		default:
			log.Printf("Phone %s: claim of %s failed: %v", sms.MaskPhone(req.Phone), req.SerialNumber, err)
			respondWithError(w, http.StatusInternalServerError, "storage_error", "claim failed")
		}
		return
	}

	respondJSON(w, http.StatusOK, claimResponse{
		Status:       "claimed",
		SerialNumber: claim.SerialNumber,
		Phone:        claim.Phone,
		ScannedAt:    claim.ScannedAt,
	})
}

// HandleListClaims handles GET /claims?phone=&page=&page_size=
func (h *ClaimHandler) HandleListClaims(w http.ResponseWriter, r *http.Request) {
	phone := strings.TrimSpace(r.URL.Query().Get("phone"))
	if phone == "" {
		respondWithError(w, http.StatusBadRequest, "invalid_input", "phone is required")
		return
	}

	page := parseIntParam(r, "page", 1)
	pageSize := parseIntParam(r, "page_size", 0)

	result, err := h.ledger.ListClaims(r.Context(), phone, page, pageSize)
	if err != nil {
		if errors.Is(err, redeem.ErrInvalidInput) {
			respondWithError(w, http.StatusBadRequest, "invalid_input", err.Error())
			return
		}
		log.Printf("Phone %s: list claims failed: %v", sms.MaskPhone(phone), err)
		respondWithError(w, http.StatusInternalServerError, "storage_error", "failed to list claims")
		return
	}

	records := make([]claimRecord, 0, len(result.Records))
	for _, c := range result.Records {
		records = append(records, claimRecord{
			SerialNumber: c.SerialNumber,
			ScannedAt:    c.ScannedAt,
		})
	}

	respondJSON(w, http.StatusOK, listClaimsResponse{
		Records:  records,
		Total:    result.Total,
		Page:     result.Page,
		PageSize: result.PageSize,
	})
}

// parseIntParam reads a positive integer query parameter, falling back to def.
func parseIntParam(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return def
	}
	return n
}
