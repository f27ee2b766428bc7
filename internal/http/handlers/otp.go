package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/qrclaim/server/internal/auth"
	"github.com/qrclaim/server/internal/middleware"
	"github.com/qrclaim/server/internal/sms"
	"github.com/qrclaim/server/internal/verify"
)

// OTPHandler handles one-time-code endpoints
type OTPHandler struct {
	verifier      *verify.Engine
	sessions      *auth.SessionService
	devMode       bool
	sendLimiter   *middleware.RateLimiter
	verifyLimiter *middleware.RateLimiter
}

// NewOTPHandler creates a new OTP handler
func NewOTPHandler(verifier *verify.Engine, sessions *auth.SessionService, devMode bool) *OTPHandler {
	// IP rate limiters: 10 per 10min for send, 20 per 10min for verify
	// (the per-phone cooldown and attempt ceiling live in the engine).
	return &OTPHandler{
		verifier:      verifier,
		sessions:      sessions,
		devMode:       devMode,
		sendLimiter:   middleware.NewRateLimiter(10*time.Minute, 10),
		verifyLimiter: middleware.NewRateLimiter(10*time.Minute, 20),
	}
}

// sendOTPRequest is the request body for POST /otp/send
type sendOTPRequest struct {
	Phone string `json:"phone"`
}

// sendOTPResponse is the JSON response for send
type sendOTPResponse struct {
	Status  string `json:"status"`
	DevCode string `json:"dev_code,omitempty"`
}

// verifyOTPRequest is the request body for POST /otp/verify
type verifyOTPRequest struct {
	Phone string `json:"phone"`
	Code  string `json:"code"`
}

// verifyOTPResponse is the JSON response for verify
type verifyOTPResponse struct {
	Status            string `json:"status"`
	VerificationToken string `json:"verification_token"`
}

// HandleSendOTP handles POST /otp/send
func (h *OTPHandler) HandleSendOTP(w http.ResponseWriter, r *http.Request) {
	var req sendOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid_input", "invalid request body")
		return
	}

	req.Phone = strings.TrimSpace(req.Phone)
	if req.Phone == "" {
		respondWithError(w, http.StatusBadRequest, "invalid_input", "phone is required")
		return
	}

	if !h.sendLimiter.Allow(middleware.GetIPKey(r)) {
		respondWithError(w, http.StatusTooManyRequests, "too_many_requests", "rate limit exceeded")
		return
	}

	code, err := h.verifier.IssueCode(r.Context(), req.Phone)
	if err != nil {
		switch {
		case errors.Is(err, verify.ErrInvalidPhone):
			respondWithError(w, http.StatusBadRequest, "invalid_input", "phone must be 10 digits")
		case errors.Is(err, verify.ErrCooldown):
			respondWithError(w, http.StatusTooManyRequests, "too_many_requests", "code requested too recently, try again later")
		default:
			log.Printf("Phone %s: failed to issue code: %v", sms.MaskPhone(req.Phone), err)
			respondWithError(w, http.StatusInternalServerError, "storage_error", "failed to send code")
		}
		return
	}

	response := sendOTPResponse{Status: "code_sent"}
	if h.devMode {
		response.DevCode = code
	}
	respondJSON(w, http.StatusOK, response)
}

// HandleVerifyOTP handles POST /otp/verify
func (h *OTPHandler) HandleVerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req verifyOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid_input", "invalid request body")
		return
	}

	req.Phone = strings.TrimSpace(req.Phone)
	req.Code = strings.TrimSpace(req.Code)
	if req.Phone == "" || req.Code == "" {
		respondWithError(w, http.StatusBadRequest, "invalid_input", "phone and code are required")
		return
	}

	if !h.verifyLimiter.Allow(middleware.GetIPKey(r)) {
		respondWithError(w, http.StatusTooManyRequests, "too_many_requests", "rate limit exceeded")
		return
	}

	if err := h.verifier.VerifyCode(r.Context(), req.Phone, req.Code); err != nil {
		var invalidCode *verify.InvalidCodeError
		switch {
		case errors.Is(err, verify.ErrInvalidPhone):
			respondWithError(w, http.StatusBadRequest, "invalid_input", "phone must be 10 digits")
		case errors.Is(err, verify.ErrNoCode):
			respondWithError(w, http.StatusNotFound, "not_found", "no code issued for this phone")
		case errors.Is(err, verify.ErrExpired):
			respondWithError(w, http.StatusGone, "expired", "code expired, request a new one")
		case errors.Is(err, verify.ErrTooManyAttempts):
			respondWithError(w, http.StatusTooManyRequests, "too_many_attempts", "too many attempts, request a new code")
		case errors.As(err, &invalidCode):
			remaining := invalidCode.AttemptsRemaining
			respondJSON(w, http.StatusUnauthorized, errorResponse{
				Kind:              "invalid_code",
				Message:           "incorrect code",
				AttemptsRemaining: &remaining,
			})
		default:
			log.Printf("Phone %s: verification failed: %v", sms.MaskPhone(req.Phone), err)
			respondWithError(w, http.StatusInternalServerError, "storage_error", "verification failed")
		}
		return
	}

	token, err := h.sessions.IssueVerificationToken(req.Phone)
	if err != nil {
		log.Printf("Phone %s: failed to issue verification token: %v", sms.MaskPhone(req.Phone), err)
		respondWithError(w, http.StatusInternalServerError, "storage_error", "verification failed")
		return
	}

	respondJSON(w, http.StatusOK, verifyOTPResponse{
		Status:            "verified",
		VerificationToken: token,
	})
}
