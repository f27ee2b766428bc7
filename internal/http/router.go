package http

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/qrclaim/server/internal/auth"
	"github.com/qrclaim/server/internal/http/handlers"
	"github.com/qrclaim/server/internal/middleware"
)

// NewRouter creates a new HTTP router with all routes configured
func NewRouter(
	otpHandler *handlers.OTPHandler,
	claimHandler *handlers.ClaimHandler,
	adminHandler *handlers.AdminHandler,
	sessions *auth.SessionService,
) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)

	healthHandler := handlers.NewHealthHandler()
	r.Get("/health", healthHandler.ServeHTTP)

	r.Route("/otp", func(r chi.Router) {
		r.Post("/send", otpHandler.HandleSendOTP)
		r.Post("/verify", otpHandler.HandleVerifyOTP)
	})

	// Claiming requires a verified-session token from /otp/verify
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireVerifiedPhone(sessions))
		r.Post("/tokens/claim", claimHandler.HandleClaim)
	})

	r.Get("/claims", claimHandler.HandleListClaims)

	r.Post("/admin/tokens", adminHandler.HandleProvision)

	return r
}
