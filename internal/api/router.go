/**
 * @description
 * This file sets up the HTTP router for the agent portal service. It defines the
 * API endpoints, associates them with their handlers, and applies middleware for
 * logging, CORS, and session authentication.
 *
 * @dependencies
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 * - github.com/go-chi/cors: CORS for the portal front end.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new Chi router and registers the portal routes.
func NewRouter(h *Handler, sessions *SessionManager, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Content-Disposition", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	r.Post("/auth/login", h.handleLogin)

	r.Group(func(r chi.Router) {
		r.Use(SessionMiddleware(sessions))

		r.Post("/auth/logout", h.handleLogout)
		r.Get("/auth/me", h.handleMe)

		r.Get("/financing/processing-fees", h.handleProcessingFees)
		r.Post("/financing/processing-fee", h.handleProcessingFee)
		r.Post("/financing/estimate", h.handleEstimate)

		r.Route("/flows/{variant}", func(r chi.Router) {
			r.Get("/", h.handleGetFlow)
			r.Delete("/", h.handleClearFlow)
			r.Post("/start", h.handleStartFlow)
			r.Put("/payment", h.handleSavePayment)
			r.Get("/loan", h.handleGetLoan)
			r.Put("/loan", h.handleUpdateLoan)
			r.Post("/loan/retry", h.handleRetryLoan)
			r.Post("/loan/confirm", h.handleConfirmLoan)
			r.Get("/schedule", h.handleSchedule)
			r.Get("/schedule/pdf", h.handleSchedulePDF)
			r.Post("/remote-setup", h.handleRemoteSetup)
		})

		r.Post("/verifications", h.handleStartVerification)
		r.Get("/verifications/{id}", h.handleGetVerification)
		r.Delete("/verifications/{id}", h.handleCloseVerification)
		r.Post("/verifications/{id}/{action}", h.handleVerificationAction)

		r.Get("/payments/instructions", h.handlePaymentInstructions)
		r.Post("/payments/verify", h.handleVerifyPayment)

		r.Post("/otp", h.handleOpenOTP)
		r.Get("/otp/{id}", h.handleGetOTP)
		r.Put("/otp/{id}/code", h.handleSetOTPCode)
		r.Post("/otp/{id}/confirm", h.handleConfirmOTP)
		r.Post("/otp/{id}/resend", h.handleResendOTP)
		r.Delete("/otp/{id}", h.handleCloseOTP)

		r.Get("/customers", h.handleListCustomers)
		r.Get("/customers/{id}", h.handleGetCustomer)
		r.Post("/customers", h.handleCreateCustomer)
	})

	return r
}
