package wire

import (
	"phone-auth/internal/adaptor"

	"github.com/go-chi/chi/v5"
)

func wireAuth(r chi.Router, authHandler *adaptor.AuthHandler) {
	// Public routes (tanpa auth middleware)
	r.Post("/api/request-otp", authHandler.RequestOTP)
	r.Post("/api/verify-otp", authHandler.VerifyOTP)
}
