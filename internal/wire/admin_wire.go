package wire

import (
	"phone-auth/internal/adaptor"
	"phone-auth/internal/data/repository"
	"phone-auth/pkg/middleware"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

func wireAdmin(
	r chi.Router,
	adminHandler *adaptor.AdminHandler,
	repo *repository.Repository,
	log *zap.Logger,
) {
	// Read-only browsing, butuh token valid + role admin
	r.Route("/api/admin", func(r chi.Router) {
		r.Use(middleware.AuthToken(repo.Token, repo.User, log))
		r.Use(middleware.Admin(log))

		r.Get("/users", adminHandler.ListUsers)
		r.Get("/users/{id}", adminHandler.GetUser)
		r.Get("/otp-codes", adminHandler.ListOTPCodes)
	})
}
