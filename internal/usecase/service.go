package usecase

import (
	"phone-auth/internal/data/repository"
	"phone-auth/internal/sms"
	"phone-auth/pkg/database"
	"phone-auth/pkg/utils"

	"go.uber.org/zap"
)

type Service struct {
	Auth AuthService
	User UserService
}

func NewService(
	db database.TxRunner,
	repo *repository.Repository,
	gateway sms.Gateway,
	limiter RateLimiter,
	config *utils.Config,
	log *zap.Logger,
) *Service {
	return &Service{
		Auth: NewAuthService(db, repo, gateway, limiter, config, log),
		User: NewUserService(repo, log),
	}
}
