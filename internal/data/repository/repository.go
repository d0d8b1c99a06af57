package repository

import (
	"phone-auth/pkg/database"

	"go.uber.org/zap"
)

type Repository struct {
	User  UserRepository
	OTP   OTPRepository
	Token AuthTokenRepository
}

func NewRepository(db database.PgxIface, log *zap.Logger) *Repository {
	return &Repository{
		User:  NewUserRepository(db, log),
		OTP:   NewOTPRepository(db, log),
		Token: NewAuthTokenRepository(db, log),
	}
}
