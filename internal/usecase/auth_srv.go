package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"phone-auth/internal/data/entity"
	"phone-auth/internal/data/repository"
	"phone-auth/internal/dto/request"
	"phone-auth/internal/dto/response"
	"phone-auth/internal/rate"
	"phone-auth/internal/sms"
	"phone-auth/pkg/database"
	"phone-auth/pkg/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type AuthService interface {
	RequestOTP(ctx context.Context, req *request.RequestOTPRequest) error
	VerifyOTP(ctx context.Context, req *request.VerifyOTPRequest) (*response.VerifyOTPResponse, error)
}

// RateLimiter gates OTP issuance per phone. Nil means no throttling.
type RateLimiter interface {
	Allow(ctx context.Context, phone string) error
}

type authService struct {
	db      database.TxRunner
	repo    *repository.Repository
	gateway sms.Gateway
	limiter RateLimiter
	config  *utils.Config
	log     *zap.Logger
}

func NewAuthService(
	db database.TxRunner,
	repo *repository.Repository,
	gateway sms.Gateway,
	limiter RateLimiter,
	config *utils.Config,
	log *zap.Logger,
) AuthService {
	return &authService{
		db:      db,
		repo:    repo,
		gateway: gateway,
		limiter: limiter,
		config:  config,
		log:     log,
	}
}

// RequestOTP generates a signup code, persists it unbound, and dispatches
// it over SMS. The code only ever travels through the SMS channel.
func (s *authService) RequestOTP(ctx context.Context, req *request.RequestOTPRequest) error {
	// 1. Validasi input - sebelum menyentuh store sama sekali
	if errs := utils.ValidateStruct(req); len(errs) > 0 {
		s.log.Warn("Request OTP validation failed", zap.Any("errors", errs))
		return fmt.Errorf("%w: %s", ErrValidation, utils.FormatValidationErrors(errs))
	}

	// 2. Rate limit per nomor (optional)
	if s.limiter != nil {
		if err := s.limiter.Allow(ctx, req.PhoneNumber); err != nil {
			if errors.Is(err, rate.ErrLimited) {
				s.log.Warn("OTP request rate limited", zap.String("phone", req.PhoneNumber))
				return fmt.Errorf("%w: %v", ErrRateLimited, err)
			}
			return fmt.Errorf("rate limiter: %w", err)
		}
	}

	// 3. Generate code
	code, err := utils.GenerateOTP(s.config.OTP.Length)
	if err != nil {
		s.log.Error("Failed to generate OTP code", zap.Error(err))
		return fmt.Errorf("failed to generate OTP")
	}

	now := time.Now()
	otp := &entity.OTPCode{
		BaseSimple: entity.BaseSimple{
			ID:        uuid.New(),
			CreatedAt: now,
		},
		UserID:    nil, // user dibuat nanti setelah verifikasi
		Phone:     req.PhoneNumber,
		Code:      code,
		Purpose:   entity.PurposeSignup,
		Consumed:  false,
		ExpiresAt: now.Add(time.Duration(s.config.OTP.ExpiryMinutes) * time.Minute),
	}

	// 4. Save OTP
	if err := s.repo.OTP.Create(ctx, otp); err != nil {
		s.log.Error("Failed to save OTP", zap.Error(err), zap.String("phone", req.PhoneNumber))
		return fmt.Errorf("failed to issue OTP")
	}

	// 5. Dispatch via SMS gateway. Kalau gagal, row OTP tetap ada (tidak
	// di-rollback) dan caller dikasih tahu delivery gagal.
	sid, err := s.gateway.Send(ctx, req.PhoneNumber, fmt.Sprintf("Your OTP is: %s", code))
	if err != nil {
		s.log.Error("Failed to send OTP SMS",
			zap.Error(err),
			zap.String("phone", req.PhoneNumber),
			zap.String("otp_id", otp.ID.String()),
		)
		return fmt.Errorf("%w: %v", ErrSMSDelivery, err)
	}

	s.log.Info("OTP issued",
		zap.String("phone", req.PhoneNumber),
		zap.String("otp_id", otp.ID.String()),
		zap.String("delivery_id", sid),
		zap.Time("expires_at", otp.ExpiresAt),
	)

	return nil
}

// VerifyOTP consumes the most recent matching code and resolves the caller
// to a user: created on first verification, loaded afterwards. Consume,
// user creation and token issuance run in one transaction.
func (s *authService) VerifyOTP(ctx context.Context, req *request.VerifyOTPRequest) (*response.VerifyOTPResponse, error) {
	// 1. Validasi input
	if errs := utils.ValidateStruct(req); len(errs) > 0 {
		s.log.Warn("Verify OTP validation failed", zap.Any("errors", errs))
		return nil, fmt.Errorf("%w: %s", ErrValidation, utils.FormatValidationErrors(errs))
	}

	// 2. Ambil kode unbound terbaru untuk phone+code ini
	otp, err := s.repo.OTP.FindLatestUnbound(ctx, req.PhoneNumber, req.OTP, entity.PurposeSignup)
	if err != nil {
		s.log.Error("Failed to look up OTP", zap.Error(err), zap.String("phone", req.PhoneNumber))
		return nil, fmt.Errorf("failed to verify OTP")
	}
	if otp == nil {
		return nil, ErrInvalidOTP
	}
	if otp.Expired(time.Now()) {
		return nil, ErrOTPExpired
	}

	// 3. Consume + resolve user + issue token, atomik. Sekali retry untuk
	// race antar verifier (unique violation / serialization failure).
	token, err := s.resolveIdentity(ctx, req.PhoneNumber, otp.ID)
	if err != nil && isRetryableConflict(err) {
		s.log.Warn("Verification raced, retrying once",
			zap.Error(err), zap.String("phone", req.PhoneNumber))
		token, err = s.resolveIdentity(ctx, req.PhoneNumber, otp.ID)
	}
	if err != nil {
		if errors.Is(err, ErrInvalidOTP) {
			return nil, ErrInvalidOTP
		}
		s.log.Error("Failed to resolve identity",
			zap.Error(err), zap.String("phone", req.PhoneNumber))
		return nil, fmt.Errorf("failed to verify OTP")
	}

	s.log.Info("OTP verified",
		zap.String("phone", req.PhoneNumber),
		zap.String("user_id", token.UserID.String()),
	)

	return &response.VerifyOTPResponse{Token: token.Token.String()}, nil
}

// resolveIdentity runs the consume -> get-or-create user -> get-or-create
// token sequence inside one transaction.
func (s *authService) resolveIdentity(ctx context.Context, phone string, otpID uuid.UUID) (*entity.AuthToken, error) {
	var token *entity.AuthToken

	err := s.db.WithinTx(ctx, func(q database.Querier) error {
		users := s.repo.User.WithTx(q)
		otps := s.repo.OTP.WithTx(q)
		tokens := s.repo.Token.WithTx(q)

		user, err := users.FindByPhone(ctx, phone)
		if err != nil {
			return err
		}
		if user == nil {
			user, err = s.createUser(ctx, users, phone)
			if err != nil {
				return err
			}
		}

		consumed, err := otps.Consume(ctx, otpID, user.ID)
		if err != nil {
			return err
		}
		if !consumed {
			// Verifier lain sudah menang
			return ErrInvalidOTP
		}

		token, err = tokens.GetOrCreate(ctx, user.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	return token, nil
}

// createUser inserts a fresh OTP-only account. Username defaults to the
// phone number; when that name is already taken it falls back to
// user_<hex>. Ketersediaan username dicek SEBELUM insert: statement kedua
// setelah unique violation akan jalan di transaksi yang sudah abort (25P02),
// jadi satu transaksi hanya boleh melakukan satu percobaan insert.
func (s *authService) createUser(ctx context.Context, users repository.UserRepository, phone string) (*entity.User, error) {
	username := phone
	taken, err := users.FindByUsername(ctx, phone)
	if err != nil {
		return nil, err
	}
	if taken != nil {
		suffix, err := utils.GenerateHex(4)
		if err != nil {
			return nil, err
		}
		username = fmt.Sprintf("user_%s", suffix)
	}

	now := time.Now()
	user := &entity.User{
		Base: entity.Base{
			ID:        uuid.New(),
			CreatedAt: now,
			UpdatedAt: now,
		},
		Username:      username,
		Phone:         phone,
		Role:          entity.RoleCustomer,
		LoyaltyPoints: 0,
		IsActive:      true,
		PasswordHash:  nil, // akun OTP-only, tanpa password
	}

	if err := users.Create(ctx, user); err != nil {
		return nil, err
	}

	return user, nil
}

// isRetryableConflict: dua verify bersamaan bisa bentrok di unique index
// phone, kalah race username antara cek dan insert, atau kena serialization
// failure. Semuanya aman di-retry sekali dengan transaksi baru.
func isRetryableConflict(err error) bool {
	return database.IsUniqueViolation(err, "users_phone_key") ||
		database.IsUniqueViolation(err, "users_username_key") ||
		database.IsSerializationFailure(err)
}
