package usecase

import (
	"context"
	"fmt"
	"time"

	"phone-auth/internal/data/entity"
	"phone-auth/internal/data/repository"
	"phone-auth/internal/dto/request"
	"phone-auth/internal/dto/response"
	"phone-auth/pkg/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type UserService interface {
	GetUser(ctx context.Context, id uuid.UUID) (*response.UserResponse, error)
	ListUsers(ctx context.Context, page, perPage int) (*response.PaginatedResponse[response.UserResponse], error)
	ListOTPCodes(ctx context.Context, page, perPage int) (*response.PaginatedResponse[response.OTPCodeResponse], error)
	CreateAdmin(ctx context.Context, req *request.CreateAdminRequest) (*response.UserResponse, error)
}

type userService struct {
	repo *repository.Repository
	log  *zap.Logger
}

func NewUserService(repo *repository.Repository, log *zap.Logger) UserService {
	return &userService{
		repo: repo,
		log:  log,
	}
}

func (s *userService) GetUser(ctx context.Context, id uuid.UUID) (*response.UserResponse, error) {
	user, err := s.repo.User.FindByID(ctx, id)
	if err != nil {
		s.log.Error("Failed to get user", zap.Error(err), zap.String("user_id", id.String()))
		return nil, fmt.Errorf("failed to get user")
	}
	if user == nil {
		return nil, fmt.Errorf("user %w", ErrNotFound)
	}

	resp := response.UserToResponse(user)
	return &resp, nil
}

func (s *userService) ListUsers(ctx context.Context, page, perPage int) (*response.PaginatedResponse[response.UserResponse], error) {
	offset := utils.CalculateOffset(page, perPage)

	users, err := s.repo.User.FindAll(ctx, perPage, offset)
	if err != nil {
		s.log.Error("Failed to list users", zap.Error(err))
		return nil, fmt.Errorf("failed to list users")
	}

	total, err := s.repo.User.CountAll(ctx)
	if err != nil {
		s.log.Error("Failed to count users", zap.Error(err))
		return nil, fmt.Errorf("failed to list users")
	}

	items := make([]response.UserResponse, 0, len(users))
	for _, u := range users {
		items = append(items, response.UserToResponse(u))
	}

	return response.NewPaginatedResponse(items, page, perPage, total), nil
}

func (s *userService) ListOTPCodes(ctx context.Context, page, perPage int) (*response.PaginatedResponse[response.OTPCodeResponse], error) {
	offset := utils.CalculateOffset(page, perPage)

	otps, err := s.repo.OTP.FindAll(ctx, perPage, offset)
	if err != nil {
		s.log.Error("Failed to list OTP codes", zap.Error(err))
		return nil, fmt.Errorf("failed to list OTP codes")
	}

	total, err := s.repo.OTP.CountAll(ctx)
	if err != nil {
		s.log.Error("Failed to count OTP codes", zap.Error(err))
		return nil, fmt.Errorf("failed to list OTP codes")
	}

	items := make([]response.OTPCodeResponse, 0, len(otps))
	for _, o := range otps {
		items = append(items, response.OTPToResponse(o))
	}

	return response.NewPaginatedResponse(items, page, perPage, total), nil
}

// CreateAdmin seeds a staff account with a usable password credential.
// Dipanggil dari subcommand create-admin, bukan dari HTTP.
func (s *userService) CreateAdmin(ctx context.Context, req *request.CreateAdminRequest) (*response.UserResponse, error) {
	if errs := utils.ValidateStruct(req); len(errs) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrValidation, utils.FormatValidationErrors(errs))
	}

	existing, err := s.repo.User.FindByPhone(ctx, req.Phone)
	if err != nil {
		s.log.Error("Failed to check phone", zap.Error(err), zap.String("phone", req.Phone))
		return nil, fmt.Errorf("failed to check phone")
	}
	if existing != nil {
		return nil, fmt.Errorf("phone already registered")
	}

	hash, err := utils.HashPassword(req.Password)
	if err != nil {
		s.log.Error("Failed to hash password", zap.Error(err))
		return nil, fmt.Errorf("failed to process password")
	}

	now := time.Now()
	user := &entity.User{
		Base: entity.Base{
			ID:        uuid.New(),
			CreatedAt: now,
			UpdatedAt: now,
		},
		Username:     req.Username,
		Phone:        req.Phone,
		Role:         entity.RoleAdmin,
		IsActive:     true,
		PasswordHash: &hash,
	}
	if req.FullName != "" {
		user.FullName = &req.FullName
	}

	if err := s.repo.User.Create(ctx, user); err != nil {
		s.log.Error("Failed to create admin", zap.Error(err), zap.String("phone", req.Phone))
		return nil, fmt.Errorf("failed to create admin account")
	}

	s.log.Info("Admin account created",
		zap.String("user_id", user.ID.String()),
		zap.String("username", user.Username),
	)

	resp := response.UserToResponse(user)
	return &resp, nil
}
