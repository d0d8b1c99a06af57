package response

import (
	"time"

	"phone-auth/internal/data/entity"
)

type UserResponse struct {
	ID            string    `json:"id"`
	Username      string    `json:"username"`
	FullName      *string   `json:"full_name,omitempty"`
	Email         *string   `json:"email,omitempty"`
	Phone         string    `json:"phone"`
	Role          string    `json:"role"`
	LoyaltyPoints int       `json:"loyalty_points"`
	IsActive      bool      `json:"is_active"`
	CreatedAt     time.Time `json:"created_at"`
}

type OTPCodeResponse struct {
	ID        string    `json:"id"`
	UserID    *string   `json:"user_id,omitempty"`
	Phone     string    `json:"phone"`
	Purpose   string    `json:"purpose"`
	Consumed  bool      `json:"consumed"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// Helper converters
func UserToResponse(user *entity.User) UserResponse {
	return UserResponse{
		ID:            user.ID.String(),
		Username:      user.Username,
		FullName:      user.FullName,
		Email:         user.Email,
		Phone:         user.Phone,
		Role:          user.Role,
		LoyaltyPoints: user.LoyaltyPoints,
		IsActive:      user.IsActive,
		CreatedAt:     user.CreatedAt,
	}
}

// OTPToResponse intentionally drops the code value: admin browsing must not
// expose live codes.
func OTPToResponse(otp *entity.OTPCode) OTPCodeResponse {
	resp := OTPCodeResponse{
		ID:        otp.ID.String(),
		Phone:     otp.Phone,
		Purpose:   string(otp.Purpose),
		Consumed:  otp.Consumed,
		ExpiresAt: otp.ExpiresAt,
		CreatedAt: otp.CreatedAt,
	}
	if otp.UserID != nil {
		s := otp.UserID.String()
		resp.UserID = &s
	}
	return resp
}
