package usecase

import "errors"

// Sentinel errors returned by services. Handlers translate these into HTTP
// statuses; repository and gateway errors never reach a client directly.
var (
	ErrValidation  = errors.New("validation failed")
	ErrInvalidOTP  = errors.New("invalid OTP")
	ErrOTPExpired  = errors.New("OTP expired")
	ErrRateLimited = errors.New("too many requests")
	ErrSMSDelivery = errors.New("failed to send OTP")
	ErrNotFound    = errors.New("not found")
)
