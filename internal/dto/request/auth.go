package request

// RequestOTPRequest asks for a code to be sent to a phone number.
// Cek "+" prefix saja (struktural), bukan full E.164 parse.
type RequestOTPRequest struct {
	PhoneNumber string `json:"phone_number" validate:"required,startswith=+,max=20"`
}

// VerifyOTPRequest exchanges a received code for a bearer token.
type VerifyOTPRequest struct {
	PhoneNumber string `json:"phone_number" validate:"required,startswith=+,max=20"`
	OTP         string `json:"otp" validate:"required,numeric"`
}

// CreateAdminRequest seeds a staff account from the command line.
type CreateAdminRequest struct {
	Phone    string `json:"phone" validate:"required,startswith=+,max=20"`
	Username string `json:"username" validate:"required,min=3,max=150"`
	FullName string `json:"full_name" validate:"omitempty,max=255"`
	Password string `json:"password" validate:"required,min=6"`
}
