package entity

import (
	"time"

	"github.com/google/uuid"
)

type OTPPurpose string

const (
	PurposeLogin         OTPPurpose = "login"
	PurposeSignup        OTPPurpose = "signup"
	PurposePasswordReset OTPPurpose = "password_reset"
)

// Valid reports whether p is one of the known purposes.
func (p OTPPurpose) Valid() bool {
	switch p {
	case PurposeLogin, PurposeSignup, PurposePasswordReset:
		return true
	}
	return false
}

// OTPCode is one issued one-time code. UserID stays nil until a successful
// verification binds the code to the user it created; Phone is stored on the
// row itself because no user exists yet at issue time.
type OTPCode struct {
	BaseSimple
	UserID    *uuid.UUID `db:"user_id"`
	Phone     string     `db:"phone"`
	Code      string     `db:"code"`
	Purpose   OTPPurpose `db:"purpose"`
	Consumed  bool       `db:"consumed"`
	ExpiresAt time.Time  `db:"expires_at"`
}

// Expired reports whether the code is past its expiry at the given instant.
func (o *OTPCode) Expired(now time.Time) bool {
	return now.After(o.ExpiresAt)
}
