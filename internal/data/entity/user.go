package entity

const (
	RoleCustomer = "customer"
	RoleAdmin    = "admin"
)

// User is keyed by phone number; it is the only required unique login key.
// PasswordHash nil berarti akun OTP-only tanpa kredensial password.
type User struct {
	Base
	Username      string  `db:"username"`
	FullName      *string `db:"full_name"`
	Email         *string `db:"email"`
	Phone         string  `db:"phone"`
	Role          string  `db:"role"`
	LoyaltyPoints int     `db:"loyalty_points"`
	IsActive      bool    `db:"is_active"`
	PasswordHash  *string `db:"password_hash"`
}

// HasUsableCredential reports whether the account carries a password.
func (u *User) HasUsableCredential() bool {
	return u.PasswordHash != nil && *u.PasswordHash != ""
}
