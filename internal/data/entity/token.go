package entity

import (
	"github.com/google/uuid"
)

// AuthToken is the opaque bearer credential, one per user.
type AuthToken struct {
	BaseSimple
	UserID uuid.UUID `db:"user_id"`
	Token  uuid.UUID `db:"token"`
}
