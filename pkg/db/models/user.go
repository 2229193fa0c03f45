package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/rrsoftech/agencypay-backend/pkg/enums"
)

// User backs FK integrity and ownership checks. Authentication itself lives
// in the identity service; this row mirrors what the JWT asserts.
type User struct {
	ID        uuid.UUID      `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Email     string         `gorm:"column:email;not null;uniqueIndex"`
	FullName  *string        `gorm:"column:full_name"`
	Role      enums.UserRole `gorm:"column:role;type:user_role;not null;default:'CUSTOMER'"`
	CreatedAt time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}
