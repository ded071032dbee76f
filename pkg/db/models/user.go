package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/aurelia-commerce/storefront-backend/pkg/enums"
)

// User is a storefront account. Passwords are managed by the identity
// service; this table only mirrors what the order flow needs.
type User struct {
	ID        uuid.UUID        `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Email     string           `gorm:"column:email;not null;uniqueIndex"`
	Name      string           `gorm:"column:name;not null"`
	Role      enums.MemberRole `gorm:"column:role;type:member_role;not null;default:'customer'"`
	CreatedAt time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}
