package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User roles carried in the JWT role claim
const (
	RoleBeneficiary = "beneficiary"
	RoleEmployee    = "employee"
	RoleAdmin       = "admin"
)

// User represents a beneficiary or staff account
type User struct {
	ID       uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Name     string    `gorm:"type:varchar(255);not null" json:"name"`
	Email    string    `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	Password string    `gorm:"type:varchar(255);not null" json:"-"`
	Role     string    `gorm:"type:varchar(50);not null" json:"role"`
	// FCMToken is the device token push notifications are forwarded to
	FCMToken string `gorm:"type:text" json:"fcm_token,omitempty"`
	// AbsenceCount tracks no-shows at scheduled pickups
	AbsenceCount int            `gorm:"type:int;not null;default:0" json:"absence_count"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`
}
