package model

import (
	"time"

	"github.com/google/uuid"
)

// Audit action tags. The audit API rejects anything outside this set.
const (
	ActionAddItem             = "add_item"
	ActionRemoveItem          = "remove_item"
	ActionAddUser             = "add_user"
	ActionCreateRequest       = "create_request"
	ActionAcceptRequest       = "accept_request"
	ActionDeclineRequest      = "decline_request"
	ActionCompleteRequest     = "complete_request"
	ActionCancelDelivery      = "cancel_delivery"
	ActionProposePickupDate   = "propose_pickup_date"
	ActionProposeDeliveryDate = "propose_delivery_date"
	ActionAcceptProposedDate  = "accept_proposed_date"
)

var validActions = map[string]bool{
	ActionAddItem:             true,
	ActionRemoveItem:          true,
	ActionAddUser:             true,
	ActionCreateRequest:       true,
	ActionAcceptRequest:       true,
	ActionDeclineRequest:      true,
	ActionCompleteRequest:     true,
	ActionCancelDelivery:      true,
	ActionProposePickupDate:   true,
	ActionProposeDeliveryDate: true,
	ActionAcceptProposedDate:  true,
}

// IsValidAuditAction reports whether action belongs to the fixed action set
func IsValidAuditAction(action string) bool {
	return validActions[action]
}

// AuditLog is an append-only record of who did what and when. Rows are
// never updated or deleted; queries filter by date range.
type AuditLog struct {
	ID     uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UserID *uuid.UUID `gorm:"type:uuid;index" json:"user_id"`
	User   *User      `gorm:"foreignKey:UserID" json:"-"`
	// UserName is denormalized at write time; readers fall back to the
	// users table when it is absent.
	UserName  string    `gorm:"type:varchar(255)" json:"user_name"`
	Action    string    `gorm:"type:varchar(50);not null;index" json:"action"`
	Details   string    `gorm:"type:jsonb" json:"details"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}
