package model

import (
	"time"

	"github.com/google/uuid"
)

// Campaign is a donation drive. Stock intake audit rows reference the
// campaign by name under the details key "campaign_id", a legacy quirk the
// campaign/products report has to match against.
type Campaign struct {
	ID          uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Name        string     `gorm:"type:varchar(255);uniqueIndex;not null" json:"name"`
	Description string     `gorm:"type:text" json:"description"`
	StartDate   *time.Time `json:"start_date,omitempty"`
	EndDate     *time.Time `json:"end_date,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}
