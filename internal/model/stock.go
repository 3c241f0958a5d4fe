package model

import (
	"time"

	"github.com/google/uuid"
)

// StockBatch is one physical receipt of a product with its own expiry.
// ReservedQuantity counts units earmarked for open requests; units leave
// Quantity only on pickup completion.
//
// Invariant: 0 <= reserved_quantity <= quantity. Repositories enforce it
// with guarded updates; the CHECK constraint is the backstop.
type StockBatch struct {
	ID               uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Barcode          string     `gorm:"type:varchar(64);not null;index" json:"barcode"`
	Product          Product    `gorm:"foreignKey:Barcode;references:Barcode" json:"-"`
	Quantity         int        `gorm:"type:int;not null;default:0;check:quantity >= 0" json:"quantity"`
	ReservedQuantity int        `gorm:"type:int;not null;default:0;check:reserved_quantity >= 0 AND reserved_quantity <= quantity" json:"reserved_quantity"`
	ExpiryDate       *time.Time `gorm:"index" json:"expiry_date,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// Available returns the units not yet promised to an open request
func (b StockBatch) Available() int {
	return b.Quantity - b.ReservedQuantity
}
