package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ProductCategory is persisted as an int enum
type ProductCategory int

const (
	CategoryOther ProductCategory = iota
	CategoryFood
	CategoryBeverage
	CategoryHygiene
	CategoryBaby
	CategoryHousehold
)

// Product is catalog metadata keyed by barcode. The request workflow treats
// products as read-only reference data; only stock intake writes here.
type Product struct {
	Barcode            string          `gorm:"type:varchar(64);primaryKey" json:"barcode"`
	Name               string          `gorm:"type:varchar(255);not null" json:"name"`
	Brand              string          `gorm:"type:varchar(255)" json:"brand"`
	Category           ProductCategory `gorm:"type:int;default:0" json:"category"`
	ImageURL           string          `gorm:"type:text" json:"image_url"`
	EstimatedUnitValue decimal.Decimal `gorm:"type:decimal(10,2);default:0" json:"estimated_unit_value"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}
