package model

import (
	"time"

	"github.com/google/uuid"
)

// RequestStatus is persisted as an int (0-4) matching the original client
// contract.
type RequestStatus int

const (
	StatusSubmitted             RequestStatus = 0
	StatusAcceptedPendingPickup RequestStatus = 1
	StatusCompleted             RequestStatus = 2
	StatusCancelled             RequestStatus = 3
	StatusRejected              RequestStatus = 4
)

func (s RequestStatus) String() string {
	switch s {
	case StatusSubmitted:
		return "SUBMITTED"
	case StatusAcceptedPendingPickup:
		return "ACCEPTED_PENDING_PICKUP"
	case StatusCompleted:
		return "COMPLETED"
	case StatusCancelled:
		return "CANCELLED"
	case StatusRejected:
		return "REJECTED"
	default:
		return "UNKNOWN"
	}
}

// IsTerminal reports whether no further transition is defined from s
func (s RequestStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusRejected
}

var statusTransitions = map[RequestStatus][]RequestStatus{
	StatusSubmitted:             {StatusAcceptedPendingPickup, StatusRejected},
	StatusAcceptedPendingPickup: {StatusCompleted, StatusCancelled},
}

// CanTransition reports whether the status machine permits from -> to
func CanTransition(from, to RequestStatus) bool {
	for _, next := range statusTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Request is a beneficiary's pickup request. Allocations are typed rows,
// not a batchId->quantity map as in the legacy schema.
type Request struct {
	ID                   uuid.UUID     `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UserID               uuid.UUID     `gorm:"type:uuid;not null;index" json:"user_id"`
	User                 *User         `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Status               RequestStatus `gorm:"type:int;not null;default:0;index" json:"status"`
	SubmissionDate       time.Time     `gorm:"autoCreateTime;index:idx_requests_submission_date,sort:desc" json:"submission_date"`
	TotalItems           int           `gorm:"type:int;not null;default:0" json:"total_items"`
	ScheduledPickupDate  *time.Time    `json:"scheduled_pickup_date,omitempty"`
	ProposedDeliveryDate *time.Time    `json:"proposed_delivery_date,omitempty"`
	RejectionReason      string        `gorm:"type:text" json:"rejection_reason,omitempty"`
	// IdempotencyKey lets a client resubmit the same logical request
	// without double-allocating stock.
	IdempotencyKey *string       `gorm:"type:varchar(128);uniqueIndex" json:"-"`
	Items          []RequestItem `gorm:"foreignKey:RequestID" json:"items"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// RequestItem is one allocation of a stock batch to a request.
// RequestedQuantity keeps the originally asked amount so a shortfall is
// visible when stock could only partially satisfy the selection.
type RequestItem struct {
	ID                uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	RequestID         uuid.UUID  `gorm:"type:uuid;not null;index" json:"request_id"`
	BatchID           uuid.UUID  `gorm:"type:uuid;not null;index" json:"batch_id"`
	Batch             StockBatch `gorm:"foreignKey:BatchID" json:"-"`
	Barcode           string     `gorm:"type:varchar(64);not null" json:"barcode"`
	Quantity          int        `gorm:"type:int;not null" json:"quantity"`
	RequestedQuantity int        `gorm:"type:int;not null" json:"requested_quantity"`
}
