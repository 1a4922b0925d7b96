package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

const (
	PaymentMethodCOD   = "COD"
	PaymentMethodEsewa = "ESEWA"
	PaymentMethodCard  = "CARD"
)

// Ledger statuses are monotonic: PENDING -> COMPLETED or PENDING -> FAILED,
// never out of a terminal state.
const (
	PaymentPending   = "PENDING"
	PaymentCompleted = "COMPLETED"
	PaymentFailed    = "FAILED"
)

// Payment is one ledger entry per payment attempt. Attempts are kept forever
// as the audit trail; only the status column moves.
type Payment struct {
	PaymentID     string         `gorm:"primaryKey" json:"payment_id"`
	BookingID     uint           `gorm:"not null;index" json:"booking_id"`
	UserID        int            `gorm:"not null;index" json:"user_id"`
	Amount        float64        `gorm:"not null" json:"amount"`
	PaymentMethod string         `gorm:"not null" json:"payment_method"`
	Status        string         `gorm:"not null" json:"status"`
	TransactionID string         `gorm:"index" json:"transaction_id,omitempty"`
	Details       datatypes.JSON `json:"details,omitempty"`
	CreatedAt     time.Time      `gorm:"autoCreateTime"`
	UpdatedAt     time.Time      `gorm:"autoUpdateTime"`
}

// DetailBag serializes a method-specific detail map for the Details column.
// Card numbers and CVVs must never go in here.
func DetailBag(details map[string]any) datatypes.JSON {
	raw, err := json.Marshal(details)
	if err != nil {
		return datatypes.JSON("{}")
	}
	return datatypes.JSON(raw)
}

// DetailMap decodes the Details column back into a map for merging.
func (p Payment) DetailMap() map[string]any {
	details := make(map[string]any)
	if len(p.Details) > 0 {
		_ = json.Unmarshal(p.Details, &details)
	}
	return details
}
