package models

import "time"

// Booking lifecycle statuses. Transitions:
// pending -> confirmed (payment completed), pending -> cancelled (by the
// renter, only while pending), confirmed -> completed (rental finished).
const (
	BookingPending   = "pending"
	BookingConfirmed = "confirmed"
	BookingCancelled = "cancelled"
	BookingCompleted = "completed"
)

// Payment-side status of a booking, written only by the payment flow.
const (
	BookingPaymentPending   = "pending"
	BookingPaymentCompleted = "completed"
	BookingPaymentFailed    = "failed"
)

type Booking struct {
	BookingID        uint      `gorm:"primaryKey" json:"booking_id"`
	UserID           int       `gorm:"not null;index" json:"user_id"`
	VehicleID        uint      `gorm:"not null" json:"vehicle_id"`
	VehicleType      string    `gorm:"not null" json:"vehicle_type"`
	VehicleName      string    `json:"vehicle_name"`
	StartDate        time.Time `gorm:"not null" json:"start_date"`
	EndDate          time.Time `gorm:"not null" json:"end_date"`
	RequiresDriver   bool      `json:"requires_driver"`
	Message          string    `json:"message"`
	TotalAmount      float64   `gorm:"not null" json:"total_amount"`
	PaymentStatus    string    `gorm:"not null;default:pending" json:"payment_status"`
	PaymentReference string    `json:"payment_reference,omitempty"`
	Status           string    `gorm:"not null;default:pending" json:"status"`
	CreatedAt        time.Time `gorm:"autoCreateTime"`
	UpdatedAt        time.Time `gorm:"autoUpdateTime"`
}
