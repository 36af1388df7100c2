package dto

import "time"

// CreateCardRequest issues an RFID card. Without driver_id the card is temporary.
type CreateCardRequest struct {
	Code      string     `json:"code" validate:"omitempty,min=4,max=32"`
	DriverID  *string    `json:"driver_id" validate:"omitempty,uuid"`
	ExpiresAt *time.Time `json:"expires_at"`
}

// UpdateCardRequest reassigns a card or moves its expiry. UnassignDriver
// clears the owner and turns the card temporary.
type UpdateCardRequest struct {
	DriverID       *string    `json:"driver_id" validate:"omitempty,uuid"`
	UnassignDriver bool       `json:"unassign_driver"`
	ExpiresAt      *time.Time `json:"expires_at"`
}

// DeactivateCardRequest records why a card was switched off.
type DeactivateCardRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}
