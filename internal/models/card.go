package models

import "time"

// CardStatus is the state of an RFID card.
type CardStatus string

const (
	CardStatusActive   CardStatus = "active"
	CardStatusInactive CardStatus = "inactive"
	CardStatusExpired  CardStatus = "expired"
)

// Card code prefixes and default lifetimes.
const (
	CardPrefixTemporary = "TMP-"
	CardPrefixPermanent = "RFID-"

	TemporaryCardValidity = 30 * 24 * time.Hour
	PermanentCardValidity = 5 * 365 * 24 * time.Hour
)

// RFIDCard is an access card. Cards without a driver are temporary.
type RFIDCard struct {
	ID                 string     `db:"id" json:"id"`
	Code               string     `db:"code" json:"code"`
	Status             CardStatus `db:"status" json:"status"`
	IssuedAt           time.Time  `db:"issued_at" json:"issued_at"`
	ExpiresAt          time.Time  `db:"expires_at" json:"expires_at"`
	Temporary          bool       `db:"temporary" json:"temporary"`
	DeactivationReason *string    `db:"deactivation_reason" json:"deactivation_reason,omitempty"`
	DriverID           *string    `db:"driver_id" json:"driver_id,omitempty"`
	CreatedAt          time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time  `db:"updated_at" json:"updated_at"`
	DeletedAt          *time.Time `db:"deleted_at" json:"deleted_at,omitempty"`
}

// OwnedBy reports whether the card belongs to the driver.
func (c *RFIDCard) OwnedBy(driverID string) bool {
	return c.DriverID != nil && *c.DriverID == driverID
}

// CardFilter narrows card listings.
type CardFilter struct {
	DriverID       string
	Status         CardStatus
	IncludeDeleted bool
	PageRequest
}
