package models

import "time"

// PaymentMethod enumerates how a charge was paid.
type PaymentMethod string

const (
	PaymentMethodCard PaymentMethod = "card"
	PaymentMethodCash PaymentMethod = "cash"
)

// PaymentStatus tracks settlement of a payment.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusConfirmed PaymentStatus = "confirmed"
	PaymentStatusFailed    PaymentStatus = "failed"
)

// Terminal reports whether no further transition is allowed.
func (s PaymentStatus) Terminal() bool {
	return s == PaymentStatusConfirmed || s == PaymentStatusFailed
}

// QRValidity is the advisory lifetime embedded in QR payloads.
const QRValidity = 15 * time.Minute

// Payment records a charge settled by a driver under a tariff.
type Payment struct {
	ID                string        `db:"id" json:"id"`
	Amount            float64       `db:"amount" json:"amount"`
	Method            PaymentMethod `db:"method" json:"method"`
	Status            PaymentStatus `db:"status" json:"status"`
	PaidAt            time.Time     `db:"paid_at" json:"paid_at"`
	PaymentLink       *string       `db:"payment_link" json:"payment_link,omitempty"`
	QRPayload         *string       `db:"qr_payload" json:"qr_payload,omitempty"`
	QRExpiresAt       *time.Time    `db:"qr_expires_at" json:"qr_expires_at,omitempty"`
	CardMetadata      JSONB         `db:"card_metadata" json:"card_metadata,omitempty"`
	ExternalReference string        `db:"external_reference" json:"external_reference"`
	DriverID          string        `db:"driver_id" json:"driver_id"`
	TariffID          string        `db:"tariff_id" json:"tariff_id"`
	CreatedAt         time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time     `db:"updated_at" json:"updated_at"`

	Tariff *Tariff `db:"tariff" json:"tariff,omitempty"`
}

// PaymentFilter narrows payment listings.
type PaymentFilter struct {
	DriverID string
	Status   PaymentStatus
	Method   PaymentMethod
	PageRequest
}

// PaymentQR is the response of QR generation.
type PaymentQR struct {
	PaymentID string    `json:"payment_id"`
	Payload   string    `json:"payload"`
	ExpiresAt time.Time `json:"expires_at"`
	PNGBase64 string    `json:"png_base64"`
}

// QRPayload is the document encoded inside payment QR codes.
type QRPayload struct {
	PaymentID string    `json:"payment_id"`
	Reference string    `json:"reference"`
	Amount    float64   `json:"amount"`
	Currency  Currency  `json:"currency,omitempty"`
	DriverID  string    `json:"driver_id"`
	ExpiresAt time.Time `json:"expires_at"`
}
