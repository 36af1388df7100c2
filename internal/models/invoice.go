package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// InvoiceStatus is the lifecycle state of an invoice.
type InvoiceStatus string

const (
	InvoiceStatusActive   InvoiceStatus = "active"
	InvoiceStatusAnnulled InvoiceStatus = "annulled"
)

// Invoice history actions.
const (
	InvoiceActionCreated  = "CREATED"
	InvoiceActionUpdated  = "UPDATED"
	InvoiceActionAnnulled = "ANNULLED"
)

// InvoiceHistoryEntry is one element of the history embedded in an invoice.
type InvoiceHistoryEntry struct {
	Action        string    `json:"action"`
	Timestamp     time.Time `json:"timestamp"`
	User          string    `json:"user"`
	ChangedFields []string  `json:"changed_fields,omitempty"`
}

// InvoiceHistory is stored as a jsonb array.
type InvoiceHistory []InvoiceHistoryEntry

// Value implements driver.Valuer.
func (h InvoiceHistory) Value() (driver.Value, error) {
	if h == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(h)
}

// Scan implements sql.Scanner.
func (h *InvoiceHistory) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*h = InvoiceHistory{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("invoice history: cannot scan %T", src)
	}
	return json.Unmarshal(raw, h)
}

// Invoice bills a payment. Consumption and tax are fixed at creation time
// and tax follows the IVA rate on update.
type Invoice struct {
	ID             string         `db:"id" json:"id"`
	Amount         float64        `db:"amount" json:"amount"`
	Currency       Currency       `db:"currency" json:"currency"`
	ConsumptionKWh float64        `db:"consumption_kwh" json:"consumption_kwh"`
	IVARate        float64        `db:"iva_rate" json:"iva"`
	TaxAmount      float64        `db:"tax_amount" json:"tax_amount"`
	Status         InvoiceStatus  `db:"status" json:"status"`
	History        InvoiceHistory `db:"history" json:"history"`
	PaymentID      string         `db:"payment_id" json:"payment_id"`
	DriverID       string         `db:"driver_id" json:"driver_id"`
	TariffID       string         `db:"tariff_id" json:"tariff_id"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at" json:"updated_at"`
}

// AppendHistory adds an entry at the end of the embedded history.
func (i *Invoice) AppendHistory(action, user string, at time.Time, changed []string) {
	i.History = append(i.History, InvoiceHistoryEntry{
		Action:        action,
		Timestamp:     at,
		User:          user,
		ChangedFields: changed,
	})
}

// InvoiceFilter narrows invoice listings.
type InvoiceFilter struct {
	DriverID string
	Status   InvoiceStatus
	PageRequest
}
