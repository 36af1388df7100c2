package dto

import (
	"encoding/json"

	"github.com/noah-isme/cpo-backoffice-api/internal/models"
)

// CreatePaymentRequest registers a payment. Drivers may omit driver_id.
type CreatePaymentRequest struct {
	Amount            float64              `json:"amount" validate:"required,gt=0"`
	Method            models.PaymentMethod `json:"method" validate:"required,oneof=card cash"`
	TariffID          string               `json:"tariff_id" validate:"required,uuid"`
	DriverID          string               `json:"driver_id" validate:"omitempty,uuid"`
	ExternalReference string               `json:"external_reference" validate:"omitempty,max=64"`
	CardMetadata      json.RawMessage      `json:"card_metadata,omitempty"`
}

// UpdatePaymentStatusRequest transitions a pending payment.
type UpdatePaymentStatusRequest struct {
	Status models.PaymentStatus `json:"status" validate:"required,oneof=pending confirmed failed"`
}
