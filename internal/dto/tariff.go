package dto

import "github.com/noah-isme/cpo-backoffice-api/internal/models"

// CreateTariffRequest defines a new tariff.
type CreateTariffRequest struct {
	ConnectorType string          `json:"connector_type" validate:"required,max=50"`
	PricePerKWh   float64         `json:"price_per_kwh" validate:"required,gte=0.1,lte=1.5"`
	StartTime     string          `json:"start_time" validate:"required,datetime=15:04"`
	EndTime       string          `json:"end_time" validate:"required,datetime=15:04"`
	Currency      models.Currency `json:"currency" validate:"required,oneof=CUP USD"`
}

// UpdateTariffRequest merges the provided tariff fields.
type UpdateTariffRequest struct {
	ConnectorType *string          `json:"connector_type" validate:"omitempty,min=1,max=50"`
	PricePerKWh   *float64         `json:"price_per_kwh" validate:"omitempty,gte=0.1,lte=1.5"`
	StartTime     *string          `json:"start_time" validate:"omitempty,datetime=15:04"`
	EndTime       *string          `json:"end_time" validate:"omitempty,datetime=15:04"`
	Currency      *models.Currency `json:"currency" validate:"omitempty,oneof=CUP USD"`
}
