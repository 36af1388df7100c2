package dto

// CreateInvoiceRequest bills a payment.
type CreateInvoiceRequest struct {
	PaymentID string  `json:"payment_id" validate:"required,uuid"`
	IVA       float64 `json:"iva" validate:"gte=0,lte=100"`
}

// UpdateInvoiceRequest changes the IVA rate of an active invoice.
type UpdateInvoiceRequest struct {
	IVA float64 `json:"iva" validate:"gte=0,lte=100"`
}
