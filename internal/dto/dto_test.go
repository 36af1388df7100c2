package dto

import (
	"errors"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidatorUsesJSONNames(t *testing.T) {
	err := NewValidator().Struct(CreateTariffRequest{
		ConnectorType: "CCS2",
		PricePerKWh:   2,
		StartTime:     "25:00",
		EndTime:       "18:00",
		Currency:      "EUR",
	})
	require.Error(t, err)

	var verrs validator.ValidationErrors
	require.True(t, errors.As(err, &verrs))
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fe.Field())
	}
	assert.ElementsMatch(t, []string{"price_per_kwh", "start_time", "currency"}, fields)
}

func TestChangePasswordMustDiffer(t *testing.T) {
	err := NewValidator().Struct(ChangePasswordRequest{CurrentPassword: "secret123", NewPassword: "secret123"})
	require.Error(t, err)
	assert.NoError(t, NewValidator().Struct(ChangePasswordRequest{CurrentPassword: "secret123", NewPassword: "secret456"}))
}
