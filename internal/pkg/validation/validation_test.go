package validation

import (
	"testing"

	"greencredits-ledger/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	ID     string `json:"id" validate:"required,keycomponent"`
	Owner  string `json:"owner" validate:"required,email"`
	Price  string `json:"pricePerCredit" validate:"required,decimal"`
	Status string `json:"status" validate:"omitempty,oneof=pending authenticated unauthenticated"`
}

func TestDecodeBody_Valid(t *testing.T) {
	var s sample
	err := DecodeBody([]byte(`{"id":"CERT-1","owner":"a@b.io","pricePerCredit":"12.50"}`), &s)
	require.NoError(t, err)
	assert.Equal(t, "CERT-1", s.ID)
}

func TestDecodeBody_FieldErrorsUseJSONNames(t *testing.T) {
	var s sample
	err := DecodeBody([]byte(`{"id":"A\u001fB","owner":"nope","pricePerCredit":"12,5","status":"retired"}`), &s)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	details := domain.As(err).Details
	assert.Equal(t, "contains a reserved character", details["id"])
	assert.Equal(t, "must be a valid email", details["owner"])
	assert.Equal(t, "must be a decimal number", details["pricePerCredit"])
	assert.Contains(t, details["status"], "must be one of")
}

func TestDecodeBody_RejectsUnknownFieldsAndBadJSON(t *testing.T) {
	var s sample
	err := DecodeBody([]byte(`{"id":"CERT-1","owner":"a@b.io","pricePerCredit":"1","extra":true}`), &s)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	err = DecodeBody([]byte(`{`), &s)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	assert.NotEmpty(t, domain.As(err).Details["body"])
}

func TestStruct_Required(t *testing.T) {
	err := Struct(sample{})
	require.Error(t, err)
	assert.Equal(t, "is required", domain.As(err).Details["id"])
}
