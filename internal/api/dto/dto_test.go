package dto

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/custody-service/internal/domain"
)

func TestNewTransactionResponse(t *testing.T) {
	t.Parallel()
	out := time.Date(2024, 3, 14, 9, 0, 0, 0, time.UTC)
	expected := out.Add(2 * time.Hour)
	tx := &domain.Transaction{
		ID:                 "t-1",
		Number:             "TRX-20240314-001",
		EmployeeID:         "e-1",
		Asset:              domain.CardRef("c-1"),
		Status:             domain.TransactionStatusActive,
		CheckOutTime:       out,
		ExpectedReturnTime: &expected,
	}

	resp := NewTransactionResponse(tx, out.Add(time.Hour))
	assert.Equal(t, domain.TransactionStatusActive, resp.Status)
	assert.False(t, resp.IsOverdue)
	assert.Equal(t, 1.0, resp.DurationHours)
	assert.Nil(t, resp.KeyID)
	require.NotNil(t, resp.AccessCardID)
	assert.Equal(t, "c-1", *resp.AccessCardID)

	resp = NewTransactionResponse(tx, out.Add(2*time.Hour+time.Minute))
	assert.Equal(t, domain.TransactionStatusOverdue, resp.Status)
	assert.True(t, resp.IsOverdue)

	raw, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"item_type":"access_card"`)
	assert.Contains(t, string(raw), `"key_id":null`)
}

func TestNewKeyResponse_EmptyGrants(t *testing.T) {
	t.Parallel()
	resp := NewKeyResponse(&domain.Key{ID: "k-1", Status: domain.KeyStatusAvailable})
	assert.True(t, resp.IsAvailable)
	assert.NotNil(t, resp.AuthorizedDepartmentIDs)
}
