package dto

import (
	"time"

	"github.com/spec-kit/custody-service/internal/domain"
)

// CheckoutRequest payload. Exactly one of KeyID and AccessCardID is set.
type CheckoutRequest struct {
	EmployeeID          string   `json:"employee_id"`
	KeyID               *string  `json:"key_id"`
	AccessCardID        *string  `json:"access_card_id"`
	Purpose             string   `json:"purpose"`
	ExpectedReturnHours *float64 `json:"expected_return_hours"`
}

// CheckinRequest payload.
type CheckinRequest struct {
	TransactionNumber string `json:"transaction_number"`
	Notes             string `json:"notes"`
}

// ExtendRequest payload. Exactly one field is set.
type ExtendRequest struct {
	AdditionalHours *float64   `json:"additional_hours"`
	NewReturnTime   *time.Time `json:"new_return_time"`
}

// NotesRequest payload for loss reports.
type NotesRequest struct {
	Notes string `json:"notes"`
}

// TransactionResponse is a ledger entry with its derived fields evaluated at
// response time.
type TransactionResponse struct {
	ID                 string                   `json:"id"`
	TransactionNumber  string                   `json:"transaction_number"`
	EmployeeID         string                   `json:"employee_id"`
	ItemType           domain.AssetKind         `json:"item_type"`
	KeyID              *string                  `json:"key_id"`
	AccessCardID       *string                  `json:"access_card_id"`
	Purpose            string                   `json:"purpose"`
	Status             domain.TransactionStatus `json:"status"`
	Notes              string                   `json:"notes,omitempty"`
	CreatedBy          string                   `json:"created_by"`
	CheckOutTime       time.Time                `json:"check_out_time"`
	ExpectedReturnTime *time.Time               `json:"expected_return_time"`
	CheckInTime        *time.Time               `json:"check_in_time"`
	IsOverdue          bool                     `json:"is_overdue"`
	DurationHours      float64                  `json:"duration_hours"`
	UpdatedAt          time.Time                `json:"updated_at"`
}

// NewTransactionResponse converts tx, deriving status, overdue and duration at now.
func NewTransactionResponse(tx *domain.Transaction, now time.Time) TransactionResponse {
	return TransactionResponse{
		ID:                 tx.ID,
		TransactionNumber:  tx.Number,
		EmployeeID:         tx.EmployeeID,
		ItemType:           tx.Asset.Kind(),
		KeyID:              tx.Asset.KeyID(),
		AccessCardID:       tx.Asset.CardID(),
		Purpose:            tx.Purpose,
		Status:             tx.EffectiveStatus(now),
		Notes:              tx.Notes,
		CreatedBy:          tx.CreatedBy,
		CheckOutTime:       tx.CheckOutTime,
		ExpectedReturnTime: tx.ExpectedReturnTime,
		CheckInTime:        tx.CheckInTime,
		IsOverdue:          tx.IsOverdue(now),
		DurationHours:      tx.DurationHours(now),
		UpdatedAt:          tx.UpdatedAt,
	}
}

// NewTransactionResponses converts a slice.
func NewTransactionResponses(txs []domain.Transaction, now time.Time) []TransactionResponse {
	out := make([]TransactionResponse, 0, len(txs))
	for i := range txs {
		out = append(out, NewTransactionResponse(&txs[i], now))
	}
	return out
}
