package dto

import (
	"time"

	"github.com/spec-kit/custody-service/internal/service"
)

// ExportResponse is the full registry and ledger snapshot.
type ExportResponse struct {
	GeneratedAt  time.Time             `json:"generated_at"`
	Departments  []DepartmentResponse  `json:"departments"`
	Employees    []EmployeeResponse    `json:"employees"`
	Keys         []KeyResponse         `json:"keys"`
	AccessCards  []AccessCardResponse  `json:"access_cards"`
	Transactions []TransactionResponse `json:"transactions"`
}

// NewExportResponse converts a snapshot, deriving ledger fields at its
// generation time.
func NewExportResponse(s *service.ExportSnapshot) ExportResponse {
	return ExportResponse{
		GeneratedAt:  s.GeneratedAt,
		Departments:  NewDepartmentResponses(s.Departments),
		Employees:    NewEmployeeResponses(s.Employees),
		Keys:         NewKeyResponses(s.Keys),
		AccessCards:  NewAccessCardResponses(s.AccessCards, s.GeneratedAt),
		Transactions: NewTransactionResponses(s.Transactions, s.GeneratedAt),
	}
}
