package events

import (
	"time"

	"github.com/spec-kit/custody-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventAssetCheckedOut   EventType = "asset_checked_out"
	EventAssetCheckedIn    EventType = "asset_checked_in"
	EventAssetReportedLost EventType = "asset_reported_lost"
	EventReturnExtended    EventType = "return_extended"
	EventRegistryChanged   EventType = "registry_changed"
)

// Actor encapsulates actor metadata for an event.
type Actor struct {
	UserID string      `json:"user_id"`
	Role   domain.Role `json:"role"`
}

// Event represents a domain event emitted by services.
type Event struct {
	ID                string      `json:"id"`
	Type              EventType   `json:"type"`
	TransactionNumber string      `json:"transaction_number,omitempty"`
	Actor             Actor       `json:"actor"`
	Timestamp         time.Time   `json:"timestamp"`
	Payload           interface{} `json:"payload"`
}

// CustodyPayload describes the ledger entry an event refers to.
type CustodyPayload struct {
	EmployeeID         string           `json:"employee_id"`
	AssetKind          domain.AssetKind `json:"asset_kind"`
	AssetID            string           `json:"asset_id"`
	Purpose            string           `json:"purpose,omitempty"`
	ExpectedReturnTime *time.Time       `json:"expected_return_time,omitempty"`
	DurationHours      float64          `json:"duration_hours,omitempty"`
}

// ReturnExtendedPayload payload.
type ReturnExtendedPayload struct {
	OldReturnTime *time.Time `json:"old_return_time,omitempty"`
	NewReturnTime time.Time  `json:"new_return_time"`
}

// RegistryChangedPayload is emitted when assets or org data change outside the ledger.
type RegistryChangedPayload struct {
	Entity   string `json:"entity"`
	EntityID string `json:"entity_id"`
	Action   string `json:"action"`
}
