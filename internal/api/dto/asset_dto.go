package dto

import (
	"time"

	"github.com/spec-kit/custody-service/internal/domain"
)

// KeyRequest payload for key creation.
type KeyRequest struct {
	KeyNumber               string         `json:"key_number"`
	Name                    string         `json:"name"`
	Location                string         `json:"location"`
	Description             string         `json:"description"`
	KeyType                 domain.KeyType `json:"key_type"`
	AuthorizedDepartmentIDs []string       `json:"authorized_departments"`
}

// KeyUpdateRequest payload; nil fields are left untouched.
type KeyUpdateRequest struct {
	Name        *string           `json:"name"`
	Location    *string           `json:"location"`
	Description *string           `json:"description"`
	KeyType     *domain.KeyType   `json:"key_type"`
	Status      *domain.KeyStatus `json:"status"`
}

// KeyPermissionsRequest replaces the departments granted a key.
type KeyPermissionsRequest struct {
	DepartmentIDs []string `json:"department_ids"`
}

// MaintenanceRequest payload. PerformedAt defaults to now.
type MaintenanceRequest struct {
	PerformedAt *time.Time `json:"performed_at"`
}

// KeyResponse describes a key.
type KeyResponse struct {
	ID                      string           `json:"id"`
	KeyNumber               string           `json:"key_number"`
	Name                    string           `json:"name"`
	Location                string           `json:"location"`
	Description             string           `json:"description"`
	KeyType                 domain.KeyType   `json:"key_type"`
	Status                  domain.KeyStatus `json:"status"`
	IsAvailable             bool             `json:"is_available"`
	LastMaintenance         *time.Time       `json:"last_maintenance"`
	AuthorizedDepartmentIDs []string         `json:"authorized_departments"`
	CreatedAt               time.Time        `json:"created_at"`
	UpdatedAt               time.Time        `json:"updated_at"`
}

// AccessCardRequest payload for card creation.
type AccessCardRequest struct {
	CardNumber  string          `json:"card_number"`
	CardType    domain.CardType `json:"card_type"`
	IssueDate   *time.Time      `json:"issue_date"`
	ExpiryDate  *time.Time      `json:"expiry_date"`
	AccessZones []string        `json:"access_zones"`
	EmployeeID  *string         `json:"employee_id"`
}

// AccessCardUpdateRequest payload; nil fields are left untouched and an empty
// employee_id unassigns the card.
type AccessCardUpdateRequest struct {
	CardType    *domain.CardType   `json:"card_type"`
	Status      *domain.CardStatus `json:"status"`
	ExpiryDate  *time.Time         `json:"expiry_date"`
	AccessZones *[]string          `json:"access_zones"`
	EmployeeID  *string            `json:"employee_id"`
}

// CardExtendRequest payload.
type CardExtendRequest struct {
	ExpiryDate *time.Time `json:"new_expiry_date"`
}

// AccessCardResponse describes a card.
type AccessCardResponse struct {
	ID          string            `json:"id"`
	CardNumber  string            `json:"card_number"`
	CardType    domain.CardType   `json:"card_type"`
	Status      domain.CardStatus `json:"status"`
	IsExpired   bool              `json:"is_expired"`
	IssueDate   time.Time         `json:"issue_date"`
	ExpiryDate  *time.Time        `json:"expiry_date"`
	AccessZones []string          `json:"access_zones"`
	EmployeeID  *string           `json:"employee_id"`
	LastUsed    *time.Time        `json:"last_used"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// NewKeyResponse converts a key.
func NewKeyResponse(k *domain.Key) KeyResponse {
	depts := k.AuthorizedDepartmentIDs
	if depts == nil {
		depts = []string{}
	}
	return KeyResponse{
		ID:                      k.ID,
		KeyNumber:               k.KeyNumber,
		Name:                    k.Name,
		Location:                k.Location,
		Description:             k.Description,
		KeyType:                 k.KeyType,
		Status:                  k.Status,
		IsAvailable:             k.IsAvailable(),
		LastMaintenance:         k.LastMaintenance,
		AuthorizedDepartmentIDs: depts,
		CreatedAt:               k.CreatedAt,
		UpdatedAt:               k.UpdatedAt,
	}
}

// NewKeyResponses converts a slice.
func NewKeyResponses(keys []domain.Key) []KeyResponse {
	out := make([]KeyResponse, 0, len(keys))
	for i := range keys {
		out = append(out, NewKeyResponse(&keys[i]))
	}
	return out
}

// NewAccessCardResponse converts a card; IsExpired is evaluated at now.
func NewAccessCardResponse(c *domain.AccessCard, now time.Time) AccessCardResponse {
	zones := c.AccessZones
	if zones == nil {
		zones = []string{}
	}
	return AccessCardResponse{
		ID:          c.ID,
		CardNumber:  c.CardNumber,
		CardType:    c.CardType,
		Status:      c.Status,
		IsExpired:   c.IsExpired(now),
		IssueDate:   c.IssueDate,
		ExpiryDate:  c.ExpiryDate,
		AccessZones: zones,
		EmployeeID:  c.EmployeeID,
		LastUsed:    c.LastUsed,
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}
}

// NewAccessCardResponses converts a slice.
func NewAccessCardResponses(cards []domain.AccessCard, now time.Time) []AccessCardResponse {
	out := make([]AccessCardResponse, 0, len(cards))
	for i := range cards {
		out = append(out, NewAccessCardResponse(&cards[i], now))
	}
	return out
}
