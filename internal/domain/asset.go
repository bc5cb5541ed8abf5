package domain

import (
	"time"

	apperrors "github.com/spec-kit/custody-service/pkg/util/errorutil"
)

// AssetKind distinguishes the two kinds of custody assets.
type AssetKind string

const (
	AssetKindKey  AssetKind = "key"
	AssetKindCard AssetKind = "access_card"
)

// AssetRef points at exactly one asset. The zero value references nothing and
// is rejected wherever a reference is required.
type AssetRef struct {
	kind AssetKind
	id   string
}

// KeyRef references a key.
func KeyRef(id string) AssetRef { return AssetRef{kind: AssetKindKey, id: id} }

// CardRef references an access card.
func CardRef(id string) AssetRef { return AssetRef{kind: AssetKindCard, id: id} }

// NewAssetRef builds a reference from two optional ids, exactly one of which
// must be set.
func NewAssetRef(keyID, cardID *string) (AssetRef, error) {
	hasKey := keyID != nil && *keyID != ""
	hasCard := cardID != nil && *cardID != ""
	switch {
	case hasKey && hasCard:
		return AssetRef{}, apperrors.NewValidationError("cannot reference both a key and an access card", nil)
	case hasKey:
		return KeyRef(*keyID), nil
	case hasCard:
		return CardRef(*cardID), nil
	default:
		return AssetRef{}, apperrors.NewValidationError("either key_id or access_card_id must be provided", nil)
	}
}

func (r AssetRef) Kind() AssetKind { return r.kind }
func (r AssetRef) ID() string      { return r.id }
func (r AssetRef) IsZero() bool    { return r.kind == "" || r.id == "" }
func (r AssetRef) IsKey() bool     { return r.kind == AssetKindKey }
func (r AssetRef) IsCard() bool    { return r.kind == AssetKindCard }

// KeyID returns the key id, or nil when the reference is a card.
func (r AssetRef) KeyID() *string {
	if !r.IsKey() {
		return nil
	}
	id := r.id
	return &id
}

// CardID returns the card id, or nil when the reference is a key.
func (r AssetRef) CardID() *string {
	if !r.IsCard() {
		return nil
	}
	id := r.id
	return &id
}

// KeyStatus enumerates key lifecycle states.
type KeyStatus string

const (
	KeyStatusAvailable  KeyStatus = "available"
	KeyStatusCheckedOut KeyStatus = "checked_out"
	KeyStatusLost       KeyStatus = "lost"
	KeyStatusRetired    KeyStatus = "retired"
)

// Valid reports whether s is a known key status.
func (s KeyStatus) Valid() bool {
	switch s {
	case KeyStatusAvailable, KeyStatusCheckedOut, KeyStatusLost, KeyStatusRetired:
		return true
	}
	return false
}

// KeyType classifies keys by reach.
type KeyType string

const (
	KeyTypeMaster    KeyType = "master"
	KeyTypeSubMaster KeyType = "sub_master"
	KeyTypeRegular   KeyType = "regular"
)

// Key is a physical key tracked by its serial number.
type Key struct {
	ID                      string
	KeyNumber               string
	Name                    string
	Location                string
	Description             string
	KeyType                 KeyType
	Status                  KeyStatus
	LastMaintenance         *time.Time
	AuthorizedDepartmentIDs []string
	CreatedAt               time.Time
	UpdatedAt               time.Time
}

// IsAvailable reports whether the key can be checked out.
func (k *Key) IsAvailable() bool {
	return k.Status == KeyStatusAvailable
}

// AuthorizesDepartment reports whether departmentID holds a grant on the key.
func (k *Key) AuthorizesDepartment(departmentID string) bool {
	for _, id := range k.AuthorizedDepartmentIDs {
		if id == departmentID {
			return true
		}
	}
	return false
}

// CheckOut flips an available key to checked_out.
func (k *Key) CheckOut() error {
	if !k.IsAvailable() {
		return apperrors.NewConflict("key is not available for checkout", map[string]any{
			"key_number": k.KeyNumber,
			"status":     k.Status,
		})
	}
	k.Status = KeyStatusCheckedOut
	return nil
}

// CheckIn returns a checked out key to the pool.
func (k *Key) CheckIn() error {
	if k.Status != KeyStatusCheckedOut {
		return apperrors.NewConflict("key is not checked out", map[string]any{
			"key_number": k.KeyNumber,
			"status":     k.Status,
		})
	}
	k.Status = KeyStatusAvailable
	return nil
}

func (k *Key) MarkLost() {
	k.Status = KeyStatusLost
}

// CardStatus enumerates access card lifecycle states.
type CardStatus string

const (
	CardStatusActive   CardStatus = "active"
	CardStatusInactive CardStatus = "inactive"
	CardStatusLost     CardStatus = "lost"
	CardStatusExpired  CardStatus = "expired"
)

// Valid reports whether s is a known card status.
func (s CardStatus) Valid() bool {
	switch s {
	case CardStatusActive, CardStatusInactive, CardStatusLost, CardStatusExpired:
		return true
	}
	return false
}

// CardType classifies access cards.
type CardType string

const (
	CardTypePermanent CardType = "permanent"
	CardTypeTemporary CardType = "temporary"
	CardTypeVisitor   CardType = "visitor"
)

// Valid reports whether t is a known card type.
func (t CardType) Valid() bool {
	switch t {
	case CardTypePermanent, CardTypeTemporary, CardTypeVisitor:
		return true
	}
	return false
}

// AccessCard is an electronic access card.
type AccessCard struct {
	ID          string
	CardNumber  string
	CardType    CardType
	Status      CardStatus
	IssueDate   time.Time
	ExpiryDate  *time.Time
	AccessZones []string
	EmployeeID  *string
	LastUsed    *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// IsExpired reports whether the card's expiry instant has passed.
func (c *AccessCard) IsExpired(now time.Time) bool {
	return c.ExpiryDate != nil && now.After(*c.ExpiryDate)
}

// CanCheckOut validates that the card may be handed out at now.
func (c *AccessCard) CanCheckOut(now time.Time) error {
	if c.Status != CardStatusActive {
		return apperrors.NewConflict("access card is not active", map[string]any{
			"card_number": c.CardNumber,
			"status":      c.Status,
		})
	}
	if c.IsExpired(now) {
		return apperrors.NewConflict("access card has expired", map[string]any{
			"card_number": c.CardNumber,
			"expiry_date": c.ExpiryDate,
		})
	}
	return nil
}

func (c *AccessCard) RecordUsage(now time.Time) {
	used := now
	c.LastUsed = &used
}

func (c *AccessCard) MarkLost() {
	c.Status = CardStatusLost
}

// Activate re-enables a card unless it has expired.
func (c *AccessCard) Activate(now time.Time) error {
	if c.IsExpired(now) {
		return apperrors.NewConflict("cannot activate expired card", map[string]any{"card_number": c.CardNumber})
	}
	c.Status = CardStatusActive
	return nil
}

// ExtendExpiry moves the expiry date; the new date must lie in the future.
func (c *AccessCard) ExtendExpiry(newExpiry, now time.Time) error {
	if !newExpiry.After(now) {
		return apperrors.NewConflict("new expiry date must be in the future", map[string]any{"expiry_date": newExpiry})
	}
	c.ExpiryDate = &newExpiry
	return nil
}
