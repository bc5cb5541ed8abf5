package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/custody-service/internal/domain"
	"github.com/spec-kit/custody-service/internal/events"
	"github.com/spec-kit/custody-service/internal/repository"
	apperrors "github.com/spec-kit/custody-service/pkg/util/errorutil"
)

// AssetService manages the key and access card registry.
type AssetService struct {
	tx           repository.Transactor
	keys         repository.KeyRepository
	cards        repository.AccessCardRepository
	departments  repository.DepartmentRepository
	employees    repository.EmployeeRepository
	transactions repository.TransactionRepository
	clock        Clock
	events       publisher
}

// AssetDependencies bundles repositories for the asset service.
type AssetDependencies struct {
	Tx           repository.Transactor
	Keys         repository.KeyRepository
	Cards        repository.AccessCardRepository
	Departments  repository.DepartmentRepository
	Employees    repository.EmployeeRepository
	Transactions repository.TransactionRepository
	Dispatcher   events.Dispatcher
	Logger       *zap.Logger
	Clock        Clock
}

// KeyInput describes a new key.
type KeyInput struct {
	KeyNumber               string
	Name                    string
	Location                string
	Description             string
	KeyType                 domain.KeyType
	AuthorizedDepartmentIDs []string
}

// KeyUpdateInput carries optional key changes. Nil fields are left untouched.
type KeyUpdateInput struct {
	Name        *string
	Location    *string
	Description *string
	KeyType     *domain.KeyType
	Status      *domain.KeyStatus
}

// AccessCardInput describes a new access card.
type AccessCardInput struct {
	CardNumber  string
	CardType    domain.CardType
	IssueDate   *time.Time
	ExpiryDate  *time.Time
	AccessZones []string
	EmployeeID  *string
}

// AccessCardUpdateInput carries optional card changes. An empty EmployeeID
// unassigns the card.
type AccessCardUpdateInput struct {
	CardType    *domain.CardType
	Status      *domain.CardStatus
	ExpiryDate  *time.Time
	AccessZones *[]string
	EmployeeID  *string
}

// NewAssetService constructs the service.
func NewAssetService(deps AssetDependencies) *AssetService {
	clock := deps.Clock.orDefault()
	return &AssetService{
		tx:           deps.Tx,
		keys:         deps.Keys,
		cards:        deps.Cards,
		departments:  deps.Departments,
		employees:    deps.Employees,
		transactions: deps.Transactions,
		clock:        clock,
		events:       publisher{dispatcher: deps.Dispatcher, logger: nopLogger(deps.Logger), clock: clock},
	}
}

// CreateKey registers a key and its department grants.
func (s *AssetService) CreateKey(ctx context.Context, actor domain.Actor, input KeyInput) (*domain.Key, error) {
	if err := requireRole(actor, domain.RoleAdmin); err != nil {
		return nil, err
	}
	number, err := requireText("key_number", input.KeyNumber, 50)
	if err != nil {
		return nil, err
	}
	name, err := requireText("name", input.Name, 100)
	if err != nil {
		return nil, err
	}
	keyType := input.KeyType
	if keyType == "" {
		keyType = domain.KeyTypeRegular
	}
	if !keyType.Valid() {
		return nil, apperrors.NewValidationError("invalid key_type", map[string]any{"key_type": keyType})
	}

	key := &domain.Key{
		KeyNumber:   number,
		Name:        name,
		Location:    strings.TrimSpace(input.Location),
		Description: strings.TrimSpace(input.Description),
		KeyType:     keyType,
		Status:      domain.KeyStatusAvailable,
	}
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.keys.Create(ctx, key); err != nil {
			return err
		}
		if len(input.AuthorizedDepartmentIDs) == 0 {
			return nil
		}
		if err := s.keys.SetPermissions(ctx, key.ID, input.AuthorizedDepartmentIDs, actor.UserID); err != nil {
			return err
		}
		stored, err := s.keys.GetByID(ctx, key.ID)
		if err != nil {
			return err
		}
		key = stored
		return nil
	})
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	s.registryChanged(ctx, actor, "key", key.ID, "created")
	return key, nil
}

// UpdateKey applies admin edits. A key cannot be moved to checked_out by
// hand, and its status cannot change while a transaction holds it.
func (s *AssetService) UpdateKey(ctx context.Context, actor domain.Actor, id string, input KeyUpdateInput) (*domain.Key, error) {
	if err := requireRole(actor, domain.RoleAdmin); err != nil {
		return nil, err
	}
	var key *domain.Key
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		key, err = s.keys.GetForUpdate(ctx, id)
		if err != nil {
			return apperrors.MapLookup(err, "key", map[string]any{"key_id": id})
		}
		if input.Name != nil {
			name, err := requireText("name", *input.Name, 100)
			if err != nil {
				return err
			}
			key.Name = name
		}
		if input.Location != nil {
			key.Location = strings.TrimSpace(*input.Location)
		}
		if input.Description != nil {
			key.Description = strings.TrimSpace(*input.Description)
		}
		if input.KeyType != nil {
			if !input.KeyType.Valid() {
				return apperrors.NewValidationError("invalid key_type", map[string]any{"key_type": *input.KeyType})
			}
			key.KeyType = *input.KeyType
		}
		if input.Status != nil && *input.Status != key.Status {
			if err := s.changeKeyStatus(ctx, key, *input.Status); err != nil {
				return err
			}
		}
		return s.keys.Update(ctx, key)
	})
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	s.registryChanged(ctx, actor, "key", key.ID, "updated")
	return key, nil
}

func (s *AssetService) changeKeyStatus(ctx context.Context, key *domain.Key, status domain.KeyStatus) error {
	if !status.Valid() {
		return apperrors.NewValidationError("invalid key status", map[string]any{"status": status})
	}
	if status == domain.KeyStatusCheckedOut {
		return apperrors.NewValidationError("checked_out is set by checkout only", map[string]any{"status": status})
	}
	if err := s.ensureNoOpenTransaction(ctx, domain.KeyRef(key.ID)); err != nil {
		return err
	}
	key.Status = status
	return nil
}

// RetireKey takes a key out of circulation.
func (s *AssetService) RetireKey(ctx context.Context, actor domain.Actor, id string) (*domain.Key, error) {
	status := domain.KeyStatusRetired
	return s.UpdateKey(ctx, actor, id, KeyUpdateInput{Status: &status})
}

// RecordMaintenance stamps the key's last maintenance date; nil means now.
func (s *AssetService) RecordMaintenance(ctx context.Context, actor domain.Actor, id string, at *time.Time) (*domain.Key, error) {
	if err := requireRole(actor, domain.RoleAdmin); err != nil {
		return nil, err
	}
	when := s.clock()
	if at != nil {
		if at.After(when) {
			return nil, apperrors.NewValidationError("maintenance date cannot be in the future", map[string]any{"maintenance_date": *at})
		}
		when = *at
	}
	var key *domain.Key
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		key, err = s.keys.GetForUpdate(ctx, id)
		if err != nil {
			return apperrors.MapLookup(err, "key", map[string]any{"key_id": id})
		}
		key.LastMaintenance = &when
		return s.keys.Update(ctx, key)
	})
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	s.registryChanged(ctx, actor, "key", key.ID, "maintained")
	return key, nil
}

// SetKeyPermissions replaces the set of departments allowed to check out the key.
func (s *AssetService) SetKeyPermissions(ctx context.Context, actor domain.Actor, id string, departmentIDs []string) (*domain.Key, error) {
	if err := requireRole(actor, domain.RoleAdmin); err != nil {
		return nil, err
	}
	var key *domain.Key
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		if key, err = s.keys.GetForUpdate(ctx, id); err != nil {
			return apperrors.MapLookup(err, "key", map[string]any{"key_id": id})
		}
		for _, deptID := range departmentIDs {
			if _, err := s.departments.GetByID(ctx, deptID); err != nil {
				return apperrors.MapLookup(err, "department", map[string]any{"department_id": deptID})
			}
		}
		if err := s.keys.SetPermissions(ctx, id, departmentIDs, actor.UserID); err != nil {
			return err
		}
		key, err = s.keys.GetByID(ctx, id)
		return err
	})
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	s.registryChanged(ctx, actor, "key", key.ID, "permissions_changed")
	return key, nil
}

// KeyPermissions lists the departments granted on the key.
func (s *AssetService) KeyPermissions(ctx context.Context, actor domain.Actor, id string) ([]domain.Department, error) {
	key, err := s.GetKey(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Department, 0, len(key.AuthorizedDepartmentIDs))
	for _, deptID := range key.AuthorizedDepartmentIDs {
		dept, err := s.departments.GetByID(ctx, deptID)
		if err != nil {
			return nil, apperrors.MapLookup(err, "department", map[string]any{"department_id": deptID})
		}
		out = append(out, *dept)
	}
	return out, nil
}

// GetKey returns one key.
func (s *AssetService) GetKey(ctx context.Context, actor domain.Actor, id string) (*domain.Key, error) {
	if err := requireRole(actor, domain.RoleAuditor); err != nil {
		return nil, err
	}
	key, err := s.keys.GetByID(ctx, id)
	if err != nil {
		return nil, apperrors.MapLookup(err, "key", map[string]any{"key_id": id})
	}
	return key, nil
}

// ListKeys lists keys matching filter.
func (s *AssetService) ListKeys(ctx context.Context, actor domain.Actor, filter repository.KeyFilter) ([]domain.Key, error) {
	if err := requireRole(actor, domain.RoleAuditor); err != nil {
		return nil, err
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, apperrors.NewValidationError("invalid key status", map[string]any{"status": filter.Status})
	}
	keys, err := s.keys.List(ctx, filter)
	return keys, apperrors.MapError(err)
}

// KeyHistory lists every transaction for the key, newest first.
func (s *AssetService) KeyHistory(ctx context.Context, actor domain.Actor, id string, limit int) ([]domain.Transaction, error) {
	if _, err := s.GetKey(ctx, actor, id); err != nil {
		return nil, err
	}
	txs, err := s.transactions.List(ctx, repository.TransactionFilter{KeyID: id, Limit: limit})
	return txs, apperrors.MapError(err)
}

// CreateCard issues a new access card in the active state.
func (s *AssetService) CreateCard(ctx context.Context, actor domain.Actor, input AccessCardInput) (*domain.AccessCard, error) {
	if err := requireRole(actor, domain.RoleAdmin); err != nil {
		return nil, err
	}
	number, err := requireText("card_number", input.CardNumber, 50)
	if err != nil {
		return nil, err
	}
	cardType := input.CardType
	if cardType == "" {
		cardType = domain.CardTypePermanent
	}
	if !cardType.Valid() {
		return nil, apperrors.NewValidationError("invalid card_type", map[string]any{"card_type": cardType})
	}
	now := s.clock()
	card := &domain.AccessCard{
		CardNumber:  number,
		CardType:    cardType,
		Status:      domain.CardStatusActive,
		IssueDate:   now,
		ExpiryDate:  input.ExpiryDate,
		AccessZones: cleanZones(input.AccessZones),
	}
	if input.IssueDate != nil {
		card.IssueDate = *input.IssueDate
	}
	if card.ExpiryDate != nil && !card.ExpiryDate.After(card.IssueDate) {
		return nil, apperrors.NewValidationError("expiry_date must be after issue_date", map[string]any{"expiry_date": *card.ExpiryDate})
	}
	if id := trimPtr(input.EmployeeID); id != nil && *id != "" {
		if err := s.ensureEmployee(ctx, *id); err != nil {
			return nil, err
		}
		card.EmployeeID = id
	}
	if err := s.cards.Create(ctx, card); err != nil {
		return nil, apperrors.MapError(err)
	}
	s.registryChanged(ctx, actor, "access_card", card.ID, "created")
	return card, nil
}

// UpdateCard applies admin edits to a card.
func (s *AssetService) UpdateCard(ctx context.Context, actor domain.Actor, id string, input AccessCardUpdateInput) (*domain.AccessCard, error) {
	if err := requireRole(actor, domain.RoleAdmin); err != nil {
		return nil, err
	}
	now := s.clock()
	var card *domain.AccessCard
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		card, err = s.cards.GetForUpdate(ctx, id)
		if err != nil {
			return apperrors.MapLookup(err, "access card", map[string]any{"access_card_id": id})
		}
		if input.CardType != nil {
			if !input.CardType.Valid() {
				return apperrors.NewValidationError("invalid card_type", map[string]any{"card_type": *input.CardType})
			}
			card.CardType = *input.CardType
		}
		if input.AccessZones != nil {
			card.AccessZones = cleanZones(*input.AccessZones)
		}
		if emp := trimPtr(input.EmployeeID); emp != nil {
			if *emp == "" {
				card.EmployeeID = nil
			} else {
				if err := s.ensureEmployee(ctx, *emp); err != nil {
					return err
				}
				card.EmployeeID = emp
			}
		}
		if input.ExpiryDate != nil {
			if err := card.ExtendExpiry(*input.ExpiryDate, now); err != nil {
				return err
			}
		}
		if input.Status != nil && *input.Status != card.Status {
			if err := s.changeCardStatus(ctx, card, *input.Status, now); err != nil {
				return err
			}
		}
		return s.cards.Update(ctx, card)
	})
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	s.registryChanged(ctx, actor, "access_card", card.ID, "updated")
	return card, nil
}

func (s *AssetService) changeCardStatus(ctx context.Context, card *domain.AccessCard, status domain.CardStatus, now time.Time) error {
	if !status.Valid() {
		return apperrors.NewValidationError("invalid card status", map[string]any{"status": status})
	}
	if status == domain.CardStatusActive {
		return card.Activate(now)
	}
	if err := s.ensureNoOpenTransaction(ctx, domain.CardRef(card.ID)); err != nil {
		return err
	}
	card.Status = status
	return nil
}

// ActivateCard re-enables a card. Expired cards stay inactive.
func (s *AssetService) ActivateCard(ctx context.Context, actor domain.Actor, id string) (*domain.AccessCard, error) {
	status := domain.CardStatusActive
	return s.UpdateCard(ctx, actor, id, AccessCardUpdateInput{Status: &status})
}

// DeactivateCard disables a card that is not currently checked out.
func (s *AssetService) DeactivateCard(ctx context.Context, actor domain.Actor, id string) (*domain.AccessCard, error) {
	status := domain.CardStatusInactive
	return s.UpdateCard(ctx, actor, id, AccessCardUpdateInput{Status: &status})
}

// ExtendCardExpiry moves the card's expiry into the future.
func (s *AssetService) ExtendCardExpiry(ctx context.Context, actor domain.Actor, id string, expiry time.Time) (*domain.AccessCard, error) {
	return s.UpdateCard(ctx, actor, id, AccessCardUpdateInput{ExpiryDate: &expiry})
}

// GetCard returns one access card.
func (s *AssetService) GetCard(ctx context.Context, actor domain.Actor, id string) (*domain.AccessCard, error) {
	if err := requireRole(actor, domain.RoleAuditor); err != nil {
		return nil, err
	}
	card, err := s.cards.GetByID(ctx, id)
	if err != nil {
		return nil, apperrors.MapLookup(err, "access card", map[string]any{"access_card_id": id})
	}
	return card, nil
}

// ListCards lists access cards matching filter.
func (s *AssetService) ListCards(ctx context.Context, actor domain.Actor, filter repository.AccessCardFilter) ([]domain.AccessCard, error) {
	if err := requireRole(actor, domain.RoleAuditor); err != nil {
		return nil, err
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, apperrors.NewValidationError("invalid card status", map[string]any{"status": filter.Status})
	}
	cards, err := s.cards.List(ctx, filter)
	return cards, apperrors.MapError(err)
}

// CardHistory lists every transaction for the card, newest first.
func (s *AssetService) CardHistory(ctx context.Context, actor domain.Actor, id string, limit int) ([]domain.Transaction, error) {
	if _, err := s.GetCard(ctx, actor, id); err != nil {
		return nil, err
	}
	txs, err := s.transactions.List(ctx, repository.TransactionFilter{CardID: id, Limit: limit})
	return txs, apperrors.MapError(err)
}

func (s *AssetService) ensureNoOpenTransaction(ctx context.Context, ref domain.AssetRef) error {
	open, err := s.transactions.FindOpenByAsset(ctx, ref)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil
	}
	if err != nil {
		return apperrors.MapError(err)
	}
	return apperrors.NewConflict("asset has an open transaction", map[string]any{
		"asset_kind":         ref.Kind(),
		"asset_id":           ref.ID(),
		"transaction_number": open.Number,
	})
}

func (s *AssetService) ensureEmployee(ctx context.Context, id string) error {
	if _, err := s.employees.GetByID(ctx, id); err != nil {
		return apperrors.MapLookup(err, "employee", map[string]any{"employee_id": id})
	}
	return nil
}

func (s *AssetService) registryChanged(ctx context.Context, actor domain.Actor, entity, id, action string) {
	s.events.publish(ctx, events.Event{
		Type:    events.EventRegistryChanged,
		Actor:   eventActor(actor),
		Payload: events.RegistryChangedPayload{Entity: entity, EntityID: id, Action: action},
	})
}

func cleanZones(zones []string) []string {
	out := make([]string, 0, len(zones))
	seen := make(map[string]struct{}, len(zones))
	for _, z := range zones {
		z = strings.TrimSpace(z)
		if z == "" {
			continue
		}
		if _, dup := seen[z]; dup {
			continue
		}
		seen[z] = struct{}{}
		out = append(out, z)
	}
	return out
}
