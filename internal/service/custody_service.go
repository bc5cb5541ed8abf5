package service

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/custody-service/internal/domain"
	"github.com/spec-kit/custody-service/internal/events"
	"github.com/spec-kit/custody-service/internal/observability"
	"github.com/spec-kit/custody-service/internal/repository"
	apperrors "github.com/spec-kit/custody-service/pkg/util/errorutil"
)

const maxPurposeLength = 200

// CustodyService runs the checkout ledger: checkout, check-in, loss and
// extension, plus the read side used by operators.
type CustodyService struct {
	tx             repository.Transactor
	transactions   repository.TransactionRepository
	employees      repository.EmployeeRepository
	keys           repository.KeyRepository
	cards          repository.AccessCardRepository
	metrics        *observability.Metrics
	logger         *zap.Logger
	clock          Clock
	maxReturnHours float64
	events         publisher
}

// CustodyDependencies bundles what the custody service needs.
type CustodyDependencies struct {
	Tx             repository.Transactor
	Transactions   repository.TransactionRepository
	Employees      repository.EmployeeRepository
	Keys           repository.KeyRepository
	Cards          repository.AccessCardRepository
	Dispatcher     events.Dispatcher
	Metrics        *observability.Metrics
	Logger         *zap.Logger
	Clock          Clock
	MaxReturnHours int
}

// CheckoutInput describes a checkout request. Exactly one of KeyID and
// AccessCardID must be set.
type CheckoutInput struct {
	EmployeeID          string
	KeyID               *string
	AccessCardID        *string
	Purpose             string
	ExpectedReturnHours *float64
}

// ExtendInput moves the expected return either relatively or absolutely.
type ExtendInput struct {
	AdditionalHours *float64
	NewReturnTime   *time.Time
}

// ActiveFilter narrows the open transaction listing.
type ActiveFilter struct {
	EmployeeID string
	Kind       domain.AssetKind
}

// NewCustodyService constructs the service.
func NewCustodyService(deps CustodyDependencies) *CustodyService {
	clock := deps.Clock.orDefault()
	logger := nopLogger(deps.Logger)
	return &CustodyService{
		tx:             deps.Tx,
		transactions:   deps.Transactions,
		employees:      deps.Employees,
		keys:           deps.Keys,
		cards:          deps.Cards,
		metrics:        deps.Metrics,
		logger:         logger,
		clock:          clock,
		maxReturnHours: float64(deps.MaxReturnHours),
		events:         publisher{dispatcher: deps.Dispatcher, logger: logger, clock: clock},
	}
}

// Now exposes the service clock so callers derive overdue state consistently.
func (s *CustodyService) Now() time.Time {
	return s.clock()
}

// Checkout hands an asset to an employee and records the ledger entry.
func (s *CustodyService) Checkout(ctx context.Context, actor domain.Actor, input CheckoutInput) (*domain.Transaction, error) {
	if err := requireRole(actor, domain.RoleSecurityStaff); err != nil {
		return nil, err
	}
	ref, err := domain.NewAssetRef(input.KeyID, input.AccessCardID)
	if err != nil {
		return nil, err
	}
	purpose, err := requireText("purpose", input.Purpose, maxPurposeLength)
	if err != nil {
		return nil, err
	}
	if input.EmployeeID == "" {
		return nil, apperrors.NewValidationError("employee_id is required", map[string]any{"field": "employee_id"})
	}
	if h := input.ExpectedReturnHours; h != nil {
		if *h <= 0 {
			return nil, apperrors.NewValidationError("expected_return_hours must be positive", map[string]any{"expected_return_hours": *h})
		}
		if s.maxReturnHours > 0 && *h > s.maxReturnHours {
			return nil, apperrors.NewValidationError("expected_return_hours exceeds the allowed maximum", map[string]any{
				"expected_return_hours": *h,
				"max":                   s.maxReturnHours,
			})
		}
	}

	now := s.clock()
	var created *domain.Transaction
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		emp, err := s.employees.GetByID(ctx, input.EmployeeID)
		if err != nil {
			return apperrors.MapLookup(err, "employee", map[string]any{"employee_id": input.EmployeeID})
		}
		if !emp.IsActive() {
			return apperrors.NewConflict("employee is not active", map[string]any{
				"employee_id": emp.ID,
				"status":      emp.Status,
			})
		}

		if ref.IsKey() {
			err = s.reserveKey(ctx, ref.ID(), emp)
		} else {
			err = s.reserveCard(ctx, ref, now)
		}
		if err != nil {
			return err
		}

		seq, err := s.transactions.NextSequence(ctx, domain.TransactionDay(now))
		if err != nil {
			return apperrors.MapError(err)
		}
		tx := &domain.Transaction{
			Number:       domain.FormatTransactionNumber(now, seq),
			EmployeeID:   emp.ID,
			Asset:        ref,
			Purpose:      purpose,
			Status:       domain.TransactionStatusActive,
			CreatedBy:    actor.UserID,
			CheckOutTime: now,
		}
		if h := input.ExpectedReturnHours; h != nil {
			expected := now.Add(time.Duration(*h * float64(time.Hour)))
			tx.ExpectedReturnTime = &expected
		}
		if err := s.transactions.Create(ctx, tx); err != nil {
			return apperrors.MapError(err)
		}
		created = tx
		return nil
	})
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	s.metrics.RecordCustody("checkout", string(ref.Kind()))
	s.logger.Info("asset checked out",
		zap.String("transaction_number", created.Number),
		zap.String("asset_kind", string(ref.Kind())),
		zap.String("asset_id", ref.ID()),
		zap.String("employee_id", created.EmployeeID))
	s.events.publish(ctx, events.Event{
		Type:              events.EventAssetCheckedOut,
		TransactionNumber: created.Number,
		Actor:             eventActor(actor),
		Timestamp:         now,
		Payload: events.CustodyPayload{
			EmployeeID:         created.EmployeeID,
			AssetKind:          ref.Kind(),
			AssetID:            ref.ID(),
			Purpose:            created.Purpose,
			ExpectedReturnTime: created.ExpectedReturnTime,
		},
	})
	return created, nil
}

func (s *CustodyService) reserveKey(ctx context.Context, keyID string, emp *domain.Employee) error {
	key, err := s.keys.GetForUpdate(ctx, keyID)
	if err != nil {
		return apperrors.MapLookup(err, "key", map[string]any{"key_id": keyID})
	}
	if err := key.CheckOut(); err != nil {
		return err
	}
	if !key.AuthorizesDepartment(emp.DepartmentID) {
		return apperrors.NewForbidden("employee's department is not authorized for key " + key.KeyNumber)
	}
	return apperrors.MapError(s.keys.Update(ctx, key))
}

func (s *CustodyService) reserveCard(ctx context.Context, ref domain.AssetRef, now time.Time) error {
	card, err := s.cards.GetForUpdate(ctx, ref.ID())
	if err != nil {
		return apperrors.MapLookup(err, "access card", map[string]any{"access_card_id": ref.ID()})
	}
	if err := card.CanCheckOut(now); err != nil {
		return err
	}
	open, err := s.transactions.FindOpenByAsset(ctx, ref)
	switch {
	case err == nil:
		return apperrors.NewConflict("access card is already checked out", map[string]any{
			"card_number":        card.CardNumber,
			"transaction_number": open.Number,
		})
	case !errors.Is(err, pgx.ErrNoRows):
		return apperrors.MapError(err)
	}
	card.RecordUsage(now)
	return apperrors.MapError(s.cards.Update(ctx, card))
}

// CheckIn closes an open transaction and returns the asset to the pool.
func (s *CustodyService) CheckIn(ctx context.Context, actor domain.Actor, number, notes string) (*domain.Transaction, error) {
	if err := requireRole(actor, domain.RoleSecurityStaff); err != nil {
		return nil, err
	}
	now := s.clock()
	tx, err := s.mutateOpen(ctx, number, func(ctx context.Context, tx *domain.Transaction) error {
		if err := tx.CheckIn(now, notes); err != nil {
			return err
		}
		if tx.Asset.IsKey() {
			return s.updateKey(ctx, tx.Asset.ID(), (*domain.Key).CheckIn)
		}
		return s.updateCard(ctx, tx.Asset.ID(), func(c *domain.AccessCard) error {
			c.RecordUsage(now)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordCustody("checkin", string(tx.Asset.Kind()))
	s.events.publish(ctx, events.Event{
		Type:              events.EventAssetCheckedIn,
		TransactionNumber: tx.Number,
		Actor:             eventActor(actor),
		Timestamp:         now,
		Payload: events.CustodyPayload{
			EmployeeID:    tx.EmployeeID,
			AssetKind:     tx.Asset.Kind(),
			AssetID:       tx.Asset.ID(),
			DurationHours: tx.DurationHours(now),
		},
	})
	return tx, nil
}

// ReportLost terminates an open transaction and marks its asset lost.
func (s *CustodyService) ReportLost(ctx context.Context, actor domain.Actor, number, notes string) (*domain.Transaction, error) {
	if err := requireRole(actor, domain.RoleSecurityStaff); err != nil {
		return nil, err
	}
	now := s.clock()
	tx, err := s.mutateOpen(ctx, number, func(ctx context.Context, tx *domain.Transaction) error {
		if err := tx.MarkLost(now, notes); err != nil {
			return err
		}
		if tx.Asset.IsKey() {
			return s.updateKey(ctx, tx.Asset.ID(), func(k *domain.Key) error {
				k.MarkLost()
				return nil
			})
		}
		return s.updateCard(ctx, tx.Asset.ID(), func(c *domain.AccessCard) error {
			c.MarkLost()
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordCustody("report_lost", string(tx.Asset.Kind()))
	s.logger.Warn("asset reported lost",
		zap.String("transaction_number", tx.Number),
		zap.String("asset_kind", string(tx.Asset.Kind())),
		zap.String("asset_id", tx.Asset.ID()))
	s.events.publish(ctx, events.Event{
		Type:              events.EventAssetReportedLost,
		TransactionNumber: tx.Number,
		Actor:             eventActor(actor),
		Timestamp:         now,
		Payload: events.CustodyPayload{
			EmployeeID: tx.EmployeeID,
			AssetKind:  tx.Asset.Kind(),
			AssetID:    tx.Asset.ID(),
		},
	})
	return tx, nil
}

// Extend moves the expected return time of an open transaction.
func (s *CustodyService) Extend(ctx context.Context, actor domain.Actor, number string, input ExtendInput) (*domain.Transaction, error) {
	if err := requireRole(actor, domain.RoleSecurityStaff); err != nil {
		return nil, err
	}
	now := s.clock()
	var previous *time.Time
	tx, err := s.mutateOpen(ctx, number, func(_ context.Context, tx *domain.Transaction) error {
		previous = tx.ExpectedReturnTime
		return tx.ExtendReturn(now, input.AdditionalHours, input.NewReturnTime)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordCustody("extend", string(tx.Asset.Kind()))
	s.events.publish(ctx, events.Event{
		Type:              events.EventReturnExtended,
		TransactionNumber: tx.Number,
		Actor:             eventActor(actor),
		Timestamp:         now,
		Payload: events.ReturnExtendedPayload{
			OldReturnTime: previous,
			NewReturnTime: *tx.ExpectedReturnTime,
		},
	})
	return tx, nil
}

// mutateOpen locks the ledger row, applies fn and persists the entry in one
// storage transaction.
func (s *CustodyService) mutateOpen(ctx context.Context, number string, fn func(ctx context.Context, tx *domain.Transaction) error) (*domain.Transaction, error) {
	if number == "" {
		return nil, apperrors.NewValidationError("transaction_number is required", map[string]any{"field": "transaction_number"})
	}
	var out *domain.Transaction
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		tx, err := s.transactions.GetByNumberForUpdate(ctx, number)
		if err != nil {
			return apperrors.MapLookup(err, "transaction", map[string]any{"transaction_number": number})
		}
		if err := fn(ctx, tx); err != nil {
			return err
		}
		if err := s.transactions.Update(ctx, tx); err != nil {
			return apperrors.MapError(err)
		}
		out = tx
		return nil
	})
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return out, nil
}

func (s *CustodyService) updateKey(ctx context.Context, id string, fn func(*domain.Key) error) error {
	key, err := s.keys.GetForUpdate(ctx, id)
	if err != nil {
		return apperrors.MapLookup(err, "key", map[string]any{"key_id": id})
	}
	if err := fn(key); err != nil {
		return err
	}
	return apperrors.MapError(s.keys.Update(ctx, key))
}

func (s *CustodyService) updateCard(ctx context.Context, id string, fn func(*domain.AccessCard) error) error {
	card, err := s.cards.GetForUpdate(ctx, id)
	if err != nil {
		return apperrors.MapLookup(err, "access card", map[string]any{"access_card_id": id})
	}
	if err := fn(card); err != nil {
		return err
	}
	return apperrors.MapError(s.cards.Update(ctx, card))
}

// Get returns one ledger entry by number.
func (s *CustodyService) Get(ctx context.Context, actor domain.Actor, number string) (*domain.Transaction, error) {
	if err := requireRole(actor, domain.RoleAuditor); err != nil {
		return nil, err
	}
	tx, err := s.transactions.GetByNumber(ctx, number)
	if err != nil {
		return nil, apperrors.MapLookup(err, "transaction", map[string]any{"transaction_number": number})
	}
	return tx, nil
}

// ListActive returns open transactions, newest first.
func (s *CustodyService) ListActive(ctx context.Context, actor domain.Actor, filter ActiveFilter) ([]domain.Transaction, error) {
	if err := requireRole(actor, domain.RoleAuditor); err != nil {
		return nil, err
	}
	txs, err := s.transactions.List(ctx, repository.TransactionFilter{
		EmployeeID: filter.EmployeeID,
		Kind:       filter.Kind,
		OpenOnly:   true,
	})
	return txs, apperrors.MapError(err)
}

// ListOverdue returns open transactions whose expected return has passed.
func (s *CustodyService) ListOverdue(ctx context.Context, actor domain.Actor) ([]domain.Transaction, error) {
	if err := requireRole(actor, domain.RoleAuditor); err != nil {
		return nil, err
	}
	now := s.clock()
	txs, err := s.transactions.List(ctx, repository.TransactionFilter{OverdueAt: &now})
	return txs, apperrors.MapError(err)
}

// History lists ledger entries matching filter.
func (s *CustodyService) History(ctx context.Context, actor domain.Actor, filter repository.TransactionFilter) ([]domain.Transaction, error) {
	if err := requireRole(actor, domain.RoleAuditor); err != nil {
		return nil, err
	}
	txs, err := s.transactions.List(ctx, filter)
	return txs, apperrors.MapError(err)
}
