package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/custody-service/internal/domain"
)

// TransactionFilter narrows ledger listings. Zero values match everything.
type TransactionFilter struct {
	EmployeeID   string
	DepartmentID string
	KeyID        string
	CardID       string
	Kind         domain.AssetKind
	Status       domain.TransactionStatus
	OpenOnly     bool
	// OverdueAt keeps open transactions whose expected return is before it.
	OverdueAt *time.Time
	From      *time.Time
	To        *time.Time
	Limit     int
}

// TransactionRepository persists custody ledger entries. Entries are never deleted.
type TransactionRepository interface {
	// NextSequence atomically increments and returns the counter for day.
	NextSequence(ctx context.Context, day time.Time) (int64, error)
	Create(ctx context.Context, tx *domain.Transaction) error
	Update(ctx context.Context, tx *domain.Transaction) error
	GetByNumber(ctx context.Context, number string) (*domain.Transaction, error)
	// GetByNumberForUpdate loads the entry and locks its row until the
	// surrounding transaction ends.
	GetByNumberForUpdate(ctx context.Context, number string) (*domain.Transaction, error)
	// FindOpenByAsset returns the open entry for the asset or pgx.ErrNoRows.
	FindOpenByAsset(ctx context.Context, ref domain.AssetRef) (*domain.Transaction, error)
	List(ctx context.Context, filter TransactionFilter) ([]domain.Transaction, error)
}

type transactionRepository struct {
	db DB
}

// NewTransactionRepository builds the repository.
func NewTransactionRepository(db DB) TransactionRepository {
	return &transactionRepository{db: db}
}

const transactionColumns = `t.id, t.transaction_number, t.employee_id, t.key_id, t.access_card_id, t.purpose, t.status,
            t.notes, COALESCE(t.created_by::text, ''), t.check_out_time, t.expected_return_time, t.check_in_time, t.updated_at`

const openCondition = `t.check_in_time IS NULL AND t.status <> 'lost'`

func scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	var (
		tx     domain.Transaction
		keyID  *string
		cardID *string
	)
	if err := row.Scan(
		&tx.ID,
		&tx.Number,
		&tx.EmployeeID,
		&keyID,
		&cardID,
		&tx.Purpose,
		&tx.Status,
		&tx.Notes,
		&tx.CreatedBy,
		&tx.CheckOutTime,
		&tx.ExpectedReturnTime,
		&tx.CheckInTime,
		&tx.UpdatedAt,
	); err != nil {
		return nil, err
	}
	ref, err := domain.NewAssetRef(keyID, cardID)
	if err != nil {
		return nil, fmt.Errorf("transaction %s: %w", tx.Number, err)
	}
	tx.Asset = ref
	return &tx, nil
}

func (r *transactionRepository) NextSequence(ctx context.Context, day time.Time) (int64, error) {
	const query = `
        INSERT INTO transaction_day_sequences (day, last_value)
        VALUES ($1, 1)
        ON CONFLICT (day) DO UPDATE SET last_value = transaction_day_sequences.last_value + 1
        RETURNING last_value`
	var seq int64
	err := QuerierFromCtx(ctx, r.db).QueryRow(ctx, query, domain.TransactionDay(day)).Scan(&seq)
	return seq, err
}

func (r *transactionRepository) Create(ctx context.Context, tx *domain.Transaction) error {
	const query = `
        INSERT INTO custody_transactions (transaction_number, employee_id, key_id, access_card_id, purpose,
            status, notes, created_by, check_out_time, expected_return_time)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
        RETURNING id, updated_at`
	var createdBy *string
	if tx.CreatedBy != "" {
		createdBy = &tx.CreatedBy
	}
	return QuerierFromCtx(ctx, r.db).QueryRow(ctx, query,
		tx.Number,
		tx.EmployeeID,
		tx.Asset.KeyID(),
		tx.Asset.CardID(),
		tx.Purpose,
		tx.Status,
		tx.Notes,
		createdBy,
		tx.CheckOutTime,
		tx.ExpectedReturnTime,
	).Scan(&tx.ID, &tx.UpdatedAt)
}

func (r *transactionRepository) Update(ctx context.Context, tx *domain.Transaction) error {
	const query = `
        UPDATE custody_transactions SET status=$1, notes=$2, expected_return_time=$3, check_in_time=$4, updated_at=NOW()
        WHERE id=$5
        RETURNING updated_at`
	return QuerierFromCtx(ctx, r.db).QueryRow(ctx, query,
		tx.Status,
		tx.Notes,
		tx.ExpectedReturnTime,
		tx.CheckInTime,
		tx.ID,
	).Scan(&tx.UpdatedAt)
}

func (r *transactionRepository) GetByNumber(ctx context.Context, number string) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM custody_transactions t WHERE t.transaction_number=$1`
	return scanTransaction(QuerierFromCtx(ctx, r.db).QueryRow(ctx, query, number))
}

func (r *transactionRepository) GetByNumberForUpdate(ctx context.Context, number string) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM custody_transactions t WHERE t.transaction_number=$1 FOR UPDATE`
	return scanTransaction(QuerierFromCtx(ctx, r.db).QueryRow(ctx, query, number))
}

func (r *transactionRepository) FindOpenByAsset(ctx context.Context, ref domain.AssetRef) (*domain.Transaction, error) {
	column := "t.key_id"
	if ref.IsCard() {
		column = "t.access_card_id"
	}
	query := `SELECT ` + transactionColumns + ` FROM custody_transactions t WHERE ` +
		column + `=$1 AND ` + openCondition + ` LIMIT 1`
	return scanTransaction(QuerierFromCtx(ctx, r.db).QueryRow(ctx, query, ref.ID()))
}

func (r *transactionRepository) List(ctx context.Context, filter TransactionFilter) ([]domain.Transaction, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if filter.EmployeeID != "" {
		add("t.employee_id = $%d", filter.EmployeeID)
	}
	if filter.DepartmentID != "" {
		add("t.employee_id IN (SELECT e.id FROM employees e WHERE e.department_id = $%d)", filter.DepartmentID)
	}
	if filter.KeyID != "" {
		add("t.key_id = $%d", filter.KeyID)
	}
	if filter.CardID != "" {
		add("t.access_card_id = $%d", filter.CardID)
	}
	switch filter.Kind {
	case domain.AssetKindKey:
		conds = append(conds, "t.key_id IS NOT NULL")
	case domain.AssetKindCard:
		conds = append(conds, "t.access_card_id IS NOT NULL")
	}
	if filter.Status != "" {
		add("t.status = $%d", filter.Status)
	}
	if filter.OpenOnly || filter.OverdueAt != nil {
		conds = append(conds, openCondition)
	}
	if filter.OverdueAt != nil {
		add("t.expected_return_time IS NOT NULL AND t.expected_return_time < $%d", *filter.OverdueAt)
	}
	if filter.From != nil {
		add("t.check_out_time >= $%d", *filter.From)
	}
	if filter.To != nil {
		add("t.check_out_time < $%d", *filter.To)
	}

	query := `SELECT ` + transactionColumns + ` FROM custody_transactions t`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY t.check_out_time DESC, t.transaction_number DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := QuerierFromCtx(ctx, r.db).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *tx)
	}
	return result, rows.Err()
}
