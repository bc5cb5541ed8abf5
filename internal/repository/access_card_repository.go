package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/custody-service/internal/domain"
)

// AccessCardFilter narrows card listings. Zero values match everything.
type AccessCardFilter struct {
	Status        domain.CardStatus
	CardType      domain.CardType
	EmployeeID    string
	ExpiresBefore *time.Time
	Search        string
}

// AccessCardRepository manages access card persistence.
type AccessCardRepository interface {
	Create(ctx context.Context, card *domain.AccessCard) error
	Update(ctx context.Context, card *domain.AccessCard) error
	GetByID(ctx context.Context, id string) (*domain.AccessCard, error)
	// GetForUpdate loads the card and locks its row until the surrounding
	// transaction ends.
	GetForUpdate(ctx context.Context, id string) (*domain.AccessCard, error)
	List(ctx context.Context, filter AccessCardFilter) ([]domain.AccessCard, error)
}

type accessCardRepository struct {
	db DB
}

// NewAccessCardRepository builds the repository.
func NewAccessCardRepository(db DB) AccessCardRepository {
	return &accessCardRepository{db: db}
}

const cardColumns = `id, card_number, card_type, status, issue_date, expiry_date, access_zones, employee_id, last_used, created_at, updated_at`

func scanCard(row pgx.Row) (*domain.AccessCard, error) {
	var card domain.AccessCard
	if err := row.Scan(
		&card.ID,
		&card.CardNumber,
		&card.CardType,
		&card.Status,
		&card.IssueDate,
		&card.ExpiryDate,
		&card.AccessZones,
		&card.EmployeeID,
		&card.LastUsed,
		&card.CreatedAt,
		&card.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &card, nil
}

func (r *accessCardRepository) Create(ctx context.Context, card *domain.AccessCard) error {
	const query = `
        INSERT INTO access_cards (card_number, card_type, status, issue_date, expiry_date, access_zones, employee_id)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        RETURNING id, created_at, updated_at`
	zones := card.AccessZones
	if zones == nil {
		zones = []string{}
	}
	return QuerierFromCtx(ctx, r.db).QueryRow(ctx, query,
		card.CardNumber,
		card.CardType,
		card.Status,
		card.IssueDate,
		card.ExpiryDate,
		zones,
		card.EmployeeID,
	).Scan(&card.ID, &card.CreatedAt, &card.UpdatedAt)
}

func (r *accessCardRepository) Update(ctx context.Context, card *domain.AccessCard) error {
	const query = `
        UPDATE access_cards SET card_type=$1, status=$2, expiry_date=$3, access_zones=$4,
            employee_id=$5, last_used=$6, updated_at=NOW()
        WHERE id=$7
        RETURNING updated_at`
	zones := card.AccessZones
	if zones == nil {
		zones = []string{}
	}
	return QuerierFromCtx(ctx, r.db).QueryRow(ctx, query,
		card.CardType,
		card.Status,
		card.ExpiryDate,
		zones,
		card.EmployeeID,
		card.LastUsed,
		card.ID,
	).Scan(&card.UpdatedAt)
}

func (r *accessCardRepository) GetByID(ctx context.Context, id string) (*domain.AccessCard, error) {
	query := `SELECT ` + cardColumns + ` FROM access_cards WHERE id=$1`
	return scanCard(QuerierFromCtx(ctx, r.db).QueryRow(ctx, query, id))
}

func (r *accessCardRepository) GetForUpdate(ctx context.Context, id string) (*domain.AccessCard, error) {
	query := `SELECT ` + cardColumns + ` FROM access_cards WHERE id=$1 FOR UPDATE`
	return scanCard(QuerierFromCtx(ctx, r.db).QueryRow(ctx, query, id))
}

func (r *accessCardRepository) List(ctx context.Context, filter AccessCardFilter) ([]domain.AccessCard, error) {
	var (
		conds []string
		args  []any
	)
	if filter.Status != "" {
		args = append(args, filter.Status)
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.CardType != "" {
		args = append(args, filter.CardType)
		conds = append(conds, fmt.Sprintf("card_type = $%d", len(args)))
	}
	if filter.EmployeeID != "" {
		args = append(args, filter.EmployeeID)
		conds = append(conds, fmt.Sprintf("employee_id = $%d", len(args)))
	}
	if filter.ExpiresBefore != nil {
		args = append(args, *filter.ExpiresBefore)
		conds = append(conds, fmt.Sprintf("expiry_date IS NOT NULL AND expiry_date <= $%d", len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		conds = append(conds, fmt.Sprintf("card_number ILIKE $%d", len(args)))
	}

	query := `SELECT ` + cardColumns + ` FROM access_cards`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY card_number`

	rows, err := QuerierFromCtx(ctx, r.db).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.AccessCard
	for rows.Next() {
		card, err := scanCard(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *card)
	}
	return result, rows.Err()
}
