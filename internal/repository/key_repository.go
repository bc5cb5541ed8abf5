package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/custody-service/internal/domain"
)

// KeyFilter narrows key listings. Zero values match everything.
type KeyFilter struct {
	Status       domain.KeyStatus
	KeyType      domain.KeyType
	DepartmentID string
	Search       string
}

// KeyRepository manages physical key persistence and department grants.
type KeyRepository interface {
	Create(ctx context.Context, key *domain.Key) error
	Update(ctx context.Context, key *domain.Key) error
	GetByID(ctx context.Context, id string) (*domain.Key, error)
	// GetForUpdate loads the key and locks its row until the surrounding
	// transaction ends.
	GetForUpdate(ctx context.Context, id string) (*domain.Key, error)
	List(ctx context.Context, filter KeyFilter) ([]domain.Key, error)
	SetPermissions(ctx context.Context, keyID string, departmentIDs []string, grantedBy string) error
}

type keyRepository struct {
	db DB
}

// NewKeyRepository builds the repository.
func NewKeyRepository(db DB) KeyRepository {
	return &keyRepository{db: db}
}

const keySelect = `
        SELECT k.id, k.key_number, k.name, k.location, k.description, k.key_type, k.status,
            k.last_maintenance,
            COALESCE(ARRAY(SELECT p.department_id::text FROM department_key_permissions p
                WHERE p.key_id = k.id ORDER BY p.department_id), '{}') AS department_ids,
            k.created_at, k.updated_at
        FROM keys k`

func scanKey(row pgx.Row) (*domain.Key, error) {
	var key domain.Key
	if err := row.Scan(
		&key.ID,
		&key.KeyNumber,
		&key.Name,
		&key.Location,
		&key.Description,
		&key.KeyType,
		&key.Status,
		&key.LastMaintenance,
		&key.AuthorizedDepartmentIDs,
		&key.CreatedAt,
		&key.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &key, nil
}

func (r *keyRepository) Create(ctx context.Context, key *domain.Key) error {
	const query = `
        INSERT INTO keys (key_number, name, location, description, key_type, status)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING id, created_at, updated_at`
	return QuerierFromCtx(ctx, r.db).QueryRow(ctx, query,
		key.KeyNumber,
		key.Name,
		key.Location,
		key.Description,
		key.KeyType,
		key.Status,
	).Scan(&key.ID, &key.CreatedAt, &key.UpdatedAt)
}

func (r *keyRepository) Update(ctx context.Context, key *domain.Key) error {
	const query = `
        UPDATE keys SET name=$1, location=$2, description=$3, key_type=$4, status=$5,
            last_maintenance=$6, updated_at=NOW()
        WHERE id=$7
        RETURNING updated_at`
	return QuerierFromCtx(ctx, r.db).QueryRow(ctx, query,
		key.Name,
		key.Location,
		key.Description,
		key.KeyType,
		key.Status,
		key.LastMaintenance,
		key.ID,
	).Scan(&key.UpdatedAt)
}

func (r *keyRepository) GetByID(ctx context.Context, id string) (*domain.Key, error) {
	return scanKey(QuerierFromCtx(ctx, r.db).QueryRow(ctx, keySelect+` WHERE k.id=$1`, id))
}

func (r *keyRepository) GetForUpdate(ctx context.Context, id string) (*domain.Key, error) {
	return scanKey(QuerierFromCtx(ctx, r.db).QueryRow(ctx, keySelect+` WHERE k.id=$1 FOR UPDATE OF k`, id))
}

func (r *keyRepository) List(ctx context.Context, filter KeyFilter) ([]domain.Key, error) {
	var (
		conds []string
		args  []any
	)
	if filter.Status != "" {
		args = append(args, filter.Status)
		conds = append(conds, fmt.Sprintf("k.status = $%d", len(args)))
	}
	if filter.KeyType != "" {
		args = append(args, filter.KeyType)
		conds = append(conds, fmt.Sprintf("k.key_type = $%d", len(args)))
	}
	if filter.DepartmentID != "" {
		args = append(args, filter.DepartmentID)
		conds = append(conds, fmt.Sprintf("EXISTS (SELECT 1 FROM department_key_permissions p WHERE p.key_id = k.id AND p.department_id = $%d)", len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		n := len(args)
		conds = append(conds, fmt.Sprintf("(k.key_number ILIKE $%d OR k.name ILIKE $%d OR k.location ILIKE $%d)", n, n, n))
	}

	query := keySelect
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY k.key_number`

	rows, err := QuerierFromCtx(ctx, r.db).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Key
	for rows.Next() {
		key, err := scanKey(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *key)
	}
	return result, rows.Err()
}

// SetPermissions replaces the key's department grants.
func (r *keyRepository) SetPermissions(ctx context.Context, keyID string, departmentIDs []string, grantedBy string) error {
	q := QuerierFromCtx(ctx, r.db)
	if _, err := q.Exec(ctx, `DELETE FROM department_key_permissions WHERE key_id=$1`, keyID); err != nil {
		return err
	}
	if len(departmentIDs) == 0 {
		return nil
	}
	var granter *string
	if grantedBy != "" {
		granter = &grantedBy
	}
	const query = `
        INSERT INTO department_key_permissions (department_id, key_id, granted_by)
        SELECT unnest($1::uuid[]), $2, $3`
	_, err := q.Exec(ctx, query, departmentIDs, keyID, granter)
	return err
}
