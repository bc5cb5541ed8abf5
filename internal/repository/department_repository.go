package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/custody-service/internal/domain"
)

// DepartmentRepository manages department persistence.
type DepartmentRepository interface {
	Create(ctx context.Context, dept *domain.Department) error
	Update(ctx context.Context, dept *domain.Department) error
	GetByID(ctx context.Context, id string) (*domain.Department, error)
	List(ctx context.Context) ([]domain.Department, error)
}

type departmentRepository struct {
	db DB
}

// NewDepartmentRepository builds the repository.
func NewDepartmentRepository(db DB) DepartmentRepository {
	return &departmentRepository{db: db}
}

const departmentSelect = `
        SELECT d.id, d.name, d.description, d.access_level,
            COALESCE(ARRAY(SELECT p.key_id::text FROM department_key_permissions p
                WHERE p.department_id = d.id ORDER BY p.key_id), '{}') AS key_ids,
            d.created_at, d.updated_at
        FROM departments d`

func scanDepartment(row pgx.Row) (*domain.Department, error) {
	var dept domain.Department
	if err := row.Scan(
		&dept.ID,
		&dept.Name,
		&dept.Description,
		&dept.AccessLevel,
		&dept.KeyIDs,
		&dept.CreatedAt,
		&dept.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &dept, nil
}

func (r *departmentRepository) Create(ctx context.Context, dept *domain.Department) error {
	const query = `
        INSERT INTO departments (name, description, access_level)
        VALUES ($1,$2,$3)
        RETURNING id, created_at, updated_at`
	return QuerierFromCtx(ctx, r.db).QueryRow(ctx, query,
		dept.Name,
		dept.Description,
		dept.AccessLevel,
	).Scan(&dept.ID, &dept.CreatedAt, &dept.UpdatedAt)
}

func (r *departmentRepository) Update(ctx context.Context, dept *domain.Department) error {
	const query = `
        UPDATE departments SET name=$1, description=$2, access_level=$3, updated_at=NOW()
        WHERE id=$4
        RETURNING updated_at`
	return QuerierFromCtx(ctx, r.db).QueryRow(ctx, query,
		dept.Name,
		dept.Description,
		dept.AccessLevel,
		dept.ID,
	).Scan(&dept.UpdatedAt)
}

func (r *departmentRepository) GetByID(ctx context.Context, id string) (*domain.Department, error) {
	return scanDepartment(QuerierFromCtx(ctx, r.db).QueryRow(ctx, departmentSelect+` WHERE d.id=$1`, id))
}

func (r *departmentRepository) List(ctx context.Context) ([]domain.Department, error) {
	rows, err := QuerierFromCtx(ctx, r.db).Query(ctx, departmentSelect+` ORDER BY d.name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Department
	for rows.Next() {
		dept, err := scanDepartment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *dept)
	}
	return result, rows.Err()
}
