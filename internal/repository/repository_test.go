package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/custody-service/internal/domain"
)

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock
}

var txColumns = []string{
	"id", "transaction_number", "employee_id", "key_id", "access_card_id", "purpose", "status",
	"notes", "created_by", "check_out_time", "expected_return_time", "check_in_time", "updated_at",
}

func strPtr(s string) *string { return &s }

func TestTxManager_Commit(t *testing.T) {
	t.Parallel()
	mock := newMock(t)
	repo := NewTransactionRepository(mock)
	tm := NewTxManager(mock)

	day := time.Date(2024, 3, 14, 15, 4, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO transaction_day_sequences`).
		WithArgs(time.Date(2024, 3, 14, 0, 0, 0, 0, time.UTC)).
		WillReturnRows(pgxmock.NewRows([]string{"last_value"}).AddRow(int64(4)))
	mock.ExpectCommit()

	var seq int64
	err := tm.RunInTx(context.Background(), func(ctx context.Context) error {
		var err error
		seq, err = repo.NextSequence(ctx, day)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, int64(4), seq)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTxManager_RollbackKeepsCause(t *testing.T) {
	t.Parallel()
	mock := newMock(t)
	tm := NewTxManager(mock)
	sentinel := errors.New("key not available")

	mock.ExpectBegin()
	mock.ExpectRollback()

	err := tm.RunInTx(context.Background(), func(ctx context.Context) error {
		return sentinel
	})
	assert.ErrorIs(t, err, sentinel)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTxManager_NestedReusesOuter(t *testing.T) {
	t.Parallel()
	mock := newMock(t)
	tm := NewTxManager(mock)

	mock.ExpectBegin()
	mock.ExpectCommit()

	calls := 0
	err := tm.RunInTx(context.Background(), func(ctx context.Context) error {
		return tm.RunInTx(ctx, func(ctx context.Context) error {
			calls++
			return nil
		})
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepository_GetByNumber(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 3, 14, 9, 0, 0, 0, time.UTC)
	expected := now.Add(2 * time.Hour)

	tests := []struct {
		name     string
		setup    func(mock pgxmock.PgxPoolIface)
		wantErr  error
		wantKind domain.AssetKind
	}{
		{
			name: "key transaction",
			setup: func(mock pgxmock.PgxPoolIface) {
				rows := pgxmock.NewRows(txColumns).AddRow(
					"tx-1", "TRX-20240314-001", "emp-1", strPtr("key-1"), nil, "patrol",
					domain.TransactionStatusActive, "", "user-1", now, &expected, nil, now,
				)
				mock.ExpectQuery(`FROM custody_transactions t WHERE t.transaction_number=\$1`).
					WithArgs("TRX-20240314-001").
					WillReturnRows(rows)
			},
			wantKind: domain.AssetKindKey,
		},
		{
			name: "card transaction",
			setup: func(mock pgxmock.PgxPoolIface) {
				rows := pgxmock.NewRows(txColumns).AddRow(
					"tx-2", "TRX-20240314-001", "emp-1", nil, strPtr("card-1"), "visitor",
					domain.TransactionStatusActive, "", "", now, nil, nil, now,
				)
				mock.ExpectQuery(`FROM custody_transactions t WHERE t.transaction_number=\$1`).
					WithArgs("TRX-20240314-001").
					WillReturnRows(rows)
			},
			wantKind: domain.AssetKindCard,
		},
		{
			name: "not found",
			setup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`SELECT`).
					WithArgs(pgxmock.AnyArg()).
					WillReturnError(pgx.ErrNoRows)
			},
			wantErr: pgx.ErrNoRows,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			mock := newMock(t)
			tt.setup(mock)

			got, err := NewTransactionRepository(mock).GetByNumber(context.Background(), "TRX-20240314-001")
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.wantKind, got.Asset.Kind())
				assert.Equal(t, "TRX-20240314-001", got.Number)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestTransactionRepository_Create(t *testing.T) {
	t.Parallel()
	mock := newMock(t)

	now := time.Date(2024, 3, 14, 9, 0, 0, 0, time.UTC)
	tx := &domain.Transaction{
		Number:       "TRX-20240314-002",
		EmployeeID:   "emp-1",
		Asset:        domain.CardRef("card-9"),
		Purpose:      "contractor",
		Status:       domain.TransactionStatusActive,
		CheckOutTime: now,
	}

	mock.ExpectQuery(`INSERT INTO custody_transactions`).
		WithArgs("TRX-20240314-002", "emp-1", (*string)(nil), strPtr("card-9"), "contractor",
			domain.TransactionStatusActive, "", (*string)(nil), now, (*time.Time)(nil)).
		WillReturnRows(pgxmock.NewRows([]string{"id", "updated_at"}).AddRow("tx-9", now))

	require.NoError(t, NewTransactionRepository(mock).Create(context.Background(), tx))
	assert.Equal(t, "tx-9", tx.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepository_FindOpenByAsset(t *testing.T) {
	t.Parallel()
	mock := newMock(t)

	mock.ExpectQuery(`t.access_card_id=\$1 AND t.check_in_time IS NULL AND t.status <> 'lost'`).
		WithArgs("card-1").
		WillReturnError(pgx.ErrNoRows)

	_, err := NewTransactionRepository(mock).FindOpenByAsset(context.Background(), domain.CardRef("card-1"))
	assert.ErrorIs(t, err, pgx.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepository_ListOverdue(t *testing.T) {
	t.Parallel()
	mock := newMock(t)

	now := time.Date(2024, 3, 14, 9, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`t.employee_id = \$1 AND t.check_in_time IS NULL AND t.status <> 'lost' AND t.expected_return_time IS NOT NULL AND t.expected_return_time < \$2 ORDER BY t.check_out_time DESC, t.transaction_number DESC LIMIT \$3`).
		WithArgs("emp-1", now, 5).
		WillReturnRows(pgxmock.NewRows(txColumns))

	got, err := NewTransactionRepository(mock).List(context.Background(), TransactionFilter{
		EmployeeID: "emp-1",
		OverdueAt:  &now,
		Limit:      5,
	})
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestKeyRepository_GetForUpdate(t *testing.T) {
	t.Parallel()
	mock := newMock(t)

	now := time.Date(2024, 3, 14, 9, 0, 0, 0, time.UTC)
	rows := pgxmock.NewRows([]string{
		"id", "key_number", "name", "location", "description", "key_type", "status",
		"last_maintenance", "department_ids", "created_at", "updated_at",
	}).AddRow("key-1", "K-100", "Server room", "B1", "", domain.KeyTypeRegular, domain.KeyStatusAvailable,
		nil, []string{"dept-1", "dept-2"}, now, now)

	mock.ExpectQuery(`WHERE k.id=\$1 FOR UPDATE OF k`).WithArgs("key-1").WillReturnRows(rows)

	key, err := NewKeyRepository(mock).GetForUpdate(context.Background(), "key-1")
	require.NoError(t, err)
	assert.True(t, key.AuthorizesDepartment("dept-2"))
	assert.True(t, key.IsAvailable())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestKeyRepository_SetPermissions(t *testing.T) {
	t.Parallel()
	mock := newMock(t)

	mock.ExpectExec(`DELETE FROM department_key_permissions`).
		WithArgs("key-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 2))
	mock.ExpectExec(`INSERT INTO department_key_permissions`).
		WithArgs([]string{"dept-1"}, "key-1", strPtr("user-1")).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := NewKeyRepository(mock).SetPermissions(context.Background(), "key-1", []string{"dept-1"}, "user-1")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEmployeeRepository_ListFilters(t *testing.T) {
	t.Parallel()
	mock := newMock(t)

	now := time.Date(2024, 3, 14, 9, 0, 0, 0, time.UTC)
	rows := pgxmock.NewRows([]string{
		"id", "employee_number", "first_name", "last_name", "email", "phone", "department_id", "status", "created_at", "updated_at",
	}).AddRow("emp-1", "E-001", "Ada", "Byron", "ada@example.com", "", "dept-1", domain.EmployeeStatusActive, now, now)

	mock.ExpectQuery(`WHERE department_id = \$1 AND status = \$2 ORDER BY last_name, first_name`).
		WithArgs("dept-1", domain.EmployeeStatusActive).
		WillReturnRows(rows)

	got, err := NewEmployeeRepository(mock).List(context.Background(), EmployeeFilter{
		DepartmentID: "dept-1",
		Status:       domain.EmployeeStatusActive,
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Ada Byron", got[0].FullName())
	assert.NoError(t, mock.ExpectationsWereMet())
}
