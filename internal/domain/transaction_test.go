package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/spec-kit/custody-service/pkg/util/errorutil"
)

var checkoutAt = time.Date(2024, 3, 14, 9, 0, 0, 0, time.UTC)

func openTx(expected *time.Time) *Transaction {
	return &Transaction{
		ID:                 "tx-1",
		Number:             "TRX-20240314-001",
		EmployeeID:         "emp-1",
		Asset:              KeyRef("key-1"),
		Purpose:            "patrol",
		Status:             TransactionStatusActive,
		CheckOutTime:       checkoutAt,
		ExpectedReturnTime: expected,
	}
}

func ptrTime(t time.Time) *time.Time { return &t }
func ptrFloat(f float64) *float64    { return &f }

func TestFormatTransactionNumber(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "TRX-20240314-001", FormatTransactionNumber(checkoutAt, 1))
	assert.Equal(t, "TRX-20240314-042", FormatTransactionNumber(checkoutAt, 42))
	assert.Equal(t, "TRX-20240314-1000", FormatTransactionNumber(checkoutAt, 1000))

	// numbering follows the UTC day
	late := time.Date(2024, 3, 14, 23, 30, 0, 0, time.FixedZone("UTC-5", -5*3600))
	assert.Equal(t, "TRX-20240315-007", FormatTransactionNumber(late, 7))
	assert.Equal(t, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), TransactionDay(late))
}

func TestTransaction_IsOverdue(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		tx   *Transaction
		now  time.Time
		want bool
	}{
		{
			name: "no expected return is never overdue",
			tx:   openTx(nil),
			now:  checkoutAt.Add(1000 * time.Hour),
			want: false,
		},
		{
			name: "before expected return",
			tx:   openTx(ptrTime(checkoutAt.Add(2 * time.Hour))),
			now:  checkoutAt.Add(2 * time.Hour),
			want: false,
		},
		{
			name: "after expected return",
			tx:   openTx(ptrTime(checkoutAt.Add(2 * time.Hour))),
			now:  checkoutAt.Add(2*time.Hour + time.Minute),
			want: true,
		},
		{
			name: "checked in is never overdue",
			tx: func() *Transaction {
				tx := openTx(ptrTime(checkoutAt.Add(time.Hour)))
				tx.CheckInTime = ptrTime(checkoutAt.Add(3 * time.Hour))
				tx.Status = TransactionStatusCompleted
				return tx
			}(),
			now:  checkoutAt.Add(5 * time.Hour),
			want: false,
		},
		{
			name: "lost is never overdue",
			tx: func() *Transaction {
				tx := openTx(ptrTime(checkoutAt.Add(time.Hour)))
				tx.Status = TransactionStatusLost
				return tx
			}(),
			now:  checkoutAt.Add(5 * time.Hour),
			want: false,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.tx.IsOverdue(tt.now))
		})
	}
}

func TestTransaction_EffectiveStatus(t *testing.T) {
	t.Parallel()

	tx := openTx(ptrTime(checkoutAt.Add(time.Hour)))
	assert.Equal(t, TransactionStatusActive, tx.EffectiveStatus(checkoutAt))
	assert.Equal(t, TransactionStatusOverdue, tx.EffectiveStatus(checkoutAt.Add(2*time.Hour)))
	// derived status is never written back
	assert.Equal(t, TransactionStatusActive, tx.Status)

	require.NoError(t, tx.CheckIn(checkoutAt.Add(3*time.Hour), ""))
	assert.Equal(t, TransactionStatusCompleted, tx.EffectiveStatus(checkoutAt.Add(4*time.Hour)))

	lost := openTx(nil)
	require.NoError(t, lost.MarkLost(checkoutAt, ""))
	assert.Equal(t, TransactionStatusLost, lost.EffectiveStatus(checkoutAt.Add(time.Hour)))
}

func TestTransaction_DurationHours(t *testing.T) {
	t.Parallel()

	tx := openTx(nil)
	assert.Equal(t, 1.0, tx.DurationHours(checkoutAt.Add(time.Hour)))

	require.NoError(t, tx.CheckIn(checkoutAt.Add(150*time.Minute), ""))
	assert.Equal(t, 2.5, tx.DurationHours(checkoutAt.Add(100*time.Hour)))

	odd := openTx(nil)
	assert.Equal(t, 0.33, odd.DurationHours(checkoutAt.Add(20*time.Minute)))
}

func TestTransaction_CheckInTwice(t *testing.T) {
	t.Parallel()

	tx := openTx(nil)
	require.NoError(t, tx.CheckIn(checkoutAt.Add(time.Hour), "returned"))
	assert.Equal(t, TransactionStatusCompleted, tx.Status)
	require.NotNil(t, tx.CheckInTime)
	first := *tx.CheckInTime

	err := tx.CheckIn(checkoutAt.Add(2*time.Hour), "again")
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeConflict))
	assert.Equal(t, first, *tx.CheckInTime)
	assert.Equal(t, "returned", tx.Notes)
}

func TestTransaction_LostIsTerminal(t *testing.T) {
	t.Parallel()

	tx := openTx(nil)
	require.NoError(t, tx.MarkLost(checkoutAt.Add(time.Hour), "dropped in river"))
	assert.Nil(t, tx.CheckInTime)
	assert.False(t, tx.IsOpen())

	err := tx.CheckIn(checkoutAt.Add(2*time.Hour), "")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeConflict))
	err = tx.MarkLost(checkoutAt.Add(2*time.Hour), "")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeConflict))
	err = tx.ExtendReturn(checkoutAt.Add(2*time.Hour), ptrFloat(1), nil)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeConflict))
}

func TestTransaction_NotesMerge(t *testing.T) {
	t.Parallel()

	tx := openTx(nil)
	tx.Notes = "issued at gate"
	require.NoError(t, tx.CheckIn(checkoutAt.Add(time.Hour), "  scratched  "))
	assert.Equal(t, "issued at gate\nscratched", tx.Notes)
}

func TestTransaction_ExtendReturn(t *testing.T) {
	t.Parallel()

	now := checkoutAt.Add(time.Hour)

	t.Run("from expected return", func(t *testing.T) {
		t.Parallel()
		tx := openTx(ptrTime(checkoutAt.Add(2 * time.Hour)))
		require.NoError(t, tx.ExtendReturn(now, ptrFloat(3), nil))
		assert.Equal(t, checkoutAt.Add(5*time.Hour), *tx.ExpectedReturnTime)
	})

	t.Run("from now when unset", func(t *testing.T) {
		t.Parallel()
		tx := openTx(nil)
		require.NoError(t, tx.ExtendReturn(now, ptrFloat(1.5), nil))
		assert.Equal(t, now.Add(90*time.Minute), *tx.ExpectedReturnTime)
	})

	t.Run("absolute time", func(t *testing.T) {
		t.Parallel()
		tx := openTx(nil)
		target := now.Add(24 * time.Hour)
		require.NoError(t, tx.ExtendReturn(now, nil, &target))
		assert.Equal(t, target, *tx.ExpectedReturnTime)
	})

	t.Run("still in the past", func(t *testing.T) {
		t.Parallel()
		tx := openTx(ptrTime(checkoutAt.Add(-10 * time.Hour)))
		err := tx.ExtendReturn(now, ptrFloat(1), nil)
		assert.True(t, apperrors.HasCode(err, apperrors.CodeConflict))
	})

	t.Run("absolute time not in future", func(t *testing.T) {
		t.Parallel()
		tx := openTx(nil)
		err := tx.ExtendReturn(now, nil, &now)
		assert.True(t, apperrors.HasCode(err, apperrors.CodeConflict))
		assert.Nil(t, tx.ExpectedReturnTime)
	})

	t.Run("invalid input", func(t *testing.T) {
		t.Parallel()
		tx := openTx(nil)
		assert.True(t, apperrors.HasCode(tx.ExtendReturn(now, nil, nil), apperrors.CodeValidation))
		assert.True(t, apperrors.HasCode(tx.ExtendReturn(now, ptrFloat(0), nil), apperrors.CodeValidation))
		target := now.Add(time.Hour)
		assert.True(t, apperrors.HasCode(tx.ExtendReturn(now, ptrFloat(1), &target), apperrors.CodeValidation))
	})
}
