package domain

import (
	"fmt"
	"math"
	"strings"
	"time"

	apperrors "github.com/spec-kit/custody-service/pkg/util/errorutil"
)

// TransactionStatus enumerates ledger entry states. Overdue is derived on
// read and never stored.
type TransactionStatus string

const (
	TransactionStatusActive    TransactionStatus = "active"
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusOverdue   TransactionStatus = "overdue"
	TransactionStatusLost      TransactionStatus = "lost"
)

// Transaction is one custody record linking an employee to one asset.
type Transaction struct {
	ID                 string
	Number             string
	EmployeeID         string
	Asset              AssetRef
	Purpose            string
	Status             TransactionStatus
	Notes              string
	CreatedBy          string
	CheckOutTime       time.Time
	ExpectedReturnTime *time.Time
	CheckInTime        *time.Time
	UpdatedAt          time.Time
}

// FormatTransactionNumber renders TRX-YYYYMMDD-NNN for the UTC day of at.
func FormatTransactionNumber(at time.Time, seq int64) string {
	return fmt.Sprintf("TRX-%s-%03d", at.UTC().Format("20060102"), seq)
}

// TransactionDay truncates at to its UTC calendar day, the numbering scope.
func TransactionDay(at time.Time) time.Time {
	u := at.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// IsOpen reports whether the asset is still out: not checked in and not lost.
func (t *Transaction) IsOpen() bool {
	return t.CheckInTime == nil && t.Status != TransactionStatusLost
}

// IsOverdue reports whether an open transaction is past its expected return.
func (t *Transaction) IsOverdue(now time.Time) bool {
	return t.IsOpen() && t.ExpectedReturnTime != nil && now.After(*t.ExpectedReturnTime)
}

// EffectiveStatus derives the status visible to callers at now.
func (t *Transaction) EffectiveStatus(now time.Time) TransactionStatus {
	switch {
	case t.Status == TransactionStatusLost:
		return TransactionStatusLost
	case t.CheckInTime != nil:
		return TransactionStatusCompleted
	case t.IsOverdue(now):
		return TransactionStatusOverdue
	default:
		return TransactionStatusActive
	}
}

// DurationHours is the custody span in hours rounded to two decimals. Open
// transactions are measured up to now.
func (t *Transaction) DurationHours(now time.Time) float64 {
	end := now
	if t.CheckInTime != nil {
		end = *t.CheckInTime
	}
	return roundHours(end.Sub(t.CheckOutTime))
}

// OverdueHours is how far past the expected return an overdue transaction is.
func (t *Transaction) OverdueHours(now time.Time) float64 {
	if !t.IsOverdue(now) {
		return 0
	}
	return roundHours(now.Sub(*t.ExpectedReturnTime))
}

func roundHours(d time.Duration) float64 {
	return math.Round(d.Hours()*100) / 100
}

func (t *Transaction) requireOpen(action string) error {
	if t.IsOpen() {
		return nil
	}
	msg := "transaction already checked in"
	if t.Status == TransactionStatusLost {
		msg = "transaction was reported lost"
	}
	return apperrors.NewConflict(msg, map[string]any{
		"transaction_number": t.Number,
		"action":             action,
	})
}

// CheckIn closes the transaction at now and merges notes.
func (t *Transaction) CheckIn(now time.Time, notes string) error {
	if err := t.requireOpen("check_in"); err != nil {
		return err
	}
	in := now
	t.CheckInTime = &in
	t.Status = TransactionStatusCompleted
	t.appendNotes(notes)
	t.UpdatedAt = now
	return nil
}

// MarkLost terminates the transaction without a check-in time.
func (t *Transaction) MarkLost(now time.Time, notes string) error {
	if err := t.requireOpen("report_lost"); err != nil {
		return err
	}
	t.Status = TransactionStatusLost
	t.appendNotes(notes)
	t.UpdatedAt = now
	return nil
}

// ExtendReturn moves the expected return either by additional hours from the
// current expectation (or now when unset) or to an absolute instant.
func (t *Transaction) ExtendReturn(now time.Time, additionalHours *float64, newReturn *time.Time) error {
	if err := t.requireOpen("extend"); err != nil {
		return err
	}
	var target time.Time
	switch {
	case additionalHours != nil && newReturn != nil:
		return apperrors.NewValidationError("provide either additional_hours or new_return_time, not both", nil)
	case additionalHours != nil:
		if *additionalHours <= 0 {
			return apperrors.NewValidationError("additional_hours must be positive", map[string]any{"additional_hours": *additionalHours})
		}
		base := now
		if t.ExpectedReturnTime != nil {
			base = *t.ExpectedReturnTime
		}
		target = base.Add(time.Duration(*additionalHours * float64(time.Hour)))
	case newReturn != nil:
		target = *newReturn
	default:
		return apperrors.NewValidationError("either additional_hours or new_return_time must be provided", nil)
	}
	if !target.After(now) {
		return apperrors.NewConflict("new return time must be in the future", map[string]any{
			"transaction_number": t.Number,
			"new_return_time":    target,
		})
	}
	t.ExpectedReturnTime = &target
	t.UpdatedAt = now
	return nil
}

func (t *Transaction) appendNotes(notes string) {
	notes = strings.TrimSpace(notes)
	if notes == "" {
		return
	}
	if t.Notes == "" {
		t.Notes = notes
		return
	}
	t.Notes = t.Notes + "\n" + notes
}
