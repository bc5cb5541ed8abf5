package service

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/custody-service/internal/cache"
	"github.com/spec-kit/custody-service/internal/domain"
	"github.com/spec-kit/custody-service/internal/observability"
	apperrors "github.com/spec-kit/custody-service/pkg/util/errorutil"
)

func newReportService(t *testing.T, f *fixture, statsTTL time.Duration) (*ReportService, *observability.Metrics) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	metrics := observability.NewMetrics()
	svc := NewReportService(ReportDependencies{
		Transactions:        f.store.Transactions(),
		Employees:           f.store.Employees(),
		Departments:         f.store.Departments(),
		Keys:                f.store.Keys(),
		Cards:               f.store.AccessCards(),
		Cache:               cache.NewJSONCache(client, "test"),
		Metrics:             metrics,
		Clock:               f.clock.Now,
		StatsTTL:            statsTTL,
		RecentActivityLimit: 10,
		UsageWindowDays:     30,
		CardExpiryAlertDays: 7,
	})
	return svc, metrics
}

func assertCacheCounts(t *testing.T, metrics *observability.Metrics, hits, misses int) {
	t.Helper()
	expected := fmt.Sprintf(`# HELP custody_cache_operations_total The total number of dashboard cache lookups by result
# TYPE custody_cache_operations_total counter
custody_cache_operations_total{result="hit"} %d
custody_cache_operations_total{result="miss"} %d
`, hits, misses)
	require.NoError(t, testutil.GatherAndCompare(metrics.Registry(), strings.NewReader(expected), "custody_cache_operations_total"))
}

func TestReportService_DashboardStats(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	reports, _ := newReportService(t, f, 0)

	card := f.addCard(t, "C-1", 72*time.Hour)
	keyTx := f.checkoutKey(t, f.key.ID, ptr(1.0))
	f.clock.Advance(time.Minute)
	_, err := f.custody.Checkout(ctx, staffActor, CheckoutInput{EmployeeID: f.emp.ID, AccessCardID: &card.ID, Purpose: "visit"})
	require.NoError(t, err)
	f.clock.Advance(3 * time.Hour)

	stats, err := reports.DashboardStats(ctx, auditorActor)
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Current.TotalKeys)
	assert.Equal(t, 1, stats.Current.TotalCards)
	assert.Equal(t, 1, stats.Current.TotalEmployees)
	assert.Equal(t, ActiveCheckouts{Keys: 1, Cards: 1}, stats.Current.ActiveCheckouts)

	require.Len(t, stats.OverdueItems, 1)
	assert.Equal(t, keyTx.Number, stats.OverdueItems[0].TransactionNumber)
	assert.Equal(t, "K-1", stats.OverdueItems[0].ItemID)
	assert.Equal(t, 2.0, stats.OverdueItems[0].HoursOverdue)

	require.Len(t, stats.DepartmentUsage, 1)
	assert.Equal(t, DepartmentUsage{Department: "Facilities", TotalTransactions: 2, KeyCheckouts: 1, CardCheckouts: 1}, stats.DepartmentUsage[0])

	require.Len(t, stats.RecentActivity, 2)
	assert.Equal(t, "C-1", stats.RecentActivity[0].ItemID)
	assert.Equal(t, "checked out", stats.RecentActivity[0].Action)

	assert.Equal(t, KeyAvailability{Total: 1, CheckedOut: 1}, stats.Availability.Keys)
	assert.Equal(t, CardAvailability{Total: 1, Active: 1}, stats.Availability.AccessCards)

	_, err = reports.DashboardStats(ctx, domain.Actor{UserID: "x", Role: "guest"})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeForbidden))
}

func TestReportService_StatsCache(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	reports, metrics := newReportService(t, f, time.Minute)

	notifications := NewNotificationService(f.dispatcher, zap.NewNop(), reports)
	notifications.RegisterHandlers()

	first, err := reports.DashboardStats(ctx, auditorActor)
	require.NoError(t, err)
	assert.Equal(t, 0, first.Current.ActiveCheckouts.Keys)

	cached, err := reports.DashboardStats(ctx, auditorActor)
	require.NoError(t, err)
	assert.Equal(t, first.Current, cached.Current)

	assertCacheCounts(t, metrics, 1, 1)

	f.checkoutKey(t, f.key.ID, nil)

	fresh, err := reports.DashboardStats(ctx, auditorActor)
	require.NoError(t, err)
	assert.Equal(t, 1, fresh.Current.ActiveCheckouts.Keys)
	assertCacheCounts(t, metrics, 1, 2)
}

func TestReportService_Alerts(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	reports, _ := newReportService(t, f, 0)

	f.addCard(t, "C-SOON", 3*24*time.Hour)
	f.addCard(t, "C-SOONER", 24*time.Hour)
	f.addCard(t, "C-LATER", 30*24*time.Hour)
	tx := f.checkoutKey(t, f.key.ID, ptr(1.0))
	f.clock.Advance(2 * time.Hour)

	alerts, err := reports.Alerts(ctx, auditorActor)
	require.NoError(t, err)
	require.Len(t, alerts, 3)

	assert.Equal(t, AlertPriorityHigh, alerts[0].Priority)
	assert.Equal(t, tx.Number, alerts[0].TransactionNumber)
	assert.Equal(t, "Overdue K-1 checked out by Emp E-1", alerts[0].Message)

	assert.Equal(t, "C-SOONER", alerts[1].CardNumber)
	assert.Equal(t, "C-SOON", alerts[2].CardNumber)
	assert.Equal(t, AlertPriorityMedium, alerts[2].Priority)
	assert.Equal(t, "Access card C-SOON will expire on 2024-03-17", alerts[2].Message)
}

func TestReportService_Daily(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	reports, _ := newReportService(t, f, 0)

	tx := f.checkoutKey(t, f.key.ID, nil)
	f.clock.Advance(24 * time.Hour)

	report, err := reports.Daily(ctx, auditorActor, nil)
	require.NoError(t, err)
	assert.Equal(t, "2024-03-14", report.Date)
	require.Len(t, report.Transactions, 1)
	line := report.Transactions[0]
	assert.Equal(t, tx.Number, line.TransactionNumber)
	assert.Equal(t, "Facilities", line.Department)
	assert.Equal(t, "K-1", line.ItemNumber)
	assert.Equal(t, 24.0, line.DurationHours)

	today := f.clock.Now()
	report, err = reports.Daily(ctx, auditorActor, &today)
	require.NoError(t, err)
	assert.Equal(t, "2024-03-15", report.Date)
	assert.Empty(t, report.Transactions)
}

func TestReportService_LostAndEmployee(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	reports, _ := newReportService(t, f, 0)

	card := f.addCard(t, "C-1", 48*time.Hour)
	cardTx, err := f.custody.Checkout(ctx, staffActor, CheckoutInput{EmployeeID: f.emp.ID, AccessCardID: &card.ID, Purpose: "visit"})
	require.NoError(t, err)
	f.clock.Advance(90 * time.Minute)
	_, err = f.custody.CheckIn(ctx, staffActor, cardTx.Number, "")
	require.NoError(t, err)

	keyTx := f.checkoutKey(t, f.key.ID, nil)
	_, err = f.custody.ReportLost(ctx, staffActor, keyTx.Number, "gone")
	require.NoError(t, err)

	lost, err := reports.LostItems(ctx, auditorActor)
	require.NoError(t, err)
	require.Len(t, lost.LostKeys, 1)
	assert.Equal(t, "K-1", lost.LostKeys[0].Number)
	require.NotNil(t, lost.LostKeys[0].LastTransaction)
	assert.Equal(t, domain.TransactionStatusLost, lost.LostKeys[0].LastTransaction.Status)
	assert.Empty(t, lost.LostCards)
	assert.Len(t, lost.LostTransactions, 1)

	emp, err := reports.EmployeeReport(ctx, auditorActor, f.emp.ID)
	require.NoError(t, err)
	assert.Equal(t, EmployeeStatistics{TotalTransactions: 2, AvgCheckoutDuration: 1.5}, emp.Statistics)
	assert.Equal(t, "Facilities", emp.Department)
	require.Len(t, emp.DepartmentPermissions, 1)
	assert.Equal(t, "K-1", emp.DepartmentPermissions[0].KeyNumber)

	_, err = reports.EmployeeReport(ctx, auditorActor, "missing")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))
}

func TestReportService_DepartmentAndExport(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	reports, _ := newReportService(t, f, 0)

	f.checkoutKey(t, f.key.ID, nil)

	dept, err := reports.DepartmentReport(ctx, auditorActor, f.dept.ID)
	require.NoError(t, err)
	assert.Equal(t, "Facilities", dept.DepartmentName)
	assert.Equal(t, 1, dept.EmployeeCount)
	assert.Len(t, dept.KeyPermissions, 1)
	assert.Len(t, dept.RecentTransactions, 1)
	assert.Len(t, dept.ActiveCheckouts, 1)

	snap, err := reports.Export(ctx, auditorActor)
	require.NoError(t, err)
	assert.Len(t, snap.Departments, 1)
	assert.Len(t, snap.Employees, 1)
	assert.Len(t, snap.Keys, 1)
	assert.Empty(t, snap.AccessCards)
	assert.Len(t, snap.Transactions, 1)
}
