package service

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/custody-service/internal/domain"
	"github.com/spec-kit/custody-service/internal/observability"
	"github.com/spec-kit/custody-service/internal/repository"
	apperrors "github.com/spec-kit/custody-service/pkg/util/errorutil"
)

// StatsCacheKey is where the dashboard aggregate is cached.
const StatsCacheKey = "dashboard:stats"

// StatsCache is the JSON cache used for dashboard aggregates.
type StatsCache interface {
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// ReportService builds the dashboard, alerts and read-only reports.
type ReportService struct {
	transactions repository.TransactionRepository
	employees    repository.EmployeeRepository
	departments  repository.DepartmentRepository
	keys         repository.KeyRepository
	cards        repository.AccessCardRepository
	cache        StatsCache
	metrics      *observability.Metrics
	logger       *zap.Logger
	clock        Clock

	statsTTL        time.Duration
	recentLimit     int
	usageWindow     time.Duration
	cardAlertWindow time.Duration
}

// ReportDependencies bundles what the report service reads from.
type ReportDependencies struct {
	Transactions repository.TransactionRepository
	Employees    repository.EmployeeRepository
	Departments  repository.DepartmentRepository
	Keys         repository.KeyRepository
	Cards        repository.AccessCardRepository
	Cache        StatsCache
	Metrics      *observability.Metrics
	Logger       *zap.Logger
	Clock        Clock

	StatsTTL            time.Duration
	RecentActivityLimit int
	UsageWindowDays     int
	CardExpiryAlertDays int
}

// NewReportService constructs the service.
func NewReportService(deps ReportDependencies) *ReportService {
	s := &ReportService{
		transactions:    deps.Transactions,
		employees:       deps.Employees,
		departments:     deps.Departments,
		keys:            deps.Keys,
		cards:           deps.Cards,
		cache:           deps.Cache,
		metrics:         deps.Metrics,
		logger:          nopLogger(deps.Logger),
		clock:           deps.Clock.orDefault(),
		statsTTL:        deps.StatsTTL,
		recentLimit:     deps.RecentActivityLimit,
		usageWindow:     time.Duration(deps.UsageWindowDays) * 24 * time.Hour,
		cardAlertWindow: time.Duration(deps.CardExpiryAlertDays) * 24 * time.Hour,
	}
	if s.recentLimit <= 0 {
		s.recentLimit = 10
	}
	if s.usageWindow <= 0 {
		s.usageWindow = 30 * 24 * time.Hour
	}
	if s.cardAlertWindow <= 0 {
		s.cardAlertWindow = 7 * 24 * time.Hour
	}
	return s
}

// LedgerLine is a transaction resolved to display names.
type LedgerLine struct {
	TransactionNumber  string                   `json:"transaction_number"`
	EmployeeID         string                   `json:"employee_id"`
	EmployeeName       string                   `json:"employee_name"`
	Department         string                   `json:"department,omitempty"`
	ItemType           domain.AssetKind         `json:"item_type"`
	ItemID             string                   `json:"item_id"`
	ItemNumber         string                   `json:"item_number"`
	Purpose            string                   `json:"purpose"`
	Status             domain.TransactionStatus `json:"status"`
	CheckOutTime       time.Time                `json:"check_out_time"`
	ExpectedReturnTime *time.Time               `json:"expected_return_time,omitempty"`
	CheckInTime        *time.Time               `json:"check_in_time,omitempty"`
	DurationHours      float64                  `json:"duration_hours"`
	IsOverdue          bool                     `json:"is_overdue"`
}

// DashboardStats is the operator dashboard aggregate.
type DashboardStats struct {
	GeneratedAt     time.Time         `json:"generated_at"`
	Current         CurrentStats      `json:"current_stats"`
	OverdueItems    []OverdueItem     `json:"overdue_items"`
	DepartmentUsage []DepartmentUsage `json:"department_stats"`
	RecentActivity  []Activity        `json:"recent_activity"`
	Availability    Availability      `json:"availability"`
}

type CurrentStats struct {
	TotalKeys       int             `json:"total_keys"`
	TotalCards      int             `json:"total_cards"`
	TotalEmployees  int             `json:"total_employees"`
	ActiveCheckouts ActiveCheckouts `json:"active_checkouts"`
}

type ActiveCheckouts struct {
	Keys  int `json:"keys"`
	Cards int `json:"cards"`
}

type OverdueItem struct {
	TransactionNumber string           `json:"transaction_number"`
	EmployeeName      string           `json:"employee_name"`
	ItemType          domain.AssetKind `json:"item_type"`
	ItemID            string           `json:"item_id"`
	CheckOutTime      time.Time        `json:"checkout_time"`
	ExpectedReturn    time.Time        `json:"expected_return"`
	HoursOverdue      float64          `json:"hours_overdue"`
}

type DepartmentUsage struct {
	Department        string `json:"department"`
	TotalTransactions int    `json:"total_transactions"`
	KeyCheckouts      int    `json:"key_checkouts"`
	CardCheckouts     int    `json:"card_checkouts"`
}

type Activity struct {
	TransactionNumber string           `json:"transaction_number"`
	Timestamp         time.Time        `json:"timestamp"`
	EmployeeName      string           `json:"employee_name"`
	Action            string           `json:"action"`
	ItemType          domain.AssetKind `json:"item_type"`
	ItemID            string           `json:"item_id"`
}

type Availability struct {
	Keys        KeyAvailability  `json:"keys"`
	AccessCards CardAvailability `json:"access_cards"`
}

type KeyAvailability struct {
	Total      int `json:"total"`
	Available  int `json:"available"`
	CheckedOut int `json:"checked_out"`
	Lost       int `json:"lost"`
	Retired    int `json:"retired"`
}

type CardAvailability struct {
	Total    int `json:"total"`
	Active   int `json:"active"`
	Inactive int `json:"inactive"`
	Lost     int `json:"lost"`
	Expired  int `json:"expired"`
}

// Alert priorities, most urgent first.
const (
	AlertPriorityHigh   = "high"
	AlertPriorityMedium = "medium"
)

// Alert is a dashboard notification.
type Alert struct {
	Type              string    `json:"type"`
	Priority          string    `json:"priority"`
	Message           string    `json:"message"`
	Timestamp         time.Time `json:"timestamp"`
	TransactionNumber string    `json:"transaction_number,omitempty"`
	CardNumber        string    `json:"card_number,omitempty"`
}

// DailyReport lists transactions checked out on one UTC day.
type DailyReport struct {
	Date         string       `json:"date"`
	Transactions []LedgerLine `json:"transactions"`
}

// LostAsset is a lost key or card with its last ledger entry.
type LostAsset struct {
	ID              string      `json:"id"`
	Number          string      `json:"number"`
	Label           string      `json:"label"`
	LastTransaction *LedgerLine `json:"last_transaction,omitempty"`
}

// LostItemsReport summarises everything currently lost.
type LostItemsReport struct {
	LostKeys         []LostAsset  `json:"lost_keys"`
	LostCards        []LostAsset  `json:"lost_cards"`
	LostTransactions []LedgerLine `json:"lost_item_transactions"`
}

// KeySummary is a compact key view used in reports.
type KeySummary struct {
	ID        string           `json:"id"`
	KeyNumber string           `json:"key_number"`
	Name      string           `json:"name"`
	Location  string           `json:"location"`
	Status    domain.KeyStatus `json:"status"`
}

// EmployeeStatistics summarises an employee's custody record.
type EmployeeStatistics struct {
	TotalTransactions   int     `json:"total_transactions"`
	ActiveCheckouts     int     `json:"active_checkouts"`
	OverdueItems        int     `json:"overdue_items"`
	AvgCheckoutDuration float64 `json:"avg_checkout_duration"`
}

// EmployeeReport is the per-employee custody report.
type EmployeeReport struct {
	EmployeeID            string             `json:"employee_id"`
	EmployeeNumber        string             `json:"employee_number"`
	EmployeeName          string             `json:"employee_name"`
	Department            string             `json:"department"`
	Statistics            EmployeeStatistics `json:"statistics"`
	RecentTransactions    []LedgerLine       `json:"recent_transactions"`
	DepartmentPermissions []KeySummary       `json:"department_permissions"`
}

// DepartmentReport is the per-department custody report.
type DepartmentReport struct {
	DepartmentID       string       `json:"department_id"`
	DepartmentName     string       `json:"department_name"`
	EmployeeCount      int          `json:"employee_count"`
	KeyPermissions     []KeySummary `json:"key_permissions"`
	RecentTransactions []LedgerLine `json:"recent_transactions"`
	ActiveCheckouts    []LedgerLine `json:"active_checkouts"`
}

// ExportSnapshot is a full dump of registry and ledger.
type ExportSnapshot struct {
	GeneratedAt  time.Time
	Departments  []domain.Department
	Employees    []domain.Employee
	Keys         []domain.Key
	AccessCards  []domain.AccessCard
	Transactions []domain.Transaction
}

const departmentReportLimit = 50

// DashboardStats returns the dashboard aggregate, served from cache when fresh.
func (s *ReportService) DashboardStats(ctx context.Context, actor domain.Actor) (*DashboardStats, error) {
	if err := requireRole(actor, domain.RoleAuditor); err != nil {
		return nil, err
	}
	if s.cache != nil && s.statsTTL > 0 {
		var cached DashboardStats
		hit, err := s.cache.Get(ctx, StatsCacheKey, &cached)
		switch {
		case err != nil:
			s.metrics.RecordCache("error")
			s.logger.Warn("dashboard cache read failed", zap.Error(err))
		case hit:
			s.metrics.RecordCache("hit")
			return &cached, nil
		default:
			s.metrics.RecordCache("miss")
		}
	}

	stats, err := s.computeStats(ctx)
	if err != nil {
		return nil, err
	}
	if s.cache != nil && s.statsTTL > 0 {
		if err := s.cache.Set(ctx, StatsCacheKey, stats, s.statsTTL); err != nil {
			s.logger.Warn("dashboard cache write failed", zap.Error(err))
		}
	}
	return stats, nil
}

// InvalidateStats drops the cached dashboard aggregate.
func (s *ReportService) InvalidateStats(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Delete(ctx, StatsCacheKey)
}

func (s *ReportService) computeStats(ctx context.Context) (*DashboardStats, error) {
	now := s.clock()
	ix, err := s.loadIndex(ctx)
	if err != nil {
		return nil, err
	}
	open, err := s.transactions.List(ctx, repository.TransactionFilter{OpenOnly: true})
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	since := now.Add(-s.usageWindow)
	windowed, err := s.transactions.List(ctx, repository.TransactionFilter{From: &since})
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	recent, err := s.transactions.List(ctx, repository.TransactionFilter{Limit: s.recentLimit})
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	stats := &DashboardStats{
		GeneratedAt: now,
		Current: CurrentStats{
			TotalKeys:      len(ix.keys),
			TotalCards:     len(ix.cards),
			TotalEmployees: len(ix.employees),
		},
		OverdueItems:    []OverdueItem{},
		DepartmentUsage: []DepartmentUsage{},
		RecentActivity:  make([]Activity, 0, len(recent)),
	}

	for i := range open {
		tx := &open[i]
		if tx.Asset.IsKey() {
			stats.Current.ActiveCheckouts.Keys++
		} else {
			stats.Current.ActiveCheckouts.Cards++
		}
		if tx.IsOverdue(now) {
			stats.OverdueItems = append(stats.OverdueItems, OverdueItem{
				TransactionNumber: tx.Number,
				EmployeeName:      ix.employeeName(tx.EmployeeID),
				ItemType:          tx.Asset.Kind(),
				ItemID:            ix.assetNumber(tx.Asset),
				CheckOutTime:      tx.CheckOutTime,
				ExpectedReturn:    *tx.ExpectedReturnTime,
				HoursOverdue:      math.Round(now.Sub(*tx.ExpectedReturnTime).Hours()*10) / 10,
			})
		}
	}
	sort.Slice(stats.OverdueItems, func(i, j int) bool {
		return stats.OverdueItems[i].ExpectedReturn.Before(stats.OverdueItems[j].ExpectedReturn)
	})

	usage := map[string]*DepartmentUsage{}
	for _, tx := range windowed {
		name := ix.departmentName(tx.EmployeeID)
		u, ok := usage[name]
		if !ok {
			u = &DepartmentUsage{Department: name}
			usage[name] = u
		}
		u.TotalTransactions++
		if tx.Asset.IsKey() {
			u.KeyCheckouts++
		} else {
			u.CardCheckouts++
		}
	}
	for _, u := range usage {
		stats.DepartmentUsage = append(stats.DepartmentUsage, *u)
	}
	sort.Slice(stats.DepartmentUsage, func(i, j int) bool {
		a, b := stats.DepartmentUsage[i], stats.DepartmentUsage[j]
		if a.TotalTransactions != b.TotalTransactions {
			return a.TotalTransactions > b.TotalTransactions
		}
		return a.Department < b.Department
	})

	for _, tx := range recent {
		act := Activity{
			TransactionNumber: tx.Number,
			Timestamp:         tx.CheckOutTime,
			EmployeeName:      ix.employeeName(tx.EmployeeID),
			Action:            "checked out",
			ItemType:          tx.Asset.Kind(),
			ItemID:            ix.assetNumber(tx.Asset),
		}
		switch {
		case tx.Status == domain.TransactionStatusLost:
			act.Action = "reported lost"
			act.Timestamp = tx.UpdatedAt
		case tx.CheckInTime != nil:
			act.Action = "checked in"
			act.Timestamp = *tx.CheckInTime
		}
		stats.RecentActivity = append(stats.RecentActivity, act)
	}

	for _, k := range ix.keys {
		stats.Availability.Keys.Total++
		switch k.Status {
		case domain.KeyStatusAvailable:
			stats.Availability.Keys.Available++
		case domain.KeyStatusCheckedOut:
			stats.Availability.Keys.CheckedOut++
		case domain.KeyStatusLost:
			stats.Availability.Keys.Lost++
		case domain.KeyStatusRetired:
			stats.Availability.Keys.Retired++
		}
	}
	for _, c := range ix.cards {
		stats.Availability.AccessCards.Total++
		switch {
		case c.Status == domain.CardStatusLost:
			stats.Availability.AccessCards.Lost++
		case c.Status == domain.CardStatusExpired || c.IsExpired(now):
			stats.Availability.AccessCards.Expired++
		case c.Status == domain.CardStatusActive:
			stats.Availability.AccessCards.Active++
		default:
			stats.Availability.AccessCards.Inactive++
		}
	}
	return stats, nil
}

// Alerts lists overdue transactions (high) and cards expiring soon (medium),
// ordered by priority then timestamp.
func (s *ReportService) Alerts(ctx context.Context, actor domain.Actor) ([]Alert, error) {
	if err := requireRole(actor, domain.RoleAuditor); err != nil {
		return nil, err
	}
	now := s.clock()
	ix, err := s.loadIndex(ctx)
	if err != nil {
		return nil, err
	}
	overdue, err := s.transactions.List(ctx, repository.TransactionFilter{OverdueAt: &now})
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	alerts := make([]Alert, 0, len(overdue))
	for _, tx := range overdue {
		alerts = append(alerts, Alert{
			Type:              "overdue",
			Priority:          AlertPriorityHigh,
			Message:           fmt.Sprintf("Overdue %s checked out by %s", ix.assetNumber(tx.Asset), ix.employeeName(tx.EmployeeID)),
			Timestamp:         *tx.ExpectedReturnTime,
			TransactionNumber: tx.Number,
		})
	}

	horizon := now.Add(s.cardAlertWindow)
	for _, c := range ix.cards {
		if c.ExpiryDate == nil || c.ExpiryDate.Before(now) || c.ExpiryDate.After(horizon) {
			continue
		}
		if c.Status == domain.CardStatusLost {
			continue
		}
		alerts = append(alerts, Alert{
			Type:       "expiring_card",
			Priority:   AlertPriorityMedium,
			Message:    fmt.Sprintf("Access card %s will expire on %s", c.CardNumber, c.ExpiryDate.UTC().Format("2006-01-02")),
			Timestamp:  *c.ExpiryDate,
			CardNumber: c.CardNumber,
		})
	}

	rank := map[string]int{AlertPriorityHigh: 0, AlertPriorityMedium: 1}
	sort.SliceStable(alerts, func(i, j int) bool {
		if rank[alerts[i].Priority] != rank[alerts[j].Priority] {
			return rank[alerts[i].Priority] < rank[alerts[j].Priority]
		}
		return alerts[i].Timestamp.Before(alerts[j].Timestamp)
	})
	return alerts, nil
}

// Daily lists transactions checked out on day (UTC). A nil day means
// yesterday.
func (s *ReportService) Daily(ctx context.Context, actor domain.Actor, day *time.Time) (*DailyReport, error) {
	if err := requireRole(actor, domain.RoleAuditor); err != nil {
		return nil, err
	}
	now := s.clock()
	start := domain.TransactionDay(now).AddDate(0, 0, -1)
	if day != nil {
		start = domain.TransactionDay(*day)
	}
	end := start.AddDate(0, 0, 1)

	ix, err := s.loadIndex(ctx)
	if err != nil {
		return nil, err
	}
	txs, err := s.transactions.List(ctx, repository.TransactionFilter{From: &start, To: &end})
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	sort.SliceStable(txs, func(i, j int) bool { return txs[i].CheckOutTime.Before(txs[j].CheckOutTime) })
	return &DailyReport{Date: start.Format("2006-01-02"), Transactions: ix.lines(txs, now)}, nil
}

// LostItems reports lost keys and cards with their last ledger entry.
func (s *ReportService) LostItems(ctx context.Context, actor domain.Actor) (*LostItemsReport, error) {
	if err := requireRole(actor, domain.RoleAuditor); err != nil {
		return nil, err
	}
	now := s.clock()
	ix, err := s.loadIndex(ctx)
	if err != nil {
		return nil, err
	}
	lost, err := s.transactions.List(ctx, repository.TransactionFilter{Status: domain.TransactionStatusLost})
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	report := &LostItemsReport{
		LostKeys:         []LostAsset{},
		LostCards:        []LostAsset{},
		LostTransactions: ix.lines(lost, now),
	}
	for _, k := range ix.keys {
		if k.Status != domain.KeyStatusLost {
			continue
		}
		last, err := s.lastLine(ctx, ix, repository.TransactionFilter{KeyID: k.ID, Limit: 1}, now)
		if err != nil {
			return nil, err
		}
		report.LostKeys = append(report.LostKeys, LostAsset{ID: k.ID, Number: k.KeyNumber, Label: k.Name, LastTransaction: last})
	}
	for _, c := range ix.cards {
		if c.Status != domain.CardStatusLost {
			continue
		}
		last, err := s.lastLine(ctx, ix, repository.TransactionFilter{CardID: c.ID, Limit: 1}, now)
		if err != nil {
			return nil, err
		}
		report.LostCards = append(report.LostCards, LostAsset{ID: c.ID, Number: c.CardNumber, Label: string(c.CardType), LastTransaction: last})
	}
	sortLost(report.LostKeys)
	sortLost(report.LostCards)
	return report, nil
}

func (s *ReportService) lastLine(ctx context.Context, ix *ledgerIndex, filter repository.TransactionFilter, now time.Time) (*LedgerLine, error) {
	txs, err := s.transactions.List(ctx, filter)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if len(txs) == 0 {
		return nil, nil
	}
	line := ix.line(&txs[0], now)
	return &line, nil
}

// EmployeeReport summarises one employee's custody record.
func (s *ReportService) EmployeeReport(ctx context.Context, actor domain.Actor, id string) (*EmployeeReport, error) {
	if err := requireRole(actor, domain.RoleAuditor); err != nil {
		return nil, err
	}
	now := s.clock()
	emp, err := s.employees.GetByID(ctx, id)
	if err != nil {
		return nil, apperrors.MapLookup(err, "employee", map[string]any{"employee_id": id})
	}
	ix, err := s.loadIndex(ctx)
	if err != nil {
		return nil, err
	}
	txs, err := s.transactions.List(ctx, repository.TransactionFilter{EmployeeID: id})
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	report := &EmployeeReport{
		EmployeeID:            emp.ID,
		EmployeeNumber:        emp.EmployeeNumber,
		EmployeeName:          emp.FullName(),
		Department:            ix.departmentName(emp.ID),
		DepartmentPermissions: ix.keySummaries(ix.departments[emp.DepartmentID].KeyIDs),
	}
	var completed int
	var totalHours float64
	for i := range txs {
		tx := &txs[i]
		report.Statistics.TotalTransactions++
		if tx.IsOpen() {
			report.Statistics.ActiveCheckouts++
		}
		if tx.IsOverdue(now) {
			report.Statistics.OverdueItems++
		}
		if tx.CheckInTime != nil {
			completed++
			totalHours += tx.DurationHours(now)
		}
	}
	if completed > 0 {
		report.Statistics.AvgCheckoutDuration = math.Round(totalHours/float64(completed)*100) / 100
	}
	if len(txs) > s.recentLimit {
		txs = txs[:s.recentLimit]
	}
	report.RecentTransactions = ix.lines(txs, now)
	return report, nil
}

// DepartmentReport summarises one department's grants and recent activity.
func (s *ReportService) DepartmentReport(ctx context.Context, actor domain.Actor, id string) (*DepartmentReport, error) {
	if err := requireRole(actor, domain.RoleAuditor); err != nil {
		return nil, err
	}
	now := s.clock()
	dept, err := s.departments.GetByID(ctx, id)
	if err != nil {
		return nil, apperrors.MapLookup(err, "department", map[string]any{"department_id": id})
	}
	ix, err := s.loadIndex(ctx)
	if err != nil {
		return nil, err
	}
	emps, err := s.employees.List(ctx, repository.EmployeeFilter{DepartmentID: id, Status: domain.EmployeeStatusActive})
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	recent, err := s.transactions.List(ctx, repository.TransactionFilter{DepartmentID: id, Limit: departmentReportLimit})
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	open, err := s.transactions.List(ctx, repository.TransactionFilter{DepartmentID: id, OpenOnly: true})
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return &DepartmentReport{
		DepartmentID:       dept.ID,
		DepartmentName:     dept.Name,
		EmployeeCount:      len(emps),
		KeyPermissions:     ix.keySummaries(dept.KeyIDs),
		RecentTransactions: ix.lines(recent, now),
		ActiveCheckouts:    ix.lines(open, now),
	}, nil
}

// Export returns every registry entity and the full ledger.
func (s *ReportService) Export(ctx context.Context, actor domain.Actor) (*ExportSnapshot, error) {
	if err := requireRole(actor, domain.RoleAuditor); err != nil {
		return nil, err
	}
	snap := &ExportSnapshot{GeneratedAt: s.clock()}
	var err error
	if snap.Departments, err = s.departments.List(ctx); err != nil {
		return nil, apperrors.MapError(err)
	}
	if snap.Employees, err = s.employees.List(ctx, repository.EmployeeFilter{}); err != nil {
		return nil, apperrors.MapError(err)
	}
	if snap.Keys, err = s.keys.List(ctx, repository.KeyFilter{}); err != nil {
		return nil, apperrors.MapError(err)
	}
	if snap.AccessCards, err = s.cards.List(ctx, repository.AccessCardFilter{}); err != nil {
		return nil, apperrors.MapError(err)
	}
	if snap.Transactions, err = s.transactions.List(ctx, repository.TransactionFilter{}); err != nil {
		return nil, apperrors.MapError(err)
	}
	return snap, nil
}

// ledgerIndex resolves ids on ledger entries to display names.
type ledgerIndex struct {
	employees   map[string]domain.Employee
	departments map[string]domain.Department
	keys        map[string]domain.Key
	cards       map[string]domain.AccessCard
}

func (s *ReportService) loadIndex(ctx context.Context) (*ledgerIndex, error) {
	emps, err := s.employees.List(ctx, repository.EmployeeFilter{})
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	depts, err := s.departments.List(ctx)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	keys, err := s.keys.List(ctx, repository.KeyFilter{})
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	cards, err := s.cards.List(ctx, repository.AccessCardFilter{})
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	ix := &ledgerIndex{
		employees:   make(map[string]domain.Employee, len(emps)),
		departments: make(map[string]domain.Department, len(depts)),
		keys:        make(map[string]domain.Key, len(keys)),
		cards:       make(map[string]domain.AccessCard, len(cards)),
	}
	for _, e := range emps {
		ix.employees[e.ID] = e
	}
	for _, d := range depts {
		ix.departments[d.ID] = d
	}
	for _, k := range keys {
		ix.keys[k.ID] = k
	}
	for _, c := range cards {
		ix.cards[c.ID] = c
	}
	return ix, nil
}

func (ix *ledgerIndex) employeeName(id string) string {
	if e, ok := ix.employees[id]; ok {
		return e.FullName()
	}
	return id
}

func (ix *ledgerIndex) departmentName(employeeID string) string {
	e, ok := ix.employees[employeeID]
	if !ok {
		return "unknown"
	}
	if d, ok := ix.departments[e.DepartmentID]; ok {
		return d.Name
	}
	return "unknown"
}

func (ix *ledgerIndex) assetNumber(ref domain.AssetRef) string {
	if ref.IsKey() {
		if k, ok := ix.keys[ref.ID()]; ok {
			return k.KeyNumber
		}
	} else if c, ok := ix.cards[ref.ID()]; ok {
		return c.CardNumber
	}
	return ref.ID()
}

func (ix *ledgerIndex) line(tx *domain.Transaction, now time.Time) LedgerLine {
	return LedgerLine{
		TransactionNumber:  tx.Number,
		EmployeeID:         tx.EmployeeID,
		EmployeeName:       ix.employeeName(tx.EmployeeID),
		Department:         ix.departmentName(tx.EmployeeID),
		ItemType:           tx.Asset.Kind(),
		ItemID:             tx.Asset.ID(),
		ItemNumber:         ix.assetNumber(tx.Asset),
		Purpose:            tx.Purpose,
		Status:             tx.EffectiveStatus(now),
		CheckOutTime:       tx.CheckOutTime,
		ExpectedReturnTime: tx.ExpectedReturnTime,
		CheckInTime:        tx.CheckInTime,
		DurationHours:      tx.DurationHours(now),
		IsOverdue:          tx.IsOverdue(now),
	}
}

func (ix *ledgerIndex) lines(txs []domain.Transaction, now time.Time) []LedgerLine {
	out := make([]LedgerLine, 0, len(txs))
	for i := range txs {
		out = append(out, ix.line(&txs[i], now))
	}
	return out
}

func (ix *ledgerIndex) keySummaries(ids []string) []KeySummary {
	out := make([]KeySummary, 0, len(ids))
	for _, id := range ids {
		k, ok := ix.keys[id]
		if !ok {
			continue
		}
		out = append(out, KeySummary{ID: k.ID, KeyNumber: k.KeyNumber, Name: k.Name, Location: k.Location, Status: k.Status})
	}
	return out
}

func sortLost(items []LostAsset) {
	sort.Slice(items, func(i, j int) bool { return items[i].Number < items[j].Number })
}
