// Package memory provides an in-process implementation of the repository
// interfaces. It backs the service when no POSTGRES_DSN is configured and is
// used by service tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/spec-kit/custody-service/internal/domain"
	"github.com/spec-kit/custody-service/internal/repository"
)

// Store holds every entity in maps guarded by a mutex. Writers are serialised
// through txMu so RunInTx behaves like a row lock on everything it touches.
type Store struct {
	txMu sync.Mutex
	mu   sync.RWMutex
	now  func() time.Time

	state state
}

type state struct {
	users        map[string]domain.User
	departments  map[string]domain.Department
	employees    map[string]domain.Employee
	keys         map[string]domain.Key
	cards        map[string]domain.AccessCard
	transactions map[string]domain.Transaction
	sequences    map[string]int64
}

// New returns an empty store. now may be nil, in which case time.Now is used.
func New(now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{
		now: now,
		state: state{
			users:        map[string]domain.User{},
			departments:  map[string]domain.Department{},
			employees:    map[string]domain.Employee{},
			keys:         map[string]domain.Key{},
			cards:        map[string]domain.AccessCard{},
			transactions: map[string]domain.Transaction{},
			sequences:    map[string]int64{},
		},
	}
}

type txKey struct{}

func (s *Store) inTx(ctx context.Context) bool {
	owner, ok := ctx.Value(txKey{}).(*Store)
	return ok && owner == s
}

// RunInTx runs fn with exclusive write access. Any error or panic restores the
// state captured before fn started.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.inTx(ctx) {
		return fn(ctx)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	snap := s.state.clone()
	s.mu.RUnlock()

	defer func() {
		if r := recover(); r != nil {
			s.restore(snap)
			panic(r)
		}
	}()

	if err := fn(context.WithValue(ctx, txKey{}, s)); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

func (s *Store) restore(snap state) {
	s.mu.Lock()
	s.state = snap
	s.mu.Unlock()
}

func (s *Store) write(ctx context.Context, fn func(st *state) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !s.inTx(ctx) {
		s.txMu.Lock()
		defer s.txMu.Unlock()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(&s.state)
}

func (s *Store) read(ctx context.Context, fn func(st *state) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(&s.state)
}

func (st state) clone() state {
	out := state{
		users:        make(map[string]domain.User, len(st.users)),
		departments:  make(map[string]domain.Department, len(st.departments)),
		employees:    make(map[string]domain.Employee, len(st.employees)),
		keys:         make(map[string]domain.Key, len(st.keys)),
		cards:        make(map[string]domain.AccessCard, len(st.cards)),
		transactions: make(map[string]domain.Transaction, len(st.transactions)),
		sequences:    make(map[string]int64, len(st.sequences)),
	}
	for k, v := range st.users {
		out.users[k] = v
	}
	for k, v := range st.departments {
		out.departments[k] = v
	}
	for k, v := range st.employees {
		out.employees[k] = v
	}
	for k, v := range st.keys {
		out.keys[k] = cloneKey(v)
	}
	for k, v := range st.cards {
		out.cards[k] = cloneCard(v)
	}
	for k, v := range st.transactions {
		out.transactions[k] = v
	}
	for k, v := range st.sequences {
		out.sequences[k] = v
	}
	return out
}

func cloneKey(k domain.Key) domain.Key {
	k.AuthorizedDepartmentIDs = append([]string(nil), k.AuthorizedDepartmentIDs...)
	return k
}

func cloneCard(c domain.AccessCard) domain.AccessCard {
	c.AccessZones = append([]string(nil), c.AccessZones...)
	return c
}

func uniqueViolation(constraint string) error {
	return &pgconn.PgError{Code: "23505", ConstraintName: constraint, Message: "duplicate key value violates unique constraint"}
}

func foreignKeyViolation(constraint string) error {
	return &pgconn.PgError{Code: "23503", ConstraintName: constraint, Message: "insert or update violates foreign key constraint"}
}

func sortedKeys[V any](m map[string]V) []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Users returns the user repository view.
func (s *Store) Users() repository.UserRepository { return userRepo{s} }

// Departments returns the department repository view.
func (s *Store) Departments() repository.DepartmentRepository { return departmentRepo{s} }

// Employees returns the employee repository view.
func (s *Store) Employees() repository.EmployeeRepository { return employeeRepo{s} }

// Keys returns the key repository view.
func (s *Store) Keys() repository.KeyRepository { return keyRepo{s} }

// AccessCards returns the access card repository view.
func (s *Store) AccessCards() repository.AccessCardRepository { return cardRepo{s} }

// Transactions returns the ledger repository view.
func (s *Store) Transactions() repository.TransactionRepository { return transactionRepo{s} }

type userRepo struct{ s *Store }

func (r userRepo) Create(ctx context.Context, user *domain.User) error {
	return r.s.write(ctx, func(st *state) error {
		for _, u := range st.users {
			if u.Username == user.Username {
				return uniqueViolation("users_username_key")
			}
			if u.Email == user.Email {
				return uniqueViolation("users_email_key")
			}
		}
		user.ID = uuid.NewString()
		user.CreatedAt = r.s.now()
		st.users[user.ID] = *user
		return nil
	})
}

func (r userRepo) Update(ctx context.Context, user *domain.User) error {
	return r.s.write(ctx, func(st *state) error {
		cur, ok := st.users[user.ID]
		if !ok {
			return pgx.ErrNoRows
		}
		for id, u := range st.users {
			if id != user.ID && u.Email == user.Email {
				return uniqueViolation("users_email_key")
			}
		}
		user.Username = cur.Username
		user.CreatedAt = cur.CreatedAt
		st.users[user.ID] = *user
		return nil
	})
}

func (r userRepo) GetByID(ctx context.Context, id string) (*domain.User, error) {
	var out domain.User
	err := r.s.read(ctx, func(st *state) error {
		u, ok := st.users[id]
		if !ok {
			return pgx.ErrNoRows
		}
		out = u
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r userRepo) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	var out domain.User
	err := r.s.read(ctx, func(st *state) error {
		for _, u := range st.users {
			if u.Username == username {
				out = u
				return nil
			}
		}
		return pgx.ErrNoRows
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r userRepo) List(ctx context.Context) ([]domain.User, error) {
	var out []domain.User
	err := r.s.read(ctx, func(st *state) error {
		for _, u := range st.users {
			out = append(out, u)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, err
}

type departmentRepo struct{ s *Store }

func (r departmentRepo) withKeyIDs(st *state, d domain.Department) domain.Department {
	d.KeyIDs = nil
	for _, id := range sortedKeys(st.keys) {
		if k := st.keys[id]; k.AuthorizesDepartment(d.ID) {
			d.KeyIDs = append(d.KeyIDs, id)
		}
	}
	return d
}

func (r departmentRepo) Create(ctx context.Context, dept *domain.Department) error {
	return r.s.write(ctx, func(st *state) error {
		for _, d := range st.departments {
			if d.Name == dept.Name {
				return uniqueViolation("departments_name_key")
			}
		}
		now := r.s.now()
		dept.ID = uuid.NewString()
		dept.CreatedAt, dept.UpdatedAt = now, now
		dept.KeyIDs = nil
		st.departments[dept.ID] = *dept
		return nil
	})
}

func (r departmentRepo) Update(ctx context.Context, dept *domain.Department) error {
	return r.s.write(ctx, func(st *state) error {
		cur, ok := st.departments[dept.ID]
		if !ok {
			return pgx.ErrNoRows
		}
		for id, d := range st.departments {
			if id != dept.ID && d.Name == dept.Name {
				return uniqueViolation("departments_name_key")
			}
		}
		dept.CreatedAt = cur.CreatedAt
		dept.UpdatedAt = r.s.now()
		stored := *dept
		stored.KeyIDs = nil
		st.departments[dept.ID] = stored
		return nil
	})
}

func (r departmentRepo) GetByID(ctx context.Context, id string) (*domain.Department, error) {
	var out domain.Department
	err := r.s.read(ctx, func(st *state) error {
		d, ok := st.departments[id]
		if !ok {
			return pgx.ErrNoRows
		}
		out = r.withKeyIDs(st, d)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r departmentRepo) List(ctx context.Context) ([]domain.Department, error) {
	var out []domain.Department
	err := r.s.read(ctx, func(st *state) error {
		for _, d := range st.departments {
			out = append(out, r.withKeyIDs(st, d))
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, err
}

type employeeRepo struct{ s *Store }

func (r employeeRepo) checkUnique(st *state, emp *domain.Employee) error {
	if _, ok := st.departments[emp.DepartmentID]; !ok {
		return foreignKeyViolation("employees_department_id_fkey")
	}
	for id, e := range st.employees {
		if id == emp.ID {
			continue
		}
		if e.EmployeeNumber == emp.EmployeeNumber {
			return uniqueViolation("employees_employee_number_key")
		}
		if e.Email == emp.Email {
			return uniqueViolation("employees_email_key")
		}
	}
	return nil
}

func (r employeeRepo) Create(ctx context.Context, emp *domain.Employee) error {
	return r.s.write(ctx, func(st *state) error {
		if err := r.checkUnique(st, emp); err != nil {
			return err
		}
		now := r.s.now()
		emp.ID = uuid.NewString()
		emp.CreatedAt, emp.UpdatedAt = now, now
		st.employees[emp.ID] = *emp
		return nil
	})
}

func (r employeeRepo) Update(ctx context.Context, emp *domain.Employee) error {
	return r.s.write(ctx, func(st *state) error {
		cur, ok := st.employees[emp.ID]
		if !ok {
			return pgx.ErrNoRows
		}
		if err := r.checkUnique(st, emp); err != nil {
			return err
		}
		emp.EmployeeNumber = cur.EmployeeNumber
		emp.CreatedAt = cur.CreatedAt
		emp.UpdatedAt = r.s.now()
		st.employees[emp.ID] = *emp
		return nil
	})
}

func (r employeeRepo) GetByID(ctx context.Context, id string) (*domain.Employee, error) {
	var out domain.Employee
	err := r.s.read(ctx, func(st *state) error {
		e, ok := st.employees[id]
		if !ok {
			return pgx.ErrNoRows
		}
		out = e
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r employeeRepo) List(ctx context.Context, filter repository.EmployeeFilter) ([]domain.Employee, error) {
	var out []domain.Employee
	err := r.s.read(ctx, func(st *state) error {
		for _, e := range st.employees {
			if filter.DepartmentID != "" && e.DepartmentID != filter.DepartmentID {
				continue
			}
			if filter.Status != "" && e.Status != filter.Status {
				continue
			}
			if filter.Search != "" && !containsFold(filter.Search, e.FirstName, e.LastName, e.EmployeeNumber, e.Email) {
				continue
			}
			out = append(out, e)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].LastName != out[j].LastName {
			return out[i].LastName < out[j].LastName
		}
		return out[i].FirstName < out[j].FirstName
	})
	return out, err
}

type keyRepo struct{ s *Store }

func (r keyRepo) Create(ctx context.Context, key *domain.Key) error {
	return r.s.write(ctx, func(st *state) error {
		for _, k := range st.keys {
			if k.KeyNumber == key.KeyNumber {
				return uniqueViolation("keys_key_number_key")
			}
		}
		now := r.s.now()
		key.ID = uuid.NewString()
		key.CreatedAt, key.UpdatedAt = now, now
		key.AuthorizedDepartmentIDs = nil
		st.keys[key.ID] = cloneKey(*key)
		return nil
	})
}

func (r keyRepo) Update(ctx context.Context, key *domain.Key) error {
	return r.s.write(ctx, func(st *state) error {
		cur, ok := st.keys[key.ID]
		if !ok {
			return pgx.ErrNoRows
		}
		key.KeyNumber = cur.KeyNumber
		key.CreatedAt = cur.CreatedAt
		key.UpdatedAt = r.s.now()
		key.AuthorizedDepartmentIDs = append([]string(nil), cur.AuthorizedDepartmentIDs...)
		st.keys[key.ID] = cloneKey(*key)
		return nil
	})
}

func (r keyRepo) GetByID(ctx context.Context, id string) (*domain.Key, error) {
	var out domain.Key
	err := r.s.read(ctx, func(st *state) error {
		k, ok := st.keys[id]
		if !ok {
			return pgx.ErrNoRows
		}
		out = cloneKey(k)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// GetForUpdate relies on RunInTx holding the writer lock.
func (r keyRepo) GetForUpdate(ctx context.Context, id string) (*domain.Key, error) {
	return r.GetByID(ctx, id)
}

func (r keyRepo) List(ctx context.Context, filter repository.KeyFilter) ([]domain.Key, error) {
	var out []domain.Key
	err := r.s.read(ctx, func(st *state) error {
		for _, k := range st.keys {
			if filter.Status != "" && k.Status != filter.Status {
				continue
			}
			if filter.KeyType != "" && k.KeyType != filter.KeyType {
				continue
			}
			if filter.DepartmentID != "" && !k.AuthorizesDepartment(filter.DepartmentID) {
				continue
			}
			if filter.Search != "" && !containsFold(filter.Search, k.KeyNumber, k.Name, k.Location) {
				continue
			}
			out = append(out, cloneKey(k))
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].KeyNumber < out[j].KeyNumber })
	return out, err
}

func (r keyRepo) SetPermissions(ctx context.Context, keyID string, departmentIDs []string, _ string) error {
	return r.s.write(ctx, func(st *state) error {
		k, ok := st.keys[keyID]
		if !ok {
			return foreignKeyViolation("department_key_permissions_key_id_fkey")
		}
		seen := map[string]struct{}{}
		ids := make([]string, 0, len(departmentIDs))
		for _, id := range departmentIDs {
			if _, ok := st.departments[id]; !ok {
				return foreignKeyViolation("department_key_permissions_department_id_fkey")
			}
			if _, dup := seen[id]; dup {
				return uniqueViolation("department_key_permissions_pkey")
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
		sort.Strings(ids)
		k.AuthorizedDepartmentIDs = ids
		st.keys[keyID] = k
		return nil
	})
}

type cardRepo struct{ s *Store }

func (r cardRepo) Create(ctx context.Context, card *domain.AccessCard) error {
	return r.s.write(ctx, func(st *state) error {
		for _, c := range st.cards {
			if c.CardNumber == card.CardNumber {
				return uniqueViolation("access_cards_card_number_key")
			}
		}
		if card.EmployeeID != nil {
			if _, ok := st.employees[*card.EmployeeID]; !ok {
				return foreignKeyViolation("access_cards_employee_id_fkey")
			}
		}
		now := r.s.now()
		card.ID = uuid.NewString()
		card.CreatedAt, card.UpdatedAt = now, now
		if card.IssueDate.IsZero() {
			card.IssueDate = now
		}
		st.cards[card.ID] = cloneCard(*card)
		return nil
	})
}

func (r cardRepo) Update(ctx context.Context, card *domain.AccessCard) error {
	return r.s.write(ctx, func(st *state) error {
		cur, ok := st.cards[card.ID]
		if !ok {
			return pgx.ErrNoRows
		}
		if card.EmployeeID != nil {
			if _, ok := st.employees[*card.EmployeeID]; !ok {
				return foreignKeyViolation("access_cards_employee_id_fkey")
			}
		}
		card.CardNumber = cur.CardNumber
		card.IssueDate = cur.IssueDate
		card.CreatedAt = cur.CreatedAt
		card.UpdatedAt = r.s.now()
		st.cards[card.ID] = cloneCard(*card)
		return nil
	})
}

func (r cardRepo) GetByID(ctx context.Context, id string) (*domain.AccessCard, error) {
	var out domain.AccessCard
	err := r.s.read(ctx, func(st *state) error {
		c, ok := st.cards[id]
		if !ok {
			return pgx.ErrNoRows
		}
		out = cloneCard(c)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// GetForUpdate relies on RunInTx holding the writer lock.
func (r cardRepo) GetForUpdate(ctx context.Context, id string) (*domain.AccessCard, error) {
	return r.GetByID(ctx, id)
}

func (r cardRepo) List(ctx context.Context, filter repository.AccessCardFilter) ([]domain.AccessCard, error) {
	var out []domain.AccessCard
	err := r.s.read(ctx, func(st *state) error {
		for _, c := range st.cards {
			if filter.Status != "" && c.Status != filter.Status {
				continue
			}
			if filter.CardType != "" && c.CardType != filter.CardType {
				continue
			}
			if filter.EmployeeID != "" && (c.EmployeeID == nil || *c.EmployeeID != filter.EmployeeID) {
				continue
			}
			if filter.ExpiresBefore != nil && (c.ExpiryDate == nil || c.ExpiryDate.After(*filter.ExpiresBefore)) {
				continue
			}
			if filter.Search != "" && !containsFold(filter.Search, c.CardNumber) {
				continue
			}
			out = append(out, cloneCard(c))
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CardNumber < out[j].CardNumber })
	return out, err
}

type transactionRepo struct{ s *Store }

func (r transactionRepo) NextSequence(ctx context.Context, day time.Time) (int64, error) {
	var seq int64
	err := r.s.write(ctx, func(st *state) error {
		k := domain.TransactionDay(day).Format("2006-01-02")
		st.sequences[k]++
		seq = st.sequences[k]
		return nil
	})
	return seq, err
}

func (r transactionRepo) Create(ctx context.Context, tx *domain.Transaction) error {
	if tx.Asset.IsZero() {
		return &pgconn.PgError{Code: "23514", ConstraintName: "chk_custody_single_asset", Message: "check constraint violated"}
	}
	return r.s.write(ctx, func(st *state) error {
		if _, ok := st.employees[tx.EmployeeID]; !ok {
			return foreignKeyViolation("custody_transactions_employee_id_fkey")
		}
		if tx.Asset.IsKey() {
			if _, ok := st.keys[tx.Asset.ID()]; !ok {
				return foreignKeyViolation("custody_transactions_key_id_fkey")
			}
		} else if _, ok := st.cards[tx.Asset.ID()]; !ok {
			return foreignKeyViolation("custody_transactions_access_card_id_fkey")
		}
		for _, existing := range st.transactions {
			if existing.Number == tx.Number {
				return uniqueViolation("custody_transactions_transaction_number_key")
			}
			if existing.Asset == tx.Asset && existing.IsOpen() {
				if tx.Asset.IsKey() {
					return uniqueViolation("uq_custody_open_key")
				}
				return uniqueViolation("uq_custody_open_card")
			}
		}
		tx.ID = uuid.NewString()
		tx.UpdatedAt = r.s.now()
		st.transactions[tx.ID] = *tx
		return nil
	})
}

func (r transactionRepo) Update(ctx context.Context, tx *domain.Transaction) error {
	return r.s.write(ctx, func(st *state) error {
		cur, ok := st.transactions[tx.ID]
		if !ok {
			return pgx.ErrNoRows
		}
		if cur.CheckInTime != nil && (tx.CheckInTime == nil || !tx.CheckInTime.Equal(*cur.CheckInTime)) {
			return &pgconn.PgError{Code: "23514", ConstraintName: "check_in_time_immutable", Message: "check constraint violated"}
		}
		cur.Status = tx.Status
		cur.Notes = tx.Notes
		cur.ExpectedReturnTime = tx.ExpectedReturnTime
		cur.CheckInTime = tx.CheckInTime
		cur.UpdatedAt = r.s.now()
		st.transactions[tx.ID] = cur
		tx.UpdatedAt = cur.UpdatedAt
		return nil
	})
}

func (r transactionRepo) GetByNumber(ctx context.Context, number string) (*domain.Transaction, error) {
	var out domain.Transaction
	err := r.s.read(ctx, func(st *state) error {
		for _, t := range st.transactions {
			if t.Number == number {
				out = t
				return nil
			}
		}
		return pgx.ErrNoRows
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// GetByNumberForUpdate relies on RunInTx holding the writer lock.
func (r transactionRepo) GetByNumberForUpdate(ctx context.Context, number string) (*domain.Transaction, error) {
	return r.GetByNumber(ctx, number)
}

func (r transactionRepo) FindOpenByAsset(ctx context.Context, ref domain.AssetRef) (*domain.Transaction, error) {
	var out domain.Transaction
	err := r.s.read(ctx, func(st *state) error {
		for _, t := range st.transactions {
			if t.Asset == ref && t.IsOpen() {
				out = t
				return nil
			}
		}
		return pgx.ErrNoRows
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r transactionRepo) List(ctx context.Context, filter repository.TransactionFilter) ([]domain.Transaction, error) {
	var out []domain.Transaction
	err := r.s.read(ctx, func(st *state) error {
		for _, t := range st.transactions {
			if matchTransaction(st, t, filter) {
				out = append(out, t)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CheckOutTime.Equal(out[j].CheckOutTime) {
			return out[i].CheckOutTime.After(out[j].CheckOutTime)
		}
		return out[i].Number > out[j].Number
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func matchTransaction(st *state, t domain.Transaction, f repository.TransactionFilter) bool {
	if f.EmployeeID != "" && t.EmployeeID != f.EmployeeID {
		return false
	}
	if f.DepartmentID != "" {
		if e, ok := st.employees[t.EmployeeID]; !ok || e.DepartmentID != f.DepartmentID {
			return false
		}
	}
	if f.KeyID != "" && t.Asset != domain.KeyRef(f.KeyID) {
		return false
	}
	if f.CardID != "" && t.Asset != domain.CardRef(f.CardID) {
		return false
	}
	if f.Kind != "" && t.Asset.Kind() != f.Kind {
		return false
	}
	if f.Status != "" && t.Status != f.Status {
		return false
	}
	if (f.OpenOnly || f.OverdueAt != nil) && !t.IsOpen() {
		return false
	}
	if f.OverdueAt != nil && !t.IsOverdue(*f.OverdueAt) {
		return false
	}
	if f.From != nil && t.CheckOutTime.Before(*f.From) {
		return false
	}
	if f.To != nil && !t.CheckOutTime.Before(*f.To) {
		return false
	}
	return true
}

func containsFold(needle string, haystack ...string) bool {
	needle = strings.ToLower(needle)
	for _, h := range haystack {
		if strings.Contains(strings.ToLower(h), needle) {
			return true
		}
	}
	return false
}
