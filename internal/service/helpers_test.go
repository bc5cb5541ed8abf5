package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/spec-kit/custody-service/internal/domain"
	"github.com/spec-kit/custody-service/internal/events"
	"github.com/spec-kit/custody-service/internal/repository/memory"
)

var (
	adminActor   = domain.Actor{UserID: "u-admin", Role: domain.RoleAdmin}
	staffActor   = domain.Actor{UserID: "u-staff", Role: domain.RoleSecurityStaff}
	auditorActor = domain.Actor{UserID: "u-auditor", Role: domain.RoleAuditor}
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 14, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordedEvents struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recordedEvents) handler(_ context.Context, e events.Event) error {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
	return nil
}

func (r *recordedEvents) types() []events.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.EventType, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

// fixture wires services over a fresh memory store with department D,
// employee E in D and key K granted to D.
type fixture struct {
	store      *memory.Store
	clock      *fakeClock
	dispatcher events.Dispatcher
	recorded   *recordedEvents

	custody *CustodyService
	assets  *AssetService
	org     *OrgService

	dept *domain.Department
	emp  *domain.Employee
	key  *domain.Key
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	clock := newFakeClock()
	store := memory.New(clock.Now)
	dispatcher := events.NewInMemoryDispatcher()
	recorded := &recordedEvents{}
	for _, typ := range []events.EventType{
		events.EventAssetCheckedOut,
		events.EventAssetCheckedIn,
		events.EventAssetReportedLost,
		events.EventReturnExtended,
		events.EventRegistryChanged,
	} {
		dispatcher.Subscribe(typ, recorded.handler)
	}

	f := &fixture{
		store:      store,
		clock:      clock,
		dispatcher: dispatcher,
		recorded:   recorded,
		custody: NewCustodyService(CustodyDependencies{
			Tx:             store,
			Transactions:   store.Transactions(),
			Employees:      store.Employees(),
			Keys:           store.Keys(),
			Cards:          store.AccessCards(),
			Dispatcher:     dispatcher,
			Clock:          clock.Now,
			MaxReturnHours: 720,
		}),
		assets: NewAssetService(AssetDependencies{
			Tx:           store,
			Keys:         store.Keys(),
			Cards:        store.AccessCards(),
			Departments:  store.Departments(),
			Employees:    store.Employees(),
			Transactions: store.Transactions(),
			Dispatcher:   dispatcher,
			Clock:        clock.Now,
		}),
		org: NewOrgService(OrgDependencies{
			Departments:  store.Departments(),
			Employees:    store.Employees(),
			Transactions: store.Transactions(),
			Dispatcher:   dispatcher,
			Clock:        clock.Now,
		}),
	}

	dept, err := f.org.CreateDepartment(ctx, adminActor, DepartmentInput{Name: "Facilities", AccessLevel: 2})
	require.NoError(t, err)
	f.dept = dept

	f.emp = f.addEmployee(t, "E-1", dept.ID)

	key, err := f.assets.CreateKey(ctx, adminActor, KeyInput{
		KeyNumber:               "K-1",
		Name:                    "Plant room",
		KeyType:                 domain.KeyTypeRegular,
		AuthorizedDepartmentIDs: []string{dept.ID},
	})
	require.NoError(t, err)
	f.key = key
	return f
}

func (f *fixture) addEmployee(t *testing.T, number, departmentID string) *domain.Employee {
	t.Helper()
	emp, err := f.org.CreateEmployee(context.Background(), adminActor, EmployeeInput{
		EmployeeNumber: number,
		FirstName:      "Emp",
		LastName:       number,
		Email:          number + "@example.com",
		DepartmentID:   departmentID,
	})
	require.NoError(t, err)
	return emp
}

func (f *fixture) addCard(t *testing.T, number string, expiresIn time.Duration) *domain.AccessCard {
	t.Helper()
	expiry := f.clock.Now().Add(expiresIn)
	card, err := f.assets.CreateCard(context.Background(), adminActor, AccessCardInput{
		CardNumber: number,
		CardType:   domain.CardTypeTemporary,
		ExpiryDate: &expiry,
	})
	require.NoError(t, err)
	return card
}

func (f *fixture) checkoutKey(t *testing.T, keyID string, hours *float64) *domain.Transaction {
	t.Helper()
	tx, err := f.custody.Checkout(context.Background(), staffActor, CheckoutInput{
		EmployeeID:          f.emp.ID,
		KeyID:               &keyID,
		Purpose:             "maintenance",
		ExpectedReturnHours: hours,
	})
	require.NoError(t, err)
	return tx
}

func ptr[T any](v T) *T { return &v }
