package service

import (
	"context"
	"net/mail"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/custody-service/internal/domain"
	"github.com/spec-kit/custody-service/internal/events"
	"github.com/spec-kit/custody-service/internal/repository"
	apperrors "github.com/spec-kit/custody-service/pkg/util/errorutil"
)

// OrgService manages employees and departments.
type OrgService struct {
	departments  repository.DepartmentRepository
	employees    repository.EmployeeRepository
	transactions repository.TransactionRepository
	events       publisher
}

// OrgDependencies bundles repositories for the org service.
type OrgDependencies struct {
	Departments  repository.DepartmentRepository
	Employees    repository.EmployeeRepository
	Transactions repository.TransactionRepository
	Dispatcher   events.Dispatcher
	Logger       *zap.Logger
	Clock        Clock
}

// DepartmentInput describes a department create or full update.
type DepartmentInput struct {
	Name        string
	Description string
	AccessLevel int
}

// EmployeeInput describes a new employee.
type EmployeeInput struct {
	EmployeeNumber string
	FirstName      string
	LastName       string
	Email          string
	Phone          string
	DepartmentID   string
	Status         domain.EmployeeStatus
}

// EmployeeUpdateInput carries optional employee changes.
type EmployeeUpdateInput struct {
	FirstName    *string
	LastName     *string
	Email        *string
	Phone        *string
	DepartmentID *string
	Status       *domain.EmployeeStatus
}

// NewOrgService constructs the service.
func NewOrgService(deps OrgDependencies) *OrgService {
	return &OrgService{
		departments:  deps.Departments,
		employees:    deps.Employees,
		transactions: deps.Transactions,
		events:       publisher{dispatcher: deps.Dispatcher, logger: nopLogger(deps.Logger), clock: deps.Clock.orDefault()},
	}
}

// CreateDepartment adds a department.
func (s *OrgService) CreateDepartment(ctx context.Context, actor domain.Actor, input DepartmentInput) (*domain.Department, error) {
	if err := requireRole(actor, domain.RoleAdmin); err != nil {
		return nil, err
	}
	dept := &domain.Department{}
	if err := applyDepartment(dept, input); err != nil {
		return nil, err
	}
	if err := s.departments.Create(ctx, dept); err != nil {
		return nil, apperrors.MapError(err)
	}
	s.registryChanged(ctx, actor, "department", dept.ID, "created")
	return dept, nil
}

// UpdateDepartment replaces the department's editable fields.
func (s *OrgService) UpdateDepartment(ctx context.Context, actor domain.Actor, id string, input DepartmentInput) (*domain.Department, error) {
	if err := requireRole(actor, domain.RoleAdmin); err != nil {
		return nil, err
	}
	dept, err := s.departments.GetByID(ctx, id)
	if err != nil {
		return nil, apperrors.MapLookup(err, "department", map[string]any{"department_id": id})
	}
	if err := applyDepartment(dept, input); err != nil {
		return nil, err
	}
	if err := s.departments.Update(ctx, dept); err != nil {
		return nil, apperrors.MapError(err)
	}
	s.registryChanged(ctx, actor, "department", dept.ID, "updated")
	return dept, nil
}

func applyDepartment(dept *domain.Department, input DepartmentInput) error {
	name, err := requireText("name", input.Name, 100)
	if err != nil {
		return err
	}
	if input.AccessLevel < 0 {
		return apperrors.NewValidationError("access_level must not be negative", map[string]any{"access_level": input.AccessLevel})
	}
	dept.Name = name
	dept.Description = strings.TrimSpace(input.Description)
	dept.AccessLevel = input.AccessLevel
	return nil
}

// GetDepartment returns one department with its key grants.
func (s *OrgService) GetDepartment(ctx context.Context, actor domain.Actor, id string) (*domain.Department, error) {
	if err := requireRole(actor, domain.RoleAuditor); err != nil {
		return nil, err
	}
	dept, err := s.departments.GetByID(ctx, id)
	if err != nil {
		return nil, apperrors.MapLookup(err, "department", map[string]any{"department_id": id})
	}
	return dept, nil
}

// ListDepartments lists every department.
func (s *OrgService) ListDepartments(ctx context.Context, actor domain.Actor) ([]domain.Department, error) {
	if err := requireRole(actor, domain.RoleAuditor); err != nil {
		return nil, err
	}
	depts, err := s.departments.List(ctx)
	return depts, apperrors.MapError(err)
}

// DepartmentEmployees lists the employees of a department.
func (s *OrgService) DepartmentEmployees(ctx context.Context, actor domain.Actor, id string) ([]domain.Employee, error) {
	if _, err := s.GetDepartment(ctx, actor, id); err != nil {
		return nil, err
	}
	emps, err := s.employees.List(ctx, repository.EmployeeFilter{DepartmentID: id})
	return emps, apperrors.MapError(err)
}

// CreateEmployee adds an employee; status defaults to active.
func (s *OrgService) CreateEmployee(ctx context.Context, actor domain.Actor, input EmployeeInput) (*domain.Employee, error) {
	if err := requireRole(actor, domain.RoleAdmin); err != nil {
		return nil, err
	}
	number, err := requireText("employee_number", input.EmployeeNumber, 50)
	if err != nil {
		return nil, err
	}
	emp := &domain.Employee{EmployeeNumber: number, Status: input.Status}
	if emp.Status == "" {
		emp.Status = domain.EmployeeStatusActive
	}
	update := EmployeeUpdateInput{
		FirstName:    &input.FirstName,
		LastName:     &input.LastName,
		Email:        &input.Email,
		Phone:        &input.Phone,
		DepartmentID: &input.DepartmentID,
		Status:       &emp.Status,
	}
	if err := s.applyEmployee(ctx, emp, update); err != nil {
		return nil, err
	}
	if err := s.employees.Create(ctx, emp); err != nil {
		return nil, apperrors.MapError(err)
	}
	s.registryChanged(ctx, actor, "employee", emp.ID, "created")
	return emp, nil
}

// UpdateEmployee applies admin edits to an employee.
func (s *OrgService) UpdateEmployee(ctx context.Context, actor domain.Actor, id string, input EmployeeUpdateInput) (*domain.Employee, error) {
	if err := requireRole(actor, domain.RoleAdmin); err != nil {
		return nil, err
	}
	emp, err := s.employees.GetByID(ctx, id)
	if err != nil {
		return nil, apperrors.MapLookup(err, "employee", map[string]any{"employee_id": id})
	}
	if err := s.applyEmployee(ctx, emp, input); err != nil {
		return nil, err
	}
	if err := s.employees.Update(ctx, emp); err != nil {
		return nil, apperrors.MapError(err)
	}
	s.registryChanged(ctx, actor, "employee", emp.ID, "updated")
	return emp, nil
}

func (s *OrgService) applyEmployee(ctx context.Context, emp *domain.Employee, input EmployeeUpdateInput) error {
	if input.FirstName != nil {
		v, err := requireText("first_name", *input.FirstName, 50)
		if err != nil {
			return err
		}
		emp.FirstName = v
	}
	if input.LastName != nil {
		v, err := requireText("last_name", *input.LastName, 50)
		if err != nil {
			return err
		}
		emp.LastName = v
	}
	if input.Email != nil {
		addr, err := mail.ParseAddress(strings.TrimSpace(*input.Email))
		if err != nil {
			return apperrors.NewValidationError("invalid email", map[string]any{"email": *input.Email})
		}
		emp.Email = strings.ToLower(addr.Address)
	}
	if input.Phone != nil {
		emp.Phone = strings.TrimSpace(*input.Phone)
	}
	if input.Status != nil {
		if !input.Status.Valid() {
			return apperrors.NewValidationError("invalid employee status", map[string]any{"status": *input.Status})
		}
		emp.Status = *input.Status
	}
	if input.DepartmentID != nil {
		if *input.DepartmentID == "" {
			return apperrors.NewValidationError("department_id is required", map[string]any{"field": "department_id"})
		}
		if _, err := s.departments.GetByID(ctx, *input.DepartmentID); err != nil {
			return apperrors.MapLookup(err, "department", map[string]any{"department_id": *input.DepartmentID})
		}
		emp.DepartmentID = *input.DepartmentID
	}
	return nil
}

// GetEmployee returns one employee.
func (s *OrgService) GetEmployee(ctx context.Context, actor domain.Actor, id string) (*domain.Employee, error) {
	if err := requireRole(actor, domain.RoleAuditor); err != nil {
		return nil, err
	}
	emp, err := s.employees.GetByID(ctx, id)
	if err != nil {
		return nil, apperrors.MapLookup(err, "employee", map[string]any{"employee_id": id})
	}
	return emp, nil
}

// ListEmployees lists employees matching filter.
func (s *OrgService) ListEmployees(ctx context.Context, actor domain.Actor, filter repository.EmployeeFilter) ([]domain.Employee, error) {
	if err := requireRole(actor, domain.RoleAuditor); err != nil {
		return nil, err
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, apperrors.NewValidationError("invalid employee status", map[string]any{"status": filter.Status})
	}
	emps, err := s.employees.List(ctx, filter)
	return emps, apperrors.MapError(err)
}

// EmployeeTransactions lists an employee's ledger entries, newest first.
func (s *OrgService) EmployeeTransactions(ctx context.Context, actor domain.Actor, id string, limit int) ([]domain.Transaction, error) {
	if _, err := s.GetEmployee(ctx, actor, id); err != nil {
		return nil, err
	}
	txs, err := s.transactions.List(ctx, repository.TransactionFilter{EmployeeID: id, Limit: limit})
	return txs, apperrors.MapError(err)
}

// EmployeeActiveItems lists what the employee currently holds.
func (s *OrgService) EmployeeActiveItems(ctx context.Context, actor domain.Actor, id string) ([]domain.Transaction, error) {
	if _, err := s.GetEmployee(ctx, actor, id); err != nil {
		return nil, err
	}
	txs, err := s.transactions.List(ctx, repository.TransactionFilter{EmployeeID: id, OpenOnly: true})
	return txs, apperrors.MapError(err)
}

func (s *OrgService) registryChanged(ctx context.Context, actor domain.Actor, entity, id, action string) {
	s.events.publish(ctx, events.Event{
		Type:    events.EventRegistryChanged,
		Actor:   eventActor(actor),
		Payload: events.RegistryChangedPayload{Entity: entity, EntityID: id, Action: action},
	})
}
