package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/custody-service/internal/api/dto"
	"github.com/spec-kit/custody-service/internal/domain"
	"github.com/spec-kit/custody-service/internal/repository"
	"github.com/spec-kit/custody-service/internal/service"
)

// EmployeesHandler manages employees.
type EmployeesHandler struct {
	org   *service.OrgService
	clock Clock
}

// NewEmployeesHandler constructs handler.
func NewEmployeesHandler(org *service.OrgService, clock Clock) *EmployeesHandler {
	return &EmployeesHandler{org: org, clock: clock}
}

// List GET /employees.
func (h *EmployeesHandler) List(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	emps, err := h.org.ListEmployees(c.UserContext(), actor, repository.EmployeeFilter{
		DepartmentID: c.Query("department_id"),
		Status:       domain.EmployeeStatus(c.Query("status")),
		Search:       c.Query("search"),
	})
	if err != nil {
		return err
	}
	return data(c, dto.NewEmployeeResponses(emps))
}

// Get GET /employees/:id.
func (h *EmployeesHandler) Get(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	emp, err := h.org.GetEmployee(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	return data(c, dto.NewEmployeeResponse(emp))
}

// Create POST /employees.
func (h *EmployeesHandler) Create(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req dto.EmployeeRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	emp, err := h.org.CreateEmployee(c.UserContext(), actor, service.EmployeeInput{
		EmployeeNumber: req.EmployeeNumber,
		FirstName:      req.FirstName,
		LastName:       req.LastName,
		Email:          req.Email,
		Phone:          req.Phone,
		DepartmentID:   req.DepartmentID,
		Status:         req.Status,
	})
	if err != nil {
		return err
	}
	return created(c, dto.NewEmployeeResponse(emp))
}

// Update PUT /employees/:id.
func (h *EmployeesHandler) Update(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req dto.EmployeeUpdateRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	emp, err := h.org.UpdateEmployee(c.UserContext(), actor, c.Params("id"), service.EmployeeUpdateInput{
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Email:        req.Email,
		Phone:        req.Phone,
		DepartmentID: req.DepartmentID,
		Status:       req.Status,
	})
	if err != nil {
		return err
	}
	return data(c, dto.NewEmployeeResponse(emp))
}

// Transactions GET /employees/:id/transactions.
func (h *EmployeesHandler) Transactions(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	txs, err := h.org.EmployeeTransactions(c.UserContext(), actor, c.Params("id"), parseInt(c.Query("limit"), 50))
	if err != nil {
		return err
	}
	return data(c, dto.NewTransactionResponses(txs, h.clock.now()))
}

// ActiveItems GET /employees/:id/active-items.
func (h *EmployeesHandler) ActiveItems(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	txs, err := h.org.EmployeeActiveItems(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	return data(c, dto.NewTransactionResponses(txs, h.clock.now()))
}
