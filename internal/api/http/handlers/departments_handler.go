package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/custody-service/internal/api/dto"
	"github.com/spec-kit/custody-service/internal/service"
)

// DepartmentsHandler manages departments.
type DepartmentsHandler struct {
	org *service.OrgService
}

// NewDepartmentsHandler constructs handler.
func NewDepartmentsHandler(org *service.OrgService) *DepartmentsHandler {
	return &DepartmentsHandler{org: org}
}

// List GET /departments.
func (h *DepartmentsHandler) List(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	depts, err := h.org.ListDepartments(c.UserContext(), actor)
	if err != nil {
		return err
	}
	return data(c, dto.NewDepartmentResponses(depts))
}

// Get GET /departments/:id.
func (h *DepartmentsHandler) Get(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	dept, err := h.org.GetDepartment(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	return data(c, dto.NewDepartmentResponse(dept))
}

// Create POST /departments.
func (h *DepartmentsHandler) Create(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req dto.DepartmentRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	dept, err := h.org.CreateDepartment(c.UserContext(), actor, service.DepartmentInput{
		Name:        req.Name,
		Description: req.Description,
		AccessLevel: req.AccessLevel,
	})
	if err != nil {
		return err
	}
	return created(c, dto.NewDepartmentResponse(dept))
}

// Update PUT /departments/:id.
func (h *DepartmentsHandler) Update(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req dto.DepartmentRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	dept, err := h.org.UpdateDepartment(c.UserContext(), actor, c.Params("id"), service.DepartmentInput{
		Name:        req.Name,
		Description: req.Description,
		AccessLevel: req.AccessLevel,
	})
	if err != nil {
		return err
	}
	return data(c, dto.NewDepartmentResponse(dept))
}

// Employees GET /departments/:id/employees.
func (h *DepartmentsHandler) Employees(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	emps, err := h.org.DepartmentEmployees(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	return data(c, dto.NewEmployeeResponses(emps))
}
