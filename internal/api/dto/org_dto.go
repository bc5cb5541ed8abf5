package dto

import (
	"time"

	"github.com/spec-kit/custody-service/internal/domain"
)

// DepartmentRequest payload for create and update.
type DepartmentRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	AccessLevel int    `json:"access_level"`
}

// DepartmentResponse describes a department and the keys granted to it.
type DepartmentResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	AccessLevel int       `json:"access_level"`
	KeyIDs      []string  `json:"key_ids"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// EmployeeRequest payload for creation.
type EmployeeRequest struct {
	EmployeeNumber string                `json:"employee_number"`
	FirstName      string                `json:"first_name"`
	LastName       string                `json:"last_name"`
	Email          string                `json:"email"`
	Phone          string                `json:"phone"`
	DepartmentID   string                `json:"department_id"`
	Status         domain.EmployeeStatus `json:"status"`
}

// EmployeeUpdateRequest payload; nil fields are left untouched.
type EmployeeUpdateRequest struct {
	FirstName    *string                `json:"first_name"`
	LastName     *string                `json:"last_name"`
	Email        *string                `json:"email"`
	Phone        *string                `json:"phone"`
	DepartmentID *string                `json:"department_id"`
	Status       *domain.EmployeeStatus `json:"status"`
}

// EmployeeResponse describes an employee.
type EmployeeResponse struct {
	ID             string                `json:"id"`
	EmployeeNumber string                `json:"employee_number"`
	FirstName      string                `json:"first_name"`
	LastName       string                `json:"last_name"`
	FullName       string                `json:"full_name"`
	Email          string                `json:"email"`
	Phone          string                `json:"phone"`
	DepartmentID   string                `json:"department_id"`
	Status         domain.EmployeeStatus `json:"status"`
	CreatedAt      time.Time             `json:"created_at"`
	UpdatedAt      time.Time             `json:"updated_at"`
}

// NewDepartmentResponse converts a department.
func NewDepartmentResponse(d *domain.Department) DepartmentResponse {
	keys := d.KeyIDs
	if keys == nil {
		keys = []string{}
	}
	return DepartmentResponse{
		ID:          d.ID,
		Name:        d.Name,
		Description: d.Description,
		AccessLevel: d.AccessLevel,
		KeyIDs:      keys,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}

// NewDepartmentResponses converts a slice.
func NewDepartmentResponses(depts []domain.Department) []DepartmentResponse {
	out := make([]DepartmentResponse, 0, len(depts))
	for i := range depts {
		out = append(out, NewDepartmentResponse(&depts[i]))
	}
	return out
}

// NewEmployeeResponse converts an employee.
func NewEmployeeResponse(e *domain.Employee) EmployeeResponse {
	return EmployeeResponse{
		ID:             e.ID,
		EmployeeNumber: e.EmployeeNumber,
		FirstName:      e.FirstName,
		LastName:       e.LastName,
		FullName:       e.FullName(),
		Email:          e.Email,
		Phone:          e.Phone,
		DepartmentID:   e.DepartmentID,
		Status:         e.Status,
		CreatedAt:      e.CreatedAt,
		UpdatedAt:      e.UpdatedAt,
	}
}

// NewEmployeeResponses converts a slice.
func NewEmployeeResponses(emps []domain.Employee) []EmployeeResponse {
	out := make([]EmployeeResponse, 0, len(emps))
	for i := range emps {
		out = append(out, NewEmployeeResponse(&emps[i]))
	}
	return out
}
