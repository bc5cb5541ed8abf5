package domain

import "time"

// EmployeeStatus represents lifecycle states for an employee.
type EmployeeStatus string

const (
	EmployeeStatusActive    EmployeeStatus = "active"
	EmployeeStatusInactive  EmployeeStatus = "inactive"
	EmployeeStatusSuspended EmployeeStatus = "suspended"
)

// Valid reports whether s is a known employee status.
func (s EmployeeStatus) Valid() bool {
	switch s {
	case EmployeeStatusActive, EmployeeStatusInactive, EmployeeStatusSuspended:
		return true
	}
	return false
}

// Employee is a person who can hold keys and cards.
type Employee struct {
	ID             string
	EmployeeNumber string
	FirstName      string
	LastName       string
	Email          string
	Phone          string
	DepartmentID   string
	Status         EmployeeStatus
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// FullName joins first and last name.
func (e *Employee) FullName() string {
	return e.FirstName + " " + e.LastName
}

// IsActive reports whether the employee may check out assets.
func (e *Employee) IsActive() bool {
	return e.Status == EmployeeStatusActive
}
