package domain

import "time"

// Department groups employees and carries key permission grants.
type Department struct {
	ID          string
	Name        string
	Description string
	AccessLevel int
	KeyIDs      []string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
