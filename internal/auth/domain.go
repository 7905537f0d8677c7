package auth

import "time"

// Operator represents a workshop account allowed to move stock.
type Operator struct {
	ID           int64
	Email        string
	Name         string
	PasswordHash string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
