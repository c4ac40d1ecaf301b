package models

import "time"

// User is a durable identity keyed by its display name.
type User struct {
	ID        string
	Name      string
	CreatedAt time.Time
	UpdatedAt *time.Time
}
