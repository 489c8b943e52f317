package domain

import (
	"strings"
	"time"
)

// Role names an actor capability supplied by the identity provider.
type Role string

const (
	RoleClient       Role = "client"
	RolePhotographer Role = "photographer"
	RoleRetoucher    Role = "retoucher"
	RoleAdmin        Role = "admin"
)

// Actor is the authenticated principal initiating an operation.
type Actor struct {
	ID    string
	Roles []Role
}

// HasRole reports whether the actor carries the role (case-insensitive).
func (a Actor) HasRole(role Role) bool {
	for _, r := range a.Roles {
		if strings.EqualFold(string(r), string(role)) {
			return true
		}
	}
	return false
}

// IsAdmin is shorthand for HasRole(RoleAdmin).
func (a Actor) IsAdmin() bool {
	return a.HasRole(RoleAdmin)
}

// NotificationIntent asks an external notifier to tell a user something.
type NotificationIntent struct {
	ID         string
	UserID     string
	Type       string
	Message    string
	Order      *OrderRef
	Metadata   map[string]string
	OccurredAt time.Time
}
