package model

import (
	"fmt"
	"strings"
	"time"
)

// Role is a position in the access hierarchy. Roles are totally ordered:
// RoleViewer < RoleEditor < RoleAdmin. The zero value ranks below every
// role and is never granted anything.
type Role int

const (
	RoleViewer Role = iota + 1
	RoleEditor
	RoleAdmin
)

var roleNames = map[Role]string{
	RoleViewer: "viewer",
	RoleEditor: "editor",
	RoleAdmin:  "admin",
}

// String returns the persisted name of the role.
func (r Role) String() string {
	if s, ok := roleNames[r]; ok {
		return s
	}
	return "unknown"
}

// Valid reports whether r is one of the defined roles.
func (r Role) Valid() bool {
	_, ok := roleNames[r]
	return ok
}

// AtLeast reports whether r ranks at or above min.
func (r Role) AtLeast(min Role) bool {
	return r.Valid() && r >= min
}

// ParseRole maps a persisted role name to a Role.
func ParseRole(s string) (Role, error) {
	for r, name := range roleNames {
		if strings.EqualFold(strings.TrimSpace(s), name) {
			return r, nil
		}
	}
	return 0, fmt.Errorf("unknown role %q", s)
}

func (r Role) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

func (r *Role) UnmarshalText(b []byte) error {
	parsed, err := ParseRole(string(b))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// Principal is an authenticated actor. It is looked up (or created) once per
// request and treated as an immutable value afterwards.
type Principal struct {
	ID          int64     `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name,omitempty"`
	Role        Role      `json:"role"`
	CreatedAt   time.Time `json:"created_at"`
	LastLogin   time.Time `json:"last_login"`
}

// NormalizeEmail trims and lower-cases an email so it can be used as the
// unique principal key.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
