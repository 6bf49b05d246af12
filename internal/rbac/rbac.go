// Package rbac gates privileged operations on the principal's role.
package rbac

import (
	"apphub/internal/apperr"
	"apphub/internal/model"
)

// Require returns nil when the principal's role ranks at or above min, and a
// forbidden security rejection otherwise. A denial is never reported as
// "not found".
func Require(p model.Principal, min model.Role) error {
	if p.Role.AtLeast(min) {
		return nil
	}
	return apperr.Security(apperr.CodeForbidden, "insufficient permissions")
}
