package model

import (
	"fmt"
	"strings"
)

// Role is the closed set of account roles.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleManager  Role = "manager"
	RoleAuditor  Role = "auditor"
	RoleAssignee Role = "assignee"
)

// Roles lists every valid role.
var Roles = []Role{RoleAdmin, RoleManager, RoleAuditor, RoleAssignee}

// ParseRole converts user input into a Role.
func ParseRole(raw string) (Role, error) {
	value := Role(strings.ToLower(strings.TrimSpace(raw)))
	for _, role := range Roles {
		if value == role {
			return role, nil
		}
	}
	return "", fmt.Errorf("unknown role %q", raw)
}

func (r Role) Valid() bool {
	_, err := ParseRole(string(r))
	return err == nil
}

func (r Role) IsAdmin() bool {
	return r == RoleAdmin
}

// CanManage reports whether the role may create and cancel tasks.
func (r Role) CanManage() bool {
	return r == RoleManager || r == RoleAdmin
}

// CanAudit reports whether the role may be picked as an auditor.
func (r Role) CanAudit() bool {
	return r == RoleAuditor || r == RoleManager || r == RoleAdmin
}
