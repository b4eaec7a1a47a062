// Copyright (c) 2026 Scout HQ, Inc. All rights reserved.
// Author: platform@scout-hq.io

package sec

// # User Roles

// Role represents the authorization level granted to an account.
type Role string

const (
	// Unrestricted system access
	RoleAdmin Role = "admin"

	// Can manage job postings, assessments, and candidate pipelines
	RoleRecruiter Role = "recruiter"

	// Can review assessment results for their own requisitions
	RoleHiringManager Role = "hiring_manager"

	// Default role for assessment takers
	RoleCandidate Role = "candidate"
)

// IsValid reports whether the role belongs to the closed set of known roles.
func (r Role) IsValid() bool {
	switch r {
	case RoleAdmin, RoleRecruiter, RoleHiringManager, RoleCandidate:
		return true
	}
	return false
}

// # Role Hierarchy

// AtLeast checks if the current role meets or exceeds the required target role.
func (r Role) AtLeast(target Role) bool {
	return r.level() >= target.level()
}

// level maps a role to a numeric hierarchy level for comparison logic.
func (r Role) level() int {

	// Linear scale (10-40) allows for future intermediate roles
	switch r {
	case RoleAdmin:
		return 40
	case RoleRecruiter:
		return 30
	case RoleHiringManager:
		return 20
	case RoleCandidate:
		return 10
	default:
		return 0
	}
}

// Permissions returns the opaque permission strings granted by the role.
// Clients treat these as an unordered capability list.
func (r Role) Permissions() []string {
	switch r {
	case RoleAdmin:
		return []string{"users:read", "users:write", "assessments:read", "assessments:write", "companies:write"}
	case RoleRecruiter:
		return []string{"assessments:read", "assessments:write", "candidates:read", "candidates:write"}
	case RoleHiringManager:
		return []string{"assessments:read", "candidates:read"}
	case RoleCandidate:
		return []string{"assessments:take"}
	default:
		return nil
	}
}
