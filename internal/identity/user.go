// Copyright (c) 2026 Scout HQ, Inc. All rights reserved.
// Author: platform@scout-hq.io

/*
Package identity implements the account, session, and authentication layer
of the Scout recruiting platform.

It defines the core domain entities (User, Company, Session) and the logic
for login, multi-factor verification, token rotation, and account lifecycle.

# Architecture

This layer is the "Truth" of the system. Entities defined here have no external
dependencies and encapsulate all business rules related to user identity.
*/
package identity

import (
	"time"

	"github.com/scout-hq/scout/internal/platform/sec"
)

// # Domain Entities

// User represents a registered member of the Scout platform.
//
// A user always belongs to exactly one role in the closed set defined by
// [sec.Role]. Recruiters, hiring managers, and admins additionally belong
// to a company; candidates do not.
type User struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"` // Explicitly omitted from JSON for security.
	DisplayName  string     `json:"display_name"`
	Role         sec.Role   `json:"role"`
	CompanyID    string     `json:"company_id,omitempty"`
	MFAEnabled   bool       `json:"mfa_enabled"`
	IsActive     bool       `json:"is_active"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
	LoginCount   int        `json:"login_count"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Company represents a hiring organization (tenant) on the platform.
type Company struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Handle    string    `json:"handle"` // URL-safe tenant identifier, e.g. "acme-robotics".
	CreatedAt time.Time `json:"created_at"`
}

// Session represents an active refresh-token session stored in Redis.
type Session struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	TokenHash  string    `json:"-"` // Hashed value of the refresh token. Omitted for security.
	Persistent bool      `json:"persistent"` // True when the user chose "remember me" at login.
	UserAgent  string    `json:"user_agent"`
	IPAddress  string    `json:"ip_address"`
	ExpiresAt  time.Time `json:"expires_at"`
	CreatedAt  time.Time `json:"created_at"`
}

// MFAChallenge represents a pending multi-factor verification issued at login.
//
// The one-time numeric code is stored hashed; the plain code is delivered
// out of band (email) and never persisted.
type MFAChallenge struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	CodeHash     string    `json:"-"`
	Remember     bool      `json:"remember"` // Carries the login's remember flag through the MFA hop.
	AttemptsLeft int       `json:"attempts_left"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// # Field Identifiers

// Global field names for validation and identity mapping in the authentication domain.
const (
	FieldEmail           = "email"
	FieldPassword        = "password"
	FieldTenantHandle    = "company"
	FieldRemember        = "remember"
	FieldChallenge       = "challenge"
	FieldCode            = "code"
	FieldToken           = "token"
	FieldCurrentPassword = "current_password"
	FieldNewPassword     = "new_password"
	FieldAccessToken     = "access_token"
	FieldRefreshToken    = "refresh_token"
	FieldTokenType       = "token_type"
	FieldExpiresIn       = "expires_in"
	FieldUser            = "user"
	FieldMessage         = "message"
)
