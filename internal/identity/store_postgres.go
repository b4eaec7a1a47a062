// Copyright (c) 2026 Scout HQ, Inc. All rights reserved.
// Author: platform@scout-hq.io

// PostgreSQL implementations of the durable repositories (accounts, companies).
//
// # Architecture
//
// Repositories in this file are strictly separated from domain logic. They
// implement domain-defined interfaces (e.g., [UserRepository]) using the
// [pgxpool.Pool] connection manager.
//
// # Error Mapping
//
// Storage-specific errors (like pgx.ErrNoRows) are mapped to domain-friendly
// [apperr.AppError] types to avoid leaking storage implementation details.
package identity

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/scout-hq/scout/internal/platform/apperr"
	"github.com/scout-hq/scout/internal/platform/dberr"
)

// # User Repository

// PostgresUserRepository implements the UserRepository interface using pgx.
type PostgresUserRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository creates a new PostgreSQL implementation of the UserRepository.
func NewUserRepository(pool *pgxpool.Pool) *PostgresUserRepository {
	return &PostgresUserRepository{pool: pool}
}

/*
Create persists a new user record into the identity.account table.

Description: Deep-persists account metadata, ensuring timestamps are initialized
if not provided.

Parameters:
  - context: context.Context
  - user: *User (Entity to persist)

Returns:
  - error: Database constraint violations or connectivity errors
*/
func (repository *PostgresUserRepository) Create(context context.Context, user *User) error {
	const query = `
		INSERT INTO identity.account (
			id, email, passwordhash, displayname, role, companyid, mfaenabled, isactive, logincount, createdat, updatedat
		) VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8, $9, $10, $11)`

	now := time.Now()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	_, err := repository.pool.Exec(context, query,
		user.ID,
		user.Email,
		user.PasswordHash,
		user.DisplayName,
		user.Role,
		user.CompanyID,
		user.MFAEnabled,
		user.IsActive,
		user.LoginCount,
		user.CreatedAt,
		user.UpdatedAt,
	)

	if err != nil {
		return dberr.Wrap(err, "postgres_user_repo_create")
	}

	return nil
}

/*
FindByEmail retrieves a user record by their unique email address.

Description: Performs a lookup on the account table, filtering out deactivated users.

Parameters:
  - context: context.Context
  - email: string

Returns:
  - *User: Hydrated account entity
  - error: apperr.NotFound or database errors
*/
func (repository *PostgresUserRepository) FindByEmail(context context.Context, email string) (*User, error) {
	const query = `
		SELECT id, email, passwordhash, displayname, role, COALESCE(companyid::text, ''), mfaenabled, isactive, lastloginat, logincount, createdat, updatedat
		FROM identity.account
		WHERE email = $1`

	user := &User{}
	err := repository.pool.QueryRow(context, query, email).Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.DisplayName,
		&user.Role,
		&user.CompanyID,
		&user.MFAEnabled,
		&user.IsActive,
		&user.LastLoginAt,
		&user.LoginCount,
		&user.CreatedAt,
		&user.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("User")
		}
		return nil, dberr.Wrap(err, "postgres_user_repo_find_by_email")
	}

	return user, nil
}

/*
FindByID retrieves a user record by their unique ID.

Description: Primary key resolution for user accounts.

Parameters:
  - context: context.Context
  - id: string (UUIDv7)

Returns:
  - *User: Hydrated account entity
  - error: Not found or execution errors
*/
func (repository *PostgresUserRepository) FindByID(context context.Context, id string) (*User, error) {
	const query = `
		SELECT id, email, passwordhash, displayname, role, COALESCE(companyid::text, ''), mfaenabled, isactive, lastloginat, logincount, createdat, updatedat
		FROM identity.account
		WHERE id = $1`

	user := &User{}
	err := repository.pool.QueryRow(context, query, id).Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.DisplayName,
		&user.Role,
		&user.CompanyID,
		&user.MFAEnabled,
		&user.IsActive,
		&user.LastLoginAt,
		&user.LoginCount,
		&user.CreatedAt,
		&user.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("User")
		}
		return nil, dberr.Wrap(err, "postgres_user_repo_find_by_id")
	}

	return user, nil
}

/*
UpdatePassword updates only the password hash for a specific user.

Parameters:
  - context: context.Context
  - userID: string
  - newHash: string

Returns:
  - error: Execution errors
*/
func (repository *PostgresUserRepository) UpdatePassword(context context.Context, userID, newHash string) error {
	const query = `
		UPDATE identity.account
		SET passwordhash = $2, updatedat = $3
		WHERE id = $1`

	_, err := repository.pool.Exec(context, query, userID, newHash, time.Now())
	if err != nil {
		return dberr.Wrap(err, "postgres_user_repo_update_password")
	}

	return nil
}

/*
RecordLogin stamps the last successful login and bumps the login counter.

Parameters:
  - context: context.Context
  - userID: string
  - at: time.Time

Returns:
  - error: Execution errors
*/
func (repository *PostgresUserRepository) RecordLogin(context context.Context, userID string, at time.Time) error {
	const query = `
		UPDATE identity.account
		SET lastloginat = $2, logincount = logincount + 1, updatedat = $2
		WHERE id = $1`

	_, err := repository.pool.Exec(context, query, userID, at)
	if err != nil {
		return dberr.Wrap(err, "postgres_user_repo_record_login")
	}

	return nil
}

// # Company Repository

// PostgresCompanyRepository implements the CompanyRepository interface using pgx.
type PostgresCompanyRepository struct {
	pool *pgxpool.Pool
}

// NewCompanyRepository creates a new PostgreSQL implementation of the CompanyRepository.
func NewCompanyRepository(pool *pgxpool.Pool) *PostgresCompanyRepository {
	return &PostgresCompanyRepository{pool: pool}
}

/*
FindByID retrieves a company record by its unique ID.

Parameters:
  - context: context.Context
  - id: string

Returns:
  - *Company: Hydrated company entity
  - error: apperr.NotFound or execution errors
*/
func (repository *PostgresCompanyRepository) FindByID(context context.Context, id string) (*Company, error) {
	const query = `
		SELECT id, name, handle, createdat
		FROM identity.company
		WHERE id = $1`

	company := &Company{}
	err := repository.pool.QueryRow(context, query, id).Scan(
		&company.ID,
		&company.Name,
		&company.Handle,
		&company.CreatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("Company")
		}
		return nil, dberr.Wrap(err, "postgres_company_repo_find_by_id")
	}

	return company, nil
}

/*
FindByHandle retrieves a company record by its URL-safe handle.

Description: Resolves the tenant identifier supplied at login into a company.

Parameters:
  - context: context.Context
  - handle: string

Returns:
  - *Company: Hydrated company entity
  - error: apperr.NotFound or execution errors
*/
func (repository *PostgresCompanyRepository) FindByHandle(context context.Context, handle string) (*Company, error) {
	const query = `
		SELECT id, name, handle, createdat
		FROM identity.company
		WHERE handle = $1`

	company := &Company{}
	err := repository.pool.QueryRow(context, query, handle).Scan(
		&company.ID,
		&company.Name,
		&company.Handle,
		&company.CreatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("Company")
		}
		return nil, dberr.Wrap(err, "postgres_company_repo_find_by_handle")
	}

	return company, nil
}
