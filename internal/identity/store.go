// Copyright (c) 2026 Scout HQ, Inc. All rights reserved.
// Author: platform@scout-hq.io

package identity

import (
	"context"
	"time"
)

// # User Data Access

// UserRepository defines the data access contract for user accounts.
type UserRepository interface {

	/*
		FindByID returns the account with the given ID.

		Parameters:
		  - context: context.Context
		  - id: string

		Returns:
		  - *User: Hydrated entity
		  - error: Database retrieval failures
	*/
	FindByID(context context.Context, id string) (*User, error)

	/*
		FindByEmail returns the account with the given email.

		Parameters:
		  - context: context.Context
		  - email: string

		Returns:
		  - *User: Hydrated entity
		  - error: Database retrieval failures
	*/
	FindByEmail(context context.Context, email string) (*User, error)

	/*
		Create persists a brand-new user account to the storage.

		Parameters:
		  - context: context.Context
		  - user: *User

		Returns:
		  - error: Persistence failures
	*/
	Create(context context.Context, user *User) error

	/*
		UpdatePassword replaces only the user's password hash.

		Parameters:
		  - context: context.Context
		  - userID: string
		  - newHash: string

		Returns:
		  - error: Persistence failures
	*/
	UpdatePassword(context context.Context, userID, newHash string) error

	/*
		RecordLogin stamps the last successful login and bumps the login counter.

		Parameters:
		  - context: context.Context
		  - userID: string
		  - at: time.Time

		Returns:
		  - error: Persistence failures
	*/
	RecordLogin(context context.Context, userID string, at time.Time) error
}

// # Company Data Access

// CompanyRepository defines the data access contract for hiring organizations.
type CompanyRepository interface {

	/*
		FindByID returns the company with the given ID.

		Parameters:
		  - context: context.Context
		  - id: string

		Returns:
		  - *Company: Hydrated entity
		  - error: Database retrieval failures
	*/
	FindByID(context context.Context, id string) (*Company, error)

	/*
		FindByHandle returns the company with the given URL-safe handle.

		Parameters:
		  - context: context.Context
		  - handle: string

		Returns:
		  - *Company: Hydrated entity
		  - error: Database retrieval failures
	*/
	FindByHandle(context context.Context, handle string) (*Company, error)
}

// # Session Data Access

// SessionRepository defines the data access contract for refresh-token sessions.
//
// Sessions are volatile by nature: every write carries a TTL and expiry is
// enforced by the store, not by a cleanup job.
type SessionRepository interface {

	/*
		Create persists a new session keyed by its refresh-token hash.

		Parameters:
		  - context: context.Context
		  - session: *Session
		  - ttl: time.Duration

		Returns:
		  - error: Persistence failures
	*/
	Create(context context.Context, session *Session, ttl time.Duration) error

	/*
		FindByTokenHash returns the active session matching the given token hash.

		Parameters:
		  - context: context.Context
		  - tokenHash: string

		Returns:
		  - *Session: Hydrated entity
		  - error: Retrieval failures, including expired or revoked sessions
	*/
	FindByTokenHash(context context.Context, tokenHash string) (*Session, error)

	/*
		Revoke removes a specific session, invalidating its refresh token.

		Parameters:
		  - context: context.Context
		  - tokenHash: string

		Returns:
		  - error: Persistence failures
	*/
	Revoke(context context.Context, tokenHash string) error

	/*
		RevokeAll removes every active session belonging to the userID.

		Parameters:
		  - context: context.Context
		  - userID: string

		Returns:
		  - error: Persistence failures
	*/
	RevokeAll(context context.Context, userID string) error
}

// # Volatile Data Access

// ChallengeRepository defines the contract for pending MFA challenges.
type ChallengeRepository interface {

	/*
		Create stores a new challenge for a limited duration.

		Parameters:
		  - context: context.Context
		  - challenge: *MFAChallenge
		  - ttl: time.Duration

		Returns:
		  - error: Persistence failures
	*/
	Create(context context.Context, challenge *MFAChallenge, ttl time.Duration) error

	/*
		Find retrieves a pending challenge by its ID.

		Parameters:
		  - context: context.Context
		  - challengeID: string

		Returns:
		  - *MFAChallenge: Hydrated entity
		  - error: Retrieval failures, including expired challenges
	*/
	Find(context context.Context, challengeID string) (*MFAChallenge, error)

	/*
		DecrementAttempts burns one verification attempt on the challenge.

		Parameters:
		  - context: context.Context
		  - challengeID: string

		Returns:
		  - int: Attempts remaining after the decrement
		  - error: Persistence failures
	*/
	DecrementAttempts(context context.Context, challengeID string) (int, error)

	/*
		Delete removes a challenge after successful verification or exhaustion.

		Parameters:
		  - context: context.Context
		  - challengeID: string

		Returns:
		  - error: Persistence failures
	*/
	Delete(context context.Context, challengeID string) error
}

// AttemptRepository defines the contract for brute-force lockout counters.
type AttemptRepository interface {

	/*
		Increment bumps the failure counter for a key and returns the new count.
		The window TTL is set on the first failure only.

		Parameters:
		  - context: context.Context
		  - key: string
		  - window: time.Duration

		Returns:
		  - int: Failures recorded inside the current window
		  - error: Persistence failures
	*/
	Increment(context context.Context, key string, window time.Duration) (int, error)

	/*
		Count returns the current failure count for a key without mutating it.

		Parameters:
		  - context: context.Context
		  - key: string

		Returns:
		  - int: Failures recorded inside the current window
		  - error: Retrieval failures
	*/
	Count(context context.Context, key string) (int, error)

	/*
		Reset clears the failure counter after a successful login.

		Parameters:
		  - context: context.Context
		  - key: string

		Returns:
		  - error: Persistence failures
	*/
	Reset(context context.Context, key string) error
}

// ResetTokenRepository defines the contract for storing volatile password reset tokens.
type ResetTokenRepository interface {

	/*
		Set stores a reset token associated with a userID for a limited duration.

		Parameters:
		  - context: context.Context
		  - tokenHash: string
		  - userID: string
		  - ttl: time.Duration

		Returns:
		  - error: Persistence failures
	*/
	Set(context context.Context, tokenHash string, userID string, ttl time.Duration) error

	/*
		Get retrieves the userID associated with a given reset token hash.

		Parameters:
		  - context: context.Context
		  - tokenHash: string

		Returns:
		  - string: UserID
		  - error: Retrieval failures
	*/
	Get(context context.Context, tokenHash string) (string, error)

	/*
		Delete removes a reset token after successful use.

		Parameters:
		  - context: context.Context
		  - tokenHash: string

		Returns:
		  - error: Persistence failures
	*/
	Delete(context context.Context, tokenHash string) error
}
