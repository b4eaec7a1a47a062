// Copyright (c) 2026 Scout HQ, Inc. All rights reserved.
// Author: platform@scout-hq.io

// Redis implementations of the volatile repositories (sessions, MFA
// challenges, lockout counters, reset tokens).
//
// All keys carry a TTL so expiry is enforced by the store itself. The key
// taxonomy lives in [constants] so operators can inspect and flush auth
// state by prefix.
package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/scout-hq/scout/internal/platform/apperr"
	"github.com/scout-hq/scout/internal/platform/constants"
)

// # Session Repository

// RedisSessionRepository implements SessionRepository using Redis.
//
// Each session is stored twice:
//   - auth:session:<tokenhash> holds the session JSON with the refresh TTL.
//   - auth:user_sessions:<userid> is a set of token hashes, enabling RevokeAll.
type RedisSessionRepository struct {
	client *redis.Client
}

// NewSessionRepository creates a new Redis-backed SessionRepository.
func NewSessionRepository(client *redis.Client) *RedisSessionRepository {
	return &RedisSessionRepository{client: client}
}

/*
Create persists a new session keyed by its refresh-token hash.

Description: Writes the session JSON under the token hash and registers the
hash in the user's session set so all sessions can be revoked at once.

Parameters:
  - context: context.Context
  - session: *Session
  - ttl: time.Duration

Returns:
  - error: Serialization or execution errors
*/
func (repository *RedisSessionRepository) Create(context context.Context, session *Session, ttl time.Duration) error {
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now()
	}

	payload, err := json.Marshal(sessionRecord{
		ID:         session.ID,
		UserID:     session.UserID,
		TokenHash:  session.TokenHash,
		Persistent: session.Persistent,
		UserAgent:  session.UserAgent,
		IPAddress:  session.IPAddress,
		ExpiresAt:  session.ExpiresAt,
		CreatedAt:  session.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("redis_session_marshal_failed: %w", err)
	}

	sessionKey := constants.RedisPrefixSession + session.TokenHash
	userSetKey := constants.RedisPrefixUserSessions + session.UserID

	// Write session, register it in the user's set, and keep the set alive
	// at least as long as its longest-lived session.
	pipe := repository.client.TxPipeline()
	pipe.Set(context, sessionKey, payload, ttl)
	pipe.SAdd(context, userSetKey, session.TokenHash)
	pipe.Expire(context, userSetKey, ttl)

	if _, err := pipe.Exec(context); err != nil {
		return fmt.Errorf("redis_session_create_failed: %w", err)
	}

	return nil
}

/*
FindByTokenHash returns the active session matching the given token hash.

Description: Returns apperr.Unauthorized if the session is absent, expired, or revoked.

Parameters:
  - context: context.Context
  - tokenHash: string

Returns:
  - *Session: Hydrated session metadata
  - error: apperr.Unauthorized or connectivity errors
*/
func (repository *RedisSessionRepository) FindByTokenHash(context context.Context, tokenHash string) (*Session, error) {
	sessionKey := constants.RedisPrefixSession + tokenHash

	payload, err := repository.client.Get(context, sessionKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, apperr.Unauthorized("Session not found or expired")
		}
		return nil, fmt.Errorf("redis_session_find_failed: %w", err)
	}

	var record sessionRecord
	if err := json.Unmarshal(payload, &record); err != nil {
		return nil, fmt.Errorf("redis_session_unmarshal_failed: %w", err)
	}

	return &Session{
		ID:         record.ID,
		UserID:     record.UserID,
		TokenHash:  record.TokenHash,
		Persistent: record.Persistent,
		UserAgent:  record.UserAgent,
		IPAddress:  record.IPAddress,
		ExpiresAt:  record.ExpiresAt,
		CreatedAt:  record.CreatedAt,
	}, nil
}

/*
Revoke removes a specific session, invalidating its refresh token.

Description: Idempotent. Revoking an already-absent session is not an error.

Parameters:
  - context: context.Context
  - tokenHash: string

Returns:
  - error: Execution errors
*/
func (repository *RedisSessionRepository) Revoke(context context.Context, tokenHash string) error {
	sessionKey := constants.RedisPrefixSession + tokenHash

	// Resolve the owner first so we can clean up the user's session set.
	payload, err := repository.client.Get(context, sessionKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("redis_session_revoke_lookup_failed: %w", err)
	}

	var record sessionRecord
	if err := json.Unmarshal(payload, &record); err != nil {
		return fmt.Errorf("redis_session_unmarshal_failed: %w", err)
	}

	pipe := repository.client.TxPipeline()
	pipe.Del(context, sessionKey)
	pipe.SRem(context, constants.RedisPrefixUserSessions+record.UserID, tokenHash)

	if _, err := pipe.Exec(context); err != nil {
		return fmt.Errorf("redis_session_revoke_failed: %w", err)
	}

	return nil
}

/*
RevokeAll removes every active session belonging to the userID.

Description: Security nuking of all active sessions for a user, used after
password changes and resets.

Parameters:
  - context: context.Context
  - userID: string

Returns:
  - error: Batch revocation failures
*/
func (repository *RedisSessionRepository) RevokeAll(context context.Context, userID string) error {
	userSetKey := constants.RedisPrefixUserSessions + userID

	tokenHashes, err := repository.client.SMembers(context, userSetKey).Result()
	if err != nil {
		return fmt.Errorf("redis_session_revoke_all_lookup_failed: %w", err)
	}

	pipe := repository.client.TxPipeline()
	for _, tokenHash := range tokenHashes {
		pipe.Del(context, constants.RedisPrefixSession+tokenHash)
	}
	pipe.Del(context, userSetKey)

	if _, err := pipe.Exec(context); err != nil {
		return fmt.Errorf("redis_session_revoke_all_failed: %w", err)
	}

	return nil
}

// sessionRecord is the JSON shape stored in Redis. It includes the token
// hash, which the domain entity deliberately hides from API serialization.
type sessionRecord struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	TokenHash  string    `json:"token_hash"`
	Persistent bool      `json:"persistent"`
	UserAgent  string    `json:"user_agent"`
	IPAddress  string    `json:"ip_address"`
	ExpiresAt  time.Time `json:"expires_at"`
	CreatedAt  time.Time `json:"created_at"`
}

// # MFA Challenge Repository

// RedisChallengeRepository implements ChallengeRepository using Redis.
type RedisChallengeRepository struct {
	client *redis.Client
}

// NewChallengeRepository creates a new Redis-backed ChallengeRepository.
func NewChallengeRepository(client *redis.Client) *RedisChallengeRepository {
	return &RedisChallengeRepository{client: client}
}

// challengeRecord is the JSON shape stored in Redis.
type challengeRecord struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	CodeHash     string    `json:"code_hash"`
	Remember     bool      `json:"remember"`
	AttemptsLeft int       `json:"attempts_left"`
	ExpiresAt    time.Time `json:"expires_at"`
}

/*
Create stores a new challenge for a limited duration.

Parameters:
  - context: context.Context
  - challenge: *MFAChallenge
  - ttl: time.Duration

Returns:
  - error: Serialization or execution errors
*/
func (repository *RedisChallengeRepository) Create(context context.Context, challenge *MFAChallenge, ttl time.Duration) error {
	payload, err := json.Marshal(challengeRecord{
		ID:           challenge.ID,
		UserID:       challenge.UserID,
		CodeHash:     challenge.CodeHash,
		Remember:     challenge.Remember,
		AttemptsLeft: challenge.AttemptsLeft,
		ExpiresAt:    challenge.ExpiresAt,
	})
	if err != nil {
		return fmt.Errorf("redis_challenge_marshal_failed: %w", err)
	}

	key := constants.RedisPrefixChallenge + challenge.ID
	if err := repository.client.Set(context, key, payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis_challenge_create_failed: %w", err)
	}

	return nil
}

/*
Find retrieves a pending challenge by its ID.

Description: Returns apperr.Unauthorized if the challenge is absent or expired.

Parameters:
  - context: context.Context
  - challengeID: string

Returns:
  - *MFAChallenge: Hydrated entity
  - error: apperr.Unauthorized or connectivity errors
*/
func (repository *RedisChallengeRepository) Find(context context.Context, challengeID string) (*MFAChallenge, error) {
	key := constants.RedisPrefixChallenge + challengeID

	payload, err := repository.client.Get(context, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, apperr.Unauthorized("Challenge is invalid or expired")
		}
		return nil, fmt.Errorf("redis_challenge_find_failed: %w", err)
	}

	var record challengeRecord
	if err := json.Unmarshal(payload, &record); err != nil {
		return nil, fmt.Errorf("redis_challenge_unmarshal_failed: %w", err)
	}

	return &MFAChallenge{
		ID:           record.ID,
		UserID:       record.UserID,
		CodeHash:     record.CodeHash,
		Remember:     record.Remember,
		AttemptsLeft: record.AttemptsLeft,
		ExpiresAt:    record.ExpiresAt,
	}, nil
}

/*
DecrementAttempts burns one verification attempt on the challenge.

Description: Rewrites the challenge JSON with one fewer attempt, preserving
the remaining TTL.

Parameters:
  - context: context.Context
  - challengeID: string

Returns:
  - int: Attempts remaining after the decrement
  - error: Persistence failures
*/
func (repository *RedisChallengeRepository) DecrementAttempts(context context.Context, challengeID string) (int, error) {
	challenge, err := repository.Find(context, challengeID)
	if err != nil {
		return 0, err
	}

	challenge.AttemptsLeft--
	if challenge.AttemptsLeft <= 0 {
		// Exhausted challenges are removed immediately.
		if err := repository.Delete(context, challengeID); err != nil {
			return 0, err
		}
		return 0, nil
	}

	key := constants.RedisPrefixChallenge + challengeID

	remaining, err := repository.client.TTL(context, key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis_challenge_ttl_failed: %w", err)
	}

	if err := repository.Create(context, challenge, remaining); err != nil {
		return 0, err
	}

	return challenge.AttemptsLeft, nil
}

/*
Delete removes a challenge after successful verification or exhaustion.

Parameters:
  - context: context.Context
  - challengeID: string

Returns:
  - error: Deletion failures
*/
func (repository *RedisChallengeRepository) Delete(context context.Context, challengeID string) error {
	key := constants.RedisPrefixChallenge + challengeID

	if err := repository.client.Del(context, key).Err(); err != nil {
		return fmt.Errorf("redis_challenge_delete_failed: %w", err)
	}

	return nil
}

// # Login Attempt Repository

// RedisAttemptRepository implements AttemptRepository using Redis INCR counters.
type RedisAttemptRepository struct {
	client *redis.Client
}

// NewAttemptRepository creates a new Redis-backed AttemptRepository.
func NewAttemptRepository(client *redis.Client) *RedisAttemptRepository {
	return &RedisAttemptRepository{client: client}
}

/*
Increment bumps the failure counter for a key and returns the new count.

Description: The window TTL is set on the first failure only, giving a fixed
window from the first failed attempt.

Parameters:
  - context: context.Context
  - key: string
  - window: time.Duration

Returns:
  - int: Failures recorded inside the current window
  - error: Execution errors
*/
func (repository *RedisAttemptRepository) Increment(context context.Context, key string, window time.Duration) (int, error) {
	counterKey := constants.RedisPrefixLoginAttempt + key

	count, err := repository.client.Incr(context, counterKey).Result()
	if err != nil {
		return 0, fmt.Errorf("redis_attempt_incr_failed: %w", err)
	}

	// First failure opens the window.
	if count == 1 {
		if err := repository.client.Expire(context, counterKey, window).Err(); err != nil {
			return 0, fmt.Errorf("redis_attempt_expire_failed: %w", err)
		}
	}

	return int(count), nil
}

/*
Count returns the current failure count for a key without mutating it.

Parameters:
  - context: context.Context
  - key: string

Returns:
  - int: Failures recorded inside the current window, zero if none
  - error: Retrieval failures
*/
func (repository *RedisAttemptRepository) Count(context context.Context, key string) (int, error) {
	counterKey := constants.RedisPrefixLoginAttempt + key

	count, err := repository.client.Get(context, counterKey).Int()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("redis_attempt_get_failed: %w", err)
	}

	return count, nil
}

/*
Reset clears the failure counter after a successful login.

Parameters:
  - context: context.Context
  - key: string

Returns:
  - error: Deletion failures
*/
func (repository *RedisAttemptRepository) Reset(context context.Context, key string) error {
	counterKey := constants.RedisPrefixLoginAttempt + key

	if err := repository.client.Del(context, counterKey).Err(); err != nil {
		return fmt.Errorf("redis_attempt_reset_failed: %w", err)
	}

	return nil
}

// # Reset Token Repository

// RedisResetTokenRepository implements ResetTokenRepository using Redis.
type RedisResetTokenRepository struct {
	client *redis.Client
}

// NewResetTokenRepository creates a new Redis-backed ResetTokenRepository.
func NewResetTokenRepository(client *redis.Client) *RedisResetTokenRepository {
	return &RedisResetTokenRepository{client: client}
}

/*
Set stores a reset token hash with its associated userID and TTL.

Parameters:
  - context: context.Context
  - tokenHash: string
  - userID: string
  - ttl: time.Duration

Returns:
  - error: Execution errors
*/
func (repository *RedisResetTokenRepository) Set(context context.Context, tokenHash string, userID string, ttl time.Duration) error {
	key := constants.RedisPrefixResetToken + tokenHash

	if err := repository.client.Set(context, key, userID, ttl).Err(); err != nil {
		return fmt.Errorf("redis_reset_token_set_failed: %w", err)
	}

	return nil
}

/*
Get retrieves the userID for a given reset token hash.

Description: Returns apperr.Unauthorized if the token is absent or expired.

Parameters:
  - context: context.Context
  - tokenHash: string

Returns:
  - string: Original UserID
  - error: apperr.Unauthorized or connectivity errors
*/
func (repository *RedisResetTokenRepository) Get(context context.Context, tokenHash string) (string, error) {
	key := constants.RedisPrefixResetToken + tokenHash

	userID, err := repository.client.Get(context, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", apperr.Unauthorized("Reset token is invalid or expired")
		}
		return "", fmt.Errorf("redis_reset_token_get_failed: %w", err)
	}

	return userID, nil
}

/*
Delete removes the reset token from Redis after successful use.

Parameters:
  - context: context.Context
  - tokenHash: string

Returns:
  - error: Deletion failures
*/
func (repository *RedisResetTokenRepository) Delete(context context.Context, tokenHash string) error {
	key := constants.RedisPrefixResetToken + tokenHash

	if err := repository.client.Del(context, key).Err(); err != nil {
		return fmt.Errorf("redis_reset_token_delete_failed: %w", err)
	}

	return nil
}
