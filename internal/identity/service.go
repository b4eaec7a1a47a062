// Copyright (c) 2026 Scout HQ, Inc. All rights reserved.
// Author: platform@scout-hq.io

package identity

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/scout-hq/scout/internal/platform/apperr"
	"github.com/scout-hq/scout/internal/platform/sec"
	"github.com/scout-hq/scout/pkg/pointer"
	"github.com/scout-hq/scout/pkg/slug"
	"github.com/scout-hq/scout/pkg/uuid"
)

// # Contracts & Types

// TokenProvider defines the contract for generating security tokens.
type TokenProvider interface {
	// GenerateAccessToken creates a signed JWT string for the given user.
	//
	// # Parameters
	//   - userID: The ID of the account.
	//   - email: The email of the account.
	//   - role: The role of the account.
	//   - companyID: The tenant the account belongs to, empty for candidates.
	//   - timeToLive: The duration before the token expires.
	//
	// # Returns
	//   - A signed JWT string, or an error if signing fails.
	GenerateAccessToken(userID, email, role, companyID string, timeToLive time.Duration) (string, error)
}

// CodeSender delivers one-time MFA codes and password-reset tokens out of band.
//
// The production implementation sends email; tests inject a recorder.
type CodeSender interface {
	// SendMFACode delivers a one-time numeric login code to the user.
	SendMFACode(context context.Context, user *User, code string) error

	// SendPasswordReset delivers a password-reset token to the user.
	SendPasswordReset(context context.Context, user *User, token string) error
}

// Service implements the authentication and account lifecycle use cases.
//
// # Review Process
//
// This service is critical for security. Any changes to hashing, lockout,
// or token rotation logic must be reviewed by the security team.
type Service struct {
	userRepository       UserRepository
	companyRepository    CompanyRepository
	sessionRepository    SessionRepository
	challengeRepository  ChallengeRepository
	attemptRepository    AttemptRepository
	resetTokenRepository ResetTokenRepository
	tokenProvider        TokenProvider
	codeSender           CodeSender
}

// NewService constructs a new [Service] with necessary dependencies.
func NewService(
	userRepo UserRepository,
	companyRepo CompanyRepository,
	sessionRepo SessionRepository,
	challengeRepo ChallengeRepository,
	attemptRepo AttemptRepository,
	resetRepo ResetTokenRepository,
	tokenProv TokenProvider,
	sender CodeSender,
) *Service {
	return &Service{
		userRepository:       userRepo,
		companyRepository:    companyRepo,
		sessionRepository:    sessionRepo,
		challengeRepository:  challengeRepo,
		attemptRepository:    attemptRepo,
		resetTokenRepository: resetRepo,
		tokenProvider:        tokenProv,
		codeSender:           sender,
	}
}

// # Authentication Flow

// LoginInput defines credentials for an authentication attempt.
type LoginInput struct {
	Email        string
	Password     string
	TenantHandle string // Optional company handle; verified against the user's tenant.
	Remember     bool
	UserAgent    string
	IPAddress    string
}

// AuthSession represents a successfully established user session.
type AuthSession struct {
	AccessToken      string
	RefreshToken     string
	ExpiresIn        int // Access token lifetime in seconds.
	RefreshExpiresAt time.Time
	User             *User
	Permissions      []string
}

// LoginOutcome is the result of a login attempt.
//
// Exactly one of Session or Challenge is set: a user without MFA gets a
// session directly, an MFA-enabled user gets a challenge to answer first.
type LoginOutcome struct {
	Session     *AuthSession
	ChallengeID string
	MFAMethods  []string
}

/*
Login validates user credentials and either issues tokens or starts an MFA challenge.

Description: Enforces brute-force lockout per email and per IP, verifies the
password with a constant-time comparison, optionally verifies the tenant
handle, and branches into the MFA flow for protected accounts.

Parameters:
  - context: context.Context
  - input: LoginInput

Returns:
  - *LoginOutcome: Session tokens or a pending MFA challenge
  - error: Unauthorized, Locked, or internal failures
*/
func (service *Service) Login(context context.Context, input LoginInput) (*LoginOutcome, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))

	// Lockout check BEFORE touching credentials, so locked attackers learn nothing.
	if err := service.checkLockout(context, email, input.IPAddress); err != nil {
		return nil, err
	}

	user, err := service.userRepository.FindByEmail(context, email)

	// Generic message to prevent account enumeration.
	if err != nil {
		service.recordFailure(context, email, input.IPAddress)
		return nil, apperr.Unauthorized("Invalid login credentials")
	}

	// Constant-time comparison in bcrypt to prevent timing attacks.
	if !sec.CheckPasswordHash(input.Password, user.PasswordHash) {
		service.recordFailure(context, email, input.IPAddress)
		return nil, apperr.Unauthorized("Invalid login credentials")
	}

	if !user.IsActive {
		return nil, apperr.Forbidden("Account is deactivated")
	}

	// Tenant check: when the user supplies a company handle it must resolve
	// to the company they actually belong to.
	if input.TenantHandle != "" {
		if err := service.verifyTenant(context, user, input.TenantHandle); err != nil {
			service.recordFailure(context, email, input.IPAddress)
			return nil, err
		}
	}

	// Credentials are good; reset the failure counters.
	_ = service.attemptRepository.Reset(context, "email:"+email)
	_ = service.attemptRepository.Reset(context, "ip:"+input.IPAddress)

	// MFA branch: issue a challenge instead of tokens.
	if user.MFAEnabled {
		challengeID, err := service.issueChallenge(context, user, input.Remember)
		if err != nil {
			return nil, err
		}
		return &LoginOutcome{ChallengeID: challengeID, MFAMethods: []string{"email"}}, nil
	}

	session, err := service.establishSession(context, user, input.Remember, input.UserAgent, input.IPAddress)
	if err != nil {
		return nil, err
	}

	return &LoginOutcome{Session: session}, nil
}

/*
VerifyMFA answers a pending login challenge with a one-time code.

Description: Burns one attempt per wrong code. Exhausting all attempts or
letting the challenge expire forces a fresh login.

Parameters:
  - context: context.Context
  - challengeID: string
  - code: string
  - userAgent: string
  - ipAddress: string

Returns:
  - *AuthSession: Established session credentials
  - error: Unauthorized or storage failures
*/
func (service *Service) VerifyMFA(context context.Context, challengeID, code, userAgent, ipAddress string) (*AuthSession, error) {
	challenge, err := service.challengeRepository.Find(context, challengeID)
	if err != nil {
		return nil, apperr.Unauthorized("Challenge is invalid or expired")
	}

	if !sec.ConstantTimeEquals(sec.HashToken(code), challenge.CodeHash) {
		remaining, err := service.challengeRepository.DecrementAttempts(context, challengeID)
		if err != nil {
			return nil, fmt.Errorf("identity_service_mfa_decrement_failed: %w", err)
		}
		if remaining <= 0 {
			return nil, apperr.Unauthorized("Too many incorrect codes, please log in again")
		}
		return nil, apperr.Unauthorized("Incorrect verification code")
	}

	// Single use: the challenge is gone the moment it is answered correctly.
	_ = service.challengeRepository.Delete(context, challengeID)

	user, err := service.userRepository.FindByID(context, challenge.UserID)
	if err != nil {
		return nil, apperr.Unauthorized("User not found or suspended")
	}

	return service.establishSession(context, user, challenge.Remember, userAgent, ipAddress)
}

/*
Logout permanently revokes the session behind the given refresh token.

Description: Idempotent. A missing, expired, or already-revoked token is
treated as a successful logout.

Parameters:
  - context: context.Context
  - refreshToken: string

Returns:
  - error: Revocation failures
*/
func (service *Service) Logout(context context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}

	if err := service.sessionRepository.Revoke(context, sec.HashToken(refreshToken)); err != nil {
		return fmt.Errorf("identity_service_logout_failed: %w", err)
	}

	return nil
}

// # Session Management

/*
RefreshSession implements the Refresh Token Rotation mechanism.

Description: Verifies the existing refresh token, revokes it to prevent reuse
(replay attack mitigation), and issues a fresh pair of rotated tokens. The
new session inherits the Persistent flag chosen at the original login.

Parameters:
  - context: context.Context
  - refreshToken: string
  - userAgent: string
  - ipAddress: string

Returns:
  - *AuthSession: New session credentials
  - error: Unauthorized or storage failures
*/
func (service *Service) RefreshSession(context context.Context, refreshToken, userAgent, ipAddress string) (*AuthSession, error) {
	tokenHash := sec.HashToken(refreshToken)

	session, err := service.sessionRepository.FindByTokenHash(context, tokenHash)

	// The token is either expired, already rotated away, or completely invalid.
	if err != nil {
		return nil, apperr.Unauthorized("Invalid or expired refresh token")
	}

	// Rotation: revoke the old session to prevent replay attacks.
	if err := service.sessionRepository.Revoke(context, tokenHash); err != nil {
		return nil, fmt.Errorf("identity_service_refresh_revoke_failed: %w", err)
	}

	user, err := service.userRepository.FindByID(context, session.UserID)
	if err != nil {
		return nil, apperr.Unauthorized("User not found or suspended")
	}

	if !user.IsActive {
		return nil, apperr.Forbidden("Account is deactivated")
	}

	return service.establishSession(context, user, session.Persistent, userAgent, ipAddress)
}

/*
CurrentUser returns the account profile for an authenticated user.

Parameters:
  - context: context.Context
  - userID: string

Returns:
  - *User: Hydrated account entity
  - error: NotFound or retrieval failures
*/
func (service *Service) CurrentUser(context context.Context, userID string) (*User, error) {
	user, err := service.userRepository.FindByID(context, userID)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// # Password Management

/*
ChangePassword allows an authenticated user to update their credentials.

Description: Verifies the current password, updates the hash, and revokes
every active session to force re-login on all devices.

Parameters:
  - context: context.Context
  - userID: string
  - currentPassword: string
  - newPassword: string

Returns:
  - error: Unauthorized or storage failures
*/
func (service *Service) ChangePassword(context context.Context, userID, currentPassword, newPassword string) error {
	user, err := service.userRepository.FindByID(context, userID)
	if err != nil {
		return err
	}

	// Verify the current password before allowing the change.
	if !sec.CheckPasswordHash(currentPassword, user.PasswordHash) {
		return apperr.Unauthorized("Current password is incorrect")
	}

	hashedPassword, err := sec.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("identity_service_change_password_hash_failed: %w", err)
	}

	if err := service.userRepository.UpdatePassword(context, userID, hashedPassword); err != nil {
		return fmt.Errorf("identity_service_change_password_update_failed: %w", err)
	}

	// Security cleanup: every session is revoked, including the current one.
	_ = service.sessionRepository.RevokeAll(context, userID)

	return nil
}

/*
RequestPasswordReset initiates the forgot-password flow.

Description: Generates a secure token, stores its hash in Redis, and delivers
the plain token out of band.

NOTE: Always succeeds from the caller's perspective to prevent user enumeration.

Parameters:
  - context: context.Context
  - email: string

Returns:
  - error: Generation errors
*/
func (service *Service) RequestPasswordReset(context context.Context, email string) error {
	user, err := service.userRepository.FindByEmail(context, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return nil
	}

	token, err := sec.GenerateSecureToken(ResetTokenLength)
	if err != nil {
		return fmt.Errorf("identity_service_generate_reset_token_failed: %w", err)
	}

	// Only the hash is stored; a Redis dump must not yield usable tokens.
	if err := service.resetTokenRepository.Set(context, sec.HashToken(token), user.ID, ResetTokenTTL); err != nil {
		return fmt.Errorf("identity_service_save_reset_token_failed: %w", err)
	}

	if service.codeSender != nil {
		_ = service.codeSender.SendPasswordReset(context, user, token)
	}

	return nil
}

/*
ConfirmPasswordReset completes the forgot-password flow.

Description: Verifies the token, hashes the new password, updates the DB,
and revokes all active sessions for security cleanup.

Parameters:
  - context: context.Context
  - token: string
  - newPassword: string

Returns:
  - error: Validation or update failures
*/
func (service *Service) ConfirmPasswordReset(context context.Context, token, newPassword string) error {
	tokenHash := sec.HashToken(token)

	userID, err := service.resetTokenRepository.Get(context, tokenHash)
	if err != nil {
		return err
	}

	hashedPassword, err := sec.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("identity_service_reset_password_hash_failed: %w", err)
	}

	if err := service.userRepository.UpdatePassword(context, userID, hashedPassword); err != nil {
		return fmt.Errorf("identity_service_reset_password_update_failed: %w", err)
	}

	// Security cleanup: revoke EVERY active session for this user.
	_ = service.sessionRepository.RevokeAll(context, userID)

	// Delete the used token from Redis.
	_ = service.resetTokenRepository.Delete(context, tokenHash)

	return nil
}

// # Internal Helpers

// checkLockout rejects the attempt when either the email or the IP has
// exceeded the allowed failures inside the lockout window.
func (service *Service) checkLockout(context context.Context, email, ipAddress string) error {
	emailFailures, err := service.attemptRepository.Count(context, "email:"+email)
	if err != nil {
		return fmt.Errorf("identity_service_lockout_check_failed: %w", err)
	}
	if emailFailures >= MaxLoginAttemptsPerEmail {
		return apperr.Locked("Too many failed attempts, try again later")
	}

	ipFailures, err := service.attemptRepository.Count(context, "ip:"+ipAddress)
	if err != nil {
		return fmt.Errorf("identity_service_lockout_check_failed: %w", err)
	}
	if ipFailures >= MaxLoginAttemptsPerIP {
		return apperr.Locked("Too many failed attempts, try again later")
	}

	return nil
}

// recordFailure bumps both failure counters. Counter errors are swallowed so
// a Redis hiccup never converts a clean Unauthorized into an Internal error.
func (service *Service) recordFailure(context context.Context, email, ipAddress string) {
	_, _ = service.attemptRepository.Increment(context, "email:"+email, LockoutWindow)
	_, _ = service.attemptRepository.Increment(context, "ip:"+ipAddress, LockoutWindow)
}

// verifyTenant resolves the supplied company handle and checks membership.
func (service *Service) verifyTenant(context context.Context, user *User, tenantHandle string) error {
	normalized := slug.Make(tenantHandle)

	company, err := service.companyRepository.FindByHandle(context, normalized)
	if err != nil {
		return apperr.Unauthorized("Invalid login credentials")
	}

	if user.CompanyID == "" || user.CompanyID != company.ID {
		return apperr.Unauthorized("Invalid login credentials")
	}

	return nil
}

// issueChallenge creates an MFA challenge and delivers the one-time code.
func (service *Service) issueChallenge(context context.Context, user *User, remember bool) (string, error) {
	code, err := sec.GenerateNumericCode(MFACodeDigits)
	if err != nil {
		return "", fmt.Errorf("identity_service_mfa_code_failed: %w", err)
	}

	challenge := &MFAChallenge{
		ID:           uuid.New(),
		UserID:       user.ID,
		CodeHash:     sec.HashToken(code),
		Remember:     remember,
		AttemptsLeft: MFAMaxAttempts,
		ExpiresAt:    time.Now().Add(MFAChallengeTTL),
	}

	if err := service.challengeRepository.Create(context, challenge, MFAChallengeTTL); err != nil {
		return "", fmt.Errorf("identity_service_mfa_challenge_failed: %w", err)
	}

	if service.codeSender != nil {
		_ = service.codeSender.SendMFACode(context, user, code)
	}

	return challenge.ID, nil
}

// establishSession mints the access/refresh token pair and persists the session.
func (service *Service) establishSession(context context.Context, user *User, remember bool, userAgent, ipAddress string) (*AuthSession, error) {

	// Short-lived, stateless access token.
	accessToken, err := service.tokenProvider.GenerateAccessToken(user.ID, user.Email, string(user.Role), user.CompanyID, AccessTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("identity_service_token_generation_failed: %w", err)
	}

	// Opaque, long-lived refresh token.
	refreshToken, err := sec.GenerateSecureToken(RefreshTokenLength)
	if err != nil {
		return nil, fmt.Errorf("identity_service_refresh_token_failed: %w", err)
	}

	refreshTTL := RefreshTokenTTL
	if remember {
		refreshTTL = RememberMeRefreshTTL
	}

	now := time.Now()
	expiresAt := now.Add(refreshTTL)
	session := &Session{
		ID:         uuid.New(),
		UserID:     user.ID,
		TokenHash:  sec.HashToken(refreshToken),
		Persistent: remember,
		UserAgent:  userAgent,
		IPAddress:  ipAddress,
		ExpiresAt:  expiresAt,
		CreatedAt:  now,
	}

	if err := service.sessionRepository.Create(context, session, refreshTTL); err != nil {
		return nil, fmt.Errorf("identity_service_session_creation_failed: %w", err)
	}

	// Best-effort login bookkeeping.
	if err := service.userRepository.RecordLogin(context, user.ID, now); err == nil {
		user.LastLoginAt = pointer.To(now)
		user.LoginCount++
	}

	return &AuthSession{
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		ExpiresIn:        int(AccessTokenTTL.Seconds()),
		RefreshExpiresAt: expiresAt,
		User:             user,
		Permissions:      user.Role.Permissions(),
	}, nil
}
