// Copyright (c) 2026 Scout HQ, Inc. All rights reserved.
// Author: platform@scout-hq.io

package identity

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scout-hq/scout/internal/platform/apperr"
	"github.com/scout-hq/scout/internal/platform/sec"
	"github.com/scout-hq/scout/pkg/uuid"
)

// # In-Memory Fakes

type fakeUserRepo struct {
	mu    sync.Mutex
	users map[string]*User // keyed by ID
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: map[string]*User{}}
}

func (r *fakeUserRepo) FindByID(_ context.Context, id string) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if user, ok := r.users[id]; ok {
		copied := *user
		return &copied, nil
	}
	return nil, apperr.NotFound("User")
}

func (r *fakeUserRepo) FindByEmail(_ context.Context, email string) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, user := range r.users {
		if user.Email == email {
			copied := *user
			return &copied, nil
		}
	}
	return nil, apperr.NotFound("User")
}

func (r *fakeUserRepo) Create(_ context.Context, user *User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *user
	r.users[user.ID] = &copied
	return nil
}

func (r *fakeUserRepo) UpdatePassword(_ context.Context, userID, newHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if user, ok := r.users[userID]; ok {
		user.PasswordHash = newHash
	}
	return nil
}

func (r *fakeUserRepo) RecordLogin(_ context.Context, userID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if user, ok := r.users[userID]; ok {
		stamped := at
		user.LastLoginAt = &stamped
		user.LoginCount++
	}
	return nil
}

type fakeCompanyRepo struct {
	companies map[string]*Company // keyed by handle
}

func (r *fakeCompanyRepo) FindByID(_ context.Context, id string) (*Company, error) {
	for _, company := range r.companies {
		if company.ID == id {
			return company, nil
		}
	}
	return nil, apperr.NotFound("Company")
}

func (r *fakeCompanyRepo) FindByHandle(_ context.Context, handle string) (*Company, error) {
	if company, ok := r.companies[handle]; ok {
		return company, nil
	}
	return nil, apperr.NotFound("Company")
}

type fakeSessionRepo struct {
	mu       sync.Mutex
	sessions map[string]*Session // keyed by token hash
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{sessions: map[string]*Session{}}
}

func (r *fakeSessionRepo) Create(_ context.Context, session *Session, _ time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *session
	r.sessions[session.TokenHash] = &copied
	return nil
}

func (r *fakeSessionRepo) FindByTokenHash(_ context.Context, tokenHash string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if session, ok := r.sessions[tokenHash]; ok {
		copied := *session
		return &copied, nil
	}
	return nil, apperr.Unauthorized("Session not found or expired")
}

func (r *fakeSessionRepo) Revoke(_ context.Context, tokenHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, tokenHash)
	return nil
}

func (r *fakeSessionRepo) RevokeAll(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for hash, session := range r.sessions {
		if session.UserID == userID {
			delete(r.sessions, hash)
		}
	}
	return nil
}

func (r *fakeSessionRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

type fakeChallengeRepo struct {
	mu         sync.Mutex
	challenges map[string]*MFAChallenge
}

func newFakeChallengeRepo() *fakeChallengeRepo {
	return &fakeChallengeRepo{challenges: map[string]*MFAChallenge{}}
}

func (r *fakeChallengeRepo) Create(_ context.Context, challenge *MFAChallenge, _ time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *challenge
	r.challenges[challenge.ID] = &copied
	return nil
}

func (r *fakeChallengeRepo) Find(_ context.Context, challengeID string) (*MFAChallenge, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if challenge, ok := r.challenges[challengeID]; ok {
		copied := *challenge
		return &copied, nil
	}
	return nil, apperr.Unauthorized("Challenge is invalid or expired")
}

func (r *fakeChallengeRepo) DecrementAttempts(_ context.Context, challengeID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	challenge, ok := r.challenges[challengeID]
	if !ok {
		return 0, apperr.Unauthorized("Challenge is invalid or expired")
	}
	challenge.AttemptsLeft--
	if challenge.AttemptsLeft <= 0 {
		delete(r.challenges, challengeID)
		return 0, nil
	}
	return challenge.AttemptsLeft, nil
}

func (r *fakeChallengeRepo) Delete(_ context.Context, challengeID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.challenges, challengeID)
	return nil
}

type fakeAttemptRepo struct {
	mu     sync.Mutex
	counts map[string]int
}

func newFakeAttemptRepo() *fakeAttemptRepo {
	return &fakeAttemptRepo{counts: map[string]int{}}
}

func (r *fakeAttemptRepo) Increment(_ context.Context, key string, _ time.Duration) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts[key]++
	return r.counts[key], nil
}

func (r *fakeAttemptRepo) Count(_ context.Context, key string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[key], nil
}

func (r *fakeAttemptRepo) Reset(_ context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.counts, key)
	return nil
}

type fakeResetTokenRepo struct {
	mu     sync.Mutex
	tokens map[string]string // tokenHash -> userID
}

func newFakeResetTokenRepo() *fakeResetTokenRepo {
	return &fakeResetTokenRepo{tokens: map[string]string{}}
}

func (r *fakeResetTokenRepo) Set(_ context.Context, tokenHash, userID string, _ time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens[tokenHash] = userID
	return nil
}

func (r *fakeResetTokenRepo) Get(_ context.Context, tokenHash string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if userID, ok := r.tokens[tokenHash]; ok {
		return userID, nil
	}
	return "", apperr.Unauthorized("Reset token is invalid or expired")
}

func (r *fakeResetTokenRepo) Delete(_ context.Context, tokenHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tokens, tokenHash)
	return nil
}

type fakeTokenProvider struct{}

func (p *fakeTokenProvider) GenerateAccessToken(userID, email, role, companyID string, _ time.Duration) (string, error) {
	return strings.Join([]string{"jwt", userID, email, role, companyID, uuid.New()}, "."), nil
}

type fakeCodeSender struct {
	mu         sync.Mutex
	mfaCodes   []string
	resetLinks []string
}

func (s *fakeCodeSender) SendMFACode(_ context.Context, _ *User, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mfaCodes = append(s.mfaCodes, code)
	return nil
}

func (s *fakeCodeSender) SendPasswordReset(_ context.Context, _ *User, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLinks = append(s.resetLinks, token)
	return nil
}

func (s *fakeCodeSender) lastMFACode() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.mfaCodes) == 0 {
		return ""
	}
	return s.mfaCodes[len(s.mfaCodes)-1]
}

func (s *fakeCodeSender) lastResetToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.resetLinks) == 0 {
		return ""
	}
	return s.resetLinks[len(s.resetLinks)-1]
}

// # Test Harness

type serviceFixture struct {
	service    *Service
	users      *fakeUserRepo
	sessions   *fakeSessionRepo
	challenges *fakeChallengeRepo
	attempts   *fakeAttemptRepo
	resets     *fakeResetTokenRepo
	sender     *fakeCodeSender
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()

	fixture := &serviceFixture{
		users:      newFakeUserRepo(),
		sessions:   newFakeSessionRepo(),
		challenges: newFakeChallengeRepo(),
		attempts:   newFakeAttemptRepo(),
		resets:     newFakeResetTokenRepo(),
		sender:     &fakeCodeSender{},
	}

	companies := &fakeCompanyRepo{companies: map[string]*Company{
		"acme-robotics": {ID: "company-1", Name: "ACME Robotics", Handle: "acme-robotics"},
	}}

	fixture.service = NewService(
		fixture.users,
		companies,
		fixture.sessions,
		fixture.challenges,
		fixture.attempts,
		fixture.resets,
		&fakeTokenProvider{},
		fixture.sender,
	)

	return fixture
}

func (f *serviceFixture) seedUser(t *testing.T, email, password string, mutate func(*User)) *User {
	t.Helper()

	hash, err := sec.HashPassword(password)
	require.NoError(t, err)

	user := &User{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: hash,
		DisplayName:  "Test User",
		Role:         sec.RoleRecruiter,
		CompanyID:    "company-1",
		IsActive:     true,
	}
	if mutate != nil {
		mutate(user)
	}

	require.NoError(t, f.users.Create(context.Background(), user))
	return user
}

// # Login

func TestService_Login_Success(t *testing.T) {
	fixture := newServiceFixture(t)
	fixture.seedUser(t, "jordan@acme.test", "correct horse battery", nil)

	outcome, err := fixture.service.Login(context.Background(), LoginInput{
		Email:     "jordan@acme.test",
		Password:  "correct horse battery",
		IPAddress: "203.0.113.7",
	})

	require.NoError(t, err)
	require.NotNil(t, outcome.Session)
	assert.Empty(t, outcome.ChallengeID)
	assert.NotEmpty(t, outcome.Session.AccessToken)
	assert.NotEmpty(t, outcome.Session.RefreshToken)
	assert.Equal(t, int(AccessTokenTTL.Seconds()), outcome.Session.ExpiresIn)
	assert.Contains(t, outcome.Session.Permissions, "candidates:write")
	assert.Equal(t, 1, fixture.sessions.count())
}

func TestService_Login_EmailIsNormalized(t *testing.T) {
	fixture := newServiceFixture(t)
	fixture.seedUser(t, "jordan@acme.test", "correct horse battery", nil)

	outcome, err := fixture.service.Login(context.Background(), LoginInput{
		Email:    "  Jordan@Acme.Test ",
		Password: "correct horse battery",
	})

	require.NoError(t, err)
	require.NotNil(t, outcome.Session)
}

func TestService_Login_WrongPassword(t *testing.T) {
	fixture := newServiceFixture(t)
	fixture.seedUser(t, "jordan@acme.test", "correct horse battery", nil)

	_, err := fixture.service.Login(context.Background(), LoginInput{
		Email:    "jordan@acme.test",
		Password: "wrong",
	})

	require.Error(t, err)
	appError := apperr.As(err)
	require.NotNil(t, appError)
	assert.Equal(t, 401, appError.HTTPStatus)
}

func TestService_Login_UnknownEmailSameError(t *testing.T) {
	fixture := newServiceFixture(t)
	fixture.seedUser(t, "jordan@acme.test", "correct horse battery", nil)

	_, knownErr := fixture.service.Login(context.Background(), LoginInput{
		Email:    "jordan@acme.test",
		Password: "wrong",
	})
	_, unknownErr := fixture.service.Login(context.Background(), LoginInput{
		Email:    "nobody@acme.test",
		Password: "wrong",
	})

	// Identical messages so attackers cannot enumerate accounts.
	assert.Equal(t, knownErr.Error(), unknownErr.Error())
}

func TestService_Login_LockoutAfterRepeatedFailures(t *testing.T) {
	fixture := newServiceFixture(t)
	fixture.seedUser(t, "jordan@acme.test", "correct horse battery", nil)

	for i := 0; i < MaxLoginAttemptsPerEmail; i++ {
		_, err := fixture.service.Login(context.Background(), LoginInput{
			Email:     "jordan@acme.test",
			Password:  "wrong",
			IPAddress: "203.0.113.7",
		})
		require.Error(t, err)
	}

	// Even the correct password is rejected while the account is locked.
	_, err := fixture.service.Login(context.Background(), LoginInput{
		Email:     "jordan@acme.test",
		Password:  "correct horse battery",
		IPAddress: "203.0.113.7",
	})

	require.Error(t, err)
	appError := apperr.As(err)
	require.NotNil(t, appError)
	assert.Equal(t, 423, appError.HTTPStatus)
}

func TestService_Login_SuccessResetsFailureCounter(t *testing.T) {
	fixture := newServiceFixture(t)
	fixture.seedUser(t, "jordan@acme.test", "correct horse battery", nil)

	for i := 0; i < MaxLoginAttemptsPerEmail-1; i++ {
		_, _ = fixture.service.Login(context.Background(), LoginInput{
			Email:    "jordan@acme.test",
			Password: "wrong",
		})
	}

	_, err := fixture.service.Login(context.Background(), LoginInput{
		Email:    "jordan@acme.test",
		Password: "correct horse battery",
	})
	require.NoError(t, err)

	count, err := fixture.attempts.Count(context.Background(), "email:jordan@acme.test")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestService_Login_DeactivatedAccount(t *testing.T) {
	fixture := newServiceFixture(t)
	fixture.seedUser(t, "jordan@acme.test", "correct horse battery", func(u *User) {
		u.IsActive = false
	})

	_, err := fixture.service.Login(context.Background(), LoginInput{
		Email:    "jordan@acme.test",
		Password: "correct horse battery",
	})

	require.Error(t, err)
	appError := apperr.As(err)
	require.NotNil(t, appError)
	assert.Equal(t, 403, appError.HTTPStatus)
}

// # Tenant Verification

func TestService_Login_TenantMatch(t *testing.T) {
	fixture := newServiceFixture(t)
	fixture.seedUser(t, "jordan@acme.test", "correct horse battery", nil)

	// Display-form handle is normalized before lookup.
	outcome, err := fixture.service.Login(context.Background(), LoginInput{
		Email:        "jordan@acme.test",
		Password:     "correct horse battery",
		TenantHandle: "ACME Robotics",
	})

	require.NoError(t, err)
	require.NotNil(t, outcome.Session)
}

func TestService_Login_TenantMismatch(t *testing.T) {
	fixture := newServiceFixture(t)
	fixture.seedUser(t, "jordan@acme.test", "correct horse battery", func(u *User) {
		u.CompanyID = "some-other-company"
	})

	_, err := fixture.service.Login(context.Background(), LoginInput{
		Email:        "jordan@acme.test",
		Password:     "correct horse battery",
		TenantHandle: "acme-robotics",
	})

	require.Error(t, err)
	appError := apperr.As(err)
	require.NotNil(t, appError)
	assert.Equal(t, 401, appError.HTTPStatus)
}

// # MFA

func TestService_Login_MFABranch(t *testing.T) {
	fixture := newServiceFixture(t)
	fixture.seedUser(t, "jordan@acme.test", "correct horse battery", func(u *User) {
		u.MFAEnabled = true
	})

	outcome, err := fixture.service.Login(context.Background(), LoginInput{
		Email:    "jordan@acme.test",
		Password: "correct horse battery",
		Remember: true,
	})

	require.NoError(t, err)
	assert.Nil(t, outcome.Session)
	assert.NotEmpty(t, outcome.ChallengeID)
	assert.Equal(t, []string{"email"}, outcome.MFAMethods)
	assert.Len(t, fixture.sender.lastMFACode(), MFACodeDigits)

	// No session exists until the challenge is answered.
	assert.Zero(t, fixture.sessions.count())
}

func TestService_VerifyMFA_Success(t *testing.T) {
	fixture := newServiceFixture(t)
	fixture.seedUser(t, "jordan@acme.test", "correct horse battery", func(u *User) {
		u.MFAEnabled = true
	})

	outcome, err := fixture.service.Login(context.Background(), LoginInput{
		Email:    "jordan@acme.test",
		Password: "correct horse battery",
		Remember: true,
	})
	require.NoError(t, err)

	session, err := fixture.service.VerifyMFA(
		context.Background(),
		outcome.ChallengeID,
		fixture.sender.lastMFACode(),
		"test-agent", "203.0.113.7",
	)

	require.NoError(t, err)
	assert.NotEmpty(t, session.AccessToken)
	assert.NotEmpty(t, session.RefreshToken)

	// The remember choice made at login survives the MFA hop.
	stored, err := fixture.sessions.FindByTokenHash(context.Background(), sec.HashToken(session.RefreshToken))
	require.NoError(t, err)
	assert.True(t, stored.Persistent)

	// The challenge is single use.
	_, err = fixture.service.VerifyMFA(
		context.Background(),
		outcome.ChallengeID,
		fixture.sender.lastMFACode(),
		"test-agent", "203.0.113.7",
	)
	require.Error(t, err)
}

func TestService_VerifyMFA_AttemptsExhausted(t *testing.T) {
	fixture := newServiceFixture(t)
	fixture.seedUser(t, "jordan@acme.test", "correct horse battery", func(u *User) {
		u.MFAEnabled = true
	})

	outcome, err := fixture.service.Login(context.Background(), LoginInput{
		Email:    "jordan@acme.test",
		Password: "correct horse battery",
	})
	require.NoError(t, err)

	for i := 0; i < MFAMaxAttempts; i++ {
		_, err := fixture.service.VerifyMFA(context.Background(), outcome.ChallengeID, "000000", "", "")
		require.Error(t, err)
	}

	// Challenge is gone; even the right code no longer works.
	_, err = fixture.service.VerifyMFA(
		context.Background(),
		outcome.ChallengeID,
		fixture.sender.lastMFACode(),
		"", "",
	)
	require.Error(t, err)
}

// # Refresh Rotation

func TestService_RefreshSession_RotatesTokens(t *testing.T) {
	fixture := newServiceFixture(t)
	fixture.seedUser(t, "jordan@acme.test", "correct horse battery", nil)

	outcome, err := fixture.service.Login(context.Background(), LoginInput{
		Email:    "jordan@acme.test",
		Password: "correct horse battery",
		Remember: true,
	})
	require.NoError(t, err)
	firstRefresh := outcome.Session.RefreshToken

	rotated, err := fixture.service.RefreshSession(context.Background(), firstRefresh, "agent", "203.0.113.7")
	require.NoError(t, err)
	assert.NotEqual(t, firstRefresh, rotated.RefreshToken)
	assert.NotEqual(t, outcome.Session.AccessToken, rotated.AccessToken)

	// The rotated session inherits the persistence choice.
	stored, err := fixture.sessions.FindByTokenHash(context.Background(), sec.HashToken(rotated.RefreshToken))
	require.NoError(t, err)
	assert.True(t, stored.Persistent)
}

func TestService_RefreshSession_OldTokenIsRevoked(t *testing.T) {
	fixture := newServiceFixture(t)
	fixture.seedUser(t, "jordan@acme.test", "correct horse battery", nil)

	outcome, err := fixture.service.Login(context.Background(), LoginInput{
		Email:    "jordan@acme.test",
		Password: "correct horse battery",
	})
	require.NoError(t, err)

	_, err = fixture.service.RefreshSession(context.Background(), outcome.Session.RefreshToken, "", "")
	require.NoError(t, err)

	// Replaying the consumed token must fail.
	_, err = fixture.service.RefreshSession(context.Background(), outcome.Session.RefreshToken, "", "")
	require.Error(t, err)
	appError := apperr.As(err)
	require.NotNil(t, appError)
	assert.Equal(t, 401, appError.HTTPStatus)
}

func TestService_RefreshSession_GarbageToken(t *testing.T) {
	fixture := newServiceFixture(t)

	_, err := fixture.service.RefreshSession(context.Background(), "not-a-real-token", "", "")
	require.Error(t, err)
}

// # Logout

func TestService_Logout_RevokesSession(t *testing.T) {
	fixture := newServiceFixture(t)
	fixture.seedUser(t, "jordan@acme.test", "correct horse battery", nil)

	outcome, err := fixture.service.Login(context.Background(), LoginInput{
		Email:    "jordan@acme.test",
		Password: "correct horse battery",
	})
	require.NoError(t, err)

	require.NoError(t, fixture.service.Logout(context.Background(), outcome.Session.RefreshToken))
	assert.Zero(t, fixture.sessions.count())

	// Logout is idempotent.
	require.NoError(t, fixture.service.Logout(context.Background(), outcome.Session.RefreshToken))
	require.NoError(t, fixture.service.Logout(context.Background(), ""))
}

// # Password Management

func TestService_ChangePassword_RevokesAllSessions(t *testing.T) {
	fixture := newServiceFixture(t)
	user := fixture.seedUser(t, "jordan@acme.test", "correct horse battery", nil)

	// Two devices logged in.
	for i := 0; i < 2; i++ {
		_, err := fixture.service.Login(context.Background(), LoginInput{
			Email:    "jordan@acme.test",
			Password: "correct horse battery",
		})
		require.NoError(t, err)
	}
	require.Equal(t, 2, fixture.sessions.count())

	err := fixture.service.ChangePassword(context.Background(), user.ID, "correct horse battery", "a brand new passphrase")
	require.NoError(t, err)
	assert.Zero(t, fixture.sessions.count())

	// Old password no longer works, new one does.
	_, err = fixture.service.Login(context.Background(), LoginInput{
		Email:    "jordan@acme.test",
		Password: "correct horse battery",
	})
	require.Error(t, err)

	_, err = fixture.service.Login(context.Background(), LoginInput{
		Email:    "jordan@acme.test",
		Password: "a brand new passphrase",
	})
	require.NoError(t, err)
}

func TestService_ChangePassword_WrongCurrentPassword(t *testing.T) {
	fixture := newServiceFixture(t)
	user := fixture.seedUser(t, "jordan@acme.test", "correct horse battery", nil)

	err := fixture.service.ChangePassword(context.Background(), user.ID, "wrong", "a brand new passphrase")
	require.Error(t, err)
	appError := apperr.As(err)
	require.NotNil(t, appError)
	assert.Equal(t, 401, appError.HTTPStatus)
}

func TestService_PasswordReset_FullFlow(t *testing.T) {
	fixture := newServiceFixture(t)
	fixture.seedUser(t, "jordan@acme.test", "correct horse battery", nil)

	// Active session that must die with the reset.
	_, err := fixture.service.Login(context.Background(), LoginInput{
		Email:    "jordan@acme.test",
		Password: "correct horse battery",
	})
	require.NoError(t, err)

	require.NoError(t, fixture.service.RequestPasswordReset(context.Background(), "jordan@acme.test"))
	token := fixture.sender.lastResetToken()
	require.NotEmpty(t, token)

	require.NoError(t, fixture.service.ConfirmPasswordReset(context.Background(), token, "reset passphrase"))
	assert.Zero(t, fixture.sessions.count())

	// Token is single use.
	err = fixture.service.ConfirmPasswordReset(context.Background(), token, "another passphrase")
	require.Error(t, err)

	_, err = fixture.service.Login(context.Background(), LoginInput{
		Email:    "jordan@acme.test",
		Password: "reset passphrase",
	})
	require.NoError(t, err)
}

func TestService_RequestPasswordReset_UnknownEmailSilent(t *testing.T) {
	fixture := newServiceFixture(t)

	// Unknown email yields no error and no outbound token.
	require.NoError(t, fixture.service.RequestPasswordReset(context.Background(), "ghost@nowhere.test"))
	assert.Empty(t, fixture.sender.lastResetToken())
}
