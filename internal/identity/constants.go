// Copyright (c) 2026 Scout HQ, Inc. All rights reserved.
// Author: platform@scout-hq.io

package identity

import "time"

// # Authentication Constraints

const (
	// AccessTokenTTL is the duration a JWT access token remains valid.
	// We keep it short (30m) to minimize the impact of a leaked token.
	AccessTokenTTL = 30 * time.Minute

	// RefreshTokenTTL is the duration of a standard session.
	RefreshTokenTTL = 24 * time.Hour

	// RememberMeRefreshTTL is the duration of a "remember me" session.
	// Long-lived (30 days) to provide a good user experience on trusted devices.
	RememberMeRefreshTTL = 30 * 24 * time.Hour

	// RefreshTokenLength is the byte length of the random secure token.
	RefreshTokenLength = 32

	// MFAChallengeTTL is how long a pending MFA challenge remains answerable.
	MFAChallengeTTL = 5 * time.Minute

	// MFACodeDigits is the length of the one-time numeric code.
	MFACodeDigits = 6

	// MFAMaxAttempts is the number of wrong codes allowed per challenge.
	MFAMaxAttempts = 3

	// ResetTokenTTL is the duration a password reset token remains valid.
	// Short-lived (1 hour) for security.
	ResetTokenTTL = 1 * time.Hour

	// ResetTokenLength is the byte length of the random password reset token.
	ResetTokenLength = 32
)

// # Brute-Force Lockout

const (
	// MaxLoginAttemptsPerEmail locks an account after this many failures
	// within the lockout window.
	MaxLoginAttemptsPerEmail = 5

	// MaxLoginAttemptsPerIP locks an IP after this many failures within
	// the lockout window, regardless of which accounts were targeted.
	MaxLoginAttemptsPerIP = 10

	// LockoutWindow is the sliding window for counting failed attempts.
	LockoutWindow = 15 * time.Minute
)
