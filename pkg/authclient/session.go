// Copyright (c) 2026 Scout HQ, Inc. All rights reserved.
// Author: platform@scout-hq.io

package authclient

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// # Auth State Controller

// State is a snapshot of the session as observed by a UI frontend.
type State struct {
	// IsAuthenticated is true when a verified session is active.
	IsAuthenticated bool

	// User is the profile of the authenticated account, nil otherwise.
	User *User

	// Permissions is the capability list granted by the user's role.
	Permissions []string

	// Loading is true while a lifecycle operation is in flight.
	Loading bool

	// Err holds the failure of the last lifecycle operation, nil after
	// success or [Controller.ClearError].
	Err error

	// Initialized flips to true after the first Initialize completes and
	// never goes back. Frontends gate their first render on it.
	Initialized bool

	// PendingChallenge is set while a login awaits MFA verification.
	PendingChallenge string

	// MFAMethods lists the delivery methods for the pending challenge.
	MFAMethods []string
}

// Controller owns the client-side auth state machine.
//
// All state transitions happen under one mutex; Snapshot returns copies, so
// frontends can poll or subscribe from any goroutine.
type Controller struct {
	client *Client
	logger *slog.Logger

	mu    sync.Mutex
	state State

	// pendingRemember carries the remember choice across the MFA hop.
	pendingRemember bool

	initOnce sync.Once

	// onChange, when set, fires after every state transition with a snapshot.
	onChange func(State)
}

// NewController wraps a [Client] with observable auth state.
//
// onChange may be nil; otherwise it is invoked (synchronously, without the
// lock held) after every state transition.
func NewController(client *Client, onChange func(State)) *Controller {
	return &Controller{
		client:   client,
		logger:   client.logger,
		onChange: onChange,
	}
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ClearError resets the Err field without touching anything else.
func (c *Controller) ClearError() {
	c.update(func(s *State) {
		s.Err = nil
	})
}

/*
Initialize restores the session from stored credentials.

Exactly-once: concurrent and repeated calls collapse into a single
restoration attempt; every call returns after Initialized is true.

Outcomes:
  - Stored credentials verify against /me: authenticated.
  - No credentials, or verification fails: unauthenticated, no error.
    A failed restore is a normal cold start, not a fault to surface.
    Stored credentials are destroyed only when the server rejects them;
    an unreachable server leaves them in place for the next start.
*/
func (c *Controller) Initialize(ctx context.Context) {
	c.initOnce.Do(func() {
		c.update(func(s *State) {
			s.Loading = true
		})

		user, permissions, err := c.client.Me(ctx)

		c.update(func(s *State) {
			s.Loading = false
			s.Initialized = true
			if err != nil {
				// Only a rejected session destroys the stored pair. A
				// transport failure (offline boot) keeps it for the next
				// attempt.
				if IsAuthError(err) || errors.Is(err, ErrSessionExpired) {
					_ = c.client.Store().Clear()
				}
				s.IsAuthenticated = false
				s.User = nil
				s.Permissions = nil
				return
			}
			s.IsAuthenticated = true
			s.User = user
			s.Permissions = permissions
		})

		c.logger.Debug("auth state initialized",
			slog.Bool("authenticated", c.Snapshot().IsAuthenticated),
		)
	})
}

/*
Login authenticates and transitions the state machine.

Outcomes:
  - Success: IsAuthenticated with the user profile loaded.
  - MFA required: PendingChallenge set, not authenticated yet; complete
    with [Controller.CompleteMFA].
  - Failure: Err set, previous authentication state preserved.
*/
func (c *Controller) Login(ctx context.Context, input LoginInput) error {
	c.update(func(s *State) {
		s.Loading = true
		s.Err = nil
	})

	outcome, err := c.client.Login(ctx, input)

	c.update(func(s *State) {
		s.Loading = false
		if err != nil {
			s.Err = err
			return
		}
		if outcome.MFARequired {
			s.PendingChallenge = outcome.ChallengeID
			s.MFAMethods = outcome.MFAMethods
			c.pendingRemember = input.Remember
			return
		}
		s.IsAuthenticated = true
		s.User = outcome.User
		s.Permissions = outcome.Permissions
		s.PendingChallenge = ""
		s.MFAMethods = nil
	})

	return err
}

// CompleteMFA answers the pending challenge and finishes the login.
func (c *Controller) CompleteMFA(ctx context.Context, code string) error {
	c.mu.Lock()
	challengeID := c.state.PendingChallenge
	remember := c.pendingRemember
	c.mu.Unlock()

	if challengeID == "" {
		return ErrNoSession
	}

	c.update(func(s *State) {
		s.Loading = true
		s.Err = nil
	})

	outcome, err := c.client.VerifyMFA(ctx, challengeID, code, remember)

	c.update(func(s *State) {
		s.Loading = false
		if err != nil {
			s.Err = err
			return
		}
		s.IsAuthenticated = true
		s.User = outcome.User
		s.Permissions = outcome.Permissions
		s.PendingChallenge = ""
		s.MFAMethods = nil
	})

	return err
}

/*
Logout tears the session down.

The local state always ends unauthenticated, even when the server call
fails: logout must never strand a user in a logged-in UI. Idempotent.
*/
func (c *Controller) Logout(ctx context.Context) {
	c.update(func(s *State) {
		s.Loading = true
	})

	if err := c.client.Logout(ctx); err != nil {
		c.logger.Debug("logout cleanup error", slog.String("error", err.Error()))
	}

	c.update(func(s *State) {
		*s = State{Initialized: s.Initialized}
	})
}

// RefreshSession forces a token rotation and re-verifies the session,
// updating the cached profile. A failed rotation tears the session down the
// same way the 401 interceptor does and demotes the state.
func (c *Controller) RefreshSession(ctx context.Context) error {
	user, permissions, err := c.client.RefreshSession(ctx)

	c.update(func(s *State) {
		if err != nil {
			s.IsAuthenticated = false
			s.User = nil
			s.Permissions = nil
			s.Err = err
			return
		}
		s.IsAuthenticated = true
		s.User = user
		s.Permissions = permissions
	})

	return err
}

// update applies a mutation under the lock and fires the change callback
// after releasing it.
func (c *Controller) update(mutate func(*State)) {
	c.mu.Lock()
	mutate(&c.state)
	snapshot := c.state
	c.mu.Unlock()

	if c.onChange != nil {
		c.onChange(snapshot)
	}
}
