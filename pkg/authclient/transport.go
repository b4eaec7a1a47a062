// Copyright (c) 2026 Scout HQ, Inc. All rights reserved.
// Author: platform@scout-hq.io

package authclient

import (
	"io"
	"log/slog"
	"net/http"
	"sync"
)

// # Authenticated Transport

// Transport is an [http.RoundTripper] that injects the stored bearer token
// and transparently recovers from access-token expiry.
//
// # Retry Discipline
//
// On a 401 the transport asks the [Coordinator] for a rotated pair and
// replays the request exactly once with the new token. A second 401 is
// returned as is: either the server revoked the whole session or something
// beyond token expiry is wrong, and looping would only hammer the API.
//
// Requests with a non-replayable body (Body set but GetBody nil) are never
// retried; the original 401 is returned.
type Transport struct {
	base      http.RoundTripper
	store     *Store
	refresher *Coordinator
	logger    *slog.Logger

	// onSessionExpired fires when a refresh attempt fails and the local
	// session has been torn down. Keyed by the access token that just died,
	// so concurrent failures of one session collapse into one notification
	// while a later session notifies again.
	onSessionExpired func()

	mu          sync.Mutex
	notifiedFor string
}

// NewTransport wraps base with bearer injection and 401 recovery.
//
// base may be nil, in which case [http.DefaultTransport] is used.
// onSessionExpired may be nil.
func NewTransport(base http.RoundTripper, store *Store, refresher *Coordinator, logger *slog.Logger, onSessionExpired func()) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Transport{
		base:             base,
		store:            store,
		refresher:        refresher,
		logger:           logger,
		onSessionExpired: onSessionExpired,
	}
}

// RoundTrip implements [http.RoundTripper].
func (t *Transport) RoundTrip(request *http.Request) (*http.Response, error) {
	stored, err := t.store.Read()
	if err != nil {
		return nil, err
	}

	accessToken := ""
	if stored != nil {
		accessToken = stored.AccessToken
	}

	// RoundTrippers must not mutate the caller's request.
	authed := cloneWithBearer(request, accessToken)

	response, err := t.base.RoundTrip(authed)
	if err != nil {
		return nil, err
	}

	if response.StatusCode != http.StatusUnauthorized {
		return response, nil
	}

	// No token was attached, so a refresh cannot change the verdict.
	if accessToken == "" {
		return response, nil
	}

	// A consumed body cannot be replayed.
	if request.Body != nil && request.GetBody == nil {
		t.logger.Debug("skipping retry for non-replayable request body",
			slog.String("path", request.URL.Path),
		)
		return response, nil
	}

	creds, refreshErr := t.refresher.Refresh(request.Context(), accessToken)
	if refreshErr != nil {
		// The session is gone. Tear down local state and notify, but hand
		// the caller the original response untouched.
		_ = t.store.Clear()
		t.notifyExpired(accessToken)
		return response, nil
	}

	// The retry replaces the original response; release the first one.
	drainAndClose(response)

	retry := cloneWithBearer(request, creds.AccessToken)
	if request.GetBody != nil {
		body, err := request.GetBody()
		if err != nil {
			return nil, err
		}
		retry.Body = body
	}

	t.logger.Debug("retrying request with refreshed token",
		slog.String("path", request.URL.Path),
	)

	return t.base.RoundTrip(retry)
}

// notifyExpired fires the session-expired hook once per session. The access
// token that was active when the expiry was detected keys the deduplication:
// requests that raced on the same dead session share one notification, and a
// fresh login (new token) re-arms the hook.
func (t *Transport) notifyExpired(accessToken string) {
	t.mu.Lock()
	if t.notifiedFor == accessToken {
		t.mu.Unlock()
		return
	}
	t.notifiedFor = accessToken
	t.mu.Unlock()

	t.logger.Info("session expired, credentials cleared")
	if t.onSessionExpired != nil {
		t.onSessionExpired()
	}
}

// cloneWithBearer shallow-clones the request and sets the Authorization
// header when a token is available.
func cloneWithBearer(request *http.Request, accessToken string) *http.Request {
	cloned := request.Clone(request.Context())
	if accessToken != "" {
		cloned.Header.Set("Authorization", "Bearer "+accessToken)
	}
	return cloned
}

// drainAndClose discards the remaining body so the underlying connection can
// be reused, then closes it.
func drainAndClose(response *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(response.Body, 4096))
	_ = response.Body.Close()
}
