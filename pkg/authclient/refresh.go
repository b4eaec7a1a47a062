// Copyright (c) 2026 Scout HQ, Inc. All rights reserved.
// Author: platform@scout-hq.io

package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"golang.org/x/sync/singleflight"
)

// # Refresh Coordination

// Coordinator serializes token refreshes so that any number of concurrent
// 401s produce at most one network refresh.
//
// # Deduplication
//
// Callers join a singleflight group keyed by the access token that just
// failed. While one flight is in progress every other caller with the same
// stale token blocks and shares its result. A caller whose token differs
// from the stored one discovers inside the flight that rotation already
// happened and returns the fresh pair without touching the network.
type Coordinator struct {
	store      *Store
	httpClient *http.Client // Bare client: must NOT carry the refreshing Transport.
	refreshURL string
	logger     *slog.Logger

	group singleflight.Group
}

// NewCoordinator creates a refresh coordinator.
//
// httpClient must be free of the auth [Transport]; a refresh request that
// itself triggered a refresh would recurse.
func NewCoordinator(store *Store, httpClient *http.Client, refreshURL string, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		store:      store,
		httpClient: httpClient,
		refreshURL: refreshURL,
		logger:     logger,
	}
}

// Refresh exchanges the stored refresh token for a rotated pair.
//
// staleAccess is the access token that was just rejected; it keys the
// deduplication group. On success the rotated pair has already been written
// to the store, preserving the persistence scope of the old pair.
func (c *Coordinator) Refresh(ctx context.Context, staleAccess string) (*Credentials, error) {
	result, err, shared := c.group.Do(staleAccess, func() (interface{}, error) {
		return c.refreshLocked(ctx, staleAccess)
	})
	if err != nil {
		return nil, err
	}

	if shared {
		c.logger.Debug("token refresh shared with concurrent caller")
	}

	return result.(*Credentials), nil
}

// refreshLocked runs inside the singleflight flight.
func (c *Coordinator) refreshLocked(ctx context.Context, staleAccess string) (*Credentials, error) {
	stored, err := c.store.Read()
	if err != nil {
		return nil, err
	}
	if stored == nil || stored.RefreshToken == "" {
		return nil, ErrNoSession
	}

	// A previous flight already rotated the pair; skip the network round trip.
	if stored.AccessToken != "" && stored.AccessToken != staleAccess {
		creds := stored.Credentials
		return &creds, nil
	}

	payload, err := json.Marshal(map[string]string{"refresh_token": stored.RefreshToken})
	if err != nil {
		return nil, fmt.Errorf("authclient: failed to encode refresh request: %w", err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.refreshURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("authclient: failed to build refresh request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")

	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("authclient: refresh request failed: %w", err)
	}
	defer func() { _ = response.Body.Close() }()

	if response.StatusCode != http.StatusOK {
		apiErr := decodeAPIError(response)
		c.logger.Warn("token refresh rejected",
			slog.Int("status", response.StatusCode),
			slog.String("code", apiErr.Code),
		)
		return nil, apiErr
	}

	var envelope struct {
		Data sessionPayload `json:"data"`
	}
	if err := json.NewDecoder(response.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("authclient: failed to decode refresh response: %w", err)
	}

	creds := Credentials{
		AccessToken:  envelope.Data.AccessToken,
		RefreshToken: envelope.Data.RefreshToken,
	}
	if creds.AccessToken == "" || creds.RefreshToken == "" {
		return nil, fmt.Errorf("authclient: refresh response missing tokens")
	}

	// The rotated pair stays in the scope the user originally chose.
	if err := c.store.Write(creds, stored.Persistent); err != nil {
		return nil, err
	}

	c.logger.Debug("token refresh completed")

	return &creds, nil
}
