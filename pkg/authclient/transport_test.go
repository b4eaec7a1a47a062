// Copyright (c) 2026 Scout HQ, Inc. All rights reserved.
// Author: platform@scout-hq.io

package authclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeIdentityServer mimics the identity API's refresh endpoint plus one
// protected resource. It tracks call counts and rotates tokens like the
// real server does.
type fakeIdentityServer struct {
	mu sync.Mutex

	// validAccess is the only access token the resource endpoint accepts.
	validAccess string
	// validRefresh is the only refresh token the refresh endpoint accepts.
	validRefresh string
	// rotation counter, used to mint distinct token values.
	generation int

	refreshCalls  atomic.Int64
	resourceCalls atomic.Int64

	// failRefresh forces the refresh endpoint to reject everything.
	failRefresh bool
	// rejectResource forces the resource endpoint to 401 every request.
	rejectResource bool

	server *httptest.Server
}

func newFakeIdentityServer(t *testing.T, access, refresh string) *fakeIdentityServer {
	t.Helper()

	f := &fakeIdentityServer{validAccess: access, validRefresh: refresh}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/auth/refresh", f.handleRefresh)
	mux.HandleFunc("/api/v1/resource", f.handleResource)

	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)

	return f
}

func (f *fakeIdentityServer) handleRefresh(w http.ResponseWriter, r *http.Request) {
	f.refreshCalls.Add(1)

	var body struct {
		RefreshToken string `json:"refresh_token"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failRefresh || body.RefreshToken != f.validRefresh {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"error": "Invalid or expired refresh token",
			"code":  "UNAUTHORIZED",
		})
		return
	}

	f.generation++
	f.validAccess = fmt.Sprintf("access-%d", f.generation)
	f.validRefresh = fmt.Sprintf("refresh-%d", f.generation)

	_ = json.NewEncoder(w).Encode(map[string]any{
		"data": map[string]any{
			"access_token":  f.validAccess,
			"refresh_token": f.validRefresh,
			"token_type":    "bearer",
			"expires_in":    1800,
		},
	})
}

func (f *fakeIdentityServer) handleResource(w http.ResponseWriter, r *http.Request) {
	f.resourceCalls.Add(1)

	f.mu.Lock()
	valid := "Bearer " + f.validAccess
	reject := f.rejectResource
	f.mu.Unlock()

	if reject || r.Header.Get("Authorization") != valid {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"error": "Invalid or expired token",
			"code":  "UNAUTHORIZED",
		})
		return
	}

	_ = json.NewEncoder(w).Encode(map[string]any{"data": map[string]string{"status": "ok"}})
}

// newTransportFixture wires a Store (seeded with a stale access token),
// Coordinator, and Transport against the fake server.
func newTransportFixture(t *testing.T, f *fakeIdentityServer, seed Credentials) (*http.Client, *Store, *atomic.Int64) {
	t.Helper()

	store := NewStore(NewMemoryBackend(), NewMemoryBackend())
	require.NoError(t, store.Write(seed, false))

	var expired atomic.Int64
	coordinator := NewCoordinator(store, f.server.Client(), f.server.URL+"/api/v1/auth/refresh", nil)
	transport := NewTransport(http.DefaultTransport, store, coordinator, nil, func() {
		expired.Add(1)
	})

	return &http.Client{Transport: transport}, store, &expired
}

func TestTransport_InjectsBearer(t *testing.T) {
	f := newFakeIdentityServer(t, "access-0", "refresh-0")
	client, _, _ := newTransportFixture(t, f, Credentials{AccessToken: "access-0", RefreshToken: "refresh-0"})

	response, err := client.Get(f.server.URL + "/api/v1/resource")
	require.NoError(t, err)
	defer response.Body.Close()

	assert.Equal(t, http.StatusOK, response.StatusCode)
	assert.EqualValues(t, 0, f.refreshCalls.Load())
}

func TestTransport_RefreshesAndRetriesOn401(t *testing.T) {
	f := newFakeIdentityServer(t, "access-0", "refresh-0")

	// The stored access token is stale; only the refresh token is good.
	client, store, _ := newTransportFixture(t, f, Credentials{AccessToken: "stale", RefreshToken: "refresh-0"})

	response, err := client.Get(f.server.URL + "/api/v1/resource")
	require.NoError(t, err)
	defer response.Body.Close()

	assert.Equal(t, http.StatusOK, response.StatusCode)
	assert.EqualValues(t, 1, f.refreshCalls.Load())
	assert.EqualValues(t, 2, f.resourceCalls.Load())

	// The rotated pair landed in the store.
	stored, err := store.Read()
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "access-1", stored.AccessToken)
	assert.Equal(t, "refresh-1", stored.RefreshToken)
}

func TestTransport_ConcurrentRequestsShareOneRefresh(t *testing.T) {
	f := newFakeIdentityServer(t, "access-0", "refresh-0")
	client, _, _ := newTransportFixture(t, f, Credentials{AccessToken: "stale", RefreshToken: "refresh-0"})

	const workers = 16
	var wg sync.WaitGroup
	errs := make(chan error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			response, err := client.Get(f.server.URL + "/api/v1/resource")
			if err != nil {
				errs <- err
				return
			}
			defer response.Body.Close()
			if response.StatusCode != http.StatusOK {
				errs <- fmt.Errorf("unexpected status %d", response.StatusCode)
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}

	// Every goroutine saw the same stale token, so the coordinator must have
	// collapsed all of them into a single refresh call.
	assert.EqualValues(t, 1, f.refreshCalls.Load())
}

func TestTransport_RetriesAtMostOnce(t *testing.T) {
	f := newFakeIdentityServer(t, "access-0", "refresh-0")
	client, _, _ := newTransportFixture(t, f, Credentials{AccessToken: "stale", RefreshToken: "refresh-0"})

	// The resource endpoint 401s even with a fresh token: refresh succeeds
	// but the retry fails again. The transport must surface that second 401
	// instead of looping.
	f.mu.Lock()
	f.rejectResource = true
	f.mu.Unlock()

	response, err := client.Get(f.server.URL + "/api/v1/resource")
	require.NoError(t, err)
	defer response.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, response.StatusCode)
	assert.EqualValues(t, 1, f.refreshCalls.Load())
	assert.EqualValues(t, 2, f.resourceCalls.Load())
}

func TestTransport_RefreshFailureTearsDownSession(t *testing.T) {
	f := newFakeIdentityServer(t, "access-0", "refresh-0")
	f.failRefresh = true

	client, store, expired := newTransportFixture(t, f, Credentials{AccessToken: "stale", RefreshToken: "refresh-0"})

	response, err := client.Get(f.server.URL + "/api/v1/resource")
	require.NoError(t, err)
	defer response.Body.Close()

	// The original 401 comes back with a readable body.
	assert.Equal(t, http.StatusUnauthorized, response.StatusCode)
	body, err := io.ReadAll(response.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "UNAUTHORIZED")

	// Local credentials are gone and the hook fired exactly once.
	stored, err := store.Read()
	require.NoError(t, err)
	assert.Nil(t, stored)
	assert.EqualValues(t, 1, expired.Load())

	// A second failing request must not fire the hook again.
	response2, err := client.Get(f.server.URL + "/api/v1/resource")
	require.NoError(t, err)
	response2.Body.Close()
	assert.EqualValues(t, 1, expired.Load())
}

func TestTransport_ExpiryHookFiresForEachSession(t *testing.T) {
	f := newFakeIdentityServer(t, "access-0", "refresh-0")
	f.failRefresh = true

	client, store, expired := newTransportFixture(t, f, Credentials{AccessToken: "stale-a", RefreshToken: "refresh-a"})

	response, err := client.Get(f.server.URL + "/api/v1/resource")
	require.NoError(t, err)
	response.Body.Close()
	assert.EqualValues(t, 1, expired.Load())

	// The user logs in again through the same transport. When that second
	// session dies too, the hook must fire again so the UI can redirect.
	require.NoError(t, store.Write(Credentials{AccessToken: "stale-b", RefreshToken: "refresh-b"}, false))

	response, err = client.Get(f.server.URL + "/api/v1/resource")
	require.NoError(t, err)
	response.Body.Close()

	assert.EqualValues(t, 2, expired.Load())
}

func TestTransport_NonReplayableBodyIsNotRetried(t *testing.T) {
	f := newFakeIdentityServer(t, "access-0", "refresh-0")
	client, _, _ := newTransportFixture(t, f, Credentials{AccessToken: "stale", RefreshToken: "refresh-0"})

	request, err := http.NewRequest(http.MethodPost, f.server.URL+"/api/v1/resource", strings.NewReader("payload"))
	require.NoError(t, err)

	// Simulate a streaming body that cannot be rewound.
	request.GetBody = nil

	response, err := client.Do(request)
	require.NoError(t, err)
	defer response.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, response.StatusCode)
	assert.EqualValues(t, 0, f.refreshCalls.Load())
}

func TestTransport_NoTokenMeansNoRefresh(t *testing.T) {
	f := newFakeIdentityServer(t, "access-0", "refresh-0")

	store := NewStore(NewMemoryBackend(), NewMemoryBackend())
	coordinator := NewCoordinator(store, f.server.Client(), f.server.URL+"/api/v1/auth/refresh", nil)
	transport := NewTransport(http.DefaultTransport, store, coordinator, nil, nil)
	client := &http.Client{Transport: transport}

	response, err := client.Get(f.server.URL + "/api/v1/resource")
	require.NoError(t, err)
	defer response.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, response.StatusCode)
	assert.EqualValues(t, 0, f.refreshCalls.Load())
}

func TestCoordinator_SkipsNetworkWhenAlreadyRotated(t *testing.T) {
	f := newFakeIdentityServer(t, "access-0", "refresh-0")

	store := NewStore(NewMemoryBackend(), NewMemoryBackend())
	require.NoError(t, store.Write(Credentials{AccessToken: "access-1", RefreshToken: "refresh-1"}, false))

	coordinator := NewCoordinator(store, f.server.Client(), f.server.URL+"/api/v1/auth/refresh", nil)

	// The caller's token is older than what the store holds: the rotation
	// already happened, so no request should leave the process.
	creds, err := coordinator.Refresh(context.Background(), "access-0")
	require.NoError(t, err)
	assert.Equal(t, "access-1", creds.AccessToken)
	assert.EqualValues(t, 0, f.refreshCalls.Load())
}

func TestCoordinator_NoSession(t *testing.T) {
	f := newFakeIdentityServer(t, "access-0", "refresh-0")

	store := NewStore(NewMemoryBackend(), NewMemoryBackend())
	coordinator := NewCoordinator(store, f.server.Client(), f.server.URL+"/api/v1/auth/refresh", nil)

	_, err := coordinator.Refresh(context.Background(), "whatever")
	assert.ErrorIs(t, err, ErrNoSession)
}
