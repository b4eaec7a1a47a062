// Copyright (c) 2026 Scout HQ, Inc. All rights reserved.
// Author: platform@scout-hq.io

package authclient

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tempStorePath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "credentials.json")
}

func TestStore_WriteEphemeralThenRead(t *testing.T) {
	store := NewFileStore(tempStorePath(t))

	require.NoError(t, store.Write(Credentials{AccessToken: "a1", RefreshToken: "r1"}, false))

	stored, err := store.Read()
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "a1", stored.AccessToken)
	assert.Equal(t, "r1", stored.RefreshToken)
	assert.False(t, stored.Persistent)
}

func TestStore_WriteDurableThenRead(t *testing.T) {
	path := tempStorePath(t)
	store := NewFileStore(path)

	require.NoError(t, store.Write(Credentials{AccessToken: "a1", RefreshToken: "r1"}, true))

	stored, err := store.Read()
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.True(t, stored.Persistent)

	// The durable scope survives a fresh store over the same file, like a
	// process restart would see.
	reopened := NewFileStore(path)
	stored, err = reopened.Read()
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "a1", stored.AccessToken)
	assert.True(t, stored.Persistent)
}

func TestStore_WriteClearsOtherScope(t *testing.T) {
	path := tempStorePath(t)
	store := NewFileStore(path)

	// Durable first, then an ephemeral login must evict the durable pair.
	require.NoError(t, store.Write(Credentials{AccessToken: "a1", RefreshToken: "r1"}, true))
	require.NoError(t, store.Write(Credentials{AccessToken: "a2", RefreshToken: "r2"}, false))

	stored, err := store.Read()
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "a2", stored.AccessToken)
	assert.False(t, stored.Persistent)

	// The credential file must be gone, not just shadowed.
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))

	// And the other direction.
	require.NoError(t, store.Write(Credentials{AccessToken: "a3", RefreshToken: "r3"}, true))
	stored, err = store.Read()
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "a3", stored.AccessToken)
	assert.True(t, stored.Persistent)
}

func TestStore_ReadEmpty(t *testing.T) {
	store := NewFileStore(tempStorePath(t))

	stored, err := store.Read()
	require.NoError(t, err)
	assert.Nil(t, stored)
}

func TestStore_Clear(t *testing.T) {
	store := NewFileStore(tempStorePath(t))

	require.NoError(t, store.Write(Credentials{AccessToken: "a1", RefreshToken: "r1"}, true))
	require.NoError(t, store.Clear())

	stored, err := store.Read()
	require.NoError(t, err)
	assert.Nil(t, stored)

	// Clearing an empty store is fine.
	require.NoError(t, store.Clear())
}

func TestFileBackend_Permissions(t *testing.T) {
	path := tempStorePath(t)
	backend := NewFileBackend(path)

	require.NoError(t, backend.Save(&Credentials{AccessToken: "a1", RefreshToken: "r1"}))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestFileBackend_CorruptFile(t *testing.T) {
	path := tempStorePath(t)
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	backend := NewFileBackend(path)
	_, err := backend.Load()
	require.Error(t, err)
}
