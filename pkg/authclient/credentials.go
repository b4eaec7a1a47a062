// Copyright (c) 2026 Scout HQ, Inc. All rights reserved.
// Author: platform@scout-hq.io

package authclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// # Credential Storage

// Credentials is the access/refresh token pair issued by the identity API.
type Credentials struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Empty reports whether the pair carries no usable tokens.
func (c Credentials) Empty() bool {
	return c.AccessToken == "" && c.RefreshToken == ""
}

// StoredCredentials is a credential pair together with the scope it lives in.
type StoredCredentials struct {
	Credentials

	// Persistent is true when the pair sits in the durable backend, meaning
	// the user chose "remember me" and the session survives restarts.
	Persistent bool
}

// Backend abstracts a single credential storage location.
//
// Implementations must be safe for concurrent use. Load returns (nil, nil)
// when the backend holds no credentials.
type Backend interface {
	Load() (*Credentials, error)
	Save(*Credentials) error
	Clear() error
}

// # Memory Backend

// MemoryBackend keeps credentials in process memory only.
//
// This is the ephemeral scope: the session disappears when the process exits.
type MemoryBackend struct {
	mu    sync.Mutex
	creds *Credentials
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{}
}

// Load returns the held credentials, or (nil, nil) when empty.
func (b *MemoryBackend) Load() (*Credentials, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.creds == nil {
		return nil, nil
	}
	copied := *b.creds
	return &copied, nil
}

// Save stores a copy of the credentials.
func (b *MemoryBackend) Save(creds *Credentials) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	copied := *creds
	b.creds = &copied
	return nil
}

// Clear drops the held credentials.
func (b *MemoryBackend) Clear() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.creds = nil
	return nil
}

// # File Backend

// FileBackend persists credentials as a JSON file with owner-only permissions.
//
// This is the durable scope: the session survives process restarts.
type FileBackend struct {
	mu   sync.Mutex
	path string
}

// NewFileBackend creates a file-based backend at the given path.
// Parent directories are created on first save.
func NewFileBackend(path string) *FileBackend {
	return &FileBackend{path: path}
}

// Load reads and decodes the credential file, or (nil, nil) when absent.
func (b *FileBackend) Load() (*Credentials, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	raw, err := os.ReadFile(b.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("authclient: failed to read credential file: %w", err)
	}

	creds := &Credentials{}
	if err := json.Unmarshal(raw, creds); err != nil {
		return nil, fmt.Errorf("authclient: corrupt credential file: %w", err)
	}

	if creds.Empty() {
		return nil, nil
	}

	return creds, nil
}

// Save encodes and writes the credentials with 0600 permissions.
//
// The write goes through a temp file plus rename so a crash mid-write never
// leaves a truncated credential file behind.
func (b *FileBackend) Save(creds *Credentials) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(b.path), 0o700); err != nil {
		return fmt.Errorf("authclient: failed to create credential directory: %w", err)
	}

	raw, err := json.Marshal(creds)
	if err != nil {
		return fmt.Errorf("authclient: failed to encode credentials: %w", err)
	}

	tmpPath := b.path + ".tmp"
	if err := os.WriteFile(tmpPath, raw, 0o600); err != nil {
		return fmt.Errorf("authclient: failed to write credential file: %w", err)
	}

	if err := os.Rename(tmpPath, b.path); err != nil {
		return fmt.Errorf("authclient: failed to finalize credential file: %w", err)
	}

	return nil
}

// Clear removes the credential file. A missing file is not an error.
func (b *FileBackend) Clear() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := os.Remove(b.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("authclient: failed to remove credential file: %w", err)
	}

	return nil
}

// # Two-Scope Store

// Store holds one credential pair across two scopes: a durable backend for
// "remember me" sessions and an ephemeral backend for everything else.
//
// # Invariant
//
// At most one scope holds credentials at any time. Every Write places the
// pair in the chosen scope and clears the other under the same lock, so a
// reader can never observe both populated.
type Store struct {
	mu        sync.Mutex
	durable   Backend
	ephemeral Backend
}

// NewStore builds a store from explicit durable and ephemeral backends.
func NewStore(durable, ephemeral Backend) *Store {
	return &Store{durable: durable, ephemeral: ephemeral}
}

// NewFileStore builds the default store: a JSON file for the durable scope
// and process memory for the ephemeral scope.
func NewFileStore(path string) *Store {
	return NewStore(NewFileBackend(path), NewMemoryBackend())
}

// Write stores the pair in one scope and clears the other.
//
// persistent selects the durable scope (remember me) over the ephemeral one.
func (s *Store) Write(creds Credentials, persistent bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	target, other := s.ephemeral, s.durable
	if persistent {
		target, other = s.durable, s.ephemeral
	}

	if err := target.Save(&creds); err != nil {
		return err
	}

	return other.Clear()
}

// Read returns the stored pair, preferring the durable scope, or nil when
// no session exists.
func (s *Store) Read() (*StoredCredentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if creds, err := s.durable.Load(); err != nil {
		return nil, err
	} else if creds != nil {
		return &StoredCredentials{Credentials: *creds, Persistent: true}, nil
	}

	creds, err := s.ephemeral.Load()
	if err != nil {
		return nil, err
	}
	if creds == nil {
		return nil, nil
	}

	return &StoredCredentials{Credentials: *creds, Persistent: false}, nil
}

// Clear wipes both scopes. Used on logout and on unrecoverable auth failure.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	durableErr := s.durable.Clear()
	ephemeralErr := s.ephemeral.Clear()

	if durableErr != nil {
		return durableErr
	}
	return ephemeralErr
}
