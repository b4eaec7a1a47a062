// Copyright (c) 2026 Scout HQ, Inc. All rights reserved.
// Author: platform@scout-hq.io

package authclient

import (
	"errors"
	"fmt"
)

// # Error Types

var (
	// ErrNoSession is returned when an operation needs stored credentials
	// and neither scope holds any.
	ErrNoSession = errors.New("authclient: no active session")

	// ErrSessionExpired is returned when the refresh token was rejected and
	// the local session has been torn down.
	ErrSessionExpired = errors.New("authclient: session expired")
)

// APIError is a structured error response from the identity API.
//
// It mirrors the server's error envelope: a machine-readable code plus a
// human-readable message.
type APIError struct {
	// Status is the HTTP status code of the response.
	Status int
	// Code is the machine-readable error identifier (e.g. "UNAUTHORIZED").
	Code string
	// Message is the human-readable description from the server.
	Message string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("authclient: api error %d (%s): %s", e.Status, e.Code, e.Message)
}

// IsAuthError reports whether err is an APIError with a 401 status.
func IsAuthError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == 401
}

// IsLockedError reports whether err is an APIError with a 423 status,
// meaning the account is temporarily locked out.
func IsLockedError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == 423
}
