// Copyright (c) 2026 Scout HQ, Inc. All rights reserved.
// Author: platform@scout-hq.io

package identity

import (
	"context"
	"log/slog"
)

// # Out-of-Band Delivery

// LogSender writes MFA codes and reset tokens to the structured log instead
// of delivering them. It is the delivery channel for development and staging
// environments where no mail relay is reachable.
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender constructs a [LogSender] on the given logger.
func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

// SendMFACode logs the one-time login code for the user.
func (s *LogSender) SendMFACode(context context.Context, user *User, code string) error {
	s.logger.Info("mfa_code_issued",
		slog.String("user_id", user.ID),
		slog.String("email", user.Email),
		slog.String("code", code),
	)
	return nil
}

// SendPasswordReset logs the password-reset token for the user.
func (s *LogSender) SendPasswordReset(context context.Context, user *User, token string) error {
	s.logger.Info("password_reset_issued",
		slog.String("user_id", user.ID),
		slog.String("email", user.Email),
		slog.String("token", token),
	)
	return nil
}
