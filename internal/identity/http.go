// Copyright (c) 2026 Scout HQ, Inc. All rights reserved.
// Author: platform@scout-hq.io

/*
HTTP delivery layer for the identity domain.

The handler acts as a thin mediation layer between the web and domain services:
  - Protocol: Standard RESTful JSON interface.
  - Security: Token pairs travel in the JSON body; the Go SDK and native
    clients store them, so there is no cookie orchestration here.
  - Verification: Enforces strict input validation before passing to [Service].

This layer is strictly responsible for transport concerns (status codes, headers, JSON).
*/
package identity

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/scout-hq/scout/internal/platform/middleware"
	requestutil "github.com/scout-hq/scout/internal/platform/request"
	"github.com/scout-hq/scout/internal/platform/respond"
	"github.com/scout-hq/scout/internal/platform/validate"
)

// # Definitions & Constructors

// Handler implements authentication-related HTTP endpoints.
//
// # Scope
//
// This handler manages everything related to the session lifecycle entry
// points (Login, MFA, Refresh, Password Recovery).
type Handler struct {
	identityService *Service
}

// NewHandler constructs a new [Handler] with its service dependency.
func NewHandler(service *Service) *Handler {
	return &Handler{identityService: service}
}

// Routes returns a [chi.Router] configured with authentication-specific routes.
//
// # Endpoints
//   - POST /login      : Authenticates and returns tokens or an MFA challenge.
//   - POST /mfa/verify : Answers a pending MFA challenge.
//   - POST /refresh    : Rotates the refresh token and mints a new access token.
func (handler *Handler) Routes() chi.Router {
	router := chi.NewRouter()

	// Public endpoints
	router.Post("/login", handler.login)
	router.Post("/mfa/verify", handler.verifyMFA)
	router.Post("/refresh", handler.refresh)
	router.Post("/logout", handler.logout)
	router.Post("/password-reset", handler.requestPasswordReset)
	router.Post("/password-reset/confirm", handler.confirmPasswordReset)

	// Protected endpoints
	router.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth)
		r.Get("/me", handler.me)
		r.Post("/change-password", handler.changePassword)
	})

	return router
}

// # Request Payloads

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Company  string `json:"company,omitempty"` // Optional tenant handle.
	Remember bool   `json:"remember"`
}

type verifyMFARequest struct {
	Challenge string `json:"challenge"`
	Code      string `json:"code"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type logoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type passwordResetRequest struct {
	Email string `json:"email"`
}

type confirmPasswordResetRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// # Response Shaping

// sessionResponse is the JSON body shared by login, MFA, and refresh success.
func sessionResponse(session *AuthSession) map[string]any {
	return map[string]any{
		FieldAccessToken:  session.AccessToken,
		FieldRefreshToken: session.RefreshToken,
		FieldTokenType:    "bearer",
		FieldExpiresIn:    session.ExpiresIn,
		FieldUser:         session.User,
		"permissions":     session.Permissions,
	}
}

/*
Login authenticates a user and establishes a session or an MFA challenge.

POST /api/v1/auth/login

Description: Verifies credentials against lockout and tenant rules. Accounts
with MFA enabled receive a challenge descriptor instead of tokens.

Request:
  - Body: loginRequest (Email, Password, Company, Remember)

Response:
  - 200: Session tokens, or {mfa_required, challenge, methods}
  - 401: ErrUnauthorized: Invalid credentials
  - 423: ErrLocked: Too many failed attempts
*/
func (handler *Handler) login(writer http.ResponseWriter, request *http.Request) {
	var input loginRequest

	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	validator := &validate.Validator{}
	validator.Required(FieldEmail, input.Email).
		Email(FieldEmail, input.Email).
		Required(FieldPassword, input.Password)
	if input.Company != "" {
		validator.Handle(FieldTenantHandle, input.Company)
	}

	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	outcome, err := handler.identityService.Login(request.Context(), LoginInput{
		Email:        input.Email,
		Password:     input.Password,
		TenantHandle: input.Company,
		Remember:     input.Remember,
		UserAgent:    request.UserAgent(),
		IPAddress:    middleware.RealIP(request),
	})
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	// MFA branch: no tokens yet, the client must answer the challenge.
	if outcome.Session == nil {
		respond.OK(writer, map[string]any{
			"mfa_required": true,
			FieldChallenge: outcome.ChallengeID,
			"methods":      outcome.MFAMethods,
		})
		return
	}

	respond.OK(writer, sessionResponse(outcome.Session))
}

/*
VerifyMFA answers a pending login challenge.

POST /api/v1/auth/mfa/verify

Description: Exchanges a valid challenge and one-time code for a full session.

Request:
  - Body: verifyMFARequest (Challenge, Code)

Response:
  - 200: Session tokens
  - 401: ErrUnauthorized: Wrong code, expired challenge, or attempts exhausted
*/
func (handler *Handler) verifyMFA(writer http.ResponseWriter, request *http.Request) {
	var input verifyMFARequest

	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	validator := &validate.Validator{}
	validator.Required(FieldChallenge, input.Challenge).
		Required(FieldCode, input.Code)

	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	session, err := handler.identityService.VerifyMFA(
		request.Context(),
		input.Challenge,
		input.Code,
		request.UserAgent(),
		middleware.RealIP(request),
	)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, sessionResponse(session))
}

/*
Refresh rotates the session and issues a fresh token pair.

POST /api/v1/auth/refresh

Description: Validates the refresh token from the request body, revokes it,
and returns a rotated pair. The new session keeps the original login's
persistence choice.

Request:
  - Body: refreshRequest (RefreshToken)

Response:
  - 200: Session tokens
  - 401: ErrUnauthorized: Missing, expired, or already-rotated refresh token
*/
func (handler *Handler) refresh(writer http.ResponseWriter, request *http.Request) {
	var input refreshRequest

	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	if input.RefreshToken == "" {
		respond.Error(writer, request, validate.RequiredError(FieldRefreshToken, "is required"))
		return
	}

	session, err := handler.identityService.RefreshSession(
		request.Context(),
		input.RefreshToken,
		request.UserAgent(),
		middleware.RealIP(request),
	)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, sessionResponse(session))
}

/*
Logout terminates the session behind the supplied refresh token.

POST /api/v1/auth/logout

Description: Idempotent. A missing or already-revoked token still yields 204
so clients can always finish their local teardown.

Request:
  - Body: logoutRequest (RefreshToken), optional

Response:
  - 204: No Content: Session terminated
*/
func (handler *Handler) logout(writer http.ResponseWriter, request *http.Request) {
	var input logoutRequest

	// A missing or malformed body is treated as an empty token.
	_ = requestutil.DecodeJSON(request, &input)

	if err := handler.identityService.Logout(request.Context(), input.RefreshToken); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.NoContent(writer)
}

/*
Me returns the authenticated user's profile.

GET /api/v1/auth/me

Response:
  - 200: User: Account profile with permissions
  - 401: ErrUnauthorized: Authentication required
*/
func (handler *Handler) me(writer http.ResponseWriter, request *http.Request) {
	claims, err := requestutil.RequiredClaims(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	user, err := handler.identityService.CurrentUser(request.Context(), claims.UserID)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]any{
		FieldUser:     user,
		"permissions": user.Role.Permissions(),
	})
}

/*
RequestPasswordReset initiates the password recovery flow.

POST /api/v1/auth/password-reset

Description: Sends a reset token to the provided email if the account exists.
Always returns the same generic message to prevent user enumeration.

Request:
  - Body: passwordResetRequest (Email)

Response:
  - 200: Success: Generic confirmation message
  - 400: ErrInvalidJSON: Invalid email format
*/
func (handler *Handler) requestPasswordReset(writer http.ResponseWriter, request *http.Request) {
	var input passwordResetRequest

	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	v := &validate.Validator{}
	v.Required(FieldEmail, input.Email).Email(FieldEmail, input.Email)

	if err := v.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.identityService.RequestPasswordReset(request.Context(), input.Email); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]string{
		FieldMessage: "If this email is registered, a reset link has been sent.",
	})
}

/*
ConfirmPasswordReset completes the password recovery flow.

POST /api/v1/auth/password-reset/confirm

Description: Validates the reset token, updates the password, and revokes
every active session.

Request:
  - Body: confirmPasswordResetRequest (Token, Password)

Response:
  - 200: Success: Password updated
  - 400: ErrInvalidJSON: Bad token or weak password
*/
func (handler *Handler) confirmPasswordReset(writer http.ResponseWriter, request *http.Request) {
	var input confirmPasswordResetRequest

	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	v := &validate.Validator{}
	v.Required(FieldToken, input.Token).
		Required(FieldPassword, input.Password).
		MinLen(FieldPassword, input.Password, 8)

	if err := v.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.identityService.ConfirmPasswordReset(request.Context(), input.Token, input.Password); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]string{
		FieldMessage: "Password updated successfully",
	})
}

/*
ChangePassword updates the authenticated user's password.

POST /api/v1/auth/change-password

Description: Verifies the current password before applying the new one, then
revokes every active session so all devices must log in again.

Request:
  - Body: changePasswordRequest (CurrentPassword, NewPassword)

Response:
  - 200: Success: Password changed
  - 401: ErrUnauthorized: Wrong current password or authentication required
  - 400: ErrInvalidJSON: Weak password or validation failure
*/
func (handler *Handler) changePassword(writer http.ResponseWriter, request *http.Request) {
	claims, err := requestutil.RequiredClaims(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var input changePasswordRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	v := &validate.Validator{}
	v.Required(FieldCurrentPassword, input.CurrentPassword).
		Required(FieldNewPassword, input.NewPassword).
		MinLen(FieldNewPassword, input.NewPassword, 8)

	if err := v.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	err = handler.identityService.ChangePassword(
		request.Context(),
		claims.UserID,
		input.CurrentPassword,
		input.NewPassword,
	)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]string{
		FieldMessage: "Password changed successfully",
	})
}
