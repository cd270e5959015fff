// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parley Contributors

// Package web serves the account-intake HTTP API: signup email checks,
// registration, login, and password resets.
package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/parleychat/parley/internal/accounts"
	"github.com/parleychat/parley/internal/observability"
	"github.com/parleychat/parley/internal/realm"
	"github.com/parleychat/parley/internal/signup"
	"github.com/parleychat/parley/pkg/errutil"
	"github.com/parleychat/parley/pkg/fielderr"
)

// SignupService gates signup emails and registers accounts.
type SignupService interface {
	CheckSignupEmail(ctx context.Context, email, subdomain, domainOverride string) error
	CheckRealmCreationEmail(ctx context.Context, email string) error
	Register(ctx context.Context, req signup.RegisterRequest) (*accounts.User, []*fielderr.Error, error)
}

// AuthService authenticates users and manages web sessions.
type AuthService interface {
	Login(ctx context.Context, email, password, subdomain, userAgent, ipAddress string) (*accounts.WebSession, string, error)
}

// ResetService issues and redeems password reset tokens.
type ResetService interface {
	RequestReset(ctx context.Context, email string) ([]accounts.ResetGrant, error)
	ResetPassword(ctx context.Context, token, newPassword string) error
}

// Handler holds the services behind the intake endpoints.
type Handler struct {
	signup       SignupService
	auth         AuthService
	resets       ResetService
	logger       *slog.Logger
	metrics      *observability.Metrics
	externalHost string

	// openRealmCreation allows registrations that found a new organization.
	openRealmCreation bool
}

// NewHandler creates the intake handler. externalHost is the canonical host
// the server is reached on; subdomains of it select an organization.
func NewHandler(
	signupSvc SignupService,
	authSvc AuthService,
	resetSvc ResetService,
	logger *slog.Logger,
	metrics *observability.Metrics,
	externalHost string,
) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		signup:       signupSvc,
		auth:         authSvc,
		resets:       resetSvc,
		logger:       logger,
		metrics:      metrics,
		externalHost: externalHost,
	}
}

// AllowRealmCreation enables registrations that found a new organization.
func (h *Handler) AllowRealmCreation() {
	h.openRealmCreation = true
}

// Register mounts the intake routes on the router.
func (h *Handler) Register(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/signup/check-email", h.handleSignupCheckEmail)
		r.Post("/register", h.handleRegister)
		r.Post("/realms/check-email", h.handleRealmCheckEmail)
		r.Post("/login", h.handleLogin)
		r.Post("/password-reset", h.handlePasswordReset)
		r.Post("/password-reset/confirm", h.handlePasswordResetConfirm)
	})
	r.Get("/healthz", h.handleHealthz)
}

type checkEmailRequest struct {
	Email     string `json:"email"`
	Subdomain string `json:"subdomain"`
	Domain    string `json:"domain"`
}

type okResponse struct {
	OK bool `json:"ok"`
}

func (h *Handler) handleSignupCheckEmail(w http.ResponseWriter, r *http.Request) {
	var req checkEmailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w)
		return
	}

	subdomain := req.Subdomain
	if subdomain == "" {
		subdomain = realm.SubdomainFromHost(r.Host, h.externalHost)
	}

	if err := accounts.ValidateEmail(req.Email); err != nil {
		h.rejectField(w, "signup_check", err)
		return
	}

	if err := h.signup.CheckSignupEmail(r.Context(), req.Email, subdomain, req.Domain); err != nil {
		if fe, ok := fielderr.As(err); ok {
			h.metrics.RecordSignupCheck("rejected")
			h.metrics.RecordValidationFailure("signup_check", fe.Field)
			writeFieldErrors(w, []*fielderr.Error{fe})
			return
		}
		h.metrics.RecordSignupCheck("error")
		writeError(w, h.logger, "signup email check failed", err)
		return
	}

	h.metrics.RecordSignupCheck("allowed")
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

func (h *Handler) handleRealmCheckEmail(w http.ResponseWriter, r *http.Request) {
	var req checkEmailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w)
		return
	}

	if err := accounts.ValidateEmail(req.Email); err != nil {
		h.rejectField(w, "realm_creation", err)
		return
	}

	if err := h.signup.CheckRealmCreationEmail(r.Context(), req.Email); err != nil {
		if fe, ok := fielderr.As(err); ok {
			h.metrics.RecordValidationFailure("realm_creation", fe.Field)
			writeFieldErrors(w, []*fielderr.Error{fe})
			return
		}
		writeError(w, h.logger, "realm creation email check failed", err)
		return
	}

	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

type registerRequest struct {
	Email          string `json:"email"`
	Subdomain      string `json:"subdomain"`
	Domain         string `json:"domain"`
	FullName       string `json:"full_name"`
	Password       string `json:"password"`
	RealmName      string `json:"realm_name"`
	RealmSubdomain string `json:"realm_subdomain"`
	RealmOrgType   string `json:"realm_org_type"`
	TermsAccepted  bool   `json:"terms_accepted"`
}

type registerResponse struct {
	UserID   string `json:"user_id"`
	RealmID  string `json:"realm_id"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w)
		return
	}

	if req.RealmSubdomain != "" && !h.openRealmCreation {
		h.metrics.RecordValidationFailure("registration", "realm_subdomain")
		writeFieldErrors(w, []*fielderr.Error{
			fielderr.New("realm_subdomain", "New organization creation is disabled on this server."),
		})
		return
	}

	subdomain := req.Subdomain
	if subdomain == "" {
		subdomain = realm.SubdomainFromHost(r.Host, h.externalHost)
	}

	user, fieldErrs, err := h.signup.Register(r.Context(), signup.RegisterRequest{
		Email:          req.Email,
		Subdomain:      subdomain,
		DomainOverride: req.Domain,
		Form: signup.RegistrationForm{
			FullName:       req.FullName,
			Password:       req.Password,
			RealmName:      req.RealmName,
			RealmSubdomain: req.RealmSubdomain,
			RealmOrgType:   req.RealmOrgType,
			TermsAccepted:  req.TermsAccepted,
		},
	})
	if err != nil {
		writeError(w, h.logger, "registration failed", err)
		return
	}
	if len(fieldErrs) > 0 {
		for _, fe := range fieldErrs {
			h.metrics.RecordValidationFailure("registration", fe.Field)
		}
		writeFieldErrors(w, fieldErrs)
		return
	}

	h.logger.Info("account registered",
		"user_id", user.ID.String(),
		"realm_id", user.RealmID.String())

	writeJSON(w, http.StatusCreated, registerResponse{
		UserID:   user.ID.String(),
		RealmID:  user.RealmID.String(),
		Email:    user.Email,
		FullName: user.FullName,
	})
}

type loginRequest struct {
	Email    string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w)
		return
	}

	subdomain := realm.SubdomainFromHost(r.Host, h.externalHost)

	session, token, err := h.auth.Login(r.Context(),
		req.Email, req.Password, subdomain, r.UserAgent(), remoteIP(r))
	if err != nil {
		if fe, ok := fielderr.As(err); ok {
			h.metrics.RecordLogin("rejected")
			h.metrics.RecordValidationFailure("login", fe.Field)
			writeFieldErrors(w, []*fielderr.Error{fe})
			return
		}
		h.metrics.RecordLogin("error")
		writeError(w, h.logger, "login failed", err)
		return
	}

	h.metrics.RecordLogin("success")
	writeJSON(w, http.StatusOK, loginResponse{
		Token:     token,
		ExpiresAt: session.ExpiresAt,
	})
}

type passwordResetRequest struct {
	Email string `json:"email"`
}

func (h *Handler) handlePasswordReset(w http.ResponseWriter, r *http.Request) {
	var req passwordResetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w)
		return
	}

	if err := accounts.ValidateEmail(req.Email); err != nil {
		h.rejectField(w, "password_reset", err)
		return
	}

	grants, err := h.resets.RequestReset(r.Context(), req.Email)
	if err != nil {
		writeError(w, h.logger, "password reset request failed", err)
		return
	}

	// Tokens go out by email. The response never reveals whether the
	// address matched an account.
	for _, grant := range grants {
		h.logger.Info("password reset token issued",
			"user_id", grant.User.ID.String(),
			"realm_id", grant.User.RealmID.String())
	}

	writeJSON(w, http.StatusAccepted, okResponse{OK: true})
}

type passwordResetConfirmRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

func (h *Handler) handlePasswordResetConfirm(w http.ResponseWriter, r *http.Request) {
	var req passwordResetConfirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w)
		return
	}

	if err := h.resets.ResetPassword(r.Context(), req.Token, req.Password); err != nil {
		if fe, ok := fielderr.As(err); ok {
			h.metrics.RecordValidationFailure("password_reset", fe.Field)
			writeFieldErrors(w, []*fielderr.Error{fe})
			return
		}
		switch errutil.Code(err) {
		case "RESET_TOKEN_EMPTY", "RESET_TOKEN_INVALID", "RESET_TOKEN_EXPIRED":
			h.metrics.RecordValidationFailure("password_reset", "token")
			writeFieldErrors(w, []*fielderr.Error{
				fielderr.New("token", "The password reset link has expired or is invalid."),
			})
			return
		}
		writeError(w, h.logger, "password reset confirm failed", err)
		return
	}

	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

func (h *Handler) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	//nolint:errcheck // health check write error is acceptable, client may disconnect
	w.Write([]byte("ok\n"))
}

func (h *Handler) rejectField(w http.ResponseWriter, form string, err error) {
	fe, ok := fielderr.As(err)
	if !ok {
		writeError(w, h.logger, "validation failed", err)
		return
	}
	h.metrics.RecordValidationFailure(form, fe.Field)
	writeFieldErrors(w, []*fielderr.Error{fe})
}

// remoteIP strips the port from the request's remote address.
func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
