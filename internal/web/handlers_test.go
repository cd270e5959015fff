// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parley Contributors

package web

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/parleychat/parley/internal/accounts"
	accountmocks "github.com/parleychat/parley/internal/accounts/mocks"
	realmmocks "github.com/parleychat/parley/internal/realm/mocks"
	"github.com/parleychat/parley/internal/signup"
	"github.com/parleychat/parley/pkg/fielderr"
)

const testExternalHost = "parley.example"

type stubSignupService struct {
	checkSignupEmail        func(ctx context.Context, email, subdomain, domainOverride string) error
	checkRealmCreationEmail func(ctx context.Context, email string) error
	register                func(ctx context.Context, req signup.RegisterRequest) (*accounts.User, []*fielderr.Error, error)
}

func (s *stubSignupService) CheckSignupEmail(ctx context.Context, email, subdomain, domainOverride string) error {
	return s.checkSignupEmail(ctx, email, subdomain, domainOverride)
}

func (s *stubSignupService) CheckRealmCreationEmail(ctx context.Context, email string) error {
	return s.checkRealmCreationEmail(ctx, email)
}

func (s *stubSignupService) Register(ctx context.Context, req signup.RegisterRequest) (*accounts.User, []*fielderr.Error, error) {
	return s.register(ctx, req)
}

type stubAuthService struct {
	login func(ctx context.Context, email, password, subdomain, userAgent, ipAddress string) (*accounts.WebSession, string, error)
}

func (s *stubAuthService) Login(ctx context.Context, email, password, subdomain, userAgent, ipAddress string) (*accounts.WebSession, string, error) {
	return s.login(ctx, email, password, subdomain, userAgent, ipAddress)
}

type stubResetService struct {
	requestReset  func(ctx context.Context, email string) ([]accounts.ResetGrant, error)
	resetPassword func(ctx context.Context, token, newPassword string) error
}

func (s *stubResetService) RequestReset(ctx context.Context, email string) ([]accounts.ResetGrant, error) {
	return s.requestReset(ctx, email)
}

func (s *stubResetService) ResetPassword(ctx context.Context, token, newPassword string) error {
	return s.resetPassword(ctx, token, newPassword)
}

func newTestRouter(signupSvc SignupService, authSvc AuthService, resetSvc ResetService) http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewHandler(signupSvc, authSvc, resetSvc, logger, nil, testExternalHost)
	srv := NewServer(":0", h)
	return srv.Router()
}

func postJSON(t *testing.T, router http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	buf, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(buf))
	req.Header.Set("Content-Type", "application/json")
	req.Host = testExternalHost

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeFieldErrors(t *testing.T, rec *httptest.ResponseRecorder) map[string]string {
	t.Helper()

	var resp struct {
		FieldErrors map[string]string `json:"field_errors"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.FieldErrors
}

func TestHandleSignupCheckEmail(t *testing.T) {
	t.Run("allowed email returns ok", func(t *testing.T) {
		signupSvc := &stubSignupService{
			checkSignupEmail: func(_ context.Context, email, subdomain, domainOverride string) error {
				assert.Equal(t, "ana@corp.example", email)
				assert.Equal(t, "", subdomain)
				assert.Equal(t, "", domainOverride)
				return nil
			},
		}
		router := newTestRouter(signupSvc, nil, nil)

		rec := postJSON(t, router, "/api/v1/signup/check-email", map[string]any{
			"email": "ana@corp.example",
		})

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"ok":true}`, rec.Body.String())
	})

	t.Run("subdomain falls back to request host", func(t *testing.T) {
		var gotSubdomain string
		signupSvc := &stubSignupService{
			checkSignupEmail: func(_ context.Context, _, subdomain, _ string) error {
				gotSubdomain = subdomain
				return nil
			},
		}
		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		h := NewHandler(signupSvc, nil, nil, logger, nil, testExternalHost)
		router := NewServer(":0", h).Router()

		buf, err := json.Marshal(map[string]any{"email": "ana@corp.example"})
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/signup/check-email", bytes.NewReader(buf))
		req.Host = "acme." + testExternalHost

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "acme", gotSubdomain)
	})

	t.Run("explicit subdomain wins over host", func(t *testing.T) {
		var gotSubdomain string
		signupSvc := &stubSignupService{
			checkSignupEmail: func(_ context.Context, _, subdomain, _ string) error {
				gotSubdomain = subdomain
				return nil
			},
		}
		router := newTestRouter(signupSvc, nil, nil)

		rec := postJSON(t, router, "/api/v1/signup/check-email", map[string]any{
			"email":     "ana@corp.example",
			"subdomain": "acme",
		})

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "acme", gotSubdomain)
	})

	t.Run("gate rejection returns 422 with field error", func(t *testing.T) {
		signupSvc := &stubSignupService{
			checkSignupEmail: func(_ context.Context, _, _, _ string) error {
				return fielderr.New("email",
					"Your email does not match any existing open organization. Use a different email address, or contact support@parley.example with questions.")
			},
		}
		router := newTestRouter(signupSvc, nil, nil)

		rec := postJSON(t, router, "/api/v1/signup/check-email", map[string]any{
			"email": "ana@elsewhere.example",
		})

		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		fieldErrs := decodeFieldErrors(t, rec)
		assert.Contains(t, fieldErrs["email"], "does not match any existing open organization")
	})

	t.Run("malformed email rejected before the gates", func(t *testing.T) {
		signupSvc := &stubSignupService{
			checkSignupEmail: func(_ context.Context, _, _, _ string) error {
				t.Fatal("gates should not run for a malformed email")
				return nil
			},
		}
		router := newTestRouter(signupSvc, nil, nil)

		rec := postJSON(t, router, "/api/v1/signup/check-email", map[string]any{
			"email": "not-an-email",
		})

		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		fieldErrs := decodeFieldErrors(t, rec)
		assert.Equal(t, "Enter a valid email address.", fieldErrs["email"])
	})

	t.Run("infrastructure failure returns generic 500", func(t *testing.T) {
		signupSvc := &stubSignupService{
			checkSignupEmail: func(_ context.Context, _, _, _ string) error {
				return assert.AnError
			},
		}
		router := newTestRouter(signupSvc, nil, nil)

		rec := postJSON(t, router, "/api/v1/signup/check-email", map[string]any{
			"email": "ana@corp.example",
		})

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.JSONEq(t, `{"error":"Internal server error"}`, rec.Body.String())
		assert.NotContains(t, rec.Body.String(), assert.AnError.Error())
	})

	t.Run("invalid JSON returns 400", func(t *testing.T) {
		router := newTestRouter(&stubSignupService{}, nil, nil)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/signup/check-email",
			bytes.NewReader([]byte("{not json")))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestHandleRealmCheckEmail(t *testing.T) {
	t.Run("clean email returns ok", func(t *testing.T) {
		signupSvc := &stubSignupService{
			checkRealmCreationEmail: func(_ context.Context, email string) error {
				assert.Equal(t, "founder@corp.example", email)
				return nil
			},
		}
		router := newTestRouter(signupSvc, nil, nil)

		rec := postJSON(t, router, "/api/v1/realms/check-email", map[string]any{
			"email": "founder@corp.example",
		})

		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("disposable email rejected", func(t *testing.T) {
		signupSvc := &stubSignupService{
			checkRealmCreationEmail: func(_ context.Context, _ string) error {
				return fielderr.New("email", "Please use your real email address.")
			},
		}
		router := newTestRouter(signupSvc, nil, nil)

		rec := postJSON(t, router, "/api/v1/realms/check-email", map[string]any{
			"email": "founder@mailinator.com",
		})

		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		fieldErrs := decodeFieldErrors(t, rec)
		assert.Equal(t, "Please use your real email address.", fieldErrs["email"])
	})
}

func TestHandleRegister(t *testing.T) {
	t.Run("successful registration returns 201", func(t *testing.T) {
		userID := ulid.Make()
		realmID := ulid.Make()
		signupSvc := &stubSignupService{
			register: func(_ context.Context, req signup.RegisterRequest) (*accounts.User, []*fielderr.Error, error) {
				assert.Equal(t, "ana@corp.example", req.Email)
				assert.Equal(t, "Ana Lopez", req.Form.FullName)
				assert.True(t, req.Form.TermsAccepted)
				return &accounts.User{
					ID:       userID,
					RealmID:  realmID,
					Email:    "ana@corp.example",
					FullName: "Ana Lopez",
				}, nil, nil
			},
		}
		router := newTestRouter(signupSvc, nil, nil)

		rec := postJSON(t, router, "/api/v1/register", map[string]any{
			"email":          "ana@corp.example",
			"full_name":      "Ana Lopez",
			"password":       "correct horse",
			"terms_accepted": true,
		})

		assert.Equal(t, http.StatusCreated, rec.Code)

		var resp registerResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, userID.String(), resp.UserID)
		assert.Equal(t, realmID.String(), resp.RealmID)
		assert.Equal(t, "ana@corp.example", resp.Email)
	})

	t.Run("field rejections collected into one 422", func(t *testing.T) {
		signupSvc := &stubSignupService{
			register: func(_ context.Context, _ signup.RegisterRequest) (*accounts.User, []*fielderr.Error, error) {
				return nil, []*fielderr.Error{
					fielderr.New("full_name", "This field is required."),
					fielderr.New("password", "Password must be at least 6 characters long."),
				}, nil
			},
		}
		router := newTestRouter(signupSvc, nil, nil)

		rec := postJSON(t, router, "/api/v1/register", map[string]any{
			"email":    "ana@corp.example",
			"password": "short",
		})

		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		fieldErrs := decodeFieldErrors(t, rec)
		assert.Len(t, fieldErrs, 2)
		assert.Equal(t, "This field is required.", fieldErrs["full_name"])
		assert.Equal(t, "Password must be at least 6 characters long.", fieldErrs["password"])
	})

	t.Run("infrastructure failure returns generic 500", func(t *testing.T) {
		signupSvc := &stubSignupService{
			register: func(_ context.Context, _ signup.RegisterRequest) (*accounts.User, []*fielderr.Error, error) {
				return nil, nil, assert.AnError
			},
		}
		router := newTestRouter(signupSvc, nil, nil)

		rec := postJSON(t, router, "/api/v1/register", map[string]any{
			"email": "ana@corp.example",
		})

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})

	t.Run("founding rejected when realm creation is disabled", func(t *testing.T) {
		signupSvc := &stubSignupService{
			register: func(_ context.Context, _ signup.RegisterRequest) (*accounts.User, []*fielderr.Error, error) {
				t.Fatal("register should not run when realm creation is disabled")
				return nil, nil, nil
			},
		}
		router := newTestRouter(signupSvc, nil, nil)

		rec := postJSON(t, router, "/api/v1/register", map[string]any{
			"email":           "founder@corp.example",
			"realm_subdomain": "newcorp",
		})

		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		fieldErrs := decodeFieldErrors(t, rec)
		assert.Equal(t, "New organization creation is disabled on this server.", fieldErrs["realm_subdomain"])
	})

	t.Run("founding allowed after AllowRealmCreation", func(t *testing.T) {
		signupSvc := &stubSignupService{
			register: func(_ context.Context, req signup.RegisterRequest) (*accounts.User, []*fielderr.Error, error) {
				assert.Equal(t, "newcorp", req.Form.RealmSubdomain)
				return &accounts.User{ID: ulid.Make(), RealmID: ulid.Make()}, nil, nil
			},
		}
		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		h := NewHandler(signupSvc, nil, nil, logger, nil, testExternalHost)
		h.AllowRealmCreation()
		router := NewServer(":0", h).Router()

		rec := postJSON(t, router, "/api/v1/register", map[string]any{
			"email":           "founder@corp.example",
			"realm_subdomain": "newcorp",
		})

		assert.Equal(t, http.StatusCreated, rec.Code)
	})
}

func TestHandleLogin(t *testing.T) {
	t.Run("successful login returns token", func(t *testing.T) {
		expiresAt := time.Now().Add(accounts.SessionTokenExpiry).UTC().Truncate(time.Second)
		authSvc := &stubAuthService{
			login: func(_ context.Context, email, password, subdomain, _, _ string) (*accounts.WebSession, string, error) {
				assert.Equal(t, "ana@corp.example", email)
				assert.Equal(t, "correct horse", password)
				assert.Equal(t, "acme", subdomain)
				return &accounts.WebSession{ExpiresAt: expiresAt}, "session-token", nil
			},
		}
		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		h := NewHandler(nil, authSvc, nil, logger, nil, testExternalHost)
		router := NewServer(":0", h).Router()

		buf, err := json.Marshal(map[string]any{
			"username": "ana@corp.example",
			"password": "correct horse",
		})
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/login", bytes.NewReader(buf))
		req.Host = "acme." + testExternalHost

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)

		var resp loginResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "session-token", resp.Token)
		assert.True(t, resp.ExpiresAt.Equal(expiresAt))
	})

	t.Run("deactivated organization message reaches the user", func(t *testing.T) {
		authSvc := &stubAuthService{
			login: func(_ context.Context, _, _, _, _, _ string) (*accounts.WebSession, string, error) {
				return nil, "", fielderr.New("username",
					"Sorry for the trouble, but Acme has been deactivated.\n\nPlease contact support@parley.example to reactivate this group.")
			},
		}
		router := newTestRouter(nil, authSvc, nil)

		rec := postJSON(t, router, "/api/v1/login", map[string]any{
			"username": "ana@corp.example",
			"password": "correct horse",
		})

		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		fieldErrs := decodeFieldErrors(t, rec)
		assert.Contains(t, fieldErrs["username"], "has been deactivated")
	})

	t.Run("credential failure stays generic", func(t *testing.T) {
		authSvc := &stubAuthService{
			login: func(_ context.Context, _, _, _, _, _ string) (*accounts.WebSession, string, error) {
				return nil, "", fielderr.New("username", "Please enter a correct email and password.")
			},
		}
		router := newTestRouter(nil, authSvc, nil)

		rec := postJSON(t, router, "/api/v1/login", map[string]any{
			"username": "ana@corp.example",
			"password": "wrong",
		})

		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		fieldErrs := decodeFieldErrors(t, rec)
		assert.Equal(t, "Please enter a correct email and password.", fieldErrs["username"])
	})

	t.Run("unknown email yields 422 through the auth service", func(t *testing.T) {
		users := accountmocks.NewMockUserRepository(t)
		realms := realmmocks.NewMockRepository(t)
		sessions := accountmocks.NewMockWebSessionRepository(t)
		hasher := accountmocks.NewMockPasswordHasher(t)
		authSvc := accounts.NewAuthService(users, realms, sessions, hasher, "support@parley.example", true)

		users.On("GetByEmail", mock.Anything, "nobody@corp.example").Return(nil, accounts.ErrNotFound)
		hasher.On("Verify", "whatever", mock.AnythingOfType("string")).Return(false, nil)

		router := newTestRouter(nil, authSvc, nil)

		rec := postJSON(t, router, "/api/v1/login", map[string]any{
			"username": "nobody@corp.example",
			"password": "whatever",
		})

		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		fieldErrs := decodeFieldErrors(t, rec)
		assert.Equal(t, "Please enter a correct email and password.", fieldErrs["username"])
	})
}

func TestHandlePasswordReset(t *testing.T) {
	t.Run("known email returns 202", func(t *testing.T) {
		resetSvc := &stubResetService{
			requestReset: func(_ context.Context, email string) ([]accounts.ResetGrant, error) {
				assert.Equal(t, "ana@corp.example", email)
				return []accounts.ResetGrant{
					{User: &accounts.User{ID: ulid.Make(), RealmID: ulid.Make()}, Token: "reset-token"},
				}, nil
			},
		}
		router := newTestRouter(nil, nil, resetSvc)

		rec := postJSON(t, router, "/api/v1/password-reset", map[string]any{
			"email": "ana@corp.example",
		})

		assert.Equal(t, http.StatusAccepted, rec.Code)
		assert.JSONEq(t, `{"ok":true}`, rec.Body.String())
	})

	t.Run("unknown email returns the same 202", func(t *testing.T) {
		resetSvc := &stubResetService{
			requestReset: func(_ context.Context, _ string) ([]accounts.ResetGrant, error) {
				return nil, nil
			},
		}
		router := newTestRouter(nil, nil, resetSvc)

		rec := postJSON(t, router, "/api/v1/password-reset", map[string]any{
			"email": "nobody@corp.example",
		})

		assert.Equal(t, http.StatusAccepted, rec.Code)
		assert.JSONEq(t, `{"ok":true}`, rec.Body.String())
	})

	t.Run("token never appears in the response", func(t *testing.T) {
		resetSvc := &stubResetService{
			requestReset: func(_ context.Context, _ string) ([]accounts.ResetGrant, error) {
				return []accounts.ResetGrant{
					{User: &accounts.User{ID: ulid.Make()}, Token: "secret-reset-token"},
				}, nil
			},
		}
		router := newTestRouter(nil, nil, resetSvc)

		rec := postJSON(t, router, "/api/v1/password-reset", map[string]any{
			"email": "ana@corp.example",
		})

		assert.NotContains(t, rec.Body.String(), "secret-reset-token")
	})
}

func TestHandlePasswordResetConfirm(t *testing.T) {
	t.Run("valid token resets the password", func(t *testing.T) {
		resetSvc := &stubResetService{
			resetPassword: func(_ context.Context, token, newPassword string) error {
				assert.Equal(t, "reset-token", token)
				assert.Equal(t, "new password", newPassword)
				return nil
			},
		}
		router := newTestRouter(nil, nil, resetSvc)

		rec := postJSON(t, router, "/api/v1/password-reset/confirm", map[string]any{
			"token":    "reset-token",
			"password": "new password",
		})

		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("short password rejected on the password field", func(t *testing.T) {
		resetSvc := &stubResetService{
			resetPassword: func(_ context.Context, _, _ string) error {
				return fielderr.New("password", "Password must be at least 6 characters long.")
			},
		}
		router := newTestRouter(nil, nil, resetSvc)

		rec := postJSON(t, router, "/api/v1/password-reset/confirm", map[string]any{
			"token":    "reset-token",
			"password": "short",
		})

		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		fieldErrs := decodeFieldErrors(t, rec)
		assert.Equal(t, "Password must be at least 6 characters long.", fieldErrs["password"])
	})

	t.Run("expired token rejected on the token field", func(t *testing.T) {
		resetSvc := &stubResetService{
			resetPassword: func(_ context.Context, _, _ string) error {
				return oops.Code("RESET_TOKEN_EXPIRED").Errorf("reset token expired")
			},
		}
		router := newTestRouter(nil, nil, resetSvc)

		rec := postJSON(t, router, "/api/v1/password-reset/confirm", map[string]any{
			"token":    "stale",
			"password": "new password",
		})

		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		fieldErrs := decodeFieldErrors(t, rec)
		assert.Equal(t, "The password reset link has expired or is invalid.", fieldErrs["token"])
	})

	t.Run("storage failure returns generic 500", func(t *testing.T) {
		resetSvc := &stubResetService{
			resetPassword: func(_ context.Context, _, _ string) error {
				return assert.AnError
			},
		}
		router := newTestRouter(nil, nil, resetSvc)

		rec := postJSON(t, router, "/api/v1/password-reset/confirm", map[string]any{
			"token":    "reset-token",
			"password": "new password",
		})

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestHandleHealthz(t *testing.T) {
	router := newTestRouter(nil, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok\n", rec.Body.String())
}
