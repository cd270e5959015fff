// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parley Contributors

package signup

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/samber/oops"

	"github.com/parleychat/parley/internal/accounts"
	"github.com/parleychat/parley/internal/realm"
	"github.com/parleychat/parley/pkg/fielderr"
)

// User-facing gate rejection messages.
const (
	noMatchMessage       = "Your email does not match any existing open organization. Use a different email address, or contact %s with questions."
	disposableMessage    = "Please use your real email address."
	alreadyActiveMessage = "%s is already active"
	termsMessage         = "You must accept the Terms of Service to register."
)

// Service applies the signup and organization-creation gates.
type Service struct {
	realms  realm.Repository
	users   accounts.UserRepository
	mailing *MailingListChecker
	hasher  accounts.PasswordHasher

	supportEmail        string
	passwordAuthEnabled bool
	termsConfigured     bool
	wording             realm.KeyWording
}

// NewService creates a signup Service.
func NewService(realms realm.Repository, users accounts.UserRepository, mailing *MailingListChecker, hasher accounts.PasswordHasher, supportEmail string, passwordAuthEnabled, termsConfigured bool) *Service {
	return &Service{
		realms:              realms,
		users:               users,
		mailing:             mailing,
		hasher:              hasher,
		supportEmail:        supportEmail,
		passwordAuthEnabled: passwordAuthEnabled,
		termsConfigured:     termsConfigured,
		wording:             realm.SubdomainWording,
	}
}

// UseShortNameWording switches realm key rejections to the short-name
// message set, for deployments that do not route realms by subdomain.
func (s *Service) UseShortNameWording() {
	s.wording = realm.ShortNameWording
}

// CheckSignupEmail decides whether the address may join an organization on
// this server. subdomain and domainOverride come from the request and may be
// empty.
//
// Gates, in order: the server's unique open realm, an explicitly named open
// realm, the subdomain's open realm, then resolution by the email's domain.
// A mirror realm additionally verifies the address against its directory
// DNS allow-list.
func (s *Service) CheckSignupEmail(ctx context.Context, email, subdomain, domainOverride string) error {
	exists, err := s.users.ExistsActiveByEmail(ctx, email)
	if err != nil {
		return oops.Code("SIGNUP_CHECK_FAILED").
			With("operation", "check active user").
			Wrap(err)
	}
	if exists {
		return fielderr.New("email", fmt.Sprintf(alreadyActiveMessage, email))
	}

	if rm, err := s.realms.UniqueOpenRealm(ctx); err == nil && rm != nil {
		return nil
	} else if err != nil && !errors.Is(err, realm.ErrNotFound) {
		return oops.Code("SIGNUP_CHECK_FAILED").
			With("operation", "unique open realm").
			Wrap(err)
	}

	if domainOverride != "" {
		rm, err := s.getByDomain(ctx, strings.ToLower(domainOverride))
		if err != nil {
			return err
		}
		if rm != nil && rm.CompletelyOpen() {
			return nil
		}
	}

	if subdomain != "" {
		rm, err := s.realms.GetBySubdomain(ctx, subdomain)
		if err != nil && !errors.Is(err, realm.ErrNotFound) {
			return oops.Code("SIGNUP_CHECK_FAILED").
				With("operation", "get realm by subdomain").
				Wrap(err)
		}
		if rm != nil && rm.CompletelyOpen() {
			return nil
		}
	}

	domain, ok := realm.DomainOfEmail(email)
	if !ok {
		return fielderr.New("email", "Enter a valid email address.")
	}

	rm, err := s.resolveEmailDomain(ctx, domain)
	if err != nil {
		return err
	}
	if rm == nil || rm.InviteRequired {
		return fielderr.New("email", fmt.Sprintf(noMatchMessage, s.supportEmail))
	}

	if !rm.MirrorMode {
		return nil
	}
	return s.mailing.Check(ctx, email)
}

// CheckRealmCreationEmail decides whether the address may found a new
// organization: it must not belong to an existing active account and must
// not come from a disposable email provider.
func (s *Service) CheckRealmCreationEmail(ctx context.Context, email string) error {
	exists, err := s.users.ExistsActiveByEmail(ctx, email)
	if err != nil {
		return oops.Code("SIGNUP_CHECK_FAILED").
			With("operation", "check active user").
			Wrap(err)
	}
	if exists {
		return fielderr.New("email", fmt.Sprintf(alreadyActiveMessage, email))
	}
	if IsDisposableEmail(email) {
		return fielderr.New("email", disposableMessage)
	}
	return nil
}

// getByDomain looks up a realm by exact email domain, mapping ErrNotFound
// to a nil realm.
func (s *Service) getByDomain(ctx context.Context, domain string) (*realm.Realm, error) {
	rm, err := s.realms.GetByDomain(ctx, domain)
	if err != nil {
		if errors.Is(err, realm.ErrNotFound) {
			return nil, nil
		}
		return nil, oops.Code("SIGNUP_CHECK_FAILED").
			With("operation", "get realm by domain").
			With("domain", domain).
			Wrap(err)
	}
	return rm, nil
}

// resolveEmailDomain finds the realm claiming an email domain. The exact
// domain wins; otherwise parent domains are tried for realms that allow
// subdomain addresses. The walk stops before single-label domains; a bare
// TLD is never a realm domain.
func (s *Service) resolveEmailDomain(ctx context.Context, domain string) (*realm.Realm, error) {
	rm, err := s.getByDomain(ctx, domain)
	if err != nil {
		return nil, err
	}
	if rm != nil {
		return rm, nil
	}

	for {
		i := strings.Index(domain, ".")
		if i < 0 {
			return nil, nil
		}
		domain = domain[i+1:]
		if !strings.Contains(domain, ".") {
			return nil, nil
		}
		rm, err := s.getByDomain(ctx, domain)
		if err != nil {
			return nil, err
		}
		if rm != nil && rm.AllowSubdomains {
			return rm, nil
		}
	}
}

// RegistrationForm is the submitted registration payload.
type RegistrationForm struct {
	FullName       string
	Password       string
	RealmName      string
	RealmSubdomain string
	RealmOrgType   string
	TermsAccepted  bool
}

// ValidateRegistration checks the registration form and returns every field
// rejection found. The second return value is set only on infrastructure
// failures.
func (s *Service) ValidateRegistration(ctx context.Context, form RegistrationForm) ([]*fielderr.Error, error) {
	var fieldErrs []*fielderr.Error
	collect := func(err error) {
		if err == nil {
			return
		}
		if fe, ok := fielderr.As(err); ok {
			fieldErrs = append(fieldErrs, fe)
		}
	}

	collect(accounts.ValidateFullName(form.FullName))

	if s.passwordAuthEnabled {
		collect(accounts.ValidatePassword(form.Password))
	} else if form.Password != "" && len(form.Password) > accounts.MaxPasswordLength {
		collect(fielderr.New("password", fmt.Sprintf("Password cannot be longer than %d characters.", accounts.MaxPasswordLength)))
	}

	if len(form.RealmName) > realm.MaxNameLength {
		collect(fielderr.New("realm_name", fmt.Sprintf("Organization name is too long; %d characters maximum.", realm.MaxNameLength)))
	}

	if err := realm.ValidateKey(form.RealmSubdomain, s.wording); err != nil {
		collect(err)
	} else if form.RealmSubdomain != "" {
		taken, err := s.realms.ExistsBySubdomain(ctx, form.RealmSubdomain)
		if err != nil {
			return nil, oops.Code("SIGNUP_CHECK_FAILED").
				With("operation", "check subdomain availability").
				Wrap(err)
		}
		if taken {
			collect(realm.UnavailableError(s.wording))
		}
	}

	if form.RealmOrgType != "" && !realm.OrgType(form.RealmOrgType).Valid() {
		collect(fielderr.New("realm_org_type", "Invalid organization type."))
	}

	if s.termsConfigured && !form.TermsAccepted {
		collect(fielderr.New("terms", termsMessage))
	}

	return fieldErrs, nil
}

// RegisterRequest is a complete registration: the form plus the request
// context the gates need.
type RegisterRequest struct {
	Email          string
	Subdomain      string
	DomainOverride string
	Form           RegistrationForm
}

// Register validates a registration end to end and creates the account.
// A non-empty Form.RealmSubdomain founds a new organization; otherwise the
// account joins the organization the gates resolve. Field rejections come
// back in the first return value; the error is set only on infrastructure
// failures.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*accounts.User, []*fielderr.Error, error) {
	if err := accounts.ValidateEmail(req.Email); err != nil {
		fe, _ := fielderr.As(err)
		return nil, []*fielderr.Error{fe}, nil
	}

	fieldErrs, err := s.ValidateRegistration(ctx, req.Form)
	if err != nil {
		return nil, nil, err
	}
	if len(fieldErrs) > 0 {
		return nil, fieldErrs, nil
	}

	creatingRealm := req.Form.RealmSubdomain != ""

	var gateErr error
	if creatingRealm {
		gateErr = s.CheckRealmCreationEmail(ctx, req.Email)
	} else {
		gateErr = s.CheckSignupEmail(ctx, req.Email, req.Subdomain, req.DomainOverride)
	}
	if gateErr != nil {
		if fe, ok := fielderr.As(gateErr); ok {
			return nil, []*fielderr.Error{fe}, nil
		}
		return nil, nil, gateErr
	}

	now := time.Now()

	var target *realm.Realm
	if creatingRealm {
		domain, _ := realm.DomainOfEmail(req.Email)
		name := req.Form.RealmName
		if name == "" {
			name = req.Form.RealmSubdomain
		}
		target, err = realm.New(name, req.Form.RealmSubdomain, domain, realm.OrgType(req.Form.RealmOrgType), now)
		if err != nil {
			return nil, nil, oops.Code("SIGNUP_REGISTER_FAILED").
				With("operation", "build realm").
				Wrap(err)
		}
		if err := s.realms.Create(ctx, target); err != nil {
			if errors.Is(err, realm.ErrAlreadyExists) {
				return nil, []*fielderr.Error{realm.UnavailableError(s.wording)}, nil
			}
			return nil, nil, oops.Code("SIGNUP_REGISTER_FAILED").
				With("operation", "create realm").
				Wrap(err)
		}
	} else {
		target, err = s.resolveSignupRealm(ctx, req.Email, req.Subdomain)
		if err != nil {
			return nil, nil, err
		}
		if target == nil {
			return nil, []*fielderr.Error{fielderr.New("email", fmt.Sprintf(noMatchMessage, s.supportEmail))}, nil
		}
	}

	var passwordHash string
	if req.Form.Password != "" {
		passwordHash, err = s.hasher.Hash(req.Form.Password)
		if err != nil {
			return nil, nil, oops.Code("SIGNUP_REGISTER_FAILED").
				With("operation", "hash password").
				Wrap(err)
		}
	}

	user, err := accounts.NewUser(target.ID, req.Email, req.Form.FullName, passwordHash, now)
	if err != nil {
		return nil, nil, oops.Code("SIGNUP_REGISTER_FAILED").
			With("operation", "build user").
			Wrap(err)
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, nil, oops.Code("SIGNUP_REGISTER_FAILED").
			With("operation", "create user").
			Wrap(err)
	}
	return user, nil, nil
}

// resolveSignupRealm finds the realm a non-founding registration joins.
func (s *Service) resolveSignupRealm(ctx context.Context, email, subdomain string) (*realm.Realm, error) {
	if subdomain != "" {
		rm, err := s.realms.GetBySubdomain(ctx, subdomain)
		if err != nil && !errors.Is(err, realm.ErrNotFound) {
			return nil, oops.Code("SIGNUP_REGISTER_FAILED").
				With("operation", "get realm by subdomain").
				Wrap(err)
		}
		if rm != nil {
			return rm, nil
		}
	}

	if rm, err := s.realms.UniqueOpenRealm(ctx); err == nil {
		return rm, nil
	} else if !errors.Is(err, realm.ErrNotFound) {
		return nil, oops.Code("SIGNUP_REGISTER_FAILED").
			With("operation", "unique open realm").
			Wrap(err)
	}

	domain, ok := realm.DomainOfEmail(email)
	if !ok {
		return nil, nil
	}
	return s.resolveEmailDomain(ctx, domain)
}
