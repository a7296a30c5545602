package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/roomkartz/roomkartz-api/internal/apperr"
	"github.com/roomkartz/roomkartz-api/internal/logging"
	"github.com/roomkartz/roomkartz-api/internal/metrics"
	"github.com/roomkartz/roomkartz-api/internal/otp"
	"github.com/roomkartz/roomkartz-api/internal/user"
)

var (
	ErrInvalidCredentials    = apperr.New(apperr.ErrInvalidArgument, "invalid credentials")
	ErrPasswordRequired      = apperr.New(apperr.ErrInvalidArgument, "password is required")
	ErrPasswordTooShort      = apperr.New(apperr.ErrInvalidArgument, "password must be at least 8 characters")
	ErrMobileRequired        = apperr.New(apperr.ErrInvalidArgument, "mobile is required")
	ErrInvalidEmailFormat    = apperr.New(apperr.ErrInvalidArgument, "invalid email format")
	ErrInvalidOwnerData      = apperr.New(apperr.ErrInvalidArgument, "invalid owner data")
	ErrExternalAccount       = apperr.New(apperr.ErrInvalidArgument, "account uses external sign-in")
	ErrPasswordLoginDisabled = apperr.New(apperr.ErrForbidden, "password sign-in is disabled")
)

// Service handles account business logic
type Service struct {
	users       user.Repository
	issuer      Issuer
	sender      otp.Sender
	logger      *logging.Logger
	resetWindow time.Duration
	now         func() time.Time
}

// NewService creates the account service. issuer is nil when the deployment
// authenticates through an external identity provider, which disables
// password registration and login.
func NewService(users user.Repository, issuer Issuer, sender otp.Sender, logger *logging.Logger, resetWindow time.Duration) *Service {
	return &Service{
		users:       users,
		issuer:      issuer,
		sender:      sender,
		logger:      logger,
		resetWindow: resetWindow,
		now:         time.Now,
	}
}

type RegisterInput struct {
	Name     string
	Email    string
	Mobile   string
	Password string
	Role     user.Role
}

// LoginResult is returned after a successful password login
type LoginResult struct {
	Token string     `json:"token"`
	User  *user.User `json:"user"`
}

// PublicUser is the listing projection of a user
type PublicUser struct {
	Name        string    `json:"name"`
	PhoneNumber string    `json:"phoneNumber"`
	Role        user.Role `json:"role"`
	IsActive    bool      `json:"isActive"`
}

// Register creates a password account
func (s *Service) Register(ctx context.Context, in RegisterInput) (*user.User, error) {
	if s.issuer == nil {
		return nil, ErrPasswordLoginDisabled
	}

	email := otp.NormalizeEmail(in.Email)
	if email != "" && !otp.ValidEmail(email) {
		return nil, ErrInvalidEmailFormat
	}

	mobile := strings.TrimSpace(in.Mobile)
	if mobile == "" {
		return nil, ErrMobileRequired
	}
	if err := validatePassword(in.Password); err != nil {
		return nil, err
	}

	role := in.Role
	if role == "" {
		role = user.RoleUser
	}
	if !role.Valid() {
		return nil, user.ErrInvalidRole
	}

	passwordHash, err := HashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	created, err := s.users.Create(ctx, &user.User{
		Name:         strings.TrimSpace(in.Name),
		Email:        email,
		Mobile:       mobile,
		PasswordHash: passwordHash,
		Role:         role,
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("user registered", "user_id", created.ID, "role", created.Role)
	return created, nil
}

// Login checks a password against the account found by mobile, or by email
// when no mobile is given, marks it active and issues a token
func (s *Service) Login(ctx context.Context, mobile, email, password string) (*LoginResult, error) {
	if s.issuer == nil {
		return nil, ErrPasswordLoginDisabled
	}
	if password == "" {
		return nil, ErrInvalidCredentials
	}

	var subject user.Subject
	switch {
	case strings.TrimSpace(mobile) != "":
		subject = user.Subject{Kind: user.ByMobile, Value: strings.TrimSpace(mobile)}
	case strings.TrimSpace(email) != "":
		subject = user.Subject{Kind: user.ByEmail, Value: otp.NormalizeEmail(email)}
	default:
		return nil, ErrInvalidCredentials
	}

	existing, err := s.users.FindBy(ctx, subject)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if existing.PasswordHash == "" || !VerifyPassword(existing.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}

	existing.IsActive = true
	updated, err := s.users.Update(ctx, existing)
	if err != nil {
		return nil, fmt.Errorf("failed to mark user active: %w", err)
	}

	token, err := s.issuer.Issue(updated.ID, updated.Role)
	if err != nil {
		return nil, fmt.Errorf("failed to issue token: %w", err)
	}

	return &LoginResult{Token: token, User: updated}, nil
}

// Logout clears the session-presence flag of the account with mobile
func (s *Service) Logout(ctx context.Context, mobile string) error {
	mobile = strings.TrimSpace(mobile)
	if mobile == "" {
		return ErrMobileRequired
	}

	existing, err := s.users.FindBy(ctx, user.Subject{Kind: user.ByMobile, Value: mobile})
	if err != nil {
		return err
	}

	existing.IsActive = false
	if _, err := s.users.Update(ctx, existing); err != nil {
		return fmt.Errorf("failed to mark user inactive: %w", err)
	}
	return nil
}

// Profile returns the account behind a verified token
func (s *Service) Profile(ctx context.Context, id *Identity) (*user.User, error) {
	return s.users.FindBy(ctx, id.Subject)
}

func (s *Service) ListUsers(ctx context.Context) ([]PublicUser, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]PublicUser, 0, len(users))
	for _, u := range users {
		out = append(out, PublicUser{
			Name:        u.Name,
			PhoneNumber: u.Mobile,
			Role:        u.Role,
			IsActive:    u.IsActive,
		})
	}
	return out, nil
}

// OwnerSignIn logs in the owner with uid, creating the account on first use.
// created reports whether a new account was made.
func (s *Service) OwnerSignIn(ctx context.Context, uid, phoneNumber string, role user.Role) (u *user.User, created bool, err error) {
	uid = strings.TrimSpace(uid)
	phoneNumber = strings.TrimSpace(phoneNumber)
	if uid == "" || phoneNumber == "" || role != user.RoleOwner {
		return nil, false, ErrInvalidOwnerData
	}

	subject := user.Subject{Kind: user.ByExternal, Value: uid}

	existing, err := s.users.FindBy(ctx, subject)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, user.ErrNotFound) {
		return nil, false, err
	}

	u, err = s.users.Create(ctx, &user.User{
		ExternalSubjectID: uid,
		Mobile:            phoneNumber,
		Role:              user.RoleOwner,
	})
	if err != nil {
		// a concurrent sign-in created it first
		if errors.Is(err, apperr.ErrDuplicateKey) {
			existing, findErr := s.users.FindBy(ctx, subject)
			if errors.Is(findErr, user.ErrNotFound) {
				return nil, false, err
			}
			if findErr != nil {
				return nil, false, findErr
			}
			return existing, false, nil
		}
		return nil, false, err
	}

	s.logger.Info("owner signed up", "user_id", u.ID)
	return u, true, nil
}

// RequestPasswordReset stores a hashed reset code on the account with email
// and mails the code. The stored code is kept if delivery fails.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	email = otp.NormalizeEmail(email)
	if email == "" {
		return otp.ErrEmailRequired
	}

	existing, err := s.users.FindBy(ctx, user.Subject{Kind: user.ByEmail, Value: email})
	if err != nil {
		return err
	}
	if existing.ExternalSubjectID != "" {
		return ErrExternalAccount
	}

	code, err := otp.GenerateCode()
	if err != nil {
		return err
	}

	expiresAt := s.now().Add(s.resetWindow)
	existing.OTPHash = otp.HashCode(code)
	existing.OTPExpiresAt = &expiresAt

	if _, err := s.users.Update(ctx, existing); err != nil {
		return fmt.Errorf("failed to store reset code: %w", err)
	}

	if err := s.sender.SendOTP(ctx, email, code, otp.PurposeReset, s.resetWindow); err != nil {
		metrics.OTPSentTotal.WithLabelValues(otp.PurposeReset, metrics.ResultError).Inc()
		s.logger.Warn("failed to deliver reset code", "email", email, "error", err)
		return fmt.Errorf("%w: %v", otp.ErrDeliveryFailed, err)
	}

	metrics.OTPSentTotal.WithLabelValues(otp.PurposeReset, metrics.ResultOK).Inc()
	return nil
}

// ResetPassword replaces the password after checking the reset code, then
// clears the code so it cannot be used again
func (s *Service) ResetPassword(ctx context.Context, email, code, newPassword string) error {
	err := s.resetPassword(ctx, otp.NormalizeEmail(email), strings.TrimSpace(code), newPassword)
	if err == nil || errors.Is(err, otp.ErrInvalidOTP) {
		metrics.OTPVerifiedTotal.WithLabelValues(otp.PurposeReset, metrics.Result(err)).Inc()
	}
	return err
}

func (s *Service) resetPassword(ctx context.Context, email, code, newPassword string) error {
	if err := validatePassword(newPassword); err != nil {
		return err
	}
	if email == "" {
		return otp.ErrEmailRequired
	}

	existing, err := s.users.FindBy(ctx, user.Subject{Kind: user.ByEmail, Value: email})
	if err != nil {
		return err
	}
	if existing.ExternalSubjectID != "" {
		return ErrExternalAccount
	}

	if existing.OTPExpiresAt == nil || !s.now().Before(*existing.OTPExpiresAt) || !otp.MatchHash(existing.OTPHash, code) {
		return otp.ErrInvalidOTP
	}

	passwordHash, err := HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	existing.PasswordHash = passwordHash
	existing.OTPHash = ""
	existing.OTPExpiresAt = nil

	if _, err := s.users.Update(ctx, existing); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	s.logger.Info("password reset", "user_id", existing.ID)
	return nil
}

func validatePassword(password string) error {
	if password == "" {
		return ErrPasswordRequired
	}
	if len(password) < minPasswordLength {
		return ErrPasswordTooShort
	}
	return nil
}
