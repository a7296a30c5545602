package otp

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/roomkartz/roomkartz-api/internal/apperr"
	"github.com/roomkartz/roomkartz-api/internal/logging"
	"github.com/roomkartz/roomkartz-api/internal/metrics"
)

// Purpose names which flow a code belongs to
const (
	PurposeSignup = "signup"
	PurposeReset  = "reset"
)

var (
	ErrInvalidOTP     = apperr.New(apperr.ErrInvalidArgument, "invalid or expired otp")
	ErrEmailRequired  = apperr.New(apperr.ErrInvalidArgument, "email is required")
	ErrInvalidEmail   = apperr.New(apperr.ErrInvalidArgument, "invalid email format")
	ErrDeliveryFailed = apperr.New(apperr.ErrDeliveryFailed, "failed to send otp")
)

// Sender delivers a code to an email address
type Sender interface {
	SendOTP(ctx context.Context, to, code, purpose string, validFor time.Duration) error
}

// Service runs the keyed send/verify flow used at signup.
// States per email: absent, pending, then absent again once verified or expired.
type Service struct {
	store  Store
	sender Sender
	logger *logging.Logger
	now    func() time.Time
}

func NewService(store Store, sender Sender, logger *logging.Logger) *Service {
	return &Service{
		store:  store,
		sender: sender,
		logger: logger,
		now:    time.Now,
	}
}

// Send issues a new code for email, valid for window, and mails it.
// The pending entry is stored before delivery and kept if delivery fails,
// so a retry simply replaces it.
func (s *Service) Send(ctx context.Context, email string, window time.Duration) (string, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return "", ErrEmailRequired
	}
	if !ValidEmail(email) {
		return "", ErrInvalidEmail
	}

	code, err := GenerateCode()
	if err != nil {
		return "", err
	}

	entry := Entry{CodeHash: HashCode(code), ExpiresAt: s.now().Add(window)}
	if err := s.store.Put(ctx, email, entry); err != nil {
		return "", fmt.Errorf("failed to store otp: %w", err)
	}

	if err := s.sender.SendOTP(ctx, email, code, PurposeSignup, window); err != nil {
		metrics.OTPSentTotal.WithLabelValues(PurposeSignup, metrics.ResultError).Inc()
		s.logger.Warn("failed to deliver otp", "email", email, "error", err)
		return "", fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}

	metrics.OTPSentTotal.WithLabelValues(PurposeSignup, metrics.ResultOK).Inc()
	return code, nil
}

// Verify consumes the pending code for email. Any mismatch, expiry or missing
// entry yields ErrInvalidOTP.
func (s *Service) Verify(ctx context.Context, email, code string) error {
	err := s.verify(ctx, NormalizeEmail(email), strings.TrimSpace(code))
	metrics.OTPVerifiedTotal.WithLabelValues(PurposeSignup, metrics.Result(err)).Inc()
	return err
}

func (s *Service) verify(ctx context.Context, email, code string) error {
	if email == "" || code == "" {
		return ErrInvalidOTP
	}

	entry, ok, err := s.store.Get(ctx, email)
	if err != nil {
		return fmt.Errorf("failed to read otp: %w", err)
	}
	if !ok || !s.now().Before(entry.ExpiresAt) || !MatchHash(entry.CodeHash, code) {
		return ErrInvalidOTP
	}

	deleted, err := s.store.Delete(ctx, email, entry.CodeHash)
	if err != nil {
		return fmt.Errorf("failed to consume otp: %w", err)
	}
	if !deleted {
		// consumed by another request or replaced by a newer Send
		return ErrInvalidOTP
	}

	return nil
}

// ValidEmail reports whether email is a single bare address usable as a mail
// recipient. Display names, address lists and control characters are rejected.
func ValidEmail(email string) bool {
	if len(email) > 254 {
		return false
	}
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}

// NormalizeEmail trims and lowercases an address so lookups are case-insensitive
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
