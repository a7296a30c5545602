package email

import (
	"context"
	"time"

	"github.com/roomkartz/roomkartz-api/internal/logging"
)

// LogSender writes codes to the log instead of mailing them. Development only.
type LogSender struct {
	logger *logging.Logger
}

func NewLogSender(logger *logging.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) SendOTP(_ context.Context, to, code, purpose string, validFor time.Duration) error {
	s.logger.Info("otp issued", "email", to, "code", code, "purpose", purpose, "valid_for", validFor.String())
	return nil
}
