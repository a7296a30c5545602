package email

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/smtp"
	"time"

	"github.com/roomkartz/roomkartz-api/internal/logging"
	"github.com/roomkartz/roomkartz-api/templates"
)

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPSender mails one-time codes through an SMTP relay
type SMTPSender struct {
	smtpHost     string
	smtpPort     string
	smtpUser     string
	smtpPassword string
	fromEmail    string
	otpTemplate  *template.Template
	sendMail     sendMailFunc
}

func NewSMTPSender(smtpHost, smtpPort, smtpUser, smtpPassword, fromEmail string) (*SMTPSender, error) {
	tmpl, err := template.ParseFS(templates.EmailFS, "email/otp.html")
	if err != nil {
		return nil, fmt.Errorf("parse template: %w", err)
	}

	return &SMTPSender{
		smtpHost:     smtpHost,
		smtpPort:     smtpPort,
		smtpUser:     smtpUser,
		smtpPassword: smtpPassword,
		fromEmail:    fromEmail,
		otpTemplate:  tmpl,
		sendMail:     smtp.SendMail,
	}, nil
}

// SendOTP renders the code mail for purpose and sends it to toEmail
func (s *SMTPSender) SendOTP(ctx context.Context, toEmail, code, purpose string, validFor time.Duration) error {
	logger := logging.GetLoggerFromContext(ctx)

	msg := messageFor(purpose)
	body, err := s.renderOTPTemplate(msg, code, validFor)
	if err != nil {
		logger.Error("failed to render otp email template", "error", err)
		return fmt.Errorf("render template: %w", err)
	}

	if err := s.sendEmail(toEmail, msg.Subject, body); err != nil {
		logger.Error("failed to send otp email", "email", toEmail, "purpose", purpose, "error", err)
		return fmt.Errorf("send email: %w", err)
	}

	logger.Info("otp email sent", "email", toEmail, "purpose", purpose)
	return nil
}

func (s *SMTPSender) sendEmail(to, subject, body string) error {
	auth := smtp.PlainAuth("", s.smtpUser, s.smtpPassword, s.smtpHost)

	msg := []byte(fmt.Sprintf(
		"From: %s\r\n"+
			"To: %s\r\n"+
			"Subject: %s\r\n"+
			"MIME-Version: 1.0\r\n"+
			"Content-Type: text/html; charset=UTF-8\r\n"+
			"\r\n"+
			"%s\r\n",
		s.fromEmail, to, subject, body,
	))

	addr := fmt.Sprintf("%s:%s", s.smtpHost, s.smtpPort)
	return s.sendMail(addr, auth, s.fromEmail, []string{to}, msg)
}

func (s *SMTPSender) renderOTPTemplate(msg message, code string, validFor time.Duration) (string, error) {
	var buf bytes.Buffer
	data := struct {
		Heading string
		Intro   string
		Code    string
		Minutes int
	}{
		Heading: msg.Heading,
		Intro:   msg.Intro,
		Code:    code,
		Minutes: int(validFor.Minutes()),
	}

	if err := s.otpTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("execute template: %w", err)
	}

	return buf.String(), nil
}
