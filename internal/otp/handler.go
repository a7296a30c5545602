package otp

import (
	"errors"
	"net/http"
	"time"

	"github.com/roomkartz/roomkartz-api/internal/httputil"
	"github.com/roomkartz/roomkartz-api/internal/logging"
	"github.com/roomkartz/roomkartz-api/internal/ratelimit"
)

// Handler serves the signup code endpoints
type Handler struct {
	service     *Service
	rateLimiter ratelimit.Limiter
	window      time.Duration
}

func NewHandler(service *Service, rateLimiter ratelimit.Limiter, window time.Duration) *Handler {
	return &Handler{
		service:     service,
		rateLimiter: rateLimiter,
		window:      window,
	}
}

// SendOTPRequest represents the send-otp request body
type SendOTPRequest struct {
	Email string `json:"email"`
}

// VerifyOTPRequest represents the verify-otp request body
type VerifyOTPRequest struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
}

// SendOTP issues a signup code
// @Summary      Send signup code
// @Description  Email a six-digit code valid for five minutes. A new request replaces the previous code.
// @Tags         otp
// @Accept       json
// @Produce      json
// @Param        request body SendOTPRequest true "Email address"
// @Success      200 {object} httputil.MessageResponse
// @Failure      400 {object} httputil.ErrorResponse "Invalid request body or email"
// @Failure      429 {object} httputil.ErrorResponse "Too many requests"
// @Failure      502 {object} httputil.ErrorResponse "Mail delivery failed"
// @Router       /api/users/send-otp [post]
func (h *Handler) SendOTP(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	var req SendOTPRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		logger.Warn("invalid send otp request body", "error", err.Error())
		httputil.RespondDecodeError(w, err)
		return
	}

	email := NormalizeEmail(req.Email)
	if email != "" && !ValidEmail(email) {
		httputil.RespondDomainError(w, ErrInvalidEmail, httputil.CodeInvalidEmailFormat)
		return
	}
	if err := ratelimit.Guard(r.Context(), h.rateLimiter, logger, ratelimit.ClientIP(r), "send-otp", email); err != nil {
		httputil.RespondRateLimited(w, err)
		return
	}

	if _, err := h.service.Send(r.Context(), email, h.window); err != nil {
		if errors.Is(err, ErrDeliveryFailed) {
			httputil.RespondDomainError(w, ErrDeliveryFailed, httputil.CodeDeliveryFailed)
			return
		}
		if errors.Is(err, ErrEmailRequired) {
			httputil.RespondDomainError(w, err, httputil.CodeValidationFailed)
			return
		}
		logger.Error("failed to send otp", "error", err.Error())
		httputil.RespondDomainError(w, err, "")
		return
	}

	httputil.RespondMessage(w, "OTP sent successfully", http.StatusOK)
}

// VerifyOTP consumes a signup code
// @Summary      Verify signup code
// @Description  Check a code sent by send-otp. A code can be used once.
// @Tags         otp
// @Accept       json
// @Produce      json
// @Param        request body VerifyOTPRequest true "Email and code"
// @Success      200 {object} httputil.MessageResponse
// @Failure      400 {object} httputil.ErrorResponse "Invalid or expired code"
// @Failure      429 {object} httputil.ErrorResponse "Too many requests"
// @Router       /api/users/verify-otp [post]
func (h *Handler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	var req VerifyOTPRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		logger.Warn("invalid verify otp request body", "error", err.Error())
		httputil.RespondDecodeError(w, err)
		return
	}

	if err := ratelimit.Guard(r.Context(), h.rateLimiter, logger, ratelimit.ClientIP(r), "verify-otp", ""); err != nil {
		httputil.RespondRateLimited(w, err)
		return
	}

	if err := h.service.Verify(r.Context(), req.Email, req.OTP); err != nil {
		if errors.Is(err, ErrInvalidOTP) {
			logger.Warn("otp verification failed", "email", req.Email)
			httputil.RespondDomainError(w, err, httputil.CodeInvalidOTP)
			return
		}
		logger.Error("failed to verify otp", "error", err.Error())
		httputil.RespondDomainError(w, err, "")
		return
	}

	httputil.RespondMessage(w, "OTP verified successfully", http.StatusOK)
}
