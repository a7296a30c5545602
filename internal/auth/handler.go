package auth

import (
	"errors"
	"net/http"

	"github.com/roomkartz/roomkartz-api/internal/httputil"
	"github.com/roomkartz/roomkartz-api/internal/logging"
	"github.com/roomkartz/roomkartz-api/internal/otp"
	"github.com/roomkartz/roomkartz-api/internal/ratelimit"
	"github.com/roomkartz/roomkartz-api/internal/user"
)

// Handler contains HTTP handlers for account endpoints
type Handler struct {
	service     *Service
	rateLimiter ratelimit.Limiter
}

func NewHandler(service *Service, rateLimiter ratelimit.Limiter) *Handler {
	return &Handler{
		service:     service,
		rateLimiter: rateLimiter,
	}
}

// RegisterRequest represents the registration request body
type RegisterRequest struct {
	Name     string    `json:"name"`
	Email    string    `json:"email"`
	Mobile   string    `json:"mobile"`
	Password string    `json:"password"`
	Role     user.Role `json:"role"`
}

// LoginRequest represents the login request body. Email is used only when
// mobile is empty.
type LoginRequest struct {
	Mobile   string `json:"mobile"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LogoutRequest represents the logout request body
type LogoutRequest struct {
	Mobile string `json:"mobile"`
}

// OwnerRequest represents the owner sign-in request body
type OwnerRequest struct {
	UID         string    `json:"uid"`
	PhoneNumber string    `json:"phoneNumber"`
	Role        user.Role `json:"role"`
}

// ResetCodeRequest represents the send-otp2 request body
type ResetCodeRequest struct {
	Email string `json:"email"`
}

// ForgotPasswordRequest represents the password reset confirmation
type ForgotPasswordRequest struct {
	Email       string `json:"email"`
	OTP         string `json:"otp"`
	NewPassword string `json:"newPassword"`
}

// UserEnvelope wraps a user with a status or message
type UserEnvelope struct {
	Status  string     `json:"status,omitempty"`
	Message string     `json:"message,omitempty"`
	User    *user.User `json:"user"`
}

// Register handles user registration
// @Summary      Register a new user
// @Description  Create a password account. Role defaults to user.
// @Tags         users
// @Accept       json
// @Produce      json
// @Param        request body RegisterRequest true "Registration details"
// @Success      201 {object} UserEnvelope
// @Failure      400 {object} httputil.ErrorResponse "Invalid request or validation error"
// @Failure      403 {object} httputil.ErrorResponse "Password sign-in disabled"
// @Failure      409 {object} httputil.ErrorResponse "Email already exists"
// @Failure      429 {object} httputil.ErrorResponse "Too many requests"
// @Router       /api/users/register [post]
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	if err := ratelimit.Guard(r.Context(), h.rateLimiter, logger, ratelimit.ClientIP(r), "register", ""); err != nil {
		httputil.RespondRateLimited(w, err)
		return
	}

	var req RegisterRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		logger.Warn("invalid registration request body", "error", err.Error())
		httputil.RespondDecodeError(w, err)
		return
	}

	created, err := h.service.Register(r.Context(), RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Mobile:   req.Mobile,
		Password: req.Password,
		Role:     req.Role,
	})
	if err != nil {
		code := ""
		switch {
		case errors.Is(err, ErrPasswordTooShort):
			code = httputil.CodePasswordTooShort
		case errors.Is(err, ErrInvalidEmailFormat):
			code = httputil.CodeInvalidEmailFormat
		case httputil.StatusFor(err) == http.StatusInternalServerError:
			logger.Error("registration failed", "error", err.Error())
		default:
			logger.Warn("registration rejected", "error", err.Error())
		}
		httputil.RespondDomainError(w, err, code)
		return
	}

	httputil.RespondJSON(w, UserEnvelope{Message: "User registered successfully", User: created}, http.StatusCreated)
}

// Login handles password login
// @Summary      Log in
// @Description  Check mobile and password, mark the account active and return a bearer token valid for 48 hours
// @Tags         users
// @Accept       json
// @Produce      json
// @Param        request body LoginRequest true "Credentials"
// @Success      200 {object} LoginResult
// @Failure      400 {object} httputil.ErrorResponse "Invalid credentials"
// @Failure      429 {object} httputil.ErrorResponse "Too many requests"
// @Router       /api/users/login [post]
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	if err := ratelimit.Guard(r.Context(), h.rateLimiter, logger, ratelimit.ClientIP(r), "login", ""); err != nil {
		httputil.RespondRateLimited(w, err)
		return
	}

	var req LoginRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		logger.Warn("invalid login request body", "error", err.Error())
		httputil.RespondDecodeError(w, err)
		return
	}

	result, err := h.service.Login(r.Context(), req.Mobile, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			logger.Warn("login failed: invalid credentials")
			httputil.RespondDomainError(w, err, httputil.CodeInvalidCredentials)
			return
		}
		logger.Error("login failed", "error", err.Error())
		httputil.RespondDomainError(w, err, "")
		return
	}

	logger.Info("user logged in", "user_id", result.User.ID)
	httputil.RespondJSON(w, result, http.StatusOK)
}

// Logout marks the account inactive
// @Summary      Log out
// @Tags         users
// @Accept       json
// @Produce      json
// @Param        request body LogoutRequest true "Mobile number"
// @Success      200 {object} httputil.MessageResponse
// @Failure      404 {object} httputil.ErrorResponse "User not found"
// @Router       /api/users/logout [post]
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	var req LogoutRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		logger.Warn("invalid logout request body", "error", err.Error())
		httputil.RespondDecodeError(w, err)
		return
	}

	if err := h.service.Logout(r.Context(), req.Mobile); err != nil {
		if httputil.StatusFor(err) == http.StatusInternalServerError {
			logger.Error("logout failed", "error", err.Error())
		}
		httputil.RespondDomainError(w, err, "")
		return
	}

	httputil.RespondMessage(w, "Logged out successfully", http.StatusOK)
}

// Profile returns the caller's account
// @Summary      Get profile
// @Tags         users
// @Produce      json
// @Security     BearerAuth
// @Success      200 {object} UserEnvelope
// @Failure      401 {object} httputil.ErrorResponse "Unauthorized"
// @Failure      404 {object} httputil.ErrorResponse "User not found"
// @Router       /api/users/profile [get]
func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	id, ok := IdentityFromContext(r.Context())
	if !ok {
		httputil.RespondErrorWithCode(w, "missing authentication", httputil.CodeMissingAuth, http.StatusUnauthorized)
		return
	}

	u, err := h.service.Profile(r.Context(), id)
	if err != nil {
		if httputil.StatusFor(err) == http.StatusInternalServerError {
			logger.Error("failed to fetch profile", "error", err.Error())
		}
		httputil.RespondDomainError(w, err, "")
		return
	}

	httputil.RespondJSON(w, UserEnvelope{Status: "success", User: u}, http.StatusOK)
}

// AllUsers lists every account
// @Summary      List users
// @Tags         users
// @Produce      json
// @Success      200 {array} PublicUser
// @Router       /api/users/all-users [get]
func (h *Handler) AllUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.ListUsers(r.Context())
	if err != nil {
		logging.GetLoggerFromContext(r.Context()).Error("failed to list users", "error", err.Error())
		httputil.RespondDomainError(w, err, "")
		return
	}

	httputil.RespondJSON(w, users, http.StatusOK)
}

// Owner signs an owner in, creating the account on first use
// @Summary      Owner sign-in
// @Description  Log in the owner with uid, or sign them up when the uid is new
// @Tags         users
// @Accept       json
// @Produce      json
// @Param        request body OwnerRequest true "Owner identity"
// @Success      200 {object} UserEnvelope "Login"
// @Success      201 {object} UserEnvelope "Signup"
// @Failure      400 {object} httputil.ErrorResponse "Invalid owner data"
// @Router       /api/users/owner [post]
func (h *Handler) Owner(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	var req OwnerRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		logger.Warn("invalid owner request body", "error", err.Error())
		httputil.RespondDecodeError(w, err)
		return
	}

	u, created, err := h.service.OwnerSignIn(r.Context(), req.UID, req.PhoneNumber, req.Role)
	if err != nil {
		if errors.Is(err, ErrInvalidOwnerData) {
			httputil.RespondDomainError(w, err, httputil.CodeInvalidOwnerData)
			return
		}
		logger.Error("owner sign-in failed", "error", err.Error())
		httputil.RespondDomainError(w, err, "")
		return
	}

	if created {
		httputil.RespondJSON(w, UserEnvelope{Message: "Signup successful", User: u}, http.StatusCreated)
		return
	}
	httputil.RespondJSON(w, UserEnvelope{Message: "Login successful", User: u}, http.StatusOK)
}

// SendResetOTP mails a password reset code
// @Summary      Send password reset code
// @Description  Email a six-digit code valid for ten minutes to an existing account
// @Tags         users
// @Accept       json
// @Produce      json
// @Param        request body ResetCodeRequest true "Email address"
// @Success      200 {object} httputil.MessageResponse
// @Failure      400 {object} httputil.ErrorResponse "Account uses external sign-in"
// @Failure      404 {object} httputil.ErrorResponse "User not found"
// @Failure      429 {object} httputil.ErrorResponse "Too many requests"
// @Failure      502 {object} httputil.ErrorResponse "Mail delivery failed"
// @Router       /api/users/send-otp2 [post]
func (h *Handler) SendResetOTP(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	var req ResetCodeRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		logger.Warn("invalid reset code request body", "error", err.Error())
		httputil.RespondDecodeError(w, err)
		return
	}

	email := otp.NormalizeEmail(req.Email)
	if err := ratelimit.Guard(r.Context(), h.rateLimiter, logger, ratelimit.ClientIP(r), "send-otp2", email); err != nil {
		httputil.RespondRateLimited(w, err)
		return
	}

	if err := h.service.RequestPasswordReset(r.Context(), email); err != nil {
		if errors.Is(err, otp.ErrDeliveryFailed) {
			httputil.RespondDomainError(w, otp.ErrDeliveryFailed, httputil.CodeDeliveryFailed)
			return
		}
		if httputil.StatusFor(err) == http.StatusInternalServerError {
			logger.Error("failed to send reset code", "error", err.Error())
		}
		httputil.RespondDomainError(w, err, "")
		return
	}

	httputil.RespondMessage(w, "OTP sent successfully", http.StatusOK)
}

// ForgotPassword replaces the password using a reset code
// @Summary      Reset password
// @Tags         users
// @Accept       json
// @Produce      json
// @Param        request body ForgotPasswordRequest true "Email, code and new password"
// @Success      200 {object} httputil.MessageResponse
// @Failure      400 {object} httputil.ErrorResponse "Invalid or expired code"
// @Failure      404 {object} httputil.ErrorResponse "User not found"
// @Router       /api/users/forgot-password [post]
func (h *Handler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	if err := ratelimit.Guard(r.Context(), h.rateLimiter, logger, ratelimit.ClientIP(r), "forgot-password", ""); err != nil {
		httputil.RespondRateLimited(w, err)
		return
	}

	var req ForgotPasswordRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		logger.Warn("invalid forgot password request body", "error", err.Error())
		httputil.RespondDecodeError(w, err)
		return
	}

	if err := h.service.ResetPassword(r.Context(), req.Email, req.OTP, req.NewPassword); err != nil {
		code := ""
		switch {
		case errors.Is(err, otp.ErrInvalidOTP):
			logger.Warn("password reset failed: invalid or expired code")
			code = httputil.CodeInvalidOTP
		case errors.Is(err, ErrPasswordTooShort):
			code = httputil.CodePasswordTooShort
		case httputil.StatusFor(err) == http.StatusInternalServerError:
			logger.Error("password reset failed", "error", err.Error())
		}
		httputil.RespondDomainError(w, err, code)
		return
	}

	logger.Info("password reset successfully")
	httputil.RespondMessage(w, "Password reset successfully", http.StatusOK)
}
