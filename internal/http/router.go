package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/roomkartz/roomkartz-api/internal/auth"
	"github.com/roomkartz/roomkartz-api/internal/config"
	"github.com/roomkartz/roomkartz-api/internal/httputil"
	"github.com/roomkartz/roomkartz-api/internal/logging"
	"github.com/roomkartz/roomkartz-api/internal/metrics"
	"github.com/roomkartz/roomkartz-api/internal/otp"
	"github.com/roomkartz/roomkartz-api/internal/property"
)

// Handlers groups the endpoint handlers mounted by NewRouter
type Handlers struct {
	Auth     *auth.Handler
	OTP      *otp.Handler
	Property *property.Handler
	// RequireAuth guards the bearer routes
	Middleware *auth.Middleware
}

// NewRouter creates and configures the HTTP router
func NewRouter(cfg *config.Config, h Handlers, logger *logging.Logger) *chi.Mux {
	r := chi.NewRouter()

	// CORS - must be first
	if len(cfg.Server.TrustedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.Server.TrustedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
			ExposedHeaders:   []string{"Content-Length"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	r.Use(SecurityHeaders(!cfg.Server.IsDevelopment()))
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	if cfg.Server.MaxBodyBytes > 0 {
		r.Use(middleware.RequestSize(cfg.Server.MaxBodyBytes))
	}
	r.Use(logging.RequestLogger(logger))
	r.Use(metrics.Middleware)
	r.Use(middleware.Compress(5))

	r.Get("/health", handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	// Swagger UI - only in development
	if cfg.Server.IsDevelopment() {
		logger.Info("swagger UI enabled at /swagger/*")
		r.Get("/swagger/*", httpSwagger.WrapHandler)
	}

	r.Route("/api/users", func(r chi.Router) {
		r.Post("/register", h.Auth.Register)
		r.Post("/login", h.Auth.Login)
		r.Post("/logout", h.Auth.Logout)
		r.Post("/owner", h.Auth.Owner)
		r.Get("/all-users", h.Auth.AllUsers)

		r.Post("/send-otp", h.OTP.SendOTP)
		r.Post("/verify-otp", h.OTP.VerifyOTP)
		r.Post("/send-otp2", h.Auth.SendResetOTP)
		r.Post("/forgot-password", h.Auth.ForgotPassword)

		r.Get("/properties", h.Property.ListAll)

		r.Group(func(r chi.Router) {
			r.Use(h.Middleware.RequireAuth)
			r.Get("/profile", h.Auth.Profile)
			r.Get("/my-properties", h.Property.ListOwn)
			r.Post("/add-property", h.Property.Add)
			r.Put("/update-property/{id}", h.Property.Update)
			r.Delete("/delete-property/{id}", h.Property.Delete)
		})
	})

	return r
}

// handleHealth is a simple health check endpoint
// @Summary      Health check
// @Description  Check if the API is running
// @Tags         health
// @Produce      json
// @Success      200 {object} map[string]string
// @Router       /health [get]
func handleHealth(w http.ResponseWriter, r *http.Request) {
	httputil.RespondJSON(w, map[string]string{"status": "api is running"}, http.StatusOK)
}
