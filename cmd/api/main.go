package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	_ "github.com/roomkartz/roomkartz-api/docs" // Swagger docs (generated)
	"github.com/roomkartz/roomkartz-api/internal/auth"
	"github.com/roomkartz/roomkartz-api/internal/config"
	"github.com/roomkartz/roomkartz-api/internal/database"
	"github.com/roomkartz/roomkartz-api/internal/email"
	httpServer "github.com/roomkartz/roomkartz-api/internal/http"
	"github.com/roomkartz/roomkartz-api/internal/logging"
	"github.com/roomkartz/roomkartz-api/internal/media"
	"github.com/roomkartz/roomkartz-api/internal/otp"
	"github.com/roomkartz/roomkartz-api/internal/property"
	"github.com/roomkartz/roomkartz-api/internal/ratelimit"
	"github.com/roomkartz/roomkartz-api/internal/user"
)

// @title           RoomKartz API
// @version         1.0
// @description     Property rental backend: accounts, one-time codes and owner property listings.

// @contact.name   API Support
// @contact.email  support@roomkartz.com

// @host      localhost:5005
// @BasePath  /

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and the access token.

func main() {
	if err := run(); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := logging.NewLogger(cfg.Server.IsDevelopment())
	logger.Info("starting application",
		"env", cfg.Server.Env,
		"port", cfg.Server.Port,
		"db_driver", cfg.Database.Driver,
		"auth_scheme", cfg.Auth.Scheme,
		"mail_transport", cfg.Email.Transport,
	)

	ctx := context.Background()

	users, err := initRepository(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize user store: %w", err)
	}
	defer users.Close()

	// Redis is optional; without it OTP codes live in memory and rate limiting is off
	var redisClient *redis.Client
	if cfg.Redis.Enabled() {
		redisClient, err = initRedis(ctx, cfg.Redis)
		if err != nil {
			return fmt.Errorf("failed to initialize Redis: %w", err)
		}
		defer redisClient.Close()
	}

	var otpStore otp.Store
	switch cfg.OTP.Store {
	case config.OTPStoreRedis:
		otpStore = otp.NewRedisStore(redisClient, "otp")
	default:
		otpStore = otp.NewMemoryStore(time.Minute)
	}
	defer otpStore.Close()

	var rateLimiter ratelimit.Limiter = ratelimit.NoopLimiter{}
	if redisClient != nil {
		rateLimiter = ratelimit.NewRedisLimiter(redisClient, cfg.RateLimit.IPMaxRequests, cfg.RateLimit.IPWindow, cfg.RateLimit.EmailCooldown)
	} else {
		logger.Warn("rate limiting disabled: REDIS_HOST not set")
	}

	sender, err := initSender(cfg.Email, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize mail transport: %w", err)
	}
	if c, ok := sender.(io.Closer); ok {
		defer c.Close()
	}

	verifier, issuer, err := initAuth(ctx, cfg.Auth)
	if err != nil {
		return fmt.Errorf("failed to initialize authentication: %w", err)
	}

	var images property.ImageStore
	if cfg.Media.CloudinaryURL != "" {
		store, err := media.NewCloudinaryStore(cfg.Media.CloudinaryURL, cfg.Media.Folder)
		if err != nil {
			return fmt.Errorf("failed to initialize image storage: %w", err)
		}
		images = store
	}

	authService := auth.NewService(users, issuer, sender, logger, cfg.OTP.ResetWindow)
	otpService := otp.NewService(otpStore, sender, logger)
	propertyService := property.NewService(users, images, logger)

	router := httpServer.NewRouter(cfg, httpServer.Handlers{
		Auth:       auth.NewHandler(authService, rateLimiter),
		OTP:        otp.NewHandler(otpService, rateLimiter, cfg.OTP.SignupWindow),
		Property:   property.NewHandler(propertyService),
		Middleware: auth.NewMiddleware(verifier),
	}, logger)

	server := httpServer.NewServer(
		":"+cfg.Server.Port,
		router,
		cfg.Server.ReadTimeout,
		cfg.Server.WriteTimeout,
		logger,
	)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- server.Start()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case sig := <-shutdown:
		logger.Info("received signal", "signal", sig.String())

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// initRepository opens the user store selected by DB_DRIVER
func initRepository(ctx context.Context, cfg config.DatabaseConfig) (user.Repository, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		return user.NewMemoryRepository(), nil

	case config.DriverMongo:
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
		}
		if err := client.Ping(ctx, nil); err != nil {
			_ = client.Disconnect(ctx)
			return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
		}
		repo, err := user.NewMongoRepository(ctx, client, cfg.MongoDatabase)
		if err != nil {
			_ = client.Disconnect(ctx)
			return nil, err
		}
		return repo, nil

	default:
		sqlDB, err := sql.Open("postgres", cfg.ConnectionString())
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		if err := sqlDB.PingContext(ctx); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("failed to ping database: %w", err)
		}
		sqlDB.SetMaxOpenConns(25)
		sqlDB.SetMaxIdleConns(5)

		db := database.NewBunDB(sqlDB)
		if err := database.Migrate(ctx, db); err != nil {
			db.Close()
			return nil, err
		}
		return user.NewPostgresRepository(db), nil
	}
}

func initRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	return client, nil
}

// initSender builds the OTP mail transport selected by MAIL_TRANSPORT
func initSender(cfg config.EmailConfig, logger *logging.Logger) (otp.Sender, error) {
	switch cfg.Transport {
	case config.MailTransportKafka:
		return email.NewKafkaSender(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaUser, cfg.KafkaPass), nil
	case config.MailTransportLog:
		logger.Warn("OTP codes are logged, not mailed")
		return email.NewLogSender(logger), nil
	default:
		return email.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword, cfg.From)
	}
}

// initAuth returns the token verifier for the configured scheme. The issuer
// is nil for the firebase scheme, which disables password login.
func initAuth(ctx context.Context, cfg config.AuthConfig) (auth.Verifier, auth.Issuer, error) {
	switch cfg.Scheme {
	case config.SchemeFirebase:
		v, err := auth.NewFirebaseVerifier(ctx, cfg.FirebaseProjectID, cfg.FirebaseCredentialsJSON)
		if err != nil {
			return nil, nil, err
		}
		return v, nil, nil

	default:
		if cfg.TokenFormat == config.TokenFormatJWT {
			s, err := auth.NewJWTService(cfg.JWTSecret, cfg.TokenDuration)
			if err != nil {
				return nil, nil, err
			}
			return s, s, nil
		}
		s, err := auth.NewPasetoService(cfg.PasetoKey, cfg.TokenDuration)
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	}
}
