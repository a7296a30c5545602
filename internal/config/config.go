package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store drivers
const (
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
	DriverMemory   = "memory"
)

// Authentication schemes. Exactly one is active per deployment.
const (
	SchemeLocal    = "local"
	SchemeFirebase = "firebase"
)

// Local token formats
const (
	TokenFormatPaseto = "paseto"
	TokenFormatJWT    = "jwt"
)

// OTP stores
const (
	OTPStoreMemory = "memory"
	OTPStoreRedis  = "redis"
)

// Mail transports
const (
	MailTransportSMTP  = "smtp"
	MailTransportKafka = "kafka"
	MailTransportLog   = "log"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Auth      AuthConfig
	OTP       OTPConfig
	RateLimit RateLimitConfig
	Email     EmailConfig
	Media     MediaConfig
}

type ServerConfig struct {
	Port            string
	Env             string // dev or prod
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	TrustedOrigins  []string // CORS allowed origins
	MaxBodyBytes    int64    // request bodies past this size get 413
}

type DatabaseConfig struct {
	Driver         string
	Host           string
	Port           string
	User           string
	Password       string
	DBName         string
	SSLMode        string
	ChannelBinding string // "require" for Neon DB, empty for local
	MongoURI       string
	MongoDatabase  string
}

type RedisConfig struct {
	Host     string // empty disables Redis-backed components
	Port     string
	Password string
	DB       int
}

type AuthConfig struct {
	Scheme      string
	TokenFormat string
	// PASETO symmetric key (must be 32 bytes for v4.local)
	PasetoKey []byte
	JWTSecret []byte
	// Lifetime of locally issued tokens
	TokenDuration time.Duration
	// Service account JSON, used only by the firebase scheme
	FirebaseProjectID       string
	FirebaseCredentialsJSON []byte
}

type OTPConfig struct {
	Store        string
	SignupWindow time.Duration
	ResetWindow  time.Duration
}

type RateLimitConfig struct {
	IPMaxRequests int
	IPWindow      time.Duration
	EmailCooldown time.Duration
}

type EmailConfig struct {
	Transport    string
	SMTPHost     string
	SMTPPort     string
	SMTPUser     string
	SMTPPassword string
	From         string
	KafkaBrokers []string
	KafkaTopic   string
	KafkaUser    string
	KafkaPass    string
}

type MediaConfig struct {
	CloudinaryURL string // empty keeps images as submitted
	Folder        string
}

// Load reads configuration from environment variables.
// A .env file in the working directory is loaded first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	smtpUser := getEnv("SMTP_USER", "")

	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnv("SERVER_PORT", "5005"),
			Env:             getEnv("APP_ENV", "dev"),
			ReadTimeout:     getDurationEnv("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:    getDurationEnv("SERVER_WRITE_TIMEOUT", 10*time.Second),
			ShutdownTimeout: getDurationEnv("SERVER_SHUTDOWN_TIMEOUT", 15*time.Second),
			TrustedOrigins:  getSliceEnv("TRUSTED_ORIGINS", []string{"http://localhost:3000"}),
			MaxBodyBytes:    int64(getIntEnv("REQUEST_BODY_LIMIT_BYTES", 10<<20)),
		},
		Database: DatabaseConfig{
			Driver:         getEnv("DB_DRIVER", DriverPostgres),
			Host:           getEnv("DB_HOST", "localhost"),
			Port:           getEnv("DB_PORT", "5432"),
			User:           getEnv("DB_USER", "postgres"),
			Password:       getEnv("DB_PASSWORD", "postgres"),
			DBName:         getEnv("DB_NAME", "roomkartz"),
			SSLMode:        getEnv("DB_SSLMODE", "disable"),
			ChannelBinding: getEnv("DB_CHANNEL_BINDING", ""),
			MongoURI:       getEnv("MONGODB_URI", "mongodb://localhost:27017"),
			MongoDatabase:  getEnv("MONGODB_DATABASE", "roomkartz"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", ""),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
		},
		Auth: AuthConfig{
			Scheme:                  getEnv("AUTH_SCHEME", SchemeLocal),
			TokenFormat:             getEnv("AUTH_TOKEN_FORMAT", TokenFormatPaseto),
			PasetoKey:               []byte(getEnv("PASETO_KEY", "")),
			JWTSecret:               []byte(getEnv("JWT_SECRET", "")),
			TokenDuration:           getDurationEnv("TOKEN_DURATION", 48*time.Hour),
			FirebaseProjectID:       getEnv("FIREBASE_PROJECT_ID", ""),
			FirebaseCredentialsJSON: []byte(getEnv("FIREBASE_SERVICE_ACCOUNT_KEY", "")),
		},
		OTP: OTPConfig{
			Store:        getEnv("OTP_STORE", OTPStoreMemory),
			SignupWindow: getDurationEnv("OTP_SIGNUP_WINDOW", 5*time.Minute),
			ResetWindow:  getDurationEnv("OTP_RESET_WINDOW", 10*time.Minute),
		},
		RateLimit: RateLimitConfig{
			IPMaxRequests: getIntEnv("RATE_LIMIT_IP_MAX", 10),
			IPWindow:      getDurationEnv("RATE_LIMIT_IP_WINDOW", 15*time.Minute),
			EmailCooldown: getDurationEnv("RATE_LIMIT_EMAIL_COOLDOWN", time.Minute),
		},
		Email: EmailConfig{
			Transport:    getEnv("MAIL_TRANSPORT", MailTransportSMTP),
			SMTPHost:     getEnv("SMTP_HOST", "smtp.gmail.com"),
			SMTPPort:     getEnv("SMTP_PORT", "587"),
			SMTPUser:     smtpUser,
			SMTPPassword: getEnv("SMTP_PASS", ""),
			From:         getEnv("MAIL_FROM", smtpUser),
			KafkaBrokers: getSliceEnv("KAFKA_BROKERS", nil),
			KafkaTopic:   getEnv("KAFKA_TOPIC", "mail.otp"),
			KafkaUser:    getEnv("KAFKA_USERNAME", ""),
			KafkaPass:    getEnv("KAFKA_PASSWORD", ""),
		},
		Media: MediaConfig{
			CloudinaryURL: getEnv("CLOUDINARY_URL", ""),
			Folder:        getEnv("CLOUDINARY_FOLDER", "properties"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the selected components have the settings they need
func (c *Config) Validate() error {
	if c.Server.MaxBodyBytes <= 0 {
		return fmt.Errorf("REQUEST_BODY_LIMIT_BYTES must be positive, got %d", c.Server.MaxBodyBytes)
	}

	switch c.Database.Driver {
	case DriverPostgres, DriverMongo, DriverMemory:
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.Database.Driver)
	}

	switch c.Auth.Scheme {
	case SchemeLocal:
		switch c.Auth.TokenFormat {
		case TokenFormatPaseto:
			if len(c.Auth.PasetoKey) != 32 {
				return fmt.Errorf("PASETO_KEY must be exactly 32 bytes, got %d", len(c.Auth.PasetoKey))
			}
		case TokenFormatJWT:
			if len(c.Auth.JWTSecret) == 0 {
				return fmt.Errorf("JWT_SECRET is required for the jwt token format")
			}
		default:
			return fmt.Errorf("unsupported AUTH_TOKEN_FORMAT %q", c.Auth.TokenFormat)
		}
	case SchemeFirebase:
		if len(c.Auth.FirebaseCredentialsJSON) == 0 {
			return fmt.Errorf("FIREBASE_SERVICE_ACCOUNT_KEY is required for the firebase scheme")
		}
	default:
		return fmt.Errorf("unsupported AUTH_SCHEME %q", c.Auth.Scheme)
	}

	switch c.OTP.Store {
	case OTPStoreMemory:
	case OTPStoreRedis:
		if !c.Redis.Enabled() {
			return fmt.Errorf("OTP_STORE=redis requires REDIS_HOST")
		}
	default:
		return fmt.Errorf("unsupported OTP_STORE %q", c.OTP.Store)
	}

	switch c.Email.Transport {
	case MailTransportSMTP:
		if c.Email.SMTPUser == "" || c.Email.SMTPPassword == "" {
			return fmt.Errorf("SMTP_USER and SMTP_PASS are required for the smtp mail transport")
		}
	case MailTransportKafka:
		if len(c.Email.KafkaBrokers) == 0 {
			return fmt.Errorf("KAFKA_BROKERS is required for the kafka mail transport")
		}
	case MailTransportLog:
	default:
		return fmt.Errorf("unsupported MAIL_TRANSPORT %q", c.Email.Transport)
	}

	return nil
}

func (c *DatabaseConfig) ConnectionString() string {
	connStr := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)

	// Add channel_binding if configured (required for Neon DB)
	if c.ChannelBinding != "" {
		connStr += fmt.Sprintf(" channel_binding=%s", c.ChannelBinding)
	}

	return connStr
}

// Enabled reports whether a Redis server is configured
func (c *RedisConfig) Enabled() bool {
	return c.Host != ""
}

// Address returns Redis connection address (host:port)
func (c *RedisConfig) Address() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

// IsDevelopment returns true if the environment is set to dev
func (c *ServerConfig) IsDevelopment() bool {
	return c.Env == "dev"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	intValue, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}

	return intValue
}

// getDurationEnv reads a whole number of seconds
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	seconds, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}

	return time.Duration(seconds) * time.Second
}

func getSliceEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}

	if len(result) == 0 {
		return defaultValue
	}

	return result
}
