package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPasetoKey = "0123456789abcdef0123456789abcdef"

func setBaseEnv(t *testing.T) {
	t.Helper()
	t.Setenv("PASETO_KEY", testPasetoKey)
	t.Setenv("MAIL_TRANSPORT", MailTransportLog)
}

func TestLoad_Defaults(t *testing.T) {
	setBaseEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "5005", cfg.Server.Port)
	assert.True(t, cfg.Server.IsDevelopment())
	assert.Equal(t, DriverPostgres, cfg.Database.Driver)
	assert.Equal(t, SchemeLocal, cfg.Auth.Scheme)
	assert.Equal(t, TokenFormatPaseto, cfg.Auth.TokenFormat)
	assert.Equal(t, 48*time.Hour, cfg.Auth.TokenDuration)
	assert.Equal(t, 5*time.Minute, cfg.OTP.SignupWindow)
	assert.Equal(t, 10*time.Minute, cfg.OTP.ResetWindow)
	assert.False(t, cfg.Redis.Enabled())
	assert.Equal(t, int64(10<<20), cfg.Server.MaxBodyBytes)
}

func TestLoad_Overrides(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("APP_ENV", "prod")
	t.Setenv("TRUSTED_ORIGINS", "https://www.roomkartz.com, https://admin.roomkartz.com ,")
	t.Setenv("OTP_SIGNUP_WINDOW", "120")
	t.Setenv("REDIS_HOST", "cache")
	t.Setenv("OTP_STORE", OTPStoreRedis)
	t.Setenv("REQUEST_BODY_LIMIT_BYTES", "2048")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.False(t, cfg.Server.IsDevelopment())
	assert.Equal(t, []string{"https://www.roomkartz.com", "https://admin.roomkartz.com"}, cfg.Server.TrustedOrigins)
	assert.Equal(t, 2*time.Minute, cfg.OTP.SignupWindow)
	assert.Equal(t, "cache:6379", cfg.Redis.Address())
	assert.Equal(t, int64(2048), cfg.Server.MaxBodyBytes)
}

func TestLoad_InvalidSettings(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"short paseto key", map[string]string{"PASETO_KEY": "short"}},
		{"jwt without secret", map[string]string{"AUTH_TOKEN_FORMAT": TokenFormatJWT}},
		{"firebase without credentials", map[string]string{"AUTH_SCHEME": SchemeFirebase}},
		{"unknown driver", map[string]string{"DB_DRIVER": "sqlite"}},
		{"redis otp store without redis", map[string]string{"OTP_STORE": OTPStoreRedis}},
		{"smtp without credentials", map[string]string{"MAIL_TRANSPORT": MailTransportSMTP}},
		{"kafka without brokers", map[string]string{"MAIL_TRANSPORT": MailTransportKafka}},
		{"negative body limit", map[string]string{"REQUEST_BODY_LIMIT_BYTES": "-1"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			setBaseEnv(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}

			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestDatabaseConfig_ConnectionString(t *testing.T) {
	c := DatabaseConfig{Host: "db", Port: "5432", User: "u", Password: "p", DBName: "rk", SSLMode: "require", ChannelBinding: "require"}

	assert.Equal(t, "host=db port=5432 user=u password=p dbname=rk sslmode=require channel_binding=require", c.ConnectionString())
}
