// Package ratelimit throttles unauthenticated endpoints that send mail or
// check credentials.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/roomkartz/roomkartz-api/internal/logging"
)

var (
	ErrTooManyRequests = errors.New("too many requests, please try again later")
	ErrCooldownActive  = errors.New("please wait before requesting another code")
)

// Limiter tracks per-IP request counts and per-email send cooldowns
type Limiter interface {
	CheckIPRateLimit(ctx context.Context, ip, purpose string) (bool, error)
	RecordIPRequest(ctx context.Context, ip, purpose string) error
	CheckEmailCooldown(ctx context.Context, email string) (bool, error)
	SetEmailCooldown(ctx context.Context, email string) error
}

// RedisLimiter is a fixed-window limiter backed by Redis counters
type RedisLimiter struct {
	client        *redis.Client
	maxRequests   int
	window        time.Duration
	emailCooldown time.Duration
}

func NewRedisLimiter(client *redis.Client, maxRequests int, window, emailCooldown time.Duration) *RedisLimiter {
	return &RedisLimiter{
		client:        client,
		maxRequests:   maxRequests,
		window:        window,
		emailCooldown: emailCooldown,
	}
}

func ipKey(ip, purpose string) string {
	return fmt.Sprintf("ratelimit:ip:%s:%s", purpose, ip)
}

func cooldownKey(email string) string {
	return fmt.Sprintf("ratelimit:email:%s", strings.ToLower(strings.TrimSpace(email)))
}

// CheckIPRateLimit reports whether ip has used up its requests for purpose
func (l *RedisLimiter) CheckIPRateLimit(ctx context.Context, ip, purpose string) (bool, error) {
	count, err := l.client.Get(ctx, ipKey(ip, purpose)).Int()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read ip counter: %w", err)
	}
	return count >= l.maxRequests, nil
}

// RecordIPRequest counts one request; the window starts with the first one
func (l *RedisLimiter) RecordIPRequest(ctx context.Context, ip, purpose string) error {
	key := ipKey(ip, purpose)

	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("failed to record ip request: %w", err)
	}

	if count == 1 {
		if err := l.client.Expire(ctx, key, l.window).Err(); err != nil {
			return fmt.Errorf("failed to set ip window: %w", err)
		}
	}
	return nil
}

func (l *RedisLimiter) CheckEmailCooldown(ctx context.Context, email string) (bool, error) {
	n, err := l.client.Exists(ctx, cooldownKey(email)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check email cooldown: %w", err)
	}
	return n > 0, nil
}

func (l *RedisLimiter) SetEmailCooldown(ctx context.Context, email string) error {
	if err := l.client.Set(ctx, cooldownKey(email), "1", l.emailCooldown).Err(); err != nil {
		return fmt.Errorf("failed to set email cooldown: %w", err)
	}
	return nil
}

// NoopLimiter never limits. Used when Redis is not configured.
type NoopLimiter struct{}

func (NoopLimiter) CheckIPRateLimit(context.Context, string, string) (bool, error) { return false, nil }
func (NoopLimiter) RecordIPRequest(context.Context, string, string) error         { return nil }
func (NoopLimiter) CheckEmailCooldown(context.Context, string) (bool, error) { return false, nil }
func (NoopLimiter) SetEmailCooldown(context.Context, string) error                { return nil }

// Guard applies the IP limit for purpose and, when email is set, the email
// cooldown. Limiter failures are logged and the request is let through.
func Guard(ctx context.Context, l Limiter, logger *logging.Logger, ip, purpose, email string) error {
	exceeded, err := l.CheckIPRateLimit(ctx, ip, purpose)
	if err != nil {
		logger.Error("failed to check IP rate limit", "error", err.Error())
	} else if exceeded {
		logger.Warn("IP rate limit exceeded", "ip", ip, "purpose", purpose)
		return ErrTooManyRequests
	}

	if email != "" {
		onCooldown, err := l.CheckEmailCooldown(ctx, email)
		if err != nil {
			logger.Error("failed to check email cooldown", "error", err.Error())
		} else if onCooldown {
			logger.Warn("email on cooldown", "email", email)
			return ErrCooldownActive
		}
	}

	if err := l.RecordIPRequest(ctx, ip, purpose); err != nil {
		logger.Error("failed to record IP request", "error", err.Error())
	}

	if email != "" {
		if err := l.SetEmailCooldown(ctx, email); err != nil {
			logger.Error("failed to set email cooldown", "error", err.Error())
		}
	}

	return nil
}

// ClientIP extracts the client IP address from the request
func ClientIP(r *http.Request) string {
	// Check X-Forwarded-For header first (behind proxy/load balancer)
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// X-Forwarded-For can contain multiple IPs, take the first one
		ips := strings.Split(xff, ",")
		return strings.TrimSpace(ips[0])
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	// RemoteAddr format is "IP:port", extract just the IP
	ip := r.RemoteAddr
	if idx := strings.LastIndex(ip, ":"); idx != -1 {
		ip = ip[:idx]
	}
	return ip
}
