package logging

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type contextKey int

const (
	loggerKey contextKey = iota
	accessKey
)

// accessLine collects fields that inner handlers add to the completion
// line of one request
type accessLine struct {
	mu   sync.Mutex
	args []any
}

// RequestLogger places a request-scoped logger in the context and writes one
// line per request once the handler returns. The line carries the matched
// chi route pattern, response size and anything added through Annotate.
func RequestLogger(logger *Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			reqLogger := logger.WithFields(map[string]any{
				"request_id": middleware.GetReqID(r.Context()),
				"method":     r.Method,
				"path":       r.URL.Path,
				"remote_ip":  r.RemoteAddr,
			})

			line := &accessLine{}
			ctx := context.WithValue(WithLogger(r.Context(), reqLogger), accessKey, line)
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r.WithContext(ctx))

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}

			args := []any{
				"status", status,
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
			}
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if pattern := rctx.RoutePattern(); pattern != "" {
					args = append(args, "route", pattern)
				}
			}
			line.mu.Lock()
			args = append(args, line.args...)
			line.mu.Unlock()

			level := slog.LevelInfo
			switch {
			case status >= 500:
				level = slog.LevelError
			case status >= 400:
				level = slog.LevelWarn
			}
			reqLogger.Log(ctx, level, "request completed", args...)
		})
	}
}

// Annotate adds key/value pairs to the request's completion line and returns
// a context whose logger carries them too. Outside RequestLogger only the
// returned logger is affected.
func Annotate(ctx context.Context, args ...any) context.Context {
	if line, ok := ctx.Value(accessKey).(*accessLine); ok {
		line.mu.Lock()
		line.args = append(line.args, args...)
		line.mu.Unlock()
	}
	return WithLogger(ctx, &Logger{Logger: GetLoggerFromContext(ctx).With(args...)})
}

// WithLogger returns a copy of ctx carrying logger
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// GetLoggerFromContext retrieves the logger from the request context
func GetLoggerFromContext(ctx context.Context) *Logger {
	if logger, ok := ctx.Value(loggerKey).(*Logger); ok {
		return logger
	}
	return NewLogger(true)
}
