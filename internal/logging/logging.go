// Package logging builds the slog logger used by every entrypoint. Records are
// written through zap and sensitive attributes are redacted or hashed first.
package logging

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/exp/zapslog"
)

// New builds a slog logger over a zap core. mode "prod" selects zap's JSON
// production config, anything else the development console config.
func New(mode string) (*slog.Logger, func(), error) {
	var cfg zap.Config
	switch strings.ToLower(mode) {
	case "prod", "production":
		cfg = zap.NewProductionConfig()
	default:
		cfg = zap.NewDevelopmentConfig()
	}
	zapLogger, err := cfg.Build()
	if err != nil {
		return nil, func() {}, fmt.Errorf("failed to build zap logger: %w", err)
	}
	handler := NewRedactingHandler(zapslog.NewHandler(zapLogger.Core()), os.Getenv("LOG_HASH_SALT"))
	return slog.New(handler), func() { _ = zapLogger.Sync() }, nil
}

// Setup installs the logger as the slog default. It falls back to a plain JSON
// handler on stdout if zap cannot be built.
func Setup(mode string) func() {
	logger, sync, err := New(mode)
	if err != nil {
		logger = slog.New(NewRedactingHandler(slog.NewJSONHandler(os.Stdout, nil), ""))
		logger.Error("Falling back to stdout JSON logging", "error", err)
	}
	slog.SetDefault(logger)
	return sync
}

// RedactingHandler rewrites attributes before passing records on.
type RedactingHandler struct {
	next slog.Handler
	salt string
}

func NewRedactingHandler(next slog.Handler, salt string) *RedactingHandler {
	return &RedactingHandler{next: next, salt: salt}
}

func (h *RedactingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *RedactingHandler) Handle(ctx context.Context, r slog.Record) error {
	out := slog.NewRecord(r.Time, r.Level, r.Message, r.PC)
	r.Attrs(func(a slog.Attr) bool {
		out.AddAttrs(h.sanitize(a))
		return true
	})
	return h.next.Handle(ctx, out)
}

func (h *RedactingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clean := make([]slog.Attr, 0, len(attrs))
	for _, a := range attrs {
		clean = append(clean, h.sanitize(a))
	}
	return &RedactingHandler{next: h.next.WithAttrs(clean), salt: h.salt}
}

func (h *RedactingHandler) WithGroup(name string) slog.Handler {
	return &RedactingHandler{next: h.next.WithGroup(name), salt: h.salt}
}

func (h *RedactingHandler) sanitize(a slog.Attr) slog.Attr {
	key := strings.ToLower(strings.TrimSpace(a.Key))
	if a.Value.Kind() == slog.KindGroup {
		group := a.Value.Group()
		clean := make([]any, 0, len(group))
		for _, g := range group {
			clean = append(clean, h.sanitize(g))
		}
		return slog.Group(a.Key, clean...)
	}
	switch {
	case isRedactKey(key):
		return slog.String(a.Key, "[REDACTED]")
	case isHashKey(key):
		return slog.String(a.Key, h.hash(a.Value.String()))
	}
	return a
}

func isRedactKey(key string) bool {
	for _, s := range []string{"token", "authorization", "password", "secret", "cookie", "api_key", "apikey", "email"} {
		if strings.Contains(key, s) {
			return true
		}
	}
	return false
}

func isHashKey(key string) bool {
	return key == "userid" || key == "user_id" || key == "subject"
}

func (h *RedactingHandler) hash(raw string) string {
	if raw == "" {
		return ""
	}
	sum := sha256.New()
	if h.salt != "" {
		_, _ = sum.Write([]byte(h.salt))
	}
	_, _ = sum.Write([]byte(raw))
	return "hash:" + hex.EncodeToString(sum.Sum(nil))[:12]
}
