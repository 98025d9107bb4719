package observability

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type logFieldsKey struct{}

type logFields struct {
	notificationID string
	tenantID       string
}

func NewLogger(level string) (*zap.Logger, error) {
	parsedLevel, err := parseLevel(level)
	if err != nil {
		return nil, err
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(parsedLevel)
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.DisableStacktrace = true

	logger, err := cfg.Build(zap.AddCaller())
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	return logger, nil
}

func parseLevel(level string) (zapcore.Level, error) {
	var parsed zapcore.Level
	normalized := strings.ToLower(strings.TrimSpace(level))
	if normalized == "" {
		normalized = "info"
	}

	if err := parsed.UnmarshalText([]byte(normalized)); err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	return parsed, nil
}

// WithNotification stores the notification and tenant ids on ctx so log
// lines emitted deeper in the call stack can be correlated.
func WithNotification(ctx context.Context, notificationID, tenantID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}

	fields := logFieldsFromContext(ctx)
	if notificationID != "" {
		fields.notificationID = notificationID
	}
	if tenantID != "" {
		fields.tenantID = tenantID
	}
	return context.WithValue(ctx, logFieldsKey{}, fields)
}

// WithTenant stores only the tenant id on ctx.
func WithTenant(ctx context.Context, tenantID string) context.Context {
	return WithNotification(ctx, "", tenantID)
}

func NotificationIDFromContext(ctx context.Context) (string, bool) {
	id := logFieldsFromContext(ctx).notificationID
	return id, id != ""
}

func TenantIDFromContext(ctx context.Context) (string, bool) {
	id := logFieldsFromContext(ctx).tenantID
	return id, id != ""
}

func logFieldsFromContext(ctx context.Context) logFields {
	if ctx == nil {
		return logFields{}
	}
	fields, _ := ctx.Value(logFieldsKey{}).(logFields)
	return fields
}

// WithContextLogger returns logger annotated with the ids stored on ctx.
func WithContextLogger(logger *zap.Logger, ctx context.Context) *zap.Logger {
	if logger == nil {
		return nil
	}

	fields := logFieldsFromContext(ctx)
	zapFields := make([]zap.Field, 0, 2)
	if fields.notificationID != "" {
		zapFields = append(zapFields, zap.String("notificationId", fields.notificationID))
	}
	if fields.tenantID != "" {
		zapFields = append(zapFields, zap.String("tenantId", fields.tenantID))
	}
	if len(zapFields) == 0 {
		return logger
	}

	return logger.With(zapFields...)
}
