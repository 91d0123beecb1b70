package logging

import (
	"context"
	"log/slog"
)

type contextKey int

const (
	deviceKey contextKey = iota
	contentKey
)

// WithDevice records the device serial on ctx for later log enrichment.
func WithDevice(ctx context.Context, serial string) context.Context {
	if serial == "" {
		return ctx
	}
	return context.WithValue(ctx, deviceKey, serial)
}

// WithContentID records the content identifier being processed on ctx.
func WithContentID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, contentKey, id)
}

// ContextFields extracts standardized attributes from ctx.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 2)
	if v, ok := ctx.Value(deviceKey).(string); ok {
		fields = append(fields, slog.String(FieldDevice, v))
	}
	if v, ok := ctx.Value(contentKey).(string); ok {
		fields = append(fields, slog.String(FieldContentID, v))
	}
	return fields
}

// WithContext returns logger enriched with the fields carried by ctx.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(Args(fields...)...)
}
