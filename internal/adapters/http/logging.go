package http

import (
	"context"
	"log/slog"
)

const serviceName = "M91-License-Service"

func httpLogger() *slog.Logger {
	return slog.Default().With(
		"service", serviceName,
		"module", "http",
		"layer", "adapter",
	)
}

func logHTTPOperationError(ctx context.Context, operation string, statusCode int, code, message string, err error) {
	fields := []any{
		"operation", operation,
		"outcome", "failure",
		"status_code", statusCode,
		"error_code", code,
		"message", message,
		"request_id", requestIDFromContext(ctx),
	}
	if err != nil {
		fields = append(fields, "error", err.Error())
	}
	if statusCode >= 500 {
		httpLogger().ErrorContext(ctx, "http operation failed", fields...)
		return
	}
	httpLogger().WarnContext(ctx, "http operation failed", fields...)
}

// logAdminMutation records who changed a license.
func logAdminMutation(ctx context.Context, operation, licenseID string) {
	fields := []any{
		"operation", operation,
		"outcome", "success",
		"license_id", licenseID,
		"request_id", requestIDFromContext(ctx),
	}
	if claims, ok := claimsFromContext(ctx); ok {
		fields = append(fields, "actor_id", claims.Subject, "actor_role", claims.Role)
	}
	httpLogger().InfoContext(ctx, "license mutated", fields...)
}
