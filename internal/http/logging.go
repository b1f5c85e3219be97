package http

import (
	"context"
	"log/slog"
)

func defaultLogger(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}

// handlerLogger prefers the request-scoped logger and tags entries with the
// handler, the operation and, once a session is restored, the caller's company.
func handlerLogger(ctx context.Context, fallback *slog.Logger, handlerName, operation string, attrs ...any) *slog.Logger {
	logger := LoggerFromContext(ctx)
	if logger == nil {
		logger = defaultLogger(fallback)
	}

	tagged := make([]any, 0, len(attrs)+6)
	tagged = append(tagged, "handler", handlerName)
	if operation != "" {
		tagged = append(tagged, "operation", operation)
	}
	if principal, ok := PrincipalFromContext(ctx); ok && principal.Company != "" {
		tagged = append(tagged, "company", principal.Company)
	}
	return logger.With(append(tagged, attrs...)...)
}
