package http

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/example/appointment-desk/internal/logging"
)

func defaultLogger(logger *slog.Logger) *slog.Logger {
	if logger != nil {
		return logger
	}
	return slog.Default()
}

// handlerLogger prefers the request-scoped logger installed by RequestLogger.
func handlerLogger(ctx context.Context, fallback *slog.Logger, handlerName, operation string, attrs ...any) *slog.Logger {
	logger := logging.FromContext(ctx)
	if logger == nil {
		logger = defaultLogger(fallback)
	}
	return logger.With(append([]any{"handler", handlerName, "operation", operation}, attrs...)...)
}

// recoveryLogger adapts slog to handlers.RecoveryHandlerLogger.
type recoveryLogger struct {
	logger *slog.Logger
}

func (l recoveryLogger) Println(values ...any) {
	defaultLogger(l.logger).Error("panic recovered", "panic", fmt.Sprint(values...))
}
