package license

import (
	"context"
	"log/slog"
)

// logAction logs a gate action with the standard component/action attributes
func (g *Gate) logAction(ctx context.Context, level slog.Level, action, msg string, attrs ...slog.Attr) {
	base := []slog.Attr{
		slog.String("component", "license_gate"),
		slog.String("action", action),
	}
	g.logger.LogAttrs(ctx, level, msg, append(base, attrs...)...)
}

func (g *Gate) logInfo(ctx context.Context, action, msg string, attrs ...slog.Attr) {
	g.logAction(ctx, slog.LevelInfo, action, msg, attrs...)
}

func (g *Gate) logWarn(ctx context.Context, action, msg string, attrs ...slog.Attr) {
	g.logAction(ctx, slog.LevelWarn, action, msg, attrs...)
}

func (g *Gate) logError(ctx context.Context, action, msg string, err error, attrs ...slog.Attr) {
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	g.logAction(ctx, slog.LevelError, action, msg, attrs...)
}

func (g *Gate) logDebug(ctx context.Context, action, msg string, attrs ...slog.Attr) {
	g.logAction(ctx, slog.LevelDebug, action, msg, attrs...)
}
