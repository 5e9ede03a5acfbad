package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	apperrors "licensegate/internal/errors"
	"licensegate/internal/middleware"
)

// ClientLogHandler receives log entries from the license page
type ClientLogHandler struct {
	logger       *slog.Logger
	validator    *middleware.Validator
	errorHandler *apperrors.ErrorHandler
}

// NewClientLogHandler creates a new client log handler
func NewClientLogHandler(logger *slog.Logger, errorHandler *apperrors.ErrorHandler) *ClientLogHandler {
	return &ClientLogHandler{
		logger:       logger.With(slog.String("handler", "client_log")),
		validator:    middleware.NewValidator(),
		errorHandler: errorHandler,
	}
}

// LogRequest represents a client log entry
type LogRequest struct {
	Level   string         `json:"level" validate:"omitempty,oneof=debug info warn error"`
	Message string         `json:"message" validate:"required,max=2048"`
	Data    map[string]any `json:"data,omitempty"`
	Source  string         `json:"source,omitempty" validate:"max=128"`
}

var clientLevels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// Handle processes client logging requests
func (h *ClientLogHandler) Handle(w http.ResponseWriter, r *http.Request) {
	var req LogRequest
	if err := h.validator.Decode(w, r, &req); err != nil {
		var fields middleware.FieldErrors
		if errors.As(err, &fields) {
			h.errorHandler.Validation(w, r, "invalid log entry", fields)
			return
		}
		h.errorHandler.Validation(w, r, err.Error(), nil)
		return
	}

	level, ok := clientLevels[req.Level]
	if !ok {
		level = slog.LevelInfo
	}

	attrs := []slog.Attr{slog.String("client_source", req.Source)}
	if req.Data != nil {
		attrs = append(attrs, slog.Any("data", req.Data))
	}
	h.logger.LogAttrs(r.Context(), level, req.Message, attrs...)

	render.JSON(w, r, map[string]bool{"success": true})
}
