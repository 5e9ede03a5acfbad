package http

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	apperrors "licensegate/internal/errors"
	"licensegate/internal/license"
	"licensegate/internal/middleware"
)

// LicenseHandler handles license-related HTTP requests
type LicenseHandler struct {
	service      LicenseService
	validator    *middleware.Validator
	errorHandler *apperrors.ErrorHandler
	logger       *slog.Logger
}

// NewLicenseHandler creates a new license handler
func NewLicenseHandler(service LicenseService, errorHandler *apperrors.ErrorHandler, logger *slog.Logger) *LicenseHandler {
	return &LicenseHandler{
		service:      service,
		validator:    middleware.NewValidator(),
		errorHandler: errorHandler,
		logger:       logger.With(slog.String("handler", "license")),
	}
}

// ValidateRequest is the body of POST /validate. An empty key is passed on
// to the gate, which reports it to the license window.
type ValidateRequest struct {
	LicenseKey string `json:"licenseKey" validate:"max=512"`
}

// ValidateResponse is the outcome of a key submission
type ValidateResponse struct {
	Valid  bool            `json:"valid"`
	Status *license.Status `json:"status"`
	State  license.State   `json:"state"`
}

// StatusResponse carries a license status, null when there is none
type StatusResponse struct {
	Status *license.Status `json:"status"`
	State  license.State   `json:"state"`
}

// SavedLicenseResponse carries the persisted key, null when there is none
type SavedLicenseResponse struct {
	LicenseKey *string `json:"licenseKey"`
}

// HardwareIDResponse carries the device fingerprint
type HardwareIDResponse struct {
	HardwareID string `json:"hardwareId"`
}

// ActivationDateResponse carries the activation date, null when unknown
type ActivationDateResponse struct {
	ActivationDate *time.Time `json:"activationDate"`
}

// StateResponse carries the current state
type StateResponse struct {
	State license.State `json:"state"`
}

// FeaturesResponse carries the feature entitlements
type FeaturesResponse struct {
	Features map[string]bool `json:"features"`
}

// Routes returns a chi router for license endpoints. limit, when not nil,
// guards key submissions.
func (h *LicenseHandler) Routes(limit func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		if limit != nil {
			r.Use(limit)
		}
		r.Use(middleware.RequireJSON)
		r.Post("/validate", h.Validate)
	})

	r.Get("/status", h.GetStatus)
	r.Get("/saved", h.GetSavedLicense)
	r.Get("/hardware-id", h.GetHardwareID)
	r.Get("/activation-date", h.GetActivationDate)
	r.Delete("/", h.Clear)
	r.Post("/validated", h.Validated)
	r.Get("/check", h.CheckExisting)
	r.Get("/state", h.GetState)
	r.Get("/features", h.GetFeatures)

	return r
}

// Validate handles POST /api/license/validate
func (h *LicenseHandler) Validate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req ValidateRequest
	if err := h.validator.Decode(w, r, &req); err != nil {
		h.renderDecodeError(w, r, err)
		return
	}

	valid, err := h.service.ValidateKey(ctx, req.LicenseKey)
	if err != nil {
		h.logger.WarnContext(ctx, "license submission failed",
			slog.String("license_key", license.MaskLicenseKey(req.LicenseKey)),
			slog.String("error", err.Error()))
		h.errorHandler.HandleError(w, r, err)
		return
	}

	status, err := h.service.LicenseStatus()
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	h.logger.InfoContext(ctx, "license submission completed",
		slog.String("license_key", license.MaskLicenseKey(req.LicenseKey)),
		slog.Bool("valid", valid))

	render.JSON(w, r, ValidateResponse{
		Valid:  valid,
		Status: status,
		State:  h.service.State(),
	})
}

// GetStatus handles GET /api/license/status
func (h *LicenseHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.service.LicenseStatus()
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, StatusResponse{Status: status, State: h.service.State()})
}

// GetSavedLicense handles GET /api/license/saved
func (h *LicenseHandler) GetSavedLicense(w http.ResponseWriter, r *http.Request) {
	key, ok, err := h.service.SavedLicense()
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	var resp SavedLicenseResponse
	if ok {
		resp.LicenseKey = &key
	}
	render.JSON(w, r, resp)
}

// GetHardwareID handles GET /api/license/hardware-id
func (h *LicenseHandler) GetHardwareID(w http.ResponseWriter, r *http.Request) {
	id, err := h.service.GenerateHardwareID(r.Context())
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, HardwareIDResponse{HardwareID: id})
}

// GetActivationDate handles GET /api/license/activation-date
func (h *LicenseHandler) GetActivationDate(w http.ResponseWriter, r *http.Request) {
	date, err := h.service.ActivationDate()
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, ActivationDateResponse{ActivationDate: date})
}

// Clear handles DELETE /api/license
func (h *LicenseHandler) Clear(w http.ResponseWriter, r *http.Request) {
	if err := h.service.ClearLicense(r.Context()); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	h.logger.InfoContext(r.Context(), "license cleared")
	w.WriteHeader(http.StatusNoContent)
}

// Validated handles POST /api/license/validated
func (h *LicenseHandler) Validated(w http.ResponseWriter, r *http.Request) {
	h.service.SignalLicenseValidated()
	w.WriteHeader(http.StatusAccepted)
}

// CheckExisting handles GET /api/license/check
func (h *LicenseHandler) CheckExisting(w http.ResponseWriter, r *http.Request) {
	status := h.service.CheckExistingLicense(r.Context())
	render.JSON(w, r, StatusResponse{Status: status, State: h.service.State()})
}

// GetState handles GET /api/license/state
func (h *LicenseHandler) GetState(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, StateResponse{State: h.service.State()})
}

// GetFeatures handles GET /api/license/features
func (h *LicenseHandler) GetFeatures(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, FeaturesResponse{Features: h.service.AvailableFeatures(r.Context())})
}

func (h *LicenseHandler) renderDecodeError(w http.ResponseWriter, r *http.Request, err error) {
	var fields middleware.FieldErrors
	if errors.As(err, &fields) {
		h.errorHandler.Validation(w, r, "invalid license request", fields)
		return
	}
	h.errorHandler.Validation(w, r, err.Error(), nil)
}
