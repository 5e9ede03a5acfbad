package http

import (
	"context"
	"time"

	"licensegate/internal/license"
)

// LicenseService is the part of the license gate the handlers use
type LicenseService interface {
	ValidateKey(ctx context.Context, key string) (bool, error)
	LicenseStatus() (*license.Status, error)
	SavedLicense() (string, bool, error)
	GenerateHardwareID(ctx context.Context) (string, error)
	ActivationDate() (*time.Time, error)
	ClearLicense(ctx context.Context) error
	SignalLicenseValidated()
	CheckExistingLicense(ctx context.Context) *license.Status
	State() license.State
	AvailableFeatures(ctx context.Context) map[string]bool
}

// StateReporter reports the current license state
type StateReporter interface {
	State() license.State
}
