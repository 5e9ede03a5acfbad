package config

import "time"

// AppVersion is stamped by the release build with
// -ldflags "-X licensegate/internal/config.AppVersion=..."
var AppVersion = "1.0.0"

// Application constants
const (
	AppName = "licensegate"

	// EnvPrefix namespaces every environment variable, e.g. LICENSEGATE_SERVER_PORT
	EnvPrefix = "LICENSEGATE"

	DefaultPort = 8765

	// License service
	DefaultActivationURL  = "https://license.example.com/api/activate"
	DefaultValidationURL  = "https://license.example.com/api/validate"
	LicenseRequestTimeout = 10 * time.Second

	// DefaultEncryptionKey is embedded in the binary. It obfuscates the
	// state file, it does not protect it.
	DefaultEncryptionKey = "app-license-secure-key"

	// Activation date policies applied on re-validation
	ActivationDateServer   = "server"
	ActivationDatePreserve = "preserve"

	// License window backends
	WindowBackendBrowser = "browser"
	WindowBackendChrome  = "chromedp"

	// Storage backends
	StorageBackendFile   = "file"
	StorageBackendSQLite = "sqlite"
	StorageBackendMemory = "memory"

	// Persistence failure handling
	FailureModeStrict   = "strict"
	FailureModeDegraded = "degraded"

	// Rate limiting of license submissions
	DefaultValidateRPS   = 1.0
	DefaultValidateBurst = 5

	// State file names
	StateFileName  = "license-data.json"
	StateDBName    = "license-data.db"
	LogFileName    = "licensegate.log"
	ExpiryWarnDays = 7
)
