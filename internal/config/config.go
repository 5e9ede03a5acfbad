package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Config represents the complete application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" envconfig:"SERVER"`
	License   LicenseConfig   `yaml:"license" envconfig:"LICENSE"`
	Storage   StorageConfig   `yaml:"storage" envconfig:"STORAGE"`
	Logging   LoggingConfig   `yaml:"logging" envconfig:"LOGGING"`
	UI        UIConfig        `yaml:"ui" envconfig:"UI"`
	RateLimit RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
	Telemetry TelemetryConfig `yaml:"telemetry" envconfig:"TELEMETRY"`
	WebSocket WebSocketConfig `yaml:"websocket" envconfig:"WEBSOCKET"`

	// Features holds the entitlement defaults used when the license server
	// does not return its own feature map.
	Features map[string]bool `yaml:"features" envconfig:"FEATURES"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host" envconfig:"LISTEN_HOST"`
	Port            int           `yaml:"port" envconfig:"PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT"`
	MaxHeaderBytes  int           `yaml:"max_header_bytes" envconfig:"MAX_HEADER_BYTES"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT"`
}

// LicenseConfig contains the remote license service settings
type LicenseConfig struct {
	ActivationURL  string        `yaml:"activation_url" envconfig:"ACTIVATION_URL"`
	ValidationURL  string        `yaml:"validation_url" envconfig:"VALIDATION_URL"`
	RequestTimeout time.Duration `yaml:"request_timeout" envconfig:"REQUEST_TIMEOUT"`

	// InsecureSkipVerify disables TLS certificate verification towards the
	// license server. Only meant for self-signed development servers.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify" envconfig:"INSECURE_SKIP_VERIFY"`

	ActivationDatePolicy string `yaml:"activation_date_policy" envconfig:"ACTIVATION_DATE_POLICY"`
	EncryptionKey        string `yaml:"encryption_key" envconfig:"ENCRYPTION_KEY"`
}

// StorageConfig contains persisted license state settings
type StorageConfig struct {
	Backend     string `yaml:"backend" envconfig:"BACKEND"`
	Path        string `yaml:"path" envconfig:"STATE_PATH"`
	FailureMode string `yaml:"failure_mode" envconfig:"FAILURE_MODE"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level       string `yaml:"level" envconfig:"LEVEL"`
	Format      string `yaml:"format" envconfig:"FORMAT"`
	Output      string `yaml:"output" envconfig:"OUTPUT"`
	FilePath    string `yaml:"file_path" envconfig:"FILE_PATH"`
	Development bool   `yaml:"development" envconfig:"DEVELOPMENT"`
}

// UIConfig controls how the license window is presented
type UIConfig struct {
	OpenBrowser   bool          `yaml:"open_browser" envconfig:"OPEN_BROWSER"`
	WindowTimeout time.Duration `yaml:"window_timeout" envconfig:"WINDOW_TIMEOUT"`
	// WindowBackend selects how the license page is shown: a tab in the
	// default browser, or a dedicated Chrome window driven over DevTools
	WindowBackend string `yaml:"window_backend" envconfig:"WINDOW_BACKEND"`
	// ChromePath overrides Chrome discovery for the chromedp backend
	ChromePath string `yaml:"chrome_path" envconfig:"CHROME_PATH"`
}

// RateLimitConfig contains rate limiting configuration
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" envconfig:"ENABLED"`
	RPS     float64 `yaml:"rps" envconfig:"RPS"`
	Burst   int     `yaml:"burst" envconfig:"BURST"`
}

// TelemetryConfig contains OpenTelemetry configuration
type TelemetryConfig struct {
	ServiceName    string `yaml:"service_name" envconfig:"SERVICE_NAME"`
	Environment    string `yaml:"environment" envconfig:"ENVIRONMENT"`
	MetricsEnabled bool   `yaml:"metrics_enabled" envconfig:"METRICS_ENABLED"`
	TracingEnabled bool   `yaml:"tracing_enabled" envconfig:"TRACING_ENABLED"`
}

// WebSocketConfig contains WebSocket configuration
type WebSocketConfig struct {
	ReadBufferSize  int           `yaml:"read_buffer_size" envconfig:"READ_BUFFER_SIZE"`
	WriteBufferSize int           `yaml:"write_buffer_size" envconfig:"WRITE_BUFFER_SIZE"`
	PingPeriod      time.Duration `yaml:"ping_period" envconfig:"PING_PERIOD"`
	PongWait        time.Duration `yaml:"pong_wait" envconfig:"PONG_WAIT"`
}

// Load loads configuration from defaults, an optional YAML file and
// environment variables, in increasing order of precedence.
// An empty path falls back to the well-known config locations.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = getConfigFilePath()
	}
	if path != "" {
		if err := loadFromFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	// Fields without a matching variable keep their current value.
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// loadFromFile overlays YAML values onto cfg
func loadFromFile(filePath string, cfg *Config) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// validate validates the configuration and normalizes enum values
func (c *Config) validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server read timeout must be positive")
	}

	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server write timeout must be positive")
	}

	if c.License.RequestTimeout <= 0 {
		return fmt.Errorf("license request timeout must be positive")
	}

	if c.License.ActivationURL == "" || c.License.ValidationURL == "" {
		return fmt.Errorf("license activation and validation URLs are required")
	}

	if c.License.EncryptionKey == "" {
		return fmt.Errorf("license encryption key must not be empty")
	}

	c.License.ActivationDatePolicy = strings.ToLower(c.License.ActivationDatePolicy)
	switch c.License.ActivationDatePolicy {
	case ActivationDateServer, ActivationDatePreserve:
	default:
		return fmt.Errorf("invalid activation date policy: %q", c.License.ActivationDatePolicy)
	}

	c.UI.WindowBackend = strings.ToLower(c.UI.WindowBackend)
	switch c.UI.WindowBackend {
	case WindowBackendBrowser, WindowBackendChrome:
	case "":
		c.UI.WindowBackend = WindowBackendBrowser
	default:
		return fmt.Errorf("invalid ui window backend: %q", c.UI.WindowBackend)
	}

	c.Storage.Backend = strings.ToLower(c.Storage.Backend)
	switch c.Storage.Backend {
	case StorageBackendFile, StorageBackendSQLite, StorageBackendMemory:
	default:
		return fmt.Errorf("invalid storage backend: %q", c.Storage.Backend)
	}

	c.Storage.FailureMode = strings.ToLower(c.Storage.FailureMode)
	switch c.Storage.FailureMode {
	case FailureModeStrict, FailureModeDegraded:
	default:
		return fmt.Errorf("invalid storage failure mode: %q", c.Storage.FailureMode)
	}

	if c.Storage.Path == "" && c.Storage.Backend != StorageBackendMemory {
		return fmt.Errorf("storage path is required for the %s backend", c.Storage.Backend)
	}

	// Always JSON
	c.Logging.Format = "json"

	switch c.Logging.Output {
	case "console", "file", "both":
	default:
		c.Logging.Output = "console"
	}

	if c.RateLimit.Enabled && (c.RateLimit.RPS <= 0 || c.RateLimit.Burst <= 0) {
		return fmt.Errorf("rate limit rps and burst must be positive when enabled")
	}

	return nil
}

// Addr returns the listen address of the HTTP server
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// getConfigFilePath returns the path to the config file
func getConfigFilePath() string {
	locations := []string{
		"licensegate.yaml",
		"configs/licensegate.yaml",
	}
	if dir, err := ConfigDir(); err == nil {
		locations = append(locations, dir+string(os.PathSeparator)+"config.yaml")
	}

	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			return location
		}
	}

	return "" // No config file found, use env vars only
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            DefaultPort,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			MaxHeaderBytes:  1 << 20, // 1MB
			ShutdownTimeout: 30 * time.Second,
		},
		License: LicenseConfig{
			ActivationURL:        DefaultActivationURL,
			ValidationURL:        DefaultValidationURL,
			RequestTimeout:       LicenseRequestTimeout,
			ActivationDatePolicy: ActivationDateServer,
			EncryptionKey:        DefaultEncryptionKey,
		},
		Storage: StorageConfig{
			Backend:     StorageBackendFile,
			Path:        DefaultStatePath(),
			FailureMode: FailureModeStrict,
		},
		Logging: LoggingConfig{
			Level:    "info",
			Format:   "json",
			Output:   "console",
			FilePath: DefaultLogPath(),
		},
		UI: UIConfig{
			OpenBrowser:   true,
			WindowBackend: WindowBackendBrowser,
		},
		RateLimit: RateLimitConfig{
			Enabled: true,
			RPS:     DefaultValidateRPS,
			Burst:   DefaultValidateBurst,
		},
		Telemetry: TelemetryConfig{
			ServiceName:    AppName,
			Environment:    "production",
			MetricsEnabled: true,
		},
		WebSocket: WebSocketConfig{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			PingPeriod:      30 * time.Second,
			PongWait:        60 * time.Second,
		},
		Features: map[string]bool{},
	}
}
