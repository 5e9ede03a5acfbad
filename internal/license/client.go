package license

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	apperrors "licensegate/internal/errors"
)

// maxResponseBytes bounds how much of a license server reply is read
const maxResponseBytes = 1 << 20

// Request is the body sent to the activation and validation endpoints
type Request struct {
	LicenseKey string `json:"licenseKey"`
	HardwareID string `json:"hardwareId"`
}

// Client talks to the remote license service
type Client interface {
	Activate(ctx context.Context, req Request) (*ServerResponse, error)
	Validate(ctx context.Context, req Request) (*ServerResponse, error)
}

// ClientConfig configures HTTPClient
type ClientConfig struct {
	ActivationURL      string
	ValidationURL      string
	Timeout            time.Duration
	InsecureSkipVerify bool
	Logger             *slog.Logger
}

// HTTPError is returned when the server answers with a non-2xx status
type HTTPError struct {
	StatusCode int
	Message    string // "message" field of the body, if any
}

func (e *HTTPError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("license server returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("license server returned status %d: %s", e.StatusCode, e.Message)
}

// NetworkError wraps transport failures and truncated replies. It matches
// ErrNetwork as well as the underlying cause.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Op, apperrors.ErrNetwork, e.Err)
}

func (e *NetworkError) Unwrap() []error {
	return []error{apperrors.ErrNetwork, e.Err}
}

// HTTPClient is the HTTP implementation of Client
type HTTPClient struct {
	activationURL string
	validationURL string
	timeout       time.Duration
	httpClient    *http.Client
	logger        *slog.Logger
}

// NewHTTPClient creates a license service client
func NewHTTPClient(cfg ClientConfig) *HTTPClient {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "license_client"))

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: cfg.InsecureSkipVerify, //nolint:gosec // opt-in for self-signed servers
	}
	if cfg.InsecureSkipVerify {
		logger.Warn("TLS certificate verification disabled for the license server")
	}

	return &HTTPClient{
		activationURL: cfg.ActivationURL,
		validationURL: cfg.ValidationURL,
		timeout:       timeout,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		logger: logger,
	}
}

// Activate registers a license key for a device
func (c *HTTPClient) Activate(ctx context.Context, req Request) (*ServerResponse, error) {
	return c.post(ctx, "activate", c.activationURL, req)
}

// Validate checks a license key and device against the server
func (c *HTTPClient) Validate(ctx context.Context, req Request) (*ServerResponse, error) {
	return c.post(ctx, "validate", c.validationURL, req)
}

func (c *HTTPClient) post(ctx context.Context, op, url string, req Request) (*ServerResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, &NetworkError{Op: op, Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.WarnContext(ctx, "License server request failed",
			slog.String("op", op),
			slog.String("error", err.Error()))
		return nil, &NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &NetworkError{Op: op, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	c.logger.DebugContext(ctx, "License server responded",
		slog.String("op", op),
		slog.Int("status", resp.StatusCode),
		slog.Duration("duration", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPError{StatusCode: resp.StatusCode, Message: errorMessage(data)}
	}

	var result ServerResponse
	if err := json.Unmarshal(data, &result); err != nil {
		c.logger.WarnContext(ctx, "License server sent an unreadable response",
			slog.String("op", op),
			slog.Int("status", resp.StatusCode),
			slog.String("error", err.Error()))
		return nil, fmt.Errorf("%s: %w: %w", op, apperrors.ErrMalformedResponse, err)
	}
	result.raw = json.RawMessage(data)

	return &result, nil
}

// errorMessage extracts the "message" field of an error body
func errorMessage(data []byte) string {
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return ""
	}
	if body.Message != "" {
		return strings.TrimSpace(body.Message)
	}
	return strings.TrimSpace(body.Error)
}

// asRejection converts a server refusal into the error surfaced to callers.
// Other errors are returned unchanged.
func asRejection(err error, fallback string) error {
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		return err
	}
	message := httpErr.Message
	if message == "" {
		message = fallback
	}
	return &apperrors.RejectionError{StatusCode: httpErr.StatusCode, Message: message}
}
