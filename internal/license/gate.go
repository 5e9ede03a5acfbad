package license

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"licensegate/internal/config"
	apperrors "licensegate/internal/errors"
	"licensegate/internal/storage"
)

const (
	activationFailedMessage = "license activation failed"
	validationFailedMessage = "license validation failed"
	activationRejectMessage = "unable to activate license"
)

// Fingerprinter produces the stable hardware fingerprint of this machine
type Fingerprinter interface {
	GenerateFingerprint(ctx context.Context) (string, error)
}

// Gate owns the license lifecycle: hardware identity, activation,
// validation, persisted status and the license window.
type Gate struct {
	store         storage.Store
	client        Client
	fingerprinter Fingerprinter
	opener        SurfaceOpener
	logger        *slog.Logger
	metrics       *Metrics
	tracer        trace.Tracer
	now           func() time.Time
	newID         func() string
	datePolicy    string
	features      map[string]bool

	// submitMu serializes activation and validation round trips
	submitMu sync.Mutex
	// hwMu guards hardware id generation
	hwMu sync.Mutex
	// showMu serializes opening the license window
	showMu sync.Mutex

	mu     sync.Mutex
	state  State
	window *licenseWindow
}

// Option configures a Gate
type Option func(*Gate)

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gate) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(g *Gate) {
		if now != nil {
			g.now = now
		}
	}
}

// WithFingerprinter sets the hardware fingerprint source
func WithFingerprinter(f Fingerprinter) Option {
	return func(g *Gate) { g.fingerprinter = f }
}

// WithIDGenerator overrides the random id used when fingerprinting fails
func WithIDGenerator(newID func() string) Option {
	return func(g *Gate) {
		if newID != nil {
			g.newID = newID
		}
	}
}

// WithActivationDatePolicy selects which activation date is persisted on
// validation. See config.ActivationDateServer and config.ActivationDatePreserve.
func WithActivationDatePolicy(policy string) Option {
	return func(g *Gate) { g.datePolicy = policy }
}

// WithSurfaceOpener sets how the license window is shown
func WithSurfaceOpener(opener SurfaceOpener) Option {
	return func(g *Gate) { g.opener = opener }
}

// WithMetrics sets the metric instruments
func WithMetrics(m *Metrics) Option {
	return func(g *Gate) {
		if m != nil {
			g.metrics = m
		}
	}
}

// WithTracer sets the tracer
func WithTracer(tracer trace.Tracer) Option {
	return func(g *Gate) {
		if tracer != nil {
			g.tracer = tracer
		}
	}
}

// WithDefaultFeatures sets the entitlements granted by any active license
// when the server does not say otherwise
func WithDefaultFeatures(features map[string]bool) Option {
	return func(g *Gate) {
		g.features = make(map[string]bool, len(features))
		for name, enabled := range features {
			g.features[name] = enabled
		}
	}
}

// New creates a gate over store and client. The initial state is derived
// from the persisted status.
func New(store storage.Store, client Client, opts ...Option) (*Gate, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}
	if client == nil {
		return nil, errors.New("license client is required")
	}

	metrics, err := NewMetrics(nil)
	if err != nil {
		return nil, err
	}

	g := &Gate{
		store:      store,
		client:     client,
		logger:     slog.Default(),
		metrics:    metrics,
		tracer:     otel.Tracer(TracerName),
		now:        time.Now,
		newID:      func() string { return uuid.New().String() },
		datePolicy: config.ActivationDateServer,
		features:   map[string]bool{},
	}
	for _, opt := range opts {
		opt(g)
	}

	switch g.datePolicy {
	case config.ActivationDateServer, config.ActivationDatePreserve:
	default:
		return nil, fmt.Errorf("invalid activation date policy: %q", g.datePolicy)
	}

	status, err := g.loadStatus()
	if err != nil {
		return nil, err
	}
	switch {
	case status == nil:
		g.state = StateUnknown
	case status.Valid:
		g.state = StateValid
	default:
		g.state = StateInvalid
	}

	return g, nil
}

// State returns the current lifecycle state
func (g *Gate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

func (g *Gate) setState(ctx context.Context, next State) {
	g.mu.Lock()
	prev := g.state
	g.state = next
	g.mu.Unlock()

	if prev != next {
		g.metrics.RecordTransition(ctx, prev, next)
		g.logDebug(ctx, "state", "License state changed",
			slog.String("from", prev.String()),
			slog.String("to", next.String()))
	}
}

// GenerateHardwareID returns the persisted hardware id, computing and
// persisting it on first use. When probing the host fails a random id is
// used instead, so the result is never empty.
func (g *Gate) GenerateHardwareID(ctx context.Context) (string, error) {
	g.hwMu.Lock()
	defer g.hwMu.Unlock()

	var id string
	found, err := g.store.Get(KeyHardwareID, &id)
	if err != nil {
		return "", persistenceError("read hardware id", err)
	}
	if found && id != "" {
		return id, nil
	}

	if g.fingerprinter != nil {
		id, err = g.fingerprinter.GenerateFingerprint(ctx)
	} else {
		err = errors.New("no fingerprint source configured")
	}
	if err != nil {
		// a cancelled caller must not pin a random id forever
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		g.logWarn(ctx, "hardware_id", "Hardware fingerprint unavailable, using a random id",
			slog.String("error", err.Error()))
		g.metrics.RecordFingerprintFallback(ctx)
		id = g.newID()
	}

	if err := g.store.Set(KeyHardwareID, id); err != nil {
		return "", persistenceError("save hardware id", err)
	}

	g.logInfo(ctx, "hardware_id", "Hardware id generated")
	return id, nil
}

// HardwareID returns the persisted hardware id, or "" before one exists
func (g *Gate) HardwareID() (string, error) {
	var id string
	if _, err := g.store.Get(KeyHardwareID, &id); err != nil {
		return "", persistenceError("read hardware id", err)
	}
	return id, nil
}

// ValidateKey is the entry point for a key typed by the user. The key is
// persisted first, then activated when no valid status exists or
// re-validated otherwise.
func (g *Gate) ValidateKey(ctx context.Context, key string) (bool, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		g.notify(ctx, Notification{Type: NotifyError, Message: apperrors.UserMessage(apperrors.ErrEmptyLicenseKey)})
		return false, apperrors.ErrEmptyLicenseKey
	}

	hwID, err := g.GenerateHardwareID(ctx)
	if err != nil {
		return false, err
	}

	g.submitMu.Lock()
	defer g.submitMu.Unlock()

	if err := g.store.Set(KeyLicenseKey, key); err != nil {
		err = persistenceError("save license key", err)
		g.notify(ctx, Notification{Type: NotifyError, Message: apperrors.UserMessage(err)})
		return false, err
	}

	current, err := g.loadStatus()
	if err != nil {
		return false, err
	}
	if current != nil && current.Valid {
		return g.validate(ctx, key, hwID, current)
	}
	return g.activate(ctx, key, hwID)
}

// Activate registers key for hardware id hwID. An already valid persisted
// status turns the call into a validation.
func (g *Gate) Activate(ctx context.Context, key, hwID string) (bool, error) {
	if strings.TrimSpace(key) == "" {
		return false, apperrors.ErrEmptyLicenseKey
	}

	g.submitMu.Lock()
	defer g.submitMu.Unlock()

	current, err := g.loadStatus()
	if err != nil {
		return false, err
	}
	if current != nil && current.Valid {
		return g.validate(ctx, key, hwID, current)
	}
	return g.activate(ctx, key, hwID)
}

// Validate asks the server whether key is still valid for hwID. The
// server's answer is persisted whether or not it is valid. A definitive
// "invalid" answer returns (false, nil).
func (g *Gate) Validate(ctx context.Context, key, hwID string) (bool, error) {
	if strings.TrimSpace(key) == "" {
		return false, apperrors.ErrEmptyLicenseKey
	}

	g.submitMu.Lock()
	defer g.submitMu.Unlock()

	current, err := g.loadStatus()
	if err != nil {
		return false, err
	}
	return g.validate(ctx, key, hwID, current)
}

// activate and validate ignore caller cancellation once the request is
// issued. The client timeout is the only bound on the round trip.
func (g *Gate) activate(ctx context.Context, key, hwID string) (bool, error) {
	ctx, span := g.tracer.Start(ctx, "license.activate",
		trace.WithAttributes(attribute.String("license.key", MaskLicenseKey(key))))
	defer span.End()

	g.notify(ctx, Notification{Type: NotifyChecking})
	g.setState(ctx, StateActivating)
	g.logInfo(ctx, "activate", "Activating license",
		slog.String("license_key", MaskLicenseKey(key)))

	start := g.now()
	resp, err := g.client.Activate(context.WithoutCancel(ctx), Request{LicenseKey: key, HardwareID: hwID})
	if err != nil {
		g.metrics.RecordCheck(ctx, "activate", "error", g.now().Sub(start))
		return false, g.fail(ctx, span, "activate", asRejection(err, activationFailedMessage))
	}

	if !resp.Valid {
		g.metrics.RecordCheck(ctx, "activate", "rejected", g.now().Sub(start))
		message := resp.Message
		if message == "" {
			message = activationRejectMessage
		}
		return false, g.fail(ctx, span, "activate", &apperrors.RejectionError{StatusCode: 200, Message: message})
	}
	g.metrics.RecordCheck(ctx, "activate", "valid", g.now().Sub(start))

	status := g.statusFrom(resp, nil)
	if err := g.saveStatus(status); err != nil {
		return false, g.fail(ctx, span, "activate", err)
	}

	g.setState(ctx, StateValid)
	g.notify(ctx, Notification{Type: NotifyResult, Result: resp.Raw()})
	g.logInfo(ctx, "activate", "License activated",
		slog.String("client_name", status.ClientName),
		slog.Time("expiration", status.Expiration.Time))
	span.SetStatus(codes.Ok, "")
	return true, nil
}

func (g *Gate) validate(ctx context.Context, key, hwID string, previous *Status) (bool, error) {
	ctx, span := g.tracer.Start(ctx, "license.validate",
		trace.WithAttributes(attribute.String("license.key", MaskLicenseKey(key))))
	defer span.End()

	g.notify(ctx, Notification{Type: NotifyChecking})
	g.setState(ctx, StateValidating)

	start := g.now()
	resp, err := g.client.Validate(context.WithoutCancel(ctx), Request{LicenseKey: key, HardwareID: hwID})
	if err != nil {
		g.metrics.RecordCheck(ctx, "validate", "error", g.now().Sub(start))
		return false, g.fail(ctx, span, "validate", asRejection(err, validationFailedMessage))
	}

	result := "valid"
	if !resp.Valid {
		result = "invalid"
	}
	g.metrics.RecordCheck(ctx, "validate", result, g.now().Sub(start))

	status := g.statusFrom(resp, previous)
	if err := g.saveStatus(status); err != nil {
		return false, g.fail(ctx, span, "validate", err)
	}

	if resp.Valid {
		g.setState(ctx, StateValid)
	} else {
		g.setState(ctx, StateInvalid)
	}
	g.notify(ctx, Notification{Type: NotifyResult, Result: resp.Raw()})
	g.logInfo(ctx, "validate", "License validated",
		slog.Bool("valid", resp.Valid),
		slog.String("license_key", MaskLicenseKey(key)))
	span.SetStatus(codes.Ok, "")
	return resp.Valid, nil
}

// fail reports err to the window and moves to INVALID
func (g *Gate) fail(ctx context.Context, span trace.Span, action string, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	g.setState(ctx, StateInvalid)
	g.notify(ctx, Notification{Type: NotifyError, Message: apperrors.UserMessage(err)})

	if errors.Is(err, apperrors.ErrLicenseRejected) {
		g.logWarn(ctx, action, "License rejected", slog.String("error", err.Error()))
	} else {
		g.logError(ctx, action, "License check failed", err)
	}
	return err
}

// statusFrom builds the status to persist from a server response. previous
// is the status being re-validated, nil on activation.
func (g *Gate) statusFrom(resp *ServerResponse, previous *Status) *Status {
	now := g.now()

	activation := resp.ActivationDate
	var prior Timestamp
	if previous != nil {
		prior = previous.ActivationDate
	}
	switch {
	case g.datePolicy == config.ActivationDatePreserve && !prior.IsZero():
		activation = prior
	case !activation.IsZero():
	case !prior.IsZero():
		activation = prior
	default:
		activation = NewTimestamp(now)
	}

	var features map[string]bool
	if len(resp.Features) > 0 {
		features = make(map[string]bool, len(resp.Features))
		for name, enabled := range resp.Features {
			features[name] = enabled
		}
	}

	return &Status{
		Valid:          resp.Valid,
		Expiration:     resp.Expiration,
		ClientID:       string(resp.ClientID),
		ClientName:     resp.ClientName,
		ActivationDate: activation,
		Timestamp:      NewTimestamp(now),
		Features:       features,
	}
}

// CheckExistingLicense is the local-only startup check. It returns the
// persisted status when a key is saved and the status is valid and
// unexpired, nil otherwise. Storage errors are logged and treated as "no
// license".
func (g *Gate) CheckExistingLicense(ctx context.Context) *Status {
	status, err := g.loadStatus()
	if err != nil {
		g.logError(ctx, "check", "Unable to read license status", err)
		return nil
	}
	if status == nil || !status.Valid {
		return nil
	}

	key, found, err := g.SavedLicense()
	if err != nil {
		g.logError(ctx, "check", "Unable to read saved license", err)
		return nil
	}
	if !found || key == "" {
		return nil
	}

	if !status.ActiveAt(g.now()) {
		g.markExpired(ctx)
		return nil
	}
	return status
}

// ExpiringSoon reports whether the active license expires within
// ExpiryWarningWindow
func (g *Gate) ExpiringSoon(ctx context.Context) bool {
	return g.CheckExistingLicense(ctx).ExpiringWithin(g.now(), ExpiryWarningWindow)
}

// markExpired moves a VALID gate to EXPIRED. In-flight checks own the
// state and are left alone.
func (g *Gate) markExpired(ctx context.Context) {
	g.mu.Lock()
	prev := g.state
	switch prev {
	case StateActivating, StateValidating:
		g.mu.Unlock()
		return
	}
	g.state = StateExpired
	g.mu.Unlock()

	if prev != StateExpired {
		g.metrics.RecordTransition(ctx, prev, StateExpired)
		g.logInfo(ctx, "check", "License expired")
	}
}

// LicenseStatus returns the persisted status, or nil when none exists
func (g *Gate) LicenseStatus() (*Status, error) {
	return g.loadStatus()
}

// SavedLicense returns the persisted license key
func (g *Gate) SavedLicense() (string, bool, error) {
	var key string
	found, err := g.store.Get(KeyLicenseKey, &key)
	if err != nil {
		return "", false, persistenceError("read license key", err)
	}
	return key, found, nil
}

// ActivationDate returns the activation date of the persisted status
func (g *Gate) ActivationDate() (*time.Time, error) {
	status, err := g.loadStatus()
	if err != nil || status == nil {
		return nil, err
	}
	return status.ActivationDate.Ptr(), nil
}

// ClearLicense removes the saved key and status. The hardware id is kept.
func (g *Gate) ClearLicense(ctx context.Context) error {
	g.submitMu.Lock()
	defer g.submitMu.Unlock()

	if err := g.store.Delete(KeyLicenseKey, KeyLicenseStatus); err != nil {
		return persistenceError("clear license", err)
	}
	g.setState(ctx, StateUnknown)
	g.logInfo(ctx, "clear", "License data cleared")
	return nil
}

func (g *Gate) loadStatus() (*Status, error) {
	var status Status
	found, err := g.store.Get(KeyLicenseStatus, &status)
	if err != nil {
		return nil, persistenceError("read license status", err)
	}
	if !found {
		return nil, nil
	}
	return &status, nil
}

func (g *Gate) saveStatus(status *Status) error {
	if err := g.store.Set(KeyLicenseStatus, status); err != nil {
		return persistenceError("save license status", err)
	}
	return nil
}

func persistenceError(op string, err error) error {
	if errors.Is(err, apperrors.ErrPersistence) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %v", op, apperrors.ErrPersistence, err)
}
