package license

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	apperrors "licensegate/internal/errors"
)

// Surface is an open license window. Notify delivers a notification to it,
// Closed is closed once the user dismisses it.
type Surface interface {
	Notify(ctx context.Context, n Notification) error
	Closed() <-chan struct{}
	Close() error
}

// SurfaceOpener shows a new license window
type SurfaceOpener interface {
	OpenSurface(ctx context.Context) (Surface, error)
}

// SurfaceOpenerFunc adapts a function to SurfaceOpener
type SurfaceOpenerFunc func(ctx context.Context) (Surface, error)

func (f SurfaceOpenerFunc) OpenSurface(ctx context.Context) (Surface, error) {
	return f(ctx)
}

type licenseWindow struct {
	surface   Surface
	validated chan struct{}
	once      sync.Once
}

func (w *licenseWindow) signal() {
	w.once.Do(func() { close(w.validated) })
}

// ShowLicenseWindow opens the license window and blocks until it is closed
// by the user or by SignalLicenseValidated. It then returns the persisted
// status, which may be nil. Opening a new window closes the previous one,
// resolving its pending call.
func (g *Gate) ShowLicenseWindow(ctx context.Context) (*Status, error) {
	if g.opener == nil {
		return nil, apperrors.ErrWindowUnavailable
	}

	w, err := g.openWindow(ctx)
	if err != nil {
		return nil, err
	}
	g.logInfo(ctx, "window", "License window opened")

	var waitErr error
	select {
	case <-w.validated:
		g.closeSurface(ctx, w.surface)
	case <-w.surface.Closed():
	case <-ctx.Done():
		g.closeSurface(ctx, w.surface)
		waitErr = ctx.Err()
	}

	g.mu.Lock()
	if g.window == w {
		g.window = nil
	}
	g.mu.Unlock()
	g.logInfo(ctx, "window", "License window closed")

	if waitErr != nil {
		return nil, waitErr
	}
	return g.LicenseStatus()
}

func (g *Gate) openWindow(ctx context.Context) (*licenseWindow, error) {
	g.showMu.Lock()
	defer g.showMu.Unlock()

	g.mu.Lock()
	prev := g.window
	g.window = nil
	g.mu.Unlock()
	if prev != nil {
		g.closeSurface(ctx, prev.surface)
	}

	surface, err := g.opener.OpenSurface(ctx)
	if err != nil {
		g.logError(ctx, "window", "Unable to open license window", err)
		return nil, fmt.Errorf("%w: %v", apperrors.ErrWindowUnavailable, err)
	}

	w := &licenseWindow{surface: surface, validated: make(chan struct{})}
	g.mu.Lock()
	g.window = w
	g.mu.Unlock()
	return w, nil
}

// SignalLicenseValidated closes the open license window, if any
func (g *Gate) SignalLicenseValidated() {
	g.mu.Lock()
	w := g.window
	g.mu.Unlock()

	if w != nil {
		w.signal()
	}
}

// WindowOpen reports whether a license window is showing
func (g *Gate) WindowOpen() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.window != nil
}

// notify delivers n to the open window. Without a window it is dropped.
func (g *Gate) notify(ctx context.Context, n Notification) {
	g.mu.Lock()
	w := g.window
	g.mu.Unlock()

	if w == nil {
		g.metrics.RecordNotification(ctx, n.Type, false)
		return
	}

	if err := w.surface.Notify(ctx, n); err != nil {
		g.metrics.RecordNotification(ctx, n.Type, false)
		g.logWarn(ctx, "notify", "Unable to notify license window",
			slog.String("type", string(n.Type)),
			slog.String("error", err.Error()))
		return
	}
	g.metrics.RecordNotification(ctx, n.Type, true)
}

func (g *Gate) closeSurface(ctx context.Context, s Surface) {
	if err := s.Close(); err != nil {
		g.logDebug(ctx, "window", "Closing license window failed", slog.String("error", err.Error()))
	}
}
