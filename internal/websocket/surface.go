package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"licensegate/internal/license"
)

// TypeWindowClose tells connected pages that the license window is done
const TypeWindowClose = "license-window-close"

// SurfaceOptions tunes when a Surface considers itself closed
type SurfaceOptions struct {
	// Grace is how long the window may have no connected page, after one
	// was connected, before it counts as closed. Covers page reloads.
	Grace time.Duration
	// ConnectTimeout closes the window when no page connects in time.
	// Zero waits forever.
	ConnectTimeout time.Duration
	Logger         *slog.Logger
}

// Surface presents the license window through the pages connected to a
// hub. It implements license.Surface.
type Surface struct {
	hub    *Hub
	grace  time.Duration
	logger *slog.Logger

	closed chan struct{}
	once   sync.Once
	remove func()

	mu    sync.Mutex
	seen  bool
	timer *time.Timer
}

// NewSurface opens a license window on hub
func NewSurface(hub *Hub, opts SurfaceOptions) *Surface {
	logger := opts.Logger
	if logger == nil {
		logger = hub.logger
	}
	if opts.Grace <= 0 {
		opts.Grace = 5 * time.Second
	}

	s := &Surface{
		hub:    hub,
		grace:  opts.Grace,
		logger: logger.With(slog.String("component", "license_window")),
		closed: make(chan struct{}),
	}

	s.mu.Lock()
	s.seen = hub.ClientCount() > 0
	if !s.seen && opts.ConnectTimeout > 0 {
		s.timer = time.AfterFunc(opts.ConnectTimeout, s.closeIfUnattended)
	}
	s.mu.Unlock()

	s.remove = hub.OnClientCount(s.clientCountChanged)
	return s
}

type envelope struct {
	license.Notification
	Timestamp time.Time `json:"timestamp"`
}

// Notify pushes n to every connected page
func (s *Surface) Notify(_ context.Context, n license.Notification) error {
	data, err := json.Marshal(envelope{Notification: n, Timestamp: time.Now().UTC()})
	if err != nil {
		return err
	}
	if !s.hub.Broadcast(data) {
		return errHubStopped
	}
	return nil
}

// Closed is closed once the window is dismissed
func (s *Surface) Closed() <-chan struct{} {
	return s.closed
}

// Close dismisses the window and tells connected pages
func (s *Surface) Close() error {
	s.once.Do(func() {
		s.remove()

		s.mu.Lock()
		if s.timer != nil {
			s.timer.Stop()
		}
		s.mu.Unlock()

		_ = s.hub.BroadcastJSON(map[string]string{"type": TypeWindowClose})
		close(s.closed)
	})
	return nil
}

func (s *Surface) clientCountChanged(count int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if count > 0 {
		s.seen = true
		if s.timer != nil {
			s.timer.Stop()
			s.timer = nil
		}
		return
	}

	if s.seen && s.timer == nil {
		s.timer = time.AfterFunc(s.grace, s.closeIfUnattended)
	}
}

func (s *Surface) closeIfUnattended() {
	s.mu.Lock()
	s.timer = nil
	s.mu.Unlock()

	if s.hub.ClientCount() > 0 {
		return
	}
	s.logger.Info("License window closed by the user")
	s.Close()
}
