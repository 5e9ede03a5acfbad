package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"

	"licensegate/internal/license"
)

// Window is a native window showing the license page. Closed fires when
// the user closes it or Close is called.
type Window interface {
	Closed() <-chan struct{}
	Close() error
}

// chromeWindow is a dedicated Chrome window on the license page, driven
// over the DevTools protocol
type chromeWindow struct {
	cancel context.CancelFunc
	closed chan struct{}
	once   sync.Once
}

// openChromeWindow starts a visible app-mode Chrome with its own profile
// and loads url. execPath overrides Chrome discovery when set.
func openChromeWindow(ctx context.Context, logger *slog.Logger, execPath, url string) (*chromeWindow, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", false),
		chromedp.Flag("hide-scrollbars", false),
		chromedp.Flag("mute-audio", false),
		chromedp.Flag("app", url),
		chromedp.WindowSize(560, 780),
	)
	if execPath != "" {
		opts = append(opts, chromedp.ExecPath(execPath))
	}

	// The window outlives the call that opened it
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.WithoutCancel(ctx), opts...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)

	w := &chromeWindow{closed: make(chan struct{})}
	w.cancel = func() {
		cancelBrowser()
		cancelAlloc()
	}

	if err := chromedp.Run(browserCtx, chromedp.Navigate(url)); err != nil {
		w.cancel()
		return nil, fmt.Errorf("failed to open Chrome window: %w", err)
	}

	tab := chromedp.FromContext(browserCtx).Target.TargetID
	chromedp.ListenBrowser(browserCtx, func(ev interface{}) {
		if e, ok := ev.(*target.EventTargetDestroyed); ok && e.TargetID == tab {
			logger.Info("License window closed by the user")
			w.markClosed()
		}
	})
	go func() {
		<-browserCtx.Done()
		w.markClosed()
	}()

	logger.Info("License window opened in Chrome", slog.String("url", url))
	return w, nil
}

func (w *chromeWindow) markClosed() {
	w.once.Do(func() { close(w.closed) })
}

func (w *chromeWindow) Closed() <-chan struct{} {
	return w.closed
}

// Close shuts the browser down and removes its temporary profile
func (w *chromeWindow) Close() error {
	w.cancel()
	w.markClosed()
	return nil
}

// bindWindow ties a native window to the license surface: whichever closes
// first closes the other
func bindWindow(surface license.Surface, win Window) {
	go func() {
		select {
		case <-surface.Closed():
			_ = win.Close()
		case <-win.Closed():
			_ = surface.Close()
		}
	}()
}
