package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"runtime"
)

// browserMethod represents a method to open the browser
type browserMethod struct {
	name string
	cmd  string
	args []string
}

// openBrowser opens url in the default browser, trying each platform
// method in turn
func openBrowser(ctx context.Context, logger *slog.Logger, url string) error {
	var errs []error

	for _, method := range getBrowserOpenMethods(runtime.GOOS, url) {
		if err := ctx.Err(); err != nil {
			return err
		}

		path, err := exec.LookPath(method.cmd)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", method.name, err))
			continue
		}

		cmd := exec.Command(path, method.args...)
		if err := cmd.Start(); err != nil {
			logger.WarnContext(ctx, "Browser open method failed",
				slog.String("method", method.name),
				slog.String("error", err.Error()))
			errs = append(errs, fmt.Errorf("%s: %w", method.name, err))
			continue
		}
		// The launcher detaches quickly; reap it so it does not linger.
		go func() { _ = cmd.Wait() }()

		logger.InfoContext(ctx, "Browser opened",
			slog.String("method", method.name),
			slog.String("url", url))
		return nil
	}

	if len(errs) == 0 {
		return fmt.Errorf("no browser open method for %s", runtime.GOOS)
	}
	return fmt.Errorf("failed to open browser: %w", errors.Join(errs...))
}

// getBrowserOpenMethods returns platform-specific browser opening methods
func getBrowserOpenMethods(goos, url string) []browserMethod {
	switch goos {
	case "windows":
		return []browserMethod{
			{name: "rundll32", cmd: "rundll32", args: []string{"url.dll,FileProtocolHandler", url}},
			{name: "start_command", cmd: "cmd", args: []string{"/c", "start", "", url}},
			{name: "explorer", cmd: "explorer", args: []string{url}},
		}
	case "darwin":
		return []browserMethod{
			{name: "open", cmd: "open", args: []string{url}},
		}
	default:
		return []browserMethod{
			{name: "xdg-open", cmd: "xdg-open", args: []string{url}},
			{name: "sensible-browser", cmd: "sensible-browser", args: []string{url}},
			{name: "firefox", cmd: "firefox", args: []string{url}},
			{name: "chromium", cmd: "chromium", args: []string{url}},
		}
	}
}
