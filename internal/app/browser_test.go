package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"licensegate/internal/shared/testutil"
)

func TestGetBrowserOpenMethods(t *testing.T) {
	const url = "http://127.0.0.1:8080/license"

	for _, goos := range []string{"windows", "darwin", "linux", "freebsd"} {
		t.Run(goos, func(t *testing.T) {
			methods := getBrowserOpenMethods(goos, url)
			assert.NotEmpty(t, methods)
			for _, m := range methods {
				assert.Contains(t, m.args, url)
			}
		})
	}
}

func TestOpenBrowser_CancelledContext(t *testing.T) {
	logger, _ := testutil.NewTestLogger(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, openBrowser(ctx, logger, "http://127.0.0.1/license"), context.Canceled)
}
