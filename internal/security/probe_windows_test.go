//go:build windows

package security

import (
	"context"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var guidPattern = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

func TestWindowsProbe_PlatformUUID(t *testing.T) {
	p := &windowsProbe{run: func(context.Context, string, ...string) (string, error) {
		t.Fatal("machine GUID must not shell out")
		return "", nil
	}}

	first, err := p.PlatformUUID(context.Background())
	require.NoError(t, err)
	assert.Regexp(t, guidPattern, first)

	second, err := p.PlatformUUID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestWindowsProbe_PlatformUUIDCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := (&windowsProbe{run: runCommand}).PlatformUUID(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
