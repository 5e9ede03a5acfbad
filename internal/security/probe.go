package security

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// commandRunner executes an external command and returns its stdout
type commandRunner func(ctx context.Context, name string, args ...string) (string, error)

func runCommand(ctx context.Context, name string, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, name, args...).Output()
	if err != nil {
		return "", fmt.Errorf("%s: %w", name, err)
	}
	return string(out), nil
}

// parseKeyValues parses "key<sep>value" lines, trimming both sides.
// The first occurrence of a key wins.
func parseKeyValues(data, sep string) map[string]string {
	values := make(map[string]string)
	for _, line := range strings.Split(data, "\n") {
		key, value, ok := strings.Cut(line, sep)
		if !ok {
			continue
		}
		key = strings.Trim(strings.TrimSpace(key), `"`)
		if _, seen := values[key]; seen {
			continue
		}
		values[key] = strings.Trim(strings.TrimSpace(value), `"`)
	}
	return values
}

// unsupportedProbe is used on platforms without a native probe. Every call
// fails, which makes callers fall back to a random identifier.
type unsupportedProbe struct {
	goos string
}

func (p unsupportedProbe) err() error {
	return fmt.Errorf("hardware probing is not supported on %s", p.goos)
}

func (p unsupportedProbe) CPU(context.Context) (CPUInfo, error)       { return CPUInfo{}, p.err() }
func (p unsupportedProbe) System(context.Context) (SystemInfo, error) { return SystemInfo{}, p.err() }
func (p unsupportedProbe) PlatformUUID(context.Context) (string, error) {
	return "", p.err()
}
func (p unsupportedProbe) Disks(context.Context) ([]DiskInfo, error) { return nil, p.err() }
