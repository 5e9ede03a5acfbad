//go:build !linux && !darwin && !windows

package security

import "runtime"

// NewHostProbe returns the probe for the running OS
func NewHostProbe() HostProbe {
	return unsupportedProbe{goos: runtime.GOOS}
}
