//go:build linux

package security

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// NewHostProbe returns the probe for the running OS
func NewHostProbe() HostProbe {
	return &linuxProbe{root: "/"}
}

// linuxProbe reads procfs and sysfs below root
type linuxProbe struct {
	root string
}

func (p *linuxProbe) path(parts ...string) string {
	return filepath.Join(append([]string{p.root}, parts...)...)
}

func (p *linuxProbe) readTrimmed(parts ...string) string {
	data, err := os.ReadFile(p.path(parts...))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func (p *linuxProbe) CPU(ctx context.Context) (CPUInfo, error) {
	data, err := os.ReadFile(p.path("proc", "cpuinfo"))
	if err != nil {
		return CPUInfo{}, fmt.Errorf("failed to read cpuinfo: %w", err)
	}

	// Only the first processor block is relevant
	block, _, _ := strings.Cut(string(data), "\n\n")
	fields := parseKeyValues(block, ":")

	return CPUInfo{
		Manufacturer: fields["vendor_id"],
		Brand:        fields["model name"],
		Family:       fields["cpu family"],
		Model:        fields["model"],
		Stepping:     fields["stepping"],
	}, nil
}

func (p *linuxProbe) System(ctx context.Context) (SystemInfo, error) {
	// DMI is absent in many containers and product_serial needs root
	return SystemInfo{
		Manufacturer: p.readTrimmed("sys", "class", "dmi", "id", "sys_vendor"),
		Model:        p.readTrimmed("sys", "class", "dmi", "id", "product_name"),
		Serial:       p.readTrimmed("sys", "class", "dmi", "id", "product_serial"),
	}, nil
}

func (p *linuxProbe) PlatformUUID(ctx context.Context) (string, error) {
	for _, candidate := range [][]string{
		{"etc", "machine-id"},
		{"var", "lib", "dbus", "machine-id"},
	} {
		if id := p.readTrimmed(candidate...); id != "" {
			return id, nil
		}
	}
	return "", fmt.Errorf("no machine-id found")
}

func (p *linuxProbe) Disks(ctx context.Context) ([]DiskInfo, error) {
	entries, err := os.ReadDir(p.path("sys", "block"))
	if err != nil {
		return nil, fmt.Errorf("failed to list block devices: %w", err)
	}

	var disks []DiskInfo
	for _, entry := range entries {
		name := entry.Name()
		if isVirtualBlockDevice(name) {
			continue
		}

		serial := p.readTrimmed("sys", "block", name, "device", "serial")
		if serial == "" {
			serial = p.readTrimmed("sys", "block", name, "device", "wwid")
		}
		disks = append(disks, DiskInfo{Name: name, Serial: serial})
	}

	sort.Slice(disks, func(i, j int) bool { return disks[i].Name < disks[j].Name })
	return disks, nil
}

func isVirtualBlockDevice(name string) bool {
	for _, prefix := range []string{"loop", "ram", "dm-", "zram", "sr", "md"} {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}
