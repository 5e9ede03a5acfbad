//go:build darwin

package security

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// NewHostProbe returns the probe for the running OS
func NewHostProbe() HostProbe {
	return &darwinProbe{run: runCommand}
}

// darwinProbe shells out to sysctl, ioreg and diskutil
type darwinProbe struct {
	run commandRunner
}

var ioregProperty = regexp.MustCompile(`"([A-Za-z -]+)" = <?"?([^">]*)"?>?`)

func (p *darwinProbe) CPU(ctx context.Context) (CPUInfo, error) {
	out, err := p.run(ctx, "sysctl", "machdep.cpu.vendor", "machdep.cpu.brand_string",
		"machdep.cpu.family", "machdep.cpu.model", "machdep.cpu.stepping")
	if err != nil {
		return CPUInfo{}, err
	}

	fields := parseKeyValues(out, ":")
	return CPUInfo{
		Manufacturer: fields["machdep.cpu.vendor"],
		Brand:        fields["machdep.cpu.brand_string"],
		Family:       fields["machdep.cpu.family"],
		Model:        fields["machdep.cpu.model"],
		Stepping:     fields["machdep.cpu.stepping"],
	}, nil
}

func (p *darwinProbe) platformExpert(ctx context.Context) (map[string]string, error) {
	out, err := p.run(ctx, "ioreg", "-rd1", "-c", "IOPlatformExpertDevice")
	if err != nil {
		return nil, err
	}

	props := make(map[string]string)
	for _, m := range ioregProperty.FindAllStringSubmatch(out, -1) {
		props[m[1]] = strings.TrimSpace(m[2])
	}
	return props, nil
}

func (p *darwinProbe) System(ctx context.Context) (SystemInfo, error) {
	props, err := p.platformExpert(ctx)
	if err != nil {
		return SystemInfo{}, err
	}
	return SystemInfo{
		Manufacturer: props["manufacturer"],
		Model:        props["model"],
		Serial:       props["IOPlatformSerialNumber"],
	}, nil
}

func (p *darwinProbe) PlatformUUID(ctx context.Context) (string, error) {
	props, err := p.platformExpert(ctx)
	if err != nil {
		return "", err
	}
	if id := props["IOPlatformUUID"]; id != "" {
		return id, nil
	}
	return "", fmt.Errorf("IOPlatformUUID not found")
}

func (p *darwinProbe) Disks(ctx context.Context) ([]DiskInfo, error) {
	out, err := p.run(ctx, "ioreg", "-r", "-c", "IOMedia", "-k", "Whole", "-d", "1")
	if err != nil {
		return nil, err
	}

	var disks []DiskInfo
	for _, m := range ioregProperty.FindAllStringSubmatch(out, -1) {
		if m[1] == "BSD Name" || m[1] == "BSDName" {
			disks = append(disks, DiskInfo{Name: m[2]})
		}
	}
	return disks, nil
}
