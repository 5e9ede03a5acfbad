//go:build windows

package security

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sys/windows/registry"
)

const machineGUIDKey = `SOFTWARE\Microsoft\Cryptography`

// NewHostProbe returns the probe for the running OS
func NewHostProbe() HostProbe {
	return &windowsProbe{run: runCommand}
}

// windowsProbe queries WMI through PowerShell CIM cmdlets and reads the
// machine GUID from the registry
type windowsProbe struct {
	run commandRunner
}

func (p *windowsProbe) cim(ctx context.Context, class string, props ...string) ([]map[string]string, error) {
	script := fmt.Sprintf("Get-CimInstance %s | Format-List %s", class, strings.Join(props, ","))
	out, err := p.run(ctx, "powershell", "-NoProfile", "-NonInteractive", "-Command", script)
	if err != nil {
		return nil, err
	}

	var records []map[string]string
	for _, block := range strings.Split(strings.ReplaceAll(out, "\r\n", "\n"), "\n\n") {
		if strings.TrimSpace(block) == "" {
			continue
		}
		records = append(records, parseKeyValues(block, ":"))
	}
	return records, nil
}

func (p *windowsProbe) first(ctx context.Context, class string, props ...string) (map[string]string, error) {
	records, err := p.cim(ctx, class, props...)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return map[string]string{}, nil
	}
	return records[0], nil
}

func (p *windowsProbe) CPU(ctx context.Context) (CPUInfo, error) {
	rec, err := p.first(ctx, "Win32_Processor", "Manufacturer", "Name", "Family", "Description")
	if err != nil {
		return CPUInfo{}, err
	}

	// Description reads like "Intel64 Family 6 Model 158 Stepping 10"
	desc := strings.Fields(rec["Description"])
	model, stepping := "", ""
	for i := 0; i+1 < len(desc); i++ {
		switch desc[i] {
		case "Model":
			model = desc[i+1]
		case "Stepping":
			stepping = desc[i+1]
		}
	}

	return CPUInfo{
		Manufacturer: rec["Manufacturer"],
		Brand:        rec["Name"],
		Family:       rec["Family"],
		Model:        model,
		Stepping:     stepping,
	}, nil
}

func (p *windowsProbe) System(ctx context.Context) (SystemInfo, error) {
	rec, err := p.first(ctx, "Win32_ComputerSystemProduct", "Vendor", "Name", "IdentifyingNumber")
	if err != nil {
		return SystemInfo{}, err
	}
	return SystemInfo{
		Manufacturer: rec["Vendor"],
		Model:        rec["Name"],
		Serial:       rec["IdentifyingNumber"],
	}, nil
}

// PlatformUUID reads the MachineGuid Windows assigns at installation
func (p *windowsProbe) PlatformUUID(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	key, err := registry.OpenKey(registry.LOCAL_MACHINE, machineGUIDKey, registry.QUERY_VALUE|registry.WOW64_64KEY)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", machineGUIDKey, err)
	}
	defer key.Close()

	guid, _, err := key.GetStringValue("MachineGuid")
	if err != nil {
		return "", fmt.Errorf("read MachineGuid: %w", err)
	}
	return strings.TrimSpace(guid), nil
}

func (p *windowsProbe) Disks(ctx context.Context) ([]DiskInfo, error) {
	records, err := p.cim(ctx, "Win32_DiskDrive", "Index", "SerialNumber")
	if err != nil {
		return nil, err
	}

	disks := make([]DiskInfo, 0, len(records))
	for _, rec := range records {
		disks = append(disks, DiskInfo{Name: rec["Index"], Serial: rec["SerialNumber"]})
	}
	return disks, nil
}
