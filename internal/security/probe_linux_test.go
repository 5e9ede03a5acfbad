//go:build linux

package security

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const cpuinfoFixture = `processor	: 0
vendor_id	: GenuineIntel
cpu family	: 6
model		: 158
model name	: Intel(R) Core(TM) i7-8750H CPU @ 2.20GHz
stepping	: 10

processor	: 1
vendor_id	: OtherVendor
model name	: ignored
`

func writeFixture(t *testing.T, root string, rel string, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func fixtureRoot(t *testing.T) string {
	root := t.TempDir()
	writeFixture(t, root, "proc/cpuinfo", cpuinfoFixture)
	writeFixture(t, root, "sys/class/dmi/id/sys_vendor", "LENOVO\n")
	writeFixture(t, root, "sys/class/dmi/id/product_name", "20QD\n")
	writeFixture(t, root, "etc/machine-id", "0123456789abcdef\n")
	writeFixture(t, root, "sys/block/sda/device/serial", " WD-123 \n")
	writeFixture(t, root, "sys/block/nvme0n1/device/wwid", "eui.0025\n")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "sys/block/loop0"), 0755))
	return root
}

func TestLinuxProbe(t *testing.T) {
	probe := &linuxProbe{root: fixtureRoot(t)}
	ctx := context.Background()

	cpu, err := probe.CPU(ctx)
	require.NoError(t, err)
	assert.Equal(t, CPUInfo{
		Manufacturer: "GenuineIntel",
		Brand:        "Intel(R) Core(TM) i7-8750H CPU @ 2.20GHz",
		Family:       "6",
		Model:        "158",
		Stepping:     "10",
	}, cpu)

	system, err := probe.System(ctx)
	require.NoError(t, err)
	// product_serial is unreadable, so it degrades to an empty string
	assert.Equal(t, SystemInfo{Manufacturer: "LENOVO", Model: "20QD"}, system)

	id, err := probe.PlatformUUID(ctx)
	require.NoError(t, err)
	assert.Equal(t, "0123456789abcdef", id)

	disks, err := probe.Disks(ctx)
	require.NoError(t, err)
	assert.Equal(t, []DiskInfo{
		{Name: "nvme0n1", Serial: "eui.0025"},
		{Name: "sda", Serial: "WD-123"},
	}, disks)
}

func TestLinuxProbe_MissingSources(t *testing.T) {
	probe := &linuxProbe{root: t.TempDir()}
	ctx := context.Background()

	_, err := probe.CPU(ctx)
	assert.Error(t, err)

	_, err = probe.PlatformUUID(ctx)
	assert.Error(t, err)

	_, err = probe.Disks(ctx)
	assert.Error(t, err)

	system, err := probe.System(ctx)
	assert.NoError(t, err)
	assert.Equal(t, SystemInfo{}, system)
}

func TestLinuxProbe_DbusMachineIDFallback(t *testing.T) {
	root := t.TempDir()
	writeFixture(t, root, "var/lib/dbus/machine-id", "dbus-id\n")

	id, err := (&linuxProbe{root: root}).PlatformUUID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "dbus-id", id)
}
