package security

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// CPUInfo identifies the processor
type CPUInfo struct {
	Manufacturer string
	Brand        string
	Family       string
	Model        string
	Stepping     string
}

// SystemInfo identifies the machine
type SystemInfo struct {
	Manufacturer string
	Model        string
	Serial       string
}

// DiskInfo describes one block device
type DiskInfo struct {
	Name   string
	Serial string
}

// HostProbe reads raw host attributes. Implementations return empty strings
// for attributes they cannot read and an error only when the whole source is
// unavailable.
type HostProbe interface {
	CPU(ctx context.Context) (CPUInfo, error)
	System(ctx context.Context) (SystemInfo, error)
	PlatformUUID(ctx context.Context) (string, error)
	Disks(ctx context.Context) ([]DiskInfo, error)
}

// HostSnapshot is a complete set of host attributes
type HostSnapshot struct {
	CPU    CPUInfo
	System SystemInfo
	Disks  []DiskInfo
	UUID   string
}

// canonicalHost is the hashed form. Field order is part of the format.
type canonicalHost struct {
	CPUID    string `json:"cpuId"`
	SystemID string `json:"systemId"`
	DiskID   string `json:"diskId"`
	UUID     string `json:"uuid"`
}

// Canonical returns the deterministic serialization of the snapshot
func (s *HostSnapshot) Canonical() ([]byte, error) {
	diskID := ""
	if len(s.Disks) > 0 {
		diskID = s.Disks[0].Serial
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	err := enc.Encode(canonicalHost{
		CPUID:    s.CPU.Manufacturer + s.CPU.Brand + s.CPU.Family + s.CPU.Model + s.CPU.Stepping,
		SystemID: s.System.Manufacturer + s.System.Model + s.System.Serial,
		DiskID:   diskID,
		UUID:     s.UUID,
	})
	if err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// Fingerprint returns the lowercase hex SHA-256 of the canonical form
func (s *HostSnapshot) Fingerprint() (string, error) {
	canonical, err := s.Canonical()
	if err != nil {
		return "", fmt.Errorf("failed to encode host snapshot: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// FingerprintManager derives hardware fingerprints from a HostProbe
type FingerprintManager struct {
	probe  HostProbe
	logger *slog.Logger
}

// NewFingerprintManager creates a fingerprint manager. A nil probe selects
// the probe for the running OS.
func NewFingerprintManager(probe HostProbe, logger *slog.Logger) *FingerprintManager {
	if probe == nil {
		probe = NewHostProbe()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FingerprintManager{
		probe:  probe,
		logger: logger.With(slog.String("component", "fingerprint")),
	}
}

// Collect queries all probes concurrently. Any probe failure fails the
// whole snapshot; partial snapshots are never returned.
func (fm *FingerprintManager) Collect(ctx context.Context) (*HostSnapshot, error) {
	var snapshot HostSnapshot

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		cpu, err := fm.probe.CPU(gctx)
		if err != nil {
			return fmt.Errorf("cpu: %w", err)
		}
		snapshot.CPU = cpu
		return nil
	})

	g.Go(func() error {
		system, err := fm.probe.System(gctx)
		if err != nil {
			return fmt.Errorf("system: %w", err)
		}
		snapshot.System = system
		return nil
	})

	g.Go(func() error {
		id, err := fm.probe.PlatformUUID(gctx)
		if err != nil {
			return fmt.Errorf("platform uuid: %w", err)
		}
		snapshot.UUID = id
		return nil
	})

	g.Go(func() error {
		disks, err := fm.probe.Disks(gctx)
		if err != nil {
			return fmt.Errorf("disks: %w", err)
		}
		snapshot.Disks = disks
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &snapshot, nil
}

// GenerateFingerprint collects a snapshot and digests it
func (fm *FingerprintManager) GenerateFingerprint(ctx context.Context) (string, error) {
	start := time.Now()

	snapshot, err := fm.Collect(ctx)
	if err != nil {
		return "", fmt.Errorf("hardware collection failed: %w", err)
	}

	fingerprint, err := snapshot.Fingerprint()
	if err != nil {
		return "", err
	}

	fm.logger.DebugContext(ctx, "Device fingerprint generated",
		slog.Int("disks", len(snapshot.Disks)),
		slog.Bool("has_serial", snapshot.System.Serial != ""),
		slog.Duration("generation_time", time.Since(start)),
	)

	return fingerprint, nil
}
