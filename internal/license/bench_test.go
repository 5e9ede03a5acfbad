package license

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"licensegate/internal/shared/testutil"
	"licensegate/internal/storage"
)

type staticFingerprinter string

func (s staticFingerprinter) GenerateFingerprint(context.Context) (string, error) {
	return string(s), nil
}

func benchGate(b *testing.B, server *testutil.LicenseServer) *Gate {
	b.Helper()
	now := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	store := storage.NewMemoryStore()
	require.NoError(b, store.Set(KeyLicenseKey, "KEY-BENCH-0001"))
	require.NoError(b, store.Set(KeyLicenseStatus, &Status{
		Valid:          true,
		Expiration:     NewTimestamp(now.Add(90 * 24 * time.Hour)),
		ClientID:       "c-42",
		ActivationDate: NewTimestamp(now.Add(-24 * time.Hour)),
	}))

	g, err := New(store, testClient(server),
		WithClock(func() time.Time { return now }),
		WithFingerprinter(staticFingerprinter("hw-bench")),
	)
	require.NoError(b, err)
	return g
}

func BenchmarkCheckExistingLicense(b *testing.B) {
	server := newLicenseServer()
	defer server.Close()
	g := benchGate(b, server)
	ctx := context.Background()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if g.CheckExistingLicense(ctx) == nil {
			b.Fatal("expected an active license")
		}
	}
}

func BenchmarkValidateKey(b *testing.B) {
	server := newLicenseServer()
	defer server.Close()
	now := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	server.OnValidate(http.StatusOK, testutil.ValidResponse(now.Add(90*24*time.Hour), now.Add(-24*time.Hour)))
	g := benchGate(b, server)
	ctx := context.Background()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ok, err := g.ValidateKey(ctx, "KEY-BENCH-0001")
		if err != nil || !ok {
			b.Fatalf("validate: ok=%v err=%v", ok, err)
		}
	}
}

func TestConcurrentStatusReadsDuringValidation(t *testing.T) {
	server := newLicenseServer()
	defer server.Close()
	now := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	server.OnValidate(http.StatusOK, testutil.ValidResponse(now.Add(90*24*time.Hour), now.Add(-24*time.Hour)))
	server.SetDelay(5 * time.Millisecond)

	store := storage.NewMemoryStore()
	require.NoError(t, store.Set(KeyLicenseKey, "KEY-BENCH-0001"))
	require.NoError(t, store.Set(KeyLicenseStatus, &Status{
		Valid:      true,
		Expiration: NewTimestamp(now.Add(90 * 24 * time.Hour)),
	}))
	g, err := New(store, testClient(server),
		WithClock(func() time.Time { return now }),
		WithFingerprinter(staticFingerprinter("hw-bench")),
	)
	require.NoError(t, err)

	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := g.ValidateKey(ctx, "KEY-BENCH-0001")
			assert.NoError(t, err)
			assert.True(t, ok)
		}()
	}
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NotNil(t, g.CheckExistingLicense(ctx))
		}()
	}
	wg.Wait()

	assert.Equal(t, 4, server.ValidateCalls())
	assert.Equal(t, 1, server.MaxInflight())
}
