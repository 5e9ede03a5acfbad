package app

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"licensegate/internal/config"
	apperrors "licensegate/internal/errors"
	"licensegate/internal/license"
	"licensegate/internal/shared/testutil"
	"licensegate/internal/storage"
)

type fixedFingerprint string

func (f fixedFingerprint) GenerateFingerprint(context.Context) (string, error) {
	return string(f), nil
}

func testConfig(ls *testutil.LicenseServer) *config.Config {
	cfg := config.Default()
	cfg.Server.Port = 0
	cfg.Server.ShutdownTimeout = 5 * time.Second
	cfg.License.ActivationURL = ls.ActivationURL()
	cfg.License.ValidationURL = ls.ValidationURL()
	cfg.License.RequestTimeout = 2 * time.Second
	cfg.Storage.Backend = config.StorageBackendMemory
	cfg.Storage.Path = ""
	cfg.Features = map[string]bool{"export": true}
	return cfg
}

func newTestApp(t *testing.T, cfg *config.Config, opts ...Option) *Application {
	t.Helper()
	logger, _ := testutil.NewTestLogger(t)
	base := []Option{
		WithLogger(logger),
		WithFingerprinter(fixedFingerprint("hw-test")),
	}
	a, err := New(cfg, append(base, opts...)...)
	require.NoError(t, err)
	return a
}

func runInBackground(a *Application, ctx context.Context) <-chan error {
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()
	return done
}

func waitRun(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return")
		return nil
	}
}

func postJSON(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	return resp
}

func TestRun_ActivatesThroughLicenseWindow(t *testing.T) {
	ls := testutil.NewLicenseServer()
	defer ls.Close()
	now := time.Now()
	ls.OnActivate(http.StatusOK, testutil.ValidResponse(now.Add(365*24*time.Hour), now))

	var (
		a       *Application
		opened  atomic.Int32
		flowErr = make(chan error, 1)
	)
	opener := func(_ context.Context, url string) error {
		opened.Add(1)
		base := strings.TrimSuffix(url, "/license")
		go func() {
			for !a.Gate.WindowOpen() {
				time.Sleep(5 * time.Millisecond)
			}
			resp, err := http.Post(base+"/api/license/validate", "application/json",
				strings.NewReader(`{"licenseKey":"KEY-ABCD-1234"}`))
			if err != nil {
				flowErr <- err
				return
			}
			resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				flowErr <- errors.New(resp.Status)
				return
			}
			resp, err = http.Post(base+"/api/license/validated", "application/json", nil)
			if err == nil {
				resp.Body.Close()
			}
			flowErr <- err
		}()
		return nil
	}

	a = newTestApp(t, testConfig(ls), WithBrowserOpener(opener))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := runInBackground(a, ctx)

	select {
	case err := <-flowErr:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("license flow did not finish")
	}

	require.Eventually(t, func() bool {
		return a.Gate.State() == license.StateValid && !a.Gate.WindowOpen()
	}, 5*time.Second, 10*time.Millisecond)

	assert.EqualValues(t, 1, opened.Load())
	assert.Equal(t, testutil.LicenseRequest{LicenseKey: "KEY-ABCD-1234", HardwareID: "hw-test"}, ls.LastRequest())
	assert.True(t, a.Gate.IsFeatureAvailable(ctx, "export"))

	resp, err := http.Get(a.URL() + "/api/health")
	require.NoError(t, err)
	var health map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	resp.Body.Close()
	assert.Equal(t, "VALID", health["license"])

	resp, err = http.Get(a.URL() + "/metrics")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Contains(t, string(body), "license_checks")

	cancel()
	assert.NoError(t, waitRun(t, done))
}

func TestRun_ExistingLicenseSkipsWindow(t *testing.T) {
	ls := testutil.NewLicenseServer()
	defer ls.Close()

	store := storage.NewMemoryStore()
	require.NoError(t, store.Set(license.KeyLicenseKey, "KEY-1"))
	require.NoError(t, store.Set(license.KeyLicenseStatus, &license.Status{
		Valid:      true,
		Expiration: license.NewTimestamp(time.Now().Add(24 * time.Hour)),
		ClientName: "Acme",
	}))

	var opened atomic.Int32
	a := newTestApp(t, testConfig(ls), WithStore(store), WithBrowserOpener(func(context.Context, string) error {
		opened.Add(1)
		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := runInBackground(a, ctx)

	require.Eventually(t, func() bool { return a.URL() != "" }, 5*time.Second, 10*time.Millisecond)

	resp, err := http.Get(a.URL() + "/api/license/check")
	require.NoError(t, err)
	var check map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&check))
	resp.Body.Close()
	assert.Equal(t, "Acme", check["status"].(map[string]any)["clientName"])

	cancel()
	assert.NoError(t, waitRun(t, done))
	assert.Zero(t, opened.Load())
	assert.Zero(t, ls.ActivateCalls()+ls.ValidateCalls())
}

func TestRun_WindowClosedWithoutLicense(t *testing.T) {
	ls := testutil.NewLicenseServer()
	defer ls.Close()

	cfg := testConfig(ls)
	cfg.UI.OpenBrowser = false
	cfg.UI.WindowTimeout = 100 * time.Millisecond

	a := newTestApp(t, cfg)

	err := waitRun(t, runInBackground(a, context.Background()))
	assert.ErrorIs(t, err, apperrors.ErrLicenseNotActivated)
}

func TestRun_RejectedKeyThenWindowClosed(t *testing.T) {
	ls := testutil.NewLicenseServer()
	defer ls.Close()
	ls.OnActivate(http.StatusOK, testutil.RejectedResponse("License already in use"))

	cfg := testConfig(ls)
	cfg.UI.WindowTimeout = 2 * time.Second

	var a *Application
	rejected := make(chan int, 1)
	a = newTestApp(t, cfg, WithBrowserOpener(func(_ context.Context, url string) error {
		base := strings.TrimSuffix(url, "/license")
		go func() {
			for !a.Gate.WindowOpen() {
				time.Sleep(5 * time.Millisecond)
			}
			resp, err := http.Post(base+"/api/license/validate", "application/json",
				strings.NewReader(`{"licenseKey":"KEY-1"}`))
			if err != nil {
				rejected <- 0
				return
			}
			resp.Body.Close()
			rejected <- resp.StatusCode
		}()
		return nil
	}))

	err := waitRun(t, runInBackground(a, context.Background()))

	assert.Equal(t, http.StatusForbidden, <-rejected)
	assert.ErrorIs(t, err, apperrors.ErrLicenseNotActivated)
	assert.Equal(t, license.StateInvalid, a.Gate.State())
}

func TestRun_CancelWhileWindowOpen(t *testing.T) {
	ls := testutil.NewLicenseServer()
	defer ls.Close()

	cfg := testConfig(ls)
	cfg.UI.OpenBrowser = false

	a := newTestApp(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := runInBackground(a, ctx)

	require.Eventually(t, a.Gate.WindowOpen, 5*time.Second, 10*time.Millisecond)
	cancel()

	assert.NoError(t, waitRun(t, done))
	assert.False(t, a.Gate.WindowOpen())
}

func TestRouter(t *testing.T) {
	ls := testutil.NewLicenseServer()
	defer ls.Close()

	a := newTestApp(t, testConfig(ls))
	defer a.Close()

	serve := func(method, path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		a.Router.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
		return rec
	}

	rec := serve(http.MethodGet, "/")
	assert.Equal(t, http.StatusTemporaryRedirect, rec.Code)

	rec = serve(http.MethodGet, "/license")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = serve(http.MethodGet, "/api/license/state")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"state":"UNKNOWN"}`, rec.Body.String())

	rec = serve(http.MethodGet, "/does-not-exist")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(http.MethodPut, "/api/health")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestOpenSurface_RequiresStartedServer(t *testing.T) {
	ls := testutil.NewLicenseServer()
	defer ls.Close()

	a := newTestApp(t, testConfig(ls))
	defer a.Close()

	_, err := a.OpenSurface(context.Background())
	assert.Error(t, err)
}

func TestNew_StorageFailurePolicy(t *testing.T) {
	ls := testutil.NewLicenseServer()
	defer ls.Close()

	path := filepath.Join(t.TempDir(), "state.enc")
	require.NoError(t, os.WriteFile(path, []byte("not a sealed payload"), 0600))

	cfg := testConfig(ls)
	cfg.Storage.Backend = config.StorageBackendFile
	cfg.Storage.Path = path

	logger, _ := testutil.NewTestLogger(t)
	_, err := New(cfg, WithLogger(logger), WithFingerprinter(fixedFingerprint("hw")))
	assert.ErrorIs(t, err, apperrors.ErrPersistence)

	cfg.Storage.FailureMode = config.FailureModeDegraded
	a, err := New(cfg, WithLogger(logger), WithFingerprinter(fixedFingerprint("hw")))
	require.NoError(t, err)
	assert.NoError(t, a.Close())
}

func TestStop_Idempotent(t *testing.T) {
	ls := testutil.NewLicenseServer()
	defer ls.Close()

	a := newTestApp(t, testConfig(ls))
	require.NoError(t, a.Start(context.Background()))
	assert.Error(t, a.Start(context.Background()))

	assert.NoError(t, a.Stop(context.Background()))
	assert.NoError(t, a.Stop(context.Background()))
}
