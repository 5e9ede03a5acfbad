package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"licensegate/internal/app"
	"licensegate/internal/config"
	"licensegate/internal/shared/testutil"
)

type fixedFingerprint string

func (f fixedFingerprint) GenerateFingerprint(context.Context) (string, error) {
	return string(f), nil
}

type cliHarness struct {
	t          *testing.T
	server     *testutil.LicenseServer
	configPath string
}

func newCLIHarness(t *testing.T) *cliHarness {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("XDG_CONFIG_HOME", dir)

	server := testutil.NewLicenseServer()
	t.Cleanup(server.Close)

	configPath := filepath.Join(dir, "licensegate.yaml")
	content := fmt.Sprintf(`
license:
  activation_url: %s
  validation_url: %s
  request_timeout: 2s
storage:
  backend: file
  path: %s
features:
  export: true
`, server.ActivationURL(), server.ValidationURL(), filepath.Join(dir, "state", "license.enc"))
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0600))

	return &cliHarness{t: t, server: server, configPath: configPath}
}

func (h *cliHarness) run(args ...string) (string, error) {
	logger, _ := testutil.NewTestLogger(h.t)
	cmd := newRootCmd(app.WithLogger(logger), app.WithFingerprinter(fixedFingerprint("hw-cli")))

	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(append([]string{"--config", h.configPath}, args...))

	err := cmd.Execute()
	return out.String(), err
}

func (h *cliHarness) status() map[string]any {
	out, err := h.run("status")
	require.NoError(h.t, err)

	var r map[string]any
	require.NoError(h.t, json.Unmarshal([]byte(out), &r))
	return r
}

func TestCLI_ActivateStatusReset(t *testing.T) {
	h := newCLIHarness(t)
	now := time.Now()
	h.server.OnActivate(http.StatusOK, testutil.ValidResponse(now.Add(365*24*time.Hour), now))

	r := h.status()
	assert.Equal(t, "UNKNOWN", r["state"])
	assert.Nil(t, r["status"])
	assert.Equal(t, map[string]any{"export": false}, r["features"])

	out, err := h.run("activate", "KEY-ABCD-1234")
	require.NoError(t, err)
	assert.Contains(t, out, `"state": "VALID"`)
	assert.Contains(t, out, `"licenseKey": "****1234"`)
	assert.NotContains(t, out, "KEY-ABCD-1234")
	assert.Equal(t, 1, h.server.ActivateCalls())

	r = h.status()
	assert.Equal(t, "VALID", r["state"])
	assert.Equal(t, "hw-cli", r["hardwareId"])
	assert.Equal(t, "Acme", r["status"].(map[string]any)["clientName"])
	assert.Equal(t, false, r["expiringSoon"])
	assert.Equal(t, map[string]any{"export": true}, r["features"])

	// an existing valid license is re-validated, not re-activated
	h.server.OnValidate(http.StatusOK, testutil.ValidResponse(now.Add(365*24*time.Hour), now))
	_, err = h.run("activate", "KEY-ABCD-1234")
	require.NoError(t, err)
	assert.Equal(t, 1, h.server.ActivateCalls())
	assert.Equal(t, 1, h.server.ValidateCalls())

	out, err = h.run("reset")
	require.NoError(t, err)
	assert.Equal(t, "license cleared\n", out)

	r = h.status()
	assert.Nil(t, r["status"])
	assert.Nil(t, r["licenseKey"])
	assert.Equal(t, "hw-cli", r["hardwareId"])
}

func TestCLI_StatusReportsExpiringSoon(t *testing.T) {
	h := newCLIHarness(t)
	now := time.Now()
	h.server.OnActivate(http.StatusOK, testutil.ValidResponse(now.Add(3*24*time.Hour), now))

	_, err := h.run("activate", "KEY-ABCD-1234")
	require.NoError(t, err)

	r := h.status()
	assert.Equal(t, "VALID", r["state"])
	assert.Equal(t, true, r["expiringSoon"])
}

func TestCLI_ActivateRejected(t *testing.T) {
	h := newCLIHarness(t)
	h.server.OnActivate(http.StatusOK, testutil.RejectedResponse("License already in use"))

	_, err := h.run("activate", "KEY-1")

	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "License already in use"))
}

func TestCLI_ActivateNetworkFailure(t *testing.T) {
	h := newCLIHarness(t)
	h.server.Close()

	_, err := h.run("activate", "KEY-1")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unable to contact the license server")
}

func TestCLI_HWID(t *testing.T) {
	h := newCLIHarness(t)

	out, err := h.run("hwid")

	require.NoError(t, err)
	assert.Equal(t, "hw-cli\n", out)
}

func TestCLI_ArgsValidation(t *testing.T) {
	h := newCLIHarness(t)

	_, err := h.run("activate")
	assert.Error(t, err)

	_, err = h.run("status", "extra")
	assert.Error(t, err)
}

func TestCLI_BadConfig(t *testing.T) {
	h := newCLIHarness(t)
	h.configPath = filepath.Join(t.TempDir(), "missing.yaml")

	_, err := h.run("status")
	assert.Error(t, err)
}

func TestCLI_Version(t *testing.T) {
	h := newCLIHarness(t)

	out, err := h.run("version")

	require.NoError(t, err)
	assert.Equal(t, config.AppName+" "+config.AppVersion+"\n", out)
}
