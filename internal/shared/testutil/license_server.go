package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"time"
)

// LicenseRequest is the body received by the fake license service
type LicenseRequest struct {
	LicenseKey string `json:"licenseKey"`
	HardwareID string `json:"hardwareId"`
}

// LicenseServer is a scriptable fake of the remote license service. It
// serves /activate and /validate, both answering 200 with an empty body
// until scripted.
type LicenseServer struct {
	*httptest.Server

	mu             sync.Mutex
	activateStatus int
	activateBody   string
	validateStatus int
	validateBody   string
	requests       []LicenseRequest
	delay          time.Duration

	activateCalls atomic.Int32
	validateCalls atomic.Int32
	inflight      atomic.Int32
	maxInflight   atomic.Int32
}

// NewLicenseServer starts a plain HTTP fake
func NewLicenseServer() *LicenseServer {
	ls := newLicenseServer()
	ls.Server = httptest.NewServer(ls.routes())
	return ls
}

// NewTLSLicenseServer starts a fake with a self-signed certificate
func NewTLSLicenseServer() *LicenseServer {
	ls := newLicenseServer()
	ls.Server = httptest.NewTLSServer(ls.routes())
	return ls
}

func newLicenseServer() *LicenseServer {
	return &LicenseServer{
		activateStatus: http.StatusOK,
		validateStatus: http.StatusOK,
	}
}

func (ls *LicenseServer) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/activate", func(w http.ResponseWriter, r *http.Request) {
		ls.activateCalls.Add(1)
		ls.serve(w, r, true)
	})
	mux.HandleFunc("/validate", func(w http.ResponseWriter, r *http.Request) {
		ls.validateCalls.Add(1)
		ls.serve(w, r, false)
	})
	return mux
}

func (ls *LicenseServer) serve(w http.ResponseWriter, r *http.Request, activation bool) {
	n := ls.inflight.Add(1)
	defer ls.inflight.Add(-1)
	for {
		cur := ls.maxInflight.Load()
		if n <= cur || ls.maxInflight.CompareAndSwap(cur, n) {
			break
		}
	}

	var req LicenseRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	ls.mu.Lock()
	ls.requests = append(ls.requests, req)
	status, body, delay := ls.validateStatus, ls.validateBody, ls.delay
	if activation {
		status, body = ls.activateStatus, ls.activateBody
	}
	ls.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

// OnActivate scripts the activation endpoint
func (ls *LicenseServer) OnActivate(status int, body string) {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	ls.activateStatus, ls.activateBody = status, body
}

// OnValidate scripts the validation endpoint
func (ls *LicenseServer) OnValidate(status int, body string) {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	ls.validateStatus, ls.validateBody = status, body
}

// SetDelay makes every reply wait d
func (ls *LicenseServer) SetDelay(d time.Duration) {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	ls.delay = d
}

// ActivationURL returns the activation endpoint
func (ls *LicenseServer) ActivationURL() string { return ls.URL + "/activate" }

// ValidationURL returns the validation endpoint
func (ls *LicenseServer) ValidationURL() string { return ls.URL + "/validate" }

// ActivateCalls returns how often /activate was hit
func (ls *LicenseServer) ActivateCalls() int { return int(ls.activateCalls.Load()) }

// ValidateCalls returns how often /validate was hit
func (ls *LicenseServer) ValidateCalls() int { return int(ls.validateCalls.Load()) }

// MaxInflight returns the highest number of concurrent requests observed
func (ls *LicenseServer) MaxInflight() int { return int(ls.maxInflight.Load()) }

// LastRequest returns the most recent request body
func (ls *LicenseServer) LastRequest() LicenseRequest {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	if len(ls.requests) == 0 {
		return LicenseRequest{}
	}
	return ls.requests[len(ls.requests)-1]
}

// ValidResponse renders a successful server reply
func ValidResponse(expiration, activation time.Time) string {
	return fmt.Sprintf(`{"valid":true,"expiration":%q,"clientId":"c-42","clientName":"Acme","activationDate":%q}`,
		expiration.UTC().Format(time.RFC3339), activation.UTC().Format(time.RFC3339))
}

// RejectedResponse renders a refusal carrying message
func RejectedResponse(message string) string {
	data, _ := json.Marshal(map[string]any{"valid": false, "message": message})
	return string(data)
}
