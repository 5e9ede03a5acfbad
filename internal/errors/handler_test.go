package errors

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"licensegate/internal/infrastructure"
)

func newTestHandler(buf *bytes.Buffer, includeStack bool) *ErrorHandler {
	return NewErrorHandler(slog.New(slog.NewJSONHandler(buf, nil)), includeStack)
}

func decodeProblem(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestErrorHandler_HandleError(t *testing.T) {
	var logs bytes.Buffer
	h := newTestHandler(&logs, false)

	req := httptest.NewRequest(http.MethodPost, "/api/license/validate", nil)
	req = req.WithContext(infrastructure.WithTraceID(req.Context(), "trace-abc"))
	rec := httptest.NewRecorder()

	h.HandleError(rec, req, &RejectionError{Message: "Key expired"})

	assert.Equal(t, http.StatusForbidden, rec.Code)
	body := decodeProblem(t, rec)
	assert.Equal(t, "Key expired", body["detail"])
	assert.Equal(t, "trace-abc", body["trace_id"])
	assert.Contains(t, logs.String(), "request failed")
}

func TestErrorHandler_HandleErrorNil(t *testing.T) {
	var logs bytes.Buffer
	h := newTestHandler(&logs, false)
	rec := httptest.NewRecorder()

	h.HandleError(rec, httptest.NewRequest(http.MethodGet, "/", nil), nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, rec.Body.Len())
	assert.Zero(t, logs.Len())
}

func TestErrorHandler_Validation(t *testing.T) {
	var logs bytes.Buffer
	h := newTestHandler(&logs, false)
	rec := httptest.NewRecorder()

	h.Validation(rec, httptest.NewRequest(http.MethodPost, "/api/license/validate", nil),
		"invalid request body", map[string]string{"licenseKey": "required"})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeProblem(t, rec)
	assert.Equal(t, TypeValidation, body["type"])
	assert.Equal(t, map[string]interface{}{"licenseKey": "required"}, body["errors"])
}

func TestErrorHandler_HandlePanic(t *testing.T) {
	var logs bytes.Buffer
	h := newTestHandler(&logs, true)
	rec := httptest.NewRecorder()

	h.HandlePanic(rec, httptest.NewRequest(http.MethodGet, "/boom", nil), "kaboom")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decodeProblem(t, rec)
	assert.Equal(t, "kaboom", body["panic"])
	assert.NotEmpty(t, body["stack"])
	assert.Contains(t, logs.String(), "panic recovered")
}

func TestErrorHandler_NotFoundAndMethod(t *testing.T) {
	var logs bytes.Buffer
	h := newTestHandler(&logs, false)

	rec := httptest.NewRecorder()
	h.NotFound(rec, httptest.NewRequest(http.MethodGet, "/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, TypeNotFound, decodeProblem(t, rec)["type"])

	rec = httptest.NewRecorder()
	h.MethodNotAllowed(rec, httptest.NewRequest(http.MethodPut, "/api/license/status", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Contains(t, decodeProblem(t, rec)["detail"], "PUT")
}
