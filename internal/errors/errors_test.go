package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError(t *testing.T) {
	cause := errors.New("disk full")
	err := NewStorageError("write export", cause).WithContext("file", "out.xlsx")

	assert.Equal(t, "[STORAGE] write export: disk full", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "out.xlsx", err.Context["file"])
	assert.Equal(t, ErrTypeStorage, TypeOf(fmt.Errorf("wrapped: %w", err)))

	assert.Equal(t, "[NOT_FOUND] session not found", NewNotFoundError("session").Error())
	assert.Equal(t, ErrorType(""), TypeOf(errors.New("plain")))
}

func TestProblemDetailsMarshalJSON(t *testing.T) {
	pd := NewProblemDetails(http.StatusUnprocessableEntity, TypeSchema, "Missing Required Columns", "Ch.3", "/api/x").
		WithExtension("missing", []string{"Ch.3"}).
		WithExtension("status", 999)

	data, err := json.Marshal(pd)
	require.NoError(t, err)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &body))
	assert.Equal(t, TypeSchema, body["type"])
	assert.Equal(t, float64(http.StatusUnprocessableEntity), body["status"], "extensions never shadow standard members")
	assert.Equal(t, []interface{}{"Ch.3"}, body["missing"])
	assert.Equal(t, "Missing Required Columns: Ch.3", pd.Error())
}

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, ErrRateLimitExceeded)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", resp.Error.ErrorCode)
}

func TestNewValidationErrors(t *testing.T) {
	err := NewValidationErrors([]ValidationError{{Field: "epochs", Message: "must be at least 1"}})
	assert.Equal(t, http.StatusBadRequest, err.StatusCode)
	details, ok := err.Details.(ValidationErrors)
	require.True(t, ok)
	assert.Equal(t, "epochs", details.Errors[0].Field)
}
