package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorResponse(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		errorCode  string
		message    string
	}{
		{"validation", http.StatusBadRequest, "validation_failed", "statement: statement is required"},
		{"forbidden", http.StatusForbidden, "forbidden", "Not allowed to update this query"},
		{"not found", http.StatusNotFound, "not_found", "Query not found"},
		{"internal", http.StatusInternalServerError, "internal_error", "Failed to list query"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()

			require.NoError(t, ErrorResponse(rec, tt.statusCode, tt.errorCode, tt.message))

			assert.Equal(t, tt.statusCode, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			var body map[string]string
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
			assert.Equal(t, map[string]string{"error": tt.errorCode, "message": tt.message}, body)
		})
	}
}

func TestWriteJSON_StatusAlwaysWritten(t *testing.T) {
	for _, status := range []int{http.StatusOK, http.StatusCreated, http.StatusServiceUnavailable} {
		rec := httptest.NewRecorder()
		require.NoError(t, WriteJSON(rec, status, map[string]string{"status": "ok"}))
		assert.Equal(t, status, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	}
}

func TestWriteJSON_UnencodableData(t *testing.T) {
	rec := httptest.NewRecorder()
	assert.Error(t, WriteJSON(rec, http.StatusOK, make(chan int)))
}

func TestWriteJSON_Envelope(t *testing.T) {
	rec := httptest.NewRecorder()

	data := ListQueriesResponse{Queries: []QueryResponse{{Name: "#weekly", Locked: true}}}
	require.NoError(t, WriteJSON(rec, http.StatusOK, ApiResponse{Success: true, Data: data}))

	var body map[string]json.RawMessage
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))

	assert.JSONEq(t, `true`, string(body["success"]))
	assert.NotContains(t, body, "error")
	assert.NotContains(t, body, "message")

	var got ListQueriesResponse
	require.NoError(t, json.Unmarshal(body["data"], &got))
	require.Len(t, got.Queries, 1)
	assert.Equal(t, "#weekly", got.Queries[0].Name)
	assert.True(t, got.Queries[0].Locked)
}
