package services

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidationHelper_ValidateStruct(t *testing.T) {
	vh := NewValidationHelper()

	t.Run("valid update request", func(t *testing.T) {
		req := updateStatusRequest{Status: "approved", Reason: "verified"}
		assert.NoError(t, vh.ValidateStruct(&req))
	})

	t.Run("missing status", func(t *testing.T) {
		req := updateStatusRequest{}
		assert.Error(t, vh.ValidateStruct(&req))
	})

	t.Run("status outside the allowed set", func(t *testing.T) {
		req := updateStatusRequest{Status: "refunded"}
		assert.Error(t, vh.ValidateStruct(&req))
	})

	t.Run("oversized reason", func(t *testing.T) {
		long := make([]byte, 501)
		for i := range long {
			long[i] = 'a'
		}
		req := refundRequest{Reason: string(long)}
		assert.Error(t, vh.ValidateStruct(&req))
	})
}

func TestSendErrorResponse(t *testing.T) {
	vh := NewValidationHelper()

	t.Run("expands field errors", func(t *testing.T) {
		err := vh.ValidateStruct(&updateStatusRequest{Status: "bogus"})
		assert.Error(t, err)

		w := httptest.NewRecorder()
		SendErrorResponse(w, "Validation failed", 400, err)

		assert.Equal(t, 400, w.Code)
		assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

		var resp ErrorResponse
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "Validation failed", resp.Error)
		assert.Contains(t, resp.Details, "Status")
	})

	t.Run("no details without a validation error", func(t *testing.T) {
		w := httptest.NewRecorder()
		SendErrorResponse(w, "Invalid request body", 400, nil)

		var resp ErrorResponse
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Empty(t, resp.Details)
	})
}
