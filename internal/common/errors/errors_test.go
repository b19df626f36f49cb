// internal/common/errors/errors_test.go
package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// FromError
// ==========================

func TestFromError(t *testing.T) {
	stageFailed := stderrors.New("STAGE_EXECUTION_FAILED")
	llmTimeout := stderrors.New("LLM_TIMEOUT")
	notFound := stderrors.New("CASE_NOT_FOUND")

	tests := []struct {
		name     string
		err      error
		wantCode ErrorCode
	}{
		{
			name:     "bare sentinel",
			err:      notFound,
			wantCode: ErrCodeCaseNotFound,
		},
		{
			name:     "wrapped sentinel",
			err:      fmt.Errorf("%w: MTG-1", notFound),
			wantCode: ErrCodeCaseNotFound,
		},
		{
			name:     "innermost code wins",
			err:      fmt.Errorf("%w: credit: %w", stageFailed, fmt.Errorf("credit analysis: %w", llmTimeout)),
			wantCode: ErrCodeLLMTimeout,
		},
		{
			name:     "outer code when cause is unknown",
			err:      fmt.Errorf("%w: income: %w", stageFailed, context.Canceled),
			wantCode: ErrCodeStageExecutionFailed,
		},
		{
			name:     "unknown error",
			err:      stderrors.New("something odd"),
			wantCode: ErrCodeInternal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FromError(tt.err)
			require.NotNil(t, got)
			assert.Equal(t, tt.wantCode, got.Code)
			assert.Equal(t, tt.err.Error(), got.Details)
			assert.Equal(t, IsRetryableErrorCode(tt.wantCode), got.Retryable)
		})
	}
}

func TestFromError_StandardErrorPassesThrough(t *testing.T) {
	original := NewApplicationValidationFailedError("employment: Invalid type")
	wrapped := fmt.Errorf("submit: %w", original)

	assert.Same(t, original, FromError(wrapped))
	assert.Nil(t, FromError(nil))
}

// ==========================
// BPMN Conversion
// ==========================

func TestConvertToBPMNError(t *testing.T) {
	stdErr := New(ErrCodeLLMGenerationFailed, "503 from gateway")
	stdErr.Metadata = map[string]interface{}{"caseId": "MTG-1"}

	bpmnErr := ConvertToBPMNError(stdErr)

	assert.Equal(t, "LLM_GENERATION_FAILED", bpmnErr.Code)
	assert.Equal(t, "Text generation failed", bpmnErr.Message)
	assert.True(t, bpmnErr.Retryable)
	assert.Equal(t, 2, bpmnErr.Retries)

	vars := bpmnErr.ToErrorVariables()
	assert.Equal(t, "LLM_GENERATION_FAILED", vars["errorCode"])
	assert.Equal(t, "503 from gateway", vars["errorDetails"])
	assert.Equal(t, "MTG-1", vars["caseId"])
}

func TestConvertToBPMNError_UnmappedCode(t *testing.T) {
	bpmnErr := ConvertToBPMNError(New("CUSTOM_CODE", ""))

	assert.Equal(t, "CUSTOM_CODE", bpmnErr.Code)
	assert.Equal(t, "CUSTOM_CODE", bpmnErr.Message)
	assert.False(t, bpmnErr.Retryable)
}

// ==========================
// Utility Functions
// ==========================

func TestGetRetryCount(t *testing.T) {
	assert.Equal(t, 3, GetRetryCount(ErrCodeCasePersistFailed))
	assert.Equal(t, 3, GetRetryCount(ErrCodeNotificationSendFailed))
	assert.Equal(t, 2, GetRetryCount(ErrCodeLLMTimeout))
	assert.Equal(t, 0, GetRetryCount(ErrCodeApplicationValidationFailed))
	assert.Equal(t, 0, GetRetryCount(ErrCodeCaseNotFound))
}

func TestGetErrorCategory(t *testing.T) {
	tests := map[ErrorCode]string{
		ErrCodeApplicationValidationFailed: "VALIDATION",
		ErrCodeCaseNotFound:                "PERSISTENCE",
		ErrCodeCheckpointFailed:            "PERSISTENCE",
		ErrCodeLLMTimeout:                  "GENERATION",
		ErrCodeStageExecutionFailed:        "GENERATION",
		ErrCodePolicyRetrievalFailed:       "SEARCH",
		ErrCodeNotificationSendFailed:      "NOTIFICATION",
		ErrCodeInternal:                    "UNKNOWN",
	}

	for code, want := range tests {
		assert.Equal(t, want, GetErrorCategory(code), code)
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := map[ErrorCode]int{
		ErrCodeInvalidInput:                http.StatusBadRequest,
		ErrCodeApplicationValidationFailed: http.StatusBadRequest,
		ErrCodeCaseNotFound:                http.StatusNotFound,
		ErrCodeCheckpointNotFound:          http.StatusNotFound,
		ErrCodeLLMTimeout:                  http.StatusGatewayTimeout,
		ErrCodeStageExecutionFailed:        http.StatusBadGateway,
		ErrCodeCasePersistFailed:           http.StatusInternalServerError,
		ErrCodeInternal:                    http.StatusInternalServerError,
	}

	for code, want := range tests {
		assert.Equal(t, want, HTTPStatus(code), code)
	}
}
