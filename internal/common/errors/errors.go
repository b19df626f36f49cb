// Package errors provides standardized error handling for BPMN workflow integration.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

// Package sentinels use these strings as their message, which lets FromError
// recover the code from any wrapped chain.
const (
	ErrCodeInvalidInput                ErrorCode = "INVALID_INPUT"
	ErrCodeApplicationValidationFailed ErrorCode = "APPLICATION_VALIDATION_FAILED"
	ErrCodeConfigurationInvalid        ErrorCode = "CONFIGURATION_INVALID"

	ErrCodeCaseNotFound       ErrorCode = "CASE_NOT_FOUND"
	ErrCodeCasePersistFailed  ErrorCode = "CASE_PERSIST_FAILED"
	ErrCodeCheckpointNotFound ErrorCode = "CHECKPOINT_NOT_FOUND"
	ErrCodeCheckpointFailed   ErrorCode = "CHECKPOINT_FAILED"

	ErrCodeStageExecutionFailed  ErrorCode = "STAGE_EXECUTION_FAILED"
	ErrCodeLLMTimeout            ErrorCode = "LLM_TIMEOUT"
	ErrCodeLLMGenerationFailed   ErrorCode = "LLM_GENERATION_FAILED"
	ErrCodePolicyRetrievalFailed ErrorCode = "POLICY_RETRIEVAL_FAILED"

	ErrCodeDatabaseConnectionFailed      ErrorCode = "DATABASE_CONNECTION_FAILED"
	ErrCodeElasticsearchConnectionFailed ErrorCode = "ELASTICSEARCH_CONNECTION_FAILED"
	ErrCodeIndexNotFound                 ErrorCode = "INDEX_NOT_FOUND"

	ErrCodeNotificationSendFailed    ErrorCode = "NOTIFICATION_SEND_FAILED"
	ErrCodeWorkflowEngineUnavailable ErrorCode = "WORKFLOW_ENGINE_UNAVAILABLE"

	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// ==========================
// 2. BPMN Error Integration
// ==========================

// BPMNError represents an error that can be thrown to the Camunda workflow engine.
type BPMNError struct {
	Code           string                 `json:"code"`
	Message        string                 `json:"message"`
	Details        string                 `json:"details,omitempty"`
	Retryable      bool                   `json:"retryable"`
	Retries        int                    `json:"retries"`
	ErrorVariables map[string]interface{} `json:"errorVariables,omitempty"`
}

func (e *BPMNError) Error() string {
	return fmt.Sprintf("BPMNError[%s]: %s", e.Code, e.Message)
}

// ToErrorVariables returns a map suitable for setting Camunda job fail variables.
func (e *BPMNError) ToErrorVariables() map[string]interface{} {
	vars := map[string]interface{}{
		"errorCode":    e.Code,
		"errorMessage": e.Message,
		"errorDetails": e.Details,
		"retryable":    e.Retryable,
	}

	for k, v := range e.ErrorVariables {
		vars[k] = v
	}

	return vars
}

// ==========================
// 3. Error Constructors
// ==========================

var messages = map[ErrorCode]string{
	ErrCodeInvalidInput:                  "Invalid input",
	ErrCodeApplicationValidationFailed:   "Applicant record failed validation",
	ErrCodeConfigurationInvalid:          "Invalid configuration",
	ErrCodeCaseNotFound:                  "Case not found",
	ErrCodeCasePersistFailed:             "Failed to persist case result",
	ErrCodeCheckpointNotFound:            "No checkpoint recorded for case",
	ErrCodeCheckpointFailed:              "Failed to write checkpoint",
	ErrCodeStageExecutionFailed:          "Underwriting stage failed",
	ErrCodeLLMTimeout:                    "Text generation timed out",
	ErrCodeLLMGenerationFailed:           "Text generation failed",
	ErrCodePolicyRetrievalFailed:         "Policy retrieval failed",
	ErrCodeDatabaseConnectionFailed:      "Database connection failed",
	ErrCodeElasticsearchConnectionFailed: "Elasticsearch connection failed",
	ErrCodeIndexNotFound:                 "Index not found",
	ErrCodeNotificationSendFailed:        "Failed to send notification",
	ErrCodeWorkflowEngineUnavailable:     "Workflow engine unavailable",
	ErrCodeInternal:                      "Unexpected error",
}

// New builds a StandardError for code with the default message.
func New(code ErrorCode, details string) *StandardError {
	msg, ok := messages[code]
	if !ok {
		msg = string(code)
	}
	return &StandardError{
		Code:      code,
		Message:   msg,
		Details:   details,
		Retryable: IsRetryableErrorCode(code),
		Timestamp: time.Now().UTC(),
	}
}

// NewApplicationValidationFailedError creates a non-retryable validation error.
func NewApplicationValidationFailedError(details string) *StandardError {
	return New(ErrCodeApplicationValidationFailed, details)
}

// NewInvalidInputError creates a non-retryable input error.
func NewInvalidInputError(details string) *StandardError {
	return New(ErrCodeInvalidInput, details)
}

// FromError normalizes err into a StandardError. The innermost known code in
// the wrapped chain wins; unknown errors become INTERNAL_ERROR.
func FromError(err error) *StandardError {
	if err == nil {
		return nil
	}
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr
	}
	code, ok := codeOf(err)
	if !ok {
		code = ErrCodeInternal
	}
	return New(code, err.Error())
}

func codeOf(err error) (ErrorCode, bool) {
	var found ErrorCode
	ok := false
	var walk func(error)
	walk = func(e error) {
		if e == nil {
			return
		}
		if _, known := messages[ErrorCode(e.Error())]; known {
			found, ok = ErrorCode(e.Error()), true
		}
		switch u := e.(type) {
		case interface{ Unwrap() error }:
			walk(u.Unwrap())
		case interface{ Unwrap() []error }:
			for _, inner := range u.Unwrap() {
				walk(inner)
			}
		}
	}
	walk(err)
	return found, ok
}

// ==========================
// 4. Error Conversion to BPMN
// ==========================

// BPMNErrorMapping maps internal error codes to BPMN error codes.
var BPMNErrorMapping = map[ErrorCode]string{
	ErrCodeInvalidInput:                  "INVALID_INPUT",
	ErrCodeApplicationValidationFailed:   "APPLICATION_VALIDATION_FAILED",
	ErrCodeConfigurationInvalid:          "CONFIGURATION_INVALID",
	ErrCodeCaseNotFound:                  "CASE_NOT_FOUND",
	ErrCodeCasePersistFailed:             "CASE_PERSIST_FAILED",
	ErrCodeCheckpointNotFound:            "CHECKPOINT_NOT_FOUND",
	ErrCodeCheckpointFailed:              "CHECKPOINT_FAILED",
	ErrCodeStageExecutionFailed:          "STAGE_EXECUTION_FAILED",
	ErrCodeLLMTimeout:                    "LLM_TIMEOUT",
	ErrCodeLLMGenerationFailed:           "LLM_GENERATION_FAILED",
	ErrCodePolicyRetrievalFailed:         "POLICY_RETRIEVAL_FAILED",
	ErrCodeDatabaseConnectionFailed:      "DATABASE_CONNECTION_FAILED",
	ErrCodeElasticsearchConnectionFailed: "ELASTICSEARCH_CONNECTION_FAILED",
	ErrCodeIndexNotFound:                 "INDEX_NOT_FOUND",
	ErrCodeNotificationSendFailed:        "NOTIFICATION_SEND_FAILED",
	ErrCodeWorkflowEngineUnavailable:     "WORKFLOW_ENGINE_UNAVAILABLE",
}

// GetRetryCount returns the recommended retry count for a code.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeCasePersistFailed,
		ErrCodeCheckpointFailed,
		ErrCodePolicyRetrievalFailed,
		ErrCodeDatabaseConnectionFailed,
		ErrCodeElasticsearchConnectionFailed,
		ErrCodeNotificationSendFailed,
		ErrCodeWorkflowEngineUnavailable:
		return 3
	case ErrCodeStageExecutionFailed,
		ErrCodeLLMTimeout,
		ErrCodeLLMGenerationFailed:
		return 2
	default:
		return 0
	}
}

// ConvertToBPMNError converts a StandardError to a BPMNError for Camunda.
func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	bpmnCode, ok := BPMNErrorMapping[stdErr.Code]
	if !ok {
		bpmnCode = string(stdErr.Code)
	}

	return &BPMNError{
		Code:           bpmnCode,
		Message:        stdErr.Message,
		Details:        stdErr.Details,
		Retryable:      stdErr.Retryable,
		Retries:        GetRetryCount(stdErr.Code),
		ErrorVariables: stdErr.Metadata,
	}
}

// ==========================
// 5. Utility Functions
// ==========================

// IsRetryableErrorCode checks if an error code is retryable.
func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	switch {
	case code == ErrCodeInvalidInput || code == ErrCodeApplicationValidationFailed:
		return "VALIDATION"
	case code == ErrCodeConfigurationInvalid:
		return "CONFIGURATION"
	case strings.HasPrefix(string(code), "CASE_") || strings.HasPrefix(string(code), "CHECKPOINT_"):
		return "PERSISTENCE"
	case strings.HasPrefix(string(code), "LLM_") || code == ErrCodeStageExecutionFailed:
		return "GENERATION"
	case code == ErrCodePolicyRetrievalFailed || code == ErrCodeIndexNotFound || code == ErrCodeElasticsearchConnectionFailed:
		return "SEARCH"
	case code == ErrCodeDatabaseConnectionFailed:
		return "DATABASE"
	case code == ErrCodeNotificationSendFailed:
		return "NOTIFICATION"
	case code == ErrCodeWorkflowEngineUnavailable:
		return "WORKFLOW"
	default:
		return "UNKNOWN"
	}
}

// HTTPStatus maps an error code onto the status returned by the API.
func HTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeInvalidInput, ErrCodeApplicationValidationFailed:
		return http.StatusBadRequest
	case ErrCodeCaseNotFound, ErrCodeCheckpointNotFound:
		return http.StatusNotFound
	case ErrCodeLLMTimeout:
		return http.StatusGatewayTimeout
	case ErrCodeStageExecutionFailed, ErrCodeLLMGenerationFailed, ErrCodePolicyRetrievalFailed, ErrCodeNotificationSendFailed:
		return http.StatusBadGateway
	case ErrCodeDatabaseConnectionFailed, ErrCodeElasticsearchConnectionFailed, ErrCodeWorkflowEngineUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
