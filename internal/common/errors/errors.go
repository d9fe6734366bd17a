// Package errors provides standardized error handling for the analysis workflow.
package errors

import (
	"fmt"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeInterpretationFailed ErrorCode = "INTERPRETATION_FAILED"
	ErrCodeNeedsClarification   ErrorCode = "NEEDS_CLARIFICATION"

	ErrCodeSelectionFailed ErrorCode = "SELECTION_FAILED"

	ErrCodeLoadFileNotFound ErrorCode = "LOAD_FILE_NOT_FOUND"
	ErrCodeLoadParseError   ErrorCode = "LOAD_PARSE_ERROR"
	ErrCodeLoadEmpty        ErrorCode = "LOAD_EMPTY"

	ErrCodeLLMTimeout         ErrorCode = "LLM_TIMEOUT"
	ErrCodeLLMRateLimited     ErrorCode = "LLM_RATE_LIMITED"
	ErrCodeLLMInvalidResponse ErrorCode = "LLM_INVALID_RESPONSE"

	ErrCodeAnalysisFailed      ErrorCode = "ANALYSIS_FAILED"
	ErrCodeRetryBudgetExceeded ErrorCode = "RETRY_BUDGET_EXCEEDED"
)

// knownCodes indexes every code for sentinel-message lookups.
var knownCodes = map[ErrorCode]struct{}{
	ErrCodeInterpretationFailed: {},
	ErrCodeNeedsClarification:   {},
	ErrCodeSelectionFailed:      {},
	ErrCodeLoadFileNotFound:     {},
	ErrCodeLoadParseError:       {},
	ErrCodeLoadEmpty:            {},
	ErrCodeLLMTimeout:           {},
	ErrCodeLLMRateLimited:       {},
	ErrCodeLLMInvalidResponse:   {},
	ErrCodeAnalysisFailed:       {},
	ErrCodeRetryBudgetExceeded:  {},
}

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`

	cause error
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// WithCause attaches the originating error so errors.Is keeps matching
// sentinels across the typed-error boundary.
func (e *StandardError) WithCause(err error) *StandardError {
	e.cause = err
	return e
}

func (e *StandardError) Unwrap() error { return e.cause }

// ==========================
// 2. Error Constructors
// ==========================

// NewInterpretationFailedError creates a retryable interpretation error.
func NewInterpretationFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeInterpretationFailed,
		Message:   "Question interpretation failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewNeedsClarificationError creates a non-retryable ambiguity signal.
func NewNeedsClarificationError(question string) *StandardError {
	return &StandardError{
		Code:      ErrCodeNeedsClarification,
		Message:   "Question is ambiguous and needs clarification",
		Details:   fmt.Sprintf("question: %s", question),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewSelectionFailedError creates a non-retryable selection error.
func NewSelectionFailedError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeSelectionFailed,
		Message:   "No data source cleared the relevance threshold",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewFileNotFoundError creates a non-retryable load error.
func NewFileNotFoundError(sourceID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeLoadFileNotFound,
		Message:   "Data source file not found",
		Details:   fmt.Sprintf("sourceId: %s", sourceID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewParseError creates a non-retryable load error for corrupt sources.
func NewParseError(sourceID string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeLoadParseError,
		Message:   "Data source could not be parsed",
		Details:   fmt.Sprintf("sourceId: %s, error: %s", sourceID, err.Error()),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewEmptySourceError creates a non-retryable load error for empty sources.
func NewEmptySourceError(sourceID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeLoadEmpty,
		Message:   "Data source contains no rows",
		Details:   fmt.Sprintf("sourceId: %s", sourceID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewLLMTimeoutError creates a retryable LLM timeout error.
func NewLLMTimeoutError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeLLMTimeout,
		Message:   "Language model call timed out",
		Details:   details,
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewLLMRateLimitedError creates a retryable rate-limit error.
func NewLLMRateLimitedError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeLLMRateLimited,
		Message:   "Language model rejected the call with a rate limit",
		Details:   details,
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewLLMInvalidResponseError creates a non-retryable malformed-response error.
func NewLLMInvalidResponseError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeLLMInvalidResponse,
		Message:   "Language model returned an unusable response",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewAnalysisFailedError creates a non-retryable analysis error.
func NewAnalysisFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeAnalysisFailed,
		Message:   "Financial analysis failed",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewRetryBudgetExceededError marks a capped feedback loop. Not fatal: the
// workflow proceeds with whatever result is available.
func NewRetryBudgetExceededError(cap int) *StandardError {
	return &StandardError{
		Code:      ErrCodeRetryBudgetExceeded,
		Message:   "Re-analysis budget exhausted, proceeding with partial result",
		Details:   fmt.Sprintf("cap: %d", cap),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// ==========================
// 3. Utility Functions
// ==========================

// GetRetryCount returns the recommended retry count per error code.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeLLMTimeout, ErrCodeLLMRateLimited:
		return 1
	case ErrCodeInterpretationFailed:
		return 1
	default:
		return 0
	}
}

// IsRetryableErrorCode checks if an error code is retryable.
func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "LOAD"):
		return "DATA"
	case strings.Contains(codeStr, "LLM"):
		return "AI"
	case strings.Contains(codeStr, "INTERPRETATION") || strings.Contains(codeStr, "CLARIFICATION"):
		return "INTERPRETATION"
	case strings.Contains(codeStr, "SELECTION"):
		return "SELECTION"
	case strings.Contains(codeStr, "ANALYSIS") || strings.Contains(codeStr, "RETRY"):
		return "ANALYSIS"
	default:
		return "OTHER"
	}
}
