// internal/common/errors/handler.go
package errors

import (
	"errors"
	"strings"
	"time"
)

// Logger is the logging surface the handler needs.
type Logger interface {
	Error(msg string, fields map[string]interface{})
}

// Handler normalizes arbitrary errors into StandardError and logs them with
// their category and retry semantics.
type Handler struct {
	logger Logger
}

func NewHandler(logger Logger) *Handler {
	return &Handler{logger: logger}
}

// Handle normalizes and logs an error from a question pass, returning the
// normalized form for the caller to present.
func (h *Handler) Handle(question string, err error) *StandardError {
	stdErr := Normalize(err)
	h.logger.Error("Question failed", map[string]interface{}{
		"question":  question,
		"errorCode": string(stdErr.Code),
		"message":   stdErr.Message,
		"details":   stdErr.Details,
		"retryable": stdErr.Retryable,
		"retries":   GetRetryCount(stdErr.Code),
		"category":  GetErrorCategory(stdErr.Code),
	})
	return stdErr
}

// Normalize ensures any error is a StandardError. Sentinel errors carrying a
// known code as their message map onto that code.
func Normalize(err error) *StandardError {
	var stdErr *StandardError
	if errors.As(err, &stdErr) {
		return stdErr
	}

	if code, ok := sentinelCode(err); ok {
		return fromSentinel(code, err)
	}

	return &StandardError{
		Code:      "INTERNAL_ERROR",
		Message:   "Unexpected error",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// sentinelCode extracts a known error code from sentinel-style errors whose
// text starts with the code, e.g. "LOAD_FILE_NOT_FOUND: facturas.xlsx".
func sentinelCode(err error) (ErrorCode, bool) {
	msg := err.Error()
	if idx := strings.IndexByte(msg, ':'); idx > 0 {
		msg = msg[:idx]
	}
	code := ErrorCode(strings.TrimSpace(msg))
	if _, ok := knownCodes[code]; ok {
		return code, true
	}
	return "", false
}

// fromSentinel rebuilds the typed error for a recognized sentinel code,
// keeping the taxonomy's message and retry semantics.
func fromSentinel(code ErrorCode, err error) *StandardError {
	detail := sentinelDetail(err)
	var stdErr *StandardError
	switch code {
	case ErrCodeInterpretationFailed:
		stdErr = NewInterpretationFailedError(err)
	case ErrCodeNeedsClarification:
		stdErr = NewNeedsClarificationError(detail)
	case ErrCodeSelectionFailed:
		stdErr = NewSelectionFailedError(detail)
	case ErrCodeLoadFileNotFound:
		stdErr = NewFileNotFoundError(detail)
	case ErrCodeLoadParseError:
		stdErr = NewParseError(detail, err)
	case ErrCodeLoadEmpty:
		stdErr = NewEmptySourceError(detail)
	case ErrCodeLLMTimeout:
		stdErr = NewLLMTimeoutError(detail)
	case ErrCodeLLMRateLimited:
		stdErr = NewLLMRateLimitedError(detail)
	case ErrCodeLLMInvalidResponse:
		stdErr = NewLLMInvalidResponseError(detail)
	case ErrCodeAnalysisFailed:
		stdErr = NewAnalysisFailedError(err)
	default:
		stdErr = &StandardError{
			Code:      code,
			Message:   err.Error(),
			Retryable: IsRetryableErrorCode(code),
			Timestamp: time.Now().UTC(),
		}
	}
	return stdErr.WithCause(err)
}

// sentinelDetail returns the text after the leading code prefix.
func sentinelDetail(err error) string {
	msg := err.Error()
	if idx := strings.IndexByte(msg, ':'); idx >= 0 {
		return strings.TrimSpace(msg[idx+1:])
	}
	return msg
}
