package domain

import (
	"errors"
	"fmt"
)

// Category sentinels. Combine with NewSubSystemError for subsystem-specific codes.
var (
	ErrNotFound      = fmt.Errorf("not found")
	ErrDuplicate     = fmt.Errorf("duplicate")
	ErrTimeout       = fmt.Errorf("operation timed out")
	ErrDisabled      = fmt.Errorf("disabled")
	ErrInvalidInput  = fmt.Errorf("invalid input")
	ErrProviderError = fmt.Errorf("provider error")
)

// Sentinel errors for the domain layer.
var (
	// ErrInvalidQuery is the only error ProcessQuery returns for a well-formed call.
	ErrInvalidQuery = fmt.Errorf("query is empty: %w", ErrInvalidInput)

	ErrProviderNotFound   = fmt.Errorf("llm provider not found")
	ErrConfigLoad         = fmt.Errorf("failed to load configuration")
	ErrDecryption         = fmt.Errorf("decryption failed")
	ErrDataUnavailable    = fmt.Errorf("domain data unavailable")
	ErrTranslationFailed  = fmt.Errorf("translation failed")
	ErrClassifierResponse = fmt.Errorf("classifier response invalid")

	// Resilience errors.
	ErrContextOverflow = fmt.Errorf("context window exceeded")
	ErrRateLimit       = fmt.Errorf("rate limit exceeded")
	ErrAuthInvalid     = fmt.Errorf("authentication failed")
	ErrCircuitOpen     = fmt.Errorf("circuit breaker open")
)

// DomainError wraps a sentinel error with context.
type DomainError struct {
	Op        string // operation name (e.g., "Registry.Get")
	Err       error  // underlying sentinel or wrapped error
	Detail    string // human-readable detail
	SubSystem string // subsystem identifier (e.g., "specialist", "dataset"); used for ErrorCode dispatch
}

func (e *DomainError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError creates a new DomainError.
func NewDomainError(op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail}
}

// NewSubSystemError creates a DomainError tagged with a subsystem for ErrorCode dispatch.
func NewSubSystemError(subsystem, op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail, SubSystem: subsystem}
}

// WrapOp adds operation context to an error using fmt.Errorf wrapping.
// Returns nil if err is nil, enabling idiomatic use: return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// IsRetryableError reports whether err is a transient error that may succeed on
// another provider.
func IsRetryableError(err error) bool {
	return errors.Is(err, ErrRateLimit) ||
		errors.Is(err, ErrContextOverflow) ||
		errors.Is(err, ErrCircuitOpen) ||
		errors.Is(err, ErrTimeout)
}

// ErrorCode is a machine-parseable error category for monitoring and alerting.
type ErrorCode string

const (
	CodeUnknown            ErrorCode = "UNKNOWN"
	CodeInvalidQuery       ErrorCode = "INVALID_QUERY"
	CodeProviderNotFound   ErrorCode = "PROVIDER_NOT_FOUND"
	CodeConfigLoad         ErrorCode = "CONFIG_LOAD"
	CodeDecryption         ErrorCode = "DECRYPTION"
	CodeDataUnavailable    ErrorCode = "DATA_UNAVAILABLE"
	CodeTranslationFailed  ErrorCode = "TRANSLATION_FAILED"
	CodeClassifierResponse ErrorCode = "CLASSIFIER_RESPONSE"
	CodeContextOverflow    ErrorCode = "CONTEXT_OVERFLOW"
	CodeRateLimit          ErrorCode = "RATE_LIMIT"
	CodeAuthInvalid        ErrorCode = "AUTH_INVALID"
	CodeCircuitOpen        ErrorCode = "CIRCUIT_OPEN"

	// Subsystem-specific codes resolved through subSystemCodeMap.
	CodeSpecialistNotFound  ErrorCode = "SPECIALIST_NOT_FOUND"
	CodeSpecialistDuplicate ErrorCode = "SPECIALIST_DUPLICATE"
	CodeSpecialistTimeout   ErrorCode = "SPECIALIST_TIMEOUT"
	CodeDatasetNotFound     ErrorCode = "DATASET_NOT_FOUND"
	CodeDatasetInvalid      ErrorCode = "DATASET_INVALID"
	CodeReportNotFound      ErrorCode = "REPORT_NOT_FOUND"

	// Category codes, used when no subsystem-specific code matches.
	CodeNotFound      ErrorCode = "NOT_FOUND"
	CodeDuplicate     ErrorCode = "DUPLICATE"
	CodeTimeout       ErrorCode = "TIMEOUT"
	CodeDisabled      ErrorCode = "DISABLED"
	CodeInvalidInput  ErrorCode = "INVALID_INPUT"
	CodeProviderError ErrorCode = "PROVIDER_ERROR"
)

var errorCodeMap = map[error]ErrorCode{
	ErrNotFound:      CodeNotFound,
	ErrDuplicate:     CodeDuplicate,
	ErrTimeout:       CodeTimeout,
	ErrDisabled:      CodeDisabled,
	ErrInvalidInput:  CodeInvalidInput,
	ErrProviderError: CodeProviderError,

	ErrInvalidQuery:       CodeInvalidQuery,
	ErrProviderNotFound:   CodeProviderNotFound,
	ErrConfigLoad:         CodeConfigLoad,
	ErrDecryption:         CodeDecryption,
	ErrDataUnavailable:    CodeDataUnavailable,
	ErrTranslationFailed:  CodeTranslationFailed,
	ErrClassifierResponse: CodeClassifierResponse,
	ErrContextOverflow:    CodeContextOverflow,
	ErrRateLimit:          CodeRateLimit,
	ErrAuthInvalid:        CodeAuthInvalid,
	ErrCircuitOpen:        CodeCircuitOpen,
}

// subSystemCodeMap maps (category sentinel, subsystem) pairs to specific ErrorCodes.
var subSystemCodeMap = map[error]map[string]ErrorCode{
	ErrNotFound: {
		"specialist": CodeSpecialistNotFound,
	},
	ErrDataUnavailable: {
		"dataset": CodeDatasetNotFound,
		"reports": CodeReportNotFound,
	},
	ErrDuplicate: {
		"specialist": CodeSpecialistDuplicate,
	},
	ErrTimeout: {
		"specialist": CodeSpecialistTimeout,
	},
	ErrInvalidInput: {
		"dataset": CodeDatasetInvalid,
	},
}

// ErrorCodeOf returns the machine-parseable error code for the given error.
// Subsystem-tagged DomainErrors resolve through subSystemCodeMap first; the
// error chain is then walked with errors.Is. Returns CodeUnknown if nothing matches.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}

	if code, ok := errorCodeMap[err]; ok {
		return code
	}

	var de *DomainError
	if errors.As(err, &de) {
		if code := de.Code(); code != CodeUnknown {
			return code
		}
	}

	// ErrInvalidQuery wraps ErrInvalidInput, so it must be checked first.
	if errors.Is(err, ErrInvalidQuery) {
		return CodeInvalidQuery
	}
	for sentinel, code := range errorCodeMap {
		if errors.Is(err, sentinel) {
			return code
		}
	}

	return CodeUnknown
}

// Code returns the ErrorCode for this DomainError's underlying sentinel.
func (e *DomainError) Code() ErrorCode {
	if e.SubSystem != "" {
		if subsysMap, ok := subSystemCodeMap[e.Err]; ok {
			if code, ok := subsysMap[e.SubSystem]; ok {
				return code
			}
		}
	}
	if code, ok := errorCodeMap[e.Err]; ok {
		return code
	}
	return CodeUnknown
}
