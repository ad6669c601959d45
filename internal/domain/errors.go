package domain

import (
	"errors"
	"fmt"
)

// Category sentinels. Pair with NewSubSystemError for subsystem-specific codes.
var (
	ErrNotFound      = fmt.Errorf("not found")
	ErrDuplicate     = fmt.Errorf("duplicate")
	ErrTimeout       = fmt.Errorf("operation timed out")
	ErrInvalidInput  = fmt.Errorf("invalid input")
	ErrProviderError = fmt.Errorf("provider error")
)

// Stream decoding sentinels. Every error handed to an interpreter's error
// callback matches exactly one of these (or ErrProviderError for errors the
// server reported itself).
var (
	ErrMalformedInput      = fmt.Errorf("malformed stream payload")
	ErrDecodeFailure       = fmt.Errorf("stream payload decode failed")
	ErrUnrecognizedVariant = fmt.Errorf("unrecognized stream event type")
)

// Sentinel errors for the domain layer.
var (
	ErrProviderNotFound = fmt.Errorf("llm provider not found")
	ErrConfigLoad       = fmt.Errorf("failed to load configuration")
	ErrDecryption       = fmt.Errorf("decryption failed")
	ErrJournalWrite     = fmt.Errorf("journal write failed")
	ErrSchemaInvalid    = fmt.Errorf("structured output does not match schema")

	// Resilience errors.
	ErrContextOverflow = fmt.Errorf("context window exceeded")
	ErrRateLimit       = fmt.Errorf("rate limit exceeded")
	ErrAuthInvalid     = fmt.Errorf("authentication failed")
	ErrCircuitOpen     = fmt.Errorf("circuit open")
)

// DomainError wraps a sentinel error with context.
type DomainError struct {
	Op        string // operation name (e.g., "Journal.Frames")
	Err       error  // underlying sentinel or wrapped error
	Detail    string // human-readable detail
	SubSystem string // subsystem identifier (e.g., "journal"); used for ErrorCode dispatch
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

// ErrorCode is a machine-parseable error category for monitoring and alerting.
type ErrorCode string

const (
	CodeUnknown             ErrorCode = "UNKNOWN"
	CodeNotFound            ErrorCode = "NOT_FOUND"
	CodeDuplicate           ErrorCode = "DUPLICATE"
	CodeTimeout             ErrorCode = "TIMEOUT"
	CodeInvalidInput        ErrorCode = "INVALID_INPUT"
	CodeProviderError       ErrorCode = "PROVIDER_ERROR"
	CodeMalformedInput      ErrorCode = "MALFORMED_INPUT"
	CodeDecodeFailure       ErrorCode = "DECODE_FAILURE"
	CodeUnrecognizedVariant ErrorCode = "UNRECOGNIZED_VARIANT"
	CodeProviderNotFound    ErrorCode = "PROVIDER_NOT_FOUND"
	CodeConfigLoad          ErrorCode = "CONFIG_LOAD"
	CodeDecryption          ErrorCode = "DECRYPTION"
	CodeJournalWrite        ErrorCode = "JOURNAL_WRITE"
	CodeSchemaInvalid       ErrorCode = "SCHEMA_INVALID"
	CodeContextOverflow     ErrorCode = "CONTEXT_OVERFLOW"
	CodeRateLimit           ErrorCode = "RATE_LIMIT"
	CodeAuthInvalid         ErrorCode = "AUTH_INVALID"
	CodeCircuitOpen         ErrorCode = "CIRCUIT_OPEN"

	// Subsystem-specific codes used by subSystemCodeMap.
	CodeJournalSessionNotFound ErrorCode = "JOURNAL_SESSION_NOT_FOUND"
	CodeJournalDuplicate       ErrorCode = "JOURNAL_DUPLICATE"
	CodeStreamTimeout          ErrorCode = "STREAM_TIMEOUT"
)

// errorCodeMap maps sentinel errors to their machine-parseable codes.
var errorCodeMap = map[error]ErrorCode{
	ErrNotFound:            CodeNotFound,
	ErrDuplicate:           CodeDuplicate,
	ErrTimeout:             CodeTimeout,
	ErrInvalidInput:        CodeInvalidInput,
	ErrProviderError:       CodeProviderError,
	ErrMalformedInput:      CodeMalformedInput,
	ErrDecodeFailure:       CodeDecodeFailure,
	ErrUnrecognizedVariant: CodeUnrecognizedVariant,
	ErrProviderNotFound:    CodeProviderNotFound,
	ErrConfigLoad:          CodeConfigLoad,
	ErrDecryption:          CodeDecryption,
	ErrJournalWrite:        CodeJournalWrite,
	ErrSchemaInvalid:       CodeSchemaInvalid,
	ErrContextOverflow:     CodeContextOverflow,
	ErrRateLimit:           CodeRateLimit,
	ErrAuthInvalid:         CodeAuthInvalid,
	ErrCircuitOpen:         CodeCircuitOpen,
}

// subSystemCodeMap maps (category sentinel, subsystem) pairs to specific ErrorCodes.
var subSystemCodeMap = map[error]map[string]ErrorCode{
	ErrNotFound: {
		"journal": CodeJournalSessionNotFound,
	},
	ErrDuplicate: {
		"journal": CodeJournalDuplicate,
	},
	ErrTimeout: {
		"stream": CodeStreamTimeout,
	},
}

// codePriority lists sentinels in the order ErrorCodeOf tries them when
// walking a chain, so that errors matching several sentinels resolve
// deterministically to the most specific one.
var codePriority = []error{
	ErrMalformedInput,
	ErrDecodeFailure,
	ErrUnrecognizedVariant,
	ErrRateLimit,
	ErrAuthInvalid,
	ErrContextOverflow,
	ErrCircuitOpen,
	ErrProviderNotFound,
	ErrConfigLoad,
	ErrDecryption,
	ErrJournalWrite,
	ErrSchemaInvalid,
	ErrNotFound,
	ErrDuplicate,
	ErrTimeout,
	ErrInvalidInput,
	ErrProviderError,
}

// ErrorCodeOf returns the machine-parseable error code for the given error.
// It unwraps DomainError and uses errors.Is to match sentinel errors.
// Returns CodeUnknown if no matching sentinel is found.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}

	// Fast path: direct sentinel lookup.
	if code, ok := errorCodeMap[err]; ok {
		return code
	}

	var de *DomainError
	if errors.As(err, &de) {
		if code := de.Code(); code != CodeUnknown {
			return code
		}
	}

	for _, sentinel := range codePriority {
		if errors.Is(err, sentinel) {
			return errorCodeMap[sentinel]
		}
	}

	return CodeUnknown
}

// Code returns the ErrorCode for this DomainError's underlying sentinel.
// If SubSystem is set, checks the subSystemCodeMap for a specific code.
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
