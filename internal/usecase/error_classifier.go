package usecase

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"strings"

	"respstream/internal/domain"
)

// ErrorCategory says whether sending the same request again could succeed.
type ErrorCategory int

const (
	ErrorCategoryUnknown   ErrorCategory = iota
	ErrorCategoryRetryable               // 429, 5xx, overloaded, timeouts, open circuit
	ErrorCategoryPermanent               // auth, bad request, undecodable frames
)

func (c ErrorCategory) String() string {
	switch c {
	case ErrorCategoryRetryable:
		return "retryable"
	case ErrorCategoryPermanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// ClassifiedError holds the result of error classification.
type ClassifiedError struct {
	Original   error
	Category   ErrorCategory
	Sentinel   error  // mapped domain sentinel (e.g. domain.ErrRateLimit), or nil
	StatusCode int    // HTTP status from "API error NNN:", or 0
	APICode    string // code of an in-band or envelope APIError, if any
}

// ErrorClassifier sorts stream initiation errors, in-band API errors and
// frame decode errors into retryable and permanent.
type ErrorClassifier struct{}

// NewErrorClassifier creates a new classifier.
func NewErrorClassifier() *ErrorClassifier {
	return &ErrorClassifier{}
}

// apiErrorPattern matches the "API error <status>:" prefix of HTTP failures.
var apiErrorPattern = regexp.MustCompile(`API error (\d+):`)

// retryableAPICodes are server error codes that describe a transient state.
var retryableAPICodes = map[string]error{
	"rate_limit_exceeded":     domain.ErrRateLimit,
	"server_error":            nil,
	"server_is_overloaded":    nil,
	"slow_down":               domain.ErrRateLimit,
	"context_length_exceeded": domain.ErrContextOverflow,
}

// permanentAPICodes map to a sentinel but are not worth retrying.
var permanentAPICodes = map[string]error{
	"invalid_api_key":       domain.ErrAuthInvalid,
	"insufficient_quota":    domain.ErrRateLimit,
	"invalid_prompt":        domain.ErrInvalidInput,
	"invalid_request_error": domain.ErrInvalidInput,
}

// Classify inspects err and returns its category and mapped sentinel.
func (c *ErrorClassifier) Classify(err error) ClassifiedError {
	if err == nil {
		return ClassifiedError{}
	}

	// Frame-level failures never improve on retry: the same bytes decode
	// the same way.
	var se *domain.StreamError
	if errors.As(err, &se) {
		return ClassifiedError{Original: err, Category: ErrorCategoryPermanent, Sentinel: se.Kind.Sentinel()}
	}

	out := c.classifyBySentinel(err)

	if m := apiErrorPattern.FindStringSubmatch(err.Error()); len(m) == 2 {
		out.StatusCode, _ = strconv.Atoi(m[1])
		if out.Category == ErrorCategoryUnknown {
			out = c.classifyByStatus(err, out.StatusCode)
		}
	}

	if apiErr, ok := domain.AsAPIError(err); ok {
		out.APICode = apiErr.Code
		if out.Category == ErrorCategoryUnknown || out.StatusCode == 0 {
			if byCode := c.classifyAPIError(err, apiErr); byCode.Category != ErrorCategoryUnknown {
				byCode.StatusCode = out.StatusCode
				out = byCode
			}
		}
	}

	if out.Category == ErrorCategoryUnknown {
		out = c.classifyByString(err, out)
	}
	return out
}

func (c *ErrorClassifier) classifyBySentinel(err error) ClassifiedError {
	retry := func(s error) ClassifiedError {
		return ClassifiedError{Original: err, Category: ErrorCategoryRetryable, Sentinel: s}
	}
	perm := func(s error) ClassifiedError {
		return ClassifiedError{Original: err, Category: ErrorCategoryPermanent, Sentinel: s}
	}
	switch {
	case errors.Is(err, domain.ErrRateLimit):
		return retry(domain.ErrRateLimit)
	case errors.Is(err, domain.ErrContextOverflow):
		return retry(domain.ErrContextOverflow)
	case errors.Is(err, domain.ErrCircuitOpen):
		return retry(domain.ErrCircuitOpen)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, domain.ErrTimeout):
		return retry(domain.ErrTimeout)
	case errors.Is(err, domain.ErrAuthInvalid):
		return perm(domain.ErrAuthInvalid)
	case errors.Is(err, domain.ErrInvalidInput):
		return perm(domain.ErrInvalidInput)
	case errors.Is(err, context.Canceled):
		return perm(nil)
	default:
		return ClassifiedError{Original: err, Category: ErrorCategoryUnknown}
	}
}

func (c *ErrorClassifier) classifyByStatus(err error, code int) ClassifiedError {
	out := ClassifiedError{Original: err, StatusCode: code, Category: ErrorCategoryPermanent}
	switch {
	case code == 429:
		out.Category, out.Sentinel = ErrorCategoryRetryable, domain.ErrRateLimit
	case code == 408:
		out.Category, out.Sentinel = ErrorCategoryRetryable, domain.ErrTimeout
	case code >= 500 && code < 600:
		out.Category, out.Sentinel = ErrorCategoryRetryable, domain.ErrProviderError
	}
	return out
}

func (c *ErrorClassifier) classifyAPIError(err error, apiErr *domain.APIError) ClassifiedError {
	for _, key := range []string{apiErr.Code, apiErr.Type} {
		if key == "" {
			continue
		}
		if s, ok := retryableAPICodes[key]; ok {
			return ClassifiedError{Original: err, Category: ErrorCategoryRetryable, Sentinel: s, APICode: apiErr.Code}
		}
		if s, ok := permanentAPICodes[key]; ok {
			return ClassifiedError{Original: err, Category: ErrorCategoryPermanent, Sentinel: s, APICode: apiErr.Code}
		}
	}
	return ClassifiedError{Original: err, APICode: apiErr.Code}
}

// classifyByString is the fallback for transport errors that carry no
// sentinel or status.
func (c *ErrorClassifier) classifyByString(err error, out ClassifiedError) ClassifiedError {
	lower := strings.ToLower(err.Error())

	for _, p := range []string{"rate limit", "too many requests"} {
		if strings.Contains(lower, p) {
			out.Category, out.Sentinel = ErrorCategoryRetryable, domain.ErrRateLimit
			return out
		}
	}
	for _, p := range []string{
		"connection refused", "no such host", "timeout",
		"deadline exceeded", "connection reset", "unexpected eof",
	} {
		if strings.Contains(lower, p) {
			out.Category = ErrorCategoryRetryable
			return out
		}
	}
	return out
}
