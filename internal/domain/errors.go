package domain

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors for the invocation core.
var (
	ErrInvalidRoute        = fmt.Errorf("invalid handoff route")
	ErrDecodeFailure       = fmt.Errorf("output does not match schema")
	ErrUpstreamUnavailable = fmt.Errorf("upstream model unavailable")
	ErrInvalidRequest      = fmt.Errorf("invalid invocation request")
	ErrInvalidDescriptor   = fmt.Errorf("invalid agent descriptor")
	ErrInvalidGuardrail    = fmt.Errorf("invalid guardrail spec")
	ErrAgentNotFound       = fmt.Errorf("agent not found")
)

// Sentinel errors for the provider and configuration layers.
var (
	ErrProviderNotFound = fmt.Errorf("llm provider not found")
	ErrConfigLoad       = fmt.Errorf("failed to load configuration")
	ErrDecryption       = fmt.Errorf("decryption failed")
	ErrEncryption       = fmt.Errorf("encryption operation failed")
	ErrRateLimit        = fmt.Errorf("rate limit exceeded")
	ErrAuthInvalid      = fmt.Errorf("authentication failed")
	ErrContextOverflow  = fmt.Errorf("context window exceeded")
	ErrProviderError    = fmt.Errorf("provider error")
	ErrMethodNotFound   = fmt.Errorf("rpc method not found")
)

// DomainError wraps a sentinel error with context.
type DomainError struct {
	Op     string // operation name (e.g., "Router.Route")
	Err    error  // underlying sentinel or wrapped error
	Detail string // human-readable detail
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

// WrapOp adds operation context to an error using fmt.Errorf wrapping.
// Returns nil if err is nil, enabling idiomatic use: return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// Upstream marks err as an upstream failure while keeping the original chain.
func Upstream(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrUpstreamUnavailable) {
		return WrapOp(op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrUpstreamUnavailable, err)
}

// IsRetryableError reports whether err is a transient error that may succeed on retry.
// The core never retries; this is exposed for callers that apply their own policy.
func IsRetryableError(err error) bool {
	return errors.Is(err, ErrRateLimit) ||
		errors.Is(err, ErrUpstreamUnavailable) ||
		errors.Is(err, context.DeadlineExceeded)
}

// KindOf maps an error chain to the failure kind reported in a Failed result.
// Anything that is not a routing, decoding or request problem is treated as
// the model endpoint being unavailable.
func KindOf(err error) FailureKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidRoute):
		return FailureInvalidRoute
	case errors.Is(err, ErrDecodeFailure):
		return FailureDecode
	case errors.Is(err, ErrInvalidRequest), errors.Is(err, ErrAgentNotFound):
		return FailureInvalidRequest
	default:
		return FailureUpstreamUnavailable
	}
}

// ErrorCode is a machine-parseable error category for monitoring and alerting.
type ErrorCode string

const (
	CodeUnknown             ErrorCode = "UNKNOWN"
	CodeInvalidRoute        ErrorCode = "INVALID_ROUTE"
	CodeDecodeFailure       ErrorCode = "DECODE_FAILURE"
	CodeUpstreamUnavailable ErrorCode = "UPSTREAM_UNAVAILABLE"
	CodeInvalidRequest      ErrorCode = "INVALID_REQUEST"
	CodeInvalidDescriptor   ErrorCode = "INVALID_DESCRIPTOR"
	CodeInvalidGuardrail    ErrorCode = "INVALID_GUARDRAIL"
	CodeAgentNotFound       ErrorCode = "AGENT_NOT_FOUND"
	CodeProviderNotFound    ErrorCode = "PROVIDER_NOT_FOUND"
	CodeConfigLoad          ErrorCode = "CONFIG_LOAD"
	CodeDecryption          ErrorCode = "DECRYPTION"
	CodeEncryption          ErrorCode = "ENCRYPTION"
	CodeRateLimit           ErrorCode = "RATE_LIMIT"
	CodeAuthInvalid         ErrorCode = "AUTH_INVALID"
	CodeContextOverflow     ErrorCode = "CONTEXT_OVERFLOW"
	CodeProviderError       ErrorCode = "PROVIDER_ERROR"
	CodeMethodNotFound      ErrorCode = "METHOD_NOT_FOUND"
)

// errorCodes is ordered from most to least specific so that chains carrying
// several sentinels (e.g. upstream + rate limit) resolve to the narrower code.
var errorCodes = []struct {
	err  error
	code ErrorCode
}{
	{ErrInvalidRoute, CodeInvalidRoute},
	{ErrDecodeFailure, CodeDecodeFailure},
	{ErrInvalidRequest, CodeInvalidRequest},
	{ErrInvalidDescriptor, CodeInvalidDescriptor},
	{ErrInvalidGuardrail, CodeInvalidGuardrail},
	{ErrAgentNotFound, CodeAgentNotFound},
	{ErrProviderNotFound, CodeProviderNotFound},
	{ErrConfigLoad, CodeConfigLoad},
	{ErrDecryption, CodeDecryption},
	{ErrEncryption, CodeEncryption},
	{ErrRateLimit, CodeRateLimit},
	{ErrAuthInvalid, CodeAuthInvalid},
	{ErrContextOverflow, CodeContextOverflow},
	{ErrProviderError, CodeProviderError},
	{ErrMethodNotFound, CodeMethodNotFound},
	{ErrUpstreamUnavailable, CodeUpstreamUnavailable},
}

// ErrorCodeOf returns the machine-parseable error code for the given error.
// Returns CodeUnknown if no matching sentinel is found.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}
	for _, ec := range errorCodes {
		if errors.Is(err, ec.err) {
			return ec.code
		}
	}
	return CodeUnknown
}

// Code returns the ErrorCode for this DomainError's underlying sentinel.
func (e *DomainError) Code() ErrorCode {
	return ErrorCodeOf(e.Err)
}
