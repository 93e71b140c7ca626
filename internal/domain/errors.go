package domain

import (
	"errors"
	"fmt"
)

// Every stage of the relay fails with one of the four error types below. Each
// type has a closed set of codes and matches the package sentinels through
// errors.Is, so callers can switch exhaustively on the code.

type RouteErrorCode uint8

const (
	CodeNoRouteFound RouteErrorCode = iota + 1
	CodeAggregatorUnavailable
	CodeInvalidIntent
)

func (c RouteErrorCode) String() string {
	switch c {
	case CodeNoRouteFound:
		return "no_route_found"
	case CodeAggregatorUnavailable:
		return "aggregator_unavailable"
	case CodeInvalidIntent:
		return "invalid_intent"
	}
	return "unknown"
}

type RouteError struct {
	Code RouteErrorCode
	Err  error
}

func NewRouteError(code RouteErrorCode, err error) *RouteError {
	return &RouteError{Code: code, Err: err}
}

func (e *RouteError) Error() string {
	if e.Err == nil {
		return "route: " + e.Code.String()
	}
	return fmt.Sprintf("route: %s: %v", e.Code, e.Err)
}

func (e *RouteError) Unwrap() error { return e.Err }

func (e *RouteError) Is(target error) bool {
	t, ok := target.(*RouteError)
	return ok && t.Code == e.Code
}

type BuildErrorCode uint8

const (
	CodeStaleBlockReference BuildErrorCode = iota + 1
	CodeInstructionOverflow
	CodeLookupTableUnresolved
	CodeUnsafeInstruction
	CodeMalformedRoute
	CodeQuoteExpired
)

func (c BuildErrorCode) String() string {
	switch c {
	case CodeStaleBlockReference:
		return "stale_block_reference"
	case CodeInstructionOverflow:
		return "instruction_overflow"
	case CodeLookupTableUnresolved:
		return "lookup_table_unresolved"
	case CodeUnsafeInstruction:
		return "unsafe_instruction"
	case CodeMalformedRoute:
		return "malformed_route"
	case CodeQuoteExpired:
		return "quote_expired"
	}
	return "unknown"
}

type BuildError struct {
	Code BuildErrorCode
	Err  error
}

func NewBuildError(code BuildErrorCode, err error) *BuildError {
	return &BuildError{Code: code, Err: err}
}

func (e *BuildError) Error() string {
	if e.Err == nil {
		return "build: " + e.Code.String()
	}
	return fmt.Sprintf("build: %s: %v", e.Code, e.Err)
}

func (e *BuildError) Unwrap() error { return e.Err }

func (e *BuildError) Is(target error) bool {
	t, ok := target.(*BuildError)
	return ok && t.Code == e.Code
}

type RegistryErrorCode uint8

const (
	CodeNotFound RegistryErrorCode = iota + 1
	CodeExpired
	CodeAlreadyConsumed
)

func (c RegistryErrorCode) String() string {
	switch c {
	case CodeNotFound:
		return "not_found"
	case CodeExpired:
		return "expired"
	case CodeAlreadyConsumed:
		return "already_consumed"
	}
	return "unknown"
}

type RegistryError struct {
	Code          RegistryErrorCode
	CorrelationID string
	Err           error
}

func NewRegistryError(code RegistryErrorCode, correlationID string) *RegistryError {
	return &RegistryError{Code: code, CorrelationID: correlationID}
}

func (e *RegistryError) Error() string {
	msg := "registry: " + e.Code.String()
	if e.CorrelationID != "" {
		msg += " (" + e.CorrelationID + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *RegistryError) Unwrap() error { return e.Err }

func (e *RegistryError) Is(target error) bool {
	t, ok := target.(*RegistryError)
	return ok && t.Code == e.Code
}

type SubmissionErrorCode uint8

const (
	CodeSignatureMismatch SubmissionErrorCode = iota + 1
	CodeBlockReferenceExpired
	CodeBroadcastRejected
	CodeConfirmationTimeout
	CodeTransactionFailed
)

func (c SubmissionErrorCode) String() string {
	switch c {
	case CodeSignatureMismatch:
		return "signature_mismatch"
	case CodeBlockReferenceExpired:
		return "block_reference_expired"
	case CodeBroadcastRejected:
		return "broadcast_rejected"
	case CodeConfirmationTimeout:
		return "confirmation_timeout"
	case CodeTransactionFailed:
		return "transaction_failed"
	}
	return "unknown"
}

type SubmissionError struct {
	Code SubmissionErrorCode
	Err  error
}

func NewSubmissionError(code SubmissionErrorCode, err error) *SubmissionError {
	return &SubmissionError{Code: code, Err: err}
}

func (e *SubmissionError) Error() string {
	if e.Err == nil {
		return "submission: " + e.Code.String()
	}
	return fmt.Sprintf("submission: %s: %v", e.Code, e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

func (e *SubmissionError) Is(target error) bool {
	t, ok := target.(*SubmissionError)
	return ok && t.Code == e.Code
}

var (
	ErrNoRouteFound          = &RouteError{Code: CodeNoRouteFound}
	ErrAggregatorUnavailable = &RouteError{Code: CodeAggregatorUnavailable}
	ErrInvalidIntent         = &RouteError{Code: CodeInvalidIntent}

	ErrStaleBlockReference   = &BuildError{Code: CodeStaleBlockReference}
	ErrInstructionOverflow   = &BuildError{Code: CodeInstructionOverflow}
	ErrLookupTableUnresolved = &BuildError{Code: CodeLookupTableUnresolved}
	ErrUnsafeInstruction     = &BuildError{Code: CodeUnsafeInstruction}
	ErrMalformedRoute        = &BuildError{Code: CodeMalformedRoute}
	ErrQuoteExpired          = &BuildError{Code: CodeQuoteExpired}

	ErrRecordNotFound  = &RegistryError{Code: CodeNotFound}
	ErrRecordExpired   = &RegistryError{Code: CodeExpired}
	ErrAlreadyConsumed = &RegistryError{Code: CodeAlreadyConsumed}

	ErrSignatureMismatch     = &SubmissionError{Code: CodeSignatureMismatch}
	ErrBlockReferenceExpired = &SubmissionError{Code: CodeBlockReferenceExpired}
	ErrBroadcastRejected     = &SubmissionError{Code: CodeBroadcastRejected}
	ErrConfirmationTimeout   = &SubmissionError{Code: CodeConfirmationTimeout}
	ErrTransactionFailed     = &SubmissionError{Code: CodeTransactionFailed}
)

// Recommendation tells a caller where to resume after a failed attempt.
type Recommendation string

const (
	RecommendNone         Recommendation = "none"
	RecommendRetryQuote   Recommendation = "retry_quote"
	RecommendRetryPrepare Recommendation = "retry_prepare"
	RecommendRestart      Recommendation = "restart_from_quote"
	RecommendDoNotRetry   Recommendation = "do_not_retry"
)

// Recommend maps an error from any stage to the step the caller should
// restart from. Signature mismatches are never retried.
func Recommend(err error) Recommendation {
	if err == nil {
		return RecommendNone
	}

	var (
		routeErr  *RouteError
		buildErr  *BuildError
		regErr    *RegistryError
		submitErr *SubmissionError
	)
	switch {
	case errors.As(err, &submitErr):
		if submitErr.Code == CodeSignatureMismatch {
			return RecommendDoNotRetry
		}
		return RecommendRestart
	case errors.As(err, &regErr):
		return RecommendRestart
	case errors.As(err, &buildErr):
		if buildErr.Code == CodeQuoteExpired {
			return RecommendRetryQuote
		}
		return RecommendRetryPrepare
	case errors.As(err, &routeErr):
		if routeErr.Code == CodeInvalidIntent {
			return RecommendDoNotRetry
		}
		return RecommendRetryQuote
	}
	return RecommendRestart
}
