package errors

import (
	"fmt"
	"strings"
)

// ErrorCategory classifies failures by how the system must react to them.
type ErrorCategory string

const (
	// Critical errors that should stop the bot
	ErrorCategoryFatal         ErrorCategory = "FATAL"
	ErrorCategoryCredentials   ErrorCategory = "CREDENTIALS"
	ErrorCategoryConfiguration ErrorCategory = "CONFIG"

	// Cycle-level errors: the cycle terminates at its current stage and reports
	ErrorCategoryAdvisor     ErrorCategory = "ADVISOR"
	ErrorCategoryPersistence ErrorCategory = "PERSISTENCE"

	// Order-level errors: the single order is rejected, the batch continues
	ErrorCategoryDataUnavailable ErrorCategory = "DATA_UNAVAILABLE"
	ErrorCategoryPolicy          ErrorCategory = "POLICY"
	ErrorCategoryExecution       ErrorCategory = "EXECUTION"

	// Transient errors
	ErrorCategoryNetwork   ErrorCategory = "NETWORK"
	ErrorCategoryTimeout   ErrorCategory = "TIMEOUT"
	ErrorCategoryRateLimit ErrorCategory = "RATE_LIMIT"
)

// TradeError is a categorized error with component and operation context.
type TradeError struct {
	Category   ErrorCategory
	Component  string
	Operation  string
	Message    string
	Underlying error
	Retryable  bool
}

// Error implements the error interface.
func (e *TradeError) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("[%s:%s] %s: %s: %v", e.Category, e.Component, e.Operation, e.Message, e.Underlying)
	}
	return fmt.Sprintf("[%s:%s] %s: %s", e.Category, e.Component, e.Operation, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As chains.
func (e *TradeError) Unwrap() error {
	return e.Underlying
}

// IsRetryable reports whether the attempted operation may be retried.
func (e *TradeError) IsRetryable() bool {
	return e.Retryable
}

// IsFatal reports whether the error should stop the whole process.
func (e *TradeError) IsFatal() bool {
	return e.Category == ErrorCategoryFatal ||
		e.Category == ErrorCategoryCredentials ||
		e.Category == ErrorCategoryConfiguration
}

// IsCycleFatal reports whether the error must terminate the running cycle.
// Order-level categories recover locally and do not abort the batch.
func (e *TradeError) IsCycleFatal() bool {
	return e.IsFatal() || e.Category == ErrorCategoryPersistence
}

// New creates a categorized error without an underlying cause.
func New(category ErrorCategory, component, operation, message string) *TradeError {
	return &TradeError{
		Category:  category,
		Component: component,
		Operation: operation,
		Message:   message,
		Retryable: retryableCategory(category),
	}
}

// Wrap attaches category and context to an existing error.
func Wrap(err error, category ErrorCategory, component, operation string) *TradeError {
	if err == nil {
		return nil
	}
	return &TradeError{
		Category:   category,
		Component:  component,
		Operation:  operation,
		Message:    "operation failed",
		Underlying: err,
		Retryable:  retryableCategory(category),
	}
}

// WithRetryable overrides the category's default retry behavior.
func (e *TradeError) WithRetryable(retryable bool) *TradeError {
	e.Retryable = retryable
	return e
}

func retryableCategory(category ErrorCategory) bool {
	switch category {
	case ErrorCategoryNetwork, ErrorCategoryTimeout, ErrorCategoryRateLimit, ErrorCategoryAdvisor:
		return true
	case ErrorCategoryFatal, ErrorCategoryCredentials, ErrorCategoryConfiguration,
		ErrorCategoryPolicy, ErrorCategoryPersistence:
		return false
	default:
		return false
	}
}

// Categorize inspects a generic error and assigns the closest category.
// Errors that are already TradeErrors pass through unchanged.
func Categorize(err error, component, operation string) *TradeError {
	if err == nil {
		return nil
	}
	if te, ok := err.(*TradeError); ok {
		return te
	}

	msg := strings.ToLower(err.Error())

	switch {
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "context deadline exceeded"):
		return Wrap(err, ErrorCategoryTimeout, component, operation)
	case strings.Contains(msg, "connection"), strings.Contains(msg, "dial"), strings.Contains(msg, "dns"):
		return Wrap(err, ErrorCategoryNetwork, component, operation)
	case strings.Contains(msg, "rate limit"), strings.Contains(msg, "too many requests"):
		return Wrap(err, ErrorCategoryRateLimit, component, operation)
	case strings.Contains(msg, "api key"), strings.Contains(msg, "unauthorized"), strings.Contains(msg, "forbidden"):
		return Wrap(err, ErrorCategoryCredentials, component, operation)
	case strings.Contains(msg, "insufficient"):
		return Wrap(err, ErrorCategoryExecution, component, operation).WithRetryable(false)
	default:
		return Wrap(err, ErrorCategoryExecution, component, operation)
	}
}

// Convenience constructors used across the codebase.

func NewDataUnavailable(component, operation string, err error) *TradeError {
	return Wrap(err, ErrorCategoryDataUnavailable, component, operation)
}

func NewAdvisorError(component, operation string, err error) *TradeError {
	return Wrap(err, ErrorCategoryAdvisor, component, operation)
}

func NewPersistenceError(component, operation string, err error) *TradeError {
	return Wrap(err, ErrorCategoryPersistence, component, operation)
}
