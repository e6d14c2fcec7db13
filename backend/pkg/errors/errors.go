package errors

import (
	"errors"
	"fmt"
	"time"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrorTypeGraph represents graph store errors
	ErrorTypeGraph ErrorType = "graph"
	// ErrorTypeLoader represents bulk import errors
	ErrorTypeLoader ErrorType = "loader"
	// ErrorTypeAgent represents LLM-related errors
	ErrorTypeAgent ErrorType = "agent"
	// ErrorTypeConfig represents configuration errors
	ErrorTypeConfig ErrorType = "config"
	// ErrorTypeContext represents context cancellation/timeout errors
	ErrorTypeContext ErrorType = "context"
)

// BaseError is the base error type with common fields
type BaseError struct {
	Type      ErrorType
	Message   string
	Timestamp time.Time
	Err       error // Wrapped error
}

// Error implements the error interface
func (e *BaseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the wrapped error for error unwrapping
func (e *BaseError) Unwrap() error {
	return e.Err
}

// NewBaseError creates a new base error
func NewBaseError(errType ErrorType, message string, err error) *BaseError {
	return &BaseError{
		Type:      errType,
		Message:   message,
		Timestamp: time.Now(),
		Err:       err,
	}
}

// Graph Errors

// ErrStoreUnreachable is returned when the graph store cannot be contacted
type ErrStoreUnreachable struct {
	*BaseError
	URI string
}

func NewStoreUnreachable(uri string, err error) *ErrStoreUnreachable {
	return &ErrStoreUnreachable{
		BaseError: NewBaseError(ErrorTypeGraph, fmt.Sprintf("unable to reach graph store at %s", uri), err),
		URI:       uri,
	}
}

// ErrProvisionFailed is returned when a database or collection cannot be created
type ErrProvisionFailed struct {
	*BaseError
	Target string
}

func NewProvisionFailed(target string, err error) *ErrProvisionFailed {
	return &ErrProvisionFailed{
		BaseError: NewBaseError(ErrorTypeGraph, fmt.Sprintf("failed to provision %s", target), err),
		Target:    target,
	}
}

// ErrDuplicateKey is returned when a document with the same primary key already exists.
// It is an expected outcome of re-running an import, not a store fault.
type ErrDuplicateKey struct {
	*BaseError
	Collection string
	Key        string
}

func NewDuplicateKey(collection, key string) *ErrDuplicateKey {
	return &ErrDuplicateKey{
		BaseError:  NewBaseError(ErrorTypeGraph, fmt.Sprintf("document %s/%s already exists", collection, key), nil),
		Collection: collection,
		Key:        key,
	}
}

// ErrGraphQueryFailed is returned when a graph query fails
type ErrGraphQueryFailed struct {
	*BaseError
	Query string
}

func NewGraphQueryFailed(query string, err error) *ErrGraphQueryFailed {
	return &ErrGraphQueryFailed{
		BaseError: NewBaseError(ErrorTypeGraph, fmt.Sprintf("query failed: %s", query), err),
		Query:     query,
	}
}

// ErrUnsafeQuery is returned when a generated query would modify the graph
type ErrUnsafeQuery struct {
	*BaseError
	Query   string
	Keyword string
}

func NewUnsafeQuery(query, keyword string) *ErrUnsafeQuery {
	return &ErrUnsafeQuery{
		BaseError: NewBaseError(ErrorTypeGraph, fmt.Sprintf("refusing to run query containing %s", keyword), nil),
		Query:     query,
		Keyword:   keyword,
	}
}

// Loader Errors

// ErrSourceUnreadable is returned when the import file cannot be opened or read
type ErrSourceUnreadable struct {
	*BaseError
	Path string
}

func NewSourceUnreadable(path string, err error) *ErrSourceUnreadable {
	return &ErrSourceUnreadable{
		BaseError: NewBaseError(ErrorTypeLoader, fmt.Sprintf("cannot read source %s", path), err),
		Path:      path,
	}
}

// Agent Errors

// ErrAgentLLMFailed is returned when LLM request fails
type ErrAgentLLMFailed struct {
	*BaseError
	Model     string
	Attempts  int
	Retryable bool
}

func NewAgentLLMFailed(model string, attempts int, retryable bool, err error) *ErrAgentLLMFailed {
	return &ErrAgentLLMFailed{
		BaseError: NewBaseError(ErrorTypeAgent, fmt.Sprintf("LLM request failed after %d attempts", attempts), err),
		Model:     model,
		Attempts:  attempts,
		Retryable: retryable,
	}
}

// ErrAgentNoResponse is returned when LLM returns no response
var ErrAgentNoResponse = NewBaseError(ErrorTypeAgent, "no response from LLM", nil)

// Context Errors

// ErrContextCancelled is returned when context is cancelled
type ErrContextCancelled struct {
	*BaseError
	Operation string
}

func NewContextCancelled(operation string, err error) *ErrContextCancelled {
	return &ErrContextCancelled{
		BaseError: NewBaseError(ErrorTypeContext, fmt.Sprintf("context cancelled: %s", operation), err),
		Operation: operation,
	}
}

// Config Errors

// ErrConfigValidationFailed is returned when configuration validation fails
type ErrConfigValidationFailed struct {
	*BaseError
	Field  string
	Reason string
}

func NewConfigValidationFailed(field, reason string) *ErrConfigValidationFailed {
	return &ErrConfigValidationFailed{
		BaseError: NewBaseError(ErrorTypeConfig, fmt.Sprintf("config validation failed: %s - %s", field, reason), nil),
		Field:     field,
		Reason:    reason,
	}
}

// ErrConfigMissingRequired is returned when a required config value is missing
type ErrConfigMissingRequired struct {
	*BaseError
	Field string
}

func NewConfigMissingRequired(field string) *ErrConfigMissingRequired {
	return &ErrConfigMissingRequired{
		BaseError: NewBaseError(ErrorTypeConfig, fmt.Sprintf("missing required config: %s", field), nil),
		Field:     field,
	}
}

// Helper functions

// typed is satisfied by every error in this package through the embedded *BaseError.
type typed interface {
	errorType() ErrorType
}

func (e *BaseError) errorType() ErrorType { return e.Type }

// IsErrorType checks if an error, or anything it wraps, is of a specific type
func IsErrorType(err error, errType ErrorType) bool {
	for err != nil {
		if t, ok := err.(typed); ok && t.errorType() == errType {
			return true
		}
		err = errors.Unwrap(err)
	}
	return false
}

// IsDuplicateKey reports whether err is a duplicate primary key rejection
func IsDuplicateKey(err error) bool {
	var dup *ErrDuplicateKey
	return errors.As(err, &dup)
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	if err == nil || IsErrorType(err, ErrorTypeContext) || IsDuplicateKey(err) {
		return false
	}
	var llmErr *ErrAgentLLMFailed
	if errors.As(err, &llmErr) {
		return llmErr.Retryable
	}
	var unreachable *ErrStoreUnreachable
	return errors.As(err, &unreachable)
}
