package errors

// ErrorCode represents a machine-readable error code.
type ErrorCode string

// Structural errors: programmer mistakes in how stages are wired.
// They are never retried.
const (
	// ErrCodeInvalidPipeline indicates a composition that failed validation.
	ErrCodeInvalidPipeline ErrorCode = "INVALID_PIPELINE"
	// ErrCodeUnattachedPipe indicates a queue operation on a pipe that was never wired.
	ErrCodeUnattachedPipe ErrorCode = "UNATTACHED_PIPE"
	// ErrCodeNotImplemented indicates a required lifecycle hook has no implementation.
	ErrCodeNotImplemented ErrorCode = "NOT_IMPLEMENTED"
	// ErrCodeInvalidState indicates an operation not allowed in the current lifecycle state.
	ErrCodeInvalidState ErrorCode = "INVALID_STATE"
)

// Runtime errors raised while stages process messages.
const (
	// ErrCodeFilterFailed indicates a filter returned an error from its evaluation step.
	ErrCodeFilterFailed ErrorCode = "FILTER_FAILED"
	// ErrCodeFilterPanic indicates a filter panicked during its evaluation step.
	ErrCodeFilterPanic ErrorCode = "FILTER_PANIC"
	// ErrCodeTimeout indicates an operation did not finish before its deadline.
	ErrCodeTimeout ErrorCode = "TIMEOUT"
	// ErrCodeExternalService indicates an error from an external collaborator (broker, feed).
	ErrCodeExternalService ErrorCode = "EXTERNAL_SERVICE_ERROR"
)

// Resource and input errors
const (
	// ErrCodeNotFound indicates the requested resource was not found.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"
	// ErrCodeAlreadyExists indicates the resource already exists.
	ErrCodeAlreadyExists ErrorCode = "ALREADY_EXISTS"
	// ErrCodeInvalidInput indicates the input is invalid.
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
	// ErrCodeRateLimited indicates the caller exceeded its request budget.
	ErrCodeRateLimited ErrorCode = "RATE_LIMITED"
	// ErrCodeInternal indicates an internal error.
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

var retryableCodes = map[ErrorCode]bool{
	ErrCodeTimeout:         true,
	ErrCodeExternalService: true,
	ErrCodeRateLimited:     true,
}

// IsRetryableCode returns true if the error code indicates a retryable error.
func IsRetryableCode(code ErrorCode) bool {
	return retryableCodes[code]
}

// IsStructuralCode reports whether code describes a wiring or lifecycle mistake.
func IsStructuralCode(code ErrorCode) bool {
	switch code {
	case ErrCodeInvalidPipeline, ErrCodeUnattachedPipe, ErrCodeNotImplemented, ErrCodeInvalidState:
		return true
	}
	return false
}
