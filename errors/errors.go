package errors

import (
	stderrors "errors"
	"fmt"
	"maps"
	"net/http"
)

// AppError carries a machine-readable code with a message for humans.
// HTTPStatus and Retryable follow from the code unless a constructor says
// otherwise; Cause is reachable through errors.Unwrap.
type AppError struct {
	Code       ErrorCode      `json:"code"`
	Message    string         `json:"message"`
	Retryable  bool           `json:"retryable"`
	HTTPStatus int            `json:"-"`
	Details    map[string]any `json:"details,omitempty"`
	Cause      error          `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.Cause)
}

func (e *AppError) Unwrap() error { return e.Cause }

// Is matches any *AppError with the same code.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	return ok && t.Code == e.Code
}

// WithCause sets the underlying cause of the error and returns the receiver.
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// WithDetails merges details into the error and returns it.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any, len(details))
	}
	maps.Copy(e.Details, details)
	return e
}

// WithDetail sets a single detail key-value pair and returns the receiver.
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// New returns an AppError whose Retryable flag follows the code.
func New(code ErrorCode, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Retryable:  IsRetryableCode(code),
	}
}

// kv turns alternating keys and values into a details map, or nil when
// there are none.
func kv(pairs ...any) map[string]any {
	if len(pairs) < 2 {
		return nil
	}
	m := make(map[string]any, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		if k, ok := pairs[i].(string); ok {
			m[k] = pairs[i+1]
		}
	}
	return m
}

func build(code ErrorCode, status int, details map[string]any, format string, args ...any) *AppError {
	e := New(code, fmt.Sprintf(format, args...), status)
	e.Details = details
	return e
}

// HasCode reports whether any AppError in err's chain carries code.
func HasCode(err error, code ErrorCode) bool {
	var appErr *AppError
	for err != nil {
		if !stderrors.As(err, &appErr) {
			return false
		}
		if appErr.Code == code {
			return true
		}
		err = appErr.Cause
	}
	return false
}

// InvalidPipeline reports a pipeline composition that failed validation.
func InvalidPipeline(pipeline, reason string) *AppError {
	return build(ErrCodeInvalidPipeline, http.StatusUnprocessableEntity, kv("pipeline", pipeline),
		"pipeline %q is invalid: %s", pipeline, reason)
}

// UnattachedPipe reports a queue operation on a pipe no filter was wired to.
func UnattachedPipe(operation string) *AppError {
	return build(ErrCodeUnattachedPipe, http.StatusInternalServerError, kv("operation", operation),
		"%s on an unattached pipe", operation)
}

func NotImplemented(what string) *AppError {
	return build(ErrCodeNotImplemented, http.StatusNotImplemented, nil, "%s is not implemented", what)
}

// InvalidState reports an operation attempted in the wrong lifecycle state.
func InvalidState(entity, state, operation string) *AppError {
	return build(ErrCodeInvalidState, http.StatusConflict, kv("entity", entity, "state", state),
		"cannot %s %s in state %s", operation, entity, state)
}

// FilterFailed wraps the error a filter returned from Evaluate.
func FilterFailed(filter string, cause error) *AppError {
	return build(ErrCodeFilterFailed, http.StatusInternalServerError, kv("filter", filter),
		"filter %q failed", filter).WithCause(cause)
}

// FilterPanic reports a filter that panicked in Evaluate. The recovered
// value becomes part of the message.
func FilterPanic(filter string, recovered any) *AppError {
	return build(ErrCodeFilterPanic, http.StatusInternalServerError, kv("filter", filter),
		"filter %q panicked: %v", filter, recovered)
}

func Timeout(operation string) *AppError {
	return build(ErrCodeTimeout, http.StatusGatewayTimeout, kv("operation", operation),
		"%s did not finish in time", operation)
}

// ExternalServiceError wraps a failure of a collaborator such as the
// broker or a feed.
func ExternalServiceError(service string, cause error) *AppError {
	return build(ErrCodeExternalService, http.StatusBadGateway, kv("service", service),
		"the %s service encountered an error", service).WithCause(cause)
}

// RateLimited reports a caller over its request budget.
func RateLimited(key string) *AppError {
	return build(ErrCodeRateLimited, http.StatusTooManyRequests, kv("key", key), "rate limit exceeded")
}

// NotFound reports a missing resource. An empty id is left out of the
// details.
func NotFound(resource, id string) *AppError {
	details := kv("resource", resource)
	if id != "" {
		details["id"] = id
	}
	return build(ErrCodeNotFound, http.StatusNotFound, details, "the requested %s was not found", resource)
}

func AlreadyExists(resource string) *AppError {
	return build(ErrCodeAlreadyExists, http.StatusConflict, kv("resource", resource),
		"a %s with these details already exists", resource)
}

// InvalidInput reports a bad value for field. An empty field is left out
// of the details.
func InvalidInput(field, reason string) *AppError {
	var details map[string]any
	if field != "" {
		details = kv("field", field)
	}
	return build(ErrCodeInvalidInput, http.StatusBadRequest, details, "invalid input: %s", reason)
}

// Validation reports input rejected by struct validation; message is
// used as is.
func Validation(message string) *AppError {
	return New(ErrCodeInvalidInput, message, http.StatusBadRequest)
}

// Internal hides cause behind a generic message.
func Internal(cause error) *AppError {
	return build(ErrCodeInternal, http.StatusInternalServerError, nil, "an unexpected error occurred").WithCause(cause)
}
