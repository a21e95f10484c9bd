// Package errors provides the structured error type shared by the engine,
// its stages and the status API.
//
// Errors fall into three groups: structural errors (invalid composition,
// unattached pipes, missing lifecycle hooks) which are programmer mistakes
// and never retried; runtime errors raised by a stage while it processes a
// message; and errors from external collaborators such as brokers or feeds.
// Cancellation is not an error and has no code.
package errors
