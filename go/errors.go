package slurmproxy

import "fmt"

// ValidationError reports a malformed or incomplete task before any contact
// with the scheduler.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid task: %s", e.Reason)
}

// NewValidationError builds a ValidationError from a format string.
func NewValidationError(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// DuplicateError reports a submission whose uuid or Slurm job id already
// exists in the registry. Raised before any scheduler call is made.
type DuplicateError struct {
	Field string
	Value string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("duplicate %s: %s already registered", e.Field, e.Value)
}

// AuthError reports a failure to mint a Slurm REST token.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed: %s", e.Reason)
}

// SlurmRestError carries the structured error reported by the Slurm REST API
// on a non-200 response. ErrorNumber and Description come from the first
// entry of the response's errors array when present.
type SlurmRestError struct {
	StatusCode  int
	ErrorNumber int
	Description string
	Message     string
}

func (e *SlurmRestError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("slurm rest error %d (status %d): %s", e.ErrorNumber, e.StatusCode, e.Description)
	}
	return fmt.Sprintf("slurm rest error (status %d): %s", e.StatusCode, e.Message)
}

// TransportError reports a network-level failure reaching Slurm, the SSH
// host, or a notification backend.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// PersistenceError reports a registry backend failure.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("registry %s failed: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// NotFoundError is returned by registry lookups when no record matches.
type NotFoundError struct {
	Key   string
	Value string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("job not found for %s %s", e.Key, e.Value)
}
