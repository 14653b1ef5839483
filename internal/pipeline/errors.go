package pipeline

import (
	"errors"
	"fmt"
)

// ConfigurationError reports a missing or invalid declared parameter. It is
// raised at construction time and is never retried.
type ConfigurationError struct {
	Param  string
	Reason string
}

var _ error = &ConfigurationError{}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid parameter %q: %s", e.Param, e.Reason)
}

func NewConfigurationError(param, reason string) error {
	return &ConfigurationError{Param: param, Reason: reason}
}

// PermanentError tags an external failure that must not be retried, such as
// a request rejected as malformed.
type PermanentError struct {
	Err error
}

var _ error = &PermanentError{}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("permanent: %v", e.Err)
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// Permanent tags err as not retryable.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// TransientError tags an external failure that is eligible for retry.
type TransientError struct {
	Err error
}

var _ error = &TransientError{}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient: %v", e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// Transient tags err as retryable.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// IsPermanent reports whether err carries the permanent tag anywhere in its
// chain. Untagged errors are treated as transient.
func IsPermanent(err error) bool {
	var perm *PermanentError
	return errors.As(err, &perm)
}

// JobError reports that an externally owned asynchronous job finished in an
// error state. Detail carries the external error payload.
type JobError struct {
	JobID  string
	Reason string
	Detail string
}

var _ error = &JobError{}

func (e *JobError) Error() string {
	return fmt.Sprintf("job %s failed (%s): %s", e.JobID, e.Reason, e.Detail)
}

// ExecutionError is the uniform wrapper for any otherwise-unhandled error
// escaping a worker body. The original error stays reachable through Unwrap
// so callers can still branch on it with errors.Is / errors.As.
type ExecutionError struct {
	WorkerType string
	Err        error
}

var _ error = &ExecutionError{}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("worker %s execution failed: %v", e.WorkerType, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}
