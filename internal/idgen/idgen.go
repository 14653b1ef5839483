// Package idgen generates the identifiers threaded through worker
// invocations and log records.
package idgen

import "github.com/google/uuid"

// ExecutionID returns a fresh identifier for one worker invocation.
func ExecutionID() string {
	return "exec_" + uuid.New().String()
}

// InstanceID returns a fresh identifier for one logical pipeline run.
// Every continuation spawned from the run carries the same instance ID.
func InstanceID() string {
	return "run_" + uuid.New().String()
}
