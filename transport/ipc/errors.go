package ipc

import (
	"fmt"
	"time"
)

// PoolTimeoutError is returned when no worker became available in time.
type PoolTimeoutError struct {
	After time.Duration
}

func (err *PoolTimeoutError) Error() string {
	return fmt.Sprintf("ipc: no worker available after %s", err.After)
}

func (err *PoolTimeoutError) Timeout() bool { return true }

// WorkerInitError is returned when a worker's socket can't be connected.
type WorkerInitError struct {
	Path  string
	cause error
}

func (err *WorkerInitError) Error() string {
	return fmt.Sprintf("ipc: failed to connect worker to %s: %s", err.Path, err.cause)
}

func (err *WorkerInitError) Cause() error  { return err.cause }
func (err *WorkerInitError) Unwrap() error { return err.cause }
