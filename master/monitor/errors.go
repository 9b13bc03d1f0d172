package monitor

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrShutdownInProgress is returned when registering a connection or scheduling a job after Shutdown has begun.
	// Goroutines blocked in the Monitor when Shutdown is called also return it.
	ErrShutdownInProgress = errors.New("monitor shutdown in progress")

	// ErrDuplicateConnection is returned when registering a connection under the name of a live connection.
	ErrDuplicateConnection = errors.New("a connection with the same name is already registered")

	// ErrUnknownJob indicates that a worker returned a result for a job that its connection does not hold.
	ErrUnknownJob = errors.New("result received for a job that the connection does not hold")

	// ErrHandshakeTimeout indicates that a newly-accepted worker did not complete the handshake in time.
	ErrHandshakeTimeout = errors.New("worker did not complete the handshake in time")

	// ErrJobAlreadyScheduled is returned when a job that is still outstanding is scheduled a second time.
	ErrJobAlreadyScheduled = errors.New("job is already scheduled")
)

// ConnectionFailure wraps any I/O error, decode error, or unexpected disconnect on a worker connection.
//
// ConnectionFailures are recovered by the Monitor, which unregisters the connection and reschedules its outstanding
// jobs. They are never returned to the callers of the Dispatcher.
type ConnectionFailure struct {
	Name string
	Err  error
}

func (e *ConnectionFailure) Error() string {
	return fmt.Sprintf("connection %s failed: %v", e.Name, e.Err)
}

func (e *ConnectionFailure) Unwrap() error {
	return e.Err
}

// Cause supports errors.Cause from github.com/pkg/errors.
func (e *ConnectionFailure) Cause() error {
	return e.Err
}
