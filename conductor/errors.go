package conductor

import (
	"errors"
	"fmt"
)

// ErrNoFreeWorker is returned when the background worker pool is saturated.
// Callers may retry later.
var ErrNoFreeWorker = errors.New("conductor: no free worker")

// BoardLockedError is returned when exclusive acquisition exhausts its
// retries. Holder names the conductor currently holding the lock.
type BoardLockedError struct {
	BoardUUID string
	Holder    string
}

func (e *BoardLockedError) Error() string {
	return fmt.Sprintf("board %s is locked by %s", e.BoardUUID, e.Holder)
}

// ExclusiveLockRequiredError is returned when an operation that mutates the
// board is invoked on a shared task handle.
type ExclusiveLockRequiredError struct {
	Op string
}

func (e *ExclusiveLockRequiredError) Error() string {
	return fmt.Sprintf("operation %s requires an exclusive lock", e.Op)
}

// InvalidStateError is returned when an event is not allowed by the board's
// provisioning state machine. Never retried; the board is left untouched.
type InvalidStateError struct {
	BoardUUID string
	State     string
	Event     string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("event %q not allowed for board %s in state %s", e.Event, e.BoardUUID, e.State)
}

// BoardNotConnectedError is returned before any broker call when the board
// is not ONLINE.
type BoardNotConnectedError struct {
	BoardUUID string
}

func (e *BoardNotConnectedError) Error() string {
	return fmt.Sprintf("board %s is not connected", e.BoardUUID)
}

// ExecutionError wraps a board-reported failure as-is.
type ExecutionError struct {
	BoardUUID string
	Procedure string
	Message   string
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("error executing %s on board %s: %s", e.Procedure, e.BoardUUID, e.Message)
}

// UnavailableError marks a dispatch that timed out or could not reach the
// broker; the caller may retry.
type UnavailableError struct {
	BoardUUID string
	Procedure string
	Err       error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("dispatch of %s to board %s unavailable: %v", e.Procedure, e.BoardUUID, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// InvalidPluginActionError is returned for an action outside the whitelist.
type InvalidPluginActionError struct {
	Action string
}

func (e *InvalidPluginActionError) Error() string {
	return fmt.Sprintf("invalid plugin action %q", e.Action)
}

// InvalidPluginParamsError is returned when caller-supplied parameters do
// not fit the action or the plugin's declared schema.
type InvalidPluginParamsError struct {
	Action string
	Reason string
}

func (e *InvalidPluginParamsError) Error() string {
	return fmt.Sprintf("invalid parameters for action %q: %s", e.Action, e.Reason)
}

// InjectionNotFoundError is returned when no InjectionPlugin row exists for
// the (board, plugin) pair.
type InjectionNotFoundError struct {
	BoardUUID  string
	PluginUUID string
}

func (e *InjectionNotFoundError) Error() string {
	return fmt.Sprintf("plugin %s is not injected on board %s", e.PluginUUID, e.BoardUUID)
}
