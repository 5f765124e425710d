package conveyor

import "errors"

var (
	// ErrNotFound is returned when a definition or instance does not
	// exist for the given key and selector.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned by stores when an update lost an
	// optimistic concurrency race. Callers should reload and retry.
	ErrConflict = errors.New("concurrent modification")

	// ErrInvalidResumeTarget is returned when a resume names an
	// activity that is not currently blocking the instance.
	ErrInvalidResumeTarget = errors.New("activity is not blocking this instance")

	// ErrInvalidDefinition is returned when a definition's graph fails
	// structural validation.
	ErrInvalidDefinition = errors.New("invalid workflow definition")

	// ErrInstanceBusy is returned when a run or resume is attempted
	// while another call holds the instance's execution lease.
	ErrInstanceBusy = errors.New("instance is already executing")

	// ErrDefinitionDisabled is returned when running a disabled
	// definition version.
	ErrDefinitionDisabled = errors.New("workflow definition is disabled")

	// ErrSingletonActive is returned when a singleton definition
	// already has a live (running or blocked) instance.
	ErrSingletonActive = errors.New("singleton workflow already has a live instance")

	// ErrInstanceFinished is returned when mutating an instance in a
	// terminal state.
	ErrInstanceFinished = errors.New("instance is in a terminal state")
)
