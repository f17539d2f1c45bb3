package reminder

import "errors"

var (
	// ErrNotFound is returned when a reminder does not exist.
	ErrNotFound = errors.New("reminder not found")
	// ErrAlreadyCompleted is returned when acting on a reminder that has
	// reached a terminal state.
	ErrAlreadyCompleted = errors.New("reminder already completed")
	// ErrInvalidState is returned when a transition is not allowed from the
	// reminder's current state.
	ErrInvalidState = errors.New("invalid reminder state for this action")
	// ErrSnoozeLimitExceeded is returned when a reminder has been snoozed
	// the maximum number of times.
	ErrSnoozeLimitExceeded = errors.New("snooze limit exceeded")
	// ErrDeliveryTransport is returned when the push gateway could not be
	// reached at all. Affected reminders stay pending for the next scan.
	ErrDeliveryTransport = errors.New("push delivery transport failure")
	// ErrScanInProgress is returned when a manual scan is requested while
	// another scan is still running.
	ErrScanInProgress = errors.New("scan already in progress")
)
