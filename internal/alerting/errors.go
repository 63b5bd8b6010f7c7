package alerting

import "errors"

var (
	// ErrInvalidConfig marks configuration rejected at create/update time.
	ErrInvalidConfig = errors.New("invalid alert config")

	// ErrConfigNotFound is returned for operations on unknown configs.
	ErrConfigNotFound = errors.New("alert config not found")

	// ErrAlertNotFound is returned for operations on unknown alerts.
	ErrAlertNotFound = errors.New("alert not found")

	// ErrAlertResolved is returned when a transition targets an alert that
	// already reached its terminal state.
	ErrAlertResolved = errors.New("alert already resolved")
)
