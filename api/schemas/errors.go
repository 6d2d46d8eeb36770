package schemas

import "errors"

// Sentinel errors shared across the perception, oracle, executor and
// session layers. Callers classify failures with errors.Is.
var (
	// ErrPerception means the page state could not be captured.
	ErrPerception = errors.New("perception failed")
	// ErrOracleUnavailable means the decision backend could not be reached
	// after retries.
	ErrOracleUnavailable = errors.New("oracle unavailable")
	// ErrOracleMalformed means the backend answered with something that is
	// not a valid decision.
	ErrOracleMalformed = errors.New("oracle response malformed")
	// ErrElementNotResolved means no resolution strategy matched the
	// decision's element reference.
	ErrElementNotResolved = errors.New("element not resolved")
	// ErrPageClosed means the target page or tab vanished mid-operation.
	ErrPageClosed = errors.New("page closed unexpectedly")
	// ErrNavigationTimeout means the page did not reach a usable load state
	// in time.
	ErrNavigationTimeout = errors.New("navigation timeout")
)
