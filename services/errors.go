package services

import "errors"

var (
	// ErrInvalidAction is returned when the action name is not recognized.
	ErrInvalidAction = errors.New("invalid review action")

	// ErrPermissionDenied is returned when the action exists but is not in
	// the set currently available to this reviewer for this submission.
	ErrPermissionDenied = errors.New("action not available for this reviewer and state")

	// ErrIncompleteSubmission is returned for actions on a submission with
	// no reviewable version. The action is a no-op.
	ErrIncompleteSubmission = errors.New("submission has no reviewable version")

	// ErrSigningFailure wraps a packager/signer error. The enclosing
	// transaction has been rolled back and the caller may retry.
	ErrSigningFailure = errors.New("packaged app signing failed")
)
