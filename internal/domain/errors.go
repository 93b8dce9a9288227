package domain

import "errors"

var (
	// ErrAuthExpired signals a revoked or unusable credential. The run cannot
	// continue; the consent flow has to be repeated to mint a new record.
	ErrAuthExpired = errors.New("critic: authorization expired")
	// ErrAuthTransient indicates a refresh attempt failed for a reason that is
	// eligible for a bounded retry (network blip, provider 5xx).
	ErrAuthTransient = errors.New("critic: transient authorization error")
	// ErrRateLimited indicates the remote API throttled us past the retry budget.
	ErrRateLimited = errors.New("critic: rate limited")
	// ErrNetwork indicates a remote call failed after exhausting retries.
	ErrNetwork = errors.New("critic: network error")
	// ErrGeneration indicates the critique generator failed for one activity.
	ErrGeneration = errors.New("critic: critique generation failed")
	// ErrRemoteValidation indicates the remote API rejected an upload payload.
	ErrRemoteValidation = errors.New("critic: remote validation rejected")
	// ErrCorruptState indicates a persisted artifact failed to parse.
	ErrCorruptState = errors.New("critic: corrupt state")
	// ErrNotFound signals a missing credential record or persisted artifact.
	ErrNotFound = errors.New("critic: not found")
)
