package contract

import "errors"

var (
	// ErrProvider marks transient telephony/CRM failures. Retried at the
	// scheduler level via retry tickets, never inside a webhook handler.
	ErrProvider = errors.New("provider request failed")

	// ErrGeneration marks a language-model failure. Recovered locally by the
	// dialogue policy: at most one immediate retry, then degrade.
	ErrGeneration = errors.New("model generation failed")

	// ErrSchemaViolation marks a model reply that does not match the
	// structured output contract.
	ErrSchemaViolation = errors.New("model response violates schema")

	// ErrAlreadyInCall is returned when an attempt is started for a lead
	// that already has a live call session.
	ErrAlreadyInCall = errors.New("lead already in call")

	// ErrNotFound is returned for unknown lead ids.
	ErrNotFound = errors.New("lead not found")

	ErrValidation = errors.New("validation failed")
)
