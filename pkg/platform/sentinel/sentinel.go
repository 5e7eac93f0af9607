// Package sentinel holds the store-level error facts shared across domains.
// Services translate them into domain errors; handlers never see them.
package sentinel

import "errors"

var (
	// ErrNotFound: row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict: unique constraint hit, e.g. a second allocation for the same slot.
	ErrConflict = errors.New("conflict")
	// ErrAlreadyUsed: the slot is already taken, e.g. the account already holds vouchers.
	ErrAlreadyUsed = errors.New("already used")
	// ErrInvalidState: row is not in a state that allows the transition.
	ErrInvalidState = errors.New("invalid state")
)
